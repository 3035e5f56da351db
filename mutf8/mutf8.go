// Package mutf8 implements the modified UTF-8 encoding used for Dex string
// data: NUL is encoded as the two-byte sequence C0 80 and supplementary
// characters as a pair of 3-byte-encoded UTF-16 surrogates.
package mutf8

import (
	"errors"
	"strings"
)

var (
	ErrTruncated = errors.New("mutf8: string data ends mid-sequence")
	ErrInvalid   = errors.New("mutf8: invalid byte sequence")
)

const (
	surrHighMin = 0xd800
	surrHighMax = 0xdbff
	surrLowMin  = 0xdc00
	surrLowMax  = 0xdfff
)

// Decode reads exactly codeUnits UTF-16 code units from b and returns the
// decoded string and the number of bytes consumed. A raw 0x00 byte inside
// the declared length is invalid; embedded NUL is spelled C0 80. Unpaired
// surrogates are replaced with U+FFFD but still count as one code unit.
func Decode(b []byte, codeUnits int) (string, int, error) {
	var sb strings.Builder
	i := 0
	units := 0
	for units < codeUnits {
		u, n, err := decodeUnit(b[i:])
		if err != nil {
			return "", 0, err
		}
		i += n
		units++
		if u < surrHighMin || u > surrLowMax {
			sb.WriteRune(rune(u))
			continue
		}
		if u >= surrLowMin {
			// Low surrogate with no preceding high surrogate.
			sb.WriteRune('�')
			continue
		}
		// High surrogate: a low surrogate must follow, and both halves
		// count against the declared length.
		if units < codeUnits {
			if lo, ln, err := decodeUnit(b[i:]); err == nil && lo >= surrLowMin && lo <= surrLowMax {
				sb.WriteRune(0x10000 + (rune(u-surrHighMin) << 10) + rune(lo-surrLowMin))
				i += ln
				units++
				continue
			}
		}
		sb.WriteRune('�')
	}
	return sb.String(), i, nil
}

// decodeUnit decodes one UTF-16 code unit (1, 2 or 3 bytes).
func decodeUnit(b []byte) (uint16, int, error) {
	if len(b) == 0 {
		return 0, 0, ErrTruncated
	}
	c := b[0]
	switch {
	case c == 0x00:
		// Raw NUL is the encoding's terminator, never string content.
		return 0, 0, ErrInvalid
	case c < 0x80:
		return uint16(c), 1, nil
	case c&0xe0 == 0xc0:
		if len(b) < 2 {
			return 0, 0, ErrTruncated
		}
		if b[1]&0xc0 != 0x80 {
			return 0, 0, ErrInvalid
		}
		return uint16(c&0x1f)<<6 | uint16(b[1]&0x3f), 2, nil
	case c&0xf0 == 0xe0:
		if len(b) < 3 {
			return 0, 0, ErrTruncated
		}
		if b[1]&0xc0 != 0x80 || b[2]&0xc0 != 0x80 {
			return 0, 0, ErrInvalid
		}
		return uint16(c&0x0f)<<12 | uint16(b[1]&0x3f)<<6 | uint16(b[2]&0x3f), 3, nil
	default:
		// 10xxxxxx continuation in lead position, or a 4-byte UTF-8
		// lead, which modified UTF-8 does not use.
		return 0, 0, ErrInvalid
	}
}

// Encode converts s to modified UTF-8.
func Encode(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		switch {
		case r == 0:
			out = append(out, 0xc0, 0x80)
		case r < 0x80:
			out = append(out, byte(r))
		case r < 0x800:
			out = append(out, 0xc0|byte(r>>6), 0x80|byte(r&0x3f))
		case r < 0x10000:
			out = appendUnit(out, uint16(r))
		default:
			r -= 0x10000
			out = appendUnit(out, uint16(surrHighMin+(r>>10)))
			out = appendUnit(out, uint16(surrLowMin+(r&0x3ff)))
		}
	}
	return out
}

func appendUnit(out []byte, u uint16) []byte {
	return append(out, 0xe0|byte(u>>12), 0x80|byte(u>>6)&0x3f, 0x80|byte(u)&0x3f)
}

// CodeUnitLen returns the number of UTF-16 code units s occupies, the
// quantity a Dex string_data_item declares ahead of its bytes.
func CodeUnitLen(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xffff {
			n += 2
		} else {
			n++
		}
	}
	return n
}
