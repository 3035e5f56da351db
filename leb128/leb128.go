// Package leb128 implements the little-endian base-128 variable-length
// integer encodings used throughout the Dex container format.
package leb128

import "errors"

var (
	ErrTruncated = errors.New("leb128: unexpected end of data")
	ErrOverflow  = errors.New("leb128: value does not fit in 32 bits")
)

// maxBytes is the longest legal encoding of a 32-bit value: four full
// 7-bit groups plus a final byte carrying the top 4 bits.
const maxBytes = 5

// Uleb128 decodes an unsigned LEB128 value from the start of b and
// returns the value and the number of bytes consumed.
func Uleb128(b []byte) (uint32, int, error) {
	var v uint32
	var shift uint
	for i := 0; i < maxBytes; i++ {
		if i >= len(b) {
			return 0, 0, ErrTruncated
		}
		c := b[i]
		if i == maxBytes-1 {
			// Fifth byte: continuation must be clear and only the
			// low 4 bits may be set, or the value overflows 32 bits.
			if c > 0x0f {
				return 0, 0, ErrOverflow
			}
		}
		v |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrOverflow
}

// Uleb128p1 decodes a ULEB128 value and subtracts one. The on-disk value 0
// decodes to -1, the convention for "no index" in optional fields.
func Uleb128p1(b []byte) (int32, int, error) {
	v, n, err := Uleb128(b)
	if err != nil {
		return 0, 0, err
	}
	return int32(v) - 1, n, nil
}

// Sleb128 decodes a signed LEB128 value from the start of b. The sign is
// taken from the highest used bit of the final byte.
func Sleb128(b []byte) (int32, int, error) {
	var v uint32
	var shift uint
	for i := 0; i < maxBytes; i++ {
		if i >= len(b) {
			return 0, 0, ErrTruncated
		}
		c := b[i]
		if i == maxBytes-1 {
			// Fifth byte: continuation must be clear and bits above the
			// 32-bit sign bit must all match it (pure sign extension).
			if c&0x80 != 0 {
				return 0, 0, ErrOverflow
			}
			ext := c & 0x70
			if c&0x08 != 0 {
				if ext != 0x70 {
					return 0, 0, ErrOverflow
				}
			} else if ext != 0 {
				return 0, 0, ErrOverflow
			}
		}
		v |= uint32(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			if shift < 32 && c&0x40 != 0 {
				v |= ^uint32(0) << shift
			}
			return int32(v), i + 1, nil
		}
	}
	return 0, 0, ErrOverflow
}

// AppendUleb128 appends the minimal-length unsigned encoding of v to dst.
func AppendUleb128(dst []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			dst = append(dst, c|0x80)
			continue
		}
		return append(dst, c)
	}
}

// AppendUleb128p1 appends the encoding of v+1. v must be >= -1.
func AppendUleb128p1(dst []byte, v int32) []byte {
	return AppendUleb128(dst, uint32(v+1))
}

// AppendSleb128 appends the minimal-length signed encoding of v to dst.
func AppendSleb128(dst []byte, v int32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7 // arithmetic shift
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(dst, c)
		}
		dst = append(dst, c|0x80)
	}
}
