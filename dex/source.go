package dex

import (
	"encoding/binary"
	"fmt"

	"undex/leb128"
)

// Source is bounds-checked read access over an immutable buffer. Every
// read names its offset explicitly; there is no cursor, so any number of
// readers may decode concurrently.
type Source struct {
	data []byte
}

// NewSource wraps data. The buffer must stay alive and unmodified for as
// long as any value decoded from it is in use.
func NewSource(data []byte) *Source {
	return &Source{data: data}
}

// Len returns the buffer length.
func (s *Source) Len() uint32 { return uint32(len(s.data)) }

// Bytes returns the n bytes at off without copying. The addition is
// widened to 64 bits so a hostile offset cannot wrap.
func (s *Source) Bytes(off, n uint32) ([]byte, error) {
	if uint64(off)+uint64(n) > uint64(len(s.data)) {
		return nil, fmt.Errorf("%w: %d bytes at 0x%x (len %d)", ErrOutOfBounds, n, off, len(s.data))
	}
	return s.data[off : off+n], nil
}

// tail returns the buffer from off to the end.
func (s *Source) tail(off uint32) ([]byte, error) {
	if uint64(off) > uint64(len(s.data)) {
		return nil, fmt.Errorf("%w: offset 0x%x (len %d)", ErrOutOfBounds, off, len(s.data))
	}
	return s.data[off:], nil
}

func (s *Source) U8(off uint32) (uint8, error) {
	b, err := s.Bytes(off, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (s *Source) U16(off uint32) (uint16, error) {
	b, err := s.Bytes(off, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (s *Source) U32(off uint32) (uint32, error) {
	b, err := s.Bytes(off, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (s *Source) U64(off uint32) (uint64, error) {
	b, err := s.Bytes(off, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Uleb128 decodes an unsigned LEB128 value at off, returning the value
// and the number of bytes consumed.
func (s *Source) Uleb128(off uint32) (uint32, uint32, error) {
	b, err := s.tail(off)
	if err != nil {
		return 0, 0, err
	}
	v, n, err := leb128.Uleb128(b)
	if err != nil {
		return 0, 0, lebErr(err, off)
	}
	return v, uint32(n), nil
}

// Uleb128p1 decodes a ULEB128p1 value at off; -1 means "no value".
func (s *Source) Uleb128p1(off uint32) (int32, uint32, error) {
	b, err := s.tail(off)
	if err != nil {
		return 0, 0, err
	}
	v, n, err := leb128.Uleb128p1(b)
	if err != nil {
		return 0, 0, lebErr(err, off)
	}
	return v, uint32(n), nil
}

// Sleb128 decodes a signed LEB128 value at off.
func (s *Source) Sleb128(off uint32) (int32, uint32, error) {
	b, err := s.tail(off)
	if err != nil {
		return 0, 0, err
	}
	v, n, err := leb128.Sleb128(b)
	if err != nil {
		return 0, 0, lebErr(err, off)
	}
	return v, uint32(n), nil
}

// lebErr maps leb128 failures into the decode taxonomy: running off the
// buffer is an out-of-bounds read, anything else is a bad encoding.
func lebErr(err error, off uint32) error {
	if err == leb128.ErrTruncated {
		return fmt.Errorf("%w: leb128 at 0x%x", ErrOutOfBounds, off)
	}
	return fmt.Errorf("%w: at 0x%x: %v", ErrMalformedLeb128, off, err)
}
