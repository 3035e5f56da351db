package dex

import (
	"errors"
	"testing"
)

func TestSourceBounds(t *testing.T) {
	s := NewSource([]byte{0x01, 0x02, 0x03, 0x04})

	if b, err := s.Bytes(1, 3); err != nil || len(b) != 3 || b[0] != 0x02 {
		t.Errorf("Bytes(1, 3) = %v, %v", b, err)
	}
	if _, err := s.Bytes(2, 3); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Bytes(2, 3) error = %v", err)
	}
	// off+n wraps uint32; the widened check must still reject it
	if _, err := s.Bytes(0xffffffff, 2); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Bytes(0xffffffff, 2) error = %v", err)
	}

	if v, err := s.U32(0); err != nil || v != 0x04030201 {
		t.Errorf("U32(0) = 0x%08x, %v", v, err)
	}
	if _, err := s.U32(1); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("U32(1) error = %v", err)
	}
}

func TestSourceLeb(t *testing.T) {
	s := NewSource([]byte{0xe5, 0x8e, 0x26, 0x7f})

	v, n, err := s.Uleb128(0)
	if err != nil || v != 624485 || n != 3 {
		t.Errorf("Uleb128 = %d, %d, %v", v, n, err)
	}
	sv, n, err := s.Sleb128(3)
	if err != nil || sv != -1 || n != 1 {
		t.Errorf("Sleb128 = %d, %d, %v", sv, n, err)
	}
	if _, _, err := s.Uleb128(4); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("Uleb128 at end error = %v", err)
	}

	// continuation bit set on the last byte of the buffer
	trunc := NewSource([]byte{0x80})
	if _, _, err := trunc.Uleb128(0); !errors.Is(err, ErrOutOfBounds) {
		t.Errorf("truncated Uleb128 error = %v", err)
	}

	// six-byte encoding is over the five-byte limit
	over := NewSource([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	if _, _, err := over.Uleb128(0); !errors.Is(err, ErrMalformedLeb128) {
		t.Errorf("overlong Uleb128 error = %v", err)
	}
}
