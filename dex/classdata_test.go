package dex

import (
	"errors"
	"testing"
)

func TestClassDataAt(t *testing.T) {
	d := mustDex(t, buildFixture())
	cd, err := d.ClassDataAt(offClassData)
	if err != nil {
		t.Fatalf("ClassDataAt: %v", err)
	}
	if len(cd.StaticFields) != 1 || len(cd.InstanceFields) != 0 ||
		len(cd.DirectMethods) != 1 || len(cd.VirtualMethods) != 0 {
		t.Fatalf("group sizes = %d/%d/%d/%d",
			len(cd.StaticFields), len(cd.InstanceFields),
			len(cd.DirectMethods), len(cd.VirtualMethods))
	}
	f := cd.StaticFields[0]
	if f.FieldIndex != 0 || !f.AccessFlags.Has(AccPrivate|AccStatic) {
		t.Errorf("static field = %+v", f)
	}
	m := cd.DirectMethods[0]
	if m.MethodIndex != 0 || m.CodeOff != offCode || !m.AccessFlags.Has(AccPublic) {
		t.Errorf("direct method = %+v", m)
	}
	if cd.Size != classDataSize {
		t.Errorf("Size = %d, want %d", cd.Size, classDataSize)
	}
}

func TestClassDataAtZeroOffset(t *testing.T) {
	d := mustDex(t, buildFixture())
	cd, err := d.ClassDataAt(0)
	if cd != nil || err != nil {
		t.Errorf("ClassDataAt(0) = %v, %v; want nil, nil", cd, err)
	}
}

func TestDecodeClassDataExact(t *testing.T) {
	d := mustDex(t, buildFixture())
	if _, err := DecodeClassDataExact(d, offClassData, classDataSize); err != nil {
		t.Errorf("exact size: %v", err)
	}
	_, err := DecodeClassDataExact(d, offClassData, classDataSize+1)
	if !errors.Is(err, ErrMalformedClassData) {
		t.Errorf("oversized region error = %v, want ErrMalformedClassData", err)
	}
}

// appendBlock grows the fixture and returns the offset of the appended
// bytes, for decoding hand-built items without re-laying-out the file.
func appendBlock(b []byte, block []byte) ([]byte, uint32) {
	off := uint32(len(b))
	return append(b, block...), off
}

func TestClassDataMalformed(t *testing.T) {
	tests := []struct {
		name  string
		block []byte
	}{
		{
			// second static field delta is zero: duplicate index
			"repeated field index",
			[]byte{
				0x02, 0x00, 0x00, 0x00,
				0x00, 0x0a,
				0x00, 0x0a,
			},
		},
		{
			// field index 1 but the pool holds a single entry
			"field index past pool",
			[]byte{
				0x01, 0x00, 0x00, 0x00,
				0x01, 0x0a,
			},
		},
		{
			// method index 5 but the pool holds a single entry
			"method index past pool",
			[]byte{
				0x00, 0x00, 0x01, 0x00,
				0x05, 0x01, 0x00,
			},
		},
		{
			// count far beyond what the remaining bytes could hold
			"hostile count",
			[]byte{
				0xff, 0xff, 0x03, // 65535 static fields
				0x00, 0x00, 0x00,
			},
		},
		{
			// counts claim an entry but the buffer ends
			"truncated entries",
			[]byte{0x01, 0x00, 0x00, 0x00},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, off := appendBlock(buildFixture(), tt.block)
			d := mustDex(t, b)
			_, err := d.ClassDataAt(off)
			if !errors.Is(err, ErrMalformedClassData) {
				t.Errorf("ClassDataAt error = %v, want ErrMalformedClassData", err)
			}
		})
	}
}

// A method entry whose code offset points outside the buffer fails at
// class data decode time, before anyone dereferences the code item.
func TestClassDataBadCodeOffset(t *testing.T) {
	b, off := appendBlock(buildFixture(), []byte{
		0x00, 0x00, 0x01, 0x00,
		0x00, 0x01, 0xff, 0xff, 0xff, 0x07, // code offset far past the end
	})
	d := mustDex(t, b)
	if _, err := d.ClassDataAt(off); !errors.Is(err, ErrMalformedClassData) {
		t.Errorf("ClassDataAt error = %v, want ErrMalformedClassData", err)
	}
}

// Diff decoding accumulates deltas: three fields with deltas 0, 1, 1
// would need field ids 0, 1 and 2, and the two past the pool must fail.
// With a single-entry pool only the first survives, so decode a file
// variant with deltas that stay in range.
func TestClassDataDeltaAccumulation(t *testing.T) {
	b, off := appendBlock(buildFixture(), []byte{
		0x00, 0x00, 0x02, 0x00, // two direct methods
		0x00, 0x01, 0x00, // method 0
		0x01, 0x01, 0x00, // delta 1: method 1, out of range
	})
	d := mustDex(t, b)
	_, err := d.ClassDataAt(off)
	if !errors.Is(err, ErrMalformedClassData) {
		t.Errorf("ClassDataAt error = %v, want ErrMalformedClassData", err)
	}
}
