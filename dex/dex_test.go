package dex

import (
	"encoding/binary"
	"errors"
	"testing"
)

// Fixture layout. One class LFoo; extending java.lang.Object with a
// static int field x, a method foo()V whose body has one try with a
// typed handler plus catch-all, debug info and a static initializer.
const (
	offStringIDs  = 112
	offTypeIDs    = 144
	offProtoIDs   = 160
	offFieldIDs   = 172
	offMethodIDs  = 180
	offStringData = 200
	offClassDefs  = 260
	offClassData  = 292
	offCode       = 320
	offDebugInfo  = 368
	offStaticVals = 376
	offMapList    = 384
	fixtureSize   = 544

	classDataSize = 10
)

var fixtureStrings = []string{
	"hello", "Ljava/lang/Object;", "LFoo;", "V", "foo", "x", "I", "Foo.java",
}

func buildFixture() []byte {
	b := make([]byte, fixtureSize)
	le := binary.LittleEndian

	copy(b, "dex\n035\x00")
	le.PutUint32(b[32:], fixtureSize) // file_size
	le.PutUint32(b[36:], HeaderSize)
	le.PutUint32(b[40:], endianConstant)
	le.PutUint32(b[52:], offMapList)
	section := func(at int, count, off uint32) {
		le.PutUint32(b[at:], count)
		le.PutUint32(b[at+4:], off)
	}
	section(56, 8, offStringIDs)
	section(64, 4, offTypeIDs)
	section(72, 1, offProtoIDs)
	section(80, 1, offFieldIDs)
	section(88, 1, offMethodIDs)
	section(96, 1, offClassDefs)
	le.PutUint32(b[104:], fixtureSize-offStringData)
	le.PutUint32(b[108:], offStringData)

	// String pool: all entries are ASCII, so the code-unit count equals
	// the byte length and fits one ULEB byte.
	pos := uint32(offStringData)
	for i, s := range fixtureStrings {
		le.PutUint32(b[offStringIDs+i*4:], pos)
		b[pos] = byte(len(s))
		copy(b[pos+1:], s)
		pos += uint32(len(s)) + 2
	}

	// type_ids: descriptor string indices.
	for i, si := range []uint32{1, 2, 6, 3} {
		le.PutUint32(b[offTypeIDs+i*4:], si)
	}

	// proto 0: foo()V. shorty "V", return type "V", no parameters.
	le.PutUint32(b[offProtoIDs:], 3)
	le.PutUint32(b[offProtoIDs+4:], 3)
	le.PutUint32(b[offProtoIDs+8:], 0)

	// field 0: LFoo;.x:I
	le.PutUint16(b[offFieldIDs:], 1)
	le.PutUint16(b[offFieldIDs+2:], 2)
	le.PutUint32(b[offFieldIDs+4:], 5)

	// method 0: LFoo;.foo()V
	le.PutUint16(b[offMethodIDs:], 1)
	le.PutUint16(b[offMethodIDs+2:], 0)
	le.PutUint32(b[offMethodIDs+4:], 4)

	// class def 0
	for i, v := range []uint32{
		1,             // class_idx LFoo;
		0x1,           // ACC_PUBLIC
		0,             // superclass Ljava/lang/Object;
		0,             // interfaces_off
		7,             // source_file_idx "Foo.java"
		0,             // annotations_off
		offClassData,  // class_data_off
		offStaticVals, // static_values_off
	} {
		le.PutUint32(b[offClassDefs+i*4:], v)
	}

	// class data: 1 static field, 0 instance, 1 direct method, 0 virtual
	copy(b[offClassData:], []byte{
		0x01, 0x00, 0x01, 0x00, // counts
		0x00, 0x0a, // field 0, private|static
		0x00, 0x01, 0xc0, 0x02, // method 0, public, code at 320
	})

	// code item: 1 register, 1 in, 1 code unit (return-void), 1 try
	le.PutUint16(b[offCode:], 1)
	le.PutUint16(b[offCode+2:], 1)
	le.PutUint16(b[offCode+4:], 0)
	le.PutUint16(b[offCode+6:], 1)
	le.PutUint32(b[offCode+8:], offDebugInfo)
	le.PutUint32(b[offCode+12:], 1)
	le.PutUint16(b[offCode+16:], 0x000e)
	// two bytes of alignment padding, then the try item
	le.PutUint32(b[offCode+20:], 0) // start_addr
	le.PutUint16(b[offCode+24:], 1) // insn_count
	le.PutUint16(b[offCode+26:], 1) // handler_off
	copy(b[offCode+28:], []byte{
		0x01,       // one handler
		0x7f,       // size -1: one pair plus catch-all
		0x00, 0x00, // pair: type 0, addr 0
		0x00, // catch-all addr
	})

	// debug info: line_start 1, one unnamed parameter, prologue end,
	// special 0x0f (line +1, addr +0), end
	copy(b[offDebugInfo:], []byte{0x01, 0x01, 0x00, 0x07, 0x0f, 0x00})

	// static values: [int 42]
	copy(b[offStaticVals:], []byte{0x01, 0x04, 0x2a})

	// map list
	items := []MapItem{
		{ItemHeader, 1, 0},
		{ItemStringID, 8, offStringIDs},
		{ItemTypeID, 4, offTypeIDs},
		{ItemProtoID, 1, offProtoIDs},
		{ItemFieldID, 1, offFieldIDs},
		{ItemMethodID, 1, offMethodIDs},
		{ItemClassDef, 1, offClassDefs},
		{ItemStringData, 8, offStringData},
		{ItemClassData, 1, offClassData},
		{ItemCode, 1, offCode},
		{ItemDebugInfo, 1, offDebugInfo},
		{ItemEncodedArray, 1, offStaticVals},
		{ItemMapList, 1, offMapList},
	}
	le.PutUint32(b[offMapList:], uint32(len(items)))
	for i, it := range items {
		at := offMapList + 4 + i*12
		le.PutUint16(b[at:], uint16(it.Type))
		le.PutUint32(b[at+4:], it.Count)
		le.PutUint32(b[at+8:], it.Off)
	}

	return b
}

func mustDex(t *testing.T, data []byte) *Dex {
	t.Helper()
	d, err := New(data)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestNewParsesHeader(t *testing.T) {
	d := mustDex(t, buildFixture())
	h := d.Header()
	if h.Version != 35 {
		t.Errorf("Version = %d, want 35", h.Version)
	}
	if h.EndianTag != endianConstant {
		t.Errorf("EndianTag = 0x%08x", h.EndianTag)
	}
	if h.StringIDs != (Section{8, offStringIDs}) {
		t.Errorf("StringIDs = %+v", h.StringIDs)
	}
	if h.MapOff != offMapList {
		t.Errorf("MapOff = 0x%x, want 0x%x", h.MapOff, offMapList)
	}
	if d.StringCount() != 8 || d.TypeCount() != 4 || d.ProtoCount() != 1 ||
		d.FieldCount() != 1 || d.MethodCount() != 1 || d.ClassCount() != 1 {
		t.Errorf("counts = %d/%d/%d/%d/%d/%d",
			d.StringCount(), d.TypeCount(), d.ProtoCount(),
			d.FieldCount(), d.MethodCount(), d.ClassCount())
	}
}

func TestNewRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		mangle  func(b []byte) []byte
		wantErr error
	}{
		{
			"bad magic",
			func(b []byte) []byte { b[0] = 'x'; return b },
			ErrInvalidMagic,
		},
		{
			"bad version digits",
			func(b []byte) []byte { b[5] = 'a'; return b },
			ErrInvalidMagic,
		},
		{
			"big endian tag",
			func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[40:], 0x78563412)
				return b
			},
			ErrInvalidEndianTag,
		},
		{
			"truncated header",
			func(b []byte) []byte { return b[:64] },
			ErrOutOfBounds,
		},
		{
			"string table past end",
			func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[56:], 1<<30)
				return b
			},
			ErrOutOfBounds,
		},
		{
			"map_off past end",
			func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[52:], fixtureSize+1)
				return b
			},
			ErrOutOfBounds,
		},
		{
			"link section past end",
			func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[44:], 8)             // link_size
				binary.LittleEndian.PutUint32(b[48:], fixtureSize-4) // link_off
				return b
			},
			ErrOutOfBounds,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.mangle(buildFixture()))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestStringAt(t *testing.T) {
	d := mustDex(t, buildFixture())
	for i, want := range fixtureStrings {
		got, err := d.StringAt(uint32(i))
		if err != nil {
			t.Fatalf("StringAt(%d): %v", i, err)
		}
		if got != want {
			t.Errorf("StringAt(%d) = %q, want %q", i, got, want)
		}
	}
	if _, err := d.StringAt(8); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("StringAt(8) error = %v, want ErrInvalidIndex", err)
	}
}

func TestTypeAt(t *testing.T) {
	d := mustDex(t, buildFixture())
	want := []string{"Ljava/lang/Object;", "LFoo;", "I", "V"}
	for i, desc := range want {
		typ, err := d.TypeAt(uint32(i))
		if err != nil {
			t.Fatalf("TypeAt(%d): %v", i, err)
		}
		if typ.Descriptor != desc {
			t.Errorf("TypeAt(%d) = %q, want %q", i, typ.Descriptor, desc)
		}
	}
	if _, err := d.TypeAt(4); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("TypeAt(4) error = %v, want ErrInvalidIndex", err)
	}
}

func TestProtoAt(t *testing.T) {
	d := mustDex(t, buildFixture())
	p, err := d.ProtoAt(0)
	if err != nil {
		t.Fatalf("ProtoAt(0): %v", err)
	}
	if p.Shorty != "V" || p.ReturnType.Descriptor != "V" || len(p.Params) != 0 {
		t.Errorf("ProtoAt(0) = %+v", p)
	}
}

func TestFieldAt(t *testing.T) {
	d := mustDex(t, buildFixture())
	f, err := d.FieldAt(0)
	if err != nil {
		t.Fatalf("FieldAt(0): %v", err)
	}
	if f.Class.Descriptor != "LFoo;" || f.Type.Descriptor != "I" || f.Name != "x" {
		t.Errorf("FieldAt(0) = %+v", f)
	}
}

func TestMethodAt(t *testing.T) {
	d := mustDex(t, buildFixture())
	m, err := d.MethodAt(0)
	if err != nil {
		t.Fatalf("MethodAt(0): %v", err)
	}
	if m.Class.Descriptor != "LFoo;" || m.Name != "foo" || m.Proto.Shorty != "V" {
		t.Errorf("MethodAt(0) = %+v", m)
	}
	if _, err := d.MethodAt(1); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("MethodAt(1) error = %v, want ErrInvalidIndex", err)
	}
}

// Resolution is idempotent: repeated lookups of the same index see the
// same bytes and return the same value.
func TestResolutionIdempotent(t *testing.T) {
	d := mustDex(t, buildFixture())
	first, err := d.StringAt(0)
	if err != nil {
		t.Fatalf("StringAt: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := d.StringAt(0)
		if err != nil || again != first {
			t.Fatalf("StringAt repeat = %q, %v; want %q", again, err, first)
		}
	}
}
