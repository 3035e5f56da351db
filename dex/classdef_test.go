package dex

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestClassDefAt(t *testing.T) {
	d := mustDex(t, buildFixture())
	def, err := d.ClassDefAt(0)
	if err != nil {
		t.Fatalf("ClassDefAt(0): %v", err)
	}
	if def.Class.Descriptor != "LFoo;" {
		t.Errorf("Class = %q", def.Class.Descriptor)
	}
	if !def.AccessFlags.Has(AccPublic) {
		t.Errorf("AccessFlags = %v, want public", def.AccessFlags)
	}
	if def.Superclass == nil || def.Superclass.Descriptor != "Ljava/lang/Object;" {
		t.Errorf("Superclass = %v", def.Superclass)
	}
	if len(def.Interfaces) != 0 {
		t.Errorf("Interfaces = %v", def.Interfaces)
	}
	if def.SourceFile == nil || *def.SourceFile != "Foo.java" {
		t.Errorf("SourceFile = %v", def.SourceFile)
	}
	if def.ClassDataOff != offClassData || def.StaticValuesOff != offStaticVals {
		t.Errorf("offsets = 0x%x, 0x%x", def.ClassDataOff, def.StaticValuesOff)
	}
}

// A superclass index of 0xffffffff means the class has no superclass,
// not an index to resolve.
func TestClassDefNoSuperclass(t *testing.T) {
	b := buildFixture()
	binary.LittleEndian.PutUint32(b[offClassDefs+8:], NoIndex)
	d := mustDex(t, b)
	def, err := d.ClassDefAt(0)
	if err != nil {
		t.Fatalf("ClassDefAt(0): %v", err)
	}
	if def.Superclass != nil {
		t.Errorf("Superclass = %v, want nil", def.Superclass)
	}
}

func TestClassDefNoSourceFile(t *testing.T) {
	b := buildFixture()
	binary.LittleEndian.PutUint32(b[offClassDefs+16:], NoIndex)
	d := mustDex(t, b)
	def, err := d.ClassDefAt(0)
	if err != nil {
		t.Fatalf("ClassDefAt(0): %v", err)
	}
	if def.SourceFile != nil {
		t.Errorf("SourceFile = %q, want nil", *def.SourceFile)
	}
}

func TestClassDefAtBadIndex(t *testing.T) {
	d := mustDex(t, buildFixture())
	if _, err := d.ClassDefAt(1); !errors.Is(err, ErrInvalidIndex) {
		t.Errorf("ClassDefAt(1) error = %v, want ErrInvalidIndex", err)
	}
}

func TestAccessFlagsString(t *testing.T) {
	tests := []struct {
		flags AccessFlags
		want  string
	}{
		{0, "0"},
		{AccPublic, "public"},
		{AccPublic | AccStatic | AccFinal, "public static final"},
		{AccConstructor, "constructor"},
	}
	for _, tt := range tests {
		if got := tt.flags.String(); got != tt.want {
			t.Errorf("AccessFlags(0x%x).String() = %q, want %q", uint32(tt.flags), got, tt.want)
		}
	}
}
