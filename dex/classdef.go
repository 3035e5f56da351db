package dex

import (
	"fmt"
	"strings"
)

// AccessFlags is the access_flags bitset shared by classes, fields and
// methods. Not every bit is meaningful for every kind.
type AccessFlags uint32

const (
	AccPublic               AccessFlags = 0x1
	AccPrivate              AccessFlags = 0x2
	AccProtected            AccessFlags = 0x4
	AccStatic               AccessFlags = 0x8
	AccFinal                AccessFlags = 0x10
	AccSynchronized         AccessFlags = 0x20
	AccVolatile             AccessFlags = 0x40 // field; AccBridge for methods
	AccBridge               AccessFlags = 0x40
	AccTransient            AccessFlags = 0x80 // field; AccVarargs for methods
	AccVarargs              AccessFlags = 0x80
	AccNative               AccessFlags = 0x100
	AccInterface            AccessFlags = 0x200
	AccAbstract             AccessFlags = 0x400
	AccStrict               AccessFlags = 0x800
	AccSynthetic            AccessFlags = 0x1000
	AccAnnotation           AccessFlags = 0x2000
	AccEnum                 AccessFlags = 0x4000
	AccConstructor          AccessFlags = 0x10000
	AccDeclaredSynchronized AccessFlags = 0x20000
)

// Has reports whether every bit of f is set.
func (a AccessFlags) Has(f AccessFlags) bool { return a&f == f }

var flagNames = []struct {
	bit  AccessFlags
	name string
}{
	{AccPublic, "public"},
	{AccPrivate, "private"},
	{AccProtected, "protected"},
	{AccStatic, "static"},
	{AccFinal, "final"},
	{AccSynchronized, "synchronized"},
	{AccVolatile, "volatile|bridge"},
	{AccTransient, "transient|varargs"},
	{AccNative, "native"},
	{AccInterface, "interface"},
	{AccAbstract, "abstract"},
	{AccStrict, "strict"},
	{AccSynthetic, "synthetic"},
	{AccAnnotation, "annotation"},
	{AccEnum, "enum"},
	{AccConstructor, "constructor"},
	{AccDeclaredSynchronized, "declared-synchronized"},
}

func (a AccessFlags) String() string {
	if a == 0 {
		return "0"
	}
	var parts []string
	for _, f := range flagNames {
		if a&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, " ")
}

// ClassDef is a resolved entry of the class_defs table.
//
// Layout (32 bytes): class_idx u32, access_flags u32, superclass_idx u32,
// interfaces_off u32, source_file_idx u32, annotations_off u32,
// class_data_off u32, static_values_off u32.
type ClassDef struct {
	Index       uint32      `json:"index"`
	Class       Type        `json:"class"`
	AccessFlags AccessFlags `json:"access_flags"`
	Superclass  *Type       `json:"superclass,omitempty"` // nil for java.lang.Object
	Interfaces  []Type      `json:"interfaces,omitempty"`
	SourceFile  *string     `json:"source_file,omitempty"`

	AnnotationsOff  uint32 `json:"annotations_off"`   // 0 = no annotations; see AnnotationsDirectoryAt
	ClassDataOff    uint32 `json:"class_data_off"`    // 0 = no class data
	StaticValuesOff uint32 `json:"static_values_off"` // 0 = zero/null initialized
}

// ClassCount returns the number of class definitions.
func (d *Dex) ClassCount() uint32 { return d.hdr.ClassDefs.Count }

// ClassDefAt resolves class definition i. Cross-references (class type,
// superclass, interfaces, source file) are resolved; the class data,
// annotations and static values remain offsets for the caller to decode
// on demand.
func (d *Dex) ClassDefAt(i uint32) (*ClassDef, error) {
	if i >= d.hdr.ClassDefs.Count {
		return nil, fmt.Errorf("%w: class def %d (table size %d)", ErrInvalidIndex, i, d.hdr.ClassDefs.Count)
	}
	off := d.hdr.ClassDefs.Off + i*strideClassDef
	raw, err := d.src.Bytes(off, strideClassDef)
	if err != nil {
		return nil, err
	}
	u32 := func(o int) uint32 {
		return uint32(raw[o]) | uint32(raw[o+1])<<8 | uint32(raw[o+2])<<16 | uint32(raw[o+3])<<24
	}

	def := &ClassDef{
		Index:           i,
		AccessFlags:     AccessFlags(u32(4)),
		AnnotationsOff:  u32(20),
		ClassDataOff:    u32(24),
		StaticValuesOff: u32(28),
	}

	def.Class, err = d.TypeAt(u32(0))
	if err != nil {
		return nil, fmt.Errorf("class def %d: %w", i, err)
	}

	if superIdx := u32(8); superIdx != NoIndex {
		super, err := d.TypeAt(superIdx)
		if err != nil {
			return nil, fmt.Errorf("class def %d superclass: %w", i, err)
		}
		def.Superclass = &super
	}

	def.Interfaces, err = d.typeList(u32(12))
	if err != nil {
		return nil, fmt.Errorf("class def %d interfaces: %w", i, err)
	}

	if srcIdx := u32(16); srcIdx != NoIndex {
		name, err := d.StringAt(srcIdx)
		if err != nil {
			return nil, fmt.Errorf("class def %d source file: %w", i, err)
		}
		def.SourceFile = &name
	}

	return def, nil
}
