package dex

import (
	"fmt"
	"math"
)

// ValueKind is the type tag of an encoded value, the low five bits of
// its header byte.
type ValueKind uint8

const (
	ValueByte         ValueKind = 0x00
	ValueShort        ValueKind = 0x02
	ValueChar         ValueKind = 0x03
	ValueInt          ValueKind = 0x04
	ValueLong         ValueKind = 0x06
	ValueFloat        ValueKind = 0x10
	ValueDouble       ValueKind = 0x11
	ValueMethodType   ValueKind = 0x15
	ValueMethodHandle ValueKind = 0x16
	ValueString       ValueKind = 0x17
	ValueType         ValueKind = 0x18
	ValueField        ValueKind = 0x19
	ValueMethod       ValueKind = 0x1a
	ValueEnum         ValueKind = 0x1b
	ValueArray        ValueKind = 0x1c
	ValueAnnotation   ValueKind = 0x1d
	ValueNull         ValueKind = 0x1e
	ValueBoolean      ValueKind = 0x1f
)

// Value is one decoded constant. Which field carries the payload
// depends on Kind: Int for the signed integer kinds, Uint for Char and
// the pool-index kinds, Float for Float and Double, Bool for Boolean,
// Elems for Array, Annot for Annotation. Null carries nothing.
type Value struct {
	Kind  ValueKind   `json:"kind"`
	Int   int64       `json:"int,omitempty"`
	Uint  uint64      `json:"uint,omitempty"`
	Float float64     `json:"float,omitempty"`
	Bool  bool        `json:"bool,omitempty"`
	Elems []Value     `json:"elems,omitempty"`
	Annot *Annotation `json:"annot,omitempty"`
}

// Annotation is an encoded annotation body: a type and named elements.
type Annotation struct {
	TypeIndex uint32              `json:"type_index"`
	Elements  []AnnotationElement `json:"elements"`
}

// AnnotationElement pairs an element name (string pool index) with its
// value.
type AnnotationElement struct {
	NameIndex uint32 `json:"name_index"`
	Value     Value  `json:"value"`
}

// StaticValuesAt decodes the encoded_array at off, the class's static
// field initializers in field declaration order. Offset zero means the
// class declares no initializers and yields nil.
func (d *Dex) StaticValuesAt(off uint32) ([]Value, error) {
	if off == 0 {
		return nil, nil
	}
	vals, _, err := d.encodedArray(off)
	return vals, err
}

// arbitrary nesting guard; real files stay far below this
const maxValueDepth = 64

func (d *Dex) encodedArray(off uint32) ([]Value, uint32, error) {
	return d.encodedArrayDepth(off, 0)
}

func (d *Dex) encodedArrayDepth(off uint32, depth int) ([]Value, uint32, error) {
	count, n, err := d.src.Uleb128(off)
	if err != nil {
		return nil, 0, err
	}
	pos := off + n
	// Every element costs at least its header byte.
	if uint64(count) > uint64(d.src.Len())-uint64(pos) {
		return nil, 0, fmt.Errorf("%w: encoded array at 0x%x claims %d values", ErrOutOfBounds, off, count)
	}
	vals := make([]Value, count)
	for i := range vals {
		v, n, err := d.encodedValue(pos, depth)
		if err != nil {
			return nil, 0, fmt.Errorf("encoded array value %d: %w", i, err)
		}
		vals[i] = v
		pos += n
	}
	return vals, pos - off, nil
}

// encodedValue decodes one value at off and returns it with the number
// of bytes consumed. The header byte packs (arg << 5 | kind); for the
// numeric kinds arg+1 is the payload size in bytes, integers are
// sign-extended (Char zero-extended) and floats are zero-extended on
// the right toward the low bits.
func (d *Dex) encodedValue(off uint32, depth int) (Value, uint32, error) {
	if depth >= maxValueDepth {
		return Value{}, 0, fmt.Errorf("%w: value nesting exceeds %d at 0x%x", ErrMalformedClassData, maxValueDepth, off)
	}
	hdr, err := d.src.U8(off)
	if err != nil {
		return Value{}, 0, err
	}
	kind := ValueKind(hdr & 0x1f)
	arg := hdr >> 5
	pos := off + 1

	payload := func(size uint8) ([]byte, error) {
		return d.src.Bytes(pos, uint32(size))
	}
	badArg := func(max uint8) (Value, uint32, error) {
		return Value{}, 0, fmt.Errorf("%w: value kind 0x%02x at 0x%x has size arg %d, max %d",
			ErrMalformedClassData, uint8(kind), off, arg, max)
	}

	switch kind {
	case ValueByte:
		if arg != 0 {
			return badArg(0)
		}
		b, err := payload(1)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: kind, Int: int64(int8(b[0]))}, 2, nil

	case ValueShort:
		if arg > 1 {
			return badArg(1)
		}
		u, err := d.signExtended(pos, arg+1)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: kind, Int: u}, uint32(arg) + 2, nil

	case ValueChar:
		if arg > 1 {
			return badArg(1)
		}
		u, err := d.zeroExtended(pos, arg+1)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: kind, Uint: u}, uint32(arg) + 2, nil

	case ValueInt:
		if arg > 3 {
			return badArg(3)
		}
		u, err := d.signExtended(pos, arg+1)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: kind, Int: u}, uint32(arg) + 2, nil

	case ValueLong:
		if arg > 7 {
			return badArg(7)
		}
		u, err := d.signExtended(pos, arg+1)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: kind, Int: u}, uint32(arg) + 2, nil

	case ValueFloat:
		if arg > 3 {
			return badArg(3)
		}
		u, err := d.zeroExtended(pos, arg+1)
		if err != nil {
			return Value{}, 0, err
		}
		bits := uint32(u) << (8 * (3 - uint32(arg)))
		return Value{Kind: kind, Float: float64(math.Float32frombits(bits))}, uint32(arg) + 2, nil

	case ValueDouble:
		if arg > 7 {
			return badArg(7)
		}
		u, err := d.zeroExtended(pos, arg+1)
		if err != nil {
			return Value{}, 0, err
		}
		bits := u << (8 * (7 - uint64(arg)))
		return Value{Kind: kind, Float: math.Float64frombits(bits)}, uint32(arg) + 2, nil

	case ValueMethodType, ValueMethodHandle, ValueString, ValueType,
		ValueField, ValueMethod, ValueEnum:
		if arg > 3 {
			return badArg(3)
		}
		u, err := d.zeroExtended(pos, arg+1)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: kind, Uint: u}, uint32(arg) + 2, nil

	case ValueArray:
		if arg != 0 {
			return badArg(0)
		}
		elems, n, err := d.encodedArrayDepth(pos, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: kind, Elems: elems}, 1 + n, nil

	case ValueAnnotation:
		if arg != 0 {
			return badArg(0)
		}
		annot, n, err := d.encodedAnnotation(pos, depth+1)
		if err != nil {
			return Value{}, 0, err
		}
		return Value{Kind: kind, Annot: annot}, 1 + n, nil

	case ValueNull:
		if arg != 0 {
			return badArg(0)
		}
		return Value{Kind: kind}, 1, nil

	case ValueBoolean:
		if arg > 1 {
			return badArg(1)
		}
		return Value{Kind: kind, Bool: arg == 1}, 1, nil

	default:
		return Value{}, 0, fmt.Errorf("%w: unknown value kind 0x%02x at 0x%x", ErrMalformedClassData, uint8(kind), off)
	}
}

func (d *Dex) encodedAnnotation(off uint32, depth int) (*Annotation, uint32, error) {
	typeIdx, n, err := d.src.Uleb128(off)
	if err != nil {
		return nil, 0, err
	}
	pos := off + n
	count, n, err := d.src.Uleb128(pos)
	if err != nil {
		return nil, 0, err
	}
	pos += n
	if uint64(count)*2 > uint64(d.src.Len())-uint64(pos) {
		return nil, 0, fmt.Errorf("%w: annotation at 0x%x claims %d elements", ErrOutOfBounds, off, count)
	}
	a := &Annotation{TypeIndex: typeIdx, Elements: make([]AnnotationElement, count)}
	for i := range a.Elements {
		name, n, err := d.src.Uleb128(pos)
		if err != nil {
			return nil, 0, err
		}
		pos += n
		v, n, err := d.encodedValue(pos, depth)
		if err != nil {
			return nil, 0, fmt.Errorf("annotation element %d: %w", i, err)
		}
		a.Elements[i] = AnnotationElement{NameIndex: name, Value: v}
		pos += n
	}
	return a, pos - off, nil
}

// signExtended reads size bytes little-endian and sign-extends from the
// top byte read.
func (d *Dex) signExtended(off uint32, size uint8) (int64, error) {
	b, err := d.src.Bytes(off, uint32(size))
	if err != nil {
		return 0, err
	}
	var u uint64
	for i := uint8(0); i < size; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	shift := 64 - 8*uint(size)
	return int64(u<<shift) >> shift, nil
}

// zeroExtended reads size bytes little-endian with no extension.
func (d *Dex) zeroExtended(off uint32, size uint8) (uint64, error) {
	b, err := d.src.Bytes(off, uint32(size))
	if err != nil {
		return 0, err
	}
	var u uint64
	for i := uint8(0); i < size; i++ {
		u |= uint64(b[i]) << (8 * i)
	}
	return u, nil
}
