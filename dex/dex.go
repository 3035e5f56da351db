// Package dex decodes Android's Dex bytecode container format directly
// from raw bytes. Resolution is lazy and pull-based: a Dex holds only the
// header and map list, and every table entry is decoded on demand from
// the underlying buffer. A Dex is read-only after construction and safe
// for concurrent use.
package dex

import (
	"fmt"

	"undex/mutf8"
)

// Dex is a decoded view over one Dex file buffer. The buffer must outlive
// the Dex and every value resolved from it.
type Dex struct {
	src  *Source
	hdr  *Header
	maps *MapList
}

// New parses the header and map list of data and returns a handle for
// lazy resolution. Magic, endian tag and table-bounds violations fail
// here; everything else fails at the entry being resolved.
func New(data []byte) (*Dex, error) {
	src := NewSource(data)
	hdr, err := parseHeader(src)
	if err != nil {
		return nil, err
	}
	maps, err := parseMapList(src, hdr.MapOff)
	if err != nil {
		return nil, fmt.Errorf("dex: map list: %w", err)
	}
	return &Dex{src: src, hdr: hdr, maps: maps}, nil
}

// Header returns the parsed file header.
func (d *Dex) Header() *Header { return d.hdr }

// MapList returns the parsed section directory.
func (d *Dex) MapList() *MapList { return d.maps }

// Source returns the underlying byte source.
func (d *Dex) Source() *Source { return d.src }

// Type is a resolved entry of the type_ids table: an index plus the
// descriptor string it names, e.g. "Ljava/lang/Object;".
type Type struct {
	Index      uint32 `json:"index"`
	Descriptor string `json:"descriptor"`
}

func (t Type) String() string { return t.Descriptor }

// Proto is a resolved method prototype.
type Proto struct {
	Index      uint32 `json:"index"`
	Shorty     string `json:"shorty"`
	ReturnType Type   `json:"return_type"`
	Params     []Type `json:"params,omitempty"`
}

// FieldID is a resolved entry of the field_ids table.
type FieldID struct {
	Index uint32 `json:"index"`
	Class Type   `json:"class"`
	Type  Type   `json:"type"`
	Name  string `json:"name"`
}

// MethodID is a resolved entry of the method_ids table.
type MethodID struct {
	Index uint32 `json:"index"`
	Class Type   `json:"class"`
	Proto Proto  `json:"proto"`
	Name  string `json:"name"`
}

// StringCount returns the number of entries in the string pool.
func (d *Dex) StringCount() uint32 { return d.hdr.StringIDs.Count }

// TypeCount returns the number of entries in the type pool.
func (d *Dex) TypeCount() uint32 { return d.hdr.TypeIDs.Count }

// ProtoCount returns the number of entries in the proto pool.
func (d *Dex) ProtoCount() uint32 { return d.hdr.ProtoIDs.Count }

// FieldCount returns the number of entries in the field pool.
func (d *Dex) FieldCount() uint32 { return d.hdr.FieldIDs.Count }

// MethodCount returns the number of entries in the method pool.
func (d *Dex) MethodCount() uint32 { return d.hdr.MethodIDs.Count }

// StringAt resolves string pool index i: the id entry holds an offset to
// string data, which is a ULEB128 UTF-16 code-unit count followed by
// MUTF-8 bytes. Resolution is idempotent; the pool holds no cache.
func (d *Dex) StringAt(i uint32) (string, error) {
	if i >= d.hdr.StringIDs.Count {
		return "", fmt.Errorf("%w: string id %d (pool size %d)", ErrInvalidIndex, i, d.hdr.StringIDs.Count)
	}
	dataOff, err := d.src.U32(d.hdr.StringIDs.Off + i*strideStringID)
	if err != nil {
		return "", err
	}
	return d.stringData(dataOff)
}

func (d *Dex) stringData(off uint32) (string, error) {
	units, n, err := d.src.Uleb128(off)
	if err != nil {
		return "", err
	}
	raw, err := d.src.tail(off + n)
	if err != nil {
		return "", err
	}
	s, _, err := mutf8.Decode(raw, int(units))
	if err != nil {
		return "", fmt.Errorf("%w: string data at 0x%x: %v", ErrInvalidStringEncoding, off, err)
	}
	return s, nil
}

// TypeAt resolves type pool index i to its descriptor.
func (d *Dex) TypeAt(i uint32) (Type, error) {
	if i >= d.hdr.TypeIDs.Count {
		return Type{}, fmt.Errorf("%w: type id %d (pool size %d)", ErrInvalidIndex, i, d.hdr.TypeIDs.Count)
	}
	strIdx, err := d.src.U32(d.hdr.TypeIDs.Off + i*strideTypeID)
	if err != nil {
		return Type{}, err
	}
	desc, err := d.StringAt(strIdx)
	if err != nil {
		return Type{}, fmt.Errorf("type id %d: %w", i, err)
	}
	return Type{Index: i, Descriptor: desc}, nil
}

// ProtoAt resolves proto pool index i, including its parameter type list.
//
// Layout (12 bytes): shorty_idx u32, return_type_idx u32, parameters_off u32.
func (d *Dex) ProtoAt(i uint32) (Proto, error) {
	if i >= d.hdr.ProtoIDs.Count {
		return Proto{}, fmt.Errorf("%w: proto id %d (pool size %d)", ErrInvalidIndex, i, d.hdr.ProtoIDs.Count)
	}
	off := d.hdr.ProtoIDs.Off + i*strideProtoID
	shortyIdx, err := d.src.U32(off)
	if err != nil {
		return Proto{}, err
	}
	returnIdx, err := d.src.U32(off + 4)
	if err != nil {
		return Proto{}, err
	}
	paramsOff, err := d.src.U32(off + 8)
	if err != nil {
		return Proto{}, err
	}

	shorty, err := d.StringAt(shortyIdx)
	if err != nil {
		return Proto{}, fmt.Errorf("proto id %d shorty: %w", i, err)
	}
	ret, err := d.TypeAt(returnIdx)
	if err != nil {
		return Proto{}, fmt.Errorf("proto id %d return type: %w", i, err)
	}
	params, err := d.typeList(paramsOff)
	if err != nil {
		return Proto{}, fmt.Errorf("proto id %d params: %w", i, err)
	}
	return Proto{Index: i, Shorty: shorty, ReturnType: ret, Params: params}, nil
}

// FieldAt resolves field pool index i.
//
// Layout (8 bytes): class_idx u16, type_idx u16, name_idx u32.
func (d *Dex) FieldAt(i uint32) (FieldID, error) {
	if i >= d.hdr.FieldIDs.Count {
		return FieldID{}, fmt.Errorf("%w: field id %d (pool size %d)", ErrInvalidIndex, i, d.hdr.FieldIDs.Count)
	}
	off := d.hdr.FieldIDs.Off + i*strideFieldID
	classIdx, err := d.src.U16(off)
	if err != nil {
		return FieldID{}, err
	}
	typeIdx, err := d.src.U16(off + 2)
	if err != nil {
		return FieldID{}, err
	}
	nameIdx, err := d.src.U32(off + 4)
	if err != nil {
		return FieldID{}, err
	}

	class, err := d.TypeAt(uint32(classIdx))
	if err != nil {
		return FieldID{}, fmt.Errorf("field id %d class: %w", i, err)
	}
	typ, err := d.TypeAt(uint32(typeIdx))
	if err != nil {
		return FieldID{}, fmt.Errorf("field id %d type: %w", i, err)
	}
	name, err := d.StringAt(nameIdx)
	if err != nil {
		return FieldID{}, fmt.Errorf("field id %d name: %w", i, err)
	}
	return FieldID{Index: i, Class: class, Type: typ, Name: name}, nil
}

// MethodAt resolves method pool index i.
//
// Layout (8 bytes): class_idx u16, proto_idx u16, name_idx u32.
func (d *Dex) MethodAt(i uint32) (MethodID, error) {
	if i >= d.hdr.MethodIDs.Count {
		return MethodID{}, fmt.Errorf("%w: method id %d (pool size %d)", ErrInvalidIndex, i, d.hdr.MethodIDs.Count)
	}
	off := d.hdr.MethodIDs.Off + i*strideMethodID
	classIdx, err := d.src.U16(off)
	if err != nil {
		return MethodID{}, err
	}
	protoIdx, err := d.src.U16(off + 2)
	if err != nil {
		return MethodID{}, err
	}
	nameIdx, err := d.src.U32(off + 4)
	if err != nil {
		return MethodID{}, err
	}

	class, err := d.TypeAt(uint32(classIdx))
	if err != nil {
		return MethodID{}, fmt.Errorf("method id %d class: %w", i, err)
	}
	proto, err := d.ProtoAt(uint32(protoIdx))
	if err != nil {
		return MethodID{}, fmt.Errorf("method id %d proto: %w", i, err)
	}
	name, err := d.StringAt(nameIdx)
	if err != nil {
		return MethodID{}, fmt.Errorf("method id %d name: %w", i, err)
	}
	return MethodID{Index: i, Class: class, Proto: proto, Name: name}, nil
}

// typeList decodes a type_list structure: u32 count, then count u16 type
// indices. Offset 0 means the empty list.
func (d *Dex) typeList(off uint32) ([]Type, error) {
	if off == 0 {
		return nil, nil
	}
	count, err := d.src.U32(off)
	if err != nil {
		return nil, err
	}
	if uint64(count)*2 > uint64(d.src.Len()) {
		return nil, fmt.Errorf("%w: type list at 0x%x claims %d entries", ErrOutOfBounds, off, count)
	}
	raw, err := d.src.Bytes(off+4, count*2)
	if err != nil {
		return nil, err
	}
	types := make([]Type, count)
	for i := range types {
		idx := uint32(raw[i*2]) | uint32(raw[i*2+1])<<8
		t, err := d.TypeAt(idx)
		if err != nil {
			return nil, fmt.Errorf("type list at 0x%x entry %d: %w", off, i, err)
		}
		types[i] = t
	}
	return types, nil
}
