package dex

import "fmt"

// EncodedField is one entry of a class_data_item field list with its
// index delta already resolved to an absolute field_ids index.
type EncodedField struct {
	FieldIndex  uint32      `json:"field_index"`
	AccessFlags AccessFlags `json:"access_flags"`
}

// EncodedMethod is one entry of a class_data_item method list. CodeOff 0
// means the method has no code (abstract or native).
type EncodedMethod struct {
	MethodIndex uint32      `json:"method_index"`
	AccessFlags AccessFlags `json:"access_flags"`
	CodeOff     uint32      `json:"code_off"`
}

// ClassData is a decoded class_data_item: the four diff-encoded groups
// of a class body. Size is the number of bytes the block consumed.
type ClassData struct {
	StaticFields   []EncodedField  `json:"static_fields,omitempty"`
	InstanceFields []EncodedField  `json:"instance_fields,omitempty"`
	DirectMethods  []EncodedMethod `json:"direct_methods,omitempty"`
	VirtualMethods []EncodedMethod `json:"virtual_methods,omitempty"`
	Size           uint32          `json:"size"`
}

// ClassDataAt decodes the class_data_item at off. Offset 0 means the
// class has no body (legal for marker interfaces) and yields (nil, nil).
// A malformed block fails with an error naming the group and entry; the
// failure does not affect other classes.
func (d *Dex) ClassDataAt(off uint32) (*ClassData, error) {
	if off == 0 {
		return nil, nil
	}
	cd, _, err := parseClassData(d, off)
	return cd, err
}

// DecodeClassDataExact decodes a class_data_item that must occupy region
// exactly. Consuming fewer or more bytes than the declared region is a
// malformed-class-data failure.
func DecodeClassDataExact(d *Dex, off, size uint32) (*ClassData, error) {
	cd, n, err := parseClassData(d, off)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("%w: block at 0x%x consumed %d bytes of declared %d",
			ErrMalformedClassData, off, n, size)
	}
	return cd, nil
}

func parseClassData(d *Dex, off uint32) (*ClassData, uint32, error) {
	src := d.src
	pos := off

	counts := [4]uint32{}
	names := [4]string{"static fields", "instance fields", "direct methods", "virtual methods"}
	for i := range counts {
		v, n, err := src.Uleb128(pos)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s count at 0x%x: %v", ErrMalformedClassData, names[i], pos, err)
		}
		counts[i] = v
		pos += n
	}

	// A hostile count cannot demand more entries than the remaining
	// bytes could hold: fields are at least 2 bytes, methods at least 3.
	remaining := src.Len() - pos
	if counts[0] > remaining/2 || counts[1] > remaining/2 ||
		counts[2] > remaining/3 || counts[3] > remaining/3 {
		return nil, 0, fmt.Errorf("%w: counts %v exceed remaining %d bytes at 0x%x",
			ErrMalformedClassData, counts, remaining, off)
	}

	cd := &ClassData{}
	var err error
	if cd.StaticFields, pos, err = d.fieldGroup(names[0], pos, counts[0]); err != nil {
		return nil, 0, err
	}
	if cd.InstanceFields, pos, err = d.fieldGroup(names[1], pos, counts[1]); err != nil {
		return nil, 0, err
	}
	if cd.DirectMethods, pos, err = d.methodGroup(names[2], pos, counts[2]); err != nil {
		return nil, 0, err
	}
	if cd.VirtualMethods, pos, err = d.methodGroup(names[3], pos, counts[3]); err != nil {
		return nil, 0, err
	}
	cd.Size = pos - off
	return cd, cd.Size, nil
}

// fieldGroup decodes one diff-encoded field group. The first delta is the
// absolute index; each later delta must be positive, since absolute
// indices are strictly increasing within a group.
func (d *Dex) fieldGroup(group string, pos, count uint32) ([]EncodedField, uint32, error) {
	if count == 0 {
		return nil, pos, nil
	}
	out := make([]EncodedField, 0, count)
	var index uint64
	for i := uint32(0); i < count; i++ {
		delta, n, err := d.src.Uleb128(pos)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s entry %d index: %v", ErrMalformedClassData, group, i, err)
		}
		pos += n
		if i == 0 {
			index = uint64(delta)
		} else {
			if delta == 0 {
				return nil, 0, fmt.Errorf("%w: %s entry %d repeats index %d", ErrMalformedClassData, group, i, index)
			}
			index += uint64(delta)
		}
		if index >= uint64(d.hdr.FieldIDs.Count) {
			return nil, 0, fmt.Errorf("%w: %s entry %d index %d (pool size %d)",
				ErrMalformedClassData, group, i, index, d.hdr.FieldIDs.Count)
		}
		flags, n, err := d.src.Uleb128(pos)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s entry %d flags: %v", ErrMalformedClassData, group, i, err)
		}
		pos += n
		out = append(out, EncodedField{FieldIndex: uint32(index), AccessFlags: AccessFlags(flags)})
	}
	return out, pos, nil
}

// methodGroup decodes one diff-encoded method group, including each
// entry's optional code item offset.
func (d *Dex) methodGroup(group string, pos, count uint32) ([]EncodedMethod, uint32, error) {
	if count == 0 {
		return nil, pos, nil
	}
	out := make([]EncodedMethod, 0, count)
	var index uint64
	for i := uint32(0); i < count; i++ {
		delta, n, err := d.src.Uleb128(pos)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s entry %d index: %v", ErrMalformedClassData, group, i, err)
		}
		pos += n
		if i == 0 {
			index = uint64(delta)
		} else {
			if delta == 0 {
				return nil, 0, fmt.Errorf("%w: %s entry %d repeats index %d", ErrMalformedClassData, group, i, index)
			}
			index += uint64(delta)
		}
		if index >= uint64(d.hdr.MethodIDs.Count) {
			return nil, 0, fmt.Errorf("%w: %s entry %d index %d (pool size %d)",
				ErrMalformedClassData, group, i, index, d.hdr.MethodIDs.Count)
		}
		flags, n, err := d.src.Uleb128(pos)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s entry %d flags: %v", ErrMalformedClassData, group, i, err)
		}
		pos += n
		codeOff, n, err := d.src.Uleb128(pos)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %s entry %d code offset: %v", ErrMalformedClassData, group, i, err)
		}
		pos += n
		if codeOff != 0 && codeOff >= d.src.Len() {
			return nil, 0, fmt.Errorf("%w: %s entry %d code offset 0x%x outside buffer",
				ErrMalformedClassData, group, i, codeOff)
		}
		out = append(out, EncodedMethod{
			MethodIndex: uint32(index),
			AccessFlags: AccessFlags(flags),
			CodeOff:     codeOff,
		})
	}
	return out, pos, nil
}
