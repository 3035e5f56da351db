package dex

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed size of a Dex file header.
const HeaderSize = 0x70

// endianConstant is the only endian tag this decoder accepts. The format
// also defines a byte-swapped constant for big-endian files; those are
// rejected rather than translated.
const endianConstant = 0x12345678

// NoIndex is the sentinel for an absent optional index, such as the
// superclass of java.lang.Object.
const NoIndex = 0xffffffff

// Section is one (count, offset) table descriptor from the header.
type Section struct {
	Count uint32 `json:"count"`
	Off   uint32 `json:"off"`
}

// Header is the fixed 112-byte file header.
//
// Layout:
//
//	+0x00: magic      [8]byte  ("dex\n035\0" ... "dex\n041\0")
//	+0x08: checksum   uint32   (adler32, exposed but not recomputed)
//	+0x0c: signature  [20]byte (SHA-1, exposed but not verified)
//	+0x20: file_size  uint32
//	+0x24: header_size uint32  (must be 0x70)
//	+0x28: endian_tag uint32   (must be 0x12345678)
//	+0x2c: link       (size, off)
//	+0x34: map_off    uint32
//	+0x38: string_ids (size, off)
//	+0x40: type_ids   (size, off)
//	+0x48: proto_ids  (size, off)
//	+0x50: field_ids  (size, off)
//	+0x58: method_ids (size, off)
//	+0x60: class_defs (size, off)
//	+0x68: data       (size, off)
type Header struct {
	Magic      [8]byte  `json:"-"`
	Version    int      `json:"version"` // e.g. 35 for "dex\n035\0"
	Checksum   uint32   `json:"checksum"`
	Signature  [20]byte `json:"-"`
	FileSize   uint32   `json:"file_size"`
	HeaderSize uint32   `json:"header_size"`
	EndianTag  uint32   `json:"endian_tag"`
	LinkSize   uint32   `json:"link_size"`
	LinkOff    uint32   `json:"link_off"`
	MapOff     uint32   `json:"map_off"`
	StringIDs  Section  `json:"string_ids"`
	TypeIDs    Section  `json:"type_ids"`
	ProtoIDs   Section  `json:"proto_ids"`
	FieldIDs   Section  `json:"field_ids"`
	MethodIDs  Section  `json:"method_ids"`
	ClassDefs  Section  `json:"class_defs"`
	DataSize   uint32   `json:"data_size"`
	DataOff    uint32   `json:"data_off"`
}

// Table strides, fixed by the format.
const (
	strideStringID = 4
	strideTypeID   = 4
	strideProtoID  = 12
	strideFieldID  = 8
	strideMethodID = 8
	strideClassDef = 32
	strideMapItem  = 12
)

func parseHeader(src *Source) (*Header, error) {
	raw, err := src.Bytes(0, HeaderSize)
	if err != nil {
		return nil, fmt.Errorf("dex: file shorter than header: %w", err)
	}

	var h Header
	copy(h.Magic[:], raw[0:8])
	version, ok := parseMagic(h.Magic)
	if !ok {
		return nil, fmt.Errorf("%w: % x", ErrInvalidMagic, h.Magic)
	}
	h.Version = version

	le := binary.LittleEndian
	h.Checksum = le.Uint32(raw[8:])
	copy(h.Signature[:], raw[12:32])
	h.FileSize = le.Uint32(raw[32:])
	h.HeaderSize = le.Uint32(raw[36:])
	h.EndianTag = le.Uint32(raw[40:])

	if h.EndianTag != endianConstant {
		return nil, fmt.Errorf("%w: 0x%08x", ErrInvalidEndianTag, h.EndianTag)
	}
	if h.HeaderSize != HeaderSize {
		return nil, fmt.Errorf("%w: header size 0x%x, want 0x%x", ErrInvalidMagic, h.HeaderSize, HeaderSize)
	}

	h.LinkSize = le.Uint32(raw[44:])
	h.LinkOff = le.Uint32(raw[48:])
	h.MapOff = le.Uint32(raw[52:])
	h.StringIDs = Section{le.Uint32(raw[56:]), le.Uint32(raw[60:])}
	h.TypeIDs = Section{le.Uint32(raw[64:]), le.Uint32(raw[68:])}
	h.ProtoIDs = Section{le.Uint32(raw[72:]), le.Uint32(raw[76:])}
	h.FieldIDs = Section{le.Uint32(raw[80:]), le.Uint32(raw[84:])}
	h.MethodIDs = Section{le.Uint32(raw[88:]), le.Uint32(raw[92:])}
	h.ClassDefs = Section{le.Uint32(raw[96:]), le.Uint32(raw[100:])}
	h.DataSize = le.Uint32(raw[104:])
	h.DataOff = le.Uint32(raw[108:])

	// None of the declared tables may extend past the buffer. The
	// count*stride product is checked in 64 bits so it cannot wrap.
	tables := []struct {
		name   string
		sec    Section
		stride uint32
	}{
		{"string_ids", h.StringIDs, strideStringID},
		{"type_ids", h.TypeIDs, strideTypeID},
		{"proto_ids", h.ProtoIDs, strideProtoID},
		{"field_ids", h.FieldIDs, strideFieldID},
		{"method_ids", h.MethodIDs, strideMethodID},
		{"class_defs", h.ClassDefs, strideClassDef},
	}
	for _, t := range tables {
		end := uint64(t.sec.Off) + uint64(t.sec.Count)*uint64(t.stride)
		if end > uint64(src.Len()) {
			return nil, fmt.Errorf("%w: %s table [0x%x, 0x%x)", ErrOutOfBounds, t.name, t.sec.Off, end)
		}
	}
	if uint64(h.MapOff) > uint64(src.Len()) {
		return nil, fmt.Errorf("%w: map_off 0x%x", ErrOutOfBounds, h.MapOff)
	}
	if end := uint64(h.LinkOff) + uint64(h.LinkSize); end > uint64(src.Len()) {
		return nil, fmt.Errorf("%w: link section [0x%x, 0x%x)", ErrOutOfBounds, h.LinkOff, end)
	}

	return &h, nil
}

// parseMagic accepts the "dex\n0XX\0" version family and returns the
// two-digit version number.
func parseMagic(m [8]byte) (int, bool) {
	if m[0] != 'd' || m[1] != 'e' || m[2] != 'x' || m[3] != '\n' || m[7] != 0 {
		return 0, false
	}
	if m[4] != '0' || m[5] < '0' || m[5] > '9' || m[6] < '0' || m[6] > '9' {
		return 0, false
	}
	return int(m[5]-'0')*10 + int(m[6]-'0'), true
}
