package dex

import (
	"fmt"
	"sort"
)

// ItemType tags one map list entry with the kind of section it declares.
type ItemType uint16

const (
	ItemHeader               ItemType = 0x0000
	ItemStringID             ItemType = 0x0001
	ItemTypeID               ItemType = 0x0002
	ItemProtoID              ItemType = 0x0003
	ItemFieldID              ItemType = 0x0004
	ItemMethodID             ItemType = 0x0005
	ItemClassDef             ItemType = 0x0006
	ItemCallSiteID           ItemType = 0x0007
	ItemMethodHandle         ItemType = 0x0008
	ItemMapList              ItemType = 0x1000
	ItemTypeList             ItemType = 0x1001
	ItemAnnotationSetRefList ItemType = 0x1002
	ItemAnnotationSet        ItemType = 0x1003
	ItemClassData            ItemType = 0x2000
	ItemCode                 ItemType = 0x2001
	ItemStringData           ItemType = 0x2002
	ItemDebugInfo            ItemType = 0x2003
	ItemAnnotation           ItemType = 0x2004
	ItemEncodedArray         ItemType = 0x2005
	ItemAnnotationsDirectory ItemType = 0x2006
)

var itemTypeNames = map[ItemType]string{
	ItemHeader:               "header",
	ItemStringID:             "string_id",
	ItemTypeID:               "type_id",
	ItemProtoID:              "proto_id",
	ItemFieldID:              "field_id",
	ItemMethodID:             "method_id",
	ItemClassDef:             "class_def",
	ItemCallSiteID:           "call_site_id",
	ItemMethodHandle:         "method_handle",
	ItemMapList:              "map_list",
	ItemTypeList:             "type_list",
	ItemAnnotationSetRefList: "annotation_set_ref_list",
	ItemAnnotationSet:        "annotation_set",
	ItemClassData:            "class_data",
	ItemCode:                 "code",
	ItemStringData:           "string_data",
	ItemDebugInfo:            "debug_info",
	ItemAnnotation:           "annotation",
	ItemEncodedArray:         "encoded_array",
	ItemAnnotationsDirectory: "annotations_directory",
}

func (t ItemType) String() string {
	if s, ok := itemTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("unknown(0x%04x)", uint16(t))
}

// itemStride is the fixed entry size of t, or 0 when entries are
// variable length.
func (t ItemType) itemStride() uint32 {
	switch t {
	case ItemHeader:
		return HeaderSize
	case ItemStringID:
		return strideStringID
	case ItemTypeID:
		return strideTypeID
	case ItemProtoID:
		return strideProtoID
	case ItemFieldID:
		return strideFieldID
	case ItemMethodID:
		return strideMethodID
	case ItemClassDef:
		return strideClassDef
	case ItemCallSiteID:
		return 4
	case ItemMethodHandle:
		return 8
	default:
		return 0
	}
}

// MapItem declares one section: its type, entry count and start offset.
type MapItem struct {
	Type  ItemType `json:"type"`
	Count uint32   `json:"count"`
	Off   uint32   `json:"off"`
}

// MapList is the section directory near the end of the file. It exists
// for structural cross-validation; navigation goes through the header.
type MapList struct {
	Items []MapItem `json:"items"`
}

// parseMapList decodes the map list: u32 entry count, then 12-byte
// entries (type u16, unused u16, size u32, offset u32).
func parseMapList(src *Source, off uint32) (*MapList, error) {
	count, err := src.U32(off)
	if err != nil {
		return nil, err
	}
	if uint64(count)*strideMapItem > uint64(src.Len()) {
		return nil, fmt.Errorf("%w: map list claims %d entries", ErrOutOfBounds, count)
	}
	raw, err := src.Bytes(off+4, count*strideMapItem)
	if err != nil {
		return nil, err
	}

	ml := &MapList{Items: make([]MapItem, count)}
	for i := range ml.Items {
		e := raw[i*strideMapItem:]
		ml.Items[i] = MapItem{
			Type:  ItemType(uint16(e[0]) | uint16(e[1])<<8),
			Count: uint32(e[4]) | uint32(e[5])<<8 | uint32(e[6])<<16 | uint32(e[7])<<24,
			Off:   uint32(e[8]) | uint32(e[9])<<8 | uint32(e[10])<<16 | uint32(e[11])<<24,
		}
	}
	return ml, nil
}

// Find returns the entry for t, or nil when the map does not declare it.
func (m *MapList) Find(t ItemType) *MapItem {
	for i := range m.Items {
		if m.Items[i].Type == t {
			return &m.Items[i]
		}
	}
	return nil
}

// ValidateSections cross-checks the map list against the header. Hard
// failures: a section type declared twice, regions of known extent that
// overlap, or a header-referenced table the map does not account for.
// Sections this decoder never dereferences are reported as warnings.
func (d *Dex) ValidateSections() ([]Diag, error) {
	var diags Diags
	m := d.maps

	seen := make(map[ItemType]uint32, len(m.Items))
	for _, it := range m.Items {
		if prev, dup := seen[it.Type]; dup {
			return diags.Items(), fmt.Errorf("%w: %s declared at both 0x%x and 0x%x",
				ErrOverlappingSection, it.Type, prev, it.Off)
		}
		seen[it.Type] = it.Off
	}

	// Regions of known extent must not overlap or leave the buffer.
	type region struct {
		item MapItem
		end  uint64
	}
	var regions []region
	for _, it := range m.Items {
		stride := it.Type.itemStride()
		if stride == 0 {
			continue
		}
		end := uint64(it.Off) + uint64(it.Count)*uint64(stride)
		if end > uint64(d.src.Len()) {
			return diags.Items(), fmt.Errorf("%w: %s section [0x%x, 0x%x)",
				ErrOutOfBounds, it.Type, it.Off, end)
		}
		regions = append(regions, region{item: it, end: end})
	}
	sort.Slice(regions, func(i, j int) bool { return regions[i].item.Off < regions[j].item.Off })
	for i := 1; i < len(regions); i++ {
		prev, cur := regions[i-1], regions[i]
		if uint64(cur.item.Off) < prev.end {
			return diags.Items(), fmt.Errorf("%w: %s [0x%x, 0x%x) and %s starting at 0x%x",
				ErrOverlappingSection, prev.item.Type, prev.item.Off, prev.end,
				cur.item.Type, cur.item.Off)
		}
	}

	// Every table the header references must appear, with matching
	// count and offset.
	hdr := d.hdr
	referenced := []struct {
		typ ItemType
		sec Section
	}{
		{ItemStringID, hdr.StringIDs},
		{ItemTypeID, hdr.TypeIDs},
		{ItemProtoID, hdr.ProtoIDs},
		{ItemFieldID, hdr.FieldIDs},
		{ItemMethodID, hdr.MethodIDs},
		{ItemClassDef, hdr.ClassDefs},
	}
	for _, r := range referenced {
		if r.sec.Count == 0 {
			continue
		}
		it := m.Find(r.typ)
		if it == nil {
			return diags.Items(), fmt.Errorf("%w: %s (header declares %d entries at 0x%x)",
				ErrMissingSection, r.typ, r.sec.Count, r.sec.Off)
		}
		if it.Count != r.sec.Count || it.Off != r.sec.Off {
			diags.Addf(it.Off, DiagInvalid, "%s map entry (%d@0x%x) disagrees with header (%d@0x%x)",
				r.typ, it.Count, it.Off, r.sec.Count, r.sec.Off)
		}
	}
	if m.Find(ItemHeader) == nil {
		return diags.Items(), fmt.Errorf("%w: header", ErrMissingSection)
	}
	if m.Find(ItemMapList) == nil {
		return diags.Items(), fmt.Errorf("%w: map_list", ErrMissingSection)
	}

	// Warn about declared sections nothing in the decode path reaches.
	for _, it := range m.Items {
		switch it.Type {
		case ItemHeader, ItemStringID, ItemTypeID, ItemProtoID, ItemFieldID,
			ItemMethodID, ItemClassDef, ItemMapList, ItemTypeList,
			ItemClassData, ItemCode, ItemStringData, ItemDebugInfo,
			ItemEncodedArray, ItemAnnotationsDirectory, ItemAnnotationSet,
			ItemAnnotationSetRefList, ItemAnnotation:
			// navigated by this decoder
		default:
			diags.Addf(it.Off, DiagUnreferenced, "%s section declared but not referenced by decoding", it.Type)
		}
	}

	return diags.Items(), nil
}
