package dex

import "fmt"

// AnnotationVisibility says at which stage an annotation is retained:
// build time only, at runtime through reflection, or for the virtual
// machine itself.
type AnnotationVisibility uint8

const (
	VisibilityBuild   AnnotationVisibility = 0x00
	VisibilityRuntime AnnotationVisibility = 0x01
	VisibilitySystem  AnnotationVisibility = 0x02
)

func (v AnnotationVisibility) String() string {
	switch v {
	case VisibilityBuild:
		return "build"
	case VisibilityRuntime:
		return "runtime"
	case VisibilitySystem:
		return "system"
	}
	return fmt.Sprintf("unknown(0x%02x)", uint8(v))
}

// AnnotationItem is one annotation together with its retention
// visibility.
type AnnotationItem struct {
	Visibility AnnotationVisibility `json:"visibility"`
	Annotation *Annotation          `json:"annotation"`
}

// FieldAnnotations is the annotation set of one field.
type FieldAnnotations struct {
	Field       FieldID          `json:"field"`
	Annotations []AnnotationItem `json:"annotations"`
}

// MethodAnnotations is the annotation set of one method.
type MethodAnnotations struct {
	Method      MethodID         `json:"method"`
	Annotations []AnnotationItem `json:"annotations"`
}

// ParameterAnnotations carries one annotation set per parameter of a
// method, in declaration order. A parameter without annotations has a
// nil set.
type ParameterAnnotations struct {
	Method MethodID           `json:"method"`
	Params [][]AnnotationItem `json:"params"`
}

// AnnotationsDirectory collects every annotation attached to a class:
// the class's own set plus the sets of its fields, methods and method
// parameters.
type AnnotationsDirectory struct {
	Class      []AnnotationItem       `json:"class,omitempty"`
	Fields     []FieldAnnotations     `json:"fields,omitempty"`
	Methods    []MethodAnnotations    `json:"methods,omitempty"`
	Parameters []ParameterAnnotations `json:"parameters,omitempty"`
}

// AnnotationsDirectoryAt decodes the annotations_directory_item at off,
// usually a ClassDef's AnnotationsOff. Offset 0 means the class carries
// no annotations and yields (nil, nil).
//
// Layout: class_annotations_off u32, fields_size u32,
// annotated_methods_size u32, annotated_parameters_size u32, then that
// many field_annotation, method_annotation and parameter_annotation
// entries (8 bytes each: a pool index and an offset).
func (d *Dex) AnnotationsDirectoryAt(off uint32) (*AnnotationsDirectory, error) {
	if off == 0 {
		return nil, nil
	}
	src := d.src

	classOff, err := src.U32(off)
	if err != nil {
		return nil, fmt.Errorf("annotations directory at 0x%x: %w", off, err)
	}
	fieldsSize, err := src.U32(off + 4)
	if err != nil {
		return nil, fmt.Errorf("annotations directory at 0x%x: %w", off, err)
	}
	methodsSize, err := src.U32(off + 8)
	if err != nil {
		return nil, fmt.Errorf("annotations directory at 0x%x: %w", off, err)
	}
	paramsSize, err := src.U32(off + 12)
	if err != nil {
		return nil, fmt.Errorf("annotations directory at 0x%x: %w", off, err)
	}
	pos := off + 16

	// Every entry is 8 bytes; the claimed totals must fit the buffer.
	total := uint64(fieldsSize) + uint64(methodsSize) + uint64(paramsSize)
	if total*8 > uint64(src.Len())-uint64(pos) {
		return nil, fmt.Errorf("%w: annotations directory at 0x%x claims %d entries", ErrOutOfBounds, off, total)
	}
	raw, err := src.Bytes(pos, uint32(total)*8)
	if err != nil {
		return nil, fmt.Errorf("annotations directory at 0x%x: %w", off, err)
	}
	u32 := func(o uint32) uint32 {
		return uint32(raw[o]) | uint32(raw[o+1])<<8 | uint32(raw[o+2])<<16 | uint32(raw[o+3])<<24
	}

	dir := &AnnotationsDirectory{}

	if classOff != 0 {
		dir.Class, err = d.annotationSet(classOff)
		if err != nil {
			return nil, fmt.Errorf("class annotations: %w", err)
		}
	}

	e := uint32(0)
	for i := uint32(0); i < fieldsSize; i++ {
		fieldIdx, setOff := u32(e), u32(e+4)
		e += 8
		field, err := d.FieldAt(fieldIdx)
		if err != nil {
			return nil, fmt.Errorf("field annotation %d: %w", i, err)
		}
		set, err := d.annotationSet(setOff)
		if err != nil {
			return nil, fmt.Errorf("field annotation %d (%s): %w", i, field.Name, err)
		}
		dir.Fields = append(dir.Fields, FieldAnnotations{Field: field, Annotations: set})
	}

	for i := uint32(0); i < methodsSize; i++ {
		methodIdx, setOff := u32(e), u32(e+4)
		e += 8
		method, err := d.MethodAt(methodIdx)
		if err != nil {
			return nil, fmt.Errorf("method annotation %d: %w", i, err)
		}
		set, err := d.annotationSet(setOff)
		if err != nil {
			return nil, fmt.Errorf("method annotation %d (%s): %w", i, method.Name, err)
		}
		dir.Methods = append(dir.Methods, MethodAnnotations{Method: method, Annotations: set})
	}

	for i := uint32(0); i < paramsSize; i++ {
		methodIdx, refListOff := u32(e), u32(e+4)
		e += 8
		method, err := d.MethodAt(methodIdx)
		if err != nil {
			return nil, fmt.Errorf("parameter annotation %d: %w", i, err)
		}
		params, err := d.annotationSetRefList(refListOff)
		if err != nil {
			return nil, fmt.Errorf("parameter annotation %d (%s): %w", i, method.Name, err)
		}
		dir.Parameters = append(dir.Parameters, ParameterAnnotations{Method: method, Params: params})
	}

	return dir, nil
}

// annotationSet decodes an annotation_set_item: a u32 entry count, then
// that many u32 offsets to annotation items.
func (d *Dex) annotationSet(off uint32) ([]AnnotationItem, error) {
	count, err := d.src.U32(off)
	if err != nil {
		return nil, err
	}
	if uint64(count)*4 > uint64(d.src.Len())-uint64(off+4) {
		return nil, fmt.Errorf("%w: annotation set at 0x%x claims %d entries", ErrOutOfBounds, off, count)
	}
	items := make([]AnnotationItem, count)
	for i := range items {
		itemOff, err := d.src.U32(off + 4 + uint32(i)*4)
		if err != nil {
			return nil, err
		}
		items[i], err = d.annotationItem(itemOff)
		if err != nil {
			return nil, fmt.Errorf("annotation set at 0x%x entry %d: %w", off, i, err)
		}
	}
	return items, nil
}

// annotationItem decodes an annotation_item: a visibility byte followed
// by an encoded_annotation body.
func (d *Dex) annotationItem(off uint32) (AnnotationItem, error) {
	vis, err := d.src.U8(off)
	if err != nil {
		return AnnotationItem{}, err
	}
	if vis > uint8(VisibilitySystem) {
		return AnnotationItem{}, fmt.Errorf("%w: annotation at 0x%x has visibility 0x%02x", ErrMalformedAnnotation, off, vis)
	}
	annot, _, err := d.encodedAnnotation(off+1, 0)
	if err != nil {
		return AnnotationItem{}, err
	}
	return AnnotationItem{Visibility: AnnotationVisibility(vis), Annotation: annot}, nil
}

// annotationSetRefList decodes an annotation_set_ref_list: a u32 entry
// count, then one u32 set offset per method parameter. An entry of 0
// means that parameter has no annotations; so does a list offset of 0.
func (d *Dex) annotationSetRefList(off uint32) ([][]AnnotationItem, error) {
	if off == 0 {
		return nil, nil
	}
	count, err := d.src.U32(off)
	if err != nil {
		return nil, err
	}
	if uint64(count)*4 > uint64(d.src.Len())-uint64(off+4) {
		return nil, fmt.Errorf("%w: annotation set ref list at 0x%x claims %d entries", ErrOutOfBounds, off, count)
	}
	params := make([][]AnnotationItem, count)
	for i := range params {
		setOff, err := d.src.U32(off + 4 + uint32(i)*4)
		if err != nil {
			return nil, err
		}
		if setOff == 0 {
			continue
		}
		params[i], err = d.annotationSet(setOff)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
	}
	return params, nil
}
