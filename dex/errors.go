package dex

import (
	"errors"
	"fmt"
)

// Decode failures. Every decoding entry point returns one of these,
// usually wrapped with offset or index context via %w. A failure is local
// to the entry being resolved; sibling entries stay decodable.
var (
	ErrOutOfBounds              = errors.New("dex: read out of bounds")
	ErrInvalidMagic             = errors.New("dex: invalid magic")
	ErrInvalidEndianTag         = errors.New("dex: invalid endian tag")
	ErrMalformedLeb128          = errors.New("dex: malformed leb128")
	ErrInvalidStringEncoding    = errors.New("dex: invalid string encoding")
	ErrInvalidIndex             = errors.New("dex: index out of range")
	ErrMalformedClassData       = errors.New("dex: malformed class data")
	ErrMalformedAnnotation      = errors.New("dex: malformed annotation")
	ErrOverlappingSection       = errors.New("dex: overlapping sections")
	ErrMissingSection           = errors.New("dex: section missing from map list")
	ErrUnterminatedDebugProgram = errors.New("dex: debug program has no end-sequence")
)

// DiagKind classifies a non-fatal finding.
type DiagKind string

const (
	DiagUnreferenced DiagKind = "unreferenced"
	DiagInvalid      DiagKind = "invalid"
	DiagTruncated    DiagKind = "truncated"
)

// Diag records a non-fatal issue found while decoding or validating.
type Diag struct {
	Offset uint32   `json:"offset"`
	Kind   DiagKind `json:"kind"`
	Msg    string   `json:"msg"`
}

func (d Diag) String() string {
	return fmt.Sprintf("[%s] 0x%x: %s", d.Kind, d.Offset, d.Msg)
}

// Diags accumulates diagnostics.
type Diags struct {
	items []Diag
}

func (d *Diags) Add(offset uint32, kind DiagKind, msg string) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: msg})
}

func (d *Diags) Addf(offset uint32, kind DiagKind, format string, args ...any) {
	d.items = append(d.items, Diag{Offset: offset, Kind: kind, Msg: fmt.Sprintf(format, args...)})
}

func (d *Diags) Items() []Diag { return d.items }
func (d *Diags) Len() int      { return len(d.items) }
