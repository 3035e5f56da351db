package dex

import "fmt"

// Try covers a range of instructions and points at the catch handler
// decoded for its handler_off.
type Try struct {
	StartAddr  uint32 `json:"start_addr"` // first covered code unit
	InsnCount  uint16 `json:"insn_count"` // covered code units
	HandlerOff uint16 `json:"handler_off"`

	Handler *CatchHandler `json:"handler,omitempty"`
}

// TypeAddr is one (exception type, handler address) pair.
type TypeAddr struct {
	Type Type   `json:"type"`
	Addr uint32 `json:"addr"`
}

// CatchHandler is one entry of an encoded_catch_handler_list.
type CatchHandler struct {
	// Offset of this handler relative to the list start; try items
	// reference handlers by this value.
	Offset uint16 `json:"offset"`

	TypePairs []TypeAddr `json:"type_pairs,omitempty"`

	// CatchAllAddr is the handler address for any exception type not
	// matched above; nil when the handler has no catch-all.
	CatchAllAddr *uint32 `json:"catch_all_addr,omitempty"`
}

// CodeItem is a method body: register counts, the raw instruction word
// stream, and exception handling tables.
//
// Layout: registers_size u16, ins_size u16, outs_size u16, tries_size u16,
// debug_info_off u32, insns_size u32, insns_size u16 code units, two
// padding bytes when insns_size is odd and tries follow, tries_size try
// items (8 bytes each), then the encoded catch handler list.
type CodeItem struct {
	RegistersSize uint16 `json:"registers_size"`
	InsSize       uint16 `json:"ins_size"`
	OutsSize      uint16 `json:"outs_size"`
	DebugInfoOff  uint32 `json:"debug_info_off"` // 0 = no debug info

	Insns []uint16 `json:"-"` // raw instruction stream, one entry per code unit

	Tries    []Try          `json:"tries,omitempty"`
	Handlers []CatchHandler `json:"handlers,omitempty"`
}

// CodeAt decodes the code_item at off. Offset 0 means the method is
// abstract or native and yields (nil, nil).
func (d *Dex) CodeAt(off uint32) (*CodeItem, error) {
	if off == 0 {
		return nil, nil
	}
	src := d.src

	regs, err := src.U16(off)
	if err != nil {
		return nil, err
	}
	ins, err := src.U16(off + 2)
	if err != nil {
		return nil, err
	}
	outs, err := src.U16(off + 4)
	if err != nil {
		return nil, err
	}
	triesSize, err := src.U16(off + 6)
	if err != nil {
		return nil, err
	}
	debugOff, err := src.U32(off + 8)
	if err != nil {
		return nil, err
	}
	insnsSize, err := src.U32(off + 12)
	if err != nil {
		return nil, err
	}

	if uint64(insnsSize)*2 > uint64(src.Len()) {
		return nil, fmt.Errorf("%w: code item at 0x%x claims %d code units", ErrOutOfBounds, off, insnsSize)
	}
	raw, err := src.Bytes(off+16, insnsSize*2)
	if err != nil {
		return nil, fmt.Errorf("code item at 0x%x instructions: %w", off, err)
	}
	insns := make([]uint16, insnsSize)
	for i := range insns {
		insns[i] = uint16(raw[i*2]) | uint16(raw[i*2+1])<<8
	}

	item := &CodeItem{
		RegistersSize: regs,
		InsSize:       ins,
		OutsSize:      outs,
		DebugInfoOff:  debugOff,
		Insns:         insns,
	}
	if triesSize == 0 {
		// No tries: the item ends after the instructions and no
		// handler bytes are read.
		return item, nil
	}

	pos := off + 16 + insnsSize*2
	if insnsSize%2 != 0 {
		pos += 2 // alignment padding before try items
	}

	item.Tries = make([]Try, triesSize)
	for i := range item.Tries {
		start, err := src.U32(pos)
		if err != nil {
			return nil, fmt.Errorf("code item at 0x%x try %d: %w", off, i, err)
		}
		count, err := src.U16(pos + 4)
		if err != nil {
			return nil, fmt.Errorf("code item at 0x%x try %d: %w", off, i, err)
		}
		hoff, err := src.U16(pos + 6)
		if err != nil {
			return nil, fmt.Errorf("code item at 0x%x try %d: %w", off, i, err)
		}
		item.Tries[i] = Try{StartAddr: start, InsnCount: count, HandlerOff: hoff}
		pos += 8
	}

	item.Handlers, err = d.catchHandlerList(pos)
	if err != nil {
		return nil, fmt.Errorf("code item at 0x%x: %w", off, err)
	}

	// Resolve each try's handler_off against the decoded list.
	for i := range item.Tries {
		h := findHandler(item.Handlers, item.Tries[i].HandlerOff)
		if h == nil {
			return nil, fmt.Errorf("%w: try %d handler offset %d matches no handler",
				ErrInvalidIndex, i, item.Tries[i].HandlerOff)
		}
		item.Tries[i].Handler = h
	}
	return item, nil
}

// catchHandlerList decodes an encoded_catch_handler_list at base: a
// ULEB128 handler count, then each handler with its SLEB128 size. A
// negative size means the handler has a trailing catch-all address and
// covers abs(size) typed pairs.
func (d *Dex) catchHandlerList(base uint32) ([]CatchHandler, error) {
	src := d.src
	count, n, err := src.Uleb128(base)
	if err != nil {
		return nil, fmt.Errorf("handler list size: %w", err)
	}
	if uint64(count) > uint64(src.Len()-base) {
		return nil, fmt.Errorf("%w: handler list at 0x%x claims %d handlers", ErrOutOfBounds, base, count)
	}
	pos := base + n

	handlers := make([]CatchHandler, 0, count)
	for i := uint32(0); i < count; i++ {
		// try items reference handlers through a u16 handler_off; a
		// handler starting beyond that range can never be reached.
		rel := pos - base
		if rel > 0xffff {
			return nil, fmt.Errorf("%w: handler %d at list offset %d, past the u16 handler_off range",
				ErrInvalidIndex, i, rel)
		}
		h := CatchHandler{Offset: uint16(rel)}

		size, n, err := src.Sleb128(pos)
		if err != nil {
			return nil, fmt.Errorf("handler %d size: %w", i, err)
		}
		pos += n

		pairs := size
		if pairs < 0 {
			pairs = -pairs
		}
		if uint64(pairs) > uint64(src.Len()-pos) {
			return nil, fmt.Errorf("%w: handler %d claims %d pairs", ErrOutOfBounds, i, pairs)
		}
		h.TypePairs = make([]TypeAddr, 0, pairs)
		for j := int32(0); j < pairs; j++ {
			typeIdx, n, err := src.Uleb128(pos)
			if err != nil {
				return nil, fmt.Errorf("handler %d pair %d type: %w", i, j, err)
			}
			pos += n
			addr, n, err := src.Uleb128(pos)
			if err != nil {
				return nil, fmt.Errorf("handler %d pair %d addr: %w", i, j, err)
			}
			pos += n
			t, err := d.TypeAt(typeIdx)
			if err != nil {
				return nil, fmt.Errorf("handler %d pair %d: %w", i, j, err)
			}
			h.TypePairs = append(h.TypePairs, TypeAddr{Type: t, Addr: addr})
		}
		if size < 0 {
			addr, n, err := src.Uleb128(pos)
			if err != nil {
				return nil, fmt.Errorf("handler %d catch-all addr: %w", i, err)
			}
			pos += n
			h.CatchAllAddr = &addr
		}
		handlers = append(handlers, h)
	}
	return handlers, nil
}

func findHandler(handlers []CatchHandler, off uint16) *CatchHandler {
	for i := range handlers {
		if handlers[i].Offset == off {
			return &handlers[i]
		}
	}
	return nil
}
