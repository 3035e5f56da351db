package dex

import "fmt"

// Debug info opcodes. Values 0x0a and above are special opcodes that
// advance both address and line via a fixed formula and emit a position.
type DebugOpcode uint8

const (
	DbgEndSequence        DebugOpcode = 0x00
	DbgAdvancePC          DebugOpcode = 0x01
	DbgAdvanceLine        DebugOpcode = 0x02
	DbgStartLocal         DebugOpcode = 0x03
	DbgStartLocalExtended DebugOpcode = 0x04
	DbgEndLocal           DebugOpcode = 0x05
	DbgRestartLocal       DebugOpcode = 0x06
	DbgSetPrologueEnd     DebugOpcode = 0x07
	DbgSetEpilogueBegin   DebugOpcode = 0x08
	DbgSetFile            DebugOpcode = 0x09

	dbgFirstSpecial = 0x0a
	dbgLineBase     = -4
	dbgLineRange    = 15
)

// DebugOp is one decoded debug program instruction. Which fields are
// meaningful depends on Opcode; index fields use -1 for "no value"
// (ULEB128p1 encoding).
type DebugOp struct {
	Opcode DebugOpcode `json:"opcode"`

	AddrAdvance uint32 `json:"addr_advance,omitempty"` // AdvancePC, specials
	LineAdvance int32  `json:"line_advance,omitempty"` // AdvanceLine, specials

	RegisterNum uint32 `json:"register_num,omitempty"` // locals
	NameIndex   int32  `json:"name_index,omitempty"`   // StartLocal*, SetFile
	TypeIndex   int32  `json:"type_index,omitempty"`   // StartLocal*
	SigIndex    int32  `json:"sig_index,omitempty"`    // StartLocalExtended
}

// DebugInfo is a decoded debug_info_item: the state machine program that
// maps instruction addresses to source lines and local variable events.
type DebugInfo struct {
	LineStart uint32 `json:"line_start"`

	// ParameterNames holds one string pool index per method parameter,
	// -1 where the parameter is unnamed.
	ParameterNames []int32 `json:"parameter_names,omitempty"`

	Ops []DebugOp `json:"ops,omitempty"`
}

// Position is one row of the interpreted address-to-line table.
type Position struct {
	Addr uint32 `json:"addr"`
	Line uint32 `json:"line"`
}

// DebugInfoAt decodes the debug_info_item at off. Offset 0 means the
// method has no debug info and yields (nil, nil). A program that runs off
// the buffer before its end-sequence opcode is malformed.
func (d *Dex) DebugInfoAt(off uint32) (*DebugInfo, error) {
	if off == 0 {
		return nil, nil
	}
	src := d.src
	pos := off

	lineStart, n, err := src.Uleb128(pos)
	if err != nil {
		return nil, fmt.Errorf("debug info at 0x%x line start: %w", off, err)
	}
	pos += n

	paramCount, n, err := src.Uleb128(pos)
	if err != nil {
		return nil, fmt.Errorf("debug info at 0x%x parameter count: %w", off, err)
	}
	pos += n
	if uint64(paramCount) > uint64(src.Len()-pos) {
		return nil, fmt.Errorf("%w: debug info at 0x%x claims %d parameters", ErrOutOfBounds, off, paramCount)
	}

	info := &DebugInfo{LineStart: lineStart}
	for i := uint32(0); i < paramCount; i++ {
		nameIdx, n, err := src.Uleb128p1(pos)
		if err != nil {
			return nil, fmt.Errorf("debug info at 0x%x parameter %d: %w", off, i, err)
		}
		pos += n
		info.ParameterNames = append(info.ParameterNames, nameIdx)
	}

	for {
		op, err := src.U8(pos)
		if err != nil {
			return nil, fmt.Errorf("%w: at 0x%x", ErrUnterminatedDebugProgram, pos)
		}
		pos++

		dop := DebugOp{Opcode: DebugOpcode(op), NameIndex: -1, TypeIndex: -1, SigIndex: -1}
		switch {
		case dop.Opcode == DbgEndSequence:
			info.Ops = append(info.Ops, dop)
			return info, nil

		case dop.Opcode == DbgAdvancePC:
			dop.AddrAdvance, n, err = src.Uleb128(pos)

		case dop.Opcode == DbgAdvanceLine:
			dop.LineAdvance, n, err = src.Sleb128(pos)

		case dop.Opcode == DbgStartLocal:
			if pos, err = d.readLocal(&dop, pos, false); err != nil {
				return nil, fmt.Errorf("debug info at 0x%x: %w", off, err)
			}
			n = 0

		case dop.Opcode == DbgStartLocalExtended:
			if pos, err = d.readLocal(&dop, pos, true); err != nil {
				return nil, fmt.Errorf("debug info at 0x%x: %w", off, err)
			}
			n = 0

		case dop.Opcode == DbgEndLocal || dop.Opcode == DbgRestartLocal:
			dop.RegisterNum, n, err = src.Uleb128(pos)

		case dop.Opcode == DbgSetPrologueEnd || dop.Opcode == DbgSetEpilogueBegin:
			n = 0

		case dop.Opcode == DbgSetFile:
			dop.NameIndex, n, err = src.Uleb128p1(pos)

		default:
			// Special opcode: one byte advances both registers.
			adjusted := uint32(op) - dbgFirstSpecial
			dop.LineAdvance = dbgLineBase + int32(adjusted%dbgLineRange)
			dop.AddrAdvance = adjusted / dbgLineRange
			n = 0
		}
		if err != nil {
			return nil, fmt.Errorf("debug info at 0x%x op 0x%02x: %w", off, op, err)
		}
		pos += n
		info.Ops = append(info.Ops, dop)
	}
}

func (d *Dex) readLocal(dop *DebugOp, pos uint32, extended bool) (uint32, error) {
	var n uint32
	var err error
	if dop.RegisterNum, n, err = d.src.Uleb128(pos); err != nil {
		return 0, fmt.Errorf("local register: %w", err)
	}
	pos += n
	if dop.NameIndex, n, err = d.src.Uleb128p1(pos); err != nil {
		return 0, fmt.Errorf("local name: %w", err)
	}
	pos += n
	if dop.TypeIndex, n, err = d.src.Uleb128p1(pos); err != nil {
		return 0, fmt.Errorf("local type: %w", err)
	}
	pos += n
	if extended {
		if dop.SigIndex, n, err = d.src.Uleb128p1(pos); err != nil {
			return 0, fmt.Errorf("local signature: %w", err)
		}
		pos += n
	}
	return pos, nil
}

// Positions interprets the program into its address-to-line table. Only
// special opcodes emit a row; advance opcodes just move the registers.
func (di *DebugInfo) Positions() []Position {
	var out []Position
	addr := uint32(0)
	line := di.LineStart
	for _, op := range di.Ops {
		switch {
		case op.Opcode == DbgEndSequence:
			return out
		case op.Opcode == DbgAdvancePC:
			addr += op.AddrAdvance
		case op.Opcode == DbgAdvanceLine:
			line = uint32(int64(line) + int64(op.LineAdvance))
		case op.Opcode >= dbgFirstSpecial:
			addr += op.AddrAdvance
			line = uint32(int64(line) + int64(op.LineAdvance))
			out = append(out, Position{Addr: addr, Line: line})
		}
	}
	return out
}
