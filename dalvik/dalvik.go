// Package dalvik decodes Dalvik bytecode: the uint16 code-unit stream of
// a method body into structured instructions with resolved field layouts,
// sign-extended literals, absolute branch targets and payload data.
package dalvik

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated reports an instruction whose format claims more code
	// units than the stream holds.
	ErrTruncated = errors.New("dalvik: truncated instruction")

	// ErrBadPayload reports a malformed switch or array-data payload.
	ErrBadPayload = errors.New("dalvik: malformed payload")
)

// Kind groups opcodes by operation family.
type Kind uint8

const (
	Nop Kind = iota
	Move
	MoveWide
	MoveResult
	Return
	Const
	ConstWide
	ConstString
	ConstClass
	MonitorEnter
	MonitorExit
	CheckCast
	InstanceOf
	ArrayLength
	NewInstance
	NewArray
	FilledNewArray
	FillArrayData
	Throw
	Goto
	Switch
	Compare
	IfTest
	IfTestZ
	ArrayGet
	ArrayPut
	InstanceGet
	InstancePut
	StaticGet
	StaticPut
	InvokeVirtual
	InvokeSuper
	InvokeDirect
	InvokeStatic
	InvokeInterface
	UnaryOp
	BinaryOp
	BinaryOpLit
)

// IsInvoke reports whether k is one of the five invoke families.
func (k Kind) IsInvoke() bool {
	return k >= InvokeVirtual && k <= InvokeInterface
}

// kindOf maps an opcode byte to its family. Unused opcodes decode as
// Nop with format 10x, matching how the runtime treats them.
func kindOf(op uint8) Kind {
	switch {
	case op == 0x00:
		return Nop
	case op <= 0x03:
		return Move
	case op <= 0x06:
		return MoveWide
	case op <= 0x09:
		return Move
	case op <= 0x0d:
		return MoveResult
	case op <= 0x11:
		return Return
	case op <= 0x15:
		return Const
	case op <= 0x19:
		return ConstWide
	case op <= 0x1b:
		return ConstString
	case op == 0x1c:
		return ConstClass
	case op == 0x1d:
		return MonitorEnter
	case op == 0x1e:
		return MonitorExit
	case op == 0x1f:
		return CheckCast
	case op == 0x20:
		return InstanceOf
	case op == 0x21:
		return ArrayLength
	case op == 0x22:
		return NewInstance
	case op == 0x23:
		return NewArray
	case op <= 0x25:
		return FilledNewArray
	case op == 0x26:
		return FillArrayData
	case op == 0x27:
		return Throw
	case op <= 0x2a:
		return Goto
	case op <= 0x2c:
		return Switch
	case op <= 0x31:
		return Compare
	case op <= 0x37:
		return IfTest
	case op <= 0x3d:
		return IfTestZ
	case op <= 0x43:
		return Nop
	case op <= 0x4a:
		return ArrayGet
	case op <= 0x51:
		return ArrayPut
	case op <= 0x58:
		return InstanceGet
	case op <= 0x5f:
		return InstancePut
	case op <= 0x66:
		return StaticGet
	case op <= 0x6d:
		return StaticPut
	case op == 0x6e || op == 0x74:
		return InvokeVirtual
	case op == 0x6f || op == 0x75:
		return InvokeSuper
	case op == 0x70 || op == 0x76:
		return InvokeDirect
	case op == 0x71 || op == 0x77:
		return InvokeStatic
	case op == 0x72 || op == 0x78:
		return InvokeInterface
	case op <= 0x7a:
		return Nop
	case op <= 0x8f:
		return UnaryOp
	case op <= 0xcf:
		return BinaryOp
	case op <= 0xe2:
		return BinaryOpLit
	default:
		return Nop
	}
}

// SwitchData is a decoded packed- or sparse-switch payload. Targets are
// code-unit offsets relative to the switch instruction that references
// the payload.
type SwitchData struct {
	Keys    []int32
	Targets []int32
}

// Inst is one decoded instruction.
//
// Field meaning follows the format: A, B and C hold registers, literals
// or pool indices depending on the opcode, already sign-extended where
// the format calls for it. Branch targets in A, B or C are absolute
// code-unit addresses. For the invoke families A is the method pool
// index and Args the argument registers. Wide carries the 64-bit
// literal of the const-wide family.
type Inst struct {
	Addr   uint32 // code-unit address within the method
	Opcode uint8
	Kind   Kind
	Size   uint32 // code units consumed, payload included

	A, B, C uint32
	Wide    uint64
	Args    []uint16

	Switch   *SwitchData // switch payload pseudo-instructions
	FillData []uint64    // fill-array-data payload elements
}

// MethodIndex returns the method pool index of an invoke instruction.
func (in *Inst) MethodIndex() (uint32, bool) {
	if !in.Kind.IsInvoke() {
		return 0, false
	}
	return in.A, true
}

// Decode walks the code-unit stream of one method body and returns its
// instructions in address order. Payload pseudo-instructions (packed
// and sparse switch data, fill-array-data) are decoded in place.
func Decode(insns []uint16) ([]Inst, error) {
	var out []Inst
	n := uint32(len(insns))
	for pos := uint32(0); pos < n; {
		in, err := decodeOne(insns, pos)
		if err != nil {
			return nil, err
		}
		out = append(out, in)
		pos += in.Size
	}
	return out, nil
}

func decodeOne(insns []uint16, pos uint32) (Inst, error) {
	word := insns[pos]
	op := uint8(word)

	// payload pseudo-instructions carry the identifying byte in the
	// high half of a nop word
	switch word {
	case 0x0100:
		return decodePackedSwitch(insns, pos)
	case 0x0200:
		return decodeSparseSwitch(insns, pos)
	case 0x0300:
		return decodeFillArrayData(insns, pos)
	}

	format := formats[op]
	size := sizeOf(op)
	if uint64(pos)+uint64(size) > uint64(len(insns)) {
		return Inst{}, fmt.Errorf("%w: opcode 0x%02x at %d needs %d code units", ErrTruncated, op, pos, size)
	}

	in := Inst{Addr: pos, Opcode: op, Kind: kindOf(op), Size: size}
	w := uint32(word)

	switch format {
	case "10x":
	case "12x", "11n":
		in.A = (w >> 8) & 0xf
		in.B = w >> 12
	case "11x", "10t":
		in.A = w >> 8
	case "20t":
		in.A = uint32(insns[pos+1])
	case "22x", "21t", "21s", "21h", "21c":
		in.A = w >> 8
		in.B = uint32(insns[pos+1])
	case "23x", "22b":
		in.A = w >> 8
		in.B = uint32(insns[pos+1]) & 0xff
		in.C = uint32(insns[pos+1]) >> 8
	case "22t", "22s", "22c":
		in.A = (w >> 8) & 0xf
		in.B = w >> 12
		in.C = uint32(insns[pos+1])
	case "30t":
		in.A = uint32(insns[pos+1]) | uint32(insns[pos+2])<<16
	case "32x":
		in.A = uint32(insns[pos+1])
		in.B = uint32(insns[pos+2])
	case "31i", "31t", "31c":
		in.A = w >> 8
		in.B = uint32(insns[pos+1]) | uint32(insns[pos+2])<<16
	case "35c":
		count := w >> 12
		in.A = uint32(insns[pos+1])
		regs := insns[pos+2]
		args := []uint16{
			regs & 0xf, (regs >> 4) & 0xf, (regs >> 8) & 0xf, regs >> 12,
			uint16(w>>8) & 0xf,
		}
		if count > 5 {
			return Inst{}, fmt.Errorf("%w: opcode 0x%02x at %d claims %d arguments", ErrBadPayload, op, pos, count)
		}
		in.Args = args[:count]
	case "3rc":
		count := w >> 8
		in.A = uint32(insns[pos+1])
		first := uint32(insns[pos+2])
		in.Args = make([]uint16, count)
		for i := range in.Args {
			in.Args[i] = uint16(first + uint32(i))
		}
	case "51l":
		in.A = w >> 8
		for i := uint32(0); i < 4; i++ {
			in.Wide |= uint64(insns[pos+1+i]) << (16 * i)
		}
	}

	// sign extension, per format
	switch format {
	case "11n":
		in.B = uint32(int32(in.B<<28) >> 28)
	case "10t":
		in.A = uint32(int32(int8(uint8(in.A))))
	case "22b":
		in.C = uint32(int32(int8(uint8(in.C))))
	case "20t":
		in.A = uint32(int32(int16(uint16(in.A))))
	case "21t", "21s":
		in.B = uint32(int32(int16(uint16(in.B))))
	case "22t", "22s":
		in.C = uint32(int32(int16(uint16(in.C))))
	}

	// const/high16 shifts into the high half of its width
	if format == "21h" {
		if op == 0x15 {
			in.B <<= 16
		} else {
			in.Wide = uint64(in.B) << 48
		}
	}
	// const-wide/16 and /32 carry their literal sign-extended in Wide
	if op == 0x16 || op == 0x17 {
		in.Wide = uint64(int64(int32(in.B)))
	}

	// branch offsets become absolute code-unit addresses
	if format[2] == 't' {
		switch format[1] {
		case '0':
			in.A += pos
		case '1':
			in.B += pos
		case '2':
			in.C += pos
		}
	}

	return in, nil
}

func decodePackedSwitch(insns []uint16, pos uint32) (Inst, error) {
	n := uint32(len(insns))
	if pos+4 > n {
		return Inst{}, fmt.Errorf("%w: packed-switch header at %d", ErrBadPayload, pos)
	}
	count := uint32(insns[pos+1])
	firstKey := int32(uint32(insns[pos+2]) | uint32(insns[pos+3])<<16)
	size := 4 + 2*count
	if uint64(pos)+uint64(size) > uint64(n) {
		return Inst{}, fmt.Errorf("%w: packed-switch at %d claims %d entries", ErrBadPayload, pos, count)
	}

	sw := &SwitchData{Keys: make([]int32, count), Targets: make([]int32, count)}
	for i := uint32(0); i < count; i++ {
		at := pos + 4 + 2*i
		sw.Keys[i] = firstKey + int32(i)
		sw.Targets[i] = int32(uint32(insns[at]) | uint32(insns[at+1])<<16)
	}
	return Inst{Addr: pos, Kind: Nop, Size: size, Switch: sw}, nil
}

func decodeSparseSwitch(insns []uint16, pos uint32) (Inst, error) {
	n := uint32(len(insns))
	if pos+2 > n {
		return Inst{}, fmt.Errorf("%w: sparse-switch header at %d", ErrBadPayload, pos)
	}
	count := uint32(insns[pos+1])
	size := 2 + 4*count
	if uint64(pos)+uint64(size) > uint64(n) {
		return Inst{}, fmt.Errorf("%w: sparse-switch at %d claims %d entries", ErrBadPayload, pos, count)
	}

	sw := &SwitchData{Keys: make([]int32, count), Targets: make([]int32, count)}
	for i := uint32(0); i < count; i++ {
		at := pos + 2 + 2*i
		sw.Keys[i] = int32(uint32(insns[at]) | uint32(insns[at+1])<<16)
	}
	base := pos + 2 + 2*count
	for i := uint32(0); i < count; i++ {
		at := base + 2*i
		sw.Targets[i] = int32(uint32(insns[at]) | uint32(insns[at+1])<<16)
	}
	return Inst{Addr: pos, Kind: Nop, Size: size, Switch: sw}, nil
}

func decodeFillArrayData(insns []uint16, pos uint32) (Inst, error) {
	n := uint32(len(insns))
	if pos+4 > n {
		return Inst{}, fmt.Errorf("%w: fill-array-data header at %d", ErrBadPayload, pos)
	}
	width := uint32(insns[pos+1])
	count := uint32(insns[pos+2]) | uint32(insns[pos+3])<<16
	switch width {
	case 1, 2, 4, 8:
	default:
		return Inst{}, fmt.Errorf("%w: fill-array-data at %d element width %d", ErrBadPayload, pos, width)
	}
	size := 4 + (uint32((uint64(count)*uint64(width)+1)/2)) // round up to code units
	if uint64(pos)+uint64(4)+(uint64(count)*uint64(width)+1)/2 > uint64(n) {
		return Inst{}, fmt.Errorf("%w: fill-array-data at %d claims %d elements", ErrBadPayload, pos, count)
	}

	// elements are packed little-endian into the code units
	byteAt := func(i uint32) uint64 {
		unit := insns[pos+4+i/2]
		if i%2 == 1 {
			return uint64(unit >> 8)
		}
		return uint64(unit & 0xff)
	}
	vals := make([]uint64, count)
	for i := uint32(0); i < count; i++ {
		var v uint64
		for j := uint32(0); j < width; j++ {
			v |= byteAt(i*width+j) << (8 * j)
		}
		vals[i] = v
	}
	return Inst{Addr: pos, Kind: Nop, Size: size, FillData: vals}, nil
}
