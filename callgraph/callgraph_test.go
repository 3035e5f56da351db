package callgraph

import (
	"encoding/binary"
	"testing"

	"undex/dalvik"
	"undex/dex"
)

// twoMethodDex builds a file with one class LFoo; holding foo()V and
// bar()V, where foo invokes bar.
func twoMethodDex(t *testing.T) *dex.Dex {
	t.Helper()
	const (
		offStringIDs = 112
		offTypeIDs   = 132
		offProtoIDs  = 144
		offMethodIDs = 156
		offClassDefs = 172
		offStrData   = 204
		offClassData = 244
		offCodeFoo   = 260
		offCodeBar   = 288
		offMap       = 308
		size         = 400
	)
	b := make([]byte, size)
	le := binary.LittleEndian

	copy(b, "dex\n035\x00")
	le.PutUint32(b[32:], size)
	le.PutUint32(b[36:], 0x70)
	le.PutUint32(b[40:], 0x12345678)
	le.PutUint32(b[52:], offMap)
	section := func(at int, count, off uint32) {
		le.PutUint32(b[at:], count)
		le.PutUint32(b[at+4:], off)
	}
	section(56, 5, offStringIDs)
	section(64, 3, offTypeIDs)
	section(72, 1, offProtoIDs)
	section(80, 0, 0) // no fields
	section(88, 2, offMethodIDs)
	section(96, 1, offClassDefs)

	strs := []string{"Ljava/lang/Object;", "LFoo;", "V", "foo", "bar"}
	pos := uint32(offStrData)
	for i, s := range strs {
		le.PutUint32(b[offStringIDs+i*4:], pos)
		b[pos] = byte(len(s))
		copy(b[pos+1:], s)
		pos += uint32(len(s)) + 2
	}

	for i, si := range []uint32{0, 1, 2} {
		le.PutUint32(b[offTypeIDs+i*4:], si)
	}

	// ()V
	le.PutUint32(b[offProtoIDs:], 2)
	le.PutUint32(b[offProtoIDs+4:], 2)
	le.PutUint32(b[offProtoIDs+8:], 0)

	// method 0 LFoo;.foo, method 1 LFoo;.bar
	le.PutUint16(b[offMethodIDs:], 1)
	le.PutUint16(b[offMethodIDs+2:], 0)
	le.PutUint32(b[offMethodIDs+4:], 3)
	le.PutUint16(b[offMethodIDs+8:], 1)
	le.PutUint16(b[offMethodIDs+10:], 0)
	le.PutUint32(b[offMethodIDs+12:], 4)

	for i, v := range []uint32{1, 0x1, 0, 0, 0xffffffff, 0, offClassData, 0} {
		le.PutUint32(b[offClassDefs+i*4:], v)
	}

	// two direct methods; code offsets 260 and 288 as two-byte ulebs
	copy(b[offClassData:], []byte{
		0x00, 0x00, 0x02, 0x00,
		0x00, 0x01, 0x84, 0x02, // method 0 -> code at 260
		0x01, 0x01, 0xa0, 0x02, // method 1 -> code at 288
	})

	// foo: invoke-direct {v0}, bar; return-void
	le.PutUint16(b[offCodeFoo:], 1)
	le.PutUint16(b[offCodeFoo+2:], 1)
	le.PutUint16(b[offCodeFoo+4:], 1)
	le.PutUint32(b[offCodeFoo+12:], 4)
	le.PutUint16(b[offCodeFoo+16:], 0x1070)
	le.PutUint16(b[offCodeFoo+18:], 0x0001)
	le.PutUint16(b[offCodeFoo+20:], 0x0000)
	le.PutUint16(b[offCodeFoo+22:], 0x000e)

	// bar: return-void
	le.PutUint16(b[offCodeBar:], 1)
	le.PutUint16(b[offCodeBar+2:], 1)
	le.PutUint32(b[offCodeBar+12:], 1)
	le.PutUint16(b[offCodeBar+16:], 0x000e)

	items := []dex.MapItem{
		{Type: dex.ItemHeader, Count: 1, Off: 0},
		{Type: dex.ItemStringID, Count: 5, Off: offStringIDs},
		{Type: dex.ItemTypeID, Count: 3, Off: offTypeIDs},
		{Type: dex.ItemProtoID, Count: 1, Off: offProtoIDs},
		{Type: dex.ItemMethodID, Count: 2, Off: offMethodIDs},
		{Type: dex.ItemClassDef, Count: 1, Off: offClassDefs},
		{Type: dex.ItemMapList, Count: 1, Off: offMap},
	}
	le.PutUint32(b[offMap:], uint32(len(items)))
	for i, it := range items {
		at := offMap + 4 + i*12
		le.PutUint16(b[at:], uint16(it.Type))
		le.PutUint32(b[at+4:], it.Count)
		le.PutUint32(b[at+8:], it.Off)
	}

	d, err := dex.New(b)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestBuild(t *testing.T) {
	d := twoMethodDex(t)
	g, diags := Build(d)
	if len(diags) != 0 {
		t.Fatalf("diags = %v", diags)
	}

	nodes := map[string]bool{}
	for _, n := range g.Nodes {
		nodes[n] = true
	}
	if !nodes["LFoo;.foo"] || !nodes["LFoo;.bar"] {
		t.Errorf("Nodes = %v", g.Nodes)
	}

	if len(g.Edges) != 1 {
		t.Fatalf("Edges = %+v", g.Edges)
	}
	e := g.Edges[0]
	if e.Caller != "LFoo;.foo" || e.Callee != "LFoo;.bar" {
		t.Errorf("edge = %+v", e)
	}
}

func TestBuildFuncCFGStraightLine(t *testing.T) {
	d := twoMethodDex(t)
	// const/4 v0, 1; return-void
	insts, err := dalvik.Decode([]uint16{0x1012, 0x000e})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	cfg := BuildFuncCFG(d, "f", insts)
	if len(cfg.Blocks) != 1 {
		t.Fatalf("Blocks = %+v", cfg.Blocks)
	}
	if !cfg.Blocks[0].Term {
		t.Errorf("block not terminal: %+v", cfg.Blocks[0])
	}
}

func TestBuildFuncCFGBranch(t *testing.T) {
	d := twoMethodDex(t)
	// if-eqz v0, +3; const/4 v0, 0; return-void
	insts, err := dalvik.Decode([]uint16{0x0038, 0x0003, 0x0012, 0x000e})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	cfg := BuildFuncCFG(d, "f", insts)
	// blocks: [if], [const], [return]
	if len(cfg.Blocks) != 3 {
		t.Fatalf("Blocks = %+v", cfg.Blocks)
	}
	b0 := cfg.Blocks[0]
	if len(b0.Succs) != 2 {
		t.Fatalf("Succs = %+v", b0.Succs)
	}
	if b0.Succs[0].Cond != "T" || b0.Succs[0].BlockID != 2 {
		t.Errorf("taken edge = %+v", b0.Succs[0])
	}
	if b0.Succs[1].Cond != "F" || b0.Succs[1].BlockID != 1 {
		t.Errorf("fallthrough edge = %+v", b0.Succs[1])
	}
	if !cfg.Blocks[2].Term {
		t.Errorf("return block not terminal")
	}
}

func TestBuildFuncCFGCallSites(t *testing.T) {
	d := twoMethodDex(t)
	// invoke-direct {v0}, meth@1; return-void
	insts, err := dalvik.Decode([]uint16{0x1070, 0x0001, 0x0000, 0x000e})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	cfg := BuildFuncCFG(d, "f", insts)
	if len(cfg.Blocks) != 1 {
		t.Fatalf("Blocks = %+v", cfg.Blocks)
	}
	calls := cfg.Blocks[0].Calls
	if len(calls) != 1 || calls[0].Callee != "LFoo;.bar" {
		t.Errorf("Calls = %+v", calls)
	}
}

func TestBuildCFGWalksAllMethods(t *testing.T) {
	d := twoMethodDex(t)
	cg, diags := BuildCFG(d)
	if len(diags) != 0 {
		t.Fatalf("diags = %v", diags)
	}
	if len(cg.Funcs) != 2 {
		t.Fatalf("Funcs = %d", len(cg.Funcs))
	}
}
