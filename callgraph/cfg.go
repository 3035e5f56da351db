package callgraph

import (
	"fmt"
	"sort"

	"github.com/zboralski/lattice"

	"undex/dalvik"
	"undex/dex"
)

// BuildCFG builds control flow graphs for every method body in d. Per
// method decode failures become diagnostics, not errors.
func BuildCFG(d *dex.Dex) (*lattice.CFGGraph, []dex.Diag) {
	var diags dex.Diags
	cg := &lattice.CFGGraph{}

	walkMethods(d, &diags, func(name string, code *dex.CodeItem) {
		if code == nil {
			return
		}
		insts, err := dalvik.Decode(code.Insns)
		if err != nil {
			diags.Addf(0, dex.DiagInvalid, "%s: %v", name, err)
			return
		}
		cg.Funcs = append(cg.Funcs, BuildFuncCFG(d, name, insts))
	})

	return cg, diags.Items()
}

// branch is the control transfer of one instruction: where it can go
// and whether it also falls through.
type branch struct {
	targets []uint32
	cond    bool // falls through when not taken
	term    bool // return or throw, no successors
}

// branchOf classifies in. Switch targets are resolved through the
// payload instruction found at the address in.B points at.
func branchOf(in *dalvik.Inst, payloads map[uint32]*dalvik.SwitchData) *branch {
	switch in.Kind {
	case dalvik.Goto:
		return &branch{targets: []uint32{in.A}}
	case dalvik.IfTest:
		return &branch{targets: []uint32{in.C}, cond: true}
	case dalvik.IfTestZ:
		return &branch{targets: []uint32{in.B}, cond: true}
	case dalvik.Return, dalvik.Throw:
		return &branch{term: true}
	case dalvik.Switch:
		b := &branch{cond: true}
		if sw := payloads[in.B]; sw != nil {
			for _, rel := range sw.Targets {
				b.targets = append(b.targets, in.Addr+uint32(rel))
			}
		}
		return b
	}
	return nil
}

// BuildFuncCFG partitions one method's instructions into basic blocks.
//
//  1. Find block leaders: index 0, branch targets, instructions after
//     a control transfer.
//  2. Partition instructions into blocks by leaders.
//  3. Compute successor edges from each block's last instruction.
func BuildFuncCFG(d *dex.Dex, name string, insts []dalvik.Inst) *lattice.FuncCFG {
	lcfg := &lattice.FuncCFG{Name: name}
	if len(insts) == 0 {
		return lcfg
	}

	addrToIdx := make(map[uint32]int, len(insts))
	payloads := make(map[uint32]*dalvik.SwitchData)
	for i := range insts {
		addrToIdx[insts[i].Addr] = i
		if insts[i].Switch != nil {
			payloads[insts[i].Addr] = insts[i].Switch
		}
	}

	leaders := map[int]bool{0: true}
	for i := range insts {
		br := branchOf(&insts[i], payloads)
		if br == nil {
			continue
		}
		if i+1 < len(insts) {
			leaders[i+1] = true
		}
		for _, t := range br.targets {
			if idx, ok := addrToIdx[t]; ok {
				leaders[idx] = true
			}
		}
	}

	sorted := make([]int, 0, len(leaders))
	for idx := range leaders {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	leaderToBlock := make(map[int]int, len(sorted))
	blocks := make([]*lattice.BasicBlock, len(sorted))
	for i, start := range sorted {
		end := len(insts)
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		blocks[i] = &lattice.BasicBlock{ID: i, Start: start, End: end}
		leaderToBlock[start] = i
	}

	for _, blk := range blocks {
		last := &insts[blk.End-1]
		br := branchOf(last, payloads)

		// invoke call sites within the block
		for idx := blk.Start; idx < blk.End; idx++ {
			mi, ok := insts[idx].MethodIndex()
			if !ok {
				continue
			}
			callee := fmt.Sprintf("meth@%d", mi)
			if id, err := d.MethodAt(mi); err == nil {
				callee = MethodName(id)
			}
			blk.Calls = append(blk.Calls, lattice.CallSite{Offset: idx, Callee: callee})
		}

		if br == nil {
			if next, ok := leaderToBlock[blk.End]; ok {
				blk.Succs = append(blk.Succs, lattice.Successor{BlockID: next})
			}
			continue
		}
		if br.term {
			blk.Term = true
			continue
		}

		cond := ""
		if br.cond {
			cond = "T"
		}
		for _, t := range br.targets {
			if idx, ok := addrToIdx[t]; ok {
				if bid, ok := leaderToBlock[idx]; ok {
					blk.Succs = append(blk.Succs, lattice.Successor{BlockID: bid, Cond: cond})
				}
			}
		}
		if br.cond {
			if next, ok := leaderToBlock[blk.End]; ok {
				blk.Succs = append(blk.Succs, lattice.Successor{BlockID: next, Cond: "F"})
			}
		} else if len(blk.Succs) == 0 {
			// unconditional branch with no in-range target
			blk.Term = true
		}
	}

	lcfg.Blocks = blocks
	return lcfg
}
