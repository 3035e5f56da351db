// Package callgraph builds method call graphs and per-method control
// flow graphs from decoded Dex classes, in lattice's graph types.
package callgraph

import (
	"github.com/zboralski/lattice"

	"undex/dalvik"
	"undex/dex"
)

// MethodName formats a resolved method id the way graph nodes are
// named: class descriptor, dot, method name.
func MethodName(m dex.MethodID) string {
	return m.Class.Descriptor + "." + m.Name
}

// Build walks every class with a body and records one node per method
// and one edge per invoke instruction. Classes and methods that fail to
// decode are reported as diagnostics and skipped; one bad method never
// hides the rest of the file.
func Build(d *dex.Dex) (*lattice.Graph, []dex.Diag) {
	var diags dex.Diags
	g := &lattice.Graph{}

	walkMethods(d, &diags, func(caller string, code *dex.CodeItem) {
		g.Nodes = append(g.Nodes, caller)
		if code == nil {
			return
		}
		insts, err := dalvik.Decode(code.Insns)
		if err != nil {
			diags.Addf(0, dex.DiagInvalid, "%s: %v", caller, err)
			return
		}
		for i := range insts {
			idx, ok := insts[i].MethodIndex()
			if !ok {
				continue
			}
			callee, err := d.MethodAt(idx)
			if err != nil {
				diags.Addf(0, dex.DiagInvalid, "%s: invoke at %d: %v", caller, insts[i].Addr, err)
				continue
			}
			g.Edges = append(g.Edges, lattice.Edge{
				Caller: caller,
				Callee: MethodName(callee),
			})
		}
	})

	g.Dedup()
	return g, diags.Items()
}

// walkMethods visits every direct and virtual method of every class,
// handing each visitor the method's graph name and decoded body (nil
// for abstract and native methods).
func walkMethods(d *dex.Dex, diags *dex.Diags, visit func(name string, code *dex.CodeItem)) {
	for i := uint32(0); i < d.ClassCount(); i++ {
		def, err := d.ClassDefAt(i)
		if err != nil {
			diags.Addf(0, dex.DiagInvalid, "class def %d: %v", i, err)
			continue
		}
		cd, err := d.ClassDataAt(def.ClassDataOff)
		if err != nil {
			diags.Addf(def.ClassDataOff, dex.DiagInvalid, "class %s: %v", def.Class.Descriptor, err)
			continue
		}
		if cd == nil {
			continue
		}
		for _, group := range [][]dex.EncodedMethod{cd.DirectMethods, cd.VirtualMethods} {
			for _, m := range group {
				id, err := d.MethodAt(m.MethodIndex)
				if err != nil {
					diags.Addf(0, dex.DiagInvalid, "class %s: method %d: %v", def.Class.Descriptor, m.MethodIndex, err)
					continue
				}
				code, err := d.CodeAt(m.CodeOff)
				if err != nil {
					diags.Addf(m.CodeOff, dex.DiagInvalid, "%s: %v", MethodName(id), err)
					continue
				}
				visit(MethodName(id), code)
			}
		}
	}
}
