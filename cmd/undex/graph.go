package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"undex/callgraph"
	"undex/internal/output"
	"undex/internal/render"
)

func cmdGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	path := fs.String("dex", "", "path to classes.dex or an APK")
	out := fs.String("out", "", "output file (default stdout)")
	asJSON := fs.Bool("json", false, "write node/edge JSON instead of DOT (requires --out)")
	maxNodes := fs.Int("max-nodes", 0, "limit rendered method nodes (0 = all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := loadDex(*path)
	if err != nil {
		return err
	}

	g, diags := callgraph.Build(d)
	for _, diag := range diags {
		fmt.Fprintf(os.Stderr, "%s\n", diag)
	}

	if *asJSON {
		if *out == "" {
			return fmt.Errorf("--json requires --out")
		}
		if err := output.WriteGraphJSON(*out, g); err != nil {
			return err
		}
	} else {
		dot := render.CallgraphDOT(g, filepath.Base(*path), *maxNodes)
		if *out == "" {
			fmt.Print(dot)
			return nil
		}
		if err := os.WriteFile(*out, []byte(dot), 0o644); err != nil {
			return fmt.Errorf("write: %w", err)
		}
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d nodes, %d edges)\n", *out, len(g.Nodes), len(g.Edges))
	return nil
}

func cmdCFG(args []string) error {
	fs := flag.NewFlagSet("cfg", flag.ExitOnError)
	path := fs.String("dex", "", "path to classes.dex")
	method := fs.String("method", "", "only this method (class descriptor dot name)")
	outDir := fs.String("out", "", "output directory (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := loadDex(*path)
	if err != nil {
		return err
	}

	cg, diags := callgraph.BuildCFG(d)
	for _, diag := range diags {
		fmt.Fprintf(os.Stderr, "%s\n", diag)
	}

	written := 0
	for _, f := range cg.Funcs {
		if *method != "" && f.Name != *method {
			continue
		}
		dot := render.FuncCFGDOT(f)
		if dot == "" {
			continue
		}
		if *outDir == "" {
			fmt.Print(dot)
		} else if err := output.WriteDOT(*outDir, render.FileName(f.Name), dot); err != nil {
			return err
		}
		written++
	}
	if *method != "" && written == 0 {
		return fmt.Errorf("method %q not found", *method)
	}
	if *outDir != "" {
		fmt.Fprintf(os.Stderr, "wrote %d CFGs to %s\n", written, *outDir)
	}
	return nil
}
