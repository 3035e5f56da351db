// Package output writes undex analysis results to files.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zboralski/lattice"
)

// WriteDOT writes a rendered graph to dir/name.dot, creating dir as
// needed. name must already be filesystem-safe (see render.FileName).
func WriteDOT(dir, name, dot string) error {
	path := filepath.Join(dir, name+".dot")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("output: mkdir: %w", err)
	}
	if err := os.WriteFile(path, []byte(dot), 0o644); err != nil {
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	return nil
}

// GraphEdge is one caller/callee pair in the JSON export.
type GraphEdge struct {
	Caller string `json:"caller"`
	Callee string `json:"callee"`
}

// WriteGraphJSON writes a call graph as JSON with explicit node and
// edge lists, for consumers that do not speak DOT.
func WriteGraphJSON(path string, g *lattice.Graph) error {
	doc := struct {
		Nodes []string    `json:"nodes"`
		Edges []GraphEdge `json:"edges"`
	}{Nodes: g.Nodes}
	for _, e := range g.Edges {
		doc.Edges = append(doc.Edges, GraphEdge{Caller: e.Caller, Callee: e.Callee})
	}
	return WriteJSON(path, doc)
}

// WriteJSON writes v as indented JSON to path.
func WriteJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}
