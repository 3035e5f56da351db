package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"undex/dex"
	"undex/internal/apk"
)

// loadDex reads and parses the file every subcommand starts from.
// path may name a bare .dex file or an APK/JAR carrying classes.dex.
func loadDex(path string) (*dex.Dex, error) {
	if path == "" {
		return nil, fmt.Errorf("--dex is required")
	}
	data, err := apk.Read(path)
	if err != nil {
		return nil, err
	}
	d, err := dex.New(data)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	return d, nil
}

func cmdInfo(args []string) error {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	path := fs.String("dex", "", "path to classes.dex")
	asJSON := fs.Bool("json", false, "JSON output")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := loadDex(*path)
	if err != nil {
		return err
	}
	h := d.Header()

	if *asJSON {
		out := struct {
			Header *dex.Header   `json:"header"`
			Map    []dex.MapItem `json:"map"`
		}{h, d.MapList().Items}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("dex version %03d, file size %d, checksum 0x%08x\n", h.Version, h.FileSize, h.Checksum)
	fmt.Printf("strings %6d @ 0x%06x\n", h.StringIDs.Count, h.StringIDs.Off)
	fmt.Printf("types   %6d @ 0x%06x\n", h.TypeIDs.Count, h.TypeIDs.Off)
	fmt.Printf("protos  %6d @ 0x%06x\n", h.ProtoIDs.Count, h.ProtoIDs.Off)
	fmt.Printf("fields  %6d @ 0x%06x\n", h.FieldIDs.Count, h.FieldIDs.Off)
	fmt.Printf("methods %6d @ 0x%06x\n", h.MethodIDs.Count, h.MethodIDs.Off)
	fmt.Printf("classes %6d @ 0x%06x\n", h.ClassDefs.Count, h.ClassDefs.Off)
	fmt.Printf("map     %6d entries @ 0x%06x\n", len(d.MapList().Items), h.MapOff)
	for _, it := range d.MapList().Items {
		fmt.Printf("  %-24s %6d @ 0x%06x\n", it.Type, it.Count, it.Off)
	}
	return nil
}
