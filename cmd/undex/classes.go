package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"undex/dex"
)

func cmdClasses(args []string) error {
	fs := flag.NewFlagSet("classes", flag.ExitOnError)
	path := fs.String("dex", "", "path to classes.dex")
	asJSON := fs.Bool("json", false, "JSON output")
	withAnnots := fs.Bool("annotations", false, "include annotations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := loadDex(*path)
	if err != nil {
		return err
	}

	type classEntry struct {
		*dex.ClassDef
		Annotations *dex.AnnotationsDirectory `json:"annotations,omitempty"`
	}

	var entries []classEntry
	for i := uint32(0); i < d.ClassCount(); i++ {
		def, err := d.ClassDefAt(i)
		if err != nil {
			fmt.Fprintf(os.Stderr, "class def %d: %v\n", i, err)
			continue
		}
		e := classEntry{ClassDef: def}
		if *withAnnots {
			e.Annotations, err = d.AnnotationsDirectoryAt(def.AnnotationsOff)
			if err != nil {
				fmt.Fprintf(os.Stderr, "class %s annotations: %v\n", def.Class.Descriptor, err)
			}
		}
		entries = append(entries, e)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	for _, e := range entries {
		def := e.ClassDef
		fmt.Printf("%s %s", def.AccessFlags, def.Class.Descriptor)
		if def.Superclass != nil {
			fmt.Printf(" extends %s", def.Superclass.Descriptor)
		}
		for i, iface := range def.Interfaces {
			if i == 0 {
				fmt.Printf(" implements %s", iface.Descriptor)
			} else {
				fmt.Printf(", %s", iface.Descriptor)
			}
		}
		if def.SourceFile != nil {
			fmt.Printf("  // %s", *def.SourceFile)
		}
		fmt.Println()
		if e.Annotations != nil {
			for _, a := range e.Annotations.Class {
				fmt.Printf("  @%s (%s)\n", annotationType(d, a), a.Visibility)
			}
			for _, fa := range e.Annotations.Fields {
				for _, a := range fa.Annotations {
					fmt.Printf("  field %s: @%s (%s)\n", fa.Field.Name, annotationType(d, a), a.Visibility)
				}
			}
			for _, ma := range e.Annotations.Methods {
				for _, a := range ma.Annotations {
					fmt.Printf("  method %s: @%s (%s)\n", ma.Method.Name, annotationType(d, a), a.Visibility)
				}
			}
		}
	}
	return nil
}

func annotationType(d *dex.Dex, a dex.AnnotationItem) string {
	if t, err := d.TypeAt(a.Annotation.TypeIndex); err == nil {
		return t.Descriptor
	}
	return fmt.Sprintf("type@%d", a.Annotation.TypeIndex)
}
