package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"undex/dex"
)

func cmdMethods(args []string) error {
	fs := flag.NewFlagSet("methods", flag.ExitOnError)
	path := fs.String("dex", "", "path to classes.dex")
	classFilter := fs.String("class", "", "only methods of this class descriptor")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := loadDex(*path)
	if err != nil {
		return err
	}

	for i := uint32(0); i < d.ClassCount(); i++ {
		def, err := d.ClassDefAt(i)
		if err != nil {
			fmt.Fprintf(os.Stderr, "class def %d: %v\n", i, err)
			continue
		}
		if *classFilter != "" && def.Class.Descriptor != *classFilter {
			continue
		}
		cd, err := d.ClassDataAt(def.ClassDataOff)
		if err != nil {
			fmt.Fprintf(os.Stderr, "class %s: %v\n", def.Class.Descriptor, err)
			continue
		}
		if cd == nil {
			continue
		}

		fmt.Printf("%s\n", def.Class.Descriptor)
		printGroup(d, "direct", cd.DirectMethods)
		printGroup(d, "virtual", cd.VirtualMethods)
	}
	return nil
}

func printGroup(d *dex.Dex, kind string, methods []dex.EncodedMethod) {
	for _, m := range methods {
		id, err := d.MethodAt(m.MethodIndex)
		if err != nil {
			fmt.Fprintf(os.Stderr, "  method %d: %v\n", m.MethodIndex, err)
			continue
		}
		sig := formatProto(id.Proto)
		stats := "abstract/native"
		if m.CodeOff != 0 {
			code, err := d.CodeAt(m.CodeOff)
			if err != nil {
				fmt.Fprintf(os.Stderr, "  %s.%s: %v\n", id.Class.Descriptor, id.Name, err)
				continue
			}
			stats = fmt.Sprintf("%d regs, %d code units, %d tries",
				code.RegistersSize, len(code.Insns), len(code.Tries))
		}
		fmt.Printf("  %-7s %s%s  (%s)\n", kind, id.Name, sig, stats)
	}
}

func formatProto(p dex.Proto) string {
	params := make([]string, len(p.Params))
	for i, t := range p.Params {
		params[i] = t.Descriptor
	}
	return "(" + strings.Join(params, "") + ")" + p.ReturnType.Descriptor
}
