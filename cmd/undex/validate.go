package main

import (
	"flag"
	"fmt"
	"os"

	"undex/dex"
)

// cmdValidate cross-checks the map list against the header and then
// walks every class, method body and debug program, reporting each
// failure without stopping.
func cmdValidate(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	path := fs.String("dex", "", "path to classes.dex")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := loadDex(*path)
	if err != nil {
		return err
	}

	diags, err := d.ValidateSections()
	for _, diag := range diags {
		fmt.Fprintf(os.Stderr, "map: %s\n", diag)
	}
	if err != nil {
		return fmt.Errorf("map list: %w", err)
	}

	bad := 0
	report := func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
		bad++
	}

	for i := uint32(0); i < d.StringCount(); i++ {
		if _, err := d.StringAt(i); err != nil {
			report("string %d: %v", i, err)
		}
	}
	for i := uint32(0); i < d.ClassCount(); i++ {
		def, err := d.ClassDefAt(i)
		if err != nil {
			report("class def %d: %v", i, err)
			continue
		}
		cd, err := d.ClassDataAt(def.ClassDataOff)
		if err != nil {
			report("class %s: %v", def.Class.Descriptor, err)
			continue
		}
		if _, err := d.StaticValuesAt(def.StaticValuesOff); err != nil {
			report("class %s static values: %v", def.Class.Descriptor, err)
		}
		if cd == nil {
			continue
		}
		for _, group := range [][]dex.EncodedMethod{cd.DirectMethods, cd.VirtualMethods} {
			for _, m := range group {
				code, err := d.CodeAt(m.CodeOff)
				if err != nil {
					report("class %s method %d: %v", def.Class.Descriptor, m.MethodIndex, err)
					continue
				}
				if code == nil {
					continue
				}
				if _, err := d.DebugInfoAt(code.DebugInfoOff); err != nil {
					report("class %s method %d debug info: %v", def.Class.Descriptor, m.MethodIndex, err)
				}
			}
		}
	}

	if bad > 0 {
		return fmt.Errorf("%d items failed to decode", bad)
	}
	fmt.Println("ok")
	return nil
}
