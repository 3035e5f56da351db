package main

import (
	"flag"
	"fmt"
	"os"
)

func cmdStrings(args []string) error {
	fs := flag.NewFlagSet("strings", flag.ExitOnError)
	path := fs.String("dex", "", "path to classes.dex")
	maxLen := fs.Int("max-len", 200, "max display length per string (0 = unlimited)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	d, err := loadDex(*path)
	if err != nil {
		return err
	}

	bad := 0
	for i := uint32(0); i < d.StringCount(); i++ {
		s, err := d.StringAt(i)
		if err != nil {
			fmt.Fprintf(os.Stderr, "string %d: %v\n", i, err)
			bad++
			continue
		}
		if *maxLen > 0 && len(s) > *maxLen {
			s = s[:*maxLen] + "..."
		}
		fmt.Printf("%6d %q\n", i, s)
	}
	if bad > 0 {
		return fmt.Errorf("%d of %d strings failed to decode", bad, d.StringCount())
	}
	return nil
}
