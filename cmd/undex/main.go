package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "info":
		err = cmdInfo(os.Args[2:])
	case "strings":
		err = cmdStrings(os.Args[2:])
	case "classes":
		err = cmdClasses(os.Args[2:])
	case "methods":
		err = cmdMethods(os.Args[2:])
	case "validate":
		err = cmdValidate(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "cfg":
		err = cmdCFG(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `undex — Dex bytecode container inspector

Usage:
  undex info     --dex <path> [--json]            Print header and section summary
  undex strings  --dex <path> [--max-len <n>]     Dump the string pool
  undex classes  --dex <path> [--annotations]     List class definitions
  undex methods  --dex <path> [--class <desc>]    List methods with code stats
  undex validate --dex <path>                     Cross-check the map list and walk every item
  undex graph    --dex <path> [--max-nodes <n>]   Method call graph as DOT
  undex cfg      --dex <path> [--method <name>]   Per-method control flow graphs as DOT

Flags:
  --dex <path>       Path to classes.dex, or an APK carrying one
  --json             JSON output instead of text
  --out <path>       Write output to a file instead of stdout
`)
}
