package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"p8c/pkg/compiler"
)

func main() {
	inPath := flag.String("in", "", "input source file path")
	outPath := flag.String("out", "", "output assembly file path (default: input with .asm extension)")
	targetName := flag.String("target", "c64", "compilation target (c64 or cx16)")
	flag.Parse()

	if *inPath == "" {
		fmt.Fprintln(os.Stderr, "usage: p8c -in program.p8 [-out program.asm] [-target c64|cx16]")
		os.Exit(2)
	}

	target := compiler.TargetByName(*targetName)
	if target == nil {
		fmt.Fprintf(os.Stderr, "unknown target %q\n", *targetName)
		os.Exit(2)
	}

	source, err := os.ReadFile(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read input file %q: %v\n", *inPath, err)
		os.Exit(1)
	}

	result, err := compiler.Compile(string(source), filepath.Base(*inPath), target)
	if result != nil {
		for _, d := range result.Diagnostics {
			fmt.Fprintln(os.Stderr, d)
		}
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "compilation failed")
		os.Exit(1)
	}

	out := *outPath
	if out == "" {
		out = strings.TrimSuffix(*inPath, filepath.Ext(*inPath)) + ".asm"
	}
	if err := os.WriteFile(out, []byte(result.Assembly), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %q: %v\n", out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s\n", out)
}
