// Command bin2go emits an arbitrary binary file as a Go source file
// declaring a byte slice variable, the Go counterpart of the original
// tool's bin2h.c (which emitted a C header instead).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
)

func main() {
	var (
		inPath  = flag.String("in", "", "input binary file")
		outPath = flag.String("out", "", "output .go file")
		varName = flag.String("var", "Data", "exported variable name")
		pkgName = flag.String("pkg", "main", "package name for the generated file")
	)
	flag.Parse()

	if *inPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: bin2go -in=<path> -out=<path.go> [-var=Name] [-pkg=name]")
		os.Exit(1)
	}

	data, err := os.ReadFile(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bin2go: %v\n", err)
		os.Exit(1)
	}
	if len(data) == 0 {
		fmt.Fprintf(os.Stderr, "bin2go: %s is empty\n", *inPath)
		os.Exit(1)
	}

	f, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bin2go: %v\n", err)
		os.Exit(1)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "package %s\n\nvar %s = []byte{", *pkgName, *varName)
	for i, b := range data {
		if i&15 == 0 {
			fmt.Fprint(w, "\n\t")
		}
		fmt.Fprintf(w, "0x%02x, ", b)
	}
	fmt.Fprint(w, "\n}\n")
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "bin2go: %v\n", err)
		os.Exit(1)
	}
}
