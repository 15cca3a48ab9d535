// Command pack exercises internal/compress directly on arbitrary
// files, independent of the ELF linking pipeline — useful for
// benchmarking the coder and parameter search against payloads that
// are not themselves relocatable objects.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"

	"golang.org/x/sys/unix"

	"github.com/xyproto/elfling/internal/compress"
)

func main() {
	var (
		mode    = flag.String("mode", "pack", "pack or unpack")
		inPath  = flag.String("in", "", "input file")
		outPath = flag.String("out", "", "output file")
		params  = flag.String("params", "", "CompressionParameters textual form (required for unpack, optional seed for pack)")
		search  = flag.String("search", "ga", "parameter search strategy for pack: ga or brute")
		maxOut  = flag.Int("maxout", compress.MaxContextSize, "maximum compressed size")
		outLen  = flag.Int("outlen", 0, "decompressed length (required for unpack)")
		lock    = flag.Bool("lock", false, "mlock the input buffer while processing (golang.org/x/sys/unix)")
	)
	flag.Parse()

	if *inPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: pack -mode=pack|unpack -in=<path> -out=<path> [-params=<hex>] [-search=ga|brute]")
		os.Exit(1)
	}

	data, err := os.ReadFile(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pack: %v\n", err)
		os.Exit(1)
	}

	if *lock {
		if err := unix.Mlock(data); err != nil {
			fmt.Fprintf(os.Stderr, "pack: mlock: %v\n", err)
		} else {
			defer unix.Munlock(data)
		}
	}

	coder := compress.NewCoder()

	switch *mode {
	case "pack":
		if err := runPack(coder, data, *outPath, *params, *search, *maxOut); err != nil {
			fmt.Fprintf(os.Stderr, "pack: %v\n", err)
			os.Exit(1)
		}
	case "unpack":
		if err := runUnpack(coder, data, *outPath, *params, *outLen); err != nil {
			fmt.Fprintf(os.Stderr, "pack: %v\n", err)
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "pack: unknown mode %q\n", *mode)
		os.Exit(1)
	}
}

func runPack(coder *compress.Coder, data []byte, outPath, paramsStr, search string, maxOut int) error {
	var p compress.Params
	if paramsStr != "" {
		var err error
		p, err = compress.ParseParams(paramsStr)
		if err != nil {
			return err
		}
	}

	var res compress.Result
	var best compress.Params
	var err error
	switch search {
	case "brute":
		best, res, err = compress.BruteForceSearch(coder, data, maxOut)
	default:
		best, res = compress.Search(coder, data, maxOut, p, rand.New(rand.NewSource(1)))
	}
	if err != nil {
		return err
	}

	fmt.Printf("params: %s\n", best)
	fmt.Printf("in=%d out=%d (%.1f%%) maxprobe=%d\n", len(data), len(res.Data), 100*float64(len(res.Data))/float64(len(data)+1), res.Stats.MaxProbeOffset)
	return os.WriteFile(outPath, reverse(res.Data), 0o644)
}

// reverse undoes Compress's forward byte order, matching the layout the
// packed ELF stub's decoder expects (spec §4.3): Decompress always
// reads a reversed stream.
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}

func runUnpack(coder *compress.Coder, data []byte, outPath, paramsStr string, outLen int) error {
	if paramsStr == "" {
		return fmt.Errorf("unpack requires -params")
	}
	if outLen <= 0 {
		return fmt.Errorf("unpack requires -outlen > 0")
	}
	p, err := compress.ParseParams(paramsStr)
	if err != nil {
		return err
	}
	out, err := coder.Decompress(p, data, outLen)
	if err != nil {
		return err
	}
	return os.WriteFile(outPath, out, 0o644)
}
