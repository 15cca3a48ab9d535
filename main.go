// Completion: driver for the elfling linking compressor.
package main

import (
	"fmt"
	"math/rand"
	"os"

	"github.com/xyproto/env/v2"
	"golang.org/x/sys/unix"

	"github.com/xyproto/elfling/internal/compress"
	"github.com/xyproto/elfling/internal/diag"
	"github.com/xyproto/elfling/internal/elfimg"
	"github.com/xyproto/elfling/internal/link"
)

const versionString = "elfling 1.0.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	// Environment-driven defaults, seeded before flags so an explicit
	// -o/-fverbose on the command line still wins.
	defaultOut := env.Str("ELFLING_OUT", "c.out")
	defaultVerbose := env.Bool("ELFLING_VERBOSE")

	args := parseArgs(argv)
	inputs := args.inputs()
	if len(inputs) != 1 {
		fmt.Fprint(os.Stderr, usage())
		return 1
	}

	outPath := args.last('o', defaultOut)
	verbose := defaultVerbose || args.has('f', "verbose")
	logger := diag.Stderr(verbose)

	// -c only seeds genome 1 of the search (spec §4.4); the GA still
	// runs its full 100 generations and may do better than the seed.
	var initial compress.Params
	if cvals := args['c']; len(cvals) > 0 {
		p, err := compress.ParseParams(cvals[len(cvals)-1])
		if err != nil {
			logger.Fatalf("%s: %v", progName, err)
			return 1
		}
		initial = p
	}

	raw, err := os.ReadFile(inputs[0])
	if err != nil {
		logger.Fatalf("%s: %v", progName, err)
		return 1
	}

	img, err := elfimg.Load(raw)
	if err != nil {
		logger.Fatalf("%s: %v", progName, err)
		return 1
	}
	logger.Logf("loaded %s: arch=%v sections=%d", inputs[0], img.Arch, len(img.Sections))

	res, err := link.Link(img, link.Options{
		InitialParams: initial,
		RunSearch:     true,
		RNG:           rand.New(rand.NewSource(1)),
	})
	if err != nil {
		logger.Fatalf("%s: %v", progName, err)
		return 1
	}
	for _, w := range res.Warnings {
		logger.Warnf("%s", w)
	}
	logger.Logf("imports: %v", res.Imports)
	logger.Logf("section order: %v", res.SectionOrder)
	logger.Logf("payload=%d compressed=%d final=%d commonbase=%d params=%s",
		res.PayloadSize, res.Compressed, res.FinalSize, res.CommonBase, res.Params)

	if err := os.WriteFile(outPath, res.Image, 0o755); err != nil {
		logger.Fatalf("%s: writing %s: %v", progName, outPath, err)
		return 1
	}

	if err := mmapSelfTest(outPath); err != nil {
		logger.Warnf("self-test: %s is not mmap-able: %v", outPath, err)
	} else {
		logger.Logf("self-test: %s maps cleanly (%d bytes)", outPath, len(res.Image))
	}

	return 0
}

// mmapSelfTest exercises the same mmap syscall surface the packed
// binary itself relies on at load time, confirming the produced file
// is at minimum valid enough to be memory-mapped read-only before a
// demoscene author ships it.
func mmapSelfTest(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("empty file")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(info.Size()), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return fmt.Errorf("mmap: %w", err)
	}
	defer unix.Munmap(data)

	if len(data) < 4 || data[0] != 0x7F || data[1] != 'E' || data[2] != 'L' || data[3] != 'F' {
		return fmt.Errorf("mapped file does not start with ELF magic")
	}
	return nil
}
