// Package link implements elfling's static linker: it turns a loaded
// relocatable object into the final self-extracting ELF image,
// spanning spec §4.6 end to end — entry lookup, reachable-section and
// import discovery, payload assembly, relocation application,
// compression, and stub splicing.
package link

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"

	"github.com/xyproto/elfling/internal/archdesc"
	"github.com/xyproto/elfling/internal/compress"
	"github.com/xyproto/elfling/internal/elfimg"
	"github.com/xyproto/elfling/internal/stub"
)

// DefaultMaxOut is the compressed-size cap used when Options.MaxOut is
// left at zero: large enough for anything the demoscene targets this
// tool at, small enough to catch a runaway parameter set quickly.
const DefaultMaxOut = 1 << 16

// ErrNoEntrySymbol is returned when an input object has no _start
// symbol: elfling has nothing to splice into the stub's jump target.
var ErrNoEntrySymbol = errors.New("link: no entry symbol")

// ErrUnknownRelocType and ErrUnresolvedImport name the two non-fatal
// relocation conditions spec §7 calls out; applyRelocations records them
// as warnings rather than failing the link. They are never returned as
// errors: the matching entries in Result.Warnings are plain strings
// that begin with these errors' messages.
var (
	ErrUnknownRelocType = errors.New("link: unknown relocation type")
	ErrUnresolvedImport = errors.New("link: unresolved import")
)

// Options controls one Link call.
type Options struct {
	// Coder is the shared arithmetic coder; callers reuse one across
	// repeated Link calls (e.g. the GA search spawns thousands of
	// trial compressions and should not reallocate the counter table
	// each time).
	Coder *compress.Coder

	// InitialParams seeds the GA search's genome 1, or is used as-is
	// when RunSearch is false. With RunSearch, a zero ContextCount lets
	// Search choose everything; without it, a zero ContextCount makes
	// Link return an error.
	InitialParams compress.Params

	// RunSearch, when true, runs the genetic-algorithm parameter
	// search (internal/compress.Search) instead of compressing once
	// with InitialParams.
	RunSearch bool
	RNG       *rand.Rand

	// MaxOut caps the compressed payload size; DefaultMaxOut if zero.
	MaxOut int

	// Strict makes a round-trip mismatch a fatal error instead of a
	// warning surfaced through Result.Warnings.
	Strict bool
}

// Result is everything a driver needs to write the output file and
// report on the link.
type Result struct {
	Image  []byte
	Arch   archdesc.Arch
	Params compress.Params

	Imports      []string
	SectionOrder []string
	PayloadSize  int
	Compressed   int
	FinalSize    int
	CommonBase   int

	// Warnings holds non-fatal diagnostics: unresolved imports,
	// unknown relocation types, round-trip mismatches.
	Warnings []string
}

// Link runs the full static-link pipeline over img and returns the
// finished self-extracting image.
func Link(img *elfimg.Image, opts Options) (*Result, error) {
	desc, err := archdesc.For(img.Arch)
	if err != nil {
		return nil, err
	}
	if opts.MaxOut == 0 {
		opts.MaxOut = DefaultMaxOut
	}
	if opts.Coder == nil {
		opts.Coder = compress.NewCoder()
	}

	symbols, err := img.Symbols()
	if err != nil {
		return nil, err
	}

	startShndx, startValue, err := findEntry(symbols)
	if err != nil {
		return nil, err
	}

	res := &Result{Arch: img.Arch}

	reachable, imports, common, _, err := discover(img, symbols, desc)
	if err != nil {
		return nil, err
	}

	h, err := stub.For(img.Arch)
	if err != nil {
		return nil, err
	}
	prefix, suffix, err := h.Split()
	if err != nil {
		return nil, err
	}
	preceding, err := h.PrecedingBytes()
	if err != nil {
		return nil, err
	}

	payload := append([]byte(nil), suffix...)
	tailoff := len(payload)
	hashOff := tailoff

	for _, name := range imports.Names() {
		switch desc.Arch {
		case archdesc.Arch386:
			payload = append(payload, 0xE9)
			payload = appendU32(payload, Hash(name))
		case archdesc.ArchAMD64:
			payload = append(payload, 0xFF, 0x25, 0, 0, 0, 0)
			payload = appendU64(payload, uint64(Hash(name)))
		}
	}
	payload = append(payload, make([]byte, desc.SlotWidth)...) // terminator slot

	entryPatch := uint32(len(payload)) + uint32(startValue) - uint32(tailoff)
	binary.LittleEndian.PutUint32(payload[tailoff-4:tailoff], entryPatch)

	startSection := img.SectionByIndex(startShndx)
	if startSection == nil {
		return nil, fmt.Errorf("link: _start references an invalid section index %d", startShndx)
	}

	layout, order, err := layoutSections(img, reachable)
	if err != nil {
		return nil, err
	}
	for _, name := range order {
		sec, _ := img.Section(name)
		layout[name] = len(payload)
		payload = append(payload, sec.Data...)
	}

	commonBase := roundUp256(len(payload))
	if _, ok := img.Section(".bss"); ok {
		layout[".bss"] = commonBase
	}

	warnings, err := applyRelocations(img, symbols, desc, layout, imports, common, commonBase, hashOff, payload)
	if err != nil {
		return nil, err
	}
	res.Warnings = append(res.Warnings, warnings...)

	params := opts.InitialParams
	var compResult compress.Result
	if opts.RunSearch {
		if opts.RNG == nil {
			return nil, fmt.Errorf("link: RunSearch requires a non-nil RNG")
		}
		params, compResult = compress.Search(opts.Coder, payload, opts.MaxOut, opts.InitialParams, opts.RNG)
		if _, verr := opts.Coder.Compress(params, payload, opts.MaxOut, opts.Strict); verr != nil {
			if _, ok := verr.(*compress.ErrRoundTripMismatch); !ok || opts.Strict {
				return nil, verr
			}
			res.Warnings = append(res.Warnings, verr.Error())
		}
	} else {
		if params.ContextCount == 0 {
			return nil, fmt.Errorf("link: InitialParams.ContextCount must be set when RunSearch is false")
		}
		compResult, err = opts.Coder.Compress(params, payload, opts.MaxOut, opts.Strict)
		if err != nil {
			if _, ok := err.(*compress.ErrRoundTripMismatch); !ok || opts.Strict {
				return nil, err
			}
			res.Warnings = append(res.Warnings, err.Error())
		} else if compResult.Data == nil {
			return nil, fmt.Errorf("link: compression produced no data")
		}
	}

	reversed := make([]byte, len(compResult.Data))
	for i, b := range compResult.Data {
		reversed[len(compResult.Data)-1-i] = b
	}

	final := append([]byte(nil), prefix...)
	final = append(final, preceding[:]...)
	final = append(final, reversed...)

	dataEnd := desc.Base + uint32(len(final)) - 4
	binary.LittleEndian.PutUint32(final[desc.PatchDataEnd:desc.PatchDataEnd+4], dataEnd)

	final = appendU32(final, uint32(len(payload))*8)
	final = append(final, params.Weights[:params.ContextCount]...)
	final = append(final, params.Contexts[:params.ContextCount]...)

	fileSize := len(final)
	if desc.PatchFileSizeWidth == 8 {
		binary.LittleEndian.PutUint64(final[desc.PatchFileSize:desc.PatchFileSize+8], uint64(fileSize))
	} else {
		binary.LittleEndian.PutUint32(final[desc.PatchFileSize:desc.PatchFileSize+4], uint32(fileSize))
	}

	res.Image = final
	res.Params = params
	res.Imports = imports.Names()
	res.SectionOrder = order
	res.PayloadSize = len(payload)
	res.Compressed = len(compResult.Data)
	res.FinalSize = fileSize
	res.CommonBase = commonBase
	return res, nil
}

func findEntry(symbols []elfimg.Symbol) (shndx uint16, value uint64, err error) {
	for _, s := range symbols {
		if s.Name == "_start" {
			return s.Shndx, s.Value, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: _start not found", ErrNoEntrySymbol)
}

// discover walks every architecture-appropriate relocation section and
// builds the reachable-section set, the ordered import set, and the
// SHN_COMMON offset table, per spec §4.6 step 2. ".text" is always
// reachable even if nothing relocates into it, since it is where
// _start conventionally lives and step 4.5's entry patch assumes it is
// laid out immediately after the import jump-table.
func discover(img *elfimg.Image, symbols []elfimg.Symbol, desc archdesc.Descriptor) (reachable map[string]struct{}, imports *ImportSet, common map[uint32]int, commonOff int, err error) {
	reachable = map[string]struct{}{".text": {}}
	imports = newImportSet()
	common = make(map[uint32]int)

	if bss, ok := img.Section(".bss"); ok {
		commonOff = int(bss.Header.Size)
	}

	for _, sec := range img.Sections {
		if !strings.HasPrefix(sec.Name, desc.RelSectionPrefix) {
			continue
		}
		relocs, rerr := img.Relocations(sec, desc.RelaHasAddend)
		if rerr != nil {
			return nil, nil, nil, 0, rerr
		}
		for _, r := range relocs {
			if int(r.Sym) >= len(symbols) {
				return nil, nil, nil, 0, fmt.Errorf("link: relocation in %s references out-of-range symbol %d", sec.Name, r.Sym)
			}
			sym := symbols[r.Sym]
			if sym.Shndx != elfimg.SHN_UNDEF && int(sym.Shndx) < len(img.Sections) {
				target := img.SectionByIndex(sym.Shndx)
				if target != nil && target.Name != ".bss" {
					reachable[target.Name] = struct{}{}
				}
			}
			if sym.Type == elfimg.STT_NOTYPE && sym.Bind == elfimg.STB_GLOBAL {
				imports.Add(sym.Name)
			}
			if sym.Shndx == elfimg.SHN_COMMON {
				if _, seen := common[sym.NameOff]; !seen {
					common[sym.NameOff] = commonOff
					commonOff += int(sym.Size)
				}
			}
		}
	}
	return reachable, imports, common, commonOff, nil
}

// layoutSections sorts reachable section names, .text-prefixed first,
// each group lexicographic, matching the deterministic iteration order
// an ordered map gives the original tool.
func layoutSections(img *elfimg.Image, reachable map[string]struct{}) (map[string]int, []string, error) {
	var textNames, otherNames []string
	for name := range reachable {
		if _, ok := img.Section(name); !ok {
			return nil, nil, fmt.Errorf("link: reachable section %q not present in object", name)
		}
		if strings.HasPrefix(name, ".text") {
			textNames = append(textNames, name)
		} else {
			otherNames = append(otherNames, name)
		}
	}
	sort.Strings(textNames)
	sort.Strings(otherNames)
	order := append(textNames, otherNames...)
	return make(map[string]int, len(order)), order, nil
}

// applyRelocations performs spec §4.6 step 5 over every relocation
// section matching desc.RelSectionPrefix whose target section made it
// into layout, mutating payload in place.
func applyRelocations(img *elfimg.Image, symbols []elfimg.Symbol, desc archdesc.Descriptor, layout map[string]int, imports *ImportSet, common map[uint32]int, commonBase, hashOff int, payload []byte) ([]string, error) {
	var warnings []string
	for _, sec := range img.Sections {
		if !strings.HasPrefix(sec.Name, desc.RelSectionPrefix) {
			continue
		}
		secName := sec.Name[len(desc.RelSectionPrefix)-1:]
		secOff, ok := layout[secName]
		if !ok {
			continue
		}
		relocs, err := img.Relocations(sec, desc.RelaHasAddend)
		if err != nil {
			return nil, err
		}
		for _, r := range relocs {
			if int(r.Sym) >= len(symbols) {
				return nil, fmt.Errorf("link: relocation in %s references out-of-range symbol %d", sec.Name, r.Sym)
			}
			sym := symbols[r.Sym]

			var b uint64
			switch {
			case sym.Shndx != elfimg.SHN_UNDEF && int(sym.Shndx) < len(img.Sections):
				target := img.SectionByIndex(sym.Shndx)
				b = uint64(desc.Base) + uint64(layout[target.Name]) + sym.Value
			case sym.Shndx == elfimg.SHN_COMMON:
				b = uint64(desc.Base) + uint64(commonBase) + uint64(common[sym.NameOff])
			case sym.Shndx == elfimg.SHN_UNDEF:
				idx, found := imports.IndexOf(sym.Name)
				if !found {
					warnings = append(warnings, fmt.Sprintf("%s: %s (referenced from %s)", ErrUnresolvedImport, sym.Name, secName))
					continue
				}
				b = uint64(hashOff) + uint64(desc.SlotWidth*idx) + uint64(desc.Base)
			default:
				warnings = append(warnings, fmt.Sprintf("unresolved section reference 0x%x (referenced from %s)", sym.Shndx, secName))
				continue
			}

			p := secOff + int(r.Offset)
			width := 4
			if img.Arch == archdesc.ArchAMD64 && r.Type == elfimg.R_X86_64_64 {
				width = 8
			}
			if p < 0 || p+width > len(payload) {
				return nil, fmt.Errorf("link: relocation in %s writes out of bounds at payload offset %d", sec.Name, p)
			}

			switch {
			case img.Arch == archdesc.Arch386 && r.Type == elfimg.R_386_32:
				addU32(payload[p:p+4], uint32(b)+desc.LoadBias)
			case img.Arch == archdesc.Arch386 && r.Type == elfimg.R_386_PC32:
				addU32(payload[p:p+4], uint32(b)-uint32(r.Offset)-uint32(secOff)-desc.Base)
			case img.Arch == archdesc.ArchAMD64 && r.Type == elfimg.R_X86_64_64:
				addU64(payload[p:p+8], b+uint64(desc.LoadBias)+uint64(r.Addend))
			case img.Arch == archdesc.ArchAMD64 && r.Type == elfimg.R_X86_64_32:
				addU32(payload[p:p+4], uint32(b)+desc.LoadBias+uint32(r.Addend))
			case img.Arch == archdesc.ArchAMD64 && r.Type == elfimg.R_X86_64_PC32:
				addU32(payload[p:p+4], uint32(b)-uint32(r.Offset)-uint32(secOff)-desc.Base+uint32(r.Addend))
			default:
				warnings = append(warnings, fmt.Sprintf("%s: %d in %s", ErrUnknownRelocType, r.Type, sec.Name))
			}
		}
	}
	return warnings, nil
}

func addU32(p []byte, delta uint32) {
	binary.LittleEndian.PutUint32(p, binary.LittleEndian.Uint32(p)+delta)
}

func addU64(p []byte, delta uint64) {
	binary.LittleEndian.PutUint64(p, binary.LittleEndian.Uint64(p)+delta)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func roundUp256(v int) int {
	return (v + 255) &^ 255
}
