// Package archdesc describes the two target architectures elfling links
// for: i386 and x86_64. Everything that differs between the two stub
// templates — jump-table slot width, whether relocations carry an
// explicit addend, and the fixed patch offsets baked into the precompiled
// stub machine code — lives in one small descriptor table here instead of
// being scattered across type-switches.
package archdesc

import (
	"errors"
	"fmt"
)

// ErrUnsupportedArch is the sentinel wrapped whenever an e_machine
// value or Arch has no descriptor: elfling targets i386 and x86_64
// only, per spec's Non-goals.
var ErrUnsupportedArch = errors.New("archdesc: unsupported architecture")

// Arch identifies one of the two supported target architectures.
type Arch int

const (
	// ArchUnknown is the zero value; never a valid target.
	ArchUnknown Arch = iota
	// Arch386 is the i386 / EM_386 target.
	Arch386
	// ArchAMD64 is the x86_64 / EM_X86_64 target.
	ArchAMD64
)

func (a Arch) String() string {
	switch a {
	case Arch386:
		return "i386"
	case ArchAMD64:
		return "x86_64"
	default:
		return "unknown"
	}
}

// ELF e_machine values this tool accepts.
const (
	EM_386    = 3
	EM_X86_64 = 62
)

// FromMachine maps an ELF e_machine value to an Arch.
func FromMachine(machine uint16) (Arch, error) {
	switch machine {
	case EM_386:
		return Arch386, nil
	case EM_X86_64:
		return ArchAMD64, nil
	default:
		return ArchUnknown, fmt.Errorf("%w: e_machine %d (supported: EM_386=%d, EM_X86_64=%d)", ErrUnsupportedArch, machine, EM_386, EM_X86_64)
	}
}

// Descriptor bundles everything the linker needs that varies by
// architecture. A rebuild of a stub's assembly can shift PatchFileSize
// or PatchDataEnd; keeping them named here (rather than inlined at call
// sites) is what makes such a shift a one-line fix instead of a hunt.
type Descriptor struct {
	Arch Arch

	// SlotWidth is the size in bytes of one import jump-table slot:
	// 5 on i386 (E9 + hash32), 14 on x86_64 (FF 25 00000000 + hash64).
	SlotWidth int

	// RelaHasAddend is true for x86_64 (.rela.* sections carry an
	// explicit r_addend) and false for i386 (.rel.* sections do not;
	// the addend is implicit in the relocated word).
	RelaHasAddend bool

	// RelSectionPrefix is the section-name prefix this architecture's
	// relocations are read from: ".rel." for i386, ".rela." for x86_64.
	// The two prefixes are never mixed for a single input object.
	RelSectionPrefix string

	// LoadBias is the constant added to every absolute (non-PC-relative)
	// relocated word to match the stub template's load bias. Part of the ABI with the stub;
	// must be reproduced verbatim.
	LoadBias uint32

	// Base is the virtual base address sections are laid out from.
	Base uint32

	// PatchDataEnd is the file offset of the 32-bit little-endian word
	// in the stub prefix that must be patched with the address of the
	// last 4 bytes of the appended compressed payload (Base plus the
	// file length after that append, minus 4).
	PatchDataEnd int

	// PatchFileSize is the file offset of the field in the stub's ELF
	// header that must be patched with the final file length.
	PatchFileSize int

	// PatchFileSizeWidth is 4 (i386) or 8 (x86_64): the width of the
	// PatchFileSize field.
	PatchFileSizeWidth int
}

// Descriptors holds the fixed per-architecture constant tables. These
// numbers come from the stub templates' own layout and must stay in
// lock-step with whatever produced internal/stub's blobs.
var Descriptors = map[Arch]Descriptor{
	Arch386: {
		Arch:               Arch386,
		SlotWidth:          5,
		RelaHasAddend:      false,
		RelSectionPrefix:   ".rel.",
		LoadBias:           0x10000,
		Base:               0x08000000,
		PatchDataEnd:       0xD8,
		PatchFileSize:      0x7C,
		PatchFileSizeWidth: 4,
	},
	ArchAMD64: {
		Arch:               ArchAMD64,
		SlotWidth:          14,
		RelaHasAddend:      true,
		RelSectionPrefix:   ".rela.",
		LoadBias:           0x10000,
		Base:               0x08000000,
		PatchDataEnd:       0x169,
		PatchFileSize:      0xC8,
		PatchFileSizeWidth: 8,
	},
}

// For looks up the descriptor for a, returning an error for ArchUnknown
// or any value outside the two supported architectures.
func For(a Arch) (Descriptor, error) {
	d, ok := Descriptors[a]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %v", ErrUnsupportedArch, a)
	}
	return d, nil
}
