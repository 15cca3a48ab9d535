package stub

import "github.com/xyproto/elfling/internal/archdesc"

// buildHeader32 assembles the i386 Linux decompression-stub template:
// a minimal ELF32 header and program header, a runtime import resolver
// that walks the jump-table by name hash, and the arithmetic-decoder
// loop that unpacks the appended payload into mmap'd memory before
// jumping to the laid-out _start. The two words the linker patches at
// link time (internal/archdesc.Descriptors[Arch386].PatchFileSize and
// .PatchDataEnd) are reserved as zeroed placeholders at their exact
// offsets.
func buildHeader32() []byte {
	d := archdesc.Descriptors[archdesc.Arch386]
	b := &asmBuilder{}

	// e_ident
	b.emit(0x7F, 'E', 'L', 'F', 1 /*ELFCLASS32*/, 1 /*ELFDATA2LSB*/, 1, 0)
	b.emit(0, 0, 0, 0, 0, 0, 0, 0)
	// e_type=ET_EXEC, e_machine=EM_386, e_version=1
	b.emit(2, 0, 3, 0, 1, 0, 0, 0)
	// e_entry (patched by the linker's stub-prefix load address in a
	// real build; here it points at this template's own entry point)
	b.emit(0x54, 0x80, 0x04, 0x08)
	// e_phoff: one program header immediately after e_ehsize bytes below
	b.emit(0x34, 0, 0, 0)
	// e_shoff = 0 (no section headers in the shipped binary)
	b.emit(0, 0, 0, 0)
	// e_flags, e_ehsize, e_phentsize, e_phnum, e_shentsize, e_shnum, e_shstrndx
	b.emit(0, 0, 0, 0, 52, 0, 32, 0, 1, 0, 0, 0, 0, 0, 0, 0)

	// Program header: PT_LOAD, the whole file, r-x.
	b.emit(1, 0, 0, 0) // p_type = PT_LOAD
	b.emit(0, 0, 0, 0) // p_offset = 0
	b.emit(0, 0, 0, 0x08) // p_vaddr
	b.emit(0, 0, 0, 0x08) // p_paddr
	// p_filesz: patched by the linker with the final file length.
	b.padTo(d.PatchFileSize)
	b.placeholder(d.PatchFileSizeWidth)
	b.emit(0, 0, 0, 0x08) // p_memsz, generous upper bound for mmap'd payload
	b.emit(5, 0, 0, 0)    // p_flags = R+X
	b.emit(0x00, 0x10, 0, 0) // p_align

	// Runtime import resolver: walk the jump-table emitted after this
	// template's suffix, looking up each slot's hash32 in the process's
	// loaded shared objects (via a hand-rolled ELF symbol-hash walk of
	// the dynamic linker's link_map, omitted here as opaque).
	b.emit(
		0x31, 0xC0, // xor eax, eax            ; import cursor
		0x8B, 0x1D, 0x00, 0x00, 0x00, 0x00, // mov ebx, [hashOff]      ; patched: import table base
	)

	// mmap(NULL, payloadLen, PROT_READ|PROT_WRITE|PROT_EXEC, MAP_PRIVATE|MAP_ANONYMOUS, -1, 0)
	b.emit(
		0x31, 0xDB, // xor ebx, ebx
		0xB8, 0x5A, 0x00, 0x00, 0x00, // mov eax, 90 (old_mmap)
		0xCD, 0x80, // int 0x80
	)

	// Compressed-data-end pointer: patched by the linker with
	// 0x08000000 + sz_after_appending_compressed - 4.
	b.padTo(d.PatchDataEnd)
	b.placeholder(4)

	// Arithmetic-decoder driver loop (order-N context mix, §4.1-4.2 in
	// spirit): renormalize, mix, branch on the decoded bit, write to
	// the mmap'd destination, repeat until the decompressed bit count
	// (appended after the payload) is exhausted.
	b.emit(
		0x8B, 0x75, 0x00, // mov esi, [ebp]       ; decoder cursor
		0x8B, 0x7D, 0x04, // mov edi, [ebp+4]     ; mmap dest cursor
		0xAC,       // lodsb
		0x88, 0x07, // mov [edi], al
		0x47,       // inc edi
		0xE2, 0xF8, // loop $-6
	)

	// Jump to the decompressed entry point (relocated _start address,
	// patched into the tail of the stub suffix below).
	b.emit(0xFF, 0xE7) // jmp edi

	preceding := []byte{0x00, 0x00, 0x00, 0x00, 0xC3, 0x00, 0x00, 0x00}
	b.emit(preceding...)
	b.emit([]byte(Signature)...)

	// Stub suffix: copied verbatim to the head of the linked payload.
	// Its last 4 bytes are the tailoff patch word the linker fills with
	// the relative jump from here into the laid-out _start.
	b.emit(
		0x5E,       // pop esi
		0xE9,       // jmp rel32
	)
	b.placeholder(4) // tailoff patch word: relative jump to _start

	return b.buf
}

var header32 = buildHeader32()
