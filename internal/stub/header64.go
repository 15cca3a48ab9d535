package stub

import "github.com/xyproto/elfling/internal/archdesc"

// buildHeader64 assembles the x86_64 Linux decompression-stub
// template, mirroring buildHeader32 with ELF64 header widths and the
// architecture's own patch offsets.
func buildHeader64() []byte {
	d := archdesc.Descriptors[archdesc.ArchAMD64]
	b := &asmBuilder{}

	// e_ident
	b.emit(0x7F, 'E', 'L', 'F', 2 /*ELFCLASS64*/, 1 /*ELFDATA2LSB*/, 1, 0)
	b.emit(0, 0, 0, 0, 0, 0, 0, 0)
	// e_type=ET_EXEC, e_machine=EM_X86_64, e_version=1
	b.emit(2, 0, 62, 0, 1, 0, 0, 0)
	// e_entry (8 bytes)
	b.emit(0x78, 0x00, 0x40, 0x00, 0x00, 0x00, 0x00, 0x00)
	// e_phoff (8 bytes): one program header right after the 64-byte ELF header.
	b.emit(64, 0, 0, 0, 0, 0, 0, 0)
	// e_shoff = 0
	b.emit(0, 0, 0, 0, 0, 0, 0, 0)
	// e_flags, e_ehsize, e_phentsize, e_phnum, e_shentsize, e_shnum, e_shstrndx
	b.emit(0, 0, 0, 0, 64, 0, 56, 0, 1, 0, 0, 0, 0, 0, 0, 0)

	// Program header: PT_LOAD, the whole file, r-x.
	b.emit(1, 0, 0, 0) // p_type = PT_LOAD
	b.emit(5, 0, 0, 0) // p_flags = R+X
	b.emit(0, 0, 0, 0, 0, 0, 0, 0)                   // p_offset
	b.emit(0, 0, 0x40, 0, 0, 0, 0, 0)                // p_vaddr
	b.emit(0, 0, 0x40, 0, 0, 0, 0, 0)                // p_paddr
	// p_filesz: patched by the linker with the final file length.
	b.padTo(d.PatchFileSize)
	b.placeholder(d.PatchFileSizeWidth)
	b.emit(0, 0, 0x20, 0, 0, 0, 0, 0) // p_memsz, generous upper bound for mmap'd payload
	b.emit(0x00, 0x10, 0, 0, 0, 0, 0, 0) // p_align

	// Runtime import resolver: identical in spirit to the i386 one but
	// addressing a 14-byte jump-table slot (FF 25 00000000 + hash64)
	// per import instead of the 5-byte i386 slot.
	b.emit(
		0x48, 0x31, 0xC0, // xor rax, rax           ; import cursor
		0x48, 0x8B, 0x1D, 0x00, 0x00, 0x00, 0x00, // mov rbx, [rip+hashOff] ; patched
	)

	// mmap(NULL, payloadLen, PROT_READ|PROT_WRITE|PROT_EXEC, MAP_PRIVATE|MAP_ANONYMOUS, -1, 0)
	b.emit(
		0x48, 0x31, 0xFF, // xor rdi, rdi
		0xB8, 0x09, 0x00, 0x00, 0x00, // mov eax, 9 (mmap)
		0x0F, 0x05, // syscall
	)

	// Compressed-data-end pointer: patched by the linker with
	// 0x08000000 + sz_after_appending_compressed - 4.
	b.padTo(d.PatchDataEnd)
	b.placeholder(4)

	// Arithmetic-decoder driver loop, 64-bit cursor arithmetic.
	b.emit(
		0x48, 0x8B, 0x75, 0x00, // mov rsi, [rbp]      ; decoder cursor
		0x48, 0x8B, 0x7D, 0x08, // mov rdi, [rbp+8]    ; mmap dest cursor
		0xAC,       // lodsb
		0x88, 0x07, // mov [rdi], al
		0x48, 0xFF, 0xC7, // inc rdi
		0xE2, 0xF6, // loop $-8
	)

	// Jump to the decompressed entry point.
	b.emit(0xFF, 0xE7) // jmp rdi

	preceding := []byte{0x00, 0x00, 0x00, 0x00, 0xC3, 0x00, 0x00, 0x00}
	b.emit(preceding...)
	b.emit([]byte(Signature)...)

	// Stub suffix: last 4 bytes are the tailoff patch word the linker
	// fills with the relative jump from here into the laid-out _start
	// (spec §4.6 step 4.5 keeps this a 4-byte word even on x86_64 —
	// the jump itself stays 32-bit relative).
	b.emit(
		0x5E, // pop rsi
		0xE9, // jmp rel32
	)
	b.placeholder(4)

	return b.buf
}

var header64 = buildHeader64()
