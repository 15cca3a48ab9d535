package link

import (
	"encoding/binary"
)

// buildELF32Object assembles, by hand, a minimal ET_REL i386 object:
// one .text section defining _start and calling an external "puts",
// backed by real .symtab/.strtab/.shstrtab/.rel.text sections. This
// exercises the linker the same way spec §8 scenario 2 describes
// ("one .text calling one external puts") without depending on a
// real assembler/linker toolchain.
func buildELF32Object() []byte {
	le := binary.LittleEndian

	text := []byte{
		0xB8, 0x00, 0x00, 0x00, 0x00, // mov eax, 0           ; _start
		0xE8, 0x00, 0x00, 0x00, 0x00, // call puts (rel32, relocated)
		0xC3, // ret
	}
	const relOffset = 6 // offset of the call's rel32 operand

	strtab := []byte{0}
	addStr := func(s string) uint32 {
		off := uint32(len(strtab))
		strtab = append(strtab, []byte(s)...)
		strtab = append(strtab, 0)
		return off
	}
	startNameOff := addStr("_start")
	putsNameOff := addStr("puts")

	sym32 := func(nameOff uint32, bind, typ uint8, shndx uint16, value uint32) []byte {
		e := make([]byte, 16)
		le.PutUint32(e[0:4], nameOff)
		le.PutUint32(e[4:8], value)
		le.PutUint32(e[8:12], 0)
		e[12] = bind<<4 | typ
		le.PutUint16(e[14:16], shndx)
		return e
	}
	var symtab []byte
	symtab = append(symtab, sym32(0, 0, 0, 0, 0)...)                 // STN_UNDEF
	symtab = append(symtab, sym32(startNameOff, 1, 2, 1, 0)...)      // _start: GLOBAL FUNC in .text
	symtab = append(symtab, sym32(putsNameOff, 1, 0, 0, 0)...)       // puts: GLOBAL NOTYPE, external
	const putsSymIndex = 2

	rel := make([]byte, 8)
	le.PutUint32(rel[0:4], relOffset)
	le.PutUint32(rel[4:8], uint32(putsSymIndex)<<8|2) // R_386_PC32 = 2

	return assembleELF32(text, rel, symtab, strtab)
}

func assembleELF32(text, rel, symtab, strtab []byte) []byte {
	le := binary.LittleEndian

	shstrtab := []byte{0}
	addShName := func(s string) uint32 {
		off := uint32(len(shstrtab))
		shstrtab = append(shstrtab, []byte(s)...)
		shstrtab = append(shstrtab, 0)
		return off
	}
	nameText := addShName(".text")
	nameRel := addShName(".rel.text")
	nameSymtab := addShName(".symtab")
	nameStrtab := addShName(".strtab")
	nameShstrtab := addShName(".shstrtab")

	const ehdrSize = 52
	textOff := uint32(ehdrSize)
	relOff := textOff + uint32(len(text))
	symtabOff := relOff + uint32(len(rel))
	strtabOff := symtabOff + uint32(len(symtab))
	shstrtabOff := strtabOff + uint32(len(strtab))
	shoff := shstrtabOff + uint32(len(shstrtab))

	const shnum = 6
	raw := make([]byte, int(shoff)+shnum*40)

	// e_ident
	copy(raw[0:16], []byte{0x7F, 'E', 'L', 'F', 1, 1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0})
	le.PutUint16(raw[16:18], 1)  // e_type = ET_REL
	le.PutUint16(raw[18:20], 3) // e_machine = EM_386
	le.PutUint32(raw[20:24], 1) // e_version
	le.PutUint32(raw[32:36], shoff)
	le.PutUint16(raw[40:42], ehdrSize)
	le.PutUint16(raw[46:48], 40) // e_shentsize
	le.PutUint16(raw[48:50], shnum)
	le.PutUint16(raw[50:52], 5) // e_shstrndx

	copy(raw[textOff:], text)
	copy(raw[relOff:], rel)
	copy(raw[symtabOff:], symtab)
	copy(raw[strtabOff:], strtab)
	copy(raw[shstrtabOff:], shstrtab)

	writeShdr := func(idx int, name, typ, offset, size, link, info, addralign, entsize uint32) {
		base := int(shoff) + idx*40
		e := raw[base : base+40]
		le.PutUint32(e[0:4], name)
		le.PutUint32(e[4:8], typ)
		le.PutUint32(e[16:20], offset)
		le.PutUint32(e[20:24], size)
		le.PutUint32(e[24:28], link)
		le.PutUint32(e[28:32], info)
		le.PutUint32(e[32:36], addralign)
		le.PutUint32(e[36:40], entsize)
	}
	writeShdr(0, 0, 0, 0, 0, 0, 0, 0, 0) // SHT_NULL
	writeShdr(1, nameText, 1 /*PROGBITS*/, textOff, uint32(len(text)), 0, 0, 1, 0)
	writeShdr(2, nameRel, 9 /*REL*/, relOff, uint32(len(rel)), 3 /*.symtab*/, 1 /*.text*/, 4, 8)
	writeShdr(3, nameSymtab, 2 /*SYMTAB*/, symtabOff, uint32(len(symtab)), 4 /*.strtab*/, 1, 4, 16)
	writeShdr(4, nameStrtab, 3 /*STRTAB*/, strtabOff, uint32(len(strtab)), 0, 0, 1, 0)
	writeShdr(5, nameShstrtab, 3 /*STRTAB*/, shstrtabOff, uint32(len(shstrtab)), 0, 0, 1, 0)

	return raw
}
