// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/elfsym/elfsym/arch"
)

// maxSections bounds the section count taken from section 0 under
// extended section numbering.
const maxSections = 1 << 24

// relocMachines lists the machines whose REL and RELA sections are
// decoded. Relocation sections of other machines are carried as Opaque
// content.
var relocMachines = map[elf.Machine]bool{
	elf.EM_X86_64: true,
	elf.EM_386:    true,
}

// Open opens the named ELF file, reads its header and section table,
// and loads the content of every section. The file is memory mapped
// where possible. The caller must Close the returned File.
func Open(name string) (*File, error) {
	fp, err := os.Open(name)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	st, err := fp.Stat()
	if err != nil {
		return nil, err
	}

	data, unmap, err := mapFile(fp, st.Size())
	if err != nil {
		// Mmaping failed or wasn't possible. Read into the heap.
		data, err = io.ReadAll(fp)
		if err != nil {
			return nil, err
		}
	}

	img := bytes.NewReader(data)
	f, err := Read(img)
	if err == nil {
		err = LoadSections(img, f)
	}
	if err != nil {
		if unmap != nil {
			unmap()
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	f.closer = unmap
	return f, nil
}

// Read reads the ELF header and the section header table from r. The
// section contents are not read; see LoadSections.
//
// r must remain readable until the File is serialized, because bytes
// outside every section are copied from it.
func Read(r io.ReaderAt) (*File, error) {
	var ident [elf.EI_NIDENT]byte
	if _, err := r.ReadAt(ident[:], 0); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNotELF
		}
		return nil, err
	}
	if ident[0] != '\x7f' || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F' {
		return nil, ErrNotELF
	}
	// If there are errors past this point, we assume it's ELF and we
	// should report the error.

	f := &File{src: r}
	f.Class = elf.Class(ident[elf.EI_CLASS])
	f.Data = elf.Data(ident[elf.EI_DATA])
	f.Version = elf.Version(ident[elf.EI_VERSION])
	f.OSABI = elf.OSABI(ident[elf.EI_OSABI])
	f.ABIVersion = ident[elf.EI_ABIVERSION]

	// Set per-class constants.
	var elfWordSize int
	var ehdrSize int
	switch f.Class {
	default:
		return nil, fmt.Errorf("unknown ELF class %s", f.Class)
	case elf.ELFCLASS32:
		elfWordSize = 4
		ehdrSize = 52
		f.symSize = elf.Sym32Size
		f.relSize = 4 + 4
		f.relaSize = 4 + 4 + 4
		f.shdrSize = 40
	case elf.ELFCLASS64:
		elfWordSize = 8
		ehdrSize = 64
		f.symSize = elf.Sym64Size
		f.relSize = 8 + 8
		f.relaSize = 8 + 8 + 8
		f.shdrSize = 64
	}
	var order binary.ByteOrder
	switch f.Data {
	default:
		return nil, fmt.Errorf("unknown ELF data encoding %s", f.Data)
	case elf.ELFDATA2LSB:
		order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		order = binary.BigEndian
	}
	f.Layout = arch.NewLayout(order, elfWordSize)

	// Read the rest of the file header.
	ehdr := make([]byte, ehdrSize)
	if _, err := r.ReadAt(ehdr, 0); err != nil {
		return nil, fmt.Errorf("reading ELF header: %w", err)
	}
	hr := NewReader(ehdr, f.Layout)
	hr.SetOffset(elf.EI_NIDENT)
	f.Type = elf.Type(hr.Uint16())
	f.Machine = elf.Machine(hr.Uint16())
	if v := hr.Uint32(); v != uint32(f.Version) {
		return nil, fmt.Errorf("mismatched ELF version %d, ident says %d", v, f.Version)
	}
	f.Entry = hr.Word()
	f.Phoff = hr.Word()
	f.Shoff = hr.Word()
	f.Flags = hr.Uint32()
	f.Ehsize = hr.Uint16()
	f.Phentsize = hr.Uint16()
	f.Phnum = hr.Uint16()
	f.Shentsize = hr.Uint16()
	shnum := int(hr.Uint16())
	shstrndx := int(hr.Uint16())
	if int(f.Ehsize) < ehdrSize {
		return nil, fmt.Errorf("ELF header size %d is smaller than %d", f.Ehsize, ehdrSize)
	}

	f.Arch = arch.ForMachine(f.Machine)

	f.srcSize = uint64(f.Ehsize)
	if f.Phnum > 0 {
		f.srcSize = max(f.srcSize, f.Phoff+uint64(f.Phnum)*uint64(f.Phentsize))
	}

	if f.Shoff == 0 {
		// No section header table.
		if shnum != 0 || shstrndx != 0 {
			return nil, fmt.Errorf("invalid ELF shnum=%d, shstrndx=%d for shoff=0", shnum, shstrndx)
		}
		return f, nil
	}
	if uint64(f.Shentsize) != f.shdrSize {
		return nil, fmt.Errorf("invalid ELF section header entry size %d, want %d", f.Shentsize, f.shdrSize)
	}

	// Section 0 carries the real count and name table index when they
	// overflow the file header fields.
	shdr := make([]byte, f.shdrSize)
	if _, err := r.ReadAt(shdr, int64(f.Shoff)); err != nil {
		return nil, fmt.Errorf("reading section header 0: %w", err)
	}
	s0 := f.decodeSectionHeader(shdr)
	if shnum == 0 {
		if s0.Size > maxSections {
			return nil, fmt.Errorf("invalid ELF section count %d", s0.Size)
		}
		shnum = int(s0.Size)
	}
	if shstrndx == int(elf.SHN_XINDEX) {
		shstrndx = int(s0.Link)
	}
	if shnum == 0 {
		return nil, fmt.Errorf("section header table at %#x has no entries", f.Shoff)
	}
	if shstrndx >= shnum {
		return nil, fmt.Errorf("invalid ELF shstrndx=%d for shnum=%d", shstrndx, shnum)
	}
	f.Shnum = shnum
	f.Shstrndx = shstrndx

	// Read the section header table.
	tab := make([]byte, uint64(shnum)*f.shdrSize)
	if _, err := r.ReadAt(tab, int64(f.Shoff)); err != nil {
		return nil, fmt.Errorf("reading section header table: %w", err)
	}
	f.srcSize = max(f.srcSize, f.Shoff+uint64(len(tab)))
	f.Sections = make([]*Section, shnum)
	nameOffs := make([]uint32, shnum)
	for i := range f.Sections {
		s := f.decodeSectionHeader(tab[uint64(i)*f.shdrSize:])
		nameOffs[i] = s.nameOff
		s.loaded = true
		s.origSize = s.Size
		f.Sections[i] = s
		if i > 0 && s.hasFileData() {
			f.srcSize = max(f.srcSize, s.end())
		}
	}

	// Resolve section names.
	if shstrndx != int(elf.SHN_UNDEF) {
		shstr := f.Sections[shstrndx]
		if shstr.Type != elf.SHT_STRTAB {
			return nil, fmt.Errorf("section name table [%d] has type %s", shstrndx, shstr.Type)
		}
		names := make([]byte, shstr.Size)
		if _, err := r.ReadAt(names, int64(shstr.Offset)); err != nil {
			return nil, fmt.Errorf("reading section name table: %w", err)
		}
		for i, s := range f.Sections {
			if nameOffs[i] == 0 {
				continue
			}
			if uint64(nameOffs[i]) >= uint64(len(names)) {
				return nil, fmt.Errorf("section %d name offset %d out of range", i, nameOffs[i])
			}
			s.Name = string(NewReader(names[nameOffs[i]:], f.Layout).CString())
		}
	}

	return f, nil
}

// decodeSectionHeader decodes one section header from b.
func (f *File) decodeSectionHeader(b []byte) *Section {
	r := NewReader(b[:f.shdrSize], f.Layout)
	s := &Section{}
	s.nameOff = r.Uint32()
	s.Type = elf.SectionType(r.Uint32())
	s.Flags = elf.SectionFlag(r.Word())
	s.Addr = r.Word()
	s.Offset = r.Word()
	s.Size = r.Word()
	s.Link = r.Uint32()
	s.Info = r.Uint32()
	s.Addralign = r.Word()
	s.Entsize = r.Word()
	return s
}

// encodeSectionHeader encodes s's header into b, using nameOff as the
// name's offset in the section name table.
func (f *File) encodeSectionHeader(b []byte, s *Section, nameOff uint32, size uint64, link uint32) {
	w := newWriter(b[:f.shdrSize], f.Layout)
	w.uint32(nameOff)
	w.uint32(uint32(s.Type))
	w.word(uint64(s.Flags))
	w.word(s.Addr)
	w.word(s.Offset)
	w.word(size)
	w.uint32(link)
	w.uint32(s.Info)
	w.word(s.Addralign)
	w.word(s.Entsize)
}

// decodesRelocs reports whether relocation sections can be decoded on
// f's machine.
func (f *File) decodesRelocs() bool {
	return relocMachines[f.Machine]
}
