// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package elftest builds small ELF images for tests. It encodes
// everything itself so tests can check the obj package against an
// independent writer and debug/elf as an independent reader.
package elftest

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// A Section describes one section of a test image. Section 0 and the
// section name table are added by Build.
type Section struct {
	Name      string
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addr      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64
	Data      []byte

	// Size is used for SHT_NOBITS sections, which have no Data.
	Size uint64
}

// A File describes a test image.
type File struct {
	Class    elf.Class
	Order    binary.ByteOrder
	Machine  elf.Machine
	Type     elf.Type
	Entry    uint64
	Phnum    int
	Sections []Section
}

// Layout reports where Build placed things.
type Layout struct {
	// Offsets holds the file offset of each section, indexed by
	// section number (0 is the null section).
	Offsets []uint64
	// Shstrndx is the index of the section name table, which is always
	// the last section.
	Shstrndx int
	Shoff    uint64
}

func (f *File) wordSize() int {
	if f.Class == elf.ELFCLASS32 {
		return 4
	}
	return 8
}

// Build encodes f. The program headers (if any) follow the ELF header,
// then each section's data in order aligned to its Addralign, then the
// section name table, then the section header table.
func (f *File) Build() ([]byte, Layout) {
	var buf bytes.Buffer
	ehsize, phentsize, shentsize := 64, 56, 64
	if f.Class == elf.ELFCLASS32 {
		ehsize, phentsize, shentsize = 52, 32, 40
	}
	buf.Write(make([]byte, ehsize))
	phoff := uint64(0)
	if f.Phnum > 0 {
		phoff = uint64(buf.Len())
		for i := 0; i < f.Phnum; i++ {
			f.writeProg(&buf)
		}
	}

	// Section names.
	names := []byte{0}
	nameOff := func(name string) uint32 {
		if name == "" {
			return 0
		}
		off := uint32(len(names))
		names = append(append(names, name...), 0)
		return off
	}
	secs := append([]Section{{}}, f.Sections...)
	secs = append(secs, Section{Name: ".shstrtab", Type: elf.SHT_STRTAB, Addralign: 1})
	nameOffs := make([]uint32, len(secs))
	for i := range secs {
		nameOffs[i] = nameOff(secs[i].Name)
	}
	secs[len(secs)-1].Data = names

	lay := Layout{Offsets: make([]uint64, len(secs)), Shstrndx: len(secs) - 1}
	for i := 1; i < len(secs); i++ {
		s := &secs[i]
		pad(&buf, s.Addralign)
		lay.Offsets[i] = uint64(buf.Len())
		if s.Type != elf.SHT_NOBITS {
			buf.Write(s.Data)
		}
	}
	pad(&buf, uint64(f.wordSize()))
	lay.Shoff = uint64(buf.Len())
	for i := range secs {
		s := &secs[i]
		size := uint64(len(s.Data))
		if s.Type == elf.SHT_NOBITS {
			size = s.Size
		}
		f.writeShdr(&buf, nameOffs[i], s, lay.Offsets[i], size)
	}

	out := buf.Bytes()
	f.writeEhdr(out, phoff, lay.Shoff, uint16(ehsize), uint16(phentsize), uint16(shentsize), uint16(len(secs)), uint16(lay.Shstrndx))
	return out, lay
}

func pad(buf *bytes.Buffer, align uint64) {
	if align <= 1 {
		return
	}
	for uint64(buf.Len())%align != 0 {
		buf.WriteByte(0)
	}
}

func (f *File) word(buf *bytes.Buffer, v uint64) {
	if f.Class == elf.ELFCLASS32 {
		binary.Write(buf, f.Order, uint32(v))
	} else {
		binary.Write(buf, f.Order, v)
	}
}

func (f *File) writeProg(buf *bytes.Buffer) {
	if f.Class == elf.ELFCLASS32 {
		binary.Write(buf, f.Order, elf.Prog32{Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R | elf.PF_X), Align: 0x1000})
		return
	}
	binary.Write(buf, f.Order, elf.Prog64{Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R | elf.PF_X), Align: 0x1000})
}

func (f *File) writeShdr(buf *bytes.Buffer, name uint32, s *Section, off, size uint64) {
	binary.Write(buf, f.Order, name)
	binary.Write(buf, f.Order, uint32(s.Type))
	f.word(buf, uint64(s.Flags))
	f.word(buf, s.Addr)
	f.word(buf, off)
	f.word(buf, size)
	binary.Write(buf, f.Order, s.Link)
	binary.Write(buf, f.Order, s.Info)
	f.word(buf, s.Addralign)
	f.word(buf, s.Entsize)
}

func (f *File) writeEhdr(out []byte, phoff, shoff uint64, ehsize, phentsize, shentsize, shnum, shstrndx uint16) {
	data := elf.ELFDATA2LSB
	if f.Order == binary.BigEndian {
		data = elf.ELFDATA2MSB
	}
	copy(out, []byte{0x7f, 'E', 'L', 'F', byte(f.Class), byte(data), byte(elf.EV_CURRENT)})
	var buf bytes.Buffer
	binary.Write(&buf, f.Order, uint16(f.Type))
	binary.Write(&buf, f.Order, uint16(f.Machine))
	binary.Write(&buf, f.Order, uint32(elf.EV_CURRENT))
	f.word(&buf, f.Entry)
	f.word(&buf, phoff)
	f.word(&buf, shoff)
	binary.Write(&buf, f.Order, uint32(0))
	phnum := uint16(f.Phnum)
	if phnum == 0 {
		phentsize = 0
	}
	for _, v := range []uint16{ehsize, phentsize, phnum, shentsize, shnum, shstrndx} {
		binary.Write(&buf, f.Order, v)
	}
	copy(out[elf.EI_NIDENT:], buf.Bytes())
}

// Strtab encodes names as a string table and returns it with the
// offset of each name.
func Strtab(names ...string) ([]byte, []uint32) {
	data := []byte{0}
	offs := make([]uint32, len(names))
	for i, name := range names {
		offs[i] = uint32(len(data))
		data = append(append(data, name...), 0)
	}
	return data, offs
}

// Symtab encodes syms, which should start with the null symbol, as an
// ELF64 symbol table.
func Symtab(order binary.ByteOrder, syms ...elf.Sym64) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, order, syms)
	return buf.Bytes()
}

// Rela encodes relocations as an ELF64 RELA section.
func Rela(order binary.ByteOrder, rels ...elf.Rela64) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, order, rels)
	return buf.Bytes()
}

// Text addresses used by SharedObject.
const (
	TextAddr = 0x1000
	TextSize = 0x40
)

// SharedObject returns a small stripped shared object for machine
// (EM_AARCH64 or EM_X86_64) with a dynamic symbol table, a RELA
// section, a code section at TextAddr, data and bss.
func SharedObject(machine elf.Machine) *File {
	order := binary.LittleEndian
	dynstr, offs := Strtab("il2cpp_init", "il2cpp_domain_get")
	text := make([]byte, TextSize)
	switch machine {
	case elf.EM_AARCH64:
		for i := 0; i < len(text); i += 4 {
			order.PutUint32(text[i:], 0xd503201f) // nop
		}
		order.PutUint32(text[0x1c:], 0xd65f03c0) // ret
		order.PutUint32(text[0x3c:], 0xd65f03c0)
	default:
		for i := range text {
			text[i] = 0x90 // nop
		}
		text[0x1f] = 0xc3 // ret
		text[0x3f] = 0xc3
	}
	return &File{
		Class:   elf.ELFCLASS64,
		Order:   order,
		Machine: machine,
		Type:    elf.ET_DYN,
		Phnum:   2,
		Sections: []Section{
			// [1]
			{Name: ".dynsym", Type: elf.SHT_DYNSYM, Flags: elf.SHF_ALLOC, Addr: 0x200, Link: 2, Info: 1, Addralign: 8, Entsize: elf.Sym64Size,
				Data: Symtab(order,
					elf.Sym64{},
					elf.Sym64{Name: offs[0], Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC), Shndx: 4, Value: TextAddr, Size: 0x20},
					elf.Sym64{Name: offs[1], Info: elf.ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC), Shndx: 4, Value: TextAddr + 0x20, Size: 0x20},
				)},
			// [2]
			{Name: ".dynstr", Type: elf.SHT_STRTAB, Flags: elf.SHF_ALLOC, Addr: 0x300, Addralign: 1, Data: dynstr},
			// [3]
			{Name: ".rela.dyn", Type: elf.SHT_RELA, Flags: elf.SHF_ALLOC, Addr: 0x400, Link: 1, Addralign: 8, Entsize: 24,
				Data: Rela(order,
					elf.Rela64{Off: 0x2000, Info: elf.R_INFO(0, 1027), Addend: 0x1000},
					elf.Rela64{Off: 0x2008, Info: elf.R_INFO(1, 1025), Addend: 0},
				)},
			// [4]
			{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Addr: TextAddr, Addralign: 16, Data: text},
			// [5]
			{Name: ".data", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addr: 0x2000, Addralign: 8, Data: []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}},
			// [6]
			{Name: ".bss", Type: elf.SHT_NOBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Addr: 0x2010, Addralign: 8, Size: 0x100},
		},
	}
}

// Indexes of the sections of SharedObject.
const (
	DynsymIndex   = 1
	DynstrIndex   = 2
	RelaIndex     = 3
	TextIndex     = 4
	DataIndex     = 5
	BssIndex      = 6
	ShstrtabIndex = 7
)
