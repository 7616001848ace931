// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package obj provides an editable in-memory model of ELF object files.
//
// A File holds the ELF header, the section header table, and the
// decoded content of each section. Sections can be appended to the
// table and the result serialized back to bytes. Bytes that belong to
// no section (the program header table, alignment gaps) are carried
// over from the source image unchanged.
package obj

import (
	"debug/elf"
	"errors"
	"io"

	"github.com/elfsym/elfsym/arch"
)

// ErrNotELF is returned when the input does not start with the ELF
// magic number.
var ErrNotELF = errors.New("not an ELF file")

// A File represents an ELF object file.
type File struct {
	Header

	// Sections is the section header table, indexed by ELF section
	// number. Section 0 is the reserved null section.
	Sections []*Section

	// Arch is the machine architecture of this object file, or nil if
	// unknown.
	Arch *arch.Arch

	// Layout is the data layout of the ELF file itself (as opposed to
	// the architecture).
	Layout arch.Layout

	// symSize is the size of a SYMTAB entry in bytes.
	symSize uint64
	// relSize and relaSize are the sizes of REL and RELA entries in bytes.
	relSize, relaSize uint64
	// shdrSize is the size of a section header in bytes.
	shdrSize uint64

	// src is the image this file was read from and srcSize the extent
	// of it covered by headers and section data.
	src     io.ReaderAt
	srcSize uint64
	closer  func() error

	// synced is set by a successful Sync and cleared by any edit of the
	// section table made through this package.
	synced bool
}

// Header is the ELF file header.
type Header struct {
	Class      elf.Class
	Data       elf.Data
	Version    elf.Version
	OSABI      elf.OSABI
	ABIVersion uint8
	Type       elf.Type
	Machine    elf.Machine
	Entry      uint64
	Phoff      uint64
	Shoff      uint64
	Flags      uint32
	Ehsize     uint16
	Phentsize  uint16
	Phnum      uint16
	Shentsize  uint16

	// Shnum and Shstrndx are the real section count and section name
	// table index, even when the file uses extended section numbering.
	Shnum    int
	Shstrndx int
}

// A Section is one entry of the section header table together with its
// content.
type Section struct {
	Name      string
	Type      elf.SectionType
	Flags     elf.SectionFlag
	Addr      uint64
	Offset    uint64
	Size      uint64
	Link      uint32
	Info      uint32
	Addralign uint64
	Entsize   uint64

	// Content is the decoded content of this section. It is nil until
	// the section is loaded.
	Content Content

	// loaded is set for sections read from the source file, and
	// origSize records their size as read.
	loaded   bool
	origSize uint64
	nameOff  uint32
}

// Loaded reports whether s was read from the source file rather than
// built in memory.
func (s *Section) Loaded() bool {
	return s.loaded
}

// hasFileData reports whether s occupies bytes in the file image.
func (s *Section) hasFileData() bool {
	return s.Type != elf.SHT_NOBITS && s.Size > 0
}

// end returns the file offset just past s's data.
func (s *Section) end() uint64 {
	return s.Offset + s.Size
}

// Content is the decoded content of a section.
type Content interface {
	// Size returns the number of bytes this content occupies when
	// encoded for f.
	Size(f *File) uint64

	// encode writes this content into b, which is exactly Size(f)
	// bytes long.
	encode(f *File, b []byte)
}

// Raw is section content that is carried as uninterpreted bytes.
type Raw []byte

func (r Raw) Size(f *File) uint64 { return uint64(len(r)) }

func (r Raw) encode(f *File, b []byte) { copy(b, r) }

// Opaque is the content of a section whose type the codec cannot decode
// on the file's architecture. The section's Type is rewritten to
// SHT_NULL when it is loaded, and Orig keeps the type it was declared
// with.
type Opaque struct {
	Orig elf.SectionType
	Data []byte
}

func (o *Opaque) Size(f *File) uint64 { return uint64(len(o.Data)) }

func (o *Opaque) encode(f *File, b []byte) { copy(b, o.Data) }

// Close releases any OS resources held by f. The File must not be
// serialized after it is closed.
func (f *File) Close() error {
	if f.closer == nil {
		return nil
	}
	err := f.closer()
	f.closer = nil
	f.src = nil
	return err
}

// ContentSize returns the encoded size of s's content, or 0 if s has
// not been loaded.
func (f *File) ContentSize(s *Section) uint64 {
	if s.Content == nil {
		return 0
	}
	return s.Content.Size(f)
}

// SectionByName returns the index and the first section named name, or
// -1 and nil if there is no such section.
func (f *File) SectionByName(name string) (int, *Section) {
	for i, s := range f.Sections {
		if i > 0 && s.Name == name {
			return i, s
		}
	}
	return -1, nil
}

// SymSize returns the size in bytes of one symbol table entry.
func (f *File) SymSize() uint64 {
	return f.symSize
}

// roundUp2 to rounds x up to a multiple of y, where y must be a power
// of 2. y of 0 is treated as 1.
func roundUp2(x, y uint64) uint64 {
	if y <= 1 {
		return x
	}
	if y&(y-1) != 0 {
		panic("y must be a power of 2")
	}
	return (x + y - 1) &^ (y - 1)
}
