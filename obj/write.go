// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"debug/elf"
	"errors"
	"fmt"
	"io"
	"sort"
)

// ErrOverlap is returned by Sync when an appended or grown section
// would overlap other data in the file.
var ErrOverlap = errors.New("overlapping file data")

// Sync finalizes f for serialization.
//
// It adds the names of new sections to the section name table and the
// names of new symbols to their linked string tables, recomputes the
// size of every section from its content, checks that section links and
// entry counts are consistent, and places the section header table
// after the last byte of section data. Appended and grown sections
// must not overlap any other data; if they do, Sync returns an error
// wrapping ErrOverlap.
func (f *File) Sync() error {
	f.synced = false
	if len(f.Sections) == 0 {
		return errors.New("no sections")
	}

	// Register new symbol names in their string tables.
	for i, s := range f.Sections {
		syms, ok := s.Content.(Symbols)
		if !ok {
			continue
		}
		if err := f.syncSymbols(s, syms); err != nil {
			return fmt.Errorf("section %s [%d]: %w", s.Name, i, err)
		}
	}

	// Register section names.
	if err := f.syncNames(); err != nil {
		return err
	}

	// Recompute sizes from content. Section 0's header is reserved.
	for _, s := range f.Sections[1:] {
		if s.Type == elf.SHT_NOBITS || s.Content == nil {
			continue
		}
		s.Size = s.Content.Size(f)
	}

	if err := f.relocateNames(); err != nil {
		return err
	}
	if err := f.checkLayout(); err != nil {
		return err
	}

	// Place the section header table.
	end := f.dataEnd()
	f.Shoff = roundUp2(end, uint64(f.Layout.WordSize()))
	f.Shentsize = uint16(f.shdrSize)
	f.Shnum = len(f.Sections)
	f.synced = true
	return nil
}

func (f *File) syncSymbols(s *Section, syms Symbols) error {
	if s.Type != elf.SHT_SYMTAB && s.Type != elf.SHT_DYNSYM {
		return fmt.Errorf("symbol content in section of type %s", s.Type)
	}
	if s.Entsize != 0 && s.Entsize != f.symSize {
		return fmt.Errorf("symbol entry size %d, want %d", s.Entsize, f.symSize)
	}
	if uint64(s.Info) > uint64(len(syms)) {
		return fmt.Errorf("info %d exceeds %d symbols", s.Info, len(syms))
	}
	if err := f.checkSymbols(syms); err != nil {
		return err
	}

	var strtab *Strtab
	if !s.loaded {
		var err error
		if strtab, err = f.linkedStrtab(s); err != nil {
			return err
		}
	}
	for i := range syms {
		if !syms[i].needsName() {
			continue
		}
		if strtab == nil {
			var err error
			if strtab, err = f.linkedStrtab(s); err != nil {
				return err
			}
		}
		off, err := strtab.Add(string(syms[i].Name))
		if err != nil {
			return fmt.Errorf("symbol %d: %w", i, err)
		}
		syms[i].NameOff = off
	}
	return nil
}

func (f *File) syncNames() error {
	if f.Shstrndx == int(elf.SHN_UNDEF) {
		for i, s := range f.Sections {
			if s.Name != "" {
				return fmt.Errorf("section %s [%d] is named but the file has no section name table", s.Name, i)
			}
		}
		return nil
	}
	if f.Shstrndx >= len(f.Sections) {
		return fmt.Errorf("section name table index %d out of range", f.Shstrndx)
	}
	shstr, ok := f.Sections[f.Shstrndx].Content.(*Strtab)
	if !ok {
		return fmt.Errorf("section name table [%d] is not loaded as a string table", f.Shstrndx)
	}
	for i, s := range f.Sections {
		off, err := shstr.Add(s.Name)
		if err != nil {
			return fmt.Errorf("section %d: %w", i, err)
		}
		s.nameOff = off
	}
	return nil
}

// relocateNames moves a grown section name table to the end of the file
// data if it would otherwise run into the data that follows it. No
// loader reads the section name table, so its offset is free to change.
func (f *File) relocateNames() error {
	if f.Shstrndx == int(elf.SHN_UNDEF) {
		return nil
	}
	s := f.Sections[f.Shstrndx]
	if !s.loaded || s.Size <= s.origSize {
		return nil
	}
	for i, o := range f.Sections {
		if i == f.Shstrndx || i == 0 || !o.hasFileData() {
			continue
		}
		if o.Offset >= s.Offset+s.origSize && o.Offset < s.end() {
			s.Offset = f.dataEndExcept(f.Shstrndx)
			return nil
		}
	}
	return nil
}

type extent struct {
	name       string
	start, end uint64
	// fixed extents are pre-existing data whose placement is assumed
	// correct.
	fixed bool
}

// checkLayout verifies that no appended or grown section overlaps any
// other file data.
func (f *File) checkLayout() error {
	exts := []extent{{"ELF header", 0, uint64(f.Ehsize), true}}
	if f.Phnum > 0 {
		exts = append(exts, extent{"program headers", f.Phoff, f.Phoff + uint64(f.Phnum)*uint64(f.Phentsize), true})
	}
	for i, s := range f.Sections {
		if i == 0 || !s.hasFileData() {
			continue
		}
		if s.end() < s.Offset {
			return fmt.Errorf("section %s [%d]: data range [%#x, +%#x) overflows", s.Name, i, s.Offset, s.Size)
		}
		fixed := s.loaded && s.Size <= s.origSize
		exts = append(exts, extent{fmt.Sprintf("section %s [%d]", s.Name, i), s.Offset, s.end(), fixed})
	}
	sort.SliceStable(exts, func(i, j int) bool {
		return exts[i].start < exts[j].start
	})
	for i, a := range exts {
		for _, b := range exts[i+1:] {
			if b.start >= a.end {
				break
			}
			if a.fixed && b.fixed {
				continue
			}
			return fmt.Errorf("%s [%#x, %#x) overlaps %s [%#x, %#x): %w", a.name, a.start, a.end, b.name, b.start, b.end, ErrOverlap)
		}
	}
	return nil
}

// dataEnd returns the file offset just past the last header or section
// byte, not counting the section header table.
func (f *File) dataEnd() uint64 {
	return f.dataEndExcept(-1)
}

// dataEndExcept is like dataEnd but ignores section skip.
func (f *File) dataEndExcept(skip int) uint64 {
	end := uint64(f.Ehsize)
	if f.Phnum > 0 {
		end = max(end, f.Phoff+uint64(f.Phnum)*uint64(f.Phentsize))
	}
	for i, s := range f.Sections {
		if i > 0 && i != skip && s.hasFileData() {
			end = max(end, s.end())
		}
	}
	return end
}

// Bytes serializes f. Sync must have been called since the last change
// to the section table.
func (f *File) Bytes() ([]byte, error) {
	if !f.synced {
		return nil, errors.New("file is not synced")
	}
	out := make([]byte, f.Shoff+uint64(f.Shnum)*f.shdrSize)

	// Carry over the source image: program headers and any bytes
	// between sections.
	if f.src != nil && f.srcSize > 0 {
		n := min(f.srcSize, uint64(len(out)))
		if m, err := f.src.ReadAt(out[:n], 0); m != int(n) {
			return nil, fmt.Errorf("reading source image: %w", err)
		}
	}

	for i, s := range f.Sections {
		if i == 0 || !s.hasFileData() || s.Content == nil {
			continue
		}
		size := s.Content.Size(f)
		if size != s.Size {
			return nil, fmt.Errorf("section %s [%d]: content size %d changed since Sync (%d)", s.Name, i, size, s.Size)
		}
		s.Content.encode(f, out[s.Offset:s.end()])
	}

	f.encodeHeader(out)

	for i, s := range f.Sections {
		b := out[f.Shoff+uint64(i)*f.shdrSize:]
		size, link := s.Size, s.Link
		if i == 0 {
			// Extended section numbering.
			if f.Shnum >= int(elf.SHN_LORESERVE) {
				size = uint64(f.Shnum)
			}
			if f.Shstrndx >= int(elf.SHN_LORESERVE) {
				link = uint32(f.Shstrndx)
			}
		}
		f.encodeSectionHeader(b, s, s.nameOff, size, link)
	}
	return out, nil
}

// WriteTo serializes f to w.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	b, err := f.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

func (f *File) encodeHeader(out []byte) {
	w := newWriter(out[:f.Ehsize], f.Layout)
	w.bytes([]byte{
		0x7f, 'E', 'L', 'F', // Magic number
		byte(f.Class),
		byte(f.Data),
		byte(f.Version),
		byte(f.OSABI),
		f.ABIVersion,
		0, 0, 0, 0, 0, 0, 0, // Padding
	})
	shnum, shstrndx := f.Shnum, f.Shstrndx
	if shnum >= int(elf.SHN_LORESERVE) {
		shnum = 0
	}
	if shstrndx >= int(elf.SHN_LORESERVE) {
		shstrndx = int(elf.SHN_XINDEX)
	}
	w.uint16(uint16(f.Type))
	w.uint16(uint16(f.Machine))
	w.uint32(uint32(f.Version))
	w.word(f.Entry)
	w.word(f.Phoff)
	w.word(f.Shoff)
	w.uint32(f.Flags)
	w.uint16(f.Ehsize)
	w.uint16(f.Phentsize)
	w.uint16(f.Phnum)
	w.uint16(f.Shentsize)
	w.uint16(uint16(shnum))
	w.uint16(uint16(shstrndx))
}
