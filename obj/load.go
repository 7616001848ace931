// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"debug/elf"
	"fmt"
	"io"
)

// LoadSections reads and decodes the content of every section of f
// from r.
//
// Symbol tables, string tables and, where the machine supports it,
// relocation sections are decoded structurally. Other sections are
// carried as Raw bytes. A relocation section on a machine whose
// relocations the codec cannot decode has its Type permanently
// rewritten to SHT_NULL and its bytes carried as Opaque content; it is
// emitted that way too.
//
// Any read or decode error is returned and leaves f unusable.
func LoadSections(r io.ReaderAt, f *File) error {
	for i, s := range f.Sections {
		if err := f.loadSection(r, s); err != nil {
			return fmt.Errorf("section %s [%d]: %w", s.Name, i, err)
		}
	}

	// Resolve symbol names now that every string table is loaded.
	for i, s := range f.Sections {
		syms, ok := s.Content.(Symbols)
		if !ok || s.Link == 0 {
			continue
		}
		strtab, err := f.linkedStrtab(s)
		if err != nil {
			return fmt.Errorf("section %s [%d]: %w", s.Name, i, err)
		}
		if err := resolveNames(syms, strtab); err != nil {
			return fmt.Errorf("section %s [%d]: %w", s.Name, i, err)
		}
	}
	f.synced = false
	return nil
}

func (f *File) loadSection(r io.ReaderAt, s *Section) error {
	if s.Type == elf.SHT_NOBITS {
		s.Content = Raw(nil)
		return nil
	}

	// Workaround: relocations of this machine can't be decoded, so
	// treat the section as raw data.
	if (s.Type == elf.SHT_RELA || s.Type == elf.SHT_REL) && !f.decodesRelocs() {
		orig := s.Type
		s.Type = elf.SHT_NULL
		data, err := readSection(r, s)
		if err != nil {
			return err
		}
		s.Content = &Opaque{Orig: orig, Data: data}
		return nil
	}

	data, err := readSection(r, s)
	if err != nil {
		return err
	}
	switch s.Type {
	case elf.SHT_SYMTAB, elf.SHT_DYNSYM:
		if s.Entsize != 0 && s.Entsize != f.symSize {
			return fmt.Errorf("symbol entry size %d, want %d", s.Entsize, f.symSize)
		}
		syms, err := f.decodeSymbols(data)
		if err != nil {
			return err
		}
		s.Content = syms
	case elf.SHT_STRTAB:
		s.Content = loadStrtab(data)
	case elf.SHT_REL, elf.SHT_RELA:
		relocs, err := f.decodeRelocs(data, s.Type == elf.SHT_RELA)
		if err != nil {
			return err
		}
		s.Content = relocs
	default:
		s.Content = Raw(data)
	}
	return nil
}

// readSection reads the file bytes of s into a new buffer.
func readSection(r io.ReaderAt, s *Section) ([]byte, error) {
	if s.Offset+s.Size < s.Offset || int64(s.Offset+s.Size) < 0 {
		return nil, fmt.Errorf("data range [%#x, +%#x) overflows", s.Offset, s.Size)
	}
	data := make([]byte, s.Size)
	n, err := r.ReadAt(data, int64(s.Offset))
	if n == len(data) {
		// ReadAt may return io.EOF along with a complete read at the
		// end of the input.
		return data, nil
	}
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("reading [%#x, +%#x): %w", s.Offset, s.Size, err)
}

// linkedStrtab returns the string table s links to.
func (f *File) linkedStrtab(s *Section) (*Strtab, error) {
	if int(s.Link) >= len(f.Sections) || s.Link == 0 {
		return nil, fmt.Errorf("links to missing section %d", s.Link)
	}
	ls := f.Sections[s.Link]
	strtab, ok := ls.Content.(*Strtab)
	if !ok || ls.Type != elf.SHT_STRTAB {
		return nil, fmt.Errorf("links to section %s [%d] of type %s, want %s", ls.Name, s.Link, ls.Type, elf.SHT_STRTAB)
	}
	return strtab, nil
}
