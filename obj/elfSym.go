// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"debug/elf"
	"fmt"
)

// A Symbol is one entry of an ELF symbol table.
type Symbol struct {
	// Name is the symbol's name. For symbols read from a file it is
	// resolved from the linked string table.
	Name []byte
	// NameOff is the offset of Name in the linked string table. A
	// symbol with a non-empty Name and a zero NameOff has its name
	// added to the string table by Sync.
	NameOff uint32

	Type  elf.SymType
	Bind  elf.SymBind
	Other uint8 // st_other; the low bits hold the visibility
	Shndx elf.SectionIndex
	Value uint64
	Size  uint64
}

// Info returns the st_info byte of s.
func (s *Symbol) Info() uint8 {
	return elf.ST_INFO(s.Bind, s.Type)
}

// needsName reports whether Sync must assign s a name offset.
func (s *Symbol) needsName() bool {
	return s.NameOff == 0 && len(s.Name) > 0
}

// Symbols is the content of a SHT_SYMTAB or SHT_DYNSYM section. It
// includes the reserved null symbol at index 0.
type Symbols []Symbol

func (s Symbols) Size(f *File) uint64 {
	return uint64(len(s)) * f.symSize
}

func (s Symbols) encode(f *File, b []byte) {
	w := newWriter(b, f.Layout)
	for i := range s {
		sym := &s[i]
		switch f.Class {
		case elf.ELFCLASS32:
			w.uint32(sym.NameOff)
			w.uint32(uint32(sym.Value))
			w.uint32(uint32(sym.Size))
			w.uint8(sym.Info())
			w.uint8(sym.Other)
			w.uint16(uint16(sym.Shndx))
		case elf.ELFCLASS64:
			w.uint32(sym.NameOff)
			w.uint8(sym.Info())
			w.uint8(sym.Other)
			w.uint16(uint16(sym.Shndx))
			w.uint64(sym.Value)
			w.uint64(sym.Size)
		}
	}
}

// decodeSymbols decodes the symbol table held in data. Names are
// resolved separately, once every string table is loaded.
func (f *File) decodeSymbols(data []byte) (Symbols, error) {
	if uint64(len(data))%f.symSize != 0 {
		return nil, fmt.Errorf("size %d is not a multiple of the symbol size %d", len(data), f.symSize)
	}
	out := make(Symbols, uint64(len(data))/f.symSize)
	r := NewReader(data, f.Layout)
	for i := range out {
		sym := &out[i]
		var info uint8
		switch f.Class {
		case elf.ELFCLASS32:
			sym.NameOff = r.Uint32()
			sym.Value = uint64(r.Uint32())
			sym.Size = uint64(r.Uint32())
			info = r.Uint8()
			sym.Other = r.Uint8()
			sym.Shndx = elf.SectionIndex(r.Uint16())
		case elf.ELFCLASS64:
			sym.NameOff = r.Uint32()
			info = r.Uint8()
			sym.Other = r.Uint8()
			sym.Shndx = elf.SectionIndex(r.Uint16())
			sym.Value = r.Uint64()
			sym.Size = r.Uint64()
		}
		sym.Type = elf.ST_TYPE(info)
		sym.Bind = elf.ST_BIND(info)
	}
	return out, nil
}

// resolveNames fills in the Name of each symbol from strtab.
func resolveNames(syms Symbols, strtab *Strtab) error {
	for i := range syms {
		if syms[i].NameOff == 0 {
			continue
		}
		name, ok := strtab.Lookup(syms[i].NameOff)
		if !ok {
			return fmt.Errorf("symbol %d name offset %d out of range", i, syms[i].NameOff)
		}
		syms[i].Name = name
	}
	return nil
}

// checkSymbols verifies that every symbol in s can be encoded in f.
func (f *File) checkSymbols(s Symbols) error {
	if f.Class != elf.ELFCLASS32 {
		return nil
	}
	for i := range s {
		if s[i].Value>>32 != 0 || s[i].Size>>32 != 0 {
			return fmt.Errorf("symbol %d (%s): value %#x size %#x do not fit ELF32", i, s[i].Name, s[i].Value, s[i].Size)
		}
	}
	return nil
}
