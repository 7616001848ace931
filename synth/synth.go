// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package synth builds a symbol table from a metadata address map.
package synth

import (
	"debug/elf"
	"errors"
	"fmt"

	"github.com/elfsym/elfsym/metadata"
	"github.com/elfsym/elfsym/obj"
)

// ErrNoCodeSection is returned by CodeSection if the selected section
// does not exist or does not contain code.
var ErrNoCodeSection = errors.New("no code section")

// Symbols returns one local function symbol per record of m, in the
// order method definitions, APIs, method invokers. Each symbol is named
// by its record's signature, has the record's address as its value,
// and is bound to section code.
//
// Records are not deduplicated or checked against each other. Duplicate
// addresses and names come through as they are.
func Symbols(m *metadata.AddressMap, code elf.SectionIndex) obj.Symbols {
	syms := make(obj.Symbols, 0, m.Len())
	add := func(addr uint64, sig string) {
		syms = append(syms, obj.Symbol{
			Name:  []byte(sig),
			Type:  elf.STT_FUNC,
			Bind:  elf.STB_LOCAL,
			Shndx: code,
			Value: addr,
		})
	}
	for _, r := range m.Methods {
		add(r.Addr, r.Signature)
	}
	for _, r := range m.APIs {
		add(r.Addr, r.Signature)
	}
	for _, r := range m.Invokers {
		add(r.Addr, r.Signature)
	}
	return syms
}

// A Selector picks the code section symbols are bound to.
type Selector struct {
	// Name selects the first section with this name. Empty means
	// ".text".
	Name string
	// Index, if positive, selects a section by index instead of by
	// name.
	Index int
}

func (sel Selector) String() string {
	if sel.Index > 0 {
		return fmt.Sprintf("section %d", sel.Index)
	}
	if sel.Name == "" {
		return "section .text"
	}
	return "section " + sel.Name
}

// CodeSection resolves sel in f. The section must hold executable code.
func CodeSection(f *obj.File, sel Selector) (elf.SectionIndex, *obj.Section, error) {
	var (
		idx int
		s   *obj.Section
	)
	if sel.Index > 0 {
		if sel.Index < len(f.Sections) {
			idx, s = sel.Index, f.Sections[sel.Index]
		}
	} else {
		name := sel.Name
		if name == "" {
			name = ".text"
		}
		idx, s = f.SectionByName(name)
	}
	if s == nil {
		return 0, nil, fmt.Errorf("%s: %w", sel, ErrNoCodeSection)
	}
	if s.Flags&elf.SHF_EXECINSTR == 0 {
		return 0, nil, fmt.Errorf("%s [%d] %s is not executable: %w", sel, idx, s.Name, ErrNoCodeSection)
	}
	if idx >= int(elf.SHN_LORESERVE) {
		return 0, nil, fmt.Errorf("%s: index %d needs an extended symbol index table", sel, idx)
	}
	return elf.SectionIndex(idx), s, nil
}

// NewSymtab returns a .symtab section holding syms after the null
// symbol. It links to the section that will follow it in f, which
// should be the table from NewStrtab.
//
// All of syms are local, so the section's info, the index of the first
// non-local symbol, is one past the last entry.
func NewSymtab(f *obj.File, syms obj.Symbols) *obj.Section {
	content := make(obj.Symbols, 0, len(syms)+1)
	content = append(content, obj.Symbol{})
	content = append(content, syms...)

	align := uint64(8)
	if f.Class == elf.ELFCLASS32 {
		align = 4
	}
	s := &obj.Section{
		Name:      ".symtab",
		Type:      elf.SHT_SYMTAB,
		Link:      uint32(len(f.Sections) + 1),
		Info:      uint32(len(content)),
		Addralign: align,
		Entsize:   f.SymSize(),
		Content:   content,
	}
	s.Size = f.ContentSize(s)
	return s
}

// NewStrtab returns an empty .strtab section.
func NewStrtab() *obj.Section {
	t := obj.NewStrtab()
	return &obj.Section{
		Name:      ".strtab",
		Type:      elf.SHT_STRTAB,
		Addralign: 1,
		Size:      uint64(t.Len()),
		Content:   t,
	}
}
