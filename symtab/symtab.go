// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package symtab implements symbol table lookup by name and address.
package symtab

import (
	"debug/elf"
	"sort"

	"github.com/elfsym/elfsym/obj"
)

// NoSym is returned by lookups that find no symbol.
const NoSym = -1

// Table facilitates fast symbol lookup by name and address.
type Table struct {
	// syms is the original syms slice. Lookups return indexes into it.
	syms obj.Symbols

	// sections contains the address to symbol mapping for each section.
	sections map[elf.SectionIndex]sectionTable

	// name indexes defined non-local symbols by name.
	name map[string]int
}

type sectionTable struct {
	// addr contains boundaries of symbols in Table.syms, ordered by
	// address. The boundary from symbol to NoSym is not explicitly
	// represented, since lookup can check the size of the symbol.
	//
	// If symbols overlap, this may contain the same symbol multiple
	// times. E.g., given one symbol strictly nested in another, the
	// outer symbol will appear both at its beginning address and at the
	// end address of the inner symbol.
	addr []symAddr
}

type symAddr struct {
	// addr is the address of this symbol boundary. Usually this is
	// beginning of the symbol, except in the case of overlapping
	// symbols.
	addr uint64
	id   int
}

// NewTable creates a new table for syms.
//
// NewTable uses sizes as they appear in syms, so the caller may wish to
// first call obj.SynthesizeSizes.
func NewTable(syms obj.Symbols) *Table {
	// Index symbols by name and break them up by section for address
	// indexing.
	name := make(map[string]int)
	sectionSyms := make(map[elf.SectionIndex][]int)
	for i := range syms {
		s := &syms[i]
		if s.Shndx == elf.SHN_UNDEF {
			continue
		}
		if s.Bind != elf.STB_LOCAL && len(s.Name) > 0 {
			if _, ok := name[string(s.Name)]; !ok {
				name[string(s.Name)] = i
			}
		}
		// Add symbols that have data to the address list. We omit
		// symbols of size 0 because they can't be the result of a
		// lookup and mess up the algorithm that computes the index.
		if s.Size != 0 {
			sectionSyms[s.Shndx] = append(sectionSyms[s.Shndx], i)
		}
	}

	sections := make(map[elf.SectionIndex]sectionTable)
	for shndx, ids := range sectionSyms {
		sections[shndx] = sectionTable{makeAddrIndex(syms, ids)}
	}

	return &Table{syms, sections, name}
}

func makeAddrIndex(syms obj.Symbols, ids []int) []symAddr {
	// Sort by starting address then priority, with low priority symbols
	// before higher priority so the higher priority ones override the
	// lower priority as we loop over the slice.
	sort.Slice(ids, func(i, j int) bool {
		si, sj := &syms[ids[i]], &syms[ids[j]]

		if si.Value != sj.Value {
			return si.Value < sj.Value
		}

		// Then size, preferring smaller symbols.
		if si.Size != sj.Size {
			return si.Size > sj.Size
		}

		// Then by index, preferring the earlier symbol.
		return ids[i] > ids[j]
	})

	// Create the address index. This would be trivial except that
	// symbols can and do overlap. See Addr for the rules of
	// disambiguation. We iterate through each symbol *boundary*
	// (beginning and end) and keep a stack of symbols at the current
	// address (lowest end address at top of stack). Typically this
	// stack will be very shallow.
	var out []symAddr
	stack := make([]symAddr, 0, 8) // addr is *end* address
	drainStack := func(addr uint64) {
		for len(stack) > 0 {
			// Do any symbols end before addr?
			endAddr := stack[len(stack)-1].addr
			if endAddr > addr {
				return
			}
			// Pop all of the symbols that end at the next boundary.
			for len(stack) > 0 && stack[len(stack)-1].addr == endAddr {
				stack = stack[:len(stack)-1]
			}
			// At endAddr, we drop to the symbol at top of stack, or
			// to NoSym, which has no marker.
			if len(stack) > 0 {
				out = append(out, symAddr{endAddr, stack[len(stack)-1].id})
			}
		}
	}
	for _, id := range ids {
		sym := &syms[id]
		drainStack(sym.Value)
		// Transition to sym at sym.Value.
		start := symAddr{sym.Value, id}
		if len(out) > 0 && out[len(out)-1].addr == sym.Value {
			out[len(out)-1] = start
		} else {
			out = append(out, start)
		}
		// Add symbol to the stack, keeping it ordered by end address.
		stack = append(stack, symAddr{sym.Value + sym.Size, id})
		for i := len(stack) - 1; i >= 1 && stack[i].addr > stack[i-1].addr; i-- {
			stack[i], stack[i-1] = stack[i-1], stack[i]
		}
	}
	drainStack(^uint64(0))

	return out
}

// Syms returns all symbols in Table. The caller must not modify the
// returned slice.
func (t *Table) Syms() obj.Symbols {
	return t.syms
}

// Name returns the index of the first defined, non-local symbol with
// the given name, or NoSym.
func (t *Table) Name(name string) int {
	if i, ok := t.name[name]; ok {
		return i
	}
	return NoSym
}

// Addr returns the index of the symbol in section shndx containing
// addr, or NoSym.
//
// This symbol may not be unique, in which case Addr prioritizes the
// symbol with the latest starting address, followed by the symbol with
// the smallest size.
func (t *Table) Addr(shndx elf.SectionIndex, addr uint64) int {
	tab, ok := t.sections[shndx]
	if !ok {
		return NoSym
	}
	i := sort.Search(len(tab.addr), func(i int) bool {
		return addr < tab.addr[i].addr
	}) - 1
	if i < 0 {
		return NoSym
	}
	id := tab.addr[i].id
	sym := &t.syms[id]
	if sym.Value+sym.Size <= addr {
		// The symbol ends before addr.
		return NoSym
	}
	return id
}
