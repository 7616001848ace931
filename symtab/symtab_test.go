// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package symtab

import (
	"debug/elf"
	"fmt"
	"testing"

	"github.com/elfsym/elfsym/obj"
)

const (
	section1 elf.SectionIndex = 1
	section2 elf.SectionIndex = 2
)

func TestAddr(t *testing.T) {
	// Basic address lookup test.
	tab := NewTable(obj.Symbols{
		0: {Shndx: section1, Value: 1000, Size: 10},
		1: {Shndx: section1, Value: 1050, Size: 10},
		2: {Shndx: section2, Value: 2000, Size: 10},
		3: {Shndx: elf.SHN_UNDEF, Value: 1000, Size: 10},
		4: {Shndx: section1, Value: 1070, Size: 0},
	})
	check := func(label string, shndx elf.SectionIndex, addr uint64, want int) {
		t.Helper()
		got := tab.Addr(shndx, addr)
		if want != got {
			t.Errorf("%s: looking up (%d, %d) want %d, got %d", label, shndx, addr, want, got)
		}
	}
	check("beginning of symbol", section1, 1000, 0)
	check("beginning of symbol", section1, 1050, 1)
	check("beginning of symbol", section2, 2000, 2)

	check("end of symbol", section1, 1009, 0)
	check("end of symbol", section1, 1059, 1)
	check("just past end of symbol", section1, 1010, NoSym)
	check("just past end of symbol", section1, 1060, NoSym)

	check("other section", section2, 1000, NoSym)
	check("undefined symbols are not indexed", elf.SHN_UNDEF, 1000, NoSym)
	check("zero-sized symbols are not indexed", section1, 1070, NoSym)
	check("before first symbol", section1, 100, NoSym)
	check("unknown section", 7, 1000, NoSym)
}

func TestName(t *testing.T) {
	tab := NewTable(obj.Symbols{
		0: {Shndx: section1, Name: []byte("sym0"), Bind: elf.STB_GLOBAL, Value: 1000, Size: 10},
		1: {Shndx: section1, Name: []byte("sym1"), Bind: elf.STB_WEAK, Value: 1001, Size: 0},
		2: {Shndx: section1, Name: []byte("sym2"), Bind: elf.STB_LOCAL, Value: 1002, Size: 10},
		3: {Shndx: elf.SHN_UNDEF, Name: []byte("sym3"), Bind: elf.STB_GLOBAL},
		4: {Shndx: section2, Name: []byte("sym0"), Bind: elf.STB_GLOBAL, Value: 2000, Size: 10},
	})
	check := func(label string, name string, want int) {
		t.Helper()
		got := tab.Name(name)
		if want != got {
			t.Errorf("%s: looking up %s want %d, got %d", label, name, want, got)
		}
	}

	check("global symbol with size", "sym0", 0)
	check("weak symbol without size", "sym1", 1)
	check("local symbol", "sym2", NoSym)
	check("undefined symbol", "sym3", NoSym)
	check("unknown symbol", "sym100", NoSym)
}

func TestSyms(t *testing.T) {
	syms := obj.Symbols{
		0: {Shndx: section1, Value: 1000, Size: 10},
		1: {Shndx: section1, Value: 1010, Size: 10},
	}
	tab := NewTable(syms)
	got := tab.Syms()
	if len(got) != len(syms) || &got[0] != &syms[0] {
		t.Fatalf("want the original slice, got %v", got)
	}
}

func TestOverlap(t *testing.T) {
	const minAddr = 1000
	syms := obj.Symbols{
		// Strictly nested.
		{Value: 1000, Size: 3},
		{Value: 1001, Size: 1},
		// Same beginning. Smaller symbols should be preferred.
		{Value: 1010, Size: 5},
		{Value: 1010, Size: 4},
		{Value: 1010, Size: 3},
		// Same end.
		{Value: 1020, Size: 5},
		{Value: 1021, Size: 4},
		{Value: 1022, Size: 3},
		// Overlap in the middle with same size. Earlier symbol should be preferred.
		{Value: 1030, Size: 5},
		{Value: 1032, Size: 5},
		// Nested abutting symbols.
		{Value: 1040, Size: 5},
		{Value: 1041, Size: 1},
		{Value: 1042, Size: 1},
		// Same end nested in another symbol.
		{Value: 1050, Size: 5},
		{Value: 1051, Size: 2},
		{Value: 1052, Size: 1},
		// Totally overlapping. Lower indexes should be preferred.
		{Value: 1060, Size: 1},
		{Value: 1060, Size: 1},
	}
	const maxAddr = 1070
	for i := range syms {
		syms[i].Shndx = section1
		syms[i].Name = []byte(fmt.Sprintf("sym%d", i))
	}

	// For this test, we compare against a brute-force reference
	// implementation.
	prefer := func(a, b int) bool {
		sa, sb := &syms[a], &syms[b]
		if sa.Value != sb.Value {
			return sa.Value > sb.Value
		}
		if sa.Size != sb.Size {
			return sa.Size < sb.Size
		}
		return a < b
	}
	slow := func(addr uint64) int {
		best := NoSym
		for i := range syms {
			if syms[i].Value <= addr && addr < syms[i].Value+syms[i].Size {
				// Candidate.
				if best == NoSym || prefer(i, best) {
					best = i
				}
			}
		}
		return best
	}

	tab := NewTable(syms)
	for addr := uint64(minAddr); addr < maxAddr; addr++ {
		want := slow(addr)
		got := tab.Addr(section1, addr)
		if want != got {
			t.Errorf("at address %d: want symbol %d, got %d", addr, want, got)
		}
	}
}
