// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"debug/elf"
	"testing"
)

func TestSynthesizeSizes(t *testing.T) {
	const text = elf.SectionIndex(3)
	section := &Section{Name: ".text", Addr: 1000, Size: 100}
	fn := func(value, size uint64) Symbol {
		return Symbol{Type: elf.STT_FUNC, Shndx: text, Value: value, Size: size}
	}
	type symTest struct {
		size uint64
		sym  Symbol
	}
	test := []symTest{
		// To next symbol.
		{10, fn(1000, 0)},
		// Has size.
		{5, fn(1010, 5)},
		// Multiple names at one address.
		{30, fn(1020, 0)},
		{30, fn(1020, 0)},
		// To end of section.
		{50, fn(1050, 0)},
		// Outside the section.
		{0, fn(1100, 0)},
		{0, fn(900, 0)},
		// Not a function, or in another section.
		{0, Symbol{Type: elf.STT_OBJECT, Shndx: text, Value: 1030}},
		{0, Symbol{Type: elf.STT_FUNC, Shndx: text + 1, Value: 1030}},
	}

	var syms Symbols
	for _, t := range test {
		syms = append(syms, t.sym)
	}
	if n := SynthesizeSizes(syms, text, section); n != 4 {
		t.Errorf("want 4 symbols sized, got %d", n)
	}

	for i, want := range test {
		if got := syms[i].Size; got != want.size {
			t.Errorf("symbol %d at %d: want size %d, got %d", i, want.sym.Value, want.size, got)
		}
	}
}
