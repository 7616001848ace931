// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"debug/elf"
	"sort"
)

// SynthesizeSizes assigns sizes to zero-sized function symbols in
// section shndx using heuristics: a symbol extends to the next higher
// symbol address, and the last one to the end of the section. Symbols
// outside the section are left alone. It returns the number of symbols
// it sized.
func SynthesizeSizes(syms Symbols, shndx elf.SectionIndex, section *Section) int {
	// Gather candidate symbols and sort by address (without destroying
	// order).
	todo := []int{}
	for i := range syms {
		s := &syms[i]
		if s.Shndx != shndx || s.Type != elf.STT_FUNC {
			continue
		}
		// If the symbol is outside its section, leave it out because
		// we can't give it a meaningful size and it may throw off
		// earlier symbols in the section.
		if s.Value < section.Addr || s.Value >= section.Addr+section.Size {
			continue
		}
		todo = append(todo, i)
	}
	sort.SliceStable(todo, func(i, j int) bool {
		return syms[todo[i]].Value < syms[todo[j]].Value
	})

	sized := 0
	for len(todo) != 0 {
		// Collect symbols that have the same value. Most of the time
		// we'll get groups of 1, but sometimes there are multiple names
		// for the same address.
		s1 := &syms[todo[0]]
		group := 1
		for group < len(todo) && syms[todo[group]].Value == s1.Value {
			group++
		}

		var size uint64
		if group == len(todo) {
			// Cap the symbols at the end of the section.
			size = section.Addr + section.Size - s1.Value
		} else {
			size = syms[todo[group]].Value - s1.Value
		}

		// Apply this size to all zero-sized symbols in this group.
		for _, symi := range todo[:group] {
			if syms[symi].Size == 0 {
				syms[symi].Size = size
				sized++
			}
		}
		todo = todo[group:]
	}
	return sized
}
