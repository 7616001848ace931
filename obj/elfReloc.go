// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"debug/elf"
	"fmt"
)

// A Reloc is one entry of a REL or RELA section.
type Reloc struct {
	// Offset is the location the relocation applies to: a virtual
	// address in shared objects and executables, a section offset in
	// relocatable objects.
	Offset uint64
	// Sym is the index of the target symbol in the linked symbol
	// table, or 0 for none.
	Sym uint32
	// Type is the machine-specific relocation type.
	Type uint32
	// Addend is the explicit addend. It is always 0 in REL sections.
	Addend int64
}

// Relocs is the content of a decoded SHT_REL or SHT_RELA section.
type Relocs struct {
	Rela bool
	R    []Reloc
}

func (r *Relocs) entSize(f *File) uint64 {
	if r.Rela {
		return f.relaSize
	}
	return f.relSize
}

func (r *Relocs) Size(f *File) uint64 {
	return uint64(len(r.R)) * r.entSize(f)
}

func (r *Relocs) encode(f *File, b []byte) {
	w := newWriter(b, f.Layout)
	for _, rel := range r.R {
		w.word(rel.Offset)
		switch f.Class {
		case elf.ELFCLASS32:
			w.uint32(rel.Sym<<8 | rel.Type&0xff)
			if r.Rela {
				w.uint32(uint32(int32(rel.Addend)))
			}
		case elf.ELFCLASS64:
			w.uint64(uint64(rel.Sym)<<32 | uint64(rel.Type))
			if r.Rela {
				w.uint64(uint64(rel.Addend))
			}
		}
	}
}

// decodeRelocs decodes a relocation section's entries.
func (f *File) decodeRelocs(data []byte, rela bool) (*Relocs, error) {
	out := &Relocs{Rela: rela}
	size := out.entSize(f)
	if uint64(len(data))%size != 0 {
		return nil, fmt.Errorf("size %d is not a multiple of the relocation size %d", len(data), size)
	}
	out.R = make([]Reloc, uint64(len(data))/size)
	r := NewReader(data, f.Layout)
	for i := range out.R {
		rel := &out.R[i]
		rel.Offset = r.Word()
		switch f.Class {
		case elf.ELFCLASS32:
			info := r.Uint32()
			rel.Sym, rel.Type = elf.R_SYM32(info), elf.R_TYPE32(info)
			if rela {
				rel.Addend = int64(int32(r.Uint32()))
			}
		case elf.ELFCLASS64:
			info := r.Uint64()
			rel.Sym, rel.Type = elf.R_SYM64(info), elf.R_TYPE64(info)
			if rela {
				rel.Addend = int64(r.Uint64())
			}
		}
	}
	return out, nil
}
