// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"

	"github.com/elfsym/elfsym/arch"
)

// maxInstLen bounds the length of one instruction on every supported
// architecture.
const maxInstLen = 16

// An EntryReport summarizes how a set of function entry addresses line
// up with the code that is actually there.
type EntryReport struct {
	// Checked is the number of entries that were decoded.
	Checked int

	// Outside lists the indexes of entries outside the code section.
	Outside []int

	// Invalid lists the indexes of entries that are misaligned or do
	// not start with a valid instruction.
	Invalid []int

	// Thunks counts entries whose first instruction is an
	// unconditional jump.
	Thunks int
}

// Bad returns the number of entries that are outside the code or
// invalid.
func (r *EntryReport) Bad() int {
	return len(r.Outside) + len(r.Invalid)
}

// CheckEntries decodes the first instruction at each of addrs in text,
// which is loaded at address base.
func CheckEntries(a *arch.Arch, text []byte, base uint64, addrs []uint64) (*EntryReport, error) {
	if !Supported(a) {
		return nil, fmt.Errorf("unsupported assembly architecture: %s", a)
	}
	r := new(EntryReport)
	for i, addr := range addrs {
		if addr < base || addr-base >= uint64(len(text)) {
			r.Outside = append(r.Outside, i)
			continue
		}
		if a.InstAlign > 1 && addr%a.InstAlign != 0 {
			r.Invalid = append(r.Invalid, i)
			continue
		}
		off := addr - base
		end := min(off+maxInstLen, uint64(len(text)))
		inst, err := First(a, text[off:end], addr)
		if err != nil {
			return nil, err
		}
		r.Checked++
		if inst == nil || !inst.Valid() {
			r.Invalid = append(r.Invalid, i)
			continue
		}
		if c := inst.Control(); c.Type == ControlJump && !c.Conditional {
			r.Thunks++
		}
	}
	return r, nil
}

// First decodes the instruction at the start of text, or returns nil
// if text is too short to hold one.
func First(a *arch.Arch, text []byte, pc uint64) (Inst, error) {
	seq, err := Disasm(a, text, pc)
	if err != nil {
		return nil, err
	}
	if seq.Len() == 0 {
		return nil, nil
	}
	return seq.Get(0), nil
}
