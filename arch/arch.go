// Copyright 2018 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package arch provides basic descriptions of CPU architectures.
package arch

import "debug/elf"

// An Arch describes a CPU architecture.
type Arch struct {
	// Layout is the byte order and word size of this architecture.
	Layout Layout

	// GoArch is the GOARCH value for this architecture.
	GoArch string

	// Machine is the ELF e_machine value for this architecture.
	Machine elf.Machine

	// InstAlign is the required alignment of an instruction address,
	// or 1 if instructions may start at any byte.
	InstAlign uint64
}

var (
	AMD64 = &Arch{Layout{0, 8}, "amd64", elf.EM_X86_64, 1}
	I386  = &Arch{Layout{0, 4}, "386", elf.EM_386, 1}
	ARM64 = &Arch{Layout{0, 8}, "arm64", elf.EM_AARCH64, 4}
	ARM   = &Arch{Layout{0, 4}, "arm", elf.EM_ARM, 2}
)

var byMachine = map[elf.Machine]*Arch{
	elf.EM_X86_64:  AMD64,
	elf.EM_386:     I386,
	elf.EM_AARCH64: ARM64,
	elf.EM_ARM:     ARM,
}

// ForMachine returns the Arch for an ELF machine, or nil if it is not
// known.
func ForMachine(m elf.Machine) *Arch {
	return byMachine[m]
}

// String returns the GOARCH value of a.
func (a *Arch) String() string {
	if a == nil {
		return "<nil>"
	}
	return a.GoArch
}
