// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package restore adds a symbol table built from Il2CppInspector
// metadata to a stripped shared object.
package restore

import (
	"debug/elf"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/xyproto/env/v2"

	"github.com/elfsym/elfsym/asm"
	"github.com/elfsym/elfsym/metadata"
	"github.com/elfsym/elfsym/obj"
	"github.com/elfsym/elfsym/symtab"
	"github.com/elfsym/elfsym/synth"
)

// Config configures Run.
type Config struct {
	// Binary is the stripped shared object to read.
	Binary string
	// Metadata is the Il2CppInspector JSON metadata for Binary.
	Metadata string
	// Output is where the symbolized copy of Binary is written. It
	// is replaced if it exists.
	Output string

	// CodeSection names the section symbols are bound to. If
	// CodeIndex is positive, it selects the section by index instead.
	CodeSection string
	CodeIndex   int

	// Padding is the minimum gap left after the last existing section
	// before the new symbol table.
	Padding uint64

	// SynthesizeSizes gives each symbol a size reaching to the next
	// symbol.
	SynthesizeSizes bool

	// Strict makes symbols that do not point at valid code in the
	// code section an error.
	Strict bool

	// Logger receives progress messages. If nil, they are discarded.
	Logger *log.Logger
}

// Defaults used by DefaultConfig.
const (
	DefaultBinary      = "libil2cpp.so"
	DefaultMetadata    = "metadata.json"
	DefaultOutput      = "libil2cpp.sym.so"
	DefaultCodeSection = ".text"
	DefaultPadding     = 500
)

// DefaultConfig returns the default configuration, overridden by the
// ELFSYM_BINARY, ELFSYM_METADATA, ELFSYM_OUTPUT, ELFSYM_CODE_SECTION,
// ELFSYM_PADDING and ELFSYM_STRICT environment variables.
func DefaultConfig() Config {
	// The env package caches the environment on first use.
	env.Load()
	padding := env.Int("ELFSYM_PADDING", DefaultPadding)
	if padding < 0 {
		padding = DefaultPadding
	}
	return Config{
		Binary:      env.Str("ELFSYM_BINARY", DefaultBinary),
		Metadata:    env.Str("ELFSYM_METADATA", DefaultMetadata),
		Output:      env.Str("ELFSYM_OUTPUT", DefaultOutput),
		CodeSection: env.Str("ELFSYM_CODE_SECTION", DefaultCodeSection),
		CodeIndex:   -1,
		Padding:     uint64(padding),
		Strict:      env.Bool("ELFSYM_STRICT"),
		Logger:      log.New(os.Stderr, "", 0),
	}
}

// Result describes a completed run.
type Result struct {
	// Symbols is the number of symbols added.
	Symbols int
	// Sized is the number of symbols given a size.
	Sized int
	// CodeSection is the index of the section symbols are bound to.
	CodeSection int
	// SymtabOffset and StrtabOffset are the file offsets of the new
	// sections.
	SymtabOffset, StrtabOffset uint64
	// Entries is the result of checking symbol addresses against the
	// code section, or nil if the architecture is not supported.
	Entries *asm.EntryReport
	// Exports is the number of symbols that start where an exported
	// dynamic symbol starts.
	Exports int
	// MovedAPIs lists the APIs whose name is exported at a different
	// address than the metadata gives.
	MovedAPIs []string
	// Size is the size of the output file.
	Size int64
}

// Run reads cfg.Binary and cfg.Metadata and writes cfg.Output.
//
// The output is written to a temporary file that is renamed into place
// once it is complete, so on error there is no output.
func Run(cfg Config) (*Result, error) {
	lg := cfg.Logger
	if lg == nil {
		lg = log.New(io.Discard, "", 0)
	}

	f, err := obj.Open(cfg.Binary)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	lg.Printf("finished reading ELF: %s, %d sections", f.Arch, len(f.Sections))

	m, err := metadata.ReadFile(cfg.Metadata)
	if err != nil {
		return nil, err
	}
	lg.Printf("finished reading metadata: %d methods found", m.Len())

	code, text, err := synth.CodeSection(f, synth.Selector{Name: cfg.CodeSection, Index: cfg.CodeIndex})
	if err != nil {
		return nil, err
	}
	res := &Result{CodeSection: int(code)}

	syms := synth.Symbols(m, code)
	res.Symbols = len(syms)
	if cfg.SynthesizeSizes {
		res.Sized = obj.SynthesizeSizes(syms, code, text)
		lg.Printf("sized %d of %d symbols", res.Sized, len(syms))
	}

	if err := checkEntries(f, text, syms, cfg.Strict, lg, res); err != nil {
		return nil, err
	}

	crossCheck(f, code, m, syms, lg, res)

	lg.Printf("creating symbol table")
	symSec := synth.NewSymtab(f, syms)
	lg.Printf("creating string table")
	strSec := synth.NewStrtab()

	lg.Printf("syncing sections")
	pad, err := obj.Headroom(f, symSec, cfg.Padding, symSec.Name, strSec.Name)
	if err != nil {
		return nil, err
	}
	if err := obj.AppendSection(f, symSec, pad); err != nil {
		return nil, err
	}
	if err := obj.AppendSection(f, strSec, 0); err != nil {
		return nil, err
	}
	if err := f.Sync(); err != nil {
		return nil, err
	}
	res.SymtabOffset, res.StrtabOffset = symSec.Offset, strSec.Offset

	img, err := f.Bytes()
	if err != nil {
		return nil, err
	}
	// Release the input before the output exists, in case they are
	// the same file.
	if err := f.Close(); err != nil {
		return nil, err
	}

	lg.Printf("writing modified ELF to %s", cfg.Output)
	if err := writeFile(cfg.Output, img); err != nil {
		return nil, err
	}
	res.Size = int64(len(img))
	lg.Printf("done")
	return res, nil
}

func checkEntries(f *obj.File, text *obj.Section, syms obj.Symbols, strict bool, lg *log.Logger, res *Result) error {
	if !asm.Supported(f.Arch) {
		lg.Printf("not checking symbol addresses: no disassembler for %s", f.Arch)
		return nil
	}
	code, ok := text.Content.(obj.Raw)
	if !ok {
		return fmt.Errorf("code section %s has %T content", text.Name, text.Content)
	}
	addrs := make([]uint64, len(syms))
	for i := range syms {
		addrs[i] = syms[i].Value
	}
	r, err := asm.CheckEntries(f.Arch, code, text.Addr, addrs)
	if err != nil {
		return err
	}
	res.Entries = r
	lg.Printf("checked %d symbol addresses: %d outside %s, %d not at an instruction, %d jump thunks", r.Checked, len(r.Outside), text.Name, len(r.Invalid), r.Thunks)
	if strict && r.Bad() > 0 {
		var i int
		if len(r.Outside) > 0 {
			i = r.Outside[0]
		} else {
			i = r.Invalid[0]
		}
		return fmt.Errorf("%d symbols do not point at code in %s, first %q at %#x", r.Bad(), text.Name, syms[i].Name, syms[i].Value)
	}
	return nil
}

// crossCheck compares syms and the APIs of m with the file's dynamic
// symbols.
func crossCheck(f *obj.File, code elf.SectionIndex, m *metadata.AddressMap, syms obj.Symbols, lg *log.Logger, res *Result) {
	var dyn obj.Symbols
	for _, s := range f.Sections {
		if s.Type == elf.SHT_DYNSYM {
			dyn, _ = s.Content.(obj.Symbols)
			break
		}
	}
	if len(dyn) == 0 {
		return
	}
	tab := symtab.NewTable(dyn)
	for i := range syms {
		if id := tab.Addr(code, syms[i].Value); id != symtab.NoSym && dyn[id].Value == syms[i].Value {
			res.Exports++
		}
	}
	for _, api := range m.APIs {
		if id := tab.Name(api.Name); id != symtab.NoSym && dyn[id].Value != api.Addr {
			res.MovedAPIs = append(res.MovedAPIs, api.Name)
		}
	}
	lg.Printf("%d symbols start at exported functions", res.Exports)
	if len(res.MovedAPIs) > 0 {
		lg.Printf("%d APIs are exported at other addresses, first %s; is the metadata for this binary?", len(res.MovedAPIs), res.MovedAPIs[0])
	}
}

// writeFile writes data to path through a temporary file in the same
// directory.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o755); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
