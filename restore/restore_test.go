// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package restore

import (
	"bytes"
	"debug/elf"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/elfsym/elfsym/internal/elftest"
	"github.com/elfsym/elfsym/metadata"
)

const testMetadata = `{"addressMap": {
	"methodDefinitions": [
		{"virtualAddress": "0x1000", "name": "A", "signature": "A()", "dotNetSignature": "void A()"}
	],
	"apis": [
		{"virtualAddress": "0x1020", "name": "il2cpp_domain_get", "signature": "B()"}
	],
	"methodInvokers": [
		{"virtualAddress": "0x1010", "name": "C", "signature": "C(void*)"}
	]}}`

// setup writes an arm64 test shared object and metadata document to a
// temporary directory and returns a configuration for them.
func setup(t *testing.T, md string) (Config, []byte) {
	t.Helper()
	return setupMachine(t, elf.EM_AARCH64, md)
}

func setupMachine(t *testing.T, machine elf.Machine, md string) (Config, []byte) {
	t.Helper()
	dir := t.TempDir()
	img, _ := elftest.SharedObject(machine).Build()
	cfg := Config{
		Binary:      filepath.Join(dir, "libil2cpp.so"),
		Metadata:    filepath.Join(dir, "metadata.json"),
		Output:      filepath.Join(dir, "libil2cpp.sym.so"),
		CodeSection: ".text",
		CodeIndex:   -1,
		Padding:     DefaultPadding,
	}
	if err := os.WriteFile(cfg.Binary, img, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(cfg.Metadata, []byte(md), 0o644); err != nil {
		t.Fatal(err)
	}
	return cfg, img
}

func TestRun(t *testing.T) {
	cfg, img := setup(t, testMetadata)
	var logBuf bytes.Buffer
	cfg.Logger = log.New(&logBuf, "", 0)

	res, err := Run(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Symbols != 3 || res.CodeSection != elftest.TextIndex {
		t.Errorf("unexpected result %+v", res)
	}
	if res.Entries == nil || res.Entries.Checked != 3 || res.Entries.Bad() != 0 {
		t.Errorf("unexpected entry check %+v", res.Entries)
	}
	if res.SymtabOffset%8 != 0 || res.StrtabOffset <= res.SymtabOffset {
		t.Errorf("unexpected table offsets %#x, %#x", res.SymtabOffset, res.StrtabOffset)
	}
	// A and B start at il2cpp_init and il2cpp_domain_get. C is inside
	// il2cpp_init.
	if res.Exports != 2 || len(res.MovedAPIs) != 0 {
		t.Errorf("want 2 exports and no moved APIs, got %d and %v", res.Exports, res.MovedAPIs)
	}
	if !strings.Contains(logBuf.String(), "3 methods found") {
		t.Errorf("progress log missing the record count:\n%s", logBuf.String())
	}

	out, err := os.ReadFile(cfg.Output)
	if err != nil {
		t.Fatal(err)
	}
	if int64(len(out)) != res.Size {
		t.Errorf("want %d bytes written, got %d", res.Size, len(out))
	}
	in, err := elf.NewFile(bytes.NewReader(img))
	if err != nil {
		t.Fatal(err)
	}
	ef, err := elf.NewFile(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}

	// The original sections are all still there, unmoved, with their
	// data intact.
	for i, s := range in.Sections {
		o := ef.Sections[i]
		if o.Name != s.Name || o.Offset != s.Offset && s.Name != ".shstrtab" {
			t.Errorf("section %d: want %s at %#x, got %s at %#x", i, s.Name, s.Offset, o.Name, o.Offset)
		}
		if s.Type == elf.SHT_NOBITS || s.Name == ".shstrtab" {
			continue
		}
		want, _ := s.Data()
		got, _ := o.Data()
		if !bytes.Equal(want, got) {
			t.Errorf("section %s data changed", s.Name)
		}
	}
	if typ := ef.Sections[elftest.RelaIndex].Type; typ != elf.SHT_NULL {
		t.Errorf("want relocation section emitted as %s, got %s", elf.SHT_NULL, typ)
	}
	if len(ef.Sections) != len(in.Sections)+2 {
		t.Fatalf("want %d sections, got %d", len(in.Sections)+2, len(ef.Sections))
	}
	symtab, strtab := ef.Sections[len(in.Sections)], ef.Sections[len(in.Sections)+1]
	if symtab.Name != ".symtab" || strtab.Name != ".strtab" || int(symtab.Link) != len(in.Sections)+1 {
		t.Errorf("want .symtab linked to .strtab, got %s (link %d) and %s", symtab.Name, symtab.Link, strtab.Name)
	}

	syms, err := ef.Symbols()
	if err != nil {
		t.Fatal(err)
	}
	want := []struct {
		name  string
		value uint64
	}{
		{"A()", 0x1000},
		{"B()", 0x1020},
		{"C(void*)", 0x1010},
	}
	if len(syms) != len(want) {
		t.Fatalf("want %d symbols, got %d", len(want), len(syms))
	}
	for i, w := range want {
		s := syms[i]
		if s.Name != w.name || s.Value != w.value || s.Section != elftest.TextIndex || elf.ST_TYPE(s.Info) != elf.STT_FUNC {
			t.Errorf("symbol %d: want %s@%#x in .text, got %+v", i, w.name, w.value, s)
		}
	}

	fi, err := os.Stat(cfg.Output)
	if err != nil {
		t.Fatal(err)
	}
	if fi.Mode().Perm()&0o100 == 0 {
		t.Errorf("output is not executable: %s", fi.Mode())
	}
}

func TestRunSynthesizeSizes(t *testing.T) {
	cfg, _ := setup(t, testMetadata)
	cfg.SynthesizeSizes = true
	res, err := Run(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Sized != 3 {
		t.Errorf("want 3 symbols sized, got %d", res.Sized)
	}
	ef, err := elf.Open(cfg.Output)
	if err != nil {
		t.Fatal(err)
	}
	defer ef.Close()
	syms, err := ef.Symbols()
	if err != nil {
		t.Fatal(err)
	}
	sizes := map[string]uint64{"A()": 0x10, "B()": 0x20, "C(void*)": 0x10}
	for _, s := range syms {
		if s.Size != sizes[s.Name] {
			t.Errorf("symbol %s: want size %#x, got %#x", s.Name, sizes[s.Name], s.Size)
		}
	}
}

func TestRunErrors(t *testing.T) {
	outside := strings.Replace(testMetadata, `"0x1020"`, `"0x9000"`, 1)
	for _, test := range []struct {
		name string
		md   string
		edit func(*Config)
		want string
	}{
		{"bad address", strings.Replace(testMetadata, `"0x1000"`, `"1000"`, 1), nil, "malformed virtual address"},
		{"bad document", `{"addressMap": {}}`, nil, "missing methodDefinitions"},
		{"no code section", testMetadata, func(c *Config) { c.CodeSection = ".data" }, "not executable"},
		{"strict", outside, func(c *Config) { c.Strict = true }, `first "B()" at 0x9000`},
		{"missing binary", testMetadata, func(c *Config) { c.Binary += ".missing" }, "no such file"},
	} {
		cfg, _ := setup(t, test.md)
		if test.edit != nil {
			test.edit(&cfg)
		}
		_, err := Run(cfg)
		if err == nil {
			t.Errorf("%s: Run succeeded unexpectedly", test.name)
			continue
		}
		if !strings.Contains(err.Error(), test.want) {
			t.Errorf("%s: want error containing %q, got %q", test.name, test.want, err)
		}
		if _, err := os.Stat(cfg.Output); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s: output exists after a failed run", test.name)
		}
		entries, _ := os.ReadDir(filepath.Dir(cfg.Output))
		if len(entries) != 2 {
			t.Errorf("%s: want only the inputs left, got %d files", test.name, len(entries))
		}
	}

	// Without Strict the same addresses only get reported.
	cfg, _ := setup(t, outside)
	res, err := Run(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Entries.Outside) != 1 || res.Entries.Outside[0] != 1 {
		t.Errorf("want symbol 1 outside, got %+v", res.Entries)
	}
}

func TestRunMovedAPI(t *testing.T) {
	cfg, _ := setup(t, strings.Replace(testMetadata, `"il2cpp_domain_get"`, `"il2cpp_init"`, 1))
	res, err := Run(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.MovedAPIs) != 1 || res.MovedAPIs[0] != "il2cpp_init" {
		t.Errorf("want il2cpp_init reported as moved, got %v", res.MovedAPIs)
	}
}

func TestRunBadAddressSentinel(t *testing.T) {
	cfg, _ := setup(t, strings.Replace(testMetadata, `"0x1010"`, `"0xzz"`, 1))
	if _, err := Run(cfg); !errors.Is(err, metadata.ErrBadAddress) {
		t.Errorf("want ErrBadAddress, got %v", err)
	}
}

func TestRunUnsupportedMachine(t *testing.T) {
	// There is no disassembler or relocation decoder for RISC-V. The
	// entry check is skipped and the tables are still added.
	cfg, img := setupMachine(t, elf.EM_RISCV, testMetadata)
	var logBuf bytes.Buffer
	cfg.Logger = log.New(&logBuf, "", 0)
	res, err := Run(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if res.Entries != nil {
		t.Errorf("want no entry check, got %+v", res.Entries)
	}
	if !strings.Contains(logBuf.String(), "not checking symbol addresses") {
		t.Errorf("log does not mention the skipped check:\n%s", logBuf.String())
	}
	if res.Symbols != 3 || res.Exports != 2 {
		t.Errorf("unexpected result %+v", res)
	}

	out, err := os.ReadFile(cfg.Output)
	if err != nil {
		t.Fatal(err)
	}
	in, err := elf.NewFile(bytes.NewReader(img))
	if err != nil {
		t.Fatal(err)
	}
	ef, err := elf.NewFile(bytes.NewReader(out))
	if err != nil {
		t.Fatal(err)
	}
	if ef.Machine != elf.EM_RISCV {
		t.Errorf("want machine %s, got %s", elf.EM_RISCV, ef.Machine)
	}
	for i, s := range in.Sections {
		if s.Type == elf.SHT_NOBITS || s.Name == ".shstrtab" {
			continue
		}
		want, _ := s.Data()
		got, _ := ef.Sections[i].Data()
		if ef.Sections[i].Offset != s.Offset || !bytes.Equal(want, got) {
			t.Errorf("section %s moved or changed", s.Name)
		}
	}
	if typ := ef.Sections[elftest.RelaIndex].Type; typ != elf.SHT_NULL {
		t.Errorf("want relocation section emitted as %s, got %s", elf.SHT_NULL, typ)
	}
	if len(ef.Sections) != len(in.Sections)+2 {
		t.Fatalf("want %d sections, got %d", len(in.Sections)+2, len(ef.Sections))
	}
	symtab := ef.Sections[len(in.Sections)]
	if symtab.Type != elf.SHT_SYMTAB || int(symtab.Link) != len(in.Sections)+1 || symtab.Info != 4 {
		t.Errorf(".symtab: type %s link %d info %d", symtab.Type, symtab.Link, symtab.Info)
	}
	syms, err := ef.Symbols()
	if err != nil || len(syms) != 3 {
		t.Fatalf("want 3 symbols, got %d: %v", len(syms), err)
	}
}

func TestDefaultConfig(t *testing.T) {
	for _, name := range []string{"ELFSYM_BINARY", "ELFSYM_METADATA", "ELFSYM_OUTPUT", "ELFSYM_CODE_SECTION", "ELFSYM_PADDING", "ELFSYM_STRICT"} {
		t.Setenv(name, "")
	}
	cfg := DefaultConfig()
	if cfg.Binary != DefaultBinary || cfg.Metadata != DefaultMetadata || cfg.Output != DefaultOutput {
		t.Errorf("unexpected default paths %q %q %q", cfg.Binary, cfg.Metadata, cfg.Output)
	}
	if cfg.CodeSection != ".text" || cfg.CodeIndex != -1 || cfg.Padding != 500 || cfg.Strict {
		t.Errorf("unexpected defaults %+v", cfg)
	}

	t.Setenv("ELFSYM_BINARY", "game.so")
	t.Setenv("ELFSYM_CODE_SECTION", ".il2cpp")
	t.Setenv("ELFSYM_PADDING", "4096")
	t.Setenv("ELFSYM_STRICT", "true")
	cfg = DefaultConfig()
	if cfg.Binary != "game.so" || cfg.CodeSection != ".il2cpp" || cfg.Padding != 4096 || !cfg.Strict {
		t.Errorf("environment not applied: %+v", cfg)
	}
}
