// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"io"
	"testing"
)

func TestFlags(t *testing.T) {
	for _, name := range []string{"ELFSYM_METADATA", "ELFSYM_CODE_SECTION"} {
		t.Setenv(name, "")
	}
	cmd := newRootCmd()
	err := cmd.ParseFlags([]string{"-b", "in.so", "--output=out.so", "--code-index", "11", "--padding", "0", "--strict"})
	if err != nil {
		t.Fatal(err)
	}
	fs := cmd.Flags()
	for name, want := range map[string]string{
		"binary":       "in.so",
		"metadata":     "metadata.json",
		"output":       "out.so",
		"code-section": ".text",
		"code-index":   "11",
		"padding":      "0",
		"strict":       "true",
		"sizes":        "false",
	} {
		f := fs.Lookup(name)
		if f == nil {
			t.Errorf("no flag %s", name)
			continue
		}
		if f.Value.String() != want {
			t.Errorf("flag %s: want %q, got %q", name, want, f.Value.String())
		}
	}
}

func TestArgsRejected(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"extra"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.Execute(); err == nil {
		t.Errorf("Execute with a positional argument succeeded")
	}
}
