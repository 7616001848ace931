// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command elfsym adds a symbol table to a stripped IL2CPP shared object
// using the metadata written by Il2CppInspector.
//
// Usage:
//
//	elfsym [flags]
//
// By default it reads libil2cpp.so and metadata.json from the current
// directory and writes libil2cpp.sym.so. Defaults can also be set with
// ELFSYM_* environment variables.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/elfsym/elfsym/restore"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := restore.DefaultConfig()
	var quiet bool

	cmd := &cobra.Command{
		Use:   "elfsym",
		Short: "Add a symbol table to a stripped IL2CPP shared object",
		Long: `elfsym reads a stripped shared object and the JSON metadata that
Il2CppInspector produced for it, and writes a copy of the shared object
with a .symtab and .strtab naming every method, API and invoker.

Example: elfsym -b libil2cpp.so -m metadata.json -o libil2cpp.sym.so`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if quiet {
				cfg.Logger = nil
			} else {
				cfg.Logger.SetOutput(cmd.ErrOrStderr())
			}
			_, err := restore.Run(cfg)
			cobra.CheckErr(err)
		},
	}
	addFlags(cmd.Flags(), &cfg)
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

func addFlags(fs *pflag.FlagSet, cfg *restore.Config) {
	fs.StringVarP(&cfg.Binary, "binary", "b", cfg.Binary, "stripped shared object to read")
	fs.StringVarP(&cfg.Metadata, "metadata", "m", cfg.Metadata, "Il2CppInspector JSON metadata")
	fs.StringVarP(&cfg.Output, "output", "o", cfg.Output, "symbolized shared object to write")
	fs.StringVar(&cfg.CodeSection, "code-section", cfg.CodeSection, "name of the section symbols are bound to")
	fs.IntVar(&cfg.CodeIndex, "code-index", cfg.CodeIndex, "index of the section symbols are bound to, overriding --code-section if positive")
	fs.Uint64Var(&cfg.Padding, "padding", cfg.Padding, "minimum gap in bytes before the new symbol table")
	fs.BoolVar(&cfg.SynthesizeSizes, "sizes", cfg.SynthesizeSizes, "give each symbol a size reaching to the next symbol")
	fs.BoolVar(&cfg.Strict, "strict", cfg.Strict, "fail if a symbol does not point at code")
}
