// Copyright 2020 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"bytes"
	"fmt"

	"github.com/elfsym/elfsym/arch"
)

// Reader is a cursor for decoding fixed-layout records from a byte
// slice. Reads past the end of the data panic; callers check Avail
// first when the data comes from an untrusted file.
type Reader struct {
	p      []byte
	o      int // Offset into p
	layout arch.Layout
}

func NewReader(p []byte, layout arch.Layout) *Reader {
	return &Reader{p, 0, layout}
}

// Offset returns the position of r's cursor.
func (r *Reader) Offset() int {
	return r.o
}

// SetOffset moves r's cursor to the given offset from the beginning of
// r's data.
func (r *Reader) SetOffset(offset int) {
	if offset < 0 || offset >= len(r.p) {
		r.badOffset(offset)
	}
	r.o = offset
}

func (r *Reader) badOffset(offset int) {
	panic(fmt.Sprintf("offset %d out of data's range [0,%d)", offset, len(r.p)))
}

// Avail returns the number of bytes remaining in r's data.
func (r *Reader) Avail() int {
	return len(r.p) - r.o
}

func (r *Reader) Uint8() uint8 {
	o := r.o
	r.o++
	return r.p[o]
}

func (r *Reader) Uint16() uint16 {
	o := r.o
	r.o += 2
	return r.layout.Uint16(r.p[o : o+2])
}

func (r *Reader) Uint32() uint32 {
	o := r.o
	r.o += 4
	return r.layout.Uint32(r.p[o : o+4])
}

func (r *Reader) Uint64() uint64 {
	o := r.o
	r.o += 8
	return r.layout.Uint64(r.p[o : o+8])
}

// Word reads a word using r's word size.
func (r *Reader) Word() uint64 {
	o := r.o
	r.o += r.layout.WordSize()
	return r.layout.Word(r.p[o:])
}

// CString reads a NULL-terminated string. The result omits the final
// NULL byte. If there is no NULL, this reads to the end of r's data.
func (r *Reader) CString() []byte {
	s := r.p[r.o:]
	n := bytes.IndexByte(s, 0)
	if n < 0 {
		r.o = len(r.p)
		return s
	}
	r.o += n + 1
	return s[:n]
}

// writer is the encoding counterpart of Reader. The destination must be
// large enough for everything written to it.
type writer struct {
	p      []byte
	o      int
	layout arch.Layout
}

func newWriter(p []byte, layout arch.Layout) *writer {
	return &writer{p, 0, layout}
}

func (w *writer) uint8(v uint8) {
	w.p[w.o] = v
	w.o++
}

func (w *writer) uint16(v uint16) {
	w.layout.PutUint16(w.p[w.o:], v)
	w.o += 2
}

func (w *writer) uint32(v uint32) {
	w.layout.PutUint32(w.p[w.o:], v)
	w.o += 4
}

func (w *writer) uint64(v uint64) {
	w.layout.PutUint64(w.p[w.o:], v)
	w.o += 8
}

func (w *writer) word(v uint64) {
	w.layout.PutWord(w.p[w.o:], v)
	w.o += w.layout.WordSize()
}

func (w *writer) bytes(b []byte) {
	w.o += copy(w.p[w.o:], b)
}
