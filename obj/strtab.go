// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"bytes"
	"fmt"

	"golang.org/x/sys/unix"
)

// A Strtab is the content of a SHT_STRTAB section: NUL-terminated
// strings addressed by byte offset.
//
// Strings are only ever appended, so offsets handed out earlier stay
// valid as the table grows.
type Strtab struct {
	buf   []byte
	index map[string]uint32

	// search is set for tables read from a file. Add then looks for the
	// string anywhere in the existing data, including as the suffix of
	// a longer string, before appending it.
	search bool
}

// NewStrtab returns a string table holding only the empty string.
func NewStrtab() *Strtab {
	return &Strtab{buf: []byte{0}, index: map[string]uint32{"": 0}}
}

// loadStrtab returns a string table over data, which it takes
// ownership of.
func loadStrtab(data []byte) *Strtab {
	return &Strtab{buf: data, index: map[string]uint32{}, search: true}
}

func (t *Strtab) Size(f *File) uint64 { return uint64(len(t.buf)) }

func (t *Strtab) encode(f *File, b []byte) { copy(b, t.buf) }

// Len returns the current size of the table in bytes.
func (t *Strtab) Len() int {
	return len(t.buf)
}

// Bytes returns the table's data. The caller must not modify it.
func (t *Strtab) Bytes() []byte {
	return t.buf
}

// Lookup returns the string at offset off.
func (t *Strtab) Lookup(off uint32) ([]byte, bool) {
	if uint64(off) >= uint64(len(t.buf)) {
		return nil, false
	}
	s := t.buf[off:]
	if n := bytes.IndexByte(s, 0); n >= 0 {
		s = s[:n]
	}
	return s, true
}

// Add returns the offset of name in t, appending it if it is not
// already present. Names containing a NUL byte cannot be represented
// and are rejected.
func (t *Strtab) Add(name string) (uint32, error) {
	if off, ok := t.find(name); ok {
		return off, nil
	}
	data, err := unix.ByteSliceFromString(name)
	if err != nil {
		return 0, fmt.Errorf("string %q: %w", name, err)
	}
	off := uint64(len(t.buf))
	if off+uint64(len(data)) > 1<<32 {
		return 0, fmt.Errorf("string table exceeds 4GiB adding %q", name)
	}
	t.buf = append(t.buf, data...)
	t.index[name] = uint32(off)
	return uint32(off), nil
}

func (t *Strtab) find(name string) (uint32, bool) {
	if off, ok := t.index[name]; ok {
		return off, true
	}
	if name == "" && len(t.buf) > 0 && t.buf[0] == 0 {
		return 0, true
	}
	if !t.search {
		return 0, false
	}
	i := bytes.Index(t.buf, append([]byte(name), 0))
	if i < 0 {
		return 0, false
	}
	t.index[name] = uint32(i)
	return uint32(i), true
}

// Projected returns how many bytes t would grow by if names were added
// in order.
func (t *Strtab) Projected(names ...string) uint64 {
	var n uint64
	seen := make(map[string]bool)
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := t.find(name); !ok {
			n += uint64(len(name)) + 1
		}
	}
	return n
}
