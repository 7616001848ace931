// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package obj

import (
	"errors"
	"fmt"
)

// AppendSection adds s as the last section of f.
//
// s is placed padding bytes past the end of the current last section.
// The end is computed from the larger of that section's declared size
// and the size of its content, because the declared size of a section
// read from a file may understate what its content encodes to. padding
// reserves room for content that will grow before the file is
// serialized.
//
// If f has no sections, s is appended at the offset it already has.
func AppendSection(f *File, s *Section, padding uint64) error {
	if len(f.Sections) == 0 {
		f.Sections = append(f.Sections, s)
		f.synced = false
		return nil
	}

	last, err := f.lastSection()
	if err != nil {
		return err
	}
	size := max(last.Size, f.ContentSize(last))
	off := last.Offset + size
	if off < last.Offset || off+padding < off {
		return fmt.Errorf("appending section %s: offset overflows after %s at %#x+%#x+%#x", s.Name, last.Name, last.Offset, size, padding)
	}
	s.Offset = off + padding
	f.Sections = append(f.Sections, s)
	f.synced = false
	return nil
}

func (f *File) lastSection() (*Section, error) {
	if len(f.Sections) == 0 || f.Sections[len(f.Sections)-1] == nil {
		return nil, errors.New("section table is empty")
	}
	return f.Sections[len(f.Sections)-1], nil
}

// Headroom returns the padding to pass to AppendSection for s.
//
// The padding is at least minPadding. If the current last section is
// the section name table, the padding also covers the bytes it grows
// by when names are added to it at Sync. On top of that comes whatever
// is needed to align s to its Addralign.
func Headroom(f *File, s *Section, minPadding uint64, names ...string) (uint64, error) {
	if s.Addralign > 1 && s.Addralign&(s.Addralign-1) != 0 {
		return 0, fmt.Errorf("section %s: alignment %d is not a power of 2", s.Name, s.Addralign)
	}
	if len(f.Sections) == 0 {
		return 0, nil
	}
	last, err := f.lastSection()
	if err != nil {
		return 0, err
	}

	pad := minPadding
	if len(f.Sections)-1 == f.Shstrndx {
		if shstr, ok := last.Content.(*Strtab); ok {
			pad = max(pad, shstr.Projected(names...))
		}
	}

	off := last.Offset + max(last.Size, f.ContentSize(last)) + pad
	return pad + roundUp2(off, s.Addralign) - off, nil
}
