// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package arch

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"testing"
)

func TestLayoutOrder(t *testing.T) {
	data := []byte{0xff, 0xfe, 0xfd, 0xfc, 0xfb, 0xfa, 0xf9, 0xf8}
	check := func(layout Layout, label string, want, got interface{}) {
		t.Helper()
		if want != got {
			t.Errorf("for %s %s: want %v, got %v", layout.Order(), label, want, got)
		}
	}

	l := NewLayout(binary.LittleEndian, 1)
	check(l, "Uint16", uint16(0xfeff), l.Uint16(data))
	check(l, "Uint32", uint32(0xfcfdfeff), l.Uint32(data))
	check(l, "Uint64", uint64(0xf8f9fafbfcfdfeff), l.Uint64(data))

	l = NewLayout(binary.BigEndian, 1)
	check(l, "Uint16", uint16(0xfffe), l.Uint16(data))
	check(l, "Uint32", uint32(0xfffefdfc), l.Uint32(data))
	check(l, "Uint64", uint64(0xfffefdfcfbfaf9f8), l.Uint64(data))
}

func TestLayoutWord(t *testing.T) {
	data := []byte{0xff, 0xfe, 0xfd, 0xfc, 0xfb, 0xfa, 0xf9, 0xf8}
	check := func(wordSize int, want uint64) {
		t.Helper()
		l := NewLayout(binary.LittleEndian, wordSize)
		got := l.Word(data)
		if want != got {
			t.Errorf("for word size %d: want %#x, got %#x", wordSize, want, got)
		}
	}
	check(1, 0xff)
	check(2, 0xfeff)
	check(4, 0xfcfdfeff)
	check(8, 0xf8f9fafbfcfdfeff)
}

func TestLayoutPut(t *testing.T) {
	for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
		l := NewLayout(order, 8)

		got := make([]byte, 8)
		want := make([]byte, 8)
		l.PutUint16(got, 0x1234)
		order.PutUint16(want, 0x1234)
		if !bytes.Equal(got[:2], want[:2]) {
			t.Errorf("%s PutUint16: want % x, got % x", order, want[:2], got[:2])
		}
		l.PutUint32(got, 0x12345678)
		order.PutUint32(want, 0x12345678)
		if !bytes.Equal(got[:4], want[:4]) {
			t.Errorf("%s PutUint32: want % x, got % x", order, want[:4], got[:4])
		}
		l.PutWord(got, 0x0102030405060708)
		order.PutUint64(want, 0x0102030405060708)
		if !bytes.Equal(got, want) {
			t.Errorf("%s PutWord: want % x, got % x", order, want, got)
		}
		if v := l.Uint64(got); v != 0x0102030405060708 {
			t.Errorf("%s Uint64 after PutWord: got %#x", order, v)
		}
	}
}

func TestLayoutPutWordOverflow(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("PutWord of a 64-bit value into a 4 byte word did not panic")
		}
	}()
	NewLayout(binary.LittleEndian, 4).PutWord(make([]byte, 4), 1<<32)
}

func TestForMachine(t *testing.T) {
	if a := ForMachine(elf.EM_AARCH64); a != ARM64 {
		t.Errorf("EM_AARCH64: want %s, got %s", ARM64, a)
	}
	if a := ForMachine(elf.EM_X86_64); a != AMD64 {
		t.Errorf("EM_X86_64: want %s, got %s", AMD64, a)
	}
	if a := ForMachine(elf.EM_MIPS); a != nil {
		t.Errorf("EM_MIPS: want nil, got %s", a)
	}
}
