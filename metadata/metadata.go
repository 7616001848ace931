// Copyright 2021 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metadata decodes the address map written by Il2CppInspector's
// JSON metadata output.
//
// The document has the form
//
//	{"addressMap": {
//		"methodDefinitions": [{"virtualAddress": "0x...", "name": ..., "signature": ..., "dotNetSignature": ...}, ...],
//		"apis":              [{"virtualAddress": "0x...", "name": ..., "signature": ...}, ...],
//		"methodInvokers":    [{"virtualAddress": "0x...", "name": ..., "signature": ...}, ...]}}
//
// Fields not listed here are ignored.
package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// ErrBadAddress is returned for a virtual address that is not a 0x
// prefixed hexadecimal number.
var ErrBadAddress = errors.New("malformed virtual address")

// A Method is a managed method definition.
type Method struct {
	// Address is the virtual address as written in the document.
	Address string
	// Addr is Address decoded.
	Addr uint64

	Name      string
	Signature string

	// DotNetSignature is the method's signature in C# syntax.
	DotNetSignature string
}

// A Function is an API export or a method invoker.
type Function struct {
	Address   string
	Addr      uint64
	Name      string
	Signature string
}

// An AddressMap holds the records of an address map in document order.
type AddressMap struct {
	Methods  []Method
	APIs     []Function
	Invokers []Function
}

// Len returns the total number of records in m.
func (m *AddressMap) Len() int {
	return len(m.Methods) + len(m.APIs) + len(m.Invokers)
}

type jsonFile struct {
	AddressMap *jsonAddressMap `json:"addressMap"`
}

type jsonAddressMap struct {
	Methods  *[]jsonRecord `json:"methodDefinitions"`
	APIs     *[]jsonRecord `json:"apis"`
	Invokers *[]jsonRecord `json:"methodInvokers"`
}

type jsonRecord struct {
	VirtualAddress  *string `json:"virtualAddress"`
	Name            string  `json:"name"`
	Signature       string  `json:"signature"`
	DotNetSignature string  `json:"dotNetSignature"`
}

// ReadFile decodes the metadata document at path.
func ReadFile(path string) (*AddressMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Decode decodes a metadata document from r.
//
// The address map and all three of its record lists must be present.
// Every record must have a well-formed virtual address and a non-empty
// signature.
func Decode(r io.Reader) (*AddressMap, error) {
	var doc jsonFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding metadata: %w", err)
	}
	am := doc.AddressMap
	if am == nil {
		return nil, errors.New("missing addressMap")
	}

	var m AddressMap
	lists := []struct {
		key  string
		recs *[]jsonRecord
	}{
		{"methodDefinitions", am.Methods},
		{"apis", am.APIs},
		{"methodInvokers", am.Invokers},
	}
	for _, l := range lists {
		if l.recs == nil {
			return nil, fmt.Errorf("addressMap: missing %s", l.key)
		}
		for i, rec := range *l.recs {
			if rec.VirtualAddress == nil {
				return nil, fmt.Errorf("%s[%d]: missing virtualAddress", l.key, i)
			}
			addr, err := ParseAddr(*rec.VirtualAddress)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", l.key, i, err)
			}
			if rec.Signature == "" {
				return nil, fmt.Errorf("%s[%d] at %s: empty signature", l.key, i, *rec.VirtualAddress)
			}
			switch l.key {
			case "methodDefinitions":
				m.Methods = append(m.Methods, Method{*rec.VirtualAddress, addr, rec.Name, rec.Signature, rec.DotNetSignature})
			case "apis":
				m.APIs = append(m.APIs, Function{*rec.VirtualAddress, addr, rec.Name, rec.Signature})
			default:
				m.Invokers = append(m.Invokers, Function{*rec.VirtualAddress, addr, rec.Name, rec.Signature})
			}
		}
	}
	return &m, nil
}

// ParseAddr decodes a virtual address of the form 0x followed by
// hexadecimal digits. The prefix may also be written 0X.
func ParseAddr(s string) (uint64, error) {
	if len(s) < 3 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return 0, fmt.Errorf("%w %q", ErrBadAddress, s)
	}
	v, err := strconv.ParseUint(s[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrBadAddress, s, err)
	}
	return v, nil
}
