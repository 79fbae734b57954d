// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"io"
	"sort"

	json "github.com/goccy/go-json"
)

// A SourceMap describes the mapping between source code line numbers and
// machine code addresses.
type SourceMap struct {
	Origin uint16
	Size   uint32
	CRC    uint32
	File   string
	Lines  []SourceLine
	Labels []Export
}

// A SourceLine represents a mapping between a machine code address and
// the source code line used to generate it.
type SourceLine struct {
	Address int // Machine code address
	Line    int // Source code line number
}

// An Export describes the address of a label.
type Export struct {
	Label   string
	Address uint16
}

// Search searches the source map for a mapping with the requested address.
// It returns -1 if no source line generated code at the address.
func (s *SourceMap) Search(addr int) (filename string, line int) {
	i := sort.Search(len(s.Lines), func(i int) bool {
		return s.Lines[i].Address >= addr
	})
	if i < len(s.Lines) && s.Lines[i].Address == addr {
		return s.File, s.Lines[i].Line
	}
	return "", -1
}

// Label returns the name of the label at the requested address, if any.
func (s *SourceMap) Label(addr uint16) (string, bool) {
	for _, e := range s.Labels {
		if e.Address == addr {
			return e.Label, true
		}
	}
	return "", false
}

// ReadFrom reads the contents of an exported source map file.
func (s *SourceMap) ReadFrom(r io.Reader) (n int64, err error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}

	err = json.Unmarshal(b, s)
	if err != nil {
		return 0, err
	}
	return int64(len(b)), nil
}

// WriteTo writes the contents of the source map to an output stream.
func (s *SourceMap) WriteTo(w io.Writer) (n int64, err error) {
	b, err := json.Marshal(*s)
	if err != nil {
		return 0, err
	}

	nn, err := w.Write(b)
	return int64(nn), err
}
