// Copyright 2014 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import "errors"

var errMemoryExceeded = errors.New("memory address space exceeded")

// memory represents the entire 16-bit address space of the machine the
// host assembles for.
type memory struct {
	data []byte
}

func newMemory() *memory {
	return &memory{
		data: make([]byte, 0x10000),
	}
}

// LoadByte reads a byte from memory at address 'addr'.
func (m *memory) LoadByte(addr uint16) byte {
	return m.data[addr]
}

// LoadBytes reads up to 'length' bytes of memory starting at address
// 'addr'. Reads stop at the top of the address space.
func (m *memory) LoadBytes(addr uint16, length int) []byte {
	end := min(int(addr)+length, len(m.data))
	return m.data[addr:end]
}

// StoreBytes stores the byte slice 'b' to memory starting at address
// 'addr'.
func (m *memory) StoreBytes(addr uint16, b []byte) error {
	if int(addr)+len(b) > len(m.data) {
		return errMemoryExceeded
	}
	copy(m.data[addr:], b)
	return nil
}

func (m *memory) clear() {
	clear(m.data)
}
