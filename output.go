// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gbasm

import (
	"errors"
	"sync"
)

// Output errors
var (
	ErrOutputOverflow = errors.New("output exceeds 64K address space")
	ErrUnreserved     = errors.New("write exceeds reserved output")
	ErrOutOfBounds    = errors.New("address out of bounds")
)

// An Output is a Sink that accumulates machine code in memory. Space is
// reserved first, advancing the output address, and written later; a
// write may never run past the space reserved so far. An Output is safe
// for concurrent use.
type Output struct {
	mu       sync.Mutex
	origin   int    // address of the first byte
	reserved int    // number of bytes reserved
	code     []byte // bytes written
	err      error  // first reservation error
}

// NewOutput creates an empty output starting at address 'origin'.
func NewOutput(origin uint16) *Output {
	return &Output{origin: int(origin)}
}

// Reserve reserves n bytes at the current output address. Reserving past
// the end of the 64K address space records ErrOutputOverflow, which is
// returned by Err and by every later write.
func (o *Output) Reserve(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.origin+o.reserved+n > 0x10000 && o.err == nil {
		o.err = ErrOutputOverflow
	}
	o.reserved += n
}

// WriteByte writes a single byte into reserved space.
func (o *Output) WriteByte(b byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.write(b)
}

// WriteU16 writes a 16-bit value into reserved space, low byte first.
func (o *Output) WriteU16(v uint16) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.reserved-len(o.code) < 2 {
		return ErrUnreserved
	}
	if err := o.write(byte(v)); err != nil {
		return err
	}
	return o.write(byte(v >> 8))
}

func (o *Output) write(b byte) error {
	switch {
	case o.err != nil:
		return o.err
	case len(o.code) >= o.reserved:
		return ErrUnreserved
	}
	o.code = append(o.code, b)
	return nil
}

// Err returns the first reservation error, if any.
func (o *Output) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Origin returns the address of the first output byte.
func (o *Output) Origin() uint16 {
	return uint16(o.origin)
}

// Address returns the address at which the next reservation starts.
func (o *Output) Address() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.origin + o.reserved
}

// Written returns the number of bytes written so far.
func (o *Output) Written() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.code)
}

// Unwritten returns the number of reserved bytes not yet written.
func (o *Output) Unwritten() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.reserved - len(o.code)
}

// Bytes returns a copy of the bytes written so far.
func (o *Output) Bytes() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()
	b := make([]byte, len(o.code))
	copy(b, o.code)
	return b
}

// LoadByte reads a written byte from address 'addr'.
func (o *Output) LoadByte(addr uint16) (byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := int(addr) - o.origin
	if i < 0 || i >= len(o.code) {
		return 0, ErrOutOfBounds
	}
	return o.code[i], nil
}

// LoadBytes reads up to 'length' written bytes starting at address 'addr'.
func (o *Output) LoadBytes(addr uint16, length int) []byte {
	o.mu.Lock()
	defer o.mu.Unlock()

	i := int(addr) - o.origin
	if i < 0 || i >= len(o.code) {
		return nil
	}
	j := min(i+length, len(o.code))
	b := make([]byte, j-i)
	copy(b, o.code[i:j])
	return b
}

// Reset discards all reserved and written bytes and moves the output to
// a new origin.
func (o *Output) Reset(origin uint16) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.origin, o.reserved, o.code, o.err = int(origin), 0, nil, nil
}
