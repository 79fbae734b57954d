// Copyright 2014 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements an SM83 instruction set disassembler.
package disasm

import (
	"fmt"

	"github.com/beevik/gbasm"
)

// A Memory provides read access to machine code by address.
// *gbasm.Output satisfies it.
type Memory interface {
	LoadBytes(addr uint16, length int) []byte
}

// An entry records which descriptor and operand codes produce a given
// opcode byte.
type entry struct {
	desc  *gbasm.Descriptor
	left  byte
	right byte
}

var (
	unprefixed [256]*entry
	prefixed   [256]*entry
)

// Build the reverse opcode tables. When several descriptors produce the
// same byte, the first one in table order names it.
func init() {
	for _, d := range gbasm.Opcodes {
		table := &unprefixed
		if d.Flags.Has(gbasm.FlagPrefix) {
			table = &prefixed
		}
		for _, l := range codes(d.Left, d.LeftShift) {
			for _, r := range codes(d.Right, d.RightShift) {
				b := d.Encoding
				if d.LeftShift >= 0 {
					b |= l << d.LeftShift
				}
				if d.RightShift >= 0 {
					b |= r << d.RightShift
				}
				if table[b] == nil {
					table[b] = &entry{desc: d, left: l, right: r}
				}
			}
		}
	}
}

// Return every code an operand kind can embed at the given shift.
func codes(k gbasm.OperandKind, shift int) []byte {
	if shift < 0 {
		return []byte{fixedCode(k)}
	}
	n := 0
	switch k {
	case gbasm.OperandReg8, gbasm.OperandBit, gbasm.OperandRST:
		n = 8
	case gbasm.OperandReg16SP, gbasm.OperandReg16AF, gbasm.OperandCond:
		n = 4
	case gbasm.OperandMemBCDE:
		n = 2
	}
	c := make([]byte, n)
	for i := range c {
		c[i] = byte(i)
	}
	return c
}

// Return the code of an operand kind that is not embedded in the
// encoding byte.
func fixedCode(k gbasm.OperandKind) byte {
	switch k {
	case gbasm.OperandA:
		return gbasm.RegA
	case gbasm.OperandHL:
		return gbasm.RegHL
	case gbasm.OperandSP:
		return gbasm.RegSP
	default:
		return 0
	}
}

var (
	reg8Name    = []string{"b", "c", "d", "e", "h", "l", "(hl)", "a"}
	reg16Name   = []string{"bc", "de", "hl", "sp"}
	reg16AFName = []string{"bc", "de", "hl", "af"}
	condName    = []string{"nz", "z", "nc", "c"}
	memRRName   = []string{"(bc)", "(de)"}
)

// Lookup returns the descriptor that decodes the opcode at the start of
// 'code', or nil if the bytes are not a valid SM83 opcode.
func Lookup(code []byte) *gbasm.Descriptor {
	if e := decode(code); e != nil {
		return e.desc
	}
	return nil
}

func decode(code []byte) *entry {
	switch {
	case len(code) == 0:
		return nil
	case code[0] == 0xcb:
		if len(code) < 2 {
			return nil
		}
		return prefixed[code[1]]
	default:
		return unprefixed[code[0]]
	}
}

// Disassemble the machine code in 'code', which starts at address 'addr'.
// Return a 'line' string representing the disassembled instruction and a
// 'next' address that starts the following line of machine code. Bytes
// that do not start a valid instruction are shown as a .db directive.
func Disassemble(code []byte, addr uint16) (line string, next uint16) {
	e := decode(code)
	if e == nil || len(code) < e.desc.Length {
		if len(code) == 0 {
			return "", addr
		}
		return fmt.Sprintf(".db $%02X", code[0]), addr + 1
	}

	d := e.desc
	imm := code[1:d.Length]
	if d.Flags.Has(gbasm.FlagPrefix) {
		imm = code[2:d.Length]
	}

	signed := d.Flags.Has(gbasm.FlagImmS8)
	line = d.Mnemonic
	if d.LeftPresent() {
		line += " " + operandString(d.Left, e.left, imm, signed)
		if d.RightPresent() {
			line += "," + operandString(d.Right, e.right, imm, signed)
		}
	}
	return line, addr + uint16(d.Length)
}

// DisassembleMemory disassembles the instruction at address 'addr' in
// memory 'm'.
func DisassembleMemory(m Memory, addr uint16) (line string, next uint16) {
	return Disassemble(m.LoadBytes(addr, 3), addr)
}

// Format an operand. 'imm' holds the instruction's trailing immediate
// bytes.
func operandString(k gbasm.OperandKind, code byte, imm []byte, signed bool) string {
	switch k {
	case gbasm.OperandReg8:
		return reg8Name[code]
	case gbasm.OperandA:
		return "a"
	case gbasm.OperandReg16SP:
		return reg16Name[code]
	case gbasm.OperandReg16AF:
		return reg16AFName[code]
	case gbasm.OperandHL:
		return "hl"
	case gbasm.OperandSP:
		return "sp"
	case gbasm.OperandMemBCDE:
		return memRRName[code]
	case gbasm.OperandMemHL:
		return "(hl)"
	case gbasm.OperandMemHLI:
		return "(hl+)"
	case gbasm.OperandMemHLD:
		return "(hl-)"
	case gbasm.OperandMemC:
		return "(c)"
	case gbasm.OperandCond:
		return condName[code]
	case gbasm.OperandBit:
		return fmt.Sprintf("%d", code)
	case gbasm.OperandRST:
		return fmt.Sprintf("$%02X", code*8)
	case gbasm.OperandImm:
		return immString(imm, signed)
	case gbasm.OperandMemImm:
		return "(" + immString(imm, false) + ")"
	case gbasm.OperandSPImm:
		if v := int8(imm[0]); v < 0 {
			return fmt.Sprintf("sp-%d", -int(v))
		}
		return fmt.Sprintf("sp+%d", imm[0])
	default:
		return "?"
	}
}

// Format an immediate. One-byte immediates are shown in hex unless they
// are signed displacements, which are shown in decimal.
func immString(imm []byte, signed bool) string {
	switch {
	case len(imm) == 2:
		return fmt.Sprintf("$%04X", uint16(imm[0])|uint16(imm[1])<<8)
	case len(imm) == 1 && signed:
		return fmt.Sprintf("%d", int8(imm[0]))
	case len(imm) == 1:
		return fmt.Sprintf("$%02X", imm[0])
	default:
		return ""
	}
}
