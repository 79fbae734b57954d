// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gbasm

import "fmt"

// Shorter names for the operand kinds used in the opcode data table.
const (
	oNone  = OperandNone
	oR8    = OperandReg8
	oA     = OperandA
	oRR    = OperandReg16SP
	oRRAF  = OperandReg16AF
	oHL    = OperandHL
	oSP    = OperandSP
	oMemRR = OperandMemBCDE
	oMemHL = OperandMemHL
	oHLI   = OperandMemHLI
	oHLD   = OperandMemHLD
	oMemC  = OperandMemC
	oN     = OperandImm
	oMemN  = OperandMemImm
	oSPN   = OperandSPImm
	oCC    = OperandCond
	oBit   = OperandBit
	oRST   = OperandRST
)

const ns = NoShift

// All SM83 opcode descriptors. When several descriptors share a
// mnemonic, the assembler selects the first one whose operand pattern
// matches, so more specific patterns must precede more general ones.
var data = []Descriptor{
	{"nop", oNone, oNone, 0x00, 1, 0, ns, ns},
	{"halt", oNone, oNone, 0x76, 1, 0, ns, ns},
	{"stop", oNone, oNone, 0x10, 2, FlagStop, ns, ns},
	{"di", oNone, oNone, 0xf3, 1, 0, ns, ns},
	{"ei", oNone, oNone, 0xfb, 1, 0, ns, ns},
	{"daa", oNone, oNone, 0x27, 1, 0, ns, ns},
	{"cpl", oNone, oNone, 0x2f, 1, 0, ns, ns},
	{"ccf", oNone, oNone, 0x3f, 1, 0, ns, ns},
	{"scf", oNone, oNone, 0x37, 1, 0, ns, ns},
	{"rlca", oNone, oNone, 0x07, 1, 0, ns, ns},
	{"rla", oNone, oNone, 0x17, 1, 0, ns, ns},
	{"rrca", oNone, oNone, 0x0f, 1, 0, ns, ns},
	{"rra", oNone, oNone, 0x1f, 1, 0, ns, ns},
	{"reti", oNone, oNone, 0xd9, 1, 0, ns, ns},
	{"ret", oNone, oNone, 0xc9, 1, 0, ns, ns},
	{"ret", oCC, oNone, 0xc0, 1, 0, 3, ns},

	{"ld", oR8, oR8, 0x40, 1, FlagLoadReg8Reg8, 3, 0},
	{"ld", oR8, oN, 0x06, 2, FlagImmU8, 3, ns},
	{"ld", oA, oMemRR, 0x0a, 1, 0, ns, 4},
	{"ld", oMemRR, oA, 0x02, 1, 0, 4, ns},
	{"ld", oA, oHLI, 0x2a, 1, 0, ns, ns},
	{"ld", oA, oHLD, 0x3a, 1, 0, ns, ns},
	{"ld", oHLI, oA, 0x22, 1, 0, ns, ns},
	{"ld", oHLD, oA, 0x32, 1, 0, ns, ns},
	{"ld", oA, oMemC, 0xf2, 1, 0, ns, ns},
	{"ld", oMemC, oA, 0xe2, 1, 0, ns, ns},
	{"ld", oA, oMemN, 0xfa, 3, FlagImmU16, ns, ns},
	{"ld", oMemN, oA, 0xea, 3, FlagImmU16, ns, ns},
	{"ld", oMemN, oSP, 0x08, 3, FlagImmU16, ns, ns},
	{"ld", oRR, oN, 0x01, 3, FlagImmU16, 4, ns},
	{"ld", oSP, oHL, 0xf9, 1, 0, ns, ns},
	{"ld", oHL, oSPN, 0xf8, 2, FlagImmS8, ns, ns},
	{"ldh", oA, oMemN, 0xf0, 2, FlagImmU8, ns, ns},
	{"ldh", oMemN, oA, 0xe0, 2, FlagImmU8, ns, ns},
	{"ldh", oA, oMemC, 0xf2, 1, 0, ns, ns},
	{"ldh", oMemC, oA, 0xe2, 1, 0, ns, ns},
	{"ldi", oA, oMemHL, 0x2a, 1, 0, ns, ns},
	{"ldi", oMemHL, oA, 0x22, 1, 0, ns, ns},
	{"ldd", oA, oMemHL, 0x3a, 1, 0, ns, ns},
	{"ldd", oMemHL, oA, 0x32, 1, 0, ns, ns},
	{"ldhl", oSP, oN, 0xf8, 2, FlagImmS8, ns, ns},
	{"push", oRRAF, oNone, 0xc5, 1, 0, 4, ns},
	{"pop", oRRAF, oNone, 0xc1, 1, 0, 4, ns},

	{"add", oA, oR8, 0x80, 1, 0, ns, 0},
	{"add", oA, oN, 0xc6, 2, FlagImmU8 | FlagAddImm, ns, ns},
	{"add", oHL, oRR, 0x09, 1, 0, ns, 4},
	{"add", oSP, oN, 0xe8, 2, FlagImmS8, ns, ns},
	{"adc", oA, oR8, 0x88, 1, 0, ns, 0},
	{"adc", oA, oN, 0xce, 2, FlagImmU8, ns, ns},
	{"adc", oR8, oNone, 0x88, 1, 0, 0, ns},
	{"adc", oN, oNone, 0xce, 2, FlagImmU8, ns, ns},
	{"sub", oA, oR8, 0x90, 1, 0, ns, 0},
	{"sub", oA, oN, 0xd6, 2, FlagImmU8 | FlagSubImm, ns, ns},
	{"sub", oSP, oN, 0xe8, 2, FlagImmS8 | FlagNegateImm, ns, ns},
	{"sub", oR8, oNone, 0x90, 1, 0, 0, ns},
	{"sub", oN, oNone, 0xd6, 2, FlagImmU8 | FlagSubImm, ns, ns},
	{"sbc", oA, oR8, 0x98, 1, 0, ns, 0},
	{"sbc", oA, oN, 0xde, 2, FlagImmU8, ns, ns},
	{"sbc", oR8, oNone, 0x98, 1, 0, 0, ns},
	{"sbc", oN, oNone, 0xde, 2, FlagImmU8, ns, ns},
	{"and", oA, oR8, 0xa0, 1, 0, ns, 0},
	{"and", oA, oN, 0xe6, 2, FlagImmU8, ns, ns},
	{"and", oR8, oNone, 0xa0, 1, 0, 0, ns},
	{"and", oN, oNone, 0xe6, 2, FlagImmU8, ns, ns},
	{"xor", oA, oR8, 0xa8, 1, 0, ns, 0},
	{"xor", oA, oN, 0xee, 2, FlagImmU8, ns, ns},
	{"xor", oR8, oNone, 0xa8, 1, 0, 0, ns},
	{"xor", oN, oNone, 0xee, 2, FlagImmU8, ns, ns},
	{"or", oA, oR8, 0xb0, 1, 0, ns, 0},
	{"or", oA, oN, 0xf6, 2, FlagImmU8, ns, ns},
	{"or", oR8, oNone, 0xb0, 1, 0, 0, ns},
	{"or", oN, oNone, 0xf6, 2, FlagImmU8, ns, ns},
	{"cp", oA, oR8, 0xb8, 1, 0, ns, 0},
	{"cp", oA, oN, 0xfe, 2, FlagImmU8, ns, ns},
	{"cp", oR8, oNone, 0xb8, 1, 0, 0, ns},
	{"cp", oN, oNone, 0xfe, 2, FlagImmU8, ns, ns},
	{"inc", oR8, oNone, 0x04, 1, 0, 3, ns},
	{"inc", oRR, oNone, 0x03, 1, 0, 4, ns},
	{"dec", oR8, oNone, 0x05, 1, 0, 3, ns},
	{"dec", oRR, oNone, 0x0b, 1, 0, 4, ns},

	{"jp", oN, oNone, 0xc3, 3, FlagImmU16, ns, ns},
	{"jp", oCC, oN, 0xc2, 3, FlagImmU16, 3, ns},
	{"jp", oHL, oNone, 0xe9, 1, 0, ns, ns},
	{"jp", oMemHL, oNone, 0xe9, 1, 0, ns, ns},
	{"jr", oN, oNone, 0x18, 2, FlagImmS8, ns, ns},
	{"jr", oCC, oN, 0x20, 2, FlagImmS8, 3, ns},
	{"call", oN, oNone, 0xcd, 3, FlagImmU16, ns, ns},
	{"call", oCC, oN, 0xc4, 3, FlagImmU16, 3, ns},
	{"rst", oRST, oNone, 0xc7, 1, 0, 3, ns},

	{"rlc", oR8, oNone, 0x00, 2, FlagPrefix, 0, ns},
	{"rrc", oR8, oNone, 0x08, 2, FlagPrefix, 0, ns},
	{"rl", oR8, oNone, 0x10, 2, FlagPrefix, 0, ns},
	{"rr", oR8, oNone, 0x18, 2, FlagPrefix, 0, ns},
	{"sla", oR8, oNone, 0x20, 2, FlagPrefix, 0, ns},
	{"sra", oR8, oNone, 0x28, 2, FlagPrefix, 0, ns},
	{"swap", oR8, oNone, 0x30, 2, FlagPrefix, 0, ns},
	{"srl", oR8, oNone, 0x38, 2, FlagPrefix, 0, ns},
	{"bit", oBit, oR8, 0x40, 2, FlagPrefix, 3, 0},
	{"res", oBit, oR8, 0x80, 2, FlagPrefix, 3, 0},
	{"set", oBit, oR8, 0xc0, 2, FlagPrefix, 3, 0},
}

// Opcodes holds every SM83 opcode descriptor in table order.
var Opcodes []*Descriptor

var variants map[string][]*Descriptor

// Build the Opcodes table.
func init() {
	variants = make(map[string][]*Descriptor)
	Opcodes = make([]*Descriptor, len(data))
	for i := range data {
		d := &data[i]
		if n := defaultLength(d); n != d.Length {
			panic(fmt.Sprintf("gbasm: descriptor '%s' has length %d but encodes %d bytes", d, d.Length, n))
		}
		Opcodes[i] = d
		variants[d.Mnemonic] = append(variants[d.Mnemonic], d)
	}
}

// Return the number of bytes emitted by a descriptor's unrewritten
// encoding.
func defaultLength(d *Descriptor) int {
	n := 1 + d.immKind().Size()
	if d.Flags.Has(FlagPrefix) {
		n++
	}
	if d.immKind() == ImmNone && d.Flags.Has(FlagStop) {
		n++
	}
	return n
}

// Lookup returns all descriptors matching the lower-case mnemonic, in
// table order.
func Lookup(mnemonic string) []*Descriptor {
	return variants[mnemonic]
}
