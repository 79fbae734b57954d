// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gbasm

// A Flag is a semantic tag attached to an opcode descriptor. A descriptor
// carries a set of flags describing which optional behaviors apply when
// its instructions are validated and encoded.
type Flag uint16

// Descriptor flags.
const (
	FlagPrefix       Flag = 1 << iota // encoding is preceded by the 0xCB prefix byte
	FlagImmU8                         // unsigned 8-bit immediate
	FlagImmS8                         // signed 8-bit immediate
	FlagImmU16                        // unsigned 16-bit immediate
	FlagAddImm                        // add-immediate family
	FlagSubImm                        // subtract-immediate family
	FlagNegateImm                     // immediate is negated before encoding
	FlagStop                          // a 0x00 filler byte follows the opcode
	FlagLoadReg8Reg8                  // 8-bit register-to-register load
)

// Has returns true if all flags in f2 are set in f.
func (f Flag) Has(f2 Flag) bool {
	return f&f2 == f2
}

// Any returns true if any flag in f2 is set in f.
func (f Flag) Any(f2 Flag) bool {
	return f&f2 != 0
}

// NoShift is the shift value indicating that an operand's code is not
// embedded into the encoding byte.
const NoShift = -1

// An OperandKind identifies the syntactic class of an instruction operand.
type OperandKind byte

// Operand kinds.
const (
	OperandNone    OperandKind = iota
	OperandReg8                // b c d e h l (hl) a
	OperandA                   // a
	OperandReg16SP             // bc de hl sp
	OperandReg16AF             // bc de hl af
	OperandHL                  // hl
	OperandSP                  // sp
	OperandMemBCDE             // (bc) (de)
	OperandMemHL               // (hl)
	OperandMemHLI              // (hl+) (hli)
	OperandMemHLD              // (hl-) (hld)
	OperandMemC                // (c) ($ff00+c)
	OperandImm                 // n
	OperandMemImm              // (n)
	OperandSPImm               // sp+n sp-n
	OperandCond                // nz z nc c
	OperandBit                 // 0..7
	OperandRST                 // $00 $08 .. $38
)

var operandKindName = []string{
	"none",
	"r8",
	"a",
	"rr",
	"rr",
	"hl",
	"sp",
	"(rr)",
	"(hl)",
	"(hl+)",
	"(hl-)",
	"(c)",
	"n",
	"(n)",
	"sp+n",
	"cc",
	"bit",
	"vec",
}

func (k OperandKind) String() string {
	return operandKindName[k]
}

// Register and condition codes, as embedded into encoding bytes.
const (
	RegB     byte = 0
	RegC     byte = 1
	RegD     byte = 2
	RegE     byte = 3
	RegH     byte = 4
	RegL     byte = 5
	RegMemHL byte = 6
	RegA     byte = 7

	RegBC byte = 0
	RegDE byte = 1
	RegHL byte = 2
	RegSP byte = 3
	RegAF byte = 3

	CondNZ byte = 0
	CondZ  byte = 1
	CondNC byte = 2
	CondC  byte = 3
)

// An Operand is a reference to a register, addressing mode or operand
// placeholder. Code holds the numeric code embedded into the encoding
// byte for kinds that carry one.
type Operand struct {
	Kind OperandKind
	Code byte
}

// IsAccumulator returns true if the operand denotes register A.
func (o Operand) IsAccumulator() bool {
	return (o.Kind == OperandReg8 || o.Kind == OperandA) && o.Code == RegA
}

// IsMemHL returns true if the operand denotes the memory byte addressed
// by register pair HL.
func (o Operand) IsMemHL() bool {
	return (o.Kind == OperandReg8 && o.Code == RegMemHL) || o.Kind == OperandMemHL
}

// A Descriptor describes a class of SM83 instructions sharing a mnemonic,
// an operand pattern and a base encoding. Descriptors are immutable once
// the opcode table is built and may be shared by any number of
// instructions.
type Descriptor struct {
	Mnemonic   string      // lower-case mnemonic
	Left       OperandKind // left operand pattern
	Right      OperandKind // right operand pattern
	Encoding   byte        // base encoding byte
	Length     int         // instruction length in bytes, prefix included
	Flags      Flag        // semantic flags
	LeftShift  int         // bit position of the left operand code, or NoShift
	RightShift int         // bit position of the right operand code, or NoShift
}

// LeftPresent returns true if the descriptor takes a left operand.
func (d *Descriptor) LeftPresent() bool {
	return d.Left != OperandNone
}

// RightPresent returns true if the descriptor takes a right operand.
func (d *Descriptor) RightPresent() bool {
	return d.Right != OperandNone
}

// immKind returns the immediate kind selected by the descriptor's flags.
// When more than one width is flagged, unsigned 8-bit wins over signed
// 8-bit, which wins over unsigned 16-bit.
func (d *Descriptor) immKind() ImmKind {
	switch {
	case d.Flags.Has(FlagImmU8):
		return ImmU8
	case d.Flags.Has(FlagImmS8):
		return ImmS8
	case d.Flags.Has(FlagImmU16):
		return ImmU16
	default:
		return ImmNone
	}
}

// String returns the descriptor's mnemonic and operand pattern.
func (d *Descriptor) String() string {
	switch {
	case d.RightPresent():
		return d.Mnemonic + " " + d.Left.String() + "," + d.Right.String()
	case d.LeftPresent():
		return d.Mnemonic + " " + d.Left.String()
	default:
		return d.Mnemonic
	}
}

// An ImmKind identifies the width and signedness of an instruction's
// immediate value.
type ImmKind byte

// Immediate kinds.
const (
	ImmNone ImmKind = iota
	ImmU8
	ImmS8
	ImmU16
)

// Bounds returns the legal range of values for the immediate kind.
func (k ImmKind) Bounds() (min, max int64) {
	switch k {
	case ImmU8:
		return 0, 0xff
	case ImmS8:
		return -128, 127
	case ImmU16:
		return 0, 0xffff
	default:
		return 0, 0
	}
}

// Size returns the number of bytes the immediate occupies.
func (k ImmKind) Size() int {
	switch k {
	case ImmU8, ImmS8:
		return 1
	case ImmU16:
		return 2
	default:
		return 0
	}
}
