// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gbasm validates and encodes instructions for the Sharp SM83,
// the CPU of the Nintendo Game Boy.
//
// An Instruction is built from an opcode Descriptor and the operands a
// user wrote. Validate checks the instruction, resolves its immediate
// expression, applies the shorthand rewrites the architecture prefers,
// and reserves output space. Encode then writes exactly the reserved
// number of bytes.
package gbasm

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	ErrIllegalOperandCombination = errors.New("illegal operand combination")
	ErrUnresolvedExpression      = errors.New("invalid expression")
	ErrNotValidated              = errors.New("instruction not validated")
)

// An ImmediateRangeError is returned by Validate when an instruction's
// final immediate value lies outside the legal range for its encoding.
type ImmediateRangeError struct {
	Value int64
	Min   int64
	Max   int64
}

func (e *ImmediateRangeError) Error() string {
	return fmt.Sprintf("immediate %d out of range [%d, %d]", e.Value, e.Min, e.Max)
}

// Fixed encodings used by the rewrite rules.
const (
	prefixByte    = 0xcb
	stopFiller    = 0x00
	addSubBit     = 0x10
	incA          = 0x3c
	decA          = 0x3d
	ldhStoreA     = 0xe0
	ldhLoadA      = 0xf0
	highPageStart = 0xff00
)

// An Expression is an unevaluated compile-time expression.
type Expression interface {
	// EvaluateInteger returns the expression's value, or false if it
	// cannot be evaluated.
	EvaluateInteger() (int64, bool)
}

// A Sink reserves and receives encoded machine code.
type Sink interface {
	Reserve(n int)
	WriteByte(b byte) error
	WriteU16(v uint16) error
}

// Severity classifies a reported diagnostic.
type Severity byte

// Diagnostic severities.
const (
	SeverityWarning Severity = iota
	SeverityError
	SeverityFatal
)

var severityName = []string{"warning", "error", "fatal error"}

func (s Severity) String() string {
	if int(s) >= len(severityName) {
		return "unknown"
	}
	return severityName[s]
}

// A Reporter receives diagnostics produced during validation.
type Reporter interface {
	ReportError(sev Severity, msg string)
}

// Operands holds the operand and expression data the user wrote for an
// instruction.
type Operands struct {
	Left      Operand    // left operand
	Right     Operand    // right operand
	Immediate Expression // immediate expression, if any
	Negative  bool       // immediate was written with a negative sign, as in sp-n
}

// An Instruction is a single occurrence of an SM83 instruction, together
// with the working state used to validate and encode it.
type Instruction struct {
	desc      *Descriptor
	ops       Operands
	length    int     // current length, may be rewritten
	encoding  byte    // current encoding byte, may be rewritten
	left      Operand // current left operand
	right     Operand // current right operand
	prefix    bool    // emit the 0xCB prefix
	imm       ImmKind // active immediate kind
	value     int64   // resolved immediate value
	validated bool
}

// NewInstruction creates an instruction from a descriptor and the
// operand data written for it.
func NewInstruction(d *Descriptor, ops Operands) *Instruction {
	return &Instruction{desc: d, ops: ops}
}

// Descriptor returns the descriptor the instruction was created from.
func (i *Instruction) Descriptor() *Descriptor {
	return i.desc
}

// Length returns the instruction's length in bytes. It is final once
// Validate has succeeded.
func (i *Instruction) Length() int {
	return i.length
}

// Encoding returns the instruction's base encoding byte after rewrites.
func (i *Instruction) Encoding() byte {
	return i.encoding
}

// Immediate returns the instruction's resolved immediate value and its
// kind. The kind is ImmNone if no immediate will be emitted.
func (i *Instruction) Immediate() (int64, ImmKind) {
	return i.value, i.imm
}

// Validate checks the instruction, resolves its immediate, applies the
// shorthand rewrites and reserves the instruction's length in the sink.
// Every failure is reported to r, which may be nil, and returned. The
// sink is untouched when validation fails.
func (i *Instruction) Validate(out Sink, r Reporter) error {
	i.seed()

	if i.desc.Flags.Has(FlagLoadReg8Reg8) && i.left.IsMemHL() && i.right.IsMemHL() {
		return i.fail(r, ErrIllegalOperandCombination, "ld (hl),(hl) not allowed")
	}

	if i.imm != ImmNone {
		if err := i.resolve(r); err != nil {
			return err
		}
	}

	out.Reserve(i.length)
	i.validated = true
	return nil
}

// Reset the working state from the descriptor and the original operands.
func (i *Instruction) seed() {
	i.length = i.desc.Length
	i.encoding = i.desc.Encoding
	i.left = i.ops.Left
	i.right = i.ops.Right
	i.prefix = i.desc.Flags.Has(FlagPrefix)
	i.imm = i.desc.immKind()
	i.value = 0
	i.validated = false
}

// Evaluate the immediate expression, apply the rewrite rules in order and
// range-check the final value.
func (i *Instruction) resolve(r Reporter) error {
	if i.ops.Immediate == nil {
		return i.fail(r, ErrUnresolvedExpression, "Invalid expression")
	}
	v, ok := i.ops.Immediate.EvaluateInteger()
	if !ok {
		return i.fail(r, ErrUnresolvedExpression, "Invalid expression")
	}
	if i.ops.Negative {
		v = -v
	}
	i.value = v

	add := i.desc.Flags.Has(FlagAddImm)
	sub := i.desc.Flags.Has(FlagSubImm)

	// add <-> sub
	if (add || sub) && i.value < 0 {
		i.encoding ^= addSubBit
		i.value = -i.value
		add, sub = sub, add
	}

	if i.desc.Flags.Has(FlagNegateImm) {
		i.value = -i.value
	}

	// add a,1 -> inc a
	// sub a,1 -> dec a
	if (add || sub) && i.left.IsAccumulator() && i.value == 1 {
		i.encoding = incA
		if sub {
			i.encoding = decA
		}
		i.length = 1
		i.left = Operand{}
		i.imm = ImmNone
	}

	// Stores and loads of the accumulator have 2-byte forms for the page
	// at 0xFF00.
	if i.value >= highPageStart && i.value <= 0xffff {
		switch {
		case i.desc.Left == OperandMemImm && i.right.IsAccumulator():
			i.encoding = ldhStoreA
			i.right = Operand{}
			i.toHighPage()
		case i.desc.Right == OperandMemImm && i.left.IsAccumulator():
			i.encoding = ldhLoadA
			i.left = Operand{}
			i.toHighPage()
		}
	}

	if i.imm != ImmNone {
		min, max := i.imm.Bounds()
		if i.value < min || i.value > max {
			err := &ImmediateRangeError{Value: i.value, Min: min, Max: max}
			return i.fail(r, err, fmt.Sprintf("Immediate %d out of range", i.value))
		}
	}
	return nil
}

func (i *Instruction) toHighPage() {
	i.length = 2
	i.value &= 0xff
	i.imm = ImmU8
}

func (i *Instruction) fail(r Reporter, err error, msg string) error {
	if r != nil {
		r.ReportError(SeverityError, msg)
	}
	return err
}

// Encode writes the instruction's machine code to the sink. Validate must
// have succeeded first.
func (i *Instruction) Encode(out Sink) error {
	if !i.validated {
		return ErrNotValidated
	}

	if i.prefix {
		if err := out.WriteByte(prefixByte); err != nil {
			return err
		}
	}

	encoding := i.encoding
	if i.desc.LeftPresent() && i.desc.LeftShift >= 0 {
		encoding |= i.left.Code << i.desc.LeftShift
	}
	if i.desc.RightPresent() && i.desc.RightShift >= 0 {
		encoding |= i.right.Code << i.desc.RightShift
	}
	if err := out.WriteByte(encoding); err != nil {
		return err
	}

	switch {
	case i.imm == ImmU16:
		return out.WriteU16(uint16(i.value))
	case i.imm != ImmNone:
		return out.WriteByte(byte(i.value))
	case i.desc.Flags.Has(FlagStop):
		return out.WriteByte(stopFiller)
	default:
		return nil
	}
}
