// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strings"

	"github.com/beevik/gbasm"
	"github.com/beevik/gbasm/expr"
)

type operandForm byte

const (
	formRegister         operandForm = iota // a, bc, nz, ...
	formIndirectRegister                    // (bc), (hl), (hl+), (c), ...
	formIndirect                            // (expr)
	formSPOffset                            // sp+expr, sp-expr
	formImmediate                           // expr
)

// An operand is a single parsed instruction operand. Its form says how it
// was written; which descriptor operand kinds it satisfies is decided when
// the instruction is matched.
type operand struct {
	form     operandForm
	name     string     // canonical register name for register forms
	expr     *expr.Expr // expression for the other forms
	negative bool       // sp-expr
}

var reg8 = map[string]byte{
	"b": gbasm.RegB, "c": gbasm.RegC, "d": gbasm.RegD, "e": gbasm.RegE,
	"h": gbasm.RegH, "l": gbasm.RegL, "a": gbasm.RegA,
}

var reg16 = map[string]byte{
	"bc": gbasm.RegBC, "de": gbasm.RegDE, "hl": gbasm.RegHL, "sp": gbasm.RegSP,
}

var reg16af = map[string]byte{
	"bc": gbasm.RegBC, "de": gbasm.RegDE, "hl": gbasm.RegHL, "af": gbasm.RegAF,
}

var conditions = map[string]byte{
	"nz": gbasm.CondNZ, "z": gbasm.CondZ, "nc": gbasm.CondNC, "c": gbasm.CondC,
}

// Indirect register operands, keyed by their space-free lower-case text.
var indirectRegisters = map[string]string{
	"(bc)":       "bc",
	"(de)":       "de",
	"(hl)":       "hl",
	"(hl+)":      "hl+",
	"(hli)":      "hl+",
	"(hl-)":      "hl-",
	"(hld)":      "hl-",
	"(c)":        "c",
	"(ff00+c)":   "c",
	"($ff00+c)":  "c",
	"(0xff00+c)": "c",
}

func isRegisterName(s string) bool {
	_, r8 := reg8[s]
	_, r16 := reg16[s]
	_, cc := conditions[s]
	return r8 || r16 || cc || s == "af"
}

// Parse a single operand.
func (a *assembler) parseOperand(text string) (o operand, ok bool) {
	text = strings.TrimSpace(text)
	compact := strings.ToLower(strings.Join(strings.Fields(text), ""))

	switch {
	case text == "":
		a.addError("missing operand")
		return o, false

	case isRegisterName(compact):
		return operand{form: formRegister, name: compact}, true

	case indirectRegisters[compact] != "":
		return operand{form: formIndirectRegister, name: indirectRegisters[compact]}, true

	case enclosed(text):
		o.form = formIndirect
		o.expr, ok = a.parseExpr(text[1 : len(text)-1])
		return o, ok

	case strings.HasPrefix(compact, "sp+") || strings.HasPrefix(compact, "sp-"):
		rest := strings.TrimSpace(text[2:])
		o.form = formSPOffset
		o.negative = rest[0] == '-'
		o.expr, ok = a.parseExpr(rest[1:])
		return o, ok

	default:
		o.form = formImmediate
		o.expr, ok = a.parseExpr(text)
		return o, ok
	}
}

// Return true if the whole string is wrapped in one pair of parentheses,
// as in "(label+1)" but not "(1+2)*3".
func enclosed(s string) bool {
	if len(s) < 2 || s[0] != '(' || s[len(s)-1] != ')' {
		return false
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i < len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// Find the first descriptor for the mnemonic whose operand pattern
// accepts the operands, and build the operand data for it.
func match(mnemonic string, operands []operand) (*gbasm.Descriptor, gbasm.Operands, bool) {
	for _, d := range gbasm.Lookup(mnemonic) {
		if ops, ok := matchDescriptor(d, operands); ok {
			return d, ops, true
		}
	}
	return nil, gbasm.Operands{}, false
}

func matchDescriptor(d *gbasm.Descriptor, operands []operand) (gbasm.Operands, bool) {
	var kinds []gbasm.OperandKind
	if d.LeftPresent() {
		kinds = append(kinds, d.Left)
	}
	if d.RightPresent() {
		kinds = append(kinds, d.Right)
	}
	if len(kinds) != len(operands) {
		return gbasm.Operands{}, false
	}

	var ops gbasm.Operands
	for i, k := range kinds {
		o, ok := operands[i].accept(k)
		if !ok {
			return gbasm.Operands{}, false
		}
		if i == 0 {
			ops.Left = o
		} else {
			ops.Right = o
		}
		switch k {
		case gbasm.OperandImm, gbasm.OperandMemImm, gbasm.OperandSPImm:
			ops.Immediate = operands[i].expr
			ops.Negative = operands[i].negative
		}
	}
	return ops, true
}

// Return the core operand for kind k if this operand can be used as one.
// Bit indexes and restart vectors are evaluated here, since their values
// select the encoding rather than trail it.
func (o *operand) accept(k gbasm.OperandKind) (gbasm.Operand, bool) {
	op := gbasm.Operand{Kind: k}
	var ok bool

	switch k {
	case gbasm.OperandReg8:
		if o.form == formIndirectRegister && o.name == "hl" {
			op.Code, ok = gbasm.RegMemHL, true
		} else {
			op.Code, ok = o.register(reg8)
		}
	case gbasm.OperandA:
		op.Code, ok = gbasm.RegA, o.form == formRegister && o.name == "a"
	case gbasm.OperandReg16SP:
		op.Code, ok = o.register(reg16)
	case gbasm.OperandReg16AF:
		op.Code, ok = o.register(reg16af)
	case gbasm.OperandHL:
		op.Code, ok = gbasm.RegHL, o.form == formRegister && o.name == "hl"
	case gbasm.OperandSP:
		op.Code, ok = gbasm.RegSP, o.form == formRegister && o.name == "sp"
	case gbasm.OperandCond:
		op.Code, ok = o.register(conditions)
	case gbasm.OperandMemBCDE:
		switch {
		case o.form == formIndirectRegister && o.name == "bc":
			op.Code, ok = gbasm.RegBC, true
		case o.form == formIndirectRegister && o.name == "de":
			op.Code, ok = gbasm.RegDE, true
		}
	case gbasm.OperandMemHL:
		op.Code, ok = gbasm.RegMemHL, o.form == formIndirectRegister && o.name == "hl"
	case gbasm.OperandMemHLI:
		ok = o.form == formIndirectRegister && o.name == "hl+"
	case gbasm.OperandMemHLD:
		ok = o.form == formIndirectRegister && o.name == "hl-"
	case gbasm.OperandMemC:
		ok = o.form == formIndirectRegister && o.name == "c"
	case gbasm.OperandImm:
		ok = o.form == formImmediate
	case gbasm.OperandMemImm:
		ok = o.form == formIndirect
	case gbasm.OperandSPImm:
		ok = o.form == formSPOffset
	case gbasm.OperandBit:
		if v, valid := o.value(); valid && v >= 0 && v <= 7 {
			op.Code, ok = byte(v), true
		}
	case gbasm.OperandRST:
		if v, valid := o.value(); valid && v >= 0 && v <= 0x38 && v%8 == 0 {
			op.Code, ok = byte(v/8), true
		}
	}
	return op, ok
}

func (o *operand) register(names map[string]byte) (byte, bool) {
	if o.form != formRegister {
		return 0, false
	}
	code, ok := names[o.name]
	return code, ok
}

func (o *operand) value() (int64, bool) {
	if o.form != formImmediate {
		return 0, false
	}
	return o.expr.EvaluateInteger()
}
