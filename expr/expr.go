// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package expr parses and evaluates the integer expressions that appear
// in SM83 assembly operands.
//
// Expressions are built from numbers, character literals, symbols and
// the usual unary and binary integer operators. Numbers may be written
// in decimal, in hexadecimal with a '$' or '0x' prefix, or in binary
// with a '%' or '0b' prefix. Symbols are looked up each time the
// expression is evaluated, so an expression may be parsed before its
// symbols are defined.
package expr

import (
	"errors"
	"fmt"
	"strconv"
)

// Symbols maps symbol names to their values.
type Symbols map[string]int64

// ErrSyntax is wrapped by every error returned from Parse.
var ErrSyntax = errors.New("expression syntax error")

// A SyntaxError describes a parse failure and the column at which it
// was detected.
type SyntaxError struct {
	Column int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("column %d: %s", e.Column+1, e.Msg)
}

func (e *SyntaxError) Unwrap() error {
	return ErrSyntax
}

//
// op
//

type op byte

const (
	// unary operations
	opNegate op = iota
	opPlus
	opComplement

	// binary operations
	opMultiply
	opDivide
	opModulo
	opAdd
	opSubtract
	opShiftLeft
	opShiftRight
	opAnd
	opXor
	opOr

	// leaves
	opNumber
	opSymbol

	// only used while parsing
	opLeftParen
)

type opdata struct {
	precedence byte
	binary     bool
	symbol     string
	eval       func(a, b int64) (int64, bool)
}

var ops = []opdata{
	{7, false, "-", func(a, b int64) (int64, bool) { return -a, true }},
	{7, false, "+", func(a, b int64) (int64, bool) { return a, true }},
	{7, false, "~", func(a, b int64) (int64, bool) { return ^a, true }},
	{6, true, "*", func(a, b int64) (int64, bool) { return a * b, true }},
	{6, true, "/", func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		return a / b, true
	}},
	{6, true, "%", func(a, b int64) (int64, bool) {
		if b == 0 {
			return 0, false
		}
		return a % b, true
	}},
	{5, true, "+", func(a, b int64) (int64, bool) { return a + b, true }},
	{5, true, "-", func(a, b int64) (int64, bool) { return a - b, true }},
	{4, true, "<<", func(a, b int64) (int64, bool) { return shift(a, b, true) }},
	{4, true, ">>", func(a, b int64) (int64, bool) { return shift(a, b, false) }},
	{3, true, "&", func(a, b int64) (int64, bool) { return a & b, true }},
	{2, true, "^", func(a, b int64) (int64, bool) { return a ^ b, true }},
	{1, true, "|", func(a, b int64) (int64, bool) { return a | b, true }},

	{0, false, "", nil}, // number
	{0, false, "", nil}, // symbol
	{0, false, "(", nil},
}

func shift(a, b int64, left bool) (int64, bool) {
	if b < 0 || b > 63 {
		return 0, false
	}
	if left {
		return a << uint(b), true
	}
	return a >> uint(b), true
}

func (o op) isBinary() bool {
	return ops[o].binary
}

func (o op) isOperator() bool {
	return ops[o].precedence > 0
}

// Return true if 'o', about to be pushed, should first cause 'top' to be
// collapsed. Binary operators are left-associative and unary operators
// right-associative.
func (o op) collapses(top op) bool {
	if o.isBinary() {
		return ops[o].precedence <= ops[top].precedence
	}
	return ops[o].precedence < ops[top].precedence
}

//
// node
//

type node struct {
	op     op
	number int64
	symbol string
	child0 *node
	child1 *node
}

func (n *node) String() string {
	switch {
	case n.op == opNumber:
		return strconv.FormatInt(n.number, 10)
	case n.op == opSymbol:
		return n.symbol
	case n.op.isBinary():
		return fmt.Sprintf("%s %s %s", n.child0, n.child1, ops[n.op].symbol)
	default:
		return fmt.Sprintf("%s [%s]", n.child0, ops[n.op].symbol)
	}
}

func (n *node) eval(syms Symbols) (int64, bool) {
	switch {
	case n.op == opNumber:
		return n.number, true
	case n.op == opSymbol:
		v, ok := syms[n.symbol]
		return v, ok
	case n.op.isBinary():
		a, ok := n.child0.eval(syms)
		if !ok {
			return 0, false
		}
		b, ok := n.child1.eval(syms)
		if !ok {
			return 0, false
		}
		return ops[n.op].eval(a, b)
	default:
		a, ok := n.child0.eval(syms)
		if !ok {
			return 0, false
		}
		return ops[n.op].eval(a, 0)
	}
}

func (n *node) collectSymbols(names []string) []string {
	if n == nil {
		return names
	}
	if n.op == opSymbol {
		names = append(names, n.symbol)
	}
	return n.child1.collectSymbols(n.child0.collectSymbols(names))
}

//
// Expr
//

// An Expr is a parsed expression bound to a symbol table.
type Expr struct {
	src  string
	root *node
	syms Symbols
}

// Parse parses the expression in 's'. Symbols referenced by the
// expression are looked up in 'syms' when the expression is evaluated.
// A nil 'syms' is treated as an empty table.
func Parse(s string, syms Symbols) (*Expr, error) {
	var p parser
	root, err := p.parse(newFstring(s))
	if err != nil {
		return nil, err
	}
	return &Expr{src: s, root: root, syms: syms}, nil
}

// MustParse is like Parse but panics if the expression cannot be parsed.
func MustParse(s string, syms Symbols) *Expr {
	e, err := Parse(s, syms)
	if err != nil {
		panic(err)
	}
	return e
}

// Number returns an expression that always evaluates to 'v'.
func Number(v int64) *Expr {
	return &Expr{src: strconv.FormatInt(v, 10), root: &node{op: opNumber, number: v}}
}

// EvaluateInteger returns the value of the expression. It returns false
// if the expression references an undefined symbol, divides by zero, or
// shifts by a negative or oversized amount.
func (e *Expr) EvaluateInteger() (int64, bool) {
	return e.root.eval(e.syms)
}

// Symbols returns the names of all symbols referenced by the expression,
// in the order they appear.
func (e *Expr) Symbols() []string {
	return e.root.collectSymbols(nil)
}

// Source returns the text the expression was parsed from.
func (e *Expr) Source() string {
	return e.src
}

// String returns the expression in postfix notation.
func (e *Expr) String() string {
	return e.root.String()
}

//
// parser
//

type tokentype byte

const (
	tokenNil tokentype = iota
	tokenOp
	tokenNumber
	tokenSymbol
	tokenLeftParen
	tokenRightParen
)

func (tt tokentype) endsValue() bool {
	return tt == tokenNumber || tt == tokenSymbol || tt == tokenRightParen
}

type token struct {
	tt     tokentype
	op     op
	number int64
	symbol string
}

// The parser converts infix text to a node tree using Dijkstra's
// shunting-yard algorithm.
type parser struct {
	operands  []*node
	operators []op
	prev      tokentype
}

func (p *parser) parse(line fstring) (*node, error) {
	line = line.consumeWhitespace()
	if line.isEmpty() {
		return nil, syntaxError(line, "empty expression")
	}

	for !line.isEmpty() {
		t, remain, err := p.parseToken(line)
		if err != nil {
			return nil, err
		}

		switch t.tt {
		case tokenNumber:
			p.operands = append(p.operands, &node{op: opNumber, number: t.number})

		case tokenSymbol:
			p.operands = append(p.operands, &node{op: opSymbol, symbol: t.symbol})

		case tokenOp:
			for len(p.operators) > 0 && t.op.collapses(p.top()) {
				if !p.collapse(p.pop()) {
					return nil, syntaxError(line, "missing operand")
				}
			}
			p.operators = append(p.operators, t.op)

		case tokenLeftParen:
			p.operators = append(p.operators, opLeftParen)

		case tokenRightParen:
			for {
				if len(p.operators) == 0 {
					return nil, syntaxError(line, "mismatched parentheses")
				}
				o := p.pop()
				if o == opLeftParen {
					break
				}
				if !p.collapse(o) {
					return nil, syntaxError(line, "missing operand")
				}
			}
		}

		p.prev = t.tt
		line = remain.consumeWhitespace()
	}

	for len(p.operators) > 0 {
		o := p.pop()
		if o == opLeftParen {
			return nil, syntaxError(line, "mismatched parentheses")
		}
		if !p.collapse(o) {
			return nil, syntaxError(line, "missing operand")
		}
	}

	if len(p.operands) != 1 {
		return nil, syntaxError(line, "missing operator")
	}
	return p.operands[0], nil
}

func (p *parser) parseToken(line fstring) (t token, remain fstring, err error) {
	switch {
	case line.startsWith(decimal) || line.startsWithChar('$') || line.startsWithChar('%') && !p.prev.endsValue():
		t.tt = tokenNumber
		t.number, remain, err = parseNumber(line)

	case line.startsWithChar('\''):
		t.tt = tokenNumber
		t.number, remain, err = parseChar(line)

	case line.startsWith(identifierStartChar):
		var ident fstring
		ident, remain = line.consumeWhile(identifierChar)
		t.tt, t.symbol = tokenSymbol, ident.str

	case line.startsWithChar('('):
		t.tt, remain = tokenLeftParen, line.consume(1)

	case line.startsWithChar(')'):
		t.tt, remain = tokenRightParen, line.consume(1)

	default:
		// A '+' or '-' that follows a value is binary; otherwise it is unary.
		for i, o := range ops {
			if o.precedence == 0 || !line.startsWithString(o.symbol) {
				continue
			}
			if o.binary == p.prev.endsValue() {
				t.tt, t.op, remain = tokenOp, op(i), line.consume(len(o.symbol))
				break
			}
		}
		if t.tt != tokenOp {
			err = syntaxError(line, fmt.Sprintf("unexpected '%c'", line.str[0]))
		}
	}

	if err == nil && (t.tt == tokenNumber || t.tt == tokenSymbol || t.tt == tokenLeftParen) && p.prev.endsValue() {
		err = syntaxError(line, "missing operator")
	}
	return
}

func (p *parser) top() op {
	return p.operators[len(p.operators)-1]
}

func (p *parser) pop() op {
	o := p.top()
	p.operators = p.operators[:len(p.operators)-1]
	return o
}

func (p *parser) popOperand() *node {
	n := p.operands[len(p.operands)-1]
	p.operands = p.operands[:len(p.operands)-1]
	return n
}

// Collapse one or two operands on the top of the operand stack into a
// node for operator 'o'. Return false if there are too few operands.
func (p *parser) collapse(o op) bool {
	switch {
	case !o.isOperator():
		return false
	case o.isBinary():
		if len(p.operands) < 2 {
			return false
		}
		child1 := p.popOperand()
		child0 := p.popOperand()
		p.operands = append(p.operands, &node{op: o, child0: child0, child1: child1})
	default:
		if len(p.operands) < 1 {
			return false
		}
		p.operands = append(p.operands, &node{op: o, child0: p.popOperand()})
	}
	return true
}

// Parse a number. The following formats are accepted:
//
//	[0-9]+          decimal
//	$[0-9a-fA-F]+   hexadecimal
//	0x[0-9a-fA-F]+  hexadecimal
//	%[01]+          binary
//	0b[01]+         binary
func parseNumber(line fstring) (value int64, remain fstring, err error) {
	start := line
	base, fn := 10, decimal
	switch {
	case line.startsWithChar('$'):
		line, base, fn = line.consume(1), 16, hexadecimal
	case line.startsWithString("0x") || line.startsWithString("0X"):
		line, base, fn = line.consume(2), 16, hexadecimal
	case line.startsWithChar('%'):
		line, base, fn = line.consume(1), 2, binary
	case line.startsWithString("0b") || line.startsWithString("0B"):
		line, base, fn = line.consume(2), 2, binary
	}

	digits, remain := line.consumeWhile(fn)
	if digits.isEmpty() {
		return 0, remain, syntaxError(start, "malformed number")
	}
	if remain.startsWith(identifierChar) {
		return 0, remain, syntaxError(remain, "malformed number")
	}

	v, converr := strconv.ParseUint(digits.str, base, 64)
	if converr != nil || v > 1<<63-1 {
		return 0, remain, syntaxError(start, "number too large")
	}
	return int64(v), remain, nil
}

// Parse a single-quoted character literal such as 'a'.
func parseChar(line fstring) (value int64, remain fstring, err error) {
	if len(line.str) < 3 || line.str[2] != '\'' {
		return 0, line, syntaxError(line, "malformed character literal")
	}
	return int64(line.str[1]), line.consume(3), nil
}

func syntaxError(line fstring, msg string) error {
	return &SyntaxError{Column: line.column, Msg: msg}
}
