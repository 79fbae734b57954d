// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package expr

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func checkExpr(t *testing.T, s string, syms Symbols, expected int64) {
	t.Helper()
	e, err := Parse(s, syms)
	if err != nil {
		t.Errorf("%s: %v", s, err)
		return
	}
	v, ok := e.EvaluateInteger()
	if !ok {
		t.Errorf("%s: failed to evaluate", s)
		return
	}
	if v != expected {
		t.Errorf("%s: got %d, expected %d", s, v, expected)
	}
}

func checkExprError(t *testing.T, s string) {
	t.Helper()
	_, err := Parse(s, nil)
	if err == nil {
		t.Errorf("%s: expected syntax error", s)
		return
	}
	if !errors.Is(err, ErrSyntax) {
		t.Errorf("%s: error %v does not wrap ErrSyntax", s, err)
	}
}

func TestNumbers(t *testing.T) {
	checkExpr(t, "42", nil, 42)
	checkExpr(t, "$ff10", nil, 0xff10)
	checkExpr(t, "0xFF10", nil, 0xff10)
	checkExpr(t, "%1010", nil, 10)
	checkExpr(t, "0b1010", nil, 10)
	checkExpr(t, "'A'", nil, 65)
	checkExpr(t, "  7  ", nil, 7)
}

func TestOperators(t *testing.T) {
	checkExpr(t, "1+2*3", nil, 7)
	checkExpr(t, "(1+2)*3", nil, 9)
	checkExpr(t, "10-4-3", nil, 3)
	checkExpr(t, "100/7", nil, 14)
	checkExpr(t, "100 % 7", nil, 2)
	checkExpr(t, "1<<4|1", nil, 17)
	checkExpr(t, "$f0>>4", nil, 15)
	checkExpr(t, "$ff & $0f ^ $03", nil, 0x0c)
	checkExpr(t, "6 % 4", nil, 2)
}

func TestUnaryOperators(t *testing.T) {
	checkExpr(t, "-5", nil, -5)
	checkExpr(t, "+5", nil, 5)
	checkExpr(t, "--5", nil, 5)
	checkExpr(t, "~0", nil, -1)
	checkExpr(t, "-2*3", nil, -6)
	checkExpr(t, "4 - -1", nil, 5)
	checkExpr(t, "~$ff & $ffff", nil, 0xff00)
}

func TestSymbols(t *testing.T) {
	syms := Symbols{"io": 0xff00, "lcdc": 0x40}
	checkExpr(t, "io+lcdc", syms, 0xff40)

	e := MustParse("later*2", syms)
	if _, ok := e.EvaluateInteger(); ok {
		t.Error("undefined symbol evaluated")
	}
	syms["later"] = 21
	if v, ok := e.EvaluateInteger(); !ok || v != 42 {
		t.Errorf("got %d %v, expected 42", v, ok)
	}

	got := MustParse("a + b * (c - a)", nil).Symbols()
	if diff := cmp.Diff([]string{"a", "b", "c", "a"}, got); diff != "" {
		t.Errorf("symbols mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluationFailures(t *testing.T) {
	for _, s := range []string{"1/0", "1%0", "1<<64", "1>>-1", "missing"} {
		e := MustParse(s, nil)
		if v, ok := e.EvaluateInteger(); ok {
			t.Errorf("%s: evaluated to %d", s, v)
		}
	}
}

func TestSyntaxErrors(t *testing.T) {
	checkExprError(t, "")
	checkExprError(t, "1 2")
	checkExprError(t, "1 +")
	checkExprError(t, "(1")
	checkExprError(t, "1)")
	checkExprError(t, "$")
	checkExprError(t, "12ab")
	checkExprError(t, "3 # 4")
	checkExprError(t, "'ab'")
	checkExprError(t, "$10000000000000000")
}

func TestSyntaxErrorColumn(t *testing.T) {
	_, err := Parse("1 + #", nil)
	var se *SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("expected SyntaxError, got %v", err)
	}
	if se.Column != 4 {
		t.Errorf("column %d, expected 4", se.Column)
	}
}

func TestPostfix(t *testing.T) {
	e := MustParse("-(a+1)*2", nil)
	if got, want := e.String(), "a 1 + [-] 2 *"; got != want {
		t.Errorf("got %q, expected %q", got, want)
	}
	if Number(9).String() != "9" {
		t.Errorf("Number(9) = %q", Number(9).String())
	}
}
