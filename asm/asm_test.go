// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/beevik/gbasm/diag"
	"github.com/beevik/gbasm/expr"
	"github.com/google/go-cmp/cmp"
	"github.com/juju/loggo"
)

func testConfig() Config {
	ctx := loggo.NewContext(loggo.WARNING)
	return Config{
		Origin: DefaultOrigin,
		Out:    io.Discard,
		Log:    diag.NewLogWithLogger(ctx.GetLogger(diag.ModuleName)),
	}
}

func assemble(code string) (*Assembly, error) {
	assembly, _, err := testConfig().Assemble(strings.NewReader(code), "test")
	return assembly, err
}

func checkASM(t *testing.T, asm string, expected string) {
	t.Helper()
	assembly, err := assemble(asm)
	if err != nil {
		t.Error(err)
		for _, e := range assembly.Errors {
			t.Error(e)
		}
		return
	}

	code := assembly.Code
	b := make([]byte, len(code)*2)
	for i, j := 0, 0; i < len(code); i, j = i+1, j+2 {
		v := code[i]
		b[j+0] = hex[v>>4]
		b[j+1] = hex[v&0x0f]
	}
	s := string(b)

	if s != expected {
		t.Error("code doesn't match expected")
		t.Errorf("got: %s\n", s)
		t.Errorf("exp: %s\n", expected)
	}
}

func checkASMError(t *testing.T, asm string, errString string) {
	t.Helper()
	assembly, err := assemble(asm)
	if err == nil {
		t.Errorf("Expected error on %s, didn't get one\n", asm)
		return
	}
	if assembly.Code != nil {
		t.Errorf("Code emitted despite errors: % X", assembly.Code)
	}
	if len(assembly.Errors) == 0 || assembly.Errors[0] != errString {
		t.Errorf("Expected '%s', got '%v'\n", errString, assembly.Errors)
	}
}

func TestMisc(t *testing.T) {
	asm := `
	nop
	halt
	stop
	di
	ei
	daa
	cpl
	ccf
	scf
	rlca
	rla
	rrca
	rra`

	checkASM(t, asm, "00761000F3FB272F3F3707170F1F")
}

func TestLoadRegisters(t *testing.T) {
	asm := `
	ld b,c
	ld a,(hl)
	ld (hl),a
	LD H,L
	ld b,$12
	ld a,5
	ld (hl),$ff`

	checkASM(t, asm, "417E776506123E0536FF")
}

func TestLoadIndirect(t *testing.T) {
	asm := `
	ld a,(bc)
	ld a,(de)
	ld (de),a
	ld a,(hl+)
	ld a,(hli)
	ld (hl-),a
	ld (hld),a
	ld a,(c)
	ld ($ff00+c),a
	ldi a,(hl)
	ldd (hl),a`

	checkASM(t, asm, "0A1A122A2A3232F2E22A32")
}

func TestLoadAbsolute(t *testing.T) {
	asm := `
	ld a,($c000)
	ld ($c000),a
	ld ($c000),sp
	ld hl,$1234
	ld sp,$fffe
	ld sp,hl
	ld hl,sp+5
	ld hl,sp-2
	ldhl sp,3`

	checkASM(t, asm, "FA00C0EA00C00800C0213412"+"31FEFFF9F805F8FEF803")
}

func TestHighPage(t *testing.T) {
	checkASM(t, "\tld ($ff10),a", "E010")
	checkASM(t, "\tld a,($ff10)", "F010")
	checkASM(t, "\tld a,($ff00)", "F000")
	checkASM(t, "\tld ($feff),a", "EAFFFE")
	checkASM(t, "\tldh a,($44)\n\tldh ($40),a", "F044E040")
	checkASM(t, "\tld hl,$ff40", "2140FF")
	checkASM(t, "\tldh a,($ff44)\n\tldh ($ff40),a", "F044E040")
}

func TestStack(t *testing.T) {
	checkASM(t, "\tpush af\n\tpush bc\n\tpop de\n\tpop hl", "F5C5D1E1")
}

func TestArithmetic(t *testing.T) {
	asm := `
	add a,b
	add a,$10
	add hl,de
	add sp,-4
	sub 5
	sub a,c
	adc a,c
	sbc a,$01
	and $0f
	xor a
	or b
	cp $90`

	checkASM(t, asm, "80C6101"+"9E8FCD60591"+"89DE01E60FAFB0FE90")
}

func TestIncDecShorthand(t *testing.T) {
	checkASM(t, "\tadd a,1", "3C")
	checkASM(t, "\tsub a,1", "3D")
	checkASM(t, "\tadd a,-1", "3D")
	checkASM(t, "\tsub a,-1", "3C")
	checkASM(t, "\tsub 1", "D601")
}

func TestAddSubPolarity(t *testing.T) {
	checkASM(t, "\tadd a,-5", "D605")
	checkASM(t, "\tsub a,-5", "C605")
	checkASM(t, "\tsub sp,4", "E8FC")
}

func TestIncDec(t *testing.T) {
	checkASM(t, "\tinc b\n\tinc (hl)\n\tinc bc\n\tdec hl\n\tdec a", "0434032B3D")
}

func TestJumps(t *testing.T) {
	asm := `
	jp $150
	jp nz,$150
	jp z,$150
	jp (hl)
	jp hl
	jr -2
	jr nz,5
	jr c,5
	call $4000
	call nc,$4000
	ret
	ret z
	reti
	rst $38
	rst 0`

	checkASM(t, asm, "C35001C25001CA5001E9E918FE20053805"+"CD0040D40040C9C8D9FFC7")
}

func TestPrefixed(t *testing.T) {
	asm := `
	rlc b
	swap a
	srl (hl)
	bit 7,h
	res 0,a
	set 3,(hl)`

	checkASM(t, asm, "CB00CB37CB3ECB7CCB87CBDE")
}

func TestLabels(t *testing.T) {
	asm := `
start:
	nop
loop: dec b
	jp nz,loop
	jp done
	nop
done:
	halt`

	checkASM(t, asm, "0005C25101C359010076")
}

func TestEquates(t *testing.T) {
	asm := `
LCDC = $ff40
bits equ 3
	ld a,(LCDC)
	set bits,a
	ld a,(io)
io = $ff44`

	checkASM(t, asm, "F040CBDFF044")
}

func TestBitOperandFromLabel(t *testing.T) {
	asm := `
	bit flag,a
flag = 2`

	checkASM(t, asm, "CB57")
}

func TestData(t *testing.T) {
	asm := `
	.db 1, $ff, "A;B"
	.dw $1234, -1
	.ds 3, $ee
	db 'x'`

	checkASM(t, asm, "01FF413B423412FFFFEEEEEE78")
}

func TestOrigin(t *testing.T) {
	assembly, err := assemble(".org $4000\n\tjp here\nhere:\n")
	if err != nil {
		t.Fatal(err, assembly.Errors)
	}
	if assembly.Origin != 0x4000 {
		t.Errorf("origin $%04X, expected $4000", assembly.Origin)
	}
	if diff := cmp.Diff([]byte{0xc3, 0x03, 0x40}, assembly.Code); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
	if assembly.Symbols["here"] != 0x4003 {
		t.Errorf("here = $%04X", assembly.Symbols["here"])
	}
}

func TestPredefinedSymbols(t *testing.T) {
	c := testConfig()
	c.Symbols = expr.Symbols{"VBLANK": 0x40}
	assembly, _, err := c.Assemble(strings.NewReader("\trst VBLANK-$38"), "test")
	if err != nil {
		t.Fatal(err, assembly.Errors)
	}
	if diff := cmp.Diff([]byte{0xcf}, assembly.Code); diff != "" {
		t.Errorf("code mismatch (-want +got):\n%s", diff)
	}
	if _, ok := c.Symbols["VBLANK-$38"]; ok || len(c.Symbols) != 1 {
		t.Error("predefined symbols modified")
	}
}

func TestErrors(t *testing.T) {
	checkASMError(t, "\tld a,256", "Error in 'test' line 1: Immediate 256 out of range")
	checkASMError(t, "\tjr 128", "Error in 'test' line 1: Immediate 128 out of range")
	checkASMError(t, "\tld (hl),(hl)", "Error in 'test' line 1: ld (hl),(hl) not allowed")
	checkASMError(t, "\tjp nowhere", "Error in 'test' line 1: Invalid expression")
	checkASMError(t, "\tmov a,b", "Error in 'test' line 1: invalid opcode 'mov'")
	checkASMError(t, "\tld a", "Error in 'test' line 1: invalid operands for 'ld'")
	checkASMError(t, "\tbit 8,a", "Error in 'test' line 1: invalid operands for 'bit'")
	checkASMError(t, "\trst 3", "Error in 'test' line 1: invalid operands for 'rst'")
	checkASMError(t, "\tnop\n.org $10", "Error in 'test' line 2: origin directive must appear before first instruction")
	checkASMError(t, "x:\nx:", "Error in 'test' line 2: symbol 'x' already defined on line 1")
	checkASMError(t, "hl = 3", "Error in 'test' line 1: 'hl' is a reserved word")
	checkASMError(t, "\t.db 256", "Error in 'test' line 1: data value 256 out of range")
}

func TestNoCodeUnlessAllValid(t *testing.T) {
	assembly, err := assemble("\tnop\n\tld a,256\n\tinc a\n\tld b,-129")
	if !errors.Is(err, ErrValidate) {
		t.Fatalf("expected ErrValidate, got %v", err)
	}
	if assembly.Code != nil {
		t.Errorf("code emitted: % X", assembly.Code)
	}
	want := []string{
		"Error in 'test' line 2: Immediate 256 out of range",
		"Error in 'test' line 4: Immediate -129 out of range",
	}
	if diff := cmp.Diff(want, assembly.Errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
}

func TestParseErrorsStopAssembly(t *testing.T) {
	_, err := assemble("\tld a,(1+\n\tnop")
	if !errors.Is(err, ErrParse) {
		t.Errorf("expected ErrParse, got %v", err)
	}
}

func TestSourceMap(t *testing.T) {
	code := "start:\n\tnop\n\n\tld a,($ff44) ; comment\n\tjp start\n"
	_, sm, err := testConfig().Assemble(strings.NewReader(code), "boot.s")
	if err != nil {
		t.Fatal(err)
	}

	want := []SourceLine{{0x150, 2}, {0x151, 4}, {0x153, 5}}
	if diff := cmp.Diff(want, sm.Lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	if file, line := sm.Search(0x153); file != "boot.s" || line != 5 {
		t.Errorf("Search returned %s:%d", file, line)
	}
	if _, line := sm.Search(0x152); line != -1 {
		t.Errorf("Search found line %d inside an instruction", line)
	}
	if name, ok := sm.Label(0x150); !ok || name != "start" {
		t.Errorf("Label returned %q %v", name, ok)
	}

	var buf bytes.Buffer
	if _, err := sm.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}
	var sm2 SourceMap
	if _, err := sm2.ReadFrom(&buf); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(*sm, sm2); diff != "" {
		t.Errorf("source map mismatch (-want +got):\n%s", diff)
	}
}

func TestVerbose(t *testing.T) {
	var buf bytes.Buffer
	c := testConfig()
	c.Options, c.Out = Verbose, &buf
	if _, _, err := c.Assemble(strings.NewReader("\tjp $150"), "test"); err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"-- Parsing assembly code --", "-- Generating code --", "0150-*  C3 50 01"} {
		if !strings.Contains(buf.String(), s) {
			t.Errorf("verbose output missing %q", s)
		}
	}
}

func TestDefaultLogIsSilent(t *testing.T) {
	w := &loggo.TestWriter{}
	prev, err := loggo.ReplaceDefaultWriter(w)
	if err != nil {
		t.Fatal(err)
	}
	defer loggo.ReplaceDefaultWriter(prev)

	c := Config{Origin: DefaultOrigin, Out: io.Discard}
	assembly, _, err := c.Assemble(strings.NewReader("\tld a,256"), "test")
	if !errors.Is(err, ErrValidate) || len(assembly.Errors) != 1 {
		t.Fatalf("expected one validation error, got %v %v", err, assembly.Errors)
	}
	if entries := w.Log(); len(entries) != 0 {
		t.Errorf("default logger received %d entries", len(entries))
	}
}
