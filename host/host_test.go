// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func run(h *Host, script string) string {
	var buf bytes.Buffer
	h.RunCommands(strings.NewReader(script), &buf, false)
	return buf.String()
}

func expectOutput(t *testing.T, out string, want ...string) {
	t.Helper()
	for _, w := range want {
		if !strings.Contains(out, w) {
			t.Errorf("output missing %q\noutput:\n%s", w, out)
		}
	}
}

func TestAssembleLine(t *testing.T) {
	h := New()
	out := run(h, "assemble line $150 ld a,5\na $ jp $150\nmemory dump $150 5")
	expectOutput(t, out,
		"0150-   3E 05",
		"ld a,$05",
		"0152-   C3 50 01",
		"jp $0150",
		"0150- 3E 05 C3 50 01")

	if h.settings.NextAsmAddr != 0x0155 {
		t.Errorf("next assembly address $%04X", h.settings.NextAsmAddr)
	}
}

func TestAssembleLineError(t *testing.T) {
	h := New()
	out := run(h, "a $150 ld a,256\nm $150 1")
	expectOutput(t, out,
		"Error in 'input' line 1: Immediate 256 out of range",
		"0150- 00")
}

func TestDefineAndEvaluate(t *testing.T) {
	h := New()
	out := run(h, "define io $ff00\ne io+$44\ne -1\ne nope\ndefine 3x 1")
	expectOutput(t, out,
		"Symbol 'io' set to $FF00.",
		"$FF44 (65348)",
		"$FFFF (-1)",
		"identifier 'nope' not found",
		"Invalid symbol name '3x'.")
}

func TestDefinedSymbolsAssemble(t *testing.T) {
	h := New()
	out := run(h, "define LCDC $ff40\na $c000 ld a,(LCDC)\na $ set 7,a")
	expectOutput(t, out, "ldh a,($40)", "C002-   CB FF", "set 7,a")
}

func TestSettings(t *testing.T) {
	h := New()
	out := run(h, "set disasm 2\nset verbose true\nset bogus 1\nset")
	expectOutput(t, out,
		"Setting 'DisasmLines' updated.",
		"Setting 'Verbose' updated.",
		"setting 'bogus' not found",
		"DisasmLines      2",
		"Verbose          true")

	if h.settings.DisasmLines != 2 || !h.settings.Verbose {
		t.Errorf("settings not updated: %+v", *h.settings)
	}
}

func TestDisassembleContinues(t *testing.T) {
	h := New()
	out := run(h, "memory set $150 $00 $3c $cb $37\nd $150 1\n\n\n")
	expectOutput(t, out, "0150-   00", "nop", "0151-   3C", "inc a", "0152-   CB 37", "swap a")

	if h.settings.NextDisasmAddr != 0x0154 {
		t.Errorf("next disassembly address $%04X", h.settings.NextDisasmAddr)
	}
}

func TestAssembleFileAndLoad(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "prog.asm")
	code := "start:\n\tld a,$05\nloop:\n\tjp loop\n"
	if err := os.WriteFile(src, []byte(code), 0600); err != nil {
		t.Fatal(err)
	}

	h := New()
	out := run(h, "assemble file "+src+"\nd start 2\nsymbols")
	expectOutput(t, out,
		"Assembled 'prog.asm' to produce 'prog.bin' and 'prog.map'.",
		"Code loaded to $0150..$0154.",
		"start:",
		"ld a,$05",
		"; line 2",
		"loop:",
		"jp $0152",
		"; line 4",
		"loop             $0152")

	bin := filepath.Join(dir, "prog.bin")
	b, err := os.ReadFile(bin)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(b, []byte{0x3e, 0x05, 0xc3, 0x52, 0x01}) {
		t.Errorf("binary file contents % X", b)
	}

	h = New()
	out = run(h, "load "+bin+"\nd $150 2\ne loop")
	expectOutput(t, out,
		"Loaded 'prog.bin' to $0150..$0154.",
		"Loaded 'prog.map' source map.",
		"start:",
		"jp $0152",
		"$0152 (338)")
}

func TestLoadRequiresAddress(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "raw.bin")
	if err := os.WriteFile(bin, []byte{0xaf, 0xc9}, 0600); err != nil {
		t.Fatal(err)
	}

	h := New()
	out := run(h, "load "+bin+"\nload "+bin+" $4000\nd $4000 2")
	expectOutput(t, out,
		"File 'raw.bin' has no source map and requires an address.",
		"Loaded 'raw.bin' to $4000..$4001.",
		"xor a,a",
		"ret")
}

func TestAssembleFileErrors(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.asm")
	if err := os.WriteFile(src, []byte("\tld a,300\n\tbogus\n"), 0600); err != nil {
		t.Fatal(err)
	}

	h := New()
	out := run(h, "af "+src)
	expectOutput(t, out,
		"invalid opcode 'bogus'",
		"Failed to assemble: bad.asm")

	if _, err := os.Stat(filepath.Join(dir, "bad.bin")); err == nil {
		t.Error("binary file written despite errors")
	}
}

func TestHelp(t *testing.T) {
	h := New()
	out := run(h, "help\nhelp assemble\nhelp evaluate")
	expectOutput(t, out,
		"Commands:",
		"Assemble commands",
		"assemble commands:",
		"Assemble a single instruction into memory",
		"Syntax: evaluate <expression>")
}

func TestUnknownCommand(t *testing.T) {
	out := run(New(), "frobnicate")
	expectOutput(t, out, "Command not found.")
}

func TestQuit(t *testing.T) {
	out := run(New(), "quit\nevaluate 1")
	if strings.Contains(out, "$0001") {
		t.Errorf("command ran after quit:\n%s", out)
	}
}

func TestReset(t *testing.T) {
	h := New()
	out := run(h, "define x 1\nms $150 $76\nreset\nsymbols\nm $150 1")
	expectOutput(t, out, "Memory and symbols cleared.", "No symbols defined.", "0150- 00")
}
