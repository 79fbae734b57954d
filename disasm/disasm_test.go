package disasm_test

import (
	"io"
	"strings"
	"testing"

	"github.com/beevik/gbasm"
	"github.com/beevik/gbasm/asm"
	"github.com/beevik/gbasm/diag"
	"github.com/beevik/gbasm/disasm"
	"github.com/google/go-cmp/cmp"
	"github.com/juju/loggo"
)

var invalid = map[byte]bool{
	0xd3: true, 0xdb: true, 0xdd: true, 0xe3: true, 0xe4: true, 0xeb: true,
	0xec: true, 0xed: true, 0xf4: true, 0xfc: true, 0xfd: true,
}

func reassemble(t *testing.T, line string) []byte {
	t.Helper()
	c := asm.Config{
		Out: io.Discard,
		Log: diag.NewLogWithLogger(loggo.NewContext(loggo.WARNING).GetLogger(diag.ModuleName)),
	}
	assembly, _, err := c.Assemble(strings.NewReader("\t"+line), "line")
	if err != nil {
		t.Errorf("%s: %v %v", line, err, assembly.Errors)
		return nil
	}
	return assembly.Code
}

func TestDisassemble(t *testing.T) {
	tests := []struct {
		code []byte
		line string
	}{
		{[]byte{0x00}, "nop"},
		{[]byte{0x76}, "halt"},
		{[]byte{0x10, 0x00}, "stop"},
		{[]byte{0x7e}, "ld a,(hl)"},
		{[]byte{0x3e, 0x05}, "ld a,$05"},
		{[]byte{0x21, 0x34, 0x12}, "ld hl,$1234"},
		{[]byte{0xf8, 0xfe}, "ld hl,sp-2"},
		{[]byte{0xe0, 0x10}, "ldh ($10),a"},
		{[]byte{0xf0, 0x44}, "ldh a,($44)"},
		{[]byte{0x3c}, "inc a"},
		{[]byte{0x3d}, "dec a"},
		{[]byte{0x18, 0xfe}, "jr -2"},
		{[]byte{0x38, 0x05}, "jr c,5"},
		{[]byte{0xc2, 0x50, 0x01}, "jp nz,$0150"},
		{[]byte{0xff}, "rst $38"},
		{[]byte{0xf5}, "push af"},
		{[]byte{0xcb, 0x7c}, "bit 7,h"},
		{[]byte{0xcb, 0xde}, "set 3,(hl)"},
		{[]byte{0xcb, 0x37}, "swap a"},
		{[]byte{0xd3}, ".db $D3"},
		{[]byte{0xc3, 0x50}, ".db $C3"},
	}

	for _, tt := range tests {
		line, next := disasm.Disassemble(tt.code, 0x0150)
		if line != tt.line {
			t.Errorf("% X: got %q, expected %q", tt.code, line, tt.line)
		}
		n := len(tt.code)
		if tt.line[0] == '.' {
			n = 1
		}
		if int(next) != 0x0150+n {
			t.Errorf("% X: next $%04X, expected $%04X", tt.code, next, 0x0150+n)
		}
	}
}

func TestShorthandForms(t *testing.T) {
	tests := []struct {
		src  string
		line string
	}{
		{"add a,1", "inc a"},
		{"sub a,1", "dec a"},
		{"add a,-5", "sub a,$05"},
		{"ld ($ff10),a", "ldh ($10),a"},
		{"ld a,($ff10)", "ldh a,($10)"},
	}
	for _, tt := range tests {
		code := reassemble(t, tt.src)
		if line, _ := disasm.Disassemble(code, 0); line != tt.line {
			t.Errorf("%s: disassembled to %q, expected %q", tt.src, line, tt.line)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	check := func(code []byte) {
		d := disasm.Lookup(code)
		if d == nil {
			t.Errorf("% X: no descriptor", code[:2])
			return
		}
		line, _ := disasm.Disassemble(code, 0)
		got := reassemble(t, line)
		if diff := cmp.Diff(code[:d.Length], got); diff != "" {
			t.Errorf("%s: mismatch (-want +got):\n%s", line, diff)
		}
	}

	for op := 0; op < 256; op++ {
		if invalid[byte(op)] || op == 0xcb {
			continue
		}
		check([]byte{byte(op), 0x00, 0x34})
	}
	for op := 0; op < 256; op++ {
		check([]byte{0xcb, byte(op)})
	}
}

func TestDisassembleMemory(t *testing.T) {
	out := gbasm.NewOutput(0x4000)
	out.Reserve(4)
	for _, b := range []byte{0xc3, 0x00, 0x40, 0xaf} {
		if err := out.WriteByte(b); err != nil {
			t.Fatal(err)
		}
	}

	line, next := disasm.DisassembleMemory(out, 0x4000)
	if line != "jp $4000" || next != 0x4003 {
		t.Errorf("got %q $%04X", line, next)
	}
	line, next = disasm.DisassembleMemory(out, next)
	if line != "xor a,a" || next != 0x4004 {
		t.Errorf("got %q $%04X", line, next)
	}
}
