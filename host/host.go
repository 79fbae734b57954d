// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host implements an interactive shell around the SM83 assembler
// and disassembler. The host keeps a 64K memory image that assembled
// code is stored into, and a table of symbols that expressions and
// assembled instructions may refer to.
package host

import (
	"bufio"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"

	"github.com/beevik/cmd"
	"github.com/beevik/gbasm/asm"
	"github.com/beevik/gbasm/diag"
	"github.com/beevik/gbasm/disasm"
	"github.com/beevik/gbasm/expr"
	"github.com/juju/loggo"
)

var errQuit = errors.New("exiting program")

// The Host structure holds the state of the interactive shell.
type Host struct {
	input       *bufio.Scanner
	output      *bufio.Writer
	interactive bool
	lastCmd     *cmd.Selection
	mem         *memory
	symbols     expr.Symbols
	sourceMap   *asm.SourceMap
	settings    *settings
	log         *diag.Log
}

// New creates a new host with empty memory and no symbols.
func New() *Host {
	// Assembly diagnostics are printed by the host, so the assembler's
	// logger gets a context without writers.
	ctx := loggo.NewContext(loggo.WARNING)
	return &Host{
		output:   bufio.NewWriter(os.Stdout),
		mem:      newMemory(),
		symbols:  make(expr.Symbols),
		settings: newSettings(),
		log:      diag.NewLogWithLogger(ctx.GetLogger(diag.ModuleName)),
	}
}

// RunCommands accepts host commands from a reader and outputs the results
// to a writer. If the commands are interactive, a prompt is displayed while
// the host waits for the the next command to be entered.
func (h *Host) RunCommands(r io.Reader, w io.Writer, interactive bool) {
	h.input = bufio.NewScanner(r)
	h.output = bufio.NewWriter(w)
	h.interactive = interactive

	if interactive {
		h.println()
	}

	for {
		h.prompt()

		line, err := h.getLine()
		if err != nil {
			break
		}

		var c cmd.Selection
		if line != "" {
			c, err = cmds.Lookup(line)
			switch {
			case err == cmd.ErrNotFound:
				h.println("Command not found.")
				continue
			case err == cmd.ErrAmbiguous:
				h.println("Command is ambiguous.")
				continue
			case err != nil:
				h.printf("ERROR: %v.\n", err)
				continue
			}
		} else if h.lastCmd != nil {
			c = *h.lastCmd
		}

		if c.Command == nil {
			continue
		}
		h.lastCmd = &c

		handler := c.Command.Data.(func(*Host, cmd.Selection) error)
		err = handler(h, c)
		if err != nil {
			break
		}
	}
	h.flush()
}

// AssembleFile assembles the SM83 source file 'filename', saves the
// binary and source map files next to it, and loads the machine code into
// memory.
func (h *Host) AssembleFile(filename string) error {
	defer h.flush()

	if filepath.Ext(filename) == "" {
		filename += ".asm"
	}

	assembly, sourceMap, err := h.config(h.settings.Origin).AssembleFile(filename)
	if err != nil {
		if assembly == nil {
			h.printf("Failed to open '%s': %v\n", filepath.Base(filename), err)
		} else {
			h.printf("Failed to assemble: %s\n", filepath.Base(filename))
		}
		return err
	}

	if err := h.mem.StoreBytes(assembly.Origin, assembly.Code); err != nil {
		h.printf("%v\n", err)
		return err
	}
	maps.Copy(h.symbols, assembly.Symbols)
	h.sourceMap = sourceMap
	h.settings.NextDisasmAddr = assembly.Origin
	h.settings.NextAsmAddr = assembly.Origin + uint16(len(assembly.Code))
	h.displayRange(assembly.Origin, len(assembly.Code))
	return nil
}

func (h *Host) config(origin uint16) asm.Config {
	h.log.Reset()

	var options asm.Option
	if h.settings.Verbose {
		options |= asm.Verbose
	}
	return asm.Config{
		Origin:  origin,
		Symbols: h.symbols,
		Options: options,
		Out:     h.output,
		Log:     h.log,
	}
}

func (h *Host) print(args ...any) {
	fmt.Fprint(h.output, args...)
}

func (h *Host) printf(format string, args ...any) {
	fmt.Fprintf(h.output, format, args...)
	h.flush()
}

func (h *Host) println(args ...any) {
	fmt.Fprintln(h.output, args...)
	h.flush()
}

func (h *Host) flush() {
	h.output.Flush()
}

func (h *Host) getLine() (string, error) {
	if h.input.Scan() {
		return strings.TrimSpace(h.input.Text()), nil
	}
	if h.input.Err() != nil {
		return "", h.input.Err()
	}
	return "", io.EOF
}

func (h *Host) prompt() {
	if h.interactive {
		h.print("* ")
		h.flush()
	}
}

func (h *Host) cmdAssembleLine(c cmd.Selection) error {
	if len(c.Args) < 2 {
		h.displayHelpText(c.Command)
		return nil
	}

	addr := h.settings.NextAsmAddr
	if c.Args[0] != "$" {
		a, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr = a
	}

	line := strings.Join(c.Args[1:], " ")
	assembly, _, err := h.config(addr).Assemble(strings.NewReader("\t"+line), "input")
	if err != nil {
		for _, e := range assembly.Errors {
			h.println(e)
		}
		return nil
	}

	if err := h.mem.StoreBytes(assembly.Origin, assembly.Code); err != nil {
		h.printf("%v\n", err)
		return nil
	}
	maps.Copy(h.symbols, assembly.Symbols)

	addr = assembly.Origin
	for n := 0; n < len(assembly.Code); {
		d, next := h.disassemble(addr)
		h.println(d)
		n += int(next - addr)
		addr = next
	}
	h.settings.NextAsmAddr = addr
	h.lastCmd = nil
	return nil
}

func (h *Host) cmdAssembleFile(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayHelpText(c.Command)
		return nil
	}

	if len(c.Args) >= 2 {
		verbose, err := stringToBool(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		defer func(v bool) { h.settings.Verbose = v }(h.settings.Verbose)
		h.settings.Verbose = verbose
	}

	h.AssembleFile(c.Args[0])
	return nil
}

func (h *Host) cmdDefine(c cmd.Selection) error {
	if len(c.Args) < 2 {
		h.displayHelpText(c.Command)
		return nil
	}

	name := c.Args[0]
	if e, err := expr.Parse(name, nil); err != nil || e.String() != name {
		h.printf("Invalid symbol name '%s'.\n", name)
		return nil
	}

	v, err := h.evalExpr(strings.Join(c.Args[1:], " "))
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	h.symbols[name] = v
	h.printf("Symbol '%s' set to $%04X.\n", name, uint16(v))
	return nil
}

func (h *Host) cmdDisassemble(c cmd.Selection) error {
	if len(c.Args) == 0 {
		c.Args = []string{"$"}
	}

	var addr uint16
	switch c.Args[0] {
	case "$":
		addr = h.settings.NextDisasmAddr
	default:
		a, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr = a
	}

	lines := h.settings.DisasmLines
	if len(c.Args) > 1 {
		l, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		lines = int(l)
	}

	for i := 0; i < lines; i++ {
		if h.sourceMap != nil {
			if label, ok := h.sourceMap.Label(addr); ok {
				h.printf("%s:\n", label)
			}
		}
		d, next := h.disassemble(addr)
		h.println(d)
		addr = next
	}

	h.settings.NextDisasmAddr = addr
	if h.lastCmd != nil {
		h.lastCmd.Args = []string{"$", fmt.Sprintf("%d", lines)}
	}
	return nil
}

func (h *Host) cmdEval(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayHelpText(c.Command)
		return nil
	}

	v, err := h.evalExpr(strings.Join(c.Args, " "))
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	h.printf("$%04X (%d)\n", uint16(v), v)
	return nil
}

func (h *Host) cmdHelp(c cmd.Selection) error {
	if len(c.Args) == 0 {
		h.displayCommands("")
		return nil
	}

	topic := strings.Join(c.Args, " ")
	if h.displayCommands(topic) {
		return nil
	}

	s, err := cmds.Lookup(topic)
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}
	h.displayHelpText(s.Command)
	if s.Command.Description != "" {
		h.printf("\nDescription:\n%s\n", indentWrap(3, 72, s.Command.Description))
	}
	return nil
}

func (h *Host) cmdLoad(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayHelpText(c.Command)
		return nil
	}

	filename := c.Args[0]
	if filepath.Ext(filename) == "" {
		filename += ".bin"
	}

	loadAddr := -1
	if len(c.Args) >= 2 {
		addr, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		loadAddr = int(addr)
	}

	h.load(filename, loadAddr)
	return nil
}

func (h *Host) cmdMemoryDump(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayHelpText(c.Command)
		return nil
	}

	var addr uint16
	switch c.Args[0] {
	case "$":
		addr = h.settings.NextMemDumpAddr
	default:
		a, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr = a
	}

	bytes := uint16(h.settings.MemDumpBytes)
	if len(c.Args) >= 2 {
		var err error
		bytes, err = h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
	}

	h.dumpMemory(addr, bytes)

	h.settings.NextMemDumpAddr = addr + bytes
	if h.lastCmd != nil {
		h.lastCmd.Args = []string{"$", fmt.Sprintf("%d", bytes)}
	}
	return nil
}

func (h *Host) cmdMemorySet(c cmd.Selection) error {
	if len(c.Args) < 2 {
		h.displayHelpText(c.Command)
		return nil
	}

	addr, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	b := make([]byte, 0, len(c.Args)-1)
	for _, s := range c.Args[1:] {
		v, err := h.evalExpr(s)
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		if v < -128 || v > 0xff {
			h.printf("Value %d is not a byte.\n", v)
			return nil
		}
		b = append(b, byte(v))
	}

	if err := h.mem.StoreBytes(addr, b); err != nil {
		h.printf("%v\n", err)
		return nil
	}
	h.dumpMemory(addr, uint16(len(b)))
	return nil
}

func (h *Host) cmdQuit(c cmd.Selection) error {
	return errQuit
}

func (h *Host) cmdReset(c cmd.Selection) error {
	h.mem.clear()
	h.symbols = make(expr.Symbols)
	h.sourceMap = nil
	h.settings.NextAsmAddr = h.settings.Origin
	h.settings.NextDisasmAddr = 0
	h.settings.NextMemDumpAddr = 0
	h.println("Memory and symbols cleared.")
	return nil
}

func (h *Host) cmdSet(c cmd.Selection) error {
	switch len(c.Args) {
	case 0:
		h.println("Variables:")
		h.settings.Display(h.output)
		h.flush()

	case 1:
		h.displayHelpText(c.Command)

	default:
		key, value := strings.ToLower(c.Args[0]), strings.Join(c.Args[1:], " ")

		var err error
		switch h.settings.Kind(key) {
		case reflect.Invalid:
			err = fmt.Errorf("setting '%s' not found", key)
		case reflect.Bool:
			var v bool
			v, err = stringToBool(value)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		default:
			var v int64
			v, err = h.evalExpr(value)
			if err == nil {
				err = h.settings.Set(key, v)
			}
		}

		if err == nil {
			h.printf("Setting '%s' updated.\n", h.settings.Name(key))
		} else {
			h.printf("%v\n", err)
		}
	}

	return nil
}

func (h *Host) cmdSymbols(c cmd.Selection) error {
	if len(h.symbols) == 0 {
		h.println("No symbols defined.")
		return nil
	}
	for _, name := range slices.Sorted(maps.Keys(h.symbols)) {
		h.printf("%-16s $%04X\n", name, uint16(h.symbols[name]))
	}
	return nil
}

func (h *Host) load(filename string, addr int) {
	file, err := os.Open(filename)
	if err != nil {
		h.printf("Failed to open '%s': %v\n", filepath.Base(filename), err)
		return
	}
	defer file.Close()

	a := &asm.Assembly{}
	_, err = a.ReadFrom(file)
	if err != nil {
		h.printf("Failed to read '%s': %v\n", filepath.Base(filename), err)
		return
	}

	ext := filepath.Ext(filename)
	mapFilename := filename[:len(filename)-len(ext)] + ".map"

	var sourceMap *asm.SourceMap
	if mapFile, err := os.Open(mapFilename); err == nil {
		sourceMap = &asm.SourceMap{}
		_, err = sourceMap.ReadFrom(mapFile)
		mapFile.Close()
		switch {
		case err != nil:
			h.printf("Failed to read '%s': %v\n", filepath.Base(mapFilename), err)
			sourceMap = nil
		case sourceMap.CRC != crc32.ChecksumIEEE(a.Code) || int(sourceMap.Size) != len(a.Code):
			h.printf("Source map '%s' does not match '%s'.\n", filepath.Base(mapFilename), filepath.Base(filename))
			sourceMap = nil
		}
	}

	var origin uint16
	switch {
	case addr >= 0:
		origin = uint16(addr)
	case sourceMap != nil:
		origin = sourceMap.Origin
	default:
		h.printf("File '%s' has no source map and requires an address.\n", filepath.Base(filename))
		return
	}

	if err := h.mem.StoreBytes(origin, a.Code); err != nil {
		h.printf("%v\n", err)
		return
	}
	h.printf("Loaded '%s' to $%04X..$%04X.\n", filepath.Base(filename), origin, int(origin)+len(a.Code)-1)

	// Source map addresses only hold when the code is loaded at the
	// address it was assembled for.
	if sourceMap != nil && sourceMap.Origin == origin {
		h.sourceMap = sourceMap
		for _, e := range sourceMap.Labels {
			h.symbols[e.Label] = int64(e.Address)
		}
		h.printf("Loaded '%s' source map.\n", filepath.Base(mapFilename))
	}
	h.settings.NextDisasmAddr = origin
}

func (h *Host) displayRange(origin uint16, n int) {
	if n == 0 {
		return
	}
	h.printf("Code loaded to $%04X..$%04X.\n", origin, int(origin)+n-1)
}

// Evaluate an expression using the host's symbols.
func (h *Host) evalExpr(s string) (int64, error) {
	e, err := expr.Parse(s, h.symbols)
	if err != nil {
		return 0, err
	}
	for _, name := range e.Symbols() {
		if _, ok := h.symbols[name]; !ok {
			return 0, fmt.Errorf("identifier '%s' not found", name)
		}
	}
	v, ok := e.EvaluateInteger()
	if !ok {
		return 0, fmt.Errorf("expression '%s' could not be evaluated", s)
	}
	return v, nil
}

// Evaluate an expression as a 16-bit address.
func (h *Host) parseExpr(s string) (uint16, error) {
	v, err := h.evalExpr(s)
	if err != nil {
		return 0, err
	}
	if v < -0x8000 || v > 0xffff {
		return 0, fmt.Errorf("value %d out of range", v)
	}
	return uint16(v), nil
}

func (h *Host) disassemble(addr uint16) (str string, next uint16) {
	var line string
	line, next = disasm.DisassembleMemory(h.mem, addr)

	b := h.mem.LoadBytes(addr, int(next-addr))
	str = fmt.Sprintf("%04X-   %-8s    %-15s", addr, codeString(b), line)

	if h.sourceMap != nil {
		if _, n := h.sourceMap.Search(int(addr)); n >= 0 {
			str += fmt.Sprintf(" ; line %d", n)
		}
	}

	return strings.TrimRight(str, " "), next
}

func (h *Host) dumpMemory(addr0, bytes uint16) {
	if bytes == 0 {
		return
	}

	addr1 := addr0 + bytes - 1
	if addr1 < addr0 {
		addr1 = 0xffff
	}

	buf := []byte("    -" + strings.Repeat(" ", 35))

	// Don't align display for short dumps.
	if addr1-addr0 < 8 {
		addrToBuf(addr0, buf[0:4])
		for a, c1, c2 := uint32(addr0), 6, 32; a <= uint32(addr1); a, c1, c2 = a+1, c1+3, c2+1 {
			m := h.mem.LoadByte(uint16(a))
			byteToBuf(m, buf[c1:c1+2])
			buf[c2] = toPrintableChar(m)
		}
		h.println(strings.TrimRight(string(buf), " "))
		return
	}

	// Align addr0 and addr1 to 8-byte boundaries.
	start := uint32(addr0) & 0xfff8
	stop := (uint32(addr1) + 8) & 0xffff8
	if stop > 0x10000 {
		stop = 0x10000
	}

	a := uint16(start)
	for r := start; r < stop; r += 8 {
		addrToBuf(a, buf[0:4])
		for c1, c2 := 6, 32; c1 < 29; c1, c2, a = c1+3, c2+1, a+1 {
			if a >= addr0 && a <= addr1 {
				m := h.mem.LoadByte(a)
				byteToBuf(m, buf[c1:c1+2])
				buf[c2] = toPrintableChar(m)
			} else {
				buf[c1] = ' '
				buf[c1+1] = ' '
				buf[c2] = ' '
			}
		}
		h.println(strings.TrimRight(string(buf), " "))
	}
}

func (h *Host) displayHelpText(c *cmd.Command) {
	if c.Usage != "" {
		h.printf("Syntax: %s\n", c.Usage)
	} else {
		h.println("<no help text>")
	}
}

// Display the commands of a command group, or the top-level commands if
// 'group' is empty. It returns false if the group has no commands.
func (h *Host) displayCommands(group string) bool {
	found := false
	for _, t := range helpTopics {
		parent, name := "", t.path
		if i := strings.LastIndexByte(t.path, ' '); i >= 0 {
			parent, name = t.path[:i], t.path[i+1:]
		}
		if parent != group || t.brief == "" {
			continue
		}
		if !found {
			if group == "" {
				h.println("Commands:")
			} else {
				h.printf("%s commands:\n", group)
			}
			found = true
		}
		h.printf("    %-15s  %s\n", name, t.brief)
	}
	return found
}
