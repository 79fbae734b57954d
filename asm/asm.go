// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm implements an SM83 (Game Boy) assembler on top of the
// gbasm instruction encoder.
package asm

import (
	"bufio"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/beevik/gbasm"
	"github.com/beevik/gbasm/diag"
	"github.com/beevik/gbasm/expr"
	"github.com/juju/errors"
	"github.com/juju/loggo"
)

// Assembly errors.
var (
	ErrParse    = errors.New("parse error")
	ErrValidate = errors.New("validation error")
	ErrParity   = errors.New("emitted length differs from reserved length")
)

// Labels may be referenced before they are defined, so the program is laid
// out repeatedly until label addresses stop changing.
const maxLayoutPasses = 8

type pseudoOpData struct {
	fn    func(a *assembler, line int, text string, param int)
	param int
}

var pseudoOps = map[string]pseudoOpData{
	".org":  {fn: (*assembler).parseOrigin},
	"org":   {fn: (*assembler).parseOrigin},
	".db":   {fn: (*assembler).parseData, param: 1},
	"db":    {fn: (*assembler).parseData, param: 1},
	".byte": {fn: (*assembler).parseData, param: 1},
	".dw":   {fn: (*assembler).parseData, param: 2},
	"dw":    {fn: (*assembler).parseData, param: 2},
	".word": {fn: (*assembler).parseData, param: 2},
	".ds":   {fn: (*assembler).parseSpace},
	"ds":    {fn: (*assembler).parseSpace},
}

// A segment is a single source construct that may produce machine code.
type segment interface {
	row() int
}

// An instruction segment holds a single SM83 instruction.
type instruction struct {
	line     int                // source line number
	text     string             // instruction text as written
	mnemonic string             // lower-case mnemonic
	operands []operand          // parsed operands
	inst     *gbasm.Instruction // selected and validated instruction
}

// A label segment binds a symbol to the address at which it appears.
type label struct {
	line int
	name string
}

// An equate segment binds a symbol to the value of an expression.
type equate struct {
	line int
	name string
	expr *expr.Expr
}

// An org segment moves the output address before any code is reserved.
type org struct {
	line int
	expr *expr.Expr
}

// A data segment holds bytes or little-endian words.
type data struct {
	line  int
	width int        // 1 or 2
	items []dataItem // values in order
	vals  []int64    // evaluated values, one per expression item
	n     int        // total length in bytes
}

type dataItem struct {
	expr *expr.Expr // nil for string items
	str  []byte
}

// A space segment reserves a run of fill bytes.
type space struct {
	line  int
	count *expr.Expr
	fill  *expr.Expr // may be nil
	n     int
	value byte
}

func (i *instruction) row() int { return i.line }
func (l *label) row() int       { return l.line }
func (e *equate) row() int      { return e.line }
func (o *org) row() int         { return o.line }
func (d *data) row() int        { return d.line }
func (s *space) row() int       { return s.line }

// The assembler is a state object used during the assembly of machine
// code from assembly code.
type assembler struct {
	filename string         // name of the source file
	r        io.Reader      // the reader passed to Assemble
	origin   uint16         // requested origin
	syms     expr.Symbols   // symbols visible to expressions
	defined  map[string]int // symbol -> line of definition
	out      *gbasm.Output  // reserved and encoded machine code
	log      *diag.Log      // diagnostics
	segments []segment      // parsed segments in source order
	lines    []SourceLine   // address -> source line mappings
	labels   []Export       // label addresses after assembly
	w        io.Writer      // used for verbose output
	verbose  bool           // verbose output
}

// Assembly contains the assembled machine code and other data associated
// with the machine code.
type Assembly struct {
	Origin  uint16       // Address of the first byte of code
	Code    []byte       // Assembled machine code
	Errors  []string     // Errors encountered during assembly
	Symbols expr.Symbols // All symbols defined after assembly
}

// ReadFrom reads machine code from a binary input source.
func (a *Assembly) ReadFrom(r io.Reader) (n int64, err error) {
	a.Errors = []string{}
	a.Code, err = io.ReadAll(r)
	n = int64(len(a.Code))
	if n > 0x10000 {
		return n, gbasm.ErrOutputOverflow
	}
	return n, err
}

// WriteTo saves machine code as binary data into an output writer.
func (a *Assembly) WriteTo(w io.Writer) (n int64, err error) {
	nn, err := w.Write(a.Code)
	return int64(nn), err
}

// Option type used by the Assemble function.
type Option uint

// Options for the Assemble function.
const (
	Verbose Option = 1 << iota // verbose output during assembly
)

// DefaultOrigin is the address of the first byte after the cartridge
// header.
const DefaultOrigin = 0x0150

// Config holds the settings for a single assembly.
type Config struct {
	Origin  uint16       // address of the first byte
	Symbols expr.Symbols // predefined symbols; copied, never modified
	Options Option
	Out     io.Writer // verbose output and messages; os.Stdout if nil
	Log     *diag.Log // diagnostic log; a new log without writers if nil
}

// AssembleFile reads a file containing SM83 assembly code, assembles it,
// and produces a binary output file and a source map file.
func AssembleFile(path string, options Option, out io.Writer) error {
	_, _, err := Config{Origin: DefaultOrigin, Options: options, Out: out}.AssembleFile(path)
	return err
}

// AssembleFile is like the package-level AssembleFile but uses the
// configuration's settings. It returns the assembly and source map.
func (c Config) AssembleFile(path string) (*Assembly, *SourceMap, error) {
	if c.Out == nil {
		c.Out = os.Stdout
	}

	inFile, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Annotatef(err, "opening %s", path)
	}
	defer inFile.Close()

	assembly, sourceMap, err := c.Assemble(inFile, path)
	if err != nil {
		for _, e := range assembly.Errors {
			fmt.Fprintln(c.Out, e)
		}
		return assembly, sourceMap, err
	}

	ext := filepath.Ext(path)
	prefix := path[:len(path)-len(ext)]
	binPath := prefix + ".bin"
	if err := writeFile(binPath, assembly); err != nil {
		return assembly, sourceMap, errors.Annotatef(err, "writing %s", binPath)
	}
	mapPath := prefix + ".map"
	if err := writeFile(mapPath, sourceMap); err != nil {
		return assembly, sourceMap, errors.Annotatef(err, "writing %s", mapPath)
	}

	fmt.Fprintf(c.Out, "Assembled '%s' to produce '%s' and '%s'.\n",
		filepath.Base(path),
		filepath.Base(binPath),
		filepath.Base(mapPath))
	return assembly, sourceMap, nil
}

func writeFile(path string, w io.WriterTo) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = w.WriteTo(file)
	return err
}

// Assemble reads data from the provided stream and attempts to assemble it
// into SM83 machine code starting at address 'origin'.
func Assemble(r io.Reader, filename string, origin uint16, out io.Writer, options Option) (*Assembly, *SourceMap, error) {
	return Config{Origin: origin, Options: options, Out: out}.Assemble(r, filename)
}

// Assemble assembles the SM83 code read from r using the configuration's
// settings.
func (c Config) Assemble(r io.Reader, filename string) (*Assembly, *SourceMap, error) {
	if c.Out == nil {
		c.Out = os.Stdout
	}
	if c.Log == nil {
		c.Log = diag.NewLogWithLogger(loggo.NewContext(loggo.WARNING).GetLogger(diag.ModuleName))
	}

	a := &assembler{
		filename: filename,
		r:        r,
		origin:   c.Origin,
		syms:     make(expr.Symbols),
		defined:  make(map[string]int),
		out:      gbasm.NewOutput(c.Origin),
		log:      c.Log,
		w:        c.Out,
		verbose:  (c.Options & Verbose) != 0,
	}
	for k, v := range c.Symbols {
		a.syms[k] = v
	}

	// Assembly consists of the following steps. Each must complete without
	// errors before the next one runs, so no code is emitted unless every
	// instruction validated.
	steps := []struct {
		fn  func(a *assembler) error
		err error
	}{
		{(*assembler).parse, ErrParse},       // Parse the assembly code
		{(*assembler).layout, nil},           // Settle label addresses
		{(*assembler).validate, ErrValidate}, // Validate and reserve every segment
		{(*assembler).encode, ErrParity},     // Emit the machine code
	}

	var err error
	for _, step := range steps {
		err = step.fn(a)
		if err != nil {
			break
		}
		if step.err != nil && a.log.HasErrors() {
			err = step.err
			break
		}
	}

	var errs []string
	for _, e := range a.log.Entries() {
		if e.Severity >= gbasm.SeverityError {
			errs = append(errs, e.String())
		}
	}

	assembly := &Assembly{
		Origin:  a.out.Origin(),
		Errors:  errs,
		Symbols: a.syms,
	}
	if err == nil {
		assembly.Code = a.out.Bytes()
	}

	sourceMap := &SourceMap{
		Origin: assembly.Origin,
		Size:   uint32(len(assembly.Code)),
		CRC:    crc32.ChecksumIEEE(assembly.Code),
		File:   filename,
		Lines:  a.lines,
		Labels: sortExports(a.labels),
	}

	return assembly, sourceMap, err
}

// Read the assembly code and build the list of segments.
func (a *assembler) parse() error {
	a.logSection("Parsing assembly code")

	scanner := bufio.NewScanner(a.r)
	for row := 1; scanner.Scan(); row++ {
		a.log.SetPos(a.filename, row)
		a.parseLine(row, stripComment(scanner.Text()))
	}
	return scanner.Err()
}

// Parse a single line of assembly code.
func (a *assembler) parseLine(line int, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	a.logLine(line, text, "line")

	word, rest := splitWord(text)

	// name: [instruction]
	if strings.HasSuffix(word, ":") {
		a.parseLabel(line, word[:len(word)-1])
		if rest == "" {
			return
		}
		text = rest
		word, rest = splitWord(text)
	}

	// name = expr, name equ expr
	if i := strings.IndexByte(text, '='); i > 0 && isIdentifier(strings.TrimSpace(text[:i])) {
		a.parseEquate(line, strings.TrimSpace(text[:i]), text[i+1:])
		return
	}
	if next, tail := splitWord(rest); strings.EqualFold(next, "equ") || strings.EqualFold(next, ".equ") {
		a.parseEquate(line, word, tail)
		return
	}

	if op, ok := pseudoOps[strings.ToLower(word)]; ok {
		op.fn(a, line, rest, op.param)
		return
	}

	a.parseInstruction(line, text, word, rest)
}

// Define a symbol, reporting an error if it already exists.
func (a *assembler) define(line int, name string) bool {
	if !isIdentifier(name) {
		a.addError("invalid symbol name '%s'", name)
		return false
	}
	if isReserved(name) {
		a.addError("'%s' is a reserved word", name)
		return false
	}
	if prev, ok := a.defined[name]; ok {
		a.addError("symbol '%s' already defined on line %d", name, prev)
		return false
	}
	if _, ok := a.syms[name]; ok {
		a.addError("symbol '%s' already defined", name)
		return false
	}
	a.defined[name] = line
	return true
}

func (a *assembler) parseLabel(line int, name string) {
	if !a.define(line, name) {
		return
	}
	a.logLine(line, name, "label=%s", name)
	a.segments = append(a.segments, &label{line: line, name: name})
}

// Parse an "equ" constant definition.
func (a *assembler) parseEquate(line int, name, text string) {
	if !a.define(line, name) {
		return
	}
	e, ok := a.parseExpr(text)
	if !ok {
		return
	}
	a.logLine(line, text, "equate=%s expr=%s", name, e)
	a.segments = append(a.segments, &equate{line: line, name: name, expr: e})
}

// Parse an ".org" origin definition.
func (a *assembler) parseOrigin(line int, text string, param int) {
	e, ok := a.parseExpr(text)
	if !ok {
		return
	}
	a.segments = append(a.segments, &org{line: line, expr: e})
}

// Parse a ".db" or ".dw" data definition.
func (a *assembler) parseData(line int, text string, width int) {
	d := &data{line: line, width: width}
	for _, item := range splitOperands(text) {
		item = strings.TrimSpace(item)
		switch {
		case width == 1 && len(item) >= 2 && item[0] == '"' && item[len(item)-1] == '"':
			d.items = append(d.items, dataItem{str: []byte(item[1 : len(item)-1])})
			d.n += len(item) - 2
		default:
			e, ok := a.parseExpr(item)
			if !ok {
				return
			}
			d.items = append(d.items, dataItem{expr: e})
			d.n += width
		}
	}
	if len(d.items) == 0 {
		a.addError("data directive requires at least one value")
		return
	}
	a.logLine(line, text, "data len=%d", d.n)
	a.segments = append(a.segments, d)
}

// Parse a ".ds count[, fill]" space definition.
func (a *assembler) parseSpace(line int, text string, param int) {
	args := splitOperands(text)
	if len(args) < 1 || len(args) > 2 {
		a.addError("space directive requires a count and an optional fill value")
		return
	}
	s := &space{line: line}
	var ok bool
	if s.count, ok = a.parseExpr(args[0]); !ok {
		return
	}
	if len(args) == 2 {
		if s.fill, ok = a.parseExpr(args[1]); !ok {
			return
		}
	}
	a.segments = append(a.segments, s)
}

// Parse an SM83 instruction and its operands.
func (a *assembler) parseInstruction(line int, text, word, rest string) {
	mnemonic := strings.ToLower(word)
	if gbasm.Lookup(mnemonic) == nil {
		a.addError("invalid opcode '%s'", word)
		return
	}

	inst := &instruction{line: line, text: text, mnemonic: mnemonic}
	if rest != "" {
		for _, s := range splitOperands(rest) {
			o, ok := a.parseOperand(s)
			if !ok {
				return
			}
			inst.operands = append(inst.operands, o)
		}
	}
	a.logLine(line, text, "op=%s operands=%d", mnemonic, len(inst.operands))
	a.segments = append(a.segments, inst)
}

// Parse an expression, reporting any syntax error.
func (a *assembler) parseExpr(text string) (*expr.Expr, bool) {
	text = strings.TrimSpace(text)
	e, err := expr.Parse(text, a.syms)
	if err != nil {
		a.addError("invalid expression '%s': %v", text, err)
		return nil, false
	}
	return e, true
}

// Lay the program out on a scratch output until every label's address
// settles. Instructions that cannot be validated yet are assumed to take
// their default length.
func (a *assembler) layout() error {
	a.logSection("Laying out segments")

	for pass := 1; pass <= maxLayoutPasses; pass++ {
		scratch := gbasm.NewOutput(a.origin)
		changed := false
		for _, s := range a.segments {
			switch ss := s.(type) {
			case *instruction:
				d, ops, ok := match(ss.mnemonic, ss.operands)
				if !ok {
					continue
				}
				if gbasm.NewInstruction(d, ops).Validate(scratch, nil) != nil {
					scratch.Reserve(d.Length)
				}

			case *label:
				addr := int64(scratch.Address())
				if v, ok := a.syms[ss.name]; !ok || v != addr {
					changed = true
				}
				a.syms[ss.name] = addr

			case *equate:
				if v, ok := ss.expr.EvaluateInteger(); ok {
					if old, ok := a.syms[ss.name]; !ok || old != v {
						changed = true
					}
					a.syms[ss.name] = v
				}

			case *org:
				if v, ok := ss.expr.EvaluateInteger(); ok && v >= 0 && v <= 0xffff && scratch.Address() == int(scratch.Origin()) {
					scratch.Reset(uint16(v))
				}

			case *data:
				scratch.Reserve(ss.n)

			case *space:
				if v, ok := ss.count.EvaluateInteger(); ok && v > 0 {
					scratch.Reserve(int(v))
				}
			}
		}
		a.logf("pass %d: changed=%v", pass, changed)
		if !changed {
			break
		}
	}
	return nil
}

// Validate every segment in order, reserving its space in the output.
// Every error is reported; none stops the pass.
func (a *assembler) validate() error {
	a.logSection("Validating segments")

	for _, s := range a.segments {
		a.log.SetPos(a.filename, s.row())
		addr := a.out.Address()

		switch ss := s.(type) {
		case *instruction:
			d, ops, ok := match(ss.mnemonic, ss.operands)
			if !ok {
				a.addError("invalid operands for '%s'", ss.mnemonic)
				continue
			}
			inst := gbasm.NewInstruction(d, ops)
			if inst.Validate(a.out, a.log) != nil {
				// Keep later addresses in step with the layout pass.
				a.out.Reserve(d.Length)
				continue
			}
			ss.inst = inst
			a.logf("%04X  %-20s Len:%d Opcode:%02X", addr, ss.text, inst.Length(), inst.Encoding())

		case *label:
			if a.syms[ss.name] != int64(addr) {
				if !a.log.HasErrors() {
					a.addError("address of label '%s' did not settle", ss.name)
				}
				continue
			}
			a.labels = append(a.labels, Export{Label: ss.name, Address: uint16(addr)})
			a.logf("%04X  %s:", addr, ss.name)

		case *equate:
			v, ok := ss.expr.EvaluateInteger()
			if !ok {
				a.addError("cannot evaluate '%s'", ss.expr.Source())
				continue
			}
			a.syms[ss.name] = v
			a.logf("%-25s Val:$%X", ss.name, v)

		case *org:
			v, ok := ss.expr.EvaluateInteger()
			switch {
			case !ok:
				a.addError("cannot evaluate '%s'", ss.expr.Source())
			case v < 0 || v > 0xffff:
				a.addError("origin $%X outside address space", v)
			case addr != int(a.out.Origin()):
				a.addError("origin directive must appear before first instruction")
			default:
				a.out.Reset(uint16(v))
				a.logf("%04X  .org", v)
			}

		case *data:
			a.validateData(ss)

		case *space:
			a.validateSpace(ss)
		}

		if err := a.out.Err(); err != nil {
			a.addError("%v", err)
			break
		}
	}
	return nil
}

func (a *assembler) validateData(d *data) {
	min, max := int64(-128), int64(0xff)
	if d.width == 2 {
		min, max = -32768, 0xffff
	}

	d.vals = d.vals[:0]
	for _, item := range d.items {
		if item.expr == nil {
			continue
		}
		v, ok := item.expr.EvaluateInteger()
		switch {
		case !ok:
			a.addError("cannot evaluate '%s'", item.expr.Source())
			return
		case v < min || v > max:
			a.addError("data value %d out of range", v)
			return
		}
		d.vals = append(d.vals, v)
	}
	a.out.Reserve(d.n)
}

func (a *assembler) validateSpace(s *space) {
	n, ok := s.count.EvaluateInteger()
	if !ok {
		a.addError("cannot evaluate '%s'", s.count.Source())
		return
	}
	if n < 0 || n > 0x10000 {
		a.addError("space count %d out of range", n)
		return
	}
	var fill int64
	if s.fill != nil {
		if fill, ok = s.fill.EvaluateInteger(); !ok {
			a.addError("cannot evaluate '%s'", s.fill.Source())
			return
		}
		if fill < -128 || fill > 0xff {
			a.addError("fill value %d out of range", fill)
			return
		}
	}
	s.n, s.value = int(n), byte(fill)
	a.out.Reserve(s.n)
}

// Emit every segment's machine code. Each segment must write exactly the
// number of bytes it reserved.
func (a *assembler) encode() error {
	a.logSection("Generating code")

	for _, s := range a.segments {
		a.log.SetPos(a.filename, s.row())
		start := a.out.Written()
		addr := int(a.out.Origin()) + start

		var reserved int
		var err error
		switch ss := s.(type) {
		case *instruction:
			reserved = ss.inst.Length()
			err = ss.inst.Encode(a.out)

		case *data:
			reserved = ss.n
			err = a.encodeData(ss)

		case *space:
			reserved = ss.n
			for i := 0; i < ss.n && err == nil; i++ {
				err = a.out.WriteByte(ss.value)
			}
		}

		if err != nil {
			a.addError("%v", err)
			return err
		}
		n := a.out.Written() - start
		if n != reserved {
			a.addError("reserved %d bytes but emitted %d", reserved, n)
			return ErrParity
		}
		if n > 0 {
			a.lines = append(a.lines, SourceLine{Address: addr, Line: s.row()})
			a.logBytes(addr, a.out.LoadBytes(uint16(addr), n))
		}
	}
	return nil
}

func (a *assembler) encodeData(d *data) error {
	vals := d.vals
	for _, item := range d.items {
		if item.expr == nil {
			for _, b := range item.str {
				if err := a.out.WriteByte(b); err != nil {
					return err
				}
			}
			continue
		}
		v := vals[0]
		vals = vals[1:]

		var err error
		if d.width == 2 {
			err = a.out.WriteU16(uint16(v))
		} else {
			err = a.out.WriteByte(byte(v))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Report an error at the current source position.
func (a *assembler) addError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	a.log.ReportError(gbasm.SeverityError, msg)
	if a.verbose {
		fmt.Fprintf(a.w, "Error: %s\n", msg)
	}
}

// In verbose mode, log a string to the output.
func (a *assembler) logf(format string, args ...any) {
	if a.verbose {
		fmt.Fprintf(a.w, format, args...)
		fmt.Fprintf(a.w, "\n")
	}
}

// In verbose mode, log a string and its associated line of assembly code.
func (a *assembler) logLine(line int, text, format string, args ...any) {
	if a.verbose {
		detail := fmt.Sprintf(format, args...)
		fmt.Fprintf(a.w, "%-4d | %-24s | %s\n", line, detail, text)
	}
}

// In verbose mode, log a series of bytes with starting address.
func (a *assembler) logBytes(addr int, b []byte) {
	if a.verbose {
		for i, n := 0, len(b); i < n; i += 3 {
			j := min(i+3, n)
			a.logf("%04X-*  %s", addr+i, byteString(b[i:j]))
		}
	}
}

// In verbose mode, log a section header to the output.
func (a *assembler) logSection(name string) {
	if a.verbose {
		fmt.Fprintln(a.w, strings.Repeat("-", len(name)+6))
		fmt.Fprintf(a.w, "-- %s --\n", name)
		fmt.Fprintln(a.w, strings.Repeat("-", len(name)+6))
	}
}

func sortExports(e []Export) []Export {
	sort.Slice(e, func(i, j int) bool {
		return e[i].Address < e[j].Address
	})
	return e
}
