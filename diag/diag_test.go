package diag

import (
	"testing"

	"github.com/beevik/gbasm"
	"github.com/google/go-cmp/cmp"
	"github.com/juju/loggo"
)

func newTestLog(t *testing.T) (*Log, *loggo.TestWriter) {
	t.Helper()
	ctx := loggo.NewContext(loggo.TRACE)
	w := &loggo.TestWriter{}
	if err := ctx.AddWriter("test", w); err != nil {
		t.Fatal(err)
	}
	return NewLogWithLogger(ctx.GetLogger(ModuleName)), w
}

func TestReportForwardsToLogger(t *testing.T) {
	l, w := newTestLog(t)

	l.SetPos("main.s", 12)
	l.ReportError(gbasm.SeverityError, "Immediate 256 out of range")
	l.ReportError(gbasm.SeverityWarning, "unused symbol")
	l.ReportError(gbasm.SeverityFatal, "out of memory")

	log := w.Log()
	if len(log) != 3 {
		t.Fatalf("logged %d entries, expected 3", len(log))
	}
	levels := []loggo.Level{log[0].Level, log[1].Level, log[2].Level}
	if diff := cmp.Diff([]loggo.Level{loggo.ERROR, loggo.WARNING, loggo.CRITICAL}, levels); diff != "" {
		t.Errorf("levels mismatch (-want +got):\n%s", diff)
	}
	if log[0].Message != "main.s:12: Immediate 256 out of range" {
		t.Errorf("unexpected message %q", log[0].Message)
	}
	if log[0].Module != ModuleName {
		t.Errorf("unexpected module %q", log[0].Module)
	}
}

func TestEntriesRecordPosition(t *testing.T) {
	l, _ := newTestLog(t)

	l.ReportError(gbasm.SeverityError, "invalid expression")
	l.SetPos("boot.s", 3)
	l.ReportError(gbasm.SeverityWarning, "shadowed")

	want := []Entry{
		{Severity: gbasm.SeverityError, Message: "invalid expression"},
		{Severity: gbasm.SeverityWarning, Pos: Pos{File: "boot.s", Line: 3}, Message: "shadowed"},
	}
	if diff := cmp.Diff(want, l.Entries()); diff != "" {
		t.Errorf("entries mismatch (-want +got):\n%s", diff)
	}

	if got := l.Entries()[0].String(); got != "Error: invalid expression" {
		t.Errorf("got %q", got)
	}
	if got := l.Entries()[1].String(); got != "Warning in 'boot.s' line 3: shadowed" {
		t.Errorf("got %q", got)
	}
}

func TestCounts(t *testing.T) {
	l, _ := newTestLog(t)

	l.ReportError(gbasm.SeverityWarning, "w")
	if l.HasErrors() {
		t.Error("warning counted as error")
	}
	l.ReportError(gbasm.SeverityError, "e")
	l.ReportError(gbasm.SeverityFatal, "f")
	if n := l.Count(gbasm.SeverityError); n != 2 {
		t.Errorf("counted %d errors, expected 2", n)
	}
	if n := l.Count(gbasm.SeverityWarning); n != 3 {
		t.Errorf("counted %d diagnostics, expected 3", n)
	}

	l.Reset()
	if l.HasErrors() || len(l.Entries()) != 0 {
		t.Error("reset left entries behind")
	}
}

func TestValidateReportsThroughLog(t *testing.T) {
	l, w := newTestLog(t)

	d := gbasm.Lookup("ld")[0]
	inst := gbasm.NewInstruction(d, gbasm.Operands{
		Left:  gbasm.Operand{Kind: gbasm.OperandReg8, Code: gbasm.RegMemHL},
		Right: gbasm.Operand{Kind: gbasm.OperandReg8, Code: gbasm.RegMemHL},
	})
	if err := inst.Validate(gbasm.NewOutput(0), l); err == nil {
		t.Fatal("ld (hl),(hl) validated")
	}
	if !l.HasErrors() || len(w.Log()) != 1 {
		t.Errorf("expected one reported error, got %v", l.Entries())
	}
}
