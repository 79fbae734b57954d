// Copyright 2018 Brett Vickers. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package diag collects the diagnostics reported while validating SM83
// instructions and forwards them to a loggo logger.
package diag

import (
	"fmt"
	"sync"

	"github.com/beevik/gbasm"
	"github.com/juju/loggo"
)

// ModuleName is the loggo module used by NewLog.
const ModuleName = "gbasm"

// A Pos identifies the source line that produced a diagnostic.
type Pos struct {
	File string
	Line int // 1-based; zero if unknown
}

func (p Pos) String() string {
	switch {
	case p.File == "" && p.Line == 0:
		return ""
	case p.Line == 0:
		return p.File
	default:
		return fmt.Sprintf("%s:%d", p.File, p.Line)
	}
}

// An Entry is a single recorded diagnostic.
type Entry struct {
	Severity gbasm.Severity
	Pos      Pos
	Message  string
}

// String formats the entry the way assembly errors are presented to the
// user.
func (e Entry) String() string {
	kind := "Error"
	switch e.Severity {
	case gbasm.SeverityWarning:
		kind = "Warning"
	case gbasm.SeverityFatal:
		kind = "Fatal error"
	}
	if e.Pos.Line == 0 {
		return fmt.Sprintf("%s: %s", kind, e.Message)
	}
	return fmt.Sprintf("%s in '%s' line %d: %s", kind, e.Pos.File, e.Pos.Line, e.Message)
}

// Level maps a diagnostic severity to a loggo level.
func Level(sev gbasm.Severity) loggo.Level {
	switch sev {
	case gbasm.SeverityWarning:
		return loggo.WARNING
	case gbasm.SeverityFatal:
		return loggo.CRITICAL
	default:
		return loggo.ERROR
	}
}

// A Log is a gbasm.Reporter that records every diagnostic it receives,
// tagged with the current source position, and forwards it to a loggo
// logger. A Log is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	logger  loggo.Logger
	pos     Pos
	entries []Entry
}

// NewLog creates a log that forwards to the "gbasm" module of the
// default loggo context.
func NewLog() *Log {
	return NewLogWithLogger(loggo.GetLogger(ModuleName))
}

// NewLogWithLogger creates a log that forwards to 'logger'.
func NewLogWithLogger(logger loggo.Logger) *Log {
	return &Log{logger: logger}
}

// SetPos sets the source position attached to subsequent diagnostics.
func (l *Log) SetPos(file string, line int) {
	l.mu.Lock()
	l.pos = Pos{File: file, Line: line}
	l.mu.Unlock()
}

// ReportError records a diagnostic at the current source position.
func (l *Log) ReportError(sev gbasm.Severity, msg string) {
	l.mu.Lock()
	e := Entry{Severity: sev, Pos: l.pos, Message: msg}
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	if where := e.Pos.String(); where != "" {
		l.logger.Logf(Level(sev), "%s: %s", where, msg)
	} else {
		l.logger.Logf(Level(sev), "%s", msg)
	}
}

// Entries returns a copy of the recorded diagnostics in report order.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}

// Count returns the number of recorded diagnostics at or above 'sev'.
func (l *Log) Count(sev gbasm.Severity) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Severity >= sev {
			n++
		}
	}
	return n
}

// HasErrors returns true if any error or fatal diagnostic was recorded.
func (l *Log) HasErrors() bool {
	return l.Count(gbasm.SeverityError) > 0
}

// Reset discards all recorded diagnostics and the current position.
func (l *Log) Reset() {
	l.mu.Lock()
	l.entries, l.pos = nil, Pos{}
	l.mu.Unlock()
}
