// Copyright 2026 The spkm Authors.
// All rights reserved

// Package statuslog defines the status/progress reporting interface
// used by the fetcher and transaction manager, with a pterm-backed
// terminal implementation and a discard implementation for tests.
package statuslog

import (
	"fmt"
	"io"
	"sync"

	"github.com/pterm/pterm"
)

// Logger is the status-reporting contract every core component depends
// on. It never returns an error: a broken terminal is not a reason to
// fail an apply.
type Logger interface {
	// Progress reports incremental transfer progress for a named unit of
	// work (typically a download). Implementations overwrite the
	// previous line in place rather than scrolling.
	Progress(name string, done, total int64, rateBytesPerSec float64)
	// ProgressDone closes out a Progress stream for name, leaving a
	// final status line instead of an in-place one.
	ProgressDone(name string)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Discard is a Logger that does nothing, used throughout the core
// package tests so unit tests never depend on a terminal.
var Discard Logger = discard{}

type discard struct{}

func (discard) Progress(string, int64, int64, float64) {}
func (discard) ProgressDone(string)                    {}
func (discard) Info(string, ...any)                    {}
func (discard) Warn(string, ...any)                    {}
func (discard) Error(string, ...any)                   {}

// Terminal is the production Logger, backed by pterm. It honors the
// configured colors flag by disabling pterm styling entirely, the same
// switch cmd/up's --pretty flag flips.
type Terminal struct {
	w      io.Writer
	mu     sync.Mutex
	active string
}

// NewTerminal returns a Logger that writes to w. When colors is false,
// pterm styling is globally disabled (pterm.DisableStyling mirrors
// teacher cmd/up's --pretty handling).
func NewTerminal(w io.Writer, colors bool) *Terminal {
	if colors {
		pterm.EnableStyling()
	} else {
		pterm.DisableStyling()
	}
	return &Terminal{w: w}
}

func (t *Terminal) Progress(name string, done, total int64, rate float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	pct := 0.0
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	line := fmt.Sprintf("%s  %6.2f%%  %s/s", name, pct, humanBytes(rate))
	fmt.Fprint(t.w, "\r\033[K"+line)
	t.active = name
}

func (t *Terminal) ProgressDone(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active == name {
		fmt.Fprintln(t.w)
		t.active = ""
	}
}

func (t *Terminal) Info(format string, args ...any) {
	pterm.Info.WithWriter(t.w).Printfln(format, args...)
}

func (t *Terminal) Warn(format string, args ...any) {
	pterm.Warning.WithWriter(t.w).Printfln(format, args...)
}

func (t *Terminal) Error(format string, args ...any) {
	pterm.Error.WithWriter(t.w).Printfln(format, args...)
}

func humanBytes(n float64) string {
	const unit = 1024.0
	if n < unit {
		return fmt.Sprintf("%.0fB", n)
	}
	div, exp := unit, 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.2f%ciB", n/div, "KMGTPE"[exp])
}
