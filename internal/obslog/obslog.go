// Package obslog provides the reactor's single logging handle: a
// *logiface.Logger[*stumpy.Event], constructed the way
// logiface-stumpy/example_test.go wires stumpy.L, so every package that
// needs to log takes a *Logger by dependency injection rather than
// reaching for a global.
package obslog

import (
	"io"
	"os"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the type every package in this module logs through.
type Logger = logiface.Logger[*stumpy.Event]

// New builds a Logger writing structured JSON lines to w (os.Stderr if nil),
// at the given minimum level.
func New(w io.Writer, level logiface.Level) *Logger {
	if w == nil {
		w = os.Stderr
	}
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.L.WithWriter(w)),
		stumpy.L.WithLevel(level),
	)
}

// Discard builds a Logger that drops everything; used as a safe default
// when a caller does not wire one in (spec's AMBIENT STACK: every component
// accepts a logger, none require one).
func Discard() *Logger {
	return New(io.Discard, logiface.LevelDisabled)
}
