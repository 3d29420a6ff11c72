// Package logging provides the structured loggers shared by every
// core component. It replaces the teacher's C textcolor facility with
// charmbracelet/log, with one named sub-logger per component so log
// lines read "kiss: ..." / "session: ..." the way textcolor grouped
// output by channel.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	mu      sync.Mutex
	output  io.Writer = os.Stderr
	level             = log.InfoLevel
	loggers           = map[string]*log.Logger{}
)

// SetOutput redirects all future loggers (and re-targets any already
// created) to w, e.g. a buffer in tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	for _, l := range loggers {
		l.SetOutput(w)
	}
}

// SetLevel adjusts the minimum level for all future and existing
// loggers returned by For.
func SetLevel(l log.Level) {
	mu.Lock()
	defer mu.Unlock()
	level = l
	for _, lg := range loggers {
		lg.SetLevel(l)
	}
}

// For returns the named component logger, creating it on first use.
// Typical names: "kiss", "ax25", "classify", "axdp", "session",
// "control", "transfer", "netrom", "coordinator", "config".
func For(component string) *log.Logger {
	mu.Lock()
	defer mu.Unlock()

	if l, ok := loggers[component]; ok {
		return l
	}

	l := log.NewWithOptions(output, log.Options{
		Prefix: component,
		Level:  level,
	})
	loggers[component] = l
	return l
}
