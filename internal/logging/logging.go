// Package logging builds the charm logger shared by the binaries.
package logging

import (
	"bytes"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// timestampWriter prefixes each flushed line with an RFC3339 timestamp.
type timestampWriter struct {
	w   io.Writer
	buf bytes.Buffer
	mu  sync.Mutex
	now func() time.Time
}

// Write buffers bytes until a newline is found; for each full line, write a timestamped
// line to the underlying writer. Partial lines are kept in the buffer.
func (t *timestampWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, _ := t.buf.Write(p)
	for {
		line, err := t.buf.ReadString('\n')
		if err != nil {
			// keep the partial line for the next write
			t.buf.Reset()
			t.buf.WriteString(line)
			break
		}
		ts := t.now().Format(time.RFC3339)
		if _, err := t.w.Write([]byte(ts + " " + line)); err != nil {
			return n, err
		}
	}
	return n, nil
}

// terminalWriter wraps an io.Writer and exposes an Fd method so libraries that
// inspect the file descriptor (for TTY detection) can work with wrapped writers.
type terminalWriter struct {
	w  io.Writer
	fd uintptr
}

func (tw *terminalWriter) Write(p []byte) (int, error) { return tw.w.Write(p) }

// Fd exposes the underlying file descriptor (e.g., os.Stderr.Fd()).
func (tw *terminalWriter) Fd() uintptr { return tw.fd }

// Options controls logger construction.
type Options struct {
	Level   string // debug, info, warn, error
	Verbose bool   // forces debug
	File    string // optional log file, appended to alongside stderr
	Prefix  string
}

// New returns a logger writing timestamped lines to stderr (and File when
// set), plus a close func for the file. Warnings are returned when Level was
// not recognised or File could not be opened; the caller logs them.
func New(opts Options) (*log.Logger, func(), []string) {
	var out io.Writer = os.Stderr
	closeFn := func() {}
	var warnings []string
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			// write to both stderr and file so running interactively still shows logs
			out = io.MultiWriter(os.Stderr, f)
			closeFn = func() { _ = f.Close() }
		} else {
			warnings = append(warnings, "log_file specified but could not be opened; logging to stderr only: "+err.Error())
		}
	}
	tw := &timestampWriter{w: out, now: time.Now}
	logger := log.NewWithOptions(&terminalWriter{w: tw, fd: os.Stderr.Fd()}, log.Options{Prefix: opts.Prefix})

	lvl, ok := ParseLevel(opts.Level)
	if !ok {
		warnings = append(warnings, "unknown log_level "+opts.Level+", defaulting to info")
	}
	if opts.Verbose {
		lvl = log.DebugLevel
	}
	logger.SetLevel(lvl)
	return logger, closeFn, warnings
}

// ParseLevel maps a config level name to a log level. Unknown names map to
// info and report false.
func ParseLevel(s string) (log.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DebugLevel, true
	case "info", "":
		return log.InfoLevel, true
	case "warn", "warning":
		return log.WarnLevel, true
	case "error":
		return log.ErrorLevel, true
	default:
		return log.InfoLevel, false
	}
}
