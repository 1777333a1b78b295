// Package trace provides a decorator for atengine.Port that logs every
// byte read from or written to the underlying transport.
package trace

import (
	"log"
	"time"
)

// Port is the subset of atengine.Port a Trace wraps.
type Port interface {
	Read1() ([]byte, error)
	Write([]byte) (int, error)
	CancelRead()
	SetReadTimeout(d time.Duration)
}

// Trace is a trace log on a Port. All reads and writes are written to the
// logger; CancelRead and SetReadTimeout pass straight through.
type Trace struct {
	port Port
	l    *log.Logger
	wfmt string
	rfmt string
}

// Option modifies a Trace object created by New.
type Option func(*Trace)

// New creates a new trace on port. The default logger is log.Default();
// override it with WithLogger.
func New(port Port, opts ...Option) *Trace {
	t := &Trace{port: port, l: log.Default(), wfmt: "w: %s", rfmt: "r: %s"}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithLogger sets the logger the trace writes to.
func WithLogger(l *log.Logger) Option {
	return func(t *Trace) {
		t.l = l
	}
}

// WithReadFormat sets the format used for read logs.
func WithReadFormat(format string) Option {
	return func(t *Trace) {
		t.rfmt = format
	}
}

// WithWriteFormat sets the format used for write logs.
func WithWriteFormat(format string) Option {
	return func(t *Trace) {
		t.wfmt = format
	}
}

// Read1 reads a single byte via the wrapped port, logging it if one was
// read. A nil, nil return (timeout or cancel) is not logged.
func (t *Trace) Read1() ([]byte, error) {
	b, err := t.port.Read1()
	if len(b) > 0 {
		t.l.Printf(t.rfmt, b)
	}
	return b, err
}

func (t *Trace) Write(p []byte) (n int, err error) {
	n, err = t.port.Write(p)
	if n > 0 {
		t.l.Printf(t.wfmt, p[:n])
	}
	return n, err
}

// CancelRead passes through to the wrapped port.
func (t *Trace) CancelRead() { t.port.CancelRead() }

// SetReadTimeout passes through to the wrapped port.
func (t *Trace) SetReadTimeout(d time.Duration) { t.port.SetReadTimeout(d) }
