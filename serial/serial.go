// Package serial provides the serial port connection between the atengine
// package and the physical modem. It wraps github.com/tarm/serial with a
// single-byte, timeout-bounded Read and a non-blocking CancelRead so a
// background reader can be nudged awake as soon as a command is queued,
// instead of waiting out its current read timeout.
package serial

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

// pollInterval bounds how long a single underlying Read blocks for. Read1's
// own timeout is enforced on top of repeated polls of this length, which is
// also what lets CancelRead take effect promptly: the cancel flag is
// checked between polls rather than for the whole requested timeout.
const pollInterval = 50 * time.Millisecond

// Config holds the parameters used to open a Port.
type Config struct {
	port        string
	baud        int
	readTimeout time.Duration
}

// Option modifies a Config built by New.
type Option func(*Config)

// WithPort overrides the default device path.
func WithPort(port string) Option {
	return func(c *Config) { c.port = port }
}

// WithBaud overrides the default baud rate.
func WithBaud(baud int) Option {
	return func(c *Config) { c.baud = baud }
}

// WithReadTimeout sets the initial logical read timeout (see SetReadTimeout).
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.readTimeout = d }
}

// ErrClosed indicates an operation was attempted on a closed port.
var ErrClosed = errors.New("serial: port closed")

// rwc is the subset of *tarm/serial.Port that Port depends on. Depending on
// the interface rather than the concrete type lets the read/cancel/timeout
// logic in this file be exercised by tests without a real device.
type rwc interface {
	io.Reader
	io.Writer
	io.Closer
}

// Port is a 115200 8N1 serial connection to a modem.
type Port struct {
	sp rwc

	mu      sync.Mutex
	timeout time.Duration
	closed  bool

	cancel chan struct{}
}

// New opens the configured device. Defaults are platform specific
// (see serial_linux.go, serial_darwin.go, serial_windows.go).
func New(opts ...Option) (*Port, error) {
	cfg := defaultConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	sp, err := serial.OpenPort(&serial.Config{
		Name:        cfg.port,
		Baud:        cfg.baud,
		ReadTimeout: pollInterval,
	})
	if err != nil {
		return nil, err
	}
	return newPort(sp, cfg.readTimeout), nil
}

// newPort builds a Port around an arbitrary rwc, bypassing the OS device
// open. Used internally by tests to exercise Read1/CancelRead without a
// physical modem.
func newPort(rw rwc, timeout time.Duration) *Port {
	return &Port{
		sp:      rw,
		timeout: timeout,
		cancel:  make(chan struct{}, 1),
	}
}

// SetReadTimeout adjusts the timeout used by subsequent Read1 calls.
func (p *Port) SetReadTimeout(d time.Duration) {
	p.mu.Lock()
	p.timeout = d
	p.mu.Unlock()
}

// Write writes bytes to the modem.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return 0, ErrClosed
	}
	n, err := p.sp.Write(b)
	if err != nil {
		return n, errors.Wrap(err, "serial write")
	}
	return n, nil
}

// Read1 reads a single byte, honoring the configured read timeout.
// A zero-length, nil-error return means the timeout elapsed or CancelRead
// was called with nothing read - both are routine in the steady state and
// are not errors.
func (p *Port) Read1() ([]byte, error) {
	p.mu.Lock()
	closed := p.closed
	timeout := p.timeout
	p.mu.Unlock()
	if closed {
		return nil, ErrClosed
	}

	buf := make([]byte, 1)
	deadline := time.Now().Add(timeout)
	noDeadline := timeout <= 0
	for {
		select {
		case <-p.cancel:
			return nil, nil
		default:
		}
		n, err := p.sp.Read(buf)
		if n > 0 {
			return buf[:n], nil
		}
		if err != nil && err != io.EOF {
			return nil, errors.Wrap(err, "serial read")
		}
		if !noDeadline && time.Now().After(deadline) {
			return nil, nil
		}
	}
}

// CancelRead causes a currently blocked Read1 to return promptly with no
// bytes. It is non-blocking: if no Read1 is in progress the signal is
// simply consumed by the next call.
func (p *Port) CancelRead() {
	select {
	case p.cancel <- struct{}{}:
	default:
	}
}

// Close closes the underlying port. Once closed a Port cannot be reopened.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.sp.Close()
}
