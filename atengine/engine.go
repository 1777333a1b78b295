// Package atengine implements the half-duplex AT command engine: a
// bounded FIFO of pending commands, a single goroutine that owns the
// serial port, and the echo/error/informational/response classifier for
// whatever the modem sends back. It has no knowledge of what any
// particular command means - that is supplied by the Handlers the caller
// installs - only of the framing and bookkeeping common to every AT
// session.
package atengine

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// QueueMax is the maximum number of pending commands a limited Enqueue
// call will tolerate before silently dropping the new commands. The
// in-flight command does not count against this bound.
const QueueMax = 15

// drainTimeout bounds how long the engine waits, after an unexpected echo,
// for the rest of that command's response to arrive before giving up and
// moving on.
const drainTimeout = time.Second

// Handlers are the modem-layer callbacks the engine invokes while
// classifying received lines. All are optional; a nil handler is simply
// skipped. Handler panics are recovered and logged - they must never take
// down the engine goroutine.
type Handlers struct {
	// OnEchoMatched fires when a command's own echo is observed, before
	// its response is parsed. cmdID has the leading "AT" stripped.
	OnEchoMatched func(cmdID string)
	// OnResponse fires for a solicited or unlabeled response body.
	OnResponse func(cmdID, resp string)
	// OnOK fires when a command completes with a plain "OK".
	OnOK func(cmdID string)
	// OnError fires when a command completes with ERROR or a +CME ERROR
	// line. line is the raw received line.
	OnError func(cmdID, line string)
	// OnIdle fires whenever a completed command leaves the engine ready
	// with an empty queue - used to detect "the init sequence has
	// drained". BootWait marking the engine ready does not fire it.
	OnIdle func()
	// OnAnomaly fires on a protocol anomaly (unexpected echo). Optional;
	// purely for observability.
	OnAnomaly func(expected, got string)
}

// Aborter is notified of a fatal, unrecoverable transport error. It is
// expected to cancel whatever context governs the rest of the daemon; the
// engine itself does not call os.Exit or touch any global.
type Aborter interface {
	Abort(err error)
}

// Engine drives a single serial connection with the half-duplex AT
// protocol described in the package doc.
type Engine struct {
	port     Port
	handlers Handlers
	aborter  Aborter
	lr       *lineFramer

	mu      sync.Mutex
	queue   []string
	ready   bool
	lastCmd string

	steadyTimeout time.Duration
	logger        *log.Logger
}

// New creates an Engine over port. steadyTimeout is the read timeout used
// once the modem has been brought out of boot-wait (see BootWait).
func New(port Port, h Handlers, a Aborter, steadyTimeout time.Duration) *Engine {
	return &Engine{
		port:          port,
		handlers:      h,
		aborter:       a,
		lr:            newLineFramer(port),
		steadyTimeout: steadyTimeout,
		logger:        log.Default(),
	}
}

// SetLogger overrides the logger used for anomaly/panic diagnostics.
func (e *Engine) SetLogger(l *log.Logger) {
	e.logger = l
}

// Ready reports whether no command is currently in flight.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ready
}

// QueueLen returns the number of pending commands, not including any
// in-flight command.
func (e *Engine) QueueLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Enqueue appends cmds to the FIFO. Each command must already carry its
// "AT" prefix (e.g. "AT+CGMM", "AT+CPIN?"). If limit is true and the
// queue already holds more than QueueMax pending commands, the call is a
// silent no-op - this is the best-effort path used by periodic polling so
// a slow modem cannot make the queue grow without bound. After appending,
// the port's blocked read is cancelled so the engine can observe
// ready && nonempty immediately instead of waiting out its read timeout.
func (e *Engine) Enqueue(cmds []string, limit bool) {
	if len(cmds) == 0 {
		return
	}
	e.mu.Lock()
	if limit && len(e.queue) > QueueMax {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, cmds...)
	e.mu.Unlock()
	e.port.CancelRead()
}

// BootWait repeatedly sends "AT" (while not ready) until the first OK
// arrives, then waits for the line to fall quiet once more while ready -
// concluding the modem's own startup chatter - before returning. It must
// run once, before Run, and uses a 10s read timeout, dropping to 5s once
// the modem first responds; on success it leaves the port at the
// steady-state timeout.
func (e *Engine) BootWait(ctx context.Context) error {
	e.port.SetReadTimeout(10 * time.Second)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if !e.Ready() {
			if err := e.send("AT"); err != nil {
				return errors.WithMessage(err, "write error during boot-wait")
			}
		}
		line, err := e.lr.readLine()
		if err != nil {
			return errors.WithMessage(err, "read error during boot-wait")
		}
		if line == "" {
			if e.Ready() {
				break
			}
			continue
		}
		if line == "OK" {
			e.port.SetReadTimeout(5 * time.Second)
			// set directly rather than via setReady: boot-wait readiness
			// is not a drained command queue, so OnIdle must not fire.
			e.mu.Lock()
			e.ready = true
			e.mu.Unlock()
		}
	}
	e.port.SetReadTimeout(e.steadyTimeout)
	return nil
}

// Run is the engine's steady-state loop: pop and send when ready, read a
// line, classify it. It returns only when ctx is done or the transport
// becomes unrecoverable, in which case aborter.Abort is called before
// returning.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		e.maybeSend()
		line, err := e.lr.readLine()
		if err != nil {
			e.aborter.Abort(errors.WithMessage(err, "read error"))
			return
		}
		if line == "" {
			continue
		}
		e.classify(line)
	}
}

func (e *Engine) maybeSend() {
	e.mu.Lock()
	if !e.ready || len(e.queue) == 0 {
		e.mu.Unlock()
		return
	}
	cmd := e.queue[0]
	e.queue = e.queue[1:]
	e.lastCmd = cmd
	e.ready = false
	e.mu.Unlock()

	if err := e.send(cmd); err != nil {
		e.aborter.Abort(errors.WithMessage(err, "write error"))
	}
}

func (e *Engine) send(cmd string) error {
	_, err := e.port.Write([]byte("\r" + cmd + "\r"))
	return err
}

func (e *Engine) setReady(v bool) {
	e.mu.Lock()
	e.ready = v
	idle := v && len(e.queue) == 0
	e.mu.Unlock()
	if idle && e.handlers.OnIdle != nil {
		e.safeCall(e.handlers.OnIdle)
	}
}

func (e *Engine) currentLastCmd() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCmd
}

// cmdID strips the "AT" prefix a command was sent with, matching how
// responses are keyed (e.g. "AT+CGMM" -> "+CGMM").
func cmdID(cmd string) string {
	return strings.TrimPrefix(cmd, "AT")
}

func (e *Engine) classify(line string) {
	last := e.currentLastCmd()

	switch {
	case strings.HasPrefix(line, "AT"):
		e.handleEcho(line, last)
		return
	case line == "ERROR" || strings.HasPrefix(line, "+CME ERROR:"):
		e.dispatchError(cmdID(last), line)
		e.setReady(true)
		return
	case line == "NO CARRIER" || strings.HasPrefix(line, "+PPPD:"):
		return
	case line == "OK":
		e.dispatchOK(cmdID(last))
		e.setReady(true)
		return
	}

	if idx := strings.Index(line, ": "); idx >= 0 {
		e.dispatchResponse(line[:idx], line[idx+2:])
		return
	}
	e.dispatchResponse(cmdID(last), line)
}

func (e *Engine) handleEcho(line, last string) {
	if line == last {
		if e.handlers.OnEchoMatched != nil {
			e.safeCall(func() { e.handlers.OnEchoMatched(cmdID(last)) })
		}
		return
	}
	if e.handlers.OnAnomaly != nil {
		e.safeCall(func() { e.handlers.OnAnomaly(last, line) })
	}
	e.drain()
	e.setReady(true)
}

// drain discards input for up to drainTimeout, restoring the steady-state
// timeout afterwards. Used after an unexpected echo to resynchronise with
// the modem without waiting for its next full timeout period.
func (e *Engine) drain() {
	e.port.SetReadTimeout(drainTimeout)
	for {
		line, err := e.lr.readLine()
		if err != nil || line == "" {
			break
		}
	}
	e.port.SetReadTimeout(e.steadyTimeout)
}

func (e *Engine) dispatchOK(cmd string) {
	if e.handlers.OnOK != nil {
		e.safeCall(func() { e.handlers.OnOK(cmd) })
	}
}

func (e *Engine) dispatchResponse(cmd, resp string) {
	if e.handlers.OnResponse != nil {
		e.safeCall(func() { e.handlers.OnResponse(cmd, resp) })
	}
}

func (e *Engine) dispatchError(cmd, line string) {
	if e.handlers.OnError != nil {
		e.safeCall(func() { e.handlers.OnError(cmd, line) })
	}
}

// safeCall recovers a panicking handler so a single malformed reply cannot
// take down the engine goroutine - it is logged and the command it was
// processing is treated as abandoned, per the protocol-anomaly handling
// the rest of the engine already applies to unexpected echoes.
func (e *Engine) safeCall(f func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Printf("atengine: handler panic recovered: %v", r)
		}
	}()
	f()
}
