// Package modem implements the response dispatcher and lifecycle state
// machine driving a cellular modem's SIM, registration, PDP-context and
// watchdog sub-state machines: component D and E of the daemon. It is
// deliberately decoupled from the transport (package atengine) and from
// the data-link and bus layers (packages ppp, busif) through small
// interfaces - a malformed reply or a setting change can only ever
// reach this package's state through its own methods.
package modem

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/vedirect/modemd/quirks"
)

// wdogGPIO is the modem-side GPIO line toggled to satisfy an external
// hardware watchdog.
const wdogGPIO = 44

// Enqueuer is the subset of atengine.Engine the lifecycle needs: queuing
// AT commands. Depending on the interface rather than *atengine.Engine
// keeps this package testable without a real command engine.
type Enqueuer interface {
	Enqueue(cmds []string, limit bool)
}

// Publisher receives property updates as the dispatcher parses replies.
// It is satisfied by busif.PropertyTree; this package never needs to
// read a property back, only push to it.
type Publisher interface {
	SetValue(path string, v interface{})
}

// PPP is the subset of the data-link supervisor the lifecycle drives:
// re-evaluating the connection on registration/PDP changes, and tearing
// it down unconditionally on setting changes that invalidate the current
// session.
type PPP interface {
	UpdateConnection(registered bool, pdpCid int, chosen bool)
	Disconnect(force bool)
}

// SettingsSource supplies the cached view of user preferences and the one
// write-back path the lifecycle needs: clearing a rejected PIN so the
// daemon doesn't keep retrying a locked-out SIM.
type SettingsSource interface {
	Settings() Settings
	ClearPIN()
}

// Lifecycle owns the modem-state record and implements every response,
// echo, OK and error hook the command engine dispatches into, plus the
// boot-wait init sequence and periodic tick.
type Lifecycle struct {
	state   *State
	tables  *quirks.Tables
	eng     Enqueuer
	pub     Publisher
	ppp     PPP
	setting SettingsSource
	logger  *log.Logger

	readyOnce sync.Once
	readyCh   chan struct{}
}

// New builds a Lifecycle. tables supplies the vendor quirk tables (use
// quirks.Default() in production).
func New(eng Enqueuer, pub Publisher, ppp PPP, setting SettingsSource, tables *quirks.Tables) *Lifecycle {
	return &Lifecycle{
		state:   newState(),
		tables:  tables,
		eng:     eng,
		pub:     pub,
		ppp:     ppp,
		setting: setting,
		logger:  log.Default(),
		readyCh: make(chan struct{}),
	}
}

// SetLogger overrides the logger used for lifecycle diagnostics.
func (lc *Lifecycle) SetLogger(l *log.Logger) { lc.logger = l }

// State exposes the underlying state record (busif reads Roaming from it
// each tick and mirrors /Debug writes into it via SetDebug).
func (lc *Lifecycle) State() *State { return lc.state }

// Ready returns a channel closed once the init command queue has
// drained and Running has flipped to true - the one-shot future the
// starting goroutine awaits instead of a condition variable.
func (lc *Lifecycle) Ready() <-chan struct{} { return lc.readyCh }

// Start enqueues the init sequence and watchdog-GPIO init once boot-wait
// has completed. It does not block; call Ready() to wait for the
// lifecycle to reach Running.
func (lc *Lifecycle) Start(ctx context.Context) {
	lc.eng.Enqueue([]string{
		"ATH",
		"AT+CGMM",
		"AT+CGSN",
		"AT+CMEE=1",
		"AT+CPIN?",
	}, false)
	lc.eng.Enqueue([]string{
		fmt.Sprintf("AT+CGDRT=%d,1", wdogGPIO),
		fmt.Sprintf("AT+CGSETV=%d,1", wdogGPIO),
	}, false)
}

// Tick runs the periodic (5s) poll: SIM/GPS status always, the fuller
// registration/signal/PDP poll once the SIM is ready, and the watchdog
// toggle. It does not itself touch PPP - route-probe and stall-timeout
// handling are the caller's responsibility via the ppp package, invoked
// separately each tick per the component boundary between E and F.
func (lc *Lifecycle) Tick() {
	lc.eng.Enqueue([]string{"AT+CPIN?", "AT+CGPS?"}, true)

	if lc.state.SimStatus().Code() == SimReady {
		lc.eng.Enqueue([]string{
			"AT+CREG?",
			"AT+COPS?",
			"AT+CNSMOD?",
			"AT+CSQ",
			"AT+CGACT?",
			"AT+CGATT?",
			"AT+CGPADDR",
		}, true)
	}

	level := lc.state.nextWdogLevel()
	suffix := lc.state.GPIOSaveSuffix()
	lc.eng.Enqueue([]string{
		fmt.Sprintf("AT+CGSETV=%d,%d%s", wdogGPIO, level, suffix),
	}, true)
}

// SelectPDP is invoked on first registration and on APN change: it tears
// down any active PPP session, forgets the chosen context, and re-queries
// both PDP activation and definition state. updatePDP (triggered by the
// dispatcher once AT+CGDCONT? completes) makes the actual selection.
func (lc *Lifecycle) SelectPDP() {
	lc.ppp.Disconnect(false)
	lc.state.clearPDPCid()
	lc.eng.Enqueue([]string{"AT+CGATT=0", "AT+CGACT?", "AT+CGDCONT?"}, false)
}

// updatePDP runs selectPDP over the current listing and settings APN,
// (re)defining the context if required, recording the chosen cid, and
// requesting attachment.
func (lc *Lifecycle) updatePDP() {
	apn := lc.setting.Settings().APN
	ctx, define := selectPDP(lc.state.pdpSnapshot(), lc.state.pdpActiveSnapshot(), apn)

	if define {
		lc.eng.Enqueue([]string{ctx.DefineCommand()}, false)
	}
	lc.state.setPDPCid(ctx.Cid)
	lc.logger.Printf("modem: using PDP context %d", ctx.Cid)
	lc.eng.Enqueue([]string{"AT+CGATT=1"}, false)
}

// SettingChanged is the bus surface's setting-change callback. It no-ops
// while the lifecycle has not reached Running, matching the original
// daemon's guard against reacting to settings replayed during startup.
func (lc *Lifecycle) SettingChanged(name string) {
	if lc.state.Running() != Running {
		return
	}
	switch name {
	case "connect", "roaming":
		lc.updateConnection()
	case "pin":
		lc.eng.Enqueue([]string{"AT+CPIN?"}, false)
	case "apn":
		lc.SelectPDP()
	case "user", "passwd":
		lc.ppp.Disconnect(false)
		lc.updateConnection()
	}
}

func (lc *Lifecycle) updateConnection() {
	cid, chosen := lc.state.PDPCid()
	lc.ppp.UpdateConnection(lc.state.Registered(), cid, chosen)
}

func (lc *Lifecycle) publish(path string, v interface{}) {
	if lc.pub != nil {
		lc.pub.SetValue(path, v)
	}
}

// onIdle is the engine's OnIdle hook: the first time it fires the init
// queue has drained, so the lifecycle transitions to Running and
// releases anything waiting on Ready().
func (lc *Lifecycle) onIdle() {
	if lc.state.Running() != Unstarted {
		return
	}
	lc.state.setRunning(Running)
	lc.readyOnce.Do(func() { close(lc.readyCh) })
}
