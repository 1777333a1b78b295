// Package busif models the message-bus and settings-persistence
// boundary contracts spec'd as external collaborators: no production
// D-Bus or settings-service binding exists in this daemon's dependency
// stack, so the contracts are expressed as interfaces plus an in-memory
// reference implementation usable both in tests and as the default
// wiring for cmd/modemd.
package busif

import (
	"sync"
	"time"

	"github.com/vedirect/modemd/modem"
	"github.com/vedirect/modemd/ppp"
)

// PropertyTree is the exported bus surface: named properties other
// processes on the bus can read, with a subset (Debug) writable by them.
// SetValue/GetValue must be safe to call concurrently from both the
// engine goroutine (publishing) and the bus goroutine (serving reads) -
// this is the thread-safety contract the daemon assumes of its bus
// library, carried over onto this boundary interface.
type PropertyTree interface {
	SetValue(path string, v interface{})
	GetValue(path string) interface{}
	// Register installs a callback invoked when a writable property
	// (currently only /Debug) is set from the bus side.
	Register(path string, onWrite func(v interface{})) error
}

// SettingsStore is the persisted-preferences boundary contract.
type SettingsStore interface {
	Settings() modem.Settings
	ClearPIN()
	// OnChange installs the callback invoked whenever any setting
	// changes, named by its modem.Settings field tag ("connect",
	// "roaming", "pin", "apn", "user", "passwd").
	OnChange(func(name string))
}

// exportedPaths lists the read-only property tree published per the
// daemon's data model, initialized to nil until the first publish.
var exportedPaths = []string{
	"/Model", "/IMEI", "/NetworkName", "/NetworkType", "/SignalStrength",
	"/Roaming", "/Connected", "/IP", "/SimStatus", "/RegStatus", "/PPPStatus",
}

// MemTree is an in-memory PropertyTree: a thread-safe map plus a single
// writable-property hook, good enough to exercise the daemon end to end
// without a real bus connection.
type MemTree struct {
	mu       sync.RWMutex
	values   map[string]interface{}
	onWrite  map[string]func(interface{})
}

// NewMemTree returns a MemTree with every exported path initialized to
// nil, matching the original daemon's add_path(path, None) startup
// behavior, plus Debug defaulting to false.
func NewMemTree() *MemTree {
	t := &MemTree{
		values:  make(map[string]interface{}, len(exportedPaths)+1),
		onWrite: make(map[string]func(interface{})),
	}
	for _, p := range exportedPaths {
		t.values[p] = nil
	}
	t.values["/Debug"] = false
	return t
}

func (t *MemTree) SetValue(path string, v interface{}) {
	t.mu.Lock()
	t.values[path] = v
	t.mu.Unlock()
}

func (t *MemTree) GetValue(path string) interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.values[path]
}

func (t *MemTree) Register(path string, onWrite func(v interface{})) error {
	t.mu.Lock()
	t.onWrite[path] = onWrite
	t.mu.Unlock()
	return nil
}

// Write simulates an external bus client writing a property - the one
// direction real traffic could reach this process from outside. Used in
// tests and by a future real bus binding's write handler.
func (t *MemTree) Write(path string, v interface{}) {
	t.mu.Lock()
	t.values[path] = v
	cb := t.onWrite[path]
	t.mu.Unlock()
	if cb != nil {
		cb(v)
	}
}

// MemSettings is an in-memory SettingsStore seeded with the documented
// defaults (/Settings/Modem/Connect=1, RoamingPermitted=0, the rest
// empty strings).
type MemSettings struct {
	mu       sync.Mutex
	settings modem.Settings
	onChange []func(name string)
}

// NewMemSettings returns a MemSettings with the spec's documented
// defaults.
func NewMemSettings() *MemSettings {
	return &MemSettings{settings: modem.Settings{Connect: true}}
}

func (s *MemSettings) Settings() modem.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *MemSettings) ClearPIN() {
	s.mu.Lock()
	s.settings.PIN = ""
	s.mu.Unlock()
	s.notify("pin")
}

func (s *MemSettings) OnChange(f func(name string)) {
	s.mu.Lock()
	s.onChange = append(s.onChange, f)
	s.mu.Unlock()
}

func (s *MemSettings) notify(name string) {
	s.mu.Lock()
	callbacks := append([]func(string){}, s.onChange...)
	s.mu.Unlock()
	for _, f := range callbacks {
		f(name)
	}
}

// Set updates a setting by name and runs the change callbacks - this is
// the path a real settings-persistence client would drive from outside.
func (s *MemSettings) Set(name string, v interface{}) {
	s.mu.Lock()
	switch name {
	case "connect":
		s.settings.Connect = v.(bool)
	case "roaming":
		s.settings.Roaming = v.(bool)
	case "pin":
		s.settings.PIN = v.(string)
	case "apn":
		s.settings.APN = v.(string)
	case "user":
		s.settings.User = v.(string)
	case "passwd":
		s.settings.Password = v.(string)
	}
	s.mu.Unlock()
	s.notify(name)
}

// Service wires a modem.Lifecycle to a PropertyTree and SettingsStore:
// it forwards setting changes to the lifecycle's single mutation entry
// point and runs the periodic tick, publishing PPPStatus/Connected from
// the supplied PPP prober each time. The bus goroutine calls into the
// lifecycle through SettingChanged/Tick; its only direct write to
// modem.State is mirroring a /Debug write through State().SetDebug.
type Service struct {
	tree     PropertyTree
	store    SettingsStore
	lc       *modem.Lifecycle
	prober   PPPProber
	aborter  Aborter
	interval time.Duration

	stop      chan struct{}
	done      chan struct{}
	abortOnce sync.Once
}

// Aborter is notified of a fatal condition the tick loop cannot recover
// from - currently a PPP stall timeout. It is the same shape as
// atengine.Aborter (one Abort(error) method) so cmd/modemd can wire both
// onto the same context-cancelling value.
type Aborter interface {
	Abort(err error)
}

// PPPProber is the subset of *ppp.Supervisor the bus surface ticks: route
// probing, stall detection, publishing the resulting status, and keeping
// the supervisor's cached roaming flag in step with registration state
// (ppp.Supervisor has no dependency on modem.State, so this package
// pushes it in on every tick instead).
type PPPProber interface {
	SetRoaming(roaming bool)
	Probe() (ppp.Status, error)
	CheckStall(status ppp.Status) error
}

// NewService builds a Service. interval is the periodic tick period (5s
// in production). aborter is called at most once, the first time
// CheckStall reports a fatal stall, so the caller can cancel the main
// loop and tear down PPP.
func NewService(tree PropertyTree, store SettingsStore, lc *modem.Lifecycle, prober PPPProber, aborter Aborter, interval time.Duration) *Service {
	s := &Service{tree: tree, store: store, lc: lc, prober: prober, aborter: aborter, interval: interval, stop: make(chan struct{}), done: make(chan struct{})}
	tree.Register("/Debug", func(v interface{}) {
		if b, ok := v.(bool); ok {
			lc.State().SetDebug(b)
		}
	})
	store.OnChange(lc.SettingChanged)
	return s
}

// Run ticks every interval until Stop is called or ctx-like cancellation
// is requested by closing Stop's channel via the caller's context.
func (s *Service) Run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// Stop requests Run to return and waits for it to do so.
func (s *Service) Stop() {
	close(s.stop)
	<-s.done
}

func (s *Service) tick() {
	s.lc.Tick()
	s.prober.SetRoaming(s.lc.State().Roaming())
	status, err := s.prober.Probe()
	if err == nil {
		s.tree.SetValue("/PPPStatus", status.String())
		s.tree.SetValue("/Connected", status.String() == "UP")
	}
	if err := s.prober.CheckStall(status); err != nil {
		s.tree.SetValue("/PPPStatus", "DOWN")
		s.abortOnce.Do(func() { s.aborter.Abort(err) })
	}
}
