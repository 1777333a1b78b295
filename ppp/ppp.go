// Package ppp supervises the point-to-point IP link brought up over the
// modem: writing the pppd auth file and chat script, asking the service
// supervisor to start/stop it, and cross-checking link health against the
// kernel routing table.
package ppp

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

// Default file paths and service path, matching the daemon's external
// interface contract exactly - pppd and its chat script expect these
// literal locations.
const (
	AuthFile   = "/run/ppp/auth"
	ChatScript = "/run/ppp/chat"
	servicePath = "/service/ppp"
	serviceLog  = "/service/ppp/log"
)

// stallTimeout is how long a requested PPP session may go without a
// default route before the supervisor reports it as a fatal liveness
// failure.
const stallTimeout = 60 * time.Second

// Status is the link's observed state.
type Status int

const (
	Down Status = iota
	Init
	Up
)

func (s Status) String() string {
	switch s {
	case Up:
		return "UP"
	case Init:
		return "INIT"
	default:
		return "DOWN"
	}
}

// SettingsSource supplies the user preferences PPP needs: whether to
// connect at all, whether roaming is permitted, and the PAP/CHAP
// credentials. Owned by the bus surface.
type SettingsSource interface {
	Settings() (connect, roamingPermitted bool, user, password string)
}

// ServiceRunner starts or stops an externally supervised service. The
// default implementation shells out to runsvc's svc command; tests
// substitute a fake.
type ServiceRunner interface {
	Up(servicePath, logPath string) error
	Down(servicePath, logPath string) error
}

// RouteProbe reports whether the kernel currently has a default route via
// iface. The default implementation reads /proc/net/route and
// /proc/net/ipv6_route; tests substitute fixtures.
type RouteProbe interface {
	HasDefaultRoute(iface string) (bool, error)
}

// Supervisor is the PPP data-link supervisor (component F).
type Supervisor struct {
	settings SettingsSource
	runner   ServiceRunner
	probe    RouteProbe
	iface    string

	authFile   string
	chatScript string

	active    bool
	startTime time.Time
	roaming   bool

	logger *log.Logger
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithInterface overrides the ppp interface name probed for a default
// route (default "ppp0").
func WithInterface(name string) Option {
	return func(s *Supervisor) { s.iface = name }
}

// WithPaths overrides the auth-file and chat-script locations (tests use
// a scratch directory instead of /run/ppp).
func WithPaths(authFile, chatScript string) Option {
	return func(s *Supervisor) { s.authFile, s.chatScript = authFile, chatScript }
}

// New builds a Supervisor. Its cached roaming flag starts false and is
// refreshed by the caller via SetRoaming as registration changes.
func New(settings SettingsSource, runner ServiceRunner, probe RouteProbe, opts ...Option) *Supervisor {
	s := &Supervisor{
		settings:   settings,
		runner:     runner,
		probe:      probe,
		iface:      "ppp0",
		authFile:   AuthFile,
		chatScript: ChatScript,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetLogger overrides the logger used for supervisor diagnostics.
func (s *Supervisor) SetLogger(l *log.Logger) { s.logger = l }

// SetRoaming updates the cached roaming flag ConnectAllowed consults.
func (s *Supervisor) SetRoaming(roaming bool) { s.roaming = roaming }

// ConnectAllowed reports whether policy permits a connection: the user
// must have asked to connect, and either we are not roaming or roaming
// is explicitly permitted.
func (s *Supervisor) ConnectAllowed() bool {
	connect, roamingPermitted, _, _ := s.settings.Settings()
	if !connect {
		return false
	}
	return !s.roaming || roamingPermitted
}

// UpdateConnection brings the link up or down to match current policy:
// connect iff registered, a PDP context has been chosen, and
// ConnectAllowed().
func (s *Supervisor) UpdateConnection(registered bool, pdpCid int, pdpChosen bool) {
	if registered && pdpChosen && s.ConnectAllowed() {
		s.connect(pdpCid)
		return
	}
	s.Disconnect(false)
}

// connect writes the auth file and chat script and asks the supervisor
// to bring the ppp service up, if it isn't already active.
func (s *Supervisor) connect(pdpCid int) {
	if s.active {
		return
	}
	_, _, user, password := s.settings.Settings()
	if err := writeAuthFile(s.authFile, user, password); err != nil {
		s.logger.Printf("ppp: writing auth file %s: %v", s.authFile, err)
	}
	if err := writeChatScript(s.chatScript, pdpCid); err != nil {
		s.logger.Printf("ppp: writing chat script %s: %v", s.chatScript, err)
	}
	if err := s.runner.Up(servicePath, serviceLog); err != nil {
		s.logger.Printf("ppp: starting service: %v", err)
	}
	s.active = true
	s.startTime = now()
}

// Disconnect asks the supervisor to bring the ppp service down if this
// daemon believes it is active, or unconditionally when force is true
// (used at startup and on a fatal error).
func (s *Supervisor) Disconnect(force bool) {
	if !s.active && !force {
		return
	}
	if err := s.runner.Down(servicePath, serviceLog); err != nil {
		s.logger.Printf("ppp: stopping service: %v", err)
	}
	s.active = false
	s.startTime = time.Time{}
}

// Active reports whether this daemon has most recently asked the
// supervisor to bring ppp up.
func (s *Supervisor) Active() bool { return s.active }

// Probe checks the current link status: Down if we haven't asked for a
// session, Up if the kernel has a default route via our interface, else
// Init (session requested, route not yet present).
func (s *Supervisor) Probe() (Status, error) {
	if !s.active {
		return Down, nil
	}
	up, err := s.probe.HasDefaultRoute(s.iface)
	if err != nil {
		// tolerate proc I/O errors - treat as "not yet up" rather than fatal.
		return Init, nil
	}
	if up {
		return Up, nil
	}
	return Init, nil
}

// CheckStall returns a non-nil error once a requested session has gone
// more than stallTimeout without a default route appearing - the daemon
// treats this as a fatal liveness failure.
func (s *Supervisor) CheckStall(status Status) error {
	if !s.active || status == Up {
		return nil
	}
	if now().Sub(s.startTime) > stallTimeout {
		return errors.New("timeout waiting for ppp")
	}
	return nil
}

func writeAuthFile(path, user, password string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir")
	}
	var body string
	if user != "" && password != "" {
		body = fmt.Sprintf("user %s\npassword %s\n", user, password)
	}
	return os.WriteFile(path, []byte(body), 0o600)
}

func writeChatScript(path string, pdpCid int) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "mkdir")
	}
	script := "ABORT   ERROR\n" +
		"ABORT   'NO CARRIER'\n" +
		"''      ATZ\n" +
		fmt.Sprintf(`OK      AT+CGDATA="PPP",%d`+"\n", pdpCid) +
		"CONNECT ''\n"
	return os.WriteFile(path, []byte(script), 0o644)
}

// execRunner is the production ServiceRunner, invoking the runsvc `svc`
// command exactly as the original daemon did, but via os/exec rather
// than a shelled-out os.system call.
type execRunner struct{}

// NewExecRunner returns a ServiceRunner that shells out to `svc`.
func NewExecRunner() ServiceRunner { return execRunner{} }

func (execRunner) Up(servicePath, logPath string) error {
	return exec.Command("svc", "-u", servicePath, logPath).Run()
}

func (execRunner) Down(servicePath, logPath string) error {
	return exec.Command("svc", "-d", servicePath, logPath).Run()
}

// now is indirected so tests can fix the clock instead of sleeping real
// time to exercise the stall timeout.
var now = time.Now
