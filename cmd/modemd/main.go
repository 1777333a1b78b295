// modemd supervises a cellular modem over a serial AT command channel: it
// brings the modem up, tracks SIM and registration state, negotiates a PDP
// context, and drives a PPP data-link session while publishing status onto
// a bus surface. See the package-level docs in atengine, modem, ppp and
// busif for the pieces this wires together.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/vedirect/modemd/atengine"
	"github.com/vedirect/modemd/busif"
	"github.com/vedirect/modemd/modem"
	"github.com/vedirect/modemd/ppp"
	"github.com/vedirect/modemd/quirks"
	"github.com/vedirect/modemd/serial"
	"github.com/vedirect/modemd/trace"
)

const tickInterval = 5 * time.Second

var version = "undefined"

func main() {
	dev := flag.StringP("serial", "s", "", "path to modem serial device (required)")
	debug := flag.BoolP("debug", "d", false, "trace AT command traffic")
	baud := flag.Int("baud", 115200, "baud rate")
	steady := flag.Duration("timeout", 5*time.Second, "steady-state read timeout")
	vsn := flag.Bool("version", false, "report version and exit")
	flag.Parse()

	if *vsn {
		fmt.Printf("%s %s\n", os.Args[0], version)
		os.Exit(0)
	}
	if *dev == "" {
		fmt.Fprintln(os.Stderr, "modemd: --serial is required")
		flag.Usage()
		os.Exit(1)
	}

	if err := run(*dev, *baud, *steady, *debug); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}

// engineHandle lets a modem.Lifecycle be built with the eventual
// *atengine.Engine as its Enqueuer before that Engine exists - the engine's
// own Handlers are supplied by the Lifecycle, so one of the two must be
// constructed in two steps.
type engineHandle struct {
	eng *atengine.Engine
}

func (h *engineHandle) Enqueue(cmds []string, limit bool) { h.eng.Enqueue(cmds, limit) }

// ctxAborter cancels ctx on a fatal transport error, which unwinds every
// goroutine started against it.
type ctxAborter struct {
	cancel context.CancelFunc
}

func (a ctxAborter) Abort(err error) {
	log.Printf("modemd: %v", err)
	a.cancel()
}

// pppSettings adapts busif.SettingsStore to ppp.SettingsSource.
type pppSettings struct {
	store busif.SettingsStore
}

func (a pppSettings) Settings() (connect, roamingPermitted bool, user, password string) {
	s := a.store.Settings()
	return s.Connect, s.Roaming, s.User, s.Password
}

func run(dev string, baud int, steady time.Duration, debug bool) error {
	sp, err := serial.New(serial.WithPort(dev), serial.WithBaud(baud))
	if err != nil {
		return err
	}
	defer sp.Close()

	var port atengine.Port = sp
	if debug {
		port = trace.New(sp)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tree := busif.NewMemTree()
	store := busif.NewMemSettings()

	pppSup := ppp.New(pppSettings{store}, ppp.NewExecRunner(), ppp.NewProcRouteProbe())

	handle := &engineHandle{}
	lc := modem.New(handle, tree, pppSup, store, quirks.Default())

	abort := ctxAborter{cancel}
	eng := atengine.New(port, lc.Handlers(), abort, steady)
	handle.eng = eng

	svc := busif.NewService(tree, store, lc, pppSup, abort, tickInterval)
	if debug {
		tree.Write("/Debug", true)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := eng.BootWait(ctx); err != nil {
		pppSup.Disconnect(true)
		return err
	}

	lc.Start(ctx)
	go eng.Run(ctx)
	go svc.Run()

	<-ctx.Done()

	svc.Stop()
	pppSup.Disconnect(true)
	return ctx.Err()
}
