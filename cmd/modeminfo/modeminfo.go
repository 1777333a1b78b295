// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

// modeminfo sends a fixed battery of informational AT commands to a modem
// and prints whatever it reports back. It is a thin, one-shot driver over
// the same atengine/serial stack the daemon uses, useful for probing a new
// modem or debugging a command sequence interactively.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/vedirect/modemd/atengine"
	"github.com/vedirect/modemd/serial"
	"github.com/vedirect/modemd/trace"
)

var version = "undefined"

// cmds is the battery of queries run against the modem, in order.
var cmds = []string{
	"ATI",
	"AT+GCAP",
	"AT+CMEE=2",
	"AT+CGMI",
	"AT+CGMM",
	"AT+CGMR",
	"AT+CGSN",
	"AT+CSQ",
	"AT+CIMI",
	"AT+CREG?",
	"AT+CNUM",
	"AT+CPIN?",
	"AT+CEER",
	"AT+CSCA?",
	"AT+CCID?",
	"AT+CGDCONT?",
}

// printAborter logs a transport abort and cancels the run.
type printAborter struct{ cancel context.CancelFunc }

func (a printAborter) Abort(err error) {
	log.Println(err)
	a.cancel()
}

func main() {
	dev := flag.StringP("device", "d", "/dev/ttyUSB0", "path to modem device")
	baud := flag.IntP("baud", "b", 115200, "baud rate")
	timeout := flag.DurationP("timeout", "t", 5*time.Second, "steady-state read timeout")
	verbose := flag.BoolP("verbose", "v", false, "log modem interactions")
	vsn := flag.Bool("version", false, "report version and exit")
	flag.Parse()
	if *vsn {
		fmt.Printf("%s %s\n", os.Args[0], version)
		os.Exit(0)
	}

	p, err := serial.New(serial.WithPort(*dev), serial.WithBaud(*baud))
	if err != nil {
		log.Println(err)
		os.Exit(1)
	}
	defer p.Close()

	var port atengine.Port = p
	if *verbose {
		port = trace.New(p)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	done := make(chan struct{})
	var once sync.Once

	report := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Printf(" %s\n", line)
	}

	handlers := atengine.Handlers{
		OnEchoMatched: func(cmdID string) { fmt.Println("AT" + cmdID) },
		OnResponse:    func(cmdID, resp string) { report(resp) },
		OnError:       func(cmdID, line string) { report(line) },
		OnIdle: func() {
			once.Do(func() { close(done) })
		},
	}

	eng := atengine.New(port, handlers, printAborter{cancel}, *timeout)
	if *verbose {
		eng.SetLogger(log.Default())
	}

	if err := eng.BootWait(ctx); err != nil {
		log.Println(err)
		os.Exit(1)
	}

	eng.Enqueue(cmds, false)
	go eng.Run(ctx)

	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Println("timed out waiting for modem replies")
	}
}
