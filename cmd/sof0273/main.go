// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sof0273 reads, writes and saves the attenuation of a DOS0157
// rack over a serial link.
//
// Usage: sof0273 [OPTIONS]
//
// Example:
//
//	$> sof0273 -port /dev/ttyUSB0
//	> w 12.5 0.0
//	Write Ack - Att_LOFAR=12.5 Att_NenuFAR=0.0
//	> r
//	Read Ack - Att_LOFAR=12.5 Att_NenuFAR=0.0
//	> s
//	Save Ack - Att_LOFAR=12.5 Att_NenuFAR=0.0
//	> quit
package main // import "github.com/go-lpc/sof0273/cmd/sof0273"

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-lpc/sof0273"
	"github.com/go-lpc/sof0273/dos0157"
	"github.com/go-lpc/sof0273/internal/fakedev"
	"github.com/peterh/liner"
)

func main() {
	log.SetPrefix("sof0273: ")
	log.SetFlags(0)

	err := xmain(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		log.Fatalf("%+v", err)
	}
}

var newTerm = func() prompter {
	term := liner.NewLiner()
	term.SetCtrlCAborts(true)
	return term
}

func xmain(args []string, stdout, stderr io.Writer) error {
	fset := flag.NewFlagSet("sof0273", flag.ContinueOnError)
	fset.SetOutput(stderr)

	var (
		port     = fset.String("port", dos0157.DefaultPort, "serial port (e.g. /dev/ttyUSB0 or COM3)")
		baud     = fset.Int("baudrate", dos0157.DefaultBaudRate, "baud rate")
		parity   = fset.String("parity", "N", "parity: N (none), E (even), O (odd), M (mark), S (space)")
		stopbits = fset.Float64("stopbits", 1, "number of stop bits: 1, 1.5 or 2")
		timeout  = fset.Duration("timeout", dos0157.DefaultTimeout, "timeout waiting for a device acknowledgment")
		sim      = fset.Bool("sim", false, "talk to a simulated rack instead of a serial device")
		vers     = fset.Bool("version", false, "print version and exit")
	)

	fset.Usage = func() {
		fmt.Fprintf(stderr, `sof0273 configures the attenuation of a DOS0157 rack.

Usage: sof0273 [OPTIONS]

%s
Options:
`, help)
		fset.PrintDefaults()
	}

	err := fset.Parse(args)
	if err != nil {
		if err == flag.ErrHelp {
			return nil
		}
		return err
	}

	if *vers {
		v, sum := sof0273.Version()
		fmt.Fprintf(stdout, "sof0273 %s %s\n", v, sum)
		return nil
	}

	name := *port
	if *sim {
		name = "simulated rack"
	}

	dev, err := openDevice(*sim, *port,
		dos0157.WithBaudRate(*baud),
		dos0157.WithParity(*parity),
		dos0157.WithStopBits(*stopbits),
		dos0157.WithTimeout(*timeout),
		dos0157.WithLogger(log.New(stderr, "dos0157: ", 0)),
	)
	if err != nil {
		return fmt.Errorf("could not connect to %s: %w", name, err)
	}
	defer dev.Close()

	term := newTerm()
	defer term.Close()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(stop)
	go func() {
		sig := <-stop
		_ = term.Close()
		_ = dev.Close()
		fmt.Fprintf(stderr, "received %v: connection closed.\n", sig)
		os.Exit(1)
	}()

	fmt.Fprintf(stdout, "Connected to %s.\n%s\n", name, help)

	sh := shell{
		dev:  dev,
		term: term,
		out:  stdout,
		err:  stderr,
	}
	err = sh.run()
	fmt.Fprintln(stderr, "Connection closed.")
	return err
}

func openDevice(sim bool, port string, opts ...dos0157.Option) (*dos0157.Device, error) {
	if !sim {
		return dos0157.Open(port, opts...)
	}
	rack := fakedev.NewRack(0, 0)
	return dos0157.New(fakedev.NewPort(rack), opts...)
}
