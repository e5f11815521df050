// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command sof0273-tdaq starts a TDAQ process driving a DOS0157
// attenuator rack.
//
// The rack is opened on /config, configured with the requested
// attenuation on /init and released on /quit.
package main // import "github.com/go-lpc/sof0273/cmd/sof0273-tdaq"

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-daq/tdaq"
	"github.com/go-daq/tdaq/flags"
	"github.com/go-lpc/sof0273/dos0157"
	"github.com/go-lpc/sof0273/internal/fakedev"
)

func main() {
	log.SetPrefix("sof0273-tdaq: ")
	log.SetFlags(0)

	var (
		port    = flag.String("dev", dos0157.DefaultPort, "serial port of the attenuator rack")
		tmo     = flag.Duration("dev-timeout", dos0157.DefaultTimeout, "timeout waiting for a rack acknowledgment")
		lofar   = flag.Float64("att-lofar", 0, "LOFAR attenuation to apply on /init, in dB")
		nenufar = flag.Float64("att-nenufar", 0, "NenuFAR attenuation to apply on /init, in dB")
		save    = flag.Bool("att-save", false, "save the attenuation to the rack memory on /init")
		sim     = flag.Bool("sim", false, "drive a simulated rack")
	)

	cmd := flags.New()

	dev := newNode(*port, *sim, dos0157.Setting{LOFAR: *lofar, NenuFAR: *nenufar}, *save,
		dos0157.WithTimeout(*tmo),
	)
	err := dev.want.Validate()
	if err != nil {
		log.Fatalf("invalid attenuation: %+v", err)
	}

	srv := tdaq.New(cmd, os.Stdout)
	srv.CmdHandle("/config", dev.OnConfig)
	srv.CmdHandle("/init", dev.OnInit)
	srv.CmdHandle("/reset", dev.OnReset)
	srv.CmdHandle("/start", dev.OnStart)
	srv.CmdHandle("/stop", dev.OnStop)
	srv.CmdHandle("/quit", dev.OnQuit)

	err = srv.Run(context.Background())
	if err != nil {
		log.Panicf("error: %+v", err)
	}
}

// msgstream is the subset of tdaq's message stream the node uses.
type msgstream interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type node struct {
	port string
	sim  bool
	opts []dos0157.Option

	want dos0157.Setting
	save bool

	open func() (*dos0157.Device, error)
	dev  *dos0157.Device
	cur  dos0157.Setting
}

func newNode(port string, sim bool, want dos0157.Setting, save bool, opts ...dos0157.Option) *node {
	dev := &node{
		port: port,
		sim:  sim,
		want: want,
		save: save,
		opts: append(opts, dos0157.WithLogger(log.New(os.Stderr, "dos0157: ", 0))),
	}
	dev.open = dev.openDevice
	return dev
}

func (dev *node) openDevice() (*dos0157.Device, error) {
	if dev.sim {
		return dos0157.New(fakedev.NewPort(fakedev.NewRack(0, 0)), dev.opts...)
	}
	return dos0157.Open(dev.port, dev.opts...)
}

func (dev *node) OnConfig(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /config command...")
	return dev.config(ctx.Msg)
}

func (dev *node) OnInit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /init command...")
	return dev.init(ctx.Msg)
}

func (dev *node) OnReset(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /reset command...")
	return dev.read(ctx.Msg)
}

func (dev *node) OnStart(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /start command...")
	return dev.read(ctx.Msg)
}

func (dev *node) OnStop(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /stop command...")
	return dev.read(ctx.Msg)
}

func (dev *node) OnQuit(ctx tdaq.Context, resp *tdaq.Frame, req tdaq.Frame) error {
	ctx.Msg.Debugf("received /quit command...")
	return dev.quit(ctx.Msg)
}

func (dev *node) config(msg msgstream) error {
	if dev.dev == nil {
		d, err := dev.open()
		if err != nil {
			msg.Errorf("could not open rack %q: %+v", dev.port, err)
			return fmt.Errorf("could not open rack %q: %w", dev.port, err)
		}
		dev.dev = d
	}
	return dev.read(msg)
}

func (dev *node) init(msg msgstream) error {
	if dev.dev == nil {
		return fmt.Errorf("rack %q not configured", dev.port)
	}

	ack, err := dev.dev.Write(dev.want.LOFAR, dev.want.NenuFAR)
	if err != nil {
		msg.Errorf("could not write attenuation %v: %+v", dev.want, err)
		return fmt.Errorf("could not write attenuation %v: %w", dev.want, err)
	}
	dev.cur = ack
	msg.Infof("attenuation set: %v", ack)

	if !dev.save {
		return nil
	}
	ack, err = dev.dev.Save()
	if err != nil {
		msg.Errorf("could not save attenuation %v: %+v", dev.want, err)
		return fmt.Errorf("could not save attenuation %v: %w", dev.want, err)
	}
	msg.Infof("attenuation saved: %v", ack)
	return nil
}

func (dev *node) read(msg msgstream) error {
	if dev.dev == nil {
		return fmt.Errorf("rack %q not configured", dev.port)
	}
	s, err := dev.dev.Read()
	if err != nil {
		msg.Errorf("could not read attenuation: %+v", err)
		return fmt.Errorf("could not read attenuation: %w", err)
	}
	dev.cur = s
	msg.Infof("attenuation: %v", s)
	return nil
}

func (dev *node) quit(msg msgstream) error {
	if dev.dev == nil {
		return nil
	}
	err := dev.dev.Close()
	dev.dev = nil
	if err != nil {
		msg.Errorf("could not close rack %q: %+v", dev.port, err)
		return fmt.Errorf("could not close rack %q: %w", dev.port, err)
	}
	return nil
}
