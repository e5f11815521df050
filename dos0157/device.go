// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dos0157

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// Port is the serial link to a rack.
type Port interface {
	io.ReadWriteCloser

	// SetReadTimeout bounds the time Read waits for data.
	// Read returns 0, nil when the timeout expires.
	SetReadTimeout(d time.Duration) error

	// ResetInputBuffer discards the bytes received and not read yet.
	ResetInputBuffer() error
}

var errTimeout = errors.New("dos0157: timeout")

// Device is a session with a DOS0157 rack.
//
// A Device is not safe for concurrent use: commands are sent one at a
// time and each one blocks until the rack acknowledges it or the
// configured timeout expires.
type Device struct {
	msg  *log.Logger
	name string
	port Port
	cfg  config

	buf []byte
}

// New creates a session with the rack connected to port.
func New(port Port, opts ...Option) (*Device, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return newDevice("", port, cfg)
}

func newDevice(name string, port Port, cfg config) (*Device, error) {
	if port == nil {
		return nil, fmt.Errorf("%w: nil port", ErrConnection)
	}
	if cfg.timeout <= 0 {
		return nil, fmt.Errorf("%w: timeout must be positive (got %v)", ErrInvalidArgument, cfg.timeout)
	}

	err := port.SetReadTimeout(cfg.pollTimeout())
	if err != nil {
		return nil, fmt.Errorf("%w: could not set read timeout: %w", ErrConnection, err)
	}

	msg := cfg.msg
	if msg == nil {
		msg = log.New(os.Stderr, "dos0157: ", 0)
	}

	return &Device{
		msg:  msg,
		name: name,
		port: port,
		cfg:  cfg,
		buf:  make([]byte, maxFrmLen),
	}, nil
}

// Close releases the serial port. Close is idempotent.
func (dev *Device) Close() error {
	if dev.port == nil {
		return nil
	}
	err := dev.port.Close()
	dev.port = nil
	if err != nil {
		return fmt.Errorf("dos0157: could not close serial port: %w", err)
	}
	return nil
}

// Connected reports whether the serial port is still usable.
func (dev *Device) Connected() bool { return dev.port != nil }

// Read retrieves the attenuation currently applied by the rack.
func (dev *Device) Read() (Setting, error) {
	ack, err := dev.transact(Command{Code: CodeRead})
	if err != nil {
		return Setting{}, err
	}
	return dev.setting(ack)
}

// Write sets the attenuation of both channels, in dB.
// Values are validated before anything is sent to the rack.
func (dev *Device) Write(lofar, nenufar float64) (Setting, error) {
	want := Setting{LOFAR: lofar, NenuFAR: nenufar}
	lo, ne, err := want.codes()
	if err != nil {
		return Setting{}, err
	}

	ack, err := dev.transact(Command{Code: CodeWrite, LOFAR: lo, NenuFAR: ne})
	if err != nil {
		return Setting{}, err
	}
	got, err := dev.setting(ack)
	if err != nil {
		return got, err
	}
	if got != want {
		return got, fmt.Errorf("%w: rack acknowledged %v, want %v", ErrCommunication, got, want)
	}
	return got, nil
}

// Save stores the current attenuation in the rack's non-volatile memory.
func (dev *Device) Save() (Setting, error) {
	ack, err := dev.transact(Command{Code: CodeSave})
	if err != nil {
		return Setting{}, err
	}
	return dev.setting(ack)
}

func (dev *Device) setting(ack Ack) (Setting, error) {
	s, err := ack.Setting()
	if err != nil {
		return s, fmt.Errorf("%w: malformed %v ack: %w", ErrCommunication, ack.Code, err)
	}
	return s, nil
}

func (dev *Device) transact(cmd Command) (Ack, error) {
	var ack Ack
	if dev.port == nil {
		return ack, fmt.Errorf("%w: not connected", ErrConnection)
	}

	raw, err := cmd.MarshalBinary()
	if err != nil {
		return ack, fmt.Errorf("could not encode %v command: %w", cmd.Code, err)
	}

	err = dev.port.ResetInputBuffer()
	if err != nil {
		return ack, dev.fail(fmt.Errorf("could not flush input buffer: %w", err))
	}

	n, err := dev.port.Write(raw)
	switch {
	case err != nil:
		return ack, dev.fail(fmt.Errorf("could not write %v command: %w", cmd.Code, err))
	case n != len(raw):
		return ack, dev.fail(fmt.Errorf("could not write %v command: %w", cmd.Code, io.ErrShortWrite))
	}

	frame, err := dev.recv(ackLen)
	if err != nil {
		if errors.Is(err, errTimeout) {
			return ack, fmt.Errorf("%w: no %v ack within %v: %w",
				ErrCommunication, cmd.Code, dev.cfg.timeout, err,
			)
		}
		return ack, dev.fail(fmt.Errorf("could not read %v ack: %w", cmd.Code, err))
	}

	err = ack.UnmarshalBinary(frame)
	if err != nil {
		return ack, fmt.Errorf("%w: could not decode %v ack 0x%x: %w",
			ErrCommunication, cmd.Code, frame, err,
		)
	}
	if ack.Code != cmd.Code {
		return ack, fmt.Errorf("%w: received %v ack for %v command",
			ErrCommunication, ack.Code, cmd.Code,
		)
	}

	return ack, nil
}

// recv reads n bytes from the port before the response timeout expires.
func (dev *Device) recv(n int) ([]byte, error) {
	var (
		buf      = dev.buf[:0]
		deadline = time.Now().Add(dev.cfg.timeout)
	)
	for len(buf) < n {
		if !time.Now().Before(deadline) {
			return buf, fmt.Errorf("%w (got %d/%d bytes)", errTimeout, len(buf), n)
		}
		m, err := dev.port.Read(buf[len(buf):n])
		buf = buf[:len(buf)+m]
		if err != nil {
			return buf, err
		}
	}
	return buf, nil
}

// fail closes the port after an unrecoverable I/O error.
func (dev *Device) fail(err error) error {
	dev.msg.Printf("connection to %q lost: %+v", dev.name, err)
	_ = dev.Close()
	return fmt.Errorf("%w: %w", ErrConnection, err)
}
