// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dos0157

import (
	"fmt"
	"log"
	"strings"
	"time"

	"go.bug.st/serial"
)

const (
	DefaultPort     = "/dev/ttyUSB0"
	DefaultBaudRate = 9600
	DefaultTimeout  = 1 * time.Second

	pollTimeout = 100 * time.Millisecond
)

type config struct {
	baud     int
	parity   string
	stopbits float64
	timeout  time.Duration
	msg      *log.Logger
}

func newConfig() config {
	return config{
		baud:     DefaultBaudRate,
		parity:   "N",
		stopbits: 1,
		timeout:  DefaultTimeout,
	}
}

// Option configures a session with a rack.
type Option func(cfg *config)

// WithBaudRate sets the serial link speed.
func WithBaudRate(baud int) Option {
	return func(cfg *config) {
		cfg.baud = baud
	}
}

// WithParity sets the parity of the serial link: one of
// N (none), E (even), O (odd), M (mark) or S (space).
func WithParity(parity string) Option {
	return func(cfg *config) {
		cfg.parity = parity
	}
}

// WithStopBits sets the number of stop bits: 1, 1.5 or 2.
func WithStopBits(n float64) Option {
	return func(cfg *config) {
		cfg.stopbits = n
	}
}

// WithTimeout bounds the time spent waiting for an acknowledgment.
func WithTimeout(timeout time.Duration) Option {
	return func(cfg *config) {
		cfg.timeout = timeout
	}
}

// WithLogger sets the logger used to report connection failures.
func WithLogger(msg *log.Logger) Option {
	return func(cfg *config) {
		cfg.msg = msg
	}
}

func (cfg config) pollTimeout() time.Duration {
	if cfg.timeout < pollTimeout {
		return cfg.timeout
	}
	return pollTimeout
}

func (cfg config) mode() (*serial.Mode, error) {
	if cfg.baud <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", cfg.baud)
	}
	mode := &serial.Mode{
		BaudRate: cfg.baud,
		DataBits: 8,
	}

	switch strings.ToUpper(cfg.parity) {
	case "N", "":
		mode.Parity = serial.NoParity
	case "E":
		mode.Parity = serial.EvenParity
	case "O":
		mode.Parity = serial.OddParity
	case "M":
		mode.Parity = serial.MarkParity
	case "S":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("invalid parity %q", cfg.parity)
	}

	switch cfg.stopbits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 1.5:
		mode.StopBits = serial.OnePointFiveStopBits
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid number of stop bits %v", cfg.stopbits)
	}

	return mode, nil
}

var serialOpen = serialOpenImpl

func serialOpenImpl(name string, mode *serial.Mode) (Port, error) {
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Open opens the serial port name and starts a session with the rack
// connected to it.
// The link defaults to 9600 baud, 8 data bits, no parity and 1 stop bit.
func Open(name string, opts ...Option) (*Device, error) {
	cfg := newConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	mode, err := cfg.mode()
	if err != nil {
		return nil, fmt.Errorf("%w: could not configure %q: %w", ErrConnection, name, err)
	}

	port, err := serialOpen(name, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: could not open %q: %w", ErrConnection, name, err)
	}

	dev, err := newDevice(name, port, cfg)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	dev.msg.Printf("connected to %q (baud=%d, parity=%s, stop-bits=%v)",
		name, mode.BaudRate, strings.ToUpper(cfg.parity), cfg.stopbits,
	)
	return dev, nil
}
