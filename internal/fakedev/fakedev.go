// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package fakedev holds types to simulate a DOS0157 attenuator rack.
package fakedev // import "github.com/go-lpc/sof0273/internal/fakedev"

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/go-lpc/sof0273/dos0157"
)

const maxCode = 63

// Rack is an in-memory DOS0157 rack.
type Rack struct {
	mu    sync.Mutex
	live  [2]uint8 // LOFAR, NenuFAR
	saved [2]uint8 // non-volatile memory
	mute  bool
	cmds  map[dos0157.Code]int
}

// NewRack returns a rack whose memory holds the provided attenuation codes.
func NewRack(lofar, nenufar uint8) *Rack {
	return &Rack{
		live:  [2]uint8{lofar, nenufar},
		saved: [2]uint8{lofar, nenufar},
		cmds:  make(map[dos0157.Code]int),
	}
}

// Mute makes the rack ignore every command, as a powered-off or
// disconnected rack would.
func (r *Rack) Mute(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mute = v
}

// Live returns the attenuation codes currently applied.
func (r *Rack) Live() (lofar, nenufar uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live[0], r.live[1]
}

// Saved returns the attenuation codes held in non-volatile memory.
func (r *Rack) Saved() (lofar, nenufar uint8) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saved[0], r.saved[1]
}

// Count returns the number of commands with the provided code the rack handled.
func (r *Rack) Count(code dos0157.Code) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cmds[code]
}

// PowerCycle reloads the live attenuation from memory.
func (r *Rack) PowerCycle() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.live = r.saved
}

// Handle applies cmd and returns the acknowledgment to send back.
// Handle returns false when the rack does not answer.
func (r *Rack) Handle(cmd dos0157.Command) (dos0157.Ack, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.mute {
		return dos0157.Ack{}, false
	}
	r.cmds[cmd.Code]++

	switch cmd.Code {
	case dos0157.CodeWrite:
		// out of range values leave the attenuators untouched.
		if cmd.LOFAR <= maxCode && cmd.NenuFAR <= maxCode {
			r.live = [2]uint8{cmd.LOFAR, cmd.NenuFAR}
		}
	case dos0157.CodeSave:
		r.saved = r.live
	}

	return dos0157.Ack{
		Code:    cmd.Code,
		LOFAR:   r.live[0],
		NenuFAR: r.live[1],
	}, true
}

// Serve decodes commands from rw and writes back acknowledgments,
// until rw reaches EOF or fails.
// Malformed command frames are dropped.
func (r *Rack) Serve(rw io.ReadWriter) error {
	for {
		cmd, err := dos0157.ReadCommand(rw)
		if err != nil {
			if errors.Is(err, dos0157.ErrFrame) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("fakedev: could not read command: %w", err)
		}

		ack, ok := r.Handle(cmd)
		if !ok {
			continue
		}
		raw, err := ack.MarshalBinary()
		if err != nil {
			return fmt.Errorf("fakedev: could not encode %v ack: %w", ack.Code, err)
		}
		_, err = rw.Write(raw)
		if err != nil {
			return fmt.Errorf("fakedev: could not write %v ack: %w", ack.Code, err)
		}
	}
}

// Port is an in-memory serial link to a Rack.
type Port struct {
	rack *Rack

	mu      sync.Mutex
	out     bytes.Buffer // rack to host
	timeout time.Duration
	closed  bool
	sent    int

	// Tamper, when set, modifies every acknowledgment before the
	// host receives it.
	Tamper func(ack []byte) []byte
}

var _ dos0157.Port = (*Port)(nil)

// NewPort returns a serial link to rack.
func NewPort(rack *Rack) *Port {
	return &Port{rack: rack, timeout: 100 * time.Millisecond}
}

// Sent returns the number of bytes the host wrote to the port.
func (p *Port) Sent() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sent
}

func (p *Port) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, os.ErrClosed
	}
	p.sent += len(data)

	r := bytes.NewReader(data)
	for r.Len() > 0 {
		cmd, err := dos0157.ReadCommand(r)
		if err != nil {
			// the rack discards what it can not decode.
			break
		}
		ack, ok := p.rack.Handle(cmd)
		if !ok {
			continue
		}
		raw, _ := ack.MarshalBinary()
		if p.Tamper != nil {
			raw = p.Tamper(raw)
		}
		p.out.Write(raw)
	}
	return len(data), nil
}

func (p *Port) Read(data []byte) (int, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return 0, os.ErrClosed
	}
	if p.out.Len() > 0 {
		defer p.mu.Unlock()
		return p.out.Read(data)
	}
	timeout := p.timeout
	p.mu.Unlock()

	time.Sleep(timeout)
	return 0, nil
}

func (p *Port) SetReadTimeout(d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = d
	return nil
}

func (p *Port) ResetInputBuffer() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.out.Reset()
	return nil
}

func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return os.ErrClosed
	}
	p.closed = true
	return nil
}
