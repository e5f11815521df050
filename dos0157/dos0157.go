// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package dos0157 holds functions to control a DOS0157 attenuator rack
// over a serial link.
//
// The rack attenuates two independent channels, LOFAR and NenuFAR,
// from 0.0 to 31.5 dB in steps of 0.5 dB.
package dos0157 // import "github.com/go-lpc/sof0273/dos0157"

import (
	"errors"
	"fmt"
	"math"
)

const (
	// MaxAtt is the maximum attenuation of a channel, in dB.
	MaxAtt = 31.5
	// Step is the attenuation granularity, in dB.
	Step = 0.5

	maxCode = 63 // MaxAtt / Step
)

var (
	// ErrInvalidArgument reports an attenuation value that is out of
	// range or not aligned on Step.
	ErrInvalidArgument = errors.New("dos0157: invalid argument")

	// ErrCommunication reports a timeout, a missing acknowledgment or a
	// malformed reply from the rack.
	ErrCommunication = errors.New("dos0157: communication error")

	// ErrConnection reports a serial port that could not be opened or
	// that is not usable anymore.
	ErrConnection = errors.New("dos0157: connection error")
)

// Setting holds the attenuation, in dB, of both channels of the rack.
type Setting struct {
	LOFAR   float64
	NenuFAR float64
}

// Validate checks both attenuations are in [0, MaxAtt] and multiples of Step.
func (s Setting) Validate() error {
	if _, err := attToCode(s.LOFAR); err != nil {
		return fmt.Errorf("invalid LOFAR attenuation: %w", err)
	}
	if _, err := attToCode(s.NenuFAR); err != nil {
		return fmt.Errorf("invalid NenuFAR attenuation: %w", err)
	}
	return nil
}

func (s Setting) String() string {
	return fmt.Sprintf("Att_LOFAR=%.1f Att_NenuFAR=%.1f", s.LOFAR, s.NenuFAR)
}

func (s Setting) codes() (lofar, nenufar uint8, err error) {
	err = s.Validate()
	if err != nil {
		return 0, 0, err
	}
	lofar, _ = attToCode(s.LOFAR)
	nenufar, _ = attToCode(s.NenuFAR)
	return lofar, nenufar, nil
}

func attToCode(att float64) (uint8, error) {
	switch {
	case math.IsNaN(att) || math.IsInf(att, 0):
		return 0, fmt.Errorf("%w: %v dB is not a number", ErrInvalidArgument, att)
	case att < 0 || att > MaxAtt:
		return 0, fmt.Errorf("%w: %v dB not in [0, %v] dB", ErrInvalidArgument, att, MaxAtt)
	}
	v := att / Step
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("%w: %v dB is not a multiple of %v dB", ErrInvalidArgument, att, Step)
	}
	return uint8(v), nil
}

func codeToAtt(code uint8) (float64, error) {
	if code > maxCode {
		return 0, fmt.Errorf("attenuation code %d not in [0, %d]", code, maxCode)
	}
	return float64(code) * Step, nil
}
