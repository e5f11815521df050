// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command dos0157-sim emulates a DOS0157 attenuator rack on a
// pseudo-terminal.
//
// Usage: dos0157-sim [OPTIONS]
//
// Example:
//
//	$> dos0157-sim -lofar 10 -nenufar 3.5
//	dos0157-sim: serving simulated rack on "/dev/pts/7"
//
//	$> sof0273 -port /dev/pts/7
package main // import "github.com/go-lpc/sof0273/cmd/dos0157-sim"

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/go-lpc/sof0273/dos0157"
	"github.com/go-lpc/sof0273/internal/fakedev"
)

func main() {
	log.SetPrefix("dos0157-sim: ")
	log.SetFlags(0)

	var (
		lofar   = flag.Float64("lofar", 0, "initial LOFAR attenuation, in dB")
		nenufar = flag.Float64("nenufar", 0, "initial NenuFAR attenuation, in dB")
	)

	flag.Parse()

	rack, err := newRack(*lofar, *nenufar)
	if err != nil {
		log.Fatalf("could not create simulated rack: %+v", err)
	}

	stop := make(chan os.Signal, 1)
	err = run(rack, stop, func(name string) {
		log.Printf("serving simulated rack on %q", name)
	})
	if err != nil {
		log.Fatalf("could not run simulated rack: %+v", err)
	}
}

func newRack(lofar, nenufar float64) (*fakedev.Rack, error) {
	s := dos0157.Setting{LOFAR: lofar, NenuFAR: nenufar}
	err := s.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid initial attenuation: %w", err)
	}
	return fakedev.NewRack(uint8(lofar/dos0157.Step), uint8(nenufar/dos0157.Step)), nil
}
