// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !linux

package main

import (
	"errors"
	"os"

	"github.com/go-lpc/sof0273/internal/fakedev"
)

func run(rack *fakedev.Rack, stop chan os.Signal, ready func(name string)) error {
	return errors.New("pseudo-terminals are only supported on linux")
}
