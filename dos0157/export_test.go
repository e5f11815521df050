// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dos0157

import "go.bug.st/serial"

// SetSerialOpen replaces the function opening serial ports and returns
// a function restoring the original one.
func SetSerialOpen(f func(name string, mode *serial.Mode) (Port, error)) func() {
	serialOpen = f
	return func() {
		serialOpen = serialOpenImpl
	}
}
