// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sof0273 holds tools to configure the DOS0157 attenuator rack
// serving the LOFAR and NenuFAR receivers.
package sof0273 // import "github.com/go-lpc/sof0273"

import (
	"fmt"
	"runtime/debug"
)

const root = "github.com/go-lpc/sof0273"

// Version returns the version of sof0273 and its checksum.
// The returned values are only valid in binaries built with module support.
func Version() (version, sum string) {
	b, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	return versionOf(b)
}

func versionOf(b *debug.BuildInfo) (version, sum string) {
	if b == nil {
		return "", ""
	}

	if b.Main.Path == root {
		return moduleVersion(&b.Main)
	}
	for _, m := range b.Deps {
		if m.Path != root {
			continue
		}
		return moduleVersion(m)
	}
	return "", ""
}

func moduleVersion(m *debug.Module) (version, sum string) {
	if r := m.Replace; r != nil {
		switch {
		case r.Version != "" && r.Path != "":
			return fmt.Sprintf("%s %s", r.Path, r.Version), r.Sum
		case r.Version != "":
			return r.Version, r.Sum
		case r.Path != "":
			return r.Path, r.Sum
		default:
			return m.Version + "*", ""
		}
	}
	return m.Version, m.Sum
}
