// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/go-lpc/sof0273/dos0157"
	"github.com/go-lpc/sof0273/internal/fakedev"
	"github.com/peterh/liner"
)

type script struct {
	lines []string
	hist  []string
	err   error // returned once lines are exhausted
}

func (s *script) Prompt(string) (string, error) {
	if len(s.lines) == 0 {
		if s.err != nil {
			return "", s.err
		}
		return "", io.EOF
	}
	line := s.lines[0]
	s.lines = s.lines[1:]
	return line, nil
}

func (s *script) AppendHistory(item string) { s.hist = append(s.hist, item) }
func (s *script) Close() error              { return nil }

func newTestShell(t *testing.T, rack *fakedev.Rack, lines ...string) (*shell, *fakedev.Port, *strings.Builder, *strings.Builder) {
	t.Helper()
	port := fakedev.NewPort(rack)
	dev, err := dos0157.New(port,
		dos0157.WithTimeout(50*time.Millisecond),
		dos0157.WithLogger(log.New(io.Discard, "", 0)),
	)
	if err != nil {
		t.Fatalf("could not create device: %+v", err)
	}
	t.Cleanup(func() { _ = dev.Close() })

	var (
		stdout = new(strings.Builder)
		stderr = new(strings.Builder)
	)
	return &shell{
		dev:  dev,
		term: &script{lines: lines},
		out:  stdout,
		err:  stderr,
	}, port, stdout, stderr
}

func TestShellWriteRead(t *testing.T) {
	sh, _, stdout, stderr := newTestShell(t, fakedev.NewRack(0, 0),
		"w 12.5 0.0",
		"r",
		"quit",
		"r", // never executed
	)

	err := sh.run()
	if err != nil {
		t.Fatalf("could not run shell: %+v", err)
	}

	want := "Write Ack - Att_LOFAR=12.5 Att_NenuFAR=0.0\n" +
		"Read Ack - Att_LOFAR=12.5 Att_NenuFAR=0.0\n"
	if got := stdout.String(); got != want {
		t.Fatalf("invalid output:\ngot:\n%s\nwant:\n%s", got, want)
	}
	if got := stderr.String(); got != "" {
		t.Fatalf("unexpected errors:\n%s", got)
	}
	if got, want := sh.term.(*script).hist, []string{"w 12.5 0.0", "r", "quit"}; strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("invalid history: got=%q, want=%q", got, want)
	}
}

func TestShellInvalidWrite(t *testing.T) {
	for _, tc := range []struct {
		name string
		line string
		want string
	}{
		{"out-of-range", "w 32.0 0.0", "invalid argument"},
		{"misaligned", "w 1.2 0.0", "not a multiple of 0.5 dB"},
		{"missing-arg", "w 1.0", "write command requires 2 arguments"},
		{"too-many-args", "w 1.0 2.0 3.0", "write command requires 2 arguments"},
		{"not-a-number", "w one 2.0", "Att_LOFAR must be a number"},
		{"not-a-number-nenufar", "w 1.0 two", "Att_NenuFAR must be a number"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			sh, port, stdout, stderr := newTestShell(t, fakedev.NewRack(0, 0), tc.line, "r")
			err := sh.run()
			if err != nil {
				t.Fatalf("could not run shell: %+v", err)
			}
			if got := stderr.String(); !strings.Contains(got, tc.want) {
				t.Fatalf("invalid error message:\ngot= %q\nwant=%q", got, tc.want)
			}
			if got, want := port.Sent(), 5; got != want {
				t.Fatalf("invalid number of bytes sent: got=%d, want=%d (read command only)", got, want)
			}
			if got := stdout.String(); !strings.Contains(got, "Read Ack - Att_LOFAR=0.0 Att_NenuFAR=0.0") {
				t.Fatalf("shell did not continue after error:\n%s", got)
			}
		})
	}
}

func TestShellSave(t *testing.T) {
	rack := fakedev.NewRack(0, 0)
	sh, _, stdout, _ := newTestShell(t, rack, "w 3.0 4.5", "s", "exit")
	err := sh.run()
	if err != nil {
		t.Fatalf("could not run shell: %+v", err)
	}
	if got, want := rack.Count(dos0157.CodeSave), 1; got != want {
		t.Fatalf("invalid number of save commands: got=%d, want=%d", got, want)
	}
	if lo, ne := rack.Saved(); lo != 6 || ne != 9 {
		t.Fatalf("invalid saved values: got=(%d, %d), want=(6, 9)", lo, ne)
	}
	if got := stdout.String(); !strings.Contains(got, "Save Ack - Att_LOFAR=3.0 Att_NenuFAR=4.5") {
		t.Fatalf("invalid output:\n%s", got)
	}
}

func TestShellMisc(t *testing.T) {
	sh, port, stdout, stderr := newTestShell(t, fakedev.NewRack(0, 0),
		"",
		"   ",
		"# a comment",
		"  # an indented comment",
		"h",
		"frobnicate",
	)
	err := sh.run()
	if err != nil {
		t.Fatalf("could not run shell: %+v", err)
	}
	if got := stdout.String(); !strings.Contains(got, "Commands:") {
		t.Fatalf("missing help message:\n%s", got)
	}
	if got := stderr.String(); !strings.Contains(got, `unknown command "frobnicate"`) {
		t.Fatalf("invalid error message:\n%s", got)
	}
	if got := port.Sent(); got != 0 {
		t.Fatalf("bytes sent to device: %d", got)
	}
	if got, want := len(sh.term.(*script).hist), 2; got != want {
		t.Fatalf("invalid history length: got=%d, want=%d", got, want)
	}
}

func TestShellTimeout(t *testing.T) {
	rack := fakedev.NewRack(0, 0)
	rack.Mute(true)
	sh, _, _, stderr := newTestShell(t, rack, "r", "s")
	err := sh.run()
	if err != nil {
		t.Fatalf("communication errors should not stop the shell: %+v", err)
	}
	if got, want := strings.Count(stderr.String(), "communication error"), 2; got != want {
		t.Fatalf("invalid number of communication errors: got=%d, want=%d\n%s", got, want, stderr.String())
	}
}

func TestShellConnectionLost(t *testing.T) {
	sh, port, _, stderr := newTestShell(t, fakedev.NewRack(0, 0), "r", "r", "r")
	_ = port.Close()

	err := sh.run()
	if !errors.Is(err, dos0157.ErrConnection) {
		t.Fatalf("invalid error: got=%+v, want=%v", err, dos0157.ErrConnection)
	}
	if got, want := strings.Count(stderr.String(), "\n"), 1; got != want {
		t.Fatalf("shell continued after connection loss:\n%s", stderr.String())
	}
}

func TestShellAbort(t *testing.T) {
	sh, _, _, _ := newTestShell(t, fakedev.NewRack(0, 0), "r")
	sh.term.(*script).err = liner.ErrPromptAborted
	err := sh.run()
	if err != nil {
		t.Fatalf("ctrl-c should quit cleanly: %+v", err)
	}

	sh, _, _, _ = newTestShell(t, fakedev.NewRack(0, 0))
	sh.term.(*script).err = errors.New("tty gone")
	err = sh.run()
	if err == nil {
		t.Fatalf("expected an error")
	}
}

func TestXMain(t *testing.T) {
	orig := newTerm
	defer func() { newTerm = orig }()

	for _, tc := range []struct {
		name  string
		args  []string
		lines []string
		out   string
		err   bool
	}{
		{
			name:  "sim",
			args:  []string{"-sim", "-timeout=50ms"},
			lines: []string{"w 12.5 0.0", "r", "quit"},
			out:   "Read Ack - Att_LOFAR=12.5 Att_NenuFAR=0.0",
		},
		{
			name: "version",
			args: []string{"-version"},
			out:  "sof0273 ",
		},
		{
			name: "help",
			args: []string{"-h"},
		},
		{
			name: "bad-flag",
			args: []string{"-no-such-flag"},
			err:  true,
		},
		{
			name: "bad-timeout",
			args: []string{"-sim", "-timeout=0"},
			err:  true,
		},
		{
			name: "no-device",
			args: []string{"-port", "/dev/no-such-tty"},
			err:  true,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			newTerm = func() prompter { return &script{lines: tc.lines} }

			var (
				stdout = new(strings.Builder)
				stderr = new(strings.Builder)
			)
			err := xmain(tc.args, stdout, stderr)
			switch {
			case tc.err && err == nil:
				t.Fatalf("expected an error")
			case !tc.err && err != nil:
				t.Fatalf("could not run sof0273: %+v", err)
			}
			if !strings.Contains(stdout.String(), tc.out) {
				t.Fatalf("invalid output:\ngot:\n%s\nwant: %q", stdout.String(), tc.out)
			}
		})
	}
}
