// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-lpc/sof0273/dos0157"
	"github.com/peterh/liner"
)

const help = `Commands:
  r                           - Read current attenuation settings
  w <Att_LOFAR> <Att_NenuFAR> - Set attenuation in dB (0.0 to 31.5, 0.5 dB steps)
  s                           - Save current settings to device memory
  h                           - Print this help message
  quit                        - Exit
`

type session interface {
	Read() (dos0157.Setting, error)
	Write(lofar, nenufar float64) (dos0157.Setting, error)
	Save() (dos0157.Setting, error)
}

type prompter interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
	Close() error
}

// shell drives a rack session from the commands typed by the operator.
type shell struct {
	dev  session
	term prompter
	out  io.Writer
	err  io.Writer
}

// run reads and executes commands until the operator quits or the
// connection to the rack is lost.
func (sh *shell) run() error {
	for {
		line, err := sh.term.Prompt("> ")
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(sh.out)
				return nil
			}
			return fmt.Errorf("could not read command: %w", err)
		}

		quit, err := sh.exec(line)
		if err != nil {
			fmt.Fprintf(sh.err, "error: %v\n", err)
			if errors.Is(err, dos0157.ErrConnection) {
				return err
			}
		}
		if quit {
			return nil
		}
	}
}

// exec executes a single command line.
func (sh *shell) exec(line string) (quit bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return false, nil
	}
	sh.term.AppendHistory(line)

	var (
		args = strings.Fields(line)
		ack  dos0157.Setting
		name string
	)
	switch strings.ToLower(args[0]) {
	case "quit", "exit", "q":
		return true, nil

	case "h", "help", "?":
		fmt.Fprint(sh.out, help)
		return false, nil

	case "r", "read":
		name = "Read"
		ack, err = sh.dev.Read()

	case "w", "write":
		name = "Write"
		if len(args) != 3 {
			return false, fmt.Errorf(
				"%w: write command requires 2 arguments: Att_LOFAR and Att_NenuFAR",
				dos0157.ErrInvalidArgument,
			)
		}
		var lofar, nenufar float64
		lofar, err = parseAtt("Att_LOFAR", args[1])
		if err != nil {
			return false, err
		}
		nenufar, err = parseAtt("Att_NenuFAR", args[2])
		if err != nil {
			return false, err
		}
		ack, err = sh.dev.Write(lofar, nenufar)

	case "s", "save":
		name = "Save"
		ack, err = sh.dev.Save()

	default:
		return false, fmt.Errorf("unknown command %q (use 'r', 'w', 's' or 'h')", args[0])
	}

	if err != nil {
		return false, err
	}
	fmt.Fprintf(sh.out, "%s Ack - %v\n", name, ack)
	return false, nil
}

func parseAtt(name, arg string) (float64, error) {
	v, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be a number between 0.0 and %v dB (got %q)",
			dos0157.ErrInvalidArgument, name, dos0157.MaxAtt, arg,
		)
	}
	return v, nil
}
