// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build linux

package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-lpc/sof0273/internal/fakedev"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
)

// run serves rack on a new pseudo-terminal until a signal is received
// on stop.
func run(rack *fakedev.Rack, stop chan os.Signal, ready func(name string)) error {
	ptm, pts, err := openPTY()
	if err != nil {
		return fmt.Errorf("could not open pseudo-terminal: %w", err)
	}
	defer pts.Close()

	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		defer cancel()
		err := rack.Serve(ptm)
		if errors.Is(err, os.ErrClosed) {
			return nil
		}
		return err
	})
	grp.Go(func() error {
		select {
		case sig := <-stop:
			log.Printf("received %v, stopping...", sig)
		case <-ctx.Done():
		}
		return ptm.Close()
	})

	ready(pts.Name())

	return grp.Wait()
}

// openPTY allocates a pseudo-terminal in raw mode.
// The returned slave is kept open so the master does not see EIO
// between two client sessions.
func openPTY() (ptm, pts *os.File, err error) {
	fd, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open /dev/ptmx: %w", err)
	}
	ptm = os.NewFile(uintptr(fd), "/dev/ptmx")
	defer func() {
		if err != nil {
			_ = ptm.Close()
		}
	}()

	err = unix.IoctlSetPointerInt(fd, unix.TIOCSPTLCK, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("could not unlock pseudo-terminal: %w", err)
	}

	n, err := unix.IoctlGetInt(fd, unix.TIOCGPTN)
	if err != nil {
		return nil, nil, fmt.Errorf("could not get pseudo-terminal number: %w", err)
	}

	err = makeRaw(fd)
	if err != nil {
		return nil, nil, fmt.Errorf("could not set pseudo-terminal in raw mode: %w", err)
	}

	name := fmt.Sprintf("/dev/pts/%d", n)
	pts, err = os.OpenFile(name, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("could not open %q: %w", name, err)
	}

	return ptm, pts, nil
}

func makeRaw(fd int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB
	t.Cflag |= unix.CS8
	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 0
	return unix.IoctlSetTermios(fd, unix.TCSETS, t)
}
