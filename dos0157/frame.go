// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package dos0157

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-lpc/sof0273/internal/crc16"
)

// Magic starts every frame exchanged with the rack.
const Magic uint16 = 0xaa55

// Code identifies a command and its acknowledgment.
type Code uint8

const (
	CodeRead  Code = 0x01
	CodeWrite Code = 0x02
	CodeSave  Code = 0x08
)

func (c Code) String() string {
	switch c {
	case CodeRead:
		return "Read"
	case CodeWrite:
		return "Write"
	case CodeSave:
		return "Save"
	}
	return fmt.Sprintf("Code(0x%02x)", uint8(c))
}

func (c Code) valid() bool {
	switch c {
	case CodeRead, CodeWrite, CodeSave:
		return true
	}
	return false
}

const (
	hdrLen    = 3 // magic + code
	crcLen    = crc16.Size
	shortLen  = hdrLen + crcLen     // read and save commands
	longLen   = hdrLen + 2 + crcLen // write command and all acks
	ackLen    = longLen
	maxFrmLen = 10
)

// ErrFrame reports a frame that could not be decoded.
var ErrFrame = errors.New("dos0157: malformed frame")

var (
	errShortFrame = fmt.Errorf("%w: incomplete frame", ErrFrame)
	errMagic      = fmt.Errorf("%w: invalid magic number", ErrFrame)
	errCode       = fmt.Errorf("%w: unknown frame code", ErrFrame)
	errCRC        = fmt.Errorf("%w: CRC mismatch", ErrFrame)
)

// Command is a request sent by the host to the rack.
// LOFAR and NenuFAR are only meaningful for CodeWrite.
type Command struct {
	Code    Code
	LOFAR   uint8 // attenuation code, in Step units
	NenuFAR uint8 // attenuation code, in Step units
}

func (cmd Command) size() int {
	if cmd.Code == CodeWrite {
		return longLen
	}
	return shortLen
}

// MarshalBinary encodes the command into its wire representation.
func (cmd Command) MarshalBinary() ([]byte, error) {
	if !cmd.Code.valid() {
		return nil, fmt.Errorf("%w: 0x%02x", errCode, uint8(cmd.Code))
	}
	buf := make([]byte, hdrLen, cmd.size())
	binary.BigEndian.PutUint16(buf[0:], Magic)
	buf[2] = byte(cmd.Code)
	if cmd.Code == CodeWrite {
		if cmd.LOFAR > maxCode || cmd.NenuFAR > maxCode {
			return nil, fmt.Errorf("%w: attenuation codes (%d, %d) not in [0, %d]",
				ErrInvalidArgument, cmd.LOFAR, cmd.NenuFAR, maxCode,
			)
		}
		buf = append(buf, cmd.LOFAR, cmd.NenuFAR)
	}
	return binary.BigEndian.AppendUint16(buf, crc16.Checksum(buf)), nil
}

// ReadCommand reads and decodes one command frame from r.
func ReadCommand(r io.Reader) (Command, error) {
	var (
		cmd Command
		buf = make([]byte, longLen)
	)
	_, err := io.ReadFull(r, buf[:hdrLen])
	if err != nil {
		return cmd, err
	}
	if v := binary.BigEndian.Uint16(buf); v != Magic {
		return cmd, fmt.Errorf("%w: 0x%04x", errMagic, v)
	}
	cmd.Code = Code(buf[2])
	if !cmd.Code.valid() {
		return cmd, fmt.Errorf("%w: 0x%02x", errCode, buf[2])
	}

	n := cmd.size()
	_, err = io.ReadFull(r, buf[hdrLen:n])
	if err != nil {
		return cmd, fmt.Errorf("could not read %v command payload: %w", cmd.Code, err)
	}
	err = checkCRC(buf[:n])
	if err != nil {
		return cmd, err
	}
	if cmd.Code == CodeWrite {
		cmd.LOFAR = buf[3]
		cmd.NenuFAR = buf[4]
	}
	return cmd, nil
}

// Ack is the acknowledgment sent back by the rack for every command.
// It carries the attenuation codes in force after the command.
type Ack struct {
	Code    Code
	LOFAR   uint8
	NenuFAR uint8
}

// Setting converts the acknowledged attenuation codes into dB.
func (ack Ack) Setting() (Setting, error) {
	lofar, err := codeToAtt(ack.LOFAR)
	if err != nil {
		return Setting{}, fmt.Errorf("invalid LOFAR value: %w", err)
	}
	nenufar, err := codeToAtt(ack.NenuFAR)
	if err != nil {
		return Setting{}, fmt.Errorf("invalid NenuFAR value: %w", err)
	}
	return Setting{LOFAR: lofar, NenuFAR: nenufar}, nil
}

// MarshalBinary encodes the acknowledgment into its wire representation.
func (ack Ack) MarshalBinary() ([]byte, error) {
	buf := make([]byte, ackLen)
	binary.BigEndian.PutUint16(buf[0:], Magic)
	buf[2] = byte(ack.Code)
	buf[3] = ack.LOFAR
	buf[4] = ack.NenuFAR
	binary.BigEndian.PutUint16(buf[5:], crc16.Checksum(buf[:5]))
	return buf, nil
}

// UnmarshalBinary decodes an acknowledgment from its wire representation.
func (ack *Ack) UnmarshalBinary(p []byte) error {
	if len(p) < ackLen {
		return fmt.Errorf("%w (got %d bytes, want %d)", errShortFrame, len(p), ackLen)
	}
	if v := binary.BigEndian.Uint16(p); v != Magic {
		return fmt.Errorf("%w: 0x%04x", errMagic, v)
	}
	code := Code(p[2])
	if !code.valid() {
		return fmt.Errorf("%w: 0x%02x", errCode, p[2])
	}
	err := checkCRC(p[:ackLen])
	if err != nil {
		return err
	}
	ack.Code = code
	ack.LOFAR = p[3]
	ack.NenuFAR = p[4]
	return nil
}

func checkCRC(frame []byte) error {
	n := len(frame) - crcLen
	var (
		recv = binary.BigEndian.Uint16(frame[n:])
		comp = crc16.Checksum(frame[:n])
	)
	if recv != comp {
		return fmt.Errorf("%w: received 0x%04x, computed 0x%04x", errCRC, recv, comp)
	}
	return nil
}
