// Copyright 2025 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crc16 implements the 16-bit cyclic redundancy check used by
// the DOS0157 attenuator rack (CRC-16/MODBUS).
package crc16 // import "github.com/go-lpc/sof0273/internal/crc16"

import (
	"encoding/binary"
	"hash"
)

// Modbus is the reflected form of the 0x8005 polynomial.
const Modbus = 0xa001

// Size of a CRC-16 checksum in bytes.
const Size = 2

const initial = 0xffff

// Table is a 256-word table representing the polynomial for efficient processing.
type Table [256]uint16

var modbusTable = MakeTable(Modbus)

// MakeTable returns a Table constructed from the specified reflected polynomial.
func MakeTable(poly uint16) *Table {
	t := new(Table)
	for i := range t {
		crc := uint16(i)
		for j := 0; j < 8; j++ {
			if crc&1 == 1 {
				crc = (crc >> 1) ^ poly
			} else {
				crc >>= 1
			}
		}
		t[i] = crc
	}
	return t
}

// Hash16 is the common interface implemented by all 16-bit hash functions.
type Hash16 interface {
	hash.Hash
	Sum16() uint16
}

type digest struct {
	crc uint16
	tab *Table
}

// New creates a new Hash16 computing the CRC-16 checksum using the
// polynomial represented by the Table.
// A nil table selects the Modbus table.
func New(tbl *Table) Hash16 {
	if tbl == nil {
		tbl = modbusTable
	}
	return &digest{crc: initial, tab: tbl}
}

func (d *digest) Size() int      { return Size }
func (d *digest) BlockSize() int { return 1 }
func (d *digest) Reset()         { d.crc = initial }

func (d *digest) Write(p []byte) (int, error) {
	d.crc = update(d.crc, d.tab, p)
	return len(p), nil
}

func (d *digest) Sum16() uint16 { return d.crc }

// Sum appends the checksum, big-endian, to b.
func (d *digest) Sum(b []byte) []byte {
	return binary.BigEndian.AppendUint16(b, d.crc)
}

func update(crc uint16, tab *Table, p []byte) uint16 {
	for _, v := range p {
		crc = tab[byte(crc)^v] ^ (crc >> 8)
	}
	return crc
}

// Checksum returns the CRC-16/MODBUS checksum of data.
func Checksum(data []byte) uint16 {
	return update(initial, modbusTable, data)
}
