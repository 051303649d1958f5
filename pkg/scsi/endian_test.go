// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package scsi

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPut48HighBytesZero(t *testing.T) {
	b := make([]byte, 6)
	Put48(b, 0x0000_1234_5678_9abc)
	assert.Equal(t, []byte{0x12, 0x34, 0x56, 0x78, 0x9a, 0xbc}, b)
	assert.Equal(t, uint64(0x0000_1234_5678_9abc), Get48(b))
}

func TestGet48Truncates(t *testing.T) {
	// Values wider than 48 bits lose their top bytes on the wire.
	b := make([]byte, 6)
	Put48(b, 0xffff_0000_0000_0001)
	assert.Equal(t, uint64(1), Get48(b))
}

func TestEndianRoundTrips(t *testing.T) {
	b := make([]byte, 8)
	Put16(b, 0xbeef)
	assert.Equal(t, uint16(0xbeef), Get16(b))
	Put32(b, 0xdeadbeef)
	assert.Equal(t, uint32(0xdeadbeef), Get32(b))
	Put64(b, 0x0123456789abcdef)
	assert.Equal(t, uint64(0x0123456789abcdef), Get64(b))
}

func TestCommandScatterGather(t *testing.T) {
	c := &Command{Iov: [][]byte{make([]byte, 3), make([]byte, 5)}}
	n, err := c.Write([]byte{1, 2, 3, 4})
	assert.NoError(t, err)
	assert.Equal(t, 4, n)
	n, err = c.Write([]byte{5, 6, 7, 8, 9, 10})
	assert.NoError(t, err)
	assert.Equal(t, 4, n) // truncated at iov capacity
	assert.Equal(t, []byte{1, 2, 3}, c.Iov[0])
	assert.Equal(t, []byte{4, 5, 6, 7, 8}, c.Iov[1])
	assert.Equal(t, 8, c.Written())
}

func TestCommandCDBHelpers(t *testing.T) {
	c := &Command{CDB: []byte{0x95, 0x07}}
	assert.Equal(t, byte(0x95), c.Op())
	assert.Equal(t, byte(0x07), c.ServiceAction())
	assert.Equal(t, byte(0), c.GetCDB(14)) // reads past a short CDB are zero
}
