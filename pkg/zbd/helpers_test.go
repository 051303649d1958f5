// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cobaltcore-dev/dhsmr/pkg/scsi"
)

// Test geometry: 512-byte LBAs, 64 KiB zones (128 LBAs), 256 KiB realms
// (4 SMR zones), gain 2.0 (2 CMR zones per realm), 1 MiB device = 4 realms.
const (
	testOpts     = "lba-512/zsize-64K/rsize-256K/sgain-2.0/open-4"
	testSize     = uint64(1 << 20)
	testZoneLBAs = uint64(128)
)

func newTestDevice(t *testing.T, profile string) *Device {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backing.img")
	raw := "dhsmr/type-" + profile + "/" + testOpts + "@" + path
	d, err := Open(raw, testSize)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

// checkInvariants runs the full metadata validator plus the runtime
// counters that are not persisted. Called after every mutating step.
func checkInvariants(t *testing.T, d *Device) {
	t.Helper()
	require.NoError(t, d.validate())
	var empty uint32
	for i := range d.zones {
		if d.zones[i].Cond == CondEmpty {
			empty++
		}
	}
	require.Equal(t, empty, d.nrEmpty, "empty zone counter")
	require.LessOrEqual(t, d.nrOpen(), d.hdr.MaxOpen, "open zone limit")
}

func dataInCmd(cdb []byte, bufLen int) *scsi.Command {
	return &scsi.Command{CDB: cdb, Iov: [][]byte{make([]byte, bufLen)}}
}

func dataOutCmd(cdb []byte, data []byte) *scsi.Command {
	return &scsi.Command{CDB: cdb, Iov: [][]byte{data}}
}

// writeCDB builds a WRITE(16) for lba/count.
func writeCDB(lba, count uint64) []byte {
	cdb := make([]byte, 16)
	cdb[0] = scsi.Write16
	scsi.Put64(cdb[2:], lba)
	scsi.Put32(cdb[10:], uint32(count))
	return cdb
}

func readCDB(lba, count uint64) []byte {
	cdb := make([]byte, 16)
	cdb[0] = scsi.Read16
	scsi.Put64(cdb[2:], lba)
	scsi.Put32(cdb[10:], uint32(count))
	return cdb
}

// zbcOutCDB builds a ZBC OUT CDB for one zone operation.
func zbcOutCDB(sa byte, lba, count uint64, all bool) []byte {
	cdb := make([]byte, 16)
	cdb[0] = scsi.ZbcOut
	cdb[1] = sa
	scsi.Put64(cdb[2:], lba)
	scsi.Put16(cdb[12:], uint16(count))
	if all {
		cdb[14] = 0x01
	}
	return cdb
}

// activate16CDB builds a ZONE ACTIVATE/QUERY(16) CDB.
func activate16CDB(sa byte, lba uint64, nrZones uint16, domain byte, all bool) []byte {
	cdb := make([]byte, 16)
	cdb[0] = scsi.ZbcIn
	cdb[1] = sa
	scsi.Put48(cdb[2:], lba)
	scsi.Put16(cdb[8:], nrZones)
	cdb[10] = domain
	cdb[14] = 0x40 // NOZSRC
	if all {
		cdb[14] |= 0x80
	}
	return cdb
}

// writeLBAs writes count LBAs of a repeating pattern at lba and requires
// GOOD status.
func writeLBAs(t *testing.T, d *Device, lba, count uint64, pattern byte) {
	t.Helper()
	data := make([]byte, count*uint64(d.hdr.LBASize))
	for i := range data {
		data[i] = pattern
	}
	resp := d.HandleCommand(dataOutCmd(writeCDB(lba, count), data))
	require.Equal(t, byte(scsi.StatusGood), resp.Status,
		"write lba %d count %d: asc %#04x", lba, count, resp.Asc)
}

// smrZone returns the first zone of realm k's SMR subrange.
func smrZone(d *Device, k uint32) *Zone {
	it := d.realms[k].item(d.profile.SMRType)
	return &d.zones[it.StartZone]
}
