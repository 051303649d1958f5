// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cobaltcore-dev/dhsmr/pkg/scsi"
)

func TestHeaderRoundTrip(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	require.NoError(t, d.Flush())

	h, err := decodeHeader(d.st.meta)
	require.NoError(t, err)
	assert.Equal(t, d.hdr.MetaSize, h.MetaSize)
	assert.Equal(t, d.hdr.FileSize, h.FileSize)
	assert.Equal(t, DevZoneDomains, h.DevType)
	assert.Equal(t, ModelZD, h.Model)
	assert.Equal(t, d.hdr.NrZones, h.NrZones)
	assert.Equal(t, d.hdr.NrRealms, h.NrRealms)
	assert.Equal(t, d.hdr.ZoneSize, h.ZoneSize)
	assert.Equal(t, d.cfg.Raw, h.CfgString)
	assert.Equal(t, d.hdr.Serial, h.Serial)
}

func TestMetaPersistsZoneState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backing.img")
	raw := "dhsmr/type-ZONE_DOM/" + testOpts + "@" + path
	d, err := Open(raw, testSize)
	require.NoError(t, err)

	z := smrZone(d, 1)
	writeLBAs(t, d, z.Start, 3, 0x42)
	resp := d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaCloseZone, z.Start, 1, false), 0))
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	target := z.Start
	require.NoError(t, d.Close())

	d, err = Open(raw, 0)
	require.NoError(t, err)
	defer d.Close()
	z = d.zoneAt(target)
	assert.Equal(t, CondClosed, z.Cond)
	assert.Equal(t, target+3, z.WP)
	assert.Equal(t, uint32(1), d.closed.size)
	checkInvariants(t, d)
}

func TestMagicMismatchDetected(t *testing.T) {
	buf := make([]byte, headerSize)
	copy(buf, "XXXX")
	_, err := decodeHeader(buf)
	assert.Error(t, err)
}

func TestCorruptHeaderTriggersReformat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backing.img")
	raw := "dhsmr/type-ZONE_DOM/" + testOpts + "@" + path
	d, err := Open(raw, testSize)
	require.NoError(t, err)
	serial := d.hdr.Serial
	require.NoError(t, d.Close())

	// Scribble over the magic.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xde, 0xad, 0xbe, 0xef}, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	d, err = Open(raw, testSize)
	require.NoError(t, err)
	defer d.Close()
	assert.NotEqual(t, serial, d.hdr.Serial, "corruption must reformat")
	checkInvariants(t, d)
}

func TestCheckIsNonDestructive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backing.img")
	raw := "dhsmr/type-ZONE_DOM/" + testOpts + "@" + path
	d, err := Open(raw, testSize)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	require.NoError(t, Check(raw))

	// Corrupt the zone-count field: Check reports the fault but must not
	// rewrite anything.
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	require.NoError(t, err)
	bad := make([]byte, 4)
	scsi.Put32(bad, 9999)
	_, err = f.WriteAt(bad, hdrOffNrZones)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	assert.Error(t, Check(raw))
	got := make([]byte, 4)
	f, err = os.Open(path)
	require.NoError(t, err)
	_, err = f.ReadAt(got, hdrOffNrZones)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	assert.Equal(t, uint32(9999), scsi.Get32(got), "check must leave the file untouched")
}

func TestCheckMissingFile(t *testing.T) {
	raw := "dhsmr/type-ZONE_DOM@" + filepath.Join(t.TempDir(), "absent.img")
	assert.Error(t, Check(raw))
}

func TestZoneRecordRoundTrip(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	z := smrZone(d, 0)
	writeLBAs(t, d, z.Start, 2, 0x01)
	idx := d.zoneIdxOf(z)

	d.encodeZone(idx)
	rec := d.st.meta[zoneOff(d.hdr.NrRealms, idx):]
	assert.Equal(t, z.Start, scsi.Get64(rec[0:]))
	assert.Equal(t, z.Len, scsi.Get64(rec[8:]))
	assert.Equal(t, z.WP, scsi.Get64(rec[16:]))
	assert.Equal(t, byte(TypeSeqRequired), rec[24])
	assert.Equal(t, byte(CondImpOpen), rec[25])
	assert.Equal(t, z.prev, scsi.Get32(rec[28:]))
	assert.Equal(t, z.next, scsi.Get32(rec[32:]))
}
