// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cobaltcore-dev/dhsmr/pkg/scsi"
)

func TestSequentialWritesToFull(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	z := smrZone(d, 2)

	// Fill the zone in eight sequential chunks.
	const chunk = testZoneLBAs / 8
	for i := uint64(0); i < 8; i++ {
		writeLBAs(t, d, z.Start+i*chunk, chunk, 0xa5)
		checkInvariants(t, d)
	}
	assert.Equal(t, CondFull, z.Cond)
	assert.Equal(t, z.end(), z.WP)
	// Full sequential zones return to the seq-active list.
	assert.Equal(t, d.listForCond(z), &d.seqActive)
	assert.True(t, z.linked())
}

func TestUnalignedWriteFails(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	z := smrZone(d, 0)

	data := make([]byte, 8*d.hdr.LBASize)
	resp := d.HandleCommand(dataOutCmd(writeCDB(z.Start+16, 8), data))
	assert.Equal(t, byte(scsi.StatusCheckCondition), resp.Status)
	assert.Equal(t, byte(scsi.SenseIllegalRequest), resp.SenseKey)
	assert.Equal(t, uint16(scsi.AscUnalignedWriteCommand), resp.Asc)
	assert.Equal(t, CondEmpty, z.Cond, "failed write must not mutate")
	checkInvariants(t, d)
}

func TestWriteToFullZoneFails(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	z := smrZone(d, 0)
	writeLBAs(t, d, z.Start, testZoneLBAs, 0x11)
	require.Equal(t, CondFull, z.Cond)

	data := make([]byte, d.hdr.LBASize)
	resp := d.HandleCommand(dataOutCmd(writeCDB(z.Start, 1), data))
	assert.Equal(t, uint16(scsi.AscUnalignedWriteCommand), resp.Asc)
}

func TestCloseEmptyWrittenZones(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	z := smrZone(d, 0)

	// Explicit open then close with nothing written goes back to Empty.
	resp := d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaOpenZone, z.Start, 1, false), 0))
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	assert.Equal(t, CondExpOpen, z.Cond)
	resp = d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaCloseZone, z.Start, 1, false), 0))
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	assert.Equal(t, CondEmpty, z.Cond)
	checkInvariants(t, d)

	// With data written the close lands in Closed.
	writeLBAs(t, d, z.Start, 1, 0x22)
	require.Equal(t, CondImpOpen, z.Cond)
	resp = d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaCloseZone, z.Start, 1, false), 0))
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	assert.Equal(t, CondClosed, z.Cond)
	checkInvariants(t, d)
}

func TestFinishAndReset(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	z := smrZone(d, 1)
	writeLBAs(t, d, z.Start, 4, 0x33)

	resp := d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaFinishZone, z.Start, 1, false), 0))
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	assert.Equal(t, CondFull, z.Cond)
	assert.Equal(t, z.end(), z.WP)
	checkInvariants(t, d)

	resp = d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaResetWritePtr, z.Start, 1, false), 0))
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	assert.Equal(t, CondEmpty, z.Cond)
	assert.Equal(t, z.Start, z.WP)
	assert.Equal(t, uint64(1), d.stats.zonesEmptied)
	checkInvariants(t, d)
}

func TestOpenAllResourceCap(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	smr := &d.domains[1]
	base := smr.Start

	// Pre-open three zones explicitly.
	for i := uint64(0); i < 3; i++ {
		resp := d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaOpenZone, base+i*testZoneLBAs, 1, false), 0))
		require.Equal(t, byte(scsi.StatusGood), resp.Status)
	}
	// Move six more zones to Closed: one written LBA, then CLOSE.
	for i := uint64(3); i < 9; i++ {
		lba := base + i*testZoneLBAs
		writeLBAs(t, d, lba, 1, 0x44)
		resp := d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaCloseZone, lba, 1, false), 0))
		require.Equal(t, byte(scsi.StatusGood), resp.Status)
	}
	require.Equal(t, uint32(3), d.expOpen.size)
	require.Equal(t, uint32(6), d.closed.size)
	checkInvariants(t, d)

	// OPEN ALL needs 6 more explicit opens against a limit of 4: the whole
	// command fails atomically.
	resp := d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaOpenZone, 0, 0, true), 0))
	assert.Equal(t, byte(scsi.StatusCheckCondition), resp.Status)
	assert.Equal(t, uint16(scsi.AscInsufficientZoneResources), resp.Asc)
	assert.Equal(t, uint64(1), d.stats.failedExpOpens)
	assert.Equal(t, uint32(3), d.expOpen.size, "no zone may transition")
	assert.Equal(t, uint32(6), d.closed.size)
	checkInvariants(t, d)
}

func TestImplicitOpenEviction(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	smr := &d.domains[1]
	base := smr.Start

	// Five implicit opens against a limit of four: the oldest one gets
	// closed to make room.
	for i := uint64(0); i < 5; i++ {
		writeLBAs(t, d, base+i*testZoneLBAs, 1, 0x55)
		checkInvariants(t, d)
	}
	first := d.zoneAt(base)
	assert.Equal(t, CondClosed, first.Cond)
	assert.Equal(t, uint32(4), d.impOpen.size)
}

func TestCloseAll(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	smr := &d.domains[1]
	for i := uint64(0); i < 3; i++ {
		writeLBAs(t, d, smr.Start+i*testZoneLBAs, 1, 0x66)
	}
	require.Equal(t, uint32(3), d.impOpen.size)

	resp := d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaCloseZone, 0, 0, true), 0))
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	assert.Zero(t, d.impOpen.size)
	assert.Equal(t, uint32(3), d.closed.size)
	checkInvariants(t, d)
}

func TestResetAll(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	smr := &d.domains[1]
	writeLBAs(t, d, smr.Start, testZoneLBAs, 0x77) // full
	writeLBAs(t, d, smr.Start+testZoneLBAs, 4, 0x77)

	resp := d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaResetWritePtr, 0, 0, true), 0))
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	for i := uint64(0); i < smr.NrZones; i++ {
		z := d.zoneAt(smr.Start + i*testZoneLBAs)
		assert.Equal(t, CondEmpty, z.Cond)
	}
	checkInvariants(t, d)
}

func TestZoneOpRangeValidation(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	smr := &d.domains[1]

	// Unaligned start LBA.
	resp := d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaOpenZone, smr.Start+1, 1, false), 0))
	assert.Equal(t, uint16(scsi.AscInvalidFieldInCdb), resp.Asc)

	// Crossing out of the domain.
	resp = d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaOpenZone, smr.End+1-testZoneLBAs, 2, false), 0))
	assert.Equal(t, uint16(scsi.AscInvalidFieldInCdb), resp.Asc)

	// Conventional zones reject everything but reset.
	resp = d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaOpenZone, 0, 1, false), 0))
	assert.Equal(t, uint16(scsi.AscInvalidFieldInCdb), resp.Asc)
	checkInvariants(t, d)
}

func TestZoneOpOnInactiveZone(t *testing.T) {
	// In ZD_SOBR every realm starts SMR-active, so the SOBR domain is all
	// inactive address space.
	d := newTestDevice(t, "ZD_SOBR")
	sobr := d.domains[d.typeDomainID(TypeSOBR)]
	resp := d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaFinishZone, sobr.Start, 1, false), 0))
	assert.Equal(t, byte(scsi.StatusCheckCondition), resp.Status)
	assert.Equal(t, uint16(scsi.AscZoneIsInactive), resp.Asc)
	checkInvariants(t, d)
}

func TestSequentializeClearsNonSeq(t *testing.T) {
	d := newTestDevice(t, "ZD_SOBR_SWP")
	smr := d.domains[d.typeDomainID(TypeSeqPreferred)]
	z := d.zoneAt(smr.Start)

	// A non-sequential write to a seq-preferred zone sets the attribute.
	writeLBAs(t, d, z.Start, 1, 0x88)
	writeLBAs(t, d, z.Start+8, 1, 0x88)
	require.True(t, z.NonSeq)
	require.Equal(t, uint64(1), d.stats.suboptWrites)

	resp := d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaSequentializeZone, z.Start, 1, false), 0))
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	assert.False(t, z.NonSeq)
	checkInvariants(t, d)
}
