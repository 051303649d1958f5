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

// runActivate16 issues the CDB and decodes the result header.
func runActivate16(t *testing.T, d *Device, cdb []byte) (scsi.Response, []byte) {
	t.Helper()
	cmd := dataInCmd(cdb, 4096)
	resp := d.HandleCommand(cmd)
	return resp, cmd.Iov[0][:cmd.Written()]
}

func TestActivateRealmToConventional(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	conv := &d.domains[0]
	r := &d.realms[0]
	require.Equal(t, TypeSeqRequired, r.CurType)

	convItem := *r.item(TypeConventional)
	smrItem := *r.item(TypeSeqRequired)

	cdb := activate16CDB(scsi.SaZoneActivate16, convItem.Start, uint16(convItem.Len), d.domainID(conv), false)
	resp, buf := runActivate16(t, d, cdb)
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	require.GreaterOrEqual(t, len(buf), actResultHeaderSize)

	status, errBits := buf[16], buf[17]
	assert.Equal(t, byte(0), errBits)
	assert.NotZero(t, status&actStatusActivated)
	assert.NotZero(t, status&actStatusNzpValid)
	assert.Equal(t, uint32(1), scsi.Get32(buf[8:]), "realms activated")
	assert.Equal(t, convItem.Len, scsi.Get32(buf[12:]), "zones activated")

	// Two descriptors, ordered by start LBA: the activated conventional
	// range sits below the deactivated sequential one.
	require.Equal(t, actResultHeaderSize+2*actDescSize, len(buf))
	first := buf[actResultHeaderSize:]
	assert.Equal(t, byte(TypeConventional), first[0])
	assert.Equal(t, convItem.Start, scsi.Get64(first[8:]))
	second := buf[actResultHeaderSize+actDescSize:]
	assert.Equal(t, byte(TypeSeqRequired), second[0])
	assert.Equal(t, byte(CondInactive), second[1])
	assert.Equal(t, smrItem.Start, scsi.Get64(second[8:]))

	// State: realm flipped, conv zones live, seq zones parked.
	assert.Equal(t, TypeConventional, r.CurType)
	for i := uint32(0); i < convItem.Len; i++ {
		assert.Equal(t, CondNotWP, d.zones[convItem.StartZone+i].Cond)
	}
	for i := uint32(0); i < smrItem.Len; i++ {
		z := &d.zones[smrItem.StartZone+i]
		assert.Equal(t, CondInactive, z.Cond)
		assert.Equal(t, NoWP, z.WP)
	}
	checkInvariants(t, d)
}

func TestQueryIsDryRun(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	r := &d.realms[1]
	convItem := *r.item(TypeConventional)

	cdb := activate16CDB(scsi.SaZoneQuery16, convItem.Start, uint16(convItem.Len), 0, false)
	resp, buf := runActivate16(t, d, cdb)
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	assert.Zero(t, buf[16]&actStatusActivated, "query must not set ACTIVATED")
	assert.Zero(t, buf[17])
	// Descriptors are still produced, state is untouched.
	assert.Equal(t, uint32(1), scsi.Get32(buf[8:]))
	assert.Equal(t, TypeSeqRequired, r.CurType)
	checkInvariants(t, d)
}

func TestActivateNotInactive(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	smrDom := &d.domains[1]
	r := &d.realms[0]
	smrItem := *r.item(TypeSeqRequired)

	// Open the first zone of the range about to be activated.
	openLBA := smrItem.Start
	writeLBAs(t, d, openLBA, 1, 0x99)
	require.Equal(t, CondImpOpen, d.zoneAt(openLBA).Cond)

	cdb := activate16CDB(scsi.SaZoneActivate16, smrItem.Start, uint16(smrItem.Len), d.domainID(smrDom), false)
	resp, buf := runActivate16(t, d, cdb)
	// Precondition failures are not sense errors.
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	status, errBits := buf[16], buf[17]
	assert.Zero(t, status&actStatusActivated)
	assert.NotZero(t, errBits&actErrNotInactive)
	assert.NotZero(t, status&actStatusZiwupValid)
	assert.Equal(t, openLBA, scsi.Get64(buf[24:]), "ziwup")
	checkInvariants(t, d)
}

func TestActivateNotEmpty(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	r := &d.realms[0]
	smrItem := *r.item(TypeSeqRequired)
	convItem := *r.item(TypeConventional)

	// Data in the deactivation side blocks the realm flip.
	writeLBAs(t, d, smrItem.Start, 1, 0xaa)
	resp := d.HandleCommand(dataInCmd(zbcOutCDB(scsi.SaCloseZone, smrItem.Start, 1, false), 0))
	require.Equal(t, byte(scsi.StatusGood), resp.Status)

	cdb := activate16CDB(scsi.SaZoneActivate16, convItem.Start, uint16(convItem.Len), 0, false)
	respA, buf := runActivate16(t, d, cdb)
	require.Equal(t, byte(scsi.StatusGood), respA.Status)
	assert.NotZero(t, buf[17]&actErrNotEmpty)
	assert.Equal(t, smrItem.Start, scsi.Get64(buf[24:]))
	assert.Equal(t, TypeSeqRequired, r.CurType, "realm must not flip")
	checkInvariants(t, d)
}

func TestActivateCrossDomainRejected(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	conv := &d.domains[0]
	// A range running past the end of the conventional domain.
	cdb := activate16CDB(scsi.SaZoneActivate16, conv.Start, uint16(conv.NrZones+1), 0, false)
	resp, buf := runActivate16(t, d, cdb)
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	assert.NotZero(t, buf[17]&actErrMultiDomains)
}

func TestActivateDomainIDOutOfRange(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	cdb := activate16CDB(scsi.SaZoneActivate16, 0, 1, uint8(len(d.domains)), false)
	cmd := dataInCmd(cdb, 4096)
	resp := d.HandleCommand(cmd)
	assert.Equal(t, byte(scsi.StatusCheckCondition), resp.Status)
	assert.Equal(t, uint16(scsi.AscInvalidFieldInCdb), resp.Asc)
}

func TestActivateRealmAlign(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	r := &d.realms[0]
	convItem := *r.item(TypeConventional)
	// One zone into the realm is not a realm start.
	cdb := activate16CDB(scsi.SaZoneActivate16, convItem.Start+testZoneLBAs, 1, 0, false)
	resp, buf := runActivate16(t, d, cdb)
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	assert.NotZero(t, buf[17]&actErrRealmAlign)
}

func TestActivateForbiddenTransition(t *testing.T) {
	assert.True(t, forbiddenTransition(TypeConventional, TypeSOBR))
	assert.True(t, forbiddenTransition(TypeSOBR, TypeConventional))
	assert.True(t, forbiddenTransition(TypeSeqRequired, TypeSeqPreferred))
	assert.True(t, forbiddenTransition(TypeSeqPreferred, TypeSeqRequired))
	assert.False(t, forbiddenTransition(TypeConventional, TypeSeqRequired))
	assert.False(t, forbiddenTransition(TypeSOBR, TypeSeqRequired))
}

func TestActivateAllRoundTrip(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	conv := &d.domains[0]

	// Activate the whole conventional domain, then move it back realm by
	// realm: under ALL, conventional zones block deactivation.
	cdb := activate16CDB(scsi.SaZoneActivate16, 0, 0, d.domainID(conv), true)
	resp, buf := runActivate16(t, d, cdb)
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	require.Zero(t, buf[17], "error bits: %#02x", buf[17])
	assert.Zero(t, buf[16]&actStatusNzpValid, "NZP invalid under ALL")
	for k := range d.realms {
		assert.Equal(t, TypeConventional, d.realms[k].CurType)
	}
	checkInvariants(t, d)

	smrDom := &d.domains[1]
	cdb = activate16CDB(scsi.SaZoneActivate16, 0, 0, d.domainID(smrDom), true)
	resp, buf = runActivate16(t, d, cdb)
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	assert.NotZero(t, buf[17]&actErrNotEmpty)
	assert.Equal(t, uint64(0), scsi.Get64(buf[24:]), "ziwup")
	for k := range d.realms {
		assert.Equal(t, TypeConventional, d.realms[k].CurType)
	}

	// Single-range activations let the conventional zones through.
	for k := range d.realms {
		it := *d.realms[k].item(TypeSeqRequired)
		cdb = activate16CDB(scsi.SaZoneActivate16, it.Start, uint16(it.Len), d.domainID(smrDom), false)
		resp, buf = runActivate16(t, d, cdb)
		require.Equal(t, byte(scsi.StatusGood), resp.Status)
		require.Zero(t, buf[17])
	}
	for k := range d.realms {
		assert.Equal(t, TypeSeqRequired, d.realms[k].CurType)
	}
	checkInvariants(t, d)
}

func TestActivateFSNOZDefault(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	// NOZSRC clear with FSNOZ still zero is a CDB error.
	cdb := activate16CDB(scsi.SaZoneActivate16, 0, 0, 0, false)
	cdb[14] = 0 // clear NOZSRC
	cmd := dataInCmd(cdb, 4096)
	resp := d.HandleCommand(cmd)
	assert.Equal(t, byte(scsi.StatusCheckCondition), resp.Status)
	assert.Equal(t, uint16(scsi.AscInvalidFieldInCdb), resp.Asc)
}

func TestActivate32(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	r := &d.realms[2]
	convItem := *r.item(TypeConventional)

	cdb := make([]byte, 32)
	cdb[0] = scsi.VariableLengthCmd
	cdb[7] = 0x18
	scsi.Put16(cdb[8:], scsi.SaZoneActivate32)
	cdb[10] = 0x40 // NOZSRC
	cdb[11] = 0    // conventional domain
	scsi.Put64(cdb[12:], convItem.Start)
	scsi.Put32(cdb[20:], convItem.Len)

	cmd := dataInCmd(cdb, 4096)
	resp := d.HandleCommand(cmd)
	require.Equal(t, byte(scsi.StatusGood), resp.Status)
	buf := cmd.Iov[0][:cmd.Written()]
	assert.NotZero(t, buf[16]&actStatusActivated)
	assert.Equal(t, TypeConventional, r.CurType)
	checkInvariants(t, d)
}
