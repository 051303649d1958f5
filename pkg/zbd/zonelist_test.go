// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// listIndices walks a list head to tail.
func listIndices(d *Device, l *zoneList) []uint32 {
	var out []uint32
	for z := d.listFirst(l); z != nil; z = d.listNext(z) {
		out = append(out, d.zoneIdxOf(z))
	}
	return out
}

func TestZoneListPushRemove(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	l := &zoneList{head: nilIdx, tail: nilIdx}

	smr := &d.domains[1]
	base := d.zoneIndex(smr.Start)
	z0, z1, z2 := &d.zones[base], &d.zones[base+1], &d.zones[base+2]

	// Detach them from the seq-active list first.
	d.remove(&d.seqActive, z0)
	d.remove(&d.seqActive, z1)
	d.remove(&d.seqActive, z2)
	assert.False(t, z0.linked())

	d.pushTail(l, z0)
	d.pushTail(l, z1)
	d.pushHead(l, z2)
	assert.Equal(t, []uint32{base + 2, base, base + 1}, listIndices(d, l))
	assert.Equal(t, uint32(3), l.size)

	// Remove the middle element: neighbors relink.
	d.remove(l, z0)
	assert.Equal(t, []uint32{base + 2, base + 1}, listIndices(d, l))
	assert.Equal(t, uint32(0), z0.prev)
	assert.Equal(t, uint32(0), z0.next)

	// Remove head, then tail, list drains to the empty sentinel.
	d.remove(l, z2)
	d.remove(l, z1)
	assert.True(t, l.empty())
	assert.Equal(t, nilIdx, l.head)
	assert.Equal(t, nilIdx, l.tail)
}

func TestZoneListIndexZeroMember(t *testing.T) {
	// A sole member at zone index 0 must still read as linked: its links
	// are (nilIdx, nilIdx), never the (0,0) unlinked sentinel.
	d := newTestDevice(t, "ZONE_DOM")
	l := &zoneList{head: nilIdx, tail: nilIdx}
	z0 := &d.zones[0]
	require.False(t, z0.linked())
	d.pushHead(l, z0)
	assert.True(t, z0.linked())
	assert.Equal(t, nilIdx, z0.prev)
	assert.Equal(t, nilIdx, z0.next)
	d.remove(l, z0)
	assert.False(t, z0.linked())
}

func TestUnlinkByCondRouting(t *testing.T) {
	d := newTestDevice(t, "ZONE_DOM")
	z := smrZone(d, 0)
	require.Equal(t, CondEmpty, z.Cond)
	before := d.seqActive.size
	d.unlinkByCond(z)
	assert.Equal(t, before-1, d.seqActive.size)
	// Put it back so the device invariants hold again.
	d.pushTail(&d.seqActive, z)
	checkInvariants(t, d)
}
