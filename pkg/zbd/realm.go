// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"errors"
	"sort"
)

var (
	errBeforeRealms  = errors.New("lba below the first realm of its domain")
	errBetweenRealms = errors.New("lba not inside any realm subrange")
)

// buildDomainRealmIndex lists, per domain, the realms that own a subrange
// there, ordered by start LBA. Rebuilt from the realm table after format or load.
func (d *Device) buildDomainRealmIndex() {
	d.domainRealms = make([][]uint32, len(d.domains))
	for di := range d.domains {
		t := d.domains[di].Type
		var idx []uint32
		for ri := range d.realms {
			if d.realms[ri].item(t).Len > 0 {
				idx = append(idx, uint32(ri))
			}
		}
		sort.Slice(idx, func(a, b int) bool {
			return d.realms[idx[a]].item(t).Start < d.realms[idx[b]].item(t).Start
		})
		d.domainRealms[di] = idx
	}
}

// realmContaining finds the realm whose subrange in lba's domain holds lba.
// With requireStart set, lba must be the exact first LBA of that subrange.
func (d *Device) realmContaining(lba uint64, requireStart bool) (*Realm, error) {
	dom := d.domainOfLBA(lba)
	if dom == nil {
		return nil, errBetweenRealms
	}
	di := d.domainID(dom)
	idx := d.domainRealms[di]
	if len(idx) == 0 {
		return nil, errBetweenRealms
	}
	t := dom.Type

	// Binary search for the last realm starting at or below lba.
	lo := sort.Search(len(idx), func(i int) bool {
		return d.realms[idx[i]].item(t).Start > lba
	})
	if lo == 0 {
		return nil, errBeforeRealms
	}
	r := &d.realms[idx[lo-1]]
	it := r.item(t)
	if requireStart && it.Start != lba {
		return nil, errBetweenRealms
	}
	if lba >= it.Start+uint64(it.Len)*d.hdr.ZoneSize {
		return nil, errBetweenRealms
	}
	return r, nil
}

// buildRescaleTables fills the two per-flavor conversion tables used when a
// zone count given against one domain has to be expressed in the other
// domain's zones.
func (d *Device) buildRescaleTables() {
	cmrMax := d.nrCMRRealmZones()
	smrMax := d.nrSMRRealmZones()
	if cmrMax == 0 || smrMax == 0 {
		d.cmr2smr, d.smr2cmr = nil, nil
		return
	}
	d.cmr2smr = make([]uint32, cmrMax+1)
	for i := uint32(1); i <= cmrMax; i++ {
		d.cmr2smr[i] = rescale(i, cmrMax, smrMax)
	}
	d.smr2cmr = make([]uint32, smrMax+1)
	for i := uint32(1); i <= smrMax; i++ {
		d.smr2cmr[i] = rescale(i, smrMax, cmrMax)
	}
}

// rescale maps val in [1, oldMax] linearly onto [1, newMax] with the
// endpoints pinned, rounding to nearest.
func rescale(val, oldMax, newMax uint32) uint32 {
	if oldMax <= 1 {
		return newMax
	}
	n := (int64(newMax) - 1) * (int64(val) - int64(oldMax))
	den := int64(oldMax) - 1
	// Round half away from zero; n is <= 0 here.
	q := (2*n - den) / (2 * den)
	out := q + int64(newMax)
	if out < 1 {
		return 1
	}
	if out > int64(newMax) {
		return newMax
	}
	return uint32(out)
}

// rescaleZones converts a zone count from one flavor to the other. Counts
// between same-flavor types pass through unchanged; every type other than
// conventional and SOBR, gap included, counts as SMR flavor.
func (d *Device) rescaleZones(n uint32, from, to ZoneType) uint32 {
	fromCMR := from == TypeConventional || from == TypeSOBR
	toCMR := to == TypeConventional || to == TypeSOBR
	if fromCMR == toCMR || n == 0 {
		return n
	}
	if fromCMR {
		if n >= uint32(len(d.cmr2smr)) {
			return d.nrSMRRealmZones()
		}
		return d.cmr2smr[n]
	}
	if n >= uint32(len(d.smr2cmr)) {
		return d.nrCMRRealmZones()
	}
	return d.smr2cmr[n]
}

// nrSMRRealmZones is the SMR-side zone count of one realm.
func (d *Device) nrSMRRealmZones() uint32 {
	return uint32(d.hdr.RealmSize >> d.zoneShift)
}

// nrCMRRealmZones is the CMR-side zone count of one realm, derived from the
// capacity gain.
func (d *Device) nrCMRRealmZones() uint32 {
	if d.typeDomainID(d.cmrType()) < 0 {
		return 0
	}
	n := uint32((d.hdr.RealmSize * 100 / uint64(d.hdr.SMRGain)) >> d.zoneShift)
	if n == 0 {
		n = 1
	}
	return n
}

// cmrType is the CMR-family type of this personality.
func (d *Device) cmrType() ZoneType {
	return d.profile.CMRType
}

func (d *Device) typeDomainID(t ZoneType) int8 {
	if t == 0 || int(t) >= len(d.typeDomain) {
		return -1
	}
	return d.typeDomain[t]
}
