// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"fmt"

	"github.com/google/uuid"
)

// format lays out metadata for the given personality from scratch: domains,
// realms, zones, lists, faulty-zone injection. size is the nominal device
// capacity in bytes. The data region is never touched here; a reformat over
// an existing file leaves stale data bytes behind.
func (d *Device) format(p *Profile, size uint64) error {
	cfg := d.cfg
	lbaSize := uint64(cfg.LBASize)

	zoneSize := cfg.ZoneSize / lbaSize
	realmSize := alignUp(cfg.RealmSize/lbaSize, zoneSize)

	physCap := alignUp((size+lbaSize-1)/lbaSize, realmSize)
	nrRealms := uint32(physCap / realmSize)
	if nrRealms == 0 {
		return fmt.Errorf("device %s: size %d below one realm", d.Name, size)
	}

	d.profile = p
	d.hdr = header{
		DevType:    p.DevType,
		Model:      p.Model,
		URSWRZ:     !cfg.WPCheck,
		RealmsFeat: cfg.Realms && p.ReportRealms,
		LBASize:    cfg.LBASize,
		PhysCap:    physCap,
		ZoneSize:   zoneSize,
		RealmSize:  realmSize,
		NrRealms:   nrRealms,
		SMRGain:    cfg.SMRGain,
		MaxAct:     cfg.MaxAct,
		MaxOpen:    cfg.MaxOpen,
		OptOpen:    cfg.MaxOpen,
		CfgString:  cfg.Raw,
	}
	serial := uuid.New()
	copy(d.hdr.Serial[:], serial[:])

	d.domains = d.domains[:0]
	d.realms = make([]Realm, nrRealms)
	for i := range d.realms {
		d.realms[i].Number = uint32(i)
	}
	d.impOpen = zoneList{head: nilIdx, tail: nilIdx}
	d.expOpen = zoneList{head: nilIdx, tail: nilIdx}
	d.closed = zoneList{head: nilIdx, tail: nilIdx}
	d.seqActive = zoneList{head: nilIdx, tail: nilIdx}
	d.sense = nil
	d.stats = deviceStats{}
	// Zone linking during layout indexes zones by LBA >> zoneShift.
	d.zoneShift = d.log2ZoneSize()

	if p.zoned() {
		if err := d.layoutZoned(p); err != nil {
			return err
		}
	} else {
		d.zones = nil
		d.hdr.LogicalCap = physCap
	}

	d.hdr.NrDomains = uint8(len(d.domains))
	d.hdr.MetaSize = metaSizeFor(nrRealms, d.hdr.NrZones)
	d.hdr.FileSize = d.hdr.MetaSize + physCap*lbaSize

	if err := d.st.truncate(d.hdr.FileSize); err != nil {
		return err
	}
	if err := d.st.mapMeta(d.hdr.MetaSize); err != nil {
		return err
	}

	d.deriveRuntime()
	d.encodeMeta()
	return d.st.flush()
}

// layoutZoned places domains in the fixed order CMR half (SOBR or
// conventional) then SMR half, separated by the profile's gap zones, and
// stripes the realms across them.
func (d *Device) layoutZoned(p *Profile) error {
	zoneSize := d.hdr.ZoneSize
	nrRealms := d.hdr.NrRealms

	smrRealmZones := uint32(d.hdr.RealmSize / zoneSize)
	cmrRealmZones := uint32((d.hdr.RealmSize * 100 / uint64(d.hdr.SMRGain)) / zoneSize)
	if cmrRealmZones == 0 {
		cmrRealmZones = 1
	}

	// Which realms own a CMR-side slot, and how many slots exist in total.
	convSlots := uint32(0)
	switch p.ConvSlots {
	case convSlotsAll:
		convSlots = nrRealms
	case convSlotsReserved:
		convSlots = p.NrBotCMR + p.NrTopCMR
		if convSlots > nrRealms {
			convSlots = nrRealms
		}
	}

	nrConvZones := convSlots * cmrRealmZones
	if p.DevType == DevHostManaged || p.DevType == DevHostAware {
		if d.cfg.ConvZones > 0 {
			nrConvZones = d.cfg.ConvZones
		}
	}

	var nrZones uint32
	if nrConvZones > 0 {
		cmr := Domain{
			Start:   0,
			End:     uint64(nrConvZones)*zoneSize - 1,
			NrZones: uint64(nrConvZones),
			Type:    p.CMRType,
		}
		d.domains = append(d.domains, cmr)
		nrZones += nrConvZones + p.DomainGap
	}
	smrStart := uint64(nrZones) * zoneSize
	smrZones := nrRealms * smrRealmZones
	d.domains = append(d.domains, Domain{
		Start:   smrStart,
		End:     smrStart + uint64(smrZones)*zoneSize - 1,
		NrZones: uint64(smrZones),
		Type:    p.SMRType,
		SMRSide: true,
	})
	nrZones += smrZones

	d.hdr.NrZones = nrZones
	d.hdr.NrConvZones = nrConvZones
	d.hdr.LogicalCap = uint64(nrZones) * zoneSize

	// All zones start as gaps; realm striping below claims the domains.
	d.zones = make([]Zone, nrZones)
	for i := range d.zones {
		z := &d.zones[i]
		z.Start = uint64(i) * zoneSize
		z.Len = zoneSize
		z.WP = NoWP
		z.Type = TypeGap
		z.Cond = CondNotWP
	}

	actFlags := p.actFlags()
	smrDom := &d.domains[len(d.domains)-1]
	var cmrDom *Domain
	if nrConvZones > 0 {
		cmrDom = &d.domains[0]
	}

	for k := uint32(0); k < nrRealms; k++ {
		r := &d.realms[k]
		r.ActFlags = actFlags

		// Bottom/top-reserved classification: those realms start
		// CMR-active, the middle starts SMR-active.
		cmrActive := k < p.NrBotCMR || (p.NrTopCMR > 0 && k >= nrRealms-p.NrTopCMR)

		slot, hasSlot := cmrSlotIndex(p, k, nrRealms)
		if hasSlot && cmrDom != nil {
			it := r.item(p.CMRType)
			it.Len = cmrRealmZones
			it.Start = cmrDom.Start + uint64(slot)*uint64(cmrRealmZones)*zoneSize
			if it.Start+uint64(it.Len)*zoneSize > cmrDom.End+1 {
				// The HM conv-N override can shrink the CMR domain below
				// the slot grid; clamp the last slot.
				if it.Start > cmrDom.End {
					it.Len = 0
				} else {
					it.Len = uint32((cmrDom.End + 1 - it.Start) / zoneSize)
				}
			}
			it.StartZone = uint32(it.Start / zoneSize)
		} else if p.CMRType != 0 {
			r.ActFlags &^= 1 << (uint8(p.CMRType) - 1)
		}

		sit := r.item(p.SMRType)
		sit.Len = smrRealmZones
		sit.Start = smrDom.Start + uint64(k)*d.hdr.RealmSize
		sit.StartZone = uint32(sit.Start / zoneSize)

		if cmrActive && r.item(p.CMRType).Len > 0 {
			r.CurType = p.CMRType
		} else {
			r.CurType = p.SMRType
		}

		d.stampRealmZones(r, p.CMRType, p.CMRInitCond, r.CurType == p.CMRType)
		d.stampRealmZones(r, p.SMRType, p.SMRInitCond, r.CurType == p.SMRType)
	}

	d.trimTrailingGaps()
	d.injectFaultyZones(p)

	d.nrEmpty = 0
	for i := range d.zones {
		if d.zones[i].Cond == CondEmpty {
			d.nrEmpty++
		}
	}
	return nil
}

// cmrSlotIndex maps realm k to its CMR-domain slot. Reserved policies pack
// the bottom realms first, then the top ones.
func cmrSlotIndex(p *Profile, k, nrRealms uint32) (uint32, bool) {
	switch p.ConvSlots {
	case convSlotsAll:
		return k, true
	case convSlotsReserved:
		if k < p.NrBotCMR {
			return k, true
		}
		if p.NrTopCMR > 0 && k >= nrRealms-p.NrTopCMR {
			return p.NrBotCMR + (k - (nrRealms - p.NrTopCMR)), true
		}
	}
	return 0, false
}

// stampRealmZones types one realm subrange and sets the initial condition:
// the profile's initial condition on the active side, Inactive elsewhere.
func (d *Device) stampRealmZones(r *Realm, t ZoneType, activeCond ZoneCond, active bool) {
	if t == 0 {
		return
	}
	it := r.item(t)
	for i := uint32(0); i < it.Len; i++ {
		z := &d.zones[it.StartZone+i]
		z.Type = t
		if active {
			z.Cond = activeCond
			switch activeCond {
			case CondEmpty:
				z.WP = z.Start
			default:
				z.WP = NoWP
			}
			if z.Cond == CondEmpty && t.wpValid() {
				d.pushTail(&d.seqActive, z)
			}
		} else {
			z.Cond = CondInactive
			z.WP = NoWP
		}
	}
}

// trimTrailingGaps drops gap zones off the end of the logical space.
func (d *Device) trimTrailingGaps() {
	n := len(d.zones)
	for n > 0 && d.zones[n-1].Type == TypeGap {
		n--
	}
	if n == len(d.zones) {
		return
	}
	d.zones = d.zones[:n]
	d.hdr.NrZones = uint32(n)
	if n == 0 {
		d.hdr.LogicalCap = 0
		return
	}
	d.hdr.LogicalCap = d.zones[n-1].end()
}

// injectFaultyZones flips the configured offsets of every domain to
// read-only and offline, marking the owning realms restricted.
func (d *Device) injectFaultyZones(p *Profile) {
	if p.NrRdonlyZones == 0 && p.NrOfflineZones == 0 {
		return
	}
	for di := range d.domains {
		dom := &d.domains[di]
		base := uint32(dom.Start >> d.log2ZoneSize())
		d.injectCond(base, dom, p.RdonlyZoneOffset, p.NrRdonlyZones, CondReadOnly, realmRestrictRdonly)
		d.injectCond(base, dom, p.OfflineZoneOffset, p.NrOfflineZones, CondOffline, realmRestrictOffline)
	}
}

func (d *Device) injectCond(base uint32, dom *Domain, off, count uint32, cond ZoneCond, restrict uint8) {
	for i := uint32(0); i < count; i++ {
		idx := base + off + i
		if uint64(idx-base) >= dom.NrZones || idx >= uint32(len(d.zones)) {
			break
		}
		z := &d.zones[idx]
		if z.linked() {
			d.unlinkByCond(z)
		}
		z.Cond = cond
		z.WP = NoWP
		for ri := range d.realms {
			it := d.realms[ri].item(dom.Type)
			if it.Len > 0 && idx >= it.StartZone && idx < it.StartZone+it.Len {
				d.realms[ri].Restricted |= restrict
				break
			}
		}
	}
}

// log2ZoneSize is usable before deriveRuntime has run.
func (d *Device) log2ZoneSize() uint {
	s := uint(0)
	for z := d.hdr.ZoneSize; z > 1; z >>= 1 {
		s++
	}
	return s
}
