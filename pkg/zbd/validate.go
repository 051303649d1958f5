// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import "fmt"

// validate re-derives the geometry from the header and walks every zone,
// list, domain and realm invariant. Any error makes the caller reformat;
// there is no in-place repair.
func (d *Device) validate() error {
	h := &d.hdr

	if h.ZoneSize == 0 || h.ZoneSize&(h.ZoneSize-1) != 0 {
		return fmt.Errorf("zone size %d not a power of two", h.ZoneSize)
	}
	if h.RealmSize == 0 || uint64(h.NrRealms)*h.RealmSize != h.PhysCap {
		return fmt.Errorf("realm geometry: %d x %d != capacity %d", h.NrRealms, h.RealmSize, h.PhysCap)
	}
	if h.MetaSize != metaSizeFor(h.NrRealms, h.NrZones) {
		return fmt.Errorf("metadata size %d does not match %d realms / %d zones", h.MetaSize, h.NrRealms, h.NrZones)
	}
	if want := h.MetaSize + h.PhysCap*uint64(h.LBASize); h.FileSize != want {
		return fmt.Errorf("file size %d, geometry wants %d", h.FileSize, want)
	}

	if !d.profile.zoned() {
		if h.NrZones != 0 || h.NrDomains != 0 {
			return fmt.Errorf("non-zoned personality with %d zones, %d domains", h.NrZones, h.NrDomains)
		}
		return nil
	}
	if h.NrZones == 0 {
		return fmt.Errorf("zoned personality with no zones")
	}
	if h.LogicalCap != d.zones[h.NrZones-1].end() {
		return fmt.Errorf("logical capacity %d, last zone ends at %d", h.LogicalCap, d.zones[h.NrZones-1].end())
	}

	if err := d.validateZones(); err != nil {
		return err
	}
	if err := d.validateLists(); err != nil {
		return err
	}
	if err := d.validateDomains(); err != nil {
		return err
	}
	return d.validateRealms()
}

func (d *Device) validateZones() error {
	var nrConv uint32
	for i := range d.zones {
		z := &d.zones[i]
		if z.Start%d.hdr.ZoneSize != 0 {
			return fmt.Errorf("zone %d start %d not zone aligned", i, z.Start)
		}
		if z.Len == 0 || z.Len > d.hdr.ZoneSize {
			return fmt.Errorf("zone %d length %d", i, z.Len)
		}
		if i+1 < len(d.zones) && z.end() != d.zones[i+1].Start {
			return fmt.Errorf("zone %d ends at %d, zone %d starts at %d", i, z.end(), i+1, d.zones[i+1].Start)
		}
		if err := checkZoneState(z); err != nil {
			return fmt.Errorf("zone %d (lba %d): %w", i, z.Start, err)
		}
		if z.Type == TypeConventional {
			nrConv++
		}
	}
	if nrConv != d.hdr.NrConvZones && d.cmrType() == TypeConventional {
		return fmt.Errorf("%d conventional zones, header says %d", nrConv, d.hdr.NrConvZones)
	}
	return nil
}

// checkZoneState enforces the per-condition type and write pointer rules.
func checkZoneState(z *Zone) error {
	switch z.Cond {
	case CondNotWP:
		if z.Type.wpValid() {
			return fmt.Errorf("%s zone in not-wp condition", z.Type)
		}
		if z.WP != NoWP {
			return fmt.Errorf("not-wp zone with wp %d", z.WP)
		}
	case CondEmpty:
		if !z.Type.wpValid() {
			return fmt.Errorf("%s zone in empty condition", z.Type)
		}
		if z.WP != z.Start {
			return fmt.Errorf("empty zone with wp %d, start %d", z.WP, z.Start)
		}
	case CondImpOpen, CondExpOpen:
		if !z.Type.wpValid() {
			return fmt.Errorf("%s zone open", z.Type)
		}
		if z.WP < z.Start || z.WP >= z.end() {
			return fmt.Errorf("open zone wp %d outside [%d, %d)", z.WP, z.Start, z.end())
		}
	case CondClosed:
		if !z.Type.wpValid() {
			return fmt.Errorf("%s zone closed", z.Type)
		}
		if z.WP <= z.Start || z.WP >= z.end() {
			return fmt.Errorf("closed zone wp %d outside (%d, %d)", z.WP, z.Start, z.end())
		}
	case CondFull:
		switch {
		case z.Type == TypeSOBR:
			if z.WP != NoWP {
				return fmt.Errorf("full sobr zone with wp %d", z.WP)
			}
		case z.Type.sequential():
			if z.WP != z.end() {
				return fmt.Errorf("full zone wp %d, end %d", z.WP, z.end())
			}
		default:
			return fmt.Errorf("%s zone full", z.Type)
		}
	case CondInactive, CondReadOnly, CondOffline:
		if z.WP != NoWP {
			return fmt.Errorf("%s zone with wp %d", z.Cond, z.WP)
		}
	default:
		return fmt.Errorf("condition %#x", uint8(z.Cond))
	}
	return nil
}

// validateLists walks each list bounded by the zone count, checking link
// reciprocity and that membership matches condition in both directions.
func (d *Device) validateLists() error {
	type listSpec struct {
		name string
		l    *zoneList
		want func(*Zone) bool
	}
	specs := []listSpec{
		{"imp-open", &d.impOpen, func(z *Zone) bool { return z.Cond == CondImpOpen }},
		{"exp-open", &d.expOpen, func(z *Zone) bool { return z.Cond == CondExpOpen }},
		{"closed", &d.closed, func(z *Zone) bool { return z.Cond == CondClosed }},
		{"seq-active", &d.seqActive, func(z *Zone) bool {
			return z.Type.wpValid() && (z.Cond == CondEmpty || z.Cond == CondFull)
		}},
	}

	for _, s := range specs {
		var walked uint32
		prev := nilIdx
		idx := s.l.head
		for idx != nilIdx {
			if walked >= d.hdr.NrZones {
				return fmt.Errorf("list %s: cycle detected", s.name)
			}
			if idx >= d.hdr.NrZones {
				return fmt.Errorf("list %s: index %d out of range", s.name, idx)
			}
			z := &d.zones[idx]
			if z.prev != prev {
				return fmt.Errorf("list %s: zone %d prev %d, want %d", s.name, idx, z.prev, prev)
			}
			if !s.want(z) {
				return fmt.Errorf("list %s: zone %d in condition %s", s.name, idx, z.Cond)
			}
			walked++
			prev = idx
			idx = z.next
		}
		if prev != nilIdx && prev != s.l.tail || s.l.empty() != (s.l.head == nilIdx && s.l.tail == nilIdx) {
			return fmt.Errorf("list %s: tail mismatch", s.name)
		}
		if walked != s.l.size {
			return fmt.Errorf("list %s: walked %d, size says %d", s.name, walked, s.l.size)
		}
	}

	// Reverse direction: every zone whose condition demands a list must be
	// linked, everything else must be unlinked.
	for i := range d.zones {
		z := &d.zones[i]
		needsList := d.listForCond(z) != nil
		if needsList && !z.linked() && !d.isSoleListMember(z) {
			return fmt.Errorf("zone %d in condition %s not linked", i, z.Cond)
		}
		if !needsList && z.linked() {
			return fmt.Errorf("zone %d in condition %s has stale links", i, z.Cond)
		}
	}
	return nil
}

// isSoleListMember handles the zone-index-0 corner: a single-member list
// stores (nilIdx, nilIdx), never (0,0), so linked() stays reliable. The
// explicit head check is kept for clarity.
func (d *Device) isSoleListMember(z *Zone) bool {
	idx := d.zoneIdxOf(z)
	l := d.listForCond(z)
	return l != nil && l.head == idx && l.tail == idx && l.size == 1
}

func (d *Device) validateDomains() error {
	var prevEnd uint64
	var inDomains uint64
	for i := range d.domains {
		dom := &d.domains[i]
		if dom.Start%d.hdr.ZoneSize != 0 || (dom.End+1)%d.hdr.ZoneSize != 0 {
			return fmt.Errorf("domain %d range [%d, %d] not zone aligned", i, dom.Start, dom.End)
		}
		if i > 0 && dom.Start <= prevEnd {
			return fmt.Errorf("domain %d overlaps or reorders at %d", i, dom.Start)
		}
		if dom.NrZones != (dom.End+1-dom.Start)/d.hdr.ZoneSize {
			return fmt.Errorf("domain %d zone count %d does not match range", i, dom.NrZones)
		}
		for zi := uint64(0); zi < dom.NrZones; zi++ {
			z := &d.zones[d.zoneIndex(dom.Start)+uint32(zi)]
			if z.Type != dom.Type {
				return fmt.Errorf("domain %d zone at %d has type %s, want %s", i, z.Start, z.Type, dom.Type)
			}
		}
		prevEnd = dom.End
		inDomains += dom.NrZones
	}
	var gaps uint64
	for i := range d.zones {
		if d.zones[i].Type == TypeGap {
			gaps++
		}
	}
	if inDomains+gaps != uint64(d.hdr.NrZones) {
		return fmt.Errorf("%d domain zones + %d gaps != %d zones", inDomains, gaps, d.hdr.NrZones)
	}
	return nil
}

func (d *Device) validateRealms() error {
	for ri := range d.realms {
		r := &d.realms[ri]
		var active int
		for t := TypeConventional; t <= TypeSOBR; t++ {
			it := r.item(t)
			if it.Len == 0 {
				continue
			}
			di := d.typeDomainID(t)
			if di < 0 {
				return fmt.Errorf("realm %d has a %s subrange but no such domain", ri, t)
			}
			dom := &d.domains[di]
			end := it.Start + uint64(it.Len)*d.hdr.ZoneSize
			if it.Start < dom.Start || end > dom.End+1 {
				return fmt.Errorf("realm %d %s subrange [%d, %d) outside its domain", ri, t, it.Start, end)
			}
			if it.StartZone != d.zoneIndex(it.Start) {
				return fmt.Errorf("realm %d %s start zone %d, want %d", ri, t, it.StartZone, d.zoneIndex(it.Start))
			}
			if d.realmItemActive(r, t) {
				active++
				if r.CurType != t && !d.realmAllRestricted(r) {
					return fmt.Errorf("realm %d active in %s but current type is %s", ri, t, r.CurType)
				}
			}
		}
		if active > 1 {
			return fmt.Errorf("realm %d has %d active subranges", ri, active)
		}
	}
	return nil
}

// realmItemActive reports whether any zone of the subrange is neither
// inactive nor in a faulty condition.
func (d *Device) realmItemActive(r *Realm, t ZoneType) bool {
	it := r.item(t)
	for i := uint32(0); i < it.Len; i++ {
		c := d.zones[it.StartZone+i].Cond
		if c != CondInactive && c != CondReadOnly && c != CondOffline {
			return true
		}
	}
	return false
}

// realmAllRestricted reports whether every zone of the realm's current
// subrange is read-only or offline.
func (d *Device) realmAllRestricted(r *Realm) bool {
	if r.Restricted == 0 || r.CurType == 0 {
		return false
	}
	it := r.item(r.CurType)
	for i := uint32(0); i < it.Len; i++ {
		c := d.zones[it.StartZone+i].Cond
		if c != CondReadOnly && c != CondOffline {
			return false
		}
	}
	return true
}
