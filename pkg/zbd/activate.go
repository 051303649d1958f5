// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import "github.com/cobaltcore-dev/dhsmr/pkg/scsi"

// Activation result status and error bits.
const (
	actStatusActivated  = 0x01
	actStatusZiwupValid = 0x40
	actStatusNzpValid   = 0x80

	actErrNotInactive  = 0x01
	actErrNotEmpty     = 0x02
	actErrRealmAlign   = 0x04
	actErrMultiTypes   = 0x08
	actErrUnsupp       = 0x10
	actErrMultiDomains = 0x20
)

const (
	actResultHeaderSize = 40
	actDescSize         = 24
)

// actDesc is one 24-byte activation-result descriptor: the condition and
// location of a deactivated or activated zone range.
type actDesc struct {
	zoneType ZoneType
	cond     ZoneCond
	domainID uint8
	nrZones  uint32
	startLBA uint64
}

// actResult is everything ZONE ACTIVATE or ZONE QUERY reports back.
type actResult struct {
	nrRealms uint32
	nrZones  uint32
	status   uint8
	errBits  uint8
	ziwup    uint64
	descs    []actDesc
}

// activateParams carries the decoded CDB fields of ZONE ACTIVATE/QUERY.
type activateParams struct {
	lba      uint64
	nrZones  uint32
	domainID uint8
	all      bool
	dryRun   bool
	bufLen   int
}

// zoneActivate validates and, unless dry-run, performs realm activation.
// Precondition failures are not sense errors: they come back as error bits
// in the result header with ziwup pointing at the offending zone.
func (d *Device) zoneActivate(p activateParams) (*actResult, *scsiError) {
	res := &actResult{}
	if !p.all {
		res.status |= actStatusNzpValid
	}

	if int(p.domainID) >= len(d.domains) {
		return nil, illegalReq(scsi.AscInvalidFieldInCdb)
	}
	dom := &d.domains[p.domainID]
	if p.all {
		p.lba = dom.Start
		p.nrZones = uint32(dom.NrZones)
	}
	if p.nrZones == 0 || uint64(p.nrZones) > uint64(d.hdr.NrZones) {
		return nil, illegalReq(scsi.AscInvalidFieldInCdb)
	}
	if d.hdr.MaxAct != 0 && p.nrZones > d.hdr.MaxAct {
		return nil, illegalReq(scsi.AscInvalidFieldInCdb)
	}
	if p.bufLen < actResultHeaderSize {
		return nil, illegalReq(scsi.AscInvalidFieldInCdb)
	}
	if p.lba%d.hdr.ZoneSize != 0 || p.lba < dom.Start || p.lba > dom.End {
		res.errBits |= actErrRealmAlign
		return res, nil
	}
	if d.zoneAt(p.lba).Type == TypeGap {
		res.errBits |= actErrRealmAlign
		return res, nil
	}
	if d.hdr.RealmsFeat {
		if _, err := d.realmContaining(p.lba, true); err != nil {
			res.errBits |= actErrRealmAlign
			return res, nil
		}
	}
	end := p.lba + uint64(p.nrZones)*d.hdr.ZoneSize
	if end > dom.End+1 {
		res.errBits |= actErrMultiDomains
		return res, nil
	}

	realms := d.realmsOverlapping(dom, p.lba, end)
	if len(realms) == 0 {
		res.errBits |= actErrRealmAlign
		return res, nil
	}

	newType := dom.Type
	oldType := realms[0].CurType
	for _, r := range realms {
		if r.CurType != oldType {
			res.errBits |= actErrMultiTypes
			return res, nil
		}
	}
	for _, r := range realms {
		if r.CurType == newType {
			continue
		}
		if !r.canActivate(newType) || forbiddenTransition(r.CurType, newType) {
			res.errBits |= actErrUnsupp
			return res, nil
		}
	}

	// Deactivation side: every currently active zone of each realm must be
	// drained before its subrange can go inactive.
	for _, r := range realms {
		if r.CurType == newType {
			continue
		}
		it := r.item(r.CurType)
		for i := uint32(0); i < it.Len; i++ {
			z := &d.zones[it.StartZone+i]
			if !deactivatable(z, p.all) {
				res.errBits |= actErrNotEmpty
				res.status |= actStatusZiwupValid
				res.ziwup = z.Start
				return res, nil
			}
		}
	}
	// Activation side. This also covers realms already active in the
	// target type: their zones must still be in an activatable condition,
	// so an open or closed zone surfaces as NOT_INACTIVE.
	for _, r := range realms {
		it := r.item(newType)
		for i := uint32(0); i < it.Len; i++ {
			z := &d.zones[it.StartZone+i]
			if !activatable(z, p.all) {
				res.errBits |= actErrNotInactive
				res.status |= actStatusZiwupValid
				res.ziwup = z.Start
				return res, nil
			}
		}
	}

	for _, r := range realms {
		d.activateRealm(r, newType, p.dryRun, res)
	}
	if !p.dryRun {
		res.status |= actStatusActivated
	}
	return res, nil
}

// realmsOverlapping collects the realms whose subrange in dom intersects
// [lba, end).
func (d *Device) realmsOverlapping(dom *Domain, lba, end uint64) []*Realm {
	var out []*Realm
	di := d.domainID(dom)
	for _, ri := range d.domainRealms[di] {
		r := &d.realms[ri]
		it := r.item(dom.Type)
		itEnd := it.Start + uint64(it.Len)*d.hdr.ZoneSize
		if it.Start < end && lba < itEnd {
			out = append(out, r)
		}
	}
	return out
}

// forbiddenTransition rejects the direct swaps the command set disallows;
// the host routes through an intermediate type instead.
func forbiddenTransition(from, to ZoneType) bool {
	if from == TypeConventional && to == TypeSOBR || from == TypeSOBR && to == TypeConventional {
		return true
	}
	if from == TypeSeqRequired && to == TypeSeqPreferred || from == TypeSeqPreferred && to == TypeSeqRequired {
		return true
	}
	return false
}

// deactivatable: under ALL the zone must be empty or already inactive;
// single-range additionally lets conventional zones through.
func deactivatable(z *Zone, all bool) bool {
	switch z.Cond {
	case CondEmpty, CondInactive:
		return true
	case CondNotWP:
		return !all && z.Type == TypeConventional
	}
	return false
}

// activatable: the target side must be inactive, conventional, or (under
// ALL) still empty from a previous activation.
func activatable(z *Zone, all bool) bool {
	switch z.Cond {
	case CondInactive:
		return true
	case CondNotWP:
		return z.Type == TypeConventional
	case CondEmpty:
		return all
	}
	return false
}

// activateRealm deactivates the realm's current subrange and activates the
// target one, emitting the two result descriptors ordered by start LBA.
func (d *Device) activateRealm(r *Realm, newType ZoneType, dryRun bool, res *actResult) {
	oldType := r.CurType
	oldIt := r.item(oldType)
	newIt := r.item(newType)

	deact := actDesc{
		zoneType: oldType,
		cond:     CondInactive,
		domainID: uint8(d.typeDomainID(oldType)),
		nrZones:  oldIt.Len,
		startLBA: oldIt.Start,
	}
	newCond := CondEmpty
	if newType == TypeConventional {
		newCond = CondNotWP
	}
	act := actDesc{
		zoneType: newType,
		cond:     newCond,
		domainID: uint8(d.typeDomainID(newType)),
		nrZones:  newIt.Len,
		startLBA: newIt.Start,
	}

	if oldType == newType {
		// No-op realm: report the range as it stands.
		if newIt.Len > 0 {
			act.cond = d.zones[newIt.StartZone].Cond
		}
		res.descs = append(res.descs, act, act)
	} else if deact.startLBA <= act.startLBA {
		res.descs = append(res.descs, deact, act)
	} else {
		res.descs = append(res.descs, act, deact)
	}

	res.nrRealms++
	res.nrZones += newIt.Len

	if dryRun || oldType == newType {
		return
	}

	for i := uint32(0); i < oldIt.Len; i++ {
		d.deactivateZone(&d.zones[oldIt.StartZone+i])
	}
	for i := uint32(0); i < newIt.Len; i++ {
		d.activateZone(&d.zones[newIt.StartZone+i], newCond)
	}
	r.CurType = newType
}

// deactivateZone parks a zone as Inactive with no write pointer.
func (d *Device) deactivateZone(z *Zone) {
	if z.linked() {
		d.unlinkByCond(z)
	}
	if z.Cond == CondEmpty {
		d.nrEmpty--
	}
	z.Cond = CondInactive
	z.WP = NoWP
	z.NonSeq = false
	z.Reset = false
}

// activateZone brings an inactive zone into service with the type's
// initial write pointer.
func (d *Device) activateZone(z *Zone, cond ZoneCond) {
	if z.linked() {
		d.unlinkByCond(z)
	}
	z.Cond = cond
	switch cond {
	case CondEmpty:
		z.WP = z.Start
		d.nrEmpty++
		if z.Type.wpValid() {
			d.pushTail(&d.seqActive, z)
		}
	default:
		z.WP = NoWP
	}
}

// marshal writes the activation result into buf, truncating descriptors to
// the allocation length.
func (r *actResult) marshal(buf []byte) []byte {
	avail := uint32(len(r.descs) * actDescSize)
	n := actResultHeaderSize + len(r.descs)*actDescSize
	if n > len(buf) {
		n = len(buf)
	}
	out := buf[:n]
	for i := range out {
		out[i] = 0
	}
	returned := uint32(0)
	if n > actResultHeaderSize {
		returned = uint32((n - actResultHeaderSize) / actDescSize * actDescSize)
	}
	scsi.Put32(out[0:], avail)
	scsi.Put32(out[4:], returned)
	scsi.Put32(out[8:], r.nrRealms)
	scsi.Put32(out[12:], r.nrZones)
	out[16] = r.status
	out[17] = r.errBits
	scsi.Put64(out[24:], r.ziwup)

	off := actResultHeaderSize
	for _, dsc := range r.descs {
		if off+actDescSize > n {
			break
		}
		rec := out[off:]
		rec[0] = byte(dsc.zoneType)
		rec[1] = byte(dsc.cond)
		rec[2] = dsc.domainID
		scsi.Put32(rec[4:], dsc.nrZones)
		scsi.Put64(rec[8:], dsc.startLBA)
		off += actDescSize
	}
	return out
}
