// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"fmt"

	"github.com/cobaltcore-dev/dhsmr/pkg/scsi"
)

// scsiError is a host-visible failure: a sense key plus additional sense
// code. It never wraps process-level faults.
type scsiError struct {
	Key byte
	Asc uint16
}

func (e *scsiError) Error() string {
	return fmt.Sprintf("sense %#x asc %#04x", e.Key, e.Asc)
}

func senseErr(key byte, asc uint16) *scsiError {
	return &scsiError{Key: key, Asc: asc}
}

func illegalReq(asc uint16) *scsiError {
	return senseErr(scsi.SenseIllegalRequest, asc)
}

// zoneOp discriminates the ZBC OUT zone operations.
type zoneOp uint8

const (
	opClose zoneOp = iota
	opFinish
	opOpen
	opReset
	opSequentialize
)

// condSense maps a non-actionable zone condition to its dedicated sense.
func condSense(c ZoneCond) *scsiError {
	switch c {
	case CondInactive:
		return illegalReq(scsi.AscZoneIsInactive)
	case CondOffline:
		return senseErr(scsi.SenseDataProtect, scsi.AscZoneIsOffline)
	case CondReadOnly:
		return senseErr(scsi.SenseDataProtect, scsi.AscZoneIsReadOnly)
	}
	return nil
}

// setEmpty resets a write-pointer zone to Empty and links it back into the
// seq-active list. The caller has already unlinked it.
func (d *Device) setEmpty(z *Zone) {
	z.Cond = CondEmpty
	z.WP = z.Start
	z.Reset = false
	z.NonSeq = false
	d.pushTail(&d.seqActive, z)
	d.nrEmpty++
}

// setFull moves a write-pointer zone to Full with the type's full-WP
// encoding and links it into the seq-active list.
func (d *Device) setFull(z *Zone) {
	z.Cond = CondFull
	if z.Type == TypeSOBR {
		z.WP = NoWP
	} else {
		z.WP = z.end()
	}
	d.pushTail(&d.seqActive, z)
}

// closeZone moves an open zone to Closed, or back to Empty when nothing was
// written.
func (d *Device) closeZone(z *Zone) {
	if !z.Cond.open() {
		return
	}
	d.unlinkByCond(z)
	if z.WP == z.Start {
		d.setEmpty(z)
	} else {
		z.Cond = CondClosed
		d.pushTail(&d.closed, z)
	}
}

// finishZone fills a zone regardless of its write pointer.
func (d *Device) finishZone(z *Zone) {
	switch z.Cond {
	case CondEmpty:
		d.unlinkByCond(z)
		d.nrEmpty--
	case CondImpOpen, CondExpOpen, CondClosed:
		d.unlinkByCond(z)
	case CondFull:
		return
	default:
		return
	}
	d.setFull(z)
}

// resetZone returns a zone to Empty (conventional zones stay NotWP).
func (d *Device) resetZone(z *Zone) {
	if z.Type == TypeConventional {
		z.Cond = CondNotWP
		z.WP = NoWP
		return
	}
	switch z.Cond {
	case CondEmpty:
		return
	case CondImpOpen, CondExpOpen, CondClosed, CondFull:
		d.unlinkByCond(z)
	default:
		return
	}
	d.setEmpty(z)
	d.stats.zonesEmptied++
}

// expOpenZone explicitly opens a zone, charging the explicit-open resource
// for sequential-write-required zones.
func (d *Device) expOpenZone(z *Zone) *scsiError {
	switch z.Cond {
	case CondExpOpen, CondFull:
		return nil
	case CondEmpty, CondClosed, CondImpOpen:
	default:
		return condSense(z.Cond)
	}
	if z.Type == TypeSeqRequired && d.expOpen.size+1 > d.hdr.MaxOpen {
		d.stats.failedExpOpens++
		return illegalReq(scsi.AscInsufficientZoneResources)
	}
	wasEmpty := z.Cond == CondEmpty
	d.unlinkByCond(z)
	if wasEmpty {
		d.nrEmpty--
	}
	z.Cond = CondExpOpen
	d.pushTail(&d.expOpen, z)
	d.noteOpenHighWater()
	return nil
}

// impOpenZone implicitly opens a zone on first write, evicting older
// implicitly open zones when the open-resource limit is hit.
func (d *Device) impOpenZone(z *Zone) {
	if z.Type == TypeSeqRequired && d.nrOpen() >= d.hdr.MaxOpen {
		d.evictImpOpen()
	}
	wasEmpty := z.Cond == CondEmpty
	d.unlinkByCond(z)
	if wasEmpty {
		d.nrEmpty--
	}
	z.Cond = CondImpOpen
	d.pushTail(&d.impOpen, z)
	d.noteOpenHighWater()
}

// evictImpOpen closes implicitly open zones head-first until the combined
// open count is back under the limit.
func (d *Device) evictImpOpen() {
	for d.nrOpen() >= d.hdr.MaxOpen {
		z := d.listFirst(&d.impOpen)
		if z == nil {
			return
		}
		d.closeZone(z)
	}
}

// sequentializeZone clears the non-sequential attribute of a
// sequential-write-preferred zone.
func (d *Device) sequentializeZone(z *Zone) *scsiError {
	if z.Type != TypeSeqPreferred {
		return illegalReq(scsi.AscInvalidFieldInCdb)
	}
	if e := condSense(z.Cond); e != nil {
		return e
	}
	z.NonSeq = false
	return nil
}

// applyZoneOp runs one operation against one zone. Multi-zone ranges skip
// zones the operation cannot act on; single-zone commands surface the
// dedicated sense instead.
func (d *Device) applyZoneOp(op zoneOp, z *Zone, single bool) *scsiError {
	if e := condSense(z.Cond); e != nil {
		if single {
			return e
		}
		return nil
	}
	switch op {
	case opClose:
		d.closeZone(z)
	case opFinish:
		d.finishZone(z)
	case opOpen:
		return d.expOpenZone(z)
	case opReset:
		d.resetZone(z)
	case opSequentialize:
		return d.sequentializeZone(z)
	}
	return nil
}

// zoneOpRange validates and applies an operation over (lba, count) zones.
// Application is not transactional: zones processed before a failure keep
// their new condition.
func (d *Device) zoneOpRange(op zoneOp, lba, count uint64) *scsiError {
	if lba >= d.hdr.LogicalCap || lba%d.hdr.ZoneSize != 0 {
		return illegalReq(scsi.AscInvalidFieldInCdb)
	}
	if count == 0 {
		count = 1
	}
	dom := d.domainOfLBA(lba)
	if dom == nil {
		return illegalReq(scsi.AscAttemptToAccessGapZone)
	}
	end := lba + count*d.hdr.ZoneSize
	if end > dom.End+1 {
		return illegalReq(scsi.AscInvalidFieldInCdb)
	}
	first := d.zoneIndex(lba)
	for i := uint64(0); i < count; i++ {
		z := &d.zones[first+uint32(i)]
		if z.Type == TypeGap || (z.Type == TypeConventional && op != opReset) {
			return illegalReq(scsi.AscInvalidFieldInCdb)
		}
	}
	single := count == 1
	for i := uint64(0); i < count; i++ {
		z := &d.zones[first+uint32(i)]
		if e := d.applyZoneOp(op, z, single); e != nil {
			return e
		}
	}
	return nil
}

// zoneOpAll runs the ALL-bit variant of an operation.
func (d *Device) zoneOpAll(op zoneOp) *scsiError {
	switch op {
	case opClose:
		for !d.impOpen.empty() {
			d.closeZone(d.listFirst(&d.impOpen))
		}
		for !d.expOpen.empty() {
			d.closeZone(d.listFirst(&d.expOpen))
		}
	case opFinish:
		for !d.impOpen.empty() {
			d.finishZone(d.listFirst(&d.impOpen))
		}
		for !d.expOpen.empty() {
			d.finishZone(d.listFirst(&d.expOpen))
		}
		for !d.closed.empty() {
			d.finishZone(d.listFirst(&d.closed))
		}
	case opOpen:
		return d.openAllClosed()
	case opReset:
		for i := range d.zones {
			z := &d.zones[i]
			if z.Type.wpValid() {
				switch z.Cond {
				case CondImpOpen, CondExpOpen, CondClosed, CondFull:
					d.resetZone(z)
				}
			}
		}
	case opSequentialize:
		for i := range d.zones {
			z := &d.zones[i]
			if z.Type == TypeSeqPreferred && z.NonSeq && z.Cond.active() {
				z.NonSeq = false
			}
		}
	}
	return nil
}

// openAllClosed explicitly opens every closed zone. The open-zone resource
// is pre-checked over the whole set; on shortage the command fails without
// opening anything.
func (d *Device) openAllClosed() *scsiError {
	var needed uint32
	for z := d.listFirst(&d.closed); z != nil; z = d.listNext(z) {
		if z.Type == TypeSeqRequired {
			needed++
		}
	}
	if d.expOpen.size+needed > d.hdr.MaxOpen {
		d.stats.failedExpOpens++
		return illegalReq(scsi.AscInsufficientZoneResources)
	}
	for !d.closed.empty() {
		z := d.listFirst(&d.closed)
		d.remove(&d.closed, z)
		z.Cond = CondExpOpen
		d.pushTail(&d.expOpen, z)
	}
	d.noteOpenHighWater()
	return nil
}

// advanceWP moves a zone's write pointer after a successful write of count
// LBAs at lba, filling the zone when the pointer reaches its end.
func (d *Device) advanceWP(z *Zone, lba, count uint64) {
	switch z.Type {
	case TypeSeqRequired:
		z.WP += count
	case TypeSeqPreferred, TypeSOBR:
		if lba+count > z.WP {
			z.WP = lba + count
		}
	default:
		return
	}
	if z.WP >= z.end() {
		if z.Cond.open() {
			d.unlinkByCond(z)
		} else if z.Cond == CondClosed {
			d.remove(&d.closed, z)
		}
		d.setFull(z)
	}
}
