// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import "github.com/cobaltcore-dev/dhsmr/pkg/scsi"

// iovSlice carves [off, off+n) bytes out of an iovec without copying.
func iovSlice(iov [][]byte, off, n int) [][]byte {
	var out [][]byte
	for _, b := range iov {
		if off >= len(b) {
			off -= len(b)
			continue
		}
		b = b[off:]
		off = 0
		if len(b) > n {
			b = b[:n]
		}
		if len(b) > 0 {
			out = append(out, b)
		}
		n -= len(b)
		if n == 0 {
			break
		}
	}
	return out
}

func zeroIov(iov [][]byte) {
	for _, b := range iov {
		for i := range b {
			b[i] = 0
		}
	}
}

// readBoundary is one past the last LBA of a zone that holds valid data.
func readBoundary(z *Zone) uint64 {
	switch z.Cond {
	case CondFull:
		return z.end()
	case CondEmpty:
		return z.Start
	}
	if z.WP == NoWP {
		return z.end()
	}
	return z.WP
}

// doRead validates and serves a READ: zone-type uniformity, gap/inactive/
// offline rules under URSWRZ, and the valid-data boundary for sequential
// and SOBR zones. Bytes above the boundary come back zeroed.
func (d *Device) doRead(lba, count uint64, iov [][]byte) *scsiError {
	if lba+count > d.Capacity() || lba+count < lba {
		return illegalReq(scsi.AscLbaOutOfRange)
	}
	lbaSize := uint64(d.hdr.LBASize)
	if uint64(iovTotal(iov)) != count*lbaSize {
		return illegalReq(scsi.AscInvalidFieldInCdb)
	}
	if !d.profile.zoned() {
		return d.ioErr(d.st.preadv(d.hdr.MetaSize+lba*lbaSize, iov), scsi.AscReadError)
	}

	firstType := d.zoneAt(lba).Type
	cur := lba
	bufOff := 0
	for cur < lba+count {
		z := d.zoneAt(cur)
		n := z.end() - cur
		if max := lba + count - cur; n > max {
			n = max
		}
		chunk := iovSlice(iov, bufOff, int(n*lbaSize))

		if z.Type != firstType {
			d.stats.readRuleFails++
			return illegalReq(scsi.AscReadBoundaryViolation)
		}
		if e := d.checkReadZone(z); e != nil {
			if d.hdr.URSWRZ && z.Cond != CondOffline {
				zeroIov(chunk)
				cur += n
				bufOff += int(n * lbaSize)
				continue
			}
			d.stats.readRuleFails++
			return e
		}

		valid := z.end()
		if z.Type == TypeSeqRequired || z.Type == TypeSOBR {
			valid = readBoundary(z)
		}
		if cur >= valid {
			if !d.hdr.URSWRZ {
				d.stats.readRuleFails++
				return illegalReq(scsi.AscAttemptToReadInvalidData)
			}
			zeroIov(chunk)
		} else {
			readable := valid - cur
			if readable >= n {
				if err := d.st.preadv(d.fileOffset(cur), chunk); err != nil {
					return d.ioErr(err, scsi.AscReadError)
				}
			} else {
				lo := iovSlice(chunk, 0, int(readable*lbaSize))
				hi := iovSlice(chunk, int(readable*lbaSize), int((n-readable)*lbaSize))
				if err := d.st.preadv(d.fileOffset(cur), lo); err != nil {
					return d.ioErr(err, scsi.AscReadError)
				}
				if !d.hdr.URSWRZ {
					d.stats.readRuleFails++
					return illegalReq(scsi.AscAttemptToReadInvalidData)
				}
				zeroIov(hi)
			}
		}
		cur += n
		bufOff += int(n * lbaSize)
	}
	return nil
}

// checkReadZone applies the zone-kind read rules; boundary checks happen in
// the caller.
func (d *Device) checkReadZone(z *Zone) *scsiError {
	switch {
	case z.Type == TypeGap:
		return illegalReq(scsi.AscAttemptToAccessGapZone)
	case z.Cond == CondOffline:
		return senseErr(scsi.SenseDataProtect, scsi.AscZoneIsOffline)
	case z.Cond == CondInactive:
		return illegalReq(scsi.AscZoneIsInactive)
	}
	return nil
}

// doWrite validates and serves a WRITE: zone-kind rules, write pointer
// alignment, implicit open, then the vectored write and WP advance.
func (d *Device) doWrite(lba, count uint64, iov [][]byte) *scsiError {
	if lba+count > d.Capacity() || lba+count < lba {
		return illegalReq(scsi.AscLbaOutOfRange)
	}
	lbaSize := uint64(d.hdr.LBASize)
	if uint64(iovTotal(iov)) != count*lbaSize {
		return illegalReq(scsi.AscInvalidFieldInCdb)
	}
	if !d.profile.zoned() {
		return d.ioErr(d.st.pwritev(d.hdr.MetaSize+lba*lbaSize, iov), scsi.AscWriteError)
	}

	if d.nrOpen() > d.hdr.OptOpen {
		d.stats.cmdsAboveOpt++
	}

	firstConv := d.zoneAt(lba).Type == TypeConventional
	cur := lba
	bufOff := 0
	for cur < lba+count {
		z := d.zoneAt(cur)
		n := z.end() - cur
		if max := lba + count - cur; n > max {
			n = max
		}
		chunk := iovSlice(iov, bufOff, int(n*lbaSize))

		if e := d.checkWriteZoneKind(z); e != nil {
			d.stats.writeRuleFails++
			return e
		}
		if (z.Type == TypeConventional) != firstConv {
			d.stats.writeRuleFails++
			return illegalReq(scsi.AscWriteBoundaryViolation)
		}
		if e := d.checkWriteZoneWP(z, cur); e != nil {
			d.stats.writeRuleFails++
			return e
		}

		if z.Type.wpValid() && !z.Cond.open() && z.Cond != CondFull {
			d.impOpenZone(z)
		}
		if z.Type == TypeSeqPreferred && z.Cond.open() && z.WP != NoWP && cur != z.WP {
			d.stats.suboptWrites++
			z.NonSeq = true
		}

		if err := d.st.pwritev(d.fileOffset(cur), chunk); err != nil {
			return d.ioErr(err, scsi.AscWriteError)
		}
		if z.Cond != CondFull {
			d.advanceWP(z, cur, n)
		}
		d.noteOpenHighWater()
		d.noteNonSeqHighWater()

		cur += n
		bufOff += int(n * lbaSize)
	}
	return nil
}

// checkWriteZoneKind rejects zones no write may ever land in.
func (d *Device) checkWriteZoneKind(z *Zone) *scsiError {
	switch {
	case z.Type == TypeGap:
		return illegalReq(scsi.AscAttemptToAccessGapZone)
	case z.Cond == CondOffline:
		return senseErr(scsi.SenseDataProtect, scsi.AscZoneIsOffline)
	case z.Cond == CondInactive:
		return illegalReq(scsi.AscZoneIsInactive)
	case z.Cond == CondReadOnly:
		return senseErr(scsi.SenseDataProtect, scsi.AscZoneIsReadOnly)
	}
	return nil
}

// checkWriteZoneWP enforces the write pointer rules at lba.
func (d *Device) checkWriteZoneWP(z *Zone, lba uint64) *scsiError {
	switch z.Type {
	case TypeSeqRequired:
		if z.Cond == CondFull || lba != z.WP {
			return illegalReq(scsi.AscUnalignedWriteCommand)
		}
	case TypeSOBR:
		// A full SOBR zone has no pointer and accepts rewrites anywhere.
		if z.Cond != CondFull && lba > z.WP {
			return illegalReq(scsi.AscUnalignedWriteCommand)
		}
	}
	return nil
}

func (d *Device) noteNonSeqHighWater() {
	var n uint32
	for i := range d.zones {
		if d.zones[i].NonSeq {
			n++
		}
	}
	if n > d.stats.maxNonSeqZones {
		d.stats.maxNonSeqZones = n
	}
}

func iovTotal(iov [][]byte) int {
	n := 0
	for _, b := range iov {
		n += len(b)
	}
	return n
}

// ioErr converts a backing-store fault into the internal-failure sense.
func (d *Device) ioErr(err error, asc uint16) *scsiError {
	if err == nil {
		return nil
	}
	d.log.Error().Err(err).Msg("backing store I/O failed")
	return senseErr(scsi.SenseMediumError, asc)
}
