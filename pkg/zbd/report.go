// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import "github.com/cobaltcore-dev/dhsmr/pkg/scsi"

// REPORT ZONES reporting options, CDB byte 14 bits 0..5.
const (
	rzAll       = 0x00
	rzEmpty     = 0x01
	rzImpOpen   = 0x02
	rzExpOpen   = 0x03
	rzClosed    = 0x04
	rzFull      = 0x05
	rzReadOnly  = 0x06
	rzOffline   = 0x07
	rzInactive  = 0x08
	rzRWPRecmnd = 0x10
	rzNonSeq    = 0x11
	rzGap       = 0x3e
	rzNotWP     = 0x3f

	rzPartialBit = 0x80
)

const (
	reportZonesHeaderSize = 64
	zoneDescSize          = 64
)

func (d *Device) handleReportZones(cmd *scsi.Command) scsi.Response {
	if !d.profile.zoned() {
		return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
	}
	lba := scsi.Get64(cmd.CDB[2:])
	allocLen := int(scsi.Get32(cmd.CDB[10:]))
	opts := cmd.GetCDB(14)
	partial := opts&rzPartialBit != 0
	opts &= 0x3f

	if lba >= d.hdr.LogicalCap {
		return d.respond(cmd, illegalReq(scsi.AscLbaOutOfRange))
	}

	var matched []*Zone
	for i := int(d.zoneIndex(lba)); i < len(d.zones); i++ {
		z := &d.zones[i]
		if zoneMatches(z, opts) {
			matched = append(matched, z)
		}
	}

	fit := 0
	if allocLen > reportZonesHeaderSize {
		fit = (allocLen - reportZonesHeaderSize) / zoneDescSize
	}
	n := len(matched)
	if partial && n > fit {
		n = fit
	}

	buf := make([]byte, reportZonesHeaderSize+n*zoneDescSize)
	scsi.Put32(buf[0:], uint32(len(matched)*zoneDescSize))
	scsi.Put64(buf[8:], d.hdr.LogicalCap-1)
	off := reportZonesHeaderSize
	for _, z := range matched[:n] {
		rec := buf[off:]
		rec[0] = byte(z.Type) & 0x0f
		rec[1] = byte(z.Cond) << 4
		if z.Reset {
			rec[1] |= 0x01
		}
		if z.NonSeq {
			rec[1] |= 0x02
		}
		scsi.Put64(rec[8:], z.Len)
		scsi.Put64(rec[16:], z.Start)
		scsi.Put64(rec[24:], z.WP)
		off += zoneDescSize
	}
	if allocLen < len(buf) {
		buf = buf[:allocLen]
	}
	cmd.Write(buf)
	return cmd.Ok()
}

func zoneMatches(z *Zone, opts byte) bool {
	switch opts {
	case rzAll:
		return true
	case rzEmpty:
		return z.Cond == CondEmpty
	case rzImpOpen:
		return z.Cond == CondImpOpen
	case rzExpOpen:
		return z.Cond == CondExpOpen
	case rzClosed:
		return z.Cond == CondClosed
	case rzFull:
		return z.Cond == CondFull
	case rzReadOnly:
		return z.Cond == CondReadOnly
	case rzOffline:
		return z.Cond == CondOffline
	case rzInactive:
		return z.Cond == CondInactive
	case rzRWPRecmnd:
		return z.Reset
	case rzNonSeq:
		return z.NonSeq
	case rzGap:
		return z.Type == TypeGap
	case rzNotWP:
		return z.Cond == CondNotWP
	}
	return false
}

// REPORT ZONE DOMAINS reporting options, CDB byte 14 bits 0..7.
const (
	rzdAll       = 0x00
	rzdAllActive = 0x01
	rzdActive    = 0x02
	rzdInactive  = 0x03
)

const (
	reportDomainsHeaderSize = 64
	domainDescSize          = 32
)

func (d *Device) handleReportZoneDomains(cmd *scsi.Command) scsi.Response {
	if !d.profile.zoned() {
		return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
	}
	allocLen := int(scsi.Get32(cmd.CDB[10:]))
	opts := cmd.GetCDB(14)

	type domState struct {
		dom              *Domain
		id               uint8
		active, inactive uint64
	}
	var matched []domState
	for i := range d.domains {
		ds := domState{dom: &d.domains[i], id: uint8(i)}
		base := d.zoneIndex(ds.dom.Start)
		for zi := uint64(0); zi < ds.dom.NrZones; zi++ {
			if d.zones[base+uint32(zi)].Cond.active() {
				ds.active++
			} else {
				ds.inactive++
			}
		}
		switch opts {
		case rzdAll:
		case rzdAllActive:
			if ds.inactive != 0 {
				continue
			}
		case rzdActive:
			if ds.active == 0 {
				continue
			}
		case rzdInactive:
			if ds.inactive == 0 {
				continue
			}
		default:
			return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
		}
		matched = append(matched, ds)
	}

	buf := make([]byte, reportDomainsHeaderSize+len(matched)*domainDescSize)
	scsi.Put32(buf[0:], uint32(len(matched)*domainDescSize))
	buf[8] = uint8(len(d.domains))
	buf[9] = opts
	off := reportDomainsHeaderSize
	for _, ds := range matched {
		rec := buf[off:]
		rec[0] = ds.id
		rec[1] = byte(ds.dom.Type)
		if ds.active > 0 {
			rec[2] |= 0x01
		}
		if ds.dom.SMRSide {
			rec[2] |= 0x02
		}
		scsi.Put64(rec[8:], ds.dom.Start)
		scsi.Put64(rec[16:], ds.dom.End)
		scsi.Put64(rec[24:], ds.active)
		off += domainDescSize
	}
	if allocLen < len(buf) {
		buf = buf[:allocLen]
	}
	cmd.Write(buf)
	return cmd.Ok()
}

const (
	reportRealmsHeaderSize = 64
	realmDescSize          = 80
)

func (d *Device) handleReportRealms(cmd *scsi.Command) scsi.Response {
	if !d.profile.zoned() || !d.hdr.RealmsFeat {
		return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
	}
	allocLen := int(scsi.Get32(cmd.CDB[10:]))

	buf := make([]byte, reportRealmsHeaderSize+len(d.realms)*realmDescSize)
	scsi.Put32(buf[0:], uint32(len(d.realms)*realmDescSize))
	scsi.Put32(buf[4:], d.hdr.NrRealms)
	scsi.Put32(buf[8:], realmDescSize)
	off := reportRealmsHeaderSize
	for i := range d.realms {
		r := &d.realms[i]
		rec := buf[off:]
		scsi.Put32(rec[0:], r.Number)
		rec[4] = byte(r.CurType)
		rec[5] = r.ActFlags
		rec[6] = r.Restricted
		for t := TypeConventional; t <= TypeSOBR; t++ {
			it := r.item(t)
			slot := rec[16+int(t-1)*16:]
			scsi.Put64(slot[0:], it.Start)
			scsi.Put32(slot[8:], it.Len)
			scsi.Put32(slot[12:], it.StartZone)
		}
		off += realmDescSize
	}
	if allocLen < len(buf) {
		buf = buf[:allocLen]
	}
	cmd.Write(buf)
	return cmd.Ok()
}
