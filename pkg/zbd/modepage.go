// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import "github.com/cobaltcore-dev/dhsmr/pkg/scsi"

// Mode pages: R/W recovery (01h), caching (08h), control (0Ah) and the
// vendor zone-domains control page (3Dh/08h) carrying FSNOZ, URSWRZ and
// MAX ACTIVATION.

const (
	modePageRWRecovery = 0x01
	modePageCaching    = 0x08
	modePageControl    = 0x0a
	modePageZDControl  = 0x3d
	modeSubpageZD      = 0x08
	modePageAll        = 0x3f
)

func rwRecoveryPage() []byte {
	p := make([]byte, 12)
	p[0] = modePageRWRecovery
	p[1] = 10
	return p
}

func cachingPage() []byte {
	p := make([]byte, 20)
	p[0] = modePageCaching
	p[1] = 18
	p[2] = 0x04 // WCE
	return p
}

func controlPage() []byte {
	p := make([]byte, 12)
	p[0] = modePageControl
	p[1] = 10
	p[2] = 0x02 // GLTSD
	p[5] = 0x40 // TAS
	return p
}

// zdControlPage serializes the current FSNOZ / URSWRZ / MAX ACTIVATION.
func (d *Device) zdControlPage() []byte {
	p := make([]byte, 20)
	p[0] = modePageZDControl | 0x40 // SPF
	p[1] = modeSubpageZD
	scsi.Put16(p[2:], 16)
	scsi.Put32(p[4:], d.hdr.FSNOZ)
	p[10] = boolByte(d.hdr.URSWRZ)
	scsi.Put16(p[16:], uint16(d.hdr.MaxAct))
	return p
}

func (d *Device) handleModeSense(cmd *scsi.Command) scsi.Response {
	ten := cmd.Op() == scsi.ModeSense10
	page := cmd.GetCDB(2) & 0x3f
	subpage := cmd.GetCDB(3)

	var pgs []byte
	switch {
	case page == modePageAll:
		pgs = append(pgs, rwRecoveryPage()...)
		pgs = append(pgs, cachingPage()...)
		pgs = append(pgs, controlPage()...)
		if d.hdr.DevType == DevZoneDomains {
			pgs = append(pgs, d.zdControlPage()...)
		}
	case page == modePageRWRecovery && subpage == 0:
		pgs = rwRecoveryPage()
	case page == modePageCaching && subpage == 0:
		pgs = cachingPage()
	case page == modePageControl && subpage == 0:
		pgs = controlPage()
	case page == modePageZDControl && subpage == modeSubpageZD && d.hdr.DevType == DevZoneDomains:
		pgs = d.zdControlPage()
	default:
		return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
	}

	var hdr []byte
	if ten {
		hdr = make([]byte, 8)
		scsi.Put16(hdr[0:], uint16(len(pgs)+6))
		hdr[3] = 0x10 // DPO/FUA
	} else {
		hdr = make([]byte, 4)
		hdr[0] = byte(len(pgs) + 3)
		hdr[2] = 0x10
	}
	cmd.Write(append(hdr, pgs...))
	return cmd.Ok()
}

func (d *Device) handleModeSelect(cmd *scsi.Command) scsi.Response {
	ten := cmd.Op() == scsi.ModeSelect10
	if cmd.GetCDB(1)&0x10 == 0 { // PF must be set
		return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
	}
	var allocLen int
	hdrLen := 4
	if ten {
		hdrLen = 8
		allocLen = int(scsi.Get16(cmd.CDB[7:]))
	} else {
		allocLen = int(cmd.GetCDB(4))
	}
	if allocLen == 0 {
		return cmd.Ok()
	}
	buf := make([]byte, allocLen)
	n, _ := cmd.Read(buf)
	if n < allocLen {
		return d.respond(cmd, illegalReq(scsi.AscParameterListLengthError))
	}
	if len(buf) < hdrLen+2 {
		return d.respond(cmd, illegalReq(scsi.AscParameterListLengthError))
	}

	pg := buf[hdrLen:]
	page := pg[0] & 0x3f
	spf := pg[0]&0x40 != 0
	if !spf || page != modePageZDControl || pg[1] != modeSubpageZD {
		// Only the zone-domains control page is writable.
		return d.respond(cmd, senseErr(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInParameterList))
	}
	if d.hdr.DevType != DevZoneDomains || len(pg) < 20 {
		return d.respond(cmd, senseErr(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInParameterList))
	}

	fsnoz := scsi.Get32(pg[4:])
	urswrz := pg[10] != 0
	maxAct := uint32(scsi.Get16(pg[16:]))

	if fsnoz != d.hdr.FSNOZ {
		if !d.profile.ModifyFSNOZ {
			return d.respond(cmd, senseErr(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInParameterList))
		}
		d.hdr.FSNOZ = fsnoz
	}
	if urswrz != d.hdr.URSWRZ {
		if !d.profile.ModifyURSWRZ {
			return d.respond(cmd, senseErr(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInParameterList))
		}
		d.hdr.URSWRZ = urswrz
	}
	if maxAct != d.hdr.MaxAct {
		if !d.profile.ModifyMaxActivation {
			return d.respond(cmd, senseErr(scsi.SenseIllegalRequest, scsi.AscInvalidFieldInParameterList))
		}
		d.hdr.MaxAct = maxAct
	}
	return cmd.Ok()
}
