// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"encoding/hex"

	"github.com/cobaltcore-dev/dhsmr/pkg/scsi"
)

const (
	inquiryVendor  = "COBALT  "
	inquiryProduct = "DHSMR EMULATED  "
	inquiryRev     = "0001"
)

func (d *Device) handleInquiry(cmd *scsi.Command) scsi.Response {
	evpd := cmd.GetCDB(1)&0x01 != 0
	page := cmd.GetCDB(2)
	if !evpd {
		if page != 0 {
			return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
		}
		return d.stdInquiry(cmd)
	}
	switch page {
	case 0x00:
		return d.vpdSupported(cmd)
	case 0x80:
		return d.vpdSerial(cmd)
	case 0x83:
		return d.vpdDeviceID(cmd)
	case 0xb0:
		return d.vpdBlockLimits(cmd)
	case 0xb1:
		return d.vpdBlockDevChars(cmd)
	case 0xb6:
		if d.profile.zoned() {
			return d.vpdZonedChars(cmd)
		}
	}
	return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
}

// peripheralType: host-managed devices have their own device type code;
// everything else reports a plain block device.
func (d *Device) peripheralType() byte {
	if d.hdr.DevType == DevHostManaged {
		return 0x14
	}
	return 0x00
}

func (d *Device) stdInquiry(cmd *scsi.Command) scsi.Response {
	buf := make([]byte, 36)
	buf[0] = d.peripheralType()
	buf[2] = 0x06 // SPC-4
	buf[3] = 0x02 // response data format
	buf[4] = 31
	buf[7] = 0x02 // CmdQue
	copy(buf[8:16], inquiryVendor)
	copy(buf[16:32], inquiryProduct)
	copy(buf[32:36], inquiryRev)
	cmd.Write(buf)
	return cmd.Ok()
}

func (d *Device) vpdSupported(cmd *scsi.Command) scsi.Response {
	pages := []byte{0x00, 0x80, 0x83, 0xb0, 0xb1}
	if d.profile.zoned() {
		pages = append(pages, 0xb6)
	}
	buf := make([]byte, 4+len(pages))
	buf[0] = d.peripheralType()
	buf[3] = byte(len(pages))
	copy(buf[4:], pages)
	cmd.Write(buf)
	return cmd.Ok()
}

// serialString is the persisted per-device serial minted at format time.
func (d *Device) serialString() string {
	return hex.EncodeToString(d.hdr.Serial[:8])
}

func (d *Device) vpdSerial(cmd *scsi.Command) scsi.Response {
	serial := d.serialString()
	buf := make([]byte, 4+len(serial))
	buf[0] = d.peripheralType()
	buf[1] = 0x80
	buf[3] = byte(len(serial))
	copy(buf[4:], serial)
	cmd.Write(buf)
	return cmd.Ok()
}

func (d *Device) vpdDeviceID(cmd *scsi.Command) scsi.Response {
	buf := make([]byte, 4, 64)
	buf[0] = d.peripheralType()
	buf[1] = 0x83

	// T10 vendor identification.
	t10 := make([]byte, 4, 4+8+16)
	t10[0] = 0x02 // ASCII
	t10[1] = 0x01 // T10 vendor id
	t10 = append(t10, inquiryVendor...)
	t10 = append(t10, d.serialString()...)
	t10[3] = byte(len(t10) - 4)
	buf = append(buf, t10...)

	// NAA registered extended, built from the serial bytes.
	naa := make([]byte, 4+16)
	naa[0] = 0x01 // binary
	naa[1] = 0x03 // NAA
	naa[3] = 16
	naa[4] = 0x60
	copy(naa[5:], d.hdr.Serial[:15])
	buf = append(buf, naa...)

	scsi.Put16(buf[2:], uint16(len(buf)-4))
	cmd.Write(buf)
	return cmd.Ok()
}

func (d *Device) vpdBlockLimits(cmd *scsi.Command) scsi.Response {
	buf := make([]byte, 64)
	buf[0] = d.peripheralType()
	buf[1] = 0xb0
	scsi.Put16(buf[2:], 60)
	buf[4] = 0x01 // WSNZ
	buf[5] = 0x01 // max compare-and-write length
	scsi.Put16(buf[6:], 1) // optimal transfer granularity
	xfer := uint32(d.hdr.ZoneSize)
	if xfer == 0 {
		xfer = 1 << 10
	}
	scsi.Put32(buf[8:], xfer)  // maximum transfer length
	scsi.Put32(buf[12:], xfer) // optimal transfer length
	scsi.Put64(buf[36:], 64)   // maximum write-same length
	cmd.Write(buf)
	return cmd.Ok()
}

func (d *Device) vpdBlockDevChars(cmd *scsi.Command) scsi.Response {
	buf := make([]byte, 64)
	buf[0] = d.peripheralType()
	buf[1] = 0xb1
	scsi.Put16(buf[2:], 60)
	scsi.Put16(buf[4:], 7200) // rotation rate
	buf[8] |= 0x02            // FUAB
	if d.hdr.DevType == DevHostAware {
		buf[8] |= 0x10 // ZONED: host-aware
	}
	if d.hdr.DevType == DevZoneDomains {
		buf[8] |= 0x20 // ZONED: domains and realms
	}
	buf[9] |= 0x01 // MUTATE supported
	cmd.Write(buf)
	return cmd.Ok()
}

func (d *Device) vpdZonedChars(cmd *scsi.Command) scsi.Response {
	buf := make([]byte, 64)
	buf[0] = d.peripheralType()
	buf[1] = 0xb6
	scsi.Put16(buf[2:], 60)
	if d.hdr.URSWRZ {
		buf[4] |= 0x01
	}
	if d.hdr.DevType == DevZoneDomains {
		caps := byte(0x02) // zone activation
		if d.hdr.RealmsFeat {
			caps |= 0x01
		}
		buf[5] = caps
	}
	scsi.Put32(buf[8:], d.hdr.OptOpen)  // optimal open seq-preferred
	scsi.Put32(buf[12:], d.hdr.OptOpen) // optimal non-seq written
	scsi.Put32(buf[16:], d.hdr.MaxOpen) // maximum open seq-required
	var types byte
	for _, dom := range d.domains {
		if dom.Type != TypeGap {
			types |= 1 << (uint8(dom.Type) - 1)
		}
	}
	buf[10] = types
	scsi.Put16(buf[20:], uint16(d.hdr.MaxAct))
	cmd.Write(buf)
	return cmd.Ok()
}
