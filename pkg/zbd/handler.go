// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"fmt"

	"github.com/cobaltcore-dev/dhsmr/pkg/scsi"
)

// HandleCommand dispatches one SCSI command against the device. The host
// runtime guarantees serial delivery; everything below runs to completion
// before the next command.
func (d *Device) HandleCommand(cmd *scsi.Command) scsi.Response {
	resp := d.dispatch(cmd)
	if d.metrics != nil {
		d.metrics.ObserveCommand(d.Name, cmd.Op(), resp)
		d.metrics.UpdateZoneGauges(d)
	}
	if resp.Status == scsi.StatusCheckCondition {
		d.log.Debug().
			Str("op", fmt.Sprintf("%#02x", cmd.Op())).
			Uint16("asc", resp.Asc).
			Msg("command failed")
	}
	return resp
}

func (d *Device) dispatch(cmd *scsi.Command) scsi.Response {
	switch cmd.Op() {
	case scsi.TestUnitReady:
		return cmd.Ok()
	case scsi.RequestSense:
		return d.handleRequestSense(cmd)
	case scsi.Inquiry:
		return d.handleInquiry(cmd)
	case scsi.ModeSense, scsi.ModeSense10:
		return d.handleModeSense(cmd)
	case scsi.ModeSelect, scsi.ModeSelect10:
		return d.handleModeSelect(cmd)
	case scsi.ReadCapacity10:
		return d.handleReadCapacity10(cmd)
	case scsi.ServiceActionIn16:
		if cmd.ServiceAction() == scsi.SaReadCapacity16 {
			return d.handleReadCapacity16(cmd)
		}
	case scsi.Read10, scsi.Read12, scsi.Read16:
		lba, count := decodeRWRange(cmd)
		return d.respond(cmd, d.doRead(lba, count, cmd.Iov))
	case scsi.Write10, scsi.Write12, scsi.Write16:
		lba, count := decodeRWRange(cmd)
		return d.respond(cmd, d.doWrite(lba, count, cmd.Iov))
	case scsi.SynchronizeCache, scsi.SynchronizeCache16:
		if err := d.Flush(); err != nil {
			return d.respond(cmd, senseErr(scsi.SenseMediumError, scsi.AscWriteError))
		}
		return cmd.Ok()
	case scsi.ReceiveDiagnostic:
		return d.handleReceiveDiagnostic(cmd)
	case scsi.Sanitize:
		return d.handleSanitize(cmd)
	case scsi.FormatUnit:
		return d.handleFormatUnit(cmd)
	case scsi.ZbcIn:
		return d.handleZbcIn(cmd)
	case scsi.ZbcOut:
		return d.handleZbcOut(cmd)
	case scsi.VariableLengthCmd:
		return d.handleVariableLength(cmd)
	}
	d.nrNHCmds++
	return cmd.NotHandled()
}

// respond translates a protocol error into CHECK CONDITION, queueing the
// deferred sense copy.
func (d *Device) respond(cmd *scsi.Command, e *scsiError) scsi.Response {
	if e == nil {
		return cmd.Ok()
	}
	d.pushSense(e.Key, e.Asc)
	return cmd.CheckCondition(e.Key, e.Asc)
}

// decodeRWRange extracts (lba, transfer length) from the 10/12/16-byte
// read and write CDB shapes.
func decodeRWRange(cmd *scsi.Command) (uint64, uint64) {
	switch cmd.Op() {
	case scsi.Read10, scsi.Write10:
		return uint64(scsi.Get32(cmd.CDB[2:])), uint64(scsi.Get16(cmd.CDB[7:]))
	case scsi.Read12, scsi.Write12:
		return uint64(scsi.Get32(cmd.CDB[2:])), uint64(scsi.Get32(cmd.CDB[6:]))
	default:
		return scsi.Get64(cmd.CDB[2:]), uint64(scsi.Get32(cmd.CDB[10:]))
	}
}

func (d *Device) handleRequestSense(cmd *scsi.Command) scsi.Response {
	buf := make([]byte, 18)
	if e, ok := d.popSense(); ok {
		buf[0] = 0x71 // deferred errors
		buf[2] = e.key
		buf[7] = 10
		buf[12] = byte(e.asc >> 8)
		buf[13] = byte(e.asc)
	} else {
		buf[0] = 0x70
		buf[7] = 10
	}
	cmd.Write(buf)
	return cmd.Ok()
}

func (d *Device) handleReadCapacity10(cmd *scsi.Command) scsi.Response {
	buf := make([]byte, 8)
	last := d.lastReportedLBA()
	if last > 0xffffffff {
		last = 0xffffffff
	}
	scsi.Put32(buf[0:], uint32(last))
	scsi.Put32(buf[4:], d.hdr.LBASize)
	cmd.Write(buf)
	return cmd.Ok()
}

func (d *Device) handleReadCapacity16(cmd *scsi.Command) scsi.Response {
	buf := make([]byte, 32)
	scsi.Put64(buf[0:], d.lastReportedLBA())
	scsi.Put32(buf[8:], d.hdr.LBASize)
	if d.hdr.DevType == DevHostManaged || d.hdr.DevType == DevHostAware {
		buf[12] |= 0x10 // RC BASIS: report the max capacity
	}
	cmd.Write(buf)
	return cmd.Ok()
}

// lastReportedLBA: zone-domains devices advertise only the CMR space; the
// zoned personalities report the whole logical range; non-zoned the
// physical capacity.
func (d *Device) lastReportedLBA() uint64 {
	if d.hdr.DevType == DevZoneDomains {
		if di := d.typeDomainID(d.cmrType()); di >= 0 {
			return d.domains[di].End
		}
	}
	return d.Capacity() - 1
}

func (d *Device) handleSanitize(cmd *scsi.Command) scsi.Response {
	sa := cmd.GetCDB(1) & 0x1f
	znr := cmd.GetCDB(1)&0x20 != 0
	if sa != scsi.SaSanitizeCryptoErase || znr {
		return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
	}
	// Cryptographic erase: every zone loses its data validity. The media
	// itself is not overwritten.
	if e := d.zoneOpAll(opReset); e != nil {
		return d.respond(cmd, e)
	}
	if err := d.Flush(); err != nil {
		return d.respond(cmd, senseErr(scsi.SenseMediumError, scsi.AscWriteError))
	}
	d.publishEvent("sanitize", "crypto-erase")
	return cmd.Ok()
}

func (d *Device) handleFormatUnit(cmd *scsi.Command) scsi.Response {
	size := d.hdr.PhysCap * uint64(d.hdr.LBASize)
	if err := d.format(d.profile, size); err != nil {
		d.log.Error().Err(err).Msg("format unit failed")
		return d.respond(cmd, senseErr(scsi.SenseHardwareError, scsi.AscInternalTargetFailure))
	}
	d.publishEvent("format", d.profile.Name)
	return cmd.Ok()
}

func (d *Device) handleZbcIn(cmd *scsi.Command) scsi.Response {
	switch cmd.ServiceAction() {
	case scsi.SaReportZones:
		return d.handleReportZones(cmd)
	case scsi.SaReportRealms:
		return d.handleReportRealms(cmd)
	case scsi.SaReportZoneDomains:
		return d.handleReportZoneDomains(cmd)
	case scsi.SaReportMutations:
		return d.handleReportMutations(cmd)
	case scsi.SaZoneActivate16:
		return d.handleZoneActivate16(cmd, false)
	case scsi.SaZoneQuery16:
		return d.handleZoneActivate16(cmd, true)
	}
	d.nrNHCmds++
	return cmd.NotHandled()
}

func (d *Device) handleZbcOut(cmd *scsi.Command) scsi.Response {
	// MUTATE is the one ZBC OUT action a non-zoned personality accepts.
	if cmd.ServiceAction() == scsi.SaMutate {
		return d.handleMutate(cmd)
	}
	if !d.profile.zoned() {
		return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
	}
	var op zoneOp
	switch cmd.ServiceAction() {
	case scsi.SaCloseZone:
		op = opClose
	case scsi.SaFinishZone:
		op = opFinish
	case scsi.SaOpenZone:
		op = opOpen
	case scsi.SaResetWritePtr:
		op = opReset
	case scsi.SaSequentializeZone:
		op = opSequentialize
	default:
		d.nrNHCmds++
		return cmd.NotHandled()
	}

	lba := scsi.Get64(cmd.CDB[2:])
	count := uint64(scsi.Get16(cmd.CDB[12:]))
	all := cmd.GetCDB(14)&0x01 != 0
	if all {
		if count != 0 {
			return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
		}
		return d.respond(cmd, d.zoneOpAll(op))
	}
	return d.respond(cmd, d.zoneOpRange(op, lba, count))
}

// handleVariableLength decodes the 32-byte ZONE ACTIVATE/QUERY CDBs.
func (d *Device) handleVariableLength(cmd *scsi.Command) scsi.Response {
	if len(cmd.CDB) < 32 {
		return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
	}
	sa := scsi.Get16(cmd.CDB[8:])
	var dryRun bool
	switch sa {
	case scsi.SaZoneActivate32:
	case scsi.SaZoneQuery32:
		dryRun = true
	default:
		d.nrNHCmds++
		return cmd.NotHandled()
	}
	p := activateParams{
		all:      cmd.GetCDB(10)&0x80 != 0,
		domainID: cmd.GetCDB(11),
		lba:      scsi.Get64(cmd.CDB[12:]),
		nrZones:  scsi.Get32(cmd.CDB[20:]),
		dryRun:   dryRun,
		bufLen:   cmd.IovLen(),
	}
	if cmd.GetCDB(10)&0x40 == 0 {
		// NOZSRC clear: the count comes from the saved FSNOZ.
		p.nrZones = d.hdr.FSNOZ
	}
	return d.finishActivate(cmd, p)
}

// handleZoneActivate16 decodes the 16-byte form with its 48-bit zone id.
func (d *Device) handleZoneActivate16(cmd *scsi.Command, dryRun bool) scsi.Response {
	if !d.profile.zoned() {
		return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
	}
	flags := cmd.GetCDB(14)
	p := activateParams{
		all:      flags&0x80 != 0,
		lba:      scsi.Get48(cmd.CDB[2:]),
		domainID: cmd.GetCDB(10),
		dryRun:   dryRun,
		bufLen:   cmd.IovLen(),
	}
	if flags&0x40 != 0 {
		p.nrZones = uint32(scsi.Get16(cmd.CDB[8:]))
	} else {
		p.nrZones = d.hdr.FSNOZ
	}
	return d.finishActivate(cmd, p)
}

func (d *Device) finishActivate(cmd *scsi.Command, p activateParams) scsi.Response {
	if !d.profile.zoned() {
		return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
	}
	res, e := d.zoneActivate(p)
	if e != nil {
		return d.respond(cmd, e)
	}
	buf := make([]byte, actResultHeaderSize+len(res.descs)*actDescSize)
	cmd.Write(res.marshal(buf))
	return cmd.Ok()
}
