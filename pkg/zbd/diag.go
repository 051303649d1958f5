// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import "github.com/cobaltcore-dev/dhsmr/pkg/scsi"

// RECEIVE DIAGNOSTIC RESULTS serves the supported-pages list and the Zoned
// Block Device Statistics page (14h, subpage 01h) with its eleven binary
// parameters.

const (
	diagPageSupported = 0x00
	diagPageZBDStats  = 0x14
)

// Statistics parameter codes, in reporting order.
const (
	statMaxOpenZones = iota
	statMaxExpOpenZones
	statMaxImpOpenZones
	statMinEmptyZones
	statMaxNonSeqZones
	statZonesEmptied
	statSuboptWrites
	statCmdsAboveOpt
	statFailedExpOpens
	statReadRuleFails
	statWriteRuleFails
	nrStatParams
)

func (d *Device) statValue(code int) uint64 {
	switch code {
	case statMaxOpenZones:
		return uint64(d.stats.maxOpenZones)
	case statMaxExpOpenZones:
		return uint64(d.stats.maxExpOpenZones)
	case statMaxImpOpenZones:
		return uint64(d.stats.maxImpOpenZones)
	case statMinEmptyZones:
		return uint64(d.stats.minEmptyZones)
	case statMaxNonSeqZones:
		return uint64(d.stats.maxNonSeqZones)
	case statZonesEmptied:
		return d.stats.zonesEmptied
	case statSuboptWrites:
		return d.stats.suboptWrites
	case statCmdsAboveOpt:
		return d.stats.cmdsAboveOpt
	case statFailedExpOpens:
		return d.stats.failedExpOpens
	case statReadRuleFails:
		return d.stats.readRuleFails
	case statWriteRuleFails:
		return d.stats.writeRuleFails
	}
	return 0
}

func (d *Device) handleReceiveDiagnostic(cmd *scsi.Command) scsi.Response {
	if cmd.GetCDB(1)&0x01 == 0 { // PCV
		return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
	}
	allocLen := int(scsi.Get16(cmd.CDB[3:]))
	var buf []byte
	switch cmd.GetCDB(2) {
	case diagPageSupported:
		buf = []byte{0x00, 0x00, 0x00, 0x02, diagPageSupported, diagPageZBDStats}
	case diagPageZBDStats:
		buf = d.zbdStatsPage()
	default:
		return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
	}
	if allocLen < len(buf) {
		buf = buf[:allocLen]
	}
	cmd.Write(buf)
	return cmd.Ok()
}

// zbdStatsPage builds the log-page-shaped statistics payload: a 4-byte
// page header followed by eleven 12-byte binary parameters.
func (d *Device) zbdStatsPage() []byte {
	const paramSize = 12
	buf := make([]byte, 4+nrStatParams*paramSize)
	buf[0] = diagPageZBDStats
	buf[1] = 0x01 // subpage
	scsi.Put16(buf[2:], uint16(nrStatParams*paramSize))
	off := 4
	for code := 0; code < nrStatParams; code++ {
		rec := buf[off:]
		scsi.Put16(rec[0:], uint16(code))
		rec[2] = 0x03 // binary format
		rec[3] = 8
		scsi.Put64(rec[4:], d.statValue(code))
		off += paramSize
	}
	return buf
}
