// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import "github.com/cobaltcore-dev/dhsmr/pkg/scsi"

// Mutation changes the device personality in place: the metadata region is
// rebuilt for the target (device type, model) pair while the backing file
// and its data region stay. Data bytes are not rewritten, so zone contents
// are stale after a mutation that moves zone boundaries.

const mutationDescSize = 8

func (d *Device) handleReportMutations(cmd *scsi.Command) scsi.Response {
	allocLen := int(scsi.Get32(cmd.CDB[10:]))
	muts := Mutations()

	buf := make([]byte, 8+len(muts)*mutationDescSize)
	scsi.Put32(buf[0:], uint32(len(muts)*mutationDescSize))
	scsi.Put32(buf[4:], uint32(len(muts)))
	off := 8
	for _, p := range muts {
		rec := buf[off:]
		rec[0] = byte(p.DevType)
		rec[1] = byte(p.Model)
		if p == d.profile {
			rec[2] |= 0x01 // current personality
		}
		off += mutationDescSize
	}
	if allocLen < len(buf) {
		buf = buf[:allocLen]
	}
	cmd.Write(buf)
	return cmd.Ok()
}

func (d *Device) handleMutate(cmd *scsi.Command) scsi.Response {
	dt := DeviceType(cmd.GetCDB(2))
	model := Model(cmd.GetCDB(3))
	p, err := LookupProfile(dt, model)
	if err != nil {
		return d.respond(cmd, illegalReq(scsi.AscInvalidFieldInCdb))
	}
	if err := d.mutate(p); err != nil {
		d.log.Error().Err(err).Str("model", p.Name).Msg("mutation failed")
		return d.respond(cmd, senseErr(scsi.SenseHardwareError, scsi.AscInternalTargetFailure))
	}
	return cmd.Ok()
}

// mutate reformats metadata for the target personality, preserving the
// nominal capacity.
func (d *Device) mutate(p *Profile) error {
	size := d.hdr.PhysCap * uint64(d.hdr.LBASize)
	old := d.profile.Name
	if err := d.format(p, size); err != nil {
		return err
	}
	d.log.Info().Str("from", old).Str("to", p.Name).Msg("mutated device personality")
	d.publishEvent("mutate", p.Name)
	return nil
}
