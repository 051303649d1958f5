// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

// DeviceInfo is a read-only snapshot of the device geometry for operator
// tooling.
type DeviceInfo struct {
	Model        string
	DevType      string
	Serial       string
	LBASize      uint32
	PhysCapacity uint64
	LogicalCap   uint64
	ZoneSize     uint64
	NrZones      uint32
	NrConvZones  uint32
	RealmSize    uint64
	NrRealms     uint32
	SMRGain      uint32
	MaxOpen      uint32
	MaxAct       uint32
	URSWRZ       bool
	RealmsFeat   bool
	Domains      []Domain
}

func (d *Device) Info() DeviceInfo {
	info := DeviceInfo{
		Model:        d.profile.Name,
		DevType:      d.hdr.DevType.String(),
		Serial:       d.serialString(),
		LBASize:      d.hdr.LBASize,
		PhysCapacity: d.hdr.PhysCap,
		LogicalCap:   d.hdr.LogicalCap,
		ZoneSize:     d.hdr.ZoneSize,
		NrZones:      d.hdr.NrZones,
		NrConvZones:  d.hdr.NrConvZones,
		RealmSize:    d.hdr.RealmSize,
		NrRealms:     d.hdr.NrRealms,
		SMRGain:      d.hdr.SMRGain,
		MaxOpen:      d.hdr.MaxOpen,
		MaxAct:       d.hdr.MaxAct,
		URSWRZ:       d.hdr.URSWRZ,
		RealmsFeat:   d.hdr.RealmsFeat,
	}
	info.Domains = append(info.Domains, d.domains...)
	return info
}

// ZoneSummary counts zones by condition.
func (d *Device) ZoneSummary() map[string]uint32 {
	out := make(map[string]uint32)
	for i := range d.zones {
		out[d.zones[i].Cond.String()]++
	}
	return out
}
