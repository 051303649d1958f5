// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import "fmt"

// Model discriminates personalities within a device type.
type Model uint8

const (
	ModelGeneric      Model = 0x1 // non-zoned
	ModelHM           Model = 0x2 // host-managed SMR, CMR zones at LBA 0
	ModelHMFaulty     Model = 0x3 // host-managed with injected read-only/offline zones
	ModelHA           Model = 0x4 // host-aware
	ModelZD           Model = 0x5 // zone domains, conv + seq-required
	ModelZD1CMRBot    Model = 0x6 // zone domains, conv slots only in the bottom realm
	ModelZD1CMRBotTop Model = 0x7 // zone domains, conv slots in bottom and top realms
	ModelZDSOBR       Model = 0x8 // zone domains, SOBR + seq-required
	ModelZDSOBRSWP    Model = 0x9 // zone domains, SOBR + seq-preferred
	ModelZDFaulty     Model = 0xa // zone domains with injected read-only/offline zones
	ModelZDNoCMR      Model = 0xb // zone domains, single seq-required domain
)

func (m Model) String() string {
	if p, ok := profiles[m]; ok {
		return p.Name
	}
	return fmt.Sprintf("model-%#x", uint8(m))
}

// convSlotPolicy controls which realms get a CMR-family subrange.
type convSlotPolicy uint8

const (
	convSlotsAll convSlotPolicy = iota
	convSlotsReserved
	convSlotsNone
)

// Profile is the static feature set of one (device type, model) personality.
// Everything here is fixed at compile time; the formatter reads it once.
type Profile struct {
	Name    string
	DevType DeviceType
	Model   Model

	// CMR-family half: the type placed in the low-LBA domain, and the
	// condition its zones get when a realm is initially CMR-active.
	CMRType     ZoneType
	CMRInitCond ZoneCond
	// SMR-family half.
	SMRType     ZoneType
	SMRInitCond ZoneCond

	// Which types ZONE ACTIVATE may target.
	ActConv, ActSOBR, ActSeqReq, ActSeqPref bool

	// MODE SELECT page 3Dh/08h writability.
	ModifyURSWRZ, ModifyFSNOZ, ModifyMaxActivation bool

	// Whether REPORT REALMS is advertised and served.
	ReportRealms bool

	ConvSlots convSlotPolicy
	// Realms initially CMR-active at the bottom and top of the LBA space;
	// everything between starts SMR-active.
	NrBotCMR, NrTopCMR uint32

	// Faulty-zone injection: counts and zone offsets within each domain.
	NrRdonlyZones, RdonlyZoneOffset   uint32
	NrOfflineZones, OfflineZoneOffset uint32

	// Gap zones between consecutive domains.
	DomainGap uint32

	// Default MAXIMUM ACTIVATION in zones; 0 = unlimited.
	MaxActivation uint32
}

// zoned reports whether the personality exposes zones at all.
func (p *Profile) zoned() bool {
	return p.DevType != DevNonZoned
}

// actFlags packs the activation capabilities into the realm flag byte.
func (p *Profile) actFlags() uint8 {
	var f uint8
	if p.ActConv {
		f |= 1 << (uint8(TypeConventional) - 1)
	}
	if p.ActSeqReq {
		f |= 1 << (uint8(TypeSeqRequired) - 1)
	}
	if p.ActSeqPref {
		f |= 1 << (uint8(TypeSeqPreferred) - 1)
	}
	if p.ActSOBR {
		f |= 1 << (uint8(TypeSOBR) - 1)
	}
	return f
}

var profiles = map[Model]*Profile{
	ModelGeneric: {
		Name:    "GENERIC",
		DevType: DevNonZoned,
		Model:   ModelGeneric,
	},
	ModelHM: {
		Name:        "HM_ZONED",
		DevType:     DevHostManaged,
		Model:       ModelHM,
		CMRType:     TypeConventional,
		CMRInitCond: CondNotWP,
		SMRType:     TypeSeqRequired,
		SMRInitCond: CondEmpty,
		ConvSlots:   convSlotsReserved,
		NrBotCMR:    1,
	},
	ModelHMFaulty: {
		Name:              "HM_ZONED_FAULTY",
		DevType:           DevHostManaged,
		Model:             ModelHMFaulty,
		CMRType:           TypeConventional,
		CMRInitCond:       CondNotWP,
		SMRType:           TypeSeqRequired,
		SMRInitCond:       CondEmpty,
		ConvSlots:         convSlotsReserved,
		NrBotCMR:          1,
		NrRdonlyZones:     2,
		RdonlyZoneOffset:  3,
		NrOfflineZones:    2,
		OfflineZoneOffset: 6,
	},
	ModelHA: {
		Name:        "HA_ZONED",
		DevType:     DevHostAware,
		Model:       ModelHA,
		CMRType:     TypeConventional,
		CMRInitCond: CondNotWP,
		SMRType:     TypeSeqPreferred,
		SMRInitCond: CondEmpty,
		ConvSlots:   convSlotsReserved,
		NrBotCMR:    1,
	},
	ModelZD: {
		Name:                "ZONE_DOM",
		DevType:             DevZoneDomains,
		Model:               ModelZD,
		CMRType:             TypeConventional,
		CMRInitCond:         CondNotWP,
		SMRType:             TypeSeqRequired,
		SMRInitCond:         CondEmpty,
		ActConv:             true,
		ActSeqReq:           true,
		ModifyURSWRZ:        true,
		ModifyFSNOZ:         true,
		ModifyMaxActivation: true,
		ReportRealms:        true,
		ConvSlots:           convSlotsAll,
		DomainGap:           2,
	},
	ModelZD1CMRBot: {
		Name:         "ZD_1CMR_BOT",
		DevType:      DevZoneDomains,
		Model:        ModelZD1CMRBot,
		CMRType:      TypeConventional,
		CMRInitCond:  CondNotWP,
		SMRType:      TypeSeqRequired,
		SMRInitCond:  CondEmpty,
		ActConv:      true,
		ActSeqReq:    true,
		ModifyFSNOZ:  true,
		ReportRealms: true,
		ConvSlots:    convSlotsReserved,
		NrBotCMR:     1,
		DomainGap:    2,
	},
	ModelZD1CMRBotTop: {
		Name:         "ZD_1CMR_BOT_TOP",
		DevType:      DevZoneDomains,
		Model:        ModelZD1CMRBotTop,
		CMRType:      TypeConventional,
		CMRInitCond:  CondNotWP,
		SMRType:      TypeSeqRequired,
		SMRInitCond:  CondEmpty,
		ActConv:      true,
		ActSeqReq:    true,
		ModifyFSNOZ:  true,
		ReportRealms: true,
		ConvSlots:    convSlotsReserved,
		NrBotCMR:     1,
		NrTopCMR:     1,
		DomainGap:    2,
	},
	ModelZDSOBR: {
		Name:                "ZD_SOBR",
		DevType:             DevZoneDomains,
		Model:               ModelZDSOBR,
		CMRType:             TypeSOBR,
		CMRInitCond:         CondEmpty,
		SMRType:             TypeSeqRequired,
		SMRInitCond:         CondEmpty,
		ActSOBR:             true,
		ActSeqReq:           true,
		ModifyURSWRZ:        true,
		ModifyFSNOZ:         true,
		ModifyMaxActivation: true,
		ReportRealms:        true,
		ConvSlots:           convSlotsAll,
		DomainGap:           2,
	},
	ModelZDSOBRSWP: {
		Name:         "ZD_SOBR_SWP",
		DevType:      DevZoneDomains,
		Model:        ModelZDSOBRSWP,
		CMRType:      TypeSOBR,
		CMRInitCond:  CondEmpty,
		SMRType:      TypeSeqPreferred,
		SMRInitCond:  CondEmpty,
		ActSOBR:      true,
		ActSeqPref:   true,
		ModifyURSWRZ: true,
		ModifyFSNOZ:  true,
		ReportRealms: true,
		ConvSlots:    convSlotsAll,
		DomainGap:    2,
	},
	ModelZDFaulty: {
		Name:              "ZD_FAULTY",
		DevType:           DevZoneDomains,
		Model:             ModelZDFaulty,
		CMRType:           TypeConventional,
		CMRInitCond:       CondNotWP,
		SMRType:           TypeSeqRequired,
		SMRInitCond:       CondEmpty,
		ActConv:           true,
		ActSeqReq:         true,
		ModifyFSNOZ:       true,
		ReportRealms:      true,
		ConvSlots:         convSlotsAll,
		DomainGap:         2,
		NrRdonlyZones:     2,
		RdonlyZoneOffset:  1,
		NrOfflineZones:    2,
		OfflineZoneOffset: 4,
	},
	ModelZDNoCMR: {
		Name:         "NO_CMR",
		DevType:      DevZoneDomains,
		Model:        ModelZDNoCMR,
		SMRType:      TypeSeqRequired,
		SMRInitCond:  CondEmpty,
		ActSeqReq:    true,
		ModifyFSNOZ:  true,
		ReportRealms: true,
		ConvSlots:    convSlotsNone,
	},
}

// LookupProfile resolves a (device type, model) pair, as used by MUTATE and
// REPORT MUTATIONS.
func LookupProfile(dt DeviceType, m Model) (*Profile, error) {
	p, ok := profiles[m]
	if !ok || p.DevType != dt {
		return nil, fmt.Errorf("unknown personality %s/%#x", dt, uint8(m))
	}
	return p, nil
}

// ProfileByName resolves a type-<name> config option.
func ProfileByName(name string) (*Profile, error) {
	for _, p := range profiles {
		if p.Name == name {
			return p, nil
		}
	}
	return nil, fmt.Errorf("unknown personality %q", name)
}

// Mutations enumerates every supported personality in stable order, for
// REPORT MUTATIONS.
func Mutations() []*Profile {
	out := make([]*Profile, 0, len(profiles))
	for m := ModelGeneric; m <= ModelZDNoCMR; m++ {
		if p, ok := profiles[m]; ok {
			out = append(out, p)
		}
	}
	return out
}
