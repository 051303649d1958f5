// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import "fmt"

const (
	// NoWP marks a zone without a valid write pointer. Never compare
	// arithmetically against LBAs.
	NoWP = ^uint64(0)

	// nilIdx terminates an intrusive zone list. Distinct from the (0,0)
	// prev/next pair, which means "not in any list".
	nilIdx = ^uint32(0)

	// maxDomains is fixed by the metadata layout.
	maxDomains = 4
)

// ZoneType uses the ZBC-2 wire encoding.
type ZoneType uint8

const (
	TypeConventional ZoneType = 0x1
	TypeSeqRequired  ZoneType = 0x2
	TypeSeqPreferred ZoneType = 0x3
	TypeSOBR         ZoneType = 0x4
	TypeGap          ZoneType = 0x5
)

func (t ZoneType) String() string {
	switch t {
	case TypeConventional:
		return "conv"
	case TypeSeqRequired:
		return "seq-req"
	case TypeSeqPreferred:
		return "seq-pref"
	case TypeSOBR:
		return "sobr"
	case TypeGap:
		return "gap"
	}
	return fmt.Sprintf("type-%#x", uint8(t))
}

// sequential reports whether writes to the zone move a write pointer under
// sequential rules.
func (t ZoneType) sequential() bool {
	return t == TypeSeqRequired || t == TypeSeqPreferred
}

// wpValid reports whether the type carries a write pointer at all.
func (t ZoneType) wpValid() bool {
	return t == TypeSeqRequired || t == TypeSeqPreferred || t == TypeSOBR
}

// ZoneCond uses the ZBC-2 wire encoding.
type ZoneCond uint8

const (
	CondNotWP    ZoneCond = 0x0
	CondEmpty    ZoneCond = 0x1
	CondImpOpen  ZoneCond = 0x2
	CondExpOpen  ZoneCond = 0x3
	CondClosed   ZoneCond = 0x4
	CondInactive ZoneCond = 0x5
	CondReadOnly ZoneCond = 0xd
	CondFull     ZoneCond = 0xe
	CondOffline  ZoneCond = 0xf
)

func (c ZoneCond) String() string {
	switch c {
	case CondNotWP:
		return "not-wp"
	case CondEmpty:
		return "empty"
	case CondImpOpen:
		return "imp-open"
	case CondExpOpen:
		return "exp-open"
	case CondClosed:
		return "closed"
	case CondInactive:
		return "inactive"
	case CondReadOnly:
		return "read-only"
	case CondFull:
		return "full"
	case CondOffline:
		return "offline"
	}
	return fmt.Sprintf("cond-%#x", uint8(c))
}

// active reports whether the zone holds addressable capacity in its realm's
// currently active subrange.
func (c ZoneCond) active() bool {
	return c != CondInactive && c != CondOffline
}

// open reports whether the zone occupies an open-zone resource.
func (c ZoneCond) open() bool {
	return c == CondImpOpen || c == CondExpOpen
}

// DeviceType is the emulated personality family.
type DeviceType uint8

const (
	DevNonZoned    DeviceType = 0x1
	DevHostManaged DeviceType = 0x2
	DevHostAware   DeviceType = 0x3
	DevZoneDomains DeviceType = 0x4
)

func (d DeviceType) String() string {
	switch d {
	case DevNonZoned:
		return "non-zoned"
	case DevHostManaged:
		return "host-managed"
	case DevHostAware:
		return "host-aware"
	case DevZoneDomains:
		return "zone-domains"
	}
	return fmt.Sprintf("dev-%#x", uint8(d))
}

// Zone is the in-memory form of one 64-byte zone descriptor. Start and Len
// are LBAs; Len may fall short of the zone size for the last zone of a
// domain. prev/next keep the persisted three-state intrusive encoding:
// (0,0) means unlinked, nilIdx terminates a list.
type Zone struct {
	Start  uint64
	Len    uint64
	WP     uint64
	Type   ZoneType
	Cond   ZoneCond
	NonSeq bool
	Reset  bool

	prev, next uint32
}

// end is one past the last LBA of the zone.
func (z *Zone) end() uint64 {
	return z.Start + z.Len
}

// linked reports whether the zone is a member of some zone list.
func (z *Zone) linked() bool {
	return z.prev != 0 || z.next != 0
}

// Domain is one zone domain: a maximal run of same-typed zones. Up to four,
// ascending and disjoint, optionally separated by gap zones.
type Domain struct {
	Start   uint64 // first LBA
	End     uint64 // last LBA
	NrZones uint64
	Type    ZoneType
	SMRSide bool
}

// RealmItem is one per-type subrange of a realm. A zero Len marks a type the
// realm cannot activate to.
type RealmItem struct {
	Start     uint64 // LBA
	Len       uint32 // zones
	StartZone uint32 // index into the zone array
}

// Realm stripes one activation unit across the domains: one subrange per
// supported zone type, exactly one active at a time.
type Realm struct {
	Number     uint32
	CurType    ZoneType
	ActFlags   uint8 // bit T-1 set: may activate to type T
	Restricted uint8 // faulty-zone injection marker bits

	Items [maxDomains]RealmItem // indexed by ZoneType-1
}

const (
	realmRestrictRdonly  = 0x01
	realmRestrictOffline = 0x02
)

// canActivate reports whether the realm may activate to t.
func (r *Realm) canActivate(t ZoneType) bool {
	if t < TypeConventional || t > TypeSOBR {
		return false
	}
	return r.ActFlags&(1<<(uint8(t)-1)) != 0
}

func (r *Realm) item(t ZoneType) *RealmItem {
	return &r.Items[t-1]
}

// zoneList is one intrusive doubly-linked list over the zone array.
type zoneList struct {
	head, tail uint32
	size       uint32
}

func (l *zoneList) empty() bool {
	return l.size == 0
}
