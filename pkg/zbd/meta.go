// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"bytes"
	"fmt"

	"github.com/cobaltcore-dev/dhsmr/pkg/scsi"
)

// On-disk layout: [header][realm array][zone array], together the metadata
// region, aligned up to a page; the data region follows. All fields are
// big-endian, matching the wire encoding of the payloads they feed.
const (
	metaMagic = "HZBC"

	headerSize   = 1024
	realmRecSize = 68 // 4-byte realm header + 4 RealmItems of 16 bytes
	zoneRecSize  = 64 // 36 bytes used, the rest reserved

	cfgStringMax = 256
)

// Fixed header field offsets. The struct size is stored at hdrOffSize so a
// reader can detect layout growth.
const (
	hdrOffMagic       = 0
	hdrOffSize        = 4
	hdrOffMetaSize    = 8
	hdrOffFileSize    = 16
	hdrOffDevType     = 24
	hdrOffModel       = 25
	hdrOffURSWRZ      = 26
	hdrOffRealmsFeat  = 27
	hdrOffLBASize     = 28
	hdrOffPhysCap     = 32
	hdrOffLogicalCap  = 40
	hdrOffZoneSize    = 48
	hdrOffNrZones     = 56
	hdrOffNrConvZones = 60
	hdrOffRealmSize   = 64
	hdrOffNrRealms    = 72
	hdrOffSMRGain     = 76
	hdrOffMaxAct      = 80
	hdrOffFSNOZ       = 84
	hdrOffMaxOpen     = 88
	hdrOffOptOpen     = 92
	hdrOffNrDomains   = 96
	hdrOffSerial      = 100 // 16 bytes
	hdrOffDomains     = 120 // 4 x 40 bytes
	hdrOffLists       = 280 // 4 x 12 bytes: imp-open, exp-open, closed, seq-active
	hdrOffCfgString   = 328 // 256 bytes, NUL padded

	domainRecSize = 40
	listRecSize   = 12
)

const domainFlagSMRSide = 0x01

// header is the decoded metadata header. The device keeps it authoritative
// in memory and serializes it back into the mapped region on flush.
type header struct {
	MetaSize   uint64 // bytes, page aligned
	FileSize   uint64 // bytes
	DevType    DeviceType
	Model      Model
	URSWRZ     bool
	RealmsFeat bool
	LBASize    uint32
	PhysCap    uint64 // LBAs
	LogicalCap uint64 // LBAs, after trailing-gap trim
	ZoneSize   uint64 // LBAs, power of two
	NrZones    uint32
	NrConvZones uint32
	RealmSize  uint64 // LBAs
	NrRealms   uint32
	SMRGain    uint32 // percent
	MaxAct     uint32 // zones, 0 = unlimited
	FSNOZ      uint32
	MaxOpen    uint32
	OptOpen    uint32
	NrDomains  uint8
	Serial     [16]byte
	CfgString  string
}

// metaSizeFor is the page-aligned byte size of the metadata region.
func metaSizeFor(nrRealms, nrZones uint32) uint64 {
	return alignUp(headerSize+uint64(nrRealms)*realmRecSize+uint64(nrZones)*zoneRecSize, pageSize)
}

func realmOff(i uint32) uint64 {
	return headerSize + uint64(i)*realmRecSize
}

func zoneOff(nrRealms, i uint32) uint64 {
	return headerSize + uint64(nrRealms)*realmRecSize + uint64(i)*zoneRecSize
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// encodeMeta serializes the header, realm array and zone array into the
// mapped metadata region.
func (d *Device) encodeMeta() {
	m := d.st.meta
	for i := range m[:headerSize] {
		m[i] = 0
	}
	copy(m[hdrOffMagic:], metaMagic)
	scsi.Put32(m[hdrOffSize:], headerSize)
	scsi.Put64(m[hdrOffMetaSize:], d.hdr.MetaSize)
	scsi.Put64(m[hdrOffFileSize:], d.hdr.FileSize)
	m[hdrOffDevType] = byte(d.hdr.DevType)
	m[hdrOffModel] = byte(d.hdr.Model)
	m[hdrOffURSWRZ] = boolByte(d.hdr.URSWRZ)
	m[hdrOffRealmsFeat] = boolByte(d.hdr.RealmsFeat)
	scsi.Put32(m[hdrOffLBASize:], d.hdr.LBASize)
	scsi.Put64(m[hdrOffPhysCap:], d.hdr.PhysCap)
	scsi.Put64(m[hdrOffLogicalCap:], d.hdr.LogicalCap)
	scsi.Put64(m[hdrOffZoneSize:], d.hdr.ZoneSize)
	scsi.Put32(m[hdrOffNrZones:], d.hdr.NrZones)
	scsi.Put32(m[hdrOffNrConvZones:], d.hdr.NrConvZones)
	scsi.Put64(m[hdrOffRealmSize:], d.hdr.RealmSize)
	scsi.Put32(m[hdrOffNrRealms:], d.hdr.NrRealms)
	scsi.Put32(m[hdrOffSMRGain:], d.hdr.SMRGain)
	scsi.Put32(m[hdrOffMaxAct:], d.hdr.MaxAct)
	scsi.Put32(m[hdrOffFSNOZ:], d.hdr.FSNOZ)
	scsi.Put32(m[hdrOffMaxOpen:], d.hdr.MaxOpen)
	scsi.Put32(m[hdrOffOptOpen:], d.hdr.OptOpen)
	m[hdrOffNrDomains] = d.hdr.NrDomains
	copy(m[hdrOffSerial:hdrOffSerial+16], d.hdr.Serial[:])

	for i := 0; i < maxDomains; i++ {
		rec := m[hdrOffDomains+i*domainRecSize:]
		if i >= int(d.hdr.NrDomains) {
			for j := 0; j < domainRecSize; j++ {
				rec[j] = 0
			}
			continue
		}
		dom := &d.domains[i]
		scsi.Put64(rec[0:], dom.Start)
		scsi.Put64(rec[8:], dom.End)
		scsi.Put64(rec[16:], dom.NrZones)
		rec[24] = byte(dom.Type)
		rec[25] = 0
		if dom.SMRSide {
			rec[25] = domainFlagSMRSide
		}
	}

	lists := []*zoneList{&d.impOpen, &d.expOpen, &d.closed, &d.seqActive}
	for i, l := range lists {
		rec := m[hdrOffLists+i*listRecSize:]
		scsi.Put32(rec[0:], l.head)
		scsi.Put32(rec[4:], l.tail)
		scsi.Put32(rec[8:], l.size)
	}

	cfg := m[hdrOffCfgString : hdrOffCfgString+cfgStringMax]
	for i := range cfg {
		cfg[i] = 0
	}
	copy(cfg, d.hdr.CfgString)

	for i := uint32(0); i < d.hdr.NrRealms; i++ {
		d.encodeRealm(i)
	}
	for i := uint32(0); i < d.hdr.NrZones; i++ {
		d.encodeZone(i)
	}
}

func (d *Device) encodeRealm(i uint32) {
	r := &d.realms[i]
	rec := d.st.meta[realmOff(i):]
	rec[0] = byte(r.CurType)
	rec[1] = r.ActFlags
	rec[2] = r.Restricted
	rec[3] = 0
	for t := 0; t < maxDomains; t++ {
		it := rec[4+t*16:]
		scsi.Put64(it[0:], r.Items[t].Start)
		scsi.Put32(it[8:], r.Items[t].Len)
		scsi.Put32(it[12:], r.Items[t].StartZone)
	}
}

func (d *Device) encodeZone(i uint32) {
	z := &d.zones[i]
	rec := d.st.meta[zoneOff(d.hdr.NrRealms, i):]
	scsi.Put64(rec[0:], z.Start)
	scsi.Put64(rec[8:], z.Len)
	scsi.Put64(rec[16:], z.WP)
	rec[24] = byte(z.Type)
	rec[25] = byte(z.Cond)
	var flags byte
	if z.NonSeq {
		flags |= 0x01
	}
	if z.Reset {
		flags |= 0x02
	}
	rec[26] = flags
	rec[27] = 0
	scsi.Put32(rec[28:], z.prev)
	scsi.Put32(rec[32:], z.next)
}

// decodeHeader parses a raw header block without touching device state.
func decodeHeader(m []byte) (*header, error) {
	if len(m) < headerSize {
		return nil, fmt.Errorf("metadata header truncated at %d bytes", len(m))
	}
	if !bytes.Equal(m[hdrOffMagic:hdrOffMagic+4], []byte(metaMagic)) {
		return nil, fmt.Errorf("bad metadata magic %q", m[hdrOffMagic:hdrOffMagic+4])
	}
	if got := scsi.Get32(m[hdrOffSize:]); got != headerSize {
		return nil, fmt.Errorf("metadata header size %d, want %d", got, headerSize)
	}
	h := &header{
		MetaSize:    scsi.Get64(m[hdrOffMetaSize:]),
		FileSize:    scsi.Get64(m[hdrOffFileSize:]),
		DevType:     DeviceType(m[hdrOffDevType]),
		Model:       Model(m[hdrOffModel]),
		URSWRZ:      m[hdrOffURSWRZ] != 0,
		RealmsFeat:  m[hdrOffRealmsFeat] != 0,
		LBASize:     scsi.Get32(m[hdrOffLBASize:]),
		PhysCap:     scsi.Get64(m[hdrOffPhysCap:]),
		LogicalCap:  scsi.Get64(m[hdrOffLogicalCap:]),
		ZoneSize:    scsi.Get64(m[hdrOffZoneSize:]),
		NrZones:     scsi.Get32(m[hdrOffNrZones:]),
		NrConvZones: scsi.Get32(m[hdrOffNrConvZones:]),
		RealmSize:   scsi.Get64(m[hdrOffRealmSize:]),
		NrRealms:    scsi.Get32(m[hdrOffNrRealms:]),
		SMRGain:     scsi.Get32(m[hdrOffSMRGain:]),
		MaxAct:      scsi.Get32(m[hdrOffMaxAct:]),
		FSNOZ:       scsi.Get32(m[hdrOffFSNOZ:]),
		MaxOpen:     scsi.Get32(m[hdrOffMaxOpen:]),
		OptOpen:     scsi.Get32(m[hdrOffOptOpen:]),
		NrDomains:   m[hdrOffNrDomains],
	}
	copy(h.Serial[:], m[hdrOffSerial:hdrOffSerial+16])
	cfg := m[hdrOffCfgString : hdrOffCfgString+cfgStringMax]
	if n := bytes.IndexByte(cfg, 0); n >= 0 {
		cfg = cfg[:n]
	}
	h.CfgString = string(cfg)
	return h, nil
}

// decodeMeta rebuilds domains, lists, realms and zones from the mapped
// region after the header has been accepted.
func (d *Device) decodeMeta() {
	m := d.st.meta
	d.domains = d.domains[:0]
	for i := 0; i < int(d.hdr.NrDomains); i++ {
		rec := m[hdrOffDomains+i*domainRecSize:]
		d.domains = append(d.domains, Domain{
			Start:   scsi.Get64(rec[0:]),
			End:     scsi.Get64(rec[8:]),
			NrZones: scsi.Get64(rec[16:]),
			Type:    ZoneType(rec[24]),
			SMRSide: rec[25]&domainFlagSMRSide != 0,
		})
	}

	lists := []*zoneList{&d.impOpen, &d.expOpen, &d.closed, &d.seqActive}
	for i, l := range lists {
		rec := m[hdrOffLists+i*listRecSize:]
		l.head = scsi.Get32(rec[0:])
		l.tail = scsi.Get32(rec[4:])
		l.size = scsi.Get32(rec[8:])
	}

	d.realms = make([]Realm, d.hdr.NrRealms)
	for i := uint32(0); i < d.hdr.NrRealms; i++ {
		rec := m[realmOff(i):]
		r := &d.realms[i]
		r.Number = i
		r.CurType = ZoneType(rec[0])
		r.ActFlags = rec[1]
		r.Restricted = rec[2]
		for t := 0; t < maxDomains; t++ {
			it := rec[4+t*16:]
			r.Items[t] = RealmItem{
				Start:     scsi.Get64(it[0:]),
				Len:       scsi.Get32(it[8:]),
				StartZone: scsi.Get32(it[12:]),
			}
		}
	}

	d.zones = make([]Zone, d.hdr.NrZones)
	for i := uint32(0); i < d.hdr.NrZones; i++ {
		rec := m[zoneOff(d.hdr.NrRealms, i):]
		z := &d.zones[i]
		z.Start = scsi.Get64(rec[0:])
		z.Len = scsi.Get64(rec[8:])
		z.WP = scsi.Get64(rec[16:])
		z.Type = ZoneType(rec[24])
		z.Cond = ZoneCond(rec[25])
		z.NonSeq = rec[26]&0x01 != 0
		z.Reset = rec[26]&0x02 != 0
		z.prev = scsi.Get32(rec[28:])
		z.next = scsi.Get32(rec[32:])
	}
}
