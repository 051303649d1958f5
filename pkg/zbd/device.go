// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package zbd

import (
	"fmt"
	"math/bits"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Device is one emulated zoned block device backed by a single host file.
// The host runtime serializes command delivery, so Device carries no locks;
// every method below runs on the device's command goroutine.
type Device struct {
	Name string

	log     zerolog.Logger
	cfg     *DevConfig
	profile *Profile
	st      *store

	hdr     header
	domains []Domain
	realms  []Realm
	zones   []Zone

	impOpen, expOpen, closed, seqActive zoneList

	zoneShift uint
	// typeDomain maps a zone type to its domain id, -1 when the type has no
	// domain on this personality. Fixed at format time.
	typeDomain [maxDomains + 2]int8

	nrEmpty uint32

	cmr2smr []uint32
	smr2cmr []uint32
	// domainRealms lists, per domain, the realms owning a subrange there.
	domainRealms [][]uint32

	stats    deviceStats
	nrNHCmds uint64

	sense []senseEntry

	metrics *Metrics
	events  *Publisher
}

// deviceStats backs the Zoned Block Device Statistics log page (0x14/01).
type deviceStats struct {
	maxOpenZones    uint32
	maxExpOpenZones uint32
	maxImpOpenZones uint32
	minEmptyZones   uint32
	maxNonSeqZones  uint32
	zonesEmptied    uint64
	suboptWrites    uint64
	cmdsAboveOpt    uint64
	failedExpOpens  uint64
	readRuleFails   uint64
	writeRuleFails  uint64
}

type senseEntry struct {
	key byte
	asc uint16
}

const senseFIFODepth = 3

// Open opens or creates the device described by a dhsmr config string. size
// is the nominal device capacity in bytes; it is required when the backing
// file does not yet exist or fails validation, and may be zero otherwise.
func Open(raw string, size uint64) (*Device, error) {
	cfg, err := ParseDevConfig(raw)
	if err != nil {
		return nil, err
	}

	d := &Device{
		Name:    filepath.Base(cfg.Path),
		cfg:     cfg,
		profile: cfg.Profile,
	}
	d.log = log.With().Str("device", d.Name).Logger()

	f, existed, err := openOrCreate(cfg.Path)
	if err != nil {
		return nil, err
	}
	d.st = &store{file: f}

	if existed {
		if err := d.load(); err == nil {
			d.log.Info().Str("model", d.profile.Name).Msg("attached existing backing file")
			return d, nil
		} else {
			d.log.Warn().Err(err).Msg("metadata validation failed, reformatting")
			d.publishEvent("reformat", err.Error())
		}
	}

	if size == 0 {
		_ = d.st.close()
		return nil, fmt.Errorf("device %s: backing file needs formatting but no size given", d.Name)
	}
	d.profile = cfg.Profile
	if err := d.format(d.profile, size); err != nil {
		_ = d.st.close()
		return nil, err
	}
	d.log.Info().Str("model", d.profile.Name).
		Uint64("capacity_lbas", d.hdr.PhysCap).
		Uint32("zones", d.hdr.NrZones).
		Msg("formatted backing file")
	d.publishEvent("format", d.profile.Name)
	return d, nil
}

// Check opens an existing backing file and runs the full metadata
// validation without ever reformatting. Operator tooling only.
func Check(raw string) error {
	cfg, err := ParseDevConfig(raw)
	if err != nil {
		return err
	}
	d := &Device{
		Name:    filepath.Base(cfg.Path),
		cfg:     cfg,
		profile: cfg.Profile,
	}
	d.log = log.With().Str("device", d.Name).Logger()
	f, err := os.OpenFile(cfg.Path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("device %s: %w", d.Name, err)
	}
	d.st = &store{file: f}
	defer d.st.close()
	return d.load()
}

// load maps and validates existing metadata. Any error means the caller
// reformats.
func (d *Device) load() error {
	hdrBuf := make([]byte, headerSize)
	if err := d.st.preadAt(0, hdrBuf); err != nil {
		return err
	}
	h, err := decodeHeader(hdrBuf)
	if err != nil {
		return err
	}
	if h.CfgString != d.cfg.Raw {
		return fmt.Errorf("config string changed from %q to %q", h.CfgString, d.cfg.Raw)
	}
	if h.LBASize != d.cfg.LBASize {
		return fmt.Errorf("LBA size changed from %d to %d", h.LBASize, d.cfg.LBASize)
	}
	fsize, err := d.st.size()
	if err != nil {
		return err
	}
	if fsize != h.FileSize {
		return fmt.Errorf("backing file is %d bytes, header says %d", fsize, h.FileSize)
	}
	if h.MetaSize != metaSizeFor(h.NrRealms, h.NrZones) {
		return fmt.Errorf("metadata size %d does not match geometry", h.MetaSize)
	}
	if err := d.st.mapMeta(h.MetaSize); err != nil {
		return err
	}
	d.hdr = *h

	// The profile persisted in the header wins over the config default: a
	// MUTATE survives reopen while the config string stays the same.
	p, err := LookupProfile(h.DevType, h.Model)
	if err != nil {
		return err
	}
	d.profile = p

	d.decodeMeta()
	d.deriveRuntime()
	if err := d.validate(); err != nil {
		return err
	}
	return nil
}

// deriveRuntime recomputes everything not persisted: shift, type mapping,
// rescale tables, empty-zone count.
func (d *Device) deriveRuntime() {
	d.zoneShift = uint(bits.TrailingZeros64(d.hdr.ZoneSize))

	for i := range d.typeDomain {
		d.typeDomain[i] = -1
	}
	for i := range d.domains {
		d.typeDomain[d.domains[i].Type] = int8(i)
	}

	d.buildRescaleTables()
	d.buildDomainRealmIndex()

	d.nrEmpty = 0
	for i := range d.zones {
		if d.zones[i].Cond == CondEmpty {
			d.nrEmpty++
		}
	}
	d.stats.minEmptyZones = d.nrEmpty
}

// Close flushes metadata and releases the backing file.
func (d *Device) Close() error {
	if d.st.meta != nil {
		d.encodeMeta()
		if err := d.st.flush(); err != nil {
			d.log.Error().Err(err).Msg("metadata flush on close failed")
		}
	}
	return d.st.close()
}

// Flush persists the metadata region and syncs the data region.
func (d *Device) Flush() error {
	d.encodeMeta()
	if err := d.st.flush(); err != nil {
		return err
	}
	return d.st.fsync()
}

// SetMetrics attaches a prometheus metric set. Optional.
func (d *Device) SetMetrics(m *Metrics) {
	d.metrics = m
}

// SetPublisher attaches a lifecycle event publisher. Optional.
func (d *Device) SetPublisher(p *Publisher) {
	d.events = p
}

func (d *Device) publishEvent(kind, detail string) {
	if d.events != nil {
		d.events.Publish(d.Name, kind, detail)
	}
}

// Profile exposes the active personality.
func (d *Device) Profile() *Profile {
	return d.profile
}

// LBASize is the logical block size in bytes.
func (d *Device) LBASize() uint32 {
	return d.hdr.LBASize
}

// Capacity is the addressable capacity in LBAs: one past the last zone for
// zoned personalities, the physical capacity otherwise.
func (d *Device) Capacity() uint64 {
	if d.profile.zoned() {
		return d.hdr.LogicalCap
	}
	return d.hdr.PhysCap
}

// zoneIndex maps an LBA to its zone array index. Every zone occupies
// exactly one zone-size slot of address space.
func (d *Device) zoneIndex(lba uint64) uint32 {
	return uint32(lba >> d.zoneShift)
}

func (d *Device) zoneAt(lba uint64) *Zone {
	return &d.zones[d.zoneIndex(lba)]
}

func (d *Device) zoneIdxOf(z *Zone) uint32 {
	return d.zoneIndex(z.Start)
}

// domainOfLBA scans the (at most four) domains.
func (d *Device) domainOfLBA(lba uint64) *Domain {
	for i := range d.domains {
		if lba >= d.domains[i].Start && lba <= d.domains[i].End {
			return &d.domains[i]
		}
	}
	return nil
}

func (d *Device) domainID(dom *Domain) uint8 {
	for i := range d.domains {
		if &d.domains[i] == dom {
			return uint8(i)
		}
	}
	return 0
}

// fileOffset maps a data LBA to its backing file offset. Each domain's
// logical range maps to a contiguous region right after the metadata, so
// gaps and inter-domain stretches collapse.
func (d *Device) fileOffset(lba uint64) uint64 {
	if dom := d.domainOfLBA(lba); dom != nil {
		return d.hdr.MetaSize + (lba-dom.Start)*uint64(d.hdr.LBASize)
	}
	return d.hdr.MetaSize + lba*uint64(d.hdr.LBASize)
}

// pushSense queues a deferred sense triplet for the next REQUEST SENSE.
// Oldest entries drop when the FIFO is full.
func (d *Device) pushSense(key byte, asc uint16) {
	if len(d.sense) >= senseFIFODepth {
		d.sense = d.sense[1:]
	}
	d.sense = append(d.sense, senseEntry{key: key, asc: asc})
}

func (d *Device) popSense() (senseEntry, bool) {
	if len(d.sense) == 0 {
		return senseEntry{}, false
	}
	e := d.sense[0]
	d.sense = d.sense[1:]
	return e, true
}

// nrOpen is the combined open-zone resource usage.
func (d *Device) nrOpen() uint32 {
	return d.impOpen.size + d.expOpen.size
}

// noteOpenHighWater refreshes the open/empty statistics after a transition.
func (d *Device) noteOpenHighWater() {
	if n := d.nrOpen(); n > d.stats.maxOpenZones {
		d.stats.maxOpenZones = n
	}
	if d.expOpen.size > d.stats.maxExpOpenZones {
		d.stats.maxExpOpenZones = d.expOpen.size
	}
	if d.impOpen.size > d.stats.maxImpOpenZones {
		d.stats.maxImpOpenZones = d.impOpen.size
	}
	if d.nrEmpty < d.stats.minEmptyZones {
		d.stats.minEmptyZones = d.nrEmpty
	}
}
