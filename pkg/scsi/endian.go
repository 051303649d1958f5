// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package scsi

import "encoding/binary"

// Big-endian field access on unaligned CDB and payload slices. SCSI payloads
// are always big-endian regardless of host order, so all marshaling goes
// through these helpers instead of reinterpret casts.

func Get16(b []byte) uint16 {
	return binary.BigEndian.Uint16(b)
}

func Get32(b []byte) uint32 {
	return binary.BigEndian.Uint32(b)
}

// Get48 reads a 48-bit big-endian value. The drafts encode 48-bit LBAs as the
// low six bytes of an eight-byte field with the top two bytes zero; callers
// pass the six value bytes.
func Get48(b []byte) uint64 {
	var tmp [8]byte
	copy(tmp[2:8], b[:6])
	return binary.BigEndian.Uint64(tmp[:])
}

func Get64(b []byte) uint64 {
	return binary.BigEndian.Uint64(b)
}

func Put16(b []byte, v uint16) {
	binary.BigEndian.PutUint16(b, v)
}

func Put32(b []byte, v uint32) {
	binary.BigEndian.PutUint32(b, v)
}

func Put48(b []byte, v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	copy(b[:6], tmp[2:8])
}

func Put64(b []byte, v uint64) {
	binary.BigEndian.PutUint64(b, v)
}
