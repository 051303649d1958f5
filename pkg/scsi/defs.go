// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and dhsmr contributors
//
// SPDX-License-Identifier: Apache-2.0

package scsi

// SCSI opcodes handled or inspected by the emulator. Sense codes are at
// www.t10.org/lists/asc-num.txt; zone commands follow ZBC-2 plus the Zone
// Domains proposals.
const (
	TestUnitReady      = 0x00
	RequestSense       = 0x03
	FormatUnit         = 0x04
	Inquiry            = 0x12
	ModeSelect         = 0x15
	ModeSense          = 0x1a
	ReceiveDiagnostic  = 0x1c
	ReadCapacity10     = 0x25
	Read10             = 0x28
	Write10            = 0x2a
	SynchronizeCache   = 0x35
	Sanitize           = 0x48
	ModeSelect10       = 0x55
	ModeSense10        = 0x5a
	VariableLengthCmd  = 0x7f
	Read16             = 0x88
	Write16            = 0x8a
	SynchronizeCache16 = 0x91
	ZbcOut             = 0x94
	ZbcIn              = 0x95
	ServiceActionIn16  = 0x9e
	Read12             = 0xa8
	Write12            = 0xaa
)

// ZBC IN (0x95) service actions.
const (
	SaReportZones       = 0x00
	SaReportMutations   = 0x05 // value TBD in the drafts, single place to change
	SaReportRealms      = 0x06
	SaReportZoneDomains = 0x07
	SaZoneActivate16    = 0x08
	SaZoneQuery16       = 0x09
)

// ZBC OUT (0x94) service actions.
const (
	SaCloseZone         = 0x01
	SaFinishZone        = 0x02
	SaOpenZone          = 0x03
	SaResetWritePtr     = 0x04
	SaSequentializeZone = 0x05
	SaMutate            = 0x06 // value TBD in the drafts
)

// Variable-length CDB (0x7f) 16-bit service actions.
const (
	SaZoneActivate32 = 0xf800 // value TBD in the drafts
	SaZoneQuery32    = 0xf801 // value TBD in the drafts
)

// SERVICE ACTION IN(16) service actions.
const (
	SaReadCapacity16 = 0x10
)

// SANITIZE service actions.
const (
	SaSanitizeCryptoErase = 0x03
	SaSanitizeExitFailure = 0x1f
)

// Sense keys.
const (
	SenseNoSense        = 0x00
	SenseRecoveredError = 0x01
	SenseNotReady       = 0x02
	SenseMediumError    = 0x03
	SenseHardwareError  = 0x04
	SenseIllegalRequest = 0x05
	SenseUnitAttention  = 0x06
	SenseDataProtect    = 0x07
	SenseAbortedCommand = 0x0b
)

// Additional sense code + qualifier, packed asc<<8|ascq.
const (
	AscReadError                   = 0x1100
	AscWriteError                  = 0x0c00
	AscParameterListLengthError    = 0x1a00
	AscLbaOutOfRange               = 0x2100
	AscInvalidFieldInCdb           = 0x2400
	AscInvalidFieldInParameterList = 0x2600
	AscUnalignedWriteCommand       = 0x2104
	AscWriteBoundaryViolation      = 0x2105
	AscAttemptToReadInvalidData    = 0x2106
	AscReadBoundaryViolation       = 0x2107
	AscAttemptToAccessGapZone      = 0x2109
	AscZoneIsReadOnly              = 0x2708
	AscZoneIsOffline               = 0x2c0e
	AscZoneIsInactive              = 0x2c12
	AscInternalTargetFailure       = 0x4400
	AscInsufficientZoneResources   = 0x550e
)

// SCSI status codes (SAM-5).
const (
	StatusGood           = 0x00
	StatusCheckCondition = 0x02
)
