package protocol

import "fmt"

// Frame delimiters and byte stuffing
const (
	FrameFlag  byte = 0x7E // opens and closes every frame
	EscapeByte byte = 0x7D // precedes a stuffed byte
	EscapeXOR  byte = 0x20 // bit toggled on stuffed bytes
)

// ChecksumLen is the size of the trailing checksum
const ChecksumLen = 1

// Record size limits
const (
	HeaderSize     = 40
	MaxRecordSize  = 1490
	MaxDataSize    = MaxRecordSize - HeaderSize
	MaxSubrecords  = 8
	DescriptorSize = 3

	// MaxStuffedFrame is the most bytes a valid frame can occupy between its
	// flags: every record byte and the checksum escaped.
	MaxStuffedFrame = 2 * (MaxRecordSize + ChecksumLen)

	// EndOfDescriptors terminates the subrecord descriptor list.
	EndOfDescriptors uint8 = 0xFF
)

// Header field offsets
const (
	offLength      = 0
	offRecordNbr   = 2
	offDRILevel    = 3
	offPlugID      = 4
	offTime        = 6
	offMainType    = 14
	offDescriptors = 16
)

// MainType is the r_maintype of a record
type MainType uint16

const (
	MainTypePHDB    MainType = 0
	MainTypeWave    MainType = 1
	MainTypeAlarm   MainType = 4
	MainTypeNetwork MainType = 5
	MainTypeFO      MainType = 8
)

func (m MainType) String() string {
	switch m {
	case MainTypePHDB:
		return "PHDB"
	case MainTypeWave:
		return "WAVE"
	case MainTypeAlarm:
		return "ALARM"
	case MainTypeNetwork:
		return "NETWORK"
	case MainTypeFO:
		return "FO"
	default:
		return fmt.Sprintf("MAINTYPE_%d", uint16(m))
	}
}

// PHDB subrecord types
const (
	PhdbXmitReq  uint8 = 0
	PhdbDispl    uint8 = 1
	PhdbTrend10s uint8 = 2
	PhdbTrend60s uint8 = 3
	PhdbAux      uint8 = 4
)

// PhdbSubtypeName returns the DRI name of a PHDB subrecord type.
func PhdbSubtypeName(sr uint8) string {
	switch sr {
	case PhdbXmitReq:
		return "XMIT_REQ"
	case PhdbDispl:
		return "DISPL"
	case PhdbTrend10s:
		return "TREND10S"
	case PhdbTrend60s:
		return "TREND60S"
	case PhdbAux:
		return "AUX"
	default:
		return fmt.Sprintf("SR_%d", sr)
	}
}

// PHDB data classes, selected through the request class mask
const (
	ClassBasic uint8 = 0
	ClassExt1  uint8 = 1
	ClassExt2  uint8 = 2
	ClassExt3  uint8 = 3
)

// Alarm subrecord types
const (
	AlarmXmitReq uint8 = 0
	AlarmDispl   uint8 = 1
)

// Waveform request types
const (
	WaveRequestStart uint16 = 0
	WaveRequestStop  uint16 = 1
)

// MaxTotalSampleRate is the combined waveform rate a monitor will stream.
const MaxTotalSampleRate = 600

// DRILevel is the protocol revision a monitor reports in its headers
type DRILevel uint8

const (
	DRILevel95 DRILevel = 2
	DRILevel97 DRILevel = 3
	DRILevel98 DRILevel = 4
	DRILevel99 DRILevel = 5
	DRILevel00 DRILevel = 6
	DRILevel01 DRILevel = 7
	DRILevel02 DRILevel = 8
	DRILevel03 DRILevel = 9
	DRILevel04 DRILevel = 10
)

func (l DRILevel) String() string {
	switch l {
	case DRILevel95:
		return "'95"
	case DRILevel97:
		return "'97"
	case DRILevel98:
		return "'98"
	case DRILevel99:
		return "'99"
	case DRILevel00:
		return "'01"
	case DRILevel01:
		return "'02"
	case DRILevel02:
		return "'03"
	case DRILevel03:
		return "'05"
	case DRILevel04:
		return "'09"
	default:
		return fmt.Sprintf("level %d", uint8(l))
	}
}
