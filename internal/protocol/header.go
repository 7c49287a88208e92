package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Record errors
var (
	ErrShortHeader     = errors.New("protocol: record shorter than header")
	ErrMalformedRecord = errors.New("protocol: malformed record")
)

// Descriptor locates one subrecord inside the record data area
type Descriptor struct {
	Offset uint16 // from the start of the data area
	Type   uint8  // sr_type, meaning depends on the main type
}

// RecordHeader is the fixed 40-byte header that starts every DRI record.
// All multi-byte fields are little-endian on the wire.
type RecordHeader struct {
	Length       uint16 // r_len, header included
	RecordNumber uint8
	DRILevel     DRILevel
	PlugID       uint16
	Time         uint32 // unix seconds
	MainType     MainType
	Descriptors  []Descriptor // at most MaxSubrecords
}

// Subrecord is a slice of the data area located through its descriptor.
type Subrecord struct {
	Type uint8
	Data []byte
}

// ParseHeader parses the record header. Descriptor parsing stops at the
// first sr_type of 0xFF.
func ParseHeader(record []byte) (*RecordHeader, error) {
	if len(record) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrShortHeader, len(record), HeaderSize)
	}

	h := &RecordHeader{
		Length:       binary.LittleEndian.Uint16(record[offLength:]),
		RecordNumber: record[offRecordNbr],
		DRILevel:     DRILevel(record[offDRILevel]),
		PlugID:       binary.LittleEndian.Uint16(record[offPlugID:]),
		Time:         binary.LittleEndian.Uint32(record[offTime:]),
		MainType:     MainType(binary.LittleEndian.Uint16(record[offMainType:])),
	}

	for i := 0; i < MaxSubrecords; i++ {
		base := offDescriptors + i*DescriptorSize
		srType := record[base+2]
		if srType == EndOfDescriptors {
			break
		}
		h.Descriptors = append(h.Descriptors, Descriptor{
			Offset: binary.LittleEndian.Uint16(record[base:]),
			Type:   srType,
		})
	}

	return h, nil
}

// Timestamp returns the record time
func (h *RecordHeader) Timestamp() time.Time {
	return time.Unix(int64(h.Time), 0).UTC()
}

// Subrecords slices the data area of record into its subrecords. A
// subrecord ends where the next one starts, the last one at r_len, so an
// unfamiliar sr_type can always be stepped over.
func (h *RecordHeader) Subrecords(record []byte) ([]Subrecord, error) {
	if int(h.Length) > len(record) || h.Length < HeaderSize {
		return nil, fmt.Errorf("%w: r_len %d with %d bytes", ErrMalformedRecord, h.Length, len(record))
	}
	data := record[HeaderSize:h.Length]

	subs := make([]Subrecord, 0, len(h.Descriptors))
	for i, d := range h.Descriptors {
		start := int(d.Offset)
		end := len(data)
		if i+1 < len(h.Descriptors) {
			end = int(h.Descriptors[i+1].Offset)
		}
		if start > end || end > len(data) {
			return nil, fmt.Errorf("%w: subrecord %d spans [%d:%d] of %d data bytes",
				ErrMalformedRecord, i, start, end, len(data))
		}
		subs = append(subs, Subrecord{Type: d.Type, Data: data[start:end]})
	}
	return subs, nil
}

// Append writes the 40-byte wire form of h to dst. Unused descriptor slots
// are filled with the 0xFF terminator.
func (h *RecordHeader) Append(dst []byte) []byte {
	var b [HeaderSize]byte
	binary.LittleEndian.PutUint16(b[offLength:], h.Length)
	b[offRecordNbr] = h.RecordNumber
	b[offDRILevel] = uint8(h.DRILevel)
	binary.LittleEndian.PutUint16(b[offPlugID:], h.PlugID)
	binary.LittleEndian.PutUint32(b[offTime:], h.Time)
	binary.LittleEndian.PutUint16(b[offMainType:], uint16(h.MainType))

	for i := 0; i < MaxSubrecords; i++ {
		base := offDescriptors + i*DescriptorSize
		if i < len(h.Descriptors) {
			binary.LittleEndian.PutUint16(b[base:], h.Descriptors[i].Offset)
			b[base+2] = h.Descriptors[i].Type
			continue
		}
		b[base+2] = EndOfDescriptors
	}
	return append(dst, b[:]...)
}

// String returns a human-readable representation of the header
func (h *RecordHeader) String() string {
	return fmt.Sprintf("RecordHeader{len=%d, nbr=%d, level=%s, plug=%d, type=%s, subrecords=%d}",
		h.Length, h.RecordNumber, h.DRILevel, h.PlugID, h.MainType, len(h.Descriptors))
}
