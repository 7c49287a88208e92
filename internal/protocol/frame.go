package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Framing errors
var (
	ErrEmptyFrame     = errors.New("protocol: empty frame")
	ErrDanglingEscape = errors.New("protocol: escape byte at end of frame")
	ErrShortFrame     = errors.New("protocol: frame shorter than record header")
	ErrLengthMismatch = errors.New("protocol: declared length does not match frame")
	ErrLengthRange    = errors.New("protocol: declared length out of range")
	ErrChecksum       = errors.New("protocol: checksum mismatch")
	ErrRecordTooLarge = errors.New("protocol: record exceeds maximum size")
)

// Frame is one verified, unstuffed DRI frame. Payload holds the complete
// record, header included; the checksum byte is kept separately.
type Frame struct {
	Length   uint16 // r_len as declared in the record header
	Payload  []byte // unstuffed record bytes
	Checksum byte   // trailing checksum as received
}

// MainType returns the record main type from the payload header.
func (f *Frame) MainType() MainType {
	if len(f.Payload) < offMainType+2 {
		return MainType(0xFFFF)
	}
	return MainType(binary.LittleEndian.Uint16(f.Payload[offMainType:]))
}

// String returns a human-readable representation of the frame
func (f *Frame) String() string {
	return fmt.Sprintf("Frame{len=%d, type=%s, checksum=0x%02x}", f.Length, f.MainType(), f.Checksum)
}

// Checksum is the DRI frame checksum: the 8-bit sum of every record byte,
// length field included. The synchronizer and the encoder both use it.
func Checksum(record []byte) byte {
	var sum byte
	for _, b := range record {
		sum += b
	}
	return sum
}

// needsEscape reports whether b must be stuffed inside a frame.
func needsEscape(b byte) bool {
	return b == FrameFlag || b == EscapeByte
}

// Stuff escapes flag and escape bytes in data, appending to dst.
func Stuff(dst, data []byte) []byte {
	for _, b := range data {
		if needsEscape(b) {
			dst = append(dst, EscapeByte, b&^EscapeXOR)
			continue
		}
		dst = append(dst, b)
	}
	return dst
}

// Unstuff reverses Stuff. data must not contain flag bytes.
func Unstuff(dst, data []byte) ([]byte, error) {
	escaped := false
	for _, b := range data {
		if escaped {
			dst = append(dst, b|EscapeXOR)
			escaped = false
			continue
		}
		if b == EscapeByte {
			escaped = true
			continue
		}
		dst = append(dst, b)
	}
	if escaped {
		return dst, ErrDanglingEscape
	}
	return dst, nil
}

// ParseFrame validates the unstuffed content between two flags: record
// bytes followed by the checksum byte.
func ParseFrame(content []byte) (*Frame, error) {
	if len(content) == 0 {
		return nil, ErrEmptyFrame
	}
	if len(content) < HeaderSize+ChecksumLen {
		return nil, fmt.Errorf("%w: %d bytes (minimum %d)", ErrShortFrame, len(content), HeaderSize+ChecksumLen)
	}

	record := content[:len(content)-ChecksumLen]
	declared := binary.LittleEndian.Uint16(record[offLength:])
	if declared < HeaderSize || declared > MaxRecordSize {
		return nil, fmt.Errorf("%w: %d", ErrLengthRange, declared)
	}
	if int(declared) != len(record) {
		return nil, fmt.Errorf("%w: declared %d, got %d", ErrLengthMismatch, declared, len(record))
	}

	got := content[len(content)-1]
	if want := Checksum(record); got != want {
		return nil, fmt.Errorf("%w: got 0x%02x, want 0x%02x", ErrChecksum, got, want)
	}

	return &Frame{
		Length:   declared,
		Payload:  record,
		Checksum: got,
	}, nil
}

// BuildFrame wraps a complete record in DRI framing:
// flag, stuffed record and checksum, flag.
//
// The record's r_len field must already match len(record); the encoder
// sets it when building records.
func BuildFrame(record []byte) ([]byte, error) {
	if len(record) < HeaderSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrShortHeader, len(record))
	}
	if len(record) > MaxRecordSize {
		return nil, fmt.Errorf("%w: %d bytes (maximum %d)", ErrRecordTooLarge, len(record), MaxRecordSize)
	}
	if declared := binary.LittleEndian.Uint16(record[offLength:]); int(declared) != len(record) {
		return nil, fmt.Errorf("%w: declared %d, got %d", ErrLengthMismatch, declared, len(record))
	}

	out := make([]byte, 0, len(record)+len(record)/8+4)
	out = append(out, FrameFlag)
	out = Stuff(out, record)
	out = Stuff(out, []byte{Checksum(record)})
	out = append(out, FrameFlag)
	return out, nil
}
