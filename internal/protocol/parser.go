package protocol

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Parameter-list subrecord layout
const (
	paramListHeader = 6 // time u32, count u16
	paramEntrySize  = 6 // id u16, raw i16, flags u8, reserved u8

	// ParamFlagValid marks an entry the monitor considers valid.
	ParamFlagValid uint8 = 1 << 0
)

// Waveform subrecord header: act_len u16, status u16, reserved u16
const waveHeaderSize = 6

// Alarm text subrecord header: category u8, length u8
const eventHeaderSize = 2

// Record is one decoded DRI record. Values keep the subrecord order of the
// wire payload.
type Record struct {
	Header *RecordHeader
	Values []Value
}

// Decoder turns verified frames into Values. It holds no per-stream state,
// so one Decoder may serve any number of connections.
type Decoder struct {
	tables *Tables
}

// NewDecoder creates a Decoder. A nil tables argument selects
// DefaultTables.
func NewDecoder(tables *Tables) *Decoder {
	if tables == nil {
		tables = DefaultTables()
	}
	return &Decoder{tables: tables}
}

// Tables returns the metadata tables used by the decoder
func (d *Decoder) Tables() *Tables {
	return d.tables
}

// Decode decodes a verified frame
func (d *Decoder) Decode(frame *Frame) (*Record, error) {
	return d.DecodePayload(frame.Payload)
}

// DecodePayload decodes a complete record, header included.
//
// Subrecord types the decoder has no grammar for become *Unknown values.
// Parameter and channel ids absent from the tables decode with generic
// names, unless a channel's data does not fit the waveform layout, in which
// case it too becomes *Unknown.
// An error is returned only when the record contradicts itself, for example
// a descriptor pointing past the end of the data or a sample count larger
// than its subrecord. No values are returned in that case.
func (d *Decoder) DecodePayload(record []byte) (*Record, error) {
	h, err := ParseHeader(record)
	if err != nil {
		return nil, err
	}

	subs, err := h.Subrecords(record)
	if err != nil {
		return nil, err
	}

	ts := h.Timestamp()
	values := make([]Value, 0, len(subs))
	for i, sr := range subs {
		vs, err := d.decodeSubrecord(h.MainType, sr, ts)
		if err != nil {
			return nil, fmt.Errorf("subrecord %d (%s sr_type %d): %w", i, h.MainType, sr.Type, err)
		}
		values = append(values, vs...)
	}

	return &Record{Header: h, Values: values}, nil
}

func (d *Decoder) decodeSubrecord(mt MainType, sr Subrecord, ts time.Time) ([]Value, error) {
	switch mt {
	case MainTypePHDB:
		switch sr.Type {
		case PhdbDispl, PhdbTrend10s, PhdbTrend60s, PhdbAux:
			if len(sr.Data) == ClassicSubrecordSize {
				return d.decodeClassic(mt, sr, ts), nil
			}
			if isParamList(sr.Data) {
				return d.decodeParamList(sr, ts)
			}
		}

	case MainTypeWave:
		ch := ChannelID(sr.Type)
		if ch == ChannelCmd {
			break
		}
		if _, known := d.tables.Channel(ch); !known && !isWaveBlock(sr.Data) {
			break
		}
		w, err := d.decodeWaveform(sr, ts)
		if err != nil {
			return nil, err
		}
		return []Value{w}, nil

	case MainTypeAlarm:
		if sr.Type == AlarmDispl {
			e, err := decodeEvent(sr, ts)
			if err != nil {
				return nil, err
			}
			return []Value{e}, nil
		}
	}

	return []Value{newUnknown(mt, sr, ts)}, nil
}

func isParamList(data []byte) bool {
	return len(data) >= paramListHeader && (len(data)-paramListHeader)%paramEntrySize == 0
}

// isWaveBlock reports whether data fits the waveform layout: a header and
// the declared samples within the subrecord.
func isWaveBlock(data []byte) bool {
	if len(data) < waveHeaderSize {
		return false
	}
	return waveHeaderSize+2*int(binary.LittleEndian.Uint16(data[0:])) <= len(data)
}

func (d *Decoder) decodeParamList(sr Subrecord, recordTime time.Time) ([]Value, error) {
	data := sr.Data
	ts := subrecordTime(binary.LittleEndian.Uint32(data[0:]), recordTime)
	count := int(binary.LittleEndian.Uint16(data[4:]))
	if want := (len(data) - paramListHeader) / paramEntrySize; count != want {
		return nil, fmt.Errorf("%w: parameter count %d, room for %d", ErrMalformedRecord, count, want)
	}

	values := make([]Value, 0, count)
	for i := 0; i < count; i++ {
		entry := data[paramListHeader+i*paramEntrySize:]
		id := ParamID(binary.LittleEndian.Uint16(entry[0:]))
		raw := int16(binary.LittleEndian.Uint16(entry[2:]))
		flags := entry[4]

		info := d.tables.ParamOrGeneric(id)
		values = append(values, d.measurement(info, info.Scale, raw, flags&ParamFlagValid != 0, sr.Type, ts))
	}
	return values, nil
}

// measurement converts one raw value. A raw value in the special range is
// never converted, whatever the flag or scale says.
func (d *Decoder) measurement(info ParamInfo, scale float64, raw int16, flagValid bool, source uint8, ts time.Time) *Measurement {
	m := &Measurement{
		ID:     info.ID,
		Name:   info.Name,
		Unit:   info.Unit,
		Source: source,
		Time:   ts,
	}
	switch {
	case IsSpecial(raw):
		m.Status = StatusOf(raw)
	case !flagValid:
		m.Status = StatusInvalid
	default:
		m.Valid = true
		m.Value = float64(raw) * scale
	}
	return m
}

func (d *Decoder) decodeWaveform(sr Subrecord, ts time.Time) (*WaveformSample, error) {
	data := sr.Data
	if len(data) < waveHeaderSize {
		return nil, fmt.Errorf("%w: waveform subrecord of %d bytes", ErrMalformedRecord, len(data))
	}
	count := int(binary.LittleEndian.Uint16(data[0:]))
	status := WaveStatus(binary.LittleEndian.Uint16(data[2:]))
	if waveHeaderSize+2*count > len(data) {
		return nil, fmt.Errorf("%w: %d samples declared, room for %d",
			ErrMalformedRecord, count, (len(data)-waveHeaderSize)/2)
	}

	info := d.tables.ChannelOrGeneric(ChannelID(sr.Type))
	samples := make([]float64, count)
	for i := range samples {
		raw := int16(binary.LittleEndian.Uint16(data[waveHeaderSize+2*i:]))
		samples[i] = float64(raw) * info.Scale
	}

	return &WaveformSample{
		Channel:    info.ID,
		Name:       info.Name,
		Unit:       info.Unit,
		SampleRate: info.SampleRate,
		Samples:    samples,
		Status:     status,
		Time:       ts,
	}, nil
}

func decodeEvent(sr Subrecord, ts time.Time) (*Event, error) {
	data := sr.Data
	if len(data) < eventHeaderSize {
		return nil, fmt.Errorf("%w: alarm subrecord of %d bytes", ErrMalformedRecord, len(data))
	}
	n := int(data[1])
	if eventHeaderSize+n > len(data) {
		return nil, fmt.Errorf("%w: alarm text of %d bytes, room for %d",
			ErrMalformedRecord, n, len(data)-eventHeaderSize)
	}

	// single-byte Latin-1: each byte is the code point of the same value
	text := make([]rune, n)
	for i, b := range data[eventHeaderSize : eventHeaderSize+n] {
		text[i] = rune(b)
	}

	return &Event{
		Category: AlarmCategory(data[0]),
		Text:     string(text),
		Time:     ts,
	}, nil
}

func newUnknown(mt MainType, sr Subrecord, ts time.Time) *Unknown {
	return &Unknown{
		MainType: mt,
		Type:     sr.Type,
		Length:   len(sr.Data),
		Raw:      append([]byte(nil), sr.Data...),
		Time:     ts,
	}
}

// subrecordTime prefers the time stamped inside a subrecord and falls back
// to the record header time when it is zero.
func subrecordTime(secs uint32, recordTime time.Time) time.Time {
	if secs == 0 {
		return recordTime
	}
	return time.Unix(int64(secs), 0).UTC()
}
