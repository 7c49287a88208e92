package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"
)

// Encoder errors
var (
	ErrNoValues           = errors.New("protocol: no values to encode")
	ErrMixedRecord        = errors.New("protocol: values of different kinds in one record")
	ErrTooManyChannels    = errors.New("protocol: too many waveform channels")
	ErrSampleRateExceeded = errors.New("protocol: total sample rate exceeded")
)

// Request subrecord sizes
const (
	PhdbRequestSize     = 9  // subtype u8, interval u16, class mask u32, reserved u16
	WaveformRequestSize = 32 // type u16, reserved u16, 8 channel bytes, 20 reserved
	maxRequestChannels  = 8
)

// maxEventText is the longest alarm text the one-byte length can carry.
const maxEventText = 255

// Encoder builds DRI records from Values. It is the inverse of Decoder:
// a record produced here decodes back to equivalent values.
//
// Range policy: a measurement that does not fit the wire range after
// scaling is sent as the not-available code, a waveform sample is
// saturated to the int16 range.
//
// An Encoder is safe for concurrent use; the only mutable state is the
// record number counter.
type Encoder struct {
	tables *Tables
	plugID uint16
	level  DRILevel
	nbr    atomic.Uint32
}

// EncoderOption configures an Encoder
type EncoderOption func(*Encoder)

// WithPlugID sets the plug id written to record headers
func WithPlugID(id uint16) EncoderOption {
	return func(e *Encoder) { e.plugID = id }
}

// WithDRILevel sets the DRI level written to record headers
func WithDRILevel(level DRILevel) EncoderOption {
	return func(e *Encoder) { e.level = level }
}

// NewEncoder creates an Encoder. A nil tables argument selects
// DefaultTables.
func NewEncoder(tables *Tables, opts ...EncoderOption) *Encoder {
	if tables == nil {
		tables = DefaultTables()
	}
	e := &Encoder{tables: tables, level: DRILevel04}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Tables returns the metadata tables used by the encoder
func (e *Encoder) Tables() *Tables {
	return e.tables
}

// EncodeFrame encodes values into one record and wraps it in framing,
// ready to be written to a transport.
func (e *Encoder) EncodeFrame(ts time.Time, values []Value) ([]byte, error) {
	record, err := e.EncodeRecord(ts, values)
	if err != nil {
		return nil, err
	}
	return BuildFrame(record)
}

// EncodeRecord encodes values destined for one record. All values must be
// of the same kind, since a record has a single main type:
//
//   - measurements become one parameter-list subrecord (DISPL)
//   - every waveform block becomes one WAVE subrecord
//   - every event becomes one ALARM text subrecord
//   - unknown values are written back verbatim and must share a main type
func (e *Encoder) EncodeRecord(ts time.Time, values []Value) ([]byte, error) {
	if len(values) == 0 {
		return nil, ErrNoValues
	}

	kind := values[0].Kind()
	for i, v := range values {
		if v.Kind() != kind {
			return nil, fmt.Errorf("%w: value %d is a %s, value 0 a %s", ErrMixedRecord, i, v.Kind(), kind)
		}
	}

	switch kind {
	case KindMeasurement:
		ms := make([]*Measurement, len(values))
		for i, v := range values {
			ms[i] = v.(*Measurement)
		}
		return e.EncodeMeasurements(ts, PhdbDispl, ms)

	case KindWaveform:
		ws := make([]*WaveformSample, len(values))
		for i, v := range values {
			ws[i] = v.(*WaveformSample)
		}
		return e.EncodeWaveforms(ts, ws)

	case KindEvent:
		evs := make([]*Event, len(values))
		for i, v := range values {
			evs[i] = v.(*Event)
		}
		return e.EncodeEvents(ts, evs)

	case KindUnknown:
		return e.encodeUnknown(ts, values)

	default:
		return nil, fmt.Errorf("protocol: cannot encode value kind %s", kind)
	}
}

// EncodeMeasurements builds a PHDB record with one parameter-list
// subrecord of the given subtype (DISPL, TREND10S, TREND60S or AUX).
func (e *Encoder) EncodeMeasurements(ts time.Time, subtype uint8, ms []*Measurement) ([]byte, error) {
	size := paramListHeader + paramEntrySize*len(ms)
	if size > MaxDataSize {
		return nil, fmt.Errorf("%w: %d measurements", ErrRecordTooLarge, len(ms))
	}

	data := make([]byte, size)
	binary.LittleEndian.PutUint32(data[0:], unixSeconds(ts))
	binary.LittleEndian.PutUint16(data[4:], uint16(len(ms)))

	for i, m := range ms {
		entry := data[paramListHeader+i*paramEntrySize:]
		raw, valid := encodeMeasurementRaw(m, e.tables.ParamOrGeneric(m.ID).Scale)
		binary.LittleEndian.PutUint16(entry[0:], uint16(m.ID))
		binary.LittleEndian.PutUint16(entry[2:], uint16(raw))
		if valid {
			entry[4] = ParamFlagValid
		}
	}

	return e.buildRecord(ts, MainTypePHDB, []Subrecord{{Type: subtype, Data: data}})
}

// EncodeWaveforms builds a WAVE record with one subrecord per block.
func (e *Encoder) EncodeWaveforms(ts time.Time, ws []*WaveformSample) ([]byte, error) {
	subs := make([]Subrecord, len(ws))
	for i, w := range ws {
		scale := e.tables.ChannelOrGeneric(w.Channel).Scale
		data := make([]byte, waveHeaderSize+2*len(w.Samples))
		binary.LittleEndian.PutUint16(data[0:], uint16(len(w.Samples)))
		binary.LittleEndian.PutUint16(data[2:], uint16(w.Status))
		for j, v := range w.Samples {
			binary.LittleEndian.PutUint16(data[waveHeaderSize+2*j:], uint16(encodeSample(v, scale)))
		}
		subs[i] = Subrecord{Type: uint8(w.Channel), Data: data}
	}
	return e.buildRecord(ts, MainTypeWave, subs)
}

// maxBlockSamples is the most samples one WAVE subrecord can carry
const maxBlockSamples = (MaxDataSize - waveHeaderSize) / 2

// EncodeWaveformRecords is EncodeWaveforms for blocks that may not fit in
// one record. Blocks are packed in order into as few WAVE records as the
// size and subrecord limits allow. A block longer than maxBlockSamples is
// split into consecutive blocks of the same channel.
func (e *Encoder) EncodeWaveformRecords(ts time.Time, ws []*WaveformSample) ([][]byte, error) {
	var (
		records [][]byte
		batch   []*WaveformSample
		size    int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		record, err := e.EncodeWaveforms(ts, batch)
		if err != nil {
			return err
		}
		records = append(records, record)
		batch, size = nil, 0
		return nil
	}

	for _, w := range ws {
		for _, part := range splitBlock(w) {
			n := waveHeaderSize + 2*len(part.Samples)
			if len(batch) == MaxSubrecords || size+n > MaxDataSize {
				if err := flush(); err != nil {
					return nil, err
				}
			}
			batch = append(batch, part)
			size += n
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return records, nil
}

func splitBlock(w *WaveformSample) []*WaveformSample {
	if len(w.Samples) <= maxBlockSamples {
		return []*WaveformSample{w}
	}
	parts := make([]*WaveformSample, 0, (len(w.Samples)+maxBlockSamples-1)/maxBlockSamples)
	for start := 0; start < len(w.Samples); start += maxBlockSamples {
		part := *w
		part.Samples = w.Samples[start:min(start+maxBlockSamples, len(w.Samples))]
		parts = append(parts, &part)
	}
	return parts
}

// EncodeEvents builds an ALARM record with one text subrecord per event.
// Text is sent as Latin-1; other characters become '?' and text beyond 255
// bytes is cut.
func (e *Encoder) EncodeEvents(ts time.Time, evs []*Event) ([]byte, error) {
	subs := make([]Subrecord, len(evs))
	for i, ev := range evs {
		text := latin1(ev.Text)
		data := make([]byte, 0, eventHeaderSize+len(text))
		data = append(data, uint8(ev.Category), uint8(len(text)))
		data = append(data, text...)
		subs[i] = Subrecord{Type: AlarmDispl, Data: data}
	}
	return e.buildRecord(ts, MainTypeAlarm, subs)
}

func (e *Encoder) encodeUnknown(ts time.Time, values []Value) ([]byte, error) {
	mt := values[0].(*Unknown).MainType
	subs := make([]Subrecord, len(values))
	for i, v := range values {
		u := v.(*Unknown)
		if u.MainType != mt {
			return nil, fmt.Errorf("%w: main types %s and %s", ErrMixedRecord, mt, u.MainType)
		}
		subs[i] = Subrecord{Type: u.Type, Data: u.Raw}
	}
	return e.buildRecord(ts, mt, subs)
}

// BuildPhdbRequest builds the record that asks a monitor to start sending
// physiological data of the given subtype every interval seconds, for the
// classes set in classMask (bit n selects class n).
func (e *Encoder) BuildPhdbRequest(subtype uint8, interval uint16, classMask uint32) ([]byte, error) {
	data := make([]byte, PhdbRequestSize)
	data[0] = subtype
	binary.LittleEndian.PutUint16(data[1:], interval)
	binary.LittleEndian.PutUint32(data[3:], classMask)
	return e.buildRequest(MainTypePHDB, PhdbXmitReq, data)
}

// BuildWaveformRequest builds the record that starts or stops waveform
// transmission. A monitor accepts at most 8 channels with a combined rate of
// MaxTotalSampleRate samples per second.
func (e *Encoder) BuildWaveformRequest(reqType uint16, channels ...ChannelID) ([]byte, error) {
	if len(channels) > maxRequestChannels {
		return nil, fmt.Errorf("%w: %d (maximum %d)", ErrTooManyChannels, len(channels), maxRequestChannels)
	}
	if reqType == WaveRequestStart {
		if total := e.TotalSampleRate(channels...); total > MaxTotalSampleRate {
			return nil, fmt.Errorf("%w: %d samples/s (maximum %d)", ErrSampleRateExceeded, total, MaxTotalSampleRate)
		}
	}

	data := make([]byte, WaveformRequestSize)
	binary.LittleEndian.PutUint16(data[0:], reqType)
	for i, ch := range channels {
		data[4+i] = uint8(ch)
	}
	if len(channels) < maxRequestChannels {
		data[4+len(channels)] = EndOfDescriptors
	}
	return e.buildRequest(MainTypeWave, uint8(ChannelCmd), data)
}

// TotalSampleRate sums the table sample rates of channels
func (e *Encoder) TotalSampleRate(channels ...ChannelID) int {
	total := 0
	for _, ch := range channels {
		total += e.tables.ChannelOrGeneric(ch).SampleRate
	}
	return total
}

// buildRequest frames a request record. Monitors ignore the time, level and
// record number of requests, so they are left zero.
func (e *Encoder) buildRequest(mt MainType, srType uint8, data []byte) ([]byte, error) {
	h := RecordHeader{
		Length:      uint16(HeaderSize + len(data)),
		MainType:    mt,
		Descriptors: []Descriptor{{Offset: 0, Type: srType}},
	}
	record := h.Append(make([]byte, 0, int(h.Length)))
	return BuildFrame(append(record, data...))
}

// buildRecord lays out subrecords behind a header, filling in the length
// and descriptor offsets.
func (e *Encoder) buildRecord(ts time.Time, mt MainType, subs []Subrecord) ([]byte, error) {
	if len(subs) > MaxSubrecords {
		return nil, fmt.Errorf("%w: %d subrecords (maximum %d)", ErrRecordTooLarge, len(subs), MaxSubrecords)
	}

	size := HeaderSize
	descs := make([]Descriptor, len(subs))
	for i, sr := range subs {
		descs[i] = Descriptor{Offset: uint16(size - HeaderSize), Type: sr.Type}
		size += len(sr.Data)
	}
	if size > MaxRecordSize {
		return nil, fmt.Errorf("%w: %d bytes (maximum %d)", ErrRecordTooLarge, size, MaxRecordSize)
	}

	h := RecordHeader{
		Length:       uint16(size),
		RecordNumber: uint8(e.nbr.Add(1) - 1),
		DRILevel:     e.level,
		PlugID:       e.plugID,
		Time:         unixSeconds(ts),
		MainType:     mt,
		Descriptors:  descs,
	}

	record := h.Append(make([]byte, 0, size))
	for _, sr := range subs {
		record = append(record, sr.Data...)
	}
	return record, nil
}

// encodeMeasurementRaw applies the inverse scale. Values outside the
// representable range, NaN and infinities become the not-available code.
func encodeMeasurementRaw(m *Measurement, scale float64) (int16, bool) {
	if !m.Valid {
		return m.Status.Raw(), false
	}
	if scale == 0 {
		scale = 1
	}
	r := math.Round(m.Value / scale)
	if math.IsNaN(r) || r <= float64(DataInvalidLimit) || r > math.MaxInt16 {
		return RawDataInvalid, false
	}
	return int16(r), true
}

// encodeSample applies the inverse scale and saturates to int16.
func encodeSample(v, scale float64) int16 {
	if scale == 0 {
		scale = 1
	}
	r := math.Round(v / scale)
	switch {
	case math.IsNaN(r):
		return 0
	case r > math.MaxInt16:
		return math.MaxInt16
	case r < math.MinInt16:
		return math.MinInt16
	}
	return int16(r)
}

func latin1(s string) []byte {
	out := make([]byte, 0, len(s))
	for _, r := range s {
		if len(out) == maxEventText {
			break
		}
		if r > 0xFF {
			r = '?'
		}
		out = append(out, byte(r))
	}
	return out
}

func unixSeconds(ts time.Time) uint32 {
	if ts.IsZero() || ts.Unix() < 0 {
		return 0
	}
	return uint32(ts.Unix())
}
