package protocol

import (
	"fmt"
	"strings"
	"time"
)

// Kind tags the variants of Value
type Kind uint8

const (
	KindMeasurement Kind = iota + 1
	KindWaveform
	KindEvent
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindMeasurement:
		return "measurement"
	case KindWaveform:
		return "waveform"
	case KindEvent:
		return "event"
	case KindUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Value is one decoded unit of clinical data. The concrete types are
// *Measurement, *WaveformSample, *Event and *Unknown; switch on the type
// or on Kind().
type Value interface {
	Kind() Kind
	String() string
}

// Measurement is a single numeric physiological value in physical units.
type Measurement struct {
	ID     ParamID
	Name   string
	Unit   string
	Value  float64 // zero unless Valid
	Valid  bool
	Status Status // why the value is not valid
	Label  string // group label from classic records, such as the pressure site
	Source uint8  // PHDB subrecord type: DISPL, TREND10S, ...
	Time   time.Time
}

// Kind implements Value
func (m *Measurement) Kind() Kind { return KindMeasurement }

// String returns a human-readable representation of the measurement
func (m *Measurement) String() string {
	if !m.Valid {
		return fmt.Sprintf("Measurement{%s: %s}", m.Name, m.Status)
	}
	return fmt.Sprintf("Measurement{%s: %g %s}", m.Name, m.Value, m.Unit)
}

// WaveStatus carries the per-block waveform status bits
type WaveStatus uint16

const (
	WaveGap     WaveStatus = 1 << 0 // samples were lost before this block
	WavePacer   WaveStatus = 1 << 2 // pacer pulse detected
	WaveLeadOff WaveStatus = 1 << 3 // ECG lead off
)

// Gap reports whether samples were lost before this block
func (s WaveStatus) Gap() bool { return s&WaveGap != 0 }

// Pacer reports whether a pacer pulse was detected
func (s WaveStatus) Pacer() bool { return s&WavePacer != 0 }

// LeadOff reports whether an ECG lead was off
func (s WaveStatus) LeadOff() bool { return s&WaveLeadOff != 0 }

func (s WaveStatus) String() string {
	var flags []string
	if s.Gap() {
		flags = append(flags, "gap")
	}
	if s.Pacer() {
		flags = append(flags, "pacer")
	}
	if s.LeadOff() {
		flags = append(flags, "lead-off")
	}
	if len(flags) == 0 {
		return "ok"
	}
	return strings.Join(flags, ",")
}

// WaveformSample is one block of consecutive samples from a waveform
// channel, in physical units.
type WaveformSample struct {
	Channel    ChannelID
	Name       string
	Unit       string
	SampleRate int // samples per second, 0 when the channel is not in the tables
	Samples    []float64
	Status     WaveStatus
	Time       time.Time
}

// Kind implements Value
func (w *WaveformSample) Kind() Kind { return KindWaveform }

// Duration returns the time span covered by the block.
func (w *WaveformSample) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(w.Samples)) * time.Second / time.Duration(w.SampleRate)
}

// String returns a human-readable representation of the block
func (w *WaveformSample) String() string {
	return fmt.Sprintf("WaveformSample{%s: %d samples @ %d Hz, %s}", w.Name, len(w.Samples), w.SampleRate, w.Status)
}

// AlarmCategory is the priority carried with alarm text
type AlarmCategory uint8

const (
	AlarmNone     AlarmCategory = 0
	AlarmAdvisory AlarmCategory = 1 // white
	AlarmCaution  AlarmCategory = 2 // yellow
	AlarmWarning  AlarmCategory = 3 // red
)

func (c AlarmCategory) String() string {
	switch c {
	case AlarmNone:
		return "none"
	case AlarmAdvisory:
		return "advisory"
	case AlarmCaution:
		return "caution"
	case AlarmWarning:
		return "warning"
	default:
		return fmt.Sprintf("category(%d)", uint8(c))
	}
}

// Event is an alarm or text message shown by the monitor. The text is
// passed through without interpretation.
type Event struct {
	Category AlarmCategory
	Text     string
	Time     time.Time
}

// Kind implements Value
func (e *Event) Kind() Kind { return KindEvent }

// String returns a human-readable representation of the event
func (e *Event) String() string {
	return fmt.Sprintf("Event{%s: %q}", e.Category, e.Text)
}

// Unknown is a structurally valid subrecord the decoder has no grammar for.
// It keeps the raw bytes so nothing is silently lost.
type Unknown struct {
	MainType MainType
	Type     uint8 // sr_type
	Length   int   // declared subrecord length
	Raw      []byte
	Time     time.Time
}

// Kind implements Value
func (u *Unknown) Kind() Kind { return KindUnknown }

// String returns a human-readable representation of the subrecord
func (u *Unknown) String() string {
	return fmt.Sprintf("Unknown{%s sr_type=%d, %d bytes}", u.MainType, u.Type, u.Length)
}
