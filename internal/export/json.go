package export

import (
	"encoding/json"
	"io"
	"time"

	"github.com/muurk/drilink/internal/protocol"
)

// JSONValue is the JSON lines form of one decoded value. Fields that do
// not apply to a kind are omitted.
type JSONValue struct {
	Time     time.Time `json:"time"`
	Record   uint8     `json:"record"`
	Kind     string    `json:"kind"`
	ID       *uint16   `json:"id,omitempty"`
	Name     string    `json:"name,omitempty"`
	Value    *float64  `json:"value,omitempty"`
	Unit     string    `json:"unit,omitempty"`
	Status   string    `json:"status,omitempty"`
	Label    string    `json:"label,omitempty"`
	Rate     int       `json:"rate,omitempty"`
	Samples  []float64 `json:"samples,omitempty"`
	Category string    `json:"category,omitempty"`
	Text     string    `json:"text,omitempty"`
	MainType string    `json:"main_type,omitempty"`
	Raw      []byte    `json:"raw,omitempty"`
}

// JSONWriter writes one JSON object per line for every decoded value
type JSONWriter struct {
	enc *json.Encoder
}

// NewJSONWriter creates a JSONWriter
func NewJSONWriter(w io.Writer) *JSONWriter {
	return &JSONWriter{enc: json.NewEncoder(w)}
}

// HandleRecord implements protocol.Handler
func (j *JSONWriter) HandleRecord(rec *protocol.Record) error {
	for _, v := range rec.Values {
		if err := j.enc.Encode(ToJSON(rec.Header, v)); err != nil {
			return err
		}
	}
	return nil
}

// ToJSON converts one value of a record
func ToJSON(h *protocol.RecordHeader, v protocol.Value) JSONValue {
	out := JSONValue{Time: h.Timestamp(), Record: h.RecordNumber, Kind: v.Kind().String()}

	switch v := v.(type) {
	case *protocol.Measurement:
		id := uint16(v.ID)
		out.ID = &id
		out.Time = v.Time
		out.Name = v.Name
		out.Unit = v.Unit
		out.Status = v.Status.String()
		out.Label = v.Label
		if v.Valid {
			value := v.Value
			out.Value = &value
		}

	case *protocol.WaveformSample:
		id := uint16(v.Channel)
		out.ID = &id
		out.Time = v.Time
		out.Name = v.Name
		out.Unit = v.Unit
		out.Status = v.Status.String()
		out.Rate = v.SampleRate
		out.Samples = v.Samples

	case *protocol.Event:
		out.Time = v.Time
		out.Category = v.Category.String()
		out.Text = v.Text

	case *protocol.Unknown:
		id := uint16(v.Type)
		out.ID = &id
		out.Time = v.Time
		out.MainType = v.MainType.String()
		out.Raw = v.Raw
	}
	return out
}
