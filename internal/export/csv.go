package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/drilink/internal/protocol"
)

// CSVHeader is the first row written by CSVWriter
var CSVHeader = []string{"time", "kind", "id", "name", "value", "unit", "status", "label", "source"}

// CSVWriter writes one row per measurement, waveform block, event and
// unknown subrecord. Waveform samples go in the value column separated by
// spaces; unknown subrecords carry their raw bytes in hex.
type CSVWriter struct {
	w           *csv.Writer
	wroteHeader bool
}

// NewCSVWriter creates a CSVWriter. The header row is written with the
// first record.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(w)}
}

// HandleRecord implements protocol.Handler
func (c *CSVWriter) HandleRecord(rec *protocol.Record) error {
	if !c.wroteHeader {
		if err := c.w.Write(CSVHeader); err != nil {
			return err
		}
		c.wroteHeader = true
	}

	for _, v := range rec.Values {
		if err := c.w.Write(csvRow(rec.Header, v)); err != nil {
			return err
		}
	}
	c.w.Flush()
	return c.w.Error()
}

func csvRow(h *protocol.RecordHeader, v protocol.Value) []string {
	switch v := v.(type) {
	case *protocol.Measurement:
		value := ""
		if v.Valid {
			value = strconv.FormatFloat(v.Value, 'f', -1, 64)
		}
		return []string{
			csvTime(v.Time), v.Kind().String(), fmt.Sprintf("0x%04x", uint16(v.ID)), v.Name,
			value, v.Unit, v.Status.String(), v.Label, protocol.PhdbSubtypeName(v.Source),
		}

	case *protocol.WaveformSample:
		samples := make([]string, len(v.Samples))
		for i, s := range v.Samples {
			samples[i] = strconv.FormatFloat(s, 'f', -1, 64)
		}
		return []string{
			csvTime(v.Time), v.Kind().String(), strconv.Itoa(int(v.Channel)), v.Name,
			strings.Join(samples, " "), v.Unit, v.Status.String(), "", strconv.Itoa(v.SampleRate),
		}

	case *protocol.Event:
		return []string{
			csvTime(v.Time), v.Kind().String(), "", "", v.Text, "", v.Category.String(), "", "",
		}

	case *protocol.Unknown:
		return []string{
			csvTime(v.Time), v.Kind().String(), strconv.Itoa(int(v.Type)), v.MainType.String(),
			fmt.Sprintf("%x", v.Raw), "", "", "", "",
		}
	}
	return []string{csvTime(h.Timestamp()), v.Kind().String(), "", "", v.String(), "", "", "", ""}
}

func csvTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
