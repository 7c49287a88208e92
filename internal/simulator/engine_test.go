package simulator

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"testing"
	"time"

	"github.com/muurk/drilink/internal/protocol"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Seed == 0 {
		cfg.Seed = 42
	}
	e, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestDriftStaysInBounds(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	d := NewDrift(75, 30, 220, 2, 40)
	for i := 0; i < 10000; i++ {
		if v := d.Step(r); v < 30 || v > 220 {
			t.Fatalf("step %d: value %v outside [30, 220]", i, v)
		}
	}
}

func TestDriftReturnsToBaseline(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	d := NewDrift(75, 30, 220, 2, 0)
	d.value = 150
	for i := 0; i < 500; i++ {
		d.Step(r)
	}
	if v := d.Value(); v < 74.9 || v > 75.1 {
		t.Errorf("value = %v after 500 steps, want close to 75", v)
	}
}

func TestNumericValues(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	ms := e.NumericValues(testNow)

	byID := make(map[protocol.ParamID]*protocol.Measurement)
	for _, m := range ms {
		byID[m.ID] = m
	}
	hr := byID[protocol.ParamHeartRate]
	if hr == nil || hr.Name != "heart rate" || !hr.Valid {
		t.Fatalf("heart rate = %v", hr)
	}
	if hr.Value < 65 || hr.Value > 85 {
		t.Errorf("heart rate = %v, want near 75", hr.Value)
	}
	if spo2 := byID[protocol.ParamSpO2]; spo2 == nil || spo2.Value > 100 {
		t.Errorf("SpO2 = %v", spo2)
	}
}

func TestSeedIsReproducible(t *testing.T) {
	a := newTestEngine(t, Config{Seed: 7})
	b := newTestEngine(t, Config{Seed: 7})
	for i := 0; i < 20; i++ {
		ma, mb := a.NumericValues(testNow), b.NumericValues(testNow)
		for j := range ma {
			if ma[j].Value != mb[j].Value {
				t.Fatalf("step %d value %d differs: %v vs %v", i, j, ma[j].Value, mb[j].Value)
			}
		}
	}
}

func TestWaveformPhaseContinuity(t *testing.T) {
	cfg := Config{Channels: []protocol.ChannelID{protocol.ChannelECG2, protocol.ChannelPleth, protocol.ChannelCO2}}
	chunked := newTestEngine(t, cfg)
	whole := newTestEngine(t, cfg)

	var got [3][]float64
	for i := 0; i < 4; i++ {
		for c, block := range chunked.WaveformValues(testNow, 250*time.Millisecond) {
			got[c] = append(got[c], block.Samples...)
		}
	}
	want := whole.WaveformValues(testNow, time.Second)

	for c, block := range want {
		if len(got[c]) != len(block.Samples) {
			t.Fatalf("%s: %d chunked samples, want %d", block.Name, len(got[c]), len(block.Samples))
		}
		if len(block.Samples) != block.SampleRate {
			t.Errorf("%s: %d samples in 1s at %d Hz", block.Name, len(block.Samples), block.SampleRate)
		}
		for i := range block.Samples {
			if got[c][i] != block.Samples[i] {
				t.Fatalf("%s: sample %d = %v, want %v", block.Name, i, got[c][i], block.Samples[i])
			}
		}
	}
}

func TestWaveformFractionalSamples(t *testing.T) {
	// CO2 runs at 25 Hz: 40 ms blocks carry one sample each
	e := newTestEngine(t, Config{Channels: []protocol.ChannelID{protocol.ChannelCO2}})
	total := 0
	for i := 0; i < 25; i++ {
		total += len(e.WaveformValues(testNow, 40*time.Millisecond)[0].Samples)
	}
	if total != 25 {
		t.Errorf("got %d samples over 1s, want 25", total)
	}
}

func TestShapes(t *testing.T) {
	tests := []struct {
		name   string
		shape  Shape
		level  float64
		lo, hi float64
	}{
		{name: "ecg", shape: ECGShape, lo: -400, hi: 1300},
		{name: "pleth", shape: PlethShape, lo: 0, hi: 100},
		{name: "capnogram", shape: CapnogramShape, level: 5.2, lo: 0, hi: 5.2},
		{name: "airway pressure", shape: AirwayPressureShape, level: 5, lo: 5, hi: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for i := 0; i < 1000; i++ {
				pos := float64(i) / 1000
				if v := tt.shape(pos, tt.level); v < tt.lo || v > tt.hi {
					t.Fatalf("shape(%v) = %v outside [%v, %v]", pos, v, tt.lo, tt.hi)
				}
			}
		})
	}
}

func TestNewRejectsChannelSets(t *testing.T) {
	tests := []struct {
		name     string
		channels []protocol.ChannelID
		wantErr  error
	}{
		{
			name:     "three ecg leads",
			channels: []protocol.ChannelID{protocol.ChannelECG1, protocol.ChannelECG2, protocol.ChannelECG3},
			wantErr:  protocol.ErrSampleRateExceeded,
		},
		{
			name:     "nine channels",
			channels: []protocol.ChannelID{1, 8, 9, 10, 11, 12, 13, 14, 15},
			wantErr:  protocol.ErrTooManyChannels,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(Config{Channels: tt.channels}, nil); !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAlarmEvents(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	if evs := e.AlarmEvents(testNow); len(evs) != 0 {
		t.Fatalf("alarms at baseline: %v", evs)
	}

	e.Set(protocol.ParamHeartRate, 150)
	evs := e.AlarmEvents(testNow)
	if len(evs) != 1 || evs[0].Text != "HR HIGH" || evs[0].Category != protocol.AlarmWarning {
		t.Fatalf("alarms = %v, want HR HIGH warning", evs)
	}
	if evs := e.AlarmEvents(testNow); len(evs) != 0 {
		t.Errorf("active alarm raised again: %v", evs)
	}

	e.Set(protocol.ParamHeartRate, 75)
	e.AlarmEvents(testNow)
	e.Set(protocol.ParamHeartRate, 150)
	if evs := e.AlarmEvents(testNow); len(evs) != 1 {
		t.Errorf("alarm not raised after clearing: %v", evs)
	}
}

func TestHandleRequest(t *testing.T) {
	e := newTestEngine(t, Config{WaitForRequest: true})
	if frame := e.WaveformValues(testNow, time.Second); len(frame) != 0 {
		t.Fatalf("waiting engine produced %d blocks", len(frame))
	}

	if err := e.HandleRequest(&protocol.PhdbRequest{Subtype: protocol.PhdbDispl, Interval: 10, ClassMask: 1}); err != nil {
		t.Fatalf("HandleRequest(phdb) error = %v", err)
	}
	if got := e.Config().NumericInterval; got != 10*time.Second {
		t.Errorf("NumericInterval = %v, want 10s", got)
	}

	start := &protocol.WaveformRequest{
		Type:     protocol.WaveRequestStart,
		Channels: []protocol.ChannelID{protocol.ChannelPleth, protocol.ChannelAWP},
	}
	if err := e.HandleRequest(start); err != nil {
		t.Fatalf("HandleRequest(start) error = %v", err)
	}
	if blocks := e.WaveformValues(testNow, time.Second); len(blocks) != 2 {
		t.Errorf("got %d blocks after start, want 2", len(blocks))
	}

	tooFast := &protocol.WaveformRequest{
		Type:     protocol.WaveRequestStart,
		Channels: []protocol.ChannelID{protocol.ChannelECG1, protocol.ChannelECG2, protocol.ChannelECG3},
	}
	if err := e.HandleRequest(tooFast); !errors.Is(err, protocol.ErrSampleRateExceeded) {
		t.Errorf("HandleRequest(too fast) error = %v", err)
	}

	if err := e.HandleRequest(&protocol.WaveformRequest{Type: protocol.WaveRequestStop}); err != nil {
		t.Fatalf("HandleRequest(stop) error = %v", err)
	}
	if blocks := e.WaveformValues(testNow, time.Second); len(blocks) != 0 {
		t.Errorf("got %d blocks after stop, want 0", len(blocks))
	}
}

func TestNumericFrameDecodes(t *testing.T) {
	for _, classic := range []bool{false, true} {
		e := newTestEngine(t, Config{Classic: classic})
		frame, err := e.NumericFrame(testNow)
		if err != nil {
			t.Fatalf("NumericFrame(classic=%v) error = %v", classic, err)
		}

		fr := protocol.NewFrameReader(bytes.NewReader(frame))
		f, err := fr.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() error = %v", err)
		}
		rec, err := protocol.NewDecoder(nil).Decode(f)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}

		found := false
		for _, v := range rec.Values {
			if m, ok := v.(*protocol.Measurement); ok && m.ID == protocol.ParamHeartRate && m.Valid {
				found = true
				if m.Value < 60 || m.Value > 90 {
					t.Errorf("classic=%v: heart rate = %v", classic, m.Value)
				}
			}
		}
		if !found {
			t.Errorf("classic=%v: no heart rate in %d values", classic, len(rec.Values))
		}
	}
}

func TestRun(t *testing.T) {
	e := newTestEngine(t, Config{
		NumericInterval: 20 * time.Millisecond,
		WaveInterval:    10 * time.Millisecond,
		Channels:        []protocol.ChannelID{protocol.ChannelECG1, protocol.ChannelCO2},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	var sink bytes.Buffer
	if err := e.Run(ctx, &sink); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}

	counts := make(map[protocol.MainType]int)
	fr := protocol.NewFrameReader(&sink)
	for {
		f, err := fr.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame() error = %v", err)
		}
		counts[f.MainType()]++
	}

	if counts[protocol.MainTypePHDB] < 1 {
		t.Errorf("no numeric records written")
	}
	if counts[protocol.MainTypeWave] < 1 {
		t.Errorf("no waveform records written")
	}
	if st := fr.Stats(); st.Failures != 0 {
		t.Errorf("synchronizer failures = %d, want 0", st.Failures)
	}
}

func TestRunLongWaveInterval(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WaveInterval = 2 * time.Second
	e := newTestEngine(t, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 2500*time.Millisecond)
	defer cancel()

	var sink bytes.Buffer
	if err := e.Run(ctx, &sink); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}

	samples := make(map[protocol.ChannelID]int)
	dec := protocol.NewDecoder(nil)
	fr := protocol.NewFrameReader(&sink)
	for {
		f, err := fr.ReadFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame() error = %v", err)
		}
		if len(f.Payload) > protocol.MaxRecordSize {
			t.Errorf("record of %d bytes, maximum %d", len(f.Payload), protocol.MaxRecordSize)
		}
		rec, err := dec.Decode(f)
		if err != nil {
			t.Fatalf("Decode() error = %v", err)
		}
		for _, v := range rec.Values {
			if w, ok := v.(*protocol.WaveformSample); ok {
				samples[w.Channel] += len(w.Samples)
			}
		}
	}

	want := map[protocol.ChannelID]int{
		protocol.ChannelECG2:  600,
		protocol.ChannelPleth: 200,
		protocol.ChannelCO2:   50,
	}
	for ch, n := range want {
		if samples[ch] != n {
			t.Errorf("%s: %d samples, want %d for one 2s tick", ch, samples[ch], n)
		}
	}
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestRunWriteError(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	boom := errors.New("port closed")

	err := e.Run(context.Background(), failingWriter{boom})
	if !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want %v", err, boom)
	}
}
