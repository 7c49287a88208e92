package simulator

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sync"
	"time"

	"github.com/muurk/drilink/internal/logging"
	"github.com/muurk/drilink/internal/protocol"
	"go.uber.org/zap"
)

// Default intervals
const (
	DefaultNumericInterval = 5 * time.Second
	DefaultWaveInterval    = 250 * time.Millisecond
)

// Config configures an Engine
type Config struct {
	NumericInterval time.Duration
	WaveInterval    time.Duration
	Channels        []protocol.ChannelID

	// Classic sends numerics in the fixed basic-class layout instead of
	// parameter lists.
	Classic bool

	// Alarms enables alarm text records when a vital crosses a limit.
	Alarms bool

	// WaitForRequest keeps the engine silent until a transmission request
	// arrives through HandleRequest.
	WaitForRequest bool

	// Seed makes the drift reproducible. Zero seeds from the clock.
	Seed int64
}

// DefaultConfig returns numerics every 5 s and ECG, pleth and CO2 waves.
func DefaultConfig() Config {
	return Config{
		NumericInterval: DefaultNumericInterval,
		WaveInterval:    DefaultWaveInterval,
		Channels:        []protocol.ChannelID{protocol.ChannelECG2, protocol.ChannelPleth, protocol.ChannelCO2},
		Alarms:          true,
	}
}

// Engine plays the monitor side of the protocol: it generates plausible
// vitals and waveforms and writes them as framed DRI records.
type Engine struct {
	enc *protocol.Encoder
	rng *rand.Rand

	mu       sync.Mutex
	cfg      Config
	numerics bool
	vitals   []*vital
	byID     map[protocol.ParamID]*vital
	waves    []*waveGenerator
	alarms   map[string]bool // active state per alarm text
	changed  chan struct{}
}

// New creates an Engine. The channel set must be acceptable to a monitor:
// at most 8 channels within the total sample rate.
func New(cfg Config, enc *protocol.Encoder) (*Engine, error) {
	if enc == nil {
		enc = protocol.NewEncoder(nil)
	}
	if cfg.NumericInterval <= 0 {
		cfg.NumericInterval = DefaultNumericInterval
	}
	if cfg.WaveInterval <= 0 {
		cfg.WaveInterval = DefaultWaveInterval
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	e := &Engine{
		enc:      enc,
		rng:      rand.New(rand.NewSource(seed)),
		cfg:      cfg,
		numerics: !cfg.WaitForRequest,
		vitals:   defaultVitals(),
		alarms:   make(map[string]bool),
		changed:  make(chan struct{}, 1),
	}
	e.byID = make(map[protocol.ParamID]*vital, len(e.vitals))
	for _, v := range e.vitals {
		e.byID[v.id] = v
	}

	channels := cfg.Channels
	if cfg.WaitForRequest {
		channels = nil
	}
	if err := e.setChannels(channels); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) setChannels(channels []protocol.ChannelID) error {
	if len(channels) > 8 {
		return fmt.Errorf("%w: %d", protocol.ErrTooManyChannels, len(channels))
	}
	if total := e.enc.TotalSampleRate(channels...); total > protocol.MaxTotalSampleRate {
		return fmt.Errorf("%w: %d samples/s", protocol.ErrSampleRateExceeded, total)
	}

	tables := e.enc.Tables()
	waves := make([]*waveGenerator, 0, len(channels))
	for _, ch := range channels {
		info := tables.ChannelOrGeneric(ch)
		rate := info.SampleRate
		if rate == 0 {
			rate = 25
		}
		waves = append(waves, newWaveGenerator(ch, rate))
	}
	e.waves = waves
	e.cfg.Channels = channels
	return nil
}

// Config returns the current configuration, including changes made by
// requests.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	cfg := e.cfg
	cfg.Channels = append([]protocol.ChannelID(nil), e.cfg.Channels...)
	return cfg
}

// Set pins a vital to v; it keeps drifting around the new value. Unknown
// ids are ignored.
func (e *Engine) Set(id protocol.ParamID, v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if vt, ok := e.byID[id]; ok {
		vt.drift.Set(v)
	}
}

// HandleRequest applies a transmission request received from a client the
// way a monitor would: a PHDB request sets the numeric interval (zero
// stops numerics), a waveform request replaces or clears the channel set.
func (e *Engine) HandleRequest(req protocol.Request) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch r := req.(type) {
	case *protocol.PhdbRequest:
		e.numerics = r.Interval > 0
		if r.Interval > 0 {
			e.cfg.NumericInterval = time.Duration(r.Interval) * time.Second
		}

	case *protocol.WaveformRequest:
		channels := r.Channels
		if r.Type == protocol.WaveRequestStop {
			channels = nil
		}
		if err := e.setChannels(channels); err != nil {
			return err
		}

	default:
		return fmt.Errorf("simulator: unsupported request %s", req)
	}

	logging.Info("Request applied", zap.String("request", req.String()))
	select {
	case e.changed <- struct{}{}:
	default:
	}
	return nil
}

// NumericValues steps every vital once and returns them as measurements.
func (e *Engine) NumericValues(now time.Time) []*protocol.Measurement {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.numericValues(now)
}

func (e *Engine) numericValues(now time.Time) []*protocol.Measurement {
	tables := e.enc.Tables()
	ms := make([]*protocol.Measurement, len(e.vitals))
	for i, v := range e.vitals {
		info := tables.ParamOrGeneric(v.id)
		ms[i] = &protocol.Measurement{
			ID:     v.id,
			Name:   info.Name,
			Unit:   info.Unit,
			Value:  v.drift.Step(e.rng),
			Valid:  true,
			Source: protocol.PhdbDispl,
			Time:   now,
		}
	}
	return ms
}

// WaveformValues returns one block per active channel covering dt.
// Consecutive calls continue each waveform where the last one stopped.
func (e *Engine) WaveformValues(now time.Time, dt time.Duration) []*protocol.WaveformSample {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.waveformValues(now, dt)
}

func (e *Engine) waveformValues(now time.Time, dt time.Duration) []*protocol.WaveformSample {
	tables := e.enc.Tables()
	blocks := make([]*protocol.WaveformSample, 0, len(e.waves))
	for _, g := range e.waves {
		perMinute := 60.0
		if g.rateOf != 0 {
			perMinute = e.byID[g.rateOf].drift.Value()
		}
		level := 0.0
		if g.levelOf != 0 {
			level = e.byID[g.levelOf].drift.Value()
		}

		info := tables.ChannelOrGeneric(g.channel)
		blocks = append(blocks, &protocol.WaveformSample{
			Channel:    g.channel,
			Name:       info.Name,
			Unit:       info.Unit,
			SampleRate: g.rate,
			Samples:    g.next(dt.Seconds(), perMinute, level),
			Time:       now,
		})
	}
	return blocks
}

// AlarmEvents compares the current vitals against the alarm limits and
// returns an event for every limit newly crossed.
func (e *Engine) AlarmEvents(now time.Time) []*protocol.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.alarmEvents(now)
}

func (e *Engine) alarmEvents(now time.Time) []*protocol.Event {
	var events []*protocol.Event
	for _, lim := range alarmLimits {
		v, ok := e.byID[lim.id]
		if !ok {
			continue
		}
		active := lim.crossed(v.drift.Value())
		if active && !e.alarms[lim.text] {
			events = append(events, &protocol.Event{Category: lim.category, Text: lim.text, Time: now})
		}
		e.alarms[lim.text] = active
	}
	return events
}

// NumericFrame returns the framed numeric record for now
func (e *Engine) NumericFrame(now time.Time) ([]byte, error) {
	e.mu.Lock()
	ms := e.numericValues(now)
	classic := e.cfg.Classic
	e.mu.Unlock()

	var (
		record []byte
		err    error
	)
	if classic {
		record, err = e.enc.EncodeClassic(now, protocol.PhdbDispl, ms)
	} else {
		record, err = e.enc.EncodeMeasurements(now, protocol.PhdbDispl, ms)
	}
	if err != nil {
		return nil, err
	}
	return protocol.BuildFrame(record)
}

// Run writes records to sink until ctx is cancelled or a write fails.
// Numerics (and alarms) go out every NumericInterval, starting
// immediately; waveforms every WaveInterval. Write errors are returned as
// they are.
func (e *Engine) Run(ctx context.Context, sink io.Writer) error {
	cfg := e.Config()
	numeric := time.NewTicker(cfg.NumericInterval)
	defer numeric.Stop()
	wave := time.NewTicker(cfg.WaveInterval)
	defer wave.Stop()

	logging.Info("Simulator started",
		zap.Duration("numeric_interval", cfg.NumericInterval),
		zap.Duration("wave_interval", cfg.WaveInterval),
		zap.Int("channels", len(cfg.Channels)),
	)

	if err := e.sendNumerics(sink, time.Now()); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-e.changed:
			numeric.Reset(e.Config().NumericInterval)

		case now := <-numeric.C:
			if err := e.sendNumerics(sink, now); err != nil {
				return err
			}

		case now := <-wave.C:
			if err := e.sendWaves(sink, now, cfg.WaveInterval); err != nil {
				return err
			}
		}
	}
}

func (e *Engine) sendNumerics(sink io.Writer, now time.Time) error {
	e.mu.Lock()
	enabled := e.numerics
	alarmsOn := e.cfg.Alarms
	e.mu.Unlock()
	if !enabled {
		return nil
	}

	frame, err := e.NumericFrame(now)
	if err != nil {
		return fmt.Errorf("encoding numerics: %w", err)
	}
	if _, err := sink.Write(frame); err != nil {
		return fmt.Errorf("writing numerics: %w", err)
	}

	if !alarmsOn {
		return nil
	}
	events := e.AlarmEvents(now)
	if len(events) == 0 {
		return nil
	}
	for _, ev := range events {
		logging.Info("Alarm raised", zap.String("text", ev.Text), zap.Stringer("category", ev.Category))
	}
	record, err := e.enc.EncodeEvents(now, events)
	if err != nil {
		return fmt.Errorf("encoding alarms: %w", err)
	}
	frame, err = protocol.BuildFrame(record)
	if err != nil {
		return fmt.Errorf("encoding alarms: %w", err)
	}
	if _, err := sink.Write(frame); err != nil {
		return fmt.Errorf("writing alarms: %w", err)
	}
	return nil
}

func (e *Engine) sendWaves(sink io.Writer, now time.Time, dt time.Duration) error {
	blocks := e.WaveformValues(now, dt)
	if len(blocks) == 0 {
		return nil
	}
	records, err := e.enc.EncodeWaveformRecords(now, blocks)
	if err != nil {
		return fmt.Errorf("encoding waveforms: %w", err)
	}
	for _, record := range records {
		frame, err := protocol.BuildFrame(record)
		if err != nil {
			return fmt.Errorf("encoding waveforms: %w", err)
		}
		if _, err := sink.Write(frame); err != nil {
			return fmt.Errorf("writing waveforms: %w", err)
		}
	}
	return nil
}
