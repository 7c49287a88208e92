package simulator

import (
	"math"
	"math/rand"

	"github.com/muurk/drilink/internal/protocol"
)

// Drift is a bounded random walk around a baseline. Each step pulls the
// value a tenth of the way back towards the baseline (at most MaxStep) and
// adds uniform jitter, then clamps to [Min, Max].
type Drift struct {
	Baseline float64
	Min      float64
	Max      float64
	MaxStep  float64
	Jitter   float64

	value float64
}

// NewDrift creates a Drift starting at its baseline
func NewDrift(baseline, min, max, maxStep, jitter float64) *Drift {
	return &Drift{
		Baseline: baseline,
		Min:      min,
		Max:      max,
		MaxStep:  maxStep,
		Jitter:   jitter,
		value:    baseline,
	}
}

// Value returns the current value without stepping
func (d *Drift) Value() float64 { return d.value }

// Set moves both the value and the baseline
func (d *Drift) Set(v float64) {
	d.Baseline = clamp(v, d.Min, d.Max)
	d.value = d.Baseline
}

// Step advances the walk and returns the new value
func (d *Drift) Step(r *rand.Rand) float64 {
	pull := clamp((d.Baseline-d.value)/10, -d.MaxStep, d.MaxStep)
	d.value = clamp(d.value+pull+(r.Float64()-0.5)*2*d.Jitter, d.Min, d.Max)
	return d.value
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// vital binds a parameter to its drift
type vital struct {
	id    protocol.ParamID
	drift *Drift
}

// defaultVitals is an adult under general anaesthesia on a ventilator
func defaultVitals() []*vital {
	return []*vital{
		{protocol.ParamHeartRate, NewDrift(75, 30, 220, 2, 1)},
		{protocol.ParamSpO2, NewDrift(98, 70, 100, 0.5, 0.3)},
		{protocol.ParamNIBPSys, NewDrift(120, 60, 220, 3, 2)},
		{protocol.ParamNIBPDia, NewDrift(80, 30, 130, 2, 1.5)},
		{protocol.ParamNIBPMean, NewDrift(93, 40, 160, 2, 1.5)},
		{protocol.ParamTemp1, NewDrift(37.0, 33, 42, 0.05, 0.05)},
		{protocol.ParamEtCO2, NewDrift(5.2, 2, 9, 0.1, 0.1)},
		{protocol.ParamFiCO2, NewDrift(0.1, 0, 1, 0.02, 0.02)},
		{protocol.ParamCO2RR, NewDrift(16, 4, 40, 0.5, 0.5)},
		{protocol.ParamPPeak, NewDrift(20, 5, 50, 1, 0.5)},
		{protocol.ParamPEEP, NewDrift(5, 0, 20, 0.2, 0.1)},
		{protocol.ParamTVInsp, NewDrift(500, 100, 1200, 10, 8)},
		{protocol.ParamTVExp, NewDrift(490, 100, 1200, 10, 8)},
		{protocol.ParamMVExp, NewDrift(7.8, 1, 20, 0.2, 0.1)},
	}
}

// Shape maps a position within one cycle, in [0, 1), to a sample in
// physical units. level carries the current numeric value the shape
// follows, such as EtCO2 for the capnogram.
type Shape func(pos, level float64) float64

// waveGenerator produces phase continuous samples for one channel.
type waveGenerator struct {
	channel protocol.ChannelID
	rate    int
	shape   Shape
	rateOf  protocol.ParamID // cycles per minute come from this vital
	levelOf protocol.ParamID // level passed to the shape, 0 for none

	phase float64 // position within the current cycle
	carry float64 // fractional samples owed from earlier blocks
}

// next returns the samples covering dt seconds at the given cycle rate.
func (g *waveGenerator) next(seconds, perMinute, level float64) []float64 {
	g.carry += float64(g.rate) * seconds
	n := int(g.carry + 1e-9) // absorbs float error in rate*seconds
	g.carry -= float64(n)

	step := perMinute / 60 / float64(g.rate)
	out := make([]float64, n)
	for i := range out {
		out[i] = g.shape(g.phase, level)
		g.phase += step
		g.phase -= math.Floor(g.phase)
	}
	return out
}

func gauss(x, center, width float64) float64 {
	d := (x - center) / width
	return math.Exp(-d * d / 2)
}

// ECGShape is a P-QRS-T complex in µV
func ECGShape(pos, _ float64) float64 {
	return 150*gauss(pos, 0.10, 0.025) -
		150*gauss(pos, 0.20, 0.008) +
		1200*gauss(pos, 0.23, 0.010) -
		300*gauss(pos, 0.26, 0.008) +
		300*gauss(pos, 0.45, 0.040)
}

// PlethShape is a plethysmogram in %: systolic upstroke then a dicrotic
// notch and wave.
func PlethShape(pos, _ float64) float64 {
	return 20 + 60*gauss(pos, 0.18, 0.07) + 18*gauss(pos, 0.45, 0.06)
}

// CapnogramShape is a CO2 trace in %. Inspiration sits at baseline, the
// expiratory upstroke rises to a slightly sloped plateau reaching level
// (EtCO2) at end expiration.
func CapnogramShape(pos, level float64) float64 {
	switch {
	case pos < 0.40:
		return 0
	case pos < 0.50:
		return level * 0.9 * (pos - 0.40) / 0.10
	case pos < 0.90:
		return level * (0.9 + 0.1*(pos-0.50)/0.40)
	default:
		return level * (1 - (pos-0.90)/0.10)
	}
}

// AirwayPressureShape is a volume-controlled breath in cmH2O from PEEP
// (the level) up to a peak and back.
func AirwayPressureShape(pos, level float64) float64 {
	const peakAbovePEEP = 15
	switch {
	case pos < 0.30:
		return level + peakAbovePEEP*pos/0.30
	case pos < 0.35:
		return level + peakAbovePEEP*0.8
	default:
		return level + peakAbovePEEP*0.8*math.Exp(-(pos-0.35)/0.05)
	}
}

// newWaveGenerator returns the generator for ch. Channels without a
// dedicated shape get a 1 Hz sine.
func newWaveGenerator(ch protocol.ChannelID, rate int) *waveGenerator {
	g := &waveGenerator{channel: ch, rate: rate, rateOf: protocol.ParamHeartRate}
	switch ch {
	case protocol.ChannelECG1, protocol.ChannelECG2, protocol.ChannelECG3:
		g.shape = ECGShape
	case protocol.ChannelPleth, protocol.ChannelPleth2:
		g.shape = PlethShape
	case protocol.ChannelCO2:
		g.shape = CapnogramShape
		g.rateOf = protocol.ParamCO2RR
		g.levelOf = protocol.ParamEtCO2
	case protocol.ChannelAWP:
		g.shape = AirwayPressureShape
		g.rateOf = protocol.ParamCO2RR
		g.levelOf = protocol.ParamPEEP
	default:
		g.shape = func(pos, _ float64) float64 { return math.Sin(2 * math.Pi * pos) }
		g.rateOf = 0
	}
	return g
}
