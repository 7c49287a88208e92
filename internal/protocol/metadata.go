package protocol

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ParamID identifies a numeric parameter in parameter-list subrecords. The
// high byte is the DRI parameter group, the low byte the field within it.
type ParamID uint16

// Group returns the parameter group byte
func (id ParamID) Group() uint8 { return uint8(id >> 8) }

// Parameter groups
const (
	GroupECG   uint8 = 0x01
	GroupINVP1 uint8 = 0x02 // INVP1..INVP4 are consecutive
	GroupNIBP  uint8 = 0x06
	GroupTemp1 uint8 = 0x07
	GroupTemp2 uint8 = 0x08
	GroupSpO2  uint8 = 0x09
	GroupCO2   uint8 = 0x0A
	GroupO2    uint8 = 0x0B
	GroupN2O   uint8 = 0x0C
	GroupAA    uint8 = 0x0D
	GroupFlow  uint8 = 0x0E
)

// Well-known parameters
const (
	ParamHeartRate ParamID = 0x0101
	ParamST1       ParamID = 0x0102
	ParamST2       ParamID = 0x0103
	ParamST3       ParamID = 0x0104
	ParamImpRR     ParamID = 0x0105

	ParamNIBPSys  ParamID = 0x0601
	ParamNIBPDia  ParamID = 0x0602
	ParamNIBPMean ParamID = 0x0603
	ParamNIBPHR   ParamID = 0x0604

	ParamTemp1 ParamID = 0x0701
	ParamTemp2 ParamID = 0x0801

	ParamSpO2      ParamID = 0x0901
	ParamSpO2PR    ParamID = 0x0902
	ParamSpO2IRAmp ParamID = 0x0903

	ParamEtCO2 ParamID = 0x0A01
	ParamFiCO2 ParamID = 0x0A02
	ParamCO2RR ParamID = 0x0A03

	ParamEtO2  ParamID = 0x0B01
	ParamFiO2  ParamID = 0x0B02
	ParamEtN2O ParamID = 0x0C01
	ParamFiN2O ParamID = 0x0C02
	ParamEtAA  ParamID = 0x0D01
	ParamFiAA  ParamID = 0x0D02
	ParamMAC   ParamID = 0x0D03

	ParamVentRR     ParamID = 0x0E01
	ParamPPeak      ParamID = 0x0E02
	ParamPEEP       ParamID = 0x0E03
	ParamPPlat      ParamID = 0x0E04
	ParamTVInsp     ParamID = 0x0E05
	ParamTVExp      ParamID = 0x0E06
	ParamCompliance ParamID = 0x0E07
	ParamMVExp      ParamID = 0x0E08
)

// InvpParam returns the parameter id of field (1 sys, 2 dia, 3 mean, 4 hr)
// of invasive pressure channel n (1..4).
func InvpParam(n int, field uint8) ParamID {
	return ParamID(uint16(GroupINVP1+uint8(n-1))<<8 | uint16(field))
}

// ParamInfo is the static description of a numeric parameter.
type ParamInfo struct {
	ID    ParamID
	Name  string
	Unit  string
	Scale float64 // physical = raw * Scale
}

// ChannelID is the DRI waveform type, used as sr_type in WAVE records.
type ChannelID uint8

// Waveform channels
const (
	ChannelCmd       ChannelID = 0
	ChannelECG1      ChannelID = 1
	ChannelECG2      ChannelID = 2
	ChannelECG3      ChannelID = 3
	ChannelINVP1     ChannelID = 4
	ChannelINVP2     ChannelID = 5
	ChannelINVP3     ChannelID = 6
	ChannelINVP4     ChannelID = 7
	ChannelPleth     ChannelID = 8
	ChannelCO2       ChannelID = 9
	ChannelO2        ChannelID = 10
	ChannelN2O       ChannelID = 11
	ChannelAA        ChannelID = 12
	ChannelAWP       ChannelID = 13
	ChannelFlow      ChannelID = 14
	ChannelResp      ChannelID = 15
	ChannelINVP5     ChannelID = 16
	ChannelINVP6     ChannelID = 17
	ChannelEEG1      ChannelID = 18
	ChannelEEG2      ChannelID = 19
	ChannelEEG3      ChannelID = 20
	ChannelEEG4      ChannelID = 21
	ChannelVol       ChannelID = 23
	ChannelTonoPress ChannelID = 24
	ChannelSpiLoop   ChannelID = 29
	ChannelEnt100    ChannelID = 32
	ChannelEEGBIS    ChannelID = 35
	ChannelINVP7     ChannelID = 36
	ChannelINVP8     ChannelID = 37
	ChannelPleth2    ChannelID = 38
)

var channelShortNames = map[ChannelID]string{
	ChannelCmd: "CMD", ChannelECG1: "ECG1", ChannelECG2: "ECG2", ChannelECG3: "ECG3",
	ChannelINVP1: "INVP1", ChannelINVP2: "INVP2", ChannelINVP3: "INVP3", ChannelINVP4: "INVP4",
	ChannelPleth: "PLETH", ChannelCO2: "CO2", ChannelO2: "O2", ChannelN2O: "N2O", ChannelAA: "AA",
	ChannelAWP: "AWP", ChannelFlow: "FLOW", ChannelResp: "RESP", ChannelINVP5: "INVP5",
	ChannelINVP6: "INVP6", ChannelEEG1: "EEG1", ChannelEEG2: "EEG2", ChannelEEG3: "EEG3",
	ChannelEEG4: "EEG4", ChannelVol: "VOL", ChannelTonoPress: "TONO_PRESS",
	ChannelSpiLoop: "SPI_LOOP_STATUS", ChannelEnt100: "ENT_100", ChannelEEGBIS: "EEG_BIS",
	ChannelINVP7: "INVP7", ChannelINVP8: "INVP8", ChannelPleth2: "PLETH2",
}

// String returns the DRI waveform type name, such as "ECG1" or "PLETH".
func (c ChannelID) String() string {
	if name, ok := channelShortNames[c]; ok {
		return name
	}
	return fmt.Sprintf("WAVE_%d", uint8(c))
}

// ParseChannel resolves a DRI waveform type name (case-insensitive).
func ParseChannel(name string) (ChannelID, error) {
	for id, short := range channelShortNames {
		if strings.EqualFold(short, name) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("protocol: unknown waveform channel %q", name)
}

// ChannelInfo is the static description of a waveform channel.
type ChannelInfo struct {
	ID         ChannelID
	Name       string
	Unit       string
	Scale      float64
	SampleRate int
}

// Tables maps parameter and channel ids to their metadata. A Tables value
// is never modified after construction and may be shared by any number of
// decoders and encoders.
type Tables struct {
	params   map[ParamID]ParamInfo
	channels map[ChannelID]ChannelInfo
}

// NewTables builds tables from the given entries. Later entries replace
// earlier ones with the same id.
func NewTables(params []ParamInfo, channels []ChannelInfo) *Tables {
	t := &Tables{
		params:   make(map[ParamID]ParamInfo, len(params)),
		channels: make(map[ChannelID]ChannelInfo, len(channels)),
	}
	for _, p := range params {
		t.params[p.ID] = p
	}
	for _, c := range channels {
		t.channels[c.ID] = c
	}
	return t
}

var (
	defaultTablesOnce sync.Once
	defaultTables     *Tables
)

// DefaultTables returns the built-in tables for the monitor family.
func DefaultTables() *Tables {
	defaultTablesOnce.Do(func() {
		defaultTables = NewTables(defaultParams(), defaultChannels())
	})
	return defaultTables
}

// WithOverrides returns a copy of t with the given entries added or
// replaced. t itself is unchanged.
func (t *Tables) WithOverrides(params []ParamInfo, channels []ChannelInfo) *Tables {
	return NewTables(append(t.Params(), params...), append(t.Channels(), channels...))
}

// Param looks up a parameter
func (t *Tables) Param(id ParamID) (ParamInfo, bool) {
	p, ok := t.params[id]
	return p, ok
}

// ParamOrGeneric returns the table entry for id, or a generic entry with
// scale 1 when the id is not known.
func (t *Tables) ParamOrGeneric(id ParamID) ParamInfo {
	if p, ok := t.params[id]; ok {
		return p
	}
	return GenericParam(id)
}

// ParamByName finds a parameter by its display name.
func (t *Tables) ParamByName(name string) (ParamInfo, bool) {
	for _, p := range t.params {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return ParamInfo{}, false
}

// Channel looks up a waveform channel
func (t *Tables) Channel(id ChannelID) (ChannelInfo, bool) {
	c, ok := t.channels[id]
	return c, ok
}

// ChannelOrGeneric returns the table entry for id, or a generic entry with
// scale 1 and unknown sample rate.
func (t *Tables) ChannelOrGeneric(id ChannelID) ChannelInfo {
	if c, ok := t.channels[id]; ok {
		return c
	}
	return GenericChannel(id)
}

// Params returns all parameters ordered by id
func (t *Tables) Params() []ParamInfo {
	out := make([]ParamInfo, 0, len(t.params))
	for _, p := range t.params {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Channels returns all channels ordered by id
func (t *Tables) Channels() []ChannelInfo {
	out := make([]ChannelInfo, 0, len(t.channels))
	for _, c := range t.channels {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GenericParam describes a parameter id missing from the tables.
func GenericParam(id ParamID) ParamInfo {
	return ParamInfo{ID: id, Name: fmt.Sprintf("param_0x%04x", uint16(id)), Scale: 1}
}

// GenericChannel describes a channel id missing from the tables.
func GenericChannel(id ChannelID) ChannelInfo {
	return ChannelInfo{ID: id, Name: fmt.Sprintf("wave_%d", uint8(id)), Scale: 1}
}

func defaultParams() []ParamInfo {
	params := []ParamInfo{
		{ParamHeartRate, "heart rate", "bpm", 0.1},
		{ParamST1, "ST level 1", "mm", 0.01},
		{ParamST2, "ST level 2", "mm", 0.01},
		{ParamST3, "ST level 3", "mm", 0.01},
		{ParamImpRR, "impedance respiration rate", "/min", 0.1},

		{ParamNIBPSys, "NIBP systolic", "mmHg", 0.01},
		{ParamNIBPDia, "NIBP diastolic", "mmHg", 0.01},
		{ParamNIBPMean, "NIBP mean", "mmHg", 0.01},
		{ParamNIBPHR, "NIBP pulse rate", "bpm", 0.1},

		{ParamTemp1, "temperature 1", "°C", 0.01},
		{ParamTemp2, "temperature 2", "°C", 0.01},

		{ParamSpO2, "SpO2", "%", 0.01},
		{ParamSpO2PR, "SpO2 pulse rate", "bpm", 0.1},
		{ParamSpO2IRAmp, "SpO2 IR amplitude", "%", 0.1},

		{ParamEtCO2, "EtCO2", "%", 0.01},
		{ParamFiCO2, "FiCO2", "%", 0.01},
		{ParamCO2RR, "CO2 respiration rate", "/min", 0.1},

		{ParamEtO2, "EtO2", "%", 0.01},
		{ParamFiO2, "FiO2", "%", 0.01},
		{ParamEtN2O, "EtN2O", "%", 0.01},
		{ParamFiN2O, "FiN2O", "%", 0.01},
		{ParamEtAA, "EtAA", "%", 0.01},
		{ParamFiAA, "FiAA", "%", 0.01},
		{ParamMAC, "MAC", "", 0.01},

		{ParamVentRR, "ventilation rate", "/min", 0.1},
		{ParamPPeak, "peak airway pressure", "cmH2O", 0.01},
		{ParamPEEP, "PEEP", "cmH2O", 0.01},
		{ParamPPlat, "plateau pressure", "cmH2O", 0.01},
		{ParamTVInsp, "inspired tidal volume", "ml", 0.1},
		{ParamTVExp, "expired tidal volume", "ml", 0.1},
		{ParamCompliance, "compliance", "ml/cmH2O", 0.01},
		{ParamMVExp, "expired minute volume", "l/min", 0.01},
	}

	for n := 1; n <= 4; n++ {
		params = append(params,
			ParamInfo{InvpParam(n, 1), fmt.Sprintf("invasive pressure %d systolic", n), "mmHg", 0.01},
			ParamInfo{InvpParam(n, 2), fmt.Sprintf("invasive pressure %d diastolic", n), "mmHg", 0.01},
			ParamInfo{InvpParam(n, 3), fmt.Sprintf("invasive pressure %d mean", n), "mmHg", 0.01},
			ParamInfo{InvpParam(n, 4), fmt.Sprintf("invasive pressure %d pulse rate", n), "bpm", 0.1},
		)
	}
	return params
}

func defaultChannels() []ChannelInfo {
	channels := []ChannelInfo{
		{ChannelECG1, "ECG Lead I", "µV", 1, 300},
		{ChannelECG2, "ECG Lead II", "µV", 1, 300},
		{ChannelECG3, "ECG Lead III", "µV", 1, 300},
		{ChannelPleth, "Plethysmograph", "%", 0.1, 100},
		{ChannelPleth2, "Plethysmograph 2", "%", 0.1, 100},
		{ChannelCO2, "CO2", "%", 0.01, 25},
		{ChannelO2, "O2", "%", 0.01, 25},
		{ChannelN2O, "N2O", "%", 0.01, 25},
		{ChannelAA, "Anesthesia agent", "%", 0.01, 25},
		{ChannelAWP, "Airway pressure", "cmH2O", 0.1, 25},
		{ChannelFlow, "Airway flow", "l/min", 0.1, 25},
		{ChannelVol, "Airway volume", "ml", 1, 25},
		{ChannelResp, "Impedance respiration", "ohm", 0.01, 25},
		{ChannelTonoPress, "Tonometry pressure", "mmHg", 0.1, 25},
		{ChannelSpiLoop, "Spirometry loop status", "", 1, 25},
		{ChannelEnt100, "Entropy EEG", "µV", 0.1, 100},
		{ChannelEEGBIS, "BIS EEG", "µV", 1, 300},
	}

	invp := []ChannelID{
		ChannelINVP1, ChannelINVP2, ChannelINVP3, ChannelINVP4,
		ChannelINVP5, ChannelINVP6, ChannelINVP7, ChannelINVP8,
	}
	for i, id := range invp {
		channels = append(channels, ChannelInfo{id, fmt.Sprintf("Invasive pressure %d", i+1), "mmHg", 0.01, 100})
	}

	eeg := []ChannelID{ChannelEEG1, ChannelEEG2, ChannelEEG3, ChannelEEG4}
	for i, id := range eeg {
		channels = append(channels, ChannelInfo{id, fmt.Sprintf("EEG %d", i+1), "µV", 0.1, 100})
	}
	return channels
}
