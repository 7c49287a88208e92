package protocol

import (
	"encoding/binary"
	"strings"
	"time"
)

// Classic physiological subrecord layout, as sent by monitors that have not
// been asked for parameter lists. The size is fixed; 1082 is not a multiple
// of the parameter-list entry size, so the two grammars cannot be confused.
const (
	ClassicSubrecordSize = 1088
	classicClassOffset   = 4    // class data follows the timestamp
	classicTypeWord      = 1086 // class in bits 8-11, subtype in bits 0-7
	classicGroupHeader   = 6    // status u32, label u16
)

// Group status bits
const (
	groupExists uint32 = 1 << 0
	groupActive uint32 = 1 << 1
)

type classicField struct {
	offset int // from the start of the group
	id     ParamID
	scale  float64
}

type classicGroup struct {
	offset int // from the start of the class data
	size   int
	fields []classicField
	labels []string // label word value -> name, nil when the group has no label
	leads  bool     // label packs three ECG lead selections
}

var (
	ecgLeadNames = []string{"", "I", "II", "III", "aVR", "aVL", "aVF", "V"}

	invpLabelNames = []string{
		"", "ART", "CVP", "PA", "RAP", "RVP", "LAP", "ICP", "ABP", "P1", "P2", "P3",
		"P4", "P5", "P6", "SP", "FEM", "UAC", "UVC", "ICP2", "P7", "P8", "FEMV",
	}

	tempLabelNames = []string{
		"", "ESO", "NASO", "TYMP", "RECT", "BLAD", "AXIL", "SKIN", "AIRW", "ROOM",
		"MYO", "T1", "T2", "T3", "T4", "CORE", "SURF", "T5", "T6",
	}

	agentNames = []string{"", "none", "HAL", "ENF", "ISO", "DES", "SEV"}
)

// classicGroups describes the basic physiological class. Scales here are the
// monitor's native ones and may differ from the parameter-list scales.
var classicGroups = buildClassicGroups()

func buildClassicGroups() []classicGroup {
	pressure := func(sys, dia, mean, hr ParamID) []classicField {
		return []classicField{
			{6, sys, 0.01},
			{8, dia, 0.01},
			{10, mean, 0.01},
			{12, hr, 1},
		}
	}

	groups := []classicGroup{{
		offset: 0, size: 16, leads: true,
		fields: []classicField{
			{6, ParamHeartRate, 1},
			{8, ParamST1, 0.01},
			{10, ParamST2, 0.01},
			{12, ParamST3, 0.01},
			{14, ParamImpRR, 1},
		},
	}}

	for n := 1; n <= 4; n++ {
		groups = append(groups, classicGroup{
			offset: 16 + (n-1)*14, size: 14, labels: invpLabelNames,
			fields: pressure(InvpParam(n, 1), InvpParam(n, 2), InvpParam(n, 3), InvpParam(n, 4)),
		})
	}

	return append(groups,
		classicGroup{offset: 76, size: 14, fields: pressure(ParamNIBPSys, ParamNIBPDia, ParamNIBPMean, ParamNIBPHR)},
		classicGroup{offset: 90, size: 8, labels: tempLabelNames, fields: []classicField{{6, ParamTemp1, 0.01}}},
		classicGroup{offset: 98, size: 8, labels: tempLabelNames, fields: []classicField{{6, ParamTemp2, 0.01}}},
		classicGroup{offset: 122, size: 14, fields: []classicField{
			{6, ParamSpO2, 0.01},
			{8, ParamSpO2PR, 1},
			{10, ParamSpO2IRAmp, 0.1},
		}},
		classicGroup{offset: 136, size: 14, fields: []classicField{
			{6, ParamEtCO2, 0.01},
			{8, ParamFiCO2, 0.01},
			{10, ParamCO2RR, 1},
		}},
		classicGroup{offset: 150, size: 10, fields: []classicField{{6, ParamEtO2, 0.01}, {8, ParamFiO2, 0.01}}},
		classicGroup{offset: 160, size: 10, fields: []classicField{{6, ParamEtN2O, 0.01}, {8, ParamFiN2O, 0.01}}},
		classicGroup{offset: 170, size: 12, labels: agentNames, fields: []classicField{
			{6, ParamEtAA, 0.01},
			{8, ParamFiAA, 0.01},
			{10, ParamMAC, 0.01},
		}},
		classicGroup{offset: 182, size: 22, fields: []classicField{
			{6, ParamVentRR, 1},
			{8, ParamPPeak, 0.01},
			{10, ParamPEEP, 0.01},
			{12, ParamPPlat, 0.01},
			{14, ParamTVInsp, 0.1},
			{16, ParamTVExp, 0.1},
			{18, ParamCompliance, 0.01},
			{20, ParamMVExp, 0.01},
		}},
	)
}

func (g *classicGroup) labelName(word uint16) string {
	if g.leads {
		var leads []string
		for shift := 0; shift <= 8; shift += 4 {
			if n := int(word>>shift) & 0x0F; n > 0 && n < len(ecgLeadNames) {
				leads = append(leads, ecgLeadNames[n])
			}
		}
		return strings.Join(leads, "/")
	}
	if int(word) < len(g.labels) {
		return g.labels[word]
	}
	return ""
}

func (g *classicGroup) labelWord(name string) uint16 {
	if name == "" {
		return 0
	}
	if g.leads {
		var word uint16
		for i, lead := range strings.SplitN(name, "/", 3) {
			for n, known := range ecgLeadNames {
				if n > 0 && known == lead {
					word |= uint16(n) << (4 * i)
				}
			}
		}
		return word
	}
	for n, known := range g.labels {
		if n > 0 && known == name {
			return uint16(n)
		}
	}
	return 0
}

// decodeClassic reads a basic-class physiological subrecord. Only groups
// flagged as existing produce measurements.
func (d *Decoder) decodeClassic(mt MainType, sr Subrecord, recordTime time.Time) []Value {
	data := sr.Data
	word := binary.LittleEndian.Uint16(data[classicTypeWord:])
	if uint8(word>>8)&0x0F != ClassBasic {
		return []Value{newUnknown(mt, sr, recordTime)}
	}
	ts := subrecordTime(binary.LittleEndian.Uint32(data[0:]), recordTime)

	class := data[classicClassOffset:classicTypeWord]
	var values []Value
	for gi := range classicGroups {
		g := &classicGroups[gi]
		group := class[g.offset : g.offset+g.size]
		if binary.LittleEndian.Uint32(group[0:])&groupExists == 0 {
			continue
		}

		label := ""
		if g.leads || g.labels != nil {
			label = g.labelName(binary.LittleEndian.Uint16(group[4:]))
		}
		for _, f := range g.fields {
			raw := int16(binary.LittleEndian.Uint16(group[f.offset:]))
			m := d.measurement(d.tables.ParamOrGeneric(f.id), f.scale, raw, true, sr.Type, ts)
			m.Label = label
			values = append(values, m)
		}
	}
	return values
}

// EncodeClassic builds a PHDB record holding one basic-class subrecord of
// the given subtype. Measurements without a slot in the layout are left
// out; slots without a measurement carry the not-available code.
func (e *Encoder) EncodeClassic(ts time.Time, subtype uint8, ms []*Measurement) ([]byte, error) {
	data := make([]byte, ClassicSubrecordSize)
	binary.LittleEndian.PutUint32(data[0:], unixSeconds(ts))
	binary.LittleEndian.PutUint16(data[classicTypeWord:], uint16(ClassBasic)<<8|uint16(subtype))

	byID := make(map[ParamID]*Measurement, len(ms))
	for _, m := range ms {
		byID[m.ID] = m
	}

	class := data[classicClassOffset:classicTypeWord]
	for gi := range classicGroups {
		g := &classicGroups[gi]
		group := class[g.offset : g.offset+g.size]

		present := false
		label := ""
		for _, f := range g.fields {
			raw := RawDataInvalid
			if m, ok := byID[f.id]; ok {
				present = true
				raw, _ = encodeMeasurementRaw(m, f.scale)
				if m.Label != "" {
					label = m.Label
				}
			}
			binary.LittleEndian.PutUint16(group[f.offset:], uint16(raw))
		}
		if present {
			binary.LittleEndian.PutUint32(group[0:], groupExists|groupActive)
			binary.LittleEndian.PutUint16(group[4:], g.labelWord(label))
		}
	}

	return e.buildRecord(ts, MainTypePHDB, []Subrecord{{Type: subtype, Data: data}})
}
