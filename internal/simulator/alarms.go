package simulator

import "github.com/muurk/drilink/internal/protocol"

type alarmLimit struct {
	id       protocol.ParamID
	above    bool // alarm when the value exceeds limit, otherwise when below
	limit    float64
	category protocol.AlarmCategory
	text     string
}

func (l alarmLimit) crossed(v float64) bool {
	if l.above {
		return v > l.limit
	}
	return v < l.limit
}

var alarmLimits = []alarmLimit{
	{protocol.ParamHeartRate, true, 120, protocol.AlarmWarning, "HR HIGH"},
	{protocol.ParamHeartRate, false, 45, protocol.AlarmWarning, "HR LOW"},
	{protocol.ParamSpO2, false, 90, protocol.AlarmCaution, "SpO2 LOW"},
	{protocol.ParamEtCO2, true, 6.5, protocol.AlarmCaution, "EtCO2 HIGH"},
	{protocol.ParamPPeak, true, 35, protocol.AlarmAdvisory, "Ppeak HIGH"},
	{protocol.ParamTemp1, true, 38.5, protocol.AlarmAdvisory, "T1 HIGH"},
}
