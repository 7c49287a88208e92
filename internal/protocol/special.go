package protocol

// DataInvalidLimit is the upper bound of the DRI special value range. Any raw
// value at or below it is a status code, never a measurement.
const DataInvalidLimit int16 = -32001

// Special raw values
const (
	RawDataInvalid   int16 = -32767
	RawNotUpdated    int16 = -32766
	RawDiscont       int16 = -32765
	RawUnderRange    int16 = -32764
	RawOverRange     int16 = -32763
	RawNotCalibrated int16 = -32762
)

// Status describes whether a measurement carries a usable value
type Status uint8

const (
	StatusOK Status = iota
	StatusInvalid
	StatusNotUpdated
	StatusDiscontinuity
	StatusUnderRange
	StatusOverRange
	StatusNotCalibrated
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusInvalid:
		return "invalid"
	case StatusNotUpdated:
		return "not updated"
	case StatusDiscontinuity:
		return "discontinuity"
	case StatusUnderRange:
		return "under range"
	case StatusOverRange:
		return "over range"
	case StatusNotCalibrated:
		return "not calibrated"
	default:
		return "unknown"
	}
}

// IsSpecial reports whether raw falls in the special value range.
func IsSpecial(raw int16) bool {
	return raw <= DataInvalidLimit
}

// StatusOf maps a raw wire value to its status. Unassigned codes inside the
// special range are reported as StatusInvalid.
func StatusOf(raw int16) Status {
	if !IsSpecial(raw) {
		return StatusOK
	}
	switch raw {
	case RawNotUpdated:
		return StatusNotUpdated
	case RawDiscont:
		return StatusDiscontinuity
	case RawUnderRange:
		return StatusUnderRange
	case RawOverRange:
		return StatusOverRange
	case RawNotCalibrated:
		return StatusNotCalibrated
	default:
		return StatusInvalid
	}
}

// Raw returns the wire code for a non-OK status.
func (s Status) Raw() int16 {
	switch s {
	case StatusNotUpdated:
		return RawNotUpdated
	case StatusDiscontinuity:
		return RawDiscont
	case StatusUnderRange:
		return RawUnderRange
	case StatusOverRange:
		return RawOverRange
	case StatusNotCalibrated:
		return RawNotCalibrated
	default:
		return RawDataInvalid
	}
}
