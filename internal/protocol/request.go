package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrNotRequest is returned by ParseRequest for records that carry data
// rather than a transmission request.
var ErrNotRequest = errors.New("protocol: record is not a request")

// Request is a transmission request sent to a monitor
type Request interface {
	MainType() MainType
	String() string
}

// PhdbRequest asks for physiological data
type PhdbRequest struct {
	Subtype   uint8  // DISPL, TREND10S, ...
	Interval  uint16 // seconds
	ClassMask uint32 // bit n selects class n
}

// MainType implements Request
func (r *PhdbRequest) MainType() MainType { return MainTypePHDB }

func (r *PhdbRequest) String() string {
	return fmt.Sprintf("PhdbRequest{%s every %ds, classes=0x%x}", PhdbSubtypeName(r.Subtype), r.Interval, r.ClassMask)
}

// WaveformRequest starts or stops waveform transmission
type WaveformRequest struct {
	Type     uint16 // WaveRequestStart or WaveRequestStop
	Channels []ChannelID
}

// MainType implements Request
func (r *WaveformRequest) MainType() MainType { return MainTypeWave }

func (r *WaveformRequest) String() string {
	action := "start"
	if r.Type == WaveRequestStop {
		action = "stop"
	}
	return fmt.Sprintf("WaveformRequest{%s %v}", action, r.Channels)
}

// ParseRequest decodes the request carried by record, the inverse of
// BuildPhdbRequest and BuildWaveformRequest.
func ParseRequest(record []byte) (Request, error) {
	h, err := ParseHeader(record)
	if err != nil {
		return nil, err
	}
	subs, err := h.Subrecords(record)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return nil, ErrNotRequest
	}
	sr := subs[0]

	switch {
	case h.MainType == MainTypePHDB && sr.Type == PhdbXmitReq:
		if len(sr.Data) < PhdbRequestSize-2 {
			return nil, fmt.Errorf("%w: phdb request of %d bytes", ErrMalformedRecord, len(sr.Data))
		}
		return &PhdbRequest{
			Subtype:   sr.Data[0],
			Interval:  binary.LittleEndian.Uint16(sr.Data[1:]),
			ClassMask: binary.LittleEndian.Uint32(sr.Data[3:]),
		}, nil

	case h.MainType == MainTypeWave && ChannelID(sr.Type) == ChannelCmd:
		if len(sr.Data) < 4+maxRequestChannels {
			return nil, fmt.Errorf("%w: waveform request of %d bytes", ErrMalformedRecord, len(sr.Data))
		}
		req := &WaveformRequest{Type: binary.LittleEndian.Uint16(sr.Data[0:])}
		for _, b := range sr.Data[4 : 4+maxRequestChannels] {
			if b == EndOfDescriptors {
				break
			}
			req.Channels = append(req.Channels, ChannelID(b))
		}
		return req, nil
	}

	return nil, ErrNotRequest
}
