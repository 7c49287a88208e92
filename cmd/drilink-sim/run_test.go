package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/muurk/drilink/internal/protocol"
	"github.com/muurk/drilink/internal/simulator"
)

var simTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// chunkReader returns its data a few bytes per Read, then err
type chunkReader struct {
	data []byte
	size int
	err  error
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, r.err
	}
	n := r.size
	if n > len(r.data) {
		n = len(r.data)
	}
	n = copy(p[:n], r.data)
	r.data = r.data[n:]
	return n, nil
}

func TestReadRequests(t *testing.T) {
	enc := protocol.NewEncoder(nil)
	phdb, err := enc.BuildPhdbRequest(protocol.PhdbTrend10s, 10, 1<<protocol.ClassBasic)
	if err != nil {
		t.Fatal(err)
	}
	wave, err := enc.BuildWaveformRequest(protocol.WaveRequestStart, protocol.ChannelECG1)
	if err != nil {
		t.Fatal(err)
	}
	data, err := enc.EncodeFrame(simTime, []protocol.Value{
		&protocol.Measurement{ID: protocol.ParamHeartRate, Value: 60, Valid: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	var stream bytes.Buffer
	stream.Write([]byte{0x00, 0x11}) // line noise
	stream.Write(phdb)
	stream.Write(data) // not a request
	stream.Write(wave)

	tests := []struct {
		name    string
		readErr error
		handle  error
		verify  func(t *testing.T, got []protocol.Request, err error)
	}{
		{
			name:    "clean end",
			readErr: io.EOF,
			verify: func(t *testing.T, got []protocol.Request, err error) {
				if err != nil {
					t.Fatalf("readRequests() error = %v", err)
				}
				if len(got) != 2 {
					t.Fatalf("got %d requests, want 2", len(got))
				}
				if r, ok := got[0].(*protocol.PhdbRequest); !ok || r.Subtype != protocol.PhdbTrend10s {
					t.Errorf("first request = %v, want TREND10S", got[0])
				}
				if r, ok := got[1].(*protocol.WaveformRequest); !ok || len(r.Channels) != 1 || r.Channels[0] != protocol.ChannelECG1 {
					t.Errorf("second request = %v, want ECG1 start", got[1])
				}
			},
		},
		{
			name:    "handler errors are not fatal",
			readErr: io.EOF,
			handle:  errors.New("rejected"),
			verify: func(t *testing.T, got []protocol.Request, err error) {
				if err != nil {
					t.Fatalf("readRequests() error = %v", err)
				}
				if len(got) != 2 {
					t.Errorf("got %d requests, want 2", len(got))
				}
			},
		},
		{
			name:    "read failure",
			readErr: io.ErrUnexpectedEOF,
			verify: func(t *testing.T, got []protocol.Request, err error) {
				if !errors.Is(err, io.ErrUnexpectedEOF) {
					t.Errorf("readRequests() error = %v, want io.ErrUnexpectedEOF", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []protocol.Request
			r := &chunkReader{data: bytes.Clone(stream.Bytes()), size: 7, err: tt.readErr}
			err := readRequests(context.Background(), r, func(req protocol.Request) error {
				got = append(got, req)
				return tt.handle
			})
			tt.verify(t, got, err)
		})
	}
}

func TestRequestsDriveEngine(t *testing.T) {
	cfg := simulator.DefaultConfig()
	cfg.WaitForRequest = true
	cfg.Channels = nil
	engine, err := simulator.New(cfg, protocol.NewEncoder(nil))
	if err != nil {
		t.Fatal(err)
	}

	enc := protocol.NewEncoder(nil)
	req, err := enc.BuildWaveformRequest(protocol.WaveRequestStart, protocol.ChannelPleth)
	if err != nil {
		t.Fatal(err)
	}
	r := &chunkReader{data: req, size: 3, err: io.EOF}
	if err := readRequests(context.Background(), r, engine.HandleRequest); err != nil {
		t.Fatalf("readRequests() error = %v", err)
	}

	channels := engine.Config().Channels
	if len(channels) != 1 || channels[0] != protocol.ChannelPleth {
		t.Errorf("engine channels = %v, want [PLETH]", channels)
	}
}

func TestDescribe(t *testing.T) {
	cfg := simulator.DefaultConfig()
	if got := describeChannels(cfg.Channels); got != "ECG2 PLETH CO2" {
		t.Errorf("describeChannels() = %q", got)
	}
	if got := describeChannels(nil); got != "none" {
		t.Errorf("describeChannels(nil) = %q", got)
	}
	cfg.Classic, cfg.WaitForRequest = true, true
	if got := describeNumerics(cfg); got != "every 5s, classic layout, alarms, after request" {
		t.Errorf("describeNumerics() = %q", got)
	}
}
