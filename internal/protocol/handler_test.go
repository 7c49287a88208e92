package protocol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"testing/iotest"
	"time"
)

func TestSessionRun(t *testing.T) {
	frames := heartRateFrames(t, 3)

	malformed := testRecord(MainTypeWave, Subrecord{Type: uint8(ChannelPleth), Data: []byte{0xFF, 0x00}})
	badFrame, err := BuildFrame(malformed)
	if err != nil {
		t.Fatalf("BuildFrame() error = %v", err)
	}

	stream := bytes.Join([][]byte{
		{0x00, 0x11},
		frames[0],
		corruptChecksum(frames[1]),
		badFrame,
		frames[2],
	}, nil)

	var got []*Record
	session := NewSession("test", bytes.NewReader(stream), nil, HandlerFunc(func(rec *Record) error {
		got = append(got, rec)
		return nil
	}))

	if err := session.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("handled %d records, want 2", len(got))
	}
	if got[0].Header.RecordNumber != 0 || got[1].Header.RecordNumber != 2 {
		t.Errorf("record numbers = %d, %d, want 0, 2", got[0].Header.RecordNumber, got[1].Header.RecordNumber)
	}

	st := session.Stats()
	if st.Records != 2 || st.Values != 2 {
		t.Errorf("Records/Values = %d/%d, want 2/2", st.Records, st.Values)
	}
	if st.DecodeErrors != 1 {
		t.Errorf("DecodeErrors = %d, want 1", st.DecodeErrors)
	}
	if st.Sync.Failures != 1 {
		t.Errorf("Sync.Failures = %d, want 1", st.Sync.Failures)
	}
}

func TestSessionHandlerError(t *testing.T) {
	stop := errors.New("disk full")
	session := NewSession("test", bytes.NewReader(bytes.Join(heartRateFrames(t, 2), nil)), nil,
		HandlerFunc(func(*Record) error { return stop }))

	err := session.Run(context.Background())
	if !errors.Is(err, stop) {
		t.Fatalf("Run() error = %v, want %v", err, stop)
	}
	if st := session.Stats(); st.Records != 1 {
		t.Errorf("Records = %d, want 1", st.Records)
	}
}

func TestSessionSourceError(t *testing.T) {
	boom := errors.New("port unplugged")
	session := NewSession("test", iotest.ErrReader(boom), nil, nil)
	if err := session.Run(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want %v", err, boom)
	}
}

func TestSessionCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	received := make(chan struct{}, 1)
	session := NewSession("pipe", pr, nil, HandlerFunc(func(*Record) error {
		received <- struct{}{}
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()

	frame := heartRateFrames(t, 1)[0]
	go func() { _, _ = pw.Write(frame) }()
	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("record not delivered")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
