package capture

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/muurk/drilink/internal/protocol"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type rwc struct {
	io.Reader
	io.Writer
	closed bool
}

func (c *rwc) Close() error {
	c.closed = true
	return nil
}

func TestRecordAndRead(t *testing.T) {
	var buf bytes.Buffer
	rec, err := NewRecorder(&buf)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	chunks := []struct {
		dir  Direction
		at   time.Duration
		data []byte
	}{
		{FromMonitor, 0, []byte{0x7E, 0x31, 0x00}},
		{ToMonitor, 250 * time.Millisecond, []byte{0x7E, 0x31, 0x00, 0x7E}},
		{FromMonitor, 500 * time.Millisecond, []byte{0x7D, 0x5E, 0x7E}},
	}
	for _, c := range chunks {
		if err := rec.Record(c.dir, testTime.Add(c.at), c.data); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}
	if rec.Packets() != 3 {
		t.Errorf("Packets() = %d, want 3", rec.Packets())
	}
	if rec.Bytes() != 10 {
		t.Errorf("Bytes() = %d, want 10", rec.Bytes())
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	for i, c := range chunks {
		pkt, err := r.Next()
		if err != nil {
			t.Fatalf("Next %d: %v", i, err)
		}
		if pkt.Direction != c.dir {
			t.Errorf("packet %d direction = %v, want %v", i, pkt.Direction, c.dir)
		}
		if !bytes.Equal(pkt.Data, c.data) {
			t.Errorf("packet %d data = %x, want %x", i, pkt.Data, c.data)
		}
		if !pkt.Time.Equal(testTime.Add(c.at)) {
			t.Errorf("packet %d time = %v, want %v", i, pkt.Time, testTime.Add(c.at))
		}
	}
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next after last = %v, want io.EOF", err)
	}
}

func TestRecordSplitsLongChunks(t *testing.T) {
	var buf bytes.Buffer
	rec, err := NewRecorder(&buf)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	data := bytes.Repeat([]byte{0xAA}, SnapLen+10)
	if err := rec.Record(FromMonitor, testTime, data); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if rec.Packets() != 2 {
		t.Errorf("Packets() = %d, want 2", rec.Packets())
	}

	r, err := NewReader(&buf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(NewReplay(r))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("replayed %d bytes, want %d", len(got), len(data))
	}
}

func TestNewReaderRejectsOtherLinkTypes(t *testing.T) {
	var buf bytes.Buffer
	if err := pcapgo.NewWriter(&buf).WriteFileHeader(SnapLen, layers.LinkTypeEthernet); err != nil {
		t.Fatalf("WriteFileHeader: %v", err)
	}

	_, err := NewReader(&buf)
	if !errors.Is(err, ErrNotDRICapture) {
		t.Errorf("NewReader error = %v, want ErrNotDRICapture", err)
	}
}

func TestTap(t *testing.T) {
	var capBuf bytes.Buffer
	rec, err := NewRecorder(&capBuf)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.now = func() time.Time { return testTime }

	var sent bytes.Buffer
	link := &rwc{Reader: bytes.NewReader([]byte{1, 2, 3}), Writer: &sent}
	tapped := rec.Tap(link)

	got, err := io.ReadAll(tapped)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, []byte{1, 2, 3}) {
		t.Errorf("read %x through tap", got)
	}
	if _, err := tapped.Write([]byte{9}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := tapped.Close(); err != nil || !link.closed {
		t.Errorf("Close did not reach the link")
	}
	if sent.Len() != 1 {
		t.Errorf("link received %d bytes, want 1", sent.Len())
	}

	r, err := NewReader(&capBuf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	tx, err := io.ReadAll(NewReplay(r, WithDirection(ToMonitor)))
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(tx, []byte{9}) {
		t.Errorf("recorded tx = %x, want 09", tx)
	}
}

func TestMonitorTapAndWriter(t *testing.T) {
	var capBuf bytes.Buffer
	rec, err := NewRecorder(&capBuf)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}
	rec.now = func() time.Time { return testTime }

	link := &rwc{Reader: bytes.NewReader([]byte{0xAA}), Writer: io.Discard}
	tapped := rec.MonitorTap(link)
	if _, err := io.ReadAll(tapped); err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if _, err := tapped.Write([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n, err := rec.Writer(FromMonitor).Write([]byte{0x03}); n != 1 || err != nil {
		t.Fatalf("Writer.Write = %d, %v", n, err)
	}

	r, err := NewReader(&capBuf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	want := []struct {
		dir  Direction
		data []byte
	}{
		{ToMonitor, []byte{0xAA}},
		{FromMonitor, []byte{0x01, 0x02}},
		{FromMonitor, []byte{0x03}},
	}
	for i, w := range want {
		pkt, err := r.Next()
		if err != nil {
			t.Fatalf("packet %d: %v", i, err)
		}
		if pkt.Direction != w.dir || !bytes.Equal(pkt.Data, w.data) {
			t.Errorf("packet %d = %s %x, want %s %x", i, pkt.Direction, pkt.Data, w.dir, w.data)
		}
	}
	if _, err := r.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after last packet: %v, want io.EOF", err)
	}
}

func TestReplayFeedsSession(t *testing.T) {
	enc := protocol.NewEncoder(nil)
	var capBuf bytes.Buffer
	rec, err := NewRecorder(&capBuf)
	if err != nil {
		t.Fatalf("NewRecorder: %v", err)
	}

	for i := 0; i < 3; i++ {
		frame, err := enc.EncodeFrame(testTime, []protocol.Value{&protocol.Measurement{
			ID: protocol.ParamHeartRate, Value: float64(70 + i), Valid: true,
		}})
		if err != nil {
			t.Fatalf("EncodeFrame: %v", err)
		}
		// split each frame across two reads, as a serial port would
		half := len(frame) / 2
		ts := testTime.Add(time.Duration(i) * time.Second)
		if err := rec.Record(FromMonitor, ts, frame[:half]); err != nil {
			t.Fatal(err)
		}
		if err := rec.Record(FromMonitor, ts.Add(time.Millisecond), frame[half:]); err != nil {
			t.Fatal(err)
		}
	}

	r, err := NewReader(&capBuf)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	var slept time.Duration
	replay := NewReplay(r, WithSpeed(2))
	replay.sleep = func(d time.Duration) { slept += d }

	var rates []float64
	session := protocol.NewSession("capture", replay, nil, protocol.HandlerFunc(func(rec *protocol.Record) error {
		for _, v := range rec.Values {
			if m, ok := v.(*protocol.Measurement); ok {
				rates = append(rates, m.Value)
			}
		}
		return nil
	}))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := session.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rates) != 3 || rates[0] != 70 || rates[2] != 72 {
		t.Errorf("heart rates = %v, want [70 71 72]", rates)
	}
	// 2.001s of capture at double speed
	if want := 1000500 * time.Microsecond; slept != want {
		t.Errorf("slept %v, want %v", slept, want)
	}
}
