package capture

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/muurk/drilink/internal/logging"
	"go.uber.org/zap"
)

// SnapLen is the largest packet written to a capture. Longer chunks are
// split.
const SnapLen = 65535

// Recorder writes link traffic to a pcap stream. It is safe for
// concurrent use, so the reading and writing halves of a link may share one.
type Recorder struct {
	mu      sync.Mutex
	w       *pcapgo.Writer
	now     func() time.Time
	packets int
	bytes   int64
}

// NewRecorder writes the pcap file header to w and returns a Recorder
func NewRecorder(w io.Writer) (*Recorder, error) {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(SnapLen, LinkTypeDRI); err != nil {
		return nil, fmt.Errorf("writing capture header: %w", err)
	}
	return &Recorder{w: pw, now: time.Now}, nil
}

// Record writes one chunk of line bytes
func (r *Recorder) Record(dir Direction, ts time.Time, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for len(data) > 0 {
		n := min(len(data), SnapLen-1)
		if err := r.writePacket(dir, ts, data[:n]); err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}

func (r *Recorder) writePacket(dir Direction, ts time.Time, data []byte) error {
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{},
		&ChunkLayer{Direction: dir},
		gopacket.Payload(data),
	); err != nil {
		return fmt.Errorf("serializing chunk: %w", err)
	}

	pkt := buf.Bytes()
	ci := gopacket.CaptureInfo{
		Timestamp:     ts,
		CaptureLength: len(pkt),
		Length:        len(pkt),
	}
	if err := r.w.WritePacket(ci, pkt); err != nil {
		return fmt.Errorf("writing capture packet: %w", err)
	}
	r.packets++
	r.bytes += int64(len(data))
	return nil
}

// Packets returns the number of packets written
func (r *Recorder) Packets() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.packets
}

// Bytes returns the number of line bytes written
func (r *Recorder) Bytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytes
}

// Tap wraps a link seen from the reader side: reads are recorded as
// FromMonitor and writes as ToMonitor. Recording errors are logged and do
// not disturb the link.
func (r *Recorder) Tap(link io.ReadWriteCloser) io.ReadWriteCloser {
	return &tap{link: link, rec: r, readDir: FromMonitor, writeDir: ToMonitor}
}

// MonitorTap is Tap for the monitor side of a link, as the simulator sees
// it: writes are recorded as FromMonitor and reads as ToMonitor.
func (r *Recorder) MonitorTap(link io.ReadWriteCloser) io.ReadWriteCloser {
	return &tap{link: link, rec: r, readDir: ToMonitor, writeDir: FromMonitor}
}

// Writer returns an io.Writer recording every write as one packet of
// direction dir. Writes never fail; recording errors are logged.
func (r *Recorder) Writer(dir Direction) io.Writer {
	return &tap{rec: r, writeDir: dir}
}

type tap struct {
	link     io.ReadWriteCloser // nil for Writer
	rec      *Recorder
	readDir  Direction
	writeDir Direction
}

func (t *tap) Read(p []byte) (int, error) {
	n, err := t.link.Read(p)
	if n > 0 {
		t.record(t.readDir, p[:n])
	}
	return n, err
}

func (t *tap) Write(p []byte) (int, error) {
	if t.link == nil {
		t.record(t.writeDir, p)
		return len(p), nil
	}
	n, err := t.link.Write(p)
	if n > 0 {
		t.record(t.writeDir, p[:n])
	}
	return n, err
}

func (t *tap) Close() error {
	return t.link.Close()
}

func (t *tap) record(dir Direction, data []byte) {
	if err := t.rec.Record(dir, t.rec.now(), data); err != nil {
		logging.Warn("Capture write failed",
			zap.String("direction", dir.String()),
			zap.Error(err),
		)
	}
}
