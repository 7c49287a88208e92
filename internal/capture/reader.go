package capture

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
)

// ErrNotDRICapture is returned for pcap files of another link type
var ErrNotDRICapture = errors.New("capture: not a drilink capture")

// Packet is one recorded chunk
type Packet struct {
	Time      time.Time
	Direction Direction
	Data      []byte
}

// Reader walks the packets of a capture
type Reader struct {
	source *gopacket.PacketSource
}

// NewReader reads the pcap file header from r
func NewReader(r io.Reader) (*Reader, error) {
	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("reading capture header: %w", err)
	}
	if pr.LinkType() != LinkTypeDRI {
		return nil, fmt.Errorf("%w: link type %d", ErrNotDRICapture, pr.LinkType())
	}

	source := gopacket.NewPacketSource(pr, ChunkLayerType)
	source.DecodeOptions = gopacket.DecodeOptions{NoCopy: true}
	return &Reader{source: source}, nil
}

// Next returns the next packet, or io.EOF after the last one
func (r *Reader) Next() (*Packet, error) {
	pkt, err := r.source.NextPacket()
	if err != nil {
		return nil, err
	}
	if el := pkt.ErrorLayer(); el != nil {
		return nil, el.Error()
	}

	chunk, ok := pkt.Layer(ChunkLayerType).(*ChunkLayer)
	if !ok {
		return nil, fmt.Errorf("capture: packet without chunk layer")
	}
	return &Packet{
		Time:      pkt.Metadata().Timestamp,
		Direction: chunk.Direction,
		Data:      chunk.Payload,
	}, nil
}

// ReplayOption configures a Replay
type ReplayOption func(*Replay)

// WithSpeed paces the replay by the recorded timestamps. A factor of 1
// plays in real time, 2 twice as fast. Zero, the default, replays as fast
// as the consumer reads.
func WithSpeed(factor float64) ReplayOption {
	return func(rp *Replay) { rp.speed = factor }
}

// WithDirection selects which side of the link is replayed. The default is
// FromMonitor.
func WithDirection(dir Direction) ReplayOption {
	return func(rp *Replay) { rp.dir = dir }
}

// Replay is an io.Reader over the recorded bytes of one direction, so a
// capture can stand in for a live link.
type Replay struct {
	r       *Reader
	dir     Direction
	speed   float64
	sleep   func(time.Duration)
	pending []byte
	last    time.Time
}

// NewReplay creates a Replay over r
func NewReplay(r *Reader, opts ...ReplayOption) *Replay {
	rp := &Replay{r: r, dir: FromMonitor, sleep: time.Sleep}
	for _, opt := range opts {
		opt(rp)
	}
	return rp
}

// Read implements io.Reader
func (rp *Replay) Read(p []byte) (int, error) {
	for len(rp.pending) == 0 {
		pkt, err := rp.r.Next()
		if err != nil {
			return 0, err
		}
		if pkt.Direction != rp.dir {
			continue
		}
		rp.pace(pkt.Time)
		rp.pending = pkt.Data
	}

	n := copy(p, rp.pending)
	rp.pending = rp.pending[n:]
	return n, nil
}

func (rp *Replay) pace(ts time.Time) {
	if rp.speed <= 0 {
		return
	}
	if !rp.last.IsZero() {
		if gap := ts.Sub(rp.last); gap > 0 {
			rp.sleep(time.Duration(float64(gap) / rp.speed))
		}
	}
	rp.last = ts
}
