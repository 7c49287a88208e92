package protocol

import "bytes"

// DefaultBufferLimit is the number of bytes the synchronizer may throw away
// without producing a frame before it counts a buffer reset.
const DefaultBufferLimit = 64 * 1024

// SyncStats are diagnostic counters. None of them affect decoding.
type SyncStats struct {
	Frames              int   // verified frames emitted
	ConsecutiveFailures int   // rejected start markers since the last good frame
	Failures            int   // rejected start markers overall
	IdleFrames          int   // empty flag pairs skipped
	Resets              int   // buffer resets after too long without progress
	DiscardedBytes      int64 // bytes skipped while hunting for a frame
}

// SyncOption configures a Synchronizer
type SyncOption func(*Synchronizer)

// WithBufferLimit overrides DefaultBufferLimit. Limits smaller than one
// maximum-size stuffed frame are raised to that size.
func WithBufferLimit(n int) SyncOption {
	return func(s *Synchronizer) {
		if n < MaxStuffedFrame+2 {
			n = MaxStuffedFrame + 2
		}
		s.limit = n
	}
}

// Synchronizer turns an arbitrary byte stream into verified frames.
//
// It is pull based: Feed appends bytes as they arrive and Next hands out
// frames until it reports that more input is needed. Nothing blocks, so the
// same type serves blocking readers, goroutine pipelines and tests that
// deliver one byte at a time.
//
// A Synchronizer holds per-connection state and must not be shared between
// connections or used from several goroutines at once.
type Synchronizer struct {
	buf     []byte
	pos     int
	limit   int
	stalled int // bytes discarded since the last verified frame
	scratch []byte
	stats   SyncStats
}

// NewSynchronizer creates an empty Synchronizer
func NewSynchronizer(opts ...SyncOption) *Synchronizer {
	s := &Synchronizer{limit: DefaultBufferLimit}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Feed appends newly received bytes.
func (s *Synchronizer) Feed(p []byte) {
	if len(p) == 0 {
		return
	}
	s.compact()
	s.buf = append(s.buf, p...)
}

// Buffered returns the number of bytes not yet consumed.
func (s *Synchronizer) Buffered() int {
	return len(s.buf) - s.pos
}

// Stats returns a snapshot of the diagnostic counters.
func (s *Synchronizer) Stats() SyncStats {
	return s.stats
}

// Next returns the next verified frame. It returns false when the buffered
// bytes do not hold a complete frame; call Feed and try again.
//
// A candidate frame that fails validation is abandoned by stepping exactly
// one byte past its start marker, since its length and content cannot be
// trusted. The closing flag of a good frame is left in place so it can open
// the next one.
func (s *Synchronizer) Next() (*Frame, bool) {
	for {
		if s.stalled > s.limit {
			s.resetBuffer()
		}

		rest := s.buf[s.pos:]
		opening := bytes.IndexByte(rest, FrameFlag)
		if opening < 0 {
			s.discard(len(rest))
			return nil, false
		}
		s.discard(opening)

		start := s.pos
		closing := bytes.IndexByte(s.buf[start+1:], FrameFlag)
		if closing < 0 {
			if len(s.buf)-start-1 > MaxStuffedFrame {
				s.reject()
				continue
			}
			return nil, false
		}
		end := start + 1 + closing

		body := s.buf[start+1 : end]
		if len(body) == 0 {
			s.stats.IdleFrames++
			s.pos = end
			continue
		}

		frame, err := s.parse(body)
		if err != nil {
			s.reject()
			continue
		}

		s.pos = end
		s.stalled = 0
		s.stats.Frames++
		s.stats.ConsecutiveFailures = 0
		return frame, true
	}
}

// Flush drops any buffered partial frame. Used when the byte source ends.
func (s *Synchronizer) Flush() {
	s.discard(len(s.buf) - s.pos)
	s.compact()
}

func (s *Synchronizer) parse(body []byte) (*Frame, error) {
	if len(body) > MaxStuffedFrame {
		return nil, ErrLengthRange
	}

	var err error
	s.scratch, err = Unstuff(s.scratch[:0], body)
	if err != nil {
		return nil, err
	}

	frame, err := ParseFrame(s.scratch)
	if err != nil {
		return nil, err
	}

	// scratch is reused; the caller owns the returned payload
	frame.Payload = append([]byte(nil), frame.Payload...)
	return frame, nil
}

// reject abandons the candidate frame whose marker sits at the cursor.
func (s *Synchronizer) reject() {
	s.stats.Failures++
	s.stats.ConsecutiveFailures++
	s.discard(1)
}

func (s *Synchronizer) discard(n int) {
	if n <= 0 {
		return
	}
	s.pos += n
	s.stalled += n
	s.stats.DiscardedBytes += int64(n)
}

// resetBuffer records a buffer reset once the bytes skipped since the last
// verified frame pass the limit. Consumed bytes are already gone through
// compact, so the only effect on memory is moving the pending bytes to a
// backing array of their own size and dropping the scratch buffer. The
// stalled count restarts.
func (s *Synchronizer) resetBuffer() {
	s.stats.Resets++
	s.stalled = 0
	pending := s.buf[s.pos:]
	s.buf = append(make([]byte, 0, len(pending)), pending...)
	s.pos = 0
	s.scratch = nil
}

func (s *Synchronizer) compact() {
	if s.pos == 0 {
		return
	}
	n := copy(s.buf, s.buf[s.pos:])
	s.buf = s.buf[:n]
	s.pos = 0
}
