package protocol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/muurk/drilink/internal/logging"
	"go.uber.org/zap"
)

// Handler receives every decoded record of a session, in wire order.
// Returning an error ends the session.
type Handler interface {
	HandleRecord(rec *Record) error
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(rec *Record) error

// HandleRecord implements Handler
func (f HandlerFunc) HandleRecord(rec *Record) error { return f(rec) }

// SessionStats summarises a session
type SessionStats struct {
	Sync         SyncStats
	Records      int
	Values       int
	DecodeErrors int
}

// Session runs the decode pipeline for one connection: byte source,
// synchronizer, decoder, handler. Sessions share nothing but the decoder's
// read-only tables.
type Session struct {
	addr    string
	src     io.Reader
	reader  *FrameReader
	decoder *Decoder
	handler Handler

	mu    sync.Mutex
	stats SessionStats
}

// NewSession creates a Session reading from src. addr only labels log
// output.
func NewSession(addr string, src io.Reader, decoder *Decoder, handler Handler, opts ...SyncOption) *Session {
	if decoder == nil {
		decoder = NewDecoder(nil)
	}
	return &Session{
		addr:    addr,
		src:     src,
		reader:  NewFrameReader(src, opts...),
		decoder: decoder,
		handler: handler,
	}
}

// Run reads until the source ends, the handler fails or ctx is cancelled.
//
// A clean end of input (io.EOF) returns nil. Other source errors are
// returned as they are; reconnecting is the caller's decision. If src is an
// io.Closer it is closed on cancellation to unblock a pending read.
func (s *Session) Run(ctx context.Context) error {
	logging.LogConnection(s.addr, "session_started")
	defer logging.LogConnection(s.addr, "session_ended")

	if closer, ok := s.src.(io.Closer); ok {
		stop := context.AfterFunc(ctx, func() { _ = closer.Close() })
		defer stop()
	}

	var lastFailures, lastResets int
	for {
		frame, err := s.reader.ReadFrame()
		s.updateSync(&lastFailures, &lastResets)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			logging.Error("Byte source failed",
				zap.String("addr", s.addr),
				zap.Error(err),
			)
			return fmt.Errorf("reading %s: %w", s.addr, err)
		}

		if err := s.handleFrame(frame); err != nil {
			return err
		}
	}
}

// Stats returns a snapshot of the session counters. Safe to call while Run
// is active.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) handleFrame(frame *Frame) error {
	rec, err := s.decoder.Decode(frame)
	if err != nil {
		s.mu.Lock()
		s.stats.DecodeErrors++
		s.mu.Unlock()

		logging.Warn("Failed to decode record",
			zap.String("addr", s.addr),
			zap.String("frame", frame.String()),
			zap.Error(err),
		)
		logging.LogRawBytes("Undecodable record", frame.Payload)
		return nil
	}

	logging.LogFrame(s.addr, len(frame.Payload), rec.Header.MainType.String(), rec.Header.RecordNumber)

	s.mu.Lock()
	s.stats.Records++
	s.stats.Values += len(rec.Values)
	s.mu.Unlock()

	if s.handler == nil {
		return nil
	}
	if err := s.handler.HandleRecord(rec); err != nil {
		return fmt.Errorf("handling %s record: %w", rec.Header.MainType, err)
	}
	return nil
}

// updateSync copies the synchronizer counters and logs when recovery work
// happened since the last call.
func (s *Session) updateSync(lastFailures, lastResets *int) {
	st := s.reader.Stats()

	s.mu.Lock()
	s.stats.Sync = st
	s.mu.Unlock()

	if st.Failures != *lastFailures || st.Resets != *lastResets {
		logging.LogResync(s.addr, st.ConsecutiveFailures, st.Failures, st.Resets, st.DiscardedBytes)
		*lastFailures, *lastResets = st.Failures, st.Resets
	}
}
