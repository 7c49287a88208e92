package protocol

import "io"

const readChunk = 512

// FrameReader reads verified frames from a byte source such as a serial
// port. It wraps a Synchronizer, so corrupt data is skipped and never
// returned as an error.
type FrameReader struct {
	r    io.Reader
	sync *Synchronizer
	buf  []byte
	err  error
}

// NewFrameReader creates a FrameReader over r
func NewFrameReader(r io.Reader, opts ...SyncOption) *FrameReader {
	return &FrameReader{
		r:    r,
		sync: NewSynchronizer(opts...),
		buf:  make([]byte, readChunk),
	}
}

// ReadFrame blocks until a verified frame is available or the source
// fails. Once the source returns an error, frames already buffered are
// still delivered; after that any incomplete frame is dropped and the
// source error (io.EOF at a clean end) is returned.
func (fr *FrameReader) ReadFrame() (*Frame, error) {
	for {
		if frame, ok := fr.sync.Next(); ok {
			return frame, nil
		}
		if fr.err != nil {
			fr.sync.Flush()
			return nil, fr.err
		}

		n, err := fr.r.Read(fr.buf)
		if n > 0 {
			fr.sync.Feed(fr.buf[:n])
		}
		if err != nil {
			fr.err = err
		}
	}
}

// Stats returns the synchronizer counters.
func (fr *FrameReader) Stats() SyncStats {
	return fr.sync.Stats()
}
