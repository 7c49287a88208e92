// Package protocol implements the Datex-Ohmeda DRI (Data Record Interface)
// telemetry protocol spoken by patient monitors over a serial line.
//
// This package handles frame synchronization, record decoding into domain
// values, and the reverse path of encoding values and transmission
// requests into framed records.
//
// # Wire Format
//
// Every record travels inside a frame:
//   - Start flag: 0x7E
//   - Record bytes, byte-stuffed
//   - Checksum: 1 byte, 8-bit sum of the record bytes, byte-stuffed
//   - End flag: 0x7E
//
// Inside a frame, 0x7E and 0x7D are sent as 0x7D followed by the byte with
// bit 5 cleared. A record starts with a 40-byte little-endian header:
//   - Bytes 0-1: r_len, total record length including the header
//   - Byte 2: record number
//   - Byte 3: DRI level
//   - Bytes 4-5: plug id
//   - Bytes 6-9: time, unix seconds
//   - Bytes 14-15: main type (PHDB, WAVE, ALARM, ...)
//   - Bytes 16-39: eight subrecord descriptors, offset u16 and sr_type u8,
//     terminated by sr_type 0xFF
//
// # Value Model
//
// Decoded records yield Values:
//   - *Measurement: one numeric parameter in physical units, or a status
//     when the monitor sent one of the special codes
//   - *WaveformSample: a block of samples from one waveform channel
//   - *Event: alarm or message text
//   - *Unknown: a subrecord without a known grammar, raw bytes kept
//
// # Usage Example - Reading
//
//	fr := protocol.NewFrameReader(port)
//	dec := protocol.NewDecoder(nil)
//	for {
//	    frame, err := fr.ReadFrame()
//	    if err != nil {
//	        return err
//	    }
//	    rec, err := dec.Decode(frame)
//	    if err != nil {
//	        continue // malformed record, already skipped
//	    }
//	    for _, v := range rec.Values {
//	        fmt.Println(v)
//	    }
//	}
//
// Session bundles this loop with logging and counters.
//
// # Usage Example - Requests
//
//	enc := protocol.NewEncoder(nil)
//	req, _ := enc.BuildPhdbRequest(protocol.PhdbDispl, 10, 1<<protocol.ClassBasic)
//	port.Write(req)
//
// # Error Handling
//
// Framing and checksum errors never reach the caller: the synchronizer
// skips the bad bytes and counts them in SyncStats. Decoding errors wrap
// ErrMalformedRecord. Encoding errors wrap ErrRecordTooLarge,
// ErrMixedRecord, ErrTooManyChannels or ErrSampleRateExceeded.
//
// # Thread Safety
//
// Decoder, Encoder and Tables are safe for concurrent use. Synchronizer,
// FrameReader and Session hold per-connection state.
package protocol
