package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
)

// headerOnlyRecord returns a record with no subrecords
func headerOnlyRecord() []byte {
	h := RecordHeader{Length: HeaderSize, MainType: MainTypePHDB}
	return h.Append(nil)
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{name: "empty", data: nil, want: 0x00},
		{name: "simple sum", data: []byte{0x01, 0x02, 0x03}, want: 0x06},
		{name: "wraps at 8 bits", data: []byte{0xFF, 0x02}, want: 0x01},
		{name: "includes flag bytes", data: []byte{0x7E, 0x7D}, want: 0xFB},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum() = 0x%02x, want 0x%02x", got, tt.want)
			}
		})
	}
}

func TestStuffUnstuff(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		stuffed []byte
	}{
		{name: "plain bytes", data: []byte{0x01, 0x02}, stuffed: []byte{0x01, 0x02}},
		{name: "flag byte", data: []byte{0x7E}, stuffed: []byte{0x7D, 0x5E}},
		{name: "escape byte", data: []byte{0x7D}, stuffed: []byte{0x7D, 0x5D}},
		{name: "mixed", data: []byte{0x00, 0x7E, 0x7D, 0xFF}, stuffed: []byte{0x00, 0x7D, 0x5E, 0x7D, 0x5D, 0xFF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Stuff(nil, tt.data)
			if !bytes.Equal(got, tt.stuffed) {
				t.Fatalf("Stuff() = % x, want % x", got, tt.stuffed)
			}
			back, err := Unstuff(nil, got)
			if err != nil {
				t.Fatalf("Unstuff() error = %v", err)
			}
			if !bytes.Equal(back, tt.data) {
				t.Errorf("Unstuff() = % x, want % x", back, tt.data)
			}
		})
	}

	t.Run("dangling escape", func(t *testing.T) {
		if _, err := Unstuff(nil, []byte{0x01, 0x7D}); !errors.Is(err, ErrDanglingEscape) {
			t.Errorf("Unstuff() error = %v, want ErrDanglingEscape", err)
		}
	})
}

func TestParseFrame(t *testing.T) {
	withChecksum := func(record []byte) []byte {
		return append(append([]byte(nil), record...), Checksum(record))
	}

	tests := []struct {
		name    string
		content []byte
		wantErr error
		verify  func(t *testing.T, frame *Frame)
	}{
		{
			name:    "header only record",
			content: withChecksum(headerOnlyRecord()),
			verify: func(t *testing.T, frame *Frame) {
				if frame.Length != HeaderSize {
					t.Errorf("Length = %d, want %d", frame.Length, HeaderSize)
				}
				if len(frame.Payload) != HeaderSize {
					t.Errorf("len(Payload) = %d, want %d", len(frame.Payload), HeaderSize)
				}
				if frame.MainType() != MainTypePHDB {
					t.Errorf("MainType() = %s, want PHDB", frame.MainType())
				}
			},
		},
		{
			name:    "empty",
			content: nil,
			wantErr: ErrEmptyFrame,
		},
		{
			name:    "shorter than header",
			content: []byte{0x28, 0x00, 0x00},
			wantErr: ErrShortFrame,
		},
		{
			name: "bad checksum",
			content: func() []byte {
				c := withChecksum(headerOnlyRecord())
				c[len(c)-1]++
				return c
			}(),
			wantErr: ErrChecksum,
		},
		{
			name: "declared length longer than record",
			content: func() []byte {
				r := headerOnlyRecord()
				binary.LittleEndian.PutUint16(r[0:], 50)
				return withChecksum(r)
			}(),
			wantErr: ErrLengthMismatch,
		},
		{
			name: "declared length out of range",
			content: func() []byte {
				r := headerOnlyRecord()
				binary.LittleEndian.PutUint16(r[0:], 2000)
				return withChecksum(r)
			}(),
			wantErr: ErrLengthRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := ParseFrame(tt.content)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseFrame() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFrame() unexpected error = %v", err)
			}
			if tt.verify != nil {
				tt.verify(t, frame)
			}
		})
	}
}

func TestBuildFrame(t *testing.T) {
	t.Run("flags only at the ends", func(t *testing.T) {
		record := headerOnlyRecord()
		// force bytes that need stuffing into the plug id and time
		binary.LittleEndian.PutUint16(record[offPlugID:], 0x7D7E)
		binary.LittleEndian.PutUint32(record[offTime:], 0x7E7E7E7E)

		out, err := BuildFrame(record)
		if err != nil {
			t.Fatalf("BuildFrame() error = %v", err)
		}
		if out[0] != FrameFlag || out[len(out)-1] != FrameFlag {
			t.Fatalf("frame not delimited: % x", out)
		}
		if bytes.IndexByte(out[1:len(out)-1], FrameFlag) >= 0 {
			t.Errorf("flag byte inside frame body: % x", out)
		}

		content, err := Unstuff(nil, out[1:len(out)-1])
		if err != nil {
			t.Fatalf("Unstuff() error = %v", err)
		}
		frame, err := ParseFrame(content)
		if err != nil {
			t.Fatalf("ParseFrame() error = %v", err)
		}
		if !bytes.Equal(frame.Payload, record) {
			t.Errorf("payload = % x, want % x", frame.Payload, record)
		}
	})

	tests := []struct {
		name    string
		record  []byte
		wantErr error
	}{
		{name: "short record", record: make([]byte, 10), wantErr: ErrShortHeader},
		{name: "too large", record: make([]byte, MaxRecordSize+1), wantErr: ErrRecordTooLarge},
		{
			name: "length field mismatch",
			record: func() []byte {
				r := headerOnlyRecord()
				binary.LittleEndian.PutUint16(r[0:], 41)
				return r
			}(),
			wantErr: ErrLengthMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := BuildFrame(tt.record); !errors.Is(err, tt.wantErr) {
				t.Errorf("BuildFrame() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
