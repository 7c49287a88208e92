package export

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/drilink/internal/logging"
	"github.com/muurk/drilink/internal/protocol"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

const (
	// ParamBucketPrefix starts the name of every per-parameter bucket
	ParamBucketPrefix = "param_"
	metaBucket        = "meta"
	eventsBucket      = "events"

	pointSize = 10 // value float64 bits, status u8, valid u8
)

// ErrUnknownParam is returned by Query for parameters never stored
var ErrUnknownParam = errors.New("export: no trend data for parameter")

// Point is one stored measurement
type Point struct {
	Time   time.Time
	Value  float64
	Valid  bool
	Status protocol.Status
}

// ParamMeta describes a stored parameter
type ParamMeta struct {
	ID   protocol.ParamID `yaml:"id"`
	Name string           `yaml:"name"`
	Unit string           `yaml:"unit"`
}

// StoredEvent is one stored alarm or message
type StoredEvent struct {
	Time     time.Time              `yaml:"time"`
	Category protocol.AlarmCategory `yaml:"category"`
	Text     string                 `yaml:"text"`
}

// Store keeps a trend history of measurements and events in a bbolt file.
// Every parameter has its own bucket keyed by big-endian unix seconds, so
// a time range is one cursor walk. A later value for the same parameter
// and second replaces the earlier one.
type Store struct {
	DB   *bbolt.DB
	path string
}

// OpenStore opens or creates the store at path
func OpenStore(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening trend store %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{metaBucket, eventsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing trend store: %w", err)
	}

	logging.Debug("Trend store opened", zap.String("path", path))
	return &Store{DB: db, path: path}, nil
}

// Close closes the store
func (s *Store) Close() error {
	return s.DB.Close()
}

// Path returns the file the store was opened from
func (s *Store) Path() string {
	return s.path
}

// ParamBucket returns the bucket name for id
func ParamBucket(id protocol.ParamID) string {
	return fmt.Sprintf("%s%04x", ParamBucketPrefix, uint16(id))
}

// HandleRecord implements protocol.Handler. Measurements and events are
// stored; waveforms and unknown subrecords are ignored.
func (s *Store) HandleRecord(rec *protocol.Record) error {
	return s.DB.Update(func(tx *bbolt.Tx) error {
		for _, v := range rec.Values {
			switch v := v.(type) {
			case *protocol.Measurement:
				if err := putMeasurement(tx, v); err != nil {
					return err
				}
			case *protocol.Event:
				if err := putEvent(tx, v); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func putMeasurement(tx *bbolt.Tx, m *protocol.Measurement) error {
	b, err := tx.CreateBucketIfNotExists([]byte(ParamBucket(m.ID)))
	if err != nil {
		return err
	}

	meta := tx.Bucket([]byte(metaBucket))
	key := []byte(ParamBucket(m.ID))
	if meta.Get(key) == nil {
		data, err := yaml.Marshal(ParamMeta{ID: m.ID, Name: m.Name, Unit: m.Unit})
		if err != nil {
			return err
		}
		if err := meta.Put(key, data); err != nil {
			return err
		}
	}

	return b.Put(timeKey(m.Time), encodePoint(m))
}

func putEvent(tx *bbolt.Tx, e *protocol.Event) error {
	b := tx.Bucket([]byte(eventsBucket))
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(StoredEvent{Time: e.Time.UTC(), Category: e.Category, Text: e.Text})
	if err != nil {
		return err
	}

	// time first so a cursor walk is chronological, sequence to keep
	// events of the same second apart
	key := make([]byte, 16)
	copy(key, timeKey(e.Time))
	binary.BigEndian.PutUint64(key[8:], seq)
	return b.Put(key, data)
}

// Params returns the metadata of every stored parameter, ordered by id
func (s *Store) Params() ([]ParamMeta, error) {
	var params []ParamMeta
	err := s.DB.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(metaBucket)).ForEach(func(_, v []byte) error {
			var pm ParamMeta
			if err := yaml.Unmarshal(v, &pm); err != nil {
				return err
			}
			params = append(params, pm)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(params, func(i, j int) bool { return params[i].ID < params[j].ID })
	return params, nil
}

// Query returns the points of id with from <= time < to, oldest first.
// A zero from or to leaves that end open.
func (s *Store) Query(id protocol.ParamID, from, to time.Time) ([]Point, error) {
	var points []Point
	err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ParamBucket(id)))
		if b == nil {
			return fmt.Errorf("%w: 0x%04x", ErrUnknownParam, uint16(id))
		}

		c := b.Cursor()
		k, v := c.First()
		if !from.IsZero() {
			k, v = c.Seek(timeKey(from))
		}
		for ; k != nil; k, v = c.Next() {
			ts := keyTime(k)
			if !to.IsZero() && !ts.Before(to) {
				break
			}
			points = append(points, decodePoint(ts, v))
		}
		return nil
	})
	return points, err
}

// Latest returns the most recent point of id
func (s *Store) Latest(id protocol.ParamID) (Point, error) {
	var p Point
	err := s.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(ParamBucket(id)))
		if b == nil {
			return fmt.Errorf("%w: 0x%04x", ErrUnknownParam, uint16(id))
		}
		k, v := b.Cursor().Last()
		if k == nil {
			return fmt.Errorf("%w: 0x%04x", ErrUnknownParam, uint16(id))
		}
		p = decodePoint(keyTime(k), v)
		return nil
	})
	return p, err
}

// Events returns stored events with from <= time < to, oldest first
func (s *Store) Events(from, to time.Time) ([]StoredEvent, error) {
	var events []StoredEvent
	err := s.DB.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(eventsBucket)).Cursor()
		k, v := c.First()
		if !from.IsZero() {
			k, v = c.Seek(timeKey(from))
		}
		for ; k != nil; k, v = c.Next() {
			if !to.IsZero() && !keyTime(k[:8]).Before(to) {
				break
			}
			var ev StoredEvent
			if err := yaml.Unmarshal(v, &ev); err != nil {
				return err
			}
			events = append(events, ev)
		}
		return nil
	})
	return events, err
}

// ParseParamKey resolves a parameter given as a table name or a hex id
// (0x0101), for command line use.
func ParseParamKey(tables *protocol.Tables, key string) (protocol.ParamID, error) {
	if info, ok := tables.ParamByName(key); ok {
		return info.ID, nil
	}
	n, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(key), "0x"), 16, 16)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrUnknownParam, key)
	}
	return protocol.ParamID(n), nil
}

func timeKey(t time.Time) []byte {
	key := make([]byte, 8)
	secs := t.Unix()
	if t.IsZero() || secs < 0 {
		secs = 0
	}
	binary.BigEndian.PutUint64(key, uint64(secs))
	return key
}

func keyTime(k []byte) time.Time {
	return time.Unix(int64(binary.BigEndian.Uint64(k)), 0).UTC()
}

func encodePoint(m *protocol.Measurement) []byte {
	data := make([]byte, pointSize)
	binary.BigEndian.PutUint64(data, math.Float64bits(m.Value))
	data[8] = uint8(m.Status)
	if m.Valid {
		data[9] = 1
	}
	return data
}

func decodePoint(ts time.Time, data []byte) Point {
	p := Point{Time: ts}
	if len(data) < pointSize {
		p.Status = protocol.StatusInvalid
		return p
	}
	p.Value = math.Float64frombits(binary.BigEndian.Uint64(data))
	p.Status = protocol.Status(data[8])
	p.Valid = data[9] == 1
	return p
}
