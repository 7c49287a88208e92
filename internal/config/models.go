package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/muurk/drilink/internal/protocol"
	"github.com/muurk/drilink/internal/simulator"
	"github.com/muurk/drilink/internal/transport"
)

// CurrentVersion is the config file format written by this build
const CurrentVersion = 1

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("config: invalid")

// Config represents the entire user configuration file.
type Config struct {
	Version    int               `yaml:"version"`
	Serial     Serial            `yaml:"serial"`
	Requests   Requests          `yaml:"requests"`
	Simulator  Simulator         `yaml:"simulator"`
	Export     Export            `yaml:"export,omitempty"`
	Parameters []ParamOverride   `yaml:"parameters,omitempty"` // metadata for ids the built-in table lacks or gets wrong
	Channels   []ChannelOverride `yaml:"channels,omitempty"`   // same for waveform channels
}

// Serial holds the monitor line settings.
type Serial struct {
	Port        string        `yaml:"port,omitempty"`         // e.g. /dev/ttyUSB0, COM3, ws://host:8765/dri
	Baud        int           `yaml:"baud"`                   // 19200 for DRI
	DataBits    int           `yaml:"data_bits"`              // 8
	Parity      string        `yaml:"parity"`                 // none, odd, even, mark, space
	StopBits    int           `yaml:"stop_bits"`              // 1 or 2
	RTSCTS      bool          `yaml:"rts_cts"`                // assert RTS and DTR on open
	ReadTimeout time.Duration `yaml:"read_timeout,omitempty"` // 0 blocks
}

// Requests describes what drilink asks a monitor for on connect.
type Requests struct {
	Enabled   bool     `yaml:"enabled"`
	Subtype   string   `yaml:"subtype"`             // displ, trend10s, trend60s, aux
	Interval  int      `yaml:"interval"`            // seconds between PHDB records
	Classes   []string `yaml:"classes"`             // basic, ext1, ext2, ext3
	Waveforms []string `yaml:"waveforms,omitempty"` // channel names, at most 8
}

// Simulator holds drilink-sim defaults.
type Simulator struct {
	NumericInterval time.Duration `yaml:"numeric_interval"`
	WaveInterval    time.Duration `yaml:"wave_interval"`
	Channels        []string      `yaml:"channels,omitempty"`
	Classic         bool          `yaml:"classic"`
	Alarms          bool          `yaml:"alarms"`
	WaitForRequest  bool          `yaml:"wait_for_request"`
	Seed            int64         `yaml:"seed,omitempty"`
	Listen          string        `yaml:"listen,omitempty"` // host:port for the WebSocket server
}

// Export holds default output paths. Empty disables the output.
type Export struct {
	CSV     string `yaml:"csv,omitempty"`
	JSON    string `yaml:"json,omitempty"`
	Store   string `yaml:"store,omitempty"`
	Capture string `yaml:"capture,omitempty"`
}

// ParamOverride replaces or adds a parameter table entry.
type ParamOverride struct {
	ID    string  `yaml:"id"` // hex, e.g. 0x0101
	Name  string  `yaml:"name"`
	Unit  string  `yaml:"unit,omitempty"`
	Scale float64 `yaml:"scale"`
}

// ChannelOverride replaces or adds a waveform channel table entry.
type ChannelOverride struct {
	ID         int     `yaml:"id"`
	Name       string  `yaml:"name"`
	Unit       string  `yaml:"unit,omitempty"`
	Scale      float64 `yaml:"scale"`
	SampleRate int     `yaml:"sample_rate"`
}

var subtypeNames = map[string]uint8{
	"displ":    protocol.PhdbDispl,
	"trend10s": protocol.PhdbTrend10s,
	"trend60s": protocol.PhdbTrend60s,
	"aux":      protocol.PhdbAux,
}

var classNames = map[string]uint8{
	"basic": protocol.ClassBasic,
	"ext1":  protocol.ClassExt1,
	"ext2":  protocol.ClassExt2,
	"ext3":  protocol.ClassExt3,
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	sim := simulator.DefaultConfig()
	channels := make([]string, len(sim.Channels))
	for i, ch := range sim.Channels {
		channels[i] = ch.String()
	}

	return &Config{
		Version: CurrentVersion,
		Serial: Serial{
			Baud:     transport.DefaultBaudRate,
			DataBits: transport.DefaultDataBits,
			Parity:   transport.DefaultParity,
			StopBits: transport.DefaultStopBits,
			RTSCTS:   true,
		},
		Requests: Requests{
			Enabled:   true,
			Subtype:   "displ",
			Interval:  10,
			Classes:   []string{"basic"},
			Waveforms: []string{"ECG1", "PLETH"},
		},
		Simulator: Simulator{
			NumericInterval: sim.NumericInterval,
			WaveInterval:    sim.WaveInterval,
			Channels:        channels,
			Alarms:          sim.Alarms,
			Listen:          "localhost:8765",
		},
	}
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("%w: unsupported config version %d (expected %d)", ErrInvalidConfig, c.Version, CurrentVersion)
	}
	if c.Serial.Baud < 0 {
		return fmt.Errorf("%w: serial.baud %d", ErrInvalidConfig, c.Serial.Baud)
	}
	if err := c.SerialConfig("").Validate(); err != nil {
		return fmt.Errorf("%w: serial: %v", ErrInvalidConfig, err)
	}

	if _, err := c.PhdbSubtype(); err != nil {
		return err
	}
	if _, err := c.ClassMask(); err != nil {
		return err
	}
	if c.Requests.Interval < 0 || c.Requests.Interval > 0xFFFF {
		return fmt.Errorf("%w: requests.interval %d", ErrInvalidConfig, c.Requests.Interval)
	}

	tables, err := c.Tables()
	if err != nil {
		return err
	}
	enc := protocol.NewEncoder(tables)
	for section, names := range map[string][]string{
		"requests.waveforms": c.Requests.Waveforms,
		"simulator.channels": c.Simulator.Channels,
	} {
		channels, err := parseChannels(names)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, section, err)
		}
		if len(channels) > 8 {
			return fmt.Errorf("%w: %s: %d channels (maximum 8)", ErrInvalidConfig, section, len(channels))
		}
		if total := enc.TotalSampleRate(channels...); total > protocol.MaxTotalSampleRate {
			return fmt.Errorf("%w: %s: %d samples/s (maximum %d)", ErrInvalidConfig, section, total, protocol.MaxTotalSampleRate)
		}
	}

	if c.Simulator.NumericInterval < 0 || c.Simulator.WaveInterval < 0 {
		return fmt.Errorf("%w: simulator intervals must not be negative", ErrInvalidConfig)
	}
	return nil
}

// SerialConfig returns the line settings for port. An empty port selects
// serial.port from the file.
func (c *Config) SerialConfig(port string) transport.SerialConfig {
	if port == "" {
		port = c.Serial.Port
	}
	return transport.SerialConfig{
		Port:        port,
		BaudRate:    c.Serial.Baud,
		DataBits:    c.Serial.DataBits,
		Parity:      c.Serial.Parity,
		StopBits:    c.Serial.StopBits,
		RTSCTS:      c.Serial.RTSCTS,
		ReadTimeout: c.Serial.ReadTimeout,
	}
}

// PhdbSubtype returns the requested PHDB subrecord type
func (c *Config) PhdbSubtype() (uint8, error) {
	sr, ok := subtypeNames[strings.ToLower(c.Requests.Subtype)]
	if !ok {
		return 0, fmt.Errorf("%w: requests.subtype %q", ErrInvalidConfig, c.Requests.Subtype)
	}
	return sr, nil
}

// ClassMask returns the requested classes as a request class mask
func (c *Config) ClassMask() (uint32, error) {
	var mask uint32
	for _, name := range c.Requests.Classes {
		class, ok := classNames[strings.ToLower(name)]
		if !ok {
			return 0, fmt.Errorf("%w: requests.classes: unknown class %q", ErrInvalidConfig, name)
		}
		mask |= 1 << class
	}
	if mask == 0 {
		mask = 1 << protocol.ClassBasic
	}
	return mask, nil
}

// WaveformChannels returns the channels to request on connect
func (c *Config) WaveformChannels() ([]protocol.ChannelID, error) {
	return parseChannels(c.Requests.Waveforms)
}

// SimulatorConfig converts the simulator section
func (c *Config) SimulatorConfig() (simulator.Config, error) {
	channels, err := parseChannels(c.Simulator.Channels)
	if err != nil {
		return simulator.Config{}, fmt.Errorf("%w: simulator.channels: %v", ErrInvalidConfig, err)
	}
	return simulator.Config{
		NumericInterval: c.Simulator.NumericInterval,
		WaveInterval:    c.Simulator.WaveInterval,
		Channels:        channels,
		Classic:         c.Simulator.Classic,
		Alarms:          c.Simulator.Alarms,
		WaitForRequest:  c.Simulator.WaitForRequest,
		Seed:            c.Simulator.Seed,
	}, nil
}

// Tables returns the built-in metadata tables with the file's overrides
// applied.
func (c *Config) Tables() (*protocol.Tables, error) {
	if len(c.Parameters) == 0 && len(c.Channels) == 0 {
		return protocol.DefaultTables(), nil
	}

	params := make([]protocol.ParamInfo, 0, len(c.Parameters))
	for _, p := range c.Parameters {
		id, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(p.ID), "0x"), 16, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: parameters: bad id %q", ErrInvalidConfig, p.ID)
		}
		if p.Scale == 0 {
			return nil, fmt.Errorf("%w: parameters: %s has no scale", ErrInvalidConfig, p.ID)
		}
		params = append(params, protocol.ParamInfo{ID: protocol.ParamID(id), Name: p.Name, Unit: p.Unit, Scale: p.Scale})
	}

	channels := make([]protocol.ChannelInfo, 0, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.ID < 0 || ch.ID > 0xFE {
			return nil, fmt.Errorf("%w: channels: bad id %d", ErrInvalidConfig, ch.ID)
		}
		if ch.Scale == 0 {
			return nil, fmt.Errorf("%w: channels: %d has no scale", ErrInvalidConfig, ch.ID)
		}
		channels = append(channels, protocol.ChannelInfo{
			ID: protocol.ChannelID(ch.ID), Name: ch.Name, Unit: ch.Unit, Scale: ch.Scale, SampleRate: ch.SampleRate,
		})
	}

	return protocol.DefaultTables().WithOverrides(params, channels), nil
}

func parseChannels(names []string) ([]protocol.ChannelID, error) {
	channels := make([]protocol.ChannelID, 0, len(names))
	for _, name := range names {
		ch, err := protocol.ParseChannel(name)
		if err != nil {
			return nil, err
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
