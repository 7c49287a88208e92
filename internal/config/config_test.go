package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/muurk/drilink/internal/protocol"
)

func TestGetConfigDir(t *testing.T) {
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}

	if !strings.Contains(configDir, "drilink") {
		t.Errorf("GetConfigDir() = %v, should contain 'drilink'", configDir)
	}

	if runtime.GOOS == "linux" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
		configDir, err = GetConfigDir()
		if err != nil {
			t.Fatalf("GetConfigDir() error = %v", err)
		}
		if configDir != "/tmp/xdg/drilink" {
			t.Errorf("GetConfigDir() = %v, want /tmp/xdg/drilink", configDir)
		}
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}

	if filepath.Base(configPath) != "config.yaml" {
		t.Errorf("GetConfigPath() should end with 'config.yaml', got: %v", configPath)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Serial.Baud != 19200 || cfg.Serial.Parity != "even" || cfg.Serial.DataBits != 8 {
		t.Errorf("Default serial = %+v, want 19200 8E1", cfg.Serial)
	}

	mask, err := cfg.ClassMask()
	if err != nil || mask != 1 {
		t.Errorf("ClassMask() = %d, %v, want 1", mask, err)
	}
	sr, err := cfg.PhdbSubtype()
	if err != nil || sr != protocol.PhdbDispl {
		t.Errorf("PhdbSubtype() = %d, %v, want DISPL", sr, err)
	}

	sim, err := cfg.SimulatorConfig()
	if err != nil {
		t.Fatalf("SimulatorConfig() error = %v", err)
	}
	if len(sim.Channels) != 3 || sim.NumericInterval != 5*time.Second {
		t.Errorf("SimulatorConfig() = %+v", sim)
	}
	tables, err := cfg.Tables()
	if err != nil || tables != protocol.DefaultTables() {
		t.Errorf("Tables() without overrides should be the default tables, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   string
	}{
		{"bad version", func(c *Config) { c.Version = 2 }, "version"},
		{"bad parity", func(c *Config) { c.Serial.Parity = "sometimes" }, "parity"},
		{"bad stop bits", func(c *Config) { c.Serial.StopBits = 3 }, "stop bits"},
		{"bad subtype", func(c *Config) { c.Requests.Subtype = "hourly" }, "subtype"},
		{"bad class", func(c *Config) { c.Requests.Classes = []string{"ext9"} }, "ext9"},
		{"bad interval", func(c *Config) { c.Requests.Interval = 70000 }, "interval"},
		{"unknown channel", func(c *Config) { c.Requests.Waveforms = []string{"ECG9"} }, "ECG9"},
		{"rate exceeded", func(c *Config) { c.Simulator.Channels = []string{"ECG1", "ECG2", "ECG3"} }, "samples/s"},
		{
			"too many channels",
			func(c *Config) {
				c.Requests.Waveforms = []string{"CO2", "O2", "N2O", "AA", "AWP", "FLOW", "VOL", "CO2", "O2"}
			},
			"maximum 8",
		},
		{"override without scale", func(c *Config) { c.Parameters = []ParamOverride{{ID: "0x7f01", Name: "x"}} }, "no scale"},
		{"override bad id", func(c *Config) { c.Parameters = []ParamOverride{{ID: "zz", Scale: 1}} }, "bad id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestTablesOverrides(t *testing.T) {
	cfg := Default()
	cfg.Parameters = []ParamOverride{
		{ID: "0x7f01", Name: "vendor pressure", Unit: "mmHg", Scale: 0.01},
		{ID: "0x0101", Name: "pulse", Unit: "bpm", Scale: 1},
	}
	cfg.Channels = []ChannelOverride{{ID: 99, Name: "aux wave", Scale: 0.5, SampleRate: 50}}

	tables, err := cfg.Tables()
	if err != nil {
		t.Fatalf("Tables() error = %v", err)
	}

	if p, ok := tables.Param(0x7f01); !ok || p.Name != "vendor pressure" || p.Scale != 0.01 {
		t.Errorf("override param = %+v, %v", p, ok)
	}
	if p, _ := tables.Param(protocol.ParamHeartRate); p.Name != "pulse" || p.Scale != 1 {
		t.Errorf("replaced param = %+v", p)
	}
	if p, _ := tables.Param(protocol.ParamSpO2); p.Name == "" {
		t.Error("built-in entries should survive overrides")
	}
	if ch, ok := tables.Channel(99); !ok || ch.SampleRate != 50 {
		t.Errorf("override channel = %+v, %v", ch, ok)
	}
	if p, _ := protocol.DefaultTables().Param(protocol.ParamHeartRate); p.Name == "pulse" {
		t.Error("overrides leaked into the default tables")
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")

	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB1"
	cfg.Serial.ReadTimeout = 500 * time.Millisecond
	cfg.Requests.Interval = 60
	cfg.Requests.Waveforms = []string{"AWP"}
	cfg.Export.Store = "/var/lib/drilink/trends.db"
	cfg.Parameters = []ParamOverride{{ID: "0x7f01", Name: "vendor", Scale: 0.1}}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.HasPrefix(string(data), "# drilink configuration file") {
		t.Error("saved file should start with the header comment")
	}
	if !strings.Contains(string(data), "read_timeout: 500ms") {
		t.Errorf("durations should be written as strings:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name   string
		verify func(*testing.T, *Config)
	}{
		{"port", func(t *testing.T, c *Config) {
			if c.Serial.Port != "/dev/ttyUSB1" {
				t.Errorf("Port = %q", c.Serial.Port)
			}
		}},
		{"read timeout", func(t *testing.T, c *Config) {
			if c.Serial.ReadTimeout != 500*time.Millisecond {
				t.Errorf("ReadTimeout = %v", c.Serial.ReadTimeout)
			}
		}},
		{"requests", func(t *testing.T, c *Config) {
			chs, err := c.WaveformChannels()
			if err != nil || len(chs) != 1 || chs[0] != protocol.ChannelAWP {
				t.Errorf("WaveformChannels() = %v, %v", chs, err)
			}
			if c.Requests.Interval != 60 {
				t.Errorf("Interval = %d", c.Requests.Interval)
			}
		}},
		{"export", func(t *testing.T, c *Config) {
			if c.Export.Store != "/var/lib/drilink/trends.db" {
				t.Errorf("Store = %q", c.Export.Store)
			}
		}},
		{"parameters", func(t *testing.T, c *Config) {
			if len(c.Parameters) != 1 || c.Parameters[0].ID != "0x7f01" {
				t.Errorf("Parameters = %+v", c.Parameters)
			}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) { tt.verify(t, loaded) })
	}
}

func TestLoadPartialFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "version: 1\nserial:\n  port: COM4\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Serial.Port != "COM4" {
		t.Errorf("Port = %q, want COM4", cfg.Serial.Port)
	}
	if cfg.Serial.Baud != 19200 || cfg.Requests.Subtype != "displ" {
		t.Error("fields missing from the file should keep their defaults")
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) = %v, want ErrNotExist", err)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("serial: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Error("Load(bad yaml) should fail")
	}

	invalid := filepath.Join(dir, "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("version: 1\nrequests:\n  subtype: weekly\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(invalid); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("Load(invalid) = %v, want ErrInvalidConfig", err)
	}
}

func TestLoadDefaultWithoutFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())
	t.Setenv("LOCALAPPDATA", t.TempDir())

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault() error = %v", err)
	}
	if cfg.Version != CurrentVersion {
		t.Errorf("Version = %d", cfg.Version)
	}
}
