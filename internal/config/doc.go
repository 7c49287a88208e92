// Package config provides user configuration management for drilink.
//
// This package manages a YAML configuration file holding the monitor line
// settings, the transmission requests sent on connect, simulator defaults,
// export paths and overrides for the parameter and channel tables. Command
// line flags take precedence over the file.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/drilink/config.yaml or $HOME/.config/drilink/config.yaml
//   - macOS: $HOME/.config/drilink/config.yaml
//   - Windows: %LOCALAPPDATA%\drilink\config.yaml
//
// # File Format
//
//	version: 1
//	serial:
//	    port: /dev/ttyUSB0
//	    baud: 19200
//	    data_bits: 8
//	    parity: even
//	    stop_bits: 1
//	    rts_cts: true
//	requests:
//	    enabled: true
//	    subtype: displ
//	    interval: 10
//	    classes: [basic]
//	    waveforms: [ECG1, PLETH]
//	parameters:
//	    - {id: "0x7f01", name: vendor param, unit: mmHg, scale: 0.01}
//
// # Usage Example
//
//	cfg, err := config.LoadDefault()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	tables, err := cfg.Tables()
//	dec := protocol.NewDecoder(tables)
//
// # Thread Safety
//
// Save serializes writers within one process. Config values themselves
// are not synchronized.
package config
