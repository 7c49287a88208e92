package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/drilink/internal/config"
	"github.com/muurk/drilink/internal/export"
	"github.com/muurk/drilink/internal/protocol"
)

// outputFlags are the record destinations shared by read and replay
type outputFlags struct {
	csv   string
	json  string
	store string
	tui   bool
}

func addOutputFlags(cmd *cobra.Command, o *outputFlags) {
	cmd.Flags().StringVar(&o.csv, "csv", "", "Write values to a CSV file")
	cmd.Flags().StringVar(&o.json, "json", "", "Write values as JSON lines to a file (- for stdout)")
	cmd.Flags().StringVar(&o.store, "store", "", "Append measurements and alarms to a trend store")
	cmd.Flags().BoolVar(&o.tui, "tui", false, "Show a live view instead of printing values")
}

// withDefaults fills unset destinations from the config file's export section
func (o outputFlags) withDefaults(cfg *config.Config) outputFlags {
	if o.csv == "" {
		o.csv = cfg.Export.CSV
	}
	if o.json == "" {
		o.json = cfg.Export.JSON
	}
	if o.store == "" {
		o.store = cfg.Export.Store
	}
	return o
}

// outputs holds the open record destinations of one session
type outputs struct {
	handlers []protocol.Handler
	closers  []io.Closer
	store    *export.Store
}

// openOutputs opens every configured destination. Without any destination
// and without the live view, values go to stdout as JSON lines.
func openOutputs(o outputFlags, stdout io.Writer) (*outputs, error) {
	outs := &outputs{}

	if o.csv != "" {
		f, err := os.Create(o.csv)
		if err != nil {
			return nil, fmt.Errorf("failed to create CSV file: %w", err)
		}
		outs.closers = append(outs.closers, f)
		outs.handlers = append(outs.handlers, export.NewCSVWriter(f))
	}

	jsonPath := o.json
	if jsonPath == "" && o.csv == "" && o.store == "" && !o.tui {
		jsonPath = "-"
	}
	switch jsonPath {
	case "":
	case "-":
		outs.handlers = append(outs.handlers, export.NewJSONWriter(stdout))
	default:
		f, err := os.Create(jsonPath)
		if err != nil {
			_ = outs.Close()
			return nil, fmt.Errorf("failed to create JSON file: %w", err)
		}
		outs.closers = append(outs.closers, f)
		outs.handlers = append(outs.handlers, export.NewJSONWriter(f))
	}

	if o.store != "" {
		st, err := export.OpenStore(o.store)
		if err != nil {
			_ = outs.Close()
			return nil, err
		}
		outs.store = st
		outs.closers = append(outs.closers, st)
		outs.handlers = append(outs.handlers, st)
	}

	return outs, nil
}

// Handler returns one handler feeding every destination
func (o *outputs) Handler() protocol.Handler {
	return export.Multi(o.handlers...)
}

// Close closes every destination
func (o *outputs) Close() error {
	var errs []error
	for _, c := range o.closers {
		errs = append(errs, c.Close())
	}
	o.closers = nil
	return errors.Join(errs...)
}
