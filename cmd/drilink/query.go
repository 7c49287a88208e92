package main

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/muurk/drilink/internal/export"
	"github.com/muurk/drilink/internal/ui"
)

// Query command flags
var (
	queryStore  string
	queryParam  string
	queryFrom   string
	queryTo     string
	queryEvents bool
	queryLatest bool
	queryFormat string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query a trend store",
	Long: `Read back a trend store written by 'drilink read --store'.

Without --param the stored parameters are listed. --from and --to accept an
RFC 3339 time or a duration meaning that long ago (90m, 24h).`,
	Example: `  # Which parameters were recorded
  drilink query --store trends.db

  # Heart rate over the last two hours
  drilink query --store trends.db --param "heart rate" --from 2h

  # Same by id, as CSV
  drilink query --store trends.db --param 0x0101 --format csv

  # Alarms of a day
  drilink query --store trends.db --events --from 2024-05-01T00:00:00Z --to 2024-05-02T00:00:00Z`,
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryStore, "store", "", "Trend store file (default from config export.store)")
	queryCmd.Flags().StringVar(&queryParam, "param", "", "Parameter name or hex id")
	queryCmd.Flags().StringVar(&queryFrom, "from", "", "Start time, inclusive")
	queryCmd.Flags().StringVar(&queryTo, "to", "", "End time, exclusive")
	queryCmd.Flags().BoolVar(&queryEvents, "events", false, "List alarms and messages instead of a parameter")
	queryCmd.Flags().BoolVar(&queryLatest, "latest", false, "Only the most recent value of --param")
	queryCmd.Flags().StringVar(&queryFormat, "format", "table", "Output format (table, csv)")

	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	tables, err := cfg.Tables()
	if err != nil {
		return err
	}

	path := queryStore
	if path == "" {
		path = cfg.Export.Store
	}
	if path == "" {
		return fmt.Errorf("no store given: use --store or set export.store in the config file")
	}
	if queryFormat != "table" && queryFormat != "csv" {
		return fmt.Errorf("invalid --format %q (want table or csv)", queryFormat)
	}

	now := time.Now()
	from, err := parseQueryTime(queryFrom, now)
	if err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	to, err := parseQueryTime(queryTo, now)
	if err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}

	st, err := export.OpenStore(path)
	if err != nil {
		return err
	}
	defer st.Close()

	var (
		headers []string
		rows    [][]string
	)

	switch {
	case queryEvents:
		events, err := st.Events(from, to)
		if err != nil {
			return err
		}
		headers = []string{"time", "category", "text"}
		for _, ev := range events {
			rows = append(rows, []string{formatTime(ev.Time), ev.Category.String(), ev.Text})
		}

	case queryParam != "":
		id, err := export.ParseParamKey(tables, queryParam)
		if err != nil {
			return err
		}
		var points []export.Point
		if queryLatest {
			pt, err := st.Latest(id)
			if err != nil {
				return err
			}
			points = []export.Point{pt}
		} else if points, err = st.Query(id, from, to); err != nil {
			return err
		}
		headers = []string{"time", "value", "status"}
		for _, pt := range points {
			value := ""
			if pt.Valid {
				value = strconv.FormatFloat(pt.Value, 'f', -1, 64)
			}
			rows = append(rows, []string{formatTime(pt.Time), value, pt.Status.String()})
		}

	default:
		params, err := st.Params()
		if err != nil {
			return err
		}
		headers = []string{"id", "name", "unit"}
		for _, pm := range params {
			rows = append(rows, []string{fmt.Sprintf("0x%04x", uint16(pm.ID)), pm.Name, pm.Unit})
		}
	}

	if queryFormat == "csv" {
		w := csv.NewWriter(cmd.OutOrStdout())
		_ = w.Write(headers)
		_ = w.WriteAll(rows)
		return w.Error()
	}

	if len(rows) == 0 {
		ui.NewPrinter(cmd.OutOrStdout()).PrintWarning("Nothing found", ui.F("Store", path))
		return nil
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(ui.MutedColor)).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	return nil
}

// parseQueryTime accepts an RFC 3339 time or a duration before now. An
// empty string leaves the bound open.
func parseQueryTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}
	return time.Parse(time.RFC3339, s)
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04:05")
}
