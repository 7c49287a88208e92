package ui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/muurk/drilink/internal/protocol"
)

// Monitor defaults
const (
	DefaultTraceLength = 600 // samples kept per waveform channel
	DefaultMaxEvents   = 6
	statsRefresh       = time.Second
)

// RecordMsg delivers a decoded record to the Monitor
type RecordMsg struct {
	Record *protocol.Record
}

// SessionDoneMsg tells the Monitor the session has ended
type SessionDoneMsg struct {
	Err error
}

type statsTickMsg time.Time

// Sender is the part of *tea.Program the record handler needs
type Sender interface {
	Send(msg tea.Msg)
}

// MonitorHandler returns a protocol.Handler that forwards every record to a
// running Monitor program.
func MonitorHandler(s Sender) protocol.Handler {
	return protocol.HandlerFunc(func(rec *protocol.Record) error {
		s.Send(RecordMsg{Record: rec})
		return nil
	})
}

// monitorKeyMap defines key bindings for the live monitor
type monitorKeyMap struct {
	Quit  key.Binding
	Clear key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k monitorKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Clear, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k monitorKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Clear, k.Quit}}
}

type trace struct {
	name    string
	unit    string
	samples []float64
	gap     bool
}

func (t *trace) push(w *protocol.WaveformSample, limit int) {
	t.samples = append(t.samples, w.Samples...)
	if n := len(t.samples); n > limit {
		t.samples = t.samples[n-limit:]
	}
	t.gap = w.Status.Gap() || w.Status.LeadOff()
}

// Monitor is a Bubble Tea model showing the latest vitals, waveform traces
// and alarms of one session.
type Monitor struct {
	Title       string
	Source      string
	TraceLength int
	MaxEvents   int

	stats   func() protocol.SessionStats
	current protocol.SessionStats

	vitals   map[protocol.ParamID]*protocol.Measurement
	traces   map[protocol.ChannelID]*trace
	events   []*protocol.Event
	records  int
	lastSeen time.Time

	done bool
	err  error

	width   int
	table   table.Model
	spinner spinner.Model
	help    help.Model
	keys    monitorKeyMap
}

// NewMonitor creates a Monitor. stats, when not nil, is polled once a second
// for the session counters shown in the footer.
func NewMonitor(title, source string, stats func() protocol.SessionStats) Monitor {
	columns := []table.Column{
		{Title: "Parameter", Width: 16},
		{Title: "Value", Width: 8},
		{Title: "Unit", Width: 6},
		{Title: "Label", Width: 6},
		{Title: "Status", Width: 14},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithHeight(10),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(MutedColor).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.Foreground(TextColor).Bold(false)
	t.SetStyles(s)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(PrimaryColor)

	return Monitor{
		Title:       title,
		Source:      source,
		TraceLength: DefaultTraceLength,
		MaxEvents:   DefaultMaxEvents,
		stats:       stats,
		vitals:      make(map[protocol.ParamID]*protocol.Measurement),
		traces:      make(map[protocol.ChannelID]*trace),
		width:       GetTerminalWidth(),
		table:       t,
		spinner:     sp,
		help:        help.New(),
		keys: monitorKeyMap{
			Clear: key.NewBinding(
				key.WithKeys("c"),
				key.WithHelp("c", "clear alarms"),
			),
			Quit: key.NewBinding(
				key.WithKeys("q", "esc", "ctrl+c"),
				key.WithHelp("q", "quit"),
			),
		},
	}
}

// Init implements tea.Model
func (m Monitor) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, statsTick())
}

func statsTick() tea.Cmd {
	return tea.Tick(statsRefresh, func(t time.Time) tea.Msg {
		return statsTickMsg(t)
	})
}

// Update implements tea.Model
func (m Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if m.width > MaxContentWidth {
			m.width = MaxContentWidth
		}
		if m.width < MinTerminalWidth {
			m.width = MinTerminalWidth
		}
		return m, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Clear):
			m.events = nil
		}
		return m, nil

	case RecordMsg:
		m.apply(msg.Record)
		return m, nil

	case SessionDoneMsg:
		m.done = true
		m.err = msg.Err
		if m.stats != nil {
			m.current = m.stats()
		}
		return m, nil

	case statsTickMsg:
		if m.stats != nil {
			m.current = m.stats()
		}
		return m, statsTick()

	case spinner.TickMsg:
		if m.records > 0 {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *Monitor) apply(rec *protocol.Record) {
	if rec == nil {
		return
	}
	m.records++
	if rec.Header != nil {
		m.lastSeen = rec.Header.Timestamp()
	}

	vitalsChanged := false
	for _, v := range rec.Values {
		switch v := v.(type) {
		case *protocol.Measurement:
			m.vitals[v.ID] = v
			vitalsChanged = true

		case *protocol.WaveformSample:
			t, ok := m.traces[v.Channel]
			if !ok {
				t = &trace{name: v.Channel.String(), unit: v.Unit}
				m.traces[v.Channel] = t
			}
			t.push(v, m.TraceLength)

		case *protocol.Event:
			m.events = append([]*protocol.Event{v}, m.events...)
			if len(m.events) > m.MaxEvents {
				m.events = m.events[:m.MaxEvents]
			}
		}
	}

	if vitalsChanged {
		m.table.SetRows(m.rows())
	}
}

func (m *Monitor) rows() []table.Row {
	vitals := m.Vitals()
	rows := make([]table.Row, len(vitals))
	for i, v := range vitals {
		value, status := FormatMeasurement(v), ""
		if !v.Valid {
			value, status = "---", v.Status.String()
		}
		rows[i] = table.Row{v.Name, value, v.Unit, v.Label, status}
	}
	return rows
}

// Vitals returns the latest measurement of every parameter seen, ordered by
// parameter id.
func (m Monitor) Vitals() []*protocol.Measurement {
	out := make([]*protocol.Measurement, 0, len(m.vitals))
	for _, v := range m.vitals {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Trace returns the buffered samples of a waveform channel
func (m Monitor) Trace(ch protocol.ChannelID) []float64 {
	if t, ok := m.traces[ch]; ok {
		return t.samples
	}
	return nil
}

// Events returns the most recent events, newest first
func (m Monitor) Events() []*protocol.Event {
	return m.events
}

// Done reports whether the session has ended, and with which error
func (m Monitor) Done() (bool, error) {
	return m.done, m.err
}

// View implements tea.Model
func (m Monitor) View() string {
	width := m.width
	var sections []string

	title := HeaderTitleStyle.Render(strings.ToUpper(m.Title))
	if m.Source != "" {
		title += HeaderCommandStyle.Render(m.Source)
	}
	sections = append(sections, title, "")

	if m.records == 0 && !m.done {
		sections = append(sections,
			"  "+m.spinner.View()+" "+VitalStatusStyle.Render("waiting for data"), "")
	} else {
		sections = append(sections, TablePanelStyle().Render(m.table.View()))
		if len(m.traces) > 0 {
			sections = append(sections, PanelStyle(width).Render(m.renderTraces(width-6)))
		}
		if len(m.events) > 0 {
			sections = append(sections, PanelStyle(width).Render(m.renderEvents()))
		}
	}

	sections = append(sections, StatsStyle.Render(m.renderStats()))

	if m.done {
		end := "session ended"
		if m.err != nil {
			end += ": " + m.err.Error()
			sections = append(sections, "  "+ErrorMessageStyle.Render(end))
		} else {
			sections = append(sections, "  "+VitalStatusStyle.Render(end))
		}
	}

	sections = append(sections, "  "+m.help.View(m.keys))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Monitor) renderTraces(width int) string {
	channels := make([]protocol.ChannelID, 0, len(m.traces))
	for ch := range m.traces {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool { return channels[i] < channels[j] })

	const labelWidth = 8
	lines := make([]string, 0, len(channels))
	for _, ch := range channels {
		t := m.traces[ch]
		style := TraceStyle
		if t.gap {
			style = TraceGapStyle
		}
		label := fmt.Sprintf("%-*s", labelWidth, t.name)
		lines = append(lines, ResultKeyStyle.Width(labelWidth+1).Render(label)+style.Render(Sparkline(t.samples, width-labelWidth-1)))
	}
	return strings.Join(lines, "\n")
}

func (m Monitor) renderEvents() string {
	lines := make([]string, len(m.events))
	for i, ev := range m.events {
		ts := ""
		if !ev.Time.IsZero() {
			ts = ev.Time.Local().Format("15:04:05") + " "
		}
		lines[i] = AlarmStyle(ev.Category).Render(AlarmMarker+" "+ts+ev.Text) +
			VitalStatusStyle.Render(" ("+ev.Category.String()+")")
	}
	return strings.Join(lines, "\n")
}

func (m Monitor) renderStats() string {
	s := m.current
	line := fmt.Sprintf("records %d  values %d  frames %d  resyncs %d  discarded %d B",
		s.Records, s.Values, s.Sync.Frames, s.Sync.Failures, s.Sync.DiscardedBytes)
	if s.DecodeErrors > 0 {
		line += fmt.Sprintf("  decode errors %d", s.DecodeErrors)
	}
	if !m.lastSeen.IsZero() {
		line += "  last " + m.lastSeen.Local().Format("15:04:05")
	}
	return line
}

// FormatMeasurement formats a valid measurement value with at most two
// decimals and no trailing zeros.
func FormatMeasurement(m *protocol.Measurement) string {
	s := fmt.Sprintf("%.2f", m.Value)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	if s == "-0" {
		s = "0"
	}
	return s
}
