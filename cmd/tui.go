// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/batteread/pkg/bms"
)

var tuiInterval time.Duration

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Live battery dashboard",
	Long: `Poll the BMS and show a live dashboard with state of charge, per-cell
voltages, session statistics and recent events.

Press 'r' to fetch immediately, 'c' to clear statistics and 'q' to quit.`,
	RunE: runTUI,
}

func init() {
	rootCmd.AddCommand(tuiCmd)
	tuiCmd.Flags().DurationVarP(&tuiInterval, "interval", "i", 10*time.Second, "Time between fetches")
}

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for info
}

// stateFetcher is the part of bms.Client the dashboard uses
type stateFetcher interface {
	FetchState(ctx context.Context) (bms.BatteryState, error)
	Stats() bms.Statistics
	ResetStats()
}

// TUI model
type dashboardModel struct {
	client        stateFetcher
	ctx           context.Context
	connInfo      string
	interval      time.Duration
	spinner       spinner.Model
	fetching      bool
	lastState     *bms.BatteryState
	lastErr       error
	stats         bms.Statistics
	eventLog      []eventLogEntry
	maxLogEntries int
	width         int
	height        int
	quitting      bool
}

// Messages
type pollMsg time.Time
type fetchResultMsg struct {
	state bms.BatteryState
	err   error
}

func initialDashboard(ctx context.Context, client stateFetcher, connInfo string, interval time.Duration) dashboardModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))

	return dashboardModel{
		client:        client,
		ctx:           ctx,
		connInfo:      connInfo,
		interval:      interval,
		spinner:       s,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		width:         80,
		height:        24,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		m.spinner.Tick,
		func() tea.Msg { return pollMsg(time.Now()) },
	)
}

func pollCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return pollMsg(t)
	})
}

func (m dashboardModel) fetch() tea.Cmd {
	client, ctx := m.client, m.ctx
	return func() tea.Msg {
		state, err := client.FetchState(ctx)
		return fetchResultMsg{state: state, err: err}
	}
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			if !m.fetching {
				m.fetching = true
				return m, m.fetch()
			}
		case "c":
			m.client.ResetStats()
			m.stats = m.client.Stats()
			m.addLogEntry("Statistics cleared", false)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case pollMsg:
		if m.fetching {
			return m, pollCmd(m.interval)
		}
		m.fetching = true
		return m, tea.Batch(m.fetch(), pollCmd(m.interval))

	case fetchResultMsg:
		m.fetching = false
		m.stats = m.client.Stats()
		if msg.err != nil {
			m.lastErr = msg.err
			m.addLogEntry(msg.err.Error(), true)
			return m, nil
		}
		state := msg.state
		m.lastState = &state
		m.lastErr = nil
		m.addLogEntry(fmt.Sprintf("SOC %d%%, %.2f V, %d cells", state.StateOfChargePct, state.BatteryVoltage(), state.CellCount()), false)
	}

	return m, nil
}

func (m *dashboardModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

// cellStyle marks the lowest and highest cell once the spread reaches 20 mV
func cellStyle(mv uint16, lo, hi uint16) lipgloss.Style {
	style := lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	if hi-lo < 20 {
		return style
	}
	switch mv {
	case lo:
		return style.Foreground(lipgloss.Color("11"))
	case hi:
		return style.Foreground(lipgloss.Color("14"))
	}
	return style
}

func (m dashboardModel) View() string {
	if m.quitting {
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	infoStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("BATTEREAD - DASHBOARD"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Every %s | 'r' fetch, 'c' clear stats, 'q' quit",
		m.connInfo, m.interval)))
	s.WriteString("\n\n")

	// Link status
	switch {
	case m.fetching:
		s.WriteString(m.spinner.View() + " " + infoStyle.Render("Fetching..."))
	case m.lastErr != nil:
		s.WriteString(errorStyle.Render("✗ Last fetch failed"))
	case m.lastState != nil:
		s.WriteString(valueStyle.Render("✓ Up to date"))
		s.WriteString(headerStyle.Render(" (" + m.lastState.FetchedAt.Format("15:04:05") + ")"))
	default:
		s.WriteString(infoStyle.Render("⏳ Waiting for first snapshot..."))
	}
	s.WriteString("\n\n")

	// Battery section
	if st := m.lastState; st != nil {
		battery := strings.Builder{}
		battery.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
			labelStyle.Render("SOC:"), valueStyle.Render(fmt.Sprintf("%d%%", st.StateOfChargePct)),
			labelStyle.Render("Voltage:"), valueStyle.Render(fmt.Sprintf("%.2f V", st.BatteryVoltage())),
			labelStyle.Render("Residual:"), valueStyle.Render(fmt.Sprintf("%.2f Ah", st.ResidualCapacityAh())),
			labelStyle.Render("Cycles:"), valueStyle.Render(fmt.Sprintf("%d", st.CyclesCount)),
		))

		if st.CellCount() > 0 {
			lo, hi := st.MinCellMV(), st.MaxCellMV()
			battery.WriteString(fmt.Sprintf("%s %d   %s %d mV   %s %d mV   %s %d mV\n",
				labelStyle.Render("Cells:"), st.CellCount(),
				labelStyle.Render("Min:"), lo,
				labelStyle.Render("Max:"), hi,
				labelStyle.Render("Spread:"), st.CellSpreadMV(),
			))
			for i, mv := range st.CellVoltageMV {
				battery.WriteString(fmt.Sprintf("%s %s  ",
					headerStyle.Render(fmt.Sprintf("%2d", i+1)),
					cellStyle(mv, lo, hi).Render(fmt.Sprintf("%.3fV", float64(mv)/1000)),
				))
				if i%8 == 7 && i != len(st.CellVoltageMV)-1 {
					battery.WriteString("\n")
				}
			}
		} else {
			battery.WriteString(headerStyle.Render("(no cells reported)"))
		}

		s.WriteString(boxStyle.Render(battery.String()))
		s.WriteString("\n\n")
	}

	// Statistics
	stats := m.stats
	var validPercent float64
	if stats.Exchanges > 0 {
		validPercent = float64(stats.ValidResponses) * 100.0 / float64(stats.Exchanges)
	}

	statsContent := strings.Builder{}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
		labelStyle.Render("Fetches:"), valueStyle.Render(fmt.Sprintf("%d (%d failed)", stats.Fetches, stats.FetchFailures)),
		labelStyle.Render("Valid:"), valueStyle.Render(fmt.Sprintf("%d/%d (%.1f%%)", stats.ValidResponses, stats.Exchanges, validPercent)),
		labelStyle.Render("Connects:"), valueStyle.Render(fmt.Sprintf("%d (%d attempts)", stats.Connects, stats.ConnectAttempts)),
	))
	if stats.Errors() > 0 {
		statsContent.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
			labelStyle.Render("Checksum:"), errorStyle.Render(fmt.Sprintf("%d", stats.ChecksumErrors)),
			labelStyle.Render("Header:"), errorStyle.Render(fmt.Sprintf("%d", stats.HeaderErrors+stats.TooLongErrors)),
			labelStyle.Render("Timeouts:"), errorStyle.Render(fmt.Sprintf("%d", stats.Timeouts)),
			labelStyle.Render("Closed:"), errorStyle.Render(fmt.Sprintf("%d", stats.StreamClosures)),
		))
	}
	statsContent.WriteString(fmt.Sprintf("%s %s   %s %s",
		labelStyle.Render("Duplicates:"), valueStyle.Render(fmt.Sprintf("%d", stats.DuplicatesDropped)),
		labelStyle.Render("Stale:"), valueStyle.Render(fmt.Sprintf("%d", stats.StaleDiscarded)),
	))

	s.WriteString(boxStyle.Render(statsContent.String()))
	s.WriteString("\n\n")

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 18 // Reserve space for header, battery and stats
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					infoStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))

	return s.String()
}

func runTUI(cmd *cobra.Command, args []string) error {
	if tuiInterval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	// Log lines would corrupt the alternate screen; failures go to the event log
	client, connInfo, err := OpenClient(cfg, zerolog.Nop())
	if err != nil {
		return err
	}
	defer client.Disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p := tea.NewProgram(initialDashboard(ctx, client, connInfo, tuiInterval))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
