// Package tui provides transportctl's live dashboard: it polls a
// transportd node's admin snapshot endpoint and renders the scheduler and
// RPC-table counters that pkg/transport.Snapshot exposes for operational
// visibility. Grounded on strandctl/pkg/tui/model.go's bubbletea/lipgloss
// tick-fetch-render loop.
package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Width(20)

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			PaddingLeft(1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true).
			PaddingLeft(1)
)

const refreshInterval = 2 * time.Second

// snapshot mirrors the JSON shape pkg/transport.Snapshot marshals to.
type snapshot struct {
	ClientID        uint64 `json:"ClientID"`
	OutstandingReqs int    `json:"OutstandingReqs"`
	ServedRpcs      int    `json:"ServedRpcs"`
	ActiveGrants    int    `json:"ActiveGrants"`
	Ticks           uint64 `json:"Ticks"`
}

type tickMsg time.Time
type dataMsg snapshot
type errMsg error

// Model is the top-level bubbletea model for the dashboard.
type Model struct {
	adminAddr string
	snap      snapshot
	width     int
	height    int
	err       error
	loading   bool
	lastFetch time.Time
}

// New returns a Model that polls adminAddr's /snapshot endpoint.
func New(adminAddr string) Model {
	return Model{adminAddr: adminAddr, loading: true}
}

// Init starts the periodic tick and issues the first fetch.
func (m Model) Init() tea.Cmd {
	return tea.Batch(tick(), fetchSnapshot(m.adminAddr))
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func fetchSnapshot(adminAddr string) tea.Cmd {
	return func() tea.Msg {
		url := strings.TrimRight(adminAddr, "/") + "/snapshot"
		resp, err := http.Get(url) //nolint:gosec // URL comes from operator flag
		if err != nil {
			return errMsg(fmt.Errorf("GET %s: %w", url, err))
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return errMsg(fmt.Errorf("GET %s: unexpected status %d", url, resp.StatusCode))
		}
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return errMsg(fmt.Errorf("read snapshot response: %w", err))
		}
		var s snapshot
		if err := json.Unmarshal(body, &s); err != nil {
			return errMsg(fmt.Errorf("decode snapshot JSON: %w", err))
		}
		return dataMsg(s)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.loading = true
			m.err = nil
			return m, fetchSnapshot(m.adminAddr)
		}
		return m, nil
	case tickMsg:
		m.loading = true
		m.err = nil
		return m, tea.Batch(tick(), fetchSnapshot(m.adminAddr))
	case dataMsg:
		m.loading = false
		m.err = nil
		m.snap = snapshot(msg)
		m.lastFetch = time.Now()
		return m, nil
	case errMsg:
		m.loading = false
		m.err = msg
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Loading…"
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("  strand-transport monitor  "))
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")

	rows := []struct {
		label string
		value string
	}{
		{"client id", fmt.Sprintf("%d", m.snap.ClientID)},
		{"outstanding requests", fmt.Sprintf("%d", m.snap.OutstandingReqs)},
		{"served RPCs", fmt.Sprintf("%d", m.snap.ServedRpcs)},
		{"active grants", fmt.Sprintf("%d", m.snap.ActiveGrants)},
		{"dispatch ticks", fmt.Sprintf("%d", m.snap.Ticks)},
	}
	for _, r := range rows {
		sb.WriteString(labelStyle.Render(r.label))
		sb.WriteString(valueStyle.Render(r.value))
		sb.WriteString("\n")
	}

	sb.WriteString(strings.Repeat("─", m.width))
	sb.WriteString("\n")
	sb.WriteString(m.renderStatus())
	return sb.String()
}

func (m Model) renderStatus() string {
	if m.err != nil {
		return errorStyle.Render(fmt.Sprintf("Error: %v", m.err))
	}
	parts := []string{fmt.Sprintf("source: %s", m.adminAddr)}
	if !m.lastFetch.IsZero() {
		parts = append(parts, fmt.Sprintf("last refresh: %s", m.lastFetch.Format("15:04:05")))
	}
	if m.loading {
		parts = append(parts, "refreshing…")
	}
	parts = append(parts, "q: quit  r: refresh")
	return statusBarStyle.Render(strings.Join(parts, "  |  "))
}
