// Package tui is the optional `--tui` live status screen: a bubbletea
// program that renders internal/monitor.Snapshot values as they arrive,
// rather than requiring an operator to curl /metrics.
package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kg9x/v21modem/internal/monitor"
)

var (
	primaryColor = lipgloss.Color("#00AFFF")
	okColor      = lipgloss.Color("#00AA00")
	warnColor    = lipgloss.Color("#FFA500")
	mutedColor   = lipgloss.Color("#888888")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(primaryColor).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(mutedColor)
	lockedYes  = lipgloss.NewStyle().Bold(true).Foreground(okColor)
	lockedNo   = lipgloss.NewStyle().Bold(true).Foreground(warnColor)
)

// SnapshotMsg wraps a monitor.Snapshot as a tea.Msg.
type SnapshotMsg monitor.Snapshot

// Model is the bubbletea model for the status screen.
type Model struct {
	Role string

	latest   monitor.Snapshot
	started  time.Time
	feed     chan tea.Msg
	width    int
	height   int
	gotFirst bool
}

// NewModel builds a status screen fed by feed, which the caller should
// populate by converting each monitor.Snapshot to a SnapshotMsg and
// sending it non-blockingly — feed should be buffered, since the
// monitor hub must never stall waiting on a slow terminal.
func NewModel(role string, feed chan tea.Msg) Model {
	return Model{Role: role, started: time.Now(), feed: feed}
}

func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.feed)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case SnapshotMsg:
		m.latest = monitor.Snapshot(msg)
		m.gotFirst = true
		return m, waitForSnapshot(m.feed)
	}

	return m, nil
}

func (m Model) View() string {
	if !m.gotFirst {
		return "waiting for the modem to come up...\n"
	}

	locked := lockedNo.Render("NO")
	if m.latest.LinkLocked {
		locked = lockedYes.Render("YES")
	}

	var b strings.Builder
	fmt.Fprintln(&b, titleStyle.Render(fmt.Sprintf("v21modem — %s", m.Role)))
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("uptime:"), time.Since(m.started).Round(time.Second))
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("bytes in:"), m.latest.BytesIn)
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("bytes out:"), m.latest.BytesOut)
	fmt.Fprintf(&b, "%s %d samples\n", labelStyle.Render("tx queue depth:"), m.latest.TxQueueDepth)
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("receive lock:"), locked)
	fmt.Fprintln(&b)
	fmt.Fprintln(&b, labelStyle.Render("press q to quit"))
	return b.String()
}

func waitForSnapshot(feed chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-feed
	}
}
