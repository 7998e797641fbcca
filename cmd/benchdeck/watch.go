package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"benchdeck/internal/supervisor"
)

var (
	watchTitle  = lipgloss.NewStyle().Bold(true)
	watchMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	watchGood   = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	watchWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	watchBad    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	watchHeader = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Underline(true)
)

type watchModel struct {
	worker    supervisor.Snapshot
	runs      []map[string]any
	throttled bool
	err       error
}

type watchRefreshMsg struct {
	worker    supervisor.Snapshot
	runs      []map[string]any
	throttled bool
}

type watchErrMsg struct{ err error }

type watchTickMsg struct{}

func watchTick() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return watchTickMsg{}
	})
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.refresh, watchTick())
}

// refresh polls the daemon for the worker snapshot and the run list.
func (m watchModel) refresh() tea.Msg {
	var snap supervisor.Snapshot
	if err := apiGet("/v1/worker", &snap); err != nil {
		return watchErrMsg{err: err}
	}

	var runs []map[string]any
	var result map[string]any
	if err := apiGet("/v1/runs", &result); err == nil {
		if raw, ok := result["runs"].([]any); ok {
			for _, r := range raw {
				if run, ok := r.(map[string]any); ok {
					runs = append(runs, run)
				}
			}
		}
	}

	throttled := false
	var system map[string]any
	if err := apiGet("/v1/system", &system); err == nil {
		throttled, _ = system["throttled"].(bool)
	}

	return watchRefreshMsg{worker: snap, runs: runs, throttled: throttled}
}

func (m watchModel) restartWorker() tea.Msg {
	if _, err := apiPost("/v1/worker/restart"); err != nil {
		return watchErrMsg{err: err}
	}
	return m.refresh()
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.refresh
		case "R":
			return m, m.restartWorker
		}
	case watchRefreshMsg:
		m.worker = msg.worker
		m.runs = msg.runs
		m.throttled = msg.throttled
		m.err = nil
	case watchErrMsg:
		m.err = msg.err
	case watchTickMsg:
		return m, tea.Batch(m.refresh, watchTick())
	}
	return m, nil
}

func stateStyle(s supervisor.State) lipgloss.Style {
	switch s {
	case supervisor.StateReady:
		return watchGood
	case supervisor.StateFailed:
		return watchBad
	default:
		return watchWarn
	}
}

func (m watchModel) View() string {
	if m.err != nil {
		return fmt.Sprintf("Error: %v\n\nPress 'r' to retry, 'q' to quit\n", m.err)
	}

	var b strings.Builder
	b.WriteString(watchTitle.Render("benchdeck worker"))
	b.WriteString("\n")
	b.WriteString(strings.Repeat("─", 60))
	b.WriteString("\n")

	snap := m.worker
	b.WriteString(fmt.Sprintf("State:    %s\n", stateStyle(snap.State).Render(string(snap.State))))
	if snap.PID > 0 {
		b.WriteString(fmt.Sprintf("PID:      %d\n", snap.PID))
	}
	if !snap.StartedAt.IsZero() && snap.State.Usable() {
		b.WriteString(fmt.Sprintf("Uptime:   %s\n", time.Since(snap.StartedAt).Round(time.Second)))
	}
	if snap.Restarts > 0 {
		b.WriteString(fmt.Sprintf("Restarts: %d\n", snap.Restarts))
	}
	if snap.External {
		b.WriteString(watchMuted.Render("Worker was already running; not managed by the daemon") + "\n")
	}
	if snap.State == supervisor.StateFailed {
		detail := fmt.Sprintf("exit %d", snap.ExitCode)
		if snap.LastError != "" {
			detail += ": " + snap.LastError
		}
		b.WriteString(watchBad.Render("Failure:  "+detail) + "\n")
	}
	if m.throttled {
		b.WriteString(watchWarn.Render("Thermal:  throttled, benchmark results may not be comparable") + "\n")
	}

	b.WriteString("\n")
	b.WriteString(watchHeader.Render(fmt.Sprintf("%-12s %-16s %-20s %s", "ID", "SUITE", "MODEL", "STATUS")))
	b.WriteString("\n")
	if len(m.runs) == 0 {
		b.WriteString(watchMuted.Render("(no runs)") + "\n")
	}
	for _, run := range m.runs {
		b.WriteString(fmt.Sprintf("%-12v %-16v %-20v %v\n",
			run["id"], run["suite"], run["model"], run["status"]))
	}

	b.WriteString("\n")
	b.WriteString(watchMuted.Render("[r] Refresh   [R] Restart worker   [q] Quit"))
	b.WriteString("\n")
	return b.String()
}

func runStatusWatch() error {
	p := tea.NewProgram(watchModel{})
	_, err := p.Run()
	return err
}
