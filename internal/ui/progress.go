package ui

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"vodpick/internal/media"
	"vodpick/internal/resolve"
)

// DefaultWaitCeiling bounds how long the progress view waits for a commit.
const DefaultWaitCeiling = 15 * time.Second

// statusPollInterval is how often a wait re-reads the session status.
// Event subscribers may drop events under load, including the last one.
const statusPollInterval = 250 * time.Millisecond

// StatusFunc reports the current resolution status.
type StatusFunc func() resolve.Status

// WaitOutcome is how a progress wait ended.
type WaitOutcome int

const (
	WaitSettled   WaitOutcome = iota // the session committed or failed
	WaitTimedOut                     // the ceiling passed first
	WaitCancelled                    // the user quit the view
)

type probeRow struct {
	ref    media.SourceRef
	result media.ProbeResult
}

type (
	eventMsg      struct{ ev resolve.Event }
	eventsDoneMsg struct{}
	ceilingMsg    struct{}
	pollMsg       struct{}
)

// ProgressModel renders a resolution while it discovers and probes sources.
// It stops waiting at the ceiling; the session itself keeps running.
type ProgressModel struct {
	title   string
	events  <-chan resolve.Event
	ceiling time.Duration
	poll    StatusFunc

	spinner spinner.Model
	bar     progress.Model
	width   int

	status  resolve.Status
	names   map[string]string
	rows    []probeRow
	tested  int
	total   int
	failure *resolve.Failure
	outcome WaitOutcome
	done    bool
}

// NewProgressModel builds the view for events of one resolution. poll, when
// set, catches a settled session whose final event never arrived.
func NewProgressModel(title string, events <-chan resolve.Event, ceiling time.Duration, poll StatusFunc) *ProgressModel {
	if ceiling <= 0 {
		ceiling = DefaultWaitCeiling
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = statusStyle

	bar := progress.New(progress.WithGradient(string(colorPrimary), string(colorAccent)))
	bar.Width = 40

	return &ProgressModel{
		title:   title,
		events:  events,
		ceiling: ceiling,
		poll:    poll,
		spinner: s,
		bar:     bar,
		width:   80,
		status:  resolve.StatusIdle,
		names:   make(map[string]string),
	}
}

// Outcome reports how the wait ended.
func (m *ProgressModel) Outcome() WaitOutcome { return m.outcome }

func (m *ProgressModel) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.waitForEvent(),
		tea.Tick(m.ceiling, func(time.Time) tea.Msg { return ceilingMsg{} }),
		m.schedulePoll(),
	)
}

func (m *ProgressModel) schedulePoll() tea.Cmd {
	if m.poll == nil {
		return nil
	}
	return tea.Tick(statusPollInterval, func(time.Time) tea.Msg { return pollMsg{} })
}

// settledByPoll reports whether poll shows a finished session and records
// its status.
func (m *ProgressModel) settledByPoll() bool {
	if m.poll == nil {
		return false
	}
	switch st := m.poll(); st {
	case resolve.StatusCommitted, resolve.StatusFailed:
		m.status = st
		return true
	}
	return false
}

func (m *ProgressModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return eventsDoneMsg{}
		}
		return eventMsg{ev}
	}
}

func (m *ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(msg.Width-10, 10)
		return m, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q", "esc":
			m.outcome = WaitCancelled
			m.done = true
			return m, tea.Quit
		}
	case ceilingMsg:
		if !m.done {
			m.outcome = WaitTimedOut
			if m.settledByPoll() {
				m.outcome = WaitSettled
			}
			m.done = true
		}
		return m, tea.Quit
	case pollMsg:
		if m.done {
			return m, nil
		}
		if m.settledByPoll() {
			m.outcome = WaitSettled
			m.done = true
			return m, tea.Quit
		}
		return m, m.schedulePoll()
	case eventsDoneMsg:
		m.done = true
		return m, tea.Quit
	case eventMsg:
		if m.apply(msg.ev) {
			m.outcome = WaitSettled
			m.done = true
			return m, tea.Quit
		}
		var cmd tea.Cmd
		if m.total > 0 {
			cmd = m.bar.SetPercent(float64(m.tested) / float64(m.total))
		}
		return m, tea.Batch(cmd, m.waitForEvent())
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

// apply folds one event into the view and reports whether the resolution
// settled.
func (m *ProgressModel) apply(ev resolve.Event) bool {
	switch ev.Type {
	case resolve.EventStatus:
		m.status = ev.Status
	case resolve.EventCandidates:
		m.total = ev.Total
		for _, c := range ev.Candidates {
			m.names[c.Key()] = c.SourceName
		}
	case resolve.EventProbe:
		m.status = resolve.StatusProbing
		m.tested, m.total = ev.Tested, ev.Total
		if ev.Ref != nil && ev.Probe != nil {
			m.rows = append(m.rows, probeRow{ref: *ev.Ref, result: *ev.Probe})
		}
	case resolve.EventCommitted, resolve.EventTarget:
		m.status = resolve.StatusCommitted
		return true
	case resolve.EventFailed:
		m.status = resolve.StatusFailed
		m.failure = ev.Failure
		return true
	}
	return false
}

func (m *ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("\n\n")

	switch m.status {
	case resolve.StatusIdle, resolve.StatusDiscovering:
		fmt.Fprintf(&b, "%s searching sources...\n", m.spinner.View())
	case resolve.StatusProbing:
		fmt.Fprintf(&b, "%s testing %d of %d sources\n", m.spinner.View(), m.tested, m.total)
		b.WriteString(m.bar.View())
		b.WriteString("\n")
	case resolve.StatusCommitted:
		b.WriteString(statusStyle.Render("source selected"))
		b.WriteString("\n")
	case resolve.StatusFailed:
		reason := "resolution failed"
		if m.failure != nil {
			reason = m.failure.Error()
		}
		b.WriteString(errorStyle.Render(reason))
		b.WriteString("\n")
	}

	if len(m.rows) > 0 {
		lines := make([]string, 0, len(m.rows))
		for _, r := range m.rows {
			lines = append(lines, m.rowLine(r))
		}
		b.WriteString(boxStyle.Width(max(m.width-4, 20)).Render(strings.Join(lines, "\n")))
		b.WriteString("\n")
	}

	b.WriteString(mutedStyle.Render("q to stop waiting"))
	b.WriteString("\n")
	return b.String()
}

func (m *ProgressModel) rowLine(r probeRow) string {
	name := m.names[r.ref.Key()]
	if name == "" {
		name = r.ref.Source
	}
	if r.result.Failed {
		return errorStyle.Render(fmt.Sprintf("%-16s failed", name))
	}
	return fmt.Sprintf("%-16s %-7s %8.0f KB/s %6.0f ms", name, r.result.Quality, r.result.SpeedKBps, r.result.PingMs)
}

// WaitWithProgress draws the progress view on stderr until the resolution
// settles, the ceiling passes or the user quits.
func WaitWithProgress(title string, events <-chan resolve.Event, ceiling time.Duration, poll StatusFunc) (WaitOutcome, error) {
	m := NewProgressModel(title, events, ceiling, poll)
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr))
	if _, err := p.Run(); err != nil {
		return WaitCancelled, fmt.Errorf("running progress view: %w", err)
	}
	return m.Outcome(), nil
}

// WaitWithLog is the non-interactive counterpart of WaitWithProgress. It
// logs each settled probe.
func WaitWithLog(ctx context.Context, events <-chan resolve.Event, ceiling time.Duration, poll StatusFunc, log zerolog.Logger) WaitOutcome {
	if ceiling <= 0 {
		ceiling = DefaultWaitCeiling
	}
	timer := time.NewTimer(ceiling)
	defer timer.Stop()

	var pollC <-chan time.Time
	if poll != nil {
		ticker := time.NewTicker(statusPollInterval)
		defer ticker.Stop()
		pollC = ticker.C
	}
	settled := func() bool {
		if poll == nil {
			return false
		}
		st := poll()
		return st == resolve.StatusCommitted || st == resolve.StatusFailed
	}

	for {
		select {
		case <-ctx.Done():
			return WaitCancelled
		case <-pollC:
			if settled() {
				return WaitSettled
			}
		case <-timer.C:
			if settled() {
				return WaitSettled
			}
			log.Warn().Dur("ceiling", ceiling).Msg("still resolving, stopped waiting")
			return WaitTimedOut
		case ev, ok := <-events:
			if !ok {
				return WaitSettled
			}
			switch ev.Type {
			case resolve.EventCandidates:
				log.Info().Int("candidates", ev.Total).Msg("sources discovered")
			case resolve.EventProbe:
				l := log.Info().Int("tested", ev.Tested).Int("total", ev.Total)
				if ev.Ref != nil {
					l = l.Str("ref", ev.Ref.String())
				}
				if ev.Probe != nil {
					l = l.Str("quality", string(ev.Probe.Quality)).
						Float64("speedKBps", ev.Probe.SpeedKBps).
						Float64("pingMs", ev.Probe.PingMs).
						Bool("failed", ev.Probe.Failed)
				}
				l.Msg("source tested")
			case resolve.EventCommitted, resolve.EventTarget, resolve.EventFailed:
				return WaitSettled
			}
		}
	}
}
