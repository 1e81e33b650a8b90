package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/pandeptwidyaop/hookrelay/internal/client/api"
)

// maxWatchRows caps how many recent events the watch view keeps.
const maxWatchRows = 20

// pollFetchTimeout bounds a single poll issued by the watch loop.
const pollFetchTimeout = 10 * time.Second

type pollFunc func(ctx context.Context) (*api.EventPage, error)

// pageMsg carries one poll result into the model.
type pageMsg struct {
	page *api.EventPage
	err  error
}

// pollTickMsg fires when the next poll is due.
type pollTickMsg time.Time

type watchModel struct {
	hookID   string
	poll     pollFunc
	interval time.Duration
	spinner  spinner.Model

	events   []api.Event
	total    int
	lastPoll time.Time
	lastErr  error
	quitting bool
}

func newWatchModel(hookID string, poll pollFunc, interval time.Duration) watchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7C4DFF"))

	return watchModel{
		hookID:   hookID,
		poll:     poll,
		interval: interval,
		spinner:  s,
	}
}

func (m watchModel) fetch() tea.Cmd {
	poll := m.poll
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), pollFetchTimeout)
		defer cancel()

		page, err := poll(ctx)
		return pageMsg{page: page, err: err}
	}
}

func (m watchModel) scheduleNext(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return pollTickMsg(t) })
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "c":
			m.events = nil
			return m, nil
		}

	case pageMsg:
		m.lastPoll = time.Now()
		m.lastErr = msg.err
		if msg.err != nil {
			return m, m.scheduleNext(m.interval)
		}

		m.events = append(m.events, msg.page.Events...)
		m.total += len(msg.page.Events)
		if len(m.events) > maxWatchRows {
			m.events = m.events[len(m.events)-maxWatchRows:]
		}

		// A full page means more are waiting
		if msg.page.HasMore {
			return m, m.fetch()
		}
		return m, m.scheduleNext(m.interval)

	case pollTickMsg:
		return m, m.fetch()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m watchModel) View() string {
	if m.quitting {
		return fmt.Sprintf("Stopped watching %s after %d event(s).\n", m.hookID, m.total)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "\n%s %s %s\n\n",
		m.spinner.View(),
		headerStyle.Render("Watching "+m.hookID),
		dimStyle.Render(fmt.Sprintf("(every %s, %d received)", m.interval, m.total)),
	)

	if len(m.events) == 0 {
		b.WriteString(dimStyle.Render("  Waiting for events...") + "\n")
	}
	for _, e := range m.events {
		b.WriteString("  " + eventSummary(e) + "\n")
	}

	b.WriteString("\n")
	if m.lastErr != nil {
		b.WriteString(errorStyle.Render("  Last poll failed: "+m.lastErr.Error()) + "\n")
	} else if !m.lastPoll.IsZero() {
		b.WriteString(dimStyle.Render("  Last poll "+m.lastPoll.Format("15:04:05")) + "\n")
	}
	b.WriteString(dimStyle.Render("  c: Clear • q/Esc: Quit") + "\n")

	return b.String()
}
