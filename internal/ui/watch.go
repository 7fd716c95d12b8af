package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// PollFunc fetches the latest snapshot for the watched codebase. An error
// ends the watch: the plain loop prints and returns it, and the interactive
// view quits.
type PollFunc func() (StatusSnapshot, error)

// pollInterval is how often the watch view re-fetches status.
const pollInterval = 500 * time.Millisecond

// RunWatch drives an interactive status view for one codebase until the
// user quits (q/ctrl+c) or the context-backed program exits. It falls back
// to a plain polling loop when out is not a TTY or the environment looks
// like CI.
func RunWatch(out io.Writer, poll PollFunc, noColor bool) error {
	if !IsTTY(out) || DetectCI() {
		return runPlainWatch(out, poll, noColor)
	}

	m := newWatchModel(poll, noColor)
	var opts []tea.ProgramOption
	if f, ok := out.(*os.File); ok {
		opts = append(opts, tea.WithOutput(f))
	}
	p := tea.NewProgram(m, opts...)
	_, err := p.Run()
	return err
}

func runPlainWatch(out io.Writer, poll PollFunc, noColor bool) error {
	r := NewStatusRenderer(out, noColor)
	for {
		snap, err := poll()
		if err != nil {
			_, _ = fmt.Fprintf(out, "error: %v\n", err)
			return err
		}
		r.Render(snap)
		if snap.Status != "indexing" {
			return nil
		}
		time.Sleep(pollInterval)
	}
}

type tickMsg time.Time

type snapshotMsg struct {
	snap StatusSnapshot
	err  error
}

type watchModel struct {
	poll    PollFunc
	styles  Styles
	spinner spinner.Model
	bar     progress.Model
	snap    StatusSnapshot
	err     error
	quitting bool
}

func newWatchModel(poll PollFunc, noColor bool) *watchModel {
	styles := GetStyles(noColor)
	s := spinner.New()
	s.Spinner = spinner.Dot
	bar := progress.New(progress.WithDefaultGradient())
	return &watchModel{poll: poll, styles: styles, spinner: s, bar: bar}
}

func (m *watchModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch())
}

func (m *watchModel) fetch() tea.Cmd {
	return func() tea.Msg {
		snap, err := m.poll()
		return snapshotMsg{snap: snap, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m *watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		}
	case tickMsg:
		return m, m.fetch()
	case snapshotMsg:
		m.snap, m.err = msg.snap, msg.err
		if m.snap.Status != "indexing" {
			return m, tea.Quit
		}
		return m, tick()
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *watchModel) View() string {
	if m.err != nil {
		return m.styles.Error.Render(fmt.Sprintf("error: %v\n", m.err))
	}
	if m.snap.Root == "" {
		return m.spinner.View() + " loading...\n"
	}

	var body string
	body += m.styles.Header.Render("syncore: "+m.snap.Root) + "\n\n"
	body += m.spinner.View() + " " + string(m.snap.Status) + "\n"
	if m.snap.Status == "indexing" {
		body += m.bar.ViewAs(float64(m.snap.Progress)/100) + "\n"
	}
	body += fmt.Sprintf("files: %d   chunks: %d   pending ops: %d\n",
		m.snap.IndexedFiles, m.snap.TotalChunks, m.snap.PendingOps)
	if m.snap.Error != "" {
		body += m.styles.Error.Render(m.snap.Error) + "\n"
	}
	if m.quitting {
		return body
	}
	return body + m.styles.Dim.Render("\n(q to quit)\n")
}
