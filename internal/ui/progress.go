package ui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

const maxBarWidth = 60

type noticeMsg struct{}

type doneMsg struct{}

// waitForSource blocks until the source changes or finishes.
func waitForSource(src Source) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-src.Done():
			return doneMsg{}
		case <-src.Notices():
			return noticeMsg{}
		}
	}
}

// ProgressModel shows a download bar and an install line for a Source.
type ProgressModel struct {
	Title  string
	Header []string

	src   Source
	state State
	bar   progress.Model
	spin  spinner.Model

	Done   bool
	Closed bool
}

func NewProgressModel(title string, header []string, src Source) ProgressModel {
	return ProgressModel{
		Title:  title,
		Header: header,
		src:    src,
		state:  src.State(),
		bar:    progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		spin:   spinner.New(spinner.WithSpinner(spinner.Line), spinner.WithStyle(accentStyle)),
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return tea.Batch(waitForSource(m.src), m.spin.Tick)
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case noticeMsg:
		m.state = m.src.State()
		if m.state.Failed {
			return m, tea.Quit
		}
		return m, waitForSource(m.src)

	case doneMsg:
		m.state = m.src.State()
		m.Done = true
		return m, tea.Quit

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.Closed = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.bar.Width = min(max(msg.Width-4, 10), maxBarWidth)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m ProgressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.Title))
	b.WriteString("\n")
	for _, line := range m.Header {
		b.WriteString(headerStyle.Render(line))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(m.state.DownloadDescription)
	b.WriteString("\n")
	b.WriteString(m.bar.ViewAs(float64(m.state.Progress) / 100))
	b.WriteString("\n\n")

	if m.state.Installing {
		b.WriteString(m.spin.View())
		b.WriteString(" ")
	}
	b.WriteString(m.state.InstallDescription)
	b.WriteString("\n\n")
	b.WriteString(hintStyle.Render("esc / ctrl+c to cancel"))
	b.WriteString("\n")
	return b.String()
}

// State returns the last state the model rendered.
func (m ProgressModel) State() State {
	return m.state
}

// RunProgress shows src until it is done. It returns ErrClosed when the user
// closes the view and ErrFailed when the source reports a failure.
func RunProgress(ctx context.Context, title string, header []string, src Source, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(NewProgressModel(title, header, src), opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return outcome(final.(ProgressModel))
}

func outcome(m ProgressModel) error {
	switch {
	case m.Done:
		return nil
	case m.Closed:
		return ErrClosed
	case m.state.Failed:
		return ErrFailed
	default:
		return ErrClosed
	}
}

// Watch follows src without a terminal UI and logs every change. It is used
// when the bootstrapper runs non-interactively.
func Watch(ctx context.Context, src Source) error {
	var last State
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-src.Done():
			log.Info("finished")
			return nil
		case <-src.Notices():
			s := src.State()
			if s.DownloadDescription != last.DownloadDescription {
				log.Info(s.DownloadDescription)
			}
			if s.Progress != last.Progress && s.Progress%10 == 0 {
				log.Debug("download progress", "percent", s.Progress)
			}
			if s.InstallDescription != last.InstallDescription {
				log.Info(s.InstallDescription)
			}
			if s.Failed {
				return ErrFailed
			}
			last = s
		}
	}
}
