package ui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// PromptDelay is how long the confirm button stays disabled.
const PromptDelay = 5 * time.Second

type countdownMsg struct{}

func countdown() tea.Cmd {
	return tea.Tick(time.Second, func(time.Time) tea.Msg { return countdownMsg{} })
}

// PromptModel asks the user to confirm installing the listed runtimes.
// Confirming is only possible once the countdown has run out.
type PromptModel struct {
	Title     string
	Names     []string
	Remaining int

	Confirmed bool
	Closed    bool
}

func NewPromptModel(title string, names []string) PromptModel {
	return PromptModel{Title: title, Names: names, Remaining: int(PromptDelay / time.Second)}
}

func (m PromptModel) Init() tea.Cmd {
	return countdown()
}

func (m PromptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case countdownMsg:
		if m.Remaining > 0 {
			m.Remaining--
		}
		if m.Remaining > 0 {
			return m, countdown()
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.Closed = true
			return m, tea.Quit
		case "enter", " ":
			if m.Remaining == 0 {
				m.Confirmed = true
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m PromptModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.Title))
	b.WriteString("\n\n")
	b.WriteString(headerStyle.Render("To start the IGame installer, some additional runtimes have to be installed:"))
	b.WriteString("\n")
	b.WriteString(headerStyle.Render("  " + strings.Join(m.Names, ", ")))
	b.WriteString("\n\n")
	b.WriteString("Antivirus software may show a warning while the runtimes are installed.\n")
	b.WriteString("Please allow the installation when asked.\n")
	b.WriteString("If you do not trust this program, press esc to close it.\n\n")

	if m.Remaining > 0 {
		b.WriteString(disabledButtonStyle.Render(fmt.Sprintf("Please read the notice above %ds", m.Remaining)))
	} else {
		b.WriteString(buttonStyle.Render("I understand, install now (enter)"))
	}
	b.WriteString("\n")
	return b.String()
}

// Prompt shows the confirmation. It returns nil when the user confirmed and
// ErrClosed otherwise.
func Prompt(ctx context.Context, title string, names []string, opts ...tea.ProgramOption) error {
	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	final, err := tea.NewProgram(NewPromptModel(title, names), opts...).Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	if final.(PromptModel).Confirmed {
		return nil
	}
	return ErrClosed
}
