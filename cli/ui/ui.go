// Package ui provides the interactive pieces of the chronicle CLI: a spinner
// shown while a blocking step runs, the banner and a few text helpers.
// Nothing here draws unless the output is a terminal.
package ui

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"

	"github.com/havenhq/chronicle/cli/styles"
)

// ErrCancelled is returned by Spin when the user quits the spinner.
var ErrCancelled = errors.New("cancelled")

// SpinnerModel is a spinner with a message.
type SpinnerModel struct {
	spinner  spinner.Model
	message  string
	quitting bool
	done     bool
	result   string
	err      error
}

// NewSpinner creates a spinner showing message.
func NewSpinner(message string) SpinnerModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	return SpinnerModel{
		spinner: s,
		message: message,
	}
}

func (m SpinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m SpinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		}

	case SpinnerDoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m SpinnerModel) View() string {
	if m.done {
		switch {
		case m.err != nil:
			return styles.FormatError(m.result) + "\n"
		case m.result == "":
			return ""
		}
		return styles.FormatSuccess(m.result) + "\n"
	}

	if m.quitting {
		return styles.FormatWarning("Cancelled") + "\n"
	}

	return m.spinner.View() + " " + styles.Muted.Render(m.message) + "\n"
}

// SpinnerDoneMsg signals that the spinner operation is complete.
type SpinnerDoneMsg struct {
	Result string
	Err    error
}

// IsTerminal reports whether v is a file attached to a terminal.
func IsTerminal(v any) bool {
	f, ok := v.(interface{ Fd() uintptr })
	return ok && term.IsTerminal(f.Fd())
}

// Spin runs fn while a spinner shows message on out. On success the spinner
// is replaced by done, or erased when done is empty. When out is not a
// terminal fn runs without any output.
//
// Quitting the spinner cancels the context passed to fn. Spin still waits for
// fn to return and then reports ErrCancelled.
func Spin(ctx context.Context, in io.Reader, out io.Writer, message, done string, fn func(context.Context) error) error {
	if !IsTerminal(out) {
		return fn(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewSpinner(message), tea.WithInput(in), tea.WithOutput(out))
	result := make(chan error, 1)
	go func() {
		err := fn(ctx)
		result <- err
		msg := SpinnerDoneMsg{Result: done, Err: err}
		if err != nil {
			msg.Result = err.Error()
		}
		p.Send(msg)
	}()

	final, runErr := p.Run()
	cancel()
	fnErr := <-result

	if runErr != nil {
		return errors.Join(runErr, fnErr)
	}
	if m, ok := final.(SpinnerModel); ok && m.quitting {
		return ErrCancelled
	}
	return fnErr
}

// Banner renders the chronicle banner.
func Banner() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Render("chronicle")
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.Border).
		Padding(0, 2).
		Render(title + "\n" + styles.Muted.Render("Append-only event streams for case records"))
}

// SimpleBanner returns a one-line banner.
func SimpleBanner() string {
	return lipgloss.NewStyle().Bold(true).Foreground(styles.Primary).Render("chronicle") +
		" " + styles.Muted.Render("- event store for case records")
}

// Divider returns a horizontal divider line.
func Divider(width int) string {
	if width < 0 {
		width = 0
	}
	return styles.Muted.Render(strings.Repeat("─", width))
}
