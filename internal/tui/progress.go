// Package tui renders transfer progress on the terminal.
package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// progressMsg updates the bar. done and total are byte counts; total
// zero means the length is unknown.
type progressMsg struct {
	done  int64
	total int64
}

// finishMsg ends the program.
type finishMsg struct{}

type model struct {
	bar         progress.Model
	description string
	done        int64
	total       int64
}

func newModel(description string) model {
	return model{
		bar: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(40),
		),
		description: description,
	}
}

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case progressMsg:
		m.done = msg.done
		m.total = msg.total
		return m, nil
	case finishMsg:
		return m, tea.Quit
	case tea.KeyMsg:
		// The bar is display-only. Interrupts reach the command layer
		// through the signal context, not through the UI.
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	line := descStyle.Render(m.description)
	if m.total > 0 {
		percent := float64(m.done) / float64(m.total)
		return fmt.Sprintf("%s\n%s %d/%d bytes\n", line, m.bar.ViewAs(percent), m.done, m.total)
	}
	return fmt.Sprintf("%s\n%d bytes\n", line, m.done)
}

// Reporter drives a progress bar from transfer callbacks. Zero value
// is not usable; build one with StartProgress.
type Reporter struct {
	prog *tea.Program
	done chan struct{}
}

// StartProgress launches the bar in its own goroutine. The returned
// reporter's Update is safe to call from any goroutine; call Finish
// when the transfer ends, success or not.
func StartProgress(description string) *Reporter {
	r := &Reporter{
		prog: tea.NewProgram(newModel(description)),
		done: make(chan struct{}),
	}
	go func() {
		defer close(r.done)
		// Rendering failures must not kill a working transfer.
		_, _ = r.prog.Run()
	}()
	return r
}

// Update reports transfer position. Matches transfer.Progress.
func (r *Reporter) Update(done, total int64) {
	r.prog.Send(progressMsg{done: done, total: total})
}

// Finish tears the bar down and waits for the terminal to be restored.
func (r *Reporter) Finish() {
	r.prog.Send(finishMsg{})
	<-r.done
}
