package tui

import (
	"context"
	"errors"
	"io"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// RunWithWork creates a bubbletea program, launches work in a goroutine and
// blocks until both have finished. Pressing ctrl+c cancels the context
// handed to work; the error work returns is the result.
func RunWithWork(ctx context.Context, out io.Writer, model ProgressModel, work func(context.Context, Reporter) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(model, tea.WithOutput(out), tea.WithContext(ctx))

	workErr := make(chan error, 1)
	go func() {
		// Let bubbletea start its event loop and render the initial frame.
		time.Sleep(50 * time.Millisecond)

		send := func(msg tea.Msg) {
			p.Send(msg)
			// Small yield between sends so the renderer can draw frames.
			time.Sleep(5 * time.Millisecond)
		}
		err := work(ctx, ProgramReporter{send: send})
		if err != nil {
			p.Send(ErrorMsg{Err: err})
		} else {
			p.Send(WorkDoneMsg{})
		}
		workErr <- err
	}()

	finalModel, runErr := p.Run()
	if m, ok := finalModel.(ProgressModel); ok && m.Interrupted() {
		cancel()
	}
	// A program that failed to render does not stop the work; its sends
	// become no-ops.
	if err := <-workErr; err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return runErr
	}
	return nil
}
