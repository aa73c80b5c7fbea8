package tui

// PhaseMsg moves one install phase to a new status.
type PhaseMsg struct {
	Name   string
	Status string
	Detail string
}

// WorkDoneMsg signals that all background work has completed.
type WorkDoneMsg struct{}

// ErrorMsg signals a fatal error; the TUI should quit.
type ErrorMsg struct {
	Err error
}
