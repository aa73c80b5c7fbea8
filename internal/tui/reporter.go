package tui

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Reporter receives install phase transitions.
type Reporter interface {
	Phase(name, status, detail string)
}

// NewReporter returns the non-interactive reporter for mode. ModeTUI
// reporters are created by RunWithWork.
func NewReporter(mode OutputMode, w io.Writer) Reporter {
	if mode == ModeJSON {
		return &JSONReporter{enc: json.NewEncoder(w)}
	}
	return &PlainReporter{w: w}
}

// ProgramReporter forwards phases to a running bubbletea program.
type ProgramReporter struct {
	send func(tea.Msg)
}

// Phase implements Reporter.
func (r ProgramReporter) Phase(name, status, detail string) {
	r.send(PhaseMsg{Name: name, Status: status, Detail: detail})
}

// PlainReporter prints one aligned line per transition, skipping pending.
type PlainReporter struct {
	mu sync.Mutex
	w  io.Writer
}

// Phase implements Reporter.
func (r *PlainReporter) Phase(name, status, detail string) {
	if status == StatusPending {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if detail == "" {
		fmt.Fprintf(r.w, "%-10s %s\n", name, status)
		return
	}
	fmt.Fprintf(r.w, "%-10s %-8s %s\n", name, status, detail)
}

// JSONReporter writes one object per transition.
type JSONReporter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

type phaseEvent struct {
	Phase  string `json:"phase"`
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// Phase implements Reporter.
func (r *JSONReporter) Phase(name, status, detail string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.enc.Encode(phaseEvent{Phase: name, Status: status, Detail: detail})
}

// Discard drops every transition.
var Discard Reporter = discard{}

type discard struct{}

func (discard) Phase(string, string, string) {}
