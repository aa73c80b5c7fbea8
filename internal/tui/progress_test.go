package tui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

var testPhases = []string{"download", "extract", "verify", "activate"}

func TestPhaseMsg(t *testing.T) {
	m := NewProgressModel("Installing 0.16.1", testPhases)

	updated, _ := m.Update(PhaseMsg{Name: "download", Status: StatusActive, Detail: "veryl-x86_64-linux.zip"})
	m = updated.(ProgressModel)

	if m.rows[0].Fields[colStatus] != StatusActive {
		t.Errorf("expected STATUS=%s, got %q", StatusActive, m.rows[0].Fields[colStatus])
	}
	if m.rows[0].Fields[colDetail] != "veryl-x86_64-linux.zip" {
		t.Errorf("unexpected detail %q", m.rows[0].Fields[colDetail])
	}
	if m.rows[1].Fields[colStatus] != StatusPending {
		t.Errorf("expected extract to stay pending, got %q", m.rows[1].Fields[colStatus])
	}
}

func TestPhaseMsgKeepsDetailWhenEmpty(t *testing.T) {
	m := NewProgressModel("", testPhases)
	updated, _ := m.Update(PhaseMsg{Name: "download", Status: StatusActive, Detail: "12 MB"})
	updated, _ = updated.(ProgressModel).Update(PhaseMsg{Name: "download", Status: StatusDone})
	m = updated.(ProgressModel)

	if m.rows[0].Fields[colDetail] != "12 MB" {
		t.Errorf("expected detail kept, got %q", m.rows[0].Fields[colDetail])
	}
}

func TestPhaseMsgUnknownPhaseAppends(t *testing.T) {
	m := NewProgressModel("", testPhases)
	updated, _ := m.Update(PhaseMsg{Name: "link", Status: StatusDone})
	m = updated.(ProgressModel)

	if len(m.rows) != len(testPhases)+1 {
		t.Fatalf("expected appended row, got %d rows", len(m.rows))
	}
	if m.rows[len(m.rows)-1].Fields[colPhase] != "link" {
		t.Errorf("unexpected appended row %+v", m.rows[len(m.rows)-1])
	}
}

func TestWorkDoneMsg(t *testing.T) {
	m := NewProgressModel("", testPhases)

	updated, cmd := m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)

	if !m.Done() {
		t.Error("expected Done() to be true after WorkDoneMsg")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
}

func TestErrorMsg(t *testing.T) {
	m := NewProgressModel("", testPhases)

	updated, cmd := m.Update(ErrorMsg{Err: errors.New("checksum mismatch")})
	m = updated.(ProgressModel)

	if !m.Done() || m.Err() == nil {
		t.Error("expected done with error after ErrorMsg")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
	if !strings.Contains(m.View(), "checksum mismatch") {
		t.Error("expected error in view")
	}
}

func TestView(t *testing.T) {
	m := NewProgressModel("Installing 0.16.1", testPhases)
	updated, _ := m.Update(PhaseMsg{Name: "download", Status: StatusDone, Detail: "3.1 MB"})
	m = updated.(ProgressModel)

	view := m.View()
	for _, want := range []string{"Installing 0.16.1", "PHASE", "STATUS", "DETAIL", "download", "3.1 MB", "pending", "Installing 1/4"} {
		if !strings.Contains(view, want) {
			t.Errorf("expected view to contain %q", want)
		}
	}
}

func TestViewHidesFooterWhenDone(t *testing.T) {
	m := NewProgressModel("", testPhases)
	updated, _ := m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)

	if strings.Contains(m.View(), "Installing") {
		t.Error("expected no progress footer when done")
	}
}

func TestNonEmptyOrDash(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "-"},
		{"  ", "-"},
		{"hello", "hello"},
		{" hello ", "hello"},
	}
	for _, tt := range tests {
		got := NonEmptyOrDash(tt.input)
		if got != tt.want {
			t.Errorf("NonEmptyOrDash(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestTruncateWithEllipsis(t *testing.T) {
	tests := []struct {
		input string
		max   int
		want  string
	}{
		{"short", 10, "short"},
		{"a longer string here", 10, "a longe..."},
		{"abcd", 3, "abc"},
		{"hello", 0, ""},
	}
	for _, tt := range tests {
		got := TruncateWithEllipsis(tt.input, tt.max)
		if got != tt.want {
			t.Errorf("TruncateWithEllipsis(%q, %d) = %q, want %q", tt.input, tt.max, got, tt.want)
		}
	}
}

func TestMarqueeText(t *testing.T) {
	tests := []struct {
		text  string
		width int
		tick  int
		want  string
	}{
		{"short", 10, 0, "short"},
		{"hello world here", 5, 0, "hello"},
		{"hello world here", 5, 1, "ello "},
		{"abcdef", 4, 6, "   a"},
	}
	for _, tt := range tests {
		if got := marqueeText(tt.text, tt.width, tt.tick); got != tt.want {
			t.Errorf("marqueeText(%q, %d, %d) = %q, want %q", tt.text, tt.width, tt.tick, got, tt.want)
		}
	}
}

func TestTickStopsAfterDone(t *testing.T) {
	m := NewProgressModel("", testPhases)
	updated, _ := m.Update(WorkDoneMsg{})
	m = updated.(ProgressModel)

	_, cmd := m.Update(tickMsg(time.Now()))
	if cmd != nil {
		t.Error("expected no tick command after done")
	}
}

func TestCtrlCInterrupts(t *testing.T) {
	m := NewProgressModel("", testPhases)

	updated, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	m = updated.(ProgressModel)

	if !m.Done() || !m.Interrupted() {
		t.Error("expected done and interrupted after ctrl+c")
	}
	if cmd == nil {
		t.Error("expected tea.Quit command")
	}
}

func TestPlainReporterSkipsPending(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(ModePlain, &buf)
	r.Phase("download", StatusPending, "")
	r.Phase("download", StatusDone, "3.1 MB")

	if got := buf.String(); got != "download   done     3.1 MB\n" {
		t.Fatalf("unexpected plain output %q", got)
	}
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(ModeJSON, &buf)
	r.Phase("verify", StatusFailed, "veryl missing")

	if got := strings.TrimSpace(buf.String()); got != `{"phase":"verify","status":"failed","detail":"veryl missing"}` {
		t.Fatalf("unexpected json output %q", got)
	}
}

func TestDetectMode(t *testing.T) {
	var buf bytes.Buffer
	if DetectMode(&buf, false, true) != ModeJSON {
		t.Error("json flag must win")
	}
	if DetectMode(&buf, false, false) != ModePlain {
		t.Error("non-file writer must be plain")
	}
}

func TestStatusWriterStops(t *testing.T) {
	var buf bytes.Buffer
	sw := NewStatusWriter(&buf, "checking toolchains")
	time.Sleep(3 * spinner.MiniDot.FPS)
	sw.Stop()
	sw.Stop()

	if !strings.Contains(buf.String(), "checking toolchains") {
		t.Fatalf("expected status message, got %q", buf.String())
	}
	if !strings.HasSuffix(buf.String(), "\r\033[K") {
		t.Fatalf("expected the line to be cleared, got %q", buf.String())
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{2500 * time.Millisecond, "2.5s"},
		{42 * time.Second, "42s"},
		{90 * time.Second, "1m30s"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.d); got != tt.want {
			t.Errorf("formatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
