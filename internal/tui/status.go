package tui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// StatusWriter prints a spinning status line for waits that have no
// phase table of their own, such as probing toolchains in `show --check`.
type StatusWriter struct {
	w       io.Writer
	frames  []string
	mu      sync.Mutex
	message string
	start   time.Time
	done    chan struct{}
	stopped bool
}

// NewStatusWriter starts a background spinner that renders msg to w.
func NewStatusWriter(w io.Writer, msg string) *StatusWriter {
	sw := &StatusWriter{
		w:       w,
		frames:  spinner.MiniDot.Frames,
		message: msg,
		start:   time.Now(),
		done:    make(chan struct{}),
	}
	go sw.loop(spinner.MiniDot.FPS)
	return sw
}

// Stop clears the status line and stops the spinner. It is safe to call
// more than once.
func (sw *StatusWriter) Stop() {
	sw.mu.Lock()
	if sw.stopped {
		sw.mu.Unlock()
		return
	}
	sw.stopped = true
	sw.mu.Unlock()
	close(sw.done)
	fmt.Fprintf(sw.w, "\r\033[K")
}

func (sw *StatusWriter) loop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for tick := 0; ; tick++ {
		select {
		case <-sw.done:
			return
		case <-ticker.C:
			sw.mu.Lock()
			if !sw.stopped {
				fmt.Fprintf(sw.w, "\r\033[K%s %s (%s)", sw.frames[tick%len(sw.frames)], sw.message, formatElapsed(time.Since(sw.start)))
			}
			sw.mu.Unlock()
		}
	}
}

// formatElapsed formats a duration for display in the status line.
func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < 10*time.Second {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm%02ds", int(d.Minutes()), int(d.Seconds())%60)
}
