//go:build unix

package proxy

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func TestSignalToProxyLeavesNoOrphan(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	cmd := exec.Command(testBinary(t))
	cmd.Env = append(os.Environ(), helperEnv+"=proxy", pidFileEnv+"="+pidFile)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start proxy: %v", err)
	}
	t.Cleanup(func() { _ = cmd.Process.Kill() })

	child := waitForPID(t, pidFile)
	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		t.Fatalf("signal proxy: %v", err)
	}

	err := cmd.Wait()
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != ExitSignaled {
		t.Fatalf("expected proxy exit %d, got %v", ExitSignaled, err)
	}
	if err := unix.Kill(child, 0); !errors.Is(err, unix.ESRCH) {
		t.Fatalf("child %d still exists after proxy exited: %v", child, err)
	}
}

func TestExecContextCancelTerminatesChild(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	t.Setenv(helperEnv, "sleep")
	t.Setenv(pidFileEnv, pidFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bin := testBinary(t)
	e := &Engine{Stdout: io.Discard, Stderr: io.Discard}
	done := make(chan Result, 1)
	go func() { done <- e.Exec(ctx, bin, nil) }()

	waitForPID(t, pidFile)
	cancel()

	select {
	case res := <-done:
		if res.Kind != Signaled || res.Signal != syscall.SIGTERM {
			t.Fatalf("expected signaled(SIGTERM), got %s", res)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("proxy did not return after cancellation")
	}
}

// lockedBuffer lets a test read log output while the engine writes it.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestExecObservesStoppedChild(t *testing.T) {
	dir := t.TempDir()
	pidFile := filepath.Join(dir, "child.pid")
	release := filepath.Join(dir, "release")
	t.Setenv(helperEnv, "hold")
	t.Setenv(pidFileEnv, pidFile)
	t.Setenv(releaseEnv, release)

	var logs lockedBuffer
	// A non-terminal stdin keeps the test's own process group out of job control.
	e := &Engine{
		Stdin:  strings.NewReader(""),
		Stdout: io.Discard,
		Stderr: io.Discard,
		Logger: slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})),
	}
	done := make(chan Result, 1)
	go func() { done <- e.Exec(context.Background(), testBinary(t), nil) }()

	child := waitForPID(t, pidFile)
	if err := unix.Kill(child, unix.SIGSTOP); err != nil {
		t.Fatalf("stop child: %v", err)
	}
	deadline := time.Now().Add(10 * time.Second)
	for !strings.Contains(logs.String(), "child stopped") {
		if time.Now().After(deadline) {
			t.Fatalf("stop was not observed; logs:\n%s", logs.String())
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := os.WriteFile(release, nil, 0o644); err != nil {
		t.Fatalf("write release file: %v", err)
	}
	if err := unix.Kill(child, unix.SIGCONT); err != nil {
		t.Fatalf("continue child: %v", err)
	}

	select {
	case res := <-done:
		if res.Kind != Exited || res.Code != 0 {
			t.Fatalf("expected exited(0) after the stop, got %s", res)
		}
	case <-time.After(30 * time.Second):
		t.Fatal("proxy did not return after the child was continued")
	}
}

func TestSignalDuringFailedSpawnTakesDefaultAction(t *testing.T) {
	cmd := exec.Command(testBinary(t))
	cmd.Env = append(os.Environ(), helperEnv+"=spawnfail")
	err := cmd.Run()

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("expected the proxy to die, got %v", err)
	}
	ws, ok := exitErr.Sys().(syscall.WaitStatus)
	if !ok || !ws.Signaled() || ws.Signal() != syscall.SIGTERM {
		t.Fatalf("expected the proxy to be killed by SIGTERM, got %v", exitErr)
	}
}
