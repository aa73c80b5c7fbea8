//go:build unix

package proxy

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

var forwardedSignals = []os.Signal{
	syscall.SIGINT,
	syscall.SIGTERM,
	syscall.SIGHUP,
	syscall.SIGQUIT,
}

// groupSupervisor runs the child in its own process group so a signal can
// reach the child and everything it spawns at once.
type groupSupervisor struct {
	log  *slog.Logger
	pgid int

	// tty is the terminal handed to the child's group, -1 when the proxy
	// does not own the foreground. pgrp is restored on it afterwards.
	tty  int
	pgrp int
}

func newSupervisor(stdin io.Reader, log *slog.Logger) supervisor {
	s := &groupSupervisor{log: log, tty: -1}
	if f, ok := stdin.(*os.File); ok {
		if fd, ok := foregroundTTY(f); ok {
			s.tty = fd
			s.pgrp = unix.Getpgrp()
		}
	}
	return s
}

func (s *groupSupervisor) prepare(cmd *exec.Cmd) error {
	attr := &syscall.SysProcAttr{Setpgid: true}
	if s.tty >= 0 {
		attr.Foreground = true
		attr.Ctty = s.tty
	}
	setPdeathsig(attr)
	cmd.SysProcAttr = attr
	return nil
}

func (s *groupSupervisor) start(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	s.pgid = cmd.Process.Pid
	return nil
}

func (s *groupSupervisor) forward(sig os.Signal) {
	num, ok := sig.(syscall.Signal)
	if !ok || s.pgid <= 0 {
		return
	}
	if err := unix.Kill(-s.pgid, num); err != nil && !errors.Is(err, unix.ESRCH) {
		s.log.Warn("forward signal failed", "signal", num.String(), "pgid", s.pgid, "error", err)
	}
}

// wait reaps the child itself so stops are seen as well as the exit.
func (s *groupSupervisor) wait(cmd *exec.Cmd) (Result, error) {
	var ws unix.WaitStatus
	for {
		_, err := unix.Wait4(cmd.Process.Pid, &ws, unix.WUNTRACED, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return Result{}, fmt.Errorf("wait4: %w", err)
		}
		if ws.Stopped() {
			s.stopped(ws.StopSignal())
			continue
		}
		break
	}

	// The child is already reaped; Wait only drains the stdio copies.
	if err := cmd.Wait(); err != nil && !errors.Is(err, unix.ECHILD) {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return Result{}, err
		}
	}
	if ws.Signaled() {
		return Result{Kind: Signaled, Signal: ws.Signal(), Code: -1}, nil
	}
	return Result{Kind: Exited, Code: ws.ExitStatus()}, nil
}

// stopped handles a job-control stop of the child. When the child holds the
// terminal the proxy returns it to the shell and stops itself, then resumes
// the child once the shell continues the proxy.
func (s *groupSupervisor) stopped(sig unix.Signal) {
	s.log.Debug("child stopped", "signal", sig.String(), "pgid", s.pgid)
	if s.tty < 0 {
		return
	}
	if err := setForeground(s.tty, s.pgrp); err != nil {
		s.log.Debug("restore terminal foreground failed", "error", err)
	}
	if err := unix.Kill(0, unix.SIGSTOP); err != nil {
		s.log.Warn("suspend proxy failed", "error", err)
	}

	// Continued: by fg when the terminal is ours again, by bg otherwise.
	if ownsForeground(s.tty) {
		if err := setForeground(s.tty, s.pgid); err != nil {
			s.log.Debug("hand terminal to child failed", "error", err)
		}
	}
	if err := unix.Kill(-s.pgid, unix.SIGCONT); err != nil && !errors.Is(err, unix.ESRCH) {
		s.log.Warn("continue child failed", "pgid", s.pgid, "error", err)
	}
	s.log.Debug("child continued", "pgid", s.pgid)
}

func (s *groupSupervisor) release() {
	if s.tty < 0 {
		return
	}
	if err := setForeground(s.tty, s.pgrp); err != nil {
		s.log.Debug("restore terminal foreground failed", "error", err)
	}
}

// reraise delivers sig to the proxy again after its handler was removed, so
// the default action applies.
func reraise(sig os.Signal) {
	if num, ok := sig.(syscall.Signal); ok {
		_ = unix.Kill(unix.Getpid(), num)
	}
}
