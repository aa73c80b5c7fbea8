//go:build windows

package proxy

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

var forwardedSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

var procNtResumeProcess = windows.NewLazySystemDLL("ntdll.dll").NewProc("NtResumeProcess")

// jobSupervisor ties the child and its descendants to a job object that is
// killed when the last handle to it closes, including when the proxy dies.
type jobSupervisor struct {
	log  *slog.Logger
	job  windows.Handle
	proc windows.Handle

	// signal is the console event that made the proxy terminate the job.
	signal os.Signal
}

func newSupervisor(_ io.Reader, log *slog.Logger) supervisor {
	return &jobSupervisor{log: log}
}

func (s *jobSupervisor) prepare(cmd *exec.Cmd) error {
	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return fmt.Errorf("create job object: %w", err)
	}
	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		_ = windows.CloseHandle(job)
		return fmt.Errorf("configure job object: %w", err)
	}
	s.job = job
	// Suspended until it is inside the job, so nothing it spawns escapes.
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: windows.CREATE_SUSPENDED}
	return nil
}

func (s *jobSupervisor) start(cmd *exec.Cmd) error {
	if err := cmd.Start(); err != nil {
		return err
	}
	abort := func(err error) error {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return err
	}

	proc, err := windows.OpenProcess(
		windows.PROCESS_SET_QUOTA|windows.PROCESS_TERMINATE|windows.PROCESS_SUSPEND_RESUME,
		false,
		uint32(cmd.Process.Pid),
	)
	if err != nil {
		return abort(fmt.Errorf("open process: %w", err))
	}
	s.proc = proc
	if err := windows.AssignProcessToJobObject(s.job, proc); err != nil {
		return abort(fmt.Errorf("assign to job object: %w", err))
	}
	if status, _, _ := procNtResumeProcess.Call(uintptr(proc)); status != 0 {
		return abort(fmt.Errorf("resume process: NTSTATUS 0x%08x", status))
	}
	return nil
}

func (s *jobSupervisor) forward(sig os.Signal) {
	if s.job == 0 {
		return
	}
	if s.signal == nil {
		s.signal = sig
	}
	if err := windows.TerminateJobObject(s.job, 1); err != nil {
		s.log.Warn("terminate job failed", "signal", sig.String(), "error", err)
	}
}

func (s *jobSupervisor) wait(cmd *exec.Cmd) (Result, error) {
	return waitState(cmd, s.result)
}

func (s *jobSupervisor) result(state *os.ProcessState) Result {
	if s.signal != nil {
		return Result{Kind: Signaled, Signal: s.signal, Code: -1}
	}
	return Result{Kind: Exited, Code: state.ExitCode()}
}

func (s *jobSupervisor) release() {
	if s.proc != 0 {
		_ = windows.CloseHandle(s.proc)
		s.proc = 0
	}
	if s.job != 0 {
		_ = windows.CloseHandle(s.job)
		s.job = 0
	}
}

// reraise has no equivalent for console events; the caller reports the
// signal in its result instead.
func reraise(os.Signal) {}
