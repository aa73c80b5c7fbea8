// Package proxy runs a tool from the resolved toolchain as a supervised child
// and mirrors its exit status.
package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"verylup/internal/locator"
	"verylup/internal/override"
	"verylup/internal/registry"
	"verylup/internal/toolchain"
)

// ErrNotSetUp explains a missing registry file.
var ErrNotSetUp = errors.New("verylup is not set up; run `verylup setup`")

// beforeStart runs between signal registration and the spawn. Tests use it to
// deliver a signal inside that window.
var beforeStart func()

// Invocation is one call of a managed tool.
type Invocation struct {
	Tool string
	Dir  string
	Args []string
}

// Engine resolves invocations and runs them. Nil stdio fields inherit the
// proxy's own streams; a nil Env inherits the proxy's environment.
type Engine struct {
	Store    *registry.Store
	Resolver *override.Resolver
	Logger   *slog.Logger

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	Env    []string

	state State
}

// supervisor owns the child from spawn until it has been reaped. Each
// platform provides one implementation.
type supervisor interface {
	prepare(cmd *exec.Cmd) error
	start(cmd *exec.Cmd) error
	forward(sig os.Signal)
	// wait blocks until the child has exited and reports how it ended.
	wait(cmd *exec.Cmd) (Result, error)
	release()
}

// State returns the step the engine last reached.
func (e *Engine) State() State { return e.state }

// Run resolves inv to a binary and executes it. No process is spawned until
// resolution has completed.
func (e *Engine) Run(ctx context.Context, inv Invocation) Result {
	e.state = StateIdle
	e.transition(StateResolving, "tool", inv.Tool, "dir", inv.Dir)

	reg, err := e.Store.Load()
	if err != nil {
		return e.resolutionFailed(err)
	}
	resolver := e.Resolver
	if resolver == nil {
		resolver = override.NewResolver()
	}
	sel, err := resolver.Resolve(inv.Dir, inv.Args, reg)
	if err != nil {
		if !reg.Initialized() && errors.Is(err, toolchain.ErrNoToolchainSelected) {
			err = &toolchain.Error{Kind: toolchain.ErrNoToolchainSelected, Step: "resolve", Path: e.Store.Path, Err: ErrNotSetUp}
		}
		return e.resolutionFailed(err)
	}
	binary, err := locator.Locate(sel.ID, reg, inv.Tool)
	if err != nil {
		return e.resolutionFailed(err)
	}
	e.transition(StateLocated,
		"toolchain", sel.ID.String(),
		"source", sel.Source.String(),
		"origin", sel.Origin,
		"binary", binary,
	)
	return e.Exec(ctx, binary, sel.Args)
}

// Exec runs binary with args, forwarding termination signals to it and
// waiting until it has exited. Cancelling ctx is treated like a SIGTERM.
func (e *Engine) Exec(ctx context.Context, binary string, args []string) Result {
	cmd := exec.Command(binary, args...)
	cmd.Stdin, cmd.Stdout, cmd.Stderr = e.stdio()
	cmd.Env = e.Env

	sup := newSupervisor(cmd.Stdin, e.logger())
	e.transition(StateSpawning, "binary", binary, "args", len(args))
	if err := sup.prepare(cmd); err != nil {
		return e.spawnFailed(binary, err)
	}

	// Registered before the spawn so nothing arriving in between is lost or
	// kills the proxy; delivery to the child starts once it is running.
	sigs := make(chan os.Signal, 8)
	signal.Notify(sigs, forwardedSignals...)
	defer signal.Stop(sigs)

	if beforeStart != nil {
		beforeStart()
	}
	if err := sup.start(cmd); err != nil {
		sup.release()
		res := e.spawnFailed(binary, err)
		// Nothing is left to forward to; a pending signal gets its usual
		// effect on the proxy.
		signal.Stop(sigs)
		select {
		case sig := <-sigs:
			e.logger().Debug("signal arrived during failed spawn", "signal", sig.String())
			reraise(sig)
			res = Result{Kind: Signaled, Signal: sig, Code: -1, Err: res.Err}
		default:
		}
		return res
	}
	e.transition(StateRunning, "pid", cmd.Process.Pid)

	type exit struct {
		res Result
		err error
	}
	done := make(chan exit, 1)
	go func() {
		res, err := sup.wait(cmd)
		done <- exit{res, err}
	}()

	cancelled := ctx.Done()
	for {
		select {
		case sig := <-sigs:
			e.logger().Debug("forwarding signal", "signal", sig.String(), "pid", cmd.Process.Pid)
			sup.forward(sig)
		case <-cancelled:
			cancelled = nil
			e.logger().Debug("context cancelled, terminating child", "pid", cmd.Process.Pid)
			sup.forward(syscall.SIGTERM)
		case x := <-done:
			sup.release()
			res := x.res
			if x.err != nil {
				res = Result{Kind: IOFailed, Err: &toolchain.Error{Kind: toolchain.ErrProxyIO, Step: "wait", Path: binary, Err: x.err}}
			}
			e.transition(StateTerminated, "result", res.String())
			return res
		}
	}
}

// waitState waits through cmd.Wait and hands the exit status to result.
func waitState(cmd *exec.Cmd, result func(*os.ProcessState) Result) (Result, error) {
	err := cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return Result{}, err
	}
	if cmd.ProcessState == nil {
		return Result{}, errors.New("no exit status")
	}
	return result(cmd.ProcessState), nil
}

func (e *Engine) resolutionFailed(err error) Result {
	e.transition(StateResolutionFailed, "error", err.Error())
	return Result{Kind: ResolutionFailed, Err: err}
}

func (e *Engine) spawnFailed(binary string, err error) Result {
	e.transition(StateSpawnFailed, "error", err.Error())
	return Result{Kind: SpawnFailed, Err: &toolchain.Error{Kind: toolchain.ErrSpawnFailed, Step: "spawn", Path: binary, Err: err}}
}

func (e *Engine) transition(next State, attrs ...any) {
	prev := e.state
	e.state = next
	e.logger().Debug("proxy state", append([]any{"from", prev.String(), "to", next.String()}, attrs...)...)
}

func (e *Engine) stdio() (io.Reader, io.Writer, io.Writer) {
	var (
		in     io.Reader = os.Stdin
		out    io.Writer = os.Stdout
		errOut io.Writer = os.Stderr
	)
	if e.Stdin != nil {
		in = e.Stdin
	}
	if e.Stdout != nil {
		out = e.Stdout
	}
	if e.Stderr != nil {
		errOut = e.Stderr
	}
	return in, out, errOut
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return e.Logger
}
