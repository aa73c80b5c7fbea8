package proxy

import (
	"fmt"
	"os"
)

// Reserved exit codes for failures that happen before or around the child.
const (
	ExitSignaled         = 130
	ExitResolutionFailed = 254
	ExitSpawnOrIOFailed  = 253
)

// ResultKind classifies how an invocation ended.
type ResultKind int

const (
	Exited ResultKind = iota
	Signaled
	ResolutionFailed
	SpawnFailed
	IOFailed
)

func (k ResultKind) String() string {
	switch k {
	case Exited:
		return "exited"
	case Signaled:
		return "signaled"
	case ResolutionFailed:
		return "resolution-failed"
	case SpawnFailed:
		return "spawn-failed"
	case IOFailed:
		return "io-failed"
	default:
		return fmt.Sprintf("unknown(%d)", k)
	}
}

// Result is the outcome of one proxied invocation. Code is only meaningful
// for Exited, Signal only for Signaled, Err for the failure kinds.
type Result struct {
	Kind   ResultKind
	Code   int
	Signal os.Signal
	Err    error
}

// ExitCode is the status the proxy process should exit with.
func (r Result) ExitCode() int {
	switch r.Kind {
	case Exited:
		return r.Code
	case Signaled:
		return ExitSignaled
	case ResolutionFailed:
		return ExitResolutionFailed
	default:
		return ExitSpawnOrIOFailed
	}
}

func (r Result) String() string {
	switch r.Kind {
	case Exited:
		return fmt.Sprintf("exited(%d)", r.Code)
	case Signaled:
		return fmt.Sprintf("signaled(%v)", r.Signal)
	default:
		if r.Err != nil {
			return fmt.Sprintf("%s: %v", r.Kind, r.Err)
		}
		return r.Kind.String()
	}
}
