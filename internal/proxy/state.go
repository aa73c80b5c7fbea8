package proxy

import "fmt"

// State is a step of one proxied invocation.
type State int

const (
	StateIdle State = iota
	StateResolving
	StateLocated
	StateSpawning
	StateRunning
	StateTerminated
	StateResolutionFailed
	StateSpawnFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolving:
		return "resolving"
	case StateLocated:
		return "located"
	case StateSpawning:
		return "spawning"
	case StateRunning:
		return "running"
	case StateTerminated:
		return "terminated"
	case StateResolutionFailed:
		return "resolution-failed"
	case StateSpawnFailed:
		return "spawn-failed"
	default:
		return fmt.Sprintf("unknown(%d)", s)
	}
}

// Final reports whether no further transition can happen.
func (s State) Final() bool {
	return s == StateTerminated || s == StateResolutionFailed || s == StateSpawnFailed
}
