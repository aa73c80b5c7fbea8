package toolchain

import (
	"errors"
	"strings"
)

// Failure classes. Every error produced while resolving or running a
// toolchain matches exactly one of these with errors.Is.
var (
	ErrNotInstalled        = errors.New("toolchain is not installed")
	ErrNoToolchainSelected = errors.New("no toolchain selected")
	ErrCorruptState        = errors.New("corrupt state")
	ErrCorruptInstallation = errors.New("corrupt installation")
	ErrSpawnFailed         = errors.New("failed to start process")
	ErrProxyIO             = errors.New("process supervision failed")
)

// Error records which resolution step failed and for which toolchain.
type Error struct {
	Kind error
	Step string
	ID   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Step != "" {
		b.WriteString(e.Step)
	}
	if e.ID != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(`"` + e.ID + `"`)
	}
	if e.Path != "" {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("(" + e.Path + ")")
	}
	reason := ""
	switch {
	case e.Err != nil:
		reason = e.Err.Error()
	case e.Kind != nil:
		reason = e.Kind.Error()
	}
	if reason != "" {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(reason)
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	var errs []error
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf reports the failure class of err, or nil when it matches none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrNotInstalled,
		ErrNoToolchainSelected,
		ErrCorruptState,
		ErrCorruptInstallation,
		ErrSpawnFailed,
		ErrProxyIO,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
