//go:build darwin || dragonfly || freebsd || linux || netbsd || openbsd

package proxy

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"golang.org/x/sys/unix"
)

// foregroundTTY returns f's descriptor when f is the controlling terminal
// and the proxy's process group currently owns it.
func foregroundTTY(f *os.File) (int, bool) {
	if !isatty.IsTerminal(f.Fd()) {
		return -1, false
	}
	fd := int(f.Fd())
	if !ownsForeground(fd) {
		return -1, false
	}
	return fd, true
}

// ownsForeground reports whether the proxy's group holds the terminal fd.
func ownsForeground(fd int) bool {
	fg, err := unix.IoctlGetInt(fd, unix.TIOCGPGRP)
	return err == nil && fg == unix.Getpgrp()
}

// setForeground gives the terminal to pgrp. The proxy may be a background
// group at this point, so SIGTTOU is ignored for the call.
func setForeground(fd, pgrp int) error {
	signal.Ignore(syscall.SIGTTOU)
	defer signal.Reset(syscall.SIGTTOU)
	return unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, pgrp)
}
