//go:build unix && !linux

package proxy

import "syscall"

func setPdeathsig(*syscall.SysProcAttr) {}
