//go:build unix && !(darwin || dragonfly || freebsd || linux || netbsd || openbsd)

package proxy

import "os"

func foregroundTTY(*os.File) (int, bool) { return -1, false }

func ownsForeground(int) bool { return false }

func setForeground(int, int) error { return nil }
