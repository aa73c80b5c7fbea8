package override

import (
	"iter"
	"path/filepath"
)

// Ancestors yields dir and then each parent directory up to and including
// the filesystem root. It performs no I/O, so ranging over it again restarts
// the walk.
func Ancestors(dir string) iter.Seq[string] {
	return func(yield func(string) bool) {
		if dir == "" {
			return
		}
		current := filepath.Clean(dir)
		for {
			if !yield(current) {
				return
			}
			parent := filepath.Dir(current)
			if parent == current {
				return
			}
			current = parent
		}
	}
}
