package toolchain

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Requirement is a partial version or range ("0.16", "~0.16", ">=0.15 <0.17")
// that selects the highest installed version satisfying it.
type Requirement struct {
	raw        string
	constraint *semver.Constraints
}

// ParseRequirement accepts anything semver constraints accept. Callers try
// Parse first; a complete version is an exact id, not a requirement.
func ParseRequirement(s string) (Requirement, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Requirement{}, fmt.Errorf("empty version requirement")
	}
	c, err := semver.NewConstraint(s)
	if err != nil {
		return Requirement{}, fmt.Errorf("unknown toolchain %q", s)
	}
	return Requirement{raw: s, constraint: c}, nil
}

func (r Requirement) String() string { return r.raw }

// Matches reports whether a version id satisfies the requirement. Sentinels
// never match.
func (r Requirement) Matches(id ID) bool {
	if r.constraint == nil || !id.IsVersion() {
		return false
	}
	return r.constraint.Check(id.version)
}

// Highest returns the greatest id in candidates that satisfies r.
func (r Requirement) Highest(candidates []ID) (ID, bool) {
	var best ID
	found := false
	for _, c := range candidates {
		if !r.Matches(c) {
			continue
		}
		if !found || Compare(c, best) > 0 {
			best = c
			found = true
		}
	}
	return best, found
}
