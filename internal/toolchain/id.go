package toolchain

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Kind distinguishes the three shapes a toolchain identifier can take.
type Kind int

const (
	KindVersion Kind = iota
	KindLatest
	KindLocal
)

func (k Kind) String() string {
	switch k {
	case KindVersion:
		return "version"
	case KindLatest:
		return "latest"
	case KindLocal:
		return "local"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

const (
	latestName = "latest"
	localName  = "local"
)

// ID identifies a toolchain: an exact semantic version or one of the
// sentinels "latest" and "local". The zero value is not a valid ID.
type ID struct {
	kind    Kind
	version *semver.Version
	raw     string
}

var (
	Latest = ID{kind: KindLatest, raw: latestName}
	Local  = ID{kind: KindLocal, raw: localName}
)

// Parse reads an identifier. Sentinels are matched case-sensitively and
// versions must be complete MAJOR.MINOR.PATCH[-pre][+build] strings.
func Parse(s string) (ID, error) {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return ID{}, fmt.Errorf("empty toolchain identifier")
	case latestName:
		return Latest, nil
	case localName:
		return Local, nil
	}

	v, err := semver.StrictNewVersion(strings.TrimPrefix(s, "v"))
	if err != nil {
		return ID{}, fmt.Errorf("unknown toolchain %q", s)
	}
	return ID{kind: KindVersion, version: v, raw: v.Original()}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// FromVersion wraps an already parsed semantic version.
func FromVersion(v *semver.Version) ID {
	return ID{kind: KindVersion, version: v, raw: v.String()}
}

func (id ID) Kind() Kind { return id.kind }

func (id ID) IsZero() bool { return id.raw == "" }

func (id ID) IsVersion() bool { return id.kind == KindVersion && id.version != nil }

// Version returns the semantic version for KindVersion ids and nil otherwise.
func (id ID) Version() *semver.Version {
	if !id.IsVersion() {
		return nil
	}
	return id.version
}

func (id ID) String() string { return id.raw }

// Equal compares canonical strings; "0.1.0" and "v0.1.0" are the same id.
func (id ID) Equal(other ID) bool { return id.raw == other.raw }

// Compare orders versions by semantic-version precedence, placing "latest"
// after every version and "local" last.
func Compare(a, b ID) int {
	if a.kind != b.kind {
		return rank(a.kind) - rank(b.kind)
	}
	if a.kind == KindVersion {
		return a.version.Compare(b.version)
	}
	return 0
}

func rank(k Kind) int {
	switch k {
	case KindVersion:
		return 0
	case KindLatest:
		return 1
	default:
		return 2
	}
}

// MarshalText lets ids round-trip through TOML and YAML as plain strings.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.raw), nil
}

func (id *ID) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
