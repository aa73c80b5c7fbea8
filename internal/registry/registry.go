package registry

import (
	"fmt"
	"slices"
	"time"

	"verylup/internal/toolchain"
)

// Toolchain is one installed build. Entries are replaced wholesale, never
// edited in place.
type Toolchain struct {
	ID          toolchain.ID
	Root        string
	InstalledAt time.Time
}

// BinaryPath returns the expected location of tool inside the toolchain.
func (t Toolchain) BinaryPath(tool string) string {
	return toolchain.BinaryPath(t.Root, tool)
}

// Registry is the record of installed toolchains and the configured default.
// It is a plain value: load it, change it, save it.
type Registry struct {
	def         *toolchain.ID
	entries     map[string]Toolchain
	initialized bool
}

// New returns an empty registry that has not been set up.
func New() *Registry {
	return &Registry{entries: map[string]Toolchain{}}
}

// Initialized reports whether the registry exists on disk or was explicitly
// initialized by setup.
func (r *Registry) Initialized() bool { return r.initialized }

// Initialize marks the registry as set up so it is written even when empty.
func (r *Registry) Initialize() { r.initialized = true }

// Default returns the configured default, if any.
func (r *Registry) Default() (toolchain.ID, bool) {
	if r.def == nil {
		return toolchain.ID{}, false
	}
	return *r.def, true
}

// Len returns the number of installed toolchains.
func (r *Registry) Len() int { return len(r.entries) }

// Get looks up an installed toolchain by exact id.
func (r *Registry) Get(id toolchain.ID) (Toolchain, bool) {
	t, ok := r.entries[id.String()]
	return t, ok
}

// List returns installed toolchains, versions ascending, then local.
func (r *Registry) List() []Toolchain {
	out := make([]Toolchain, 0, len(r.entries))
	for _, t := range r.entries {
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b Toolchain) int { return toolchain.Compare(a.ID, b.ID) })
	return out
}

// IDs returns the installed ids in List order.
func (r *Registry) IDs() []toolchain.ID {
	list := r.List()
	ids := make([]toolchain.ID, len(list))
	for i, t := range list {
		ids[i] = t.ID
	}
	return ids
}

// Install inserts t, replacing any entry with the same id. When no default
// is configured, t becomes the default if it is the local toolchain or the
// registry was empty before the insert.
func (r *Registry) Install(t Toolchain) error {
	if t.ID.IsZero() || t.ID.Kind() == toolchain.KindLatest {
		return fmt.Errorf("cannot record toolchain %q: installed toolchains need a concrete id", t.ID)
	}
	if t.Root == "" {
		return fmt.Errorf("cannot record toolchain %q without a root directory", t.ID)
	}
	if r.entries == nil {
		r.entries = map[string]Toolchain{}
	}
	wasEmpty := len(r.entries) == 0
	if t.InstalledAt.IsZero() {
		t.InstalledAt = time.Now().UTC()
	}
	r.entries[t.ID.String()] = t
	r.initialized = true

	if r.def == nil && (wasEmpty || t.ID.Kind() == toolchain.KindLocal) {
		id := t.ID
		r.def = &id
	}
	return nil
}

// SetDefault selects an installed toolchain as the default.
func (r *Registry) SetDefault(id toolchain.ID) error {
	if _, ok := r.entries[id.String()]; !ok {
		return &toolchain.Error{Kind: toolchain.ErrNotInstalled, Step: "set default", ID: id.String()}
	}
	r.def = &id
	return nil
}

// ClearDefault unsets the default selection.
func (r *Registry) ClearDefault() { r.def = nil }

// Remove deletes an entry. Removing the default leaves no default; another
// entry is never promoted silently.
func (r *Registry) Remove(id toolchain.ID) (Toolchain, error) {
	t, ok := r.entries[id.String()]
	if !ok {
		return Toolchain{}, &toolchain.Error{Kind: toolchain.ErrNotInstalled, Step: "remove", ID: id.String()}
	}
	delete(r.entries, id.String())
	if r.def != nil && r.def.Equal(id) {
		r.def = nil
	}
	return t, nil
}

// Latest returns the highest installed semantic version. Pre-releases sort
// below their release; the local toolchain is never a candidate.
func (r *Registry) Latest() (Toolchain, error) {
	var (
		best  Toolchain
		found bool
	)
	for _, t := range r.entries {
		if !t.ID.IsVersion() {
			continue
		}
		if !found || toolchain.Compare(t.ID, best.ID) > 0 {
			best = t
			found = true
		}
	}
	if !found {
		return Toolchain{}, &toolchain.Error{
			Kind: toolchain.ErrNotInstalled,
			Step: "resolve",
			ID:   toolchain.Latest.String(),
			Err:  fmt.Errorf("no versioned toolchain is installed"),
		}
	}
	return best, nil
}

// Clone returns a deep copy, useful for staging a mutation.
func (r *Registry) Clone() *Registry {
	c := &Registry{entries: make(map[string]Toolchain, len(r.entries)), initialized: r.initialized}
	for k, v := range r.entries {
		c.entries[k] = v
	}
	if r.def != nil {
		id := *r.def
		c.def = &id
	}
	return c
}
