package override

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"verylup/internal/registry"
	"verylup/internal/toolchain"
)

const (
	// MarkerFile pins a toolchain for a directory tree.
	MarkerFile = "veryl-toolchain"
	// FlagPrefix introduces an explicit selector as the first argument.
	FlagPrefix = "+"
)

// Source names where the effective selector came from.
type Source int

const (
	SourceNone Source = iota
	SourceFlag
	SourceMarker
	SourceDefault
)

func (s Source) String() string {
	switch s {
	case SourceFlag:
		return "flag"
	case SourceMarker:
		return "override file"
	case SourceDefault:
		return "default"
	default:
		return "none"
	}
}

// Selection is the outcome of resolving one invocation.
type Selection struct {
	ID       toolchain.ID
	Selector string
	Source   Source
	// Origin is the marker file path when Source is SourceMarker.
	Origin string
	Args   []string
}

// Marker is a discovered override file.
type Marker struct {
	Path     string
	Selector string
}

// Resolver computes the effective toolchain for an invocation. ReadFile is
// the only filesystem access; tests swap it for an in-memory tree.
type Resolver struct {
	MarkerName string
	ReadFile   func(name string) ([]byte, error)
}

// NewResolver returns a resolver reading markers from disk.
func NewResolver() *Resolver {
	return &Resolver{MarkerName: MarkerFile, ReadFile: os.ReadFile}
}

func (r *Resolver) markerName() string {
	if r.MarkerName == "" {
		return MarkerFile
	}
	return r.MarkerName
}

func (r *Resolver) read(name string) ([]byte, error) {
	if r.ReadFile == nil {
		return os.ReadFile(name)
	}
	return r.ReadFile(name)
}

// SplitFlag consumes a leading "+<selector>" argument. A bare "+" is not an
// override and is passed through.
func SplitFlag(args []string) (string, []string, bool) {
	if len(args) == 0 {
		return "", args, false
	}
	first := args[0]
	if !strings.HasPrefix(first, FlagPrefix) || len(first) == len(FlagPrefix) {
		return "", args, false
	}
	return strings.TrimPrefix(first, FlagPrefix), args[1:], true
}

// Resolve applies the precedence flag > nearest marker > registry default
// and desugars the chosen selector against reg.
func (r *Resolver) Resolve(cwd string, args []string, reg *registry.Registry) (Selection, error) {
	if selector, rest, ok := SplitFlag(args); ok {
		id, err := Desugar(selector, reg)
		if err != nil {
			return Selection{}, err
		}
		return Selection{ID: id, Selector: selector, Source: SourceFlag, Args: rest}, nil
	}

	marker, found, err := r.FindMarker(cwd)
	if err != nil {
		return Selection{}, err
	}
	if found {
		id, err := Desugar(marker.Selector, reg)
		if err != nil {
			return Selection{}, err
		}
		return Selection{ID: id, Selector: marker.Selector, Source: SourceMarker, Origin: marker.Path, Args: args}, nil
	}

	def, ok := reg.Default()
	if !ok {
		return Selection{}, &toolchain.Error{
			Kind: toolchain.ErrNoToolchainSelected,
			Step: "resolve",
			Err:  fmt.Errorf("no %s%s argument, no %s file and no default toolchain", FlagPrefix, "<toolchain>", r.markerName()),
		}
	}
	return Selection{ID: def, Selector: def.String(), Source: SourceDefault, Args: args}, nil
}

// FindMarker returns the marker in dir or its nearest ancestor. A marker
// that exists but cannot be read or parsed is ErrCorruptState and stops the
// walk.
func (r *Resolver) FindMarker(dir string) (Marker, bool, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Marker{}, false, fmt.Errorf("resolve working directory: %w", err)
	}
	for candidate := range Ancestors(abs) {
		m, ok, err := r.readMarker(filepath.Join(candidate, r.markerName()))
		if err != nil || ok {
			return m, ok, err
		}
	}
	return Marker{}, false, nil
}

// Markers lists every marker from dir up to the root, nearest first. The
// first one is the effective override.
func (r *Resolver) Markers(dir string) ([]Marker, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	var out []Marker
	for candidate := range Ancestors(abs) {
		m, ok, err := r.readMarker(filepath.Join(candidate, r.markerName()))
		if err != nil {
			return out, err
		}
		if ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r *Resolver) readMarker(path string) (Marker, bool, error) {
	contents, err := r.read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Marker{}, false, nil
		}
		return Marker{}, false, &toolchain.Error{Kind: toolchain.ErrCorruptState, Step: "read override", Path: path, Err: err}
	}
	selector := strings.TrimSpace(string(contents))
	if selector == "" {
		return Marker{}, false, &toolchain.Error{
			Kind: toolchain.ErrCorruptState,
			Step: "read override",
			Path: path,
			Err:  errors.New("file is empty"),
		}
	}
	if err := validSelector(selector); err != nil {
		return Marker{}, false, &toolchain.Error{Kind: toolchain.ErrCorruptState, Step: "read override", Path: path, Err: err}
	}
	return Marker{Path: path, Selector: selector}, true, nil
}

func validSelector(s string) error {
	if _, err := toolchain.Parse(s); err == nil {
		return nil
	}
	_, err := toolchain.ParseRequirement(s)
	return err
}

// Desugar turns a selector into a concrete id: "latest" becomes the highest
// installed version and requirements pick the highest matching version.
// Exact ids are returned as written; the locator checks they are installed.
func Desugar(selector string, reg *registry.Registry) (toolchain.ID, error) {
	if id, err := toolchain.Parse(selector); err == nil {
		if id.Kind() != toolchain.KindLatest {
			return id, nil
		}
		latest, err := reg.Latest()
		if err != nil {
			return toolchain.ID{}, err
		}
		return latest.ID, nil
	}

	req, err := toolchain.ParseRequirement(selector)
	if err != nil {
		return toolchain.ID{}, &toolchain.Error{Kind: toolchain.ErrNotInstalled, Step: "resolve", ID: selector, Err: err}
	}
	id, ok := req.Highest(reg.IDs())
	if !ok {
		return toolchain.ID{}, &toolchain.Error{
			Kind: toolchain.ErrNotInstalled,
			Step: "resolve",
			ID:   selector,
			Err:  errors.New("no installed toolchain matches"),
		}
	}
	return id, nil
}

// WriteMarker pins id for dir.
func WriteMarker(dir string, id toolchain.ID) (string, error) {
	path := filepath.Join(dir, MarkerFile)
	if err := os.WriteFile(path, []byte(id.String()+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("write override: %w", err)
	}
	return path, nil
}

// RemoveMarker deletes the marker in dir, reporting whether one existed.
func RemoveMarker(dir string) (string, bool, error) {
	path := filepath.Join(dir, MarkerFile)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return path, false, nil
		}
		return path, false, fmt.Errorf("remove override: %w", err)
	}
	return path, true, nil
}
