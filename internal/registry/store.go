package registry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"verylup/internal/toolchain"
)

// FileName is the registry file inside the configuration root.
const FileName = "toolchains.toml"

const formatVersion = 1

const (
	lockPollInterval = 100 * time.Millisecond
	staleLockAge     = 10 * time.Minute
)

type document struct {
	Version    int     `toml:"version"`
	Default    string  `toml:"default,omitempty"`
	Toolchains []entry `toml:"toolchain,omitempty"`
}

type entry struct {
	ID          string    `toml:"id"`
	Root        string    `toml:"root"`
	InstalledAt time.Time `toml:"installed_at"`
}

// Store persists a Registry at Path. Reads take no lock; writers serialize
// through Update.
type Store struct {
	Path string

	// rename replaces the registry file; tests swap it to simulate a crash
	// between writing the temp file and publishing it.
	rename func(oldpath, newpath string) error
}

// NewStore returns a store for the registry file inside configRoot.
func NewStore(configRoot string) *Store {
	return &Store{Path: filepath.Join(configRoot, FileName)}
}

func (s *Store) lockPath() string { return s.Path + ".lock" }

// Load reads the registry. A missing file yields an empty, uninitialized
// registry; a file that exists but cannot be parsed is ErrCorruptState.
func (s *Store) Load() (*Registry, error) {
	contents, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return New(), nil
		}
		return nil, s.corrupt(fmt.Errorf("read registry: %w", err))
	}

	var doc document
	if _, err := toml.Decode(string(contents), &doc); err != nil {
		return nil, s.corrupt(err)
	}
	if doc.Version != formatVersion {
		if strings.TrimSpace(string(contents)) == "" || doc.Version == 0 {
			return nil, s.corrupt(fmt.Errorf("missing format version"))
		}
		return nil, s.corrupt(fmt.Errorf("unsupported format version %d", doc.Version))
	}

	reg := New()
	reg.initialized = true
	for _, e := range doc.Toolchains {
		id, err := toolchain.Parse(e.ID)
		if err != nil {
			return nil, s.corrupt(err)
		}
		if id.Kind() == toolchain.KindLatest {
			return nil, s.corrupt(fmt.Errorf(`"latest" cannot be an installed toolchain`))
		}
		if _, dup := reg.entries[id.String()]; dup {
			return nil, s.corrupt(fmt.Errorf("duplicate toolchain %q", id))
		}
		if e.Root == "" {
			return nil, s.corrupt(fmt.Errorf("toolchain %q has no root", id))
		}
		reg.entries[id.String()] = Toolchain{ID: id, Root: e.Root, InstalledAt: e.InstalledAt}
	}

	if doc.Default != "" {
		id, err := toolchain.Parse(doc.Default)
		if err != nil {
			return nil, s.corrupt(fmt.Errorf("default: %w", err))
		}
		if _, ok := reg.entries[id.String()]; !ok {
			return nil, s.corrupt(fmt.Errorf("default %q is not installed", id))
		}
		reg.def = &id
	}
	return reg, nil
}

func (s *Store) corrupt(err error) error {
	return &toolchain.Error{Kind: toolchain.ErrCorruptState, Step: "load registry", Path: s.Path, Err: err}
}

// Save atomically replaces the registry file. Readers observe either the
// previous contents or the new contents, never a partial write.
func (s *Store) Save(reg *Registry) error {
	doc := document{Version: formatVersion}
	if id, ok := reg.Default(); ok {
		doc.Default = id.String()
	}
	for _, t := range reg.List() {
		doc.Toolchains = append(doc.Toolchains, entry{
			ID:          t.ID.String(),
			Root:        t.Root,
			InstalledAt: t.InstalledAt.UTC().Truncate(time.Second),
		})
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(doc); err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("prepare registry directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".toolchains-*.toml")
	if err != nil {
		return fmt.Errorf("create temp registry: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write registry temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync registry temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close registry temp: %w", err)
	}

	rename := s.rename
	if rename == nil {
		rename = os.Rename
	}
	if err := rename(tmp.Name(), s.Path); err != nil {
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}

// Update loads the registry under the writer lock, applies fn and saves the
// result. Nothing is written when fn fails.
func (s *Store) Update(ctx context.Context, fn func(*Registry) error) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	reg, err := s.Load()
	if err != nil {
		return err
	}
	if err := fn(reg); err != nil {
		return err
	}
	reg.initialized = true
	return s.Save(reg)
}

func (s *Store) lock(ctx context.Context) (func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return nil, fmt.Errorf("prepare registry directory: %w", err)
	}

	lockPath := s.lockPath()
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			fmt.Fprintf(f, "%d\n", os.Getpid())
			_ = f.Close()
			return func() { _ = os.Remove(lockPath) }, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("acquire registry lock: %w", err)
		}
		if info, statErr := os.Stat(lockPath); statErr == nil && time.Since(info.ModTime()) > staleLockAge {
			_ = os.Remove(lockPath)
			continue
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire registry lock: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
