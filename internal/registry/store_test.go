package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"verylup/internal/toolchain"
)

func TestLoadMissingFileIsEmptyAndUninitialized(t *testing.T) {
	store := NewStore(t.TempDir())
	reg, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reg.Initialized() {
		t.Fatal("expected uninitialized registry")
	}
	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d entries", reg.Len())
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	store := NewStore(t.TempDir())
	installed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	reg := New()
	_ = reg.Install(Toolchain{ID: toolchain.MustParse("0.16.1"), Root: "/data/0.16.1", InstalledAt: installed})
	_ = reg.Install(Toolchain{ID: toolchain.Local, Root: "/data/local", InstalledAt: installed})
	if err := store.Save(reg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Initialized() {
		t.Fatal("expected initialized registry after save")
	}
	if loaded.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", loaded.Len())
	}
	def, ok := loaded.Default()
	if !ok || def.String() != "0.16.1" {
		t.Fatalf("expected default 0.16.1, got %v", def)
	}
	got, _ := loaded.Get(toolchain.Local)
	if got.Root != "/data/local" || !got.InstalledAt.Equal(installed) {
		t.Fatalf("unexpected local entry %+v", got)
	}
}

func TestSaveEmptyInitializedRegistry(t *testing.T) {
	store := NewStore(t.TempDir())
	reg := New()
	reg.Initialize()
	if err := store.Save(reg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Initialized() || loaded.Len() != 0 {
		t.Fatalf("expected initialized empty registry, got %d entries", loaded.Len())
	}
}

func TestLoadCorruptState(t *testing.T) {
	tests := map[string]string{
		"truncated":         "version = 1\n[[toolchain]]\nid = \"0.1",
		"empty":             "",
		"unknown id":        "version = 1\n[[toolchain]]\nid = \"banana\"\nroot = \"/x\"\n",
		"duplicate":         "version = 1\n[[toolchain]]\nid = \"0.1.0\"\nroot = \"/a\"\n[[toolchain]]\nid = \"0.1.0\"\nroot = \"/b\"\n",
		"dangling default":  "version = 1\ndefault = \"0.2.0\"\n[[toolchain]]\nid = \"0.1.0\"\nroot = \"/a\"\n",
		"future version":    "version = 7\n",
		"latest as install": "version = 1\n[[toolchain]]\nid = \"latest\"\nroot = \"/a\"\n",
	}

	for name, contents := range tests {
		t.Run(name, func(t *testing.T) {
			store := NewStore(t.TempDir())
			if err := os.WriteFile(store.Path, []byte(contents), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := store.Load()
			if !errors.Is(err, toolchain.ErrCorruptState) {
				t.Fatalf("expected ErrCorruptState, got %v", err)
			}
			if !strings.Contains(err.Error(), store.Path) {
				t.Errorf("expected path in error, got %q", err)
			}
		})
	}
}

func TestSaveCrashBeforeRenameKeepsPreviousFile(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(dir)

	reg := New()
	_ = reg.Install(Toolchain{ID: toolchain.MustParse("0.1.0"), Root: "/a"})
	if err := store.Save(reg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	before, _ := os.ReadFile(store.Path)

	store.rename = func(string, string) error { return errors.New("simulated crash") }
	_ = reg.Install(Toolchain{ID: toolchain.MustParse("0.2.0"), Root: "/b"})
	if err := store.Save(reg); err == nil {
		t.Fatal("expected save to fail")
	}

	after, _ := os.ReadFile(store.Path)
	if string(before) != string(after) {
		t.Fatalf("registry changed after failed save:\n%s\n---\n%s", before, after)
	}
	loaded, err := store.Load()
	if err != nil {
		t.Fatalf("Load after crash: %v", err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("expected previous registry with 1 entry, got %d", loaded.Len())
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".toolchains-") {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

func TestUpdateSerializesWriters(t *testing.T) {
	store := NewStore(t.TempDir())
	versions := []string{"0.1.0", "0.2.0", "0.3.0", "0.4.0", "0.5.0", "0.6.0"}

	var wg sync.WaitGroup
	errs := make(chan error, len(versions))
	for _, v := range versions {
		wg.Add(1)
		go func(v string) {
			defer wg.Done()
			errs <- store.Update(context.Background(), func(r *Registry) error {
				return r.Install(Toolchain{ID: toolchain.MustParse(v), Root: "/tc/" + v})
			})
		}(v)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	reg, err := store.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if reg.Len() != len(versions) {
		t.Fatalf("expected %d entries, got %d (lost update)", len(versions), reg.Len())
	}
	if _, err := os.Stat(store.lockPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("lock file left behind: %v", err)
	}
}

func TestUpdateFailureWritesNothing(t *testing.T) {
	store := NewStore(t.TempDir())
	err := store.Update(context.Background(), func(r *Registry) error {
		return r.SetDefault(toolchain.MustParse("9.9.9"))
	})
	if !errors.Is(err, toolchain.ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}
	if _, err := os.Stat(store.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("registry file must not be created by a failed update")
	}
}

func TestUpdateHonoursContextWhileLocked(t *testing.T) {
	store := NewStore(t.TempDir())
	if err := os.WriteFile(store.lockPath(), []byte("1\n"), 0o600); err != nil {
		t.Fatalf("write lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	err := store.Update(ctx, func(*Registry) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestUpdateBreaksStaleLock(t *testing.T) {
	store := NewStore(t.TempDir())
	lock := store.lockPath()
	if err := os.WriteFile(lock, []byte("1\n"), 0o600); err != nil {
		t.Fatalf("write lock: %v", err)
	}
	old := time.Now().Add(-2 * staleLockAge)
	if err := os.Chtimes(lock, old, old); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := store.Update(ctx, func(*Registry) error { return nil }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(store.Path), FileName)); err != nil {
		t.Fatalf("expected registry written: %v", err)
	}
}
