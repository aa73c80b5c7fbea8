package logx

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestHandlerFormatsPlainLines(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelInfo)

	logger.Debug("hidden")
	logger.Info("installing toolchain", "id", "0.16.1", "dir", "/tmp/with space")

	got := buf.String()
	want := "[INFO] installing toolchain id=0.16.1 dir=\"/tmp/with space\"\n"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestHandlerAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug).With("tool", "veryl").WithGroup("proxy")

	logger.Warn("state", "to", "running")

	if got := buf.String(); got != "[WARN] state tool=veryl proxy.to=running\n" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestHandlerAttrsAfterGroup(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, slog.LevelDebug).WithGroup("proxy").With("pid", 42).WithGroup("child")

	logger.Info("spawned", "tool", "veryl")

	if got := buf.String(); got != "[INFO] spawned proxy.pid=42 proxy.child.tool=veryl\n" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestParseLevel(t *testing.T) {
	for input, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"INFO":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(input)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	if _, err := ParseLevel("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestEnvLevel(t *testing.T) {
	t.Setenv(LevelEnv, "debug")
	if EnvLevel(slog.LevelWarn) != slog.LevelDebug {
		t.Fatal("expected debug from environment")
	}
	t.Setenv(LevelEnv, "bogus")
	if EnvLevel(slog.LevelWarn) != slog.LevelWarn {
		t.Fatal("expected fallback for invalid value")
	}
}

func TestOpenFileAndTee(t *testing.T) {
	dir := t.TempDir()
	fileLogger, closer, err := OpenFile(dir)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}

	var console bytes.Buffer
	logger := slog.New(Tee(NewHandler(&console, slog.LevelWarn), fileLogger.Handler()))
	logger.Info("extracted", "files", 2)
	logger.Warn("slow mirror")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if strings.Contains(console.String(), "extracted") {
		t.Error("console must not receive info records at warn level")
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected one log file, got %d", len(entries))
	}
	data, _ := os.ReadFile(dir + string(os.PathSeparator) + entries[0].Name())
	if !strings.Contains(string(data), "extracted") || !strings.Contains(string(data), "slow mirror") {
		t.Fatalf("file log missing records:\n%s", data)
	}
}
