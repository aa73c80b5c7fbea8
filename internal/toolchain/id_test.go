package toolchain

import (
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input string
		kind  Kind
		want  string
		err   bool
	}{
		{"0.12.0", KindVersion, "0.12.0", false},
		{"v0.12.0", KindVersion, "0.12.0", false},
		{"0.10.0-rc.1", KindVersion, "0.10.0-rc.1", false},
		{" latest\n", KindLatest, "latest", false},
		{"local", KindLocal, "local", false},
		{"Latest", 0, "", true},
		{"0.12", 0, "", true},
		{"nightly-ish", 0, "", true},
		{"", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			id, err := Parse(tt.input)
			if tt.err {
				if err == nil {
					t.Fatalf("Parse(%q) expected error, got %v", tt.input, id)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q): %v", tt.input, err)
			}
			if id.Kind() != tt.kind {
				t.Errorf("Parse(%q).Kind() = %v, want %v", tt.input, id.Kind(), tt.kind)
			}
			if id.String() != tt.want {
				t.Errorf("Parse(%q).String() = %q, want %q", tt.input, id.String(), tt.want)
			}
		})
	}
}

func TestCompareOrdersBySemverPrecedence(t *testing.T) {
	ids := []ID{
		Local,
		MustParse("0.10.0"),
		Latest,
		MustParse("0.9.0"),
		MustParse("0.10.0-rc.1"),
	}
	slices.SortFunc(ids, Compare)

	var got []string
	for _, id := range ids {
		got = append(got, id.String())
	}
	want := "0.9.0 0.10.0-rc.1 0.10.0 latest local"
	if strings.Join(got, " ") != want {
		t.Fatalf("sorted ids = %q, want %q", strings.Join(got, " "), want)
	}
}

func TestRequirementHighest(t *testing.T) {
	candidates := []ID{
		MustParse("0.15.0"),
		MustParse("0.16.0"),
		MustParse("0.16.2"),
		MustParse("0.17.0-rc.1"),
		Local,
	}

	tests := []struct {
		req  string
		want string
		ok   bool
	}{
		{"0.16", "0.16.2", true},
		{">=0.15 <0.16.1", "0.16.0", true},
		{"~0.15", "0.15.0", true},
		{"0.18", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.req, func(t *testing.T) {
			req, err := ParseRequirement(tt.req)
			if err != nil {
				t.Fatalf("ParseRequirement(%q): %v", tt.req, err)
			}
			got, ok := req.Highest(candidates)
			if ok != tt.ok {
				t.Fatalf("Highest ok = %v, want %v", ok, tt.ok)
			}
			if ok && got.String() != tt.want {
				t.Errorf("Highest = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTextRoundTrip(t *testing.T) {
	var id ID
	if err := id.UnmarshalText([]byte("0.3.1")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	text, _ := id.MarshalText()
	if string(text) != "0.3.1" {
		t.Fatalf("MarshalText = %q", text)
	}
	if err := id.UnmarshalText([]byte("bogus")); err == nil {
		t.Fatal("expected error for bogus id")
	}
}

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := fmt.Errorf("disk on fire")
	err := fmt.Errorf("resolve: %w", &Error{Kind: ErrCorruptState, Step: "read override", Path: "/p/veryl-toolchain", Err: cause})

	if !errors.Is(err, ErrCorruptState) {
		t.Error("expected errors.Is(err, ErrCorruptState)")
	}
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is(err, cause)")
	}
	if KindOf(err) != ErrCorruptState {
		t.Errorf("KindOf = %v", KindOf(err))
	}
	msg := err.Error()
	if !strings.Contains(msg, "read override") || !strings.Contains(msg, "disk on fire") {
		t.Errorf("unexpected message %q", msg)
	}
}

func TestBinaryPathIsInsideRoot(t *testing.T) {
	got := BinaryPath("/opt/tc", Primary)
	want := filepath.Join("/opt/tc", ExecutableName("veryl"))
	if got != want {
		t.Fatalf("BinaryPath = %q, want %q", got, want)
	}
	if !IsTool("veryl-ls") || IsTool("cargo") {
		t.Fatal("IsTool mismatch")
	}
}
