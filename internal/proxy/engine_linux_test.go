package proxy

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"
)

// alive reads /proc so a reparented zombie nobody reaps counts as gone.
func alive(pid int) bool {
	data, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return false
	}
	// The state field follows the parenthesised command name.
	i := bytes.LastIndexByte(data, ')')
	if i < 0 || i+2 >= len(data) {
		return false
	}
	return data[i+2] != 'Z' && data[i+2] != 'X'
}

func TestKilledProxyTakesChildDown(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "child.pid")
	cmd := exec.Command(testBinary(t))
	cmd.Env = append(os.Environ(), helperEnv+"=proxy", pidFileEnv+"="+pidFile)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start proxy: %v", err)
	}
	child := waitForPID(t, pidFile)

	if err := cmd.Process.Kill(); err != nil {
		t.Fatalf("kill proxy: %v", err)
	}
	var exitErr *exec.ExitError
	if err := cmd.Wait(); !errors.As(err, &exitErr) {
		t.Fatalf("expected proxy to die, got %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for alive(child) {
		if time.Now().After(deadline) {
			t.Fatalf("child %d outlived a SIGKILLed proxy", child)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
