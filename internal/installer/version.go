package installer

import (
	"context"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

const probeTimeout = 10 * time.Second

var versionRegex = regexp.MustCompile(`\b(\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?)`)

// ProbeVersion runs "<binary> --version" and parses the "veryl X.Y.Z" line it
// prints.
func ProbeVersion(ctx context.Context, binary string) (*semver.Version, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, binary, "--version").Output()
	if err != nil {
		return nil, fmt.Errorf("%s --version: %w", binary, err)
	}
	return ParseVersionOutput(string(output))
}

// ParseVersionOutput extracts the version from the first line of --version
// output.
func ParseVersionOutput(output string) (*semver.Version, error) {
	line := firstLine(strings.TrimSpace(output))
	match := versionRegex.FindString(line)
	if match == "" {
		return nil, fmt.Errorf("no version in %q", line)
	}
	return semver.StrictNewVersion(match)
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return text
}
