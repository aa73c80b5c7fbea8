package installer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/cenkalti/backoff/v4"

	"verylup/internal/config"
)

const userAgent = "verylup/1.0"

// Client talks to a release mirror laid out like GitHub releases:
// <mirror>/latest redirects to <mirror>/tag/v<version>, archives live at
// <mirror>/download/v<version>/<archive>. A file:// mirror uses the same
// layout on disk with a plain "latest" file holding the version.
type Client struct {
	Mirror  string
	HTTP    *http.Client
	Retries int
	Logger  *slog.Logger

	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration
}

// NewClient builds a client from user settings.
func NewClient(cfg config.Config, logger *slog.Logger) *Client {
	return &Client{
		Mirror:         cfg.MirrorURL(),
		HTTP:           &http.Client{Timeout: time.Duration(cfg.Download.TimeoutSec) * time.Second},
		Retries:        cfg.Download.Retries,
		Logger:         logger,
		InitialBackoff: 500 * time.Millisecond,
	}
}

// ArchiveName returns the release asset for a platform.
func ArchiveName(goos, goarch string) (string, error) {
	switch {
	case goos == "linux" && goarch == "amd64":
		return "veryl-x86_64-linux.zip", nil
	case goos == "windows" && goarch == "amd64":
		return "veryl-x86_64-windows.zip", nil
	case goos == "darwin" && goarch == "amd64":
		return "veryl-x86_64-mac.zip", nil
	case goos == "darwin" && goarch == "arm64":
		return "veryl-aarch64-mac.zip", nil
	default:
		return "", fmt.Errorf("no published toolchain for %s/%s", goos, goarch)
	}
}

// ArchiveURL returns where the archive for version is published for the
// running platform.
func (c *Client) ArchiveURL(version *semver.Version) (string, error) {
	name, err := ArchiveName(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/download/v%s/%s", c.base(), version, name), nil
}

// LatestVersion asks the mirror for the newest published release.
func (c *Client) LatestVersion(ctx context.Context) (*semver.Version, error) {
	if dir, ok := c.fileMirror(); ok {
		data, err := os.ReadFile(filepath.Join(dir, "latest"))
		if err != nil {
			return nil, fmt.Errorf("read latest release: %w", err)
		}
		return parseTag(strings.TrimSpace(string(data)))
	}

	var version *semver.Version
	err := c.retry(ctx, "resolve latest release", func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.base()+"/latest", nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("User-Agent", userAgent)
		resp, err := c.httpClient().Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if err := statusError(resp); err != nil {
			return err
		}
		v, err := parseTag(path.Base(resp.Request.URL.Path))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("latest release redirect %s: %w", resp.Request.URL, err))
		}
		version = v
		return nil
	})
	return version, err
}

// Download fetches rawURL into dest through a temp file in the same
// directory, retrying transient failures with exponential backoff.
func (c *Client) Download(ctx context.Context, rawURL, dest string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("prepare download destination: %w", err)
	}

	var written int64
	err := c.retry(ctx, "download", func() error {
		body, err := c.open(ctx, rawURL)
		if err != nil {
			return err
		}
		defer body.Close()

		tmp, err := os.CreateTemp(filepath.Dir(dest), "download-*.tmp")
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create temp file: %w", err))
		}
		tmpPath := tmp.Name()
		defer func() { _ = os.Remove(tmpPath) }()

		n, err := io.Copy(tmp, body)
		if err != nil {
			tmp.Close()
			return fmt.Errorf("write temp file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return backoff.Permanent(fmt.Errorf("close temp file: %w", err))
		}
		if err := os.Rename(tmpPath, dest); err != nil {
			return backoff.Permanent(fmt.Errorf("finalize download: %w", err))
		}
		written = n
		return nil
	})
	return written, err
}

func (c *Client) open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" {
		f, err := os.Open(filepath.FromSlash(u.Path))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("open %s: %w", rawURL, err))
		}
		return f, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	if err := statusError(resp); err != nil {
		resp.Body.Close()
		return nil, fmt.Errorf("download %s: %w", rawURL, err)
	}
	return resp.Body, nil
}

// statusError classifies a response: 4xx will not get better by retrying.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	err := fmt.Errorf("unexpected status %s", resp.Status)
	if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

func (c *Client) retry(ctx context.Context, what string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	if c.InitialBackoff > 0 {
		policy.InitialInterval = c.InitialBackoff
	}
	retries := c.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(retries)), ctx)
	return backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		if c.Logger != nil {
			c.Logger.Warn(what+" failed, retrying", "error", err, "in", wait.Round(time.Millisecond).String())
		}
	})
}

func (c *Client) base() string {
	if c.Mirror == "" {
		return config.DefaultMirror
	}
	return strings.TrimRight(c.Mirror, "/")
}

func (c *Client) fileMirror() (string, bool) {
	u, err := url.Parse(c.base())
	if err != nil || u.Scheme != "file" {
		return "", false
	}
	return filepath.FromSlash(u.Path), true
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func parseTag(tag string) (*semver.Version, error) {
	v, err := semver.StrictNewVersion(strings.TrimPrefix(tag, "v"))
	if err != nil {
		return nil, fmt.Errorf("not a release tag %q", tag)
	}
	return v, nil
}
