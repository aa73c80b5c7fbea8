package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
)

// ValidationResult captures a single validation finding.
type ValidationResult struct {
	Level   string `json:"level"` // "error" or "warning"
	Message string `json:"message"`
}

// Results is a list of findings.
type Results []ValidationResult

// Errors returns the error-level findings as errors.
func (r Results) Errors() []error {
	var errs []error
	for _, res := range r {
		if res.Level == "error" {
			errs = append(errs, errors.New(res.Message))
		}
	}
	return errs
}

// Validate checks the settings and returns structured results.
func (c Config) Validate() Results {
	var results Results
	results = append(results, c.validateMirror()...)
	results = append(results, c.validateDownload()...)
	results = append(results, c.validateToolchainsDir()...)
	return results
}

func (c Config) validateMirror() Results {
	raw := c.MirrorURL()
	if raw == "" {
		return Results{{Level: "error", Message: "mirror must not be empty"}}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https" && u.Scheme != "file") || (u.Scheme != "file" && u.Host == "") {
		return Results{{Level: "error", Message: fmt.Sprintf("mirror %q is not an http(s) or file URL", raw)}}
	}
	if u.Scheme == "http" {
		return Results{{Level: "warning", Message: fmt.Sprintf("mirror %q is not using https", raw)}}
	}
	return nil
}

func (c Config) validateDownload() Results {
	var results Results
	if c.Download.Retries < 0 {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("download.retries must be zero or more, got %d", c.Download.Retries),
		})
	}
	if c.Download.TimeoutSec <= 0 {
		results = append(results, ValidationResult{
			Level:   "error",
			Message: fmt.Sprintf("download.timeout_s must be positive, got %d", c.Download.TimeoutSec),
		})
	}
	return results
}

func (c Config) validateToolchainsDir() Results {
	dir, err := c.ToolchainsPath()
	if err != nil {
		return Results{{Level: "error", Message: err.Error()}}
	}
	if dir != "" && !filepath.IsAbs(dir) {
		return Results{{Level: "error", Message: fmt.Sprintf("toolchains_dir %q must be an absolute path", c.ToolchainsDir)}}
	}
	return nil
}
