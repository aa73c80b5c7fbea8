package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

// DefaultMirror hosts the published toolchain archives.
const DefaultMirror = "https://github.com/veryl-lang/veryl/releases"

// Config captures the user settings stored in config.yaml.
type Config struct {
	Version       int            `yaml:"version"`
	Offline       bool           `yaml:"offline"`
	ToolchainsDir string         `yaml:"toolchains_dir,omitempty"`
	Mirror        string         `yaml:"mirror"`
	Download      DownloadConfig `yaml:"download"`
}

// DownloadConfig tunes release downloads.
type DownloadConfig struct {
	Retries    int `yaml:"retries"`
	TimeoutSec int `yaml:"timeout_s"`
}

// Default returns the baseline configuration.
func Default() Config {
	return Config{
		Version: 1,
		Mirror:  DefaultMirror,
		Download: DownloadConfig{
			Retries:    4,
			TimeoutSec: 300,
		},
	}
}

// Load reads the YAML configuration from disk if it exists, otherwise returns
// the default configuration.
func Load(path string) (Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}

// Save writes the configuration, creating the parent directory.
func (c Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// ApplyDefaults fills fields the YAML left empty.
func (c *Config) ApplyDefaults() {
	defaults := Default()

	if c.Version == 0 {
		c.Version = defaults.Version
	}
	if strings.TrimSpace(c.Mirror) == "" {
		c.Mirror = defaults.Mirror
	}
	if c.Download.TimeoutSec == 0 {
		c.Download.TimeoutSec = defaults.Download.TimeoutSec
	}
}

// ToolchainsPath returns toolchains_dir with a leading ~ expanded, or "" when
// unset.
func (c Config) ToolchainsPath() (string, error) {
	dir := strings.TrimSpace(c.ToolchainsDir)
	if dir == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(dir)
	if err != nil {
		return "", fmt.Errorf("expand toolchains_dir: %w", err)
	}
	return filepath.Clean(expanded), nil
}

// MirrorURL returns the release base URL without a trailing slash.
func (c Config) MirrorURL() string {
	return strings.TrimRight(strings.TrimSpace(c.Mirror), "/")
}

// Marshal returns the YAML encoding of the configuration.
func (c Config) Marshal() ([]byte, error) {
	buf, err := yaml.Marshal(&c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return buf, nil
}

type field struct {
	get   func(c *Config) string
	set   func(c *Config, value string) error
	unset func(c *Config)
}

var fields = map[string]field{
	"offline": {
		get: func(c *Config) string { return strconv.FormatBool(c.Offline) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("offline must be true or false")
			}
			c.Offline = b
			return nil
		},
		unset: func(c *Config) { c.Offline = false },
	},
	"toolchains_dir": {
		get:   func(c *Config) string { return c.ToolchainsDir },
		set:   func(c *Config, v string) error { c.ToolchainsDir = v; return nil },
		unset: func(c *Config) { c.ToolchainsDir = "" },
	},
	"mirror": {
		get:   func(c *Config) string { return c.Mirror },
		set:   func(c *Config, v string) error { c.Mirror = v; return nil },
		unset: func(c *Config) { c.Mirror = DefaultMirror },
	},
	"download.retries": {
		get: func(c *Config) string { return strconv.Itoa(c.Download.Retries) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("download.retries must be an integer")
			}
			c.Download.Retries = n
			return nil
		},
		unset: func(c *Config) { c.Download.Retries = Default().Download.Retries },
	},
	"download.timeout_s": {
		get: func(c *Config) string { return strconv.Itoa(c.Download.TimeoutSec) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("download.timeout_s must be an integer")
			}
			c.Download.TimeoutSec = n
			return nil
		},
		unset: func(c *Config) { c.Download.TimeoutSec = Default().Download.TimeoutSec },
	},
}

// Keys lists the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the string form of key.
func (c Config) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", unknownKey(key)
	}
	return f.get(&c), nil
}

// Set parses value into key and validates the result.
func (c *Config) Set(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return unknownKey(key)
	}
	next := *c
	if err := f.set(&next, strings.TrimSpace(value)); err != nil {
		return err
	}
	if errs := next.Validate().Errors(); len(errs) > 0 {
		return errs[0]
	}
	*c = next
	return nil
}

// Unset restores key to its default.
func (c *Config) Unset(key string) error {
	f, ok := fields[key]
	if !ok {
		return unknownKey(key)
	}
	f.unset(c)
	return nil
}

func unknownKey(key string) error {
	return fmt.Errorf("unknown config key %q (known keys: %s)", key, strings.Join(Keys(), ", "))
}
