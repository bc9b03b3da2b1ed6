// Package config manages the qcat CLI configuration and the .qcat directory.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

const (
	QCatDir    = ".qcat"
	ConfigFile = "config"

	// DefaultPageSize is the number of pairs shown per page.
	DefaultPageSize = 20

	// EnvToken overrides the configured API token when set.
	EnvToken = "QCAT_TOKEN"
)

// ErrNotInitialized is returned when no .qcat directory is found.
var ErrNotInitialized = errors.New("not a qcat workspace (or any parent up to root); run 'qcat init'")

// Config represents the qcat CLI configuration.
type Config struct {
	ServerURL string `toml:"server_url"`
	Token     string `toml:"token,omitempty"`
	PageSize  int    `toml:"page_size"`
	path      string // path to .qcat directory
}

// FindRoot finds the .qcat directory by walking up from dir.
func FindRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, QCatDir)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", ErrNotInitialized
		}
		dir = parent
	}
}

// Load reads the configuration found from the working directory.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	return LoadFrom(cwd)
}

// LoadFrom reads the configuration found by walking up from dir and applies
// defaults and the environment override.
func LoadFrom(dir string) (*Config, error) {
	root, err := FindRoot(dir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(root, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.path = root

	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if tok := os.Getenv(EnvToken); tok != "" {
		cfg.Token = tok
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that the configuration can be used to reach a server.
func (c *Config) Validate() error {
	if c.ServerURL == "" {
		return fmt.Errorf("server_url is not set")
	}
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("server_url %q must be an http(s) URL", c.ServerURL)
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page_size must be positive, got %d", c.PageSize)
	}
	return nil
}

// Save writes the configuration to disk. The file may hold a token, so it
// is readable by the owner only.
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.path, ConfigFile), data, 0600)
}

// Path returns the path to the .qcat directory.
func (c *Config) Path() string {
	return c.path
}

// Initialize creates a .qcat directory in dir pointing at serverURL.
func Initialize(dir, serverURL, token string) (*Config, error) {
	root := filepath.Join(dir, QCatDir)
	if _, err := os.Stat(root); err == nil {
		return nil, fmt.Errorf("qcat workspace already exists at %s", root)
	}

	cfg := &Config{
		ServerURL: strings.TrimRight(serverURL, "/"),
		Token:     token,
		PageSize:  DefaultPageSize,
		path:      root,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create %s directory: %w", QCatDir, err)
	}
	if err := cfg.Save(); err != nil {
		os.RemoveAll(root)
		return nil, err
	}
	return cfg, nil
}
