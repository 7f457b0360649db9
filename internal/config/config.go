// Package config handles the ~/.medcouncil directory and config.yaml. The
// file is created with commented defaults on first run so users can point the
// client at their own backend without reading docs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AppDirName is the per-user directory holding config and logs.
	AppDirName = ".medcouncil"

	// BackendURLEnv overrides backend.base_url when set.
	BackendURLEnv = "MEDCOUNCIL_BACKEND_URL"

	defaultBackendURL  = "http://localhost:8000"
	defaultModel       = "gpt-4o-mini"
	defaultPollSeconds = 2
)

const defaultConfigYAML = `# medcouncil client configuration
version: 1

backend:
  # Consultation service base URL. MEDCOUNCIL_BACKEND_URL overrides this.
  base_url: http://localhost:8000
  # Model name forwarded with each consultation request.
  model: gpt-4o-mini
  # Seconds between progress polls.
  poll_interval_seconds: 2

# Questions offered in the picker. Selecting one replaces the current input.
example_questions:
  - 我最近经常头痛，尤其是早上起床后，已经持续两周，应该怎么办？
  - 孩子发烧38.5度三天了，伴有咳嗽，需要去医院吗？
  - 体检发现血压150/95，平时没有明显不适，需要吃药吗？
  - 胃部隐痛半年，饭后加重，最近体重有所下降，可能是什么问题？
`

// BackendConfig captures how to reach the consultation service.
type BackendConfig struct {
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
}

// FileConfig models config.yaml.
type FileConfig struct {
	Version          int           `yaml:"version"`
	Backend          BackendConfig `yaml:"backend"`
	ExampleQuestions []string      `yaml:"example_questions"`
}

// Config is the resolved runtime configuration.
type Config struct {
	// AppDir is the resolved ~/.medcouncil (or an explicit override).
	AppDir string

	File FileConfig
}

// Load resolves configuration from appDir, writing the default file when none
// exists. An empty appDir means ~/.medcouncil.
func Load(appDir string) (*Config, error) {
	dir, err := resolveAppDir(appDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("config: ensure app dir: %w", err)
	}
	cfg := &Config{AppDir: dir, File: defaultFileConfig()}
	if err := cfg.loadFile(); err != nil {
		return nil, err
	}
	cfg.applyEnv()
	return cfg, nil
}

// ConfigPath returns the on-disk location of config.yaml.
func (c *Config) ConfigPath() string {
	return filepath.Join(c.AppDir, "config.yaml")
}

// LogPath returns the journal location.
func (c *Config) LogPath() string {
	return filepath.Join(c.AppDir, "logs", "medcouncil.log")
}

// BackendURL returns the resolved backend base URL.
func (c *Config) BackendURL() string {
	return c.File.Backend.BaseURL
}

// Model returns the model name to request consultations with.
func (c *Config) Model() string {
	return c.File.Backend.Model
}

// PollInterval returns the progress poll cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.File.Backend.PollIntervalSeconds) * time.Second
}

// ExampleQuestions returns the configured picker entries.
func (c *Config) ExampleQuestions() []string {
	return c.File.ExampleQuestions
}

func (c *Config) loadFile() error {
	path := c.ConfigPath()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}

	var parsed FileConfig
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	parsed.applyDefaults()
	if err := parsed.validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	c.File = parsed
	return nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(BackendURLEnv)); v != "" {
		c.File.Backend.BaseURL = v
	}
}

func defaultFileConfig() FileConfig {
	return FileConfig{
		Version: 1,
		Backend: BackendConfig{
			BaseURL:             defaultBackendURL,
			Model:               defaultModel,
			PollIntervalSeconds: defaultPollSeconds,
		},
		ExampleQuestions: []string{
			"我最近经常头痛，尤其是早上起床后，已经持续两周，应该怎么办？",
			"孩子发烧38.5度三天了，伴有咳嗽，需要去医院吗？",
			"体检发现血压150/95，平时没有明显不适，需要吃药吗？",
			"胃部隐痛半年，饭后加重，最近体重有所下降，可能是什么问题？",
		},
	}
}

func (fc *FileConfig) applyDefaults() {
	if fc.Version == 0 {
		fc.Version = 1
	}
	fc.Backend.BaseURL = strings.TrimSpace(fc.Backend.BaseURL)
	if fc.Backend.BaseURL == "" {
		fc.Backend.BaseURL = defaultBackendURL
	}
	fc.Backend.Model = strings.TrimSpace(fc.Backend.Model)
	if fc.Backend.Model == "" {
		fc.Backend.Model = defaultModel
	}
	if fc.Backend.PollIntervalSeconds <= 0 {
		fc.Backend.PollIntervalSeconds = defaultPollSeconds
	}
	if len(fc.ExampleQuestions) == 0 {
		fc.ExampleQuestions = defaultFileConfig().ExampleQuestions
	}
}

func (fc FileConfig) validate() error {
	if fc.Version < 1 {
		return fmt.Errorf("version must be >= 1")
	}
	if !strings.HasPrefix(fc.Backend.BaseURL, "http://") &&
		!strings.HasPrefix(fc.Backend.BaseURL, "https://") {
		return fmt.Errorf("backend.base_url must be an http(s) URL")
	}
	for i, q := range fc.ExampleQuestions {
		if strings.TrimSpace(q) == "" {
			return fmt.Errorf("example_questions[%d] is empty", i)
		}
	}
	return nil
}

func resolveAppDir(appDir string) (string, error) {
	trimmed := strings.TrimSpace(appDir)
	if trimmed != "" {
		abs, err := filepath.Abs(trimmed)
		if err != nil {
			return "", fmt.Errorf("config: resolve app dir: %w", err)
		}
		return abs, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: locate home directory: %w", err)
	}
	return filepath.Join(home, AppDirName), nil
}
