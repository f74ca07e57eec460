// Package config holds the immutable runtime configuration for the agent.
// Values are resolved once at startup (defaults, then an optional YAML file,
// then environment) and passed by value to every component.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envAPIKey      = "ANTHROPIC_API_KEY"
	envModel       = "ANTHROPIC_MODEL"
	envHeadless    = "BROWSERPILOT_HEADLESS"
	envMaxActions  = "BROWSERPILOT_MAX_ACTIONS"
	envMaxRetries  = "BROWSERPILOT_MAX_RETRIES"
	envStoragePath = "BROWSERPILOT_STORAGE_STATE"

	defaultModel = "claude-sonnet-4-5-20250929"
)

// Config is the full configuration surface consumed by the core. It is
// immutable after Load: components receive a copy at construction and never
// observe later changes.
type Config struct {
	// Model service.
	Model       string
	APIKey      string
	MaxTokens   int
	Temperature float64

	// Browser.
	ViewportWidth     int
	ViewportHeight    int
	Headless          bool
	NavigationTimeout time.Duration
	StorageStatePath  string

	// Agent loop budgets.
	MaxActionsPerTask int
	MaxRetries        int

	// Observation.
	PostNavigationWait time.Duration
	ScreenshotQuality  int // JPEG quality, 1-100
}

// Default returns the baseline configuration before any overlay.
func Default() Config {
	return Config{
		Model:              defaultModel,
		MaxTokens:          4096,
		Temperature:        0.2,
		ViewportWidth:      1280,
		ViewportHeight:     800,
		Headless:           true,
		NavigationTimeout:  30 * time.Second,
		MaxActionsPerTask:  50,
		MaxRetries:         3,
		PostNavigationWait: 1500 * time.Millisecond,
		ScreenshotQuality:  80,
	}
}

// Load resolves the configuration: defaults, then the YAML file at path (if
// non-empty), then environment variables.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// fileConfig mirrors Config for YAML overlay; only set keys override.
type fileConfig struct {
	Model              *string  `yaml:"model"`
	MaxTokens          *int     `yaml:"max_tokens"`
	Temperature        *float64 `yaml:"temperature"`
	ViewportWidth      *int     `yaml:"viewport_width"`
	ViewportHeight     *int     `yaml:"viewport_height"`
	Headless           *bool    `yaml:"headless"`
	NavigationTimeout  *string  `yaml:"navigation_timeout"`
	StorageStatePath   *string  `yaml:"storage_state_path"`
	MaxActionsPerTask  *int     `yaml:"max_actions_per_task"`
	MaxRetries         *int     `yaml:"max_retries"`
	PostNavigationWait *string  `yaml:"post_navigation_wait"`
	ScreenshotQuality  *int     `yaml:"screenshot_quality"`
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if fc.Model != nil {
		c.Model = *fc.Model
	}
	if fc.MaxTokens != nil {
		c.MaxTokens = *fc.MaxTokens
	}
	if fc.Temperature != nil {
		c.Temperature = *fc.Temperature
	}
	if fc.ViewportWidth != nil {
		c.ViewportWidth = *fc.ViewportWidth
	}
	if fc.ViewportHeight != nil {
		c.ViewportHeight = *fc.ViewportHeight
	}
	if fc.Headless != nil {
		c.Headless = *fc.Headless
	}
	if fc.NavigationTimeout != nil {
		d, err := time.ParseDuration(*fc.NavigationTimeout)
		if err != nil {
			return fmt.Errorf("navigation_timeout: %w", err)
		}
		c.NavigationTimeout = d
	}
	if fc.StorageStatePath != nil {
		c.StorageStatePath = *fc.StorageStatePath
	}
	if fc.MaxActionsPerTask != nil {
		c.MaxActionsPerTask = *fc.MaxActionsPerTask
	}
	if fc.MaxRetries != nil {
		c.MaxRetries = *fc.MaxRetries
	}
	if fc.PostNavigationWait != nil {
		d, err := time.ParseDuration(*fc.PostNavigationWait)
		if err != nil {
			return fmt.Errorf("post_navigation_wait: %w", err)
		}
		c.PostNavigationWait = d
	}
	if fc.ScreenshotQuality != nil {
		c.ScreenshotQuality = *fc.ScreenshotQuality
	}
	return nil
}

func (c *Config) applyEnv() {
	if key := strings.TrimSpace(os.Getenv(envAPIKey)); key != "" {
		c.APIKey = key
	}
	if model := strings.Trim(strings.TrimSpace(os.Getenv(envModel)), "\"'"); model != "" {
		c.Model = model
	}
	if v := os.Getenv(envHeadless); v != "" {
		c.Headless = parseBool(v, c.Headless)
	}
	if n := parseIntEnv(envMaxActions); n > 0 {
		c.MaxActionsPerTask = n
	}
	if n := parseIntEnv(envMaxRetries); n > 0 {
		c.MaxRetries = n
	}
	if p := strings.TrimSpace(os.Getenv(envStoragePath)); p != "" {
		c.StorageStatePath = p
	}
}

// Validate rejects configurations the components cannot run with.
func (c Config) Validate() error {
	if c.Model == "" {
		return fmt.Errorf("model must not be empty")
	}
	if c.ViewportWidth <= 0 || c.ViewportHeight <= 0 {
		return fmt.Errorf("viewport %dx%d invalid", c.ViewportWidth, c.ViewportHeight)
	}
	if c.MaxActionsPerTask < 1 {
		return fmt.Errorf("max_actions_per_task must be at least 1")
	}
	if c.MaxRetries < 1 {
		return fmt.Errorf("max_retries must be at least 1")
	}
	if c.ScreenshotQuality < 1 || c.ScreenshotQuality > 100 {
		return fmt.Errorf("screenshot_quality %d out of range 1-100", c.ScreenshotQuality)
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be positive")
	}
	return nil
}

func parseBool(val string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}

func parseIntEnv(name string) int {
	val := strings.TrimSpace(os.Getenv(name))
	if val == "" {
		return 0
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0
	}
	return n
}
