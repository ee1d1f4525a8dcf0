// Package config loads volume-patrol configuration from file and environment.
//
// Precedence (highest to lowest):
//  1. Environment variables (VOLUME_PATROL_*)
//  2. Config file
//  3. Built-in defaults
//
// Config file search order:
//  1. .volume-patrol.yaml in current directory
//  2. ~/.config/volume-patrol/config.yaml
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/timvw/volume-patrol/internal/audio"
	"github.com/timvw/volume-patrol/internal/model"
)

// Config holds all volume-patrol configuration.
type Config struct {
	// Provider settings
	Provider string `yaml:"provider"` // "scenario", "malgo" or "" for auto-detect
	Scenario string `yaml:"scenario"` // Topology file for the scenario provider

	// Registry settings
	Direction     string   `yaml:"direction"`    // "render", "capture" or "both"
	DefaultRole   string   `yaml:"default_role"` // "console", "multimedia" or "communications"
	HiddenNames   []string `yaml:"hidden_names"`
	CaseSensitive bool     `yaml:"case_sensitive"`

	// Selection
	Target                     string `yaml:"target"` // Identity the session selector starts on
	LockCurrentOnLockSelection *bool  `yaml:"lock_current_on_lock_selection"`

	// Actions
	VolumeStep int `yaml:"volume_step"` // Percent per volume up/down

	// Refresh
	Refresh string `yaml:"refresh"` // Go duration string, e.g. "2s"

	// Hotkey command socket
	EventSocket string `yaml:"event_socket"`

	// OTEL
	OTELEndpoint string `yaml:"otel_endpoint"`
	OTELHeaders  string `yaml:"otel_headers"` // Comma-separated key=value pairs, e.g. "Authorization=Basic abc123"

	// MQTT
	MQTTBroker string `yaml:"mqtt_broker"` // e.g. "tcp://localhost:1883"
	MQTTTopic  string `yaml:"mqtt_topic"`

	// Parsed durations (not from YAML, set after loading)
	RefreshDuration time.Duration `yaml:"-"`

	// ConfigFile is the path to the config file that was loaded (empty if none).
	ConfigFile string `yaml:"-"`
}

// Defaults returns a Config with all default values.
func Defaults() *Config {
	lock := true
	return &Config{
		Direction:                  "render",
		DefaultRole:                "multimedia",
		VolumeStep:                 2,
		LockCurrentOnLockSelection: &lock,
		Refresh:                    "2s",
		MQTTTopic:                  "volume-patrol",
	}
}

// Load reads configuration from file and environment variables.
// Environment variables always override file values.
func Load() (*Config, error) {
	cfg := Defaults()

	// Try to load config file
	if path, data, err := findConfigFile(); err == nil {
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
		mergeFile(cfg, &fileCfg)
	}

	// Environment variables override everything
	mergeEnv(cfg)

	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// finish parses durations and validates enum fields.
func (c *Config) finish() error {
	var err error
	c.RefreshDuration, err = parseDurationOrDisable(c.Refresh, 2*time.Second)
	if err != nil {
		return fmt.Errorf("invalid refresh interval %q: %w", c.Refresh, err)
	}
	if _, err := c.DirectionFilter(); err != nil {
		return err
	}
	if _, err := c.Role(); err != nil {
		return err
	}
	if c.VolumeStep <= 0 || c.VolumeStep > 100 {
		return fmt.Errorf("invalid volume step %d (must be 1-100)", c.VolumeStep)
	}
	return nil
}

// DirectionFilter parses the configured direction.
func (c *Config) DirectionFilter() (model.DirectionFilter, error) {
	return model.ParseDirectionFilter(c.Direction)
}

// Role parses the configured default-device role.
func (c *Config) Role() (model.Role, error) {
	return model.ParseRole(c.DefaultRole)
}

// HiddenNameSet builds the change-notifying hidden-name set.
func (c *Config) HiddenNameSet() *audio.NameSet {
	if c.CaseSensitive {
		return audio.NewCaseSensitiveNameSet(c.HiddenNames...)
	}
	return audio.NewNameSet(c.HiddenNames...)
}

// LockCurrentIndexOnLockSelection reports the multi-selector cursor policy.
func (c *Config) LockCurrentIndexOnLockSelection() bool {
	return c.LockCurrentOnLockSelection == nil || *c.LockCurrentOnLockSelection
}

// findConfigFile searches for a config file and returns its path and contents.
func findConfigFile() (string, []byte, error) {
	// 1. Current directory
	if data, err := os.ReadFile(".volume-patrol.yaml"); err == nil {
		return ".volume-patrol.yaml", data, nil
	}

	// 2. XDG config dir / ~/.config
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "volume-patrol", "config.yaml")
		if data, err := os.ReadFile(path); err == nil {
			return path, data, nil
		}
	}

	return "", nil, fmt.Errorf("no config file found")
}

// mergeFile applies non-zero file values onto cfg.
func mergeFile(cfg *Config, file *Config) {
	if file.Provider != "" {
		cfg.Provider = file.Provider
	}
	if file.Scenario != "" {
		cfg.Scenario = file.Scenario
	}
	if file.Direction != "" {
		cfg.Direction = file.Direction
	}
	if file.DefaultRole != "" {
		cfg.DefaultRole = file.DefaultRole
	}
	if len(file.HiddenNames) > 0 {
		cfg.HiddenNames = file.HiddenNames
	}
	if file.CaseSensitive {
		cfg.CaseSensitive = true
	}
	if file.Target != "" {
		cfg.Target = file.Target
	}
	if file.LockCurrentOnLockSelection != nil {
		cfg.LockCurrentOnLockSelection = file.LockCurrentOnLockSelection
	}
	if file.VolumeStep > 0 {
		cfg.VolumeStep = file.VolumeStep
	}
	if file.Refresh != "" {
		cfg.Refresh = file.Refresh
	}
	if file.EventSocket != "" {
		cfg.EventSocket = file.EventSocket
	}
	if file.OTELEndpoint != "" {
		cfg.OTELEndpoint = file.OTELEndpoint
	}
	if file.OTELHeaders != "" {
		cfg.OTELHeaders = file.OTELHeaders
	}
	if file.MQTTBroker != "" {
		cfg.MQTTBroker = file.MQTTBroker
	}
	if file.MQTTTopic != "" {
		cfg.MQTTTopic = file.MQTTTopic
	}
}

// mergeEnv applies environment variables onto cfg. Env always wins.
func mergeEnv(cfg *Config) {
	if v := os.Getenv("VOLUME_PATROL_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("VOLUME_PATROL_SCENARIO"); v != "" {
		cfg.Scenario = v
	}
	if v := os.Getenv("VOLUME_PATROL_DIRECTION"); v != "" {
		cfg.Direction = v
	}
	if v := os.Getenv("VOLUME_PATROL_DEFAULT_ROLE"); v != "" {
		cfg.DefaultRole = v
	}
	if v := os.Getenv("VOLUME_PATROL_HIDDEN_NAMES"); v != "" {
		cfg.HiddenNames = splitList(v)
	}
	if v := os.Getenv("VOLUME_PATROL_CASE_SENSITIVE"); v == "true" || v == "1" {
		cfg.CaseSensitive = true
	}
	if v := os.Getenv("VOLUME_PATROL_TARGET"); v != "" {
		cfg.Target = v
	}
	if v := os.Getenv("VOLUME_PATROL_VOLUME_STEP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.VolumeStep = n
		}
	}
	if v := os.Getenv("VOLUME_PATROL_REFRESH"); v != "" {
		cfg.Refresh = v
	}
	if v := os.Getenv("VOLUME_PATROL_EVENT_SOCKET"); v != "" {
		cfg.EventSocket = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.OTELEndpoint = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"); v != "" {
		cfg.OTELHeaders = v
	}
	if v := os.Getenv("VOLUME_PATROL_MQTT_BROKER"); v != "" {
		cfg.MQTTBroker = v
	}
	if v := os.Getenv("VOLUME_PATROL_MQTT_TOPIC"); v != "" {
		cfg.MQTTTopic = v
	}
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseDurationOrDisable parses a duration string. "0", "off", "disable" return 0.
// Empty string returns the fallback value.
func parseDurationOrDisable(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	if s == "0" || s == "off" || s == "disable" {
		return 0, nil
	}
	return time.ParseDuration(s)
}
