// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/pocketchat/internal/util"
)

// Environment variable overrides. These take precedence over the file.
const (
	EnvAPIKey  = "POCKETCHAT_API_KEY"
	EnvBaseURL = "POCKETCHAT_BASE_URL"
	EnvModel   = "POCKETCHAT_MODEL"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete pocketchat configuration.
type Config struct {
	API     APIConfig     `toml:"api"`
	Storage StorageConfig `toml:"storage"`
	Voice   VoiceConfig   `toml:"voice"`
	Session SessionConfig `toml:"session"`
}

// APIConfig configures the chat-completion client.
type APIConfig struct {
	// Key is the bearer credential for the chat-completions endpoint.
	Key string `toml:"key"`
	// BaseURL is the API root, without the /chat/completions suffix.
	BaseURL string `toml:"base_url"`
	// Model is the model identifier sent with each request.
	Model string `toml:"model"`
	// Temperature is the sampling temperature.
	Temperature float64 `toml:"temperature"`
	// MaxTokens caps the completion length.
	MaxTokens int `toml:"max_tokens"`
	// RateLimitPerMin throttles outgoing requests. Zero means unlimited.
	RateLimitPerMin int `toml:"rate_limit_per_min"`
}

// StorageConfig configures conversation persistence.
type StorageConfig struct {
	// Backend selects the store implementation: "json" or "sqlite".
	Backend string `toml:"backend"`
	// Dir is the storage directory (empty = ~/.pocketchat/conversations).
	Dir string `toml:"dir"`
	// MaxConversations limits stored conversations (0 = unlimited).
	MaxConversations int `toml:"max_conversations"`
}

// VoiceConfig configures the voice exchange path.
type VoiceConfig struct {
	// Enabled turns the voice exchange bridge on.
	Enabled bool `toml:"enabled"`
	// SpeakReplies sends assistant replies to the speech synthesizer.
	SpeakReplies bool `toml:"speak_replies"`
}

// SessionConfig configures the orchestration layer.
type SessionConfig struct {
	// AutosaveIntervalSecs is how often dirty conversations are flushed
	// to the store (0 = save only on completion).
	AutosaveIntervalSecs int `toml:"autosave_interval_secs"`
}

// =============================================================================
// DEFAULTS AND PATHS
// =============================================================================

// Default returns a Config with sensible default values. The API key is
// deliberately left empty; it must come from the file or the environment.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:     "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0.7,
			MaxTokens:   1024,
		},
		Storage: StorageConfig{
			Backend:          "json",
			MaxConversations: 100,
		},
		Voice: VoiceConfig{
			Enabled:      false,
			SpeakReplies: true,
		},
		Session: SessionConfig{
			AutosaveIntervalSecs: 30,
		},
	}
}

// Dir returns the pocketchat configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".pocketchat"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the config from the default path, merging file values over
// defaults and environment overrides over both. A missing file is not an
// error; defaults plus environment apply.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the config from an explicit path.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// ApplyEnvOverrides replaces file values with environment values where set.
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv(EnvAPIKey); key != "" {
		c.API.Key = key
	}
	if url := os.Getenv(EnvBaseURL); url != "" {
		c.API.BaseURL = url
	}
	if model := os.Getenv(EnvModel); model != "" {
		c.API.Model = model
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError describes one invalid config field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// placeholderKeys are template values that must not be mistaken for a
// working credential.
var placeholderKeys = map[string]bool{
	"sk-REPLACE-ME": true,
	"YOUR_API_KEY":  true,
	"changeme":      true,
}

// Validate checks the config for values that would fail at request time.
func (c *Config) Validate() error {
	key := strings.TrimSpace(c.API.Key)
	if key == "" {
		return ValidationError{Field: "api.key", Message: "missing API key"}
	}
	if placeholderKeys[key] {
		return ValidationError{Field: "api.key", Message: "placeholder API key, set a real credential"}
	}
	if c.API.BaseURL == "" {
		return ValidationError{Field: "api.base_url", Message: "missing base URL"}
	}
	if c.API.Temperature < 0 || c.API.Temperature > 2 {
		return ValidationError{Field: "api.temperature", Message: "must be between 0 and 2"}
	}
	if c.API.MaxTokens < 0 {
		return ValidationError{Field: "api.max_tokens", Message: "must not be negative"}
	}
	switch c.Storage.Backend {
	case "json", "sqlite":
	default:
		return ValidationError{Field: "storage.backend", Message: "must be \"json\" or \"sqlite\""}
	}
	return nil
}

// =============================================================================
// SAVING
// =============================================================================

// Save writes the config to the default path.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveToPath(cfg, path)
}

// SaveToPath writes the config as TOML to an explicit path. The file is
// written atomically with 0600 permissions because it holds the API key.
func SaveToPath(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return util.AtomicWriteFile(path, buf.Bytes(), 0600)
}
