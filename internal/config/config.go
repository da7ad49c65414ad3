// Package config loads the framepipe command's TOML configuration.
package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xeipuuv/gojsonschema"

	"github.com/machinefabric/framepipe-go/frame"
	"github.com/machinefabric/framepipe-go/internal/logging"
)

// EnvConfig names the config file when no path is given
const EnvConfig = "FRAMEPIPE_CONFIG"

//go:embed schema.json
var schemaJSON []byte

type Config struct {
	Limits LimitsConfig `toml:"limits"`
	Log    LogConfig    `toml:"log"`
	FIFO   FIFOConfig   `toml:"fifo"`
}

type LimitsConfig struct {
	// MaxMessage caps payload sizes in bytes. 0 means unlimited.
	MaxMessage uint64 `toml:"max_message"`
}

// LogConfig fields left unset keep the logging package defaults.
type LogConfig struct {
	Level     string `toml:"level"`
	Timestamp *bool  `toml:"timestamp"`
	NoColor   *bool  `toml:"no_color"`
}

type FIFOConfig struct {
	Dir    string `toml:"dir"`
	Prefix string `toml:"prefix"`
}

// ValidationError lists every schema violation found in a config file
type ValidationError struct {
	Path    string
	Details []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed (%s): %s", e.Path, strings.Join(e.Details, "; "))
}

func Default() Config {
	return Config{
		Limits: LimitsConfig{MaxMessage: frame.DefaultLimits().MaxMessage},
		FIFO:   FIFOConfig{Prefix: "framepipe"},
	}
}

// Load reads path, or the file named by FRAMEPIPE_CONFIG when path is
// empty. With neither it returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		path = strings.TrimSpace(os.Getenv(EnvConfig))
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	return Parse(path, data)
}

// Parse validates data against the config schema and decodes it over the
// defaults. path is only used in error messages.
func Parse(path string, data []byte) (Config, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if err := validate(path, raw); err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return cfg, nil
}

func validate(path string, raw map[string]any) error {
	if raw == nil {
		raw = map[string]any{}
	}
	// gojsonschema works on JSON documents; TOML tables map onto them directly.
	document, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("config encode failed (%s): %w", path, err)
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schemaJSON),
		gojsonschema.NewBytesLoader(document),
	)
	if err != nil {
		return fmt.Errorf("config schema failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return &ValidationError{Path: path, Details: details}
}

// FrameLimits returns the limits registries should enforce
func (c Config) FrameLimits() frame.Limits {
	return frame.Limits{MaxMessage: c.Limits.MaxMessage}
}

// Logging merges the file's log settings over the runtime profile. The
// FRAMEPIPE_LOG_* environment variables still take precedence.
func (c Config) Logging() logging.Config {
	cfg := logging.DefaultConfig(logging.ProfileRuntime)
	if lvl, ok := logging.ParseLevel(c.Log.Level); ok {
		cfg.Level = lvl
	}
	if c.Log.Timestamp != nil {
		cfg.Timestamp = *c.Log.Timestamp
	}
	if c.Log.NoColor != nil {
		cfg.NoColor = *c.Log.NoColor
	}
	logging.ApplyEnv(&cfg)
	return cfg
}
