// Package logging builds the zerolog loggers used by framepipe binaries and
// tests. Library packages never log through a global; they receive a
// zerolog.Logger from their caller.
package logging

import (
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	EnvLogLevel     = "FRAMEPIPE_LOG_LEVEL"
	EnvLogTimestamp = "FRAMEPIPE_LOG_TIMESTAMP"
	EnvLogNoColor   = "FRAMEPIPE_LOG_NOCOLOR"
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

// Config describes how a logger renders.
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
}

func DefaultConfig(profile Profile) Config {
	switch profile {
	case ProfileTest:
		return Config{Level: zerolog.DebugLevel, NoColor: true}
	default:
		return Config{Level: zerolog.InfoLevel, Timestamp: true}
	}
}

// New returns a console logger writing to w, configured for profile and then
// adjusted by the FRAMEPIPE_LOG_* environment variables.
func New(profile Profile, w io.Writer, app string) zerolog.Logger {
	cfg := DefaultConfig(profile)
	ApplyEnv(&cfg)
	return Build(cfg, w, app)
}

// Build returns a console logger for an explicit configuration.
func Build(cfg Config, w io.Writer, app string) zerolog.Logger {
	output := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    cfg.NoColor,
		TimeFormat: time.RFC3339,
	}
	if !cfg.Timestamp {
		output.PartsExclude = []string{zerolog.TimestampFieldName}
	}

	ctx := zerolog.New(output).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	if app != "" {
		ctx = ctx.Str("app", app)
	}
	return ctx.Logger()
}

// Stderr is the runtime logger for binaries.
func Stderr(app string) zerolog.Logger {
	return New(ProfileRuntime, os.Stderr, app)
}

func ApplyEnv(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// levels maps every accepted level name to its zerolog level. The config
// schema enumerates the same names.
var levels = map[string]zerolog.Level{
	"trace":    zerolog.TraceLevel,
	"debug":    zerolog.DebugLevel,
	"info":     zerolog.InfoLevel,
	"warn":     zerolog.WarnLevel,
	"warning":  zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"disabled": zerolog.Disabled,
	"disable":  zerolog.Disabled,
	"off":      zerolog.Disabled,
	"none":     zerolog.Disabled,
}

// ParseLevel maps a level name to a zerolog level. The second result is
// false for an empty or unknown name.
func ParseLevel(raw string) (zerolog.Level, bool) {
	lvl, ok := levels[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return zerolog.InfoLevel, false
	}
	return lvl, true
}

// LevelNames returns the accepted level names in sorted order
func LevelNames() []string {
	names := make([]string, 0, len(levels))
	for name := range levels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
