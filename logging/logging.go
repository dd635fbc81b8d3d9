// Package logging builds the process-wide zap logger.
package logging

import (
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	EnvLogLevel  = "MINIDAP_LOG_LEVEL"
	EnvLogFormat = "MINIDAP_LOG_FORMAT" // json or console
)

type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
)

var (
	configureOnce sync.Once
	logger        = zap.NewNop()
	level         = zap.NewAtomicLevel()
)

func ConfigureRuntime() *zap.Logger {
	return Configure(ProfileRuntime)
}

func ConfigureTests() *zap.Logger {
	return Configure(ProfileTest)
}

// Configure builds the logger for profile on the first call and installs it
// as zap's global logger. Later calls return the same logger.
func Configure(profile Profile) *zap.Logger {
	configureOnce.Do(func() {
		cfg := defaultConfig(profile)
		applyEnvOverrides(&cfg)
		l, err := cfg.Build()
		if err != nil {
			// only reachable with a broken output path
			l = zap.NewExample()
		}
		logger = l
		zap.ReplaceGlobals(l)
	})
	return logger
}

// SetLevel changes the level of the configured logger at runtime.
func SetLevel(raw string) error {
	lvl, ok := parseLevel(raw)
	if !ok {
		return errors.Errorf("unknown log level %q", raw)
	}
	level.SetLevel(lvl)
	return nil
}

func defaultConfig(profile Profile) zap.Config {
	var cfg zap.Config
	switch profile {
	case ProfileTest:
		cfg = zap.NewDevelopmentConfig()
		level.SetLevel(zapcore.DebugLevel)
	default:
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		level.SetLevel(zapcore.InfoLevel)
	}
	cfg.Level = level
	return cfg
}

func applyEnvOverrides(cfg *zap.Config) {
	if lvl, ok := parseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level.SetLevel(lvl)
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvLogFormat))) {
	case "json":
		cfg.Encoding = "json"
	case "console", "text":
		cfg.Encoding = "console"
	}
}

func parseLevel(raw string) (zapcore.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
		return zapcore.DebugLevel, true
	case "info":
		return zapcore.InfoLevel, true
	case "warn", "warning":
		return zapcore.WarnLevel, true
	case "error":
		return zapcore.ErrorLevel, true
	case "fatal":
		return zapcore.FatalLevel, true
	default:
		return zapcore.InfoLevel, false
	}
}
