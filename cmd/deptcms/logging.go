package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"deptcms/internal/config"
)

const (
	logLevelEnvKey  = "DEPTCMS_LOG_LEVEL"
	logFormatEnvKey = "DEPTCMS_LOG_FORMAT"
)

// configureLoggerForCLI installs the default slog logger. The level comes from
// the flag, then the env, then the config file. A bad flag is an error; a bad
// env or config value falls back to the default level with a warning.
func configureLoggerForCLI(flagLevel, configLevel string) (string, error) {
	envLevel := os.Getenv(logLevelEnvKey)
	raw, source := selectedLogLevel(flagLevel, envLevel, configLevel)

	level, err := parseLogLevel(raw)
	var warning string
	if err != nil {
		switch source {
		case "flag":
			return "", fmt.Errorf("invalid --log-level %q", flagLevel)
		case "env":
			warning = fmt.Sprintf("warning: invalid %s=%q; defaulting to %s", logLevelEnvKey, envLevel, config.DefaultLogLevel)
		case "config":
			warning = fmt.Sprintf("warning: invalid log_level=%q; defaulting to %s", configLevel, config.DefaultLogLevel)
		}
		level, _ = parseLogLevel("")
	}

	slog.SetDefault(newLogger(os.Stderr, level, os.Getenv(logFormatEnvKey)))
	return warning, nil
}

func selectedLogLevel(flagLevel, envLevel, configLevel string) (string, string) {
	for _, candidate := range []struct{ raw, source string }{
		{flagLevel, "flag"},
		{envLevel, "env"},
		{configLevel, "config"},
	} {
		if strings.TrimSpace(candidate.raw) != "" {
			return candidate.raw, candidate.source
		}
	}
	return "", "default"
}

func parseLogLevel(raw string) (slog.Level, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch value {
	case "":
		value = config.DefaultLogLevel
	case "warning":
		value = "warn"
	}
	if numeric, err := strconv.Atoi(value); err == nil {
		return slog.Level(numeric), nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(value)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", raw)
	}
	return level, nil
}

// newLogger writes text records unless format is "json".
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
