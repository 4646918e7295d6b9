package util

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

type LogOptions struct {
	// info|debug|warn|error
	LogLevel string

	// text|json
	LogFormat string
}

func firstenv(names ...string) string {
	for _, name := range names {
		val := os.Getenv(name)
		if val != "" {
			return val
		}
	}
	return ""
}

// SetupSlog integrates passed in options and env vars.
//
// passing default util.LogOptions{} is ok.
//
// YSERVER_LOG_LEVEL=info|debug|warn|error
//
// YSERVER_LOG_FMT=text|json
func SetupSlog(options LogOptions) (*slog.Logger, error) {
	var hopts slog.HandlerOptions
	hopts.Level = slog.LevelInfo
	if options.LogLevel == "" {
		options.LogLevel = firstenv("YSERVER_LOG_LEVEL", "LOG_LEVEL")
	}
	if options.LogLevel == "" {
		options.LogLevel = "info"
	}
	switch strings.ToLower(options.LogLevel) {
	case "debug":
		hopts.Level = slog.LevelDebug
	case "info":
		hopts.Level = slog.LevelInfo
	case "warn":
		hopts.Level = slog.LevelWarn
	case "error":
		hopts.Level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %#v", options.LogLevel)
	}

	if options.LogFormat == "" {
		options.LogFormat = firstenv("YSERVER_LOG_FMT", "LOG_FMT")
	}
	if options.LogFormat == "" {
		options.LogFormat = "text"
	}

	var handler slog.Handler
	switch strings.ToLower(options.LogFormat) {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, &hopts)
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, &hopts)
	default:
		return nil, fmt.Errorf("invalid log format: %#v", options.LogFormat)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
