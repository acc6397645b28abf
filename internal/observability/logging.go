// Package observability provides the process-wide loggers.
//
// Two logging profiles exist: "cli" emits human-readable console
// output for interactive commands, "structured" emits JSON for
// services and log pipelines.
package observability

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the logger used by CLI commands. It defaults to a no-op
// logger until InitLogging runs, so library consumers and tests that
// never initialize logging stay silent.
var CLILogger = zap.NewNop()

// ServerLogger is the logger used by the HTTP server and the
// orchestrator. Same initialization contract as CLILogger.
var ServerLogger = zap.NewNop()

// InitLogging builds the process loggers for the given level and
// profile and installs them in the package variables.
func InitLogging(level, profile string) error {
	lvl, err := parseLevel(level)
	if err != nil {
		return err
	}

	var cfg zap.Config
	switch strings.ToLower(profile) {
	case "", "structured":
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	case "cli":
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	default:
		return fmt.Errorf("unknown logging profile: %s", profile)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	CLILogger = logger
	ServerLogger = logger
	return nil
}

// Sync flushes any buffered log entries. Called on process exit.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}

func parseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(level) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level: %s", level)
	}
}
