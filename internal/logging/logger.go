package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/submission-guard/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ParseLevel maps a configuration string to a zap level, defaulting to info
func ParseLevel(s string) zapcore.Level {
	switch s {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger initializes a logger based on configuration. When logging.file is
// set, entries are written to stdout and to a size-rotated file.
func InitLogger(cfg *config.Config) (*zap.Logger, error) {
	lc := cfg.GetLogging()
	level := ParseLevel(lc.Level)

	var logConfig zap.Config
	if lc.Format == "json" {
		logConfig = zap.NewProductionConfig()
	} else {
		logConfig = zap.NewDevelopmentConfig()
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logConfig.Level = zap.NewAtomicLevelAt(level)

	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if lc.File == "" {
		return logger, nil
	}

	if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   lc.File,
		MaxSize:    lc.MaxSizeMB,
		MaxBackups: lc.MaxBackups,
		MaxAge:     lc.MaxAgeDays,
		Compress:   lc.Compress,
	}

	// The file always gets JSON so it can be shipped without parsing console colours
	fileEncoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	fileCore := zapcore.NewCore(fileEncoder, zapcore.AddSync(rotator), logConfig.Level)

	return logger.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return zapcore.NewTee(c, fileCore)
	})), nil
}

// InitConsoleLogger initializes a console-friendly logger
func InitConsoleLogger(verbose bool, jsonFormat bool) (*zap.Logger, error) {
	var level zapcore.Level
	if verbose {
		level = zapcore.DebugLevel
	} else {
		level = zapcore.InfoLevel
	}

	var logConfig zap.Config
	if jsonFormat {
		logConfig = zap.NewProductionConfig()
	} else {
		logConfig = zap.NewDevelopmentConfig()
		logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	logConfig.Level = zap.NewAtomicLevelAt(level)

	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	return logger, nil
}
