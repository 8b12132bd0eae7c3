// Package logging builds the zap logger shared by the service, the HTTP API,
// and the CLI.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls level, encoding, and optional file rotation.
type Config struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json or console
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// New returns a logger writing to stderr and, when cfg.File is set, to a
// rotating file. The returned close func flushes and releases the file.
func New(cfg Config) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(strings.TrimSpace(cfg.Level))
	if err != nil && cfg.Level != "" {
		return nil, nil, fmt.Errorf("logging level %q: %w", cfg.Level, err)
	}
	if cfg.Level == "" {
		level = zapcore.InfoLevel
	}

	var encCfg zapcore.EncoderConfig
	var enc zapcore.Encoder
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		encCfg = zap.NewProductionEncoderConfig()
		encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(encCfg)
	case "console":
		encCfg = zap.NewDevelopmentEncoderConfig()
		enc = zapcore.NewConsoleEncoder(encCfg)
	default:
		return nil, nil, fmt.Errorf("logging format %q: want json or console", cfg.Format)
	}

	cores := []zapcore.Core{zapcore.NewCore(enc, zapcore.Lock(os.Stderr), level)}
	closeFile := func() error { return nil }
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		rotator := newRotator(cfg)
		// files always get JSON so they stay machine readable
		fileEnc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(fileEnc, zapcore.AddSync(rotator), level))
		closeFile = rotator.Close
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	closer := func() error {
		_ = logger.Sync()
		return closeFile()
	}
	return logger, closer, nil
}

func newRotator(cfg Config) *lumberjack.Logger {
	size := cfg.MaxSizeMB
	if size <= 0 {
		size = 100
	}
	return &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    size,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
}
