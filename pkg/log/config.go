package log

import (
	"fmt"
	"strings"

	"go.uber.org/zap/zapcore"
)

// Production loggers keep the first samplingInitial entries of a message per
// second, then every samplingThereafter-th.
const (
	samplingInitial    = 100
	samplingThereafter = 100
)

// Settings is the logger section of the application config.
type Settings interface {
	Level() string
	Format() string
	OutputPath() string
	MaxFileSizeMB() int
	MaxFileAgeDays() int
	MaxBackupFiles() int
	IsCompressEnabled() bool
}

// Rotation bounds the files written by lumberjack.
type Rotation struct {
	MaxSizeMB  int
	MaxAgeDays int
	MaxBackups int
	Compress   bool
}

// Config describes one zap logger. Every entry carries Service and Version.
// Production switches to the production encoder, drops caller and stack
// traces and samples repeated entries.
type Config struct {
	Level      string
	Format     string
	OutputPath string
	Rotation   Rotation
	Service    string
	Version    string
	Production bool
}

// NewConfig reads the logger section for the named service.
func NewConfig(s Settings, service, version string, production bool) Config {
	return Config{
		Level:      s.Level(),
		Format:     s.Format(),
		OutputPath: s.OutputPath(),
		Rotation: Rotation{
			MaxSizeMB:  s.MaxFileSizeMB(),
			MaxAgeDays: s.MaxFileAgeDays(),
			MaxBackups: s.MaxBackupFiles(),
			Compress:   s.IsCompressEnabled(),
		},
		Service:    service,
		Version:    version,
		Production: production,
	}
}

// developmentConfig backs the package default logger used before main
// installs the configured one.
func developmentConfig() Config {
	return Config{
		Level:      "debug",
		Format:     "console",
		OutputPath: "stdout",
		Rotation:   Rotation{MaxSizeMB: 100, MaxAgeDays: 30, MaxBackups: 10, Compress: true},
		Service:    "go-payment-service",
	}
}

func (c Config) zapLevel() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(c.Level))
	if err != nil {
		return level, fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}
	return level, nil
}

func (c Config) validate() error {
	if _, err := c.zapLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q, must be 'json' or 'console'", c.Format)
	}
	if c.Rotation.MaxSizeMB <= 0 || c.Rotation.MaxAgeDays <= 0 {
		return fmt.Errorf("rotation size and age must be greater than 0")
	}
	if c.Rotation.MaxBackups < 0 {
		return fmt.Errorf("rotation backups must not be negative")
	}
	return nil
}
