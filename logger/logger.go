// Package logger holds the process-wide zap logger.
package logger

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logMu sync.RWMutex
	log   *zap.Logger
	sugar *zap.SugaredLogger
)

// Options configures Init.
type Options struct {
	// Development switches to the console encoder with stack traces on warn.
	Development bool `json:"development" yaml:"development"`
	// Level is a zap level name ("debug", "info", ...). Empty keeps the
	// preset's default.
	Level string `json:"level" yaml:"level"`

	// File, when set, also writes JSON entries to a size-rotated file.
	File       string `json:"file" yaml:"file"`
	MaxSizeMB  int    `json:"maxSizeMB" yaml:"max_size_mb"`
	MaxBackups int    `json:"maxBackups" yaml:"max_backups"`
	MaxAgeDays int    `json:"maxAgeDays" yaml:"max_age_days"`
	Compress   bool   `json:"compress" yaml:"compress"`
}

// rotatingWriter returns the file sink for opts, defaulting to 100 MB files
// kept for 7 days with 7 backups.
func rotatingWriter(opts Options) zapcore.WriteSyncer {
	lj := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     7,
		Compress:   opts.Compress,
	}
	if opts.MaxSizeMB > 0 {
		lj.MaxSize = opts.MaxSizeMB
	}
	if opts.MaxBackups > 0 {
		lj.MaxBackups = opts.MaxBackups
	}
	if opts.MaxAgeDays > 0 {
		lj.MaxAge = opts.MaxAgeDays
	}
	return zapcore.AddSync(lj)
}

// Init builds a logger from opts and installs it.
func Init(opts Options) error {
	cfg := zap.NewProductionConfig()
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	if opts.Level != "" {
		level, err := zap.ParseAtomicLevel(opts.Level)
		if err != nil {
			return errors.Wrapf(err, "parse log level %q", opts.Level)
		}
		cfg.Level = level
	}

	var buildOpts []zap.Option
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return errors.Wrap(err, "create log directory")
		}
		fileCore := zapcore.NewCore(zapcore.NewJSONEncoder(cfg.EncoderConfig), rotatingWriter(opts), cfg.Level)
		buildOpts = append(buildOpts, zap.WrapCore(func(c zapcore.Core) zapcore.Core {
			return zapcore.NewTee(c, fileCore)
		}))
	}

	l, err := cfg.Build(buildOpts...)
	if err != nil {
		return errors.Wrap(err, "build logger")
	}
	Set(l)
	return nil
}

// InitProduction installs a JSON production logger.
func InitProduction() error {
	return Init(Options{})
}

// InitDevelopment installs a console logger for local runs.
func InitDevelopment() error {
	return Init(Options{Development: true})
}

// Set installs l as the package logger and the zap globals, flushing the
// logger it replaces.
func Set(l *zap.Logger) {
	logMu.Lock()
	defer logMu.Unlock()

	zap.ReplaceGlobals(l)
	if log != nil {
		_ = log.Sync()
	}
	log = l
	sugar = l.Sugar()
}

// Log returns the installed logger, or the zap global (a no-op until
// replaced) when none is installed. Never nil.
func Log() *zap.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		return log
	}
	return zap.L()
}

// S returns the sugared form of Log.
func S() *zap.SugaredLogger {
	logMu.RLock()
	defer logMu.RUnlock()
	if sugar != nil {
		return sugar
	}
	return zap.S()
}

// Named returns a child of Log with the given name.
func Named(name string) *zap.Logger {
	return Log().Named(name)
}

// Sync flushes buffered entries.
func Sync() {
	logMu.RLock()
	defer logMu.RUnlock()
	if log != nil {
		_ = log.Sync()
	}
}
