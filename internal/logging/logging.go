// Package logging builds the zap-backed logr.Logger used by the binaries
// and defines the verbosity levels shared by all packages.
package logging

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Verbosity levels for logger.V(...).
const (
	DEFAULT = 0
	VERBOSE = 3
	DEBUG   = 4
	TRACE   = 5
)

// New returns a JSON logger at the named level. Accepted levels are
// "error", "info", "verbose", "debug", "trace" or a logr verbosity number.
// The returned sync func flushes buffered entries.
func New(level string) (logr.Logger, func() error, error) {
	lvl, err := parseLevel(level)
	if err != nil {
		return logr.Discard(), func() error { return nil }, err
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Sampling = nil
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder

	zl, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return logr.Discard(), func() error { return nil }, fmt.Errorf("build zap logger: %w", err)
	}
	return zapr.NewLogger(zl), zl.Sync, nil
}

// parseLevel maps a level name to the zap level zapr expects: logr V(n) is
// zap level -n.
func parseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	case "verbose":
		return zapcore.Level(-VERBOSE), nil
	case "debug":
		return zapcore.Level(-DEBUG), nil
	case "trace":
		return zapcore.Level(-TRACE), nil
	}
	var v int8
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil || v < 0 {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return zapcore.Level(-v), nil
}

// Fatal calls logger.Error followed by os.Exit(1).
//
// Only for use in main packages.
func Fatal(logger logr.Logger, err error, msg string, keysAndValues ...any) {
	logger.Error(err, msg, keysAndValues...)
	os.Exit(1)
}
