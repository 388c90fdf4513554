/*
Package logging wraps zap's SugaredLogger behind a small house API.

PURPOSE:
  One structured logger for every long-lived component: the HTTP server,
  the re-analysis scheduler, and anything else that runs outside a
  request. The reconciliation core never logs - its transforms return
  warnings as values and the caller decides what to do with them; this
  package is where those warnings end up.

MODES:
  "dev"  (default): human-readable console output, debug level
  "prod":           JSON output for log aggregation

USAGE:
  log, err := logging.New("dev")
  defer log.Sync()
  log.Info("analysis complete", "account", accountID, "atRisk", n)

SEE ALSO:
  - api/scheduler.go: Primary consumer
  - cmd/server/main.go: Construction
*/
package logging

import (
	"strings"

	"go.uber.org/zap"
)

// Logger is the house logging handle. Key/value pairs, never format strings.
type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a Logger for the given mode ("dev" or "prod").
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: zl.Sugar()}, nil
}

// NewNop returns a logger that discards everything, for tests.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Sync flushes buffered entries. Call on shutdown.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, keysAndValues...)
}

func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, keysAndValues...)
}

func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
}

func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.sugar.Fatalw(msg, keysAndValues...)
}

// With returns a child logger carrying the given fields on every entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...)}
}
