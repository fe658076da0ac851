// Package logger builds the structured loggers used throughout ignite.
// Every subsystem receives a *zap.SugaredLogger scoped to its service
// name instead of reaching for a global logger, so log lines from the
// storage, recovery, and compaction subsystems can be told apart.
package logger

import (
	"go.uber.org/zap"
)

// New builds a production zap logger scoped to service and returns its
// sugared form, which is what every ignite subsystem's Config expects.
// Falls back to a no-op logger if zap's production config fails to
// build (e.g. stdout is not writable), since a missing logger should
// never prevent the store from opening.
func New(service string) *zap.SugaredLogger {
	base, err := zap.NewProduction()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Named(service).Sugar()
}

// NewDevelopment builds a human-readable, non-sampled logger suitable
// for tests and local CLI usage.
func NewDevelopment(service string) *zap.SugaredLogger {
	base, err := zap.NewDevelopment()
	if err != nil {
		base = zap.NewNop()
	}
	return base.Named(service).Sugar()
}

// Nop returns a logger that discards everything. The test suites use it
// to keep their output clean.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
