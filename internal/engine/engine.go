// Package engine provides the core database engine implementation for the Ignite storage system.
//
// The engine serves as the central coordinator and entry point for all database operations.
// It orchestrates the interaction between two main subsystems:
//   - Storage: Owns the append-only log, the key directory, and the read/write/delete path
//   - Compaction: Performs background maintenance to reclaim space from stale records
//
// The engine implements a thread-safe interface with proper lifecycle management,
// ensuring resources are properly initialized and cleaned up. It uses atomic operations
// for state management to provide consistent behavior across concurrent operations.
package engine

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/iamNilotpal/ignite/internal/compaction"
	"github.com/iamNilotpal/ignite/internal/storage"
	"github.com/iamNilotpal/ignite/pkg/options"
	"go.uber.org/zap"
)

var (
	// ErrEngineClosed is returned when attempting to perform operations on a closed engine.
	ErrEngineClosed = errors.New("operation failed: cannot access closed engine")
)

// Stats reports a point-in-time snapshot of engine state, surfaced
// through pkg/ignite's Stats call.
type Stats struct {
	Keys                int
	ActiveSegmentID     int
	MergeCandidateFiles int
}

// Engine represents the main database engine that coordinates all subsystems.
// It acts as the primary interface for database operations and manages the lifecycle
// of all internal components. The engine is designed to be thread-safe and supports
// concurrent operations while maintaining data consistency.
type Engine struct {
	options    *options.Options
	log        *zap.SugaredLogger
	closed     atomic.Bool
	store      *storage.Store
	compaction *compaction.Compaction
}

// Config holds all the parameters needed to initialize a new Engine instance.
type Config struct {
	Options *options.Options
	Logger  *zap.SugaredLogger
}

// New creates and initializes a new Engine instance with the provided configuration.
// This constructor follows the dependency injection pattern, making the engine
// testable and allowing for different configurations in different environments.
//
// Storage is opened first since everything else depends on it; the
// background compactor is created and started last, once the store has
// finished recovery and is accepting traffic.
func New(ctx context.Context, config *Config) (*Engine, error) {
	store, err := storage.New(ctx, &storage.Config{
		Logger:  config.Logger,
		Options: config.Options,
	})
	if err != nil {
		return nil, err
	}

	e := &Engine{
		options: config.Options,
		log:     config.Logger,
		store:   store,
	}

	if !config.Options.CompactionOptions.Disabled {
		e.compaction = compaction.New(store, config.Options, config.Logger)
		e.compaction.Start(ctx)
	}

	return e, nil
}

// Put stores key with the given value, overwriting any prior value.
func (e *Engine) Put(key, value []byte) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.store.Put(key, value)
}

// Get returns key's current value, or ok=false if it is absent.
func (e *Engine) Get(key []byte) ([]byte, bool, error) {
	if e.closed.Load() {
		return nil, false, ErrEngineClosed
	}
	return e.store.Get(key)
}

// Delete removes key, appending a tombstone if it was present.
func (e *Engine) Delete(key []byte) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.store.Delete(key)
}

// Stats returns a snapshot of the engine's current state.
func (e *Engine) Stats() Stats {
	stats := Stats{
		Keys:            e.store.Size(),
		ActiveSegmentID: e.store.ActiveSegmentID(),
	}
	if e.compaction != nil {
		stats.MergeCandidateFiles = e.store.CandidateCount()
	}
	return stats
}

// Close shuts down the engine and releases all associated resources: it
// stops the compactor, waits for an in-flight write to finish, and closes
// every file. It does not fsync the files. A second call returns
// ErrEngineClosed.
func (e *Engine) Close() error {
	// Use atomic compare-and-swap to transition from open (false) to closed (true).
	// This operation is atomic and thread-safe, ensuring only one goroutine
	// can successfully close the engine. The operation returns true if the
	// swap was successful (engine was open) or false if it failed (already closed).
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}

	if e.compaction != nil {
		if err := e.compaction.Close(); err != nil {
			e.log.Warnw("error stopping compaction worker", "error", err)
		}
	}

	return e.store.Close()
}
