// Package ignite provides a high-performance key/value data store
// designed for fast read and write operations, inspired by Bitcask.
// It combines an in-memory key directory with an append-only log
// structure on disk to achieve high throughput. It is designed for applications
// requiring fast read and write operations, such as caching, session management,
// and real-time data processing, aiming to provide a simple, efficient, and
// reliable solution for persistent key/value storage in Go applications.
package ignite

import (
	"context"
	"time"

	"github.com/iamNilotpal/ignite/internal/engine"
	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/logger"
	"github.com/iamNilotpal/ignite/pkg/options"
)

// Collector receives a latency sample for every completed operation.
// NewInstance installs a no-op Collector; an embedder wires
// in a real one with SetCollector instead of this package reaching for
// a package-level metrics singleton.
type Collector interface {
	Observe(op string, d time.Duration)
}

type noopCollector struct{}

func (noopCollector) Observe(string, time.Duration) {}

// Represents an instance of the Ignite key/value data store.
// It encapsulates the core engine responsible for data handling and
// the configuration options for this specific database instance.
//
// Instance is the primary entry point for interacting with the Ignite store,
// providing methods for setting, getting, and deleting key-value pairs.
type Instance struct {
	engine    *engine.Engine   // The underlying database engine handling read/write operations.
	options   *options.Options // Configuration options applied to this DB instance.
	collector Collector
}

// Creates and initializes a new Ignite DB instance.
func NewInstance(context context.Context, service string, opts ...options.OptionFunc) (*Instance, error) {
	// Initialize a logger for the given service.
	log := logger.New(service)

	// Initialize default options.
	defaultOpts := options.NewDefaultOptions()

	// Apply any provided functional options to override defaults.
	if len(opts) > 0 {
		for _, opt := range opts {
			opt(&defaultOpts)
		}
	}

	// Create a new internal engine with the initialized logger.
	eng, err := engine.New(context, &engine.Config{Logger: log, Options: &defaultOpts})
	if err != nil {
		return nil, err
	}

	return &Instance{engine: eng, options: &defaultOpts, collector: noopCollector{}}, nil
}

// SetCollector installs c as the destination for per-operation latency
// samples, replacing the no-op default. Passing nil restores the
// no-op default.
func (i *Instance) SetCollector(c Collector) {
	if c == nil {
		c = noopCollector{}
	}
	i.collector = c
}

// Set stores a key-value pair in the database.
// If the key already exists, its value will be updated.
// The record is appended to the log; this call does not fsync it.
func (i *Instance) Set(ctx context.Context, key string, value []byte) error {
	start := time.Now()
	err := i.engine.Put([]byte(key), value)
	i.collector.Observe("set", time.Since(start))
	return err
}

// Get retrieves the value associated with the given key. When key is
// absent it returns an *errors.IndexError with code
// ErrorCodeIndexKeyNotFound, which callers can match with errors.As.
func (i *Instance) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	value, ok, err := i.engine.Get([]byte(key))
	i.collector.Observe("get", time.Since(start))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.NewKeyNotFoundError(key)
	}
	return value, nil
}

// Delete removes a key-value pair from the database.
// The operation appends a tombstone and the space is reclaimed
// later by the background compactor.
func (i *Instance) Delete(ctx context.Context, key string) error {
	start := time.Now()
	err := i.engine.Delete([]byte(key))
	i.collector.Observe("delete", time.Since(start))
	return err
}

// Stats returns a snapshot of live key count, active segment id, and
// how many segments are currently queued for compaction.
func (i *Instance) Stats() engine.Stats {
	return i.engine.Stats()
}

// Close shuts down the Ignite DB instance, stopping the compactor and
// closing every file; it does not fsync them. A second call returns an
// error.
func (i *Instance) Close(context context.Context) error {
	return i.engine.Close()
}
