// Package engine composes the directive parser, the record store, the
// similarity index, and an embedding provider into the knowledge ingestion
// and retrieval engine.
//
// An Engine is an explicitly constructed instance owning its store and
// index; there is no package-level state. Hosts create one per process (or
// per tenant), feed it model output through ProcessResponse, and control its
// lifecycle with Reset and Close.
package engine

import (
	"context"
	"fmt"

	"github.com/engramkit/engram-go/embed"
	"github.com/engramkit/engram-go/knowledge"
	"github.com/engramkit/engram-go/knowledge/store/inmem"
	"github.com/engramkit/engram-go/vector"
)

// Engine executes directives against a record store and similarity index.
type Engine struct {
	cfg      *Config
	store    knowledge.Store
	index    vector.Index
	provider embed.Provider
}

// Option configures the engine.
type Option func(*Engine)

// WithStore sets the record store backend. Absent this option the engine
// owns an in-memory store capped per Config.MaxRecordsPerScope.
func WithStore(s knowledge.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithIndex sets the similarity index backend.
func WithIndex(ix vector.Index) Option {
	return func(e *Engine) { e.index = ix }
}

// WithProvider sets the embedding provider. Absent this option the engine
// uses the letter-frequency baseline.
func WithProvider(p embed.Provider) Option {
	return func(e *Engine) { e.provider = p }
}

// New constructs an engine. A nil cfg uses DefaultConfig.
func New(cfg *Config, opts ...Option) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.provider == nil {
		e.provider = embed.NewLetterFrequency()
	}
	if e.index == nil {
		e.index = vector.NewMemoryIndex(e.provider)
	}
	if e.store == nil {
		e.store = inmem.New(inmem.WithMaxPerScope(cfg.MaxRecordsPerScope))
	}
	return e
}

// Store returns the engine's record store.
func (e *Engine) Store() knowledge.Store { return e.store }

// Index returns the engine's similarity index.
func (e *Engine) Index() vector.Index { return e.index }

// Provider returns the engine's embedding provider.
func (e *Engine) Provider() embed.Provider { return e.provider }

// Reset clears both the record store and the similarity index.
func (e *Engine) Reset(ctx context.Context) error {
	if err := e.store.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	if err := e.index.Clear(ctx); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	return nil
}

// Close releases the store and index.
func (e *Engine) Close() error {
	if err := e.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}
	if err := e.index.Close(); err != nil {
		return fmt.Errorf("close index: %w", err)
	}
	return nil
}
