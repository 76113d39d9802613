package vector

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/engramkit/engram-go/embed"
)

// MemoryIndex is the brute-force in-memory reference implementation of
// Index. Every search scores every candidate; for the record counts this
// engine targets (thousands per scope) that is fast enough and exact.
// All methods are safe for concurrent use.
type MemoryIndex struct {
	mu       sync.RWMutex
	provider embed.Provider
	entries  map[string]*Entry
}

// NewMemoryIndex creates an empty index over the given provider.
func NewMemoryIndex(provider embed.Provider) *MemoryIndex {
	return &MemoryIndex{
		provider: provider,
		entries:  make(map[string]*Entry),
	}
}

// Add embeds sourceText and stores it with metadata.
func (ix *MemoryIndex) Add(ctx context.Context, sourceText string, metadata map[string]string) (*Entry, error) {
	vec, err := ix.provider.Embed(ctx, sourceText)
	if err != nil {
		return nil, err
	}
	return ix.store(sourceText, vec, metadata), nil
}

// AddEmbedding stores a precomputed vector, rejecting dimension mismatches.
func (ix *MemoryIndex) AddEmbedding(_ context.Context, sourceText string, vec []float32, metadata map[string]string) (*Entry, error) {
	if want := ix.provider.Dimensions(); len(vec) != want {
		return nil, &DimensionMismatchError{Expected: want, Actual: len(vec)}
	}
	return ix.store(sourceText, vec, metadata), nil
}

func (ix *MemoryIndex) store(sourceText string, vec []float32, metadata map[string]string) *Entry {
	entry := &Entry{
		ID:         uuid.New().String(),
		SourceText: sourceText,
		Vector:     vec,
		Metadata:   copyMetadata(metadata),
		CreatedAt:  time.Now().UTC(),
	}

	ix.mu.Lock()
	ix.entries[entry.ID] = entry
	ix.mu.Unlock()

	return copyEntry(entry)
}

// Search scores every entry against queryText.
func (ix *MemoryIndex) Search(ctx context.Context, queryText string, limit int, threshold float64) ([]Hit, error) {
	return ix.SearchWithFilter(ctx, queryText, nil, limit, threshold)
}

// SearchWithFilter restricts candidates to entries matching pred before
// scoring. Entries whose vectors cannot be compared are skipped, not fatal.
func (ix *MemoryIndex) SearchWithFilter(ctx context.Context, queryText string, pred Predicate, limit int, threshold float64) ([]Hit, error) {
	query, err := ix.provider.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	ix.mu.RLock()
	hits := make([]Hit, 0, len(ix.entries))
	for _, entry := range ix.entries {
		if pred != nil && !pred(entry.Metadata) {
			continue
		}
		score, err := Cosine(query, entry.Vector)
		if err != nil {
			log.Printf("[INDEX] skipping entry %s: %v", entry.ID, err)
			continue
		}
		if score < threshold {
			continue
		}
		hits = append(hits, Hit{Entry: *copyEntry(entry), Score: score})
	}
	ix.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// Remove deletes an entry by id.
func (ix *MemoryIndex) Remove(_ context.Context, id string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, ok := ix.entries[id]; !ok {
		return ErrNotFound
	}
	delete(ix.entries, id)
	return nil
}

// Get returns an entry by id.
func (ix *MemoryIndex) Get(_ context.Context, id string) (*Entry, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	entry, ok := ix.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyEntry(entry), nil
}

// Clear removes all entries.
func (ix *MemoryIndex) Clear(_ context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.entries = make(map[string]*Entry)
	return nil
}

// Size returns the number of stored entries.
func (ix *MemoryIndex) Size(_ context.Context) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries), nil
}

// Close is a no-op for the in-memory index.
func (ix *MemoryIndex) Close() error { return nil }

func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyEntry(e *Entry) *Entry {
	c := *e
	c.Vector = append([]float32(nil), e.Vector...)
	c.Metadata = copyMetadata(e.Metadata)
	return &c
}
