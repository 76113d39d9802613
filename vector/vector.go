// Package vector implements similarity search over embedded text entries.
//
// An Index stores (vector, metadata, source text) tuples and answers
// cosine-similarity searches with an optional caller-supplied metadata
// predicate, a result cap, and a minimum-score threshold. The index owns an
// embedding provider so callers pass text, not vectors.
//
// Implementations:
//   - MemoryIndex: brute-force in-memory reference implementation
//   - chromem: backend on the chromem-go embedded vector database
package vector

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Metadata keys every indexed entry carries. This is the minimal contract a
// Predicate may rely on; entries can carry additional keys.
const (
	MetaRecordID   = "record_id"
	MetaScope      = "scope"
	MetaCategory   = "category"
	MetaPriority   = "priority"
	MetaCreatedAt  = "created_at"
	MetaModifiedAt = "modified_at"
)

// Entry is a stored embedding with its source text and metadata.
type Entry struct {
	ID         string            `json:"id"`
	SourceText string            `json:"source_text"`
	Vector     []float32         `json:"vector"`
	Metadata   map[string]string `json:"metadata"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Hit pairs an entry with its similarity score.
type Hit struct {
	Entry Entry   `json:"entry"`
	Score float64 `json:"score"`
}

// Predicate restricts search candidates by metadata. It must be pure: the
// index may call it any number of times in any order.
type Predicate func(metadata map[string]string) bool

// ErrNotFound is returned when an entry id does not exist.
var ErrNotFound = errors.New("vector entry not found")

// DimensionMismatchError indicates vectors of unequal length were presented
// to similarity scoring. It fails the single comparison, never the whole
// search.
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Index is the similarity index contract.
type Index interface {
	// Add embeds sourceText and stores it with metadata, returning the new
	// entry.
	Add(ctx context.Context, sourceText string, metadata map[string]string) (*Entry, error)

	// AddEmbedding stores a precomputed vector for sourceText. It rejects
	// vectors that do not match the provider's dimensions.
	AddEmbedding(ctx context.Context, sourceText string, vec []float32, metadata map[string]string) (*Entry, error)

	// Search embeds queryText, scores every entry by cosine similarity,
	// keeps scores >= threshold, and returns at most limit hits in
	// descending score order. limit <= 0 means unlimited.
	Search(ctx context.Context, queryText string, limit int, threshold float64) ([]Hit, error)

	// SearchWithFilter is Search restricted to entries whose metadata
	// satisfies pred. A nil pred admits everything.
	SearchWithFilter(ctx context.Context, queryText string, pred Predicate, limit int, threshold float64) ([]Hit, error)

	// Remove deletes an entry, returning ErrNotFound for an unknown id.
	Remove(ctx context.Context, id string) error

	// Get returns an entry by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Entry, error)

	// Clear removes all entries.
	Clear(ctx context.Context) error

	// Size returns the number of stored entries.
	Size(ctx context.Context) (int, error)

	// Close releases backend resources.
	Close() error
}
