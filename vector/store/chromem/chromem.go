// Package chromem backs the similarity index contract with chromem-go, an
// embedded pure-Go vector database.
package chromem

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"

	"github.com/engramkit/engram-go/embed"
	"github.com/engramkit/engram-go/vector"
)

const collectionName = "entries"

// Index stores entries in a single chromem collection.
type Index struct {
	provider embed.Provider

	mu  sync.Mutex // guards collection swaps on Clear
	db  *chromem.DB
	col *chromem.Collection
}

// New creates an empty chromem-backed index over the given provider.
func New(provider embed.Provider) (*Index, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &Index{provider: provider, db: db, col: col}, nil
}

func (ix *Index) collection() *chromem.Collection {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.col
}

// Add embeds sourceText and stores it with metadata.
func (ix *Index) Add(ctx context.Context, sourceText string, metadata map[string]string) (*vector.Entry, error) {
	vec, err := ix.provider.Embed(ctx, sourceText)
	if err != nil {
		return nil, err
	}
	return ix.AddEmbedding(ctx, sourceText, vec, metadata)
}

// AddEmbedding stores a precomputed vector, rejecting dimension mismatches.
func (ix *Index) AddEmbedding(ctx context.Context, sourceText string, vec []float32, metadata map[string]string) (*vector.Entry, error) {
	if want := ix.provider.Dimensions(); len(vec) != want {
		return nil, &vector.DimensionMismatchError{Expected: want, Actual: len(vec)}
	}

	entry := &vector.Entry{
		ID:         uuid.New().String(),
		SourceText: sourceText,
		Vector:     append([]float32(nil), vec...),
		Metadata:   cloneMeta(metadata),
		CreatedAt:  time.Now().UTC(),
	}

	doc := chromem.Document{
		ID:        entry.ID,
		Content:   sourceText,
		Embedding: vec,
		Metadata:  cloneMeta(metadata),
	}
	if err := ix.collection().AddDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("add document: %w", err)
	}
	return entry, nil
}

// Search scores every entry against queryText.
func (ix *Index) Search(ctx context.Context, queryText string, limit int, threshold float64) ([]vector.Hit, error) {
	return ix.SearchWithFilter(ctx, queryText, nil, limit, threshold)
}

// SearchWithFilter fetches all candidates from chromem and applies the
// predicate, threshold, and limit on the way out. chromem has no hook for an
// arbitrary predicate, so filtering happens after its similarity pass.
func (ix *Index) SearchWithFilter(ctx context.Context, queryText string, pred vector.Predicate, limit int, threshold float64) ([]vector.Hit, error) {
	query, err := ix.provider.Embed(ctx, queryText)
	if err != nil {
		return nil, err
	}

	col := ix.collection()
	count := col.Count()
	if count == 0 {
		return nil, nil
	}

	// chromem requires nResults <= collection size; ask for everything and
	// trim locally so the predicate cannot starve the result set.
	results, err := col.QueryEmbedding(ctx, query, count, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	hits := make([]vector.Hit, 0, len(results))
	for _, res := range results {
		if pred != nil && !pred(res.Metadata) {
			continue
		}
		score := float64(res.Similarity)
		if score < threshold {
			continue
		}
		hits = append(hits, vector.Hit{
			Entry: vector.Entry{
				ID:         res.ID,
				SourceText: res.Content,
				Vector:     res.Embedding,
				Metadata:   cloneMeta(res.Metadata),
			},
			Score: score,
		})
		if limit > 0 && len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// Remove deletes an entry by id.
func (ix *Index) Remove(ctx context.Context, id string) error {
	col := ix.collection()
	// chromem's Delete is silent about unknown ids, so existence is checked
	// first to honor the ErrNotFound contract.
	if _, err := col.GetByID(ctx, id); err != nil {
		return vector.ErrNotFound
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Get returns an entry by id.
func (ix *Index) Get(ctx context.Context, id string) (*vector.Entry, error) {
	doc, err := ix.collection().GetByID(ctx, id)
	if err != nil {
		return nil, vector.ErrNotFound
	}
	return &vector.Entry{
		ID:         doc.ID,
		SourceText: doc.Content,
		Vector:     append([]float32(nil), doc.Embedding...),
		Metadata:   cloneMeta(doc.Metadata),
	}, nil
}

// Clear drops and recreates the collection.
func (ix *Index) Clear(_ context.Context) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if err := ix.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	col, err := ix.db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	ix.col = col
	return nil
}

// Size returns the number of stored entries.
func (ix *Index) Size(_ context.Context) (int, error) {
	return ix.collection().Count(), nil
}

// Close releases nothing; chromem keeps everything in memory.
func (ix *Index) Close() error { return nil }

func cloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
