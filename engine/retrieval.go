package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/engramkit/engram-go/embed"
	"github.com/engramkit/engram-go/knowledge"
	"github.com/engramkit/engram-go/vector"
)

// factCategoryPrefix namespaces keyed user facts inside the record store so
// they share storage, eviction, and indexing with free-form records.
const factCategoryPrefix = "user_data."

// FactCategory returns the record category a keyed fact is stored under.
func FactCategory(key string) string {
	return factCategoryPrefix + key
}

// FactPredicate admits only index entries that belong to keyed facts.
func FactPredicate(metadata map[string]string) bool {
	return strings.HasPrefix(metadata[vector.MetaCategory], factCategoryPrefix)
}

// KeyedFact is the result of a by-key lookup. Value is nil when the key has
// never been saved in the scope; an empty saved value yields a non-nil
// pointer to "".
type KeyedFact struct {
	Key    string            `json:"key"`
	Value  *string           `json:"value"`
	Record *knowledge.Record `json:"record,omitempty"`
}

// Match pairs a retrieved record with its similarity score.
type Match struct {
	Record knowledge.Record `json:"record"`
	Score  float64          `json:"score"`
}

// RetrieveByKey returns the latest fact saved under key in the scope.
// Saving the same key again does not overwrite; retrieval resolves to the
// most recently created record for the key's category.
func (e *Engine) RetrieveByKey(ctx context.Context, scope, key string) (*KeyedFact, error) {
	records, err := e.store.Query(ctx, scope, knowledge.Filter{
		Category:   FactCategory(key),
		SortBy:     knowledge.SortCreatedAt,
		Descending: true,
		Limit:      1,
	})
	if err != nil {
		return nil, fmt.Errorf("query fact %q: %w", key, err)
	}
	fact := &KeyedFact{Key: key}
	if len(records) > 0 {
		value := records[0].Content
		fact.Value = &value
		fact.Record = records[0]
	}
	return fact, nil
}

// RetrieveByQuery runs a semantic search over the scope's indexed records and
// resolves each hit back to its current stored record. Hits whose record has
// since been deleted are skipped; the index is allowed to lag the store.
// limit <= 0 falls back to the configured default, and pred (optional)
// further restricts candidates by metadata.
func (e *Engine) RetrieveByQuery(ctx context.Context, scope, query string, limit int, threshold float64, pred vector.Predicate) ([]Match, error) {
	if limit <= 0 {
		limit = e.cfg.DefaultQueryLimit
	}
	scoped := func(metadata map[string]string) bool {
		if metadata[vector.MetaScope] != scope {
			return false
		}
		return pred == nil || pred(metadata)
	}

	hits, err := e.index.SearchWithFilter(ctx, query, scoped, limit, threshold)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	matches := make([]Match, 0, len(hits))
	for _, hit := range hits {
		id := hit.Entry.Metadata[vector.MetaRecordID]
		rec, err := e.store.Get(ctx, id)
		if errors.Is(err, knowledge.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("resolve record %s: %w", id, err)
		}
		matches = append(matches, Match{Record: *rec, Score: hit.Score})
	}
	return matches, nil
}

// IndexRecord embeds a record's content and adds it to the similarity index
// with the standard metadata keys.
func (e *Engine) IndexRecord(ctx context.Context, rec *knowledge.Record) (*vector.Entry, error) {
	entry, err := e.index.Add(ctx, rec.Content, recordMetadata(rec))
	if err != nil {
		return nil, fmt.Errorf("index record %s: %w", rec.ID, err)
	}
	return entry, nil
}

// ReindexScope rebuilds index entries for every record in the scope,
// embedding contents as a batch. Existing entries are not removed; stale ones
// are filtered out at retrieval time, and callers who want a clean index
// clear it first.
func (e *Engine) ReindexScope(ctx context.Context, scope string) (int, error) {
	records, err := e.store.ListByScope(ctx, scope)
	if err != nil {
		return 0, fmt.Errorf("list scope %s: %w", scope, err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Content
	}
	vecs, err := e.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed scope %s: %w", scope, err)
	}
	if len(vecs) != len(texts) {
		return 0, &embed.ProviderError{Provider: "batch",
			Err: fmt.Errorf("returned %d vectors for %d texts", len(vecs), len(texts))}
	}

	for i, rec := range records {
		if _, err := e.index.AddEmbedding(ctx, rec.Content, vecs[i], recordMetadata(rec)); err != nil {
			return i, fmt.Errorf("index record %s: %w", rec.ID, err)
		}
	}
	return len(records), nil
}

func recordMetadata(rec *knowledge.Record) map[string]string {
	return map[string]string{
		vector.MetaRecordID:   rec.ID,
		vector.MetaScope:      rec.Scope,
		vector.MetaCategory:   rec.Category,
		vector.MetaPriority:   string(rec.Priority),
		vector.MetaCreatedAt:  rec.CreatedAt.Format(time.RFC3339Nano),
		vector.MetaModifiedAt: rec.ModifiedAt.Format(time.RFC3339Nano),
	}
}
