// Package inmem is the in-memory reference implementation of the knowledge
// store contract.
package inmem

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/engramkit/engram-go/knowledge"
)

// DefaultMaxPerScope is the per-scope record cap applied absent an option.
const DefaultMaxPerScope = 1000

// Store keeps records in process memory, partitioned by scope. All methods
// are safe for concurrent use; every returned record is a copy.
type Store struct {
	mu          sync.RWMutex
	records     map[string]*knowledge.Record
	scopes      map[string][]string // ids in insertion order
	maxPerScope int
	entropy     *ulid.MonotonicEntropy
}

// Option configures the store.
type Option func(*Store)

// WithMaxPerScope overrides the per-scope record cap. Values below 1 fall
// back to the default.
func WithMaxPerScope(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxPerScope = n
		}
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		records:     make(map[string]*knowledge.Record),
		scopes:      make(map[string][]string),
		maxPerScope: DefaultMaxPerScope,
		entropy:     ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// newID is called with mu held; monotonic entropy keeps ids time-ordered
// even within one millisecond.
func (s *Store) newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Create persists a new record and enforces the scope capacity.
func (s *Store) Create(_ context.Context, p knowledge.CreateParams) (*knowledge.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	rec := &knowledge.Record{
		ID:         s.newID(),
		Scope:      p.Scope,
		Content:    p.Content,
		Category:   p.Category,
		Priority:   p.Priority,
		OriginRef:  p.OriginRef,
		CreatedAt:  now,
		ModifiedAt: now,
		Version:    1,
	}
	s.records[rec.ID] = rec
	s.scopes[p.Scope] = append(s.scopes[p.Scope], rec.ID)
	s.evictLocked(p.Scope, rec.ID)

	return copyRecord(rec), nil
}

// evictLocked trims the scope back to maxPerScope by dropping the oldest
// records by modification time. keepID is the record that triggered the
// create and is exempt from this pass.
func (s *Store) evictLocked(scope, keepID string) {
	ids := s.scopes[scope]
	excess := len(ids) - s.maxPerScope
	if excess <= 0 {
		return
	}

	candidates := make([]*knowledge.Record, 0, len(ids)-1)
	for _, id := range ids {
		if id == keepID {
			continue
		}
		candidates = append(candidates, s.records[id])
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].ModifiedAt.Equal(candidates[j].ModifiedAt) {
			return candidates[i].ID < candidates[j].ID
		}
		return candidates[i].ModifiedAt.Before(candidates[j].ModifiedAt)
	})
	if excess > len(candidates) {
		excess = len(candidates)
	}

	evicted := make(map[string]bool, excess)
	for _, rec := range candidates[:excess] {
		evicted[rec.ID] = true
		delete(s.records, rec.ID)
	}
	kept := ids[:0]
	for _, id := range ids {
		if !evicted[id] {
			kept = append(kept, id)
		}
	}
	s.scopes[scope] = kept
}

// Update merges the non-nil fields of u and bumps version and modified_at.
func (s *Store) Update(_ context.Context, id string, u knowledge.Update) (*knowledge.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, knowledge.ErrNotFound
	}
	if u.Content != nil {
		rec.Content = *u.Content
	}
	if u.Category != nil {
		rec.Category = *u.Category
	}
	if u.Priority != nil {
		rec.Priority = *u.Priority
	}
	now := time.Now().UTC()
	// modified_at must strictly increase even when the clock hasn't ticked.
	if !now.After(rec.ModifiedAt) {
		now = rec.ModifiedAt.Add(time.Nanosecond)
	}
	rec.ModifiedAt = now
	rec.Version++

	return copyRecord(rec), nil
}

// Delete removes a record, reporting whether it existed.
func (s *Store) Delete(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return false, nil
	}
	delete(s.records, id)
	ids := s.scopes[rec.Scope]
	for i, v := range ids {
		if v == id {
			s.scopes[rec.Scope] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return true, nil
}

// Get returns a record by id.
func (s *Store) Get(_ context.Context, id string) (*knowledge.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return nil, knowledge.ErrNotFound
	}
	return copyRecord(rec), nil
}

// ListByScope returns all records for a scope in insertion order.
func (s *Store) ListByScope(_ context.Context, scope string) ([]*knowledge.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.scopes[scope]
	out := make([]*knowledge.Record, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyRecord(s.records[id]))
	}
	return out, nil
}

// Query returns the scope's records matching f, sorted and capped per f.
func (s *Store) Query(_ context.Context, scope string, f knowledge.Filter) ([]*knowledge.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*knowledge.Record
	for _, id := range s.scopes[scope] {
		rec := s.records[id]
		if f.Matches(rec) {
			out = append(out, copyRecord(rec))
		}
	}
	sortRecords(out, f)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Clear removes all records across all scopes.
func (s *Store) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*knowledge.Record)
	s.scopes = make(map[string][]string)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

func sortRecords(recs []*knowledge.Record, f knowledge.Filter) {
	if f.SortBy == "" {
		return
	}
	less := func(a, b *knowledge.Record) bool {
		switch f.SortBy {
		case knowledge.SortModifiedAt:
			if !a.ModifiedAt.Equal(b.ModifiedAt) {
				return a.ModifiedAt.Before(b.ModifiedAt)
			}
		case knowledge.SortPriority:
			if a.Priority.Rank() != b.Priority.Rank() {
				return a.Priority.Rank() < b.Priority.Rank()
			}
		default: // created_at
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		}
		// ULIDs are time-ordered, so the id breaks ties deterministically.
		return a.ID < b.ID
	}
	sort.Slice(recs, func(i, j int) bool {
		if f.Descending {
			return less(recs[j], recs[i])
		}
		return less(recs[i], recs[j])
	})
}

func copyRecord(r *knowledge.Record) *knowledge.Record {
	c := *r
	return &c
}
