// Package knowledge defines the conversation-scoped record model and the
// storage contract its backends implement.
//
// Records are partitioned by scope (a conversation identifier) and versioned:
// version starts at 1 and increments on every successful update, and
// modified_at strictly increases. Backends enforce a per-scope capacity by
// evicting the oldest-by-modification records after each create.
//
// Implementations:
//   - inmem: in-memory reference implementation
//   - sqlite: file-backed implementation
package knowledge

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a record id does not exist.
var ErrNotFound = errors.New("record not found")

// Priority ranks a record. The enumeration is closed; anything outside it is
// treated as unset.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps a token onto the enumeration. ok is false for any token
// outside it, including the empty string.
func ParsePriority(token string) (Priority, bool) {
	switch Priority(token) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return Priority(token), true
	}
	return "", false
}

// Rank orders priorities for sorting: high > medium > low > unset.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	}
	return 0
}

// Record is a persisted unit of preserved information tied to a scope.
// ID, Scope, and OriginRef are immutable after creation.
type Record struct {
	ID         string    `json:"id"`
	Scope      string    `json:"scope"`
	Content    string    `json:"content"`
	Category   string    `json:"category,omitempty"`
	Priority   Priority  `json:"priority,omitempty"`
	OriginRef  string    `json:"origin_ref,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ModifiedAt time.Time `json:"modified_at"`
	Version    int       `json:"version"`
}

// CreateParams carries the caller-supplied fields of a new record.
type CreateParams struct {
	Scope     string
	Content   string
	Category  string
	Priority  Priority
	OriginRef string
}

// Update carries the mutable fields of a record. Nil fields are left
// unchanged.
type Update struct {
	Content  *string
	Category *string
	Priority *Priority
}

// SortField selects the sort key for a query.
type SortField string

const (
	SortCreatedAt  SortField = "created_at"
	SortModifiedAt SortField = "modified_at"
	SortPriority   SortField = "priority"
)

// Filter narrows and orders a scope query. Zero values mean "any":
// empty Category/Priority match all records, zero times leave the creation
// range unbounded, Limit 0 applies no cap, and an empty SortBy preserves the
// store's stable input order. Both time bounds are inclusive.
type Filter struct {
	Category      string
	Priority      Priority
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
	SortBy        SortField
	Descending    bool
}

// Matches reports whether a record passes the filter's field and time
// constraints. Limit and ordering are the store's concern.
func (f Filter) Matches(r *Record) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.Priority != "" && r.Priority != f.Priority {
		return false
	}
	if !f.CreatedAfter.IsZero() && r.CreatedAt.Before(f.CreatedAfter) {
		return false
	}
	if !f.CreatedBefore.IsZero() && r.CreatedAt.After(f.CreatedBefore) {
		return false
	}
	return true
}

// Store is the record storage contract. Mutations are serialized by the
// implementation; reads may run concurrently but never observe a
// partially-applied mutation. Returned records are copies the caller owns.
type Store interface {
	// Create persists a new record with version 1 and both timestamps set to
	// now, then enforces the per-scope capacity. The newly created record is
	// never evicted by its own triggering create.
	Create(ctx context.Context, p CreateParams) (*Record, error)

	// Update merges the non-nil fields of u into the record, bumps
	// modified_at, and increments version. Returns ErrNotFound for an
	// unknown id.
	Update(ctx context.Context, id string, u Update) (*Record, error)

	// Delete removes a record, reporting whether it existed.
	Delete(ctx context.Context, id string) (bool, error)

	// Get returns a record by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Record, error)

	// ListByScope returns all records for a scope in stable input order.
	ListByScope(ctx context.Context, scope string) ([]*Record, error)

	// Query returns the scope's records matching f, ordered and capped per f.
	Query(ctx context.Context, scope string, f Filter) ([]*Record, error)

	// Clear removes all records across all scopes.
	Clear(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
