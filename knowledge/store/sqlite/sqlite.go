// Package sqlite is a file-backed implementation of the knowledge store
// contract. A single binary, a single database file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/engramkit/engram-go/knowledge"
)

// Store persists records in a SQLite database. Timestamps are stored as
// fixed-width RFC3339 text with nanosecond precision so modified_at
// comparisons keep nanosecond ordering.
type Store struct {
	db          *sql.DB
	maxPerScope int

	mu      sync.Mutex // serializes mutations and guards entropy
	entropy *ulid.MonotonicEntropy
}

// Option configures the store.
type Option func(*Store)

// WithMaxPerScope overrides the per-scope record cap (default 1000).
func WithMaxPerScope(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxPerScope = n
		}
	}
}

// New opens or creates a database at dbPath and migrates the schema.
func New(dbPath string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &Store{
		db:          db,
		maxPerScope: 1000,
		entropy:     ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id          TEXT PRIMARY KEY,
		scope       TEXT NOT NULL,
		content     TEXT NOT NULL,
		category    TEXT NOT NULL DEFAULT '',
		priority    TEXT NOT NULL DEFAULT '',
		origin_ref  TEXT NOT NULL DEFAULT '',
		created_at  TEXT NOT NULL,
		modified_at TEXT NOT NULL,
		version     INTEGER NOT NULL DEFAULT 1
	);
	CREATE INDEX IF NOT EXISTS idx_records_scope ON records(scope);
	CREATE INDEX IF NOT EXISTS idx_records_scope_category ON records(scope, category);
	CREATE INDEX IF NOT EXISTS idx_records_scope_modified ON records(scope, modified_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), s.entropy).String()
}

// Create inserts a new record and evicts the oldest-by-modification records
// beyond the scope cap, in one transaction. The new record is exempt from
// the eviction pass it triggers.
func (s *Store) Create(ctx context.Context, p knowledge.CreateParams) (*knowledge.Record, error) {
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

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO records (id, scope, content, category, priority, origin_ref, created_at, modified_at, version)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1)`,
		rec.ID, rec.Scope, rec.Content, string(rec.Category), string(rec.Priority), rec.OriginRef,
		formatTime(rec.CreatedAt), formatTime(rec.ModifiedAt))
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	var count int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE scope = ?`, p.Scope).Scan(&count); err != nil {
		return nil, err
	}
	if excess := count - s.maxPerScope; excess > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM records WHERE id IN (
				SELECT id FROM records WHERE scope = ? AND id <> ?
				ORDER BY modified_at ASC, id ASC LIMIT ?
			)`, p.Scope, rec.ID, excess)
		if err != nil {
			return nil, fmt.Errorf("evict records: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Update merges the non-nil fields of u, bumps modified_at, and increments
// version.
func (s *Store) Update(ctx context.Context, id string, u knowledge.Update) (*knowledge.Record, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rec, err := scanRecord(tx.QueryRowContext(ctx, selectCols+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, knowledge.ErrNotFound
	}
	if err != nil {
		return nil, err
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
	if !now.After(rec.ModifiedAt) {
		now = rec.ModifiedAt.Add(time.Nanosecond)
	}
	rec.ModifiedAt = now
	rec.Version++

	_, err = tx.ExecContext(ctx,
		`UPDATE records SET content = ?, category = ?, priority = ?, modified_at = ?, version = ? WHERE id = ?`,
		rec.Content, string(rec.Category), string(rec.Priority), formatTime(rec.ModifiedAt), rec.Version, id)
	if err != nil {
		return nil, fmt.Errorf("update record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return rec, nil
}

// Delete removes a record, reporting whether it existed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get returns a record by id.
func (s *Store) Get(ctx context.Context, id string) (*knowledge.Record, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, selectCols+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, knowledge.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListByScope returns all records for a scope in insertion order.
func (s *Store) ListByScope(ctx context.Context, scope string) ([]*knowledge.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectCols+` WHERE scope = ? ORDER BY rowid ASC`, scope)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Query returns the scope's records matching f, ordered and capped per f.
func (s *Store) Query(ctx context.Context, scope string, f knowledge.Filter) ([]*knowledge.Record, error) {
	where := []string{"scope = ?"}
	args := []interface{}{scope}

	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, f.Category)
	}
	if f.Priority != "" {
		where = append(where, "priority = ?")
		args = append(args, string(f.Priority))
	}
	if !f.CreatedAfter.IsZero() {
		where = append(where, "created_at >= ?")
		args = append(args, formatTime(f.CreatedAfter.UTC()))
	}
	if !f.CreatedBefore.IsZero() {
		where = append(where, "created_at <= ?")
		args = append(args, formatTime(f.CreatedBefore.UTC()))
	}

	query := selectCols + ` WHERE ` + strings.Join(where, " AND ") + orderClause(f)
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectRecords(rows)
}

// Clear removes all records across all scopes.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM records`)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

const selectCols = `SELECT id, scope, content, category, priority, origin_ref, created_at, modified_at, version FROM records`

func orderClause(f knowledge.Filter) string {
	if f.SortBy == "" {
		return " ORDER BY rowid ASC"
	}
	dir := "ASC"
	if f.Descending {
		dir = "DESC"
	}
	switch f.SortBy {
	case knowledge.SortModifiedAt:
		return fmt.Sprintf(" ORDER BY modified_at %s, id %s", dir, dir)
	case knowledge.SortPriority:
		return fmt.Sprintf(
			" ORDER BY CASE priority WHEN 'high' THEN 3 WHEN 'medium' THEN 2 WHEN 'low' THEN 1 ELSE 0 END %s, id %s",
			dir, dir)
	default:
		return fmt.Sprintf(" ORDER BY created_at %s, id %s", dir, dir)
	}
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*knowledge.Record, error) {
	var rec knowledge.Record
	var priority, createdAt, modifiedAt string

	err := row.Scan(&rec.ID, &rec.Scope, &rec.Content, &rec.Category, &priority,
		&rec.OriginRef, &createdAt, &modifiedAt, &rec.Version)
	if err != nil {
		return nil, err
	}

	rec.Priority = knowledge.Priority(priority)
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	rec.ModifiedAt, _ = time.Parse(time.RFC3339Nano, modifiedAt)
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]*knowledge.Record, error) {
	var out []*knowledge.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// timeLayout keeps a fixed-width fraction so the TEXT columns sort
// lexicographically in timestamp order (RFC3339Nano trims trailing zeros).
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}
