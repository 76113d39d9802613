package inmem_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/engramkit/engram-go/knowledge"
	"github.com/engramkit/engram-go/knowledge/store/inmem"
)

func TestCreate_SetsVersionAndTimestamps(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	rec, err := s.Create(ctx, knowledge.CreateParams{
		Scope:    "conv1",
		Content:  "user lives in Berlin",
		Category: "location",
		Priority: knowledge.PriorityHigh,
	})
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, 1, rec.Version)
	assert.Equal(t, rec.CreatedAt, rec.ModifiedAt)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestUpdate_BumpsVersionAndStrictlyIncreasesModifiedAt(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	rec, err := s.Create(ctx, knowledge.CreateParams{Scope: "c", Content: "v0"})
	require.NoError(t, err)

	prev := rec.ModifiedAt
	for i := 1; i <= 5; i++ {
		content := fmt.Sprintf("v%d", i)
		rec, err = s.Update(ctx, rec.ID, knowledge.Update{Content: &content})
		require.NoError(t, err)
		assert.Equal(t, i+1, rec.Version)
		assert.True(t, rec.ModifiedAt.After(prev), "modified_at must strictly increase")
		prev = rec.ModifiedAt
	}
	assert.Equal(t, "v5", rec.Content)
}

func TestUpdate_NilFieldsUnchanged(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	rec, err := s.Create(ctx, knowledge.CreateParams{
		Scope: "c", Content: "keep", Category: "cat", Priority: knowledge.PriorityLow,
	})
	require.NoError(t, err)

	p := knowledge.PriorityHigh
	updated, err := s.Update(ctx, rec.ID, knowledge.Update{Priority: &p})
	require.NoError(t, err)

	assert.Equal(t, "keep", updated.Content)
	assert.Equal(t, "cat", updated.Category)
	assert.Equal(t, knowledge.PriorityHigh, updated.Priority)
	assert.Equal(t, rec.CreatedAt, updated.CreatedAt)
}

func TestUpdate_UnknownID(t *testing.T) {
	s := inmem.New()
	content := "x"
	_, err := s.Update(context.Background(), "nope", knowledge.Update{Content: &content})
	assert.ErrorIs(t, err, knowledge.ErrNotFound)
}

func TestDelete_ReportsExistence(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	rec, err := s.Create(ctx, knowledge.CreateParams{Scope: "c", Content: "x"})
	require.NoError(t, err)

	ok, err := s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Delete(ctx, rec.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Get(ctx, rec.ID)
	assert.ErrorIs(t, err, knowledge.ErrNotFound)
}

func TestEviction_KeepsMostRecentlyModified(t *testing.T) {
	ctx := context.Background()
	s := inmem.New(inmem.WithMaxPerScope(3))

	var ids []string
	for i := 0; i < 3; i++ {
		rec, err := s.Create(ctx, knowledge.CreateParams{Scope: "c", Content: fmt.Sprintf("r%d", i)})
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}

	// Touch the oldest record so it is no longer the eviction candidate.
	content := "r0 updated"
	_, err := s.Update(ctx, ids[0], knowledge.Update{Content: &content})
	require.NoError(t, err)

	// The fourth create overflows the cap; r1 is now oldest-by-modification.
	rec, err := s.Create(ctx, knowledge.CreateParams{Scope: "c", Content: "r3"})
	require.NoError(t, err)

	remaining, err := s.ListByScope(ctx, "c")
	require.NoError(t, err)
	require.Len(t, remaining, 3)

	_, err = s.Get(ctx, ids[1])
	assert.ErrorIs(t, err, knowledge.ErrNotFound, "oldest-by-modification should be evicted")
	for _, id := range []string{ids[0], ids[2], rec.ID} {
		_, err := s.Get(ctx, id)
		assert.NoError(t, err)
	}
}

func TestEviction_TriggeringRecordExempt(t *testing.T) {
	ctx := context.Background()
	s := inmem.New(inmem.WithMaxPerScope(1))

	first, err := s.Create(ctx, knowledge.CreateParams{Scope: "c", Content: "first"})
	require.NoError(t, err)
	second, err := s.Create(ctx, knowledge.CreateParams{Scope: "c", Content: "second"})
	require.NoError(t, err)

	_, err = s.Get(ctx, first.ID)
	assert.ErrorIs(t, err, knowledge.ErrNotFound)
	got, err := s.Get(ctx, second.ID)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Content)
}

func TestEviction_ScopesAreIndependent(t *testing.T) {
	ctx := context.Background()
	s := inmem.New(inmem.WithMaxPerScope(2))

	for i := 0; i < 2; i++ {
		_, err := s.Create(ctx, knowledge.CreateParams{Scope: "a", Content: "x"})
		require.NoError(t, err)
		_, err = s.Create(ctx, knowledge.CreateParams{Scope: "b", Content: "y"})
		require.NoError(t, err)
	}

	a, err := s.ListByScope(ctx, "a")
	require.NoError(t, err)
	b, err := s.ListByScope(ctx, "b")
	require.NoError(t, err)
	assert.Len(t, a, 2)
	assert.Len(t, b, 2)
}

func TestQuery_FiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	mk := func(content, category string, p knowledge.Priority) *knowledge.Record {
		rec, err := s.Create(ctx, knowledge.CreateParams{Scope: "c", Content: content, Category: category, Priority: p})
		require.NoError(t, err)
		return rec
	}
	mk("a", "notes", knowledge.PriorityLow)
	mk("b", "notes", knowledge.PriorityHigh)
	mk("c", "other", knowledge.PriorityMedium)
	mk("d", "notes", "")

	t.Run("by category", func(t *testing.T) {
		got, err := s.Query(ctx, "c", knowledge.Filter{Category: "notes"})
		require.NoError(t, err)
		assert.Len(t, got, 3)
	})

	t.Run("by priority", func(t *testing.T) {
		got, err := s.Query(ctx, "c", knowledge.Filter{Priority: knowledge.PriorityHigh})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "b", got[0].Content)
	})

	t.Run("priority descending", func(t *testing.T) {
		got, err := s.Query(ctx, "c", knowledge.Filter{SortBy: knowledge.SortPriority, Descending: true})
		require.NoError(t, err)
		require.Len(t, got, 4)
		assert.Equal(t, "b", got[0].Content)
		assert.Equal(t, "c", got[1].Content)
		assert.Equal(t, "a", got[2].Content)
		assert.Equal(t, "d", got[3].Content, "unset priority sorts last")
	})

	t.Run("limit", func(t *testing.T) {
		got, err := s.Query(ctx, "c", knowledge.Filter{SortBy: knowledge.SortCreatedAt, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, got, 2)
	})

	t.Run("empty scope", func(t *testing.T) {
		got, err := s.Query(ctx, "unknown", knowledge.Filter{})
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func TestQuery_TimeRangeInclusive(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	rec, err := s.Create(ctx, knowledge.CreateParams{Scope: "c", Content: "x"})
	require.NoError(t, err)

	got, err := s.Query(ctx, "c", knowledge.Filter{
		CreatedAfter:  rec.CreatedAt,
		CreatedBefore: rec.CreatedAt,
	})
	require.NoError(t, err)
	assert.Len(t, got, 1, "both bounds are inclusive")

	got, err = s.Query(ctx, "c", knowledge.Filter{CreatedAfter: rec.CreatedAt.Add(time.Nanosecond)})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	rec, err := s.Create(ctx, knowledge.CreateParams{Scope: "c", Content: "original"})
	require.NoError(t, err)
	rec.Content = "mutated by caller"

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "original", got.Content)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := inmem.New()

	_, err := s.Create(ctx, knowledge.CreateParams{Scope: "a", Content: "x"})
	require.NoError(t, err)
	_, err = s.Create(ctx, knowledge.CreateParams{Scope: "b", Content: "y"})
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx))

	for _, scope := range []string{"a", "b"} {
		got, err := s.ListByScope(ctx, scope)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}
