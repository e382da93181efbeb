// internal/database/sqlite_test.go
package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repo-trend-tracker/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "trend.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func strPtr(s string) *string { return &s }

func TestSQLiteStore_UpsertAndGet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	q := store.Queries()

	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	in := model.Repository{
		ID:           42,
		Name:         "repo",
		FullName:     "Octo/Repo",
		OwnerLogin:   "Octo",
		StarCount:    1000,
		TrendStage:   model.StageInteresting,
		GrowthRate:   0.3,
		TrendScore:   0.25,
		DocumentText: strPtr("hello"),
		CreatedAt:    &created,
	}

	out, err := q.UpsertRepository(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, int64(42), out.ID)
	assert.Equal(t, model.StageInteresting, out.TrendStage)
	require.NotNil(t, out.CreatedAt)
	assert.True(t, created.Equal(*out.CreatedAt))
	assert.Nil(t, out.DocumentHash)
	assert.Nil(t, out.LastCrawledAt)

	in.StarCount = 1300
	in.DocumentText = nil
	_, err = q.UpsertRepository(ctx, in)
	require.NoError(t, err)

	got, err := q.GetRepository(ctx, 42)
	require.NoError(t, err)
	assert.Equal(t, 1300, got.StarCount)
	assert.Nil(t, got.DocumentText)

	byName, err := q.GetRepositoryByFullName(ctx, "octo/repo")
	require.NoError(t, err)
	assert.Equal(t, int64(42), byName.ID)
}

func TestSQLiteStore_GetMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Queries().GetRepository(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.Queries().GetRepositoryByFullName(context.Background(), "nobody/nothing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_GetRepositoriesByIDs(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	q := store.Queries()

	for _, id := range []int64{1, 2, 3} {
		_, err := q.UpsertRepository(ctx, model.Repository{ID: id, FullName: "o/r"})
		require.NoError(t, err)
	}

	got, err := q.GetRepositoriesByIDs(ctx, []int64{3, 1, 99})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	none, err := q.GetRepositoriesByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_Candidates(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	q := store.Queries()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	inserted, err := q.CreateCandidate(ctx, model.Candidate{RepoID: 10, FullName: "a/ten", PromotedAt: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.True(t, inserted)
	_, err = q.CreateCandidate(ctx, model.Candidate{RepoID: 20, FullName: "a/twenty", PromotedAt: base})
	require.NoError(t, err)

	inserted, err = q.CreateCandidate(ctx, model.Candidate{RepoID: 10, FullName: "a/ten", PromotedAt: base})
	require.NoError(t, err)
	assert.False(t, inserted, "a repo is promoted at most once")

	exists, err := q.CandidateExists(ctx, 10)
	require.NoError(t, err)
	assert.True(t, exists)
	n, err := q.CountCandidates(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := q.ListUndispatchedCandidates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, int64(20), list[0].RepoID)
	assert.Equal(t, int64(10), list[1].RepoID)
	assert.True(t, base.Equal(list[0].PromotedAt))
	assert.False(t, list[0].Dispatched)

	require.NoError(t, q.MarkCandidatesDispatched(ctx, []int64{list[0].ID}))

	list, err = q.ListUndispatchedCandidates(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(10), list[0].RepoID)
}

func TestSQLiteStore_InTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	err := store.InTx(ctx, func(q Querier) error {
		if _, err := q.UpsertRepository(ctx, model.Repository{ID: 5, FullName: "o/five"}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	_, err = store.Queries().GetRepository(ctx, 5)
	assert.ErrorIs(t, err, ErrNotFound)
}
