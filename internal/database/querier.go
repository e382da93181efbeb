// internal/database/querier.go

// Package database persists repository trend records and promotion candidates.
// Two backends implement the same Querier: Postgres (pgx) and an embedded SQLite file.
package database

import (
	"context"
	"errors"

	"repo-trend-tracker/internal/model"
)

// ErrNotFound is returned by single-row lookups that match nothing.
var ErrNotFound = errors.New("database: record not found")

// Querier is the set of queries the tracker runs against either backend.
type Querier interface {
	// LockRepository serializes writers of one repository id until the transaction ends.
	LockRepository(ctx context.Context, id int64) error
	GetRepository(ctx context.Context, id int64) (model.Repository, error)
	GetRepositoryByFullName(ctx context.Context, fullName string) (model.Repository, error)
	GetRepositoriesByIDs(ctx context.Context, ids []int64) ([]model.Repository, error)
	UpsertRepository(ctx context.Context, r model.Repository) (model.Repository, error)

	CandidateExists(ctx context.Context, repoID int64) (bool, error)
	// CreateCandidate inserts a promotion event and reports false if one already exists for the repo.
	CreateCandidate(ctx context.Context, c model.Candidate) (bool, error)
	// ListUndispatchedCandidates returns the oldest undispatched candidates, locking them
	// against concurrent dispatchers where the backend supports row locks.
	ListUndispatchedCandidates(ctx context.Context, limit int) ([]model.Candidate, error)
	MarkCandidatesDispatched(ctx context.Context, ids []int64) error
	// CountCandidates has no production caller; tests use it to check promotion dedup.
	CountCandidates(ctx context.Context, repoID int64) (int, error)
}

// Store hands out queriers, either bound to a transaction or to the plain connection.
type Store interface {
	// InTx runs fn inside a transaction; fn's error rolls it back.
	InTx(ctx context.Context, fn func(q Querier) error) error
	Queries() Querier
	Close() error
}
