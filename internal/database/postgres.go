// internal/database/postgres.go
package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"repo-trend-tracker/internal/model"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Queries runs the tracker's SQL against Postgres.
type Queries struct {
	db DBTX
}

// New binds Queries to a pool, connection or transaction.
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

const repositoryColumns = `id, name, full_name, owner_login, url, description, language,
	star_count, previous_star_count, growth_rate, trend_score, trend_stage,
	document_text, document_hash, document_validator,
	created_at, pushed_at, updated_at, last_crawled_at, last_evaluated_at`

func scanRepository(row pgx.Row) (model.Repository, error) {
	var r model.Repository
	var stage int16
	err := row.Scan(
		&r.ID, &r.Name, &r.FullName, &r.OwnerLogin, &r.URL, &r.Description, &r.Language,
		&r.StarCount, &r.PreviousStarCount, &r.GrowthRate, &r.TrendScore, &stage,
		&r.DocumentText, &r.DocumentHash, &r.DocumentValidator,
		&r.CreatedAt, &r.PushedAt, &r.UpdatedAt, &r.LastCrawledAt, &r.LastEvaluatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Repository{}, ErrNotFound
	}
	r.TrendStage = model.TrendStage(stage)
	return r, err
}

const lockRepository = `SELECT pg_advisory_xact_lock($1)`

func (q *Queries) LockRepository(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, lockRepository, id)
	return err
}

const getRepository = `SELECT ` + repositoryColumns + ` FROM repositories WHERE id = $1`

func (q *Queries) GetRepository(ctx context.Context, id int64) (model.Repository, error) {
	return scanRepository(q.db.QueryRow(ctx, getRepository, id))
}

const getRepositoryByFullName = `SELECT ` + repositoryColumns + `
FROM repositories WHERE lower(full_name) = lower($1)
ORDER BY last_crawled_at DESC NULLS LAST LIMIT 1`

func (q *Queries) GetRepositoryByFullName(ctx context.Context, fullName string) (model.Repository, error) {
	return scanRepository(q.db.QueryRow(ctx, getRepositoryByFullName, fullName))
}

const getRepositoriesByIDs = `SELECT ` + repositoryColumns + ` FROM repositories WHERE id = ANY($1)`

func (q *Queries) GetRepositoriesByIDs(ctx context.Context, ids []int64) ([]model.Repository, error) {
	rows, err := q.db.Query(ctx, getRepositoriesByIDs, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, r)
	}
	return items, rows.Err()
}

const upsertRepository = `INSERT INTO repositories (` + repositoryColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	full_name = EXCLUDED.full_name,
	owner_login = EXCLUDED.owner_login,
	url = EXCLUDED.url,
	description = EXCLUDED.description,
	language = EXCLUDED.language,
	star_count = EXCLUDED.star_count,
	previous_star_count = EXCLUDED.previous_star_count,
	growth_rate = EXCLUDED.growth_rate,
	trend_score = EXCLUDED.trend_score,
	trend_stage = EXCLUDED.trend_stage,
	document_text = EXCLUDED.document_text,
	document_hash = EXCLUDED.document_hash,
	document_validator = EXCLUDED.document_validator,
	created_at = EXCLUDED.created_at,
	pushed_at = EXCLUDED.pushed_at,
	updated_at = EXCLUDED.updated_at,
	last_crawled_at = EXCLUDED.last_crawled_at,
	last_evaluated_at = EXCLUDED.last_evaluated_at
RETURNING ` + repositoryColumns

func (q *Queries) UpsertRepository(ctx context.Context, r model.Repository) (model.Repository, error) {
	row := q.db.QueryRow(ctx, upsertRepository,
		r.ID, r.Name, r.FullName, r.OwnerLogin, r.URL, r.Description, r.Language,
		r.StarCount, r.PreviousStarCount, r.GrowthRate, r.TrendScore, int16(r.TrendStage),
		r.DocumentText, r.DocumentHash, r.DocumentValidator,
		r.CreatedAt, r.PushedAt, r.UpdatedAt, r.LastCrawledAt, r.LastEvaluatedAt,
	)
	return scanRepository(row)
}

const candidateExists = `SELECT EXISTS (SELECT 1 FROM candidates WHERE repo_id = $1)`

func (q *Queries) CandidateExists(ctx context.Context, repoID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, candidateExists, repoID).Scan(&exists)
	return exists, err
}

const createCandidate = `INSERT INTO candidates (repo_id, full_name, promoted_at, dispatched)
VALUES ($1, $2, $3, FALSE)
ON CONFLICT (repo_id) DO NOTHING`

func (q *Queries) CreateCandidate(ctx context.Context, c model.Candidate) (bool, error) {
	tag, err := q.db.Exec(ctx, createCandidate, c.RepoID, c.FullName, c.PromotedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

const listUndispatchedCandidates = `SELECT id, repo_id, full_name, promoted_at, dispatched
FROM candidates
WHERE dispatched = FALSE
ORDER BY promoted_at ASC, id ASC
LIMIT $1
FOR UPDATE SKIP LOCKED`

func (q *Queries) ListUndispatchedCandidates(ctx context.Context, limit int) ([]model.Candidate, error) {
	rows, err := q.db.Query(ctx, listUndispatchedCandidates, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []model.Candidate
	for rows.Next() {
		var c model.Candidate
		if err := rows.Scan(&c.ID, &c.RepoID, &c.FullName, &c.PromotedAt, &c.Dispatched); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

const markCandidatesDispatched = `UPDATE candidates SET dispatched = TRUE WHERE id = ANY($1)`

func (q *Queries) MarkCandidatesDispatched(ctx context.Context, ids []int64) error {
	_, err := q.db.Exec(ctx, markCandidatesDispatched, ids)
	return err
}

const countCandidates = `SELECT count(*) FROM candidates WHERE repo_id = $1`

func (q *Queries) CountCandidates(ctx context.Context, repoID int64) (int, error) {
	var n int
	err := q.db.QueryRow(ctx, countCandidates, repoID).Scan(&n)
	return n, err
}

// PostgresStore is the pgxpool-backed Store.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Queries() Querier {
	return New(s.pool)
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // Rollback is a no-op if the transaction is already committed.

	if err := fn(New(tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
