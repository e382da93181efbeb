// internal/database/sqlite.go
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"repo-trend-tracker/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS repositories (
    id                  INTEGER PRIMARY KEY,
    name                TEXT NOT NULL DEFAULT '',
    full_name           TEXT NOT NULL DEFAULT '',
    owner_login         TEXT NOT NULL DEFAULT '',
    url                 TEXT NOT NULL DEFAULT '',
    description         TEXT NOT NULL DEFAULT '',
    language            TEXT NOT NULL DEFAULT '',
    star_count          INTEGER NOT NULL DEFAULT 0 CHECK (star_count >= 0),
    previous_star_count INTEGER NOT NULL DEFAULT 0 CHECK (previous_star_count >= 0),
    growth_rate         REAL NOT NULL DEFAULT 0,
    trend_score         REAL NOT NULL DEFAULT 0,
    trend_stage         INTEGER NOT NULL DEFAULT 0 CHECK (trend_stage IN (0, 1, 2)),
    document_text       TEXT,
    document_hash       TEXT,
    document_validator  TEXT,
    created_at          TEXT,
    pushed_at           TEXT,
    updated_at          TEXT,
    last_crawled_at     TEXT,
    last_evaluated_at   TEXT
);

CREATE TABLE IF NOT EXISTS candidates (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    repo_id     INTEGER NOT NULL UNIQUE,
    full_name   TEXT NOT NULL,
    promoted_at TEXT NOT NULL,
    dispatched  INTEGER NOT NULL DEFAULT 0 CHECK (dispatched IN (0, 1))
);

CREATE INDEX IF NOT EXISTS idx_repositories_full_name ON repositories(full_name COLLATE NOCASE);
CREATE INDEX IF NOT EXISTS idx_candidates_undispatched ON candidates(dispatched, promoted_at, id);
`

// sqliteTime is fixed-width so that lexical order matches chronological order.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is a single-file Store. All access goes through one connection,
// so transactions are serialized.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database file at path and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running schema migration: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Queries() Querier {
	return &sqliteQueries{db: s.db}
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(&sqliteQueries{db: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqliteDBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqliteQueries struct {
	db sqliteDBTX
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRepository(row rowScanner) (model.Repository, error) {
	var r model.Repository
	var stage int
	var created, pushed, updated, crawled, evaluated sql.NullString
	err := row.Scan(
		&r.ID, &r.Name, &r.FullName, &r.OwnerLogin, &r.URL, &r.Description, &r.Language,
		&r.StarCount, &r.PreviousStarCount, &r.GrowthRate, &r.TrendScore, &stage,
		&r.DocumentText, &r.DocumentHash, &r.DocumentValidator,
		&created, &pushed, &updated, &crawled, &evaluated,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Repository{}, ErrNotFound
	}
	if err != nil {
		return model.Repository{}, fmt.Errorf("scanning repository: %w", err)
	}
	r.TrendStage = model.TrendStage(stage)
	for _, f := range []struct {
		src sql.NullString
		dst **time.Time
	}{
		{created, &r.CreatedAt},
		{pushed, &r.PushedAt},
		{updated, &r.UpdatedAt},
		{crawled, &r.LastCrawledAt},
		{evaluated, &r.LastEvaluatedAt},
	} {
		if *f.dst, err = parseSQLiteTime(f.src); err != nil {
			return model.Repository{}, err
		}
	}
	return r, nil
}

func (q *sqliteQueries) LockRepository(ctx context.Context, id int64) error {
	return nil
}

func (q *sqliteQueries) GetRepository(ctx context.Context, id int64) (model.Repository, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+repositoryColumns+` FROM repositories WHERE id = ?`, id)
	return scanSQLiteRepository(row)
}

func (q *sqliteQueries) GetRepositoryByFullName(ctx context.Context, fullName string) (model.Repository, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE full_name = ? COLLATE NOCASE
		 ORDER BY last_crawled_at DESC LIMIT 1`, fullName)
	return scanSQLiteRepository(row)
}

func (q *sqliteQueries) GetRepositoriesByIDs(ctx context.Context, ids []int64) ([]model.Repository, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(ids)
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("listing repositories: %w", err)
	}
	defer rows.Close()

	var results []model.Repository
	for rows.Next() {
		r, err := scanSQLiteRepository(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (q *sqliteQueries) UpsertRepository(ctx context.Context, r model.Repository) (model.Repository, error) {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO repositories (`+repositoryColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			full_name = excluded.full_name,
			owner_login = excluded.owner_login,
			url = excluded.url,
			description = excluded.description,
			language = excluded.language,
			star_count = excluded.star_count,
			previous_star_count = excluded.previous_star_count,
			growth_rate = excluded.growth_rate,
			trend_score = excluded.trend_score,
			trend_stage = excluded.trend_stage,
			document_text = excluded.document_text,
			document_hash = excluded.document_hash,
			document_validator = excluded.document_validator,
			created_at = excluded.created_at,
			pushed_at = excluded.pushed_at,
			updated_at = excluded.updated_at,
			last_crawled_at = excluded.last_crawled_at,
			last_evaluated_at = excluded.last_evaluated_at`,
		r.ID, r.Name, r.FullName, r.OwnerLogin, r.URL, r.Description, r.Language,
		r.StarCount, r.PreviousStarCount, r.GrowthRate, r.TrendScore, int(r.TrendStage),
		r.DocumentText, r.DocumentHash, r.DocumentValidator,
		formatSQLiteTime(r.CreatedAt), formatSQLiteTime(r.PushedAt), formatSQLiteTime(r.UpdatedAt),
		formatSQLiteTime(r.LastCrawledAt), formatSQLiteTime(r.LastEvaluatedAt),
	)
	if err != nil {
		return model.Repository{}, fmt.Errorf("upserting repository: %w", err)
	}
	return q.GetRepository(ctx, r.ID)
}

func (q *sqliteQueries) CandidateExists(ctx context.Context, repoID int64) (bool, error) {
	var exists bool
	err := q.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM candidates WHERE repo_id = ?)`, repoID).Scan(&exists)
	return exists, err
}

func (q *sqliteQueries) CreateCandidate(ctx context.Context, c model.Candidate) (bool, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO candidates (repo_id, full_name, promoted_at, dispatched) VALUES (?, ?, ?, 0)
		 ON CONFLICT(repo_id) DO NOTHING`,
		c.RepoID, c.FullName, formatSQLiteTime(&c.PromotedAt),
	)
	if err != nil {
		return false, fmt.Errorf("creating candidate: %w", err)
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (q *sqliteQueries) ListUndispatchedCandidates(ctx context.Context, limit int) ([]model.Candidate, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, repo_id, full_name, promoted_at, dispatched
		 FROM candidates WHERE dispatched = 0
		 ORDER BY promoted_at ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing candidates: %w", err)
	}
	defer rows.Close()

	var results []model.Candidate
	for rows.Next() {
		var c model.Candidate
		var promotedAt string
		if err := rows.Scan(&c.ID, &c.RepoID, &c.FullName, &promotedAt, &c.Dispatched); err != nil {
			return nil, fmt.Errorf("scanning candidate: %w", err)
		}
		t, err := time.Parse(sqliteTime, promotedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing promoted_at: %w", err)
		}
		c.PromotedAt = t
		results = append(results, c)
	}
	return results, rows.Err()
}

func (q *sqliteQueries) MarkCandidatesDispatched(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders, args := inClause(ids)
	_, err := q.db.ExecContext(ctx, `UPDATE candidates SET dispatched = 1 WHERE id IN (`+placeholders+`)`, args...)
	return err
}

func (q *sqliteQueries) CountCandidates(ctx context.Context, repoID int64) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM candidates WHERE repo_id = ?`, repoID).Scan(&n)
	return n, err
}

func inClause(ids []int64) (string, []any) {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(ids)), ","), args
}

func formatSQLiteTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(sqliteTime), Valid: true}
}

func parseSQLiteTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(sqliteTime, s.String)
	if err != nil {
		return nil, fmt.Errorf("parsing timestamp %q: %w", s.String, err)
	}
	return &t, nil
}
