// internal/syncer/syncer.go
package syncer

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"strings"
	"time"

	"repo-trend-tracker/internal/database"
	custom_errors "repo-trend-tracker/internal/errors"
	"repo-trend-tracker/internal/github"
	"repo-trend-tracker/internal/model"
	"repo-trend-tracker/internal/trend"
)

// PlatformClient is the slice of the GitHub client the engine needs.
type PlatformClient interface {
	GetRepository(ctx context.Context, owner, name string) (*model.RepoMetadata, error)
	GetReadme(ctx context.Context, owner, name, etag string) (*model.Document, github.DocumentStatus, error)
}

// RepoIdentifier holds the owner and name of a repository.
type RepoIdentifier struct {
	Owner string
	Name  string
}

func (id RepoIdentifier) String() string {
	return id.Owner + "/" + id.Name
}

// Engine ingests single repositories: fetch, merge, score, persist.
type Engine struct {
	client PlatformClient
	store  database.Store
	params trend.Params
	logger *slog.Logger
	now    func() time.Time
}

// NewEngine creates a new Engine instance.
func NewEngine(client PlatformClient, store database.Store, params trend.Params, logger *slog.Logger) *Engine {
	return &Engine{
		client: client,
		store:  store,
		params: params,
		logger: logger,
		now:    time.Now,
	}
}

// Result is the outcome of one refresh.
type Result struct {
	Repository *model.Repository
	// Promoted is set only on the refresh that moved the record into the candidate stage.
	Promoted bool
}

// Ingest refreshes the trend record for fullName and returns the persisted result.
func (e *Engine) Ingest(ctx context.Context, fullName string) (*model.Repository, error) {
	res, err := e.Refresh(ctx, fullName)
	if err != nil {
		return nil, err
	}
	return res.Repository, nil
}

// Refresh is Ingest reporting whether this call promoted the repository.
// Metadata is fetched before any database work; a failed fetch persists nothing.
func (e *Engine) Refresh(ctx context.Context, fullName string) (*Result, error) {
	id, err := ParseRepoIdentifier(fullName)
	if err != nil {
		return nil, err
	}
	logger := e.logger.With("repo", id.String())

	meta, err := e.client.GetRepository(ctx, id.Owner, id.Name)
	if err != nil {
		return nil, &custom_errors.ErrUpstreamUnavailable{Op: "get repository", Target: id.String(), Err: err}
	}
	if meta == nil {
		return nil, &custom_errors.ErrUpstreamUnavailable{Op: "get repository", Target: id.String()}
	}
	logger = logger.With("repo_id", meta.ID)

	var (
		saved    model.Repository
		promoted bool
	)
	err = e.store.InTx(ctx, func(q database.Querier) error {
		if err := q.LockRepository(ctx, meta.ID); err != nil {
			return err
		}

		existing, err := q.GetRepository(ctx, meta.ID)
		isNew := errors.Is(err, database.ErrNotFound)
		if err != nil && !isNew {
			return err
		}
		if isNew {
			logger.Info("Repository not found in DB, creating new entry")
			existing = model.Repository{ID: meta.ID}
		}

		rec := mergeMetadata(existing, meta)
		rec = e.refreshDocument(ctx, logger, id, rec)

		now := e.now().UTC()
		if isNew {
			rec = trend.Baseline(rec, now)
		} else {
			var ev trend.Evaluation
			rec, ev = trend.Evaluate(rec, e.params, now)
			logger.Debug("Evaluated repository",
				"growth_rate", ev.GrowthRate, "age_penalty", ev.AgePenalty,
				"score", ev.Score, "old_stage", ev.OldStage, "new_stage", ev.NewStage)
			if ev.Promoted() {
				if err := promote(ctx, q, rec, now); err != nil {
					return err
				}
				promoted = true
				logger.Info("Repository promoted to candidate", "score", ev.Score)
			}
		}

		rec.LastCrawledAt = &now
		saved, err = q.UpsertRepository(ctx, rec)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Ingested repository", "stars", saved.StarCount, "stage", saved.TrendStage, "score", saved.TrendScore)
	return &Result{Repository: &saved, Promoted: promoted}, nil
}

// Get returns the stored record for fullName without contacting the platform.
func (e *Engine) Get(ctx context.Context, fullName string) (*model.Repository, error) {
	if _, err := ParseRepoIdentifier(fullName); err != nil {
		return nil, err
	}
	r, err := e.store.Queries().GetRepositoryByFullName(ctx, fullName)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// mergeMetadata overwrites display fields and counters. CreatedAt is kept once set.
func mergeMetadata(r model.Repository, m *model.RepoMetadata) model.Repository {
	r.Name = m.Name
	r.FullName = m.FullName
	r.OwnerLogin = m.OwnerLogin
	r.URL = m.URL
	r.Description = m.Description
	r.Language = m.Language
	r.StarCount = max(0, m.StarCount)
	if r.CreatedAt == nil {
		r.CreatedAt = m.CreatedAt
	}
	r.PushedAt = m.PushedAt
	r.UpdatedAt = m.UpdatedAt
	return r
}

// refreshDocument conditionally re-fetches the README. Anything other than a fresh
// payload leaves the cached document alone.
func (e *Engine) refreshDocument(ctx context.Context, logger *slog.Logger, id RepoIdentifier, r model.Repository) model.Repository {
	etag := ""
	if r.DocumentValidator != nil {
		etag = *r.DocumentValidator
	}

	doc, status, err := e.client.GetReadme(ctx, id.Owner, id.Name, etag)
	if status != github.DocumentUpdated || doc == nil {
		if err != nil {
			logger.Warn("README fetch skipped", "status", status.String(), "error", err)
		} else {
			logger.Debug("README fetch skipped", "status", status.String())
		}
		return r
	}

	var text *string
	if doc.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(doc.Content, "\n", ""))
		if err != nil {
			logger.Warn("README payload is not valid base64, keeping cached copy", "error", err)
			return r
		}
		s := string(decoded)
		text = &s
	}

	r.DocumentText = text
	r.DocumentHash = optional(doc.SHA)
	if doc.ETag != "" {
		r.DocumentValidator = &doc.ETag
	}
	return r
}

func promote(ctx context.Context, q database.Querier, r model.Repository, now time.Time) error {
	exists, err := q.CandidateExists(ctx, r.ID)
	if err != nil || exists {
		return err
	}
	_, err = q.CreateCandidate(ctx, model.Candidate{
		RepoID:     r.ID,
		FullName:   r.FullName,
		PromotedAt: now,
	})
	return err
}

// ParseRepoIdentifier splits "owner/name".
func ParseRepoIdentifier(r string) (RepoIdentifier, error) {
	parts := strings.Split(r, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoIdentifier{}, &custom_errors.ErrInvalidRepoFormat{Repo: r}
	}
	return RepoIdentifier{Owner: parts[0], Name: parts[1]}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
