// internal/syncer/dispatcher.go
package syncer

import (
	"context"
	"log/slog"

	"repo-trend-tracker/internal/database"
	"repo-trend-tracker/internal/model"
)

// Dispatcher hands promoted repositories to downstream consumers, each exactly once.
type Dispatcher struct {
	store  database.Store
	logger *slog.Logger
}

func NewDispatcher(store database.Store, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{store: store, logger: logger}
}

// TakeOldestUndispatched marks up to limit of the oldest undispatched candidates as
// dispatched and returns their repository records in promotion order. The select and
// the mark commit together. Candidates whose record has gone missing are still marked.
func (d *Dispatcher) TakeOldestUndispatched(ctx context.Context, limit int) ([]model.Repository, error) {
	limit = max(1, limit)
	out := []model.Repository{}

	err := d.store.InTx(ctx, func(q database.Querier) error {
		candidates, err := q.ListUndispatchedCandidates(ctx, limit)
		if err != nil || len(candidates) == 0 {
			return err
		}

		candidateIDs := make([]int64, len(candidates))
		repoIDs := make([]int64, len(candidates))
		for i, c := range candidates {
			candidateIDs[i] = c.ID
			repoIDs[i] = c.RepoID
		}
		if err := q.MarkCandidatesDispatched(ctx, candidateIDs); err != nil {
			return err
		}

		repos, err := q.GetRepositoriesByIDs(ctx, repoIDs)
		if err != nil {
			return err
		}
		byID := make(map[int64]model.Repository, len(repos))
		for _, r := range repos {
			byID[r.ID] = r
		}
		for _, c := range candidates {
			r, ok := byID[c.RepoID]
			if !ok {
				d.logger.Warn("Dispatched candidate has no repository record", "candidate_id", c.ID, "repo_id", c.RepoID)
				continue
			}
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("Dispatched candidates", "count", len(out), "limit", limit)
	return out, nil
}
