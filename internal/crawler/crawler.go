// internal/crawler/crawler.go

// Package crawler runs the scheduled search crawl that feeds repositories into the
// ingestion engine.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	custom_errors "repo-trend-tracker/internal/errors"
	"repo-trend-tracker/internal/github"
	"repo-trend-tracker/internal/syncer"
)

// Searcher pages through repository search results.
type Searcher interface {
	SearchRepositories(ctx context.Context, q github.SearchQuery) ([]github.SearchItem, error)
}

// Ingester refreshes a single repository.
type Ingester interface {
	Refresh(ctx context.Context, fullName string) (*syncer.Result, error)
}

// Options configure one crawler. They are fixed for the crawler's lifetime.
type Options struct {
	SearchYears int
	MinStars    int
	PerPage     int
	MaxPages    int
	ItemDelay   time.Duration
	Schedule    string
	Concurrency int
	OnStart     bool
}

// Crawler drives the ingestion engine over every repository matching the search query,
// either on its cron schedule or on demand. At most one run is active at a time.
type Crawler struct {
	searcher Searcher
	ingester Ingester
	opts     Options
	schedule cron.Schedule
	limiter  *rate.Limiter
	logger   *slog.Logger
	now      func() time.Time
	running  atomic.Bool

	// Triggered runs are bound to runsCtx and tracked by runs so Stop can drain them.
	runsCtx    context.Context
	cancelRuns context.CancelFunc
	runs       sync.WaitGroup
}

var scheduleParser = cron.NewParser(
	cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// New creates a new Crawler instance.
func New(searcher Searcher, ingester Ingester, opts Options, logger *slog.Logger) (*Crawler, error) {
	schedule, err := scheduleParser.Parse(opts.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid crawl schedule %q: %w", opts.Schedule, err)
	}
	opts.Concurrency = max(1, opts.Concurrency)
	opts.PerPage = max(1, opts.PerPage)

	limit := rate.Inf
	if opts.ItemDelay > 0 {
		limit = rate.Every(opts.ItemDelay)
	}

	runsCtx, cancelRuns := context.WithCancel(context.Background())
	return &Crawler{
		searcher:   searcher,
		ingester:   ingester,
		opts:       opts,
		schedule:   schedule,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
		now:        time.Now,
		runsCtx:    runsCtx,
		cancelRuns: cancelRuns,
	}, nil
}

// Start runs crawls on the configured schedule until ctx is cancelled, then stops
// any triggered run before returning. A scheduled tick that fires while a run is
// active is skipped.
func (c *Crawler) Start(ctx context.Context) {
	c.logger.Info("Starting crawler", "schedule", c.opts.Schedule, "concurrency", c.opts.Concurrency)

	scheduler := cron.New(cron.WithLocation(time.UTC))
	scheduler.Schedule(c.schedule, cron.FuncJob(func() {
		if _, err := c.RunOnce(ctx); err != nil {
			c.logger.Warn("Skipping scheduled crawl", "error", err)
		}
	}))
	scheduler.Start()

	if c.opts.OnStart {
		go func() {
			if _, err := c.RunOnce(ctx); err != nil {
				c.logger.Warn("Skipping initial crawl", "error", err)
			}
		}()
	}

	<-ctx.Done()
	c.logger.Info("Crawler shutting down", "reason", ctx.Err())
	<-scheduler.Stop().Done()
	c.Stop()
}

// Stop cancels triggered runs and waits for them to return.
func (c *Crawler) Stop() {
	c.cancelRuns()
	c.runs.Wait()
}

// RunOnce performs a full crawl synchronously.
func (c *Crawler) RunOnce(ctx context.Context) (*RunSummary, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, custom_errors.ErrCrawlInProgress
	}
	defer c.running.Store(false)
	return c.run(ctx, uuid.New()), nil
}

// Trigger starts a crawl in the background and returns its run id. The run
// outlives the caller's request and ends early only when the crawler is stopped.
func (c *Crawler) Trigger(ctx context.Context) (uuid.UUID, error) {
	if !c.running.CompareAndSwap(false, true) {
		return uuid.Nil, custom_errors.ErrCrawlInProgress
	}
	if err := c.runsCtx.Err(); err != nil {
		c.running.Store(false)
		return uuid.Nil, fmt.Errorf("crawler stopped: %w", err)
	}
	runID := uuid.New()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stopAfter := context.AfterFunc(c.runsCtx, cancel)

	c.runs.Add(1)
	go func() {
		defer c.runs.Done()
		defer c.running.Store(false)
		defer cancel()
		defer stopAfter()
		c.run(runCtx, runID)
	}()
	return runID, nil
}

// Running reports whether a crawl is in progress.
func (c *Crawler) Running() bool {
	return c.running.Load()
}

// Query builds the search expression for repositories created within the recency window.
func (c *Crawler) Query(now time.Time) string {
	since := now.AddDate(-c.opts.SearchYears, 0, 0).Format("2006-01-02")
	return fmt.Sprintf("stars:>=%d created:>=%s", c.opts.MinStars, since)
}

func (c *Crawler) run(ctx context.Context, runID uuid.UUID) *RunSummary {
	logger := c.logger.With("run_id", runID.String())
	summary := &RunSummary{RunID: runID, StartedAt: c.now().UTC(), StopReason: StopMaxPages}
	query := c.Query(summary.StartedAt)
	logger.Info("Starting crawl run", "query", query, "max_pages", c.opts.MaxPages)

	for page := 1; page <= c.opts.MaxPages; page++ {
		if ctx.Err() != nil {
			summary.StopReason = StopCanceled
			break
		}

		items, err := c.searcher.SearchRepositories(ctx, github.SearchQuery{
			Query:   query,
			Page:    page,
			PerPage: c.opts.PerPage,
		})
		if err != nil {
			logger.Error("Search failed, ending run early", "page", page, "error", err)
			summary.StopReason = StopSearchFailed
			break
		}
		if len(items) == 0 {
			summary.StopReason = StopEmptyPage
			break
		}

		summary.Pages++
		for _, res := range c.processPage(ctx, logger, items) {
			summary.add(res)
		}
		if ctx.Err() != nil {
			summary.StopReason = StopCanceled
			break
		}
	}

	summary.FinishedAt = c.now().UTC()
	logger.Info("Crawl run finished",
		"pages", summary.Pages, "ingested", summary.Ingested, "skipped", summary.Skipped,
		"failed", summary.Failed, "promoted", summary.Promoted, "stop_reason", summary.StopReason,
		"duration", summary.FinishedAt.Sub(summary.StartedAt).String())
	return summary
}

// processPage ingests one page of results. Per-item failures are recorded, never returned.
// The limiter spaces item starts; each worker then rests ItemDelay after its item
// finishes, so with concurrency 1 consecutive items are at least ItemDelay apart.
func (c *Crawler) processPage(ctx context.Context, logger *slog.Logger, items []github.SearchItem) []ItemResult {
	results := make([]ItemResult, 0, len(items))
	pending := make([]*ItemResult, len(items))

	var g errgroup.Group
	g.SetLimit(c.opts.Concurrency)

	for i, item := range items {
		if item.FullName == "" {
			logger.Debug("Skipping search item without a full name", "id", item.ID)
			pending[i] = &ItemResult{Outcome: OutcomeSkipped}
			continue
		}
		if err := c.limiter.Wait(ctx); err != nil {
			break
		}

		res := &ItemResult{FullName: item.FullName}
		pending[i] = res
		g.Go(func() error {
			defer c.pause(ctx)
			out, err := c.ingester.Refresh(ctx, item.FullName)
			if err != nil {
				logger.Error("Failed to ingest repository", "repo", item.FullName, "error", err)
				res.Outcome = OutcomeFailed
				res.Error = err.Error()
				return nil
			}
			res.Outcome = OutcomeIngested
			res.Stage = out.Repository.TrendStage
			res.Promoted = out.Promoted
			return nil
		})
	}
	_ = g.Wait()

	for _, res := range pending {
		if res != nil {
			results = append(results, *res)
		}
	}
	return results
}

// pause sleeps for ItemDelay or until ctx is done.
func (c *Crawler) pause(ctx context.Context) {
	if c.opts.ItemDelay <= 0 {
		return
	}
	t := time.NewTimer(c.opts.ItemDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
