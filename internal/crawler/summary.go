// internal/crawler/summary.go
package crawler

import (
	"time"

	"github.com/google/uuid"

	"repo-trend-tracker/internal/model"
)

// Outcome is what happened to a single search item during a run.
type Outcome string

const (
	OutcomeIngested Outcome = "ingested"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// StopReason records why pagination ended.
type StopReason string

const (
	StopMaxPages     StopReason = "max_pages"
	StopEmptyPage    StopReason = "empty_page"
	StopSearchFailed StopReason = "search_failed"
	StopCanceled     StopReason = "canceled"
)

type ItemResult struct {
	FullName string           `json:"full_name"`
	Outcome  Outcome          `json:"outcome"`
	Stage    model.TrendStage `json:"stage"`
	Promoted bool             `json:"promoted,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// RunSummary is the observable result of one crawl run.
type RunSummary struct {
	RunID      uuid.UUID    `json:"run_id"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	Pages      int          `json:"pages"`
	Ingested   int          `json:"ingested"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	Promoted   int          `json:"promoted"`
	Failures   []ItemResult `json:"failures,omitempty"`
	StopReason StopReason   `json:"stop_reason"`
}

func (s *RunSummary) add(r ItemResult) {
	switch r.Outcome {
	case OutcomeIngested:
		s.Ingested++
		if r.Promoted {
			s.Promoted++
		}
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeFailed:
		s.Failed++
		s.Failures = append(s.Failures, r)
	}
}
