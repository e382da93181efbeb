// internal/model/models.go
package model

import "time"

// TrendStage is the coarse growth state of a tracked repository.
type TrendStage int

const (
	StageUnflagged   TrendStage = 0
	StageInteresting TrendStage = 1
	StageCandidate   TrendStage = 2
)

// RepoMetadata is the subset of the platform's repository payload the tracker consumes.
type RepoMetadata struct {
	ID          int64
	Name        string
	FullName    string
	OwnerLogin  string
	URL         string
	Description string
	Language    string
	StarCount   int
	CreatedAt   *time.Time
	PushedAt    *time.Time
	UpdatedAt   *time.Time
}

// Document is the raw long-form descriptive text (README) payload.
type Document struct {
	Content  string
	Encoding string
	SHA      string
	ETag     string
}

// Repository is the trend record of one tracked repository, keyed by the platform id.
type Repository struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	FullName    string `json:"full_name"`
	OwnerLogin  string `json:"owner_login"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Language    string `json:"language"`

	StarCount         int        `json:"star_count"`
	PreviousStarCount int        `json:"previous_star_count"`
	GrowthRate        float64    `json:"growth_rate"`
	TrendScore        float64    `json:"trend_score"`
	TrendStage        TrendStage `json:"trend_stage"`

	DocumentText      *string `json:"document_text,omitempty"`
	DocumentHash      *string `json:"document_hash,omitempty"`
	DocumentValidator *string `json:"-"`

	CreatedAt       *time.Time `json:"created_at,omitempty"`
	PushedAt        *time.Time `json:"pushed_at,omitempty"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
	LastCrawledAt   *time.Time `json:"last_crawled_at,omitempty"`
	LastEvaluatedAt *time.Time `json:"last_evaluated_at,omitempty"`
}

// Candidate is a single promotion event queued for downstream analysis.
// RepoID is a weak reference and FullName a snapshot taken at promotion time.
type Candidate struct {
	ID         int64     `json:"id"`
	RepoID     int64     `json:"repo_id"`
	FullName   string    `json:"full_name"`
	PromotedAt time.Time `json:"promoted_at"`
	Dispatched bool      `json:"dispatched"`
}
