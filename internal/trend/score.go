// internal/trend/score.go

// Package trend holds the pure growth-scoring and stage transition rules.
// Nothing in here performs I/O; callers pass the current time explicitly.
package trend

import (
	"math"
	"time"

	"repo-trend-tracker/internal/model"
)

// Params are the tunable scoring inputs. The zero value disables scoring entirely.
type Params struct {
	GrowthWeight  float64
	PenaltyWeight float64
	HalfLifeDays  float64
	Threshold     float64
}

// Evaluation describes what a single scoring pass did to a record.
type Evaluation struct {
	GrowthRate float64
	AgePenalty float64
	Score      float64
	OldStage   model.TrendStage
	NewStage   model.TrendStage
}

// Promoted reports whether this evaluation moved the record into the candidate stage.
func (e Evaluation) Promoted() bool {
	return e.OldStage < model.StageCandidate && e.NewStage == model.StageCandidate
}

// GrowthRate is the fractional change between two consecutive star observations.
func GrowthRate(prev, curr int) float64 {
	if prev <= 0 {
		return 0
	}
	return float64(curr-prev) / float64(prev)
}

// AgePenalty halves the weight of a repository every halfLifeDays of age.
// Age is counted in whole days; a nil creation time or non-positive half-life yields 1.
func AgePenalty(createdAt *time.Time, now time.Time, halfLifeDays float64) float64 {
	if createdAt == nil || halfLifeDays <= 0 {
		return 1.0
	}
	ageDays := math.Max(0, math.Trunc(now.Sub(*createdAt).Hours()/24))
	return math.Pow(0.5, ageDays/halfLifeDays)
}

// NextStage applies the stage machine. Stage 2 is terminal.
func NextStage(stage model.TrendStage, score, threshold float64) model.TrendStage {
	switch stage {
	case model.StageUnflagged, model.StageInteresting:
		if score >= threshold {
			return min(model.StageCandidate, stage+1)
		}
		return model.StageUnflagged
	default:
		return stage
	}
}

// Baseline initialises a record seen for the first time: the current star count
// becomes the reference point and nothing is flagged.
func Baseline(r model.Repository, now time.Time) model.Repository {
	r.PreviousStarCount = r.StarCount
	r.GrowthRate = 0
	r.TrendScore = 0
	r.TrendStage = model.StageUnflagged
	r.LastEvaluatedAt = &now
	return r
}

// Evaluate scores r against its previous star count and returns the updated record.
// The current star count becomes the baseline for the next evaluation.
func Evaluate(r model.Repository, p Params, now time.Time) (model.Repository, Evaluation) {
	ev := Evaluation{
		GrowthRate: GrowthRate(r.PreviousStarCount, r.StarCount),
		AgePenalty: AgePenalty(r.CreatedAt, now, p.HalfLifeDays),
		OldStage:   r.TrendStage,
	}
	ev.Score = ev.GrowthRate * p.GrowthWeight * ev.AgePenalty * p.PenaltyWeight
	ev.NewStage = NextStage(r.TrendStage, ev.Score, p.Threshold)

	r.GrowthRate = ev.GrowthRate
	r.TrendScore = ev.Score
	r.TrendStage = ev.NewStage
	r.LastEvaluatedAt = &now
	r.PreviousStarCount = r.StarCount
	return r, ev
}
