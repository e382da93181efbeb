// internal/trend/score_test.go
package trend

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"repo-trend-tracker/internal/model"
)

var defaultParams = Params{GrowthWeight: 1, PenaltyWeight: 1, HalfLifeDays: 720, Threshold: 0.10}

func TestGrowthRate(t *testing.T) {
	assert.InDelta(t, 0.5, GrowthRate(100, 150), 1e-9)
	assert.Equal(t, 0.0, GrowthRate(0, 5000))
	assert.Equal(t, 0.0, GrowthRate(-3, 10))
	assert.InDelta(t, -0.1, GrowthRate(100, 90), 1e-9)
}

func TestAgePenalty(t *testing.T) {
	now := time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

	t.Run("nil creation time is neutral", func(t *testing.T) {
		assert.Equal(t, 1.0, AgePenalty(nil, now, 720))
	})

	t.Run("non-positive half-life disables decay", func(t *testing.T) {
		created := now.AddDate(-5, 0, 0)
		assert.Equal(t, 1.0, AgePenalty(&created, now, 0))
	})

	t.Run("one half-life halves the weight", func(t *testing.T) {
		created := now.AddDate(0, 0, -720)
		assert.InDelta(t, 0.5, AgePenalty(&created, now, 720), 1e-9)
	})

	t.Run("partial days are truncated", func(t *testing.T) {
		created := now.Add(-23 * time.Hour)
		assert.Equal(t, 1.0, AgePenalty(&created, now, 720))
	})

	t.Run("future creation time clamps to zero age", func(t *testing.T) {
		created := now.AddDate(0, 0, 3)
		assert.Equal(t, 1.0, AgePenalty(&created, now, 720))
	})
}

func TestNextStage(t *testing.T) {
	tests := []struct {
		name  string
		stage model.TrendStage
		score float64
		want  model.TrendStage
	}{
		{"unflagged above threshold", model.StageUnflagged, 0.2, model.StageInteresting},
		{"unflagged at threshold", model.StageUnflagged, 0.1, model.StageInteresting},
		{"unflagged below threshold", model.StageUnflagged, 0.05, model.StageUnflagged},
		{"interesting above threshold", model.StageInteresting, 0.3, model.StageCandidate},
		{"interesting below threshold demotes", model.StageInteresting, 0.01, model.StageUnflagged},
		{"candidate with high score is frozen", model.StageCandidate, 5, model.StageCandidate},
		{"candidate with negative score is frozen", model.StageCandidate, -1, model.StageCandidate},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextStage(tt.stage, tt.score, 0.1))
		})
	}
}

func TestBaseline(t *testing.T) {
	now := time.Now().UTC()
	r := Baseline(model.Repository{StarCount: 5000, GrowthRate: 9, TrendScore: 9, TrendStage: model.StageInteresting}, now)

	assert.Equal(t, 5000, r.PreviousStarCount)
	assert.Equal(t, 0.0, r.GrowthRate)
	assert.Equal(t, 0.0, r.TrendScore)
	assert.Equal(t, model.StageUnflagged, r.TrendStage)
	assert.Equal(t, now, *r.LastEvaluatedAt)
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, 10, 17, 0, 0, 0, 0, time.UTC)
	created := now.AddDate(0, 0, -10)

	t.Run("scores growth and advances the baseline", func(t *testing.T) {
		r := model.Repository{StarCount: 1300, PreviousStarCount: 1000, CreatedAt: &created}
		got, ev := Evaluate(r, defaultParams, now)

		assert.InDelta(t, 0.3, ev.GrowthRate, 1e-9)
		assert.InDelta(t, 0.3*math.Pow(0.5, 10.0/720), got.TrendScore, 1e-9)
		assert.Equal(t, model.StageInteresting, got.TrendStage)
		assert.Equal(t, 1300, got.PreviousStarCount)
		assert.Equal(t, now, *got.LastEvaluatedAt)
		assert.False(t, ev.Promoted())
	})

	t.Run("reports promotion into the candidate stage", func(t *testing.T) {
		r := model.Repository{StarCount: 2200, PreviousStarCount: 1700, TrendStage: model.StageInteresting, CreatedAt: &created}
		got, ev := Evaluate(r, defaultParams, now)

		assert.Equal(t, model.StageCandidate, got.TrendStage)
		assert.True(t, ev.Promoted())
	})

	t.Run("candidate stage keeps recomputing the score", func(t *testing.T) {
		r := model.Repository{StarCount: 900, PreviousStarCount: 1000, TrendStage: model.StageCandidate, CreatedAt: &created}
		got, ev := Evaluate(r, defaultParams, now)

		assert.Equal(t, model.StageCandidate, got.TrendStage)
		assert.Less(t, got.TrendScore, 0.0)
		assert.False(t, ev.Promoted())
	})

	t.Run("zero weight disables promotion", func(t *testing.T) {
		p := defaultParams
		p.GrowthWeight = 0
		r := model.Repository{StarCount: 5000, PreviousStarCount: 1000, CreatedAt: &created}
		got, _ := Evaluate(r, p, now)

		assert.Equal(t, 0.0, got.TrendScore)
		assert.Equal(t, model.StageUnflagged, got.TrendStage)
	})
}
