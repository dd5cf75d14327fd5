// Package results derives scores from resolved progress records and
// maintains the per-set rollup.
package results

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
	"github.com/MikeyZhang75/AI-Tutor/internal/storage"
)

// ComputeScore returns the percentage score and total available points
// for a progress against the immutable question list. Only answers in
// correct status earn points. A set worth zero points scores zero.
func ComputeScore(progress domain.Progress, questions []domain.Question) (score, totalPoints int) {
	pointsByID := make(map[string]int, len(questions))
	for _, q := range questions {
		totalPoints += q.Points
		pointsByID[q.ID] = q.Points
	}
	if totalPoints == 0 {
		return 0, 0
	}

	earned := 0
	for _, answer := range progress.Answers {
		if answer.VerificationStatus != domain.StatusCorrect {
			continue
		}
		earned += pointsByID[answer.QuestionID]
	}
	score = int(math.Round(100 * float64(earned) / float64(totalPoints)))
	return score, totalPoints
}

// Eligible reports whether a progress can be rolled up: every answer has
// reached a terminal status.
func Eligible(progress domain.Progress) bool {
	return !progress.HasUnresolved()
}

// Aggregator finalizes completed attempts and writes rollup records.
type Aggregator struct {
	store storage.Store
	now   func() time.Time
}

func NewAggregator(store storage.Store) *Aggregator {
	return &Aggregator{store: store, now: time.Now}
}

// NewAggregatorWithClock allows deterministic timestamps in tests.
func NewAggregatorWithClock(store storage.Store, now func() time.Time) *Aggregator {
	return &Aggregator{store: store, now: now}
}

// Finalize loads the set's progress and, once eligible, stamps the
// completion fields, persists it, and updates the rollup. Finalizing an
// already completed progress is idempotent: the rollup is not rewritten.
// The returned progress reflects the latest stored state either way.
func (a *Aggregator) Finalize(ctx context.Context, setID string, questions []domain.Question) (*domain.Progress, error) {
	progress, err := a.store.GetProgress(ctx, setID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, domain.ErrNoProgress
	}
	if !Eligible(*progress) || progress.CompletedAt != nil {
		return progress, nil
	}

	score, totalPoints := ComputeScore(*progress, questions)
	completedAt := a.now()
	progress.CompletedAt = &completedAt
	progress.Score = &score
	progress.TotalPoints = &totalPoints

	if err := a.store.SaveProgress(ctx, *progress); err != nil {
		return nil, err
	}
	a.writeRollup(ctx, setID, score)
	return progress, nil
}

// writeRollup accumulates against any prior rollup: attempts count up,
// the high score is kept.
func (a *Aggregator) writeRollup(ctx context.Context, setID string, score int) {
	prior, err := a.store.GetSetProgress(ctx, setID)
	if err != nil {
		log.Printf("load rollup for set %s: %v", setID, err)
		prior = nil
	}

	attempts := 1
	high := score
	if prior != nil {
		attempts = prior.TotalAttempts + 1
		if prior.HighScore > high {
			high = prior.HighScore
		}
	}
	now := a.now()
	rollup := domain.QuestionSetProgress{
		SetID:           setID,
		Completed:       true,
		HighScore:       high,
		LastAttemptDate: &now,
		TotalAttempts:   attempts,
	}
	if err := a.store.SaveSetProgress(ctx, rollup); err != nil {
		log.Printf("save rollup for set %s: %v", setID, err)
	}
}

// Retry clears the in-flight progress so the learner can start the set
// over. The rollup is untouched.
func (a *Aggregator) Retry(ctx context.Context, setID string) error {
	return a.store.ClearProgress(ctx, setID)
}

// Overview lists every rollup record, for the storage/overview screen.
func (a *Aggregator) Overview(ctx context.Context) ([]domain.QuestionSetProgress, error) {
	return a.store.ListSetProgress(ctx)
}
