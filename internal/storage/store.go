// Package storage defines the durable progress store contract.
//
// Progress and QuestionSetProgress records live under distinct key
// namespaces keyed by set ID. Reads return (nil, nil) when no record
// exists; callers treat read failures as "no data" at the boundary.
package storage

import (
	"context"

	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
)

// Store persists per-set progress and rollup records.
type Store interface {
	SaveProgress(ctx context.Context, progress domain.Progress) error
	GetProgress(ctx context.Context, setID string) (*domain.Progress, error)
	ClearProgress(ctx context.Context, setID string) error

	SaveSetProgress(ctx context.Context, setProgress domain.QuestionSetProgress) error
	GetSetProgress(ctx context.Context, setID string) (*domain.QuestionSetProgress, error)

	ListProgress(ctx context.Context) ([]domain.Progress, error)
	ListSetProgress(ctx context.Context) ([]domain.QuestionSetProgress, error)

	ClearAll(ctx context.Context) error
}
