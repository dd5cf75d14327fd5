package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
)

// ProgressStore is an in-memory implementation of storage.Store, used in
// tests and when no Redis is configured. All records are stored as deep
// copies so callers can never alias the stored state.
type ProgressStore struct {
	mu          sync.RWMutex
	progress    map[string]domain.Progress
	setProgress map[string]domain.QuestionSetProgress
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		progress:    make(map[string]domain.Progress),
		setProgress: make(map[string]domain.QuestionSetProgress),
	}
}

func (s *ProgressStore) SaveProgress(_ context.Context, progress domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress[progress.SetID] = progress.Clone()
	return nil
}

func (s *ProgressStore) GetProgress(_ context.Context, setID string) (*domain.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.progress[setID]
	if !ok {
		return nil, nil
	}
	out := stored.Clone()
	return &out, nil
}

func (s *ProgressStore) ClearProgress(_ context.Context, setID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.progress, setID)
	return nil
}

func (s *ProgressStore) SaveSetProgress(_ context.Context, setProgress domain.QuestionSetProgress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setProgress[setProgress.SetID] = setProgress
	return nil
}

func (s *ProgressStore) GetSetProgress(_ context.Context, setID string) (*domain.QuestionSetProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stored, ok := s.setProgress[setID]
	if !ok {
		return nil, nil
	}
	out := stored
	return &out, nil
}

func (s *ProgressStore) ListProgress(_ context.Context) ([]domain.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Progress, 0, len(s.progress))
	for _, p := range s.progress {
		out = append(out, p.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SetID < out[j].SetID })
	return out, nil
}

func (s *ProgressStore) ListSetProgress(_ context.Context) ([]domain.QuestionSetProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.QuestionSetProgress, 0, len(s.setProgress))
	for _, sp := range s.setProgress {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SetID < out[j].SetID })
	return out, nil
}

func (s *ProgressStore) ClearAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = make(map[string]domain.Progress)
	s.setProgress = make(map[string]domain.QuestionSetProgress)
	return nil
}
