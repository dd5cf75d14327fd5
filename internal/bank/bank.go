// Package bank exposes the question-bank collaborator: read-only question
// sets and questions consumed by the session layer.
package bank

import (
	"context"
	"sort"

	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
)

// QuestionBank loads immutable question-set content.
type QuestionBank interface {
	ListQuestionSets(ctx context.Context) ([]domain.QuestionSet, error)
	// ListQuestions returns the set's questions ordered by their order field.
	ListQuestions(ctx context.Context, setID string) ([]domain.Question, error)
}

// StaticBank serves fixed content from memory (tests and demo mode).
type StaticBank struct {
	sets      []domain.QuestionSet
	questions map[string][]domain.Question
}

func NewStaticBank(sets []domain.QuestionSet, questions map[string][]domain.Question) *StaticBank {
	return &StaticBank{sets: sets, questions: questions}
}

func (b *StaticBank) ListQuestionSets(_ context.Context) ([]domain.QuestionSet, error) {
	out := make([]domain.QuestionSet, len(b.sets))
	copy(out, b.sets)
	return out, nil
}

func (b *StaticBank) ListQuestions(_ context.Context, setID string) ([]domain.Question, error) {
	questions, ok := b.questions[setID]
	if !ok {
		return nil, nil
	}
	out := make([]domain.Question, len(questions))
	copy(out, questions)
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}
