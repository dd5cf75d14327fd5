// Package session holds the answer lifecycle state machine: one Session
// coordinates the active question set, answer submission, background
// verification, and polling-driven reconciliation against the store.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/MikeyZhang75/AI-Tutor/internal/bank"
	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
	"github.com/MikeyZhang75/AI-Tutor/internal/poll"
	"github.com/MikeyZhang75/AI-Tutor/internal/storage"
	"github.com/MikeyZhang75/AI-Tutor/internal/verify"
)

// Direction selects where Navigate moves.
type Direction string

const (
	Next     Direction = "next"
	Previous Direction = "previous"
)

// Session orchestrates one learner's pass through a question set. All
// state mutation goes through the reducer; collaborator calls happen
// outside the lock wherever possible.
type Session struct {
	bank     bank.QuestionBank
	store    storage.Store
	verifier *verify.Service
	poller   *poll.Coordinator
	now      func() time.Time

	mu          sync.Mutex
	state       State
	subscribers map[chan State]struct{}
}

func New(b bank.QuestionBank, store storage.Store, verifier *verify.Service) *Session {
	return NewWithClock(b, store, verifier, time.Now)
}

// NewWithClock allows deterministic timestamps in tests.
func NewWithClock(b bank.QuestionBank, store storage.Store, verifier *verify.Service, now func() time.Time) *Session {
	return &Session{
		bank:        b,
		store:       store,
		verifier:    verifier,
		poller:      poll.NewCoordinator(verifier, store),
		now:         now,
		state:       InitialState(),
		subscribers: make(map[chan State]struct{}),
	}
}

// State returns a snapshot of the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel receiving state snapshots after every
// mutation. The caller must invoke the cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

// StartQuestionSet loads a set and its questions, then resumes existing
// progress or creates a fresh record. Calling it again for the already
// active set is a no-op so screen remounts never refetch.
func (s *Session) StartQuestionSet(ctx context.Context, setID string) error {
	s.mu.Lock()
	if s.state.CurrentSet != nil && s.state.CurrentSet.ID == setID && s.state.CurrentProgress != nil {
		s.mu.Unlock()
		return nil
	}
	s.dispatchLocked(Action{Type: SetExiting, Exiting: false})
	s.dispatchLocked(Action{Type: StartLoading})
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.dispatchLocked(Action{Type: FinishLoading})
		s.mu.Unlock()
	}()

	sets, err := s.bank.ListQuestionSets(ctx)
	if err != nil {
		s.fail("failed to load question sets: " + err.Error())
		return err
	}
	var set *domain.QuestionSet
	for i := range sets {
		if sets[i].ID == setID {
			set = &sets[i]
			break
		}
	}
	if set == nil {
		s.fail("question set " + setID + " not found")
		return domain.ErrSetNotFound
	}

	questions, err := s.bank.ListQuestions(ctx, setID)
	if err != nil {
		s.fail("failed to load questions: " + err.Error())
		return err
	}
	if len(questions) == 0 {
		s.fail("question set " + setID + " has no questions")
		return domain.ErrSetEmpty
	}

	s.mu.Lock()
	s.dispatchLocked(Action{Type: SetQuestionSet, Set: set, Questions: questions})
	s.mu.Unlock()

	existing, err := s.store.GetProgress(ctx, setID)
	if err != nil {
		// Storage reads degrade to "no data": a fresh attempt starts.
		log.Printf("load progress for set %s: %v", setID, err)
		existing = nil
	}

	s.mu.Lock()
	if existing != nil && len(existing.Answers) > 0 {
		index := existing.CurrentQuestionIndex
		if index < 0 || index >= len(questions) {
			index = len(questions) - 1
		}
		s.dispatchLocked(Action{Type: SetProgress, Progress: existing})
		s.dispatchLocked(Action{Type: SetQuestionIndex, Index: index})
		s.mu.Unlock()
		return nil
	}
	fresh := domain.Progress{
		SetID:                setID,
		CurrentQuestionIndex: 0,
		Answers:              []domain.Answer{},
		StartedAt:            s.now(),
	}
	s.dispatchLocked(Action{Type: SetProgress, Progress: &fresh})
	s.mu.Unlock()

	if err := s.store.SaveProgress(ctx, fresh); err != nil {
		log.Printf("save fresh progress for set %s: %v", setID, err)
	}
	return nil
}

// SubmitAnswer records a pending answer for the current question, hands
// it to the verification service, and arms polling so the resolved
// result is reconciled back from the store.
func (s *Session) SubmitAnswer(ctx context.Context, artifact string, strokes []domain.Stroke) error {
	s.mu.Lock()
	progress := s.state.CurrentProgress
	question := s.currentQuestionLocked()
	if progress == nil {
		s.dispatchLocked(Action{Type: SetError, Err: "no active question to answer"})
		s.mu.Unlock()
		return domain.ErrNoActiveSession
	}
	if question == nil {
		s.dispatchLocked(Action{Type: SetError, Err: "no active question to answer"})
		s.mu.Unlock()
		return domain.ErrNoCurrentQuestion
	}

	attempt := 1
	if prev := progress.FindAnswer(question.ID); prev != nil {
		attempt = prev.AttemptNumber + 1
	}
	answer := domain.Answer{
		QuestionID:         question.ID,
		UserAnswer:         artifact,
		Strokes:            strokes,
		SubmittedAt:        s.now(),
		VerificationStatus: domain.StatusPending,
		AttemptNumber:      attempt,
	}
	s.dispatchLocked(Action{Type: AddOrUpdateAnswer, Answer: &answer})

	merged := s.state.CurrentProgress.Clone()
	q := *question
	s.mu.Unlock()

	if err := s.store.SaveProgress(ctx, merged); err != nil {
		log.Printf("save progress for set %s: %v", merged.SetID, err)
	}

	s.verifier.QueueVerification(answer, q, merged.SetID)

	s.poller.WatchQuestion(merged.SetID, q.ID, poll.QuestionInterval, func(latest domain.Progress) {
		s.mu.Lock()
		s.dispatchLocked(Action{Type: SetProgress, Progress: &latest})
		s.mu.Unlock()
	})
	return nil
}

// Navigate moves to the adjacent question. Boundary moves are no-ops
// with no store write. Progress is reloaded fresh from the store first
// so a just-resolved background verification is never clobbered.
func (s *Session) Navigate(ctx context.Context, direction Direction) error {
	s.mu.Lock()
	if s.state.CurrentProgress == nil {
		s.mu.Unlock()
		return domain.ErrNoProgress
	}
	index := s.state.CurrentQuestionIndex
	count := len(s.state.CurrentQuestions)
	setID := s.state.CurrentProgress.SetID

	var next int
	switch direction {
	case Next:
		if index >= count-1 {
			s.mu.Unlock()
			return nil
		}
		next = index + 1
	case Previous:
		if index <= 0 {
			s.mu.Unlock()
			return nil
		}
		next = index - 1
	default:
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	// Navigating away abandons interest in the old question's polling;
	// verification keeps running in the background regardless.
	s.poller.Stop()

	latest, err := s.store.GetProgress(ctx, setID)
	if err != nil {
		log.Printf("reload progress for set %s: %v", setID, err)
	}

	s.mu.Lock()
	if latest == nil {
		fallback := s.state.CurrentProgress.Clone()
		latest = &fallback
	}
	latest.CurrentQuestionIndex = next
	s.dispatchLocked(Action{Type: SetProgress, Progress: latest})
	s.dispatchLocked(Action{Type: SetQuestionIndex, Index: next})
	persisted := s.state.CurrentProgress.Clone()
	s.mu.Unlock()

	if err := s.store.SaveProgress(ctx, persisted); err != nil {
		log.Printf("save progress for set %s: %v", setID, err)
	}
	return nil
}

// ExitQuestionSet stops polling and resets in-memory state. The persisted
// progress is kept so the learner can resume later.
func (s *Session) ExitQuestionSet() {
	s.mu.Lock()
	s.dispatchLocked(Action{Type: SetExiting, Exiting: true})
	s.mu.Unlock()

	s.poller.Stop()

	s.mu.Lock()
	s.dispatchLocked(Action{Type: ResetSession})
	s.mu.Unlock()
}

// CurrentAnswer returns the live answer for the current question, or nil.
func (s *Session) CurrentAnswer() *domain.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	question := s.currentQuestionLocked()
	if question == nil || s.state.CurrentProgress == nil {
		return nil
	}
	answer := s.state.CurrentProgress.FindAnswer(question.ID)
	if answer == nil {
		return nil
	}
	out := *answer
	return &out
}

// CurrentQuestion returns the question at the current index, or nil.
func (s *Session) CurrentQuestion() *domain.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.currentQuestionLocked()
	if q == nil {
		return nil
	}
	out := *q
	return &out
}

// IsFirstQuestion reports whether the session is at index 0.
func (s *Session) IsFirstQuestion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.CurrentQuestionIndex == 0
}

// IsLastQuestion reports whether the session is at the final index.
func (s *Session) IsLastQuestion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.state.CurrentQuestions) > 0 &&
		s.state.CurrentQuestionIndex == len(s.state.CurrentQuestions)-1
}

// StopPolling cancels any active watch owned by this session.
func (s *Session) StopPolling() {
	s.poller.Stop()
}

func (s *Session) fail(message string) {
	s.mu.Lock()
	s.dispatchLocked(Action{Type: SetError, Err: message})
	s.mu.Unlock()
}

func (s *Session) currentQuestionLocked() *domain.Question {
	index := s.state.CurrentQuestionIndex
	if index < 0 || index >= len(s.state.CurrentQuestions) {
		return nil
	}
	return &s.state.CurrentQuestions[index]
}

func (s *Session) dispatchLocked(action Action) {
	s.state = Reduce(s.state, action)
	s.broadcastLocked()
}

func (s *Session) snapshotLocked() State {
	snapshot := s.state
	if snapshot.CurrentProgress != nil {
		progress := snapshot.CurrentProgress.Clone()
		snapshot.CurrentProgress = &progress
	}
	return snapshot
}

func (s *Session) broadcastLocked() {
	snapshot := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snapshot:
		default:
			// Drop the oldest snapshot so slow readers never block dispatch.
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
}
