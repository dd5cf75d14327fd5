package session_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MikeyZhang75/AI-Tutor/internal/bank"
	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
	"github.com/MikeyZhang75/AI-Tutor/internal/infra/memory"
	"github.com/MikeyZhang75/AI-Tutor/internal/session"
	"github.com/MikeyZhang75/AI-Tutor/internal/storage"
	"github.com/MikeyZhang75/AI-Tutor/internal/verify"
)

func TestStartQuestionSetCreatesProgress(t *testing.T) {
	ctx := context.Background()
	sess, store, _ := newTestSession(t)

	if err := sess.StartQuestionSet(ctx, "set-1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	state := sess.State()
	if state.CurrentSet == nil || state.CurrentSet.ID != "set-1" {
		t.Fatalf("expected active set, got %+v", state.CurrentSet)
	}
	if len(state.CurrentQuestions) != 2 || state.CurrentQuestionIndex != 0 {
		t.Fatalf("expected 2 questions at index 0, got %d at %d", len(state.CurrentQuestions), state.CurrentQuestionIndex)
	}
	if state.IsLoading {
		t.Fatalf("expected loading cleared")
	}

	stored, err := store.GetProgress(ctx, "set-1")
	if err != nil || stored == nil {
		t.Fatalf("expected fresh progress persisted, got %v err=%v", stored, err)
	}
}

func TestStartQuestionSetIdempotentReentry(t *testing.T) {
	ctx := context.Background()
	counting := &countingBank{QuestionBank: newTestBank()}
	store := memory.NewProgressStore()
	verifier := verify.NewService(store, &fakeOracle{result: true}, time.Second)
	sess := session.New(counting, store, verifier)

	if err := sess.StartQuestionSet(ctx, "set-1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := sess.StartQuestionSet(ctx, "set-1"); err != nil {
		t.Fatalf("re-entry failed: %v", err)
	}
	if counting.setCalls != 1 {
		t.Fatalf("expected exactly one question-bank fetch, got %d", counting.setCalls)
	}
}

func TestStartQuestionSetResumesExistingProgress(t *testing.T) {
	ctx := context.Background()
	sess, store, _ := newTestSession(t)

	existing := domain.Progress{
		SetID:                "set-1",
		CurrentQuestionIndex: 1,
		Answers: []domain.Answer{{
			QuestionID:         "q1",
			UserAnswer:         "data:image/png;base64,AAA",
			VerificationStatus: domain.StatusCorrect,
			AttemptNumber:      1,
		}},
		StartedAt: time.Now().Add(-time.Hour),
	}
	if err := store.SaveProgress(ctx, existing); err != nil {
		t.Fatalf("seed progress: %v", err)
	}

	if err := sess.StartQuestionSet(ctx, "set-1"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	state := sess.State()
	if state.CurrentQuestionIndex != 1 {
		t.Fatalf("expected resume at index 1, got %d", state.CurrentQuestionIndex)
	}
	if len(state.CurrentProgress.Answers) != 1 {
		t.Fatalf("expected resumed answers, got %d", len(state.CurrentProgress.Answers))
	}
}

func TestStartUnknownSetSurfacesError(t *testing.T) {
	ctx := context.Background()
	sess, _, _ := newTestSession(t)

	err := sess.StartQuestionSet(ctx, "missing")
	if !errors.Is(err, domain.ErrSetNotFound) {
		t.Fatalf("expected set-not-found, got %v", err)
	}
	state := sess.State()
	if state.Error == "" || state.IsLoading {
		t.Fatalf("expected user-visible error with loading cleared, got %+v", state)
	}
}

func TestSubmitAnswerReplacesByQuestionID(t *testing.T) {
	ctx := context.Background()
	gate := make(chan struct{})
	oracle := &fakeOracle{result: true, gate: gate}
	store := memory.NewProgressStore()
	verifier := verify.NewService(store, oracle, time.Second)
	sess := session.New(newTestBank(), store, verifier)

	if err := sess.StartQuestionSet(ctx, "set-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.SubmitAnswer(ctx, "data:image/png;base64,AAA", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := sess.SubmitAnswer(ctx, "data:image/png;base64,BBB", nil); err != nil {
		t.Fatalf("resubmit: %v", err)
	}

	state := sess.State()
	if len(state.CurrentProgress.Answers) != 1 {
		t.Fatalf("expected resubmission to replace, got %d answers", len(state.CurrentProgress.Answers))
	}
	answer := state.CurrentProgress.Answers[0]
	if answer.UserAnswer != "data:image/png;base64,BBB" {
		t.Fatalf("expected updated artifact, got %q", answer.UserAnswer)
	}
	if answer.AttemptNumber != 2 {
		t.Fatalf("expected attempt number 2, got %d", answer.AttemptNumber)
	}

	close(gate)
	verifier.Wait()
	sess.StopPolling()
}

func TestSubmitWithoutActiveSession(t *testing.T) {
	sess, _, _ := newTestSession(t)

	err := sess.SubmitAnswer(context.Background(), "data:image/png;base64,AAA", nil)
	if !errors.Is(err, domain.ErrNoActiveSession) {
		t.Fatalf("expected no-active-session, got %v", err)
	}
	if sess.State().Error == "" {
		t.Fatalf("expected error surfaced in state")
	}
}

func TestNavigateBoundariesAreNoOps(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{Store: memory.NewProgressStore()}
	verifier := verify.NewService(store, &fakeOracle{result: true}, time.Second)
	sess := session.New(newTestBank(), store, verifier)

	if err := sess.StartQuestionSet(ctx, "set-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	saves := store.saveCount()

	if err := sess.Navigate(ctx, session.Previous); err != nil {
		t.Fatalf("previous at first index: %v", err)
	}
	if store.saveCount() != saves {
		t.Fatalf("expected no store write for boundary previous")
	}

	if err := sess.Navigate(ctx, session.Next); err != nil {
		t.Fatalf("next: %v", err)
	}
	saves = store.saveCount()
	if err := sess.Navigate(ctx, session.Next); err != nil {
		t.Fatalf("next at last index: %v", err)
	}
	if store.saveCount() != saves {
		t.Fatalf("expected no store write for boundary next")
	}
	if sess.State().CurrentQuestionIndex != 1 {
		t.Fatalf("expected index pinned at last question")
	}
}

func TestNavigateReloadsFreshProgressFromStore(t *testing.T) {
	ctx := context.Background()
	sess, store, _ := newTestSession(t)

	if err := sess.StartQuestionSet(ctx, "set-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	// Simulate a background verification landing in the store while the
	// in-memory copy is stale.
	background := sess.State().CurrentProgress.Clone()
	background.UpsertAnswer(domain.Answer{
		QuestionID:         "q1",
		UserAnswer:         "data:image/png;base64,AAA",
		VerificationStatus: domain.StatusCorrect,
		Feedback:           "Great job! Your answer is correct.",
		AttemptNumber:      1,
	})
	if err := store.SaveProgress(ctx, background); err != nil {
		t.Fatalf("seed background write: %v", err)
	}

	if err := sess.Navigate(ctx, session.Next); err != nil {
		t.Fatalf("navigate: %v", err)
	}
	state := sess.State()
	if state.CurrentQuestionIndex != 1 {
		t.Fatalf("expected index 1, got %d", state.CurrentQuestionIndex)
	}
	answer := state.CurrentProgress.FindAnswer("q1")
	if answer == nil || answer.VerificationStatus != domain.StatusCorrect {
		t.Fatalf("expected background verification observed, got %+v", answer)
	}
}

func TestExitKeepsPersistedProgress(t *testing.T) {
	ctx := context.Background()
	sess, store, _ := newTestSession(t)

	if err := sess.StartQuestionSet(ctx, "set-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	sess.ExitQuestionSet()

	state := sess.State()
	if !state.IsExiting || state.CurrentSet != nil || state.CurrentProgress != nil {
		t.Fatalf("expected reset state with exiting flag, got %+v", state)
	}

	stored, err := store.GetProgress(ctx, "set-1")
	if err != nil || stored == nil {
		t.Fatalf("expected progress kept for resume, got %v err=%v", stored, err)
	}
}

func TestSubmitReconcilesVerificationResult(t *testing.T) {
	ctx := context.Background()
	sess, _, verifier := newTestSession(t)

	if err := sess.StartQuestionSet(ctx, "set-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := sess.SubmitAnswer(ctx, "data:image/png;base64,AAA", nil); err != nil {
		t.Fatalf("submit: %v", err)
	}
	verifier.Wait()

	// The poller runs at a 1s cadence; give it time to reconcile.
	waitFor(t, 3*time.Second, func() bool {
		answer := sess.CurrentAnswer()
		return answer != nil && answer.VerificationStatus == domain.StatusCorrect
	})
	answer := sess.CurrentAnswer()
	if answer.Feedback == "" {
		t.Fatalf("expected feedback on terminal answer")
	}
	sess.StopPolling()
}

func newTestSession(t *testing.T) (*session.Session, storage.Store, *verify.Service) {
	t.Helper()
	store := memory.NewProgressStore()
	verifier := verify.NewService(store, &fakeOracle{result: true}, time.Second)
	return session.New(newTestBank(), store, verifier), store, verifier
}

func newTestBank() *bank.StaticBank {
	return bank.NewStaticBank(
		[]domain.QuestionSet{{ID: "set-1", Title: "Algebra Basics", TotalQuestions: 2}},
		map[string][]domain.Question{
			"set-1": {
				{ID: "q1", SetID: "set-1", Order: 1, Text: "Solve for $x$: $2x + 5 = 13$", Type: domain.TypeMath, Points: 10, CorrectAnswer: "x = 4"},
				{ID: "q2", SetID: "set-1", Order: 2, Text: "Factor: $x^3 - 8$", Type: domain.TypeMath, Points: 20, CorrectAnswer: "(x-2)(x^2+2x+4)"},
			},
		},
	)
}

type fakeOracle struct {
	mu     sync.Mutex
	calls  int
	result bool
	err    error
	gate   chan struct{} // when set, Verify blocks until closed
}

func (o *fakeOracle) Verify(_ context.Context, _, _ string) (bool, error) {
	o.mu.Lock()
	o.calls++
	gate := o.gate
	o.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return o.result, o.err
}

type countingBank struct {
	bank.QuestionBank
	setCalls int
}

func (b *countingBank) ListQuestionSets(ctx context.Context) ([]domain.QuestionSet, error) {
	b.setCalls++
	return b.QuestionBank.ListQuestionSets(ctx)
}

type countingStore struct {
	storage.Store
	mu    sync.Mutex
	saves int
}

func (s *countingStore) SaveProgress(ctx context.Context, progress domain.Progress) error {
	s.mu.Lock()
	s.saves++
	s.mu.Unlock()
	return s.Store.SaveProgress(ctx, progress)
}

func (s *countingStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}
