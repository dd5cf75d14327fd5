package verify_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
	"github.com/MikeyZhang75/AI-Tutor/internal/infra/memory"
	"github.com/MikeyZhang75/AI-Tutor/internal/storage"
	"github.com/MikeyZhang75/AI-Tutor/internal/verify"
)

var testQuestion = domain.Question{
	ID:            "q1",
	SetID:         "set-1",
	Text:          "Solve for $x$: $2x + 5 = 13$",
	Points:        10,
	CorrectAnswer: "x = 4",
}

func TestVerifyCorrectAnswer(t *testing.T) {
	store := memory.NewProgressStore()
	seedProgress(t, store, domain.StatusPending)
	svc := verify.NewService(store, &fakeOracle{result: true}, time.Second)

	svc.QueueVerification(pendingAnswer(), testQuestion, "set-1")
	svc.Wait()

	answer := storedAnswer(t, store)
	if answer.VerificationStatus != domain.StatusCorrect {
		t.Fatalf("expected correct, got %s", answer.VerificationStatus)
	}
	if !strings.Contains(answer.Feedback, "correct") {
		t.Fatalf("expected affirming feedback, got %q", answer.Feedback)
	}
}

func TestVerifyIncorrectAnswerIncludesSolution(t *testing.T) {
	store := memory.NewProgressStore()
	seedProgress(t, store, domain.StatusPending)
	svc := verify.NewService(store, &fakeOracle{result: false}, time.Second)

	svc.QueueVerification(pendingAnswer(), testQuestion, "set-1")
	svc.Wait()

	answer := storedAnswer(t, store)
	if answer.VerificationStatus != domain.StatusIncorrect {
		t.Fatalf("expected incorrect, got %s", answer.VerificationStatus)
	}
	if !strings.Contains(answer.Feedback, "x = 4") {
		t.Fatalf("expected feedback to carry the correct answer, got %q", answer.Feedback)
	}
}

func TestVerifyOracleErrorResolvesIncorrect(t *testing.T) {
	store := memory.NewProgressStore()
	seedProgress(t, store, domain.StatusPending)
	svc := verify.NewService(store, &fakeOracle{err: errors.New("upstream down")}, time.Second)

	svc.QueueVerification(pendingAnswer(), testQuestion, "set-1")
	svc.Wait()

	answer := storedAnswer(t, store)
	if answer.VerificationStatus != domain.StatusIncorrect {
		t.Fatalf("expected incorrect on oracle failure, got %s", answer.VerificationStatus)
	}
	if !strings.Contains(answer.Feedback, "try again") {
		t.Fatalf("expected retry feedback, got %q", answer.Feedback)
	}
}

func TestVerifyDropsNonPendingAnswer(t *testing.T) {
	inner := memory.NewProgressStore()
	seedProgress(t, inner, domain.StatusCorrect)
	store := &countingWrites{Store: inner}
	oracle := &fakeOracle{result: false}
	svc := verify.NewService(store, oracle, time.Second)

	resolved := pendingAnswer()
	resolved.VerificationStatus = domain.StatusCorrect
	svc.QueueVerification(resolved, testQuestion, "set-1")
	svc.Wait()

	if oracle.callCount() != 0 {
		t.Fatalf("expected no oracle call for resolved answer, got %d", oracle.callCount())
	}
	if store.writeCount() != 0 {
		t.Fatalf("expected no store write for resolved answer, got %d", store.writeCount())
	}
	answer := storedAnswer(t, inner)
	if answer.VerificationStatus != domain.StatusCorrect {
		t.Fatalf("expected stored status untouched, got %s", answer.VerificationStatus)
	}
}

func TestVerifyTransitionsThroughVerifying(t *testing.T) {
	store := memory.NewProgressStore()
	seedProgress(t, store, domain.StatusPending)
	gate := make(chan struct{})
	svc := verify.NewService(store, &fakeOracle{result: true, gate: gate}, time.Second)

	svc.QueueVerification(pendingAnswer(), testQuestion, "set-1")

	deadline := time.Now().Add(time.Second)
	for {
		if storedAnswer(t, store).VerificationStatus == domain.StatusVerifying {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("answer never entered verifying")
		}
		time.Sleep(5 * time.Millisecond)
	}

	close(gate)
	svc.Wait()
	if got := storedAnswer(t, store).VerificationStatus; got != domain.StatusCorrect {
		t.Fatalf("expected correct after gate release, got %s", got)
	}
}

func TestVerifyConcurrentUpdatesDoNotLoseTransitions(t *testing.T) {
	store := memory.NewProgressStore()
	progress := domain.Progress{
		SetID:     "set-1",
		StartedAt: time.Now(),
		Answers: []domain.Answer{
			{QuestionID: "q1", VerificationStatus: domain.StatusPending, AttemptNumber: 1},
			{QuestionID: "q2", VerificationStatus: domain.StatusPending, AttemptNumber: 1},
		},
	}
	if err := store.SaveProgress(context.Background(), progress); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := verify.NewService(store, &fakeOracle{result: true}, time.Second)

	q2 := testQuestion
	q2.ID = "q2"
	svc.QueueVerification(progress.Answers[0], testQuestion, "set-1")
	svc.QueueVerification(progress.Answers[1], q2, "set-1")
	svc.Wait()

	stored, err := store.GetProgress(context.Background(), "set-1")
	if err != nil || stored == nil {
		t.Fatalf("load progress: %v", err)
	}
	for _, id := range []string{"q1", "q2"} {
		answer := stored.FindAnswer(id)
		if answer == nil || answer.VerificationStatus != domain.StatusCorrect {
			t.Fatalf("expected %s resolved correct, got %+v", id, answer)
		}
	}
}

func TestGetVerificationStatus(t *testing.T) {
	ctx := context.Background()
	store := memory.NewProgressStore()
	seedProgress(t, store, domain.StatusVerifying)
	svc := verify.NewService(store, &fakeOracle{}, time.Second)

	answer, err := svc.GetVerificationStatus(ctx, "set-1", "q1")
	if err != nil || answer == nil {
		t.Fatalf("expected stored answer, got %v err=%v", answer, err)
	}
	if answer.VerificationStatus != domain.StatusVerifying {
		t.Fatalf("expected verifying, got %s", answer.VerificationStatus)
	}

	answer, err = svc.GetVerificationStatus(ctx, "set-1", "missing")
	if err != nil || answer != nil {
		t.Fatalf("expected nil for unknown question, got %v err=%v", answer, err)
	}
	answer, err = svc.GetVerificationStatus(ctx, "missing", "q1")
	if err != nil || answer != nil {
		t.Fatalf("expected nil for unknown set, got %v err=%v", answer, err)
	}
}

func seedProgress(t *testing.T, store *memory.ProgressStore, status domain.VerificationStatus) {
	t.Helper()
	progress := domain.Progress{
		SetID:     "set-1",
		StartedAt: time.Now(),
		Answers: []domain.Answer{{
			QuestionID:         "q1",
			UserAnswer:         "data:image/png;base64,AAA",
			VerificationStatus: status,
			AttemptNumber:      1,
		}},
	}
	if err := store.SaveProgress(context.Background(), progress); err != nil {
		t.Fatalf("seed progress: %v", err)
	}
}

func pendingAnswer() domain.Answer {
	return domain.Answer{
		QuestionID:         "q1",
		UserAnswer:         "data:image/png;base64,AAA",
		SubmittedAt:        time.Now(),
		VerificationStatus: domain.StatusPending,
		AttemptNumber:      1,
	}
}

func storedAnswer(t *testing.T, store *memory.ProgressStore) domain.Answer {
	t.Helper()
	progress, err := store.GetProgress(context.Background(), "set-1")
	if err != nil || progress == nil {
		t.Fatalf("load progress: %v", err)
	}
	answer := progress.FindAnswer("q1")
	if answer == nil {
		t.Fatalf("answer missing from stored progress")
	}
	return *answer
}

type fakeOracle struct {
	mu     sync.Mutex
	calls  int
	result bool
	err    error
	gate   chan struct{}
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

func (o *fakeOracle) callCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls
}

type countingWrites struct {
	storage.Store
	mu     sync.Mutex
	writes int
}

func (s *countingWrites) SaveProgress(ctx context.Context, progress domain.Progress) error {
	s.mu.Lock()
	s.writes++
	s.mu.Unlock()
	return s.Store.SaveProgress(ctx, progress)
}

func (s *countingWrites) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
