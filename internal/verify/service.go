// Package verify decouples answer submission from verification results.
// Queued answers are verified against the oracle in the background, and
// every status transition is written back to the durable progress store.
package verify

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
	"github.com/MikeyZhang75/AI-Tutor/internal/oracle"
	"github.com/MikeyZhang75/AI-Tutor/internal/storage"
)

const (
	feedbackCorrect     = "Great job! Your answer is correct."
	feedbackIncorrectFn = "Your answer is incorrect. The correct answer is: %s"
	feedbackVerifyError = "Error verifying answer. Please try again."
)

// Service owns verification dispatch and the status-update contract
// against the progress store. Construct one per process and share it.
type Service struct {
	store   storage.Store
	oracle  oracle.Oracle
	timeout time.Duration

	// updateMu serializes every read-modify-write of a Progress record so
	// two verifications resolving concurrently for the same set cannot
	// lose each other's transition.
	updateMu sync.Mutex
	wg       sync.WaitGroup
}

type task struct {
	answer   domain.Answer
	question domain.Question
	setID    string
}

func NewService(store storage.Store, o oracle.Oracle, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Service{store: store, oracle: o, timeout: timeout}
}

// QueueVerification accepts a pending answer for background verification
// and returns immediately. Answers that are no longer pending at execution
// time (superseded by a resubmission) are dropped silently.
func (s *Service) QueueVerification(answer domain.Answer, question domain.Question, setID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.verifyAnswer(task{answer: answer, question: question, setID: setID})
	}()
}

func (s *Service) verifyAnswer(t task) {
	if t.answer.VerificationStatus != domain.StatusPending {
		return
	}

	// Flip to verifying first so concurrent readers never observe a stale
	// pending status while the oracle call is in flight.
	s.updateAnswerStatus(t.setID, t.answer.QuestionID, domain.StatusVerifying, "")

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	isCorrect, err := s.oracle.Verify(ctx, t.question.Text, t.answer.UserAnswer)
	if err != nil {
		log.Printf("verification error for question %s: %v", t.answer.QuestionID, err)
		s.updateAnswerStatus(t.setID, t.answer.QuestionID, domain.StatusIncorrect, feedbackVerifyError)
		return
	}

	if isCorrect {
		s.updateAnswerStatus(t.setID, t.answer.QuestionID, domain.StatusCorrect, feedbackCorrect)
		return
	}
	s.updateAnswerStatus(t.setID, t.answer.QuestionID, domain.StatusIncorrect,
		fmt.Sprintf(feedbackIncorrectFn, t.question.CorrectAnswer))
}

// updateAnswerStatus applies a single-answer mutation to the stored
// Progress under the update lock: each update reads the latest persisted
// record, mutates one answer, and writes back before the next starts.
func (s *Service) updateAnswerStatus(setID, questionID string, status domain.VerificationStatus, feedback string) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	progress, err := s.store.GetProgress(ctx, setID)
	if err != nil {
		log.Printf("load progress for set %s: %v", setID, err)
		return
	}
	if progress == nil {
		log.Printf("no progress found for set %s", setID)
		return
	}

	answer := progress.FindAnswer(questionID)
	if answer == nil {
		log.Printf("no answer found for question %s in set %s", questionID, setID)
		return
	}
	answer.VerificationStatus = status
	answer.Feedback = feedback

	if err := s.store.SaveProgress(ctx, *progress); err != nil {
		log.Printf("save progress for set %s: %v", setID, err)
	}
}

// GetVerificationStatus returns the stored answer for a question, or nil
// if no progress or answer exists. It never blocks on in-flight work.
func (s *Service) GetVerificationStatus(ctx context.Context, setID, questionID string) (*domain.Answer, error) {
	progress, err := s.store.GetProgress(ctx, setID)
	if err != nil {
		return nil, err
	}
	if progress == nil {
		return nil, nil
	}
	answer := progress.FindAnswer(questionID)
	if answer == nil {
		return nil, nil
	}
	out := *answer
	return &out, nil
}

// Wait blocks until every queued verification has resolved. Used by
// graceful shutdown so in-flight oracle results still reach the store.
func (s *Service) Wait() {
	s.wg.Wait()
}
