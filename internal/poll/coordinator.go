// Package poll schedules repeated status checks against the progress
// store until a verification resolves. A coordinator owns at most one
// live timer; starting a new watch stops the previous one.
package poll

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
)

const (
	// QuestionInterval is the cadence for single-question polling.
	QuestionInterval = time.Second
	// SetInterval is the cadence for whole-set polling.
	SetInterval = 2 * time.Second
)

// StatusReader reads the persisted verification status of one answer.
type StatusReader interface {
	GetVerificationStatus(ctx context.Context, setID, questionID string) (*domain.Answer, error)
}

// ProgressReader loads the full persisted progress for a set.
type ProgressReader interface {
	GetProgress(ctx context.Context, setID string) (*domain.Progress, error)
}

// Coordinator runs one watch at a time against fixed-cadence timers.
// Stop is idempotent and safe to call while no watch is running.
type Coordinator struct {
	status   StatusReader
	progress ProgressReader

	mu     sync.Mutex
	stopCh chan struct{}
	doneCh chan struct{}
}

func NewCoordinator(status StatusReader, progress ProgressReader) *Coordinator {
	return &Coordinator{status: status, progress: progress}
}

// NewSetCoordinator builds a coordinator that only runs whole-set watches.
func NewSetCoordinator(progress ProgressReader) *Coordinator {
	return &Coordinator{progress: progress}
}

// WatchQuestion polls one question's status until it is terminal, then
// reloads the full progress from the store and invokes onTerminal once.
// The store is the reconciliation point: the verification service writes
// to it independently of any in-memory state.
func (c *Coordinator) WatchQuestion(setID, questionID string, interval time.Duration, onTerminal func(domain.Progress)) {
	c.start(interval, func(ctx context.Context) bool {
		answer, err := c.status.GetVerificationStatus(ctx, setID, questionID)
		if err != nil {
			log.Printf("poll verification status for question %s: %v", questionID, err)
			return false
		}
		if answer == nil || !answer.VerificationStatus.Terminal() {
			return false
		}
		latest, err := c.progress.GetProgress(ctx, setID)
		if err != nil {
			log.Printf("reload progress for set %s: %v", setID, err)
			return false
		}
		if latest != nil && onTerminal != nil {
			onTerminal(*latest)
		}
		return true
	})
}

// WatchSet polls the whole set's progress, invoking onUpdate on every
// check. The watch stops itself once no answer is pending or verifying;
// the final onUpdate call carries the fully resolved progress.
func (c *Coordinator) WatchSet(setID string, interval time.Duration, onUpdate func(domain.Progress)) {
	c.start(interval, func(ctx context.Context) bool {
		progress, err := c.progress.GetProgress(ctx, setID)
		if err != nil {
			log.Printf("poll progress for set %s: %v", setID, err)
			return false
		}
		if progress == nil {
			return false
		}
		if onUpdate != nil {
			onUpdate(*progress)
		}
		return !progress.HasUnresolved()
	})
}

// start launches the polling loop. check returns true when the watch is
// done. The first check happens immediately, before any timer tick. The
// previous watch is torn down under the same critical section that
// installs the new one, so concurrent starts cannot orphan a timer.
func (c *Coordinator) start(interval time.Duration, check func(context.Context) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()

	stop := make(chan struct{})
	done := make(chan struct{})
	c.stopCh = stop
	c.doneCh = done

	go func() {
		defer close(done)
		if c.runCheck(interval, check) {
			return
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if c.runCheck(interval, check) {
					return
				}
			}
		}
	}()
}

func (c *Coordinator) runCheck(interval time.Duration, check func(context.Context) bool) bool {
	ctx, cancel := context.WithTimeout(context.Background(), interval)
	defer cancel()
	return check(ctx)
}

// Stop cancels any outstanding watch and waits for its loop to exit, so
// no check or callback is in flight once it returns. Idempotent.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Coordinator) stopLocked() {
	if c.stopCh == nil {
		return
	}
	close(c.stopCh)
	c.stopCh = nil
	<-c.doneCh
	c.doneCh = nil
}
