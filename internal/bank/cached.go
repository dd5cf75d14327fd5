package bank

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CachedBank caches bank reads with TTL to avoid repeated backend hits.
// Concurrent misses for the same key collapse into a single load.
type CachedBank struct {
	inner QuestionBank
	ttl   time.Duration
	clock func() time.Time
	sf    singleflight.Group
	rnd   *rand.Rand

	mu        sync.RWMutex
	sets      *cachedSets
	questions map[string]cachedQuestions
}

type cachedSets struct {
	sets      []domain.QuestionSet
	expiresAt time.Time
}

type cachedQuestions struct {
	questions []domain.Question
	expiresAt time.Time
}

func NewCachedBank(inner QuestionBank, ttl time.Duration) *CachedBank {
	return &CachedBank{
		inner:     inner,
		ttl:       ttl,
		clock:     time.Now,
		rnd:       rand.New(rand.NewSource(time.Now().UnixNano())),
		questions: make(map[string]cachedQuestions),
	}
}

func (b *CachedBank) ListQuestionSets(ctx context.Context) ([]domain.QuestionSet, error) {
	now := b.clock()

	b.mu.RLock()
	if b.sets != nil && b.sets.expiresAt.After(now) {
		sets := b.sets.sets
		b.mu.RUnlock()
		return sets, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do("sets", func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if b.sets != nil && b.sets.expiresAt.After(now) {
			sets := b.sets.sets
			b.mu.RUnlock()
			return sets, nil
		}
		b.mu.RUnlock()

		sets, err := b.inner.ListQuestionSets(ctx)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.sets = &cachedSets{sets: sets, expiresAt: now.Add(b.ttlWithJitter())}
		b.mu.Unlock()
		return sets, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.QuestionSet), nil
}

func (b *CachedBank) ListQuestions(ctx context.Context, setID string) ([]domain.Question, error) {
	now := b.clock()

	b.mu.RLock()
	if entry, ok := b.questions[setID]; ok && entry.expiresAt.After(now) {
		b.mu.RUnlock()
		return entry.questions, nil
	}
	b.mu.RUnlock()

	result, err, _ := b.sf.Do("questions:"+setID, func() (interface{}, error) {
		now := b.clock()
		b.mu.RLock()
		if entry, ok := b.questions[setID]; ok && entry.expiresAt.After(now) {
			b.mu.RUnlock()
			return entry.questions, nil
		}
		b.mu.RUnlock()

		questions, err := b.inner.ListQuestions(ctx, setID)
		if err != nil {
			return nil, err
		}

		b.mu.Lock()
		b.questions[setID] = cachedQuestions{
			questions: questions,
			expiresAt: now.Add(b.ttlWithJitter()),
		}
		b.mu.Unlock()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (b *CachedBank) ttlWithJitter() time.Duration {
	if b.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(b.ttl) / 10
	return b.ttl + time.Duration(b.rnd.Int63n(jitterMax+1))
}
