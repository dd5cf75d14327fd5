package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MikeyZhang75/AI-Tutor/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	progressKeyPrefix = "progress:"
	setProgressPrefix = "set_progress:"
)

// ProgressStore persists progress records as JSON values in Redis.
// Keys are namespaced: progress:{setID} for in-flight attempts and
// set_progress:{setID} for rollups. A zero TTL keeps records forever.
type ProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressStore(client *redis.Client, ttl time.Duration) *ProgressStore {
	return &ProgressStore{client: client, ttl: ttl}
}

func (s *ProgressStore) SaveProgress(ctx context.Context, progress domain.Progress) error {
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	return s.client.Set(ctx, progressKeyPrefix+progress.SetID, data, s.ttl).Err()
}

func (s *ProgressStore) GetProgress(ctx context.Context, setID string) (*domain.Progress, error) {
	data, err := s.client.Get(ctx, progressKeyPrefix+setID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get progress: %w", err)
	}
	var progress domain.Progress
	if err := json.Unmarshal(data, &progress); err != nil {
		return nil, fmt.Errorf("unmarshal progress: %w", err)
	}
	return &progress, nil
}

func (s *ProgressStore) ClearProgress(ctx context.Context, setID string) error {
	return s.client.Del(ctx, progressKeyPrefix+setID).Err()
}

func (s *ProgressStore) SaveSetProgress(ctx context.Context, setProgress domain.QuestionSetProgress) error {
	data, err := json.Marshal(setProgress)
	if err != nil {
		return fmt.Errorf("marshal set progress: %w", err)
	}
	return s.client.Set(ctx, setProgressPrefix+setProgress.SetID, data, s.ttl).Err()
}

func (s *ProgressStore) GetSetProgress(ctx context.Context, setID string) (*domain.QuestionSetProgress, error) {
	data, err := s.client.Get(ctx, setProgressPrefix+setID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get set progress: %w", err)
	}
	var sp domain.QuestionSetProgress
	if err := json.Unmarshal(data, &sp); err != nil {
		return nil, fmt.Errorf("unmarshal set progress: %w", err)
	}
	return &sp, nil
}

func (s *ProgressStore) ListProgress(ctx context.Context) ([]domain.Progress, error) {
	keys, err := s.scanKeys(ctx, progressKeyPrefix+"*")
	if err != nil {
		return nil, err
	}
	out := make([]domain.Progress, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue // expired between scan and get
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		var progress domain.Progress
		if err := json.Unmarshal(data, &progress); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", key, err)
		}
		out = append(out, progress)
	}
	return out, nil
}

func (s *ProgressStore) ListSetProgress(ctx context.Context) ([]domain.QuestionSetProgress, error) {
	keys, err := s.scanKeys(ctx, setProgressPrefix+"*")
	if err != nil {
		return nil, err
	}
	out := make([]domain.QuestionSetProgress, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get %s: %w", key, err)
		}
		var sp domain.QuestionSetProgress
		if err := json.Unmarshal(data, &sp); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", key, err)
		}
		out = append(out, sp)
	}
	return out, nil
}

func (s *ProgressStore) ClearAll(ctx context.Context) error {
	for _, pattern := range []string{progressKeyPrefix + "*", setProgressPrefix + "*"} {
		keys, err := s.scanKeys(ctx, pattern)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("clear %s: %w", pattern, err)
			}
		}
	}
	return nil
}

func (s *ProgressStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", pattern, err)
	}
	return keys, nil
}
