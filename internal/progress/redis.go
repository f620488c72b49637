package progress

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// completionKeyPrefix namespaces phase-completion hashes:
	// progress:phases:<learner>:<passage> → { <phase label>: unix-nano }.
	completionKeyPrefix = "progress:phases:"

	connectTimeout = 5 * time.Second
)

// RedisStore is a [Store] backed by Redis. Completions for one learner and
// passage live in a single hash keyed by phase label, with the completion
// time as the value.
type RedisStore struct {
	client *redis.Client
}

// Compile-time interface check.
var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis at uri and verifies the connection.
func NewRedisStore(uri string) (*RedisStore, error) {
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("progress: parse redis URI: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("progress: connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping verifies connectivity; used by readiness checks.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func completionKey(learnerID, passageID string) string {
	return completionKeyPrefix + learnerID + ":" + passageID
}

// MarkPhaseCompleted records the completion time under the phase label.
// HSETNX keeps the original completion time on re-marking.
func (s *RedisStore) MarkPhaseCompleted(ctx context.Context, learnerID, passageID, phaseLabel string) error {
	now := strconv.FormatInt(time.Now().UTC().UnixNano(), 10)
	err := s.client.HSetNX(ctx, completionKey(learnerID, passageID), phaseLabel, now).Err()
	if err != nil {
		return fmt.Errorf("progress: mark completed: %w", err)
	}
	return nil
}

// IsPhaseCompleted reports whether the phase label exists in the hash.
func (s *RedisStore) IsPhaseCompleted(ctx context.Context, learnerID, passageID, phaseLabel string) (bool, error) {
	ok, err := s.client.HExists(ctx, completionKey(learnerID, passageID), phaseLabel).Result()
	if err != nil {
		return false, fmt.Errorf("progress: is completed: %w", err)
	}
	return ok, nil
}

// CompletedPhases lists completions ordered by the stored completion time.
func (s *RedisStore) CompletedPhases(ctx context.Context, learnerID, passageID string) ([]Record, error) {
	fields, err := s.client.HGetAll(ctx, completionKey(learnerID, passageID)).Result()
	if err != nil {
		return nil, fmt.Errorf("progress: list completed: %w", err)
	}

	out := make([]Record, 0, len(fields))
	for label, raw := range fields {
		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("progress: corrupt completion time for %q: %w", label, err)
		}
		out = append(out, Record{
			LearnerID:   learnerID,
			PassageID:   passageID,
			PhaseLabel:  label,
			CompletedAt: time.Unix(0, nanos).UTC(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CompletedAt.Before(out[j].CompletedAt) })
	return out, nil
}
