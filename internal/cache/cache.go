package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Reality-Reimagined/TruthScope/internal/session"
	"github.com/Reality-Reimagined/TruthScope/pkg/models"
)

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Ping(ctx context.Context) error
	SetSnapshot(ctx context.Context, snap models.Snapshot) error
	GetSnapshot(ctx context.Context, jobID string) (models.Snapshot, bool, error)
	SetSubmission(ctx context.Context, sub models.Submission) error
	GetSubmission(ctx context.Context, jobID string) (models.Submission, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9. Entries
// expire after the configured TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts), ttl: ttl}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) SetSnapshot(ctx context.Context, snap models.Snapshot) error {
	if snap.State.ID == "" {
		return errors.New("snapshot has no job id")
	}
	return c.setJSON(ctx, SnapshotKey(snap.State.ID), snap)
}

func (c *RedisCache) GetSnapshot(ctx context.Context, jobID string) (models.Snapshot, bool, error) {
	var snap models.Snapshot
	found, err := c.getJSON(ctx, SnapshotKey(jobID), &snap)
	return snap, found, err
}

func (c *RedisCache) SetSubmission(ctx context.Context, sub models.Submission) error {
	return c.setJSON(ctx, SubmissionKey(sub.JobID), sub)
}

func (c *RedisCache) GetSubmission(ctx context.Context, jobID string) (models.Submission, bool, error) {
	var sub models.Submission
	found, err := c.getJSON(ctx, SubmissionKey(jobID), &sub)
	return sub, found, err
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// RecordSubmission caches the submission metadata.
func (c *RedisCache) RecordSubmission(ctx context.Context, sub models.Submission) error {
	return c.SetSubmission(ctx, sub)
}

// RecordSnapshot caches the latest snapshot of a job. Results already
// cached are kept when the new snapshot carries none.
func (c *RedisCache) RecordSnapshot(ctx context.Context, snap models.Snapshot) error {
	if _, ok := snap.Results(); !ok {
		prev, found, err := c.GetSnapshot(ctx, snap.State.ID)
		if err != nil {
			return fmt.Errorf("loading cached snapshot: %w", err)
		}
		if found {
			if results, ok := prev.Results(); ok {
				snap = models.NewSnapshot(snap.State, results)
			}
		}
	}
	return c.SetSnapshot(ctx, snap)
}

func (c *RedisCache) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *RedisCache) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

var (
	_ Cache            = (*RedisCache)(nil)
	_ session.Recorder = (*RedisCache)(nil)
)
