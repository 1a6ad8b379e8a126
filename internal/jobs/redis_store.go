package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces job keys in a shared Redis.
const DefaultKeyPrefix = "listingimport:"

// RedisStore keeps each job as a JSON string at <prefix>job:<id> and the set
// of known IDs at <prefix>jobs. Job records survive a process restart, but
// jobs that were PENDING or PROCESSING at shutdown are not resumed.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

// NewRedisStoreFromURL connects using a redis:// URL and verifies the connection.
func NewRedisStoreFromURL(ctx context.Context, redisURL, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewRedisStore(client, prefix), nil
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) jobKey(id string) string { return s.prefix + "job:" + id }
func (s *RedisStore) indexKey() string        { return s.prefix + "jobs" }

func (s *RedisStore) Get(ctx context.Context, id string) (ImportJob, error) {
	data, err := s.client.Get(ctx, s.jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ImportJob{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return ImportJob{}, fmt.Errorf("get job %s: %w: %w", id, ErrStoreUnavailable, err)
	}

	var job ImportJob
	if err := json.Unmarshal(data, &job); err != nil {
		return ImportJob{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

func (s *RedisStore) Put(ctx context.Context, job ImportJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.jobKey(job.ID), data, 0)
		p.SAdd(ctx, s.indexKey(), job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put job %s: %w: %w", job.ID, ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]ImportJob, error) {
	ids, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w: %w", ErrStoreUnavailable, err)
	}
	if len(ids) == 0 {
		return []ImportJob{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.jobKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w: %w", ErrStoreUnavailable, err)
	}

	out := make([]ImportJob, 0, len(values))
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			// Index entry without a record; drop it.
			if err := s.client.SRem(ctx, s.indexKey(), ids[i]).Err(); err != nil {
				slog.Warn("failed to drop orphan job index entry", "job_id", ids[i], "error", err)
			}
			continue
		}
		var job ImportJob
		if err := json.Unmarshal([]byte(str), &job); err != nil {
			return nil, fmt.Errorf("decode job %s: %w", ids[i], err)
		}
		out = append(out, job)
	}
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, s.jobKey(id))
		p.SRem(ctx, s.indexKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete job %s: %w: %w", id, ErrStoreUnavailable, err)
	}
	return nil
}
