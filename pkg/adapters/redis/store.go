package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/abyss/pkg/domain"
	"github.com/aretw0/abyss/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "abyss:job:"

// Store implements ports.JobStore using Redis.
//
// Each job uses three keys: a hash with the record fields, a list of JSON
// progress reports and a string holding the result bytes. A sorted set indexes
// job ids by expiry.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

var _ ports.JobStore = (*Store)(nil)

type Option func(*Store)

// WithTTL sets the expiration for jobs.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for jobs.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(id string) string         { return s.prefix + id }
func (s *Store) progressKey(id string) string { return s.prefix + id + ":progress" }
func (s *Store) resultKey(id string) string   { return s.prefix + id + ":result" }
func (s *Store) indexKey() string             { return s.prefix + "index" }

func (s *Store) expire(pipe backend.Pipeliner, ctx context.Context, id string) {
	if s.ttl <= 0 {
		return
	}
	pipe.Expire(ctx, s.key(id), s.ttl)
	pipe.Expire(ctx, s.progressKey(id), s.ttl)
	pipe.Expire(ctx, s.resultKey(id), s.ttl)
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// Create registers a running job, replacing any previous job with the same id.
func (s *Store) Create(ctx context.Context, id string) error {
	now := stamp(time.Now())
	pipe := s.client.TxPipeline()

	pipe.Del(ctx, s.key(id), s.progressKey(id), s.resultKey(id))
	pipe.HSet(ctx, s.key(id),
		"id", id,
		"status", string(ports.StatusRunning),
		"error", "",
		"created_at", now,
		"updated_at", now,
	)
	s.expire(pipe, ctx, id)

	// Score = Now + TTL. If TTL = 0, Score = +Inf (approx).
	score := float64(time.Now().Add(s.ttl).Unix())
	if s.ttl == 0 {
		score = 4102444800 // 2100-01-01
	}
	pipe.ZAdd(ctx, s.indexKey(), backend.Z{Score: score, Member: id})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create job in redis: %w", err)
	}
	return nil
}

func (s *Store) ensure(ctx context.Context, id string) error {
	n, err := s.client.Exists(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to check job in redis: %w", err)
	}
	if n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// AppendProgress records one progress report.
func (s *Store) AppendProgress(ctx context.Context, id string, p domain.ProgressSnapshot) error {
	if err := s.ensure(ctx, id); err != nil {
		return err
	}
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, s.progressKey(id), data)
	pipe.HSet(ctx, s.key(id), "updated_at", stamp(time.Now()))
	s.expire(pipe, ctx, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to append progress in redis: %w", err)
	}
	return nil
}

// ProgressSince returns the reports after offset.
func (s *Store) ProgressSince(ctx context.Context, id string, offset int) ([]domain.ProgressSnapshot, error) {
	if err := s.ensure(ctx, id); err != nil {
		return nil, err
	}
	if offset < 0 {
		offset = 0
	}
	vals, err := s.client.LRange(ctx, s.progressKey(id), int64(offset), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read progress from redis: %w", err)
	}
	if len(vals) == 0 {
		return nil, nil
	}
	out := make([]domain.ProgressSnapshot, 0, len(vals))
	for _, v := range vals {
		var p domain.ProgressSnapshot
		if err := json.Unmarshal([]byte(v), &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

// Complete stores the result and marks the job complete.
func (s *Store) Complete(ctx context.Context, id string, result []byte) error {
	if err := s.ensure(ctx, id); err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.resultKey(id), result, s.ttl)
	pipe.HSet(ctx, s.key(id), "status", string(ports.StatusComplete), "updated_at", stamp(time.Now()))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete job in redis: %w", err)
	}
	return nil
}

// Fail marks the job failed.
func (s *Store) Fail(ctx context.Context, id string, message string) error {
	if err := s.ensure(ctx, id); err != nil {
		return err
	}
	err := s.client.HSet(ctx, s.key(id),
		"status", string(ports.StatusFailed),
		"error", message,
		"updated_at", stamp(time.Now()),
	).Err()
	if err != nil {
		return fmt.Errorf("failed to mark job failed in redis: %w", err)
	}
	return nil
}

// Get returns the job record.
func (s *Store) Get(ctx context.Context, id string) (*ports.JobRecord, error) {
	pipe := s.client.Pipeline()
	fields := pipe.HGetAll(ctx, s.key(id))
	count := pipe.LLen(ctx, s.progressKey(id))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, backend.Nil) {
		return nil, fmt.Errorf("failed to get job from redis: %w", err)
	}

	m := fields.Val()
	if len(m) == 0 {
		return nil, domain.ErrJobNotFound
	}

	rec := &ports.JobRecord{
		ID:            m["id"],
		Status:        ports.JobStatus(m["status"]),
		ErrorMessage:  m["error"],
		ProgressCount: int(count.Val()),
	}
	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, m["created_at"]); err != nil {
		return nil, fmt.Errorf("failed to parse created_at %q: %w", m["created_at"], err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, m["updated_at"]); err != nil {
		return nil, fmt.Errorf("failed to parse updated_at %q: %w", m["updated_at"], err)
	}
	return rec, nil
}

// Result returns the stored result once the job is complete.
func (s *Store) Result(ctx context.Context, id string) ([]byte, error) {
	status, err := s.client.HGet(ctx, s.key(id), "status").Result()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job status from redis: %w", err)
	}
	if ports.JobStatus(status) != ports.StatusComplete {
		return nil, domain.ErrResultNotReady
	}

	data, err := s.client.Get(ctx, s.resultKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrResultNotReady
		}
		return nil, fmt.Errorf("failed to get result from redis: %w", err)
	}
	return data, nil
}

// Delete removes the job and its progress and result keys.
func (s *Store) Delete(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()

	pipe.Del(ctx, s.key(id), s.progressKey(id), s.resultKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)

	_, err := pipe.Exec(ctx)
	return err
}

// List returns known job ids, pruning expired entries from the index first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.indexKey(), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired jobs: %w", err)
	}

	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return ids, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
