// Package redisstore keeps thread histories in Redis, one JSON string per
// thread.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/kalambet/recap/internal/memory"
)

// DefaultPrefix namespaces history keys.
const DefaultPrefix = "recap:thread:"

type Options struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Store is a memory.HistoryStore backed by Redis.
type Store struct {
	rdb    *redis.Client
	prefix string
}

// New connects to Redis and checks the connection.
func New(ctx context.Context, opts Options) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", opts.Addr, err)
	}
	return NewWithClient(rdb, opts.Prefix), nil
}

// NewWithClient wraps an existing client. An empty prefix uses DefaultPrefix.
func NewWithClient(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{rdb: rdb, prefix: prefix}
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) key(threadID string) string {
	return s.prefix + threadID
}

func (s *Store) Load(ctx context.Context, threadID string) (*memory.ThreadHistory, error) {
	b, err := s.rdb.Get(ctx, s.key(threadID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading thread %q: %w", threadID, err)
	}
	var h memory.ThreadHistory
	if err := json.Unmarshal(b, &h); err != nil {
		return nil, fmt.Errorf("decoding thread %q: %w", threadID, err)
	}
	return &h, nil
}

// Save replaces the thread's value with a single SET.
func (s *Store) Save(ctx context.Context, threadID string, h memory.ThreadHistory) error {
	b, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("encoding thread %q: %w", threadID, err)
	}
	if err := s.rdb.Set(ctx, s.key(threadID), b, 0).Err(); err != nil {
		return fmt.Errorf("saving thread %q: %w", threadID, err)
	}
	return nil
}

func (s *Store) ListThreads(ctx context.Context) ([]string, error) {
	var ids []string
	iter := s.rdb.Scan(ctx, 0, s.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		ids = append(ids, strings.TrimPrefix(iter.Val(), s.prefix))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	sort.Strings(ids)
	return ids, nil
}
