// Package redis provides a Redis-backed keyed store. Records live under
// per-key value entries, a sorted-set index keeps unsigned key order via
// fixed-width members, and server-side scripts keep multi-step mutations
// atomic.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"stockcore/pkg/domain"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.KeyedStore = (*Store)(nil)

const (
	defaultAddr   = "localhost:6379"
	defaultPrefix = "stockcore"
)

// insertScript swaps in the new record and indexes its member, returning the
// previous record or a nil reply when the key was unset.
var insertScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
redis.call('SET', KEYS[1], ARGV[1])
redis.call('ZADD', KEYS[2], 0, ARGV[2])
if prev then
	return prev
end
return false
`)

// removeScript deletes the record and its index member, returning the removed
// record or a nil reply when the key was unset.
var removeScript = redis.NewScript(`
local prev = redis.call('GET', KEYS[1])
if not prev then
	return false
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return prev
`)

// Store keeps each record at <prefix>:rec:<member> with a sorted-set index at
// <prefix>:index and the counter cell at <prefix>:counter. Members are
// zero-padded 20-digit decimals, so lexicographic index order equals unsigned
// key order.
type Store struct {
	client *redis.Client
	prefix string
}

// New wraps an existing client. An empty prefix falls back to the default
// keyspace prefix.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, prefix: prefix}
}

// Open dials addr (falls back to defaultAddr), verifies the connection, and
// returns a store over the given keyspace prefix.
func Open(ctx context.Context, addr, prefix string) (*Store, error) {
	if addr == "" {
		addr = defaultAddr
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(client, prefix), nil
}

func member(key uint64) string { return fmt.Sprintf("%020d", key) }

func (s *Store) recordKey(m string) string { return s.prefix + ":rec:" + m }
func (s *Store) indexKey() string          { return s.prefix + ":index" }
func (s *Store) counterKey() string        { return s.prefix + ":counter" }

func (s *Store) Get(ctx context.Context, key uint64) (domain.Record, bool, error) {
	rec, err := s.client.Get(ctx, s.recordKey(member(key))).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get record %d: %w", key, err)
	}
	return rec, true, nil
}

func (s *Store) Insert(ctx context.Context, key uint64, rec domain.Record) (domain.Record, bool, error) {
	m := member(key)
	prev, err := insertScript.Run(ctx, s.client, []string{s.recordKey(m), s.indexKey()}, []byte(rec), m).Text()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("insert record %d: %w", key, err)
	}
	return domain.Record(prev), true, nil
}

func (s *Store) Remove(ctx context.Context, key uint64) (domain.Record, bool, error) {
	m := member(key)
	prev, err := removeScript.Run(ctx, s.client, []string{s.recordKey(m), s.indexKey()}, m).Text()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("remove record %d: %w", key, err)
	}
	return domain.Record(prev), true, nil
}

// Ascend lists the index, then fetches all records in one MGET so the value
// reads share a single server-side snapshot. Members deleted between the two
// commands are skipped.
func (s *Store) Ascend(ctx context.Context, fn func(key uint64, rec domain.Record) bool) error {
	members, err := s.client.ZRangeByLex(ctx, s.indexKey(), &redis.ZRangeBy{Min: "-", Max: "+"}).Result()
	if err != nil {
		return fmt.Errorf("list index: %w", err)
	}
	if len(members) == 0 {
		return nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.recordKey(m)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return fmt.Errorf("fetch records: %w", err)
	}
	for i, m := range members {
		raw, ok := values[i].(string)
		if !ok {
			continue
		}
		key, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return fmt.Errorf("parse index member %q: %w", m, err)
		}
		if !fn(key, domain.Record(raw)) {
			return nil
		}
	}
	return nil
}

func (s *Store) Counter(ctx context.Context) (uint64, error) {
	raw, err := s.client.Get(ctx, s.counterKey()).Result()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter: %w", err)
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse counter %q: %w", raw, err)
	}
	return value, nil
}

func (s *Store) SetCounter(ctx context.Context, value uint64) error {
	if err := s.client.Set(ctx, s.counterKey(), strconv.FormatUint(value, 10), 0).Err(); err != nil {
		return fmt.Errorf("set counter: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.client.Close() }

// Client exposes the underlying client for integration testing hooks.
func (s *Store) Client() *redis.Client { return s.client }

