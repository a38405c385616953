package storage

import (
	"errors"
	"math/bits"
	"slices"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// MaxShards is the largest shard count NewShardedMapStorage accepts
const MaxShards = 1024

// ShardedMapStorage is a thread-safe keyspace,
// divided into segments (shards) to reduce contention for locking.
// Operations touching several shards lock them in ascending index order
type ShardedMapStorage struct {
	shards    []*MapStorage
	shardMask uint64
}

// NewShardedMapStorage creates a new instance of ShardedMapStorage.
// The requestedShards parameter must be a power of two for efficient allocation.
func NewShardedMapStorage(requestedShards uint) (*ShardedMapStorage, error) {
	if bits.OnesCount(requestedShards) != 1 {
		return nil, errors.New("requested shards must be a power of 2")
	}

	if requestedShards > MaxShards {
		return nil, errors.New("requested shards must be less or equal than 1024")
	}

	s := &ShardedMapStorage{
		shards:    make([]*MapStorage, requestedShards),
		shardMask: uint64(requestedShards - 1),
	}

	for i := range s.shards {
		s.shards[i] = NewMapStorage()
	}

	return s, nil
}

// getShardIndex returns index of shard by key
func (s *ShardedMapStorage) getShardIndex(key string) int {
	return int(xxhash.Sum64String(key) & s.shardMask)
}

func (s *ShardedMapStorage) shard(key string) *MapStorage {
	return s.shards[s.getShardIndex(key)]
}

// lock write-locks the shards owning keys, each once and in ascending
// index order, and returns the matching unlock
func (s *ShardedMapStorage) lock(keys ...string) func() {
	idx := make([]int, 0, len(keys))
	for _, key := range keys {
		idx = append(idx, s.getShardIndex(key))
	}
	slices.Sort(idx)
	idx = slices.Compact(idx)

	for _, i := range idx {
		s.shards[i].mu.Lock()
	}
	return func() {
		for j := len(idx) - 1; j >= 0; j-- {
			s.shards[idx[j]].mu.Unlock()
		}
	}
}

func (s *ShardedMapStorage) Type(key string) DataType {
	return s.shard(key).Type(key)
}

// Exists counts how many of keys exist, atomically across shards
func (s *ShardedMapStorage) Exists(keys ...string) int {
	unlock := s.lock(keys...)
	defer unlock()

	n, ts := 0, now()
	for _, key := range keys {
		if _, ok := s.shard(key).lookupLocked(key, ts); ok {
			n++
		}
	}
	return n
}

// Delete deletes the keys, atomically across shards. Returns how many existed
func (s *ShardedMapStorage) Delete(keys ...string) int {
	unlock := s.lock(keys...)
	defer unlock()

	n, ts := 0, now()
	for _, key := range keys {
		if s.shard(key).deleteLocked(key, ts) {
			n++
		}
	}
	return n
}

func (s *ShardedMapStorage) Expire(key string, at time.Time) bool {
	return s.shard(key).Expire(key, at)
}

// Expiry returns the remaining lifetime and status as ExpiryStatus
func (s *ShardedMapStorage) Expiry(key string) (time.Duration, ExpiryStatus) {
	return s.shard(key).Expiry(key)
}

// Persist removes the expiration date of the key, making it eternal
func (s *ShardedMapStorage) Persist(key string) bool {
	return s.shard(key).Persist(key)
}

// Rename moves src to dst with its TTL, possibly across shards
func (s *ShardedMapStorage) Rename(src, dst string) error {
	unlock := s.lock(src, dst)
	defer unlock()

	return moveLocked(s.shard(src), src, s.shard(dst), dst)
}

// Keys walks the shards one at a time
func (s *ShardedMapStorage) Keys(match func(key string) bool) []string {
	var out []string
	for _, shard := range s.shards {
		shard.mu.RLock()
		out = shard.keysLocked(match, out)
		shard.mu.RUnlock()
	}
	return out
}

func (s *ShardedMapStorage) Len() int {
	n := 0
	for _, shard := range s.shards {
		n += shard.Len()
	}
	return n
}

// Flush clears all shards at once
func (s *ShardedMapStorage) Flush() {
	for _, shard := range s.shards {
		shard.mu.Lock()
	}
	for _, shard := range s.shards {
		shard.data = make(map[string]Value)
		shard.expires = make(map[string]int64)
	}
	for j := len(s.shards) - 1; j >= 0; j-- {
		s.shards[j].mu.Unlock()
	}
}

// Snapshot iterates over all shards sequentially to minimize locking time
func (s *ShardedMapStorage) Snapshot(fn func(Entry) bool) {
	for _, shard := range s.shards {
		for _, e := range shard.collect() {
			if !fn(e) {
				return
			}
		}
	}
}

// DeleteExpired randomly selects a limit of keys from each shard and delete if his TTL has expired
func (s *ShardedMapStorage) DeleteExpired(limit int) ExpireStats {
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex // protects total
		total ExpireStats
	)

	wg.Add(len(s.shards))
	for _, shard := range s.shards {
		go func(m *MapStorage) {
			defer wg.Done()
			stats := m.DeleteExpired(limit)

			mu.Lock()
			total.Sampled += stats.Sampled
			total.Expired += stats.Expired
			mu.Unlock()
		}(shard)
	}
	wg.Wait()

	return total
}

func (s *ShardedMapStorage) Get(key string) ([]byte, bool, error) {
	return s.shard(key).Get(key)
}

// Set writes the value based on the options
func (s *ShardedMapStorage) Set(key string, value []byte, options SetOptions) ([]byte, bool, error) {
	return s.shard(key).Set(key, value, options)
}

func (s *ShardedMapStorage) GetDel(key string) ([]byte, bool, error) {
	return s.shard(key).GetDel(key)
}

// MGet reads every key under one consistent lock set
func (s *ShardedMapStorage) MGet(keys ...string) [][]byte {
	unlock := s.lock(keys...)
	defer unlock()

	ts := now()
	out := make([][]byte, len(keys))
	for i, key := range keys {
		out[i] = s.shard(key).stringLocked(key, ts)
	}
	return out
}

// MSet writes every pair atomically across shards
func (s *ShardedMapStorage) MSet(keys []string, values [][]byte) {
	unlock := s.lock(keys...)
	defer unlock()

	for i, key := range keys {
		s.shard(key).putLocked(key, newString(values[i]))
	}
}

func (s *ShardedMapStorage) Append(key string, value []byte) (int, error) {
	return s.shard(key).Append(key, value)
}

func (s *ShardedMapStorage) StrLen(key string) (int, error) {
	return s.shard(key).StrLen(key)
}

func (s *ShardedMapStorage) IncrBy(key string, delta int64) (int64, error) {
	return s.shard(key).IncrBy(key, delta)
}

func (s *ShardedMapStorage) Push(key string, left bool, values ...[]byte) (int, error) {
	return s.shard(key).Push(key, left, values...)
}

func (s *ShardedMapStorage) Pop(key string, left bool, count int) ([][]byte, error) {
	return s.shard(key).Pop(key, left, count)
}

func (s *ShardedMapStorage) LLen(key string) (int, error) {
	return s.shard(key).LLen(key)
}

func (s *ShardedMapStorage) LRange(key string, start, stop int) ([][]byte, error) {
	return s.shard(key).LRange(key, start, stop)
}

func (s *ShardedMapStorage) LIndex(key string, index int) ([]byte, bool, error) {
	return s.shard(key).LIndex(key, index)
}

// HSet sets the specified fields to their respective values in the hash stored at key
func (s *ShardedMapStorage) HSet(key string, fields map[string][]byte) (int, error) {
	return s.shard(key).HSet(key, fields)
}

// HGet returns the value associated with field in the hash stored at key
func (s *ShardedMapStorage) HGet(key, field string) ([]byte, bool, error) {
	return s.shard(key).HGet(key, field)
}

func (s *ShardedMapStorage) HMGet(key string, fields ...string) ([][]byte, error) {
	return s.shard(key).HMGet(key, fields...)
}

// HDel removes the specified fields from the hash stored at key
func (s *ShardedMapStorage) HDel(key string, fields ...string) (int, error) {
	return s.shard(key).HDel(key, fields...)
}

// HGetAll returns all fields and values of the hash stored at key
func (s *ShardedMapStorage) HGetAll(key string) (map[string][]byte, error) {
	return s.shard(key).HGetAll(key)
}

// HExists returns if field is an existing field in the hash stored at key
func (s *ShardedMapStorage) HExists(key, field string) (bool, error) {
	return s.shard(key).HExists(key, field)
}

// HLen returns the number of fields contained in the hash stored at key
func (s *ShardedMapStorage) HLen(key string) (int, error) {
	return s.shard(key).HLen(key)
}

func (s *ShardedMapStorage) HIncrBy(key, field string, delta int64) (int64, error) {
	return s.shard(key).HIncrBy(key, field, delta)
}

func (s *ShardedMapStorage) SAdd(key string, members ...string) (int, error) {
	return s.shard(key).SAdd(key, members...)
}

func (s *ShardedMapStorage) SRem(key string, members ...string) (int, error) {
	return s.shard(key).SRem(key, members...)
}

func (s *ShardedMapStorage) SMembers(key string) ([]string, error) {
	return s.shard(key).SMembers(key)
}

func (s *ShardedMapStorage) SIsMember(key, member string) (bool, error) {
	return s.shard(key).SIsMember(key, member)
}

func (s *ShardedMapStorage) SCard(key string) (int, error) {
	return s.shard(key).SCard(key)
}

func (s *ShardedMapStorage) ZAdd(key string, options ZAddOptions, members ...ZMember) (int, error) {
	return s.shard(key).ZAdd(key, options, members...)
}

func (s *ShardedMapStorage) ZRem(key string, members ...string) (int, error) {
	return s.shard(key).ZRem(key, members...)
}

func (s *ShardedMapStorage) ZScore(key, member string) (float64, bool, error) {
	return s.shard(key).ZScore(key, member)
}

func (s *ShardedMapStorage) ZRange(key string, start, stop int) ([]ZMember, error) {
	return s.shard(key).ZRange(key, start, stop)
}

func (s *ShardedMapStorage) ZCard(key string) (int, error) {
	return s.shard(key).ZCard(key)
}

func (s *ShardedMapStorage) ZRank(key, member string) (int, bool, error) {
	return s.shard(key).ZRank(key, member)
}

func (s *ShardedMapStorage) ZIncrBy(key string, delta float64, member string) (float64, error) {
	return s.shard(key).ZIncrBy(key, delta, member)
}

var (
	_ Storage = (*MapStorage)(nil)
	_ Storage = (*ShardedMapStorage)(nil)
)
