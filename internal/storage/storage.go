package storage

import (
	"errors"
	"time"
)

var (
	// ErrWrongType is returned when a key holds a different data structure than the operation needs
	ErrWrongType = errors.New("storage: wrong type")

	// ErrNotInteger is returned when a value or increment is not a base-10 int64
	ErrNotInteger = errors.New("storage: value is not an integer or out of range")

	// ErrOverflow is returned when an increment would leave the int64 range
	ErrOverflow = errors.New("storage: increment or decrement would overflow")

	// ErrNotFloat is returned when a score is not a number
	ErrNotFloat = errors.New("storage: value is not a valid float")

	// ErrNoSuchKey is returned by operations that require an existing key
	ErrNoSuchKey = errors.New("storage: no such key")
)

type ExpiryStatus int

const (
	// ExpNotFound means that the key does not exist
	ExpNotFound ExpiryStatus = -2
	// ExpNoTimeout means that the key exists, but it does not have a TTL
	ExpNoTimeout ExpiryStatus = -1
	// ExpActive means that the key has an active lifetime
	ExpActive ExpiryStatus = 1
)

type SetOptions struct {
	ExpireAt time.Time // absolute deadline; zero means no TTL
	KeepTTL  bool      // if true, retain the existing TTL (ignore ExpireAt)
	NX       bool      // only set if the key does not exist
	XX       bool      // only set if the key already exists
	Get      bool      // return the previous string value
}

// ZAddOptions mirror the ZADD flags
type ZAddOptions struct {
	NX bool // only add new members
	XX bool // only update existing members
	CH bool // count changed scores as well as new members
}

// ExpireStats is the outcome of one active expiration pass
type ExpireStats struct {
	Sampled int
	Expired int
}

// Ratio returns the share of sampled keys that were expired
func (s ExpireStats) Ratio() float64 {
	if s.Sampled == 0 {
		return 0
	}
	return float64(s.Expired) / float64(s.Sampled)
}

// Storage is the keyspace. Every method is atomic with respect to concurrent
// callers, and a key whose TTL has passed is treated as absent everywhere
type Storage interface {
	// Type returns the data structure held at key or TypeNone
	Type(key string) DataType

	// Exists counts how many of keys exist. Repeated keys are counted every time
	Exists(keys ...string) int

	// Delete deletes the keys. Returns how many existed
	Delete(keys ...string) int

	// Expire sets an absolute deadline. A deadline that already passed deletes the key.
	// Returns false if the key does not exist
	Expire(key string, at time.Time) bool

	// Expiry returns the remaining lifetime and status as ExpiryStatus
	Expiry(key string) (time.Duration, ExpiryStatus)

	// Persist removes the expiration date of the key, making it eternal.
	// Returns true if a TTL was removed
	Persist(key string) bool

	// Rename moves src to dst with its TTL, replacing whatever dst held
	Rename(src, dst string) error

	// Keys returns every live key accepted by match
	Keys(match func(key string) bool) []string

	// Len returns the number of live keys
	Len() int

	// Flush removes every key
	Flush()

	// Snapshot calls fn with a deep copy of every live entry until fn returns false.
	// Consistency is per shard
	Snapshot(fn func(Entry) bool)

	// DeleteExpired samples up to limit keys with a TTL per shard and deletes the expired ones
	DeleteExpired(limit int) ExpireStats

	// Get returns the string at key
	Get(key string) ([]byte, bool, error)

	// Set writes a string according to options. It returns the previous string
	// when options.Get is set, and whether the write happened
	Set(key string, value []byte, options SetOptions) ([]byte, bool, error)

	// GetDel returns the string at key and deletes it
	GetDel(key string) ([]byte, bool, error)

	// MGet returns the strings at keys; missing or non-string keys yield nil
	MGet(keys ...string) [][]byte

	// MSet writes every pair atomically and clears their TTLs
	MSet(keys []string, values [][]byte)

	// Append appends to the string at key and returns the new length
	Append(key string, value []byte) (int, error)

	// StrLen returns the length of the string at key
	StrLen(key string) (int, error)

	// IncrBy adds delta to the integer stored at key, keeping its TTL
	IncrBy(key string, delta int64) (int64, error)

	// Push adds values at the head (left) or tail of a list and returns its length
	Push(key string, left bool, values ...[]byte) (int, error)

	// Pop removes up to count elements from the head (left) or tail of a list
	Pop(key string, left bool, count int) ([][]byte, error)

	// LLen returns the length of a list
	LLen(key string) (int, error)

	// LRange returns the elements between start and stop inclusive. Negative indexes count from the end
	LRange(key string, start, stop int) ([][]byte, error)

	// LIndex returns the element at index
	LIndex(key string, index int) ([]byte, bool, error)

	// HSet sets the specified fields to their respective values in the hash stored at key.
	// Returns the number of new fields
	HSet(key string, fields map[string][]byte) (int, error)

	// HGet returns the value associated with field in the hash stored at key
	HGet(key, field string) ([]byte, bool, error)

	// HMGet returns the values of fields, nil where absent
	HMGet(key string, fields ...string) ([][]byte, error)

	// HDel removes fields from the hash and returns how many existed
	HDel(key string, fields ...string) (int, error)

	// HGetAll returns all fields and values of the hash stored at key
	HGetAll(key string) (map[string][]byte, error)

	// HExists returns if field is an existing field in the hash stored at key
	HExists(key, field string) (bool, error)

	// HLen returns the number of fields contained in the hash stored at key
	HLen(key string) (int, error)

	// HIncrBy adds delta to the integer stored in field
	HIncrBy(key, field string, delta int64) (int64, error)

	// SAdd adds members to a set and returns how many were new
	SAdd(key string, members ...string) (int, error)

	// SRem removes members from a set and returns how many existed
	SRem(key string, members ...string) (int, error)

	// SMembers returns every member of a set
	SMembers(key string) ([]string, error)

	// SIsMember reports whether member belongs to the set
	SIsMember(key, member string) (bool, error)

	// SCard returns the size of a set
	SCard(key string) (int, error)

	// ZAdd adds or updates members of a sorted set
	ZAdd(key string, options ZAddOptions, members ...ZMember) (int, error)

	// ZRem removes members and returns how many existed
	ZRem(key string, members ...string) (int, error)

	// ZScore returns the score of member
	ZScore(key, member string) (float64, bool, error)

	// ZRange returns members by rank between start and stop inclusive, lowest score first
	ZRange(key string, start, stop int) ([]ZMember, error)

	// ZCard returns the size of a sorted set
	ZCard(key string) (int, error)

	// ZRank returns the 0-based rank of member, lowest score first
	ZRank(key, member string) (int, bool, error)

	// ZIncrBy adds delta to the score of member and returns the new score
	ZIncrBy(key string, delta float64, member string) (float64, error)
}

// normalizeRange clamps inclusive start/stop indexes against length n,
// resolving negative indexes from the end. ok is false when the range is empty
func normalizeRange(start, stop, n int) (int, int, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if start > stop || start >= n {
		return 0, 0, false
	}
	return start, stop, true
}
