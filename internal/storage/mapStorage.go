package storage

import (
	"strconv"
	"sync"
	"time"
)

// MapStorage is a thread-safe keyspace guarded by a single lock.
// ShardedMapStorage composes several of them
type MapStorage struct {
	data    map[string]Value // key - value
	expires map[string]int64 // key - expires time nanoseconds
	mu      sync.RWMutex
}

// NewMapStorage creates a new instance of MapStorage.
func NewMapStorage() *MapStorage {
	return &MapStorage{
		data:    make(map[string]Value),
		expires: make(map[string]int64),
	}
}

func now() int64 {
	return time.Now().UnixNano()
}

// expiredLocked reports whether key carries a deadline that has passed. Caller holds m.mu
func (m *MapStorage) expiredLocked(key string, now int64) bool {
	exp, ok := m.expires[key]
	return ok && now > exp
}

// dropIfExpiredLocked removes key when its deadline passed. Caller holds m.mu for writing
func (m *MapStorage) dropIfExpiredLocked(key string, now int64) bool {
	if !m.expiredLocked(key, now) {
		return false
	}
	delete(m.data, key)
	delete(m.expires, key)
	return true
}

// lookupLocked returns the live value of key, removing it first if expired.
// Caller holds m.mu for writing
func (m *MapStorage) lookupLocked(key string, now int64) (Value, bool) {
	m.dropIfExpiredLocked(key, now)
	v, ok := m.data[key]
	return v, ok
}

func (m *MapStorage) deleteLocked(key string, now int64) bool {
	if _, ok := m.lookupLocked(key, now); !ok {
		return false
	}
	delete(m.data, key)
	delete(m.expires, key)
	return true
}

// putLocked stores v and clears any TTL of key
func (m *MapStorage) putLocked(key string, v Value) {
	m.data[key] = v
	delete(m.expires, key)
}

// view runs fn under the read lock with the live value of key, nil if absent.
// An expired key met on the way is deleted under the write lock first
func (m *MapStorage) view(key string, fn func(v Value)) {
	m.mu.RLock()
	if !m.expiredLocked(key, now()) {
		defer m.mu.RUnlock()
		fn(m.data[key])
		return
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// checking again, can be changed while waiting for the lock
	v, _ := m.lookupLocked(key, now())
	fn(v)
}

// read calls fn with the value of key as T. fn is not called when key is absent
func read[T Value](m *MapStorage, key string, fn func(T)) error {
	var err error
	m.view(key, func(v Value) {
		if v == nil {
			return
		}
		t, ok := v.(T)
		if !ok {
			err = ErrWrongType
			return
		}
		fn(t)
	})
	return err
}

// mutate runs fn on the value of key as T under the write lock.
// With create set an absent key starts out as create(), otherwise fn is skipped
// and found is false. A collection left empty by fn is removed together with its TTL
func mutate[T Value](m *MapStorage, key string, create func() T, fn func(T) error) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return mutateLocked(m, key, create, fn)
}

func mutateLocked[T Value](m *MapStorage, key string, create func() T, fn func(T) error) (bool, error) {
	cur, exists := m.lookupLocked(key, now())

	var t T
	if exists {
		var ok bool
		if t, ok = cur.(T); !ok {
			return true, ErrWrongType
		}
	} else {
		if create == nil {
			return false, nil
		}
		t = create()
	}

	if err := fn(t); err != nil {
		return true, err
	}

	switch {
	case t.empty():
		if exists {
			delete(m.data, key)
			delete(m.expires, key)
		}
	case !exists:
		m.data[key] = t
	}
	return true, nil
}

// Type returns the data structure held at key or TypeNone
func (m *MapStorage) Type(key string) DataType {
	t := TypeNone
	m.view(key, func(v Value) {
		if v != nil {
			t = v.Type()
		}
	})
	return t
}

// Exists counts how many of keys exist
func (m *MapStorage) Exists(keys ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ts := 0, now()
	for _, key := range keys {
		if _, ok := m.lookupLocked(key, ts); ok {
			n++
		}
	}
	return n
}

// Delete deletes the keys. Returns how many existed
func (m *MapStorage) Delete(keys ...string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n, ts := 0, now()
	for _, key := range keys {
		if m.deleteLocked(key, ts) {
			n++
		}
	}
	return n
}

func (m *MapStorage) expireLocked(key string, at time.Time) bool {
	ts := now()
	if _, ok := m.lookupLocked(key, ts); !ok {
		return false
	}

	deadline := at.UnixNano()
	if deadline <= ts {
		delete(m.data, key)
		delete(m.expires, key)
		return true
	}
	m.expires[key] = deadline
	return true
}

// Expire sets an absolute deadline on key
func (m *MapStorage) Expire(key string, at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expireLocked(key, at)
}

// Expiry returns the remaining lifetime and status as ExpiryStatus
func (m *MapStorage) Expiry(key string) (time.Duration, ExpiryStatus) {
	var (
		ttl    time.Duration
		status = ExpNotFound
	)
	m.view(key, func(v Value) {
		if v == nil {
			return
		}
		exp, ok := m.expires[key]
		if !ok {
			status = ExpNoTimeout
			return
		}
		ttl, status = time.Duration(exp-now()), ExpActive
		if ttl < 0 {
			ttl = 0
		}
	})
	return ttl, status
}

// Persist removes the expiration date of the key, making it eternal
func (m *MapStorage) Persist(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookupLocked(key, now()); !ok {
		return false
	}
	if _, ok := m.expires[key]; !ok {
		return false
	}
	delete(m.expires, key)
	return true
}

// moveLocked moves src of from to dst of to, replacing dst. Caller holds both locks
func moveLocked(from *MapStorage, src string, to *MapStorage, dst string) error {
	ts := now()
	v, ok := from.lookupLocked(src, ts)
	if !ok {
		return ErrNoSuchKey
	}
	if from == to && src == dst {
		return nil
	}

	exp, hasExp := from.expires[src]
	delete(from.data, src)
	delete(from.expires, src)

	to.putLocked(dst, v)
	if hasExp {
		to.expires[dst] = exp
	}
	return nil
}

// Rename moves src to dst with its TTL
func (m *MapStorage) Rename(src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return moveLocked(m, src, m, dst)
}

func (m *MapStorage) keysLocked(match func(string) bool, out []string) []string {
	ts := now()
	for key := range m.data {
		if m.expiredLocked(key, ts) {
			continue
		}
		if match == nil || match(key) {
			out = append(out, key)
		}
	}
	return out
}

// Keys returns every live key accepted by match. A nil match accepts all
func (m *MapStorage) Keys(match func(key string) bool) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.keysLocked(match, nil)
}

// Len returns the number of live keys
func (m *MapStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n, ts := len(m.data), now()
	for _, exp := range m.expires {
		if ts > exp {
			n--
		}
	}
	return n
}

// Flush removes every key
func (m *MapStorage) Flush() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string]Value)
	m.expires = make(map[string]int64)
}

// collect copies the live entries so that callers can run without the lock
func (m *MapStorage) collect() []Entry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ts := now()
	entries := make([]Entry, 0, len(m.data))
	for key, v := range m.data {
		if m.expiredLocked(key, ts) {
			continue
		}
		entries = append(entries, Entry{Key: key, Value: v.Clone(), ExpireAt: m.expires[key]})
	}
	return entries
}

// Snapshot calls fn with a copy of every live entry until fn returns false
func (m *MapStorage) Snapshot(fn func(Entry) bool) {
	for _, e := range m.collect() {
		if !fn(e) {
			return
		}
	}
}

// DeleteExpired checks up to limit keys with a TTL and deletes the expired ones.
// Go map iteration order is random, which gives the sampling
func (m *MapStorage) DeleteExpired(limit int) ExpireStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats ExpireStats
	if len(m.expires) == 0 || limit <= 0 {
		return stats
	}

	ts := now()
	for key, exp := range m.expires {
		if stats.Sampled >= limit {
			break
		}
		stats.Sampled++

		if ts > exp {
			delete(m.data, key)
			delete(m.expires, key)
			stats.Expired++
		}
	}
	return stats
}

func newString(b []byte) *StringValue {
	return &StringValue{Data: b}
}

// Get returns the string at key
func (m *MapStorage) Get(key string) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := read(m, key, func(s *StringValue) {
		out, found = s.Data, true
	})
	return out, found, err
}

func (m *MapStorage) setLocked(key string, value []byte, options SetOptions) ([]byte, bool, error) {
	ts := now()
	cur, exists := m.lookupLocked(key, ts)

	var old []byte
	if options.Get && exists {
		s, ok := cur.(*StringValue)
		if !ok {
			return nil, false, ErrWrongType
		}
		old = s.Data
	}

	if options.NX && exists {
		return old, false, nil
	}

	if options.XX && !exists {
		return old, false, nil
	}

	if options.KeepTTL {
		// the existing TTL, if any, is retained
		m.data[key] = newString(value)
		return old, true, nil
	}

	if options.ExpireAt.IsZero() {
		m.putLocked(key, newString(value))
		return old, true, nil
	}

	deadline := options.ExpireAt.UnixNano()
	if deadline <= ts {
		// already expired: the write happens and the key is gone at once
		delete(m.data, key)
		delete(m.expires, key)
		return old, true, nil
	}
	m.data[key] = newString(value)
	m.expires[key] = deadline
	return old, true, nil
}

// Set writes the value based on the options. Returns the previous string when
// options.Get is set and true if recording has been performed
func (m *MapStorage) Set(key string, value []byte, options SetOptions) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.setLocked(key, value, options)
}

// GetDel returns the string at key and deletes it
func (m *MapStorage) GetDel(key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.lookupLocked(key, now())
	if !ok {
		return nil, false, nil
	}
	s, ok := cur.(*StringValue)
	if !ok {
		return nil, false, ErrWrongType
	}
	delete(m.data, key)
	delete(m.expires, key)
	return s.Data, true, nil
}

func (m *MapStorage) stringLocked(key string, ts int64) []byte {
	v, ok := m.lookupLocked(key, ts)
	if !ok {
		return nil
	}
	if s, ok := v.(*StringValue); ok {
		return s.Data
	}
	return nil
}

// MGet returns the strings at keys; missing or non-string keys yield nil
func (m *MapStorage) MGet(keys ...string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	ts := now()
	out := make([][]byte, len(keys))
	for i, key := range keys {
		out[i] = m.stringLocked(key, ts)
	}
	return out
}

// MSet writes every pair and clears their TTLs
func (m *MapStorage) MSet(keys []string, values [][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, key := range keys {
		m.putLocked(key, newString(values[i]))
	}
}

// Append appends to the string at key and returns the new length
func (m *MapStorage) Append(key string, value []byte) (int, error) {
	var n int
	_, err := mutate(m, key, func() *StringValue { return &StringValue{} }, func(s *StringValue) error {
		// stored slices are shared with readers, so a new one is built
		buf := make([]byte, len(s.Data)+len(value))
		copy(buf, s.Data)
		copy(buf[len(s.Data):], value)
		s.Data = buf
		n = len(buf)
		return nil
	})
	return n, err
}

// StrLen returns the length of the string at key
func (m *MapStorage) StrLen(key string) (int, error) {
	var n int
	err := read(m, key, func(s *StringValue) {
		n = len(s.Data)
	})
	return n, err
}

// ParseInt parses a strict base-10 int64: no sign prefix other than '-', no spaces,
// no leading zeros and no "-0"
func ParseInt(b []byte) (int64, error) {
	if len(b) == 0 || b[0] == '+' {
		return 0, ErrNotInteger
	}
	digits := b
	if digits[0] == '-' {
		digits = digits[1:]
	}
	if len(digits) == 0 || (digits[0] == '0' && len(b) > 1) {
		return 0, ErrNotInteger
	}
	n, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return 0, ErrNotInteger
	}
	return n, nil
}

func addInt64(a, b int64) (int64, error) {
	if (b > 0 && a > maxInt64-b) || (b < 0 && a < minInt64-b) {
		return 0, ErrOverflow
	}
	return a + b, nil
}

const (
	maxInt64 = 1<<63 - 1
	minInt64 = -1 << 63
)

// IncrBy adds delta to the integer stored at key, keeping its TTL
func (m *MapStorage) IncrBy(key string, delta int64) (int64, error) {
	var n int64
	_, err := mutate(m, key, func() *StringValue { return &StringValue{Data: []byte("0")} }, func(s *StringValue) error {
		cur, err := ParseInt(s.Data)
		if err != nil {
			return err
		}
		if n, err = addInt64(cur, delta); err != nil {
			return err
		}
		s.Data = strconv.AppendInt(nil, n, 10)
		return nil
	})
	return n, err
}
