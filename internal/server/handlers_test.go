package server

import (
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/eternalApril/starlight/internal/config"
	"github.com/eternalApril/starlight/internal/resp"
	"github.com/eternalApril/starlight/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// setupEngine creates a fresh engine with a clean store for each test
func setupEngine(t *testing.T) *Engine {
	t.Helper()

	s, err := storage.NewShardedMapStorage(4)
	require.NoError(t, err)

	eng, err := NewEngine(s, &config.Config{
		GC: config.GCConfig{Enabled: false},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(eng.Shutdown)

	return eng
}

// run executes one command given as plain strings
func run(e *Engine, args ...string) resp.Value {
	req := resp.Request{Args: make([][]byte, len(args))}
	for i, arg := range args {
		req.Args[i] = []byte(arg)
	}
	return e.Execute(req)
}

func bulks(v resp.Value) []string {
	out := make([]string, 0, len(v.Array))
	for _, item := range v.Array {
		out = append(out, string(item.String))
	}
	return out
}

func assertError(t *testing.T, v resp.Value, contains string) {
	t.Helper()
	require.Equal(t, byte(resp.TypeError), v.Type, "expected error reply, got %q", v.String)
	assert.Contains(t, string(v.String), contains)
}

func TestPing(t *testing.T) {
	e := setupEngine(t)

	tests := []struct {
		name     string
		args     []string
		wantType byte
		wantStr  string
	}{
		{"Simple PING", []string{"PING"}, resp.TypeSimpleString, "PONG"},
		{"PING with message", []string{"PING", "Hello"}, resp.TypeBulkString, "Hello"},
		{"lowercase name", []string{"ping"}, resp.TypeSimpleString, "PONG"},
		{"PING too many args", []string{"PING", "a", "b"}, resp.TypeError, "ERR wrong number of arguments for 'ping' command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(e, tt.args...)
			assert.Equal(t, tt.wantType, res.Type)
			assert.Equal(t, tt.wantStr, string(res.String))
		})
	}
}

func TestEcho(t *testing.T) {
	e := setupEngine(t)

	res := run(e, "ECHO", "hello world")
	assert.Equal(t, byte(resp.TypeBulkString), res.Type)
	assert.Equal(t, "hello world", string(res.String))

	assertError(t, run(e, "ECHO"), "wrong number of arguments for 'echo' command")
}

func TestBasicSetGetDel(t *testing.T) {
	e := setupEngine(t)

	// GET missing key
	res := run(e, "GET", "mykey")
	assert.True(t, res.IsNull, "expected null for missing key")

	res = run(e, "SET", "mykey", "myvalue")
	assert.Equal(t, "OK", string(res.String))

	res = run(e, "GET", "mykey")
	assert.Equal(t, "myvalue", string(res.String))

	res = run(e, "DEL", "mykey", "other")
	assert.Equal(t, int64(1), res.Integer)

	res = run(e, "GET", "mykey")
	assert.True(t, res.IsNull, "expected null after delete")
}

func TestSetNX_XX(t *testing.T) {
	e := setupEngine(t)

	// SET NX on new key -> OK
	res := run(e, "SET", "k1", "v1", "NX")
	assert.Equal(t, "OK", string(res.String))

	// SET NX on existing key -> Nil and no change
	res = run(e, "SET", "k1", "v2", "NX")
	assert.True(t, res.IsNull)
	assert.Equal(t, "v1", string(run(e, "GET", "k1").String))

	// SET XX on missing key -> Nil
	res = run(e, "SET", "k2", "v2", "XX")
	assert.True(t, res.IsNull)
	assert.Equal(t, int64(0), run(e, "EXISTS", "k2").Integer)

	// SET XX on existing key -> OK
	res = run(e, "SET", "k1", "v_updated", "XX")
	assert.Equal(t, "OK", string(res.String))
	assert.Equal(t, "v_updated", string(run(e, "GET", "k1").String))
}

func TestSetGet(t *testing.T) {
	e := setupEngine(t)

	res := run(e, "SET", "k", "v1", "GET")
	assert.True(t, res.IsNull, "no previous value")

	res = run(e, "SET", "k", "v2", "GET")
	assert.Equal(t, "v1", string(res.String))
	assert.Equal(t, "v2", string(run(e, "GET", "k").String))

	run(e, "LPUSH", "list", "a")
	assertError(t, run(e, "SET", "list", "v", "GET"), "WRONGTYPE")
	assert.Equal(t, "list", string(run(e, "TYPE", "list").String))

	// a plain SET replaces any type
	assert.Equal(t, "OK", string(run(e, "SET", "list", "v").String))
	assert.Equal(t, "string", string(run(e, "TYPE", "list").String))
}

func TestSetTTL(t *testing.T) {
	e := setupEngine(t)

	run(e, "SET", "k_ex", "val", "EX", "1")
	assert.Equal(t, int64(1), run(e, "TTL", "k_ex").Integer)

	run(e, "SET", "k_px", "val", "PX", "100")
	pttl := run(e, "PTTL", "k_px").Integer
	assert.True(t, pttl > 0 && pttl <= 100, "expected PTTL ~100ms, got %d", pttl)

	time.Sleep(150 * time.Millisecond)
	assert.True(t, run(e, "GET", "k_px").IsNull, "key should have expired (PX)")
	assert.Equal(t, int64(-2), run(e, "PTTL", "k_px").Integer)
}

func TestSetKeepTTL(t *testing.T) {
	e := setupEngine(t)

	run(e, "SET", "k_keep", "v1", "EX", "100")
	run(e, "SET", "k_keep", "v2", "KEEPTTL")

	assert.Equal(t, "v2", string(run(e, "GET", "k_keep").String))

	ttl := run(e, "TTL", "k_keep").Integer
	assert.True(t, ttl >= 95 && ttl <= 100, "KEEPTTL removed the expiration, got %d", ttl)

	// a SET without KEEPTTL clears the deadline
	run(e, "SET", "k_keep", "v3")
	assert.Equal(t, int64(-1), run(e, "TTL", "k_keep").Integer)

	// KEEPTTL on new key behaves like persistent key
	run(e, "SET", "k_new_keep", "v1", "KEEPTTL")
	assert.Equal(t, int64(-1), run(e, "TTL", "k_new_keep").Integer)
}

func TestSetTimestamps(t *testing.T) {
	e := setupEngine(t)

	future := time.Now().Add(2 * time.Second).Unix()
	run(e, "SET", "k_exat", "v", "EXAT", strconv.FormatInt(future, 10))

	// Should be 1 or 2 depending on rounding
	ttl := run(e, "TTL", "k_exat").Integer
	assert.True(t, ttl >= 1 && ttl <= 2, "EXAT failed, expected ~2s TTL, got %d", ttl)

	// a deadline in the past stores nothing visible
	past := time.Now().Add(-time.Hour).UnixMilli()
	res := run(e, "SET", "k_pxat", "v", "PXAT", strconv.FormatInt(past, 10))
	assert.Equal(t, "OK", string(res.String))
	assert.True(t, run(e, "GET", "k_pxat").IsNull)
	assert.Equal(t, int64(0), run(e, "EXISTS", "k_pxat").Integer)
}

func TestTTL_PTTL_Codes(t *testing.T) {
	e := setupEngine(t)

	assert.Equal(t, int64(-2), run(e, "TTL", "missing").Integer)
	assert.Equal(t, int64(-2), run(e, "PTTL", "missing").Integer)

	run(e, "SET", "persistent", "val")
	assert.Equal(t, int64(-1), run(e, "TTL", "persistent").Integer)
	assert.Equal(t, int64(-1), run(e, "PTTL", "persistent").Integer)
}

func TestSetSyntaxErrors(t *testing.T) {
	e := setupEngine(t)

	tests := []struct {
		name     string
		args     []string
		expected string // partial error string match
	}{
		{"NX and XX together", []string{"k", "v", "NX", "XX"}, "XX cannot use with NX"},
		{"XX and NX together", []string{"k", "v", "XX", "NX"}, "NX cannot use with XX"},
		{"EX without value", []string{"k", "v", "EX"}, "syntax error"},
		{"EX with non-integer", []string{"k", "v", "EX", "abc"}, "value TTL is not integer"},
		{"EX zero", []string{"k", "v", "EX", "0"}, "invalid expire time in 'set' command"},
		{"PX negative", []string{"k", "v", "PX", "-5"}, "invalid expire time in 'set' command"},
		{"Double TTL (EX then PX)", []string{"k", "v", "EX", "10", "PX", "100"}, "TTL already specified"},
		{"KEEPTTL with EX", []string{"k", "v", "KEEPTTL", "EX", "10"}, "TTL already specified"},
		{"Unknown Argument", []string{"k", "v", "FOOBAR"}, "syntax error with command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(e, append([]string{"SET"}, tt.args...)...)
			assertError(t, res, tt.expected)
			assert.Equal(t, int64(0), run(e, "EXISTS", "k").Integer)
		})
	}
}

func TestSetNXAndSetex(t *testing.T) {
	e := setupEngine(t)

	assert.Equal(t, int64(1), run(e, "SETNX", "k", "a").Integer)
	assert.Equal(t, int64(0), run(e, "SETNX", "k", "b").Integer)
	assert.Equal(t, "a", string(run(e, "GET", "k").String))

	assert.Equal(t, "OK", string(run(e, "SETEX", "s", "100", "v").String))
	assert.Equal(t, int64(100), run(e, "TTL", "s").Integer)

	assert.Equal(t, "OK", string(run(e, "PSETEX", "p", "5000", "v").String))
	assert.Equal(t, int64(5), run(e, "TTL", "p").Integer)

	assertError(t, run(e, "SETEX", "s", "0", "v"), "invalid expire time in 'setex' command")
	assertError(t, run(e, "SETEX", "s", "x", "v"), "value is not an integer or out of range")
}

func TestGetDelMGetMSet(t *testing.T) {
	e := setupEngine(t)

	assert.Equal(t, "OK", string(run(e, "MSET", "a", "1", "b", "2").String))
	assertError(t, run(e, "MSET", "a", "1", "b"), "wrong number of arguments for 'mset' command")

	res := run(e, "MGET", "a", "missing", "b")
	require.Len(t, res.Array, 3)
	assert.Equal(t, "1", string(res.Array[0].String))
	assert.True(t, res.Array[1].IsNull)
	assert.Equal(t, "2", string(res.Array[2].String))

	// MGET reports other types as nil
	run(e, "SADD", "set", "x")
	assert.True(t, run(e, "MGET", "set").Array[0].IsNull)

	assert.Equal(t, "1", string(run(e, "GETDEL", "a").String))
	assert.True(t, run(e, "GETDEL", "a").IsNull)
	assertError(t, run(e, "GETDEL", "set"), "WRONGTYPE")
}

func TestAppendStrlen(t *testing.T) {
	e := setupEngine(t)

	assert.Equal(t, int64(5), run(e, "APPEND", "k", "hello").Integer)
	assert.Equal(t, int64(11), run(e, "APPEND", "k", " world").Integer)
	assert.Equal(t, "hello world", string(run(e, "GET", "k").String))
	assert.Equal(t, int64(11), run(e, "STRLEN", "k").Integer)
	assert.Equal(t, int64(0), run(e, "STRLEN", "missing").Integer)
}

func TestIncrDecr(t *testing.T) {
	e := setupEngine(t)

	assert.Equal(t, int64(1), run(e, "INCR", "n").Integer)
	assert.Equal(t, int64(11), run(e, "INCRBY", "n", "10").Integer)
	assert.Equal(t, int64(10), run(e, "DECR", "n").Integer)
	assert.Equal(t, int64(-5), run(e, "DECRBY", "n", "15").Integer)
	assert.Equal(t, "-5", string(run(e, "GET", "n").String))

	run(e, "SET", "s", "abc")
	assertError(t, run(e, "INCR", "s"), "value is not an integer or out of range")
	assertError(t, run(e, "INCRBY", "n", "1.5"), "value is not an integer or out of range")
	assertError(t, run(e, "INCRBY", "n", "07"), "value is not an integer or out of range")

	run(e, "SET", "padded", "007")
	assertError(t, run(e, "INCR", "padded"), "value is not an integer or out of range")
	run(e, "SET", "negzero", "-0")
	assertError(t, run(e, "DECR", "negzero"), "value is not an integer or out of range")

	run(e, "SET", "max", "9223372036854775807")
	assertError(t, run(e, "INCR", "max"), "increment or decrement would overflow")
	assertError(t, run(e, "DECRBY", "n", "-9223372036854775808"), "decrement would overflow")

	// the deadline survives the increment
	run(e, "SET", "ttl", "1", "EX", "100")
	run(e, "INCR", "ttl")
	assert.True(t, run(e, "TTL", "ttl").Integer > 0)

	run(e, "RPUSH", "list", "a")
	assertError(t, run(e, "INCR", "list"), "WRONGTYPE")
}

func TestExpireFamily(t *testing.T) {
	e := setupEngine(t)

	assert.Equal(t, int64(0), run(e, "EXPIRE", "missing", "10").Integer)

	run(e, "SET", "k", "v")
	assert.Equal(t, int64(1), run(e, "EXPIRE", "k", "100").Integer)
	assert.Equal(t, int64(100), run(e, "TTL", "k").Integer)

	assert.Equal(t, int64(1), run(e, "PEXPIRE", "k", "2500").Integer)
	pttl := run(e, "PTTL", "k").Integer
	assert.True(t, pttl > 2000 && pttl <= 2500, "got %d", pttl)

	at := time.Now().Add(time.Minute).Unix()
	assert.Equal(t, int64(1), run(e, "EXPIREAT", "k", strconv.FormatInt(at, 10)).Integer)
	ttl := run(e, "TTL", "k").Integer
	assert.True(t, ttl >= 59 && ttl <= 60, "got %d", ttl)

	assert.Equal(t, int64(1), run(e, "PERSIST", "k").Integer)
	assert.Equal(t, int64(0), run(e, "PERSIST", "k").Integer)
	assert.Equal(t, int64(-1), run(e, "TTL", "k").Integer)

	// zero and past deadlines delete
	assert.Equal(t, int64(1), run(e, "EXPIRE", "k", "0").Integer)
	assert.Equal(t, int64(0), run(e, "EXISTS", "k").Integer)
	assert.Equal(t, "none", string(run(e, "TYPE", "k").String))

	run(e, "SET", "k2", "v")
	past := time.Now().Add(-time.Second).UnixMilli()
	assert.Equal(t, int64(1), run(e, "PEXPIREAT", "k2", strconv.FormatInt(past, 10)).Integer)
	assert.True(t, run(e, "GET", "k2").IsNull)

	assertError(t, run(e, "EXPIRE", "k", "soon"), "value is not an integer or out of range")
	assertError(t, run(e, "EXPIRE", "k", "9223372036854775807"), "invalid expire time in 'expire' command")
}

func TestTypeRenameKeys(t *testing.T) {
	e := setupEngine(t)

	run(e, "SET", "str", "v")
	run(e, "RPUSH", "list", "a")
	run(e, "HSET", "hash", "f", "v")
	run(e, "SADD", "set", "m")
	run(e, "ZADD", "zset", "1", "m")

	for key, want := range map[string]string{
		"str": "string", "list": "list", "hash": "hash", "set": "set", "zset": "zset", "missing": "none",
	} {
		assert.Equal(t, want, string(run(e, "TYPE", key).String), key)
	}

	assert.Equal(t, []string{"hash", "list", "set", "str", "zset"}, bulks(run(e, "KEYS", "*")))
	assert.Equal(t, []string{"set", "str"}, bulks(run(e, "KEYS", "s*")))
	assert.Equal(t, []string{"hash", "list"}, bulks(run(e, "KEYS", "?[ai]s?")))

	run(e, "EXPIRE", "str", "100")
	assert.Equal(t, "OK", string(run(e, "RENAME", "str", "renamed").String))
	assert.Equal(t, "v", string(run(e, "GET", "renamed").String))
	assert.True(t, run(e, "TTL", "renamed").Integer > 0, "rename keeps the deadline")
	assert.Equal(t, int64(0), run(e, "EXISTS", "str").Integer)

	assertError(t, run(e, "RENAME", "missing", "x"), "no such key")

	assert.Equal(t, int64(5), run(e, "DBSIZE").Integer)
	assert.Equal(t, int64(2), run(e, "EXISTS", "list", "list", "nope").Integer)
}

func TestGlobToRegexp(t *testing.T) {
	tests := []struct {
		glob    string
		match   []string
		noMatch []string
	}{
		{"*", []string{"", "anything"}, nil},
		{"h?llo", []string{"hello", "hallo"}, []string{"hllo", "heello"}},
		{"h*llo", []string{"hllo", "heeeello"}, []string{"hell"}},
		{"h[ae]llo", []string{"hello", "hallo"}, []string{"hillo"}},
		{"h[^e]llo", []string{"hallo", "hbllo"}, []string{"hello"}},
		{"h[a-b]llo", []string{"hallo", "hbllo"}, []string{"hcllo"}},
		{`h\*llo`, []string{"h*llo"}, []string{"hello"}},
		{"a.b", []string{"a.b"}, []string{"axb"}},
		{"user:*", []string{"user:1", "user:\nx"}, []string{"users:1"}},
	}

	for _, tt := range tests {
		t.Run(tt.glob, func(t *testing.T) {
			re, err := globToRegexp(tt.glob)
			require.NoError(t, err)
			for _, s := range tt.match {
				assert.True(t, re.MatchString(s), "%q should match %q", tt.glob, s)
			}
			for _, s := range tt.noMatch {
				assert.False(t, re.MatchString(s), "%q should not match %q", tt.glob, s)
			}
		})
	}
}

func TestLists(t *testing.T) {
	e := setupEngine(t)

	assert.Equal(t, int64(3), run(e, "RPUSH", "l", "a", "b", "c").Integer)
	assert.Equal(t, int64(5), run(e, "LPUSH", "l", "y", "z").Integer)
	assert.Equal(t, []string{"z", "y", "a", "b", "c"}, bulks(run(e, "LRANGE", "l", "0", "-1")))
	assert.Equal(t, []string{"b", "c"}, bulks(run(e, "LRANGE", "l", "-2", "100")))
	assert.Empty(t, run(e, "LRANGE", "l", "4", "2").Array)

	assert.Equal(t, "y", string(run(e, "LINDEX", "l", "1").String))
	assert.Equal(t, "c", string(run(e, "LINDEX", "l", "-1").String))
	assert.True(t, run(e, "LINDEX", "l", "99").IsNull)

	assert.Equal(t, "z", string(run(e, "LPOP", "l").String))
	assert.Equal(t, "c", string(run(e, "RPOP", "l").String))
	assert.Equal(t, []string{"y", "a"}, bulks(run(e, "LPOP", "l", "2")))
	assert.Equal(t, int64(1), run(e, "LLEN", "l").Integer)

	// popping the last element removes the key
	assert.Equal(t, []string{"b"}, bulks(run(e, "RPOP", "l", "10")))
	assert.Equal(t, int64(0), run(e, "EXISTS", "l").Integer)
	assert.True(t, run(e, "LPOP", "l").IsNull)

	res := run(e, "LPOP", "l", "2")
	assert.Equal(t, byte(resp.TypeArray), res.Type)
	assert.True(t, res.IsNull)

	assertError(t, run(e, "LPOP", "l", "-1"), "value is out of range, must be positive")
	assertError(t, run(e, "LRANGE", "l", "a", "1"), "value is not an integer or out of range")

	// indexes past int32 clamp to the list bounds
	run(e, "RPUSH", "big", "a", "b", "c")
	assert.Equal(t, []string{"a", "b", "c"}, bulks(run(e, "LRANGE", "big", "0", "9999999999")))
	assert.Equal(t, []string{"a", "b", "c"}, bulks(run(e, "LRANGE", "big", "-9999999999", "-1")))
	assert.True(t, run(e, "LINDEX", "big", "99999999999").IsNull)
	assert.Equal(t, []string{"a", "b", "c"}, bulks(run(e, "LPOP", "big", "9999999999")))
	assert.Equal(t, int64(0), run(e, "EXISTS", "big").Integer)
}

func TestHashes(t *testing.T) {
	e := setupEngine(t)

	assert.Equal(t, int64(2), run(e, "HSET", "h", "b", "2", "a", "1").Integer)
	assert.Equal(t, int64(0), run(e, "HSET", "h", "a", "one").Integer)
	assertError(t, run(e, "HSET", "h", "a", "1", "b"), "wrong number of arguments for 'hset' command")

	assert.Equal(t, "one", string(run(e, "HGET", "h", "a").String))
	assert.True(t, run(e, "HGET", "h", "zz").IsNull)

	res := run(e, "HMGET", "h", "a", "zz", "b")
	require.Len(t, res.Array, 3)
	assert.True(t, res.Array[1].IsNull)

	assert.Equal(t, []string{"a", "one", "b", "2"}, bulks(run(e, "HGETALL", "h")))
	assert.Equal(t, []string{"a", "b"}, bulks(run(e, "HKEYS", "h")))
	assert.Equal(t, []string{"one", "2"}, bulks(run(e, "HVALS", "h")))
	assert.Equal(t, int64(1), run(e, "HEXISTS", "h", "a").Integer)
	assert.Equal(t, int64(2), run(e, "HLEN", "h").Integer)

	assert.Equal(t, int64(7), run(e, "HINCRBY", "h", "b", "5").Integer)
	assertError(t, run(e, "HINCRBY", "h", "a", "1"), "value is not an integer or out of range")

	assert.Equal(t, int64(2), run(e, "HDEL", "h", "a", "b", "zz").Integer)
	assert.Equal(t, int64(0), run(e, "EXISTS", "h").Integer)
	assert.Empty(t, run(e, "HGETALL", "h").Array)
}

func TestSets(t *testing.T) {
	e := setupEngine(t)

	assert.Equal(t, int64(3), run(e, "SADD", "s", "c", "a", "b", "a").Integer)
	assert.Equal(t, int64(0), run(e, "SADD", "s", "a").Integer)
	assert.Equal(t, []string{"a", "b", "c"}, bulks(run(e, "SMEMBERS", "s")))
	assert.Equal(t, int64(1), run(e, "SISMEMBER", "s", "b").Integer)
	assert.Equal(t, int64(0), run(e, "SISMEMBER", "s", "z").Integer)
	assert.Equal(t, int64(3), run(e, "SCARD", "s").Integer)

	assert.Equal(t, int64(3), run(e, "SREM", "s", "a", "b", "c", "z").Integer)
	assert.Equal(t, int64(0), run(e, "EXISTS", "s").Integer)
	assert.Empty(t, run(e, "SMEMBERS", "s").Array)
}

func TestSortedSets(t *testing.T) {
	e := setupEngine(t)

	assert.Equal(t, int64(3), run(e, "ZADD", "z", "2", "b", "1", "a", "2", "aa").Integer)
	assert.Equal(t, []string{"a", "aa", "b"}, bulks(run(e, "ZRANGE", "z", "0", "-1")))
	assert.Equal(t, []string{"a", "1", "aa", "2"}, bulks(run(e, "ZRANGE", "z", "0", "1", "WITHSCORES")))

	assert.Equal(t, "2", string(run(e, "ZSCORE", "z", "b").String))
	assert.True(t, run(e, "ZSCORE", "z", "nope").IsNull)
	assert.Equal(t, int64(2), run(e, "ZRANK", "z", "b").Integer)
	assert.True(t, run(e, "ZRANK", "z", "nope").IsNull)

	// NX adds only, XX updates only, CH counts changes
	assert.Equal(t, int64(0), run(e, "ZADD", "z", "NX", "10", "a").Integer)
	assert.Equal(t, "1", string(run(e, "ZSCORE", "z", "a").String))
	assert.Equal(t, int64(0), run(e, "ZADD", "z", "XX", "5", "new").Integer)
	assert.True(t, run(e, "ZSCORE", "z", "new").IsNull)
	assert.Equal(t, int64(1), run(e, "ZADD", "z", "XX", "CH", "5", "a").Integer)
	assertError(t, run(e, "ZADD", "z", "NX", "XX", "1", "a"), "not compatible")
	assertError(t, run(e, "ZADD", "z", "1"), "wrong number of arguments for 'zadd' command")
	assertError(t, run(e, "ZADD", "z", "NX", "1"), "syntax error")
	assertError(t, run(e, "ZADD", "z", "x", "a"), "value is not a valid float")

	assert.Equal(t, "7.5", string(run(e, "ZINCRBY", "z", "2.5", "a").String))
	assert.Equal(t, "inf", string(run(e, "ZINCRBY", "z", "+inf", "c").String))
	assertError(t, run(e, "ZINCRBY", "z", "-inf", "c"), "not a valid float")

	assert.Equal(t, int64(4), run(e, "ZCARD", "z").Integer)
	assert.Equal(t, int64(4), run(e, "ZREM", "z", "a", "aa", "b", "c", "nope").Integer)
	assert.Equal(t, int64(0), run(e, "EXISTS", "z").Integer)
}

func TestWrongType(t *testing.T) {
	e := setupEngine(t)

	run(e, "SET", "str", "v")
	cases := [][]string{
		{"LPUSH", "str", "a"},
		{"RPOP", "str"},
		{"LRANGE", "str", "0", "-1"},
		{"HSET", "str", "f", "v"},
		{"HGET", "str", "f"},
		{"SADD", "str", "m"},
		{"SMEMBERS", "str"},
		{"ZADD", "str", "1", "m"},
		{"ZRANGE", "str", "0", "-1"},
	}
	for _, args := range cases {
		t.Run(args[0], func(t *testing.T) {
			assertError(t, run(e, args...), "WRONGTYPE Operation against a key holding the wrong kind of value")
			assert.Equal(t, "v", string(run(e, "GET", "str").String), "value must stay unchanged")
		})
	}

	run(e, "RPUSH", "list", "a")
	assertError(t, run(e, "GET", "list"), "WRONGTYPE")
	assertError(t, run(e, "APPEND", "list", "x"), "WRONGTYPE")
	assertError(t, run(e, "STRLEN", "list"), "WRONGTYPE")
}

func TestFlushAndTime(t *testing.T) {
	e := setupEngine(t)

	for i := 0; i < 10; i++ {
		run(e, "SET", fmt.Sprintf("k%d", i), "v")
	}
	assert.Equal(t, int64(10), run(e, "DBSIZE").Integer)
	assert.Equal(t, "OK", string(run(e, "FLUSHDB").String))
	assert.Equal(t, int64(0), run(e, "DBSIZE").Integer)

	run(e, "SET", "k", "v")
	assert.Equal(t, "OK", string(run(e, "FLUSHALL", "ASYNC").String))
	assert.Equal(t, int64(0), run(e, "DBSIZE").Integer)
	assertError(t, run(e, "FLUSHALL", "LATER"), "syntax error")

	res := run(e, "TIME")
	require.Len(t, res.Array, 2)
	sec, err := strconv.ParseInt(string(res.Array[0].String), 10, 64)
	require.NoError(t, err)
	assert.InDelta(t, float64(time.Now().Unix()), float64(sec), 2)
}
