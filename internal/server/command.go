package server

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/eternalApril/starlight/internal/resp"
	"github.com/eternalApril/starlight/internal/storage"
	"go.uber.org/zap"
)

// Context is what a handler sees: its arguments without the command name,
// the store and the engine that dispatched it
type Context struct {
	args    [][]byte
	storage storage.Storage
	engine  *Engine
	cmd     *command
}

// key returns argument i as a key
func (c *Context) key(i int) string {
	return string(c.args[i])
}

// keys returns the arguments from i on as keys
func (c *Context) keys(from int) []string {
	out := make([]string, 0, len(c.args)-from)
	for _, a := range c.args[from:] {
		out = append(out, string(a))
	}
	return out
}

// fail turns a store error into its reply. Anything unexpected is logged
// and reported as an internal error, the connection stays open
func (c *Context) fail(err error) resp.Value {
	switch {
	case errors.Is(err, storage.ErrWrongType):
		return resp.MakeWrongType()
	case errors.Is(err, storage.ErrNotInteger):
		return errNotInteger
	case errors.Is(err, storage.ErrOverflow):
		return resp.MakeErrorf("increment or decrement would overflow")
	case errors.Is(err, storage.ErrNotFloat):
		return errNotFloat
	case errors.Is(err, storage.ErrNoSuchKey):
		return resp.MakeErrorf("no such key")
	}

	c.engine.logger.Error("command failed",
		zap.String("cmd", c.cmd.name),
		zap.Error(err),
	)
	return resp.MakeErrorf("internal error: %v", err)
}

// commandFunc is the handler of one command
type commandFunc func(ctx *Context) resp.Value

// command is a registry record: arity bounds, the data type its key must hold,
// key positions for COMMAND INFO, the handler and its documentation
type command struct {
	name     string
	minArgs  int              // arguments after the name
	maxArgs  int              // -1 is unbounded
	keyType  storage.DataType // TypeNone when the command is not bound to one data type
	flags    []string         // readonly, write, fast, denyoom, etc
	firstKey int              // 1-based index of the first key
	lastKey  int              // 1-based index of the last key, -1 is the last argument
	step     int              // step count for finding keys
	handler  commandFunc
	doc      commandDoc

	label string // lowercase name for metrics
}

// arity is the Redis notion: it includes the name and is negative when it is a minimum
func (c *command) arity() int {
	if c.minArgs == c.maxArgs {
		return c.minArgs + 1
	}
	return -(c.minArgs + 1)
}

func (c *command) acceptsArgs(n int) bool {
	return n >= c.minArgs && (c.maxArgs < 0 || n <= c.maxArgs)
}

var (
	flagsRead      = []string{"readonly", "fast"}
	flagsReadSlow  = []string{"readonly"}
	flagsWrite     = []string{"write", "fast"}
	flagsWriteOOM  = []string{"write", "denyoom"}
	flagsWriteSlow = []string{"write"}
	flagsServer    = []string{"fast", "stale"}
)

var (
	errSyntax     = resp.MakeErrorf("syntax error")
	errNotInteger = resp.MakeErrorf("value is not an integer or out of range")
	errNotFloat   = resp.MakeErrorf("value is not a valid float")
)

func parseInt(b []byte) (int64, bool) {
	n, err := storage.ParseInt(b)
	return n, err == nil
}

// parseIndex parses a range index or count. Values past int32 are clamped,
// no keyspace value is that long so the result is the same
func parseIndex(b []byte) (int, bool) {
	n, ok := parseInt(b)
	if !ok {
		return 0, false
	}
	switch {
	case n > math.MaxInt32:
		n = math.MaxInt32
	case n < math.MinInt32:
		n = math.MinInt32
	}
	return int(n), true
}

// parseFloat accepts what Redis accepts for scores, including inf and -inf, but not NaN
func parseFloat(b []byte) (float64, bool) {
	if len(b) == 0 {
		return 0, false
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	if math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

func formatFloat(f float64) string {
	switch {
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// expireAt turns an expiration amount into an absolute deadline.
// Relative amounts count from now. ok is false when the deadline does not fit
// into int64 nanoseconds
func expireAt(n int64, unit time.Duration, absolute bool) (time.Time, bool) {
	if n > math.MaxInt64/int64(unit) || n < math.MinInt64/int64(unit) {
		return time.Time{}, false
	}
	d := n * int64(unit)
	if absolute {
		return time.Unix(0, d), true
	}

	now := time.Now().UnixNano()
	if d > 0 && now > math.MaxInt64-d {
		return time.Time{}, false
	}
	return time.Unix(0, now+d), true
}

// expireUnit reports the unit and mode of an expiration option such as EX or PXAT
func expireUnit(option string) (time.Duration, bool, bool) {
	switch option {
	case "EX":
		return time.Second, false, true
	case "PX":
		return time.Millisecond, false, true
	case "EXAT":
		return time.Second, true, true
	case "PXAT":
		return time.Millisecond, true, true
	}
	return 0, false, false
}

func makeInvalidExpire(name string) resp.Value {
	return resp.MakeErrorf("invalid expire time in '%s' command", strings.ToLower(name))
}

func makeBool(b bool) resp.Value {
	if b {
		return resp.MakeInteger(1)
	}
	return resp.MakeInteger(0)
}

func makeStrings(items []string) resp.Value {
	vals := make([]resp.Value, len(items))
	for i, s := range items {
		vals[i] = resp.MakeBulkString(s)
	}
	return resp.MakeArray(vals)
}
