package server

import (
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/eternalApril/starlight/internal/resp"
	"github.com/eternalApril/starlight/internal/storage"
)

// del removes keys and returns how many existed
func del(ctx *Context) resp.Value {
	return resp.MakeInteger(int64(ctx.storage.Delete(ctx.keys(0)...)))
}

func exists(ctx *Context) resp.Value {
	return resp.MakeInteger(int64(ctx.storage.Exists(ctx.keys(0)...)))
}

// expireHandler builds EXPIRE, PEXPIRE, EXPIREAT and PEXPIREAT.
// A deadline that already passed deletes the key
func expireHandler(unit time.Duration, absolute bool) commandFunc {
	return func(ctx *Context) resp.Value {
		n, ok := parseInt(ctx.args[1])
		if !ok {
			return errNotInteger
		}
		at, ok := expireAt(n, unit, absolute)
		if !ok {
			return makeInvalidExpire(ctx.cmd.name)
		}
		return makeBool(ctx.storage.Expire(ctx.key(0), at))
	}
}

// ttlHandler builds TTL and PTTL: -2 for a missing key, -1 without a deadline
func ttlHandler(unit time.Duration) commandFunc {
	return func(ctx *Context) resp.Value {
		ttl, status := ctx.storage.Expiry(ctx.key(0))
		if status != storage.ExpActive {
			return resp.MakeInteger(int64(status))
		}
		// round to the nearest unit
		return resp.MakeInteger(int64((ttl + unit/2) / unit))
	}
}

func persist(ctx *Context) resp.Value {
	return makeBool(ctx.storage.Persist(ctx.key(0)))
}

func typeCmd(ctx *Context) resp.Value {
	return resp.MakeSimpleString(ctx.storage.Type(ctx.key(0)).String())
}

func rename(ctx *Context) resp.Value {
	if err := ctx.storage.Rename(ctx.key(0), ctx.key(1)); err != nil {
		return ctx.fail(err)
	}
	return resp.MakeOK()
}

// keys returns the live keys matching a glob pattern, sorted
func keys(ctx *Context) resp.Value {
	pattern := string(ctx.args[0])

	var match func(string) bool
	if pattern != "*" {
		re, err := globToRegexp(pattern)
		if err != nil {
			// an unbalanced class matches nothing, as in Redis
			return resp.MakeArray(nil)
		}
		match = re.MatchString
	}

	found := ctx.storage.Keys(match)
	slices.Sort(found)
	return makeStrings(found)
}

// globToRegexp translates a Redis glob (*, ?, [abc], [^a-z], \x) into an anchored regexp
func globToRegexp(glob string) (*regexp.Regexp, error) {
	var b strings.Builder
	b.WriteString(`(?s)^`)

	for i := 0; i < len(glob); i++ {
		switch glob[i] {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteByte('.')
		case '\\':
			if i+1 < len(glob) {
				i++
			}
			b.WriteString(regexp.QuoteMeta(glob[i : i+1]))
		case '[':
			end := strings.IndexByte(glob[i+1:], ']')
			if end < 0 {
				b.WriteString(regexp.QuoteMeta(glob[i:]))
				i = len(glob)
				continue
			}
			class := glob[i+1 : i+1+end]
			b.WriteByte('[')
			if strings.HasPrefix(class, "^") || strings.HasPrefix(class, "!") {
				b.WriteByte('^')
				class = class[1:]
			}
			for j := 0; j < len(class); j++ {
				if class[j] == '-' && j > 0 && j < len(class)-1 {
					b.WriteByte('-')
					continue
				}
				b.WriteString(regexp.QuoteMeta(class[j : j+1]))
			}
			b.WriteByte(']')
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(glob[i : i+1]))
		}
	}

	b.WriteByte('$')
	return regexp.Compile(b.String())
}
