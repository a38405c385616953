package server

import (
	"maps"
	"slices"

	"github.com/eternalApril/starlight/internal/resp"
)

// hset handles HSET key field value [field value ...]
func hset(ctx *Context) resp.Value {
	if len(ctx.args)%2 != 1 {
		return resp.MakeErrorWrongNumberOfArguments(ctx.cmd.name)
	}

	fields := make(map[string][]byte, len(ctx.args)/2)
	for i := 1; i < len(ctx.args); i += 2 {
		fields[string(ctx.args[i])] = ctx.args[i+1]
	}

	added, err := ctx.storage.HSet(ctx.key(0), fields)
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(int64(added))
}

func hget(ctx *Context) resp.Value {
	v, ok, err := ctx.storage.HGet(ctx.key(0), string(ctx.args[1]))
	if err != nil {
		return ctx.fail(err)
	}
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkBytes(v)
}

func hmget(ctx *Context) resp.Value {
	vals, err := ctx.storage.HMGet(ctx.key(0), ctx.keys(1)...)
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeBulkArray(vals)
}

func hdel(ctx *Context) resp.Value {
	n, err := ctx.storage.HDel(ctx.key(0), ctx.keys(1)...)
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(int64(n))
}

// hashView builds HGETALL, HKEYS and HVALS from one consistent read, ordered by field
func hashView(withFields, withValues bool) commandFunc {
	return func(ctx *Context) resp.Value {
		all, err := ctx.storage.HGetAll(ctx.key(0))
		if err != nil {
			return ctx.fail(err)
		}

		fields := slices.Sorted(maps.Keys(all))
		out := make([]resp.Value, 0, len(all)*2)
		for _, f := range fields {
			if withFields {
				out = append(out, resp.MakeBulkString(f))
			}
			if withValues {
				out = append(out, resp.MakeBulkBytes(all[f]))
			}
		}
		return resp.MakeArray(out)
	}
}

func hexists(ctx *Context) resp.Value {
	ok, err := ctx.storage.HExists(ctx.key(0), string(ctx.args[1]))
	if err != nil {
		return ctx.fail(err)
	}
	return makeBool(ok)
}

func hlen(ctx *Context) resp.Value {
	n, err := ctx.storage.HLen(ctx.key(0))
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(int64(n))
}

func hincrby(ctx *Context) resp.Value {
	delta, ok := parseInt(ctx.args[2])
	if !ok {
		return errNotInteger
	}

	n, err := ctx.storage.HIncrBy(ctx.key(0), string(ctx.args[1]), delta)
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(n)
}
