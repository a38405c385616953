package server

import (
	"github.com/eternalApril/starlight/internal/resp"
)

// pushHandler builds LPUSH (left) and RPUSH
func pushHandler(left bool) commandFunc {
	return func(ctx *Context) resp.Value {
		n, err := ctx.storage.Push(ctx.key(0), left, ctx.args[1:]...)
		if err != nil {
			return ctx.fail(err)
		}
		return resp.MakeInteger(int64(n))
	}
}

// popHandler builds LPOP (left) and RPOP. Without a count the reply is a single
// element, with a count it is an array
func popHandler(left bool) commandFunc {
	return func(ctx *Context) resp.Value {
		count, withCount := 1, len(ctx.args) > 1
		if withCount {
			n, ok := parseIndex(ctx.args[1])
			if !ok || n < 0 {
				return resp.MakeErrorf("value is out of range, must be positive")
			}
			count = n
		}

		items, err := ctx.storage.Pop(ctx.key(0), left, count)
		if err != nil {
			return ctx.fail(err)
		}

		if !withCount {
			if len(items) == 0 {
				return resp.MakeNilBulkString()
			}
			return resp.MakeBulkBytes(items[0])
		}
		if items == nil {
			return resp.MakeNilArray()
		}
		return resp.MakeBulkArray(items)
	}
}

func llen(ctx *Context) resp.Value {
	n, err := ctx.storage.LLen(ctx.key(0))
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(int64(n))
}

func lrange(ctx *Context) resp.Value {
	start, ok1 := parseIndex(ctx.args[1])
	stop, ok2 := parseIndex(ctx.args[2])
	if !ok1 || !ok2 {
		return errNotInteger
	}

	items, err := ctx.storage.LRange(ctx.key(0), start, stop)
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeBulkArray(items)
}

func lindex(ctx *Context) resp.Value {
	index, ok := parseIndex(ctx.args[1])
	if !ok {
		return errNotInteger
	}

	v, found, err := ctx.storage.LIndex(ctx.key(0), index)
	if err != nil {
		return ctx.fail(err)
	}
	if !found {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkBytes(v)
}
