package server

import (
	"math"
	"strings"
	"time"

	"github.com/eternalApril/starlight/internal/resp"
	"github.com/eternalApril/starlight/internal/storage"
)

func get(ctx *Context) resp.Value {
	v, ok, err := ctx.storage.Get(ctx.key(0))
	if err != nil {
		return ctx.fail(err)
	}
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkBytes(v)
}

// parseSetOptions reads the SET options that follow the value
func parseSetOptions(args [][]byte) (storage.SetOptions, *resp.Value) {
	var (
		options storage.SetOptions
		ttlSet  bool
	)

	fail := func(v resp.Value) (storage.SetOptions, *resp.Value) {
		return storage.SetOptions{}, &v
	}

	for i := 0; i < len(args); i++ {
		option := strings.ToUpper(string(args[i]))
		switch option {
		case "NX":
			if options.XX {
				return fail(resp.MakeErrorf("NX cannot use with XX"))
			}
			options.NX = true
		case "XX":
			if options.NX {
				return fail(resp.MakeErrorf("XX cannot use with NX"))
			}
			options.XX = true
		case "GET":
			options.Get = true
		case "KEEPTTL":
			if ttlSet {
				return fail(resp.MakeErrorf("TTL already specified"))
			}
			options.KeepTTL, ttlSet = true, true
		case "EX", "PX", "EXAT", "PXAT":
			if ttlSet {
				return fail(resp.MakeErrorf("TTL already specified"))
			}
			if i+1 >= len(args) {
				return fail(errSyntax)
			}
			i++
			n, ok := parseInt(args[i])
			if !ok {
				return fail(resp.MakeErrorf("value TTL is not integer"))
			}
			unit, absolute, _ := expireUnit(option)
			at, ok := expireAt(n, unit, absolute)
			if n <= 0 || !ok {
				return fail(makeInvalidExpire("set"))
			}
			options.ExpireAt, ttlSet = at, true
		default:
			return fail(resp.MakeErrorf("syntax error with command"))
		}
	}

	return options, nil
}

// set handles SET key value [NX|XX] [GET] [EX s|PX ms|EXAT ts|PXAT ts|KEEPTTL]
func set(ctx *Context) resp.Value {
	options, errReply := parseSetOptions(ctx.args[2:])
	if errReply != nil {
		return *errReply
	}

	old, applied, err := ctx.storage.Set(ctx.key(0), ctx.args[1], options)
	if err != nil {
		return ctx.fail(err)
	}

	switch {
	case options.Get && old == nil:
		return resp.MakeNilBulkString()
	case options.Get:
		return resp.MakeBulkBytes(old)
	case !applied:
		return resp.MakeNilBulkString()
	}
	return resp.MakeOK()
}

func setnx(ctx *Context) resp.Value {
	_, applied, err := ctx.storage.Set(ctx.key(0), ctx.args[1], storage.SetOptions{NX: true})
	if err != nil {
		return ctx.fail(err)
	}
	return makeBool(applied)
}

// setexHandler builds SETEX and PSETEX: key ttl value
func setexHandler(unit time.Duration) commandFunc {
	return func(ctx *Context) resp.Value {
		n, ok := parseInt(ctx.args[1])
		if !ok {
			return errNotInteger
		}
		at, ok := expireAt(n, unit, false)
		if n <= 0 || !ok {
			return makeInvalidExpire(ctx.cmd.name)
		}

		if _, _, err := ctx.storage.Set(ctx.key(0), ctx.args[2], storage.SetOptions{ExpireAt: at}); err != nil {
			return ctx.fail(err)
		}
		return resp.MakeOK()
	}
}

func getdel(ctx *Context) resp.Value {
	v, ok, err := ctx.storage.GetDel(ctx.key(0))
	if err != nil {
		return ctx.fail(err)
	}
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkBytes(v)
}

func mget(ctx *Context) resp.Value {
	return resp.MakeBulkArray(ctx.storage.MGet(ctx.keys(0)...))
}

func mset(ctx *Context) resp.Value {
	if len(ctx.args)%2 != 0 {
		return resp.MakeErrorWrongNumberOfArguments(ctx.cmd.name)
	}

	keys := make([]string, 0, len(ctx.args)/2)
	values := make([][]byte, 0, len(ctx.args)/2)
	for i := 0; i < len(ctx.args); i += 2 {
		keys = append(keys, ctx.key(i))
		values = append(values, ctx.args[i+1])
	}
	ctx.storage.MSet(keys, values)
	return resp.MakeOK()
}

func appendCmd(ctx *Context) resp.Value {
	n, err := ctx.storage.Append(ctx.key(0), ctx.args[1])
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(int64(n))
}

func strlen(ctx *Context) resp.Value {
	n, err := ctx.storage.StrLen(ctx.key(0))
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(int64(n))
}

func incrBy(ctx *Context, delta int64) resp.Value {
	n, err := ctx.storage.IncrBy(ctx.key(0), delta)
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(n)
}

func incr(ctx *Context) resp.Value { return incrBy(ctx, 1) }

func decr(ctx *Context) resp.Value { return incrBy(ctx, -1) }

func incrby(ctx *Context) resp.Value {
	delta, ok := parseInt(ctx.args[1])
	if !ok {
		return errNotInteger
	}
	return incrBy(ctx, delta)
}

func decrby(ctx *Context) resp.Value {
	delta, ok := parseInt(ctx.args[1])
	if !ok {
		return errNotInteger
	}
	if delta == math.MinInt64 {
		return resp.MakeErrorf("decrement would overflow")
	}
	return incrBy(ctx, -delta)
}
