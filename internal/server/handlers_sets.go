package server

import (
	"slices"

	"github.com/eternalApril/starlight/internal/resp"
)

func sadd(ctx *Context) resp.Value {
	n, err := ctx.storage.SAdd(ctx.key(0), ctx.keys(1)...)
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(int64(n))
}

func srem(ctx *Context) resp.Value {
	n, err := ctx.storage.SRem(ctx.key(0), ctx.keys(1)...)
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(int64(n))
}

// smembers replies with the members in byte order
func smembers(ctx *Context) resp.Value {
	members, err := ctx.storage.SMembers(ctx.key(0))
	if err != nil {
		return ctx.fail(err)
	}
	slices.Sort(members)
	return makeStrings(members)
}

func sismember(ctx *Context) resp.Value {
	ok, err := ctx.storage.SIsMember(ctx.key(0), string(ctx.args[1]))
	if err != nil {
		return ctx.fail(err)
	}
	return makeBool(ok)
}

func scard(ctx *Context) resp.Value {
	n, err := ctx.storage.SCard(ctx.key(0))
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(int64(n))
}
