package server

import (
	"strings"

	"github.com/eternalApril/starlight/internal/resp"
	"github.com/eternalApril/starlight/internal/storage"
)

// zadd handles ZADD key [NX|XX] [CH] score member [score member ...]
func zadd(ctx *Context) resp.Value {
	var options storage.ZAddOptions

	i := 1
flags:
	for ; i < len(ctx.args); i++ {
		switch strings.ToUpper(string(ctx.args[i])) {
		case "NX":
			options.NX = true
		case "XX":
			options.XX = true
		case "CH":
			options.CH = true
		default:
			break flags
		}
	}

	if options.NX && options.XX {
		return resp.MakeErrorf("XX and NX options at the same time are not compatible")
	}

	pairs := ctx.args[i:]
	if len(pairs) == 0 || len(pairs)%2 != 0 {
		return errSyntax
	}

	members := make([]storage.ZMember, 0, len(pairs)/2)
	for j := 0; j < len(pairs); j += 2 {
		score, ok := parseFloat(pairs[j])
		if !ok {
			return errNotFloat
		}
		members = append(members, storage.ZMember{Member: string(pairs[j+1]), Score: score})
	}

	n, err := ctx.storage.ZAdd(ctx.key(0), options, members...)
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(int64(n))
}

// zrange handles ZRANGE key start stop [WITHSCORES] by rank
func zrange(ctx *Context) resp.Value {
	start, ok1 := parseIndex(ctx.args[1])
	stop, ok2 := parseIndex(ctx.args[2])
	if !ok1 || !ok2 {
		return errNotInteger
	}

	withScores := false
	if len(ctx.args) == 4 {
		if !strings.EqualFold(string(ctx.args[3]), "WITHSCORES") {
			return errSyntax
		}
		withScores = true
	}

	members, err := ctx.storage.ZRange(ctx.key(0), start, stop)
	if err != nil {
		return ctx.fail(err)
	}

	out := make([]resp.Value, 0, len(members)*2)
	for _, m := range members {
		out = append(out, resp.MakeBulkString(m.Member))
		if withScores {
			out = append(out, resp.MakeBulkString(formatFloat(m.Score)))
		}
	}
	return resp.MakeArray(out)
}

func zscore(ctx *Context) resp.Value {
	score, ok, err := ctx.storage.ZScore(ctx.key(0), string(ctx.args[1]))
	if err != nil {
		return ctx.fail(err)
	}
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeBulkString(formatFloat(score))
}

func zrem(ctx *Context) resp.Value {
	n, err := ctx.storage.ZRem(ctx.key(0), ctx.keys(1)...)
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(int64(n))
}

func zcard(ctx *Context) resp.Value {
	n, err := ctx.storage.ZCard(ctx.key(0))
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeInteger(int64(n))
}

func zrank(ctx *Context) resp.Value {
	rank, ok, err := ctx.storage.ZRank(ctx.key(0), string(ctx.args[1]))
	if err != nil {
		return ctx.fail(err)
	}
	if !ok {
		return resp.MakeNilBulkString()
	}
	return resp.MakeInteger(int64(rank))
}

func zincrby(ctx *Context) resp.Value {
	delta, ok := parseFloat(ctx.args[1])
	if !ok {
		return errNotFloat
	}

	score, err := ctx.storage.ZIncrBy(ctx.key(0), delta, string(ctx.args[2]))
	if err != nil {
		return ctx.fail(err)
	}
	return resp.MakeBulkString(formatFloat(score))
}
