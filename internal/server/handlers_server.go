package server

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/eternalApril/starlight/internal/resp"
)

// Version is reported by INFO
const Version = "0.3.0"

func ping(ctx *Context) resp.Value {
	if len(ctx.args) == 1 {
		return resp.MakeBulkBytes(ctx.args[0])
	}
	return resp.MakeSimpleString("PONG")
}

func echo(ctx *Context) resp.Value {
	return resp.MakeBulkBytes(ctx.args[0])
}

// quit only acknowledges, the connection loop closes after writing the reply
func quit(*Context) resp.Value {
	return resp.MakeOK()
}

func dbsize(ctx *Context) resp.Value {
	return resp.MakeInteger(int64(ctx.storage.Len()))
}

// flush handles FLUSHDB and FLUSHALL. ASYNC and SYNC are accepted, the flush is always synchronous
func flush(ctx *Context) resp.Value {
	if len(ctx.args) == 1 {
		switch strings.ToUpper(string(ctx.args[0])) {
		case "ASYNC", "SYNC":
		default:
			return errSyntax
		}
	}
	ctx.storage.Flush()
	return resp.MakeOK()
}

func timeCmd(*Context) resp.Value {
	now := time.Now()
	return resp.MakeArray([]resp.Value{
		resp.MakeBulkString(strconv.FormatInt(now.Unix(), 10)),
		resp.MakeBulkString(strconv.Itoa(now.Nanosecond() / 1000)),
	})
}

var infoSections = []string{"server", "clients", "stats", "keyspace"}

// info renders the sections in the Redis "key:value" text format
func info(ctx *Context) resp.Value {
	want := infoSections
	if len(ctx.args) == 1 {
		section := strings.ToLower(string(ctx.args[0]))
		if section != "all" && section != "default" && section != "everything" {
			want = []string{section}
		}
	}

	e := ctx.engine
	var b strings.Builder
	for _, section := range want {
		switch section {
		case "server":
			b.WriteString("# Server\r\n")
			fmt.Fprintf(&b, "starlight_version:%s\r\n", Version)
			fmt.Fprintf(&b, "redis_version:%s\r\n", "7.0.0")
			fmt.Fprintf(&b, "go_version:%s\r\n", runtime.Version())
			fmt.Fprintf(&b, "process_id:%d\r\n", e.pid)
			fmt.Fprintf(&b, "uptime_in_seconds:%d\r\n", int64(time.Since(e.started).Seconds()))
		case "clients":
			b.WriteString("# Clients\r\n")
			fmt.Fprintf(&b, "connected_clients:%d\r\n", e.stats.connected.Load())
			fmt.Fprintf(&b, "maxclients:%d\r\n", e.stats.maxClients.Load())
		case "stats":
			b.WriteString("# Stats\r\n")
			fmt.Fprintf(&b, "total_connections_received:%d\r\n", e.stats.connections.Load())
			fmt.Fprintf(&b, "total_commands_processed:%d\r\n", e.stats.commands.Load())
			fmt.Fprintf(&b, "rejected_connections:%d\r\n", e.stats.rejected.Load())
			fmt.Fprintf(&b, "expired_keys:%d\r\n", e.reaper.Expired())
		case "keyspace":
			b.WriteString("# Keyspace\r\n")
			if n := ctx.storage.Len(); n > 0 {
				fmt.Fprintf(&b, "db0:keys=%d\r\n", n)
			}
		default:
			continue
		}
		b.WriteString("\r\n")
	}

	return resp.MakeBulkString(b.String())
}
