package server

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eternalApril/starlight/internal/config"
	"github.com/eternalApril/starlight/internal/metrics"
	"github.com/eternalApril/starlight/internal/resp"
	"github.com/eternalApril/starlight/internal/storage"
	"go.uber.org/zap"
)

// engineStats are the counters INFO reports
type engineStats struct {
	connected   atomic.Int64
	connections atomic.Int64
	rejected    atomic.Int64
	commands    atomic.Int64
	maxClients  atomic.Int64
}

// Engine coordinates the execution of commands and manages the background tasks of the storage
type Engine struct {
	commands map[string]*command // Registry of available commands (the key is the command name in uppercase)
	storage  storage.Storage     // Underlying keyspace, shared with the reaper
	cfg      *config.Config      // Configuration engine
	reaper   *Reaper
	stopGC   context.CancelFunc // Cancels the background GC
	gcDone   chan struct{}      // Closed when the GC loop returned
	stopOnce sync.Once          // Ensures that the stop happens only once
	started  time.Time
	pid      int
	stats    engineStats
	logger   *zap.Logger
}

// NewEngine initializes the engine, registers the commands, and
// if enabled in the config, starts background cleanup of outdated keys
func NewEngine(s storage.Storage, cfg *config.Config, logger *zap.Logger) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("engine: storage is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("engine: config is required")
	}

	engine := &Engine{
		commands: make(map[string]*command),
		storage:  s,
		cfg:      cfg,
		reaper:   NewReaper(s, cfg.GC, logger),
		started:  time.Now(),
		pid:      os.Getpid(),
		logger:   logger,
	}
	engine.stats.maxClients.Store(int64(cfg.Server.MaxClients))
	metrics.SetKeyCounter(s.Len)

	for _, c := range commandTable() {
		engine.register(c)
	}

	if cfg.GC.Enabled {
		ctx, cancel := context.WithCancel(context.Background())
		engine.stopGC = cancel
		engine.gcDone = make(chan struct{})
		go func() {
			defer close(engine.gcDone)
			engine.reaper.Run(ctx)
		}()
	}

	return engine, nil
}

// register adds a new command to the engine. The command name is uppercase
func (e *Engine) register(c command) {
	c.name = strings.ToUpper(c.name)
	c.label = strings.ToLower(c.name)
	e.commands[c.name] = &c
}

// Storage returns the keyspace the engine executes against
func (e *Engine) Storage() storage.Storage {
	return e.storage
}

// Execute finds the command by name and executes it with the passed arguments.
// Application failures come back as error replies, including a panicking handler
func (e *Engine) Execute(req resp.Request) (res resp.Value) {
	if req.Len() == 0 {
		return resp.MakeErrorf("empty command")
	}

	name := req.Name()
	args := req.Args[1:]

	if e.logger.Core().Enabled(zap.DebugLevel) {
		// Log the command name and number of args
		e.logger.Debug("executing command",
			zap.String("cmd", name),
			zap.Int("args_count", len(args)),
		)
	}

	cmd, ok := e.commands[name]
	if !ok {
		metrics.RecordCommand("", 0, true)
		return unknownCommand(req)
	}

	if !cmd.acceptsArgs(len(args)) {
		metrics.RecordCommand(cmd.label, 0, true)
		return resp.MakeErrorWrongNumberOfArguments(cmd.name)
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("command panicked",
				zap.String("cmd", cmd.name),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			res = resp.MakeErrorf("internal error: %v", r)
		}
		e.stats.commands.Add(1)
		metrics.RecordCommand(cmd.label, time.Since(start), res.IsError())
	}()

	return cmd.handler(&Context{
		args:    args,
		storage: e.storage,
		engine:  e,
		cmd:     cmd,
	})
}

// unknownCommand mirrors the Redis reply, quoting at most 128 bytes per argument
func unknownCommand(req resp.Request) resp.Value {
	var b strings.Builder
	for _, arg := range req.Args[1:] {
		fmt.Fprintf(&b, "'%.128s' ", arg)
	}
	return resp.MakeErrorf("unknown command '%.128s', with args beginning with: %s", req.Args[0], b.String())
}

// Shutdown shuts down the engine and its background services correctly
func (e *Engine) Shutdown() {
	e.stopOnce.Do(func() {
		if e.stopGC != nil {
			e.stopGC()
			<-e.gcDone
			e.logger.Info("GC background process stopped")
		}
	})
}

// commandTable is the static registry
func commandTable() []command {
	return []command{
		// connection and server
		{name: "PING", minArgs: 0, maxArgs: 1, flags: flagsServer, handler: ping,
			doc: commandDoc{"Ping the server.", "O(1)", "connection", "1.0.0"}},
		{name: "ECHO", minArgs: 1, maxArgs: 1, flags: flagsServer, handler: echo,
			doc: commandDoc{"Echo the given string.", "O(1)", "connection", "1.0.0"}},
		{name: "QUIT", minArgs: 0, maxArgs: 0, flags: flagsServer, handler: quit,
			doc: commandDoc{"Close the connection.", "O(1)", "connection", "1.0.0"}},
		{name: "COMMAND", minArgs: 0, maxArgs: -1, flags: []string{"random", "loading", "stale"}, handler: commandCmd,
			doc: commandDoc{"Get array of command details.", "O(N) where N is the number of commands to look up.", "server", "2.8.13"}},
		{name: "INFO", minArgs: 0, maxArgs: 1, flags: []string{"random", "loading", "stale"}, handler: info,
			doc: commandDoc{"Get information and statistics about the server.", "O(1)", "server", "1.0.0"}},
		{name: "DBSIZE", minArgs: 0, maxArgs: 0, flags: flagsRead, handler: dbsize,
			doc: commandDoc{"Return the number of keys in the selected database.", "O(N) where N is the number of keys with a TTL.", "server", "1.0.0"}},
		{name: "FLUSHDB", minArgs: 0, maxArgs: 1, flags: flagsWriteSlow, handler: flush,
			doc: commandDoc{"Remove all keys from the current database.", "O(N) where N is the number of shards.", "server", "1.0.0"}},
		{name: "FLUSHALL", minArgs: 0, maxArgs: 1, flags: flagsWriteSlow, handler: flush,
			doc: commandDoc{"Remove all keys from all databases.", "O(N) where N is the number of shards.", "server", "1.0.0"}},
		{name: "TIME", minArgs: 0, maxArgs: 0, flags: []string{"random", "loading", "stale", "fast"}, handler: timeCmd,
			doc: commandDoc{"Return the current server time.", "O(1)", "server", "2.6.0"}},

		// generic
		{name: "DEL", minArgs: 1, maxArgs: -1, flags: flagsWriteSlow, firstKey: 1, lastKey: -1, step: 1, handler: del,
			doc: commandDoc{"Delete a key.", "O(N) where N is the number of keys that will be removed.", "generic", "1.0.0"}},
		{name: "EXISTS", minArgs: 1, maxArgs: -1, flags: flagsRead, firstKey: 1, lastKey: -1, step: 1, handler: exists,
			doc: commandDoc{"Determine if a key exists.", "O(N) where N is the number of keys to check.", "generic", "1.0.0"}},
		{name: "EXPIRE", minArgs: 2, maxArgs: 2, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: expireHandler(time.Second, false),
			doc: commandDoc{"Set a key's time to live in seconds.", "O(1)", "generic", "1.0.0"}},
		{name: "PEXPIRE", minArgs: 2, maxArgs: 2, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: expireHandler(time.Millisecond, false),
			doc: commandDoc{"Set a key's time to live in milliseconds.", "O(1)", "generic", "2.6.0"}},
		{name: "EXPIREAT", minArgs: 2, maxArgs: 2, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: expireHandler(time.Second, true),
			doc: commandDoc{"Set the expiration for a key as a UNIX timestamp.", "O(1)", "generic", "1.2.0"}},
		{name: "PEXPIREAT", minArgs: 2, maxArgs: 2, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: expireHandler(time.Millisecond, true),
			doc: commandDoc{"Set the expiration for a key as a UNIX timestamp specified in milliseconds.", "O(1)", "generic", "2.6.0"}},
		{name: "TTL", minArgs: 1, maxArgs: 1, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: ttlHandler(time.Second),
			doc: commandDoc{"Get the time to live for a key in seconds.", "O(1)", "generic", "1.0.0"}},
		{name: "PTTL", minArgs: 1, maxArgs: 1, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: ttlHandler(time.Millisecond),
			doc: commandDoc{"Get the time to live for a key in milliseconds.", "O(1)", "generic", "2.6.0"}},
		{name: "PERSIST", minArgs: 1, maxArgs: 1, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: persist,
			doc: commandDoc{"Remove the expiration from a key.", "O(1)", "generic", "2.2.0"}},
		{name: "TYPE", minArgs: 1, maxArgs: 1, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: typeCmd,
			doc: commandDoc{"Determine the type stored at key.", "O(1)", "generic", "1.0.0"}},
		{name: "RENAME", minArgs: 2, maxArgs: 2, flags: flagsWriteSlow, firstKey: 1, lastKey: 2, step: 1, handler: rename,
			doc: commandDoc{"Rename a key.", "O(1)", "generic", "1.0.0"}},
		{name: "KEYS", minArgs: 1, maxArgs: 1, flags: flagsReadSlow, handler: keys,
			doc: commandDoc{"Find all keys matching the given pattern.", "O(N) with N being the number of keys in the database.", "generic", "1.0.0"}},

		// strings
		{name: "GET", minArgs: 1, maxArgs: 1, keyType: storage.TypeString, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: get,
			doc: commandDoc{summary: "Get the value of a key.", complexity: "O(1)", since: "1.0.0"}},
		{name: "SET", minArgs: 2, maxArgs: -1, keyType: storage.TypeString, flags: flagsWriteOOM, firstKey: 1, lastKey: 1, step: 1, handler: set,
			doc: commandDoc{summary: "Set the string value of a key.", complexity: "O(1)", since: "1.0.0"}},
		{name: "SETNX", minArgs: 2, maxArgs: 2, keyType: storage.TypeString, flags: []string{"write", "denyoom", "fast"}, firstKey: 1, lastKey: 1, step: 1, handler: setnx,
			doc: commandDoc{summary: "Set the value of a key, only if the key does not exist.", complexity: "O(1)", since: "1.0.0"}},
		{name: "SETEX", minArgs: 3, maxArgs: 3, keyType: storage.TypeString, flags: flagsWriteOOM, firstKey: 1, lastKey: 1, step: 1, handler: setexHandler(time.Second),
			doc: commandDoc{summary: "Set the value and expiration of a key.", complexity: "O(1)", since: "2.0.0"}},
		{name: "PSETEX", minArgs: 3, maxArgs: 3, keyType: storage.TypeString, flags: flagsWriteOOM, firstKey: 1, lastKey: 1, step: 1, handler: setexHandler(time.Millisecond),
			doc: commandDoc{summary: "Set the value and expiration in milliseconds of a key.", complexity: "O(1)", since: "2.6.0"}},
		{name: "GETDEL", minArgs: 1, maxArgs: 1, keyType: storage.TypeString, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: getdel,
			doc: commandDoc{summary: "Get the value of a key and delete the key.", complexity: "O(1)", since: "6.2.0"}},
		{name: "MGET", minArgs: 1, maxArgs: -1, keyType: storage.TypeString, flags: flagsRead, firstKey: 1, lastKey: -1, step: 1, handler: mget,
			doc: commandDoc{summary: "Get the values of all the given keys.", complexity: "O(N) where N is the number of keys to retrieve.", since: "1.0.0"}},
		{name: "MSET", minArgs: 2, maxArgs: -1, keyType: storage.TypeString, flags: flagsWriteOOM, firstKey: 1, lastKey: -1, step: 2, handler: mset,
			doc: commandDoc{summary: "Set multiple keys to multiple values.", complexity: "O(N) where N is the number of keys to set.", since: "1.0.1"}},
		{name: "APPEND", minArgs: 2, maxArgs: 2, keyType: storage.TypeString, flags: flagsWriteOOM, firstKey: 1, lastKey: 1, step: 1, handler: appendCmd,
			doc: commandDoc{summary: "Append a value to a key.", complexity: "O(1)", since: "2.0.0"}},
		{name: "STRLEN", minArgs: 1, maxArgs: 1, keyType: storage.TypeString, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: strlen,
			doc: commandDoc{summary: "Get the length of the value stored in a key.", complexity: "O(1)", since: "2.2.0"}},
		{name: "INCR", minArgs: 1, maxArgs: 1, keyType: storage.TypeString, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: incr,
			doc: commandDoc{summary: "Increment the integer value of a key by one.", complexity: "O(1)", since: "1.0.0"}},
		{name: "DECR", minArgs: 1, maxArgs: 1, keyType: storage.TypeString, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: decr,
			doc: commandDoc{summary: "Decrement the integer value of a key by one.", complexity: "O(1)", since: "1.0.0"}},
		{name: "INCRBY", minArgs: 2, maxArgs: 2, keyType: storage.TypeString, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: incrby,
			doc: commandDoc{summary: "Increment the integer value of a key by the given amount.", complexity: "O(1)", since: "1.0.0"}},
		{name: "DECRBY", minArgs: 2, maxArgs: 2, keyType: storage.TypeString, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: decrby,
			doc: commandDoc{summary: "Decrement the integer value of a key by the given number.", complexity: "O(1)", since: "1.0.0"}},

		// lists
		{name: "LPUSH", minArgs: 2, maxArgs: -1, keyType: storage.TypeList, flags: flagsWriteOOM, firstKey: 1, lastKey: 1, step: 1, handler: pushHandler(true),
			doc: commandDoc{summary: "Prepend one or multiple elements to a list.", complexity: "O(N) where N is the number of elements.", since: "1.0.0"}},
		{name: "RPUSH", minArgs: 2, maxArgs: -1, keyType: storage.TypeList, flags: flagsWriteOOM, firstKey: 1, lastKey: 1, step: 1, handler: pushHandler(false),
			doc: commandDoc{summary: "Append one or multiple elements to a list.", complexity: "O(N) where N is the number of elements.", since: "1.0.0"}},
		{name: "LPOP", minArgs: 1, maxArgs: 2, keyType: storage.TypeList, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: popHandler(true),
			doc: commandDoc{summary: "Remove and get the first elements in a list.", complexity: "O(N) where N is the number of elements returned.", since: "1.0.0"}},
		{name: "RPOP", minArgs: 1, maxArgs: 2, keyType: storage.TypeList, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: popHandler(false),
			doc: commandDoc{summary: "Remove and get the last elements in a list.", complexity: "O(N) where N is the number of elements returned.", since: "1.0.0"}},
		{name: "LLEN", minArgs: 1, maxArgs: 1, keyType: storage.TypeList, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: llen,
			doc: commandDoc{summary: "Get the length of a list.", complexity: "O(1)", since: "1.0.0"}},
		{name: "LRANGE", minArgs: 3, maxArgs: 3, keyType: storage.TypeList, flags: flagsReadSlow, firstKey: 1, lastKey: 1, step: 1, handler: lrange,
			doc: commandDoc{summary: "Get a range of elements from a list.", complexity: "O(S+N) where S is the start offset and N the number of elements.", since: "1.0.0"}},
		{name: "LINDEX", minArgs: 2, maxArgs: 2, keyType: storage.TypeList, flags: flagsReadSlow, firstKey: 1, lastKey: 1, step: 1, handler: lindex,
			doc: commandDoc{summary: "Get an element from a list by its index.", complexity: "O(1)", since: "1.0.0"}},

		// hashes
		{name: "HSET", minArgs: 3, maxArgs: -1, keyType: storage.TypeHash, flags: []string{"write", "denyoom", "fast"}, firstKey: 1, lastKey: 1, step: 1, handler: hset,
			doc: commandDoc{summary: "Set the string value of a hash field.", complexity: "O(N) where N is the number of fields being set.", since: "2.0.0"}},
		{name: "HGET", minArgs: 2, maxArgs: 2, keyType: storage.TypeHash, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: hget,
			doc: commandDoc{summary: "Get the value of a hash field.", complexity: "O(1)", since: "2.0.0"}},
		{name: "HMGET", minArgs: 2, maxArgs: -1, keyType: storage.TypeHash, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: hmget,
			doc: commandDoc{summary: "Get the values of all the given hash fields.", complexity: "O(N) where N is the number of fields being requested.", since: "2.0.0"}},
		{name: "HDEL", minArgs: 2, maxArgs: -1, keyType: storage.TypeHash, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: hdel,
			doc: commandDoc{summary: "Delete one or more hash fields.", complexity: "O(N) where N is the number of fields to be removed.", since: "2.0.0"}},
		{name: "HGETALL", minArgs: 1, maxArgs: 1, keyType: storage.TypeHash, flags: flagsReadSlow, firstKey: 1, lastKey: 1, step: 1, handler: hashView(true, true),
			doc: commandDoc{summary: "Get all the fields and values in a hash.", complexity: "O(N) where N is the size of the hash.", since: "2.0.0"}},
		{name: "HKEYS", minArgs: 1, maxArgs: 1, keyType: storage.TypeHash, flags: flagsReadSlow, firstKey: 1, lastKey: 1, step: 1, handler: hashView(true, false),
			doc: commandDoc{summary: "Get all the fields in a hash.", complexity: "O(N) where N is the size of the hash.", since: "2.0.0"}},
		{name: "HVALS", minArgs: 1, maxArgs: 1, keyType: storage.TypeHash, flags: flagsReadSlow, firstKey: 1, lastKey: 1, step: 1, handler: hashView(false, true),
			doc: commandDoc{summary: "Get all the values in a hash.", complexity: "O(N) where N is the size of the hash.", since: "2.0.0"}},
		{name: "HEXISTS", minArgs: 2, maxArgs: 2, keyType: storage.TypeHash, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: hexists,
			doc: commandDoc{summary: "Determine if a hash field exists.", complexity: "O(1)", since: "2.0.0"}},
		{name: "HLEN", minArgs: 1, maxArgs: 1, keyType: storage.TypeHash, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: hlen,
			doc: commandDoc{summary: "Get the number of fields in a hash.", complexity: "O(1)", since: "2.0.0"}},
		{name: "HINCRBY", minArgs: 3, maxArgs: 3, keyType: storage.TypeHash, flags: []string{"write", "denyoom", "fast"}, firstKey: 1, lastKey: 1, step: 1, handler: hincrby,
			doc: commandDoc{summary: "Increment the integer value of a hash field by the given number.", complexity: "O(1)", since: "2.0.0"}},

		// sets
		{name: "SADD", minArgs: 2, maxArgs: -1, keyType: storage.TypeSet, flags: []string{"write", "denyoom", "fast"}, firstKey: 1, lastKey: 1, step: 1, handler: sadd,
			doc: commandDoc{summary: "Add one or more members to a set.", complexity: "O(N) where N is the number of members to be added.", since: "1.0.0"}},
		{name: "SREM", minArgs: 2, maxArgs: -1, keyType: storage.TypeSet, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: srem,
			doc: commandDoc{summary: "Remove one or more members from a set.", complexity: "O(N) where N is the number of members to be removed.", since: "1.0.0"}},
		{name: "SMEMBERS", minArgs: 1, maxArgs: 1, keyType: storage.TypeSet, flags: flagsReadSlow, firstKey: 1, lastKey: 1, step: 1, handler: smembers,
			doc: commandDoc{summary: "Get all the members in a set.", complexity: "O(N log N) where N is the set cardinality.", since: "1.0.0"}},
		{name: "SISMEMBER", minArgs: 2, maxArgs: 2, keyType: storage.TypeSet, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: sismember,
			doc: commandDoc{summary: "Determine if a given value is a member of a set.", complexity: "O(1)", since: "1.0.0"}},
		{name: "SCARD", minArgs: 1, maxArgs: 1, keyType: storage.TypeSet, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: scard,
			doc: commandDoc{summary: "Get the number of members in a set.", complexity: "O(1)", since: "1.0.0"}},

		// sorted sets
		{name: "ZADD", minArgs: 3, maxArgs: -1, keyType: storage.TypeZSet, flags: []string{"write", "denyoom", "fast"}, firstKey: 1, lastKey: 1, step: 1, handler: zadd,
			doc: commandDoc{summary: "Add one or more members to a sorted set, or update its score if it already exists.", complexity: "O(log(N)) for each item added.", since: "1.2.0"}},
		{name: "ZRANGE", minArgs: 3, maxArgs: 4, keyType: storage.TypeZSet, flags: flagsReadSlow, firstKey: 1, lastKey: 1, step: 1, handler: zrange,
			doc: commandDoc{summary: "Return a range of members in a sorted set, by index.", complexity: "O(log(N)+M) with M the number of elements returned.", since: "1.2.0"}},
		{name: "ZSCORE", minArgs: 2, maxArgs: 2, keyType: storage.TypeZSet, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: zscore,
			doc: commandDoc{summary: "Get the score associated with the given member in a sorted set.", complexity: "O(1)", since: "1.2.0"}},
		{name: "ZREM", minArgs: 2, maxArgs: -1, keyType: storage.TypeZSet, flags: flagsWrite, firstKey: 1, lastKey: 1, step: 1, handler: zrem,
			doc: commandDoc{summary: "Remove one or more members from a sorted set.", complexity: "O(M*log(N)) with M the number of elements to be removed.", since: "1.2.0"}},
		{name: "ZCARD", minArgs: 1, maxArgs: 1, keyType: storage.TypeZSet, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: zcard,
			doc: commandDoc{summary: "Get the number of members in a sorted set.", complexity: "O(1)", since: "1.2.0"}},
		{name: "ZRANK", minArgs: 2, maxArgs: 2, keyType: storage.TypeZSet, flags: flagsRead, firstKey: 1, lastKey: 1, step: 1, handler: zrank,
			doc: commandDoc{summary: "Determine the index of a member in a sorted set.", complexity: "O(N)", since: "2.0.0"}},
		{name: "ZINCRBY", minArgs: 3, maxArgs: 3, keyType: storage.TypeZSet, flags: []string{"write", "denyoom", "fast"}, firstKey: 1, lastKey: 1, step: 1, handler: zincrby,
			doc: commandDoc{summary: "Increment the score of a member in a sorted set.", complexity: "O(log(N))", since: "1.2.0"}},
	}
}
