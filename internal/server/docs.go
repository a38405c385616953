package server

import (
	"slices"
	"strings"

	"github.com/eternalApril/starlight/internal/resp"
	"github.com/eternalApril/starlight/internal/storage"
)

// commandDoc stores a description for the command
type commandDoc struct {
	summary    string
	complexity string
	group      string // derived from the key type when empty
	since      string
}

func (c *command) group() string {
	if c.doc.group != "" {
		return c.doc.group
	}
	switch c.keyType {
	case storage.TypeString:
		return "string"
	case storage.TypeList:
		return "list"
	case storage.TypeHash:
		return "hash"
	case storage.TypeSet:
		return "set"
	case storage.TypeZSet:
		return "sorted-set"
	}
	return "generic"
}

func makeFlagsArray(flags []string) resp.Value {
	vals := make([]resp.Value, len(flags))
	for i, f := range flags {
		vals[i] = resp.MakeSimpleString(f)
	}
	return resp.MakeArray(vals)
}

func makeInfoCmdArray(c *command) resp.Value {
	return resp.MakeArray([]resp.Value{
		resp.MakeBulkString(strings.ToLower(c.name)),
		resp.MakeInteger(int64(c.arity())),
		makeFlagsArray(c.flags),
		resp.MakeInteger(int64(c.firstKey)),
		resp.MakeInteger(int64(c.lastKey)),
		resp.MakeInteger(int64(c.step)),
	})
}

// sortedCommands returns the registry ordered by name
func (e *Engine) sortedCommands() []*command {
	out := make([]*command, 0, len(e.commands))
	for _, c := range e.commands {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b *command) int {
		return strings.Compare(a.name, b.name)
	})
	return out
}

func (e *Engine) getAllCommands() resp.Value {
	cmdArray := make([]resp.Value, 0, len(e.commands))
	for _, c := range e.sortedCommands() {
		cmdArray = append(cmdArray, makeInfoCmdArray(c))
	}
	return resp.MakeArray(cmdArray)
}

// getCommandsInfo returns details for the named commands, nil for unknown ones
func (e *Engine) getCommandsInfo(args [][]byte) resp.Value {
	out := make([]resp.Value, 0, len(args))
	for _, arg := range args {
		c, ok := e.commands[strings.ToUpper(string(arg))]
		if !ok {
			out = append(out, resp.MakeNilArray())
			continue
		}
		out = append(out, makeInfoCmdArray(c))
	}
	return resp.MakeArray(out)
}

// getCommandsDocs returns documentation for specified commands or all commands
// Format: [Name, [Summary, val, Since, val...], Name, [...]]
func (e *Engine) getCommandsDocs(args [][]byte) resp.Value {
	var targets []*command

	if len(args) == 0 {
		targets = e.sortedCommands()
	} else {
		targets = make([]*command, 0, len(args))
		for _, arg := range args {
			if c, ok := e.commands[strings.ToUpper(string(arg))]; ok {
				targets = append(targets, c)
			}
		}
	}

	result := make([]resp.Value, 0, len(targets)*2)

	for _, c := range targets {
		result = append(result, resp.MakeBulkString(strings.ToLower(c.name)))

		props := []resp.Value{
			resp.MakeBulkString("summary"),
			resp.MakeBulkString(c.doc.summary),
			resp.MakeBulkString("since"),
			resp.MakeBulkString(c.doc.since),
			resp.MakeBulkString("group"),
			resp.MakeBulkString(c.group()),
			resp.MakeBulkString("complexity"),
			resp.MakeBulkString(c.doc.complexity),
		}

		result = append(result, resp.MakeArray(props))
	}

	return resp.MakeArray(result)
}

// commandCmd handles COMMAND, COMMAND COUNT, COMMAND INFO and COMMAND DOCS
func commandCmd(ctx *Context) resp.Value {
	if len(ctx.args) == 0 {
		return ctx.engine.getAllCommands()
	}

	sub, rest := strings.ToUpper(string(ctx.args[0])), ctx.args[1:]
	switch sub {
	case "COUNT":
		return resp.MakeInteger(int64(len(ctx.engine.commands)))
	case "INFO":
		if len(rest) == 0 {
			return ctx.engine.getAllCommands()
		}
		return ctx.engine.getCommandsInfo(rest)
	case "DOCS":
		return ctx.engine.getCommandsDocs(rest)
	}
	return resp.MakeErrorf("unknown subcommand '%s'. Try COMMAND HELP.", ctx.args[0])
}
