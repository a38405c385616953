package resp

import "strings"

const (
	TypeSimpleString = '+'
	TypeError        = '-'
	TypeInteger      = ':'
	TypeBulkString   = '$'
	TypeArray        = '*'
)

// Value is a single RESP reply: a simple status, an error, an integer,
// a (possibly nil) bulk string or a (possibly nil) array of values
type Value struct {
	String  []byte // SimpleString, Error, BulkString
	Array   []Value
	Integer int64 // Integer
	Type    byte
	IsNull  bool // For nil BulkString and nil Array
}

// IsError reports whether the value is an error reply
func (v Value) IsError() bool {
	return v.Type == TypeError
}

// Request is one decoded client command. Args[0] is the command name
type Request struct {
	Args [][]byte
}

// Name returns the upper-cased command name or "" for an empty request
func (r Request) Name() string {
	if len(r.Args) == 0 {
		return ""
	}
	return strings.ToUpper(string(r.Args[0]))
}

// Len returns the number of arguments including the command name
func (r Request) Len() int {
	return len(r.Args)
}
