package resp

import (
	"fmt"
	"strings"
)

// MakeSimpleString construct SimpleString Value from string
func MakeSimpleString(s string) Value {
	return Value{
		Type:   TypeSimpleString,
		String: []byte(s),
	}
}

// MakeOK construct the +OK status reply
func MakeOK() Value {
	return MakeSimpleString("OK")
}

// MakeError construct Error Value from string
func MakeError(s string) Value {
	return Value{
		Type:   TypeError,
		String: []byte(s),
	}
}

// MakeErrorf construct an ERR-prefixed Error Value from a format string
func MakeErrorf(format string, args ...any) Value {
	return MakeError("ERR " + fmt.Sprintf(format, args...))
}

// MakeWrongType construct the WRONGTYPE Error Value
func MakeWrongType() Value {
	return MakeError("WRONGTYPE Operation against a key holding the wrong kind of value")
}

// MakeErrorWrongNumberOfArguments construct Error Value that command had wrong number of arguments for command
func MakeErrorWrongNumberOfArguments(cmd string) Value {
	return MakeErrorf("wrong number of arguments for '%s' command", strings.ToLower(cmd))
}

// MakeBulkString construct BulkString Value from string
func MakeBulkString(s string) Value {
	return Value{
		Type:   TypeBulkString,
		String: []byte(s),
	}
}

// MakeBulkBytes construct BulkString Value from bytes without copying them
func MakeBulkBytes(b []byte) Value {
	if b == nil {
		b = []byte{}
	}
	return Value{
		Type:   TypeBulkString,
		String: b,
	}
}

// MakeNilBulkString construct nil BulkSting Value
func MakeNilBulkString() Value {
	return Value{
		Type:   TypeBulkString,
		IsNull: true,
	}
}

// MakeInteger construct Integer Value from int64
func MakeInteger(n int64) Value {
	return Value{
		Type:    TypeInteger,
		Integer: n,
	}
}

// MakeArray creates a standard RESP array containing the provided elements
func MakeArray(values []Value) Value {
	if values == nil {
		values = []Value{}
	}
	return Value{
		Type:  TypeArray,
		Array: values,
	}
}

// MakeNilArray construct nil Array Value
func MakeNilArray() Value {
	return Value{
		Type:   TypeArray,
		IsNull: true,
	}
}

// MakeBulkArray creates an array of bulk strings. nil elements become nil bulk strings
func MakeBulkArray(items [][]byte) Value {
	vals := make([]Value, len(items))
	for i, item := range items {
		if item == nil {
			vals[i] = MakeNilBulkString()
			continue
		}
		vals[i] = MakeBulkBytes(item)
	}
	return MakeArray(vals)
}
