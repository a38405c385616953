package resp

import (
	"bytes"
)

// SerializeCommand uses a standard Encoder to convert the command to bytes
func SerializeCommand(cmd string, args []Value) ([]byte, error) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)

	elements := make([]Value, 1+len(args))

	elements[0] = MakeBulkString(cmd)

	copy(elements[1:], args)

	root := MakeArray(elements)

	if err := enc.Write(root); err != nil {
		return nil, err
	}

	if err := enc.Flush(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// EncodeRequest encodes raw arguments in the multi-bulk request form
func EncodeRequest(args ...[]byte) []byte {
	vals := make([]Value, len(args))
	for i, a := range args {
		vals[i] = MakeBulkBytes(a)
	}

	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	enc.Write(MakeArray(vals)) //nolint:errcheck
	enc.Flush()                //nolint:errcheck

	return buf.Bytes()
}
