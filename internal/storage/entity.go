package storage

// DataType identifies which data structure a key holds
type DataType byte

const (
	TypeNone DataType = iota
	TypeString
	TypeList
	TypeSet
	TypeHash
	TypeZSet
)

// String returns the name reported by the TYPE command
func (t DataType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeSet:
		return "set"
	case TypeHash:
		return "hash"
	case TypeZSet:
		return "zset"
	default:
		return "none"
	}
}

// Value is the closed set of data structures a key can hold:
// *StringValue, *ListValue, *HashValue, *SetValue and *SortedSetValue.
// Byte slices stored inside a Value are never modified in place, so they
// may be handed to readers without copying
type Value interface {
	Type() DataType
	// Clone returns a deep copy of the container
	Clone() Value
	// empty reports whether a collection has no elements left
	empty() bool
}

// Entry is one key of the keyspace as seen by Snapshot
type Entry struct {
	Key      string
	Value    Value
	ExpireAt int64 // Unix nanoseconds. 0 means no TTL
}

// HasExpire reports whether the entry carries a TTL
func (e Entry) HasExpire() bool {
	return e.ExpireAt != 0
}

// StringValue holds an opaque byte string
type StringValue struct {
	Data []byte
}

func (s *StringValue) Type() DataType { return TypeString }

func (s *StringValue) Clone() Value {
	return &StringValue{Data: append([]byte(nil), s.Data...)}
}

// an empty string is still a value
func (s *StringValue) empty() bool { return false }
