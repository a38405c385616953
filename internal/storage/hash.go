package storage

import "strconv"

// HashValue maps fields to byte strings
type HashValue struct {
	Fields map[string][]byte
}

func (h *HashValue) Type() DataType { return TypeHash }

func (h *HashValue) Clone() Value {
	fields := make(map[string][]byte, len(h.Fields))
	for f, v := range h.Fields {
		fields[f] = append([]byte(nil), v...)
	}
	return &HashValue{Fields: fields}
}

func (h *HashValue) empty() bool { return len(h.Fields) == 0 }

func newHash() *HashValue {
	return &HashValue{Fields: make(map[string][]byte)}
}

// HSet sets the specified fields to their respective values in the hash stored at key.
// Returns the number of fields that were added
func (m *MapStorage) HSet(key string, fields map[string][]byte) (int, error) {
	var added int
	_, err := mutate(m, key, newHash, func(h *HashValue) error {
		for f, v := range fields {
			if _, ok := h.Fields[f]; !ok {
				added++
			}
			h.Fields[f] = v
		}
		return nil
	})
	return added, err
}

// HGet returns the value associated with field in the hash stored at key
func (m *MapStorage) HGet(key, field string) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := read(m, key, func(h *HashValue) {
		out, found = h.Fields[field]
	})
	return out, found, err
}

// HMGet returns the values of fields, nil where absent
func (m *MapStorage) HMGet(key string, fields ...string) ([][]byte, error) {
	out := make([][]byte, len(fields))
	err := read(m, key, func(h *HashValue) {
		for i, f := range fields {
			out[i] = h.Fields[f]
		}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HDel removes the specified fields from the hash stored at key.
// Returns the number of fields that were removed
func (m *MapStorage) HDel(key string, fields ...string) (int, error) {
	var removed int
	_, err := mutate(m, key, nil, func(h *HashValue) error {
		for _, f := range fields {
			if _, ok := h.Fields[f]; ok {
				delete(h.Fields, f)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// HGetAll returns all fields and values of the hash stored at key
func (m *MapStorage) HGetAll(key string) (map[string][]byte, error) {
	out := map[string][]byte{}
	err := read(m, key, func(h *HashValue) {
		for f, v := range h.Fields {
			out[f] = v
		}
	})
	return out, err
}

// HExists returns if field is an existing field in the hash stored at key
func (m *MapStorage) HExists(key, field string) (bool, error) {
	var found bool
	err := read(m, key, func(h *HashValue) {
		_, found = h.Fields[field]
	})
	return found, err
}

// HLen returns the number of fields contained in the hash stored at key
func (m *MapStorage) HLen(key string) (int, error) {
	var n int
	err := read(m, key, func(h *HashValue) {
		n = len(h.Fields)
	})
	return n, err
}

// HIncrBy adds delta to the integer stored in field, creating both as needed
func (m *MapStorage) HIncrBy(key, field string, delta int64) (int64, error) {
	var n int64
	_, err := mutate(m, key, newHash, func(h *HashValue) error {
		var cur int64
		if raw, ok := h.Fields[field]; ok {
			var err error
			if cur, err = ParseInt(raw); err != nil {
				return err
			}
		}
		var err error
		if n, err = addInt64(cur, delta); err != nil {
			return err
		}
		h.Fields[field] = strconv.AppendInt(nil, n, 10)
		return nil
	})
	return n, err
}
