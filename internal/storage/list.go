package storage

// ListValue is an ordered sequence of byte strings, head first
type ListValue struct {
	Items [][]byte
}

func (l *ListValue) Type() DataType { return TypeList }

func (l *ListValue) Clone() Value {
	items := make([][]byte, len(l.Items))
	for i, it := range l.Items {
		items[i] = append([]byte(nil), it...)
	}
	return &ListValue{Items: items}
}

func (l *ListValue) empty() bool { return len(l.Items) == 0 }

func (l *ListValue) push(left bool, values [][]byte) {
	if !left {
		l.Items = append(l.Items, values...)
		return
	}

	// LPUSH a b c leaves c at the head
	items := make([][]byte, len(values), len(values)+len(l.Items))
	for i, v := range values {
		items[len(values)-1-i] = v
	}
	l.Items = append(items, l.Items...)
}

func (l *ListValue) pop(left bool, count int) [][]byte {
	count = min(count, len(l.Items))
	out := make([][]byte, count)
	if left {
		copy(out, l.Items[:count])
		clear(l.Items[:count])
		l.Items = l.Items[count:]
		return out
	}

	n := len(l.Items)
	for i := 0; i < count; i++ {
		out[i] = l.Items[n-1-i]
	}
	clear(l.Items[n-count:])
	l.Items = l.Items[:n-count]
	return out
}

func newList() *ListValue { return &ListValue{} }

// Push adds values at the head (left) or tail of a list and returns its length
func (m *MapStorage) Push(key string, left bool, values ...[]byte) (int, error) {
	var n int
	_, err := mutate(m, key, newList, func(l *ListValue) error {
		l.push(left, values)
		n = len(l.Items)
		return nil
	})
	return n, err
}

// Pop removes up to count elements from one end of a list. A missing key gives nil
func (m *MapStorage) Pop(key string, left bool, count int) ([][]byte, error) {
	var out [][]byte
	_, err := mutate(m, key, nil, func(l *ListValue) error {
		out = l.pop(left, count)
		return nil
	})
	return out, err
}

// LLen returns the length of a list
func (m *MapStorage) LLen(key string) (int, error) {
	var n int
	err := read(m, key, func(l *ListValue) {
		n = len(l.Items)
	})
	return n, err
}

// LRange returns the elements between start and stop inclusive
func (m *MapStorage) LRange(key string, start, stop int) ([][]byte, error) {
	out := [][]byte{}
	err := read(m, key, func(l *ListValue) {
		from, to, ok := normalizeRange(start, stop, len(l.Items))
		if !ok {
			return
		}
		out = append(out, l.Items[from:to+1]...)
	})
	return out, err
}

// LIndex returns the element at index, counting from the tail when negative
func (m *MapStorage) LIndex(key string, index int) ([]byte, bool, error) {
	var (
		out   []byte
		found bool
	)
	err := read(m, key, func(l *ListValue) {
		if index < 0 {
			index += len(l.Items)
		}
		if index < 0 || index >= len(l.Items) {
			return
		}
		out, found = l.Items[index], true
	})
	return out, found, err
}
