package storage

// SetValue is an unordered collection of unique members
type SetValue struct {
	Members map[string]struct{}
}

func (s *SetValue) Type() DataType { return TypeSet }

func (s *SetValue) Clone() Value {
	members := make(map[string]struct{}, len(s.Members))
	for m := range s.Members {
		members[m] = struct{}{}
	}
	return &SetValue{Members: members}
}

func (s *SetValue) empty() bool { return len(s.Members) == 0 }

func newSet() *SetValue {
	return &SetValue{Members: make(map[string]struct{})}
}

// SAdd adds members to a set and returns how many were new
func (m *MapStorage) SAdd(key string, members ...string) (int, error) {
	var added int
	_, err := mutate(m, key, newSet, func(s *SetValue) error {
		for _, member := range members {
			if _, ok := s.Members[member]; !ok {
				s.Members[member] = struct{}{}
				added++
			}
		}
		return nil
	})
	return added, err
}

// SRem removes members from a set and returns how many existed
func (m *MapStorage) SRem(key string, members ...string) (int, error) {
	var removed int
	_, err := mutate(m, key, nil, func(s *SetValue) error {
		for _, member := range members {
			if _, ok := s.Members[member]; ok {
				delete(s.Members, member)
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// SMembers returns every member of a set in no particular order
func (m *MapStorage) SMembers(key string) ([]string, error) {
	out := []string{}
	err := read(m, key, func(s *SetValue) {
		for member := range s.Members {
			out = append(out, member)
		}
	})
	return out, err
}

func (m *MapStorage) SIsMember(key, member string) (bool, error) {
	var found bool
	err := read(m, key, func(s *SetValue) {
		_, found = s.Members[member]
	})
	return found, err
}

func (m *MapStorage) SCard(key string) (int, error) {
	var n int
	err := read(m, key, func(s *SetValue) {
		n = len(s.Members)
	})
	return n, err
}
