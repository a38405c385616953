package storage

import (
	"math"

	"github.com/google/btree"
)

// ZMember is a sorted set element with its score
type ZMember struct {
	Member string
	Score  float64
}

// zLess orders by score, then by member bytes
func zLess(a, b ZMember) bool {
	if a.Score != b.Score {
		return a.Score < b.Score
	}
	return a.Member < b.Member
}

const zsetDegree = 16

// SortedSetValue keeps unique members ordered by (score, member).
// scores gives point lookups, index gives ordered walks
type SortedSetValue struct {
	scores map[string]float64
	index  *btree.BTreeG[ZMember]
}

// NewSortedSetValue creates an empty sorted set
func NewSortedSetValue() *SortedSetValue {
	return &SortedSetValue{
		scores: make(map[string]float64),
		index:  btree.NewG[ZMember](zsetDegree, zLess),
	}
}

func (z *SortedSetValue) Type() DataType { return TypeZSet }

func (z *SortedSetValue) Clone() Value {
	scores := make(map[string]float64, len(z.scores))
	for m, s := range z.scores {
		scores[m] = s
	}
	// btree's own Clone writes to the source tree, which callers may hold under a read lock
	index := btree.NewG[ZMember](zsetDegree, zLess)
	z.index.Ascend(func(item ZMember) bool {
		index.ReplaceOrInsert(item)
		return true
	})
	return &SortedSetValue{scores: scores, index: index}
}

func (z *SortedSetValue) empty() bool { return len(z.scores) == 0 }

// Len returns the number of members
func (z *SortedSetValue) Len() int { return len(z.scores) }

// Score returns the score of member
func (z *SortedSetValue) Score(member string) (float64, bool) {
	s, ok := z.scores[member]
	return s, ok
}

// Members returns every member in order
func (z *SortedSetValue) Members() []ZMember {
	out := make([]ZMember, 0, z.index.Len())
	z.index.Ascend(func(item ZMember) bool {
		out = append(out, item)
		return true
	})
	return out
}

// Add inserts member or moves it to score. Reports whether it was new
// and whether the score of an existing member changed
func (z *SortedSetValue) Add(member string, score float64) (added, changed bool) {
	old, ok := z.scores[member]
	if ok {
		if old == score {
			return false, false
		}
		z.index.Delete(ZMember{Member: member, Score: old})
	}
	z.scores[member] = score
	z.index.ReplaceOrInsert(ZMember{Member: member, Score: score})
	return !ok, ok
}

// Remove deletes member and reports whether it was present
func (z *SortedSetValue) Remove(member string) bool {
	score, ok := z.scores[member]
	if !ok {
		return false
	}
	delete(z.scores, member)
	z.index.Delete(ZMember{Member: member, Score: score})
	return true
}

// Rank returns the 0-based position of member in ascending order
func (z *SortedSetValue) Rank(member string) (int, bool) {
	score, ok := z.scores[member]
	if !ok {
		return 0, false
	}
	rank := 0
	z.index.AscendLessThan(ZMember{Member: member, Score: score}, func(ZMember) bool {
		rank++
		return true
	})
	return rank, true
}

// Range returns members with ranks from start to stop inclusive
func (z *SortedSetValue) Range(start, stop int) []ZMember {
	from, to, ok := normalizeRange(start, stop, z.index.Len())
	if !ok {
		return []ZMember{}
	}

	out := make([]ZMember, 0, to-from+1)
	rank := 0
	z.index.Ascend(func(item ZMember) bool {
		if rank >= from {
			out = append(out, item)
		}
		rank++
		return rank <= to
	})
	return out
}

func newZSet() *SortedSetValue { return NewSortedSetValue() }

// ZAdd adds or updates members and returns how many were added,
// plus how many changed score when options.CH is set
func (m *MapStorage) ZAdd(key string, options ZAddOptions, members ...ZMember) (int, error) {
	for _, zm := range members {
		if math.IsNaN(zm.Score) {
			return 0, ErrNotFloat
		}
	}

	var n int
	create := newZSet
	if options.XX {
		// XX never creates the key
		create = nil
	}
	_, err := mutate(m, key, create, func(z *SortedSetValue) error {
		for _, zm := range members {
			_, exists := z.scores[zm.Member]
			if (options.NX && exists) || (options.XX && !exists) {
				continue
			}
			added, changed := z.Add(zm.Member, zm.Score)
			if added || (options.CH && changed) {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ZRem removes members and returns how many existed
func (m *MapStorage) ZRem(key string, members ...string) (int, error) {
	var removed int
	_, err := mutate(m, key, nil, func(z *SortedSetValue) error {
		for _, member := range members {
			if z.Remove(member) {
				removed++
			}
		}
		return nil
	})
	return removed, err
}

// ZScore returns the score of member
func (m *MapStorage) ZScore(key, member string) (float64, bool, error) {
	var (
		score float64
		found bool
	)
	err := read(m, key, func(z *SortedSetValue) {
		score, found = z.Score(member)
	})
	return score, found, err
}

// ZRange returns members by rank between start and stop inclusive
func (m *MapStorage) ZRange(key string, start, stop int) ([]ZMember, error) {
	out := []ZMember{}
	err := read(m, key, func(z *SortedSetValue) {
		out = z.Range(start, stop)
	})
	return out, err
}

func (m *MapStorage) ZCard(key string) (int, error) {
	var n int
	err := read(m, key, func(z *SortedSetValue) {
		n = z.Len()
	})
	return n, err
}

// ZRank returns the 0-based rank of member
func (m *MapStorage) ZRank(key, member string) (int, bool, error) {
	var (
		rank  int
		found bool
	)
	err := read(m, key, func(z *SortedSetValue) {
		rank, found = z.Rank(member)
	})
	return rank, found, err
}

// ZIncrBy adds delta to the score of member, adding it at delta when absent
func (m *MapStorage) ZIncrBy(key string, delta float64, member string) (float64, error) {
	if math.IsNaN(delta) {
		return 0, ErrNotFloat
	}

	var score float64
	_, err := mutate(m, key, newZSet, func(z *SortedSetValue) error {
		cur, _ := z.Score(member)
		score = cur + delta
		if math.IsNaN(score) {
			// +inf plus -inf
			return ErrNotFloat
		}
		z.Add(member, score)
		return nil
	})
	return score, err
}
