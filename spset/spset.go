// Package spset implements fixed-width species sets, the clade identity used
// throughout the species-tree engine.
//
// A Set covering at most 64 species lives in a single machine word and every
// operation is O(1). Wider sets fall back to a slice of words.
package spset

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

const wordBits = 64

// Set is a set of species indices in [0, n) for a fixed width n.
// The zero value is an empty set of width zero.
type Set struct {
	n    int
	lo   uint64   // used when n <= 64
	wide []uint64 // used when n > 64
}

// New returns an empty set able to hold species 0..n-1.
func New(n int) Set {
	if n < 0 {
		panic(fmt.Sprintf("spset: negative width %d", n))
	}
	s := Set{n: n}
	if n > wordBits {
		s.wide = make([]uint64, (n+wordBits-1)/wordBits)
	}
	return s
}

// Singleton returns the set {i} of width n.
func Singleton(n, i int) Set {
	s := New(n)
	s.Add(i)
	return s
}

func (s Set) check(i int) {
	if i < 0 || i >= s.n {
		panic(fmt.Sprintf("spset: species %d out of range [0,%d)", i, s.n))
	}
}

func (s Set) same(o Set) {
	if s.n != o.n {
		panic(fmt.Sprintf("spset: width mismatch %d != %d", s.n, o.n))
	}
}

// Add inserts species i.
func (s *Set) Add(i int) {
	s.check(i)
	if s.wide == nil {
		s.lo |= 1 << uint(i)
		return
	}
	s.wide[i/wordBits] |= 1 << uint(i%wordBits)
}

// Has reports whether species i is in the set.
func (s Set) Has(i int) bool {
	s.check(i)
	if s.wide == nil {
		return s.lo&(1<<uint(i)) != 0
	}
	return s.wide[i/wordBits]&(1<<uint(i%wordBits)) != 0
}

// Count is the cardinality of the set.
func (s Set) Count() int {
	if s.wide == nil {
		return bits.OnesCount64(s.lo)
	}
	c := 0
	for _, w := range s.wide {
		c += bits.OnesCount64(w)
	}
	return c
}

// Union returns s ∪ o as a new set.
func (s Set) Union(o Set) Set {
	r := s.Clone()
	r.unionWith(o)
	return r
}

func (s *Set) unionWith(o Set) {
	s.same(o)
	if s.wide == nil {
		s.lo |= o.lo
		return
	}
	for i, w := range o.wide {
		s.wide[i] |= w
	}
}

// IntersectCount returns |s ∩ o|.
func (s Set) IntersectCount(o Set) int {
	s.same(o)
	if s.wide == nil {
		return bits.OnesCount64(s.lo & o.lo)
	}
	c := 0
	for i, w := range s.wide {
		c += bits.OnesCount64(w & o.wide[i])
	}
	return c
}

// Intersects reports whether s and o share a member.
func (s Set) Intersects(o Set) bool {
	s.same(o)
	if s.wide == nil {
		return s.lo&o.lo != 0
	}
	for i, w := range s.wide {
		if w&o.wide[i] != 0 {
			return true
		}
	}
	return false
}

// Contains reports whether o ⊆ s.
func (s Set) Contains(o Set) bool {
	s.same(o)
	if s.wide == nil {
		return o.lo&^s.lo == 0
	}
	for i, w := range o.wide {
		if w&^s.wide[i] != 0 {
			return false
		}
	}
	return true
}

// Equal reports whether the two sets have the same width and members.
func (s Set) Equal(o Set) bool {
	if s.n != o.n {
		return false
	}
	if s.wide == nil {
		return s.lo == o.lo
	}
	for i, w := range s.wide {
		if w != o.wide[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that shares no storage with s.
func (s Set) Clone() Set {
	if s.wide == nil {
		return s
	}
	r := Set{n: s.n, wide: make([]uint64, len(s.wide))}
	copy(r.wide, s.wide)
	return r
}

// Next returns the smallest member >= i, or -1 when there is none.
func (s Set) Next(i int) int {
	if i < 0 {
		i = 0
	}
	if s.wide == nil {
		if i >= s.n {
			return -1
		}
		w := s.lo >> uint(i)
		if w == 0 {
			return -1
		}
		return i + bits.TrailingZeros64(w)
	}
	for k := i / wordBits; k < len(s.wide); k++ {
		w := s.wide[k]
		if k == i/wordBits {
			w >>= uint(i % wordBits)
			if w != 0 {
				return i + bits.TrailingZeros64(w)
			}
			continue
		}
		if w != 0 {
			return k*wordBits + bits.TrailingZeros64(w)
		}
	}
	return -1
}

// Members lists the species in ascending order.
func (s Set) Members() []int {
	out := make([]int, 0, s.Count())
	for i := s.Next(0); i >= 0; i = s.Next(i + 1) {
		out = append(out, i)
	}
	return out
}

func (s Set) String() string {
	return "{" + s.Format(strconv.Itoa) + "}"
}

// Format will join the members' names with commas.
func (s Set) Format(name func(int) string) string {
	var b strings.Builder
	for k, i := range s.Members() {
		if k > 0 {
			b.WriteByte(',')
		}
		b.WriteString(name(i))
	}
	return b.String()
}
