package region

import "sort"

// Set is a sorted, duplicate-free list of vertex indices.
type Set []int

// NewSet builds a Set from arbitrary indices.
func NewSet(indices ...int) Set {
	s := make(Set, len(indices))
	copy(s, indices)
	sort.Ints(s)
	return s.dedupe()
}

func (s Set) dedupe() Set {
	if len(s) < 2 {
		return s
	}
	out := s[:1]
	for _, v := range s[1:] {
		if v != out[len(out)-1] {
			out = append(out, v)
		}
	}
	return out
}

// Len returns the number of indices.
func (s Set) Len() int {
	return len(s)
}

// Contains reports whether i is in the set.
func (s Set) Contains(i int) bool {
	n := sort.SearchInts(s, i)
	return n < len(s) && s[n] == i
}

// Union returns the indices in either set.
func (s Set) Union(other Set) Set {
	out := make(Set, 0, len(s)+len(other))
	i, j := 0, 0
	for i < len(s) && j < len(other) {
		switch {
		case s[i] < other[j]:
			out = append(out, s[i])
			i++
		case s[i] > other[j]:
			out = append(out, other[j])
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	out = append(out, s[i:]...)
	return append(out, other[j:]...)
}

// Intersect returns the indices in both sets.
func (s Set) Intersect(other Set) Set {
	var out Set
	i, j := 0, 0
	for i < len(s) && j < len(other) {
		switch {
		case s[i] < other[j]:
			i++
		case s[i] > other[j]:
			j++
		default:
			out = append(out, s[i])
			i++
			j++
		}
	}
	return out
}

// Difference returns the indices in s that are not in other.
func (s Set) Difference(other Set) Set {
	var out Set
	j := 0
	for _, v := range s {
		for j < len(other) && other[j] < v {
			j++
		}
		if j < len(other) && other[j] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Equal reports whether both sets hold the same indices.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}
	for i := range s {
		if s[i] != other[i] {
			return false
		}
	}
	return true
}
