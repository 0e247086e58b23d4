// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package addr

import "sort"

// Set is a sorted, non-overlapping, non-adjacent collection of Ranges,
// possibly spanning more than one address space. It is the representation
// behind the memory map's coverage sets (covered, initialized, loaded and
// initialized), and is immutable from the caller's point of view: every
// mutating method returns a new Set, leaving the receiver untouched, which
// is what lets memmap publish coverage sets without readers needing to
// hold a lock.
type Set struct {
	ranges []Range
}

// NewSet builds a Set out of the given ranges, normalizing overlaps and
// adjacency the same way Add does.
func NewSet(ranges ...Range) *Set {
	s := &Set{}
	for _, r := range ranges {
		s = s.Add(r)
	}
	return s
}

// Ranges returns the sorted, normalized ranges making up s. The slice must
// not be mutated by the caller.
func (s *Set) Ranges() []Range {
	if s == nil {
		return nil
	}
	return s.ranges
}

// IsEmpty reports whether s covers no addresses.
func (s *Set) IsEmpty() bool {
	return s == nil || len(s.ranges) == 0
}

// NumAddresses returns the total number of addresses covered by s.
func (s *Set) NumAddresses() uint64 {
	if s == nil {
		return 0
	}
	var n uint64
	for _, r := range s.ranges {
		n += r.Len()
	}
	return n
}

// Contains reports whether a lies within s.
func (s *Set) Contains(a Address) bool {
	if s == nil {
		return false
	}
	for i := len(s.ranges) - 1; i >= 0; i-- {
		r := s.ranges[i]
		if r.Start.Space != a.Space {
			continue
		}
		if r.Contains(a) {
			return true
		}
		if r.Start.Offset <= a.Offset {
			return false
		}
	}
	return false
}

// RangeContaining returns the range of s that contains a, if any.
func (s *Set) RangeContaining(a Address) (Range, bool) {
	if s == nil {
		return Range{}, false
	}
	for _, r := range s.ranges {
		if r.Contains(a) {
			return r, true
		}
	}
	return Range{}, false
}

// Add returns a new Set equal to s with r merged in, coalescing any ranges
// that r overlaps or is adjacent to.
func (s *Set) Add(r Range) *Set {
	out := &Set{ranges: make([]Range, 0, len(s.Ranges())+1)}

	inserted := false
	for _, existing := range s.Ranges() {
		if existing.Start.Space != r.Start.Space || !adjacentOrOverlapping(existing, r) {
			if !inserted && existing.Start.Space == r.Start.Space && existing.Start.Offset > r.Start.Offset {
				out.ranges = append(out.ranges, r)
				inserted = true
			}
			out.ranges = append(out.ranges, existing)
			continue
		}
		r = union1(existing, r)
	}
	if !inserted {
		out.ranges = append(out.ranges, r)
	}

	sort.Slice(out.ranges, func(i, j int) bool { return out.ranges[i].Start.Less(out.ranges[j].Start) })
	out.ranges = coalesce(out.ranges)

	return out
}

// adjacentOrOverlapping reports whether a and b (same space) touch or
// overlap and should be merged into a single range.
func adjacentOrOverlapping(a, b Range) bool {
	if a.Intersects(b) {
		return true
	}
	return a.End.Offset+1 == b.Start.Offset || b.End.Offset+1 == a.Start.Offset
}

func union1(a, b Range) Range {
	start := a.Start
	if b.Start.Offset < start.Offset {
		start = b.Start
	}
	end := a.End
	if b.End.Offset > end.Offset {
		end = b.End
	}
	return Range{Start: start, End: end}
}

// coalesce merges adjacent/overlapping ranges in a slice that is already
// sorted by Start.
func coalesce(in []Range) []Range {
	if len(in) == 0 {
		return in
	}
	out := make([]Range, 0, len(in))
	cur := in[0]
	for _, r := range in[1:] {
		if cur.Start.Space == r.Start.Space && adjacentOrOverlapping(cur, r) {
			cur = union1(cur, r)
			continue
		}
		out = append(out, cur)
		cur = r
	}
	out = append(out, cur)
	return out
}

// Union returns a new Set covering every address in either s or o.
func (s *Set) Union(o *Set) *Set {
	out := s
	for _, r := range o.Ranges() {
		out = out.Add(r)
	}
	return out
}

// Remove returns a new Set equal to s with r's addresses subtracted out.
func (s *Set) Remove(r Range) *Set {
	out := &Set{ranges: make([]Range, 0, len(s.Ranges()))}

	for _, existing := range s.Ranges() {
		if existing.Start.Space != r.Start.Space || !existing.Intersects(r) {
			out.ranges = append(out.ranges, existing)
			continue
		}
		if existing.Start.Offset < r.Start.Offset {
			left, _ := NewRange(existing.Start, Address{Space: existing.Start.Space, Offset: r.Start.Offset - 1})
			out.ranges = append(out.ranges, left)
		}
		if existing.End.Offset > r.End.Offset {
			right, _ := NewRange(Address{Space: existing.Start.Space, Offset: r.End.Offset + 1}, existing.End)
			out.ranges = append(out.ranges, right)
		}
	}

	return out
}

// Intersect returns a new Set covering only the addresses present in both
// s and o. This is the primitive behind the mapped-block coverage
// projection.
func (s *Set) Intersect(o *Set) *Set {
	out := &Set{}

	for _, a := range s.Ranges() {
		for _, b := range o.Ranges() {
			if a.Start.Space != b.Start.Space || !a.Intersects(b) {
				continue
			}
			start := a.Start
			if b.Start.Offset > start.Offset {
				start = b.Start
			}
			end := a.End
			if b.End.Offset < end.Offset {
				end = b.End
			}
			r, err := NewRange(start, end)
			if err == nil {
				out = out.Add(r)
			}
		}
	}

	return out
}

// Equal reports whether s and o cover exactly the same addresses. Used by
// the idempotent-rebuild property test.
func (s *Set) Equal(o *Set) bool {
	a, b := s.Ranges(), o.Ranges()
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Start.Equal(b[i].Start) || !a[i].End.Equal(b[i].End) {
			return false
		}
	}
	return true
}
