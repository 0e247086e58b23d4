// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package search implements masked byte-pattern search over a memory map,
// with a Boyer-Moore-style "safe skip" advancing the cursor past candidate
// positions that cannot match; the bytes at each new candidate are read
// afresh.
package search

import (
	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/memmap"
	"github.com/memspace/binmap/monitor"
)

// FindBytes searches mm for pattern (optionally masked: mask[i] selects
// which bits of pattern[i] must match) starting at start and moving
// forward or backward. When end is nil, the search ranges over
// loaded_initialized_set and runs until the set is exhausted; when end is
// given, it ranges over all_initialized_set and stops at end inclusive.
// Forward searches use a safe-skip heuristic on mismatch; backward
// searches only consider exact-position matches.
//
// It returns the matching address and true, or the zero Address and false
// if mon cancelled or the search region was exhausted without a match.
func FindBytes(mm *memmap.MemoryMap, start addr.Address, end *addr.Address, pattern, mask []byte, forward bool, mon monitor.TaskMonitor) (addr.Address, bool) {
	if mon == nil {
		mon = monitor.Nop
	}
	if len(pattern) == 0 {
		return addr.Address{}, false
	}

	var cover *addr.Set
	if end != nil {
		cover = mm.AllInitializedAddresses()
	} else {
		cover = mm.LoadedInitializedAddresses()
	}

	cur := start
	if !cover.Contains(cur) {
		var ok bool
		if forward {
			cur, ok = nextCovered(cover, cur)
		} else {
			cur, ok = prevCovered(cover, cur)
		}
		if !ok {
			return addr.Address{}, false
		}
	}

	buf := make([]byte, len(pattern))

	for {
		if mon.Cancelled() {
			return addr.Address{}, false
		}
		if end != nil {
			if forward && cur.Offset > end.Offset {
				return addr.Address{}, false
			}
			if !forward && cur.Offset < end.Offset {
				return addr.Address{}, false
			}
		}

		n, _ := mm.GetBytes(cur, buf)
		if n == len(pattern) && matches(buf, pattern, mask) {
			return cur, true
		}

		if forward {
			skip := len(pattern)
			if n > 0 {
				skip = safeSkip(buf[:n], pattern, mask)
			}

			next, err := cur.Add(uint64(skip))
			if err != nil {
				// Jumping the full skip would overflow the space; fall
				// back to stepping one address at a time.
				next, err = cur.Add(1)
				if err != nil {
					return addr.Address{}, false
				}
			}

			var ok bool
			cur, ok = nextCovered(cover, next)
			if !ok {
				return addr.Address{}, false
			}
		} else {
			prev, err := cur.Sub(1)
			if err != nil {
				return addr.Address{}, false
			}
			var ok bool
			cur, ok = prevCovered(cover, prev)
			if !ok {
				return addr.Address{}, false
			}
		}
	}
}

func matches(buf, pattern, mask []byte) bool {
	for i := range pattern {
		b, p := buf[i], pattern[i]
		if mask != nil {
			b &= mask[i]
			p &= mask[i]
		}
		if b != p {
			return false
		}
	}
	return true
}

// safeSkip finds the smallest j in [1, len(pattern)] such that
// pattern[0:len(pattern)-j] matches buf[j:len(pattern)] under mask, the
// largest distance known not to contain a match at the current candidate.
// If no such j exists, the whole pattern length is safe to skip.
func safeSkip(buf, pattern, mask []byte) int {
	n := len(pattern)
	for j := 1; j <= n; j++ {
		if matchesAt(buf, pattern, mask, j) {
			return j
		}
	}
	return n
}

func matchesAt(buf, pattern, mask []byte, j int) bool {
	n := len(pattern)
	for i := 0; i < n-j; i++ {
		if j+i >= len(buf) {
			return false
		}
		b, p := buf[j+i], pattern[i]
		if mask != nil {
			b &= mask[i]
			p &= mask[i]
		}
		if b != p {
			return false
		}
	}
	return true
}

// nextCovered returns the smallest address in cover at or after from, in
// from's space.
func nextCovered(cover *addr.Set, from addr.Address) (addr.Address, bool) {
	for _, r := range cover.Ranges() {
		if r.Start.Space != from.Space || r.End.Offset < from.Offset {
			continue
		}
		if r.Start.Offset <= from.Offset {
			return from, true
		}
		return r.Start, true
	}
	return addr.Address{}, false
}

// prevCovered returns the largest address in cover at or before from, in
// from's space.
func prevCovered(cover *addr.Set, from addr.Address) (addr.Address, bool) {
	ranges := cover.Ranges()
	for i := len(ranges) - 1; i >= 0; i-- {
		r := ranges[i]
		if r.Start.Space != from.Space || r.Start.Offset > from.Offset {
			continue
		}
		if r.End.Offset >= from.Offset {
			return from, true
		}
		return r.End, true
	}
	return addr.Address{}, false
}
