// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmap

import (
	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/block"
	"github.com/memspace/binmap/store"
)

// mappedProjection computes the contribution every bit- or byte-mapped
// block makes to a coverage set, given the coverage set computed over the
// blocks that actually own bytes. For each mapped block M
// with target range T = [overlay_min, overlay_min+span-1], it intersects
// T with other and re-expresses the result in M's own address space:
// byte-for-byte for ByteMapped, and bit-for-byte (each covered target byte
// becomes 8 covered bit-addresses) for BitMapped.
func mappedProjection(mapped []block.Mapped, other *addr.Set) *addr.Set {
	out := addr.NewSet()

	for _, m := range mapped {
		span := m.TargetSpan()
		if span == 0 {
			continue
		}
		targetEnd, err := m.Target().Add(span - 1)
		if err != nil {
			continue
		}
		tRange, err := addr.NewRange(m.Target(), targetEnd)
		if err != nil {
			continue
		}

		isect := other.Intersect(addr.NewSet(tRange))
		for _, r := range isect.Ranges() {
			off := r.Start.Offset - m.Target().Offset
			length := r.Len()

			var startOff, endOff uint64
			if m.Kind() == store.KindBitMapped {
				startOff = off * 8
				endOff = startOff + length*8 - 1
			} else {
				startOff = off
				endOff = startOff + length - 1
			}

			s, err1 := m.Start().Add(startOff)
			e, err2 := m.Start().Add(endOff)
			if err1 != nil || err2 != nil {
				continue
			}
			rr, err3 := addr.NewRange(s, e)
			if err3 != nil {
				continue
			}
			out = out.Add(rr)
		}
	}

	return out
}
