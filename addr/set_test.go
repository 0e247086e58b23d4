// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package addr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memspace/binmap/addr"
)

func TestSetAddCoalescesAdjacentAndOverlapping(t *testing.T) {
	f := addr.NewFactory("ram", 0xffff)
	sp := f.DefaultSpace()

	r1, _ := addr.NewRange(sp.Addr(0x10), sp.Addr(0x1f))
	r2, _ := addr.NewRange(sp.Addr(0x20), sp.Addr(0x2f)) // adjacent to r1
	r3, _ := addr.NewRange(sp.Addr(0x28), sp.Addr(0x3f)) // overlaps r2

	s := addr.NewSet(r1, r2, r3)
	require.Len(t, s.Ranges(), 1)
	require.Equal(t, uint64(0x30), s.NumAddresses())
	require.True(t, s.Contains(sp.Addr(0x15)))
	require.True(t, s.Contains(sp.Addr(0x3f)))
	require.False(t, s.Contains(sp.Addr(0x40)))
}

func TestSetAddKeepsDisjointRangesSeparate(t *testing.T) {
	f := addr.NewFactory("ram", 0xffff)
	sp := f.DefaultSpace()

	r1, _ := addr.NewRange(sp.Addr(0x10), sp.Addr(0x1f))
	r2, _ := addr.NewRange(sp.Addr(0x30), sp.Addr(0x3f))

	s := addr.NewSet(r1, r2)
	require.Len(t, s.Ranges(), 2)
	require.False(t, s.Contains(sp.Addr(0x25)))
}

func TestSetIntersectAndRemove(t *testing.T) {
	f := addr.NewFactory("ram", 0xffff)
	sp := f.DefaultSpace()

	r1, _ := addr.NewRange(sp.Addr(0x0), sp.Addr(0xff))
	a := addr.NewSet(r1)

	r2, _ := addr.NewRange(sp.Addr(0x80), sp.Addr(0x17f))
	b := addr.NewSet(r2)

	isect := a.Intersect(b)
	require.Len(t, isect.Ranges(), 1)
	require.Equal(t, uint64(0x80), isect.Ranges()[0].Start.Offset)
	require.Equal(t, uint64(0xff), isect.Ranges()[0].End.Offset)

	removed := a.Remove(r2)
	require.True(t, removed.Contains(sp.Addr(0x7f)))
	require.False(t, removed.Contains(sp.Addr(0x80)))
}

func TestSetEqual(t *testing.T) {
	f := addr.NewFactory("ram", 0xffff)
	sp := f.DefaultSpace()

	r1, _ := addr.NewRange(sp.Addr(0x10), sp.Addr(0x1f))
	r2, _ := addr.NewRange(sp.Addr(0x30), sp.Addr(0x3f))

	a := addr.NewSet(r1, r2)
	b := addr.NewSet(r2, r1)
	require.True(t, a.Equal(b))

	c := a.Add(r1)
	require.True(t, a.Equal(c))
}

func TestSetUnion(t *testing.T) {
	f := addr.NewFactory("ram", 0xffff)
	sp := f.DefaultSpace()

	r1, _ := addr.NewRange(sp.Addr(0x0), sp.Addr(0xf))
	r2, _ := addr.NewRange(sp.Addr(0x20), sp.Addr(0x2f))

	a := addr.NewSet(r1)
	b := addr.NewSet(r2)
	u := a.Union(b)

	require.Equal(t, uint64(32), u.NumAddresses())
	require.True(t, u.Contains(sp.Addr(0x5)))
	require.True(t, u.Contains(sp.Addr(0x25)))
}
