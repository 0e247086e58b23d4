// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package search_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/memmap"
	"github.com/memspace/binmap/search"
	"github.com/memspace/binmap/store"
)

func newSearchMap(t *testing.T, data []byte) (*memmap.MemoryMap, *addr.Space) {
	t.Helper()
	f := addr.NewFactory("ram", 0xffffffff)
	sp := f.DefaultSpace()
	s := store.NewMemStore()
	mm, err := memmap.New(f, s)
	require.NoError(t, err)

	_, err = mm.CreateInitializedBlock(memmap.BlockSpec{Name: "d", Space: sp.Name, Start: 0, Length: uint64(len(data))}, bytes.NewReader(data), 0, nil)
	require.NoError(t, err)

	return mm, sp
}

func TestFindBytesForwardExactMatch(t *testing.T) {
	mm, sp := newSearchMap(t, []byte{0, 1, 2, 0xde, 0xad, 0xbe, 0xef, 9})

	hit, ok := search.FindBytes(mm, sp.Addr(0), nil, []byte{0xde, 0xad, 0xbe, 0xef}, nil, true, nil)
	require.True(t, ok)
	require.Equal(t, sp.Addr(3), hit)
}

func TestFindBytesForwardNoMatch(t *testing.T) {
	mm, sp := newSearchMap(t, []byte{0, 1, 2, 3, 4})

	_, ok := search.FindBytes(mm, sp.Addr(0), nil, []byte{0xff, 0xff}, nil, true, nil)
	require.False(t, ok)
}

func TestFindBytesBackward(t *testing.T) {
	mm, sp := newSearchMap(t, []byte{1, 2, 3, 1, 2, 3})

	hit, ok := search.FindBytes(mm, sp.Addr(5), nil, []byte{1, 2, 3}, nil, false, nil)
	require.True(t, ok)
	require.Equal(t, sp.Addr(3), hit)
}

func TestFindBytesMaskedMatch(t *testing.T) {
	mm, sp := newSearchMap(t, []byte{0x12, 0xAB, 0x34, 0xCD})

	pattern := []byte{0x12, 0x00, 0x34, 0x00}
	mask := []byte{0xff, 0x00, 0xff, 0x00}

	hit, ok := search.FindBytes(mm, sp.Addr(0), nil, pattern, mask, true, nil)
	require.True(t, ok)
	require.Equal(t, sp.Addr(0), hit)
}

func TestFindBytesRespectsEndBound(t *testing.T) {
	mm, sp := newSearchMap(t, []byte{0, 0, 0, 0xaa, 0, 0})

	end := sp.Addr(2)
	_, ok := search.FindBytes(mm, sp.Addr(0), &end, []byte{0xaa}, nil, true, nil)
	require.False(t, ok)

	end = sp.Addr(5)
	hit, ok := search.FindBytes(mm, sp.Addr(0), &end, []byte{0xaa}, nil, true, nil)
	require.True(t, ok)
	require.Equal(t, sp.Addr(3), hit)
}

func TestFindBytesStopsOnCancellation(t *testing.T) {
	mm, sp := newSearchMap(t, []byte{0, 0, 0, 0, 0xaa})

	var f cancelAfterFirst
	_, ok := search.FindBytes(mm, sp.Addr(0), nil, []byte{0xaa}, nil, true, &f)
	require.False(t, ok)
}

type cancelAfterFirst struct{ calls int }

func (c *cancelAfterFirst) Cancelled() bool {
	c.calls++
	return c.calls > 1
}
