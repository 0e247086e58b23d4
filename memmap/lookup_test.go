// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmap_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memspace/binmap/memmap"
)

func TestGetBlockByNameAndAll(t *testing.T) {
	mm, f := newTestMap(t)
	sp := f.DefaultSpace()

	_, err := mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "a", Space: sp.Name, Start: 0, Length: 4})
	require.NoError(t, err)
	_, err = mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "b", Space: sp.Name, Start: 0x100, Length: 4})
	require.NoError(t, err)

	b, ok := mm.GetBlockByName("b")
	require.True(t, ok)
	require.Equal(t, "b", b.Name())

	_, ok = mm.GetBlockByName("missing")
	require.False(t, ok)

	require.Len(t, mm.GetBlocks(), 2)
}

func TestBlockContainingUsesRecencyCacheAndBinarySearchAcrossSpaces(t *testing.T) {
	mm, f := newTestMap(t)
	sp := f.DefaultSpace()
	other, err := f.AddMemorySpace("bus2", 0, 0xffff)
	require.NoError(t, err)

	_, err = mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "a", Space: sp.Name, Start: 0, Length: 16})
	require.NoError(t, err)
	_, err = mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "b", Space: sp.Name, Start: 0x100, Length: 16})
	require.NoError(t, err)
	_, err = mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "c", Space: other.Name, Start: 0, Length: 16})
	require.NoError(t, err)

	// Warm the recency cache with a hit on "a" before asking for "c" in a
	// different space, exercising both the cache path and the fallback
	// cross-space binary search.
	first, ok := mm.BlockContaining(sp.Addr(4))
	require.True(t, ok)
	require.Equal(t, "a", first.Name())

	second, ok := mm.BlockContaining(other.Addr(4))
	require.True(t, ok)
	require.Equal(t, "c", second.Name())

	_, ok = mm.BlockContaining(sp.Addr(0x50))
	require.False(t, ok)
}
