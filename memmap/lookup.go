// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmap

import (
	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/block"
)

// BlockContaining resolves addr to the block that contains it, consulting
// the single-slot recency cache first and falling back to a binary search
// over the published snapshot. It implements block.Resolver,
// which is how mapped blocks find their backing target block without the
// block package importing memmap.
func (m *MemoryMap) BlockContaining(a addr.Address) (block.Block, bool) {
	if cached := m.lastBlock.Load(); cached != nil {
		b := *cached
		if b.Contains(a) {
			return b, true
		}
	}

	blocks := m.current().blocks
	idx := lastBlockAtOrBefore(blocks, a)
	if idx < 0 {
		return nil, false
	}
	b := blocks[idx]
	if !b.Contains(a) {
		return nil, false
	}

	m.lastBlock.Store(&b)

	return b, true
}

// lastBlockAtOrBefore returns the index of the last block (in a slice
// sorted ascending by Start, possibly spanning several spaces) whose start
// is at or before a within a's own space, or -1 if none.
func lastBlockAtOrBefore(blocks []block.Block, a addr.Address) int {
	lo, hi := 0, len(blocks)-1
	best := -1
	for lo <= hi {
		mid := (lo + hi) / 2
		s := blocks[mid].Start()
		switch {
		case s.Space != a.Space:
			if s.Less(a) {
				lo = mid + 1
			} else {
				hi = mid - 1
			}
		case s.Equal(a):
			return mid
		case s.Offset < a.Offset:
			best = mid
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return best
}

// GetBlock resolves addr to its containing block, the public entry point
// for BlockContaining.
func (m *MemoryMap) GetBlock(a addr.Address) (block.Block, bool) {
	return m.BlockContaining(a)
}

// GetBlockByName returns the block named name, if any.
func (m *MemoryMap) GetBlockByName(name string) (block.Block, bool) {
	for _, b := range m.current().blocks {
		if b.Name() == name {
			return b, true
		}
	}
	return nil, false
}

// GetBlocks returns every block, in sorted order. The returned slice is a
// snapshot and safe to range over without synchronization.
func (m *MemoryMap) GetBlocks() []block.Block {
	return m.current().blocks
}

// Contains reports whether addr is covered by any block.
func (m *MemoryMap) Contains(a addr.Address) bool {
	return m.current().addrSet.Contains(a)
}

// AddressSet returns addr_set: every address covered by some block.
func (m *MemoryMap) AddressSet() *addr.Set {
	return m.current().addrSet
}

// AllInitializedAddresses returns every address that is initialized or
// mapped to initialized storage. While a live-memory handler is installed,
// every covered address reads as initialized; the underlying coverage
// sets are left untouched.
func (m *MemoryMap) AllInitializedAddresses() *addr.Set {
	if m.IsLiveMemoryActive() {
		return m.current().addrSet
	}
	return m.current().allInitSet
}

// LoadedInitializedAddresses restricts AllInitializedAddresses to blocks
// that are part of the program's loaded image.
func (m *MemoryMap) LoadedInitializedAddresses() *addr.Set {
	if m.IsLiveMemoryActive() {
		return m.current().addrSet
	}
	return m.current().loadedInitSet
}
