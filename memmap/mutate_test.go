// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmap_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/livemem"
	"github.com/memspace/binmap/memmap"
	"github.com/memspace/binmap/store"
)

func newTestMap(t *testing.T) (*memmap.MemoryMap, *addr.Factory) {
	t.Helper()
	f := addr.NewFactory("ram", 0xffffffff)
	s := store.NewMemStore()
	mm, err := memmap.New(f, s)
	require.NoError(t, err)
	return mm, f
}

func TestCreateInitializedBlockThenLookup(t *testing.T) {
	mm, f := newTestMap(t)
	sp := f.DefaultSpace()

	b, err := mm.CreateInitializedBlock(memmap.BlockSpec{
		Name: ".text", Space: sp.Name, Start: 0x1000, Length: 16, Perms: store.PermRead | store.PermExecute,
	}, bytes.NewReader(bytes.Repeat([]byte{0xAA}, 16)), 0, nil)
	require.NoError(t, err)
	require.Equal(t, ".text", b.Name())

	got, ok := mm.GetBlock(sp.Addr(0x1004))
	require.True(t, ok)
	require.Equal(t, b.ID(), got.ID())

	require.True(t, mm.Contains(sp.Addr(0x1000)))
	require.False(t, mm.Contains(sp.Addr(0x2000)))
}

func TestCreateInitializedBlockDefaultsToFill(t *testing.T) {
	mm, f := newTestMap(t)
	sp := f.DefaultSpace()

	_, err := mm.CreateInitializedBlock(memmap.BlockSpec{
		Name: ".bss", Space: sp.Name, Start: 0, Length: 8,
	}, nil, 0x7f, nil)
	require.NoError(t, err)

	buf := make([]byte, 8)
	n, err := mm.GetBytes(sp.Addr(0), buf)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.Equal(t, bytes.Repeat([]byte{0x7f}, 8), buf)
}

func TestCreateRejectsOverlappingRange(t *testing.T) {
	mm, f := newTestMap(t)
	sp := f.DefaultSpace()

	_, err := mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "a", Space: sp.Name, Start: 0x1000, Length: 16})
	require.NoError(t, err)

	_, err = mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "b", Space: sp.Name, Start: 0x1008, Length: 16})
	require.ErrorIs(t, err, memmap.ErrRangeConflict)
}

func TestCreateOverlayBlockAndMappedChild(t *testing.T) {
	mm, f := newTestMap(t)
	sp := f.DefaultSpace()

	_, err := mm.CreateInitializedBlock(memmap.BlockSpec{
		Name: "bank0", Space: sp.Name, Start: 0x8000, Length: 0x100,
		Overlay: true, OverlaySpaceName: "bank0",
	}, bytes.NewReader(bytes.Repeat([]byte{0x01}, 0x100)), 0, nil)
	require.NoError(t, err)

	ov, err := f.GetSpace("bank0")
	require.NoError(t, err)
	require.True(t, ov.IsOverlay())

	got, ok := mm.GetBlock(ov.Addr(4))
	require.True(t, ok)
	require.Equal(t, store.KindOverlay, got.Kind())
}

func TestSplitAndJoinRoundTrip(t *testing.T) {
	mm, f := newTestMap(t)
	sp := f.DefaultSpace()

	fill := make([]byte, 16)
	for i := range fill {
		fill[i] = byte(i)
	}
	b, err := mm.CreateInitializedBlock(memmap.BlockSpec{Name: "x", Space: sp.Name, Start: 0, Length: 16}, bytes.NewReader(fill), 0, nil)
	require.NoError(t, err)

	left, right, err := mm.Split(b.ID(), sp.Addr(8))
	require.NoError(t, err)
	require.Equal(t, uint64(8), left.Length())
	require.Equal(t, uint64(8), right.Length())

	rbuf := make([]byte, 8)
	n, err := mm.GetBytes(sp.Addr(8), rbuf)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.Equal(t, fill[8:], rbuf)

	joined, err := mm.Join(left.ID(), right.ID())
	require.NoError(t, err)
	require.Equal(t, uint64(16), joined.Length())

	buf := make([]byte, 16)
	n, err = mm.GetBytes(sp.Addr(0), buf)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	require.Equal(t, fill, buf)
}

func TestJoinAcceptsEitherOrder(t *testing.T) {
	mm, f := newTestMap(t)
	sp := f.DefaultSpace()

	b, err := mm.CreateInitializedBlock(memmap.BlockSpec{Name: "x", Space: sp.Name, Start: 0, Length: 16}, bytes.NewReader(bytes.Repeat([]byte{1}, 16)), 0, nil)
	require.NoError(t, err)
	left, right, err := mm.Split(b.ID(), sp.Addr(8))
	require.NoError(t, err)

	joined, err := mm.Join(right.ID(), left.ID())
	require.NoError(t, err)
	require.Equal(t, sp.Addr(0), joined.Start())
}

func TestMoveBlockRelocatesAndRejectsOverlap(t *testing.T) {
	mm, f := newTestMap(t)
	sp := f.DefaultSpace()

	a, err := mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "a", Space: sp.Name, Start: 0, Length: 16})
	require.NoError(t, err)
	_, err = mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "b", Space: sp.Name, Start: 0x100, Length: 16})
	require.NoError(t, err)

	require.NoError(t, mm.MoveBlock(a.ID(), sp.Addr(0x200)))
	moved, ok := mm.GetBlock(sp.Addr(0x200))
	require.True(t, ok)
	require.Equal(t, a.ID(), moved.ID())

	err = mm.MoveBlock(a.ID(), sp.Addr(0x100))
	require.ErrorIs(t, err, memmap.ErrRangeConflict)
}

func TestMoveBlockRejectedWhileLiveMemoryActive(t *testing.T) {
	mm, f := newTestMap(t)
	sp := f.DefaultSpace()
	a, err := mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "a", Space: sp.Name, Start: 0, Length: 16})
	require.NoError(t, err)

	mm.SetLiveMemoryHandler(fakeLiveHandler{})
	defer mm.ClearLiveMemoryHandler()

	err = mm.MoveBlock(a.ID(), sp.Addr(0x100))
	require.ErrorIs(t, err, memmap.ErrStateConflict)
}

func TestLiveMemoryCollapsesInitializedViewAndDelegatesReads(t *testing.T) {
	mm, f := newTestMap(t)
	sp := f.DefaultSpace()

	b, err := mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "a", Space: sp.Name, Start: 0, Length: 16})
	require.NoError(t, err)
	require.False(t, mm.AllInitializedAddresses().Contains(b.Start()))

	mm.SetLiveMemoryHandler(fakeLiveHandler{})
	defer mm.ClearLiveMemoryHandler()

	// Every covered address now reads as initialized, and byte reads
	// delegate to the handler regardless of block kind.
	require.True(t, mm.AllInitializedAddresses().Contains(b.Start()))
	require.True(t, mm.LoadedInitializedAddresses().Contains(b.End()))
	_, err = mm.GetByte(sp.Addr(4))
	require.NoError(t, err)
}

func TestConvertToUninitializedThenBack(t *testing.T) {
	mm, f := newTestMap(t)
	sp := f.DefaultSpace()

	b, err := mm.CreateInitializedBlock(memmap.BlockSpec{Name: "x", Space: sp.Name, Start: 0, Length: 8}, bytes.NewReader(bytes.Repeat([]byte{9}, 8)), 0, nil)
	require.NoError(t, err)

	require.NoError(t, mm.ConvertToUninitialized(b.ID()))
	require.False(t, mm.AllInitializedAddresses().Contains(sp.Addr(0)))

	require.NoError(t, mm.ConvertToInitialized(b.ID(), 0x55))
	buf := make([]byte, 8)
	n, err := mm.GetBytes(sp.Addr(0), buf)
	require.NoError(t, err)
	require.Equal(t, 8, n)
	require.Equal(t, bytes.Repeat([]byte{0x55}, 8), buf)
}

func TestRemoveBlockDropsEmptyOverlaySpace(t *testing.T) {
	mm, f := newTestMap(t)
	sp := f.DefaultSpace()

	b, err := mm.CreateUninitializedBlock(memmap.BlockSpec{
		Name: "bank0", Space: sp.Name, Start: 0x8000, Length: 0x10,
		Overlay: true, OverlaySpaceName: "bank0",
	})
	require.NoError(t, err)

	require.NoError(t, mm.RemoveBlock(b.ID()))
	_, err = f.GetSpace("bank0")
	require.ErrorIs(t, err, addr.ErrNotFound)
}

// fakeProgram is a Program that can be toggled to deny exclusive access
// and that records every MigrateReferences call.
type fakeProgram struct {
	denyAccess bool
	migrations []migration
}

type migration struct {
	oldStart, newStart addr.Address
	length             uint64
}

func (p *fakeProgram) CheckExclusiveAccess() error {
	if p.denyAccess {
		return errors.New("fakeProgram: access denied")
	}
	return nil
}

func (p *fakeProgram) MigrateReferences(oldStart, newStart addr.Address, length uint64) {
	p.migrations = append(p.migrations, migration{oldStart, newStart, length})
}

func TestMutatorsRejectWithoutExclusiveAccess(t *testing.T) {
	f := addr.NewFactory("ram", 0xffffffff)
	s := store.NewMemStore()
	prog := &fakeProgram{denyAccess: true}
	mm, err := memmap.New(f, s, memmap.WithProgram(prog))
	require.NoError(t, err)
	sp := f.DefaultSpace()

	_, err = mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "a", Space: sp.Name, Start: 0, Length: 16})
	require.ErrorIs(t, err, memmap.ErrLockViolation)

	_, err = mm.CreateInitializedBlock(memmap.BlockSpec{Name: "b", Space: sp.Name, Start: 0, Length: 16}, nil, 0, nil)
	require.ErrorIs(t, err, memmap.ErrLockViolation)

	err = mm.MoveBlock(1, sp.Addr(0x100))
	require.ErrorIs(t, err, memmap.ErrLockViolation)

	_, _, err = mm.Split(1, sp.Addr(0x100))
	require.ErrorIs(t, err, memmap.ErrLockViolation)

	_, err = mm.Join(1, 2)
	require.ErrorIs(t, err, memmap.ErrLockViolation)

	err = mm.ConvertToInitialized(1, 0)
	require.ErrorIs(t, err, memmap.ErrLockViolation)

	err = mm.ConvertToUninitialized(1)
	require.ErrorIs(t, err, memmap.ErrLockViolation)

	err = mm.RemoveBlock(1)
	require.ErrorIs(t, err, memmap.ErrLockViolation)

	// Once access is granted, the same mutator succeeds.
	prog.denyAccess = false
	_, err = mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "a", Space: sp.Name, Start: 0, Length: 16})
	require.NoError(t, err)
}

func TestMoveBlockNotifiesProgramOfMigration(t *testing.T) {
	f := addr.NewFactory("ram", 0xffffffff)
	s := store.NewMemStore()
	prog := &fakeProgram{}
	mm, err := memmap.New(f, s, memmap.WithProgram(prog))
	require.NoError(t, err)
	sp := f.DefaultSpace()

	a, err := mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "a", Space: sp.Name, Start: 0, Length: 16})
	require.NoError(t, err)

	require.NoError(t, mm.MoveBlock(a.ID(), sp.Addr(0x200)))

	require.Len(t, prog.migrations, 1)
	require.Equal(t, sp.Addr(0), prog.migrations[0].oldStart)
	require.Equal(t, sp.Addr(0x200), prog.migrations[0].newStart)
	require.Equal(t, uint64(16), prog.migrations[0].length)
}

type fakeLiveHandler struct{}

func (fakeLiveHandler) GetByte(a addr.Address) (byte, error)             { return 0, nil }
func (fakeLiveHandler) GetBytes(a addr.Address, dst []byte) (int, error) { return len(dst), nil }
func (fakeLiveHandler) PutByte(a addr.Address, v byte) error             { return nil }
func (fakeLiveHandler) PutBytes(a addr.Address, src []byte) (int, error) { return len(src), nil }
func (fakeLiveHandler) ClearCache()                                     {}
func (fakeLiveHandler) AddListener(l livemem.Listener)                  {}
func (fakeLiveHandler) RemoveListener(l livemem.Listener)               {}
