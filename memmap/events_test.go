// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmap_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/memmap"
	"github.com/memspace/binmap/store"
)

var errRefreshFailed = errors.New("refresh failed")

type recordingBus struct{ events []memmap.Event }

func (b *recordingBus) Post(e memmap.Event) { b.events = append(b.events, e) }

func TestMutatorsPostExpectedEvents(t *testing.T) {
	f := addr.NewFactory("ram", 0xffffffff)
	sp := f.DefaultSpace()
	s := store.NewMemStore()
	bus := &recordingBus{}

	mm, err := memmap.New(f, s, memmap.WithChangeBus(bus))
	require.NoError(t, err)

	b, err := mm.CreateUninitializedBlock(memmap.BlockSpec{Name: "a", Space: sp.Name, Start: 0, Length: 16})
	require.NoError(t, err)
	require.NoError(t, mm.ConvertToInitialized(b.ID(), 0))
	require.NoError(t, mm.MoveBlock(b.ID(), sp.Addr(0x100)))
	require.NoError(t, mm.RemoveBlock(b.ID()))

	var types []memmap.EventType
	for _, e := range bus.events {
		types = append(types, e.Type)
	}
	require.Equal(t, []memmap.EventType{
		memmap.BlockAdded,
		memmap.BlockChanged,
		memmap.BytesChanged,
		memmap.BlockMoved,
		memmap.BlockRemoved,
	}, types)
}

func TestDBErrorHandlerInvokedOnRefreshFailure(t *testing.T) {
	f := addr.NewFactory("ram", 0xffffffff)
	s := &failingRefreshAdapter{Adapter: store.NewMemStore()}

	var reported error
	mm, err := memmap.New(f, s, memmap.WithDBErrorHandler(func(e error) { reported = e }))
	require.NoError(t, err)

	err = mm.Refresh()
	require.Error(t, err)
	require.NotNil(t, reported)
}

// failingRefreshAdapter wraps a working adapter but fails Refresh (LoadAll
// still works, so New succeeds), exercising the *store.StoreError
// escalation path.
type failingRefreshAdapter struct {
	store.Adapter
}

func (f *failingRefreshAdapter) Refresh() error {
	return errRefreshFailed
}
