// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package addr_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memspace/binmap/addr"
)

func TestFactoryOverlayLifecycle(t *testing.T) {
	f := addr.NewFactory("ram", 0xffffffff)
	base := f.DefaultSpace()

	ov, err := f.CreateOverlaySpace("bank0", base, 0x1000, 0x1fff)
	require.NoError(t, err)
	require.True(t, ov.IsOverlay())
	require.Equal(t, uint64(0), ov.MinOffset)
	require.Equal(t, uint64(0xfff), ov.MaxOffset)

	got, err := f.GetSpace("bank0")
	require.NoError(t, err)
	require.Same(t, ov, got)

	_, err = f.CreateOverlaySpace("bank0", base, 0x2000, 0x2fff)
	require.ErrorIs(t, err, addr.ErrDuplicateName)

	require.NoError(t, f.RemoveOverlaySpace(ov))
	_, err = f.GetSpace("bank0")
	require.ErrorIs(t, err, addr.ErrNotFound)
}

func TestFactorySpacesOrderSurvivesRemoval(t *testing.T) {
	f := addr.NewFactory("ram", 0xffff)
	base := f.DefaultSpace()

	a, err := f.CreateOverlaySpace("a", base, 0, 0xff)
	require.NoError(t, err)
	_, err = f.CreateOverlaySpace("b", base, 0x100, 0x1ff)
	require.NoError(t, err)
	c, err := f.CreateOverlaySpace("c", base, 0x200, 0x2ff)
	require.NoError(t, err)

	require.NoError(t, f.RemoveOverlaySpace(a))

	names := make([]string, 0)
	for _, s := range f.Spaces() {
		names = append(names, s.Name)
	}
	require.Equal(t, []string{"ram", "b", "c"}, names)
	require.Equal(t, "c", c.Name)
}

func TestFactoryAddMemorySpaceDuplicate(t *testing.T) {
	f := addr.NewFactory("ram", 0xffff)
	_, err := f.AddMemorySpace("ram", 0, 0xff)
	require.ErrorIs(t, err, addr.ErrDuplicateName)
}
