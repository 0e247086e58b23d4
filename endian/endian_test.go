// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package endian_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/memspace/binmap/endian"
)

func TestScalarRoundTrip(t *testing.T) {
	for _, o := range []endian.Order{endian.Little, endian.Big} {
		buf16 := make([]byte, endian.SizeShort)
		endian.PutUint16(buf16, 0xbeef, o)
		require.Equal(t, uint16(0xbeef), endian.GetUint16(buf16, o))

		buf32 := make([]byte, endian.SizeInt)
		endian.PutUint32(buf32, 0xdeadbeef, o)
		require.Equal(t, uint32(0xdeadbeef), endian.GetUint32(buf32, o))

		buf64 := make([]byte, endian.SizeLong)
		endian.PutUint64(buf64, 0x0102030405060708, o)
		require.Equal(t, uint64(0x0102030405060708), endian.GetUint64(buf64, o))
	}
}

func TestBigEndianByteOrder(t *testing.T) {
	buf := []byte{0xaa, 0xaa, 0xaa, 0xaa}
	require.Equal(t, uint32(0xaaaaaaaa), endian.GetUint32(buf, endian.Big))
	require.Equal(t, uint32(0xaaaaaaaa), endian.GetUint32(buf, endian.Little))

	buf = []byte{0x01, 0x02}
	require.Equal(t, uint16(0x0102), endian.GetUint16(buf, endian.Big))
	require.Equal(t, uint16(0x0201), endian.GetUint16(buf, endian.Little))
}

func TestBulkShortRead(t *testing.T) {
	// Three and a half shorts' worth of bytes: decoding should tolerate the
	// trailing half-element and report floor(len/2).
	buf := make([]byte, endian.SizeShort*3+1)
	endian.PutUint16(buf[0:], 1, endian.Little)
	endian.PutUint16(buf[2:], 2, endian.Little)
	endian.PutUint16(buf[4:], 3, endian.Little)

	dst := make([]uint16, 8)
	n := endian.GetUint16s(buf, dst, endian.Little)
	require.Equal(t, 3, n)
	require.Equal(t, []uint16{1, 2, 3}, dst[:n])
}

func TestBulkRoundTrip(t *testing.T) {
	src := []uint32{1, 2, 3, 4}
	buf := make([]byte, len(src)*endian.SizeInt)
	endian.PutUint32s(buf, src, endian.Big)

	dst := make([]uint32, len(src))
	n := endian.GetUint32s(buf, dst, endian.Big)
	require.Equal(t, len(src), n)
	require.Equal(t, src, dst)
}

func TestOrderString(t *testing.T) {
	require.Equal(t, "little", endian.Little.String())
	require.Equal(t, "big", endian.Big.String())
}
