// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package endian implements the scalar and bulk endian-aware codec used by
// memmap's typed I/O: packing and unpacking 16/32/64-bit integers in
// either byte order, on top of encoding/binary.
package endian

import "encoding/binary"

// Order selects a byte order for a single typed read or write.
type Order bool

const (
	// Little selects little-endian byte order.
	Little Order = false
	// Big selects big-endian byte order.
	Big Order = true
)

func (o Order) binary() binary.ByteOrder {
	if o == Big {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// String renders the order for diagnostics.
func (o Order) String() string {
	if o == Big {
		return "big"
	}
	return "little"
}

// Sizes, in bytes, of the scalar types this package codes.
const (
	SizeShort = 2
	SizeInt   = 4
	SizeLong  = 8
)

// GetUint16 decodes a 16-bit unsigned integer from the first two bytes of
// b using order o.
func GetUint16(b []byte, o Order) uint16 { return o.binary().Uint16(b) }

// GetUint32 decodes a 32-bit unsigned integer from the first four bytes of
// b using order o.
func GetUint32(b []byte, o Order) uint32 { return o.binary().Uint32(b) }

// GetUint64 decodes a 64-bit unsigned integer from the first eight bytes
// of b using order o.
func GetUint64(b []byte, o Order) uint64 { return o.binary().Uint64(b) }

// PutUint16 encodes v into the first two bytes of b using order o.
func PutUint16(b []byte, v uint16, o Order) { o.binary().PutUint16(b, v) }

// PutUint32 encodes v into the first four bytes of b using order o.
func PutUint32(b []byte, v uint32, o Order) { o.binary().PutUint32(b, v) }

// PutUint64 encodes v into the first eight bytes of b using order o.
func PutUint64(b []byte, v uint64, o Order) { o.binary().PutUint64(b, v) }

// GetUint16s decodes as many uint16 elements as fit in b (len(b)/2) into
// dst, returning the number of elements decoded. Used for bulk scalar
// reads that tolerate a short read.
func GetUint16s(b []byte, dst []uint16, o Order) int {
	n := len(b) / SizeShort
	if n > len(dst) {
		n = len(dst)
	}
	bo := o.binary()
	for i := 0; i < n; i++ {
		dst[i] = bo.Uint16(b[i*SizeShort:])
	}
	return n
}

// GetUint32s is the 32-bit analogue of GetUint16s.
func GetUint32s(b []byte, dst []uint32, o Order) int {
	n := len(b) / SizeInt
	if n > len(dst) {
		n = len(dst)
	}
	bo := o.binary()
	for i := 0; i < n; i++ {
		dst[i] = bo.Uint32(b[i*SizeInt:])
	}
	return n
}

// GetUint64s is the 64-bit analogue of GetUint16s.
func GetUint64s(b []byte, dst []uint64, o Order) int {
	n := len(b) / SizeLong
	if n > len(dst) {
		n = len(dst)
	}
	bo := o.binary()
	for i := 0; i < n; i++ {
		dst[i] = bo.Uint64(b[i*SizeLong:])
	}
	return n
}

// PutUint16s encodes the elements of src into b, which must have room for
// len(src)*SizeShort bytes.
func PutUint16s(b []byte, src []uint16, o Order) {
	bo := o.binary()
	for i, v := range src {
		bo.PutUint16(b[i*SizeShort:], v)
	}
}

// PutUint32s encodes the elements of src into b, which must have room for
// len(src)*SizeInt bytes.
func PutUint32s(b []byte, src []uint32, o Order) {
	bo := o.binary()
	for i, v := range src {
		bo.PutUint32(b[i*SizeInt:], v)
	}
}

// PutUint64s encodes the elements of src into b, which must have room for
// len(src)*SizeLong bytes.
func PutUint64s(b []byte, src []uint64, o Order) {
	bo := o.binary()
	for i, v := range src {
		bo.PutUint64(b[i*SizeLong:], v)
	}
}
