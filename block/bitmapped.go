// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"fmt"

	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/store"
)

// BitMappedBlock views length bits of another block as one byte per bit:
// reads expand each source bit (LSB-first within its source byte) into a
// 0x00/0x01 destination byte; writes require every source byte to already
// be 0x00/0x01 and read-modify-write the backing bit.
type BitMappedBlock struct {
	base
	target   addr.Address
	resolver Resolver
}

var _ Mapped = (*BitMappedBlock)(nil)

func (b *BitMappedBlock) Kind() store.Kind     { return store.KindBitMapped }
func (b *BitMappedBlock) Initialized() bool    { return false }
func (b *BitMappedBlock) IsLoaded() bool       { return false }
func (b *BitMappedBlock) Target() addr.Address { return b.target }

// TargetSpan is the number of target bytes this block's bits cover,
// ceil(length/8).
func (b *BitMappedBlock) TargetSpan() uint64 {
	return (b.length + 7) / 8
}

func (b *BitMappedBlock) Record() store.BlockRecord {
	return store.BlockRecord{
		ID:           b.id,
		Kind:         store.KindBitMapped,
		Name:         b.name,
		Space:        b.start.Space.Name,
		Start:        b.start.Offset,
		Length:       b.length,
		Perms:        b.perms,
		Mapped:       true,
		TargetSpace:  b.target.Space.Name,
		TargetOffset: b.target.Offset,
	}
}

// targetBlock resolves the block that currently contains b.target, the
// first target byte this block maps onto.
func (b *BitMappedBlock) targetBlock() (Block, error) {
	blk, ok := b.resolver.BlockContaining(b.target)
	if !ok {
		return nil, fmt.Errorf("%w: %s: target %s is unbacked", ErrAccessDenied, b.name, b.target)
	}
	return blk, nil
}

func (b *BitMappedBlock) GetByte(a addr.Address) (byte, error) {
	var buf [1]byte
	n, err := b.GetBytes(a, buf[:])
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, fmt.Errorf("%w: %s: unbacked bit", ErrAccessDenied, a)
	}
	return buf[0], nil
}

// GetBytes expands n requested bits starting at a into n destination bytes
// of 0x00/0x01, each decoded LSB-first from the target's bytes.
func (b *BitMappedBlock) GetBytes(a addr.Address, dst []byte) (int, error) {
	if !b.Contains(a) {
		return 0, fmt.Errorf("%w: %s not in %s", ErrAccessDenied, a, b.name)
	}
	bitOff := a.Offset - b.start.Offset
	n := uint64(len(dst))
	if max := b.length - bitOff; n > max {
		n = max
		dst = dst[:n]
	}

	firstByte := bitOff / 8
	nSrcBytes := (bitOff%8+n+7)/8 + 1
	src := make([]byte, nSrcBytes)

	targetStart, err := b.target.Add(firstByte)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: target overflow", ErrAccessDenied, b.name)
	}

	blk, err := b.targetBlock()
	if err != nil {
		return 0, err
	}
	got, err := blk.GetBytes(targetStart, src)
	if err != nil {
		return 0, err
	}
	src = src[:got]

	var i uint64
	for i = 0; i < n; i++ {
		bitIndex := bitOff + i
		srcByte := bitIndex/8 - firstByte
		if srcByte >= uint64(len(src)) {
			return int(i), nil
		}
		bit := bitIndex % 8
		if src[srcByte]&(1<<bit) != 0 {
			dst[i] = 1
		} else {
			dst[i] = 0
		}
	}

	return int(n), nil
}

func (b *BitMappedBlock) PutByte(a addr.Address, v byte) error {
	_, err := b.PutBytes(a, []byte{v})
	return err
}

// PutBytes rejects any source byte that isn't 0x00/0x01, then
// read-modify-writes each backing bit in the target.
func (b *BitMappedBlock) PutBytes(a addr.Address, src []byte) (int, error) {
	if !b.Contains(a) {
		return 0, fmt.Errorf("%w: %s not in %s", ErrAccessDenied, a, b.name)
	}
	for _, v := range src {
		if v != 0x00 && v != 0x01 {
			return 0, fmt.Errorf("block: bit-mapped write requires 0x00/0x01 bytes, got 0x%02x", v)
		}
	}

	bitOff := a.Offset - b.start.Offset
	blk, err := b.targetBlock()
	if err != nil {
		return 0, err
	}

	for i, v := range src {
		bitIndex := bitOff + uint64(i)
		targetByteOff := bitIndex / 8
		bit := bitIndex % 8

		targetAddr, err := b.target.Add(targetByteOff)
		if err != nil {
			return i, fmt.Errorf("%w: %s: target overflow", ErrAccessDenied, b.name)
		}

		var cur [1]byte
		if _, err := blk.GetBytes(targetAddr, cur[:]); err != nil {
			return i, err
		}
		if v == 1 {
			cur[0] |= 1 << bit
		} else {
			cur[0] &^= 1 << bit
		}
		if _, err := blk.PutBytes(targetAddr, cur[:]); err != nil {
			return i, err
		}
	}

	return len(src), nil
}
