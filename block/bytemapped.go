// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"fmt"

	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/store"
)

// ByteMappedBlock forwards reads and writes byte-for-byte to another
// block's range: ByteMapped[i] == Target[i].
type ByteMappedBlock struct {
	base
	target   addr.Address
	resolver Resolver
}

var _ Mapped = (*ByteMappedBlock)(nil)

func (b *ByteMappedBlock) Kind() store.Kind     { return store.KindByteMapped }
func (b *ByteMappedBlock) Initialized() bool    { return false }
func (b *ByteMappedBlock) IsLoaded() bool       { return false }
func (b *ByteMappedBlock) Target() addr.Address { return b.target }
func (b *ByteMappedBlock) TargetSpan() uint64   { return b.length }

func (b *ByteMappedBlock) Record() store.BlockRecord {
	return store.BlockRecord{
		ID:           b.id,
		Kind:         store.KindByteMapped,
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

func (b *ByteMappedBlock) targetAddr(a addr.Address) (addr.Address, error) {
	return b.target.Add(a.Offset - b.start.Offset)
}

func (b *ByteMappedBlock) targetBlock(a addr.Address) (Block, error) {
	blk, ok := b.resolver.BlockContaining(a)
	if !ok {
		return nil, fmt.Errorf("%w: %s: target %s is unbacked", ErrAccessDenied, b.name, a)
	}
	return blk, nil
}

func (b *ByteMappedBlock) GetByte(a addr.Address) (byte, error) {
	var buf [1]byte
	n, err := b.GetBytes(a, buf[:])
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, fmt.Errorf("%w: %s: unbacked", ErrAccessDenied, a)
	}
	return buf[0], nil
}

func (b *ByteMappedBlock) GetBytes(a addr.Address, dst []byte) (int, error) {
	if !b.Contains(a) {
		return 0, fmt.Errorf("%w: %s not in %s", ErrAccessDenied, a, b.name)
	}
	ta, err := b.targetAddr(a)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: target overflow", ErrAccessDenied, b.name)
	}
	if max := b.End().Offset - a.Offset + 1; uint64(len(dst)) > max {
		dst = dst[:max]
	}
	blk, err := b.targetBlock(ta)
	if err != nil {
		return 0, err
	}
	return blk.GetBytes(ta, dst)
}

func (b *ByteMappedBlock) PutByte(a addr.Address, v byte) error {
	_, err := b.PutBytes(a, []byte{v})
	return err
}

func (b *ByteMappedBlock) PutBytes(a addr.Address, src []byte) (int, error) {
	if !b.Contains(a) {
		return 0, fmt.Errorf("%w: %s not in %s", ErrAccessDenied, a, b.name)
	}
	ta, err := b.targetAddr(a)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: target overflow", ErrAccessDenied, b.name)
	}
	if max := b.End().Offset - a.Offset + 1; uint64(len(src)) > max {
		src = src[:max]
	}
	blk, err := b.targetBlock(ta)
	if err != nil {
		return 0, err
	}
	return blk.PutBytes(ta, src)
}
