// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package block

import (
	"fmt"

	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/store"
)

// DefaultBlock implements both the Default and Overlay kinds: an Overlay
// block behaves exactly like a Default block except that it cannot be
// split, joined, or moved. Split, Join and SetStart reject with
// ErrInvalidKind when overlay is true.
type DefaultBlock struct {
	base
	overlay     bool
	initialized bool
}

var (
	_ Block      = (*DefaultBlock)(nil)
	_ InitToggle = (*DefaultBlock)(nil)
)

func (d *DefaultBlock) Kind() store.Kind {
	if d.overlay {
		return store.KindOverlay
	}
	return store.KindDefault
}

func (d *DefaultBlock) Initialized() bool { return d.initialized }
func (d *DefaultBlock) IsLoaded() bool    { return true }
func (d *DefaultBlock) IsOverlay() bool   { return d.overlay }

func (d *DefaultBlock) Record() store.BlockRecord {
	return store.BlockRecord{
		ID:          d.id,
		Kind:        d.Kind(),
		Name:        d.name,
		Space:       d.start.Space.Name,
		Start:       d.start.Offset,
		Length:      d.length,
		Perms:       d.perms,
		Initialized: d.initialized,
	}
}

func (d *DefaultBlock) GetByte(a addr.Address) (byte, error) {
	var buf [1]byte
	n, err := d.GetBytes(a, buf[:])
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, fmt.Errorf("%w: %s: uninitialized", ErrAccessDenied, a)
	}
	return buf[0], nil
}

func (d *DefaultBlock) GetBytes(a addr.Address, dst []byte) (int, error) {
	if !d.Contains(a) {
		return 0, fmt.Errorf("%w: %s not in %s", ErrAccessDenied, a, d.name)
	}
	if !d.initialized {
		return 0, nil
	}
	max := d.End().Offset - a.Offset + 1
	if uint64(len(dst)) > max {
		dst = dst[:max]
	}
	n, err := d.adapter.Read(d.id, a.Offset-d.start.Offset, dst)
	if err != nil {
		return n, fmt.Errorf("block: read %s: %w", a, err)
	}
	return n, nil
}

func (d *DefaultBlock) PutByte(a addr.Address, v byte) error {
	_, err := d.PutBytes(a, []byte{v})
	return err
}

func (d *DefaultBlock) PutBytes(a addr.Address, src []byte) (int, error) {
	if !d.Contains(a) {
		return 0, fmt.Errorf("%w: %s not in %s", ErrAccessDenied, a, d.name)
	}
	if !d.initialized {
		return 0, fmt.Errorf("%w: %s is uninitialized", ErrAccessDenied, d.name)
	}
	max := d.End().Offset - a.Offset + 1
	if uint64(len(src)) > max {
		src = src[:max]
	}
	n, err := d.adapter.Write(d.id, a.Offset-d.start.Offset, src)
	if err != nil {
		return n, fmt.Errorf("block: write %s: %w", a, err)
	}
	return n, nil
}

// Initialize fills the block with fill and marks it initialized, updating
// the adapter record in place. Overlay blocks may be initialized too;
// only mapped kinds reject this (they don't implement InitToggle at all).
func (d *DefaultBlock) Initialize(fill byte) error {
	rec := d.Record()
	rec.Initialized = true

	buf := make([]byte, d.length)
	for i := range buf {
		buf[i] = fill
	}

	if err := d.adapter.Update(rec); err != nil {
		return fmt.Errorf("block: initialize %s: %w", d.name, err)
	}
	if _, err := d.adapter.Write(d.id, 0, buf); err != nil {
		return fmt.Errorf("block: initialize %s: %w", d.name, err)
	}
	d.initialized = true

	return nil
}

// Uninitialize drops the block's backing bytes and marks it
// uninitialized.
func (d *DefaultBlock) Uninitialize() error {
	rec := d.Record()
	rec.Initialized = false

	if err := d.adapter.Update(rec); err != nil {
		return fmt.Errorf("block: uninitialize %s: %w", d.name, err)
	}
	d.initialized = false

	return nil
}

// Split divides d at at into two adjacent blocks sharing its kind and
// initialization. The caller (memmap) is responsible for persisting the
// new record via the adapter and rebuilding; Split itself only computes
// the two resulting in-memory descriptions.
func (d *DefaultBlock) Split(at addr.Address) (Block, Block, error) {
	if d.overlay {
		return nil, nil, fmt.Errorf("%w: cannot split an overlay block", ErrInvalidKind)
	}
	if !d.Contains(at) || at.Offset == d.start.Offset {
		return nil, nil, fmt.Errorf("block: split point %s not strictly inside %s", at, d.name)
	}

	leftLen := at.Offset - d.start.Offset
	rightLen := d.length - leftLen

	left := &DefaultBlock{
		base:        base{id: d.id, name: d.name, start: d.start, length: leftLen, perms: d.perms, adapter: d.adapter},
		initialized: d.initialized,
	}
	right := &DefaultBlock{
		base:        base{name: d.name, start: at, length: rightLen, perms: d.perms, adapter: d.adapter},
		initialized: d.initialized,
	}

	return left, right, nil
}

// Join returns the single block representing d immediately followed by
// other. Both blocks must be Default (not Overlay), share initialization,
// and the combined length must fit a 32-bit length field.
func (d *DefaultBlock) Join(other Block) (Block, error) {
	if d.overlay {
		return nil, fmt.Errorf("%w: cannot join an overlay block", ErrInvalidKind)
	}
	o, ok := other.(*DefaultBlock)
	if !ok || o.overlay {
		return nil, fmt.Errorf("%w: join requires two default blocks", ErrInvalidKind)
	}
	if o.Kind() != d.Kind() || o.initialized != d.initialized {
		return nil, fmt.Errorf("%w: join requires matching kind and initialization", ErrInvalidKind)
	}
	if !other.Start().IsSuccessorOf(d.End()) {
		return nil, fmt.Errorf("block: join requires adjacent blocks")
	}
	combined := d.length + other.Length()
	if combined > 0x7fffffff {
		return nil, fmt.Errorf("block: joined length %d exceeds 31-bit limit", combined)
	}

	return &DefaultBlock{
		base:        base{id: d.id, name: d.name, start: d.start, length: combined, perms: d.perms, adapter: d.adapter},
		initialized: d.initialized,
	}, nil
}

// SetStart relocates the block, used by memmap's MoveBlock.
func (d *DefaultBlock) SetStart(newStart addr.Address) error {
	if d.overlay {
		return fmt.Errorf("%w: cannot move an overlay block", ErrInvalidKind)
	}
	d.start = newStart
	return nil
}
