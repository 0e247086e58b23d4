// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package block implements per-block byte access and structural
// operations for the four block kinds (Default, Overlay, BitMapped,
// ByteMapped), dispatching through a kind tag and capability interfaces
// instead of inheritance.
package block

import (
	"errors"
	"fmt"

	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/store"
)

// ErrInvalidKind is returned when an operation is attempted on a block
// kind that does not support it.
var ErrInvalidKind = errors.New("block: operation not valid for this kind")

// ErrAccessDenied is returned by reads/writes that fall outside the
// block's own range, or by writes to an uninitialized block.
var ErrAccessDenied = errors.New("block: access denied")

// Resolver lets a mapped block find the block backing its target address
// without the block package importing memmap: the map owns its blocks and
// hands each mapped block this non-owning handle. A *memmap.MemoryMap
// satisfies this interface structurally.
type Resolver interface {
	BlockContaining(a addr.Address) (Block, bool)
}

// Block is the common read/write and identity surface of every block
// kind. Kind-specific structural operations (split, join, move,
// initialize) are exposed through the optional capability interfaces
// below and must be type-asserted for, exactly as memmap's mutators do.
type Block interface {
	ID() uint32
	Kind() store.Kind
	Name() string
	Start() addr.Address
	End() addr.Address
	Length() uint64
	Permissions() store.Permissions
	Initialized() bool
	IsLoaded() bool

	Contains(a addr.Address) bool

	GetByte(a addr.Address) (byte, error)
	GetBytes(a addr.Address, dst []byte) (int, error)
	PutByte(a addr.Address, v byte) error
	PutBytes(a addr.Address, src []byte) (int, error)

	// Record returns the persisted shape of the block, as last known to
	// the block (i.e. without re-reading the adapter).
	Record() store.BlockRecord
}

// Mapped is implemented by BitMapped and ByteMapped blocks, giving access
// to the target address their contents forward to.
type Mapped interface {
	Block
	Target() addr.Address
	TargetSpan() uint64
}

// Splitter is implemented by blocks that can be split in two.
type Splitter interface {
	Block
	Split(at addr.Address) (Block, Block, error)
}

// Joiner is implemented by blocks that can be joined with an adjacent
// block of the same kind.
type Joiner interface {
	Block
	Join(other Block) (Block, error)
}

// Mover is implemented by blocks whose start address can be changed.
type Mover interface {
	Block
	SetStart(newStart addr.Address) error
}

// InitToggle is implemented by blocks that can move between initialized
// and uninitialized.
type InitToggle interface {
	Block
	Initialize(fill byte) error
	Uninitialize() error
}

// base holds the state common to every block kind.
type base struct {
	id      uint32
	name    string
	start   addr.Address
	length  uint64
	perms   store.Permissions
	adapter store.Adapter
}

func (b *base) ID() uint32                     { return b.id }
func (b *base) Name() string                   { return b.name }
func (b *base) Start() addr.Address            { return b.start }
func (b *base) Length() uint64                 { return b.length }
func (b *base) Permissions() store.Permissions { return b.perms }

func (b *base) End() addr.Address {
	e, err := b.start.Add(b.length - 1)
	if err != nil {
		// Construction guarantees length fits within the space; if it
		// somehow didn't, clamp rather than panic in a read path.
		return b.start.Space.MaxAddress()
	}
	return e
}

func (b *base) Contains(a addr.Address) bool {
	if a.Space != b.start.Space {
		return false
	}
	return a.Offset >= b.start.Offset && a.Offset <= b.End().Offset
}

// New builds the concrete Block for rec, resolving its own space via
// spaceOf and, for mapped kinds, its target space the same way. adapter is
// the backing store; resolver is consulted by mapped blocks to find the
// block currently backing their target range.
func New(rec store.BlockRecord, spaceOf func(name string) (*addr.Space, error), adapter store.Adapter, resolver Resolver) (Block, error) {
	sp, err := spaceOf(rec.Space)
	if err != nil {
		return nil, fmt.Errorf("block: resolving space %q: %w", rec.Space, err)
	}
	start := addr.NewAddress(sp, rec.Start)

	b := base{id: rec.ID, name: rec.Name, start: start, length: rec.Length, perms: rec.Perms, adapter: adapter}

	switch rec.Kind {
	case store.KindDefault:
		return &DefaultBlock{base: b, overlay: false, initialized: rec.Initialized}, nil
	case store.KindOverlay:
		return &DefaultBlock{base: b, overlay: true, initialized: rec.Initialized}, nil
	case store.KindBitMapped, store.KindByteMapped:
		tsp, err := spaceOf(rec.TargetSpace)
		if err != nil {
			return nil, fmt.Errorf("block: resolving target space %q: %w", rec.TargetSpace, err)
		}
		target := addr.NewAddress(tsp, rec.TargetOffset)
		if rec.Kind == store.KindBitMapped {
			return &BitMappedBlock{base: b, target: target, resolver: resolver}, nil
		}
		return &ByteMappedBlock{base: b, target: target, resolver: resolver}, nil
	default:
		return nil, fmt.Errorf("block: %w: unknown kind %v", ErrInvalidKind, rec.Kind)
	}
}
