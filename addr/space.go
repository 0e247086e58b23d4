// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package addr

// Kind distinguishes a plain memory space from an overlay space shadowing
// one.
type Kind uint8

const (
	// KindMemory is a user-creatable space; blocks here are subject to
	// ordinary create/split/join/move/remove operations.
	KindMemory Kind = iota
	// KindOverlay is a shadow of a KindMemory space over a specific base
	// range. Overlay spaces are created by the factory on demand and hold
	// only overlay blocks.
	KindOverlay
)

func (k Kind) String() string {
	if k == KindOverlay {
		return "overlay"
	}
	return "memory"
}

// Space is a named address domain. Memory spaces host ordinary blocks;
// overlay spaces shadow a base memory space over [BaseMin, BaseMax] and are
// the only legal home for overlay blocks.
type Space struct {
	Name string
	Kind Kind

	// MinOffset and MaxOffset bound every address a block in this space
	// may occupy.
	MinOffset, MaxOffset uint64

	// Base, BaseMin and BaseMax are populated only for overlay spaces: Base
	// names the memory space this overlay shadows, and [BaseMin, BaseMax]
	// is the range of the base space it shadows.
	Base    *Space
	BaseMin uint64
	BaseMax uint64

	// ImageBase is the address, within this space, that no block may span
	// across; zero means "no image base constraint".
	ImageBase uint64

	// order is assigned by the Factory at registration time and totally
	// orders addresses across spaces; it is never exposed to callers.
	order int
}

// MinAddress returns the lowest legal address in the space.
func (s *Space) MinAddress() Address {
	return Address{Space: s, Offset: s.MinOffset}
}

// MaxAddress returns the highest legal address in the space.
func (s *Space) MaxAddress() Address {
	return Address{Space: s, Offset: s.MaxOffset}
}

// Addr is a convenience constructor for an address at offset within s.
func (s *Space) Addr(offset uint64) Address {
	return Address{Space: s, Offset: offset}
}

// Contains reports whether offset is a legal offset in s.
func (s *Space) Contains(offset uint64) bool {
	return offset >= s.MinOffset && offset <= s.MaxOffset
}

// IsOverlay reports whether s shadows a base memory space.
func (s *Space) IsOverlay() bool {
	return s.Kind == KindOverlay
}
