// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package addr

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrDuplicateName is returned by CreateOverlaySpace when the requested
// name is already registered.
var ErrDuplicateName = errors.New("addr: space name already in use")

// ErrNotFound is returned when a named space is not registered.
var ErrNotFound = errors.New("addr: space not found")

// Factory is the address-space registry: it resolves spaces by name, names
// the program's default memory space, and creates or removes overlay spaces
// on demand. A Factory is safe for concurrent use.
type Factory struct {
	mu     sync.Mutex
	spaces map[string]*Space
	order  int
	dflt   *Space
}

// NewFactory returns a Factory whose default memory space is named
// defaultName and spans [0, maxOffset].
func NewFactory(defaultName string, maxOffset uint64) *Factory {
	f := &Factory{spaces: make(map[string]*Space)}
	dflt := &Space{
		Name:      defaultName,
		Kind:      KindMemory,
		MinOffset: 0,
		MaxOffset: maxOffset,
	}
	f.register(dflt)
	f.dflt = dflt

	return f
}

func (f *Factory) register(s *Space) {
	s.order = f.order
	f.order++
	f.spaces[s.Name] = s
}

// DefaultSpace returns the program's default memory space.
func (f *Factory) DefaultSpace() *Space {
	return f.dflt
}

// GetSpace resolves a space by name.
func (f *Factory) GetSpace(name string) (*Space, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s, ok := f.spaces[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return s, nil
}

// AddMemorySpace registers an additional user memory space, e.g. for a
// program with more than one addressable memory bus.
func (f *Factory) AddMemorySpace(name string, minOffset, maxOffset uint64) (*Space, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.spaces[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}

	s := &Space{Name: name, Kind: KindMemory, MinOffset: minOffset, MaxOffset: maxOffset}
	f.register(s)

	return s, nil
}

// CreateOverlaySpace creates a new overlay space named name, shadowing
// base over [baseMin, baseMax]. The overlay's own offsets start at 0 and
// run for the same length as the shadowed range, so overlay blocks are
// addressed independently of the base range they shadow.
func (f *Factory) CreateOverlaySpace(name string, base *Space, baseMin, baseMax uint64) (*Space, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, exists := f.spaces[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	if base == nil || base.Kind != KindMemory {
		return nil, fmt.Errorf("addr: overlay base must be a memory space")
	}
	if baseMax < baseMin {
		return nil, fmt.Errorf("addr: overlay base range is empty")
	}

	s := &Space{
		Name:      name,
		Kind:      KindOverlay,
		MinOffset: 0,
		MaxOffset: baseMax - baseMin,
		Base:      base,
		BaseMin:   baseMin,
		BaseMax:   baseMax,
	}
	f.register(s)

	return s, nil
}

// RemoveOverlaySpace deregisters an overlay space. Callers are responsible
// for having already removed every block that resided in it.
func (f *Factory) RemoveOverlaySpace(s *Space) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if s == nil || s.Kind != KindOverlay {
		return fmt.Errorf("addr: %v is not an overlay space", s)
	}
	if _, ok := f.spaces[s.Name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, s.Name)
	}
	delete(f.spaces, s.Name)

	return nil
}

// Spaces returns every registered space, in registration order.
func (f *Factory) Spaces() []*Space {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]*Space, 0, len(f.spaces))
	for _, s := range f.spaces {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })

	return out
}
