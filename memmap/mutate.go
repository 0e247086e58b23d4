// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmap

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/block"
	"github.com/memspace/binmap/monitor"
	"github.com/memspace/binmap/store"
)

// BlockSpec names the shape of a new block: every Create* mutator takes
// one. Space and Start describe where the block is requested; for
// Overlay, OverlaySpaceName names the shadow space the factory creates, and
// Start/Space instead describe the range of the base space being shadowed.
type BlockSpec struct {
	Name             string
	Space            string
	Start            uint64
	Length           uint64
	Perms            store.Permissions
	Overlay          bool
	OverlaySpaceName string
}

// translateBlockErr maps a block-package sentinel to its memmap
// equivalent, so callers only ever need to check against this package's
// error taxonomy.
func translateBlockErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, block.ErrInvalidKind):
		return fmt.Errorf("%w: %v", ErrInvalidKind, err)
	case errors.Is(err, block.ErrAccessDenied):
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	default:
		return err
	}
}

// fillReader yields an endless stream of a single byte value; LimitReader
// bounds it to the block's length, giving CreateInitializedBlock a
// uniform io.Reader regardless of whether the caller supplied a real
// stream or just a fill byte.
type fillReader struct{ fill byte }

func (f fillReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = f.fill
	}
	return len(p), nil
}

// checkRange validates a prospective block range independent of kind: the
// range must be non-empty, must not overflow its space, must not span the
// image base, and must not intersect any existing block.
// requireMemorySpace enforces the additional restriction that plain
// (non-overlay-hosted) blocks may only be created in a memory space.
func (m *MemoryMap) checkRange(sp *addr.Space, start, length uint64, requireMemorySpace bool) (addr.Range, error) {
	if requireMemorySpace && sp.Kind == addr.KindOverlay {
		return addr.Range{}, fmt.Errorf("%w: %s is an overlay space", ErrRangeConflict, sp.Name)
	}
	if length == 0 {
		return addr.Range{}, fmt.Errorf("%w: zero length", ErrRangeConflict)
	}

	startAddr := sp.Addr(start)
	end, err := startAddr.Add(length - 1)
	if err != nil {
		return addr.Range{}, fmt.Errorf("%w: %v", ErrOverflow, err)
	}
	if sp.ImageBase != 0 && start < sp.ImageBase && end.Offset >= sp.ImageBase {
		return addr.Range{}, fmt.Errorf("%w: %s would span the image base", ErrRangeConflict, sp.Name)
	}

	r, err := addr.NewRange(startAddr, end)
	if err != nil {
		return addr.Range{}, fmt.Errorf("%w: %v", ErrRangeConflict, err)
	}

	for _, existing := range m.current().addrSet.Ranges() {
		if existing.Start.Space == sp && existing.Intersects(r) {
			return addr.Range{}, fmt.Errorf("%w: %s overlaps an existing block", ErrRangeConflict, r)
		}
	}

	return r, nil
}

func (m *MemoryMap) checkBinarySize(additional uint64) error {
	if m.current().addrSet.NumAddresses()+additional > MaxBinarySize {
		return fmt.Errorf("%w: total covered addresses would exceed %d bytes", ErrRangeConflict, MaxBinarySize)
	}
	return nil
}

// CreateInitializedBlock persists a new Default or Overlay block and seeds
// it from src (or, if src is nil, fill repeated Length times), honoring a
// caller-supplied cancellation monitor.
func (m *MemoryMap) CreateInitializedBlock(spec BlockSpec, src io.Reader, fill byte, mon monitor.TaskMonitor) (block.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkExclusiveAccess(); err != nil {
		return nil, err
	}

	if spec.Length > MaxInitializedBlockSize {
		return nil, fmt.Errorf("%w: length %d exceeds MaxInitializedBlockSize", ErrRangeConflict, spec.Length)
	}
	if err := m.checkBinarySize(spec.Length); err != nil {
		return nil, err
	}

	sp, err := m.factory.GetSpace(spec.Space)
	if err != nil {
		return nil, err
	}

	destSpace := sp
	start := spec.Start
	kind := store.KindDefault

	if spec.Overlay {
		ov, err := m.factory.CreateOverlaySpace(spec.OverlaySpaceName, sp, spec.Start, spec.Start+spec.Length-1)
		if err != nil {
			if errors.Is(err, addr.ErrDuplicateName) {
				return nil, fmt.Errorf("%w: %v", ErrDuplicateName, err)
			}
			return nil, err
		}
		destSpace = ov
		start = 0
		kind = store.KindOverlay
	} else if _, err := m.checkRange(sp, spec.Start, spec.Length, true); err != nil {
		return nil, err
	}

	if src == nil {
		src = fillReader{fill: fill}
	}
	src = monitor.Reader(io.LimitReader(src, int64(spec.Length)), mon)

	rec := store.BlockRecord{
		Kind:        kind,
		Name:        spec.Name,
		Space:       destSpace.Name,
		Start:       start,
		Length:      spec.Length,
		Perms:       spec.Perms,
		Initialized: true,
	}

	created, err := m.adapter.CreateBlock(rec, src)
	if err != nil {
		if errors.Is(err, monitor.ErrCancelled) {
			return nil, monitor.ErrCancelled
		}
		se := &store.StoreError{Op: "CreateBlock", Err: err}
		m.reportDBError(se)
		return nil, se
	}

	if err := m.rebuild(); err != nil {
		return nil, err
	}

	b := m.current().blockByID[created.ID]
	m.bus.Post(Event{Type: BlockAdded, Name: b.Name(), Start: b.Start(), End: b.End()})

	return b, nil
}

// CreateUninitializedBlock persists a new Default or Overlay block with no
// backing bytes.
func (m *MemoryMap) CreateUninitializedBlock(spec BlockSpec) (block.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkExclusiveAccess(); err != nil {
		return nil, err
	}

	if spec.Length > MaxUninitializedBlockSize {
		return nil, fmt.Errorf("%w: length %d exceeds MaxUninitializedBlockSize", ErrRangeConflict, spec.Length)
	}
	if err := m.checkBinarySize(spec.Length); err != nil {
		return nil, err
	}

	sp, err := m.factory.GetSpace(spec.Space)
	if err != nil {
		return nil, err
	}

	destSpace := sp
	start := spec.Start
	kind := store.KindDefault

	if spec.Overlay {
		ov, err := m.factory.CreateOverlaySpace(spec.OverlaySpaceName, sp, spec.Start, spec.Start+spec.Length-1)
		if err != nil {
			if errors.Is(err, addr.ErrDuplicateName) {
				return nil, fmt.Errorf("%w: %v", ErrDuplicateName, err)
			}
			return nil, err
		}
		destSpace = ov
		start = 0
		kind = store.KindOverlay
	} else if _, err := m.checkRange(sp, spec.Start, spec.Length, true); err != nil {
		return nil, err
	}

	rec := store.BlockRecord{
		Kind:   kind,
		Name:   spec.Name,
		Space:  destSpace.Name,
		Start:  start,
		Length: spec.Length,
		Perms:  spec.Perms,
	}

	created, err := m.adapter.CreateBlock(rec, nil)
	if err != nil {
		se := &store.StoreError{Op: "CreateBlock", Err: err}
		m.reportDBError(se)
		return nil, se
	}

	if err := m.rebuild(); err != nil {
		return nil, err
	}

	b := m.current().blockByID[created.ID]
	m.bus.Post(Event{Type: BlockAdded, Name: b.Name(), Start: b.Start(), End: b.End()})

	return b, nil
}

func (m *MemoryMap) createMapped(spec BlockSpec, kind store.Kind, targetSpace string, targetOffset uint64) (block.Block, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkExclusiveAccess(); err != nil {
		return nil, err
	}

	sp, err := m.factory.GetSpace(spec.Space)
	if err != nil {
		return nil, err
	}
	if _, err := m.checkRange(sp, spec.Start, spec.Length, false); err != nil {
		return nil, err
	}

	tsp, err := m.factory.GetSpace(targetSpace)
	if err != nil {
		return nil, err
	}

	span := spec.Length
	if kind == store.KindBitMapped {
		span = (spec.Length + 7) / 8
	}
	if span == 0 {
		return nil, fmt.Errorf("%w: zero target span", ErrRangeConflict)
	}
	if _, err := tsp.Addr(targetOffset).Add(span - 1); err != nil {
		return nil, fmt.Errorf("%w: mapping target overflows %s", ErrOverflow, tsp.Name)
	}

	rec := store.BlockRecord{
		Kind:         kind,
		Name:         spec.Name,
		Space:        sp.Name,
		Start:        spec.Start,
		Length:       spec.Length,
		Perms:        spec.Perms,
		Mapped:       true,
		TargetSpace:  tsp.Name,
		TargetOffset: targetOffset,
	}

	created, err := m.adapter.CreateBlock(rec, nil)
	if err != nil {
		se := &store.StoreError{Op: "CreateBlock", Err: err}
		m.reportDBError(se)
		return nil, se
	}

	if err := m.rebuild(); err != nil {
		return nil, err
	}

	b := m.current().blockByID[created.ID]
	m.bus.Post(Event{Type: BlockAdded, Name: b.Name(), Start: b.Start(), End: b.End()})

	return b, nil
}

// CreateBitMappedBlock persists a new bit-mapped block forwarding to
// ceil(Length/8) bytes at targetSpace:targetOffset.
func (m *MemoryMap) CreateBitMappedBlock(spec BlockSpec, targetSpace string, targetOffset uint64) (block.Block, error) {
	return m.createMapped(spec, store.KindBitMapped, targetSpace, targetOffset)
}

// CreateByteMappedBlock persists a new byte-mapped block forwarding 1:1 to
// Length bytes at targetSpace:targetOffset.
func (m *MemoryMap) CreateByteMappedBlock(spec BlockSpec, targetSpace string, targetOffset uint64) (block.Block, error) {
	return m.createMapped(spec, store.KindByteMapped, targetSpace, targetOffset)
}

// MoveBlock relocates block id to newStart, rejecting overlay blocks,
// overlay destinations, live-memory activity, and destinations that
// intersect coverage outside the block's own current range.
func (m *MemoryMap) MoveBlock(id uint32, newStart addr.Address) error {
	if m.IsLiveMemoryActive() {
		return ErrStateConflict
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkExclusiveAccess(); err != nil {
		return err
	}

	b, ok := m.current().blockByID[id]
	if !ok {
		return fmt.Errorf("%w: block %d", ErrNotFound, id)
	}
	mover, ok := b.(block.Mover)
	if !ok {
		return fmt.Errorf("%w: %s cannot be moved", ErrInvalidKind, b.Name())
	}
	if newStart.Space.IsOverlay() {
		return fmt.Errorf("%w: destination %s is an overlay space", ErrRangeConflict, newStart.Space.Name)
	}

	end, err := newStart.Add(b.Length() - 1)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOverflow, err)
	}
	destRange, err := addr.NewRange(newStart, end)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRangeConflict, err)
	}
	ownRange, _ := addr.NewRange(b.Start(), b.End())

	// The destination must not intersect addr_set minus the block's own
	// current range; subtracting first also handles the case where the
	// block's range was coalesced with a neighbor's inside the set.
	for _, existing := range m.current().addrSet.Remove(ownRange).Ranges() {
		if existing.Start.Space == newStart.Space && existing.Intersects(destRange) {
			return fmt.Errorf("%w: destination %s overlaps an existing block", ErrRangeConflict, destRange)
		}
	}

	oldStart := b.Start()
	if err := mover.SetStart(newStart); err != nil {
		return translateBlockErr(err)
	}

	rec := b.Record()
	rec.Space = newStart.Space.Name
	rec.Start = newStart.Offset
	if err := m.adapter.Update(rec); err != nil {
		se := &store.StoreError{Op: "Update", ID: id, Err: err}
		m.reportDBError(se)
		return se
	}

	if err := m.rebuild(); err != nil {
		return err
	}

	m.bus.Post(Event{Type: BlockMoved, Name: b.Name(), Start: newStart, End: end, OldStart: oldStart})
	m.program.MigrateReferences(oldStart, newStart, b.Length())

	return nil
}

// Split divides block id at at into two adjacent blocks.
func (m *MemoryMap) Split(id uint32, at addr.Address) (block.Block, block.Block, error) {
	if m.IsLiveMemoryActive() {
		return nil, nil, ErrStateConflict
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkExclusiveAccess(); err != nil {
		return nil, nil, err
	}

	b, ok := m.current().blockByID[id]
	if !ok {
		return nil, nil, fmt.Errorf("%w: block %d", ErrNotFound, id)
	}
	splitter, ok := b.(block.Splitter)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s cannot be split", ErrInvalidKind, b.Name())
	}

	left, right, err := splitter.Split(at)
	if err != nil {
		return nil, nil, translateBlockErr(err)
	}

	var rightSrc io.Reader
	if b.Initialized() {
		buf := make([]byte, right.Length())
		n, rerr := m.adapter.Read(b.ID(), left.Length(), buf)
		if rerr != nil {
			se := &store.StoreError{Op: "Read", ID: b.ID(), Err: rerr}
			m.reportDBError(se)
			return nil, nil, se
		}
		if uint64(n) != right.Length() {
			return nil, nil, fmt.Errorf("%w: short read splitting %s", ErrAccessDenied, b.Name())
		}
		rightSrc = bytes.NewReader(buf)
	}

	rightRec := right.Record()
	rightRec.ID = 0
	created, err := m.adapter.CreateBlock(rightRec, rightSrc)
	if err != nil {
		se := &store.StoreError{Op: "CreateBlock", Err: err}
		m.reportDBError(se)
		return nil, nil, se
	}

	leftRec := left.Record()
	if err := m.adapter.Update(leftRec); err != nil {
		se := &store.StoreError{Op: "Update", ID: leftRec.ID, Err: err}
		m.reportDBError(se)
		return nil, nil, se
	}

	if err := m.rebuild(); err != nil {
		return nil, nil, err
	}

	leftB := m.current().blockByID[leftRec.ID]
	rightB := m.current().blockByID[created.ID]
	m.bus.Post(Event{Type: BlockSplit, Name: b.Name(), Start: b.Start(), End: b.End()})

	return leftB, rightB, nil
}

// Join merges the blocks aID and bID, identified in either order, into
// one. The joined record is created before either source record is
// deleted, so a failure between the two deletes leaves the joined content
// persisted rather than losing it.
func (m *MemoryMap) Join(aID, bID uint32) (block.Block, error) {
	if m.IsLiveMemoryActive() {
		return nil, ErrStateConflict
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkExclusiveAccess(); err != nil {
		return nil, err
	}

	a, ok := m.current().blockByID[aID]
	if !ok {
		return nil, fmt.Errorf("%w: block %d", ErrNotFound, aID)
	}
	b, ok := m.current().blockByID[bID]
	if !ok {
		return nil, fmt.Errorf("%w: block %d", ErrNotFound, bID)
	}

	first, second := a, b
	if second.Start().Less(first.Start()) {
		first, second = second, first
	}

	joiner, ok := first.(block.Joiner)
	if !ok {
		return nil, fmt.Errorf("%w: %s cannot be joined", ErrInvalidKind, first.Name())
	}

	joined, err := joiner.Join(second)
	if err != nil {
		return nil, translateBlockErr(err)
	}

	var src io.Reader
	if first.Initialized() {
		buf := make([]byte, joined.Length())
		n1, err := m.adapter.Read(first.ID(), 0, buf[:first.Length()])
		if err != nil || uint64(n1) != first.Length() {
			se := &store.StoreError{Op: "Read", ID: first.ID(), Err: err}
			m.reportDBError(se)
			return nil, se
		}
		n2, err := m.adapter.Read(second.ID(), 0, buf[first.Length():])
		if err != nil || uint64(n2) != second.Length() {
			se := &store.StoreError{Op: "Read", ID: second.ID(), Err: err}
			m.reportDBError(se)
			return nil, se
		}
		src = bytes.NewReader(buf)
	}

	rec := joined.Record()
	rec.ID = 0
	created, err := m.adapter.CreateBlock(rec, src)
	if err != nil {
		se := &store.StoreError{Op: "CreateBlock", Err: err}
		m.reportDBError(se)
		return nil, se
	}

	if err := m.adapter.Delete(first.ID()); err != nil {
		se := &store.StoreError{Op: "Delete", ID: first.ID(), Err: err}
		m.reportDBError(se)
		return nil, se
	}
	if err := m.adapter.Delete(second.ID()); err != nil {
		se := &store.StoreError{Op: "Delete", ID: second.ID(), Err: err}
		m.reportDBError(se)
		return nil, se
	}

	if err := m.rebuild(); err != nil {
		return nil, err
	}

	joinedB := m.current().blockByID[created.ID]
	m.bus.Post(Event{Type: BlocksJoined, Name: joinedB.Name(), Start: joinedB.Start(), End: joinedB.End()})

	return joinedB, nil
}

// ConvertToInitialized fills block id with fill and marks it initialized
// (Default/Overlay only).
func (m *MemoryMap) ConvertToInitialized(id uint32, fill byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkExclusiveAccess(); err != nil {
		return err
	}

	b, ok := m.current().blockByID[id]
	if !ok {
		return fmt.Errorf("%w: block %d", ErrNotFound, id)
	}
	if b.Length() > MaxInitializedBlockSize {
		return fmt.Errorf("%w: %s exceeds MaxInitializedBlockSize", ErrRangeConflict, b.Name())
	}
	toggle, ok := b.(block.InitToggle)
	if !ok {
		return fmt.Errorf("%w: %s cannot be initialized", ErrInvalidKind, b.Name())
	}

	if err := toggle.Initialize(fill); err != nil {
		return translateBlockErr(err)
	}
	if err := m.rebuild(); err != nil {
		return err
	}

	m.bus.Post(Event{Type: BlockChanged, Name: b.Name(), Start: b.Start(), End: b.End()})
	m.bus.Post(Event{Type: BytesChanged, Name: b.Name(), Start: b.Start(), End: b.End()})

	return nil
}

// ConvertToUninitialized drops block id's backing bytes (Default/Overlay
// only).
func (m *MemoryMap) ConvertToUninitialized(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkExclusiveAccess(); err != nil {
		return err
	}

	b, ok := m.current().blockByID[id]
	if !ok {
		return fmt.Errorf("%w: block %d", ErrNotFound, id)
	}
	toggle, ok := b.(block.InitToggle)
	if !ok {
		return fmt.Errorf("%w: %s cannot be uninitialized", ErrInvalidKind, b.Name())
	}

	if err := toggle.Uninitialize(); err != nil {
		return translateBlockErr(err)
	}
	if err := m.rebuild(); err != nil {
		return err
	}

	m.bus.Post(Event{Type: BlockChanged, Name: b.Name(), Start: b.Start(), End: b.End()})
	m.bus.Post(Event{Type: BytesChanged, Name: b.Name(), Start: b.Start(), End: b.End()})

	return nil
}

// RemoveBlock deletes block id, and if it resided in an overlay space that
// removal emptied, asks the factory to drop that space too.
func (m *MemoryMap) RemoveBlock(id uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkExclusiveAccess(); err != nil {
		return err
	}

	b, ok := m.current().blockByID[id]
	if !ok {
		return fmt.Errorf("%w: block %d", ErrNotFound, id)
	}
	sp := b.Start().Space

	if err := m.adapter.Delete(id); err != nil {
		se := &store.StoreError{Op: "Delete", ID: id, Err: err}
		m.reportDBError(se)
		return se
	}

	if err := m.rebuild(); err != nil {
		return err
	}

	m.bus.Post(Event{Type: BlockRemoved, Name: b.Name(), Start: b.Start(), End: b.End()})

	if sp.IsOverlay() {
		stillUsed := false
		for _, blk := range m.current().blocks {
			if blk.Start().Space == sp {
				stillUsed = true
				break
			}
		}
		if !stillUsed {
			_ = m.factory.RemoveOverlaySpace(sp)
		}
	}

	return nil
}
