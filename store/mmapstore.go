// Copyright 2019 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"io"
	"sort"
	"sync"

	"github.com/edsrzf/mmap-go"
)

// Requests are served out of minAllocSize-byte anonymous mappings,
// rounded up to allocationAlignment, with a new mapping created whenever
// the current one can't satisfy the request.
const (
	minAllocSize        = 64 * 1024
	allocationAlignment = 16
)

type memRegion struct {
	mem      mmap.MMap
	consumed uint32
}

func (r *memRegion) remaining() uint32 {
	return uint32(len(r.mem)) - r.consumed
}

// allocate carves n bytes (rounded up to allocationAlignment) out of r,
// returning the sub-slice, or nil if r cannot satisfy the request.
func (r *memRegion) allocate(n uint32) []byte {
	aligned := (n + allocationAlignment - 1) &^ (allocationAlignment - 1)
	if aligned == 0 {
		aligned = allocationAlignment
	}
	if r.remaining() < aligned {
		return nil
	}
	b := r.mem[r.consumed : r.consumed+n : r.consumed+aligned]
	r.consumed += aligned

	return b
}

// MMapAdapter is a block storage Adapter whose backing bytes live in
// anonymous mmap'd regions instead of plain Go heap slices, keeping large
// program images off the garbage-collected heap. Regions are carved out
// by a chunked allocator and unmapped together on Close.
type MMapAdapter struct {
	mu      sync.Mutex
	records map[uint32]BlockRecord
	slices  map[uint32][]byte
	regions []*memRegion
	nextID  uint32
}

// NewMMapAdapter returns an empty MMapAdapter.
func NewMMapAdapter() *MMapAdapter {
	return &MMapAdapter{
		records: make(map[uint32]BlockRecord),
		slices:  make(map[uint32][]byte),
		nextID:  1,
	}
}

// Close unmaps every region the adapter allocated. Callers must not use
// the adapter, or any bytes it handed out, afterwards.
func (a *MMapAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var first error
	for _, r := range a.regions {
		if err := r.mem.Unmap(); err != nil && first == nil {
			first = err
		}
	}
	a.regions = nil

	return first
}

func (a *MMapAdapter) allocate(n uint64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if n > (1 << 32) {
		return nil, &StoreError{Op: "allocate", Err: io.ErrShortBuffer}
	}
	sz := uint32(n)

	if len(a.regions) > 0 {
		last := a.regions[len(a.regions)-1]
		if b := last.allocate(sz); b != nil {
			return b, nil
		}
	}

	regionSize := uint32(minAllocSize)
	if sz+allocationAlignment > regionSize {
		regionSize = sz + allocationAlignment
	}

	m, err := mmap.MapRegion(nil, int(regionSize), mmap.RDWR, mmap.ANON, 0)
	if err != nil {
		return nil, &StoreError{Op: "allocate", Err: err}
	}

	region := &memRegion{mem: m}
	a.regions = append(a.regions, region)

	return region.allocate(sz), nil
}

func (a *MMapAdapter) LoadAll() ([]BlockRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]BlockRecord, 0, len(a.records))
	for _, r := range a.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Space != out[j].Space {
			return out[i].Space < out[j].Space
		}
		return out[i].Start < out[j].Start
	})

	return out, nil
}

// Refresh is a no-op: this adapter has no external source of truth.
func (a *MMapAdapter) Refresh() error { return nil }

func (a *MMapAdapter) CreateBlock(rec BlockRecord, r io.Reader) (BlockRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec.ID = a.nextID
	a.nextID++

	if rec.Initialized && !rec.Mapped {
		buf, err := a.allocate(rec.Length)
		if err != nil {
			return BlockRecord{}, err
		}
		if r != nil {
			if _, err := io.ReadFull(r, buf); err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
				return BlockRecord{}, &StoreError{Op: "CreateBlock", ID: rec.ID, Err: err}
			}
		}
		a.slices[rec.ID] = buf
	}
	a.records[rec.ID] = rec

	return rec, nil
}

func (a *MMapAdapter) Delete(id uint32) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	delete(a.records, id)
	delete(a.slices, id)

	return nil
}

func (a *MMapAdapter) Update(rec BlockRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	old, ok := a.records[rec.ID]
	if !ok {
		return &StoreError{Op: "Update", ID: rec.ID, Err: io.ErrClosedPipe}
	}

	if rec.Length != old.Length && rec.Initialized && !rec.Mapped {
		cur := a.slices[rec.ID]
		buf, err := a.allocate(rec.Length)
		if err != nil {
			return err
		}
		copy(buf, cur)
		a.slices[rec.ID] = buf
	}
	a.records[rec.ID] = rec

	if !rec.Initialized {
		delete(a.slices, rec.ID)
	} else if _, ok := a.slices[rec.ID]; !ok && !rec.Mapped {
		buf, err := a.allocate(rec.Length)
		if err != nil {
			return err
		}
		a.slices[rec.ID] = buf
	}

	return nil
}

func (a *MMapAdapter) Read(id uint32, offset uint64, dst []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.slices[id]
	if !ok || offset >= uint64(len(buf)) {
		return 0, nil
	}

	return copy(dst, buf[offset:]), nil
}

func (a *MMapAdapter) Write(id uint32, offset uint64, src []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.slices[id]
	if !ok || offset >= uint64(len(buf)) {
		return 0, nil
	}

	return copy(buf[offset:], src), nil
}
