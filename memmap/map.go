// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memmap models the address space of an analyzed binary as a
// sorted set of named, typed memory blocks: block membership,
// address-to-block lookup, coverage sets, mapped-block projection, the
// high-level create/split/join/move/remove/convert mutators, typed scalar
// I/O over the block set, and the live-memory override.
package memmap

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/block"
	"github.com/memspace/binmap/endian"
	"github.com/memspace/binmap/livemem"
	"github.com/memspace/binmap/store"
)

// Size limits on blocks and on the total covered address range.
const (
	// MaxInitializedBlockSize is the largest length, in bytes, a single
	// initialized block may have.
	MaxInitializedBlockSize uint64 = 0x7fffffff
	// MaxUninitializedBlockSize is the largest length, in bytes, a single
	// uninitialized block may have.
	MaxUninitializedBlockSize uint64 = 0xffffffff
	// GByteShiftFactor converts a gibibyte count to a byte count by left
	// shift; used to derive MaxBinarySize.
	GByteShiftFactor = 30
	// MaxBinarySizeGB is the largest total covered-address size, in GiB,
	// the map allows across all blocks.
	MaxBinarySizeGB uint64 = 4
	// MaxBinarySize is MaxBinarySizeGB expressed in bytes.
	MaxBinarySize uint64 = MaxBinarySizeGB << GByteShiftFactor
)

// DefaultEndian is the program endian used when a typed read/write omits
// an explicit byte order.
var DefaultEndian = endian.Little

// snapshot is the immutable, atomically-published state rebuild derives.
// Readers load it with a single atomic pointer read and never block a
// concurrent mutator's rebuild.
type snapshot struct {
	blocks        []block.Block
	blockByID     map[uint32]block.Block
	addrSet       *addr.Set
	allInitSet    *addr.Set
	loadedInitSet *addr.Set
}

var emptySnapshot = &snapshot{
	blockByID:     map[uint32]block.Block{},
	addrSet:       addr.NewSet(),
	allInitSet:    addr.NewSet(),
	loadedInitSet: addr.NewSet(),
}

// MemoryMap is the program-wide collection of blocks.
// Every public mutator acquires mu (the "program lock"); read paths that
// only need a consistent snapshot (GetBlock, Contains, the typed I/O
// readers) load the published snapshot instead and never contend with mu.
type MemoryMap struct {
	factory *addr.Factory
	adapter store.Adapter

	mu sync.Mutex // the coarse "program lock"; held across every mutator

	snap      atomic.Pointer[snapshot]
	lastBlock atomic.Pointer[block.Block]

	codeMgr    CodeManager
	bus        ChangeBus
	dbErr      DBErrorHandler
	program    Program
	progEndian endian.Order

	live atomic.Pointer[livemem.Handler]
}

// Option configures a MemoryMap at construction time.
type Option func(*MemoryMap)

// WithCodeManager installs the collaborator consulted to reject writes
// that would corrupt a decoded instruction.
func WithCodeManager(cm CodeManager) Option {
	return func(m *MemoryMap) { m.codeMgr = cm }
}

// WithChangeBus installs the change-event sink.
func WithChangeBus(bus ChangeBus) Option {
	return func(m *MemoryMap) { m.bus = bus }
}

// WithDBErrorHandler installs the fatal-adapter-error escalation hook.
func WithDBErrorHandler(h DBErrorHandler) Option {
	return func(m *MemoryMap) { m.dbErr = h }
}

// WithProgram installs the collaborator consulted for exclusive-access
// checks and notified after a successful MoveBlock.
func WithProgram(p Program) Option {
	return func(m *MemoryMap) { m.program = p }
}

// WithProgramEndian overrides the default endian used by typed I/O calls
// that omit an explicit byte order. Programs default to little-endian.
func WithProgramEndian(o endian.Order) Option {
	return func(m *MemoryMap) { m.progEndian = o }
}

// New opens a memory map over adapter's persisted blocks, using factory to
// resolve the address spaces those blocks live in.
func New(factory *addr.Factory, adapter store.Adapter, opts ...Option) (*MemoryMap, error) {
	m := &MemoryMap{
		factory:    factory,
		adapter:    adapter,
		bus:        noopBus{},
		program:    noopProgram{},
		progEndian: DefaultEndian,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.snap.Store(emptySnapshot)

	if err := m.rebuild(); err != nil {
		return nil, err
	}

	return m, nil
}

// Factory returns the address-space factory this map resolves blocks
// against.
func (m *MemoryMap) Factory() *addr.Factory { return m.factory }

// ProgramEndian returns the default byte order used by typed I/O.
func (m *MemoryMap) ProgramEndian() endian.Order { return m.progEndian }

// Refresh re-reads every persisted record from the adapter (e.g. after an
// external change) and rebuilds the published snapshot. Per design note
// (c), a fresh implementation always refreshes unconditionally rather than
// relying on in-memory records already having been updated.
func (m *MemoryMap) Refresh() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.adapter.Refresh(); err != nil {
		se := &store.StoreError{Op: "Refresh", Err: err}
		m.reportDBError(se)
		return se
	}
	return m.rebuild()
}

func (m *MemoryMap) reportDBError(err error) {
	if m.dbErr != nil {
		m.dbErr(err)
	}
}

// checkExclusiveAccess consults the installed Program. Callers invoke this
// right after acquiring mu and before validating or applying a mutation.
// With no Program installed, access is always granted.
func (m *MemoryMap) checkExclusiveAccess() error {
	if err := m.program.CheckExclusiveAccess(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockViolation, err)
	}
	return nil
}

// rebuild is the core derivation: it loads every persisted
// record, resolves each into a concrete block.Block, and recomputes the
// three coverage sets, publishing all of it as one atomic snapshot and
// invalidating the recency cache. Callers must hold mu.
func (m *MemoryMap) rebuild() error {
	records, err := m.adapter.LoadAll()
	if err != nil {
		se := &store.StoreError{Op: "LoadAll", Err: err}
		m.reportDBError(se)
		return se
	}

	next := &snapshot{
		blockByID:     make(map[uint32]block.Block, len(records)),
		addrSet:       addr.NewSet(),
		allInitSet:    addr.NewSet(),
		loadedInitSet: addr.NewSet(),
	}

	spaceOf := func(name string) (*addr.Space, error) { return m.factory.GetSpace(name) }

	blocks := make([]block.Block, 0, len(records))
	var mapped []block.Mapped

	for _, rec := range records {
		b, err := block.New(rec, spaceOf, m.adapter, m)
		if err != nil {
			return fmt.Errorf("memmap: rebuild: %w", err)
		}
		blocks = append(blocks, b)
		next.blockByID[b.ID()] = b

		r, rerr := addr.NewRange(b.Start(), b.End())
		if rerr != nil {
			return fmt.Errorf("memmap: rebuild: %w", rerr)
		}
		next.addrSet = next.addrSet.Add(r)

		if b.Initialized() {
			next.allInitSet = next.allInitSet.Add(r)
			if b.IsLoaded() {
				next.loadedInitSet = next.loadedInitSet.Add(r)
			}
		}
		if mb, ok := b.(block.Mapped); ok {
			mapped = append(mapped, mb)
		}
	}

	sortBlocks(blocks)
	next.blocks = blocks

	next.allInitSet = next.allInitSet.Union(mappedProjection(mapped, next.allInitSet))
	next.loadedInitSet = next.loadedInitSet.Union(mappedProjection(mapped, next.loadedInitSet))

	m.snap.Store(next)
	m.lastBlock.Store(nil)

	return nil
}

func sortBlocks(blocks []block.Block) {
	// insertion sort into Address.Less order (space registration order,
	// then offset); adapters may return records in another order, e.g.
	// MemStore sorts by space name.
	for i := 1; i < len(blocks); i++ {
		for j := i; j > 0 && blocks[j].Start().Less(blocks[j-1].Start()); j-- {
			blocks[j], blocks[j-1] = blocks[j-1], blocks[j]
		}
	}
}

func (m *MemoryMap) current() *snapshot {
	s := m.snap.Load()
	if s == nil {
		return emptySnapshot
	}
	return s
}

// SetLiveMemoryHandler installs h, short-circuiting all block-backed I/O.
// Pass nil to ClearLiveMemoryHandler instead.
func (m *MemoryMap) SetLiveMemoryHandler(h livemem.Handler) {
	if h == nil {
		m.live.Store(nil)
		return
	}
	m.live.Store(&h)
}

// ClearLiveMemoryHandler removes any installed live-memory override.
func (m *MemoryMap) ClearLiveMemoryHandler() {
	m.live.Store(nil)
}

// liveHandler returns the installed live-memory handler, or nil.
func (m *MemoryMap) liveHandler() livemem.Handler {
	p := m.live.Load()
	if p == nil {
		return nil
	}
	return *p
}

// IsLiveMemoryActive reports whether a live-memory handler is installed;
// MoveBlock, Split and Join reject while one is.
func (m *MemoryMap) IsLiveMemoryActive() bool {
	return m.liveHandler() != nil
}
