// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmap

import "github.com/memspace/binmap/addr"

// Instruction is the minimal view of a decoded instruction the memory map
// needs in order to reject writes that would corrupt code.
type Instruction interface {
	Start() addr.Address
	End() addr.Address
}

// CodeManager is the read-only collaborator consulted before a write to
// ensure it doesn't overlap a decoded instruction. A nil CodeManager (the
// default) never rejects a write on these grounds.
type CodeManager interface {
	InstructionContaining(a addr.Address) (Instruction, bool)
	InstructionAfter(a addr.Address) (Instruction, bool)
	MemoryChanged(start, end addr.Address)
}

// DBErrorHandler is invoked on adapter I/O failure so the containing
// program can escalate it. Every public mutator still returns the
// *store.StoreError to its direct caller too: the handler is an
// additional, fire-and-forget escalation path for adapter failures
// discovered during Refresh, during rebuild, and in the mutators' own
// CreateBlock/Update/Delete/Read calls. Adapter failures inside
// ConvertToInitialized/ConvertToUninitialized are returned only.
type DBErrorHandler func(error)

// Program is the containing-program collaborator: every mutator checks
// exclusive access against it before touching anything, and MoveBlock
// asks it to migrate cross-references out of the vacated range. A nil
// CodeManager/ChangeBus already default to a no-op; Program follows the
// same shape via noopProgram below.
type Program interface {
	// CheckExclusiveAccess reports whether the calling goroutine holds
	// the program's exclusive lock. Implementations return
	// ErrLockViolation (or a wrapping of it) when it does not.
	CheckExclusiveAccess() error

	// MigrateReferences is called after a successful MoveBlock so the
	// program can rewrite any cross-references that pointed into
	// [oldStart, oldStart+length-1] to point into the corresponding
	// offset of [newStart, newStart+length-1].
	MigrateReferences(oldStart, newStart addr.Address, length uint64)
}

// noopProgram grants exclusive access unconditionally and discards
// migration notifications; it is the default when no Program is supplied,
// the same role noopBus plays for ChangeBus.
type noopProgram struct{}

func (noopProgram) CheckExclusiveAccess() error { return nil }

func (noopProgram) MigrateReferences(oldStart, newStart addr.Address, length uint64) {}
