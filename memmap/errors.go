// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmap

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by map operations. Each is wrapped with
// context via fmt.Errorf("%w: ...") at the call site.
var (
	// ErrAccessDenied: write would overlap an instruction, or the address
	// isn't covered / isn't initialized.
	ErrAccessDenied = errors.New("memmap: access denied")
	// ErrRangeConflict: new/moved block intersects existing coverage, or
	// spans the image base.
	ErrRangeConflict = errors.New("memmap: range conflict")
	// ErrOverflow: address arithmetic exceeds its space.
	ErrOverflow = errors.New("memmap: address overflow")
	// ErrDuplicateName: overlay space name already used.
	ErrDuplicateName = errors.New("memmap: duplicate name")
	// ErrInvalidKind: operation illegal for this block kind.
	ErrInvalidKind = errors.New("memmap: invalid operation for block kind")
	// ErrLockViolation: caller lacks exclusive access to the program.
	ErrLockViolation = errors.New("memmap: caller lacks exclusive access")
	// ErrNotFound: block is not a member of this map.
	ErrNotFound = errors.New("memmap: block not found")
	// ErrStateConflict: operation forbidden while a live-memory handler is
	// active.
	ErrStateConflict = errors.New("memmap: forbidden while live memory is active")
)

// MemoryAccessError reports a failed read or write along with the
// offending address. It matches ErrAccessDenied under errors.Is.
type MemoryAccessError struct {
	Addr fmt.Stringer
	Err  error
}

func (e *MemoryAccessError) Error() string {
	return fmt.Sprintf("memmap: %s: %v", e.Addr, e.Err)
}

func (e *MemoryAccessError) Unwrap() error { return e.Err }

func (e *MemoryAccessError) Is(target error) bool {
	return target == ErrAccessDenied
}
