// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmap

import "github.com/memspace/binmap/addr"

// EventType enumerates the change events a mutator posts to the change
// bus after a successful mutation.
type EventType uint8

const (
	BlockAdded EventType = iota
	BlockRemoved
	BlockChanged
	BlockSplit
	BlocksJoined
	BlockMoved
	BytesChanged
)

func (t EventType) String() string {
	switch t {
	case BlockAdded:
		return "block-added"
	case BlockRemoved:
		return "block-removed"
	case BlockChanged:
		return "block-changed"
	case BlockSplit:
		return "block-split"
	case BlocksJoined:
		return "blocks-joined"
	case BlockMoved:
		return "block-moved"
	case BytesChanged:
		return "bytes-changed"
	default:
		return "unknown-event"
	}
}

// Event is posted to the ChangeBus after a mutation's snapshot has been
// published. OldStart is only meaningful for BlockMoved.
type Event struct {
	Type     EventType
	Name     string
	Start    addr.Address
	End      addr.Address
	OldStart addr.Address
}

// ChangeBus is the external, single-writer-ordered change event stream.
// Post must not call back into any memmap mutator.
type ChangeBus interface {
	Post(Event)
}

// noopBus discards every event; it is the default when no bus is
// supplied, so callers that don't care about events don't need a no-op
// implementation of their own.
type noopBus struct{}

func (noopBus) Post(Event) {}
