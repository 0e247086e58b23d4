// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package livemem defines the live-memory override: an optional handler
// that, once installed on a memory map, supersedes block-backed I/O and
// reports every covered address as initialized.
package livemem

import "github.com/memspace/binmap/addr"

// Listener is notified when bytes change underneath a live-memory
// handler, e.g. because the debuggee resumed and stepped.
type Listener interface {
	MemoryChanged(start, end addr.Address)
}

// Handler is the live-memory override contract. When installed on a
// memory map, byte reads and writes delegate to it regardless of block
// kind, and coverage queries report every covered address as initialized
// without mutating the map's own coverage sets.
type Handler interface {
	GetByte(a addr.Address) (byte, error)
	GetBytes(a addr.Address, dst []byte) (int, error)
	PutByte(a addr.Address, v byte) error
	PutBytes(a addr.Address, src []byte) (int, error)
	ClearCache()
	AddListener(l Listener)
	RemoveListener(l Listener)
}

// Loopback is a reference Handler that reads and writes an in-process byte
// map keyed by address, useful for tests. It never fails.
type Loopback struct {
	cells     map[addr.Address]byte
	listeners []Listener
}

// NewLoopback returns an empty Loopback handler.
func NewLoopback() *Loopback {
	return &Loopback{cells: make(map[addr.Address]byte)}
}

func (l *Loopback) GetByte(a addr.Address) (byte, error) {
	return l.cells[a], nil
}

func (l *Loopback) GetBytes(a addr.Address, dst []byte) (int, error) {
	for i := range dst {
		cur, err := a.Add(uint64(i))
		if err != nil {
			return i, nil
		}
		dst[i] = l.cells[cur]
	}
	return len(dst), nil
}

func (l *Loopback) PutByte(a addr.Address, v byte) error {
	l.cells[a] = v
	l.notify(a, a)
	return nil
}

func (l *Loopback) PutBytes(a addr.Address, src []byte) (int, error) {
	end := a
	for i, v := range src {
		cur, err := a.Add(uint64(i))
		if err != nil {
			return i, nil
		}
		l.cells[cur] = v
		end = cur
	}
	l.notify(a, end)
	return len(src), nil
}

func (l *Loopback) ClearCache() {}

func (l *Loopback) AddListener(listener Listener) {
	l.listeners = append(l.listeners, listener)
}

func (l *Loopback) RemoveListener(listener Listener) {
	for i, existing := range l.listeners {
		if existing == listener {
			l.listeners = append(l.listeners[:i], l.listeners[i+1:]...)
			return
		}
	}
}

func (l *Loopback) notify(start, end addr.Address) {
	for _, listener := range l.listeners {
		listener.MemoryChanged(start, end)
	}
}
