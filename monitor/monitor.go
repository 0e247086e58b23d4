// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package monitor defines the cancellation contract used by long-running
// memmap operations: create-block byte streaming and byte-pattern search.
package monitor

import (
	"errors"
	"io"
	"sync/atomic"
)

// ErrCancelled is returned when a TaskMonitor cancels an in-progress
// operation.
var ErrCancelled = errors.New("monitor: cancelled")

// TaskMonitor lets a caller cancel a long-running operation. Cancelled is
// polled at safe points (between search candidates, and by a wrapped
// io.Reader during create-block byte streaming); it must be
// safe to call from any goroutine.
type TaskMonitor interface {
	Cancelled() bool
}

// Nop never cancels. It is the default monitor used when callers don't
// supply one.
var Nop TaskMonitor = nopMonitor{}

type nopMonitor struct{}

func (nopMonitor) Cancelled() bool { return false }

// Flag is a concrete, atomic TaskMonitor a caller can cancel from another
// goroutine by calling Cancel.
type Flag struct {
	cancelled atomic.Bool
}

// Cancel marks the monitor cancelled. Idempotent.
func (f *Flag) Cancel() { f.cancelled.Store(true) }

// Cancelled implements TaskMonitor.
func (f *Flag) Cancelled() bool { return f.cancelled.Load() }

// cancellableReader wraps an io.Reader so that Read returns ErrCancelled
// once m cancels, instead of delivering more bytes. CreateInitializedBlock
// wraps its source stream this way so a cancelled create does not keep
// streaming megabytes of backing bytes after the caller gave up.
type cancellableReader struct {
	r io.Reader
	m TaskMonitor
}

// Reader wraps r so reads fail with ErrCancelled once m reports cancelled.
// If m is nil or Nop, r is returned unwrapped.
func Reader(r io.Reader, m TaskMonitor) io.Reader {
	if m == nil || m == Nop {
		return r
	}
	return &cancellableReader{r: r, m: m}
}

func (c *cancellableReader) Read(p []byte) (int, error) {
	if c.m.Cancelled() {
		return 0, ErrCancelled
	}
	return c.r.Read(p)
}
