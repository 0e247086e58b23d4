// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memmap

import (
	"fmt"

	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/endian"
	"github.com/memspace/binmap/store"
)

func isMappedKind(k store.Kind) bool {
	return k == store.KindBitMapped || k == store.KindByteMapped
}

func resolveOrder(dflt endian.Order, override []bool) endian.Order {
	if len(override) == 0 {
		return dflt
	}
	if override[0] {
		return endian.Big
	}
	return endian.Little
}

// GetBytes reads up to len(dst) bytes starting at a, spanning block
// boundaries as long as the range stays contiguous and initialized (or
// mapped to initialized storage). If a live-memory handler is installed it
// supersedes block-backed I/O entirely.
func (m *MemoryMap) GetBytes(a addr.Address, dst []byte) (int, error) {
	if h := m.liveHandler(); h != nil {
		return h.GetBytes(a, dst)
	}

	total := 0
	cur := a
	for total < len(dst) {
		b, ok := m.BlockContaining(cur)
		if !ok {
			break
		}
		if !b.Initialized() && !isMappedKind(b.Kind()) {
			break
		}
		n, err := b.GetBytes(cur, dst[total:])
		if err != nil || n == 0 {
			break
		}
		total += n
		if total >= len(dst) {
			break
		}
		next, err := cur.Add(uint64(n))
		if err != nil {
			break
		}
		cur = next
	}

	if total == 0 && len(dst) > 0 {
		return 0, &MemoryAccessError{Addr: a, Err: ErrAccessDenied}
	}

	return total, nil
}

// GetByte reads the single byte at a, failing if no block covers it.
func (m *MemoryMap) GetByte(a addr.Address) (byte, error) {
	var buf [1]byte
	n, err := m.GetBytes(a, buf[:])
	if err != nil {
		return 0, err
	}
	if n != 1 {
		return 0, &MemoryAccessError{Addr: a, Err: ErrAccessDenied}
	}
	return buf[0], nil
}

func (m *MemoryMap) readExact(a addr.Address, n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := m.GetBytes(a, buf)
	if err != nil {
		return nil, err
	}
	if got != n {
		return nil, &MemoryAccessError{Addr: a, Err: ErrAccessDenied}
	}
	return buf, nil
}

// GetShort reads a 16-bit value at a. bigEndian overrides the program's
// default byte order when supplied.
func (m *MemoryMap) GetShort(a addr.Address, bigEndian ...bool) (uint16, error) {
	buf, err := m.readExact(a, endian.SizeShort)
	if err != nil {
		return 0, err
	}
	return endian.GetUint16(buf, resolveOrder(m.progEndian, bigEndian)), nil
}

// GetInt reads a 32-bit value at a.
func (m *MemoryMap) GetInt(a addr.Address, bigEndian ...bool) (uint32, error) {
	buf, err := m.readExact(a, endian.SizeInt)
	if err != nil {
		return 0, err
	}
	return endian.GetUint32(buf, resolveOrder(m.progEndian, bigEndian)), nil
}

// GetLong reads a 64-bit value at a.
func (m *MemoryMap) GetLong(a addr.Address, bigEndian ...bool) (uint64, error) {
	buf, err := m.readExact(a, endian.SizeLong)
	if err != nil {
		return 0, err
	}
	return endian.GetUint64(buf, resolveOrder(m.progEndian, bigEndian)), nil
}

// GetShorts reads up to n 16-bit values starting at a into dst, tolerating
// a short read and decoding floor(bytesRead/2) elements.
func (m *MemoryMap) GetShorts(a addr.Address, dst []uint16, n int, bigEndian ...bool) (int, error) {
	buf := make([]byte, n*endian.SizeShort)
	got, err := m.GetBytes(a, buf)
	if err != nil {
		return 0, err
	}
	return endian.GetUint16s(buf[:got], dst, resolveOrder(m.progEndian, bigEndian)), nil
}

// GetInts is the 32-bit analogue of GetShorts.
func (m *MemoryMap) GetInts(a addr.Address, dst []uint32, n int, bigEndian ...bool) (int, error) {
	buf := make([]byte, n*endian.SizeInt)
	got, err := m.GetBytes(a, buf)
	if err != nil {
		return 0, err
	}
	return endian.GetUint32s(buf[:got], dst, resolveOrder(m.progEndian, bigEndian)), nil
}

// GetLongs is the 64-bit analogue of GetShorts.
func (m *MemoryMap) GetLongs(a addr.Address, dst []uint64, n int, bigEndian ...bool) (int, error) {
	buf := make([]byte, n*endian.SizeLong)
	got, err := m.GetBytes(a, buf)
	if err != nil {
		return 0, err
	}
	return endian.GetUint64s(buf[:got], dst, resolveOrder(m.progEndian, bigEndian)), nil
}

// preflightWrite walks block-by-block from a, verifying that every one of
// the next length bytes is covered by some block and that no address
// overlaps an instruction the code manager knows about, without mutating
// anything.
func (m *MemoryMap) preflightWrite(a addr.Address, length uint64) error {
	cur := a
	remaining := length

	for remaining > 0 {
		b, ok := m.BlockContaining(cur)
		if !ok {
			return &MemoryAccessError{Addr: cur, Err: ErrAccessDenied}
		}
		if m.codeMgr != nil {
			if instr, ok := m.codeMgr.InstructionContaining(cur); ok {
				return fmt.Errorf("%w: %s overlaps instruction [%s,%s]", ErrAccessDenied, cur, instr.Start(), instr.End())
			}
		}

		avail := b.End().Offset - cur.Offset + 1
		step := avail
		if remaining < step {
			step = remaining
		}
		if m.codeMgr != nil {
			if instr, ok := m.codeMgr.InstructionAfter(cur); ok && instr.Start().Space == cur.Space && instr.Start().Offset <= cur.Offset+step-1 {
				return fmt.Errorf("%w: %s overlaps instruction [%s,%s]", ErrAccessDenied, instr.Start(), instr.Start(), instr.End())
			}
		}
		remaining -= step
		if remaining == 0 {
			break
		}

		next, err := cur.Add(step)
		if err != nil {
			return &MemoryAccessError{Addr: cur, Err: ErrAccessDenied}
		}
		cur = next
	}

	return nil
}

// SetBytes writes src starting at a. With no live-memory handler, the
// entire span is pre-flighted before any byte is mutated: a two-pass
// walk, not try-then-rollback.
func (m *MemoryMap) SetBytes(a addr.Address, src []byte) (int, error) {
	if h := m.liveHandler(); h != nil {
		n, err := h.PutBytes(a, src)
		if err == nil && n > 0 {
			end, _ := a.Add(uint64(n - 1))
			m.notifyBytesChanged(a, end)
		}
		return n, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.preflightWrite(a, uint64(len(src))); err != nil {
		return 0, err
	}

	total := 0
	cur := a
	for total < len(src) {
		b, ok := m.BlockContaining(cur)
		if !ok {
			break
		}
		n, err := b.PutBytes(cur, src[total:])
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
		if total >= len(src) {
			break
		}
		next, err := cur.Add(uint64(n))
		if err != nil {
			break
		}
		cur = next
	}

	if total > 0 {
		end, _ := a.Add(uint64(total - 1))
		m.notifyBytesChanged(a, end)
	}

	return total, nil
}

// notifyBytesChanged tells the code manager and the change bus that the
// bytes in [start, end] were overwritten.
func (m *MemoryMap) notifyBytesChanged(start, end addr.Address) {
	if m.codeMgr != nil {
		m.codeMgr.MemoryChanged(start, end)
	}
	m.bus.Post(Event{Type: BytesChanged, Start: start, End: end})
}

// SetByte writes a single byte at a.
func (m *MemoryMap) SetByte(a addr.Address, v byte) error {
	_, err := m.SetBytes(a, []byte{v})
	return err
}

// SetShort encodes v with the requested (or program default) endian and
// writes it at a.
func (m *MemoryMap) SetShort(a addr.Address, v uint16, bigEndian ...bool) error {
	buf := make([]byte, endian.SizeShort)
	endian.PutUint16(buf, v, resolveOrder(m.progEndian, bigEndian))
	n, err := m.SetBytes(a, buf)
	if err == nil && n != len(buf) {
		return &MemoryAccessError{Addr: a, Err: ErrAccessDenied}
	}
	return err
}

// SetInt encodes v with the requested (or program default) endian and
// writes it at a.
func (m *MemoryMap) SetInt(a addr.Address, v uint32, bigEndian ...bool) error {
	buf := make([]byte, endian.SizeInt)
	endian.PutUint32(buf, v, resolveOrder(m.progEndian, bigEndian))
	n, err := m.SetBytes(a, buf)
	if err == nil && n != len(buf) {
		return &MemoryAccessError{Addr: a, Err: ErrAccessDenied}
	}
	return err
}

// SetLong encodes v with the requested (or program default) endian and
// writes it at a.
func (m *MemoryMap) SetLong(a addr.Address, v uint64, bigEndian ...bool) error {
	buf := make([]byte, endian.SizeLong)
	endian.PutUint64(buf, v, resolveOrder(m.progEndian, bigEndian))
	n, err := m.SetBytes(a, buf)
	if err == nil && n != len(buf) {
		return &MemoryAccessError{Addr: a, Err: ErrAccessDenied}
	}
	return err
}
