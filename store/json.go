// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package store

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
)

// jsonBlock is the on-disk shape SaveJSON writes and LoadJSON (and so
// cmd/memmap-dump) reads: a BlockRecord plus its backing bytes,
// base64-encoded.
type jsonBlock struct {
	BlockRecord
	Data string `json:"data,omitempty"`
}

// SaveJSON writes every record in adapter, plus its initialized bytes, as
// a JSON array to w.
func SaveJSON(w io.Writer, adapter Adapter) error {
	records, err := adapter.LoadAll()
	if err != nil {
		return err
	}

	out := make([]jsonBlock, 0, len(records))
	for _, rec := range records {
		jb := jsonBlock{BlockRecord: rec}
		if rec.Initialized && !rec.Mapped {
			buf := make([]byte, rec.Length)
			n, err := adapter.Read(rec.ID, 0, buf)
			if err != nil {
				return err
			}
			jb.Data = base64.StdEncoding.EncodeToString(buf[:n])
		}
		out = append(out, jb)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// LoadJSON reads a JSON array written by SaveJSON and replays it into a
// fresh MemStore, the seed store cmd/memmap-dump opens a memory map over.
func LoadJSON(r io.Reader) (*MemStore, error) {
	var in []jsonBlock
	if err := json.NewDecoder(r).Decode(&in); err != nil {
		return nil, err
	}

	ms := NewMemStore()
	for _, jb := range in {
		var src io.Reader
		if jb.Data != "" {
			raw, err := base64.StdEncoding.DecodeString(jb.Data)
			if err != nil {
				return nil, err
			}
			src = bytes.NewReader(raw)
		}
		if _, err := ms.CreateBlock(jb.BlockRecord, src); err != nil {
			return nil, err
		}
	}

	return ms, nil
}
