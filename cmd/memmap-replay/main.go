// Copyright 2020 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command memmap-replay runs a JSON-scripted sequence of memory-map
// operations and checks the map's block-set invariants after each one.
package main

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/memmap"
	"github.com/memspace/binmap/store"
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: memmap-replay [options] script.json

ex:
 $> memmap-replay ./testdata/split_join.json

options:
`,
		)
		flag.PrintDefaults()
		os.Exit(1)
	}
}

// Script is the on-disk shape of a replay file: a default space
// declaration followed by an ordered list of Commands.
type Script struct {
	SpaceName string    `json:"space_name"`
	MaxOffset uint64    `json:"max_offset"`
	Commands  []Command `json:"commands"`
}

// Command is a single memmap operation plus the fields relevant to it;
// unused fields are simply left zero.
type Command struct {
	Op      string `json:"op"`
	Line    int    `json:"line"`
	Name    string `json:"name"`
	Space   string `json:"space"`
	Start   uint64 `json:"start"`
	Length  uint64 `json:"length"`
	Fill    byte   `json:"fill"`
	DataHex string `json:"data_hex"`

	ID  uint32 `json:"id"`
	ID2 uint32 `json:"id2"`
	At  uint64 `json:"at"`

	ExpectHex string `json:"expect_hex"`
	ExpectErr bool   `json:"expect_error"`
}

func main() {
	log.SetPrefix("memmap-replay: ")
	log.SetFlags(0)

	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
	}

	path := flag.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("could not open %q: %v", path, err)
	}
	defer f.Close()

	var script Script
	if err := json.NewDecoder(f).Decode(&script); err != nil {
		log.Fatalf("could not parse %q: %v", path, err)
	}
	if script.SpaceName == "" {
		script.SpaceName = "ram"
	}
	if script.MaxOffset == 0 {
		script.MaxOffset = 0xffffffff
	}

	factory := addr.NewFactory(script.SpaceName, script.MaxOffset)
	mm, err := memmap.New(factory, store.NewMemStore())
	if err != nil {
		log.Fatalf("could not open memory map: %v", err)
	}

	ids := map[string]uint32{}
	for i, cmd := range script.Commands {
		if err := run(mm, factory, ids, cmd); err != nil {
			if cmd.ExpectErr {
				continue
			}
			log.Fatalf("command %d (line %d, op=%s): %v", i, cmd.Line, cmd.Op, err)
		} else if cmd.ExpectErr {
			log.Fatalf("command %d (line %d, op=%s): expected an error, got none", i, cmd.Line, cmd.Op)
		}
		if err := checkInvariants(mm); err != nil {
			log.Fatalf("command %d (line %d, op=%s): invariant violated: %v", i, cmd.Line, cmd.Op, err)
		}
	}

	fmt.Printf("%s: %d commands replayed OK\n", path, len(script.Commands))
}

func run(mm *memmap.MemoryMap, factory *addr.Factory, ids map[string]uint32, cmd Command) error {
	sp := cmd.Space
	if sp == "" {
		sp = factory.DefaultSpace().Name
	}

	switch cmd.Op {
	case "create_initialized":
		var src io.Reader
		if cmd.DataHex != "" {
			raw, err := hex.DecodeString(cmd.DataHex)
			if err != nil {
				return err
			}
			src = bytes.NewReader(raw)
		}
		b, err := mm.CreateInitializedBlock(memmap.BlockSpec{Name: cmd.Name, Space: sp, Start: cmd.Start, Length: cmd.Length}, src, cmd.Fill, nil)
		if err != nil {
			return err
		}
		ids[cmd.Name] = b.ID()
		return nil

	case "create_uninitialized":
		b, err := mm.CreateUninitializedBlock(memmap.BlockSpec{Name: cmd.Name, Space: sp, Start: cmd.Start, Length: cmd.Length})
		if err != nil {
			return err
		}
		ids[cmd.Name] = b.ID()
		return nil

	case "split":
		space, err := factory.GetSpace(sp)
		if err != nil {
			return err
		}
		left, right, err := mm.Split(cmd.ID, space.Addr(cmd.At))
		if err != nil {
			return err
		}
		ids[cmd.Name+".left"] = left.ID()
		ids[cmd.Name+".right"] = right.ID()
		return nil

	case "join":
		joined, err := mm.Join(cmd.ID, cmd.ID2)
		if err != nil {
			return err
		}
		ids[cmd.Name] = joined.ID()
		return nil

	case "move":
		space, err := factory.GetSpace(sp)
		if err != nil {
			return err
		}
		return mm.MoveBlock(cmd.ID, space.Addr(cmd.Start))

	case "convert_to_initialized":
		return mm.ConvertToInitialized(cmd.ID, cmd.Fill)

	case "convert_to_uninitialized":
		return mm.ConvertToUninitialized(cmd.ID)

	case "remove":
		return mm.RemoveBlock(cmd.ID)

	case "expect_bytes":
		space, err := factory.GetSpace(sp)
		if err != nil {
			return err
		}
		want, err := hex.DecodeString(cmd.ExpectHex)
		if err != nil {
			return err
		}
		got := make([]byte, len(want))
		n, err := mm.GetBytes(space.Addr(cmd.Start), got)
		if err != nil {
			return err
		}
		if n != len(want) || hex.EncodeToString(got) != hex.EncodeToString(want) {
			return fmt.Errorf("expected %x, got %x (n=%d)", want, got, n)
		}
		return nil

	default:
		return fmt.Errorf("unknown op %q", cmd.Op)
	}
}

// checkInvariants verifies that blocks are disjoint and sorted directly
// from GetBlocks, independent of the coverage-set bookkeeping it's meant
// to be checking.
func checkInvariants(mm *memmap.MemoryMap) error {
	blocks := mm.GetBlocks()
	for i := 1; i < len(blocks); i++ {
		prev, cur := blocks[i-1], blocks[i]
		if prev.Start().Space != cur.Start().Space {
			continue
		}
		if !prev.Start().Less(cur.Start()) {
			return fmt.Errorf("%s and %s are out of order", prev.Name(), cur.Name())
		}
		if prev.End().Offset >= cur.Start().Offset {
			return fmt.Errorf("%s and %s overlap", prev.Name(), cur.Name())
		}
	}
	return nil
}
