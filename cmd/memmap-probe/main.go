// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command memmap-probe loads a flat binary file as a single block and
// runs a masked byte-pattern search over it from the command line.
package main

import (
	"bytes"
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/memmap"
	"github.com/memspace/binmap/search"
	"github.com/memspace/binmap/store"
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: memmap-probe [options] -pattern=hex file.bin

ex:
 $> memmap-probe -pattern=deadbeef ./firmware.bin
 $> memmap-probe -pattern=4883ec?? -backward ./firmware.bin

options:
`,
		)
		flag.PrintDefaults()
		os.Exit(1)
	}
}

var (
	flagPattern  = flag.String("pattern", "", "hex-encoded byte pattern to search for, '??' wildcards each masked byte")
	flagStart    = flag.Uint64("start", 0, "offset to start the search at")
	flagBackward = flag.Bool("backward", false, "search backward from -start")
	flagBase     = flag.Uint64("base", 0, "address the first byte of the file is loaded at")
)

func main() {
	log.SetPrefix("memmap-probe: ")
	log.SetFlags(0)

	flag.Parse()

	if flag.NArg() != 1 || *flagPattern == "" {
		flag.Usage()
	}

	pattern, mask, err := parsePattern(*flagPattern)
	if err != nil {
		log.Fatalf("bad -pattern: %v", err)
	}

	path := flag.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("could not read %q: %v", path, err)
	}

	factory := addr.NewFactory("ram", ^uint64(0))
	sp := factory.DefaultSpace()
	adapter := store.NewMemStore()

	mm, err := memmap.New(factory, adapter)
	if err != nil {
		log.Fatalf("could not open memory map: %v", err)
	}

	if _, err := mm.CreateInitializedBlock(memmap.BlockSpec{
		Name: path, Space: sp.Name, Start: *flagBase, Length: uint64(len(data)),
	}, bytes.NewReader(data), 0, nil); err != nil {
		log.Fatalf("could not load %q: %v", path, err)
	}

	hit, ok := search.FindBytes(mm, sp.Addr(*flagStart), nil, pattern, mask, !*flagBackward, nil)
	if !ok {
		fmt.Println("not found")
		os.Exit(1)
	}
	fmt.Printf("found at 0x%08x\n", hit.Offset)
}

// parsePattern decodes a hex string where each "??" byte pair is a
// wildcard, returning the pattern with wildcard bytes zeroed and a mask
// with 0x00 at wildcard positions and 0xff elsewhere.
func parsePattern(s string) (pattern, mask []byte, err error) {
	if len(s)%2 != 0 {
		return nil, nil, fmt.Errorf("odd-length pattern %q", s)
	}
	n := len(s) / 2
	pattern = make([]byte, n)
	mask = make([]byte, n)
	for i := 0; i < n; i++ {
		pair := s[i*2 : i*2+2]
		if pair == "??" {
			mask[i] = 0x00
			continue
		}
		b, err := hex.DecodeString(pair)
		if err != nil {
			return nil, nil, fmt.Errorf("byte %d: %w", i, err)
		}
		pattern[i] = b[0]
		mask[i] = 0xff
	}
	return pattern, mask, nil
}
