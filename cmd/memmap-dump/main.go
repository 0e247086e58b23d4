// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command memmap-dump loads a memory map's persisted records and prints
// its block table and coverage statistics, the memmap analogue of
// wasm-dump -h.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/memspace/binmap/addr"
	"github.com/memspace/binmap/memmap"
	"github.com/memspace/binmap/store"
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: memmap-dump [options] store.json

ex:
 $> memmap-dump -v ./program.mmap.json

options:
`,
		)
		flag.PrintDefaults()
		os.Exit(1)
	}
}

var (
	flagVerbose = flag.Bool("v", false, "print every block, not just totals")
	flagSpace   = flag.String("space", "ram", "name of the program's default memory space")
	flagMax     = flag.Uint64("max", 0xffffffff, "highest offset in the default memory space")
)

func main() {
	log.SetPrefix("memmap-dump: ")
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

	factory := addr.NewFactory(*flagSpace, *flagMax)
	adapter, err := store.LoadJSON(f)
	if err != nil {
		log.Fatalf("could not load store: %v", err)
	}

	mm, err := memmap.New(factory, adapter)
	if err != nil {
		log.Fatalf("could not open memory map: %v", err)
	}

	printSummary(path, mm)
	if *flagVerbose {
		printBlocks(mm)
	}
}

func printSummary(path string, mm *memmap.MemoryMap) {
	fmt.Printf("%s: %d blocks\n\n", path, len(mm.GetBlocks()))
	fmt.Printf("coverage:\n")
	fmt.Printf(" - addressed          : %d bytes\n", mm.AddressSet().NumAddresses())
	fmt.Printf(" - all initialized    : %d bytes\n", mm.AllInitializedAddresses().NumAddresses())
	fmt.Printf(" - loaded initialized : %d bytes\n", mm.LoadedInitializedAddresses().NumAddresses())
}

func printBlocks(mm *memmap.MemoryMap) {
	fmt.Printf("\nblocks:\n\n")
	hdrfmt := "%-20s %-6s start=0x%08x end=0x%08x (size=0x%08x) perms=%s init=%v\n"
	for _, b := range mm.GetBlocks() {
		fmt.Printf(hdrfmt,
			b.Name(), b.Kind(),
			b.Start().Offset, b.End().Offset, b.Length(),
			b.Permissions(), b.Initialized(),
		)
	}
}
