// Command inspect prints the contents of a WAL segment or SSTable file.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"garnet/internal/common"
	"garnet/internal/sstable"
	"garnet/internal/wal"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <file.log|file.sst>\n", os.Args[0])
		os.Exit(1)
	}

	path := os.Args[1]
	switch strings.ToLower(filepath.Ext(path)) {
	case ".log":
		inspectWAL(path)
	case ".sst":
		inspectSSTable(path)
	default:
		fmt.Fprintf(os.Stderr, "unknown file type: %s (expected .log or .sst)\n", filepath.Ext(path))
		os.Exit(1)
	}
}

func inspectWAL(path string) {
	fmt.Printf("WAL: %s\n\n", path)

	w, err := wal.OpenWAL(path)
	if err != nil {
		fatal("failed to open WAL: %v", err)
	}
	defer w.Close()

	iter, err := w.Iterator(context.Background())
	if err != nil {
		fatal("failed to create iterator: %v", err)
	}
	defer iter.Close()

	dumpEntries(iter)
}

func inspectSSTable(path string) {
	fmt.Printf("SSTable: %s\n\n", path)

	filename := filepath.Base(path)
	var fileNo common.FileNo
	if _, err := fmt.Sscanf(strings.TrimSuffix(filename, ".sst"), "%d", &fileNo); err != nil {
		fatal("failed to parse file number from %s: %v", filename, err)
	}

	table, err := sstable.Open(path, fileNo, nil)
	if err != nil {
		fatal("failed to open SSTable: %v", err)
	}
	defer table.Close()

	fmt.Printf("Entries: %d\n", table.Len())
	fmt.Printf("Key range: [%q, %q]\n\n", string(table.SmallestKey()), string(table.LargestKey()))

	dumpEntries(table.Iterator())
}

func dumpEntries(iter common.EntryIterator) {
	count := 0
	for {
		entry, err := iter.Next()
		if err != nil {
			fatal("error reading entry: %v", err)
		}
		if entry == nil {
			break
		}
		count++

		if entry.Tombstone() {
			fmt.Printf("DEL %q\n", string(entry.Key))
		} else {
			fmt.Printf("PUT %q = %q\n", string(entry.Key), string(entry.Value))
		}
	}
	fmt.Printf("\nTotal entries: %d\n", count)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
