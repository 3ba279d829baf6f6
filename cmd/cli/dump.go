package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"garnet/internal/common"
	"garnet/internal/db"
	"garnet/internal/sstable"
	"garnet/internal/wal"
)

func dumpIterator(iter common.EntryIterator) {
	fmt.Printf("%-6s %-20s  %s\n", "OP", "KEY", "VALUE")
	fmt.Println()

	count := 0
	for {
		entry, err := iter.Next()
		if err != nil {
			fmt.Printf("error reading entry: %v\n", err)
			return
		}
		if entry == nil {
			break
		}

		count++
		key := string(entry.Key)
		if len(key) > 20 {
			key = key[:20]
		}

		if entry.Tombstone() {
			fmt.Printf("%-6s %-20s\n", "DEL", key)
		} else {
			fmt.Printf("%-6s %-20s  %s\n", "PUT", key, string(entry.Value))
		}
	}

	fmt.Println()
	fmt.Printf("Total entries: %d\n", count)
}

func dumpMemtable(store *db.DB) {
	fmt.Println("Dumping Memtable")
	fmt.Println()
	dumpIterator(store.Memtable().Iterator())
}

func dumpWAL(path string) {
	fmt.Printf("Dumping WAL: %s\n", path)
	fmt.Println()

	w, err := wal.OpenWAL(path)
	if err != nil {
		fmt.Printf("failed to open WAL: %v\n", err)
		return
	}
	defer w.Close()

	iter, err := w.Iterator(context.Background())
	if err != nil {
		fmt.Printf("failed to create iterator: %v\n", err)
		return
	}
	defer iter.Close()

	dumpIterator(iter)
}

func dumpSSTable(path string) {
	fmt.Printf("Dumping SSTable: %s\n", path)
	fmt.Println()

	fileNo, err := fileNoFromPath(path)
	if err != nil {
		fmt.Printf("%v\n", err)
		return
	}

	table, err := sstable.Open(path, fileNo, nil)
	if err != nil {
		fmt.Printf("failed to open SSTable: %v\n", err)
		return
	}
	defer table.Close()

	dumpIterator(table.Iterator())
}

func dumpFile(path string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".log":
		dumpWAL(path)
	case ".sst":
		dumpSSTable(path)
	default:
		fmt.Printf("unknown file type: %s (expected .log or .sst)\n", filepath.Ext(path))
	}
}

func inspectFile(path string) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".log":
		inspectWAL(path)
	case ".sst":
		inspectSSTable(path)
	default:
		fmt.Printf("unknown file type: %s (expected .log or .sst)\n", filepath.Ext(path))
	}
}

func inspectWAL(path string) {
	fmt.Printf("Inspecting WAL: %s\n", path)

	w, err := wal.OpenWAL(path)
	if err != nil {
		fmt.Printf("failed to open WAL: %v\n", err)
		return
	}
	defer w.Close()

	iter, err := w.Iterator(context.Background())
	if err != nil {
		fmt.Printf("failed to create iterator: %v\n", err)
		return
	}
	defer iter.Close()

	count := 0
	for {
		entry, err := iter.Next()
		if err != nil {
			fmt.Printf("error reading entry: %v\n", err)
			return
		}
		if entry == nil {
			break
		}
		count++
	}
	fmt.Printf("Total entries: %d\n", count)
}

func inspectSSTable(path string) {
	fmt.Printf("Inspecting SSTable: %s\n", path)

	fileNo, err := fileNoFromPath(path)
	if err != nil {
		fmt.Printf("%v\n", err)
		return
	}

	table, err := sstable.Open(path, fileNo, nil)
	if err != nil {
		fmt.Printf("failed to open SSTable: %v\n", err)
		return
	}
	defer table.Close()

	fmt.Printf("Entries: %d\n", table.Len())
	fmt.Printf("Key range: [%q, %q]\n", string(table.SmallestKey()), string(table.LargestKey()))
}

// fileNoFromPath extracts the file number from a table path like
// "sstable/0/123.sst".
func fileNoFromPath(path string) (common.FileNo, error) {
	filename := filepath.Base(path)
	fileNoStr := strings.TrimSuffix(filename, ".sst")
	var fileNo common.FileNo
	if _, err := fmt.Sscanf(fileNoStr, "%d", &fileNo); err != nil {
		return 0, fmt.Errorf("failed to parse file number from %s: %w", filename, err)
	}
	return fileNo, nil
}
