package sstable

import (
	"bytes"
	"io"
	"sort"

	"garnet/internal/common"
)

// Index Block Layout:
//
// ┌──────────────────┐
// │    numEntries    │  u32 - number of data blocks
// ├──────────────────┤
// │   IndexEntry 0   │
// ├──────────────────┤
// │       ...        │
// ├──────────────────┤
// │  IndexEntry N-1  │
// └──────────────────┘
//
// IndexEntry Layout: [blockOffset: u64][keyLen: u32][key]

// IndexEntry records the first key of one data block and its file offset.
type IndexEntry struct {
	BlockOffset uint64 // file offset where the data block starts
	Key         []byte // first key in the data block
}

// Index maps keys to the data block that may contain them.
type Index struct {
	Entries []IndexEntry
}

// FindBlock returns the position of the single data block whose key range may
// contain key. Returns false when key sorts before the first block.
func (idx *Index) FindBlock(key []byte) (int, bool) {
	// First block whose firstKey > key; the candidate sits just before it.
	pos := sort.Search(len(idx.Entries), func(i int) bool {
		return bytes.Compare(idx.Entries[i].Key, key) > 0
	})
	if pos == 0 {
		return 0, false
	}
	return pos - 1, true
}

// WriteIndex writes the index block. Returns the number of bytes written.
func WriteIndex(w io.Writer, idx *Index) (int, error) {
	total, err := common.WriteUint32(w, uint32(len(idx.Entries)))
	if err != nil {
		return total, err
	}

	for i := range idx.Entries {
		e := &idx.Entries[i]
		n, err := common.WriteUint64(w, e.BlockOffset)
		total += n
		if err != nil {
			return total, err
		}
		n, err = common.WriteUint32(w, uint32(len(e.Key)))
		total += n
		if err != nil {
			return total, err
		}
		n, err = common.WriteBytes(w, e.Key)
		total += n
		if err != nil {
			return total, err
		}
	}

	return total, nil
}

// ReadIndex parses an index block written by WriteIndex.
func ReadIndex(r io.Reader) (*Index, error) {
	count, err := common.ReadUint32(r)
	if err != nil {
		return nil, footerCorruption(err)
	}

	idx := &Index{Entries: make([]IndexEntry, 0, count)}
	for i := uint32(0); i < count; i++ {
		offset, err := common.ReadUint64(r)
		if err != nil {
			return nil, footerCorruption(err)
		}
		keyLen, err := common.ReadUint32(r)
		if err != nil {
			return nil, footerCorruption(err)
		}
		key, err := common.ReadBytes(r, uint64(keyLen))
		if err != nil {
			return nil, footerCorruption(err)
		}
		idx.Entries = append(idx.Entries, IndexEntry{BlockOffset: offset, Key: key})
	}

	return idx, nil
}
