package sstable

import (
	"fmt"
	"io"

	"garnet/internal/common"
)

// FormatVersion is the SSTable file format version written into the trailer.
const FormatVersion = 1

// TRAILER_SIZE is the fixed tail of every SSTable file:
// [footerLen: u32][version: u32]. The variable-length footer sits directly
// before it, so metadata can be reloaded without scanning data blocks.
const TRAILER_SIZE = 8

// Footer carries the table metadata persisted at the end of the file.
//
// Encoding: [filterOffset: u64][indexOffset: u64][entryCount: u64]
// [smallestKeyLen: u32][smallestKey][largestKeyLen: u32][largestKey]
// followed by the fixed trailer.
type Footer struct {
	FilterOffset uint64 // offset where the bloom filter block starts
	IndexOffset  uint64 // offset where the index block starts
	EntryCount   uint64 // total number of entries in the table
	SmallestKey  []byte // first key in the file
	LargestKey   []byte // last key in the file
}

// WriteFooter writes the footer followed by the trailer.
// Returns the number of bytes written.
func WriteFooter(w io.Writer, f *Footer) (int, error) {
	total := 0

	for _, v := range []uint64{f.FilterOffset, f.IndexOffset, f.EntryCount} {
		n, err := common.WriteUint64(w, v)
		total += n
		if err != nil {
			return total, err
		}
	}

	for _, key := range [][]byte{f.SmallestKey, f.LargestKey} {
		n, err := common.WriteUint32(w, uint32(len(key)))
		total += n
		if err != nil {
			return total, err
		}
		n, err = common.WriteBytes(w, key)
		total += n
		if err != nil {
			return total, err
		}
	}

	footerLen := total
	n, err := common.WriteUint32(w, uint32(footerLen))
	total += n
	if err != nil {
		return total, err
	}
	n, err = common.WriteUint32(w, FormatVersion)
	total += n
	return total, err
}

// ReadFooter parses a footer block previously written by WriteFooter,
// excluding the trailer.
func ReadFooter(r io.Reader) (*Footer, error) {
	f := &Footer{}
	var err error

	if f.FilterOffset, err = common.ReadUint64(r); err != nil {
		return nil, footerCorruption(err)
	}
	if f.IndexOffset, err = common.ReadUint64(r); err != nil {
		return nil, footerCorruption(err)
	}
	if f.EntryCount, err = common.ReadUint64(r); err != nil {
		return nil, footerCorruption(err)
	}

	smallestLen, err := common.ReadUint32(r)
	if err != nil {
		return nil, footerCorruption(err)
	}
	if f.SmallestKey, err = common.ReadBytes(r, uint64(smallestLen)); err != nil {
		return nil, footerCorruption(err)
	}

	largestLen, err := common.ReadUint32(r)
	if err != nil {
		return nil, footerCorruption(err)
	}
	if f.LargestKey, err = common.ReadBytes(r, uint64(largestLen)); err != nil {
		return nil, footerCorruption(err)
	}

	return f, nil
}

func footerCorruption(err error) error {
	return fmt.Errorf("%w: malformed footer: %v", common.ErrCorruption, err)
}
