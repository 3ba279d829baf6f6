package sstable

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"garnet/internal/block"
	"garnet/internal/block_cache"
	"garnet/internal/common"
	"garnet/internal/filter"
)

// SSTable File Layout:
//
//                 ┌────────────────┐
//                 │  Data Block 0  │  block.BLOCK_SIZE entries, sorted by key (no duplicates)
//                 ├────────────────┤
//                 │       ...      │
//                 ├────────────────┤
//                 │  Data Block N  │  up to block.BLOCK_SIZE entries
// filterOffset -> ├────────────────┤
//                 │  Filter Block  │  bloom filter over all keys
//  indexOffset -> ├────────────────┤
//                 │  Index Block   │  array of {firstKey, blockOffset} entries
// footerOffset -> ├────────────────┤
//                 │     Footer     │  offsets, entry count, smallest/largest key
//                 ├────────────────┤
//                 │     Trailer    │  footerLen, format version
//                 └────────────────┘

// ErrNotFound reports that a key is absent from a table. Used within lookup
// chains; the DB layer translates exhaustion of the chain into its own
// not-found result.
var ErrNotFound = errors.New("sstable: key not found")

// TmpSuffix marks in-progress table files. A crash mid-write leaves only a
// .tmp file behind, never a partially written live table.
const TmpSuffix = ".tmp"

// bloomFalsePositiveRate is the per-table bloom filter target.
const bloomFalsePositiveRate = 0.01

// WriteResult contains metadata from writing an SSTable.
type WriteResult struct {
	BytesWritten uint64
	SmallestKey  []byte
	LargestKey   []byte
	EntryCount   uint64
}

// Write streams already key-sorted, deduplicated entries into a new immutable
// table at path. The file is assembled under path+TmpSuffix, fsynced, and
// atomically renamed into place. expectedEntries sizes the bloom filter; it
// is a hint and may overshoot.
func Write(path string, entries common.EntryIterator, expectedEntries int) (*WriteResult, error) {
	tmpPath := path + TmpSuffix
	f, err := os.Create(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("sstable: create %s: %w", tmpPath, err)
	}

	result, err := writeTable(f, entries, expectedEntries)
	if err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("sstable: sync %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, err
	}

	// Publication point: before this rename the table does not exist as far
	// as recovery is concerned.
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("sstable: rename into place: %w", err)
	}
	return result, nil
}

func writeTable(f *os.File, entries common.EntryIterator, expectedEntries int) (*WriteResult, error) {
	w := bufio.NewWriter(f)

	k, m := filter.OptimalBloomFilterParams(uint32(max(expectedEntries, 1)), bloomFalsePositiveRate)
	bloom := filter.NewBloomFilter(k, m)

	var (
		offset           uint64
		indexEntries     []IndexEntry
		blockEntryCount  int
		totalEntryCount  uint64
		blockStartOffset uint64
		firstBlockKey    []byte
		smallestKey      []byte
		largestKey       []byte
	)

	for {
		entry, err := entries.Next()
		if err != nil {
			return nil, err
		}
		if entry == nil {
			break // end of stream
		}

		if totalEntryCount == 0 {
			smallestKey = bytes.Clone(entry.Key)
		}
		largestKey = bytes.Clone(entry.Key)

		if blockEntryCount == 0 {
			blockStartOffset = offset
			firstBlockKey = bytes.Clone(entry.Key)
		}

		bloom.Add(entry.Key)

		n, err := common.WriteEntry(w, entry)
		if err != nil {
			return nil, err
		}
		offset += uint64(n)
		blockEntryCount++
		totalEntryCount++

		if blockEntryCount >= block.BLOCK_SIZE {
			indexEntries = append(indexEntries, IndexEntry{
				BlockOffset: blockStartOffset,
				Key:         firstBlockKey,
			})
			blockEntryCount = 0
			firstBlockKey = nil
		}
	}

	// Last partial block.
	if blockEntryCount > 0 {
		indexEntries = append(indexEntries, IndexEntry{
			BlockOffset: blockStartOffset,
			Key:         firstBlockKey,
		})
	}

	filterOffset := offset
	n, err := filter.WriteBloomFilter(w, bloom)
	if err != nil {
		return nil, err
	}
	offset += uint64(n)

	indexOffset := offset
	n, err = WriteIndex(w, &Index{Entries: indexEntries})
	if err != nil {
		return nil, err
	}
	offset += uint64(n)

	n, err = WriteFooter(w, &Footer{
		FilterOffset: filterOffset,
		IndexOffset:  indexOffset,
		EntryCount:   totalEntryCount,
		SmallestKey:  smallestKey,
		LargestKey:   largestKey,
	})
	if err != nil {
		return nil, err
	}
	offset += uint64(n)

	if err := w.Flush(); err != nil {
		return nil, err
	}

	return &WriteResult{
		BytesWritten: offset,
		SmallestKey:  smallestKey,
		LargestKey:   largestKey,
		EntryCount:   totalEntryCount,
	}, nil
}

// SSTable exposes read access to one immutable on-disk table.
type SSTable interface {
	// Get returns the entry stored for key, which may be a tombstone.
	// Returns ErrNotFound if the table does not contain the key.
	Get(key []byte) (*common.Entry, error)

	// Iterator sequentially scans all entries in ascending key order.
	Iterator() common.EntryIterator

	// Len returns the total number of entries, cached in the footer.
	Len() int

	// SmallestKey and LargestKey bound the keys stored in the table.
	SmallestKey() []byte
	LargestKey() []byte

	Path() string
	Close() error
}

// sstableImpl provides random access to entries in an SSTable file.
type sstableImpl struct {
	file       *os.File
	fileNo     common.FileNo
	footer     *Footer
	filter     filter.Filter
	index      *Index
	blockCache block_cache.BlockCache
}

var _ SSTable = (*sstableImpl)(nil)

// Open opens an SSTable file and loads its footer, bloom filter, and index
// into memory. Data blocks stay on disk until a lookup needs them.
func Open(path string, fileNo common.FileNo, blockCache block_cache.BlockCache) (SSTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("sstable: open %s: %w", path, err)
	}

	footer, bloom, index, err := loadMetadata(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("sstable: load metadata from %s: %w", path, err)
	}

	return &sstableImpl{
		file:       f,
		fileNo:     fileNo,
		footer:     footer,
		filter:     bloom,
		index:      index,
		blockCache: blockCache,
	}, nil
}

// loadMetadata reads and parses the trailer, footer, filter, and index from
// an open SSTable file.
func loadMetadata(f *os.File) (*Footer, filter.Filter, *Index, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, nil, nil, err
	}
	fileSize := stat.Size()

	if fileSize < TRAILER_SIZE {
		return nil, nil, nil, fmt.Errorf("%w: file smaller than trailer", common.ErrCorruption)
	}

	trailer := make([]byte, TRAILER_SIZE)
	if _, err := f.ReadAt(trailer, fileSize-TRAILER_SIZE); err != nil {
		return nil, nil, nil, err
	}
	footerLen, err := common.ReadUint32(bytes.NewReader(trailer[:4]))
	if err != nil {
		return nil, nil, nil, err
	}
	version, err := common.ReadUint32(bytes.NewReader(trailer[4:]))
	if err != nil {
		return nil, nil, nil, err
	}
	if version != FormatVersion {
		return nil, nil, nil, fmt.Errorf("%w: unsupported format version %d", common.ErrCorruption, version)
	}

	footerOffset := fileSize - TRAILER_SIZE - int64(footerLen)
	if footerOffset < 0 {
		return nil, nil, nil, fmt.Errorf("%w: footer length %d exceeds file size", common.ErrCorruption, footerLen)
	}
	footerData := make([]byte, footerLen)
	if _, err := f.ReadAt(footerData, footerOffset); err != nil {
		return nil, nil, nil, err
	}
	footer, err := ReadFooter(bytes.NewReader(footerData))
	if err != nil {
		return nil, nil, nil, err
	}

	if footer.IndexOffset < footer.FilterOffset || int64(footer.IndexOffset) > footerOffset {
		return nil, nil, nil, fmt.Errorf("%w: inconsistent footer offsets", common.ErrCorruption)
	}

	filterData := make([]byte, footer.IndexOffset-footer.FilterOffset)
	if _, err := f.ReadAt(filterData, int64(footer.FilterOffset)); err != nil {
		return nil, nil, nil, err
	}
	bloom, err := filter.ReadBloomFilter(bytes.NewReader(filterData))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: malformed filter block: %v", common.ErrCorruption, err)
	}

	indexData := make([]byte, footerOffset-int64(footer.IndexOffset))
	if _, err := f.ReadAt(indexData, int64(footer.IndexOffset)); err != nil {
		return nil, nil, nil, err
	}
	index, err := ReadIndex(bytes.NewReader(indexData))
	if err != nil {
		return nil, nil, nil, err
	}

	return footer, bloom, index, nil
}

// Get looks up the entry for the given key. The smallest/largest bounds and
// the bloom filter reject most absent keys without touching data blocks.
func (s *sstableImpl) Get(key []byte) (*common.Entry, error) {
	if s.footer.EntryCount == 0 ||
		bytes.Compare(key, s.footer.SmallestKey) < 0 ||
		bytes.Compare(key, s.footer.LargestKey) > 0 {
		return nil, ErrNotFound
	}
	if !s.filter.MayContain(key) {
		return nil, ErrNotFound
	}

	blockIdx, ok := s.index.FindBlock(key)
	if !ok {
		return nil, ErrNotFound
	}

	blk, err := s.readBlock(blockIdx)
	if err != nil {
		return nil, err
	}

	entry, found := blk.Get(key)
	if !found {
		return nil, ErrNotFound
	}
	return entry, nil
}

// readBlock returns the parsed data block at blockIdx, consulting the shared
// cache before disk.
func (s *sstableImpl) readBlock(blockIdx int) (block.Block, error) {
	blockNo := common.BlockNo(blockIdx)
	if s.blockCache != nil {
		if cached, ok := s.blockCache.Get(s.fileNo, blockNo); ok {
			return cached, nil
		}
	}

	blockOffset := s.index.Entries[blockIdx].BlockOffset
	var blockEnd uint64
	if blockIdx+1 < len(s.index.Entries) {
		blockEnd = s.index.Entries[blockIdx+1].BlockOffset
	} else {
		blockEnd = s.footer.FilterOffset
	}

	blockData := make([]byte, blockEnd-blockOffset)
	if _, err := s.file.ReadAt(blockData, int64(blockOffset)); err != nil {
		return nil, fmt.Errorf("sstable: read block %d at offset %d from %s: %w", blockIdx, blockOffset, s.file.Name(), err)
	}

	blk, err := block.NewBlock(blockData)
	if err != nil {
		return nil, fmt.Errorf("sstable: parse block %d from %s: %w", blockIdx, s.file.Name(), err)
	}

	if s.blockCache != nil {
		s.blockCache.Put(s.fileNo, blockNo, blk)
	}
	return blk, nil
}

// Len returns the total number of entries in the SSTable.
func (s *sstableImpl) Len() int {
	return int(s.footer.EntryCount)
}

// SmallestKey returns the first key stored in the table.
func (s *sstableImpl) SmallestKey() []byte {
	return s.footer.SmallestKey
}

// LargestKey returns the last key stored in the table.
func (s *sstableImpl) LargestKey() []byte {
	return s.footer.LargestKey
}

// Path returns the location of the backing file.
func (s *sstableImpl) Path() string {
	return s.file.Name()
}

// Close releases the underlying file handle.
func (s *sstableImpl) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Iterator returns an iterator that sequentially scans all entries in the
// SSTable on a private file handle.
func (s *sstableImpl) Iterator() common.EntryIterator {
	f, err := os.Open(s.file.Name())
	if err != nil {
		return &sstableIterator{err: err}
	}

	return &sstableIterator{
		file:   f,
		reader: bufio.NewReader(io.LimitReader(f, int64(s.footer.FilterOffset))),
	}
}

// sstableIterator provides sequential access to all entries in an SSTable.
type sstableIterator struct {
	file   *os.File
	reader *bufio.Reader
	err    error // initialization error
}

var _ common.EntryIterator = (*sstableIterator)(nil)

func (it *sstableIterator) Next() (*common.Entry, error) {
	if it.err != nil {
		return nil, it.err
	}
	if it.file == nil {
		return nil, nil // already closed
	}

	entry, err := common.ReadEntry(it.reader)
	if err != nil {
		it.Close()
		return nil, err
	}
	if entry == nil {
		it.Close()
		return nil, nil
	}
	return entry, nil
}

// Close releases the underlying file handle. Safe to call multiple times.
func (it *sstableIterator) Close() error {
	if it.file == nil {
		return nil
	}
	err := it.file.Close()
	it.file = nil
	it.reader = nil
	return err
}
