package memtable

import (
	"bytes"
	"sync/atomic"

	"garnet/internal/common"

	"github.com/zhangyunhao116/skipmap"
)

// SkiplistMemtable is backed by a concurrent skip list ordered by
// byte-lexicographic key comparison, so the flush snapshot comes out sorted
// for free.
type SkiplistMemtable struct {
	items *skipmap.FuncMap[[]byte, *common.Entry]
	size  atomic.Uint64
}

var _ Memtable = (*SkiplistMemtable)(nil)

// NewSkiplistMemtable returns an empty memtable.
func NewSkiplistMemtable() *SkiplistMemtable {
	return &SkiplistMemtable{
		items: skipmap.NewFunc[[]byte, *common.Entry](func(a, b []byte) bool {
			return bytes.Compare(a, b) < 0
		}),
	}
}

// Put records or overwrites a key/value pair. Key and value are cloned so the
// caller may reuse its slices.
func (m *SkiplistMemtable) Put(key, value []byte) error {
	m.store(&common.Entry{
		Type:  common.EntryTypePut,
		Key:   common.CloneBytes(key),
		Value: common.CloneBytes(value),
	})
	return nil
}

// Delete installs a tombstone for the given key.
func (m *SkiplistMemtable) Delete(key []byte) error {
	m.store(&common.Entry{
		Type: common.EntryTypeDelete,
		Key:  common.CloneBytes(key),
	})
	return nil
}

func (m *SkiplistMemtable) store(entry *common.Entry) {
	if prev, ok := m.items.Load(entry.Key); ok {
		m.size.Add(^(entryFootprint(prev) - 1)) // subtract
	}
	m.items.Store(entry.Key, entry)
	m.size.Add(entryFootprint(entry))
}

// Get returns the most recent entry for key, if any.
func (m *SkiplistMemtable) Get(key []byte) (*common.Entry, bool) {
	return m.items.Load(key)
}

// Len returns the number of distinct keys.
func (m *SkiplistMemtable) Len() int {
	return m.items.Len()
}

// ApproxSize returns the accumulated byte footprint of keys and values. The
// accounting races with concurrent overwrites, which is acceptable for a
// flush-threshold heuristic.
func (m *SkiplistMemtable) ApproxSize() uint64 {
	return m.size.Load()
}

// Iterator returns a stable ascending-key snapshot of the current entries.
func (m *SkiplistMemtable) Iterator() common.EntryIterator {
	entries := make([]*common.Entry, 0, m.items.Len())
	m.items.Range(func(_ []byte, entry *common.Entry) bool {
		entries = append(entries, entry)
		return true
	})
	return &memtableIterator{entries: entries}
}

func entryFootprint(e *common.Entry) uint64 {
	return uint64(len(e.Key) + len(e.Value))
}

type memtableIterator struct {
	entries []*common.Entry
	index   int
}

func (it *memtableIterator) Next() (*common.Entry, error) {
	if it.index >= len(it.entries) {
		return nil, nil
	}
	entry := it.entries[it.index]
	it.index++
	return entry, nil
}
