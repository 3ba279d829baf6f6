package compaction

import (
	"bytes"
	"container/heap"

	"garnet/internal/common"
)

// MergeSource pairs an entry stream with the file number of the table it came
// from. File numbers strictly increase over the lifetime of the store, so the
// source with the highest FileNo always holds the most recent version of a key.
type MergeSource struct {
	Iter   common.EntryIterator
	FileNo common.FileNo
}

type mergeCursor struct {
	iter   common.EntryIterator
	fileNo common.FileNo
	head   *common.Entry
}

// advance loads the next entry, or leaves head nil when the stream is done.
func (c *mergeCursor) advance() error {
	entry, err := c.iter.Next()
	if err != nil {
		return err
	}
	c.head = entry
	return nil
}

// mergeHeap orders cursors by head key ascending, breaking ties by FileNo
// descending so the newest version of a duplicate key surfaces first.
type mergeHeap []*mergeCursor

func (h mergeHeap) Len() int { return len(h) }

func (h mergeHeap) Less(i, j int) bool {
	if cmp := bytes.Compare(h[i].head.Key, h[j].head.Key); cmp != 0 {
		return cmp < 0
	}
	return h[i].fileNo > h[j].fileNo
}

func (h mergeHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *mergeHeap) Push(x any) { *h = append(*h, x.(*mergeCursor)) }

func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return c
}

// mergeIterator yields the union of its sources in ascending key order, one
// entry per key. When sources disagree on a key, the entry from the source
// with the highest FileNo wins. With dropTombstones set, winning delete
// entries are omitted from the output.
type mergeIterator struct {
	h              mergeHeap
	dropTombstones bool
}

var _ common.EntryIterator = (*mergeIterator)(nil)

// NewMergeIterator builds a k-way merge over the given sources. Each source
// must yield keys in ascending order with no duplicates within itself.
func NewMergeIterator(sources []MergeSource, dropTombstones bool) (common.EntryIterator, error) {
	h := make(mergeHeap, 0, len(sources))
	for _, src := range sources {
		cursor := &mergeCursor{iter: src.Iter, fileNo: src.FileNo}
		if err := cursor.advance(); err != nil {
			return nil, err
		}
		if cursor.head != nil {
			h = append(h, cursor)
		}
	}
	heap.Init(&h)
	return &mergeIterator{h: h, dropTombstones: dropTombstones}, nil
}

func (m *mergeIterator) Next() (*common.Entry, error) {
	for m.h.Len() > 0 {
		winner := m.h[0].head
		// Advance every cursor sitting on this key. The winner is at the
		// heap top first because ties order by FileNo descending.
		for m.h.Len() > 0 && bytes.Equal(m.h[0].head.Key, winner.Key) {
			cursor := m.h[0]
			if err := cursor.advance(); err != nil {
				return nil, err
			}
			if cursor.head == nil {
				heap.Pop(&m.h)
			} else {
				heap.Fix(&m.h, 0)
			}
		}

		if m.dropTombstones && winner.Tombstone() {
			continue
		}
		return winner, nil
	}
	return nil, nil
}
