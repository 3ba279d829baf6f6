package memtable

import "garnet/internal/common"

// Memtable defines the minimal interface required by the DB layer: a sorted
// in-memory buffer of the most recent, not-yet-flushed mutations.
type Memtable interface {
	// Put records or overwrites a live value for key (last write wins).
	Put(key, value []byte) error

	// Delete installs a tombstone for the given key, overwriting any prior
	// value or tombstone.
	Delete(key []byte) error

	// Get returns the most recent entry for key. The entry may be a
	// tombstone; absence means the key was never seen in this table.
	Get(key []byte) (*common.Entry, bool)

	// Len returns the number of distinct keys in the table.
	Len() int

	// ApproxSize returns the accumulated byte footprint of keys and values.
	// It is approximate and used only for flush-threshold comparison.
	ApproxSize() uint64

	// Iterator returns an ascending-key snapshot of the table. It is meant
	// for the flush path and must only be taken from a table retired from
	// further writes.
	Iterator() common.EntryIterator
}
