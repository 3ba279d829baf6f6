package common

import "errors"

// FileNo identifies a file (SSTable or WAL). File numbers increase strictly
// over the lifetime of the store and are never reused, so within a level a
// higher FileNo means a more recently written table.
type FileNo uint64

// BlockNo identifies a block within an SSTable.
type BlockNo int

// ErrCorruption reports malformed on-disk data: an unknown record tag, a
// truncated record, or a malformed footer. It is never returned for a clean
// end-of-file at a record boundary.
var ErrCorruption = errors.New("corrupted record")

// EntryType enumerates logical operations flowing through WAL, memtable,
// and SSTable components.
type EntryType uint8

const (
	EntryTypePut    EntryType = iota // 0
	EntryTypeDelete                  // 1
)

// Entry captures a single mutation. A delete entry carries no value; its
// presence is a tombstone that shadows older values for the same key.
type Entry struct {
	Type  EntryType
	Key   []byte
	Value []byte
}

// Tombstone reports whether the entry marks a deletion.
func (e *Entry) Tombstone() bool {
	return e.Type == EntryTypeDelete
}

// EntryIterator produces a stream of entries. Next returns nil when the stream
// is exhausted. Implementations should close underlying resources separately.
type EntryIterator interface {
	Next() (*Entry, error)
}
