package wal

import (
	"context"
	"errors"

	"garnet/internal/common"
)

// MaxEntrySize bounds the encoded size of a single WAL record (1 MiB).
const MaxEntrySize = 1 << 20

// ErrEntryTooLarge is returned by Append when an entry's encoded form exceeds
// MaxEntrySize. The log file is left untouched.
var ErrEntryTooLarge = errors.New("wal: entry exceeds maximum size")

// WAL defines the minimal contract required by the DB layer to persist
// and recover write operations. Append must not return before the batch is
// durable on the storage medium.
type WAL interface {
	Append(ctx context.Context, batch []*common.Entry) error
	Iterator(ctx context.Context) (WALIterator, error)
	Path() string
	Close() error
}

// WALIterator walks entries recovered from the log, in original write order.
// Next returns nil, nil when EOF is reached at a record boundary; any other
// shortfall surfaces as common.ErrCorruption.
type WALIterator interface {
	Next() (*common.Entry, error)
	Close() error
}
