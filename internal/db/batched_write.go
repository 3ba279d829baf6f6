package db

import (
	"context"

	"garnet/internal/common"
)

// writeRequest represents a pending write operation waiting for group commit.
type writeRequest struct {
	entry    *common.Entry
	resultCh chan error
}

// collectBatch blocks for the first pending request, then greedily drains
// whatever else is already queued, up to MaxBatchSize. Returns nil once ctx
// is cancelled.
func (d *DB) collectBatch(ctx context.Context) []*writeRequest {
	maxBatchSize := d.Opts.MaxBatchSize

	batch := make([]*writeRequest, 0, maxBatchSize)

	select {
	case first := <-d.writeChan:
		batch = append(batch, first)
	case <-ctx.Done():
		return nil
	}

	for len(batch) < maxBatchSize {
		select {
		case req := <-d.writeChan:
			batch = append(batch, req)
		default:
			return batch
		}
	}

	return batch
}

// processBatch commits a batch under the DB lock: append the whole batch to
// the WAL with one sync, then apply it to the memtable.
func (d *DB) processBatch(ctx context.Context, batch []*writeRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	entries := make([]*common.Entry, 0, len(batch))
	for _, req := range batch {
		entries = append(entries, req.entry)
	}

	if err := d.wal.Append(ctx, entries); err != nil {
		return err
	}

	for _, req := range batch {
		switch req.entry.Type {
		case common.EntryTypePut:
			d.memtable.Put(req.entry.Key, req.entry.Value)
		case common.EntryTypeDelete:
			d.memtable.Delete(req.entry.Key)
		}
	}

	return nil
}

// groupCommitLoop is the batching coordinator. It runs on its own goroutine,
// committing batches of write requests with a single WAL sync each. On
// shutdown it fails any still-queued requests.
func (d *DB) groupCommitLoop(ctx context.Context) {
	for {
		batch := d.collectBatch(ctx)
		if batch == nil {
			d.drainPending()
			return
		}

		err := d.processBatch(ctx, batch)
		for _, req := range batch {
			req.resultCh <- err
		}

		// The batch is acknowledged either way; a failed flush must not fail
		// durable writes, so it is only logged and retried on the next pass.
		if err == nil && d.memtableFull() {
			if err := d.flushMemtable(); err != nil {
				d.logger.Error("memtable flush failed", "error", err)
			}
		}
	}
}

func (d *DB) memtableFull() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.memtable.ApproxSize() >= d.Opts.MemtableFlushBytes
}

func (d *DB) drainPending() {
	for {
		select {
		case req := <-d.writeChan:
			req.resultCh <- ErrClosed
		default:
			return
		}
	}
}
