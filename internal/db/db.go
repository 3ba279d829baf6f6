package db

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"garnet/internal/common"
	"garnet/internal/compaction"
	"garnet/internal/manifest"
	"garnet/internal/memtable"
	"garnet/internal/sstable"
	"garnet/internal/wal"
)

var (
	// ErrNotFound reports that a key has no live value.
	ErrNotFound = errors.New("key not found")

	// ErrClosed reports an operation on a closed DB.
	ErrClosed = errors.New("db is closed")
)

// DB is an embedded log-structured key-value store. All methods are safe for
// concurrent use.
type DB struct {
	mu       sync.RWMutex
	memtable memtable.Memtable
	wal      wal.WAL
	walNum   common.FileNo
	manifest *manifest.Manifest
	Opts     Options
	paths    *common.PathManager
	logger   *slog.Logger

	// Retired memtable/WAL pair from a flush in progress. The memtable stays
	// servable for reads until the L0 table is published; the WAL file stays
	// on disk until then so a crash replays it.
	flushMu    sync.Mutex
	retired    memtable.Memtable
	retiredWAL wal.WAL

	writeChan chan *writeRequest
	closed    atomic.Bool
	cancel    context.CancelFunc
	workers   *errgroup.Group
	done      chan struct{} // closed once the commit loop has exited
}

// Open opens the database at Opts.DBPath, creating it when absent and
// recovering from the MANIFEST and current WAL when present.
func Open(optFns ...Option) (*DB, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	paths := common.NewPathManager(opts.DBPath)

	if err := os.MkdirAll(paths.WALDir(), 0o755); err != nil {
		return nil, err
	}
	for level := 0; level <= opts.MaxSSTableLevel; level++ {
		if err := os.MkdirAll(paths.SSTableLevelDir(level), 0o755); err != nil {
			return nil, err
		}
	}

	m := manifest.NewManifest(paths, opts.MaxSSTableLevel+1)

	var (
		log    wal.WAL
		walNum common.FileNo
		mt     = memtable.NewSkiplistMemtable()
	)
	version, err := manifest.Load(paths)
	switch {
	case err == nil:
		// Recovery path: manifest exists. Everything below CurrentWAL is
		// covered by SSTables; everything from CurrentWAL up must be
		// replayed in file order.
		m.LoadVersion(version)

		if err := removeStaleFiles(paths, version.CurrentWAL); err != nil {
			return nil, err
		}

		walNos, err := listWALFiles(paths)
		if err != nil {
			return nil, err
		}

		walNum = version.CurrentWAL
		replayed := 0
		for _, no := range walNos {
			if no < version.CurrentWAL {
				continue
			}
			n, err := replayWALFile(paths.WALPath(no), mt)
			if err != nil {
				return nil, fmt.Errorf("failed to replay WAL %d: %w", no, err)
			}
			replayed += n
			if no > walNum {
				walNum = no
			}
		}

		log, err = wal.OpenWAL(paths.WALPath(walNum))
		if err != nil {
			return nil, fmt.Errorf("failed to open WAL: %w", err)
		}
		m.SetWAL(walNum)

		opts.Logger.Info("recovered database",
			"path", opts.DBPath,
			"wal", walNum,
			"replayed_entries", replayed)

	case os.IsNotExist(err):
		// Fresh DB path: no manifest yet.
		walNum = m.AllocWALNumber()
		log, err = wal.OpenWAL(paths.WALPath(walNum))
		if err != nil {
			return nil, err
		}

		m.SetWAL(walNum)
		if err := m.Flush(); err != nil {
			log.Close()
			return nil, fmt.Errorf("failed to write initial manifest: %w", err)
		}

		if err := removeStaleFiles(paths, walNum); err != nil {
			log.Close()
			return nil, err
		}

		opts.Logger.Info("created database", "path", opts.DBPath)

	default:
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	workers, ctx := errgroup.WithContext(ctx)

	d := &DB{
		memtable:  mt,
		wal:       log,
		walNum:    walNum,
		manifest:  m,
		Opts:      opts,
		paths:     paths,
		logger:    opts.Logger,
		writeChan: make(chan *writeRequest, 100),
		cancel:    cancel,
		workers:   workers,
		done:      make(chan struct{}),
	}

	compactor := compaction.NewCompactor(paths, m, compaction.Config{
		MaxLevelTables:  opts.MaxLevelTables,
		MaxSSTableLevel: opts.MaxSSTableLevel,
		Interval:        opts.CompactionInterval,
	}, opts.Logger)

	workers.Go(func() error {
		defer close(d.done)
		d.groupCommitLoop(ctx)
		return nil
	})
	workers.Go(func() error {
		return compactor.Run(ctx)
	})

	return d, nil
}

// replayWAL loads every entry from the WAL into the memtable. Any malformed
// record aborts recovery.
func replayWAL(w wal.WAL, mt memtable.Memtable) (int, error) {
	iter, err := w.Iterator(context.Background())
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	count := 0
	for {
		entry, err := iter.Next()
		if err != nil {
			return 0, err
		}
		if entry == nil {
			return count, nil
		}

		switch entry.Type {
		case common.EntryTypePut:
			mt.Put(entry.Key, entry.Value)
		case common.EntryTypeDelete:
			mt.Delete(entry.Key)
		}
		count++
	}
}

// removeStaleFiles deletes leftovers from interrupted operations: temp files
// that never got renamed and WAL segments older than the persisted current
// WAL. Newer segments are kept; they hold writes not yet covered by any
// SSTable and must be replayed.
func removeStaleFiles(paths *common.PathManager, currentWAL common.FileNo) error {
	tmpGlobs := []string{
		filepath.Join(paths.Root(), "*.tmp"),
		filepath.Join(paths.SSTableDir(), "*", "*"+sstable.TmpSuffix),
	}
	for _, pattern := range tmpGlobs {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return err
		}
		for _, match := range matches {
			if err := os.Remove(match); err != nil {
				return err
			}
		}
	}

	walNos, err := listWALFiles(paths)
	if err != nil {
		return err
	}
	for _, no := range walNos {
		if no >= currentWAL {
			continue
		}
		if err := os.Remove(paths.WALPath(no)); err != nil {
			return err
		}
	}
	return nil
}

// listWALFiles returns the file numbers of all WAL segments on disk, in
// ascending order.
func listWALFiles(paths *common.PathManager) ([]common.FileNo, error) {
	matches, err := filepath.Glob(filepath.Join(paths.WALDir(), "*.log"))
	if err != nil {
		return nil, err
	}

	nos := make([]common.FileNo, 0, len(matches))
	for _, match := range matches {
		name := strings.TrimSuffix(filepath.Base(match), ".log")
		n, err := strconv.ParseUint(name, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("unexpected file in WAL dir: %s", match)
		}
		nos = append(nos, common.FileNo(n))
	}
	slices.Sort(nos)
	return nos, nil
}

// replayWALFile opens the WAL segment at path and loads its entries into the
// memtable.
func replayWALFile(path string, mt memtable.Memtable) (int, error) {
	w, err := wal.OpenWAL(path)
	if err != nil {
		return 0, err
	}
	defer w.Close()
	return replayWAL(w, mt)
}

// Put stores a value for key. Returns once the write is durable in the WAL.
func (d *DB) Put(key, value []byte) error {
	if len(key) == 0 {
		return errors.New("db: key must be non-empty")
	}
	entry := &common.Entry{
		Type:  common.EntryTypePut,
		Key:   bytes.Clone(key),
		Value: bytes.Clone(value),
	}
	// Size is checked per request, before the entry can join a group-commit
	// batch, so an oversized write never fails an unrelated caller's.
	if common.EncodedEntrySize(entry) > wal.MaxEntrySize {
		return wal.ErrEntryTooLarge
	}
	return d.submit(entry)
}

// Delete removes key by writing a tombstone. Deleting an absent key is not
// an error.
func (d *DB) Delete(key []byte) error {
	if len(key) == 0 {
		return errors.New("db: key must be non-empty")
	}
	entry := &common.Entry{
		Type: common.EntryTypeDelete,
		Key:  bytes.Clone(key),
	}
	if common.EncodedEntrySize(entry) > wal.MaxEntrySize {
		return wal.ErrEntryTooLarge
	}
	return d.submit(entry)
}

func (d *DB) submit(entry *common.Entry) error {
	if d.closed.Load() {
		return ErrClosed
	}

	req := &writeRequest{
		entry:    entry,
		resultCh: make(chan error, 1),
	}

	select {
	case d.writeChan <- req:
	case <-d.done:
		return ErrClosed
	}

	select {
	case err := <-req.resultCh:
		return err
	case <-d.done:
		// The commit loop is gone. It may have replied just before exiting,
		// in which case the result stands; otherwise the write never ran.
		select {
		case err := <-req.resultCh:
			return err
		default:
			return ErrClosed
		}
	}
}

// Get returns the value stored for key, or ErrNotFound if the key is absent
// or deleted.
func (d *DB) Get(key []byte) ([]byte, error) {
	if d.closed.Load() {
		return nil, ErrClosed
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if entry, ok := d.memtable.Get(key); ok {
		if entry.Tombstone() {
			return nil, ErrNotFound
		}
		return bytes.Clone(entry.Value), nil
	}

	// A memtable retired by an in-progress flush is newer than any table.
	if d.retired != nil {
		if entry, ok := d.retired.Get(key); ok {
			if entry.Tombstone() {
				return nil, ErrNotFound
			}
			return bytes.Clone(entry.Value), nil
		}
	}

	// Levels hold progressively older data, and within a level a higher
	// file number means a more recent flush or compaction.
	version := d.manifest.Current()
	for level, fileMetas := range version.Levels {
		for i := len(fileMetas) - 1; i >= 0; i-- {
			fm := fileMetas[i]
			if bytes.Compare(key, fm.SmallestKey) < 0 || bytes.Compare(key, fm.LargestKey) > 0 {
				continue
			}

			table, err := d.manifest.GetTable(fm.FileNo, level)
			if err != nil {
				return nil, err
			}

			entry, err := table.Get(key)
			if errors.Is(err, sstable.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read from L%d/%d.sst: %w", level, fm.FileNo, err)
			}

			if entry.Tombstone() {
				return nil, ErrNotFound
			}
			return bytes.Clone(entry.Value), nil
		}
	}

	return nil, ErrNotFound
}

// flushMemtable retires the current memtable and WAL behind a fresh pair,
// writes the retired memtable to an L0 SSTable, and commits the table plus
// the WAL switch through the manifest. The retired memtable keeps serving
// reads the whole time; only the short swap and publish steps hold d.mu.
//
// Until the manifest flush lands, the retired WAL stays on disk and the
// persisted manifest still points at it, so a crash anywhere in between
// replays the retired WAL and loses nothing. If a previous attempt failed
// mid-write, the retired pair is still pending and this call retries it.
func (d *DB) flushMemtable() error {
	d.flushMu.Lock()
	defer d.flushMu.Unlock()

	start := time.Now()

	// 1. Swap in a fresh memtable + WAL, retiring the current pair. Skipped
	// when a pair from a failed attempt is already pending.
	d.mu.Lock()
	if d.retired == nil {
		if d.memtable.Len() == 0 {
			d.mu.Unlock()
			return nil
		}

		newWALNum := d.manifest.AllocWALNumber()
		newWAL, err := wal.OpenWAL(d.paths.WALPath(newWALNum))
		if err != nil {
			d.mu.Unlock()
			return err
		}

		d.retired = d.memtable
		d.retiredWAL = d.wal
		d.memtable = memtable.NewSkiplistMemtable()
		d.wal = newWAL
		d.walNum = newWALNum
	}
	retired := d.retired
	retiredWAL := d.retiredWAL
	newWALNum := d.walNum
	d.mu.Unlock()

	// 2. Retired memtable contents to a new L0 table, without the lock.
	fileNo := d.manifest.AllocSSTableNumber()
	path := d.paths.SSTablePath(0, fileNo)
	result, err := sstable.Write(path, retired.Iterator(), retired.Len())
	if err != nil {
		// The retired pair stays pending; the next flush retries.
		return err
	}

	// 3. Register the table and the WAL switch, and persist the manifest.
	// The manifest flush is the commit point.
	d.mu.Lock()
	d.manifest.Apply(&manifest.CompactionEdit{
		AddSSTables: map[int][]manifest.FileMetadata{
			0: {{
				FileNo:      fileNo,
				SmallestKey: result.SmallestKey,
				LargestKey:  result.LargestKey,
				EntryCount:  result.EntryCount,
				Size:        result.BytesWritten,
			}},
		},
	})
	d.manifest.SetWAL(newWALNum)
	flushErr := d.manifest.Flush()
	d.retired = nil
	d.retiredWAL = nil
	d.mu.Unlock()

	oldPath := retiredWAL.Path()
	if err := retiredWAL.Close(); err != nil && flushErr == nil {
		flushErr = err
	}
	if flushErr != nil {
		// The table serves reads in memory, but the persisted manifest still
		// points at the retired WAL, so the file must survive: a crash
		// replays it, and the next successful manifest flush (or the next
		// open) makes it stale and removable.
		return flushErr
	}

	// 4. The retired WAL is now redundant.
	if err := os.Remove(oldPath); err != nil {
		return err
	}

	d.logger.Info("flushed memtable",
		"entries", result.EntryCount,
		"sstable", path,
		"elapsed", time.Since(start))
	return nil
}

// Flush forces any buffered writes to disk regardless of memtable size.
func (d *DB) Flush() error {
	if d.closed.Load() {
		return ErrClosed
	}
	return d.flushMemtable()
}

func (d *DB) Memtable() memtable.Memtable {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.memtable
}

func (d *DB) Manifest() *manifest.Manifest {
	return d.manifest
}

func (d *DB) Paths() *common.PathManager {
	return d.paths
}

// Close flushes the memtable, stops the background workers, and releases all
// file handles. The DB must not be used afterwards.
func (d *DB) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return ErrClosed
	}

	// Stop the commit loop and compactor before touching shared state.
	d.cancel()
	workerErr := d.workers.Wait()

	var firstErr error
	for {
		d.mu.RLock()
		pending := d.memtable.Len() > 0 || d.retired != nil
		d.mu.RUnlock()
		if !pending {
			break
		}
		if err := d.flushMemtable(); err != nil {
			firstErr = err
			break
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.retiredWAL != nil {
		if err := d.retiredWAL.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := d.wal.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := d.manifest.CloseAll(); err != nil && firstErr == nil {
		firstErr = err
	}
	if workerErr != nil && firstErr == nil {
		firstErr = workerErr
	}
	return firstErr
}
