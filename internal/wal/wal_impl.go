package wal

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"garnet/internal/common"
)

// Frame format, little-endian:
//
//	[totalLen: u32][record]
//
// totalLen counts everything after itself, so a reader can skip or validate
// a frame without parsing the record inside.
const frameHeaderSize = 4

// WALImpl appends length-prefixed records to a single file on disk.
type WALImpl struct {
	file *os.File
	path string
}

var _ WAL = (*WALImpl)(nil)

// OpenWAL creates (or reopens for append) a WAL file at path.
func OpenWAL(path string) (*WALImpl, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("wal: open %s: %w", path, err)
	}
	return &WALImpl{file: f, path: path}, nil
}

// Path returns the location of the backing file.
func (l *WALImpl) Path() string {
	return l.path
}

// Close releases the underlying file handle. Safe to call twice.
func (l *WALImpl) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Append persists the provided batch and syncs once. Every entry is validated
// against MaxEntrySize before any byte is written, so a rejected batch leaves
// the file unmodified.
func (l *WALImpl) Append(ctx context.Context, batch []*common.Entry) error {
	if len(batch) == 0 {
		return nil
	}
	if l.file == nil {
		return errors.New("wal: log is closed")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, e := range batch {
		if common.EncodedEntrySize(e) > MaxEntrySize {
			return ErrEntryTooLarge
		}
	}

	var buf bytes.Buffer
	for _, e := range batch {
		if _, err := common.WriteUint32(&buf, uint32(common.EncodedEntrySize(e))); err != nil {
			return err
		}
		if _, err := common.WriteEntry(&buf, e); err != nil {
			return err
		}
	}

	if _, err := l.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("wal: write: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("wal: sync: %w", err)
	}
	return nil
}

// Iterator returns a forward-only reader over all log entries. Used only for
// startup recovery and inspection.
func (l *WALImpl) Iterator(ctx context.Context) (WALIterator, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("wal: open for replay: %w", err)
	}
	return &fileIterator{
		ctx: ctx,
		f:   f,
		br:  bufio.NewReader(f),
	}, nil
}

type fileIterator struct {
	ctx context.Context
	f   *os.File
	br  *bufio.Reader
}

func (it *fileIterator) Next() (*common.Entry, error) {
	if it.f == nil {
		return nil, nil // already closed
	}
	if err := it.ctx.Err(); err != nil {
		return nil, err
	}

	frameLen, err := common.ReadUint32(it.br)
	if err != nil {
		it.Close()
		if errors.Is(err, io.EOF) {
			// Clean end at a frame boundary.
			return nil, nil
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			// A partial length prefix means an interrupted append; the engine
			// must not silently drop it.
			return nil, fmt.Errorf("%w: partial frame header", common.ErrCorruption)
		}
		// Anything else is a device-level failure, not corrupt data.
		return nil, fmt.Errorf("wal: read frame header: %w", err)
	}
	if frameLen > MaxEntrySize {
		it.Close()
		return nil, fmt.Errorf("%w: frame length %d exceeds maximum", common.ErrCorruption, frameLen)
	}

	body := make([]byte, frameLen)
	if _, err := io.ReadFull(it.br, body); err != nil {
		it.Close()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: frame body shorter than declared", common.ErrCorruption)
		}
		return nil, fmt.Errorf("wal: read frame body: %w", err)
	}

	r := bytes.NewReader(body)
	entry, err := common.ReadEntry(r)
	if err != nil {
		it.Close()
		return nil, err
	}
	if entry == nil || r.Len() != 0 {
		it.Close()
		return nil, fmt.Errorf("%w: frame length does not match record", common.ErrCorruption)
	}
	return entry, nil
}

// Close releases the underlying file handle. Safe to call multiple times.
func (it *fileIterator) Close() error {
	if it.f == nil {
		return nil
	}
	err := it.f.Close()
	it.f = nil
	it.br = nil
	return err
}
