package wal_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"garnet/internal/common"
	"garnet/internal/wal"

	"github.com/stretchr/testify/require"
)

func TestAppendAndIterate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.log")

	log, err := wal.OpenWAL(path)
	require.NoError(t, err)
	defer log.Close()

	batch := []*common.Entry{
		{Type: common.EntryTypePut, Key: []byte("key1"), Value: []byte("value1")},
		{Type: common.EntryTypePut, Key: []byte("key2"), Value: []byte("value2")},
		{Type: common.EntryTypeDelete, Key: []byte("key1")},
	}
	require.NoError(t, log.Append(context.Background(), batch))

	iter, err := log.Iterator(context.Background())
	require.NoError(t, err)

	common.RequireMatchesIterator(t, iter, batch)
}

func TestPersistsAcrossOpen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.log")

	log, err := wal.OpenWAL(path)
	require.NoError(t, err)

	batch1 := []*common.Entry{
		{Type: common.EntryTypePut, Key: []byte("k1"), Value: []byte("v1")},
	}
	require.NoError(t, log.Append(context.Background(), batch1))
	require.NoError(t, log.Close())

	log, err = wal.OpenWAL(path)
	require.NoError(t, err)
	defer log.Close()

	batch2 := []*common.Entry{
		{Type: common.EntryTypePut, Key: []byte("k2"), Value: []byte("v2")},
	}
	require.NoError(t, log.Append(context.Background(), batch2))

	iter, err := log.Iterator(context.Background())
	require.NoError(t, err)

	common.RequireMatchesIterator(t, iter, append(batch1, batch2...))
}

func TestBulkAppendBatches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.log")

	log, err := wal.OpenWAL(path)
	require.NoError(t, err)
	defer log.Close()

	const (
		batches  = 4
		perBatch = 128
	)

	expected := make([]*common.Entry, 0, batches*perBatch)
	for batch := 0; batch < batches; batch++ {
		current := make([]*common.Entry, 0, perBatch)
		for i := 0; i < perBatch; i++ {
			entry := &common.Entry{
				Type:  common.EntryTypePut,
				Key:   []byte(fmt.Sprintf("b%02d-key-%03d", batch, i)),
				Value: []byte(fmt.Sprintf("payload-%02d-%03d", batch, i)),
			}
			current = append(current, entry)
			expected = append(expected, entry)
		}
		require.NoError(t, log.Append(context.Background(), current))
	}

	iter, err := log.Iterator(context.Background())
	require.NoError(t, err)

	common.RequireMatchesIterator(t, iter, expected)
}

func TestOversizedEntryRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.log")

	log, err := wal.OpenWAL(path)
	require.NoError(t, err)
	defer log.Close()

	require.NoError(t, log.Append(context.Background(), []*common.Entry{
		{Type: common.EntryTypePut, Key: []byte("keep"), Value: []byte("me")},
	}))

	stat, err := os.Stat(path)
	require.NoError(t, err)
	sizeBefore := stat.Size()

	huge := &common.Entry{
		Type:  common.EntryTypePut,
		Key:   []byte("big"),
		Value: make([]byte, wal.MaxEntrySize),
	}
	err = log.Append(context.Background(), []*common.Entry{huge})
	require.ErrorIs(t, err, wal.ErrEntryTooLarge)

	// The rejected batch must not touch the file.
	stat, err = os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, sizeBefore, stat.Size())

	iter, err := log.Iterator(context.Background())
	require.NoError(t, err)
	common.RequireMatchesIterator(t, iter, []*common.Entry{
		{Type: common.EntryTypePut, Key: []byte("keep"), Value: []byte("me")},
	})
}

func TestLargestAcceptedEntry(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.log")

	log, err := wal.OpenWAL(path)
	require.NoError(t, err)
	defer log.Close()

	key := []byte("k")
	// tag(1) + keyLen(4) + key + valueLen(4) + value == MaxEntrySize exactly.
	value := make([]byte, wal.MaxEntrySize-1-4-len(key)-4)
	entry := &common.Entry{Type: common.EntryTypePut, Key: key, Value: value}

	require.NoError(t, log.Append(context.Background(), []*common.Entry{entry}))

	iter, err := log.Iterator(context.Background())
	require.NoError(t, err)
	got, err := iter.Next()
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, len(value), len(got.Value))
}

func TestReplayTruncatedFrame(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.log")

	log, err := wal.OpenWAL(path)
	require.NoError(t, err)

	batch := []*common.Entry{
		{Type: common.EntryTypePut, Key: []byte("a"), Value: []byte("A")},
		{Type: common.EntryTypePut, Key: []byte("b"), Value: []byte("B")},
	}
	require.NoError(t, log.Append(context.Background(), batch))
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	// Each frame here is 15 bytes: a 4-byte length prefix plus an 11-byte
	// put record. The cuts land inside the second frame.
	cases := map[string]int{
		"partial trailing header": len(data) - 13,
		"partial trailing body":   len(data) - 6,
	}
	for name, cut := range cases {
		t.Run(name, func(t *testing.T) {
			truncPath := filepath.Join(t.TempDir(), "0.log")
			require.NoError(t, os.WriteFile(truncPath, data[:cut], 0o644))

			log, err := wal.OpenWAL(truncPath)
			require.NoError(t, err)
			defer log.Close()

			iter, err := log.Iterator(context.Background())
			require.NoError(t, err)

			// First frame is intact.
			entry, err := iter.Next()
			require.NoError(t, err)
			require.NotNil(t, entry)

			// The torn second frame is a hard corruption error, never a
			// silent end of stream.
			_, err = iter.Next()
			require.ErrorIs(t, err, common.ErrCorruption)
		})
	}
}

func TestReplayDeviceErrorIsNotCorruption(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.log")

	log, err := wal.OpenWAL(path)
	require.NoError(t, err)
	defer log.Close()

	// Swap the file for a directory so the replay read fails with a real
	// I/O error rather than a short read.
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.Mkdir(path, 0o755))

	iter, err := log.Iterator(context.Background())
	require.NoError(t, err)
	defer iter.Close()

	_, err = iter.Next()
	require.Error(t, err)
	require.NotErrorIs(t, err, common.ErrCorruption)
}

func TestReplayUnknownTag(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0.log")

	// Frame of length 6 whose record carries tag 9.
	frame := []byte{6, 0, 0, 0, 9, 1, 0, 0, 0, 'x'}
	require.NoError(t, os.WriteFile(path, frame, 0o644))

	log, err := wal.OpenWAL(path)
	require.NoError(t, err)
	defer log.Close()

	iter, err := log.Iterator(context.Background())
	require.NoError(t, err)

	_, err = iter.Next()
	require.ErrorIs(t, err, common.ErrCorruption)
}
