package compaction_test

import (
	"errors"
	"testing"

	"garnet/internal/common"
	"garnet/internal/compaction"

	"github.com/stretchr/testify/require"
)

func putEntry(key, value string) *common.Entry {
	return &common.Entry{Type: common.EntryTypePut, Key: []byte(key), Value: []byte(value)}
}

func deleteEntry(key string) *common.Entry {
	return &common.Entry{Type: common.EntryTypeDelete, Key: []byte(key)}
}

func source(fileNo common.FileNo, entries ...*common.Entry) compaction.MergeSource {
	return compaction.MergeSource{
		Iter:   &common.SliceIterator{Entries: entries},
		FileNo: fileNo,
	}
}

func TestMergeInterleaves(t *testing.T) {
	merged, err := compaction.NewMergeIterator([]compaction.MergeSource{
		source(1, putEntry("a", "1"), putEntry("c", "3"), putEntry("e", "5")),
		source(2, putEntry("b", "2"), putEntry("d", "4")),
	}, false)
	require.NoError(t, err)

	common.RequireMatchesIterator(t, merged, []*common.Entry{
		putEntry("a", "1"),
		putEntry("b", "2"),
		putEntry("c", "3"),
		putEntry("d", "4"),
		putEntry("e", "5"),
	})
}

func TestMergeNewestFileWins(t *testing.T) {
	merged, err := compaction.NewMergeIterator([]compaction.MergeSource{
		source(3, putEntry("a", "new"), putEntry("b", "new")),
		source(1, putEntry("a", "old"), putEntry("c", "old")),
		source(2, putEntry("b", "mid")),
	}, false)
	require.NoError(t, err)

	common.RequireMatchesIterator(t, merged, []*common.Entry{
		putEntry("a", "new"),
		putEntry("b", "new"),
		putEntry("c", "old"),
	})
}

func TestMergeKeepsTombstones(t *testing.T) {
	merged, err := compaction.NewMergeIterator([]compaction.MergeSource{
		source(2, deleteEntry("a")),
		source(1, putEntry("a", "old"), putEntry("b", "1")),
	}, false)
	require.NoError(t, err)

	common.RequireMatchesIterator(t, merged, []*common.Entry{
		deleteEntry("a"),
		putEntry("b", "1"),
	})
}

func TestMergeDropsTombstones(t *testing.T) {
	merged, err := compaction.NewMergeIterator([]compaction.MergeSource{
		source(2, deleteEntry("a"), putEntry("c", "3")),
		source(1, putEntry("a", "old"), putEntry("b", "1")),
	}, true)
	require.NoError(t, err)

	common.RequireMatchesIterator(t, merged, []*common.Entry{
		putEntry("b", "1"),
		putEntry("c", "3"),
	})
}

func TestMergeTombstoneShadowsOlderPut(t *testing.T) {
	// A newer put must survive a delete from an older file.
	merged, err := compaction.NewMergeIterator([]compaction.MergeSource{
		source(1, deleteEntry("a")),
		source(2, putEntry("a", "revived")),
	}, true)
	require.NoError(t, err)

	common.RequireMatchesIterator(t, merged, []*common.Entry{
		putEntry("a", "revived"),
	})
}

func TestMergeEmptySources(t *testing.T) {
	merged, err := compaction.NewMergeIterator(nil, false)
	require.NoError(t, err)
	entry, err := merged.Next()
	require.NoError(t, err)
	require.Nil(t, entry)

	merged, err = compaction.NewMergeIterator([]compaction.MergeSource{
		source(1),
		source(2, putEntry("a", "1")),
	}, false)
	require.NoError(t, err)
	common.RequireMatchesIterator(t, merged, []*common.Entry{putEntry("a", "1")})
}

func TestMergePropagatesSourceError(t *testing.T) {
	errBoom := errors.New("boom")
	_, err := compaction.NewMergeIterator([]compaction.MergeSource{
		{Iter: &failingIterator{err: errBoom}, FileNo: 1},
	}, false)
	require.ErrorIs(t, err, errBoom)
}

type failingIterator struct{ err error }

func (it *failingIterator) Next() (*common.Entry, error) { return nil, it.err }
