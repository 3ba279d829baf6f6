package block_test

import (
	"bytes"
	"fmt"
	"testing"

	"garnet/internal/block"
	"garnet/internal/common"

	"github.com/stretchr/testify/require"
)

func encodeBlock(t *testing.T, entries []*common.Entry) []byte {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range entries {
		_, err := common.WriteEntry(&buf, e)
		require.NoError(t, err)
	}
	return buf.Bytes()
}

func TestGetFound(t *testing.T) {
	entries := make([]*common.Entry, 0, block.BLOCK_SIZE)
	for i := 0; i < block.BLOCK_SIZE; i++ {
		entries = append(entries, &common.Entry{
			Type:  common.EntryTypePut,
			Key:   []byte(fmt.Sprintf("key-%03d", i)),
			Value: []byte(fmt.Sprintf("value-%03d", i)),
		})
	}

	b, err := block.NewBlock(encodeBlock(t, entries))
	require.NoError(t, err)
	require.Equal(t, block.BLOCK_SIZE, b.Len())

	for i := 0; i < block.BLOCK_SIZE; i++ {
		entry, ok := b.Get([]byte(fmt.Sprintf("key-%03d", i)))
		require.True(t, ok)
		require.Equal(t, []byte(fmt.Sprintf("value-%03d", i)), entry.Value)
	}
}

func TestGetMissing(t *testing.T) {
	entries := []*common.Entry{
		{Type: common.EntryTypePut, Key: []byte("b"), Value: []byte("B")},
		{Type: common.EntryTypePut, Key: []byte("d"), Value: []byte("D")},
		{Type: common.EntryTypePut, Key: []byte("f"), Value: []byte("F")},
	}

	b, err := block.NewBlock(encodeBlock(t, entries))
	require.NoError(t, err)

	for _, probe := range []string{"a", "c", "e", "g"} {
		_, ok := b.Get([]byte(probe))
		require.False(t, ok, "probe %q", probe)
	}
}

func TestTombstoneEntries(t *testing.T) {
	entries := []*common.Entry{
		{Type: common.EntryTypePut, Key: []byte("live"), Value: []byte("v")},
		{Type: common.EntryTypeDelete, Key: []byte("zapped")},
	}

	b, err := block.NewBlock(encodeBlock(t, entries))
	require.NoError(t, err)

	entry, ok := b.Get([]byte("zapped"))
	require.True(t, ok)
	require.True(t, entry.Tombstone())
}

func TestCorruptBlock(t *testing.T) {
	data := encodeBlock(t, []*common.Entry{
		{Type: common.EntryTypePut, Key: []byte("key"), Value: []byte("value")},
	})

	_, err := block.NewBlock(data[:len(data)-2])
	require.ErrorIs(t, err, common.ErrCorruption)
}

func TestEmptyBlock(t *testing.T) {
	b, err := block.NewBlock(nil)
	require.NoError(t, err)
	require.Zero(t, b.Len())

	_, ok := b.Get([]byte("anything"))
	require.False(t, ok)
}
