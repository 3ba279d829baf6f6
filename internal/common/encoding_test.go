package common_test

import (
	"bytes"
	"testing"

	"garnet/internal/common"

	"github.com/stretchr/testify/require"
)

func TestEntryRoundTrip(t *testing.T) {
	entries := []*common.Entry{
		{Type: common.EntryTypePut, Key: []byte("alpha"), Value: []byte("A")},
		{Type: common.EntryTypeDelete, Key: []byte("beta")},
		{Type: common.EntryTypePut, Key: []byte("gamma"), Value: nil},
	}

	var buf bytes.Buffer
	for _, e := range entries {
		n, err := common.WriteEntry(&buf, e)
		require.NoError(t, err)
		require.Equal(t, common.EncodedEntrySize(e), n)
	}

	r := bytes.NewReader(buf.Bytes())
	for _, want := range entries {
		got, err := common.ReadEntry(r)
		require.NoError(t, err)
		require.NotNil(t, got)
		require.Equal(t, want.Type, got.Type)
		require.Equal(t, string(want.Key), string(got.Key))
		require.Equal(t, string(want.Value), string(got.Value))
	}

	// Clean EOF at a record boundary terminates the stream without error.
	got, err := common.ReadEntry(r)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestEncodedEntrySize(t *testing.T) {
	put := &common.Entry{Type: common.EntryTypePut, Key: []byte("key"), Value: []byte("value")}
	require.Equal(t, 1+4+3+4+5, common.EncodedEntrySize(put))

	del := &common.Entry{Type: common.EntryTypeDelete, Key: []byte("key")}
	require.Equal(t, 1+4+3, common.EncodedEntrySize(del))
}

func TestReadEntryUnknownTag(t *testing.T) {
	data := []byte{0x7f, 0, 0, 0, 0}
	_, err := common.ReadEntry(bytes.NewReader(data))
	require.ErrorIs(t, err, common.ErrCorruption)
}

func TestReadEntryTruncated(t *testing.T) {
	var buf bytes.Buffer
	_, err := common.WriteEntry(&buf, &common.Entry{
		Type:  common.EntryTypePut,
		Key:   []byte("hello"),
		Value: []byte("world"),
	})
	require.NoError(t, err)

	full := buf.Bytes()
	// Every strict prefix except the empty one is a truncated record.
	for cut := 1; cut < len(full); cut++ {
		_, err := common.ReadEntry(bytes.NewReader(full[:cut]))
		require.ErrorIs(t, err, common.ErrCorruption, "prefix of %d bytes", cut)
	}
}

func TestTombstone(t *testing.T) {
	require.True(t, (&common.Entry{Type: common.EntryTypeDelete}).Tombstone())
	require.False(t, (&common.Entry{Type: common.EntryTypePut}).Tombstone())
}
