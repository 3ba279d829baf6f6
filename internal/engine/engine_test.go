package engine_test

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"garnet/internal/db"
	"garnet/internal/engine"

	"github.com/stretchr/testify/require"
)

// The persistent store satisfies the same contract as the in-memory engine.
var _ engine.Engine = (*db.DB)(nil)

func TestMemoryEngine(t *testing.T) {
	m := engine.NewMemory()
	defer m.Close()

	require.NoError(t, m.Put([]byte("k"), []byte("v1")))
	require.NoError(t, m.Put([]byte("k"), []byte("v2")))

	got, err := m.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v2"), got)

	require.NoError(t, m.Delete([]byte("k")))
	_, err = m.Get([]byte("k"))
	require.ErrorIs(t, err, db.ErrNotFound)

	require.NoError(t, m.Delete([]byte("absent")))
}

func TestMemoryEngineClonesValues(t *testing.T) {
	m := engine.NewMemory()
	defer m.Close()

	value := []byte("original")
	require.NoError(t, m.Put([]byte("k"), value))
	value[0] = 'X'

	got, err := m.Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)
}

// TestEnginesAgree runs the same random workload against the persistent
// store and the in-memory oracle and requires identical observable state.
func TestEnginesAgree(t *testing.T) {
	d, err := db.Open(
		db.WithDBPath(t.TempDir()),
		db.WithMemtableFlushBytes(512),
		db.WithMaxLevelTables(2),
		db.WithCompactionInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	defer d.Close()

	oracle := engine.NewMemory()
	defer oracle.Close()

	rng := rand.New(rand.NewSource(1))
	const keySpace = 40

	for i := 0; i < 1000; i++ {
		key := []byte(fmt.Sprintf("key%02d", rng.Intn(keySpace)))
		if rng.Intn(4) == 0 {
			require.NoError(t, d.Delete(key))
			require.NoError(t, oracle.Delete(key))
		} else {
			value := []byte(fmt.Sprintf("value%d", i))
			require.NoError(t, d.Put(key, value))
			require.NoError(t, oracle.Put(key, value))
		}
	}

	for i := 0; i < keySpace; i++ {
		key := []byte(fmt.Sprintf("key%02d", i))
		want, wantErr := oracle.Get(key)
		got, gotErr := d.Get(key)
		if wantErr != nil {
			require.ErrorIs(t, gotErr, db.ErrNotFound, "key %s", key)
			continue
		}
		require.NoError(t, gotErr, "key %s", key)
		require.Equal(t, want, got, "key %s", key)
	}
}
