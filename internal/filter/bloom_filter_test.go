package filter_test

import (
	"bytes"
	"fmt"
	"testing"

	"garnet/internal/filter"

	"github.com/stretchr/testify/require"
)

func TestNoFalseNegatives(t *testing.T) {
	k, m := filter.OptimalBloomFilterParams(1000, 0.01)
	bf := filter.NewBloomFilter(k, m)

	for i := 0; i < 1000; i++ {
		bf.Add([]byte(fmt.Sprintf("member-%04d", i)))
	}

	for i := 0; i < 1000; i++ {
		require.True(t, bf.MayContain([]byte(fmt.Sprintf("member-%04d", i))), "key %d", i)
	}
}

func TestFalsePositiveRate(t *testing.T) {
	const n = 1000
	k, m := filter.OptimalBloomFilterParams(n, 0.01)
	bf := filter.NewBloomFilter(k, m)

	for i := 0; i < n; i++ {
		bf.Add([]byte(fmt.Sprintf("member-%04d", i)))
	}

	falsePositives := 0
	const probes = 10000
	for i := 0; i < probes; i++ {
		if bf.MayContain([]byte(fmt.Sprintf("absent-%05d", i))) {
			falsePositives++
		}
	}

	// Target rate is 1%; allow generous slack to keep the test stable.
	require.Less(t, falsePositives, probes/20, "false positive rate above 5%%")
}

func TestOptimalParams(t *testing.T) {
	k, m := filter.OptimalBloomFilterParams(1000, 0.01)
	require.GreaterOrEqual(t, k, uint32(1))
	require.Greater(t, m, uint32(1000))

	// Degenerate input must not divide by zero.
	k, m = filter.OptimalBloomFilterParams(0, 0.01)
	require.GreaterOrEqual(t, k, uint32(1))
	require.Greater(t, m, uint32(0))
}

func TestSerializationRoundTrip(t *testing.T) {
	k, m := filter.OptimalBloomFilterParams(100, 0.01)
	bf := filter.NewBloomFilter(k, m)
	for i := 0; i < 100; i++ {
		bf.Add([]byte(fmt.Sprintf("key-%03d", i)))
	}

	var buf bytes.Buffer
	n, err := filter.WriteBloomFilter(&buf, bf)
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)

	restored, err := filter.ReadBloomFilter(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		require.True(t, restored.MayContain([]byte(fmt.Sprintf("key-%03d", i))))
	}

	// Restored filter answers identically to the original.
	for i := 0; i < 1000; i++ {
		probe := []byte(fmt.Sprintf("probe-%04d", i))
		require.Equal(t, bf.MayContain(probe), restored.MayContain(probe))
	}
}
