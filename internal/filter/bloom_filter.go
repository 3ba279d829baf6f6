package filter

import (
	"hash/fnv"
	"io"
	"math"

	"garnet/internal/bitmap"
	"garnet/internal/common"
)

// bloomFilter implements a space-efficient probabilistic set membership test
// with no false negatives, using double hashing over two FNV-1a digests.
type bloomFilter struct {
	bitmap bitmap.Bitmap
	k      uint32 // number of hash functions
	m      uint32 // number of bits in bitmap
}

var _ Filter = (*bloomFilter)(nil)

// OptimalBloomFilterParams computes bloom filter parameters for n expected
// keys at false positive rate p (e.g. 0.01 for 1%).
func OptimalBloomFilterParams(n uint32, p float64) (k uint32, m uint32) {
	if n == 0 {
		n = 1
	}
	// m = -n * ln(p) / (ln(2)^2)
	m = uint32(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	// k = (m/n) * ln(2)
	k = uint32(math.Ceil(float64(m) / float64(n) * math.Ln2))
	if k < 1 {
		k = 1
	}
	return k, m
}

// NewBloomFilter creates a bloom filter with k hash functions over m bits.
func NewBloomFilter(k, m uint32) Filter {
	return &bloomFilter{
		bitmap: bitmap.NewBitmap(m),
		k:      k,
		m:      m,
	}
}

// Add inserts a key into the bloom filter.
func (bf *bloomFilter) Add(key []byte) {
	h1, h2 := bf.hash(key)
	for i := uint32(0); i < bf.k; i++ {
		bf.bitmap.Add(uint32((h1 + uint64(i)*h2) % uint64(bf.m)))
	}
}

// MayContain returns false only if the key is definitely not in the set.
func (bf *bloomFilter) MayContain(key []byte) bool {
	h1, h2 := bf.hash(key)
	for i := uint32(0); i < bf.k; i++ {
		if !bf.bitmap.Contains(uint32((h1 + uint64(i)*h2) % uint64(bf.m))) {
			return false
		}
	}
	return true
}

func (bf *bloomFilter) hash(key []byte) (uint64, uint64) {
	h1 := fnv.New64a()
	h1.Write(key)

	h2 := fnv.New64a()
	h2.Write(key)
	h2.Write([]byte{0x01})

	hash2 := h2.Sum64()
	if hash2 == 0 {
		hash2 = 1
	}
	return h1.Sum64(), hash2
}

// WriteBloomFilter serializes a bloom filter.
// Format: [k: u32][m: u32][bitmap bytes]
func WriteBloomFilter(w io.Writer, f Filter) (int, error) {
	bf := f.(*bloomFilter)
	total := 0

	n, err := common.WriteUint32(w, bf.k)
	total += n
	if err != nil {
		return total, err
	}
	n, err = common.WriteUint32(w, bf.m)
	total += n
	if err != nil {
		return total, err
	}
	n, err = common.WriteBytes(w, bf.bitmap.Bytes())
	total += n
	return total, err
}

// ReadBloomFilter deserializes a bloom filter written by WriteBloomFilter.
func ReadBloomFilter(r io.Reader) (Filter, error) {
	k, err := common.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	m, err := common.ReadUint32(r)
	if err != nil {
		return nil, err
	}
	data, err := common.ReadBytes(r, uint64((m+7)/8))
	if err != nil {
		return nil, err
	}
	return &bloomFilter{
		bitmap: bitmap.NewBitmapFromBytes(m, data),
		k:      k,
		m:      m,
	}, nil
}
