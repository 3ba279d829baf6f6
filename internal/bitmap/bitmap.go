package bitmap

import "fmt"

// Bitmap is a fixed-size bitset addressed by bit position.
type Bitmap interface {
	// Add sets the bit at position i.
	Add(i uint32)

	// Contains reports whether the bit at position i is set.
	Contains(i uint32) bool

	// Bytes exposes the backing storage for serialization.
	Bytes() []byte
}

type bitmapImpl struct {
	data    []byte // each byte stores 8 bits
	numBits uint32
}

var _ Bitmap = (*bitmapImpl)(nil)

// NewBitmap creates a bitmap with the specified number of bits, all zero.
func NewBitmap(numBits uint32) Bitmap {
	return &bitmapImpl{
		data:    make([]byte, (numBits+7)/8),
		numBits: numBits,
	}
}

// NewBitmapFromBytes wraps previously serialized backing storage.
func NewBitmapFromBytes(numBits uint32, data []byte) Bitmap {
	return &bitmapImpl{
		data:    data,
		numBits: numBits,
	}
}

func (b *bitmapImpl) Add(i uint32) {
	if i >= b.numBits {
		panic(fmt.Sprintf("bitmap: index %d out of range [0, %d)", i, b.numBits))
	}
	b.data[i/8] |= 1 << (i % 8)
}

func (b *bitmapImpl) Contains(i uint32) bool {
	if i >= b.numBits {
		panic(fmt.Sprintf("bitmap: index %d out of range [0, %d)", i, b.numBits))
	}
	return b.data[i/8]&(1<<(i%8)) != 0
}

func (b *bitmapImpl) Bytes() []byte {
	return b.data
}
