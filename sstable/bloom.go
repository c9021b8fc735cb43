package sstable

import (
	"math"

	"github.com/spaolacci/murmur3"
)

// BloomFilter is a membership filter over segment keys. It never reports a
// present key as absent; false positives are resolved by the real lookup.
// The filter is held in memory only and rebuilt from the persisted keys on
// load, so it never has to be serialized alongside the segment.
type BloomFilter struct {
	bits    []uint64
	numBits uint64
	numHash uint32
}

// NewBloomFilter sizes a filter for the expected number of keys and target
// false-positive rate.
func NewBloomFilter(expectedKeys int, fpRate float64) *BloomFilter {
	if expectedKeys < 1 {
		expectedKeys = 1
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = 0.01
	}

	ln2 := math.Ln2
	numBits := uint64(math.Ceil(-float64(expectedKeys) * math.Log(fpRate) / (ln2 * ln2)))
	if numBits < 64 {
		numBits = 64
	}

	numHash := uint32(math.Round(float64(numBits) / float64(expectedKeys) * ln2))
	if numHash < 1 {
		numHash = 1
	}

	return &BloomFilter{
		bits:    make([]uint64, (numBits+63)/64),
		numBits: numBits,
		numHash: numHash,
	}
}

// Add inserts a key into the filter.
func (f *BloomFilter) Add(key string) {
	h1, h2 := murmur3.Sum128([]byte(key))
	for i := uint32(0); i < f.numHash; i++ {
		// Double hashing (Kirsch-Mitzenmacher) instead of k independent
		// hash functions.
		pos := (h1 + uint64(i)*h2) % f.numBits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
}

// MayContain reports whether the key might be in the set. A false return is
// definitive absence.
func (f *BloomFilter) MayContain(key string) bool {
	h1, h2 := murmur3.Sum128([]byte(key))
	for i := uint32(0); i < f.numHash; i++ {
		pos := (h1 + uint64(i)*h2) % f.numBits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}

	return true
}

// NumBits returns the filter size in bits.
func (f *BloomFilter) NumBits() uint64 {
	return f.numBits
}

// NumHashFuncs returns the number of probe positions per key.
func (f *BloomFilter) NumHashFuncs() uint32 {
	return f.numHash
}
