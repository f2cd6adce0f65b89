// Package bloom provides a probabilistic membership filter for player ids.
// The sink embeds a serialized filter in each published events table so
// downstream consumers can skip tables that cannot contain a player.
package bloom

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/golang/snappy"
	"github.com/spaolacci/murmur3"
)

// Filter is a bloom filter with no false negatives: if an id was added,
// MightContain always returns true.
type Filter struct {
	bits      []uint64
	numBits   uint64
	numHashes uint64
	count     uint64
}

// New creates a Filter sized for the expected number of ids and target false
// positive rate.
func New(expectedItems int, targetFPR float64) *Filter {
	numBits, numHashes := optimalParameters(expectedItems, targetFPR)

	// Round up to whole words
	numWords := (numBits + 63) / 64
	return &Filter{
		bits:      make([]uint64, numWords),
		numBits:   uint64(numWords * 64),
		numHashes: uint64(numHashes),
	}
}

// optimalParameters computes bit and hash counts from the standard formulas
// m = -n*ln(p)/ln(2)^2 and k = (m/n)*ln(2).
func optimalParameters(expectedItems int, targetFPR float64) (numBits, numHashes int) {
	if expectedItems <= 0 {
		expectedItems = 1000
	}
	if targetFPR <= 0 || targetFPR >= 1 {
		targetFPR = 0.01
	}

	n := float64(expectedItems)
	m := -n * math.Log(targetFPR) / (math.Ln2 * math.Ln2)
	numBits = int(math.Ceil(m))
	numHashes = int(math.Ceil((m / n) * math.Ln2))

	if numBits < 64 {
		numBits = 64
	}
	if numHashes < 1 {
		numHashes = 1
	}
	return numBits, numHashes
}

// Add inserts an id into the filter.
func (f *Filter) Add(id string) {
	h1, h2 := hash128(id)
	for i := uint64(0); i < f.numHashes; i++ {
		// Double hashing: h(i) = h1 + i*h2
		pos := (h1 + i*h2) % f.numBits
		f.bits[pos/64] |= 1 << (pos % 64)
	}
	f.count++
}

// MightContain reports whether the id might be in the filter. False positives
// are possible; false negatives are not.
func (f *Filter) MightContain(id string) bool {
	h1, h2 := hash128(id)
	for i := uint64(0); i < f.numHashes; i++ {
		pos := (h1 + i*h2) % f.numBits
		if f.bits[pos/64]&(1<<(pos%64)) == 0 {
			return false
		}
	}
	return true
}

// Count returns the number of ids added.
func (f *Filter) Count() uint64 {
	return f.count
}

// FalsePositiveRate estimates the current false positive rate from the fill
// ratio: (1 - e^(-k*n/m))^k.
func (f *Filter) FalsePositiveRate() float64 {
	if f.count == 0 {
		return 0
	}
	k := float64(f.numHashes)
	n := float64(f.count)
	m := float64(f.numBits)
	return math.Pow(1-math.Exp(-k*n/m), k)
}

// hash128 computes the murmur3 128-bit hash of the id as two 64-bit values.
func hash128(id string) (uint64, uint64) {
	return murmur3.Sum128([]byte(id))
}

// Serialize encodes the filter as a snappy-compressed byte block:
// a 24-byte header (numBits, numHashes, count as little-endian uint64)
// followed by the bit array.
func (f *Filter) Serialize() []byte {
	buf := make([]byte, 24+len(f.bits)*8)
	binary.LittleEndian.PutUint64(buf[0:8], f.numBits)
	binary.LittleEndian.PutUint64(buf[8:16], f.numHashes)
	binary.LittleEndian.PutUint64(buf[16:24], f.count)
	for i, word := range f.bits {
		binary.LittleEndian.PutUint64(buf[24+i*8:], word)
	}
	return snappy.Encode(nil, buf)
}

// Deserialize decodes a filter produced by Serialize.
func Deserialize(data []byte) (*Filter, error) {
	buf, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("bloom: corrupt filter block: %w", err)
	}
	if len(buf) < 24 || (len(buf)-24)%8 != 0 {
		return nil, fmt.Errorf("bloom: invalid filter length %d", len(buf))
	}

	f := &Filter{
		numBits:   binary.LittleEndian.Uint64(buf[0:8]),
		numHashes: binary.LittleEndian.Uint64(buf[8:16]),
		count:     binary.LittleEndian.Uint64(buf[16:24]),
	}
	f.bits = make([]uint64, (len(buf)-24)/8)
	for i := range f.bits {
		f.bits[i] = binary.LittleEndian.Uint64(buf[24+i*8:])
	}
	if f.numBits != uint64(len(f.bits)*64) {
		return nil, fmt.Errorf("bloom: header bit count %d does not match payload", f.numBits)
	}
	return f, nil
}
