// Package cdc implements content-defined chunking using the FastCDC family
// of gear-based rolling hashes, normalized (level 1: one mask bit stricter
// below the average size, one bit looser above it) to bias chunk sizes
// toward the requested average rather than drifting into a bimodal
// distribution. This is a from-scratch Go port: the pack has no FastCDC
// library for Go to adapt (restic's own chunker uses an older
// Rabin-fingerprint algorithm with different boundaries), so it follows the
// algorithm described in the original implementation's use of
// fastcdc::v2020::FastCDC directly.
package cdc

import (
	"fmt"
	"math/bits"
)

// Chunk describes one content-defined boundary within a byte sequence.
type Chunk struct {
	Offset uint64
	Length uint64
}

// gear is the rolling-hash lookup table, one pseudo-random 64-bit value per
// possible input byte. Generated once at init from a fixed seed (splitmix64)
// so that chunking is reproducible across processes and platforms without
// depending on an externally vendored table.
var gear [256]uint64

func init() {
	state := uint64(0x9e3779b97f4a7c15)
	for i := range gear {
		state += 0x9e3779b97f4a7c15
		z := state
		z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
		z = (z ^ (z >> 27)) * 0x94d049bb133111eb
		gear[i] = z ^ (z >> 31)
	}
}

// Chunker partitions data into content-defined chunks bounded by
// [min, max] bytes, targeting avg bytes on average. The caller is
// responsible for enforcing min = avg/4, max = avg*4 per the chunking
// contract; Chunker itself only requires min <= avg <= max.
type Chunker struct {
	min, avg, max uint32
	maskS, maskL  uint64
}

// New constructs a Chunker for the given bounds. avg should be a power of
// two (16384, 32768, 65536, ...); the normalized masks are derived from
// floor(log2(avg)).
func New(min, avg, max uint32) (*Chunker, error) {
	if min == 0 || avg == 0 || max == 0 || min > avg || avg > max {
		return nil, fmt.Errorf("cdc: invalid bounds min=%d avg=%d max=%d", min, avg, max)
	}
	bitlen := bits.Len32(avg) - 1
	if bitlen < 2 {
		return nil, fmt.Errorf("cdc: avg size %d too small", avg)
	}
	return &Chunker{
		min:   min,
		avg:   avg,
		max:   max,
		maskS: (uint64(1) << uint(bitlen+1)) - 1, // stricter: more bits must be zero
		maskL: (uint64(1) << uint(bitlen-1)) - 1, // looser: fewer bits must be zero
	}, nil
}

// Split returns the chunk boundaries for the entirety of data. The returned
// chunks partition data exactly: offsets and lengths have no gaps or
// overlaps and sum to len(data).
func (c *Chunker) Split(data []byte) []Chunk {
	var chunks []Chunk
	var offset uint64
	remaining := data
	for len(remaining) > 0 {
		n := c.nextCut(remaining)
		chunks = append(chunks, Chunk{Offset: offset, Length: uint64(n)})
		offset += uint64(n)
		remaining = remaining[n:]
	}
	return chunks
}

// nextCut finds the length of the next chunk within src, which may be the
// entirety of src if no interior boundary is found before max or the end
// of the data.
func (c *Chunker) nextCut(src []byte) int {
	n := len(src)
	if uint32(n) <= c.min {
		return n
	}
	end := n
	if uint32(end) > c.max {
		end = int(c.max)
	}

	var fp uint64
	i := int(c.min)
	barrier := end
	if uint32(barrier) > c.avg {
		barrier = int(c.avg)
	}
	for ; i < barrier; i++ {
		fp = (fp << 1) + gear[src[i]]
		if fp&c.maskS == 0 {
			return i + 1
		}
	}
	for ; i < end; i++ {
		fp = (fp << 1) + gear[src[i]]
		if fp&c.maskL == 0 {
			return i + 1
		}
	}
	return end
}
