// Package bitfield provides a set data structure for tracking piece indexes.
package bitfield

import (
	"encoding/hex"
	"math/bits"
)

// Bitfield keeps a bit for each piece index. 0 is the most significant bit.
type Bitfield struct {
	b      []byte
	length uint32
}

// New creates a new Bitfield of length bits, all clear.
func New(length uint32) *Bitfield {
	return &Bitfield{b: make([]byte, (length+7)/8), length: length}
}

// NewBytes returns a new Bitfield from b.
// Bytes in b are copied. Spare bits in the last byte are cleared.
// Returns nil unless b is exactly the number of bytes needed to hold
// length bits, which is what the wire format requires.
func NewBytes(b []byte, length uint32) *Bitfield {
	div, mod := length/8, length%8
	required := div
	if mod != 0 {
		required++
	}
	if uint32(len(b)) != required {
		return nil
	}
	data := make([]byte, required)
	copy(data, b[:required])
	if mod != 0 {
		data[required-1] &= ^(0xff >> mod)
	}
	return &Bitfield{b: data, length: length}
}

// Bytes returns the underlying bytes. Modifying the returned slice modifies the bits.
func (b *Bitfield) Bytes() []byte { return b.b }

// Len returns the number of bits as given to New.
func (b *Bitfield) Len() uint32 { return b.length }

// Hex returns bytes as a hex string.
func (b *Bitfield) Hex() string { return hex.EncodeToString(b.b) }

// Set bit i. Panics if i >= b.Len().
func (b *Bitfield) Set(i uint32) {
	b.checkIndex(i)
	b.b[i/8] |= 1 << (7 - i%8)
}

// Clear bit i. Panics if i >= b.Len().
func (b *Bitfield) Clear(i uint32) {
	b.checkIndex(i)
	b.b[i/8] &= ^(1 << (7 - i%8))
}

// Test bit i. Panics if i >= b.Len().
func (b *Bitfield) Test(i uint32) bool {
	b.checkIndex(i)
	return b.b[i/8]&(1<<(7-i%8)) > 0
}

// Count returns the count of set bits.
func (b *Bitfield) Count() uint32 {
	var total uint32
	for _, v := range b.b {
		total += uint32(bits.OnesCount8(v))
	}
	return total
}

// All returns true if all bits are set.
func (b *Bitfield) All() bool {
	return b.Count() == b.length
}

func (b *Bitfield) checkIndex(i uint32) {
	if i >= b.length {
		panic("bitfield index out of bound")
	}
}
