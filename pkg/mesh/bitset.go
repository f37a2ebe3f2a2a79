package mesh

import (
	"errors"
	"fmt"
)

// Bitset errors.
var (
	ErrBitRange     = errors.New("bitset index out of range")
	ErrSizeMismatch = errors.New("bitsets must have the same size")
)

const wordBits = 64

// Bitset is a fixed-size bit vector packed into 64-bit words. The
// kernel uses one bit per model vertex during connectivity analysis.
type Bitset struct {
	words    []uint64
	bitCnt   int
	lastMask uint64
}

// NewBitset returns a zeroed Bitset holding n bits.
func NewBitset(n int) *Bitset {
	wordCnt := n / wordBits
	if n%wordBits != 0 {
		wordCnt++
	}
	mask := uint64(1)<<(n%wordBits) - 1
	if n%wordBits == 0 && n > 0 {
		mask = ^uint64(0)
	}
	return &Bitset{
		words:    make([]uint64, wordCnt),
		bitCnt:   n,
		lastMask: mask,
	}
}

// Len returns the number of bits.
func (b *Bitset) Len() int {
	return b.bitCnt
}

func (b *Bitset) checkIndex(i int) error {
	if i < 0 || i >= b.bitCnt {
		return fmt.Errorf("%w: index %d, size %d", ErrBitRange, i, b.bitCnt)
	}
	return nil
}

// Get reports whether bit i is set.
func (b *Bitset) Get(i int) (bool, error) {
	if err := b.checkIndex(i); err != nil {
		return false, err
	}
	return b.words[i/wordBits]&(1<<(i%wordBits)) != 0, nil
}

// Set sets bit i to v.
func (b *Bitset) Set(i int, v bool) error {
	if err := b.checkIndex(i); err != nil {
		return err
	}
	if v {
		b.words[i/wordBits] |= 1 << (i % wordBits)
	} else {
		b.words[i/wordBits] &^= 1 << (i % wordBits)
	}
	return nil
}

// Flip inverts bit i.
func (b *Bitset) Flip(i int) error {
	if err := b.checkIndex(i); err != nil {
		return err
	}
	b.words[i/wordBits] ^= 1 << (i % wordBits)
	return nil
}

// Reset clears every bit.
func (b *Bitset) Reset() {
	for i := range b.words {
		b.words[i] = 0
	}
}

// All reports whether every bit is set. Padding bits beyond Len are
// ignored through the last-word mask.
func (b *Bitset) All() bool {
	if b.bitCnt == 0 {
		return true
	}
	last := len(b.words) - 1
	for i := 0; i < last; i++ {
		if b.words[i] != ^uint64(0) {
			return false
		}
	}
	return b.words[last] == b.lastMask
}

// Any reports whether at least one bit is set.
func (b *Bitset) Any() bool {
	for _, w := range b.words {
		if w != 0 {
			return true
		}
	}
	return false
}

// None reports whether no bit is set.
func (b *Bitset) None() bool {
	return !b.Any()
}

// Clone returns a deep copy.
func (b *Bitset) Clone() *Bitset {
	c := &Bitset{
		words:    make([]uint64, len(b.words)),
		bitCnt:   b.bitCnt,
		lastMask: b.lastMask,
	}
	copy(c.words, b.words)
	return c
}

func (b *Bitset) checkSize(other *Bitset) error {
	if b.bitCnt != other.bitCnt {
		return fmt.Errorf("%w: %d vs %d", ErrSizeMismatch, b.bitCnt, other.bitCnt)
	}
	return nil
}

// Or returns the bitwise OR of b and other.
func (b *Bitset) Or(other *Bitset) (*Bitset, error) {
	if err := b.checkSize(other); err != nil {
		return nil, err
	}
	res := b.Clone()
	for i := range res.words {
		res.words[i] |= other.words[i]
	}
	return res, nil
}

// OrAssign ORs other into b.
func (b *Bitset) OrAssign(other *Bitset) error {
	if err := b.checkSize(other); err != nil {
		return err
	}
	for i := range b.words {
		b.words[i] |= other.words[i]
	}
	return nil
}

// And returns the bitwise AND of b and other.
func (b *Bitset) And(other *Bitset) (*Bitset, error) {
	if err := b.checkSize(other); err != nil {
		return nil, err
	}
	res := b.Clone()
	for i := range res.words {
		res.words[i] &= other.words[i]
	}
	return res, nil
}

// AndAssign ANDs other into b.
func (b *Bitset) AndAssign(other *Bitset) error {
	if err := b.checkSize(other); err != nil {
		return err
	}
	for i := range b.words {
		b.words[i] &= other.words[i]
	}
	return nil
}

// Xor returns the bitwise XOR of b and other.
func (b *Bitset) Xor(other *Bitset) (*Bitset, error) {
	if err := b.checkSize(other); err != nil {
		return nil, err
	}
	res := b.Clone()
	for i := range res.words {
		res.words[i] ^= other.words[i]
	}
	return res, nil
}

// XorAssign XORs other into b.
func (b *Bitset) XorAssign(other *Bitset) error {
	if err := b.checkSize(other); err != nil {
		return err
	}
	for i := range b.words {
		b.words[i] ^= other.words[i]
	}
	return nil
}
