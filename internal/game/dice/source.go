// Package dice provides the randomness source for combat resolution.
// Injecting a Source keeps the damage calculator deterministic under test.
package dice

import (
	"crypto/rand"
	"math/big"
)

// Source produces uniform random percentages for combat rolls.
type Source interface {
	// Percent returns a uniform float in [0, 100).
	Percent() float64
}

// precision subdivides a percent into ten-thousandths so rolls near the
// clamp boundaries stay fair.
const precision = 1_000_000

// cryptoSource implements Source using crypto/rand.
//
// Invariant: all values produced are uniformly distributed in [0, 100).
type cryptoSource struct{}

// NewCryptoSource returns a Source backed by crypto/rand.
//
// Postcondition: Every value returned by Percent is in [0, 100).
func NewCryptoSource() Source {
	return &cryptoSource{}
}

// Percent returns a cryptographically secure uniform float in [0, 100).
//
// Panics with "dice: crypto/rand failure: <err>" if crypto/rand fails.
func (c *cryptoSource) Percent() float64 {
	val, err := rand.Int(rand.Reader, big.NewInt(precision))
	if err != nil {
		panic("dice: crypto/rand failure: " + err.Error())
	}
	return float64(val.Int64()) * 100 / precision
}

// SequenceSource replays a fixed sequence of percentages, cycling when
// exhausted. Test-only determinism; not safe for concurrent use.
type SequenceSource struct {
	values []float64
	next   int
}

// NewSequenceSource creates a SequenceSource over the given values.
//
// Precondition: values must be non-empty, each in [0, 100).
func NewSequenceSource(values ...float64) *SequenceSource {
	if len(values) == 0 {
		panic("dice: NewSequenceSource requires at least one value")
	}
	return &SequenceSource{values: values}
}

// Percent returns the next value in the sequence.
func (s *SequenceSource) Percent() float64 {
	v := s.values[s.next%len(s.values)]
	s.next++
	return v
}
