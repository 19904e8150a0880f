// Package random provides Random implementations.
package random

import (
	"crypto/rand"
	"encoding/hex"
	"sync"

	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// Real uses crypto/rand for secure randomness.
type Real struct{}

// Bytes generates n cryptographically secure random bytes.
func (Real) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// String generates a random hex string of n characters.
func (r Real) String(n int) (string, error) {
	return hexString(r, n)
}

// Fake provides deterministic randomness for testing.
type Fake struct {
	mu      sync.Mutex
	counter int
	values  [][]byte // preset values, returned in order
	index   int
	err     error
}

// NewFake creates a fake random source.
func NewFake() *Fake {
	return &Fake{}
}

// WithValues sets preset byte values to return.
func (f *Fake) WithValues(values ...[]byte) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values = values
	f.index = 0
	return f
}

// WithError makes every call fail with err.
func (f *Fake) WithError(err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
	return f
}

// Bytes returns preset bytes, then deterministic bytes based on a counter.
func (f *Fake) Bytes(n int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return nil, f.err
	}

	if f.index < len(f.values) {
		v := f.values[f.index]
		f.index++
		result := make([]byte, n)
		copy(result, v)
		return result, nil
	}

	f.counter++
	b := make([]byte, n)
	for i := 0; i < n; i++ {
		b[i] = byte((f.counter + i) % 256)
	}
	return b, nil
}

// String returns a deterministic hex string.
func (f *Fake) String(n int) (string, error) {
	return hexString(f, n)
}

func hexString(src ports.Random, n int) (string, error) {
	b, err := src.Bytes((n + 1) / 2)
	if err != nil {
		return "", err
	}
	s := hex.EncodeToString(b)
	if len(s) > n {
		s = s[:n]
	}
	return s, nil
}

// Ensure interface compliance.
var (
	_ ports.Random = Real{}
	_ ports.Random = (*Fake)(nil)
)
