// Package lock provides ports.KeyLocker implementations used to serialize
// admission of concurrent requests carrying the same API key.
package lock

import (
	"context"
	"hash/fnv"
	"sync"

	"github.com/AndresRodriguez-98/BibliotecaApi/ports"
)

// None never blocks. Concurrent requests on one key may each pass the
// quota check before any of them records usage.
type None struct{}

// Lock returns immediately.
func (None) Lock(ctx context.Context, keyID string) (func(), error) {
	return func() {}, nil
}

// Local serializes work per key within one process using striped mutexes.
type Local struct {
	stripes []*stripe
}

type stripe struct {
	// A buffered channel of size one acts as a mutex that can be
	// abandoned when ctx ends.
	ch chan struct{}
}

// NewLocal creates a local locker with n stripes (default 64).
func NewLocal(n int) *Local {
	if n <= 0 {
		n = 64
	}
	l := &Local{stripes: make([]*stripe, n)}
	for i := range l.stripes {
		l.stripes[i] = &stripe{ch: make(chan struct{}, 1)}
	}
	return l
}

// stripeFor returns the stripe for a key using consistent hashing.
func (l *Local) stripeFor(keyID string) *stripe {
	h := fnv.New32a()
	h.Write([]byte(keyID))
	return l.stripes[h.Sum32()%uint32(len(l.stripes))]
}

// Lock blocks until the key's stripe is free or ctx ends.
func (l *Local) Lock(ctx context.Context, keyID string) (func(), error) {
	s := l.stripeFor(keyID)
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-s.ch })
	}, nil
}

// Ensure interface compliance.
var (
	_ ports.KeyLocker = None{}
	_ ports.KeyLocker = (*Local)(nil)
)
