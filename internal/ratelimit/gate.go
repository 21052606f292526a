package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// Clock abstracts time for the gate so spacing can be tested without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// Gate enforces a minimum spacing between requests to a scraped source.
//
// The whole "read last dispatch, sleep, record dispatch" sequence runs under a
// single-permit semaphore. An atomic timestamp alone would let two callers
// both see a stale "no wait needed" and fire at the same instant.
type Gate struct {
	sem     *semaphore.Weighted
	spacing time.Duration
	clock   Clock

	mu   sync.Mutex
	last time.Time
}

type GateOption func(*Gate)

func WithClock(c Clock) GateOption {
	return func(g *Gate) { g.clock = c }
}

func NewGate(spacing time.Duration, opts ...GateOption) *Gate {
	if spacing < 0 {
		spacing = 0
	}
	g := &Gate{
		sem:     semaphore.NewWeighted(1),
		spacing: spacing,
		clock:   realClock{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Wait blocks until the caller may dispatch a request and returns the recorded
// dispatch instant. On context cancellation nothing is recorded.
func (g *Gate) Wait(ctx context.Context) (time.Time, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return time.Time{}, err
	}
	defer g.sem.Release(1)

	g.mu.Lock()
	last := g.last
	g.mu.Unlock()

	if !last.IsZero() {
		if wait := g.spacing - g.clock.Now().Sub(last); wait > 0 {
			select {
			case <-ctx.Done():
				return time.Time{}, ctx.Err()
			case <-g.clock.After(wait):
			}
		}
	}

	now := g.clock.Now()
	g.mu.Lock()
	g.last = now
	g.mu.Unlock()
	return now, nil
}

// LastDispatch returns the instant recorded by the latest successful Wait.
func (g *Gate) LastDispatch() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.last
}

func (g *Gate) Spacing() time.Duration {
	return g.spacing
}
