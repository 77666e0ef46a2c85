// Package ratelimit spaces macro steps of the run apart with a
// jittered delay, so account switches and browse strategies don't fire
// at machine cadence.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// Pacer enforces a randomized minimum gap between successive actions.
type Pacer struct {
	mu         sync.Mutex
	minDelay   time.Duration
	maxDelay   time.Duration
	lastAction time.Time
	rand       *rand.Rand
}

// New builds a pacer with the given delay window. An inverted window
// degrades to the minimum alone.
func New(minDelay, maxDelay time.Duration) *Pacer {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Pacer{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Wait blocks until at least a jittered delay has passed since the
// previous Wait returned. Cancellation aborts the pause.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	delay := p.pick()
	elapsed := time.Since(p.lastAction)
	p.mu.Unlock()

	if elapsed < delay {
		timer := time.NewTimer(delay - elapsed)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	p.mu.Lock()
	p.lastAction = time.Now()
	p.mu.Unlock()
	return nil
}

func (p *Pacer) pick() time.Duration {
	if p.maxDelay <= p.minDelay {
		return p.minDelay
	}
	return p.minDelay + time.Duration(p.rand.Int63n(int64(p.maxDelay-p.minDelay)))
}
