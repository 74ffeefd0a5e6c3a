// Package notifier is the in-process change signal fired after every
// committed ledger mutation. Observers re-read whatever they display.
package notifier

import (
	"sync"
	"sync/atomic"
)

// EventCreditsUpdated names the signal for observers outside the process.
const EventCreditsUpdated = "creditsUpdated"

type subscription struct {
	fn   func()
	live atomic.Bool
}

type Notifier struct {
	mu   sync.Mutex
	subs []*subscription
}

func New() *Notifier {
	return &Notifier{}
}

// Subscribe registers fn and returns a func that removes it. The returned
// func may be called more than once.
func (n *Notifier) Subscribe(fn func()) (unsubscribe func()) {
	s := &subscription{fn: fn}
	s.live.Store(true)

	n.mu.Lock()
	n.subs = append(n.subs, s)
	n.mu.Unlock()

	return func() {
		if !s.live.Swap(false) {
			return
		}

		n.mu.Lock()
		defer n.mu.Unlock()

		for i, cur := range n.subs {
			if cur == s {
				n.subs = append(n.subs[:i:i], n.subs[i+1:]...)
				break
			}
		}
	}
}

// Publish calls every live observer once, synchronously, in subscription
// order. The list is snapshotted so observers may (un)subscribe from
// inside their callback.
func (n *Notifier) Publish() {
	n.mu.Lock()
	subs := make([]*subscription, len(n.subs))
	copy(subs, n.subs)
	n.mu.Unlock()

	for _, s := range subs {
		if s.live.Load() {
			s.fn()
		}
	}
}

// Len reports the number of live observers.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.subs)
}
