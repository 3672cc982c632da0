package economy

import (
	"errors"
	"sync"
	"time"
)

var ErrBusy = errors.New("action_in_flight")

// Guard is a per-player busy flag for purchase-style actions. Acquire
// rejects while a prior action is in flight; Release keeps the flag held
// for a cooldown window so rapid resubmits are also rejected.
type Guard struct {
	cooldown  time.Duration
	afterFunc func(time.Duration, func()) *time.Timer

	mu   sync.Mutex
	busy map[string]bool
}

func NewGuard(cooldown time.Duration) *Guard {
	return &Guard{
		cooldown:  cooldown,
		afterFunc: time.AfterFunc,
		busy:      map[string]bool{},
	}
}

func (g *Guard) Acquire(playerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.busy[playerID] {
		return ErrBusy
	}
	g.busy[playerID] = true
	return nil
}

func (g *Guard) Release(playerID string) {
	g.afterFunc(g.cooldown, func() {
		g.mu.Lock()
		delete(g.busy, playerID)
		g.mu.Unlock()
	})
}
