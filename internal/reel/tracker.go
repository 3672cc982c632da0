package reel

import "sync"

// BonusState is the free-spin progress for one (player, machine) pair.
type BonusState struct {
	FreeSpinsRemaining int  `json:"freeSpinsRemaining"`
	IsInBonus          bool `json:"isInBonus"`
}

// Tracker holds bonus-round progress keyed by (player, machine). A player
// can carry independent bonus rounds on different machines.
type Tracker struct {
	mu sync.Mutex
	m  map[trackerKey]int
}

type trackerKey struct {
	playerID  string
	machineID string
}

func NewTracker() *Tracker {
	return &Tracker{m: make(map[trackerKey]int)}
}

func (t *Tracker) State(playerID, machineID string) BonusState {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.m[trackerKey{playerID, machineID}]
	return BonusState{FreeSpinsRemaining: n, IsInBonus: n > 0}
}

// Begin starts a bonus round with n free spins, or extends the running one
// by n when the trigger lands during a bonus round.
func (t *Tracker) Begin(playerID, machineID string, n int) BonusState {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := trackerKey{playerID, machineID}
	t.m[k] += n
	return BonusState{FreeSpinsRemaining: t.m[k], IsInBonus: true}
}

// Consume spends one free spin and returns the state after the decrement.
// Hitting zero ends the round; the caller delivers the final spin result
// before the client sees the bonus end.
func (t *Tracker) Consume(playerID, machineID string) BonusState {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := trackerKey{playerID, machineID}
	n := t.m[k]
	if n <= 0 {
		return BonusState{}
	}
	n--
	if n == 0 {
		delete(t.m, k)
	} else {
		t.m[k] = n
	}
	return BonusState{FreeSpinsRemaining: n, IsInBonus: n > 0}
}

// DropPlayer clears the player's bonus progress on every machine, used
// when they fully leave the room.
func (t *Tracker) DropPlayer(playerID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k := range t.m {
		if k.playerID == playerID {
			delete(t.m, k)
		}
	}
}
