package economy

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"orbvale/internal/room"
	"orbvale/internal/store"
)

var (
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrInvalidAmount     = errors.New("invalid_amount")
)

// Ledger is the durable account port. Credit and Debit take positive
// amounts, are transactional, and record a ledger row.
type Ledger interface {
	Credit(ctx context.Context, playerID string, amount int64, reason, refType, refID string) (int64, error)
	Debit(ctx context.Context, playerID string, amount int64, reason, refType, refID string) (int64, error)
}

// Broadcaster fans economic events out to the room's connections. The
// transport layer implements it; eviction relocation happens there too.
type Broadcaster interface {
	BalanceUpdated(roomID, playerID string, balance int64, reason string)
	EvictBelowFloor(roomID, playerID string)
}

// Authority is the single entry point for balance mutation. Every engine
// computes a delta and calls Apply; nothing else touches a cached balance.
type Authority struct {
	rooms     *room.Directory
	ledger    Ledger
	broadcast Broadcaster
	floor     int64

	// deltas the durable store has not accepted yet, retried on the next
	// mutation for the same player
	pendingMu sync.Mutex
	pending   map[string]int64

	// balances pushed by the idle path, awaiting the client's echo
	idleMu     sync.Mutex
	idlePushed map[string]int64
}

func NewAuthority(rooms *room.Directory, ledger Ledger, broadcast Broadcaster, floor int64) *Authority {
	return &Authority{
		rooms:      rooms,
		ledger:     ledger,
		broadcast:  broadcast,
		floor:      floor,
		pending:    map[string]int64{},
		idlePushed: map[string]int64{},
	}
}

// Apply mutates the player's cached balance by delta, awaits the durable
// write, then broadcasts the new balance with the reason tag. The cache is
// adjusted first so a concurrent spend cannot approve against a stale
// value; a poorer durable row rolls the cache back, while an unreachable
// store defers the delta. Eviction below the floor runs after the
// broadcast has gone out.
func (a *Authority) Apply(ctx context.Context, roomID, playerID string, delta int64, reason, refType, refID string) (int64, error) {
	rm, ok := a.rooms.Get(roomID)
	if !ok {
		return 0, room.ErrRoomNotFound
	}
	if delta == 0 {
		bal, ok := rm.Balance(playerID)
		if !ok {
			return 0, room.ErrPlayerNotFound
		}
		return bal, nil
	}

	newBal, err := rm.TryAdjustBalance(playerID, delta)
	if err != nil {
		if errors.Is(err, room.ErrInsufficientFunds) {
			return newBal, ErrInsufficientFunds
		}
		return 0, err
	}

	synced := a.flushPending(ctx, playerID)
	durable, err := a.write(ctx, playerID, delta, reason, refType, refID)
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		// the durable row is poorer than the cache thought; undo and refuse
		if _, rerr := rm.TryAdjustBalance(playerID, -delta); rerr != nil {
			rm.StampBalance(playerID, newBal-delta)
		}
		return 0, ErrInsufficientFunds
	case err != nil:
		// store unreachable: the cache keeps serving gameplay and the
		// delta is retried on the next mutation
		a.deferDelta(playerID, delta)
		log.Warn().Err(err).Str("player_id", playerID).Int64("delta", delta).
			Msg("durable_write_deferred")
	case synced && durable != newBal:
		// another session mutated the account; the durable row wins
		log.Warn().Str("player_id", playerID).
			Int64("cached", newBal).Int64("durable", durable).
			Msg("balance_cache_drift")
		rm.StampBalance(playerID, durable)
		newBal = durable
	}

	// any mutation invalidates an outstanding idle echo; a late ack must
	// not revert this balance
	a.idleMu.Lock()
	delete(a.idlePushed, playerID)
	a.idleMu.Unlock()

	a.broadcast.BalanceUpdated(roomID, playerID, newBal, reason)
	a.maybeEvict(rm, playerID, newBal)
	return newBal, nil
}

// ApplyIdle is the fire-and-forget variant used by the idle-reward sweep:
// the cache is updated and broadcast immediately, the durable write runs in
// the background, and reconciliation happens through ConfirmIdle.
func (a *Authority) ApplyIdle(roomID, playerID string, delta int64, reason string) {
	rm, ok := a.rooms.Get(roomID)
	if !ok || delta <= 0 {
		return
	}
	newBal, err := rm.TryAdjustBalance(playerID, delta)
	if err != nil {
		return
	}
	a.idleMu.Lock()
	a.idlePushed[playerID] = newBal
	a.idleMu.Unlock()
	a.broadcast.BalanceUpdated(roomID, playerID, newBal, reason)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := a.ledger.Credit(ctx, playerID, delta, reason, "idle", roomID); err != nil {
			log.Error().Err(err).Str("player_id", playerID).Msg("idle_reward_write_failed")
		}
	}()
}

// ConfirmIdle handles the client's idle-reward echo. Only an echo matching
// the balance the idle path actually pushed re-stamps the cache; anything
// else is discarded, so a fabricated ack can never inflate a balance. The
// delta is never re-applied.
func (a *Authority) ConfirmIdle(roomID, playerID string, balance int64) {
	a.idleMu.Lock()
	pushed, ok := a.idlePushed[playerID]
	if ok && pushed == balance {
		delete(a.idlePushed, playerID)
	}
	a.idleMu.Unlock()
	if !ok || pushed != balance {
		if ok {
			log.Warn().Str("player_id", playerID).
				Int64("echoed", balance).Int64("pushed", pushed).
				Msg("idle_ack_mismatch")
		}
		return
	}
	rm, found := a.rooms.Get(roomID)
	if !found {
		return
	}
	rm.StampBalance(playerID, balance)
}

func (a *Authority) deferDelta(playerID string, delta int64) {
	a.pendingMu.Lock()
	a.pending[playerID] += delta
	a.pendingMu.Unlock()
}

// flushPending retries deltas from earlier failed durable writes. Reports
// whether the player's durable row is in sync with the cache afterwards.
func (a *Authority) flushPending(ctx context.Context, playerID string) bool {
	a.pendingMu.Lock()
	d := a.pending[playerID]
	a.pendingMu.Unlock()
	if d == 0 {
		return true
	}
	if _, err := a.write(ctx, playerID, d, "deferred_sync", "sync", playerID); err != nil {
		return false
	}
	a.pendingMu.Lock()
	a.pending[playerID] -= d
	a.pendingMu.Unlock()
	log.Info().Str("player_id", playerID).Int64("delta", d).Msg("deferred_write_synced")
	return true
}

func (a *Authority) write(ctx context.Context, playerID string, delta int64, reason, refType, refID string) (int64, error) {
	if delta > 0 {
		return a.ledger.Credit(ctx, playerID, delta, reason, refType, refID)
	}
	return a.ledger.Debit(ctx, playerID, -delta, reason, refType, refID)
}

func (a *Authority) maybeEvict(rm *room.Room, playerID string, balance int64) {
	if balance >= a.floor {
		return
	}
	log.Info().Str("room_id", rm.ID).Str("player_id", playerID).
		Int64("balance", balance).Int64("floor", a.floor).
		Msg("floor_eviction")
	a.broadcast.EvictBelowFloor(rm.ID, playerID)
}

// ValidateBet bounds-checks a wager amount before any engine touches it.
func ValidateBet(amount, min, max int64) error {
	if amount < min || amount > max {
		return ErrInvalidAmount
	}
	return nil
}
