package trade

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// BalanceReader reads the cached balance used for the pre-settlement check.
type BalanceReader interface {
	Balance(playerID string) (int64, bool)
}

// BalanceAuthority is the ledger entry point the settlement pays through.
type BalanceAuthority interface {
	Apply(ctx context.Context, roomID, playerID string, delta int64, reason, refType, refID string) (int64, error)
}

// PartyError names the participant whose balance no longer covers their
// offer at settlement time.
type PartyError struct {
	PlayerID string
}

func (e *PartyError) Error() string {
	return fmt.Sprintf("insufficient_funds_for_settlement: %s", e.PlayerID)
}

// Result is a completed settlement: what each party received and their
// balances after the exchange.
type Result struct {
	Trade    View
	NetA     int64
	NetB     int64
	BalanceA int64
	BalanceB int64
}

// Settle exchanges the currency halves of an accepted trade. Both cached
// balances are re-checked against each party's own offered amount before
// anything is applied; the check at modification time does not survive the
// gap to acceptance. The paying side goes through the authority first so a
// durable failure cannot leave one party credited for nothing.
func Settle(ctx context.Context, roomID string, t *Trade, balances BalanceReader, authority BalanceAuthority) (Result, error) {
	balA, okA := balances.Balance(t.PartyA)
	balB, okB := balances.Balance(t.PartyB)
	if !okA {
		return Result{}, &PartyError{PlayerID: t.PartyA}
	}
	if !okB {
		return Result{}, &PartyError{PlayerID: t.PartyB}
	}
	if balA < t.OfferA.Currency {
		return Result{}, &PartyError{PlayerID: t.PartyA}
	}
	if balB < t.OfferB.Currency {
		return Result{}, &PartyError{PlayerID: t.PartyB}
	}

	netA := t.OfferB.Currency - t.OfferA.Currency
	netB := t.OfferA.Currency - t.OfferB.Currency
	res := Result{Trade: t.view(), NetA: netA, NetB: netB, BalanceA: balA, BalanceB: balB}
	if netA == 0 && netB == 0 {
		return res, nil
	}

	first, second := t.PartyA, t.PartyB
	firstNet, secondNet := netA, netB
	if netB < netA {
		first, second = t.PartyB, t.PartyA
		firstNet, secondNet = netB, netA
	}

	firstBal, err := authority.Apply(ctx, roomID, first, firstNet, "trade_settle", "trade", t.ID)
	if err != nil {
		return Result{}, fmt.Errorf("settle %s: %w", t.ID, err)
	}
	secondBal, err := authority.Apply(ctx, roomID, second, secondNet, "trade_settle", "trade", t.ID)
	if err != nil {
		// reverse the first half so the exchange stays all-or-nothing
		if _, rerr := authority.Apply(ctx, roomID, first, -firstNet, "trade_reversal", "trade", t.ID); rerr != nil {
			log.Error().Err(rerr).Str("trade_id", t.ID).Str("player_id", first).
				Msg("trade_reversal_failed")
		}
		return Result{}, fmt.Errorf("settle %s: %w", t.ID, err)
	}

	if first == t.PartyA {
		res.BalanceA, res.BalanceB = firstBal, secondBal
	} else {
		res.BalanceA, res.BalanceB = secondBal, firstBal
	}
	return res, nil
}
