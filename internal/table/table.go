package table

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type State string

const (
	StateWaiting    State = "waiting"
	StateBetting    State = "betting"
	StateDealing    State = "dealing"
	StatePlaying    State = "playing"
	StateDealerTurn State = "dealer_turn"
	StateFinished   State = "finished"
)

var (
	ErrNotSeated    = errors.New("not_seated")
	ErrNotYourTurn  = errors.New("not_your_turn")
	ErrInvalidBet   = errors.New("invalid_bet")
	ErrAlreadyBet   = errors.New("already_bet")
	ErrTableFull    = errors.New("table_full")
	ErrInvalidMove  = errors.New("invalid_action")
	ErrRoundRunning = errors.New("round_in_progress")
)

type Config struct {
	MinBet      int64
	MaxBet      int64
	DealerStand int
	Decks       int
	MaxSeats    int
	GraceDelay  time.Duration
	ResetDelay  time.Duration

	// AfterFunc lets tests drive transitions by hand. Nil uses real timers.
	AfterFunc func(time.Duration, func()) *time.Timer
}

func (c Config) withDefaults() Config {
	if c.DealerStand == 0 {
		c.DealerStand = 17
	}
	if c.Decks == 0 {
		c.Decks = 4
	}
	if c.MaxSeats == 0 {
		c.MaxSeats = 4
	}
	return c
}

type Seat struct {
	PlayerID string
	Hands    []*Hand
	HasBet   bool
}

type Payout struct {
	PlayerID string
	Amount   int64
}

// Table is one blackjack table: betting, dealing, player turns, dealer
// resolution, payout and reset. All public methods are safe for concurrent
// use; callbacks fire outside the table lock.
type Table struct {
	ID string

	mu       sync.Mutex
	cfg      Config
	state    State
	shoe     *Shoe
	dealer   *Hand
	seats    []*Seat
	turnSeat int
	turnHand int
	round    int
	graceSet bool
	closed   bool
	timers   map[*time.Timer]struct{}

	onPayout func(playerID string, amount int64)
	onUpdate func()
}

func New(id string, cfg Config) *Table {
	return &Table{
		ID:       id,
		cfg:      cfg.withDefaults(),
		state:    StateWaiting,
		turnSeat: -1,
		turnHand: -1,
		timers:   map[*time.Timer]struct{}{},
	}
}

// SetCallbacks wires payout delivery and update broadcast. Must be called
// before play starts.
func (t *Table) SetCallbacks(onPayout func(string, int64), onUpdate func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPayout = onPayout
	t.onUpdate = onUpdate
}

func (t *Table) Close() {
	t.mu.Lock()
	t.closed = true
	for timer := range t.timers {
		timer.Stop()
	}
	t.timers = map[*time.Timer]struct{}{}
	t.mu.Unlock()
}

func (t *Table) Round() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.round
}

func (t *Table) Sit(playerID string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if idx := t.seatIndex(playerID); idx >= 0 {
		return idx, nil
	}
	if len(t.seats) >= t.cfg.MaxSeats {
		return 0, ErrTableFull
	}
	t.seats = append(t.seats, &Seat{PlayerID: playerID})
	return len(t.seats) - 1, nil
}

// Leave removes the seat. A bet placed this round is forfeited, and if the
// leaving player held the turn the pointer advances so the table does not
// stall.
func (t *Table) Leave(playerID string) {
	t.mu.Lock()
	idx := t.seatIndex(playerID)
	if idx < 0 {
		t.mu.Unlock()
		return
	}
	wasTurn := t.turnSeat == idx
	t.seats = append(t.seats[:idx], t.seats[idx+1:]...)
	if t.turnSeat > idx {
		t.turnSeat--
	}

	var payouts []Payout
	if len(t.seats) == 0 {
		if t.state != StateWaiting {
			t.resetLocked()
		}
	} else {
		switch {
		case wasTurn && t.state == StatePlaying:
			payouts = t.advanceLocked(idx, 0)
		case t.state == StateBetting:
			payouts = t.maybeDealLocked()
		}
	}
	t.mu.Unlock()
	t.deliver(payouts)
	t.fireUpdate()
}

func (t *Table) CheckBet(playerID string, amount int64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.validateBetLocked(playerID, amount)
}

func (t *Table) PlaceBet(playerID string, amount int64) error {
	t.mu.Lock()
	if err := t.validateBetLocked(playerID, amount); err != nil {
		t.mu.Unlock()
		return err
	}
	seat := t.seats[t.seatIndex(playerID)]
	seat.Hands = []*Hand{{Bet: amount}}
	seat.HasBet = true
	t.state = StateBetting
	payouts := t.maybeDealLocked()
	t.mu.Unlock()
	t.deliver(payouts)
	return nil
}

func (t *Table) validateBetLocked(playerID string, amount int64) error {
	if t.state != StateWaiting && t.state != StateBetting {
		return ErrRoundRunning
	}
	idx := t.seatIndex(playerID)
	if idx < 0 {
		return ErrNotSeated
	}
	if t.seats[idx].HasBet {
		return ErrAlreadyBet
	}
	if amount < t.cfg.MinBet || amount > t.cfg.MaxBet {
		return ErrInvalidBet
	}
	return nil
}

func (t *Table) Hit(playerID string) error {
	return t.playerAction(playerID, func(seat *Seat, h *Hand) (advance bool) {
		h.Cards = append(h.Cards, t.shoe.Draw())
		if h.Value() > 21 {
			h.IsBust = true
			return true
		}
		return false
	}, nil)
}

func (t *Table) Stand(playerID string) error {
	return t.playerAction(playerID, func(seat *Seat, h *Hand) bool {
		h.IsStand = true
		return true
	}, nil)
}

// CheckDouble validates the double-down preconditions and returns the
// additional bet the caller must collect before committing.
func (t *Table) CheckDouble(playerID string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, err := t.turnHandFor(playerID)
	if err != nil {
		return 0, err
	}
	if len(h.Cards) != 2 || h.IsDoubleDown {
		return 0, ErrInvalidMove
	}
	return h.Bet, nil
}

func (t *Table) DoubleDown(playerID string) error {
	return t.playerAction(playerID, func(seat *Seat, h *Hand) bool {
		h.Bet *= 2
		h.IsDoubleDown = true
		h.Cards = append(h.Cards, t.shoe.Draw())
		if h.Value() > 21 {
			h.IsBust = true
		} else {
			h.IsStand = true
		}
		return true
	}, func(h *Hand) error {
		if len(h.Cards) != 2 || h.IsDoubleDown {
			return ErrInvalidMove
		}
		return nil
	})
}

// CheckSplit validates the split preconditions and returns the extra bet.
func (t *Table) CheckSplit(playerID string) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	h, err := t.turnHandFor(playerID)
	if err != nil {
		return 0, err
	}
	idx := t.seatIndex(playerID)
	if !h.isPair() || h.IsSplit || len(t.seats[idx].Hands) > 1 {
		return 0, ErrInvalidMove
	}
	return h.Bet, nil
}

func (t *Table) Split(playerID string) error {
	t.mu.Lock()
	h, err := t.turnHandFor(playerID)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	seat := t.seats[t.seatIndex(playerID)]
	if !h.isPair() || h.IsSplit || len(seat.Hands) > 1 {
		t.mu.Unlock()
		return ErrInvalidMove
	}

	first := &Hand{Cards: []Card{h.Cards[0], t.shoe.Draw()}, Bet: h.Bet, IsSplit: true}
	second := &Hand{Cards: []Card{h.Cards[1], t.shoe.Draw()}, Bet: h.Bet, IsSplit: true}
	first.settle()
	second.settle()
	seat.Hands = []*Hand{first, second}

	var payouts []Payout
	if first.needsPlay() {
		t.turnHand = 0
	} else {
		payouts = t.advanceLocked(t.turnSeat, 1)
	}
	t.mu.Unlock()
	t.deliver(payouts)
	return nil
}

// playerAction runs a turn-gated mutation. The act callback returns true
// when the turn pointer should advance afterwards.
func (t *Table) playerAction(playerID string, act func(*Seat, *Hand) bool, precheck func(*Hand) error) error {
	t.mu.Lock()
	h, err := t.turnHandFor(playerID)
	if err != nil {
		t.mu.Unlock()
		return err
	}
	if precheck != nil {
		if err := precheck(h); err != nil {
			t.mu.Unlock()
			return err
		}
	}
	seat := t.seats[t.turnSeat]
	var payouts []Payout
	if act(seat, h) {
		payouts = t.advanceLocked(t.turnSeat, t.turnHand+1)
	}
	t.mu.Unlock()
	t.deliver(payouts)
	return nil
}

func (t *Table) turnHandFor(playerID string) (*Hand, error) {
	if t.state != StatePlaying {
		return nil, ErrInvalidMove
	}
	idx := t.seatIndex(playerID)
	if idx < 0 {
		return nil, ErrNotSeated
	}
	if idx != t.turnSeat {
		return nil, ErrNotYourTurn
	}
	return t.seats[t.turnSeat].Hands[t.turnHand], nil
}

func (t *Table) seatIndex(playerID string) int {
	for i, s := range t.seats {
		if s.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// maybeDealLocked triggers dealing once every seated player holds a bet:
// immediately for a lone seat, after a grace delay for a full table so late
// bettors can still join the round.
func (t *Table) maybeDealLocked() []Payout {
	if t.state != StateBetting {
		return nil
	}
	for _, s := range t.seats {
		if !s.HasBet {
			return nil
		}
	}
	if len(t.seats) == 1 {
		return t.dealLocked()
	}
	if !t.graceSet {
		t.graceSet = true
		t.after(t.cfg.GraceDelay, func() {
			t.mu.Lock()
			var payouts []Payout
			if t.state == StateBetting {
				payouts = t.dealLocked()
			}
			t.mu.Unlock()
			t.deliver(payouts)
			t.fireUpdate()
		})
	}
	return nil
}

func (t *Table) dealLocked() []Payout {
	t.graceSet = false
	t.state = StateDealing
	if t.shoe == nil {
		t.shoe = NewShoe(t.cfg.Decks)
	}
	for _, s := range t.seats {
		if !s.HasBet {
			continue
		}
		h := s.Hands[0]
		h.Cards = []Card{t.shoe.Draw(), t.shoe.Draw()}
		h.settle()
	}
	t.dealer = &Hand{Cards: []Card{t.shoe.Draw(), t.shoe.Draw()}}

	if t.dealer.Value() == 21 {
		// Dealer natural resolves the round before anyone plays.
		return t.finishLocked()
	}
	t.state = StatePlaying
	return t.advanceLocked(0, 0)
}

// advanceLocked moves the turn pointer to the next hand that needs play,
// starting at (seatIdx, handIdx). When none remains the dealer plays out
// and the round finishes.
func (t *Table) advanceLocked(seatIdx, handIdx int) []Payout {
	for si := seatIdx; si < len(t.seats); si++ {
		seat := t.seats[si]
		if !seat.HasBet {
			continue
		}
		start := 0
		if si == seatIdx {
			start = handIdx
		}
		for hi := start; hi < len(seat.Hands); hi++ {
			if seat.Hands[hi].needsPlay() {
				t.turnSeat, t.turnHand = si, hi
				return nil
			}
		}
	}
	t.turnSeat, t.turnHand = -1, -1
	t.state = StateDealerTurn
	for t.dealer.Value() < t.cfg.DealerStand {
		t.dealer.Cards = append(t.dealer.Cards, t.shoe.Draw())
	}
	return t.finishLocked()
}

func (t *Table) finishLocked() []Payout {
	dv := t.dealer.Value()
	dealerBust := dv > 21
	dealerNatural := dv == 21 && len(t.dealer.Cards) == 2

	payouts := []Payout{}
	for _, s := range t.seats {
		if !s.HasBet {
			continue
		}
		for _, h := range s.Hands {
			amt := payoutFor(h, dv, dealerBust, dealerNatural)
			if amt < 0 || (amt > 0 && h.Bet < t.cfg.MinBet) {
				log.Warn().
					Str("table_id", t.ID).
					Str("player_id", s.PlayerID).
					Int64("amount", amt).
					Int64("bet", h.Bet).
					Msg("payout_clamped")
				amt = 0
			}
			if amt > 0 {
				payouts = append(payouts, Payout{PlayerID: s.PlayerID, Amount: amt})
			}
		}
	}
	t.state = StateFinished
	t.turnSeat, t.turnHand = -1, -1
	t.after(t.cfg.ResetDelay, func() {
		t.mu.Lock()
		t.resetLocked()
		t.mu.Unlock()
		t.fireUpdate()
	})
	return payouts
}

// payoutFor implements the round settlement table. Bets were collected at
// bet time, so a zero payout means the bet is simply gone.
func payoutFor(h *Hand, dealerValue int, dealerBust, dealerNatural bool) int64 {
	switch {
	case h.IsBust:
		return 0
	case h.IsBlackjack && !dealerNatural:
		return h.Bet + h.Bet*3/2
	case dealerNatural && !h.IsBlackjack:
		return 0
	case dealerNatural && h.IsBlackjack:
		return h.Bet
	case dealerBust:
		return h.Bet * 2
	}
	hv := h.Value()
	switch {
	case hv > dealerValue:
		return h.Bet * 2
	case hv < dealerValue:
		return 0
	default:
		return h.Bet
	}
}

func (t *Table) resetLocked() {
	t.state = StateWaiting
	t.dealer = nil
	t.shoe = nil
	t.turnSeat, t.turnHand = -1, -1
	t.graceSet = false
	t.round++
	for _, s := range t.seats {
		s.Hands = nil
		s.HasBet = false
	}
}

func (t *Table) after(d time.Duration, fn func()) {
	if t.closed {
		return
	}
	if t.cfg.AfterFunc != nil {
		t.cfg.AfterFunc(d, fn)
		return
	}
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		delete(t.timers, timer)
		closed := t.closed
		t.mu.Unlock()
		if closed {
			return
		}
		fn()
	})
	t.timers[timer] = struct{}{}
}

func (t *Table) deliver(payouts []Payout) {
	if t.onPayout == nil {
		return
	}
	for _, p := range payouts {
		t.onPayout(p.PlayerID, p.Amount)
	}
}

func (t *Table) fireUpdate() {
	if t.onUpdate != nil {
		t.onUpdate()
	}
}
