package trade

import (
	"errors"
	"sync"

	"orbvale/internal/store"
)

var (
	ErrSelfTrade      = errors.New("self_trade")
	ErrAlreadyTrading = errors.New("already_trading")
	ErrNoTrade        = errors.New("no_open_trade")
	ErrInvalidOffer   = errors.New("invalid_offer")
	ErrOfferTooRich   = errors.New("offer_exceeds_balance")
)

type ItemStack struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

type Offer struct {
	Items    []ItemStack `json:"items"`
	Currency int64       `json:"currency"`
}

// Trade is one open handshake between two players. Exactly one trade can
// exist per unordered pair, and a player holds at most one open trade.
type Trade struct {
	ID        string
	PartyA    string
	PartyB    string
	OfferA    Offer
	OfferB    Offer
	AcceptedA bool
	AcceptedB bool
}

func (t *Trade) partner(playerID string) string {
	if playerID == t.PartyA {
		return t.PartyB
	}
	return t.PartyA
}

type pairKey struct{ lo, hi string }

func keyFor(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a, b}
}

// Book holds every open trade.
type Book struct {
	mu       sync.Mutex
	byPair   map[pairKey]*Trade
	byPlayer map[string]*Trade
}

func NewBook() *Book {
	return &Book{
		byPair:   map[pairKey]*Trade{},
		byPlayer: map[string]*Trade{},
	}
}

// Open starts a trade between two players, or returns the existing one for
// the pair: re-requesting is idempotent and only re-notifies.
func (b *Book) Open(a, p string) (View, bool, error) {
	if a == p {
		return View{}, false, ErrSelfTrade
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if t, ok := b.byPair[keyFor(a, p)]; ok {
		return t.view(), false, nil
	}
	if b.byPlayer[a] != nil || b.byPlayer[p] != nil {
		return View{}, false, ErrAlreadyTrading
	}
	t := &Trade{ID: store.NewID(), PartyA: a, PartyB: p}
	b.byPair[keyFor(a, p)] = t
	b.byPlayer[a] = t
	b.byPlayer[p] = t
	return t.view(), true, nil
}

// Modify replaces the caller's offer. Any change resets both accept flags;
// prior consent does not survive an edit. Currency is bounded by the
// caller's cached balance at modification time.
func (b *Book) Modify(playerID string, items []ItemStack, currency, balance int64) (View, error) {
	if currency < 0 {
		return View{}, ErrInvalidOffer
	}
	for _, it := range items {
		if it.ItemID == "" || it.Quantity < 1 {
			return View{}, ErrInvalidOffer
		}
	}
	if currency > balance {
		return View{}, ErrOfferTooRich
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.byPlayer[playerID]
	if t == nil {
		return View{}, ErrNoTrade
	}
	offer := Offer{Items: append([]ItemStack{}, items...), Currency: currency}
	if playerID == t.PartyA {
		t.OfferA = offer
	} else {
		t.OfferB = offer
	}
	t.AcceptedA, t.AcceptedB = false, false
	return t.view(), nil
}

// Accept sets the caller's accept flag. When both flags are true the trade
// is atomically removed from the book and returned for settlement, so it
// cannot be settled twice.
func (b *Book) Accept(playerID string) (View, *Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.byPlayer[playerID]
	if t == nil {
		return View{}, nil, ErrNoTrade
	}
	if playerID == t.PartyA {
		t.AcceptedA = true
	} else {
		t.AcceptedB = true
	}
	if t.AcceptedA && t.AcceptedB {
		b.removeLocked(t)
		settled := *t
		return settled.view(), &settled, nil
	}
	return t.view(), nil, nil
}

// Decline tears the trade down entirely. Cancel and decline are the same
// operation; no partial state persists.
func (b *Book) Decline(playerID string) (Trade, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.byPlayer[playerID]
	if t == nil {
		return Trade{}, ErrNoTrade
	}
	b.removeLocked(t)
	return *t, nil
}

// DropPlayer declines any open trade the player holds, used on disconnect
// and room exit. Returns the abandoned trade when there was one.
func (b *Book) DropPlayer(playerID string) (Trade, bool) {
	t, err := b.Decline(playerID)
	return t, err == nil
}

func (b *Book) Get(playerID string) (View, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := b.byPlayer[playerID]
	if t == nil {
		return View{}, ErrNoTrade
	}
	return t.view(), nil
}

func (b *Book) removeLocked(t *Trade) {
	delete(b.byPair, keyFor(t.PartyA, t.PartyB))
	delete(b.byPlayer, t.PartyA)
	delete(b.byPlayer, t.PartyB)
}

// View is the trade_state payload sent to both parties.
type View struct {
	TradeID   string `json:"tradeId"`
	PartyA    string `json:"partyA"`
	PartyB    string `json:"partyB"`
	OfferA    Offer  `json:"offerA"`
	OfferB    Offer  `json:"offerB"`
	AcceptedA bool   `json:"acceptedA"`
	AcceptedB bool   `json:"acceptedB"`
}

func (t *Trade) view() View {
	return View{
		TradeID:   t.ID,
		PartyA:    t.PartyA,
		PartyB:    t.PartyB,
		OfferA:    t.OfferA,
		OfferB:    t.OfferB,
		AcceptedA: t.AcceptedA,
		AcceptedB: t.AcceptedB,
	}
}
