package table

import "testing"

func TestHandValueAceDowngrade(t *testing.T) {
	cases := []struct {
		name  string
		cards []Card
		want  int
	}{
		{"ace high", []Card{{Ace, Spades}, {Seven, Hearts}}, 18},
		{"two aces", []Card{{Ace, Spades}, {Ace, Hearts}}, 12},
		{"ace downgraded", []Card{{Ace, Spades}, {Seven, Hearts}, {Nine, Clubs}}, 17},
		{"both aces downgraded", []Card{{Ace, Spades}, {Ace, Hearts}, {Ten, Clubs}, {Nine, Diamonds}}, 21},
		{"natural", []Card{{Ace, Spades}, {King, Hearts}}, 21},
		{"face cards", []Card{{King, Spades}, {Queen, Hearts}, {Jack, Clubs}}, 30},
	}
	for _, tc := range cases {
		h := &Hand{Cards: tc.cards}
		if got := h.Value(); got != tc.want {
			t.Fatalf("%s: value = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestHandValueNeverSoftAbove21(t *testing.T) {
	h := &Hand{Cards: []Card{{Ace, Spades}, {Ace, Hearts}, {Ace, Clubs}, {Ace, Diamonds}, {King, Spades}, {Nine, Hearts}}}
	if got := h.Value(); got != 23 {
		t.Fatalf("value = %d, want 23 (all aces hard)", got)
	}
}

func TestSettleNatural(t *testing.T) {
	h := &Hand{Cards: []Card{{Ace, Spades}, {Queen, Hearts}}}
	h.settle()
	if !h.IsBlackjack || !h.IsStand {
		t.Fatalf("two-card 21 must auto-stand as natural: %+v", h)
	}
}

func TestSettleThreeCard21IsNotNatural(t *testing.T) {
	h := &Hand{Cards: []Card{{Seven, Spades}, {Seven, Hearts}, {Seven, Clubs}}}
	h.settle()
	if h.IsBlackjack {
		t.Fatal("three-card 21 must not count as natural")
	}
}

func TestPayoutTable(t *testing.T) {
	bet := int64(10000)
	cases := []struct {
		name          string
		hand          *Hand
		dealerValue   int
		dealerBust    bool
		dealerNatural bool
		want          int64
	}{
		{"bust pays nothing", &Hand{Bet: bet, IsBust: true}, 17, false, false, 0},
		{"natural pays 3:2 on top of bet", &Hand{Bet: bet, IsBlackjack: true}, 17, false, false, 25000},
		{"dealer natural beats plain hand", &Hand{Bet: bet, Cards: []Card{{Ten, Spades}, {Nine, Hearts}}}, 21, false, true, 0},
		{"both natural pushes", &Hand{Bet: bet, IsBlackjack: true}, 21, false, true, bet},
		{"dealer bust pays double", &Hand{Bet: bet, Cards: []Card{{Ten, Spades}, {Nine, Hearts}}}, 26, true, false, 20000},
		{"higher total pays double", &Hand{Bet: bet, Cards: []Card{{Ten, Spades}, {Nine, Hearts}}}, 18, false, false, 20000},
		{"lower total pays nothing", &Hand{Bet: bet, Cards: []Card{{Ten, Spades}, {Seven, Hearts}}}, 18, false, false, 0},
		{"equal total pushes", &Hand{Bet: bet, Cards: []Card{{Ten, Spades}, {Eight, Hearts}}}, 18, false, false, bet},
		{"odd bet natural floors", &Hand{Bet: 101, IsBlackjack: true}, 17, false, false, 101 + 151},
	}
	for _, tc := range cases {
		if got := payoutFor(tc.hand, tc.dealerValue, tc.dealerBust, tc.dealerNatural); got != tc.want {
			t.Fatalf("%s: payout = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestShoeRefillsWhenExhausted(t *testing.T) {
	s := NewShoe(1)
	for i := 0; i < 52; i++ {
		s.Draw()
	}
	if s.Remaining() != 0 {
		t.Fatalf("remaining = %d, want 0", s.Remaining())
	}
	c := s.Draw()
	if c.Rank < Two || c.Rank > Ace {
		t.Fatalf("draw from refilled shoe returned bad card %+v", c)
	}
	if s.Remaining() != 51 {
		t.Fatalf("remaining after refill draw = %d, want 51", s.Remaining())
	}
}
