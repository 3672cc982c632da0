package table

import (
	"math/rand"
	"time"
)

type Suit int

type Rank int

const (
	Spades Suit = iota
	Hearts
	Diamonds
	Clubs
)

const (
	Two   Rank = 2
	Three Rank = 3
	Four  Rank = 4
	Five  Rank = 5
	Six   Rank = 6
	Seven Rank = 7
	Eight Rank = 8
	Nine  Rank = 9
	Ten   Rank = 10
	Jack  Rank = 11
	Queen Rank = 12
	King  Rank = 13
	Ace   Rank = 14
)

type Card struct {
	Rank Rank
	Suit Suit
}

func (c Card) String() string {
	r := map[Rank]string{
		Two: "2", Three: "3", Four: "4", Five: "5", Six: "6", Seven: "7", Eight: "8", Nine: "9", Ten: "T", Jack: "J", Queen: "Q", King: "K", Ace: "A",
	}[c.Rank]
	s := map[Suit]string{Spades: "s", Hearts: "h", Diamonds: "d", Clubs: "c"}[c.Suit]
	return r + s
}

// points is the blackjack value of the card, counting an ace high.
func (c Card) points() int {
	switch {
	case c.Rank == Ace:
		return 11
	case c.Rank >= Ten:
		return 10
	default:
		return int(c.Rank)
	}
}

// Shoe deals from n shuffled decks. An exhausted shoe refills itself
// mid-deal rather than failing the round.
type Shoe struct {
	decks int
	cards []Card
	rnd   *rand.Rand
}

func NewShoe(decks int) *Shoe {
	if decks < 1 {
		decks = 1
	}
	s := &Shoe{decks: decks, rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}
	s.refill()
	return s
}

func (s *Shoe) refill() {
	s.cards = make([]Card, 0, s.decks*52)
	for d := 0; d < s.decks; d++ {
		for suit := Spades; suit <= Clubs; suit++ {
			for r := Two; r <= Ace; r++ {
				s.cards = append(s.cards, Card{Rank: r, Suit: suit})
			}
		}
	}
	s.rnd.Shuffle(len(s.cards), func(i, j int) {
		s.cards[i], s.cards[j] = s.cards[j], s.cards[i]
	})
}

func (s *Shoe) Draw() Card {
	if len(s.cards) == 0 {
		s.refill()
	}
	c := s.cards[0]
	s.cards = s.cards[1:]
	return c
}

func (s *Shoe) Remaining() int {
	return len(s.cards)
}
