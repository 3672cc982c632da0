package table

type Hand struct {
	Cards        []Card
	Bet          int64
	IsSplit      bool
	IsDoubleDown bool
	IsStand      bool
	IsBust       bool
	IsBlackjack  bool
}

// Value counts every ace as 11, then downgrades one ace at a time while
// the total is over 21.
func (h *Hand) Value() int {
	total := 0
	aces := 0
	for _, c := range h.Cards {
		total += c.points()
		if c.Rank == Ace {
			aces++
		}
	}
	for total > 21 && aces > 0 {
		total -= 10
		aces--
	}
	return total
}

// settle marks terminal flags after a draw.
func (h *Hand) settle() {
	v := h.Value()
	if v > 21 {
		h.IsBust = true
		return
	}
	if v == 21 && len(h.Cards) == 2 {
		h.IsBlackjack = true
		h.IsStand = true
	}
}

// needsPlay reports whether the turn pointer may rest on this hand.
func (h *Hand) needsPlay() bool {
	return !h.IsStand && !h.IsBust && !h.IsBlackjack
}

// isPair reports a two-card hand of equal rank, the split precondition.
func (h *Hand) isPair() bool {
	return len(h.Cards) == 2 && h.Cards[0].Rank == h.Cards[1].Rank
}

type HandView struct {
	Cards        []string `json:"cards"`
	Value        int      `json:"value"`
	Bet          int64    `json:"bet"`
	IsSplit      bool     `json:"isSplit,omitempty"`
	IsDoubleDown bool     `json:"isDoubleDown,omitempty"`
	IsStand      bool     `json:"isStand,omitempty"`
	IsBust       bool     `json:"isBust,omitempty"`
	IsBlackjack  bool     `json:"isBlackjack,omitempty"`
}

func (h *Hand) view() HandView {
	cards := make([]string, 0, len(h.Cards))
	for _, c := range h.Cards {
		cards = append(cards, c.String())
	}
	return HandView{
		Cards:        cards,
		Value:        h.Value(),
		Bet:          h.Bet,
		IsSplit:      h.IsSplit,
		IsDoubleDown: h.IsDoubleDown,
		IsStand:      h.IsStand,
		IsBust:       h.IsBust,
		IsBlackjack:  h.IsBlackjack,
	}
}
