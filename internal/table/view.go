package table

type SeatView struct {
	PlayerID string     `json:"playerId"`
	Hands    []HandView `json:"hands"`
	HasBet   bool       `json:"hasBet"`
}

type View struct {
	ID            string     `json:"tableId"`
	State         State      `json:"state"`
	Round         int        `json:"round"`
	DealerCards   []string   `json:"dealerCards"`
	DealerValue   int        `json:"dealerValue,omitempty"`
	Seats         []SeatView `json:"seats"`
	TurnPlayerID  string     `json:"turnPlayerId,omitempty"`
	TurnHandIndex int        `json:"turnHandIndex"`
}

// View renders the broadcastable table state. The dealer's hole card stays
// hidden until the dealer plays.
func (t *Table) View() View {
	t.mu.Lock()
	defer t.mu.Unlock()

	v := View{
		ID:            t.ID,
		State:         t.state,
		Round:         t.round,
		DealerCards:   []string{},
		Seats:         []SeatView{},
		TurnHandIndex: t.turnHand,
	}
	if t.dealer != nil {
		if t.state == StatePlaying || t.state == StateDealing {
			v.DealerCards = []string{t.dealer.Cards[0].String()}
		} else {
			for _, c := range t.dealer.Cards {
				v.DealerCards = append(v.DealerCards, c.String())
			}
			v.DealerValue = t.dealer.Value()
		}
	}
	for _, s := range t.seats {
		sv := SeatView{PlayerID: s.PlayerID, HasBet: s.HasBet, Hands: []HandView{}}
		for _, h := range s.Hands {
			sv.Hands = append(sv.Hands, h.view())
		}
		v.Seats = append(v.Seats, sv)
	}
	if t.turnSeat >= 0 && t.turnSeat < len(t.seats) {
		v.TurnPlayerID = t.seats[t.turnSeat].PlayerID
	}
	return v
}
