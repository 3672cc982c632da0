package room

// Player is the room-resident view of an account. Balance is a cached
// mirror of the durable store, owned by the economy authority for the
// lifetime of the session.
type Player struct {
	ID       string
	Name     string
	X        float64
	Y        float64
	Facing   string
	Balance  int64
	Equipped []string
}

type PlayerView struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	X        float64  `json:"x"`
	Y        float64  `json:"y"`
	Facing   string   `json:"facing"`
	Balance  int64    `json:"balance"`
	Equipped []string `json:"equipped"`
}

func (p *Player) view() PlayerView {
	return PlayerView{
		ID:       p.ID,
		Name:     p.Name,
		X:        p.X,
		Y:        p.Y,
		Facing:   p.Facing,
		Balance:  p.Balance,
		Equipped: append([]string{}, p.Equipped...),
	}
}
