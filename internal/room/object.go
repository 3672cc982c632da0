package room

import "time"

type ObjectKind string

const (
	// ObjectPickup is collected by walking near it and disappears on collect.
	ObjectPickup ObjectKind = "pickup"
	// ObjectShrine and ObjectChest stay in place and gate behind a minimum
	// balance plus a per-object cooldown.
	ObjectShrine ObjectKind = "shrine"
	ObjectChest  ObjectKind = "chest"
)

type Object struct {
	ID         string
	Kind       ObjectKind
	X          float64
	Y          float64
	Reward     int64
	MinBalance int64
	Cooldown   time.Duration

	readyAt time.Time
}

type ObjectView struct {
	ID   string     `json:"id"`
	Kind ObjectKind `json:"kind"`
	X    float64    `json:"x"`
	Y    float64    `json:"y"`
}

func (o *Object) view() ObjectView {
	return ObjectView{ID: o.ID, Kind: o.Kind, X: o.X, Y: o.Y}
}
