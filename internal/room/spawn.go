package room

import "math/rand"

// GridSpawnPicker is the built-in spawn provider: a jittered point near the
// map anchor. Real deployments can inject a smarter picker.
type GridSpawnPicker struct {
	Anchors map[string][2]float64
	Jitter  float64
}

func NewGridSpawnPicker() *GridSpawnPicker {
	return &GridSpawnPicker{
		Anchors: map[string][2]float64{"default": {400, 300}},
		Jitter:  64,
	}
}

func (g *GridSpawnPicker) PickSpawnPoint(mapKind string) (float64, float64) {
	anchor, ok := g.Anchors[mapKind]
	if !ok {
		anchor = g.Anchors["default"]
	}
	return anchor[0] + (rand.Float64()-0.5)*2*g.Jitter,
		anchor[1] + (rand.Float64()-0.5)*2*g.Jitter
}
