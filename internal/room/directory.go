package room

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// SpawnPointPicker chooses a spawn coordinate for a map kind. Map and path
// generation live outside this server.
type SpawnPointPicker interface {
	PickSpawnPoint(mapKind string) (x, y float64)
}

// Directory owns the canonical state of every live room. Non-reserved rooms
// are created lazily and destroyed when their last member leaves.
type Directory struct {
	mu       sync.Mutex
	rooms    map[string]*Room
	reserved map[string]bool
	now      func() time.Time
	picker   SpawnPointPicker
}

func NewDirectory(reserved []string, picker SpawnPointPicker, now func() time.Time) *Directory {
	if now == nil {
		now = time.Now
	}
	d := &Directory{
		rooms:    map[string]*Room{},
		reserved: map[string]bool{},
		now:      now,
		picker:   picker,
	}
	for _, id := range reserved {
		d.reserved[id] = true
		d.rooms[id] = newRoom(id, "default", now)
	}
	return d
}

func (d *Directory) GetOrCreate(roomID, kindHint string) *Room {
	d.mu.Lock()
	defer d.mu.Unlock()
	if r, ok := d.rooms[roomID]; ok {
		return r
	}
	if kindHint == "" {
		kindHint = "default"
	}
	r := newRoom(roomID, kindHint, d.now)
	d.rooms[roomID] = r
	log.Info().Str("room_id", roomID).Str("map_kind", kindHint).Msg("room_created")
	return r
}

func (d *Directory) Get(roomID string) (*Room, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[roomID]
	return r, ok
}

// SetMapKind changes a room's map, which is only legal while it is empty.
func (d *Directory) SetMapKind(roomID, mapKind string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.members) > 0 {
		return ErrRoomOccupied
	}
	r.MapKind = mapKind
	return nil
}

// AddMember places the player in the room, picking a spawn point when no
// position is set yet.
func (d *Directory) AddMember(roomID string, p *Player) (*Room, error) {
	r, ok := d.Get(roomID)
	if !ok {
		return nil, ErrRoomNotFound
	}
	if p.X == 0 && p.Y == 0 && d.picker != nil {
		p.X, p.Y = d.picker.PickSpawnPoint(r.MapKind)
	}
	r.addMember(p)
	return r, nil
}

// RemoveMember takes the player out of the room and destroys the room when
// it was the last member of a non-reserved room. Destroying cancels every
// room-scoped timer and closes its tables.
func (d *Directory) RemoveMember(roomID, playerID string) (destroyed bool) {
	d.mu.Lock()
	r, ok := d.rooms[roomID]
	if !ok {
		d.mu.Unlock()
		return false
	}
	remaining := r.removeMember(playerID)
	if remaining > 0 || d.reserved[roomID] {
		d.mu.Unlock()
		return false
	}
	delete(d.rooms, roomID)
	d.mu.Unlock()

	r.close()
	log.Info().Str("room_id", roomID).Msg("room_destroyed")
	return true
}

func (d *Directory) ListRooms() []Snapshot {
	d.mu.Lock()
	rooms := make([]*Room, 0, len(d.rooms))
	for _, r := range d.rooms {
		rooms = append(rooms, r)
	}
	d.mu.Unlock()

	out := make([]Snapshot, 0, len(rooms))
	for _, r := range rooms {
		out = append(out, r.Snapshot())
	}
	return out
}
