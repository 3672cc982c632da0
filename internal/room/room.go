package room

import (
	"math"
	"sync"
	"time"

	"orbvale/internal/store"
	"orbvale/internal/table"
)

type Room struct {
	ID      string
	MapKind string

	mu      sync.Mutex
	members map[string]*Player
	objects map[string]*Object
	tables  map[string]*table.Table
	closed  bool

	timersMu sync.Mutex
	timers   map[*time.Timer]struct{}

	now func() time.Time
}

type Snapshot struct {
	RoomID  string       `json:"roomId"`
	MapKind string       `json:"mapKind"`
	Members []PlayerView `json:"members"`
	Objects []ObjectView `json:"ephemeralObjects"`
}

func newRoom(id, mapKind string, now func() time.Time) *Room {
	return &Room{
		ID:      id,
		MapKind: mapKind,
		members: map[string]*Player{},
		objects: map[string]*Object{},
		tables:  map[string]*table.Table{},
		timers:  map[*time.Timer]struct{}{},
		now:     now,
	}
}

func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := Snapshot{RoomID: r.ID, MapKind: r.MapKind, Members: []PlayerView{}, Objects: []ObjectView{}}
	for _, p := range r.members {
		snap.Members = append(snap.Members, p.view())
	}
	for _, o := range r.objects {
		snap.Objects = append(snap.Objects, o.view())
	}
	return snap
}

func (r *Room) addMember(p *Player) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[p.ID] = p
}

func (r *Room) removeMember(playerID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, playerID)
	return len(r.members)
}

func (r *Room) HasMember(playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.members[playerID]
	return ok
}

func (r *Room) MemberView(playerID string) (PlayerView, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[playerID]
	if !ok {
		return PlayerView{}, false
	}
	return p.view(), true
}

// UpdateMember refreshes cached player fields on an idempotent re-join.
func (r *Room) UpdateMember(playerID string, balance int64, equipped []string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[playerID]
	if !ok {
		return false
	}
	p.Balance = balance
	p.Equipped = append([]string{}, equipped...)
	return true
}

func (r *Room) Move(playerID string, x, y float64, facing string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[playerID]
	if !ok {
		return false
	}
	p.X, p.Y, p.Facing = x, y, facing
	return true
}

func (r *Room) Balance(playerID string) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[playerID]
	if !ok {
		return 0, false
	}
	return p.Balance, true
}

// TryAdjustBalance applies delta to the cached balance, refusing to let it
// go negative. This is the re-validation point after any async gap; only
// the economy authority calls it.
func (r *Room) TryAdjustBalance(playerID string, delta int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[playerID]
	if !ok {
		return 0, ErrPlayerNotFound
	}
	if delta < 0 && p.Balance+delta < 0 {
		return p.Balance, ErrInsufficientFunds
	}
	p.Balance += delta
	return p.Balance, nil
}

// StampBalance overwrites the cached balance without applying a delta.
func (r *Room) StampBalance(playerID string, balance int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[playerID]
	if !ok {
		return false
	}
	p.Balance = balance
	return true
}

func (r *Room) MemberIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	return ids
}

func (r *Room) SpawnObject(o *Object) ObjectView {
	if o.ID == "" {
		o.ID = store.NewID()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.objects[o.ID] = o
	return o.view()
}

func (r *Room) RemoveObject(objectID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.objects[objectID]; !ok {
		return false
	}
	delete(r.objects, objectID)
	return true
}

// Collect removes a pickup if the player stands within radius of it.
// Out-of-range attempts are a no-op, not an error.
func (r *Room) Collect(playerID, objectID string, radius float64) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[playerID]
	if !ok {
		return 0, false
	}
	o, ok := r.objects[objectID]
	if !ok || o.Kind != ObjectPickup {
		return 0, false
	}
	if math.Hypot(p.X-o.X, p.Y-o.Y) > radius {
		return 0, false
	}
	delete(r.objects, objectID)
	return o.Reward, true
}

// Interact resolves a shrine or chest. The cooldown starts as soon as the
// gates pass, before the outcome is delivered, so a second trigger cannot
// land during resolution.
func (r *Room) Interact(playerID, objectID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.members[playerID]
	if !ok {
		return 0, ErrPlayerNotFound
	}
	o, ok := r.objects[objectID]
	if !ok || o.Kind == ObjectPickup {
		return 0, ErrObjectNotFound
	}
	now := r.now()
	if now.Before(o.readyAt) {
		return 0, ErrCooldownActive
	}
	if p.Balance < o.MinBalance {
		return 0, ErrInsufficientFunds
	}
	o.readyAt = now.Add(o.Cooldown)
	return o.Reward, nil
}

func (r *Room) Table(tableID string) (*table.Table, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tables[tableID]
	return t, ok
}

func (r *Room) Tables() []*table.Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*table.Table, 0, len(r.tables))
	for _, t := range r.tables {
		out = append(out, t)
	}
	return out
}

func (r *Room) EnsureTable(tableID string, create func(id string) *table.Table) *table.Table {
	r.mu.Lock()
	defer r.mu.Unlock()
	if t, ok := r.tables[tableID]; ok {
		return t
	}
	t := create(tableID)
	r.tables[tableID] = t
	return t
}

// AfterFunc schedules a room-scoped timer that is cancelled when the room
// is destroyed. The callback does not fire on closed rooms.
func (r *Room) AfterFunc(d time.Duration, fn func()) *time.Timer {
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		r.timersMu.Lock()
		delete(r.timers, t)
		r.timersMu.Unlock()
		r.mu.Lock()
		closed := r.closed
		r.mu.Unlock()
		if closed {
			return
		}
		fn()
	})
	r.timersMu.Lock()
	r.timers[t] = struct{}{}
	r.timersMu.Unlock()
	return t
}

// StartSpawner re-spawns a pickup every interval while the room lives,
// announcing each spawn through notify.
func (r *Room) StartSpawner(interval time.Duration, make func() *Object, notify func(ObjectView)) {
	var tick func()
	tick = func() {
		v := r.SpawnObject(make())
		if notify != nil {
			notify(v)
		}
		r.AfterFunc(interval, tick)
	}
	r.AfterFunc(interval, tick)
}

func (r *Room) close() {
	r.mu.Lock()
	r.closed = true
	tables := make([]*table.Table, 0, len(r.tables))
	for _, t := range r.tables {
		tables = append(tables, t)
	}
	r.mu.Unlock()

	r.timersMu.Lock()
	for t := range r.timers {
		t.Stop()
	}
	r.timers = map[*time.Timer]struct{}{}
	r.timersMu.Unlock()

	for _, t := range tables {
		t.Close()
	}
}
