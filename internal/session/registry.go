package session

import (
	"sync"

	"github.com/rs/zerolog/log"
)

type entry struct {
	connID   string
	playerID string
	roomID   string
}

// Registry maps live connections to (player, room) bindings. A player may
// hold several connections at once; room membership follows the player, so
// join and leave side effects only fire on the first and last connection.
type Registry struct {
	mu       sync.Mutex
	byConn   map[string]*entry
	byPlayer map[string]map[string]*entry
	byRoom   map[string]map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{
		byConn:   map[string]*entry{},
		byPlayer: map[string]map[string]*entry{},
		byRoom:   map[string]map[string]*entry{},
	}
}

// RegisterResult tells the caller which side effects to run. Rejoin means
// the connection was already in the target room: refresh cached fields and
// re-send state, but skip join broadcasts and spawn placement. FirstInRoom
// means no other connection of this player was in the room, so the player
// actually enters it. PriorExits lists rooms the player fully left because
// this connection was their last one there.
type RegisterResult struct {
	Rejoin      bool
	FirstInRoom bool
	PriorExits  []string
}

func (r *Registry) Register(connID, playerID, roomID string) RegisterResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	var res RegisterResult
	if e, ok := r.byConn[connID]; ok {
		if e.roomID == roomID && e.playerID == playerID {
			res.Rejoin = true
			return res
		}
		res.PriorExits = r.dropLocked(e)
	}

	res.FirstInRoom = r.connsInLocked(playerID, roomID) == 0
	e := &entry{connID: connID, playerID: playerID, roomID: roomID}
	r.byConn[connID] = e
	r.indexLocked(e)
	log.Debug().Str("conn_id", connID).Str("player_id", playerID).
		Str("room_id", roomID).Msg("session_registered")
	return res
}

// Resolve returns the binding for a connection.
func (r *Registry) Resolve(connID string) (playerID, roomID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byConn[connID]
	if !ok {
		return "", "", false
	}
	return e.playerID, e.roomID, true
}

// Transfer moves an already-registered connection into a new room.
func (r *Registry) Transfer(connID, newRoomID string) (RegisterResult, bool) {
	r.mu.Lock()
	e, ok := r.byConn[connID]
	if !ok {
		r.mu.Unlock()
		return RegisterResult{}, false
	}
	playerID := e.playerID
	r.mu.Unlock()
	return r.Register(connID, playerID, newRoomID), true
}

// Unregister removes the binding for one connection. lastInRoom reports
// whether the player has no remaining connections in that room, which is
// when "player left room" logic must run.
func (r *Registry) Unregister(connID string) (playerID, roomID string, lastInRoom, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byConn[connID]
	if !ok {
		return "", "", false, false
	}
	exits := r.dropLocked(e)
	return e.playerID, e.roomID, len(exits) > 0, true
}

// Repair rebinds an orphaned connection by adopting the room of any other
// live connection carrying the same player identity. It tolerates
// transport reconnects that never delivered a clean disconnect.
func (r *Registry) Repair(connID, playerID string) (roomID string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byConn[connID]; exists {
		return "", false
	}
	for _, other := range r.byPlayer[playerID] {
		e := &entry{connID: connID, playerID: playerID, roomID: other.roomID}
		r.byConn[connID] = e
		r.indexLocked(e)
		log.Info().Str("conn_id", connID).Str("player_id", playerID).
			Str("room_id", other.roomID).Msg("session_repaired")
		return other.roomID, true
	}
	return "", false
}

// ConnsInRoom lists the connection ids currently subscribed to a room.
func (r *Registry) ConnsInRoom(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.byRoom[roomID]))
	for id := range r.byRoom[roomID] {
		out = append(out, id)
	}
	return out
}

// PlayerConns lists a player's connection ids, across all rooms.
func (r *Registry) PlayerConns(playerID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.byPlayer[playerID]))
	for id := range r.byPlayer[playerID] {
		out = append(out, id)
	}
	return out
}

func (r *Registry) indexLocked(e *entry) {
	if r.byPlayer[e.playerID] == nil {
		r.byPlayer[e.playerID] = map[string]*entry{}
	}
	r.byPlayer[e.playerID][e.connID] = e
	if r.byRoom[e.roomID] == nil {
		r.byRoom[e.roomID] = map[string]*entry{}
	}
	r.byRoom[e.roomID][e.connID] = e
}

// dropLocked removes the entry from every index and returns the rooms the
// player fully left as a result.
func (r *Registry) dropLocked(e *entry) []string {
	delete(r.byConn, e.connID)
	delete(r.byPlayer[e.playerID], e.connID)
	if len(r.byPlayer[e.playerID]) == 0 {
		delete(r.byPlayer, e.playerID)
	}
	delete(r.byRoom[e.roomID], e.connID)
	if len(r.byRoom[e.roomID]) == 0 {
		delete(r.byRoom, e.roomID)
	}
	if r.connsInLocked(e.playerID, e.roomID) == 0 {
		return []string{e.roomID}
	}
	return nil
}

func (r *Registry) connsInLocked(playerID, roomID string) int {
	n := 0
	for _, e := range r.byPlayer[playerID] {
		if e.roomID == roomID {
			n++
		}
	}
	return n
}
