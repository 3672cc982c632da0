package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"orbvale/internal/auth"
	"orbvale/internal/catalog"
	"orbvale/internal/config"
	"orbvale/internal/economy"
	"orbvale/internal/reel"
	"orbvale/internal/room"
	"orbvale/internal/session"
	"orbvale/internal/store"
	"orbvale/internal/table"
	"orbvale/internal/trade"
)

type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

type Server struct {
	gameCfg     config.GameConfig
	defaultRoom string

	rooms    *room.Directory
	registry *session.Registry
	verifier *auth.Verifier
	store    *store.Store
	engine   *reel.Engine
	bonuses  *reel.Tracker
	trades   *trade.Book
	items    *catalog.Catalog
	guard    *economy.Guard

	// set after construction; the authority broadcasts through this server
	authority *economy.Authority

	upgrader websocket.Upgrader
	mu       sync.Mutex
	clients  map[string]*Client
}

func NewServer(srvCfg config.ServerConfig, gameCfg config.GameConfig, rooms *room.Directory,
	registry *session.Registry, st *store.Store, engine *reel.Engine, items *catalog.Catalog) *Server {
	return &Server{
		gameCfg:     gameCfg,
		defaultRoom: srvCfg.DefaultRoom,
		rooms:       rooms,
		registry:    registry,
		verifier:    auth.NewVerifier(srvCfg.JWTSecret),
		store:       st,
		engine:      engine,
		bonuses:     reel.NewTracker(),
		trades:      trade.NewBook(),
		items:       items,
		guard:       economy.NewGuard(gameCfg.SpendCooldown),
		upgrader:    websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }},
		clients:     map[string]*Client{},
	}
}

// SetAuthority wires the ledger authority in after construction; the
// authority needs this server as its broadcaster.
func (s *Server) SetAuthority(a *economy.Authority) { s.authority = a }

func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &Client{id: store.NewID(), conn: conn, send: make(chan []byte, 32)}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	go s.writeLoop(c)

	// transport-level reconnects arrive as fresh connections with no clean
	// prior disconnect; adopt the room of any live sibling connection
	if pid := r.URL.Query().Get("playerId"); pid != "" {
		if roomID, ok := s.registry.Repair(c.id, pid); ok {
			if rm, ok := s.rooms.Get(roomID); ok {
				s.send(c, RoomState{Type: "room_state", SelfID: pid, Snapshot: rm.Snapshot()})
			}
		}
	}

	s.readLoop(c)
}

func (s *Server) readLoop(c *Client) {
	defer func() {
		s.disconnect(c)
		_ = c.conn.Close()
	}()

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var base struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}
		s.dispatch(c, base.Type, msg)
	}
}

func (s *Server) dispatch(c *Client, typ string, msg []byte) {
	switch typ {
	case "join_room":
		var m JoinRoomMessage
		if json.Unmarshal(msg, &m) == nil {
			s.handleJoinRoom(c, m)
		}
	case "move":
		var m MoveMessage
		if json.Unmarshal(msg, &m) == nil {
			s.handleMove(c, m)
		}
	case "collect":
		var m CollectMessage
		if json.Unmarshal(msg, &m) == nil {
			s.handleCollect(c, m)
		}
	case "interact":
		var m InteractMessage
		if json.Unmarshal(msg, &m) == nil {
			s.handleInteract(c, m)
		}
	case "sit":
		var m SitMessage
		if json.Unmarshal(msg, &m) == nil {
			s.handleSit(c, m)
		}
	case "place_bet":
		var m PlaceBetMessage
		if json.Unmarshal(msg, &m) == nil {
			s.handlePlaceBet(c, m)
		}
	case "hit", "stand", "double_down", "split", "leave_table":
		var m TableActionMessage
		if json.Unmarshal(msg, &m) == nil {
			s.handleTableAction(c, typ, m)
		}
	case "spin":
		var m SpinMessage
		if json.Unmarshal(msg, &m) == nil {
			s.handleSpin(c, m)
		}
	case "trade_request":
		var m TradeRequestMessage
		if json.Unmarshal(msg, &m) == nil {
			s.handleTradeRequest(c, m)
		}
	case "trade_modify":
		var m TradeModifyMessage
		if json.Unmarshal(msg, &m) == nil {
			s.handleTradeModify(c, m)
		}
	case "trade_accept":
		s.handleTradeAccept(c)
	case "trade_decline":
		s.handleTradeDecline(c)
	case "idle_ack":
		var m IdleAckMessage
		if json.Unmarshal(msg, &m) == nil {
			s.handleIdleAck(c, m)
		}
	}
}

func (s *Server) writeLoop(c *Client) {
	for msg := range c.send {
		_ = c.conn.WriteMessage(websocket.TextMessage, msg)
	}
}

// disconnect drops the session for this connection; room exit side effects
// only run when it was the player's last connection in the room.
func (s *Server) disconnect(c *Client) {
	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()

	playerID, roomID, last, ok := s.registry.Unregister(c.id)
	if ok && last {
		s.playerLeftRoom(roomID, playerID)
	}
	safeClose(c.send)
}

// playerLeftRoom runs the full exit: table seats are abandoned (bets
// forfeit), open trades are declined, bonus rounds dropped, and the member
// is removed from the room, destroying it when it was the last member of a
// non-reserved room.
func (s *Server) playerLeftRoom(roomID, playerID string) {
	if rm, ok := s.rooms.Get(roomID); ok {
		for _, tbl := range rm.Tables() {
			tbl.Leave(playerID)
		}
	}
	if gone, ok := s.trades.DropPlayer(playerID); ok {
		s.notifyTradeClosed(&gone, playerID)
	}
	s.bonuses.DropPlayer(playerID)
	s.rooms.RemoveMember(roomID, playerID)
	s.broadcastRoom(roomID, MemberLeft{Type: "member_left", RoomID: roomID, PlayerID: playerID})
	log.Info().Str("room_id", roomID).Str("player_id", playerID).Msg("player_left_room")
}

// ObjectSpawned announces a server-spawned ephemeral object to the room.
func (s *Server) ObjectSpawned(roomID string, o room.ObjectView) {
	s.broadcastRoom(roomID, ObjectSpawned{Type: "object_spawned", RoomID: roomID, Object: o})
}

// BalanceUpdated implements the economy broadcaster: every connection in
// the room sees every balance change, tagged with its reason.
func (s *Server) BalanceUpdated(roomID, playerID string, balance int64, reason string) {
	s.broadcastRoom(roomID, BalanceUpdated{
		Type:     "balance_updated",
		PlayerID: playerID,
		Balance:  balance,
		Reason:   reason,
	})
}

// EvictBelowFloor relocates a broke player back to the default room. It
// runs after the triggering balance broadcast has gone out.
func (s *Server) EvictBelowFloor(roomID, playerID string) {
	if roomID == s.defaultRoom {
		return
	}
	rm, ok := s.rooms.Get(roomID)
	if !ok {
		return
	}
	view, ok := rm.MemberView(playerID)
	if !ok {
		return
	}
	s.playerLeftRoom(roomID, playerID)

	home := s.rooms.GetOrCreate(s.defaultRoom, "")
	p := &room.Player{ID: playerID, Name: view.Name, Balance: view.Balance, Equipped: view.Equipped}
	if _, err := s.rooms.AddMember(s.defaultRoom, p); err != nil {
		log.Error().Err(err).Str("player_id", playerID).Msg("eviction_relocate_failed")
		return
	}

	for _, connID := range s.registry.PlayerConns(playerID) {
		if _, prior, ok := s.registry.Resolve(connID); !ok || prior != roomID {
			continue
		}
		s.registry.Register(connID, playerID, s.defaultRoom)
		s.sendToConn(connID, Evicted{Type: "evicted", FromRoom: roomID, ToRoom: s.defaultRoom})
		s.sendToConn(connID, RoomState{Type: "room_state", SelfID: playerID, Snapshot: home.Snapshot()})
	}
	if mv, ok := home.MemberView(playerID); ok {
		s.broadcastRoomExcept(s.defaultRoom, playerID,
			MemberJoined{Type: "member_joined", RoomID: s.defaultRoom, Member: mv})
	}
}

func (s *Server) broadcastRoom(roomID string, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	for _, connID := range s.registry.ConnsInRoom(roomID) {
		s.sendRaw(connID, msg)
	}
}

// broadcastRoomExcept skips the named player's own connections, used for
// join notifications where the joiner gets full room state instead.
func (s *Server) broadcastRoomExcept(roomID, playerID string, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	for _, connID := range s.registry.ConnsInRoom(roomID) {
		if pid, _, ok := s.registry.Resolve(connID); ok && pid == playerID {
			continue
		}
		s.sendRaw(connID, msg)
	}
}

func (s *Server) sendToPlayer(playerID string, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	for _, connID := range s.registry.PlayerConns(playerID) {
		s.sendRaw(connID, msg)
	}
}

func (s *Server) sendToConn(connID string, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	s.sendRaw(connID, msg)
}

func (s *Server) sendRaw(connID string, msg []byte) {
	s.mu.Lock()
	c := s.clients[connID]
	s.mu.Unlock()
	if c != nil {
		safeSend(c.send, msg)
	}
}

func (s *Server) send(c *Client, v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	safeSend(c.send, msg)
}

func (s *Server) sendError(c *Client, err error) {
	s.send(c, ErrorMessage{Type: "error", Code: mapError(err)})
}

func safeClose(ch chan []byte) {
	defer func() { _ = recover() }()
	close(ch)
}

func safeSend(ch chan []byte, msg []byte) {
	defer func() { _ = recover() }()
	select {
	case ch <- msg:
	case <-time.After(time.Second):
	}
}

func mapError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, economy.ErrInsufficientFunds),
		errors.Is(err, room.ErrInsufficientFunds),
		errors.Is(err, store.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, economy.ErrBusy):
		return "action_in_flight"
	case errors.Is(err, economy.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, table.ErrNotYourTurn):
		return "not_your_turn"
	case errors.Is(err, table.ErrNotSeated):
		return "not_seated"
	case errors.Is(err, table.ErrInvalidBet):
		return "invalid_bet"
	case errors.Is(err, table.ErrAlreadyBet):
		return "already_bet"
	case errors.Is(err, table.ErrTableFull):
		return "table_full"
	case errors.Is(err, table.ErrInvalidMove):
		return "invalid_action"
	case errors.Is(err, table.ErrRoundRunning):
		return "round_in_progress"
	case errors.Is(err, room.ErrRoomNotFound):
		return "room_not_found"
	case errors.Is(err, room.ErrPlayerNotFound):
		return "player_not_found"
	case errors.Is(err, room.ErrObjectNotFound):
		return "object_not_found"
	case errors.Is(err, room.ErrCooldownActive):
		return "cooldown_active"
	case errors.Is(err, room.ErrRoomOccupied):
		return "room_occupied"
	case errors.Is(err, trade.ErrSelfTrade):
		return "self_trade"
	case errors.Is(err, trade.ErrAlreadyTrading):
		return "already_trading"
	case errors.Is(err, trade.ErrNoTrade):
		return "no_open_trade"
	case errors.Is(err, trade.ErrInvalidOffer):
		return "invalid_offer"
	case errors.Is(err, trade.ErrOfferTooRich):
		return "offer_exceeds_balance"
	case errors.Is(err, auth.ErrInvalidTicket):
		return "invalid_ticket"
	case errors.Is(err, auth.ErrExpiredTicket):
		return "expired_ticket"
	}
	var pe *trade.PartyError
	if errors.As(err, &pe) {
		return "insufficient_funds_for_settlement"
	}
	return "internal_error"
}
