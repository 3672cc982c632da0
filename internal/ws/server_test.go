package ws

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"orbvale/internal/config"
	"orbvale/internal/economy"
	"orbvale/internal/reel"
	"orbvale/internal/room"
	"orbvale/internal/session"
)

type memLedger struct {
	mu       sync.Mutex
	balances map[string]int64
}

func (m *memLedger) apply(id string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	nb := m.balances[id] + delta
	if nb < 0 {
		return 0, economy.ErrInsufficientFunds
	}
	m.balances[id] = nb
	return nb, nil
}

func (m *memLedger) Credit(_ context.Context, id string, amount int64, _, _, _ string) (int64, error) {
	return m.apply(id, amount)
}

func (m *memLedger) Debit(_ context.Context, id string, amount int64, _, _, _ string) (int64, error) {
	return m.apply(id, -amount)
}

func reelTestConfig() reel.Config {
	// single non-special symbol: every middle row is five cherries
	return reel.Config{
		Special:   "orb",
		FreeSpins: 10,
		Normal:    []reel.SymbolWeight{{Name: "cherry", Weight: 1}},
		Bonus:     []reel.SymbolWeight{{Name: "cherry", Weight: 1}},
		Paytable:  map[string]map[int]int64{"cherry": {3: 2, 4: 4, 5: 8}},
	}
}

func newTestServer(t *testing.T, floor int64) (*Server, *memLedger) {
	t.Helper()
	srvCfg := config.ServerConfig{
		DefaultRoom:   "plaza",
		ReservedRooms: []string{"plaza", "lounge"},
	}
	gameCfg := config.GameConfig{
		InitialBalance: 50000,
		MinBet:         100,
		MaxBet:         100000,
		PickupRadius:   96,
		SpendCooldown:  time.Millisecond,
	}
	dir := room.NewDirectory(srvCfg.ReservedRooms, nil, nil)
	s := NewServer(srvCfg, gameCfg, dir, session.NewRegistry(), nil, reel.NewEngine(reelTestConfig()), nil)
	led := &memLedger{balances: map[string]int64{}}
	s.SetAuthority(economy.NewAuthority(dir, led, s, floor))
	return s, led
}

func join(t *testing.T, s *Server, led *memLedger, connID, playerID, roomID string, balance int64) *Client {
	t.Helper()
	c := &Client{id: connID, send: make(chan []byte, 64)}
	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()
	led.mu.Lock()
	if _, ok := led.balances[playerID]; !ok {
		led.balances[playerID] = balance
	}
	led.mu.Unlock()
	s.handleJoinRoom(c, JoinRoomMessage{
		Type: "join_room", RoomID: roomID, PlayerID: playerID, PlayerName: playerID, Balance: balance,
	})
	return c
}

// drain decodes every frame queued on the client.
func drain(t *testing.T, c *Client) []map[string]any {
	t.Helper()
	var out []map[string]any
	for {
		select {
		case msg := <-c.send:
			var frame map[string]any
			if err := json.Unmarshal(msg, &frame); err != nil {
				t.Fatalf("bad frame %s: %v", msg, err)
			}
			out = append(out, frame)
		default:
			return out
		}
	}
}

func lastOfType(frames []map[string]any, typ string) map[string]any {
	for i := len(frames) - 1; i >= 0; i-- {
		if frames[i]["type"] == typ {
			return frames[i]
		}
	}
	return nil
}

func TestJoinAndIdempotentRejoin(t *testing.T) {
	s, led := newTestServer(t, 0)
	c := join(t, s, led, "c1", "p1", "plaza", 50000)

	frames := drain(t, c)
	state := lastOfType(frames, "room_state")
	if state == nil {
		t.Fatalf("no room_state in %v", frames)
	}
	if state["selfId"] != "p1" {
		t.Fatalf("selfId = %v", state["selfId"])
	}

	rm, _ := s.rooms.Get("plaza")
	s.handleMove(c, MoveMessage{Type: "move", X: 10, Y: 20, Facing: "left"})

	// re-issuing join_room must not duplicate the member or reset position
	s.handleJoinRoom(c, JoinRoomMessage{Type: "join_room", RoomID: "plaza", PlayerID: "p1", Balance: 50000})
	snap := rm.Snapshot()
	if len(snap.Members) != 1 {
		t.Fatalf("members = %d, want 1 after rejoin", len(snap.Members))
	}
	if snap.Members[0].X != 10 || snap.Members[0].Y != 20 {
		t.Fatalf("rejoin reset position: %+v", snap.Members[0])
	}
	if lastOfType(drain(t, c), "room_state") == nil {
		t.Fatal("rejoin must re-send room state")
	}
}

func TestSecondConnectionThenMoveRooms(t *testing.T) {
	s, led := newTestServer(t, 0)
	join(t, s, led, "c1", "p1", "plaza", 50000)
	join(t, s, led, "c2", "p1", "plaza", 50000)

	rm, _ := s.rooms.Get("plaza")
	if len(rm.Snapshot().Members) != 1 {
		t.Fatal("second connection must not duplicate the member")
	}

	// c1 moves to the lounge; p1 stays in plaza via c2
	s.handleJoinRoom(clientFor(s, "c1"), JoinRoomMessage{Type: "join_room", RoomID: "lounge", PlayerID: "p1", Balance: 50000})
	if !rm.HasMember("p1") {
		t.Fatal("p1 must remain in plaza while c2 is connected there")
	}
	lounge, _ := s.rooms.Get("lounge")
	if !lounge.HasMember("p1") {
		t.Fatal("p1 must also be in the lounge now")
	}

	// c2 follows: plaza membership ends
	s.handleJoinRoom(clientFor(s, "c2"), JoinRoomMessage{Type: "join_room", RoomID: "lounge", PlayerID: "p1", Balance: 50000})
	if rm.HasMember("p1") {
		t.Fatal("last connection left plaza, membership must end")
	}
}

func clientFor(s *Server, connID string) *Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients[connID]
}

func TestSpinAccounting(t *testing.T) {
	s, led := newTestServer(t, 0)
	c := join(t, s, led, "c1", "p1", "plaza", 50000)
	drain(t, c)

	s.handleSpin(c, SpinMessage{Type: "spin", MachineID: "m1", Bet: 100})
	frames := drain(t, c)
	res := lastOfType(frames, "spin_result")
	if res == nil {
		t.Fatalf("no spin_result in %v", frames)
	}
	// five cherries on the middle row: payout 800, net 700
	if res["payout"].(float64) != 800 || res["net"].(float64) != 700 {
		t.Fatalf("payout/net = %v/%v", res["payout"], res["net"])
	}
	if res["newBalance"].(float64) != 50700 {
		t.Fatalf("newBalance = %v", res["newBalance"])
	}
	if led.balances["p1"] != 50700 {
		t.Fatalf("durable balance = %d, want 50700", led.balances["p1"])
	}
}

func TestSpinRejectsBadBet(t *testing.T) {
	s, led := newTestServer(t, 0)
	c := join(t, s, led, "c1", "p1", "plaza", 50000)
	drain(t, c)

	s.handleSpin(c, SpinMessage{Type: "spin", MachineID: "m1", Bet: 5})
	frames := drain(t, c)
	e := lastOfType(frames, "error")
	if e == nil || e["code"] != "invalid_amount" {
		t.Fatalf("frames = %v, want invalid_amount error", frames)
	}
	if led.balances["p1"] != 50000 {
		t.Fatalf("balance touched by rejected spin: %d", led.balances["p1"])
	}
}

func TestTradeHandshakeSettles(t *testing.T) {
	s, led := newTestServer(t, 0)
	c1 := join(t, s, led, "c1", "p1", "plaza", 10000)
	c2 := join(t, s, led, "c2", "p2", "plaza", 10000)
	drain(t, c1)
	drain(t, c2)

	s.handleTradeRequest(c1, TradeRequestMessage{Type: "trade_request", OtherPlayerID: "p2"})
	if lastOfType(drain(t, c2), "trade_state") == nil {
		t.Fatal("partner must be notified of the open trade")
	}
	s.handleTradeModify(c1, TradeModifyMessage{Type: "trade_modify", Currency: 1000})
	s.handleTradeModify(c2, TradeModifyMessage{Type: "trade_modify", Currency: 2000})
	s.handleTradeAccept(c1)
	s.handleTradeAccept(c2)

	f1 := lastOfType(drain(t, c1), "trade_settled")
	f2 := lastOfType(drain(t, c2), "trade_settled")
	if f1 == nil || f2 == nil {
		t.Fatal("both parties must receive trade_settled")
	}
	if f1["settled"] != true || f2["settled"] != true {
		t.Fatalf("settled flags = %v %v", f1["settled"], f2["settled"])
	}
	if f1["newBalance"].(float64) != 11000 || f2["newBalance"].(float64) != 9000 {
		t.Fatalf("balances = %v %v, want 11000/9000", f1["newBalance"], f2["newBalance"])
	}
	if led.balances["p1"] != 11000 || led.balances["p2"] != 9000 {
		t.Fatalf("durable = %d %d", led.balances["p1"], led.balances["p2"])
	}
}

func TestTradeRequestRequiresSameRoom(t *testing.T) {
	s, led := newTestServer(t, 0)
	c1 := join(t, s, led, "c1", "p1", "plaza", 10000)
	join(t, s, led, "c2", "p2", "lounge", 10000)
	drain(t, c1)

	s.handleTradeRequest(c1, TradeRequestMessage{Type: "trade_request", OtherPlayerID: "p2"})
	e := lastOfType(drain(t, c1), "error")
	if e == nil || e["code"] != "player_not_found" {
		t.Fatalf("cross-room trade must be rejected, got %v", e)
	}
}

func TestFloorEvictionRelocatesToDefaultRoom(t *testing.T) {
	s, led := newTestServer(t, 1000)
	c := join(t, s, led, "c1", "p1", "lounge", 1500)
	drain(t, c)

	ctx := context.Background()
	if _, err := s.authority.Apply(ctx, "lounge", "p1", -600, "spin_bet", "machine", "m1"); err != nil {
		t.Fatalf("apply: %v", err)
	}

	lounge, _ := s.rooms.Get("lounge")
	if lounge.HasMember("p1") {
		t.Fatal("p1 must be evicted from the lounge")
	}
	plaza, _ := s.rooms.Get("plaza")
	if !plaza.HasMember("p1") {
		t.Fatal("p1 must land in the default room")
	}
	if bal, _ := plaza.Balance("p1"); bal != 900 {
		t.Fatalf("relocated balance = %d, want 900", bal)
	}
	frames := drain(t, c)
	ev := lastOfType(frames, "evicted")
	if ev == nil || ev["toRoom"] != "plaza" {
		t.Fatalf("frames = %v, want evicted to plaza", frames)
	}
	if _, roomID, _ := s.registry.Resolve("c1"); roomID != "plaza" {
		t.Fatalf("session room = %q, want plaza", roomID)
	}
}

func TestIdleAckRestampsOnlyPushedValue(t *testing.T) {
	s, led := newTestServer(t, 0)
	c := join(t, s, led, "c1", "p1", "plaza", 50000)
	drain(t, c)

	s.authority.ApplyIdle("plaza", "p1", 50, "idle_reward")
	s.handleIdleAck(c, IdleAckMessage{Type: "idle_ack", Balance: 50050})
	rm, _ := s.rooms.Get("plaza")
	if bal, _ := rm.Balance("p1"); bal != 50050 {
		t.Fatalf("cache = %d, want re-stamped 50050", bal)
	}

	// an ack for a value the server never pushed is discarded
	s.handleIdleAck(c, IdleAckMessage{Type: "idle_ack", Balance: 90000})
	if bal, _ := rm.Balance("p1"); bal != 50050 {
		t.Fatalf("cache = %d after fabricated ack, want 50050", bal)
	}
}
