package ws

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"orbvale/internal/economy"
	"orbvale/internal/reel"
	"orbvale/internal/room"
	"orbvale/internal/table"
	"orbvale/internal/trade"
)

func opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

func (s *Server) handleJoinRoom(c *Client, m JoinRoomMessage) {
	playerID, name := m.PlayerID, m.PlayerName
	if s.verifier.Enabled() {
		claims, err := s.verifier.Verify(m.Ticket)
		if err != nil {
			s.sendError(c, err)
			return
		}
		playerID = claims.PlayerID
		if claims.Name != "" {
			name = claims.Name
		}
	}
	if playerID == "" {
		s.send(c, ErrorMessage{Type: "error", Code: "invalid_join"})
		return
	}
	roomID := m.RoomID
	if roomID == "" {
		roomID = s.defaultRoom
	}

	rm := s.rooms.GetOrCreate(roomID, m.MapKind)
	if m.MapKind != "" && rm.MapKind != m.MapKind {
		if err := s.rooms.SetMapKind(roomID, m.MapKind); err != nil {
			s.sendError(c, err)
			return
		}
	}

	res := s.registry.Register(c.id, playerID, roomID)
	if res.Rejoin {
		// idempotent re-join: refresh cached fields and re-send state, no
		// join side effects and no position reset
		rm.UpdateMember(playerID, m.Balance, m.Equipped)
		s.send(c, RoomState{Type: "room_state", SelfID: playerID, Snapshot: rm.Snapshot()})
		return
	}
	for _, prior := range res.PriorExits {
		s.playerLeftRoom(prior, playerID)
	}

	if res.FirstInRoom {
		balance := m.Balance
		if s.store != nil {
			ctx, cancel := opCtx()
			if err := s.store.EnsureAccount(ctx, playerID, name, s.gameCfg.InitialBalance); err != nil {
				log.Warn().Err(err).Str("player_id", playerID).Msg("ensure_account_failed")
			} else if bal, err := s.store.GetBalance(ctx, playerID); err == nil {
				// the durable row wins over the client-reported value
				balance = bal
			}
			cancel()
		}
		p := &room.Player{ID: playerID, Name: name, Balance: balance, Equipped: m.Equipped}
		if _, err := s.rooms.AddMember(roomID, p); err != nil {
			s.sendError(c, err)
			return
		}
		if mv, ok := rm.MemberView(playerID); ok {
			s.broadcastRoomExcept(roomID, playerID,
				MemberJoined{Type: "member_joined", RoomID: roomID, Member: mv})
		}
		log.Info().Str("room_id", roomID).Str("player_id", playerID).Msg("player_joined_room")
	} else {
		rm.UpdateMember(playerID, m.Balance, m.Equipped)
	}
	s.send(c, RoomState{Type: "room_state", SelfID: playerID, Snapshot: rm.Snapshot()})
}

// resolve maps the connection back to its (player, room) binding. Messages
// on unbound connections are rejected; join repairs happen in HandleWS.
func (s *Server) resolve(c *Client) (string, *room.Room, bool) {
	playerID, roomID, ok := s.registry.Resolve(c.id)
	if !ok {
		s.send(c, ErrorMessage{Type: "error", Code: "not_in_room"})
		return "", nil, false
	}
	rm, ok := s.rooms.Get(roomID)
	if !ok {
		s.send(c, ErrorMessage{Type: "error", Code: "room_not_found"})
		return "", nil, false
	}
	return playerID, rm, true
}

func (s *Server) handleMove(c *Client, m MoveMessage) {
	playerID, rm, ok := s.resolve(c)
	if !ok {
		return
	}
	if rm.Move(playerID, m.X, m.Y, m.Facing) {
		s.broadcastRoomExcept(rm.ID, playerID, MemberMoved{
			Type: "member_moved", PlayerID: playerID, X: m.X, Y: m.Y, Facing: m.Facing,
		})
	}
}

func (s *Server) handleCollect(c *Client, m CollectMessage) {
	playerID, rm, ok := s.resolve(c)
	if !ok {
		return
	}
	// out of range or already gone is a silent no-op
	reward, ok := rm.Collect(playerID, m.ObjectID, s.gameCfg.PickupRadius)
	if !ok {
		return
	}
	s.broadcastRoom(rm.ID, ObjectRemoved{Type: "object_removed", RoomID: rm.ID, ObjectID: m.ObjectID, By: playerID})
	if reward > 0 {
		ctx, cancel := opCtx()
		defer cancel()
		if _, err := s.authority.Apply(ctx, rm.ID, playerID, reward, "pickup_collect", "object", m.ObjectID); err != nil {
			log.Error().Err(err).Str("object_id", m.ObjectID).Msg("pickup_credit_failed")
		}
	}
}

func (s *Server) handleInteract(c *Client, m InteractMessage) {
	playerID, rm, ok := s.resolve(c)
	if !ok {
		return
	}
	if err := s.guard.Acquire(playerID); err != nil {
		s.sendError(c, err)
		return
	}
	defer s.guard.Release(playerID)

	reward, err := rm.Interact(playerID, m.ObjectID)
	if err != nil {
		s.sendError(c, err)
		return
	}
	if reward == 0 {
		return
	}
	ctx, cancel := opCtx()
	defer cancel()
	if _, err := s.authority.Apply(ctx, rm.ID, playerID, reward, "interact_reward", "object", m.ObjectID); err != nil {
		s.sendError(c, err)
	}
}

func (s *Server) ensureTable(rm *room.Room, tableID string) *table.Table {
	return rm.EnsureTable(tableID, func(id string) *table.Table {
		tbl := table.New(id, table.Config{
			MinBet:     s.gameCfg.MinBet,
			MaxBet:     s.gameCfg.MaxBet,
			GraceDelay: s.gameCfg.DealGraceDelay,
			ResetDelay: s.gameCfg.TableResetDelay,
		})
		tbl.SetCallbacks(
			func(playerID string, amount int64) {
				ctx, cancel := opCtx()
				defer cancel()
				if _, err := s.authority.Apply(ctx, rm.ID, playerID, amount, "table_payout", "table", id); err != nil {
					log.Error().Err(err).Str("table_id", id).Str("player_id", playerID).
						Int64("amount", amount).Msg("payout_credit_failed")
				}
			},
			func() {
				s.broadcastRoom(rm.ID, TableState{Type: "table_state", View: tbl.View()})
			},
		)
		return tbl
	})
}

func (s *Server) handleSit(c *Client, m SitMessage) {
	playerID, rm, ok := s.resolve(c)
	if !ok || m.TableID == "" {
		return
	}
	tbl := s.ensureTable(rm, m.TableID)
	if _, err := tbl.Sit(playerID); err != nil {
		s.sendError(c, err)
		return
	}
	s.broadcastRoom(rm.ID, TableState{Type: "table_state", View: tbl.View()})
}

// handlePlaceBet collects the wager in two phases: validate against the
// table, debit through the authority, then commit the bet. A commit
// failure after a successful debit refunds, because the round may have
// started during the durable write.
func (s *Server) handlePlaceBet(c *Client, m PlaceBetMessage) {
	playerID, rm, ok := s.resolve(c)
	if !ok {
		return
	}
	tbl, ok := rm.Table(m.TableID)
	if !ok {
		s.sendError(c, table.ErrNotSeated)
		return
	}
	if err := tbl.CheckBet(playerID, m.Amount); err != nil {
		s.sendError(c, err)
		return
	}
	if err := s.guard.Acquire(playerID); err != nil {
		s.sendError(c, err)
		return
	}
	defer s.guard.Release(playerID)

	ctx, cancel := opCtx()
	defer cancel()
	if _, err := s.authority.Apply(ctx, rm.ID, playerID, -m.Amount, "table_bet", "table", tbl.ID); err != nil {
		s.sendError(c, err)
		return
	}
	if err := tbl.PlaceBet(playerID, m.Amount); err != nil {
		if _, rerr := s.authority.Apply(ctx, rm.ID, playerID, m.Amount, "table_bet_refund", "table", tbl.ID); rerr != nil {
			log.Error().Err(rerr).Str("player_id", playerID).Msg("bet_refund_failed")
		}
		s.sendError(c, err)
		return
	}
	s.broadcastRoom(rm.ID, TableState{Type: "table_state", View: tbl.View()})
}

func (s *Server) handleTableAction(c *Client, action string, m TableActionMessage) {
	playerID, rm, ok := s.resolve(c)
	if !ok {
		return
	}
	tbl, ok := rm.Table(m.TableID)
	if !ok {
		s.sendError(c, table.ErrNotSeated)
		return
	}

	var err error
	switch action {
	case "hit":
		err = tbl.Hit(playerID)
	case "stand":
		err = tbl.Stand(playerID)
	case "leave_table":
		tbl.Leave(playerID)
	case "double_down":
		err = s.collectExtraBet(c, rm, tbl, playerID, tbl.CheckDouble, tbl.DoubleDown, "table_double")
	case "split":
		err = s.collectExtraBet(c, rm, tbl, playerID, tbl.CheckSplit, tbl.Split, "table_split")
	}
	if err != nil {
		s.sendError(c, err)
		return
	}
	s.broadcastRoom(rm.ID, TableState{Type: "table_state", View: tbl.View()})
}

// collectExtraBet funds double-down and split: validate, debit the extra
// bet, commit, refund if the table state moved underneath the debit.
func (s *Server) collectExtraBet(c *Client, rm *room.Room, tbl *table.Table, playerID string,
	check func(string) (int64, error), commit func(string) error, reason string) error {
	extra, err := check(playerID)
	if err != nil {
		return err
	}
	if err := s.guard.Acquire(playerID); err != nil {
		return err
	}
	defer s.guard.Release(playerID)

	ctx, cancel := opCtx()
	defer cancel()
	if _, err := s.authority.Apply(ctx, rm.ID, playerID, -extra, reason, "table", tbl.ID); err != nil {
		return err
	}
	if err := commit(playerID); err != nil {
		if _, rerr := s.authority.Apply(ctx, rm.ID, playerID, extra, reason+"_refund", "table", tbl.ID); rerr != nil {
			log.Error().Err(rerr).Str("player_id", playerID).Msg("extra_bet_refund_failed")
		}
		return err
	}
	return nil
}

func (s *Server) handleSpin(c *Client, m SpinMessage) {
	playerID, rm, ok := s.resolve(c)
	if !ok || m.MachineID == "" {
		return
	}
	if err := economy.ValidateBet(m.Bet, s.gameCfg.MinBet, s.gameCfg.MaxBet); err != nil {
		s.sendError(c, err)
		return
	}
	cfg := s.engine.Config()

	if st := s.bonuses.State(playerID, m.MachineID); st.IsInBonus {
		s.runFreeSpin(c, rm, playerID, m, cfg)
		return
	}

	grid := s.engine.Spin(false)
	payout := reel.Evaluate(grid, m.Bet, cfg)

	if reel.IsBonusTrigger(grid, cfg.Special) {
		// a trigger spin charges nothing and starts the free spins
		after := s.bonuses.Begin(playerID, m.MachineID, cfg.FreeSpins)
		newBal := s.creditPayout(rm, playerID, m.MachineID, payout)
		s.send(c, SpinResult{
			Type: "spin_result", MachineID: m.MachineID, Grid: gridRows(grid),
			Payout: payout, Net: payout, NewBalance: newBal, Bonus: &after, Triggered: true,
		})
		return
	}

	if err := s.guard.Acquire(playerID); err != nil {
		s.sendError(c, err)
		return
	}
	defer s.guard.Release(playerID)

	ctx, cancel := opCtx()
	defer cancel()
	newBal, err := s.authority.Apply(ctx, rm.ID, playerID, -m.Bet, "spin_bet", "machine", m.MachineID)
	if err != nil {
		s.sendError(c, err)
		return
	}
	if payout > 0 {
		newBal = s.creditPayout(rm, playerID, m.MachineID, payout)
	}
	s.send(c, SpinResult{
		Type: "spin_result", MachineID: m.MachineID, Grid: gridRows(grid),
		Payout: payout, Net: payout - m.Bet, NewBalance: newBal,
	})
}

// runFreeSpin plays one bonus spin: no bet charged, reward-skewed weights,
// a retrigger extends the count, and the result frame carries the state
// after the decrement so hitting zero ends the round only once this
// result is delivered.
func (s *Server) runFreeSpin(c *Client, rm *room.Room, playerID string, m SpinMessage, cfg reel.Config) {
	grid := s.engine.Spin(true)
	payout := reel.Evaluate(grid, m.Bet, cfg)
	after := s.bonuses.Consume(playerID, m.MachineID)
	triggered := reel.IsBonusTrigger(grid, cfg.Special)
	if triggered {
		after = s.bonuses.Begin(playerID, m.MachineID, cfg.FreeSpins)
	}
	newBal := s.creditPayout(rm, playerID, m.MachineID, payout)
	s.send(c, SpinResult{
		Type: "spin_result", MachineID: m.MachineID, Grid: gridRows(grid),
		Payout: payout, Net: payout, NewBalance: newBal, Bonus: &after, Triggered: triggered,
	})
}

func (s *Server) creditPayout(rm *room.Room, playerID, machineID string, payout int64) int64 {
	if payout <= 0 {
		bal, _ := rm.Balance(playerID)
		return bal
	}
	ctx, cancel := opCtx()
	defer cancel()
	newBal, err := s.authority.Apply(ctx, rm.ID, playerID, payout, "spin_payout", "machine", machineID)
	if err != nil {
		log.Error().Err(err).Str("machine_id", machineID).Str("player_id", playerID).
			Int64("payout", payout).Msg("spin_credit_failed")
		bal, _ := rm.Balance(playerID)
		return bal
	}
	return newBal
}

func gridRows(g reel.Grid) [][]string {
	out := make([][]string, reel.Rows)
	for r := 0; r < reel.Rows; r++ {
		row := make([]string, reel.Cols)
		copy(row, g[r][:])
		out[r] = row
	}
	return out
}

func (s *Server) handleTradeRequest(c *Client, m TradeRequestMessage) {
	playerID, rm, ok := s.resolve(c)
	if !ok {
		return
	}
	if !rm.HasMember(m.OtherPlayerID) {
		s.sendError(c, room.ErrPlayerNotFound)
		return
	}
	view, _, err := s.trades.Open(playerID, m.OtherPlayerID)
	if err != nil {
		s.sendError(c, err)
		return
	}
	s.notifyTrade(view)
}

func (s *Server) handleTradeModify(c *Client, m TradeModifyMessage) {
	playerID, rm, ok := s.resolve(c)
	if !ok {
		return
	}
	bal, ok := rm.Balance(playerID)
	if !ok {
		s.sendError(c, room.ErrPlayerNotFound)
		return
	}
	items := s.filterKnownItems(m.Items)
	view, err := s.trades.Modify(playerID, items, m.Currency, bal)
	if err != nil {
		s.sendError(c, err)
		return
	}
	s.notifyTrade(view)
}

// filterKnownItems drops item ids the catalog has never heard of.
// Ownership is not verified here; the inventory store is authoritative.
func (s *Server) filterKnownItems(items []trade.ItemStack) []trade.ItemStack {
	if s.items == nil || len(items) == 0 {
		return items
	}
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ItemID)
	}
	ctx, cancel := opCtx()
	defer cancel()
	known, err := s.items.Known(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Msg("catalog_lookup_failed")
		return items
	}
	out := make([]trade.ItemStack, 0, len(items))
	for _, it := range items {
		if known[it.ItemID] {
			out = append(out, it)
		}
	}
	return out
}

func (s *Server) handleTradeAccept(c *Client) {
	playerID, rm, ok := s.resolve(c)
	if !ok {
		return
	}
	view, settled, err := s.trades.Accept(playerID)
	if err != nil {
		s.sendError(c, err)
		return
	}
	if settled == nil {
		s.notifyTrade(view)
		return
	}

	ctx, cancel := opCtx()
	defer cancel()
	res, err := trade.Settle(ctx, rm.ID, settled, rm, s.authority)
	if err != nil {
		failed := ""
		var pe *trade.PartyError
		if errors.As(err, &pe) {
			failed = pe.PlayerID
		}
		s.sendToPlayer(settled.PartyA, TradeSettled{
			Type: "trade_settled", TradeID: settled.ID, PartnerID: settled.PartyB,
			FailedPlayerID: failed, Settled: false,
		})
		s.sendToPlayer(settled.PartyB, TradeSettled{
			Type: "trade_settled", TradeID: settled.ID, PartnerID: settled.PartyA,
			FailedPlayerID: failed, Settled: false,
		})
		return
	}

	s.sendToPlayer(settled.PartyA, TradeSettled{
		Type: "trade_settled", TradeID: settled.ID, Received: settled.OfferB,
		NewBalance: res.BalanceA, PartnerID: settled.PartyB, Settled: true,
	})
	s.sendToPlayer(settled.PartyB, TradeSettled{
		Type: "trade_settled", TradeID: settled.ID, Received: settled.OfferA,
		NewBalance: res.BalanceB, PartnerID: settled.PartyA, Settled: true,
	})
	if s.store != nil {
		go s.swapTradeItems(*settled)
	}
	log.Info().Str("trade_id", settled.ID).Str("party_a", settled.PartyA).
		Str("party_b", settled.PartyB).Msg("trade_settled")
}

// swapTradeItems moves the item halves between durable inventories. The
// currency halves already went through the authority; items are
// best-effort against the external inventory store.
func (s *Server) swapTradeItems(t trade.Trade) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.moveItems(ctx, t.PartyA, t.PartyB, t.OfferA.Items); err != nil {
		log.Error().Err(err).Str("trade_id", t.ID).Msg("trade_item_transfer_failed")
	}
	if err := s.moveItems(ctx, t.PartyB, t.PartyA, t.OfferB.Items); err != nil {
		log.Error().Err(err).Str("trade_id", t.ID).Msg("trade_item_transfer_failed")
	}
}

func (s *Server) moveItems(ctx context.Context, from, to string, items []trade.ItemStack) error {
	if len(items) == 0 {
		return nil
	}
	src, err := s.store.GetInventory(ctx, from)
	if err != nil {
		return err
	}
	dst, err := s.store.GetInventory(ctx, to)
	if err != nil {
		return err
	}
	for _, it := range items {
		n := it.Quantity
		if src[it.ItemID] < n {
			n = src[it.ItemID]
		}
		if n <= 0 {
			continue
		}
		src[it.ItemID] -= n
		if src[it.ItemID] == 0 {
			delete(src, it.ItemID)
		}
		dst[it.ItemID] += n
	}
	if err := s.store.SetInventory(ctx, from, src); err != nil {
		return err
	}
	return s.store.SetInventory(ctx, to, dst)
}

func (s *Server) handleTradeDecline(c *Client) {
	playerID, _, ok := s.resolve(c)
	if !ok {
		return
	}
	gone, err := s.trades.Decline(playerID)
	if err != nil {
		s.sendError(c, err)
		return
	}
	s.notifyTradeClosed(&gone, playerID)
}

func (s *Server) handleIdleAck(c *Client, m IdleAckMessage) {
	playerID, rm, ok := s.resolve(c)
	if !ok {
		return
	}
	s.authority.ConfirmIdle(rm.ID, playerID, m.Balance)
}

func (s *Server) notifyTrade(v trade.View) {
	s.sendToPlayer(v.PartyA, TradeState{Type: "trade_state", View: v})
	s.sendToPlayer(v.PartyB, TradeState{Type: "trade_state", View: v})
}

func (s *Server) notifyTradeClosed(t *trade.Trade, by string) {
	closed := TradeClosed{Type: "trade_closed", TradeID: t.ID, By: by}
	s.sendToPlayer(t.PartyA, closed)
	s.sendToPlayer(t.PartyB, closed)
}
