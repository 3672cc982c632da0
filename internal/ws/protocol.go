package ws

import (
	"orbvale/internal/reel"
	"orbvale/internal/room"
	"orbvale/internal/table"
	"orbvale/internal/trade"
)

// Inbound messages. Every frame carries a type discriminator; unknown
// types are dropped.

type JoinRoomMessage struct {
	Type       string   `json:"type"`
	RoomID     string   `json:"roomId"`
	PlayerID   string   `json:"playerId"`
	PlayerName string   `json:"playerName"`
	Ticket     string   `json:"ticket,omitempty"`
	Balance    int64    `json:"balance"`
	Equipped   []string `json:"equipped"`
	MapKind    string   `json:"mapKind,omitempty"`
}

type MoveMessage struct {
	Type   string  `json:"type"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Facing string  `json:"facing"`
}

type CollectMessage struct {
	Type     string `json:"type"`
	ObjectID string `json:"objectId"`
}

type InteractMessage struct {
	Type     string `json:"type"`
	ObjectID string `json:"objectId"`
}

type SitMessage struct {
	Type    string `json:"type"`
	TableID string `json:"tableId"`
}

type PlaceBetMessage struct {
	Type    string `json:"type"`
	TableID string `json:"tableId"`
	Amount  int64  `json:"amount"`
}

type TableActionMessage struct {
	Type    string `json:"type"`
	TableID string `json:"tableId"`
}

type SpinMessage struct {
	Type      string `json:"type"`
	MachineID string `json:"machineId"`
	Bet       int64  `json:"bet"`
}

type TradeRequestMessage struct {
	Type          string `json:"type"`
	OtherPlayerID string `json:"otherPlayerId"`
}

type TradeModifyMessage struct {
	Type     string            `json:"type"`
	Items    []trade.ItemStack `json:"items"`
	Currency int64             `json:"currency"`
}

type IdleAckMessage struct {
	Type    string `json:"type"`
	Balance int64  `json:"balance"`
}

// Outbound frames.

type RoomState struct {
	Type   string `json:"type"`
	SelfID string `json:"selfId,omitempty"`
	room.Snapshot
}

type MemberJoined struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId"`
	Member room.PlayerView `json:"member"`
}

type MemberLeft struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	PlayerID string `json:"playerId"`
}

type MemberMoved struct {
	Type     string  `json:"type"`
	PlayerID string  `json:"playerId"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Facing   string  `json:"facing"`
}

type ObjectSpawned struct {
	Type   string          `json:"type"`
	RoomID string          `json:"roomId"`
	Object room.ObjectView `json:"object"`
}

type ObjectRemoved struct {
	Type     string `json:"type"`
	RoomID   string `json:"roomId"`
	ObjectID string `json:"objectId"`
	By       string `json:"by,omitempty"`
}

type TableState struct {
	Type string `json:"type"`
	table.View
}

type SpinResult struct {
	Type       string           `json:"type"`
	MachineID  string           `json:"machineId"`
	Grid       [][]string       `json:"grid"`
	Payout     int64            `json:"payout"`
	Net        int64            `json:"net"`
	NewBalance int64            `json:"newBalance"`
	Bonus      *reel.BonusState `json:"bonusState,omitempty"`
	Triggered  bool             `json:"bonusTriggered,omitempty"`
}

type TradeState struct {
	Type string `json:"type"`
	trade.View
}

type TradeSettled struct {
	Type           string      `json:"type"`
	TradeID        string      `json:"tradeId"`
	Received       trade.Offer `json:"received"`
	NewBalance     int64       `json:"newBalance"`
	PartnerID      string      `json:"partnerId"`
	FailedPlayerID string      `json:"failedPlayerId,omitempty"`
	Settled        bool        `json:"settled"`
}

type TradeClosed struct {
	Type    string `json:"type"`
	TradeID string `json:"tradeId"`
	By      string `json:"by"`
}

type BalanceUpdated struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
	Balance  int64  `json:"balance"`
	Reason   string `json:"reasonTag"`
}

type Evicted struct {
	Type     string `json:"type"`
	FromRoom string `json:"fromRoom"`
	ToRoom   string `json:"toRoom"`
}

type ErrorMessage struct {
	Type string `json:"type"`
	Code string `json:"code"`
}
