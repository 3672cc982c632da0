package room

import "errors"

var (
	ErrRoomNotFound      = errors.New("room_not_found")
	ErrPlayerNotFound    = errors.New("player_not_found")
	ErrObjectNotFound    = errors.New("object_not_found")
	ErrCooldownActive    = errors.New("cooldown_active")
	ErrInsufficientFunds = errors.New("insufficient_funds")
	ErrRoomOccupied      = errors.New("room_occupied")
)
