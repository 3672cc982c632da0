package economy

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"orbvale/internal/room"
)

// Sweeper applies the passive idle reward to every room resident on a
// fixed interval. Each grant goes through the fire-and-forget idle path.
type Sweeper struct {
	rooms     *room.Directory
	authority *Authority
	reward    int64
	interval  time.Duration
}

func NewSweeper(rooms *room.Directory, authority *Authority, reward int64, interval time.Duration) *Sweeper {
	return &Sweeper{rooms: rooms, authority: authority, reward: reward, interval: interval}
}

// Run blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	if s.reward <= 0 || s.interval <= 0 {
		return
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.sweep()
		}
	}
}

func (s *Sweeper) sweep() {
	granted := 0
	for _, snap := range s.rooms.ListRooms() {
		for _, m := range snap.Members {
			s.authority.ApplyIdle(snap.RoomID, m.ID, s.reward, "idle_reward")
			granted++
		}
	}
	if granted > 0 {
		log.Debug().Int("players", granted).Msg("idle_sweep")
	}
}
