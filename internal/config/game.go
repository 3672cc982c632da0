package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type GameConfig struct {
	InitialBalance int64 `env:"INITIAL_BALANCE_ORBS" envDefault:"50000"`

	// Table limits. The natural payout is bet + floor(bet * 3 / 2).
	MinBet int64 `env:"TABLE_MIN_BET_ORBS" envDefault:"100"`
	MaxBet int64 `env:"TABLE_MAX_BET_ORBS" envDefault:"100000"`

	DealGraceDelay  time.Duration `env:"TABLE_DEAL_GRACE_DELAY" envDefault:"3s"`
	TableResetDelay time.Duration `env:"TABLE_RESET_DELAY" envDefault:"5s"`

	ReelConfigPath string `env:"REEL_CONFIG_PATH" envDefault:"configs/reels.yaml"`

	IdleRewardOrbs     int64         `env:"IDLE_REWARD_ORBS" envDefault:"50"`
	IdleRewardInterval time.Duration `env:"IDLE_REWARD_INTERVAL" envDefault:"60s"`

	// Members whose balance drops below the floor are moved back to the
	// default room.
	BalanceFloor int64 `env:"BALANCE_FLOOR_ORBS" envDefault:"0"`

	PickupRadius  float64       `env:"PICKUP_RADIUS" envDefault:"96"`
	SpendCooldown time.Duration `env:"SPEND_COOLDOWN" envDefault:"750ms"`
}

func LoadGame() (GameConfig, error) {
	var cfg GameConfig
	err := env.Parse(&cfg)
	return cfg, err
}
