package config

import "testing"

func TestLoadServerDefaults(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "postgres://localhost:5432/orbvale?sslmode=disable")

	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer() error = %v", err)
	}
	if cfg.HTTPAddr != ":8080" {
		t.Fatalf("HTTPAddr = %q, want :8080", cfg.HTTPAddr)
	}
	if cfg.DefaultRoom != "plaza" {
		t.Fatalf("DefaultRoom = %q, want plaza", cfg.DefaultRoom)
	}
	if len(cfg.ReservedRooms) != 2 {
		t.Fatalf("ReservedRooms = %v, want two entries", cfg.ReservedRooms)
	}
}

func TestLoadServerRequiresPostgresDSN(t *testing.T) {
	t.Setenv("POSTGRES_DSN", "")

	_, err := LoadServer()
	if err == nil {
		t.Fatal("LoadServer() expected error, got nil")
	}
}

func TestLoadGameDefaults(t *testing.T) {
	cfg, err := LoadGame()
	if err != nil {
		t.Fatalf("LoadGame() error = %v", err)
	}
	if cfg.MinBet != 100 || cfg.MaxBet != 100000 {
		t.Fatalf("bet bounds = %d..%d, want 100..100000", cfg.MinBet, cfg.MaxBet)
	}
	if cfg.IdleRewardOrbs != 50 {
		t.Fatalf("IdleRewardOrbs = %d, want 50", cfg.IdleRewardOrbs)
	}
}

func TestLoadGameParseTypes(t *testing.T) {
	t.Setenv("TABLE_DEAL_GRACE_DELAY", "10s")
	t.Setenv("PICKUP_RADIUS", "48.5")

	cfg, err := LoadGame()
	if err != nil {
		t.Fatalf("LoadGame() error = %v", err)
	}
	if cfg.DealGraceDelay.Seconds() != 10 {
		t.Fatalf("DealGraceDelay = %v, want 10s", cfg.DealGraceDelay)
	}
	if cfg.PickupRadius != 48.5 {
		t.Fatalf("PickupRadius = %v, want 48.5", cfg.PickupRadius)
	}
}

func TestLoadLogDefaults(t *testing.T) {
	cfg, err := LoadLog()
	if err != nil {
		t.Fatalf("LoadLog() error = %v", err)
	}
	if cfg.Level != "info" {
		t.Fatalf("Level = %q, want info", cfg.Level)
	}
}
