package config

import "github.com/caarlos0/env/v11"

type ServerConfig struct {
	PostgresDSN string `env:"POSTGRES_DSN,required,notEmpty"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`

	// JWTSecret signs join tickets. Empty means the join payload identity
	// is trusted as-is (local development).
	JWTSecret string `env:"JWT_SECRET"`

	// ReservedRooms exist for the process lifetime even when empty.
	ReservedRooms []string `env:"RESERVED_ROOMS" envSeparator:"," envDefault:"plaza,lounge"`
	DefaultRoom   string   `env:"DEFAULT_ROOM" envDefault:"plaza"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
