package config

import "os"

// Config captures process-level configuration for the anonymisation stores
// and the whole-database anonymisation gate.
type Config struct {
	// PostgresDSN is used by the Postgres event log and marker stores.
	PostgresDSN string

	// RedisAddr is used by the Redis marker store when set.
	RedisAddr string

	// CanAnonymiseDatabase gates Engine.AnonymiseDatabase. Disabled by
	// default - we don't want people running it on production by accident.
	CanAnonymiseDatabase bool
}

// FromEnv builds a Config from environment variables so callers stay lean.
func FromEnv() Config {
	dsn := os.Getenv("VEIL_POSTGRES_DSN")
	if dsn == "" {
		dsn = "postgres://localhost:5432/veil?sslmode=disable"
	}

	return Config{
		PostgresDSN:          dsn,
		RedisAddr:            os.Getenv("VEIL_REDIS_ADDR"),
		CanAnonymiseDatabase: os.Getenv("VEIL_CAN_ANONYMISE_DATABASE") == "true",
	}
}
