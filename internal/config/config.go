package config

import (
	"os"
	"strings"
)

type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string
	AuthToken   string
}

func Load() Config {
	cfg := Config{
		Port:        envOrDefault("NOTE_SYNC_PORT", "8090"),
		LogLevel:    envOrDefault("NOTE_SYNC_LOG_LEVEL", "info"),
		DatabaseURL: envOrDefault("NOTE_SYNC_DATABASE_URL", "file:notesync.db"),
		AuthToken:   strings.TrimSpace(os.Getenv("NOTE_SYNC_AUTH_TOKEN")),
	}
	if p := strings.TrimSpace(os.Getenv("PORT")); p != "" {
		cfg.Port = p
	}
	return cfg
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}
