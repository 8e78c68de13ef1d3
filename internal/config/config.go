package config

import (
	"os"
	"strconv"
	"strings"
)

// Config is the application-level configuration. The cache and db packages
// read their own connection settings from the environment; this struct only
// decides whether those subsystems are wired at all.
type Config struct {
	Port          string
	DataDir       string
	WalkRouterURL string
	TransferHubs  []string
	AdminToken    string

	RedisEnabled bool
	DBEnabled    bool

	RateLimitPerMinute int
}

// Load reads the SHUTTLE_* environment variables. Redis and Postgres count
// as enabled when their host variables are set; planning never depends on
// either.
func Load() Config {
	rate, _ := strconv.Atoi(getEnv("RATE_LIMIT_PER_MINUTE", "0"))

	return Config{
		Port:               getEnv("SHUTTLE_PORT", "3000"),
		DataDir:            getEnv("SHUTTLE_DATA_DIR", "./data"),
		WalkRouterURL:      os.Getenv("SHUTTLE_WALK_ROUTER_URL"),
		TransferHubs:       SplitList(os.Getenv("SHUTTLE_TRANSFER_HUBS")),
		AdminToken:         os.Getenv("SHUTTLE_ADMIN_TOKEN"),
		RedisEnabled:       os.Getenv("REDIS_HOST") != "",
		DBEnabled:          os.Getenv("DB_HOST") != "",
		RateLimitPerMinute: rate,
	}
}

// SplitList parses a comma-separated list, dropping empty entries. An empty
// input yields nil so callers can fall back to their defaults.
func SplitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
