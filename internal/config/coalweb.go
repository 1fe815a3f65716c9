package config

import "time"

// Config holds runtime configuration for the coal web service.
type Config struct {
	Addr            string
	GraphiteURL     string
	GraphiteTimeout time.Duration
	CacheDir        string
	CacheRedisAddr  string
	CacheRedisPass  string
	CacheRedisDB    int
	Debug           bool
}

// Load constructs a Config from environment variables.
func Load() Config {
	return Config{
		Addr:            GetString("COAL_ADDR", ":8080"),
		GraphiteURL:     GetString("COAL_GRAPHITE_URL", "https://graphite.wikimedia.org"),
		GraphiteTimeout: time.Duration(GetInt("COAL_GRAPHITE_TIMEOUT_SECONDS", 15)) * time.Second,
		CacheDir:        GetString("COAL_CACHE_DIR", "/var/cache/coal_web"),
		CacheRedisAddr:  GetString("COAL_CACHE_REDIS_ADDR", ""),
		CacheRedisPass:  GetString("COAL_CACHE_REDIS_PASSWORD", ""),
		CacheRedisDB:    GetInt("COAL_CACHE_REDIS_DB", 0),
		Debug:           GetBool("COAL_DEBUG", false),
	}
}
