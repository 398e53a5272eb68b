package config

import "os"

// Config holds the durable agent runtime's environment-derived settings.
type Config struct {
	Port        string
	Environment string
	CORSOrigins string
	Debug       bool

	// RedisURL selects the backend: when empty, the server falls back to
	// the in-memory StateStore/EventStream/WorkQueue implementations
	// (single-process only, for local development and tests).
	RedisURL string

	// QueueCallbackURL is the full, externally reachable URL (including
	// the /execute-step path) the Redis-backed work queue POSTs due
	// tasks to. Required whenever RedisURL is set and the queue is
	// backed by Redis rather than in-process timers.
	QueueCallbackURL string

	// SessionTTLSeconds / EventTTLSeconds bound how long state and event
	// logs survive without activity (spec.md §4.1/§4.2).
	SessionTTLSeconds int
	EventTTLSeconds   int

	// DefaultProvider / DefaultModel name the LLM provider and model the LLM
	// executor calls for every session; a session's stored model_config is
	// not consulted when choosing them.
	DefaultProvider string
	DefaultModel    string
}

// Load reads Config from the environment (with .env already loaded by the
// caller via godotenv), applying the same defaulting pattern as before.
func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	return &Config{
		Port:              getEnv("PORT", "8080"),
		Environment:       env,
		CORSOrigins:       getEnv("CORS_ORIGINS", "http://localhost:3000"),
		Debug:             getEnv("DEBUG", getDefaultDebug(env)) == "true",
		RedisURL:          getEnv("REDIS_URL", ""),
		QueueCallbackURL:  getEnv("QUEUE_CALLBACK_URL", ""),
		SessionTTLSeconds: getEnvInt("SESSION_TTL_SECONDS", 86400),
		EventTTLSeconds:   getEnvInt("EVENT_TTL_SECONDS", 3600),
		DefaultProvider:   getEnv("DEFAULT_PROVIDER", "mock"),
		DefaultModel:      getEnv("DEFAULT_MODEL", "mock-1"),
	}
}

// getDefaultDebug returns the default debug setting based on environment.
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n := 0
	for _, r := range value {
		if r < '0' || r > '9' {
			return defaultValue
		}
		n = n*10 + int(r-'0')
	}
	return n
}
