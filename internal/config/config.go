// Package config provides environment configuration for the engagement engine.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Bot identity (messages from this user id are never processed)
	BotUserID string

	// Engagement settings
	DefaultThreshold float64
	StickyTTL        time.Duration
	MuteDuration     time.Duration
	ActiveModeScale  float64
	AmbientDecay     float64

	// Deduplication
	DedupRetention time.Duration

	// Context assembly
	ContextMessages    int
	SummaryMessages    int
	ImagesPerMessage   int
	ImagesPerWindow    int
	HistoryMaxPerChat  int

	// Summarization boundaries
	WeeklyBoundaryDay  time.Weekday
	WeeklyBoundaryHour int
	SummaryTick        time.Duration

	// Lanes
	LaneIdleTimeout time.Duration
	LaneQueueSize   int

	// Semantic classifier
	ClassifierProvider string
	ClassifierModel    string
	ClassifierTimeout  time.Duration
	AnthropicAPIKey    string
	OpenAIAPIKey       string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// Redis settings (optional; enables multi-instance dedup/state)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT settings for the diagnostics API
	JWTSecret string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 60*time.Second),

		// Bot identity
		BotUserID: getEnv("BOT_USER_ID", ""),

		// Engagement
		DefaultThreshold: getFloatEnv("ENGAGE_DEFAULT_THRESHOLD", 0.5),
		StickyTTL:        getDurationEnv("ENGAGE_STICKY_TTL", 10*time.Minute),
		MuteDuration:     getDurationEnv("ENGAGE_MUTE_DURATION", 5*time.Minute),
		ActiveModeScale:  getFloatEnv("ENGAGE_ACTIVE_SCALE", 0.6),
		AmbientDecay:     getFloatEnv("ENGAGE_AMBIENT_DECAY", 0.55),

		// Deduplication
		DedupRetention: getDurationEnv("DEDUP_RETENTION", 24*time.Hour),

		// Context assembly
		ContextMessages:   getIntEnv("CONTEXT_MESSAGES", 20),
		SummaryMessages:   getIntEnv("SUMMARY_MESSAGES", 400),
		ImagesPerMessage:  getIntEnv("IMAGES_PER_MESSAGE", 4),
		ImagesPerWindow:   getIntEnv("IMAGES_PER_WINDOW", 12),
		HistoryMaxPerChat: getIntEnv("HISTORY_MAX_PER_CHAT", 2000),

		// Summarization
		WeeklyBoundaryDay:  time.Weekday(getIntEnv("SUMMARY_WEEKLY_DAY", int(time.Monday))),
		WeeklyBoundaryHour: getIntEnv("SUMMARY_WEEKLY_HOUR", 0),
		SummaryTick:        getDurationEnv("SUMMARY_TICK", 5*time.Minute),

		// Lanes
		LaneIdleTimeout: getDurationEnv("LANE_IDLE_TIMEOUT", 10*time.Minute),
		LaneQueueSize:   getIntEnv("LANE_QUEUE_SIZE", 64),

		// Semantic classifier
		ClassifierProvider: getEnv("CLASSIFIER_PROVIDER", ""),
		ClassifierModel:    getEnv("CLASSIFIER_MODEL", ""),
		ClassifierTimeout:  getDurationEnv("CLASSIFIER_TIMEOUT", 3*time.Second),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:       getEnv("OPENAI_API_KEY", ""),

		// NATS
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// Redis
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
