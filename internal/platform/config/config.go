package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the server needs from the environment so main
// stays lean. Zero values fall back to development defaults; production
// deployments override via env.
type Config struct {
	Addr string

	JWT      JWTConfig
	Google   GoogleConfig
	Apple    AppleConfig
	Sessions SessionConfig
	Breaker  BreakerConfig
	KeyCache KeyCacheConfig

	RedisURL    string
	PostgresURL string

	KafkaBrokers []string
	AuditTopic   string
}

// JWTConfig holds signing settings for the gateway's own tokens.
type JWTConfig struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// GoogleConfig carries the server-side audience allow-list for Google ID
// tokens. The client never chooses which audience applies.
type GoogleConfig struct {
	ClientID        string
	IOSClientID     string
	AndroidClientID string
}

// AppleConfig carries the server-side audience allow-list for Apple ID tokens.
type AppleConfig struct {
	ClientID     string
	ExpoClientID string
}

// SessionConfig bounds per-user sessions and refresh-token hashing.
type SessionConfig struct {
	MaxPerUser int
	TTL        time.Duration
	BcryptCost int
}

// BreakerConfig tunes the circuit breakers guarding downstream dependencies.
type BreakerConfig struct {
	FailureThreshold int
	Window           time.Duration
	Cooldown         time.Duration
	HalfOpenMax      int
	CallTimeout      time.Duration
}

// KeyCacheConfig tunes the provider signing-key cache. A zero TTL keeps keys
// forever, matching the historical behavior; a positive TTL re-fetches lazily.
type KeyCacheConfig struct {
	TTL time.Duration
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr: getString("STORYGATE_ADDR", ":8080"),
		JWT: JWTConfig{
			Secret:     getString("STORYGATE_JWT_SECRET", "dev-secret-change-in-production"),
			Issuer:     getString("STORYGATE_JWT_ISSUER", "storygate"),
			AccessTTL:  getDuration("STORYGATE_JWT_ACCESS_TTL", 900*time.Second),
			RefreshTTL: getDuration("STORYGATE_JWT_REFRESH_TTL", 604800*time.Second),
		},
		Google: GoogleConfig{
			ClientID:        os.Getenv("GOOGLE_OAUTH_CLIENT_ID"),
			IOSClientID:     os.Getenv("GOOGLE_OAUTH_IOS_CLIENT_ID"),
			AndroidClientID: os.Getenv("GOOGLE_OAUTH_ANDROID_CLIENT_ID"),
		},
		Apple: AppleConfig{
			ClientID:     os.Getenv("APPLE_OAUTH_CLIENT_ID"),
			ExpoClientID: getString("APPLE_OAUTH_EXPO_CLIENT_ID", "host.exp.Exponent"),
		},
		Sessions: SessionConfig{
			MaxPerUser: getInt("STORYGATE_MAX_SESSIONS_PER_USER", 5),
			TTL:        getDuration("STORYGATE_SESSION_TTL", 7*24*time.Hour),
			BcryptCost: getInt("STORYGATE_BCRYPT_COST", 0),
		},
		Breaker: BreakerConfig{
			FailureThreshold: getInt("STORYGATE_BREAKER_FAILURE_THRESHOLD", 5),
			Window:           getDuration("STORYGATE_BREAKER_WINDOW", 30*time.Second),
			Cooldown:         getDuration("STORYGATE_BREAKER_COOLDOWN", 15*time.Second),
			HalfOpenMax:      getInt("STORYGATE_BREAKER_HALF_OPEN_MAX", 1),
			CallTimeout:      getDuration("STORYGATE_BREAKER_CALL_TIMEOUT", 5*time.Second),
		},
		KeyCache: KeyCacheConfig{
			TTL: getDuration("STORYGATE_KEY_CACHE_TTL", 0),
		},
		RedisURL:     os.Getenv("STORYGATE_REDIS_URL"),
		PostgresURL:  os.Getenv("STORYGATE_POSTGRES_URL"),
		KafkaBrokers: getList("STORYGATE_KAFKA_BROKERS"),
		AuditTopic:   getString("STORYGATE_AUDIT_TOPIC", "storygate.security-events"),
	}
}

func getString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
