package config

import (
	"os"
	"strconv"
	"time"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string

	Postgres PostgresConfig
	Redis    RedisConfig
	Audit    AuditConfig
}

// PostgresConfig holds database connection settings. An empty DSN selects the
// in-memory stores (dev and test only).
type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds the shared permission cache settings. An empty URL
// disables the Redis layer; the in-process cache still applies.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// AuditConfig tunes the recording pipeline.
type AuditConfig struct {
	// QueueSize bounds the recorder inbox. When full, entries are dropped
	// and counted rather than blocking the request path.
	QueueSize int
	// PermissionCacheTTL bounds how long a staff permission set may be
	// served from cache after a fetch.
	PermissionCacheTTL time.Duration
	// ExportMaxRows caps a single export response.
	ExportMaxRows int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("CARETRAIL_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("CARETRAIL_JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default; must be overridden in production.
		jwtSigningKey = "dev-secret-key-change-in-production"
	}
	issuer := os.Getenv("CARETRAIL_JWT_ISSUER")
	if issuer == "" {
		issuer = "caretrail"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     issuer,
		Postgres: PostgresConfig{
			DSN:             os.Getenv("CARETRAIL_POSTGRES_DSN"),
			MaxOpenConns:    envInt("CARETRAIL_POSTGRES_MAX_OPEN_CONNS", 20),
			ConnMaxLifetime: envDuration("CARETRAIL_POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("CARETRAIL_REDIS_URL"),
			PoolSize:     envInt("CARETRAIL_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CARETRAIL_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("CARETRAIL_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CARETRAIL_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CARETRAIL_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Audit: AuditConfig{
			QueueSize:          envInt("CARETRAIL_AUDIT_QUEUE_SIZE", 4096),
			PermissionCacheTTL: envDuration("CARETRAIL_PERMISSION_CACHE_TTL", 5*time.Minute),
			ExportMaxRows:      envInt("CARETRAIL_AUDIT_EXPORT_MAX_ROWS", 50000),
		},
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}
