package principal

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const permissionKeyPrefix = "perm:actor:"

// RedisSource caches permission sets in Redis in front of a slower source so
// multiple instances share one warm cache. Cache failures fall through to the
// underlying source; a broken cache must never deny a staff actor.
type RedisSource struct {
	client *redis.Client
	next   PermissionSource
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisSource(client *redis.Client, next PermissionSource, ttl time.Duration, logger *slog.Logger) *RedisSource {
	return &RedisSource{client: client, next: next, ttl: ttl, logger: logger}
}

func (s *RedisSource) Permissions(ctx context.Context, actorID uuid.UUID) ([]string, error) {
	key := permissionKeyPrefix + actorID.String()

	raw, err := s.client.Get(ctx, key).Result()
	if err == nil {
		var perms []string
		if jsonErr := json.Unmarshal([]byte(raw), &perms); jsonErr == nil {
			return perms, nil
		}
		// Corrupt cache entry; fall through and overwrite.
	} else if !errors.Is(err, redis.Nil) {
		s.logger.WarnContext(ctx, "permission cache read failed", "error", err)
	}

	perms, err := s.next.Permissions(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if payload, jsonErr := json.Marshal(perms); jsonErr == nil {
		if setErr := s.client.Set(ctx, key, payload, s.ttl).Err(); setErr != nil {
			s.logger.WarnContext(ctx, "permission cache write failed", "error", setErr)
		}
	}
	return perms, nil
}

// Invalidate drops the cached permission set for an actor, e.g. after an
// admin changes staff grants.
func (s *RedisSource) Invalidate(ctx context.Context, actorID uuid.UUID) error {
	return s.client.Del(ctx, permissionKeyPrefix+actorID.String()).Err()
}
