package principal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedSource is a bounded in-process cache in front of a PermissionSource.
// It absorbs hot-actor lookups before they reach Redis or Postgres.
type CachedSource struct {
	cache *expirable.LRU[uuid.UUID, []string]
	next  PermissionSource
}

func NewCachedSource(next PermissionSource, size int, ttl time.Duration) *CachedSource {
	if size <= 0 {
		size = 1024
	}
	return &CachedSource{
		cache: expirable.NewLRU[uuid.UUID, []string](size, nil, ttl),
		next:  next,
	}
}

func (s *CachedSource) Permissions(ctx context.Context, actorID uuid.UUID) ([]string, error) {
	if perms, ok := s.cache.Get(actorID); ok {
		return append([]string(nil), perms...), nil
	}
	perms, err := s.next.Permissions(ctx, actorID)
	if err != nil {
		return nil, err
	}
	s.cache.Add(actorID, append([]string(nil), perms...))
	return perms, nil
}

// Invalidate drops the cached entry for an actor.
func (s *CachedSource) Invalidate(actorID uuid.UUID) {
	s.cache.Remove(actorID)
}
