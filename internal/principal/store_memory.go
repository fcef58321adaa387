package principal

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemorySource is a map-backed PermissionSource for tests and development.
type InMemorySource struct {
	mu    sync.RWMutex
	perms map[uuid.UUID][]string
}

func NewInMemorySource() *InMemorySource {
	return &InMemorySource{perms: make(map[uuid.UUID][]string)}
}

// Grant replaces the permission set for an actor.
func (s *InMemorySource) Grant(actorID uuid.UUID, perms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perms[actorID] = append([]string(nil), perms...)
}

func (s *InMemorySource) Permissions(_ context.Context, actorID uuid.UUID) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.perms[actorID]...), nil
}
