// Package users holds the back-office user directory. It exists as the first
// consumer of the authorization and audit pipeline; richer profile management
// lives in other services.
package users

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"caretrail/internal/audit"
	"caretrail/internal/principal"
	dErrors "caretrail/pkg/domain-errors"
)

// EntityUsers is the audit label for directory accounts.
const EntityUsers = "Users"

// User is a directory account. PasswordHash never leaves the service in
// clear form; snapshots of it are masked by the redactor before persistence.
type User struct {
	ID           uuid.UUID      `json:"id"`
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	Role         principal.Role `json:"role"`
	IsActive     bool           `json:"isActive"`
	PasswordHash string         `json:"passwordHash,omitempty"`
}

// Service is an in-memory user directory.
type Service struct {
	mu    sync.RWMutex
	users map[uuid.UUID]User
}

func NewService() *Service {
	return &Service{users: make(map[uuid.UUID]User)}
}

// Put inserts or replaces a user. Used for seeding and tests.
func (s *Service) Put(u User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// Get returns the user with the given id.
func (s *Service) Get(_ context.Context, id uuid.UUID) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return u, nil
}

// Deactivate marks the user inactive and returns the updated record.
func (s *Service) Deactivate(_ context.Context, id uuid.UUID) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return User{}, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if !u.IsActive {
		return User{}, dErrors.New(dErrors.CodeConflict, "user is already inactive")
	}
	u.IsActive = false
	s.users[id] = u
	return u, nil
}

// ReadEntity satisfies the audit change-capture reader for the Users entity.
func (s *Service) ReadEntity(ctx context.Context, entityType, entityID string) (audit.Snapshot, error) {
	if entityType != EntityUsers {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown entity type %q", entityType)
	}
	id, err := uuid.Parse(entityID)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "entity id must be a UUID")
	}
	u, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return audit.NormalizeSnapshot(u), nil
}
