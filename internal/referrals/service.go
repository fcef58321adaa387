// Package referrals handles patient referrals to partner organizations.
// Referral events concern two parties, so recording fans out to an entry per
// affected participant.
package referrals

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"caretrail/internal/ids"
	dErrors "caretrail/pkg/domain-errors"
)

// Referral links a patient to a receiving partner organization. The
// commission owed to the referring side is fixed at creation time and carried
// in minor currency units.
type Referral struct {
	ID              string    `json:"id"`
	PatientID       uuid.UUID `json:"patientId"`
	ToPartnerID     uuid.UUID `json:"toPartnerId"`
	ReferredBy      uuid.UUID `json:"referredBy"`
	Reason          string    `json:"reason"`
	CommissionCents int64     `json:"commissionCents"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Service is an in-memory referral book.
type Service struct {
	mu        sync.Mutex
	referrals map[string]Referral
	now       func() time.Time
}

func NewService() *Service {
	return &Service{
		referrals: make(map[string]Referral),
		now:       time.Now,
	}
}

// Create records a new referral from referredBy for the given patient.
func (s *Service) Create(_ context.Context, patientID, toPartnerID, referredBy uuid.UUID, reason string, commissionCents int64) (Referral, error) {
	if patientID == uuid.Nil || toPartnerID == uuid.Nil {
		return Referral{}, dErrors.New(dErrors.CodeValidation, "patientId and toPartnerId are required")
	}
	if commissionCents < 0 {
		return Referral{}, dErrors.New(dErrors.CodeValidation, "commissionCents must not be negative")
	}
	ref := Referral{
		ID:              ids.New(),
		PatientID:       patientID,
		ToPartnerID:     toPartnerID,
		ReferredBy:      referredBy,
		Reason:          reason,
		CommissionCents: commissionCents,
		CreatedAt:       s.now().UTC(),
	}
	s.mu.Lock()
	s.referrals[ref.ID] = ref
	s.mu.Unlock()
	return ref, nil
}

// Get returns a referral by id.
func (s *Service) Get(_ context.Context, id string) (Referral, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref, ok := s.referrals[id]
	if !ok {
		return Referral{}, dErrors.New(dErrors.CodeNotFound, "referral not found")
	}
	return ref, nil
}
