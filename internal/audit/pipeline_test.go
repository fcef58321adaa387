package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"caretrail/internal/policy"
	"caretrail/internal/principal"
	dErrors "caretrail/pkg/domain-errors"
	"caretrail/pkg/platform/middleware/metadata"
)

type PipelineSuite struct {
	suite.Suite
	metrics  *Metrics
	recorder *Recorder
	pipeline *Pipeline

	adminID uuid.UUID
	admin   *principal.Context
	patient *principal.Context
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.metrics = NewMetricsWith(prometheus.NewRegistry())
	s.recorder = NewRecorder(16, s.metrics, testLogger())
	capture := NewCapture(&mapReader{snapshots: map[string]Snapshot{
		"user/u-1": {"isActive": true},
	}}, testLogger())
	s.pipeline = NewPipeline(policy.NewEngine(), capture, s.recorder, s.metrics, testLogger())

	source := principal.NewInMemorySource()
	s.adminID = uuid.New()
	s.admin = principal.NewContext(principal.Principal{ID: s.adminID, Role: principal.RoleAdmin, Active: true}, source)
	s.patient = principal.NewContext(principal.Principal{ID: uuid.New(), Role: principal.RolePatient, Active: true}, source)
}

func (s *PipelineSuite) drainInbox() []Entry {
	var out []Entry
	for {
		select {
		case e := <-s.recorder.Inbox():
			out = append(out, e)
		default:
			return out
		}
	}
}

func (s *PipelineSuite) TestDeniedOperationLeavesNoTrace() {
	mutated := false
	_, err := s.pipeline.Do(context.Background(), s.patient, Operation{
		Requirement:  policy.MinimumRole(principal.RoleAdmin),
		Action:       ActionUpdate,
		TargetEntity: "user",
		TargetID:     "u-1",
		Mutate: func(context.Context) (any, error) {
			mutated = true
			return nil, nil
		},
	})

	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.False(mutated, "the mutation must not run after a deny")
	s.Empty(s.drainInbox())
	s.Equal(1.0, testutil.ToFloat64(s.metrics.AuthzDenied))
}

func (s *PipelineSuite) TestFailedMutationRecordsNothing() {
	boom := errors.New("constraint violation")
	_, err := s.pipeline.Do(context.Background(), s.admin, Operation{
		Requirement:   policy.MinimumRole(principal.RoleAdmin),
		Action:        ActionUpdate,
		TargetEntity:  "user",
		TargetID:      "u-1",
		CaptureBefore: true,
		Mutate: func(context.Context) (any, error) {
			return nil, boom
		},
	})

	s.ErrorIs(err, boom)
	s.Empty(s.drainInbox(), "a failed operation leaves no entry claiming it happened")
}

func (s *PipelineSuite) TestSuccessfulMutationRecordsEntry() {
	ctx := metadata.WithClientMetadata(context.Background(), "203.0.113.9", "curl/8.0")

	result, err := s.pipeline.Do(ctx, s.admin, Operation{
		Requirement:   policy.MinimumRole(principal.RoleAdmin),
		Action:        ActionUpdate,
		TargetEntity:  "user",
		TargetID:      "u-1",
		CaptureBefore: true,
		Mutate: func(context.Context) (any, error) {
			return map[string]any{"isActive": false}, nil
		},
	})
	s.Require().NoError(err)
	s.Equal(map[string]any{"isActive": false}, result)

	entries := s.drainInbox()
	s.Require().Len(entries, 1)
	e := entries[0]
	s.Equal(s.adminID, e.ActorID)
	s.Equal(Snapshot{"isActive": true}, e.BeforeState)
	s.Equal(Snapshot{"isActive": false}, e.AfterState)
	s.Equal("203.0.113.9", e.IPAddress)
	s.Equal("curl/8.0", e.UserAgent)
}

func (s *PipelineSuite) TestFanOutProducesEntryPerParty() {
	patientID := uuid.New()
	ctx := metadata.WithClientMetadata(context.Background(), "203.0.113.9", "curl/8.0")

	_, err := s.pipeline.Do(ctx, s.admin, Operation{
		Requirement:  policy.MinimumRole(principal.RoleAdmin),
		Action:       ActionCreate,
		TargetEntity: "referral",
		Mutate: func(context.Context) (any, error) {
			return map[string]any{"id": "ref-1"}, nil
		},
		TargetIDFrom: func(result any) string {
			return result.(map[string]any)["id"].(string)
		},
		FanOut: func(result any) []Draft {
			return []Draft{{
				ActorID:      s.adminID,
				Action:       ActionCreate,
				TargetEntity: "patient",
				TargetID:     patientID.String(),
			}}
		},
	})
	s.Require().NoError(err)

	entries := s.drainInbox()
	s.Require().Len(entries, 2, "one business event, one entry per affected party")

	s.Equal("referral", entries[0].TargetEntity)
	s.Equal("ref-1", entries[0].TargetID)
	s.Equal("patient", entries[1].TargetEntity)
	s.Equal(patientID.String(), entries[1].TargetID)

	s.NotEqual(entries[0].ID, entries[1].ID)
	s.Equal(entries[0].IPAddress, entries[1].IPAddress, "fan-out drafts inherit request metadata")
	s.Equal(entries[0].UserAgent, entries[1].UserAgent)
}

func (s *PipelineSuite) TestUnauthenticated() {
	anon := principal.NewContext(principal.Anonymous, nil)
	_, err := s.pipeline.Do(context.Background(), anon, Operation{
		Requirement:  policy.MinimumRole(principal.RolePatient),
		Action:       ActionAccess,
		TargetEntity: "user",
		Mutate:       func(context.Context) (any, error) { return nil, nil },
	})
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
