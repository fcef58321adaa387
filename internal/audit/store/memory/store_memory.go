package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"caretrail/internal/audit"
)

// InMemoryStore is an append-only in-memory audit store for tests and
// development. It mirrors the postgres store's filter semantics.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
	byID    map[string]int
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[string]int)}
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[entry.ID] = len(s.entries)
	s.entries = append(s.entries, entry)
	return nil
}

func (s *InMemoryStore) GetByID(_ context.Context, id string) (audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return audit.Entry{}, audit.ErrEntryNotFound
	}
	return s.entries[idx], nil
}

func (s *InMemoryStore) List(_ context.Context, filter audit.Filter) ([]audit.Entry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []audit.Entry
	for _, e := range s.entries {
		if matches(e, filter) {
			matched = append(matched, e)
		}
	}

	sortEntries(matched, filter.SortField, filter.SortOrder)

	total := len(matched)
	start := (filter.Page - 1) * filter.PageSize
	if start >= total {
		return nil, total, nil
	}
	end := start + filter.PageSize
	if end > total {
		end = total
	}
	return append([]audit.Entry(nil), matched[start:end]...), total, nil
}

func (s *InMemoryStore) Statistics(_ context.Context, from, to time.Time) (audit.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := audit.Stats{
		From:     from,
		To:       to,
		ByAction: make(map[audit.Action]int64),
		ByEntity: make(map[string]int64),
	}
	for _, e := range s.entries {
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		stats.Total++
		stats.ByAction[e.Action]++
		stats.ByEntity[e.TargetEntity]++
	}
	return stats, nil
}

func (s *InMemoryStore) VerifyIntegrity(_ context.Context, limit int) (audit.IntegrityReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := audit.IntegrityReport{}
	for i := len(s.entries) - 1; i >= 0 && report.Checked < limit; i-- {
		report.Checked++
		if !audit.Verify(s.entries[i]) {
			report.Mismatched = append(report.Mismatched, s.entries[i].ID)
		}
	}
	return report, nil
}

// Tamper overwrites a stored entry in place. It exists so integrity tests
// can simulate out-of-band modification; production code has no caller.
func (s *InMemoryStore) Tamper(id string, mutate func(*audit.Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx, ok := s.byID[id]
	if !ok {
		return false
	}
	mutate(&s.entries[idx])
	return true
}

func matches(e audit.Entry, f audit.Filter) bool {
	if f.ActorID != nil && e.ActorID != *f.ActorID {
		return false
	}
	if len(f.Actions) > 0 && !containsAction(f.Actions, e.Action) {
		return false
	}
	if len(f.Entities) > 0 && !containsString(f.Entities, e.TargetEntity) {
		return false
	}
	if f.TargetID != "" && e.TargetID != f.TargetID {
		return false
	}
	if !f.From.IsZero() && e.Timestamp.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && e.Timestamp.After(f.To) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		haystack := strings.ToLower(e.TargetEntity + " " + e.TargetID + " " + e.UserAgent + " " + string(e.Action))
		if !strings.Contains(haystack, needle) {
			return false
		}
	}
	return true
}

func sortEntries(entries []audit.Entry, field, order string) {
	less := func(a, b audit.Entry) bool {
		switch field {
		case "action":
			return a.Action < b.Action
		case "target_entity":
			return a.TargetEntity < b.TargetEntity
		case "actor_id":
			return a.ActorID.String() < b.ActorID.String()
		default:
			if a.Timestamp.Equal(b.Timestamp) {
				return a.ID < b.ID
			}
			return a.Timestamp.Before(b.Timestamp)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if order == "desc" {
			return less(entries[j], entries[i])
		}
		return less(entries[i], entries[j])
	})
}

func containsAction(actions []audit.Action, a audit.Action) bool {
	for _, candidate := range actions {
		if candidate == a {
			return true
		}
	}
	return false
}

func containsString(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}
