// Package audit implements the tamper-evident audit trail pipeline: change
// capture around opaque mutations, snapshot redaction, asynchronous durable
// recording, and privilege-scoped read access. Entries are immutable once
// persisted; nothing in this package or its stores can update or delete one.
package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action classifies what an entry records.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
	ActionAccess Action = "access"
)

// Valid reports whether a is a member of the closed action set.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout, ActionAccess:
		return true
	}
	return false
}

// Snapshot is an opaque entity state captured around a mutation. Values are
// generic tagged JSON terms; the Redactor masks sensitive fields before a
// snapshot is ever persisted or returned.
type Snapshot map[string]any

// Entry is an immutable record of one state-changing or access event.
// ID and Timestamp are server-assigned; client-supplied values are ignored.
// ContentHash covers the persisted fields so tampering is detectable.
type Entry struct {
	ID           string    `json:"id"`
	ActorID      uuid.UUID `json:"actorId"`
	Action       Action    `json:"action"`
	TargetEntity string    `json:"targetEntity"`
	TargetID     string    `json:"targetId,omitempty"`
	BeforeState  Snapshot  `json:"beforeState,omitempty"`
	AfterState   Snapshot  `json:"afterState,omitempty"`
	IPAddress    string    `json:"ipAddress,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	Device       string    `json:"device,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	ContentHash  string    `json:"contentHash,omitempty"`
}

// Draft is what callers hand to the Recorder. The recorder validates it,
// redacts both snapshots, and assigns ID and timestamp itself.
type Draft struct {
	ActorID      uuid.UUID
	Action       Action
	TargetEntity string
	TargetID     string
	Before       Snapshot
	After        Snapshot
	IPAddress    string
	UserAgent    string
	Device       string
}

// Filter narrows audit queries. Zero values mean "no restriction" except
// Page/PageSize which are normalized by the query service.
type Filter struct {
	ActorID  *uuid.UUID
	Actions  []Action
	Entities []string
	TargetID string
	From     time.Time
	To       time.Time
	// Search matches case-insensitively against a bounded column set:
	// target entity, target id, user agent, action.
	Search    string
	SortField string
	SortOrder string
	Page      int
	PageSize  int
}

// Pagination is the stable envelope metadata for paginated reads.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// Page is the response envelope for every paginated audit read.
type Page struct {
	Items      []Entry    `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// Stats summarizes entries over a date range.
type Stats struct {
	From     time.Time        `json:"from"`
	To       time.Time        `json:"to"`
	Total    int64            `json:"total"`
	ByAction map[Action]int64 `json:"byAction"`
	ByEntity map[string]int64 `json:"byEntity"`
}

// IntegrityReport is the result of re-hashing stored entries.
type IntegrityReport struct {
	Checked    int      `json:"checked"`
	Mismatched []string `json:"mismatched,omitempty"`
}

// Intact reports whether every checked entry matched its stored hash.
func (r IntegrityReport) Intact() bool {
	return len(r.Mismatched) == 0
}
