package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"caretrail/internal/audit"
)

// Schema creates the audit trail table. The table is append-only by
// convention here and by a trigger in production that rejects UPDATE and
// DELETE outright.
const Schema = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id            TEXT PRIMARY KEY,
	actor_id      UUID NOT NULL,
	action        TEXT NOT NULL,
	target_entity TEXT NOT NULL,
	target_id     TEXT NOT NULL DEFAULT '',
	before_state  JSONB,
	after_state   JSONB,
	ip_address    TEXT NOT NULL DEFAULT '',
	user_agent    TEXT NOT NULL DEFAULT '',
	device        TEXT NOT NULL DEFAULT '',
	ts            TIMESTAMPTZ NOT NULL,
	content_hash  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS audit_entries_actor_idx ON audit_entries (actor_id, ts DESC);
CREATE INDEX IF NOT EXISTS audit_entries_entity_idx ON audit_entries (target_entity, target_id, ts DESC);
`

// sortColumns maps validated sort fields to real columns. The query service
// allow-lists fields first; this map is the second line of defense.
var sortColumns = map[string]string{
	"timestamp":     "ts",
	"action":        "action",
	"target_entity": "target_entity",
	"actor_id":      "actor_id",
}

// Store is the durable append-only audit sink. Each Append is one
// independent INSERT; no read-modify-write, no transaction spanning entries.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	before, err := marshalSnapshot(entry.BeforeState)
	if err != nil {
		return fmt.Errorf("marshal before state: %w", err)
	}
	after, err := marshalSnapshot(entry.AfterState)
	if err != nil {
		return fmt.Errorf("marshal after state: %w", err)
	}

	query := `
		INSERT INTO audit_entries (
			id, actor_id, action, target_entity, target_id,
			before_state, after_state, ip_address, user_agent, device,
			ts, content_hash
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err = s.db.ExecContext(ctx, query,
		entry.ID,
		entry.ActorID,
		string(entry.Action),
		entry.TargetEntity,
		entry.TargetID,
		before,
		after,
		entry.IPAddress,
		entry.UserAgent,
		entry.Device,
		entry.Timestamp,
		entry.ContentHash,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (audit.Entry, error) {
	query := selectColumns + ` FROM audit_entries WHERE id = $1`

	row := s.db.QueryRowContext(ctx, query, id)
	entry, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return audit.Entry{}, audit.ErrEntryNotFound
	}
	if err != nil {
		return audit.Entry{}, fmt.Errorf("query audit entry: %w", err)
	}
	return entry, nil
}

func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, int, error) {
	where, args := buildWhere(filter)

	countQuery := `SELECT COUNT(*) FROM audit_entries` + where
	var total int
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit entries: %w", err)
	}
	if total == 0 {
		return nil, 0, nil
	}

	column, ok := sortColumns[filter.SortField]
	if !ok {
		column = "ts"
	}
	direction := "DESC"
	if filter.SortOrder == "asc" {
		direction = "ASC"
	}

	offset := (filter.Page - 1) * filter.PageSize
	query := selectColumns + ` FROM audit_entries` + where +
		fmt.Sprintf(" ORDER BY %s %s, id %s LIMIT $%d OFFSET $%d",
			column, direction, direction, len(args)+1, len(args)+2)
	args = append(args, filter.PageSize, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func (s *Store) Statistics(ctx context.Context, from, to time.Time) (audit.Stats, error) {
	stats := audit.Stats{
		From:     from,
		To:       to,
		ByAction: make(map[audit.Action]int64),
		ByEntity: make(map[string]int64),
	}

	actionQuery := `
		SELECT action, COUNT(*)
		FROM audit_entries
		WHERE ts >= $1 AND ts <= $2
		GROUP BY action
	`
	rows, err := s.db.QueryContext(ctx, actionQuery, from, to)
	if err != nil {
		return audit.Stats{}, fmt.Errorf("query action statistics: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return audit.Stats{}, fmt.Errorf("scan action statistics: %w", err)
		}
		stats.ByAction[audit.Action(action)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return audit.Stats{}, fmt.Errorf("iterate action statistics: %w", err)
	}

	entityQuery := `
		SELECT target_entity, COUNT(*)
		FROM audit_entries
		WHERE ts >= $1 AND ts <= $2
		GROUP BY target_entity
	`
	entityRows, err := s.db.QueryContext(ctx, entityQuery, from, to)
	if err != nil {
		return audit.Stats{}, fmt.Errorf("query entity statistics: %w", err)
	}
	defer entityRows.Close()
	for entityRows.Next() {
		var entity string
		var count int64
		if err := entityRows.Scan(&entity, &count); err != nil {
			return audit.Stats{}, fmt.Errorf("scan entity statistics: %w", err)
		}
		stats.ByEntity[entity] = count
	}
	if err := entityRows.Err(); err != nil {
		return audit.Stats{}, fmt.Errorf("iterate entity statistics: %w", err)
	}

	return stats, nil
}

func (s *Store) VerifyIntegrity(ctx context.Context, limit int) (audit.IntegrityReport, error) {
	query := selectColumns + ` FROM audit_entries ORDER BY ts DESC, id DESC LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return audit.IntegrityReport{}, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return audit.IntegrityReport{}, err
	}

	report := audit.IntegrityReport{Checked: len(entries)}
	for _, e := range entries {
		if !audit.Verify(e) {
			report.Mismatched = append(report.Mismatched, e.ID)
		}
	}
	return report, nil
}

const selectColumns = `
	SELECT id, actor_id, action, target_entity, target_id,
	       before_state, after_state, ip_address, user_agent, device,
	       ts, content_hash`

// buildWhere assembles the filter clauses with positional args. Every value
// is parameterized; only allow-listed identifiers reach the SQL text.
func buildWhere(filter audit.Filter) (string, []any) {
	var clauses []string
	var args []any

	next := func() string { return "$" + strconv.Itoa(len(args)) }

	if filter.ActorID != nil {
		args = append(args, *filter.ActorID)
		clauses = append(clauses, "actor_id = "+next())
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			args = append(args, string(a))
			placeholders[i] = next()
		}
		clauses = append(clauses, "action IN ("+strings.Join(placeholders, ", ")+")")
	}
	if len(filter.Entities) > 0 {
		placeholders := make([]string, len(filter.Entities))
		for i, e := range filter.Entities {
			args = append(args, e)
			placeholders[i] = next()
		}
		clauses = append(clauses, "target_entity IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.TargetID != "" {
		args = append(args, filter.TargetID)
		clauses = append(clauses, "target_id = "+next())
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		clauses = append(clauses, "ts >= "+next())
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		clauses = append(clauses, "ts <= "+next())
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		p := next()
		clauses = append(clauses, "(target_entity ILIKE "+p+
			" OR target_id ILIKE "+p+
			" OR user_agent ILIKE "+p+
			" OR action ILIKE "+p+")")
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (audit.Entry, error) {
	var (
		entry         audit.Entry
		actorID       uuid.UUID
		action        string
		before, after []byte
	)
	err := row.Scan(
		&entry.ID,
		&actorID,
		&action,
		&entry.TargetEntity,
		&entry.TargetID,
		&before,
		&after,
		&entry.IPAddress,
		&entry.UserAgent,
		&entry.Device,
		&entry.Timestamp,
		&entry.ContentHash,
	)
	if err != nil {
		return audit.Entry{}, err
	}
	entry.ActorID = actorID
	entry.Action = audit.Action(action)
	if entry.BeforeState, err = unmarshalSnapshot(before); err != nil {
		return audit.Entry{}, fmt.Errorf("decode before state: %w", err)
	}
	if entry.AfterState, err = unmarshalSnapshot(after); err != nil {
		return audit.Entry{}, fmt.Errorf("decode after state: %w", err)
	}
	return entry, nil
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

func marshalSnapshot(s audit.Snapshot) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	return json.Marshal(s)
}

func unmarshalSnapshot(raw []byte) (audit.Snapshot, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var s audit.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return s, nil
}
