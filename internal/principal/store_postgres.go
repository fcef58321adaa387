package principal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// PostgresSource reads staff permission grants from the staff_permissions
// table. It is the source of truth behind the cache layers.
type PostgresSource struct {
	db *sql.DB
}

func NewPostgresSource(db *sql.DB) *PostgresSource {
	return &PostgresSource{db: db}
}

func (s *PostgresSource) Permissions(ctx context.Context, actorID uuid.UUID) ([]string, error) {
	query := `
		SELECT permission
		FROM staff_permissions
		WHERE user_id = $1
		ORDER BY permission
	`

	rows, err := s.db.QueryContext(ctx, query, actorID)
	if err != nil {
		return nil, fmt.Errorf("query staff permissions: %w", err)
	}
	defer rows.Close()

	var perms []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan staff permission: %w", err)
		}
		perms = append(perms, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate staff permissions: %w", err)
	}
	return perms, nil
}
