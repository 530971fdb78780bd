package role

import (
	"context"
	"errors"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
)

// ErrNoMembership is returned when the user is not a member of the organization.
var ErrNoMembership = errors.New("role: no organization membership")

// pgQuerier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSource reads roles from the organization membership table.
type PostgresSource struct {
	db      pgQuerier
	table   string
	builder squirrel.StatementBuilderType
}

// NewPostgresSource creates a Source over db. An empty table selects
// "organization_members".
func NewPostgresSource(db pgQuerier, table string) *PostgresSource {
	if table == "" {
		table = "organization_members"
	}
	return &PostgresSource{
		db:      db,
		table:   table,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// RoleFor returns the role userID holds in organizationID. A user with no
// organization has no membership row to read.
func (s *PostgresSource) RoleFor(ctx context.Context, userID, organizationID string) (string, error) {
	if organizationID == "" {
		return "", ErrNoMembership
	}
	stmt, args, err := s.builder.Select("role").
		From(s.table).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"organization_id": organizationID}).
		Limit(1).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build select role sql: %w", err)
	}

	var name string
	if err := s.db.QueryRow(ctx, stmt, args...).Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNoMembership
		}
		return "", fmt.Errorf("select role: %w", err)
	}
	return name, nil
}

var _ Source = (*PostgresSource)(nil)
