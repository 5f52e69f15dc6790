package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/bastion/internal/database"
	"github.com/BradenHooton/bastion/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

// SecurityEventRepository persists security events to PostgreSQL
type SecurityEventRepository struct {
	pool *pgxpool.Pool
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{pool: db.Pool}
}

// scanSecurityEventRow handles the nullable identity column
func scanSecurityEventRow(row rowScanner) (*models.SecurityEvent, error) {
	var (
		event    models.SecurityEvent
		identity *string
	)

	err := row.Scan(
		&event.ID, &event.Type, &identity, &event.ClientIP, &event.UserAgent,
		&event.RiskScore, &event.Metadata, &event.Timestamp,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	if identity != nil {
		event.Identity = *identity
	}

	return &event, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)
	for rows.Next() {
		event, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", err)
	}

	return events, nil
}

// Create inserts an event. A missing ID is generated.
func (r *SecurityEventRepository) Create(ctx context.Context, event *models.SecurityEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}

	var identity *string
	if event.Identity != "" {
		identity = &event.Identity
	}

	metadata := event.Metadata
	if metadata == nil {
		metadata = models.EventMetadata{}
	}

	query := `
		INSERT INTO security_events (id, event_type, identity, client_ip, user_agent, risk_score, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		event.ID,
		string(event.Type),
		identity,
		event.ClientIP,
		event.UserAgent,
		event.RiskScore,
		metadata,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to create security event: %w", database.MapPostgresError(err))
	}

	return nil
}

// ListByIdentity returns the newest events for an identity
func (r *SecurityEventRepository) ListByIdentity(ctx context.Context, identity string, limit int) ([]*models.SecurityEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `
		SELECT id::text, event_type, identity, client_ip, user_agent, risk_score, metadata, created_at
		FROM security_events
		WHERE identity = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", err)
	}

	return scanSecurityEventRows(rows)
}

// CountByType counts events of a type created at or after since
func (r *SecurityEventRepository) CountByType(ctx context.Context, eventType models.SecurityEventType, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM security_events
		WHERE event_type = $1 AND created_at >= $2
	`

	var count int
	if err := r.pool.QueryRow(ctx, query, string(eventType), since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count security events: %w", err)
	}
	return count, nil
}

// DeleteOlderThan purges events created before cutoff
func (r *SecurityEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM security_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete security events: %w", err)
	}
	return tag.RowsAffected(), nil
}
