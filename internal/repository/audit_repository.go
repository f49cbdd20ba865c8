package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/serenia-tutor-api/internal/models"
)

// AuditRepository writes the tutor audit trail to Postgres.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs the repository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// CreateAuditLog stores an audit log entry.
func (r *AuditRepository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, tutor_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at) VALUES (:id, :tutor_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}

// ListByTutor returns a tutor's latest audit entries, newest first.
func (r *AuditRepository) ListByTutor(ctx context.Context, tutorID string, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, tutor_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at FROM audit_logs WHERE tutor_id = $1 ORDER BY created_at DESC LIMIT $2`
	logs := []models.AuditLog{}
	if err := r.db.SelectContext(ctx, &logs, query, tutorID, limit); err != nil {
		return nil, fmt.Errorf("list audit logs for %s: %w", tutorID, err)
	}
	return logs, nil
}
