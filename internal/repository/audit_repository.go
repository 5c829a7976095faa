package repository

import (
	"context"
	"encoding/json"

	"github.com/repaart/support-desk/internal/domain"
)

// AuditRepository appends audit entries.
type AuditRepository interface {
	Create(ctx context.Context, entry *domain.AuditEntry) error
	ListByAction(ctx context.Context, action domain.AuditAction, limit int) ([]domain.AuditEntry, error)
}

type auditRepository struct {
	db DBTX
}

// NewAuditRepository builds repository.
func NewAuditRepository(db DBTX) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Create(ctx context.Context, entry *domain.AuditEntry) error {
	payload, err := json.Marshal(entry.Context)
	if err != nil {
		return err
	}
	const query = `
        INSERT INTO audit_logs (actor_uid, actor_email, action, context, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		entry.ActorUID,
		entry.ActorEmail,
		entry.Action,
		payload,
		entry.CreatedAt,
	).Scan(&entry.ID)
}

func (r *auditRepository) ListByAction(ctx context.Context, action domain.AuditAction, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `
        SELECT id, actor_uid, actor_email, action, context, created_at
        FROM audit_logs WHERE action=$1 ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.Query(ctx, query, action, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AuditEntry
	for rows.Next() {
		var (
			entry   domain.AuditEntry
			payload []byte
		)
		if err := rows.Scan(&entry.ID, &entry.ActorUID, &entry.ActorEmail, &entry.Action, &payload, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &entry.Context); err != nil {
				return nil, err
			}
		}
		result = append(result, entry)
	}
	return result, rows.Err()
}
