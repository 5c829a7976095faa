package repository

import (
	"context"

	"github.com/repaart/support-desk/internal/domain"
)

// NotificationRepository persists in-app notifications.
type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) error
	ListByRecipient(ctx context.Context, uid string) ([]domain.Notification, error)
}

type notificationRepository struct {
	db DBTX
}

// NewNotificationRepository builds repository.
func NewNotificationRepository(db DBTX) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *domain.Notification) error {
	const query = `
        INSERT INTO notifications (recipient_uid, title, body, kind, link, read, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		n.RecipientUID,
		n.Title,
		n.Body,
		n.Kind,
		n.Link,
		n.Read,
		n.CreatedAt,
	).Scan(&n.ID)
}

func (r *notificationRepository) ListByRecipient(ctx context.Context, uid string) ([]domain.Notification, error) {
	const query = `
        SELECT id, recipient_uid, title, body, kind, link, read, created_at
        FROM notifications WHERE recipient_uid=$1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.RecipientUID, &n.Title, &n.Body, &n.Kind, &n.Link, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
