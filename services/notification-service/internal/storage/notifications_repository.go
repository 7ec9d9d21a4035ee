package storage

import (
	"context"

	"github.com/healpoint/healpoint/libs/db"
)

const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

type Notification struct {
	EventID       string
	AppointmentID *int
	UserID        *string
	Channel       string
	Recipient     string
	Subject       string
	Status        string
	ErrorReason   string
}

type Repository struct {
	q db.DBTX
}

func NewRepository(q db.DBTX) *Repository {
	return &Repository{q: q}
}

func (r *Repository) Insert(ctx context.Context, n Notification) error {
	_, err := r.q.Exec(ctx, `
		INSERT INTO notifications (event_id, appointment_id, user_id, channel, recipient, subject, status, error_reason)
		VALUES ($1, $2, $3::uuid, $4, $5, $6, $7, $8)
	`, n.EventID, n.AppointmentID, n.UserID, n.Channel, n.Recipient, n.Subject, n.Status, n.ErrorReason)
	return err
}
