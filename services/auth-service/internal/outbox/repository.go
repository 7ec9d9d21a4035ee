// Package outbox enqueues auth events into the shared outbox table. The clinic
// service publisher relays every pending row to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/healpoint/healpoint/libs/db"
	otelx "github.com/healpoint/healpoint/libs/otel"
)

// UserRegisteredTopic is also the Kafka topic name.
const UserRegisteredTopic = "healpoint.user.registered.v1"

type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

type UserRegistered struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Role       string    `json:"role"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewUserRegistered(p UserRegistered) (Event, error) {
	raw, err := json.Marshal(p)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "user",
		AggregateID:   p.UserID,
		EventType:     UserRegisteredTopic,
		Payload:       raw,
	}, nil
}

type Repository struct {
	q db.DBTX
}

func NewRepository(q db.DBTX) *Repository {
	return &Repository{q: q}
}

// Insert must run in the transaction that created the aggregate.
func (r *Repository) Insert(ctx context.Context, evt Event) error {
	traceparent, tracestate := otelx.TraceContextStrings(ctx)
	_, err := r.q.Exec(ctx, `
		INSERT INTO outbox_events (event_id, aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.NewString(), evt.AggregateType, evt.AggregateID, evt.EventType, evt.Payload, traceparent, tracestate)
	return err
}
