// Package notify turns appointment and account events into patient e-mails.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/kafkax"
	"github.com/healpoint/healpoint/services/notification-service/internal/email"
	"github.com/healpoint/healpoint/services/notification-service/internal/storage"
	"github.com/segmentio/kafka-go"
)

const (
	appointmentTopicPrefix = "healpoint.appointment."
	userRegisteredTopic    = "healpoint.user.registered.v1"
	channelEmail           = "email"
)

// DefaultTopics are consumed when no topic list is configured.
var DefaultTopics = []string{
	"healpoint.appointment.booked.v1",
	"healpoint.appointment.confirmed.v1",
	"healpoint.appointment.cancelled.v1",
	"healpoint.appointment.completed.v1",
	"healpoint.appointment.updated.v1",
	"healpoint.appointment.reminder.v1",
	userRegisteredTopic,
}

type appointmentEvent struct {
	AppointmentID   int    `json:"appointment_id"`
	PatientID       string `json:"patient_id"`
	PatientName     string `json:"patient_name"`
	PatientEmail    string `json:"patient_email"`
	PhysicianName   string `json:"physician_name"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Reason          string `json:"reason"`
	Status          string `json:"status"`
	CancelledReason string `json:"cancelled_reason"`
}

type userRegisteredEvent struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type Processor struct {
	sender  email.Sender
	metrics *Metrics
	logger  *slog.Logger
}

func NewProcessor(sender email.Sender, metrics *Metrics, logger *slog.Logger) *Processor {
	return &Processor{sender: sender, metrics: metrics, logger: logger}
}

// outgoing is one rendered e-mail plus the references stored with it.
type outgoing struct {
	kind          string
	data          any
	to            string
	toName        string
	appointmentID *int
	userID        *string
}

// Handle renders, sends and records one event. Send failures are recorded as
// failed notifications rather than returned, so they do not block the partition.
func (p *Processor) Handle(ctx context.Context, q db.DBTX, msg kafka.Message) error {
	meta := kafkax.ExtractEventMeta(msg)
	out, ok, err := decode(msg)
	if err != nil {
		p.logger.Error("invalid event payload", "err", err, "event_id", meta.EventID, "topic", msg.Topic)
		return nil
	}
	if !ok {
		p.logger.Debug("event has no notification", "event_id", meta.EventID, "topic", msg.Topic)
		return nil
	}

	n := storage.Notification{
		EventID:       meta.EventID,
		AppointmentID: out.appointmentID,
		UserID:        out.userID,
		Channel:       channelEmail,
		Recipient:     out.to,
		Status:        storage.StatusSent,
	}

	subject, body, err := templates[out.kind].render(out.data)
	switch {
	case err != nil:
		n.Status, n.ErrorReason = storage.StatusFailed, "render: "+err.Error()
	case strings.TrimSpace(out.to) == "":
		n.Subject = subject
		n.Status, n.ErrorReason = storage.StatusFailed, "recipient missing"
	default:
		n.Subject = subject
		if err := p.sender.Send(ctx, email.Message{To: out.to, ToName: out.toName, Subject: subject, Body: body}); err != nil {
			n.Status, n.ErrorReason = storage.StatusFailed, err.Error()
		}
	}

	if err := storage.NewRepository(q).Insert(ctx, n); err != nil {
		return err
	}
	p.metrics.record(out.kind, p.sender.ProviderID(), n.Status)
	level := slog.LevelInfo
	if n.Status == storage.StatusFailed {
		level = slog.LevelWarn
	}
	p.logger.Log(ctx, level, "notification processed",
		"event_id", meta.EventID,
		"kind", out.kind,
		"provider", p.sender.ProviderID(),
		"status", n.Status,
		"error_reason", n.ErrorReason,
	)
	return nil
}

// decode maps a topic to its template. ok is false for events that send nothing.
func decode(msg kafka.Message) (outgoing, bool, error) {
	if msg.Topic == userRegisteredTopic {
		var evt userRegisteredEvent
		if err := json.Unmarshal(msg.Value, &evt); err != nil {
			return outgoing{}, false, err
		}
		return outgoing{
			kind:   "registered",
			data:   evt,
			to:     evt.Email,
			toName: strings.TrimSpace(evt.FirstName + " " + evt.LastName),
			userID: optional(evt.UserID),
		}, true, nil
	}

	kind, ok := appointmentKind(msg.Topic)
	if !ok {
		return outgoing{}, false, nil
	}
	if _, ok := templates[kind]; !ok {
		return outgoing{}, false, nil
	}
	var evt appointmentEvent
	if err := json.Unmarshal(msg.Value, &evt); err != nil {
		return outgoing{}, false, err
	}
	return outgoing{
		kind:          kind,
		data:          evt,
		to:            evt.PatientEmail,
		toName:        evt.PatientName,
		appointmentID: optional(evt.AppointmentID),
		userID:        optional(evt.PatientID),
	}, true, nil
}

// optional maps a zero reference to NULL.
func optional[T comparable](v T) *T {
	var zero T
	if v == zero {
		return nil
	}
	return &v
}

// appointmentKind extracts "booked" from "healpoint.appointment.booked.v1".
func appointmentKind(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, appointmentTopicPrefix)
	if !ok {
		return "", false
	}
	kind, _, _ := strings.Cut(rest, ".")
	return kind, kind != ""
}
