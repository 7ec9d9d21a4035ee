package outbox

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Appointment event kinds.
const (
	AppointmentBooked    = "booked"
	AppointmentUpdated   = "updated"
	AppointmentConfirmed = "confirmed"
	AppointmentCancelled = "cancelled"
	AppointmentCompleted = "completed"
	AppointmentDeleted   = "deleted"
	AppointmentReminder  = "reminder"
)

func AppointmentTopic(kind string) string {
	return "healpoint.appointment." + kind + ".v1"
}

// AppointmentPayload is the JSON body of every appointment event.
type AppointmentPayload struct {
	AppointmentID   int       `json:"appointment_id"`
	PatientID       string    `json:"patient_id"`
	PatientName     string    `json:"patient_name"`
	PatientEmail    string    `json:"patient_email"`
	PhysicianID     string    `json:"physician_id"`
	PhysicianName   string    `json:"physician_name"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	Reason          string    `json:"reason"`
	Status          string    `json:"status"`
	CancelledReason string    `json:"cancelled_reason,omitempty"`
	ActorID         string    `json:"actor_id"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func NewAppointmentEvent(kind string, a model.Appointment, actorID string, at time.Time) (Event, error) {
	payload, err := json.Marshal(AppointmentPayload{
		AppointmentID:   a.ID,
		PatientID:       a.PatientID,
		PatientName:     a.PatientName,
		PatientEmail:    a.PatientEmail,
		PhysicianID:     a.PhysicianID,
		PhysicianName:   a.PhysicianName,
		Date:            a.Date,
		Time:            a.Time,
		Reason:          a.Reason,
		Status:          a.Status,
		CancelledReason: a.CancelledReason,
		ActorID:         actorID,
		OccurredAt:      at.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: "appointment",
		AggregateID:   strconv.Itoa(a.ID),
		EventType:     AppointmentTopic(kind),
		Payload:       payload,
	}, nil
}
