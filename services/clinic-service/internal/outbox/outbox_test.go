package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/healpoint/healpoint/libs/kafkax"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func TestNewAppointmentEvent(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	evt, err := NewAppointmentEvent(AppointmentConfirmed, model.Appointment{
		ID: 12, PatientID: "p", PatientEmail: "p@example.com", PhysicianID: "d", Date: "2025-03-02", Time: "09:30", Status: model.StatusConfirmed,
	}, "d", at)
	require.NoError(t, err)
	assert.Equal(t, "healpoint.appointment.confirmed.v1", evt.EventType)
	assert.Equal(t, "12", evt.AggregateID)

	var payload AppointmentPayload
	require.NoError(t, json.Unmarshal(evt.Payload, &payload))
	assert.Equal(t, "p@example.com", payload.PatientEmail)
	assert.Equal(t, "ACTIVA", payload.Status)
}

func TestPublishBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM outbox_events").
		WithArgs(50).
		WillReturnRows(mock.NewRows([]string{"id", "event_id", "aggregate_type", "aggregate_id", "event_type", "payload", "traceparent", "tracestate", "created_at"}).
			AddRow(int64(1), "e-1", "appointment", "12", "healpoint.appointment.booked.v1", []byte(`{}`), "", "", time.Now()))
	mock.ExpectExec("UPDATE outbox_events").
		WithArgs([]int64{1}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	w := &fakeWriter{}
	p := NewPublisher(mock, w, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})
	n, err := p.PublishBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "healpoint.appointment.booked.v1", w.msgs[0].Topic)
	assert.Equal(t, "e-1", kafkax.ExtractEventMeta(w.msgs[0]).EventID)
}

func TestPublishBatch_WriteFailureLeavesRowsPending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FROM outbox_events").
		WillReturnRows(mock.NewRows([]string{"id", "event_id", "aggregate_type", "aggregate_id", "event_type", "payload", "traceparent", "tracestate", "created_at"}).
			AddRow(int64(1), "e-1", "appointment", "12", "t", []byte(`{}`), "", "", time.Now()))
	mock.ExpectRollback()

	boom := errors.New("broker down")
	p := NewPublisher(mock, &fakeWriter{err: boom}, slog.New(slog.NewTextHandler(io.Discard, nil)), PublisherConfig{})
	_, err = p.PublishBatch(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}
