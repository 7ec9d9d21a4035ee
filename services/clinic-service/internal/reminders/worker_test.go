package reminders

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentColumns = []string{
	"id", "patient_id", "patient_name", "patient_email", "physician_id", "physician_name",
	"date", "time", "reason", "status_id", "status", "notes", "cancelled_reason", "created_at", "updated_at",
}

func newTestWorker(t *testing.T, mock pgxmock.PgxPoolIface, loc *time.Location) *Worker {
	t.Helper()
	w := NewWorker(mock, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{Location: loc})
	w.now = func() time.Time { return time.Date(2026, 11, 1, 13, 0, 0, 0, time.UTC) }
	return w
}

func TestProcessBatch_EnqueuesDueReminders(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectQuery("reminder_sent_at IS NULL").
		WithArgs(4, "2026-11-01 13:00", "2026-11-02 13:00", 50).
		WillReturnRows(mock.NewRows(appointmentColumns).
			AddRow(7, "p-1", "Ana Lopez", "ana@example.com", "d-1", "Dr. Ruiz", "2026-11-02", "09:00", "", 4, "ACTIVA", "", "", created, created).
			AddRow(9, "p-2", "Luis Mora", "luis@example.com", "d-1", "Dr. Ruiz", "2026-11-02", "10:30", "", 4, "ACTIVA", "", "", created, created))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg(), "appointment", "7", "healpoint.appointment.reminder.v1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO outbox_events").
		WithArgs(pgxmock.AnyArg(), "appointment", "9", "healpoint.appointment.reminder.v1", pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("SET reminder_sent_at = now\\(\\)").
		WithArgs([]int{7, 9}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))
	mock.ExpectCommit()

	n, err := newTestWorker(t, mock, time.UTC).ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessBatch_UsesClinicWallClock(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("reminder_sent_at IS NULL").
		WithArgs(4, "2026-11-01 08:00", "2026-11-02 08:00", 50).
		WillReturnRows(mock.NewRows(appointmentColumns))
	mock.ExpectCommit()

	n, err := newTestWorker(t, mock, time.FixedZone("COT", -5*60*60)).ProcessBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessBatch_OutboxFailureRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	created := time.Date(2026, 10, 20, 9, 0, 0, 0, time.UTC)
	boom := errors.New("outbox unavailable")
	mock.ExpectBegin()
	mock.ExpectQuery("reminder_sent_at IS NULL").
		WillReturnRows(mock.NewRows(appointmentColumns).
			AddRow(7, "p-1", "Ana Lopez", "ana@example.com", "d-1", "Dr. Ruiz", "2026-11-02", "09:00", "", 4, "ACTIVA", "", "", created, created))
	mock.ExpectExec("INSERT INTO outbox_events").WillReturnError(boom)
	mock.ExpectRollback()

	n, err := newTestWorker(t, mock, time.UTC).ProcessBatch(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
