package storage

import (
	"context"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
)

var AppointmentListing = listing.Spec{
	Sort: map[string]string{
		"date":       "a.appointment_date",
		"time":       "a.appointment_time",
		"status":     "s.name",
		"patient":    "p.last_name",
		"physician":  "d.last_name",
		"created_at": "a.created_at",
	},
	DefaultSort:  "date",
	DefaultOrder: "desc",
}

// SlotIndex is the partial unique index guarding one live appointment per physician slot.
const SlotIndex = "appointments_physician_slot_key"

type AppointmentRepository struct {
	q db.DBTX
}

func NewAppointmentRepository(q db.DBTX) *AppointmentRepository {
	return &AppointmentRepository{q: q}
}

const appointmentFrom = `
	FROM appointments a
	JOIN users p ON p.id = a.patient_id
	JOIN users d ON d.id = a.physician_id
	JOIN statuses s ON s.id = a.status_id`

const appointmentSelect = `
	SELECT a.id, a.patient_id::text, p.first_name || ' ' || p.last_name, p.email,
		a.physician_id::text, d.first_name || ' ' || d.last_name,
		to_char(a.appointment_date, 'YYYY-MM-DD'), to_char(a.appointment_time, 'HH24:MI'),
		a.reason, a.status_id, s.name, a.notes, a.cancelled_reason, a.created_at, a.updated_at` + appointmentFrom

func scanAppointment(row interface{ Scan(...any) error }) (model.Appointment, error) {
	var a model.Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientName, &a.PatientEmail, &a.PhysicianID, &a.PhysicianName,
		&a.Date, &a.Time, &a.Reason, &a.StatusID, &a.Status, &a.Notes, &a.CancelledReason, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

type AppointmentFilter struct {
	PatientID   string
	PhysicianID string
	Status      string
	DateFrom    string
	DateTo      string
	// Participant restricts rows to those where the user is patient or physician.
	Participant string
}

func (f AppointmentFilter) where(q string) *listing.Where {
	w := &listing.Where{}
	w.Search(q, "p.first_name", "p.last_name", "d.first_name", "d.last_name", "a.reason")
	if f.PatientID != "" {
		w.And("a.patient_id = " + w.Arg(f.PatientID) + "::uuid")
	}
	if f.PhysicianID != "" {
		w.And("a.physician_id = " + w.Arg(f.PhysicianID) + "::uuid")
	}
	if f.Participant != "" {
		ph := w.Arg(f.Participant)
		w.And("(a.patient_id = " + ph + "::uuid OR a.physician_id = " + ph + "::uuid)")
	}
	w.Eq("s.name", f.Status)
	if f.DateFrom != "" {
		w.And("a.appointment_date >= " + w.Arg(f.DateFrom) + "::date")
	}
	if f.DateTo != "" {
		w.And("a.appointment_date <= " + w.Arg(f.DateTo) + "::date")
	}
	return w
}

func (r *AppointmentRepository) List(ctx context.Context, f AppointmentFilter, p listing.Params) ([]model.Appointment, int, error) {
	w := f.where(p.Q)

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*)`+appointmentFrom+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.q.Query(ctx, appointmentSelect+w.SQL()+p.OrderBy(AppointmentListing, "a.appointment_time")+w.LimitOffset(p), w.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *AppointmentRepository) Get(ctx context.Context, id int) (model.Appointment, error) {
	a, err := scanAppointment(r.q.QueryRow(ctx, appointmentSelect+` WHERE a.id = $1`, id))
	return a, classify(err, false)
}

// GetForUpdate locks the appointment row for the rest of the transaction.
func (r *AppointmentRepository) GetForUpdate(ctx context.Context, id int) (model.Appointment, error) {
	a, err := scanAppointment(r.q.QueryRow(ctx, appointmentSelect+` WHERE a.id = $1 FOR UPDATE OF a`, id))
	return a, classify(err, false)
}

// OccupiedTimes returns HH:MM of PENDIENTE/ACTIVA appointments, skipping excludeID.
func (r *AppointmentRepository) OccupiedTimes(ctx context.Context, physicianID, date string, excludeID int) ([]string, error) {
	rows, err := r.q.Query(ctx, `
		SELECT to_char(appointment_time, 'HH24:MI')
		FROM appointments
		WHERE physician_id = $1::uuid
			AND appointment_date = $2::date
			AND status_id = ANY($3)
			AND id <> $4
	`, physicianID, date, []int{model.StatusIDs[model.StatusPending], model.StatusIDs[model.StatusConfirmed]}, excludeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create inserts a and fills its id and timestamps. A lost slot race surfaces as ErrConflict.
func (r *AppointmentRepository) Create(ctx context.Context, a *model.Appointment) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO appointments (patient_id, physician_id, appointment_date, appointment_time, reason, status_id, notes)
		VALUES ($1::uuid, $2::uuid, $3::date, $4::time, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`, a.PatientID, a.PhysicianID, a.Date, a.Time, a.Reason, a.StatusID, a.Notes).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return classify(err, false)
}

func (r *AppointmentRepository) Update(ctx context.Context, a *model.Appointment) error {
	err := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET reminder_sent_at = CASE
				WHEN appointment_date = $2::date AND appointment_time = $3::time THEN reminder_sent_at
			END,
			appointment_date = $2::date, appointment_time = $3::time, reason = $4, notes = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.Date, a.Time, a.Reason, a.Notes).Scan(&a.UpdatedAt)
	return classify(err, false)
}

func (r *AppointmentRepository) SetStatus(ctx context.Context, a *model.Appointment) error {
	err := r.q.QueryRow(ctx, `
		UPDATE appointments
		SET status_id = $2, cancelled_reason = $3, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, a.ID, a.StatusID, a.CancelledReason).Scan(&a.UpdatedAt)
	return classify(err, false)
}

// DueReminders locks confirmed appointments starting in [from, to] that have not been
// reminded yet. Bounds are clinic wall-clock times formatted as "YYYY-MM-DD HH:MM".
func (r *AppointmentRepository) DueReminders(ctx context.Context, from, to string, limit int) ([]model.Appointment, error) {
	rows, err := r.q.Query(ctx, appointmentSelect+`
		WHERE a.status_id = $1
			AND a.reminder_sent_at IS NULL
			AND (a.appointment_date + a.appointment_time) BETWEEN $2::timestamp AND $3::timestamp
		ORDER BY a.appointment_date, a.appointment_time
		LIMIT $4
		FOR UPDATE OF a SKIP LOCKED
	`, model.StatusIDs[model.StatusConfirmed], from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AppointmentRepository) MarkReminded(ctx context.Context, ids []int) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.q.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent_at = now()
		WHERE id = ANY($1)
	`, ids)
	return err
}

func (r *AppointmentRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return classify(err, true)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
