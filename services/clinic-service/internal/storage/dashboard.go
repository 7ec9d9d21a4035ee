package storage

import (
	"context"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
)

// DashboardRepository runs the aggregate queries behind GET /api/v1/dashboard.
type DashboardRepository struct {
	q db.DBTX
}

func NewDashboardRepository(q db.DBTX) *DashboardRepository {
	return &DashboardRepository{q: q}
}

func (r *DashboardRepository) countBy(ctx context.Context, query string, args ...any) (map[string]int, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var k string
		var n int
		if err := rows.Scan(&k, &n); err != nil {
			return nil, err
		}
		out[k] = n
	}
	return out, rows.Err()
}

func (r *DashboardRepository) UsersByRole(ctx context.Context) (map[string]int, error) {
	return r.countBy(ctx, `
		SELECT r.name, count(u.id)
		FROM roles r
		LEFT JOIN users u ON u.role_id = r.id
		GROUP BY r.name
	`)
}

func (r *DashboardRepository) AppointmentsByStatus(ctx context.Context) (map[string]int, error) {
	return r.countBy(ctx, `
		SELECT s.name, count(*)
		FROM appointments a
		JOIN statuses s ON s.id = a.status_id
		GROUP BY s.name
	`)
}

// AppointmentQuery selects appointments for a dashboard panel. Empty fields are ignored.
type AppointmentQuery struct {
	PatientID   string
	PhysicianID string
	From        string
	To          string
	Statuses    []string
	Descending  bool
	Limit       int
}

func (aq AppointmentQuery) where() *listing.Where {
	w := &listing.Where{}
	if aq.PatientID != "" {
		w.And("a.patient_id = " + w.Arg(aq.PatientID) + "::uuid")
	}
	if aq.PhysicianID != "" {
		w.And("a.physician_id = " + w.Arg(aq.PhysicianID) + "::uuid")
	}
	if aq.From != "" {
		w.And("a.appointment_date >= " + w.Arg(aq.From) + "::date")
	}
	if aq.To != "" {
		w.And("a.appointment_date <= " + w.Arg(aq.To) + "::date")
	}
	if len(aq.Statuses) > 0 {
		w.And("s.name = ANY(" + w.Arg(aq.Statuses) + ")")
	}
	return w
}

func (r *DashboardRepository) CountAppointments(ctx context.Context, aq AppointmentQuery) (int, error) {
	w := aq.where()
	var n int
	err := r.q.QueryRow(ctx, `SELECT count(*)`+appointmentFrom+w.SQL(), w.Args()...).Scan(&n)
	return n, err
}

func (r *DashboardRepository) Appointments(ctx context.Context, aq AppointmentQuery) ([]model.Appointment, error) {
	w := aq.where()
	order := " ORDER BY a.appointment_date, a.appointment_time"
	if aq.Descending {
		order = " ORDER BY a.appointment_date DESC, a.appointment_time DESC"
	}
	limit := aq.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.q.Query(ctx, appointmentSelect+w.SQL()+order+" LIMIT "+w.Arg(limit), w.Args()...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Appointment{}
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *DashboardRepository) CountAvailabilityFrom(ctx context.Context, physicianID, from string) (int, error) {
	var n int
	err := r.q.QueryRow(ctx, `
		SELECT count(*) FROM availabilities
		WHERE physician_id = $1::uuid AND available_date >= $2::date
	`, physicianID, from).Scan(&n)
	return n, err
}

func (r *DashboardRepository) RecentHistories(ctx context.Context, patientID string, limit int) ([]model.MedicalHistory, error) {
	rows, err := r.q.Query(ctx, historySelect+`
		WHERE h.patient_id = $1::uuid
		ORDER BY h.record_date DESC, h.id DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.MedicalHistory{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}
