package storage

import (
	"context"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
)

var HistoryListing = listing.Spec{
	Sort: map[string]string{
		"record_date": "h.record_date",
		"patient":     "p.last_name",
		"physician":   "d.last_name",
		"created_at":  "h.created_at",
	},
	DefaultSort:  "record_date",
	DefaultOrder: "desc",
}

type HistoryRepository struct {
	q db.DBTX
}

func NewHistoryRepository(q db.DBTX) *HistoryRepository {
	return &HistoryRepository{q: q}
}

const historyFrom = `
	FROM medical_histories h
	JOIN users p ON p.id = h.patient_id
	JOIN users d ON d.id = h.physician_id`

const historySelect = `
	SELECT h.id, h.patient_id::text, p.first_name || ' ' || p.last_name,
		h.physician_id::text, d.first_name || ' ' || d.last_name, h.appointment_id,
		h.diagnosis, h.treatment, h.notes, to_char(h.record_date, 'YYYY-MM-DD'), h.created_at, h.updated_at` + historyFrom

func scanHistory(row interface{ Scan(...any) error }) (model.MedicalHistory, error) {
	var h model.MedicalHistory
	err := row.Scan(&h.ID, &h.PatientID, &h.PatientName, &h.PhysicianID, &h.PhysicianName, &h.AppointmentID,
		&h.Diagnosis, &h.Treatment, &h.Notes, &h.RecordDate, &h.CreatedAt, &h.UpdatedAt)
	return h, err
}

type HistoryFilter struct {
	PatientID   string
	PhysicianID string
	DateFrom    string
	DateTo      string
}

func (r *HistoryRepository) List(ctx context.Context, f HistoryFilter, p listing.Params) ([]model.MedicalHistory, int, error) {
	var w listing.Where
	w.Search(p.Q, "h.diagnosis", "h.treatment", "p.first_name", "p.last_name")
	if f.PatientID != "" {
		w.And("h.patient_id = " + w.Arg(f.PatientID) + "::uuid")
	}
	if f.PhysicianID != "" {
		w.And("h.physician_id = " + w.Arg(f.PhysicianID) + "::uuid")
	}
	if f.DateFrom != "" {
		w.And("h.record_date >= " + w.Arg(f.DateFrom) + "::date")
	}
	if f.DateTo != "" {
		w.And("h.record_date <= " + w.Arg(f.DateTo) + "::date")
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*)`+historyFrom+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.q.Query(ctx, historySelect+w.SQL()+p.OrderBy(HistoryListing, "h.id")+w.LimitOffset(p), w.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.MedicalHistory
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, h)
	}
	return out, total, rows.Err()
}

func (r *HistoryRepository) Get(ctx context.Context, id int) (model.MedicalHistory, error) {
	h, err := scanHistory(r.q.QueryRow(ctx, historySelect+` WHERE h.id = $1`, id))
	return h, classify(err, false)
}

func (r *HistoryRepository) Create(ctx context.Context, h *model.MedicalHistory) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO medical_histories (patient_id, physician_id, appointment_id, diagnosis, treatment, notes, record_date)
		VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, COALESCE(NULLIF($7, '')::date, CURRENT_DATE))
		RETURNING id, to_char(record_date, 'YYYY-MM-DD'), created_at, updated_at
	`, h.PatientID, h.PhysicianID, h.AppointmentID, h.Diagnosis, h.Treatment, h.Notes, h.RecordDate).
		Scan(&h.ID, &h.RecordDate, &h.CreatedAt, &h.UpdatedAt)
	return classify(err, false)
}

func (r *HistoryRepository) Update(ctx context.Context, h *model.MedicalHistory) error {
	err := r.q.QueryRow(ctx, `
		UPDATE medical_histories
		SET appointment_id = $2, diagnosis = $3, treatment = $4, notes = $5, record_date = $6::date, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, h.ID, h.AppointmentID, h.Diagnosis, h.Treatment, h.Notes, h.RecordDate).Scan(&h.UpdatedAt)
	return classify(err, false)
}

func (r *HistoryRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM medical_histories WHERE id = $1`, id)
	if err != nil {
		return classify(err, true)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
