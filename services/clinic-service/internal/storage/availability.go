package storage

import (
	"context"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
)

var AvailabilityListing = listing.Spec{
	Sort: map[string]string{
		"date":       "a.available_date",
		"start_time": "a.start_time",
		"physician":  "u.last_name",
		"created_at": "a.created_at",
	},
	DefaultSort: "date",
}

type AvailabilityRepository struct {
	q db.DBTX
}

func NewAvailabilityRepository(q db.DBTX) *AvailabilityRepository {
	return &AvailabilityRepository{q: q}
}

const availabilityFrom = `
	FROM availabilities a
	JOIN users u ON u.id = a.physician_id`

const availabilitySelect = `
	SELECT a.id, a.physician_id::text, u.first_name || ' ' || u.last_name,
		to_char(a.available_date, 'YYYY-MM-DD'), to_char(a.start_time, 'HH24:MI'), to_char(a.end_time, 'HH24:MI'),
		a.created_at, a.updated_at` + availabilityFrom

func scanAvailability(row interface{ Scan(...any) error }) (model.Availability, error) {
	var a model.Availability
	err := row.Scan(&a.ID, &a.PhysicianID, &a.PhysicianName, &a.Date, &a.StartTime, &a.EndTime, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

type AvailabilityFilter struct {
	PhysicianID string
	DateFrom    string
	DateTo      string
}

func (r *AvailabilityRepository) List(ctx context.Context, f AvailabilityFilter, p listing.Params) ([]model.Availability, int, error) {
	var w listing.Where
	w.Search(p.Q, "u.first_name", "u.last_name")
	if f.PhysicianID != "" {
		w.And("a.physician_id = " + w.Arg(f.PhysicianID) + "::uuid")
	}
	if f.DateFrom != "" {
		w.And("a.available_date >= " + w.Arg(f.DateFrom) + "::date")
	}
	if f.DateTo != "" {
		w.And("a.available_date <= " + w.Arg(f.DateTo) + "::date")
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*)`+availabilityFrom+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.q.Query(ctx, availabilitySelect+w.SQL()+p.OrderBy(AvailabilityListing, "a.start_time")+w.LimitOffset(p), w.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

// ForDate returns the physician's windows on date ordered by start time.
func (r *AvailabilityRepository) ForDate(ctx context.Context, physicianID, date string) ([]model.Availability, error) {
	rows, err := r.q.Query(ctx, availabilitySelect+`
		WHERE a.physician_id = $1::uuid AND a.available_date = $2::date
		ORDER BY a.start_time
	`, physicianID, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *AvailabilityRepository) Get(ctx context.Context, id int) (model.Availability, error) {
	a, err := scanAvailability(r.q.QueryRow(ctx, availabilitySelect+` WHERE a.id = $1`, id))
	return a, classify(err, false)
}

func (r *AvailabilityRepository) Create(ctx context.Context, a *model.Availability) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO availabilities (physician_id, available_date, start_time, end_time)
		VALUES ($1::uuid, $2::date, $3::time, $4::time)
		RETURNING id, created_at, updated_at
	`, a.PhysicianID, a.Date, a.StartTime, a.EndTime).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return classify(err, false)
}

func (r *AvailabilityRepository) Update(ctx context.Context, a *model.Availability) error {
	err := r.q.QueryRow(ctx, `
		UPDATE availabilities
		SET available_date = $2::date, start_time = $3::time, end_time = $4::time, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, a.ID, a.Date, a.StartTime, a.EndTime).Scan(&a.CreatedAt, &a.UpdatedAt)
	return classify(err, false)
}

func (r *AvailabilityRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM availabilities WHERE id = $1`, id)
	if err != nil {
		return classify(err, true)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
