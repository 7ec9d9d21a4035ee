package storage

import (
	"context"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
)

var StatusListing = listing.Spec{
	Sort: map[string]string{
		"id":         "s.id",
		"name":       "s.name",
		"created_at": "s.created_at",
	},
	DefaultSort: "name",
}

type StatusRepository struct {
	q db.DBTX
}

func NewStatusRepository(q db.DBTX) *StatusRepository {
	return &StatusRepository{q: q}
}

const statusColumns = `s.id, s.name, s.description, s.created_at, s.updated_at`

func (r *StatusRepository) List(ctx context.Context, p listing.Params) ([]model.Status, int, error) {
	var w listing.Where
	w.Search(p.Q, "s.name", "s.description")

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM statuses s`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + statusColumns + ` FROM statuses s` + w.SQL() + p.OrderBy(StatusListing, "s.id") + w.LimitOffset(p)
	rows, err := r.q.Query(ctx, query, w.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Status
	for rows.Next() {
		var s model.Status
		if err := rows.Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, s)
	}
	return out, total, rows.Err()
}

func (r *StatusRepository) Get(ctx context.Context, id int) (model.Status, error) {
	var s model.Status
	err := r.q.QueryRow(ctx, `SELECT `+statusColumns+` FROM statuses s WHERE s.id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Description, &s.CreatedAt, &s.UpdatedAt)
	return s, classify(err, false)
}

func (r *StatusRepository) Create(ctx context.Context, s *model.Status) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO statuses (name, description)
		VALUES ($1, $2)
		RETURNING id, created_at, updated_at
	`, s.Name, s.Description).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
	return classify(err, false)
}

func (r *StatusRepository) Update(ctx context.Context, s *model.Status) error {
	err := r.q.QueryRow(ctx, `
		UPDATE statuses
		SET name = $2, description = $3, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, s.ID, s.Name, s.Description).Scan(&s.CreatedAt, &s.UpdatedAt)
	return classify(err, false)
}

func (r *StatusRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM statuses WHERE id = $1`, id)
	if err != nil {
		return classify(err, true)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
