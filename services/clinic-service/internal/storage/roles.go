package storage

import (
	"context"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
)

var RoleListing = listing.Spec{
	Sort: map[string]string{
		"id":         "r.id",
		"name":       "r.name",
		"status":     "s.name",
		"created_at": "r.created_at",
	},
	DefaultSort: "name",
}

type RoleRepository struct {
	q db.DBTX
}

func NewRoleRepository(q db.DBTX) *RoleRepository {
	return &RoleRepository{q: q}
}

const roleSelect = `
	SELECT r.id, r.name, r.description, r.status_id, s.name, r.created_at, r.updated_at
	FROM roles r
	JOIN statuses s ON s.id = r.status_id`

func scanRole(row interface{ Scan(...any) error }) (model.Role, error) {
	var ro model.Role
	err := row.Scan(&ro.ID, &ro.Name, &ro.Description, &ro.StatusID, &ro.Status, &ro.CreatedAt, &ro.UpdatedAt)
	return ro, err
}

type RoleFilter struct {
	Status string
}

func (r *RoleRepository) List(ctx context.Context, f RoleFilter, p listing.Params) ([]model.Role, int, error) {
	var w listing.Where
	w.Search(p.Q, "r.name", "r.description")
	w.Eq("s.name", f.Status)

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*) FROM roles r JOIN statuses s ON s.id = r.status_id`+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.q.Query(ctx, roleSelect+w.SQL()+p.OrderBy(RoleListing, "r.id")+w.LimitOffset(p), w.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Role
	for rows.Next() {
		ro, err := scanRole(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, ro)
	}
	return out, total, rows.Err()
}

func (r *RoleRepository) Get(ctx context.Context, id int) (model.Role, error) {
	ro, err := scanRole(r.q.QueryRow(ctx, roleSelect+` WHERE r.id = $1`, id))
	return ro, classify(err, false)
}

func (r *RoleRepository) GetByName(ctx context.Context, name string) (model.Role, error) {
	ro, err := scanRole(r.q.QueryRow(ctx, roleSelect+` WHERE r.name = $1`, name))
	return ro, classify(err, false)
}

func (r *RoleRepository) Create(ctx context.Context, ro *model.Role) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO roles (name, description, status_id)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`, ro.Name, ro.Description, ro.StatusID).Scan(&ro.ID, &ro.CreatedAt, &ro.UpdatedAt)
	return classify(err, false)
}

func (r *RoleRepository) Update(ctx context.Context, ro *model.Role) error {
	err := r.q.QueryRow(ctx, `
		UPDATE roles
		SET name = $2, description = $3, status_id = $4, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, ro.ID, ro.Name, ro.Description, ro.StatusID).Scan(&ro.CreatedAt, &ro.UpdatedAt)
	return classify(err, false)
}

func (r *RoleRepository) Delete(ctx context.Context, id int) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return classify(err, true)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
