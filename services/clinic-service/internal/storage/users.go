package storage

import (
	"context"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
)

var UserListing = listing.Spec{
	Sort: map[string]string{
		"first_name": "u.first_name",
		"last_name":  "u.last_name",
		"email":      "u.email",
		"role":       "r.name",
		"status":     "s.name",
		"created_at": "u.created_at",
	},
	DefaultSort: "last_name",
}

type UserRepository struct {
	q db.DBTX
}

func NewUserRepository(q db.DBTX) *UserRepository {
	return &UserRepository{q: q}
}

const userFrom = `
	FROM users u
	JOIN roles r ON r.id = u.role_id
	JOIN statuses s ON s.id = u.status_id`

const userSelect = `
	SELECT u.id::text, u.first_name, u.last_name, u.email, u.phone, u.document_number, u.specialty,
		u.role_id, r.name, u.status_id, s.name, u.password_hash, u.created_at, u.updated_at` + userFrom

func scanUser(row interface{ Scan(...any) error }) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.Phone, &u.DocumentNumber, &u.Specialty,
		&u.RoleID, &u.Role, &u.StatusID, &u.Status, &u.PasswordHash, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

type UserFilter struct {
	Role   string
	Status string
}

func (r *UserRepository) List(ctx context.Context, f UserFilter, p listing.Params) ([]model.User, int, error) {
	var w listing.Where
	w.Search(p.Q, "u.first_name", "u.last_name", "u.email", "u.document_number", "u.specialty")
	w.Eq("r.name", f.Role)
	w.Eq("s.name", f.Status)

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*)`+userFrom+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.q.Query(ctx, userSelect+w.SQL()+p.OrderBy(UserListing, "u.id")+w.LimitOffset(p), w.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *UserRepository) Get(ctx context.Context, id string) (model.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, userSelect+` WHERE u.id = $1::uuid`, id))
	return u, classify(err, false)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	u, err := scanUser(r.q.QueryRow(ctx, userSelect+` WHERE lower(u.email) = lower($1)`, email))
	return u, classify(err, false)
}

func (r *UserRepository) Create(ctx context.Context, u *model.User) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO users (first_name, last_name, email, phone, document_number, specialty, password_hash, role_id, status_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id::text, created_at, updated_at
	`, u.FirstName, u.LastName, u.Email, u.Phone, u.DocumentNumber, u.Specialty, u.PasswordHash, u.RoleID, u.StatusID).
		Scan(&u.ID, &u.CreatedAt, &u.UpdatedAt)
	return classify(err, false)
}

// Update writes profile fields, role and status. An empty PasswordHash keeps the current one.
func (r *UserRepository) Update(ctx context.Context, u *model.User) error {
	err := r.q.QueryRow(ctx, `
		UPDATE users
		SET first_name = $2, last_name = $3, email = $4, phone = $5, document_number = $6, specialty = $7,
			role_id = $8, status_id = $9,
			password_hash = COALESCE(NULLIF($10, ''), password_hash),
			updated_at = now()
		WHERE id = $1::uuid
		RETURNING created_at, updated_at
	`, u.ID, u.FirstName, u.LastName, u.Email, u.Phone, u.DocumentNumber, u.Specialty, u.RoleID, u.StatusID, u.PasswordHash).
		Scan(&u.CreatedAt, &u.UpdatedAt)
	return classify(err, false)
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.q.Exec(ctx, `DELETE FROM users WHERE id = $1::uuid`, id)
	if err != nil {
		return classify(err, true)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
