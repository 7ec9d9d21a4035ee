package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/healpoint/healpoint/libs/db"
)

var (
	ErrNotFound   = errors.New("user not found")
	ErrEmailTaken = errors.New("email already registered")
)

// Built-in reference ids seeded by the initial migration.
const (
	StatusActive = 1
	RolePatient  = 3
)

type User struct {
	ID           string
	FirstName    string
	LastName     string
	Email        string
	PasswordHash string
	RoleID       int
	Role         string
	RoleStatusID int
	StatusID     int
	Status       string
}

func (u User) Name() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Active reports whether both the account and its role are ACTIVO.
func (u User) Active() bool {
	return u.StatusID == StatusActive && u.RoleStatusID == StatusActive
}

type NewUser struct {
	FirstName      string
	LastName       string
	Email          string
	Phone          string
	DocumentNumber string
	PasswordHash   string
	RoleID         int
	StatusID       int
}

type UserRepository struct {
	q db.DBTX
}

func NewUserRepository(q db.DBTX) *UserRepository {
	return &UserRepository{q: q}
}

const userSelect = `
	SELECT u.id::text, u.first_name, u.last_name, u.email, u.password_hash,
		u.role_id, r.name, r.status_id, u.status_id, s.name
	FROM users u
	JOIN roles r ON r.id = u.role_id
	JOIN statuses s ON s.id = u.status_id`

func (r *UserRepository) Create(ctx context.Context, u NewUser) (string, error) {
	var id string
	err := r.q.QueryRow(ctx, `
		INSERT INTO users (first_name, last_name, email, phone, document_number, password_hash, role_id, status_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id::text
	`, u.FirstName, u.LastName, u.Email, u.Phone, u.DocumentNumber, u.PasswordHash, u.RoleID, u.StatusID).Scan(&id)
	if db.HasCode(err, db.CodeUniqueViolation) {
		return "", ErrEmailTaken
	}
	return id, err
}

// GetByEmail matches case-insensitively, like the users_email_key index.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (User, error) {
	return r.get(ctx, userSelect+` WHERE lower(u.email) = lower($1)`, email)
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (User, error) {
	return r.get(ctx, userSelect+` WHERE u.id = $1::uuid`, id)
}

func (r *UserRepository) get(ctx context.Context, query string, arg string) (User, error) {
	var u User
	err := r.q.QueryRow(ctx, query, arg).Scan(
		&u.ID, &u.FirstName, &u.LastName, &u.Email, &u.PasswordHash,
		&u.RoleID, &u.Role, &u.RoleStatusID, &u.StatusID, &u.Status,
	)
	if db.IsNoRows(err) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
