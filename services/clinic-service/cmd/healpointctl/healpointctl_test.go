package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/healpoint/healpoint/services/clinic-service/internal/schedule"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func expectReferenceRows(mock pgxmock.PgxPoolIface) {
	for range seedStatuses {
		mock.ExpectExec("INSERT INTO statuses").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	}
	for range seedRoles {
		mock.ExpectExec("INSERT INTO roles").WillReturnResult(pgxmock.NewResult("INSERT", 0))
	}
}

func TestRunSeed_CreatesAdministrator(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectReferenceRows(mock)
	mock.ExpectQuery("WHERE lower\\(u.email\\) = lower\\(\\$1\\)").
		WithArgs("root@clinic.test").
		WillReturnError(pgx.ErrNoRows)
	now := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("Admin", "HealPoint", "root@clinic.test", "", "", "", pgxmock.AnyArg(), 1, 1).
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow("7f6b3c1e-2a9d-4b8e-9c3f-1d2e3f4a5b6c", now, now))
	mock.ExpectExec("INSERT INTO monitoring_records").
		WithArgs("CREATE", "users", "7f6b3c1e-2a9d-4b8e-9c3f-1d2e3f4a5b6c", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	var out bytes.Buffer
	err = runSeed(context.Background(), mock, seedOptions{
		email:      " root@clinic.test ",
		password:   "s3cretpass",
		firstName:  "Admin",
		lastName:   "HealPoint",
		bcryptCost: bcrypt.MinCost,
	}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "administrator root@clinic.test created")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSeed_ExistingAdministratorIsKept(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	expectReferenceRows(mock)
	now := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	mock.ExpectQuery("WHERE lower\\(u.email\\) = lower\\(\\$1\\)").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "first_name", "last_name", "email", "phone", "document_number", "specialty",
			"role_id", "role", "status_id", "status", "password_hash", "created_at", "updated_at",
		}).AddRow("7f6b3c1e-2a9d-4b8e-9c3f-1d2e3f4a5b6c", "Admin", "HealPoint", "root@clinic.test", "", "", "",
			1, "ADMINISTRADOR", 1, "ACTIVO", "hash", now, now))

	var out bytes.Buffer
	err = runSeed(context.Background(), mock, seedOptions{email: "root@clinic.test", password: "s3cretpass", bcryptCost: bcrypt.MinCost}, &out)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "already exists")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSeed_ValidatesInput(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	var out bytes.Buffer
	assert.Error(t, runSeed(context.Background(), mock, seedOptions{email: "not-an-email", password: "s3cretpass"}, &out))
	assert.Error(t, runSeed(context.Background(), mock, seedOptions{email: "root@clinic.test", password: "short"}, &out))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPrintSlots(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printSlots(&out, []schedule.Slot{
		{Time: "08:00", Available: true},
		{Time: "08:30", Available: false},
	}))
	assert.Equal(t, "TIME   AVAILABLE\n08:00  true\n08:30  false\n", out.String())

	out.Reset()
	require.NoError(t, printSlots(&out, nil))
	assert.Equal(t, "no availability\n", out.String())
}

func TestRootCommandRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	cmd := newRootCmd()
	cmd.SetArgs([]string{"migrate", "version"})
	cmd.SetOut(&bytes.Buffer{})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database url is required")
}
