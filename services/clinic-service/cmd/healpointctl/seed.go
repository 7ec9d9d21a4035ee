package main

import (
	"context"
	"fmt"
	"io"
	"net/mail"
	"strings"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
	"github.com/healpoint/healpoint/services/clinic-service/internal/storage"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

type seedOptions struct {
	email      string
	password   string
	firstName  string
	lastName   string
	bcryptCost int
}

func seedCmd() *cobra.Command {
	var opts seedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert missing reference statuses and roles and create the first administrator",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			url, err := databaseURL(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.Open(ctx, url)
			if err != nil {
				return err
			}
			defer pool.Close()
			return db.NewTxRunner(pool).InTx(ctx, func(q db.DBTX) error {
				return runSeed(ctx, q, opts, cmd.OutOrStdout())
			})
		},
	}
	cmd.Flags().StringVar(&opts.email, "admin-email", "", "administrator e-mail")
	cmd.Flags().StringVar(&opts.password, "admin-password", "", "administrator password (min 8 characters)")
	cmd.Flags().StringVar(&opts.firstName, "admin-first-name", "Admin", "administrator first name")
	cmd.Flags().StringVar(&opts.lastName, "admin-last-name", "HealPoint", "administrator last name")
	cmd.Flags().IntVar(&opts.bcryptCost, "bcrypt-cost", bcrypt.DefaultCost, "bcrypt cost for the administrator password")
	_ = cmd.MarkFlagRequired("admin-email")
	_ = cmd.MarkFlagRequired("admin-password")
	return cmd
}

var seedStatuses = []struct {
	name, description string
}{
	{model.StatusActive, "Active user or role"},
	{model.StatusInactive, "Inactive user or role"},
	{model.StatusPending, "Appointment awaiting confirmation"},
	{model.StatusConfirmed, "Confirmed appointment"},
	{model.StatusCancelled, "Cancelled appointment"},
	{model.StatusCompleted, "Completed appointment"},
}

var seedRoles = []struct {
	name, description string
}{
	{model.RoleAdmin, "Clinic administrator"},
	{model.RolePhysician, "Physician"},
	{model.RolePatient, "Patient"},
}

// runSeed is idempotent: existing reference rows and an existing administrator are left untouched.
func runSeed(ctx context.Context, q db.DBTX, opts seedOptions, out io.Writer) error {
	email := strings.TrimSpace(opts.email)
	if _, err := mail.ParseAddress(email); err != nil {
		return fmt.Errorf("admin-email is not a valid address")
	}
	if len(opts.password) < 8 {
		return fmt.Errorf("admin-password must be at least 8 characters")
	}

	for _, s := range seedStatuses {
		if _, err := q.Exec(ctx, `
			INSERT INTO statuses (id, name, description) VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, model.StatusIDs[s.name], s.name, s.description); err != nil {
			return fmt.Errorf("seed status %s: %w", s.name, err)
		}
	}
	for _, r := range seedRoles {
		if _, err := q.Exec(ctx, `
			INSERT INTO roles (id, name, description, status_id) VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING
		`, model.RoleIDs[r.name], r.name, r.description, model.StatusIDs[model.StatusActive]); err != nil {
			return fmt.Errorf("seed role %s: %w", r.name, err)
		}
	}
	fmt.Fprintf(out, "reference data: %d statuses, %d roles\n", len(seedStatuses), len(seedRoles))

	users := storage.NewUserRepository(q)
	existing, err := users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		fmt.Fprintf(out, "administrator %s already exists (%s)\n", existing.Email, existing.ID)
		return nil
	case !storage.IsNotFound(err):
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.password), opts.bcryptCost)
	if err != nil {
		return err
	}
	admin := model.User{
		FirstName:    opts.firstName,
		LastName:     opts.lastName,
		Email:        email,
		PasswordHash: string(hash),
		RoleID:       model.RoleIDs[model.RoleAdmin],
		StatusID:     model.StatusIDs[model.StatusActive],
	}
	if err := users.Create(ctx, &admin); err != nil {
		return err
	}
	if err := storage.NewMonitoringRepository(q).Record(ctx, storage.Entry{
		Action:   model.ActionCreate,
		Table:    "users",
		RecordID: admin.ID,
		Details:  map[string]any{"source": "healpointctl seed", "role": model.RoleAdmin},
	}); err != nil {
		return err
	}
	fmt.Fprintf(out, "administrator %s created (%s)\n", admin.Email, admin.ID)
	return nil
}
