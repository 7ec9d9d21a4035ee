package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
	"github.com/healpoint/healpoint/services/clinic-service/internal/schedule"
	"github.com/healpoint/healpoint/services/clinic-service/internal/storage"
)

type adminDashboard struct {
	Role                 string                   `json:"role"`
	UsersByRole          map[string]int           `json:"users_by_role"`
	AppointmentsByStatus map[string]int           `json:"appointments_by_status"`
	AppointmentsToday    int                      `json:"appointments_today"`
	RecentActivity       []model.MonitoringRecord `json:"recent_activity"`
}

type physicianDashboard struct {
	Role                string              `json:"role"`
	Today               []model.Appointment `json:"today"`
	PendingConfirmation int                 `json:"pending_confirmation"`
	Upcoming            []model.Appointment `json:"upcoming"`
	AvailabilityWindows int                 `json:"availability_windows"`
}

type patientDashboard struct {
	Role            string                 `json:"role"`
	Upcoming        []model.Appointment    `json:"upcoming"`
	CompletedCount  int                    `json:"completed_count"`
	RecentHistories []model.MedicalHistory `json:"recent_histories"`
}

var liveStatuses = []string{model.StatusPending, model.StatusConfirmed}

func (a *API) dashboard(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r)
	repo := storage.NewDashboardRepository(a.db)
	now := a.now().In(a.loc)
	today := now.Format(schedule.DateLayout)

	var (
		body any
		err  error
	)
	switch {
	case actor.IsAdmin():
		body, err = a.adminDashboard(r.Context(), repo, today)
	case actor.IsPhysician():
		body, err = physicianSummary(r.Context(), repo, actor.ID, now)
	case actor.IsPatient():
		body, err = patientSummary(r.Context(), repo, actor.ID, today)
	default:
		err = forbidden("no dashboard for role " + actor.Role)
	}
	if err != nil {
		a.writeErr(w, r, err, conflictMessages{})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, body)
}

func (a *API) adminDashboard(ctx context.Context, repo *storage.DashboardRepository, today string) (adminDashboard, error) {
	out := adminDashboard{Role: model.RoleAdmin}
	var err error
	if out.UsersByRole, err = repo.UsersByRole(ctx); err != nil {
		return out, err
	}
	if out.AppointmentsByStatus, err = repo.AppointmentsByStatus(ctx); err != nil {
		return out, err
	}
	if out.AppointmentsToday, err = repo.CountAppointments(ctx, storage.AppointmentQuery{From: today, To: today}); err != nil {
		return out, err
	}
	if out.RecentActivity, err = storage.NewMonitoringRepository(a.db).Recent(ctx, 10); err != nil {
		return out, err
	}
	if out.RecentActivity == nil {
		out.RecentActivity = []model.MonitoringRecord{}
	}
	return out, nil
}

func physicianSummary(ctx context.Context, repo *storage.DashboardRepository, id string, now time.Time) (physicianDashboard, error) {
	today := now.Format(schedule.DateLayout)
	week := now.AddDate(0, 0, 7).Format(schedule.DateLayout)
	tomorrow := now.AddDate(0, 0, 1).Format(schedule.DateLayout)

	out := physicianDashboard{Role: model.RolePhysician}
	var err error
	if out.Today, err = repo.Appointments(ctx, storage.AppointmentQuery{PhysicianID: id, From: today, To: today}); err != nil {
		return out, err
	}
	if out.PendingConfirmation, err = repo.CountAppointments(ctx, storage.AppointmentQuery{
		PhysicianID: id, From: today, Statuses: []string{model.StatusPending},
	}); err != nil {
		return out, err
	}
	if out.Upcoming, err = repo.Appointments(ctx, storage.AppointmentQuery{
		PhysicianID: id, From: tomorrow, To: week, Statuses: liveStatuses,
	}); err != nil {
		return out, err
	}
	if out.AvailabilityWindows, err = repo.CountAvailabilityFrom(ctx, id, today); err != nil {
		return out, err
	}
	return out, nil
}

func patientSummary(ctx context.Context, repo *storage.DashboardRepository, id, today string) (patientDashboard, error) {
	out := patientDashboard{Role: model.RolePatient}
	var err error
	if out.Upcoming, err = repo.Appointments(ctx, storage.AppointmentQuery{
		PatientID: id, From: today, Statuses: liveStatuses,
	}); err != nil {
		return out, err
	}
	if out.CompletedCount, err = repo.CountAppointments(ctx, storage.AppointmentQuery{
		PatientID: id, Statuses: []string{model.StatusCompleted},
	}); err != nil {
		return out, err
	}
	if out.RecentHistories, err = repo.RecentHistories(ctx, id, 5); err != nil {
		return out, err
	}
	return out, nil
}
