package handlers

import (
	"net/http"

	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
)

// Register mounts the API on mux. Every route requires gateway identity headers.
func (a *API) Register(mux *http.ServeMux) {
	authed := func(h http.HandlerFunc) http.Handler { return httpx.RequireIdentity(h) }
	only := func(h http.HandlerFunc, roles ...string) http.Handler { return httpx.RequireRole(roles...)(h) }
	admin := func(h http.HandlerFunc) http.Handler { return only(h, model.RoleAdmin) }
	staff := func(h http.HandlerFunc) http.Handler { return only(h, model.RoleAdmin, model.RolePhysician) }

	mux.Handle("GET /api/v1/statuses", authed(a.listStatuses))
	mux.Handle("GET /api/v1/statuses/{id}", authed(a.getStatus))
	mux.Handle("POST /api/v1/statuses", admin(a.createStatus))
	mux.Handle("PUT /api/v1/statuses/{id}", admin(a.updateStatus))
	mux.Handle("DELETE /api/v1/statuses/{id}", admin(a.deleteStatus))

	mux.Handle("GET /api/v1/roles", authed(a.listRoles))
	mux.Handle("GET /api/v1/roles/{id}", authed(a.getRole))
	mux.Handle("POST /api/v1/roles", admin(a.createRole))
	mux.Handle("PUT /api/v1/roles/{id}", admin(a.updateRole))
	mux.Handle("DELETE /api/v1/roles/{id}", admin(a.deleteRole))

	mux.Handle("GET /api/v1/users", admin(a.listUsers))
	mux.Handle("POST /api/v1/users", admin(a.createUser))
	mux.Handle("GET /api/v1/users/me", authed(a.getMe))
	mux.Handle("PUT /api/v1/users/me", authed(a.updateMe))
	mux.Handle("GET /api/v1/users/{id}", authed(a.getUser))
	mux.Handle("PUT /api/v1/users/{id}", admin(a.updateUser))
	mux.Handle("DELETE /api/v1/users/{id}", admin(a.deleteUser))
	mux.Handle("GET /api/v1/physicians", authed(a.listPhysicians))

	mux.Handle("GET /api/v1/availabilities", authed(a.listAvailabilities))
	mux.Handle("GET /api/v1/availabilities/{id}", authed(a.getAvailability))
	mux.Handle("POST /api/v1/availabilities", staff(a.createAvailability))
	mux.Handle("PUT /api/v1/availabilities/{id}", staff(a.updateAvailability))
	mux.Handle("DELETE /api/v1/availabilities/{id}", staff(a.deleteAvailability))

	mux.Handle("GET /api/v1/slots", authed(a.listSlots))

	mux.Handle("GET /api/v1/appointments", authed(a.listAppointments))
	mux.Handle("POST /api/v1/appointments", authed(a.createAppointment))
	mux.Handle("GET /api/v1/appointments/{id}", authed(a.getAppointment))
	mux.Handle("PUT /api/v1/appointments/{id}", authed(a.updateAppointment))
	mux.Handle("DELETE /api/v1/appointments/{id}", admin(a.deleteAppointment))
	mux.Handle("POST /api/v1/appointments/{id}/{action}", authed(a.transitionAppointment))

	mux.Handle("GET /api/v1/medical-histories", authed(a.listHistories))
	mux.Handle("GET /api/v1/medical-histories/{id}", authed(a.getHistory))
	mux.Handle("POST /api/v1/medical-histories", staff(a.createHistory))
	mux.Handle("PUT /api/v1/medical-histories/{id}", staff(a.updateHistory))
	mux.Handle("DELETE /api/v1/medical-histories/{id}", staff(a.deleteHistory))

	mux.Handle("GET /api/v1/monitoring", admin(a.listMonitoring))
	mux.Handle("GET /api/v1/dashboard", authed(a.dashboard))
}
