package handlers

import (
	"net/http"
	"strings"

	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/booking"
	"github.com/healpoint/healpoint/services/clinic-service/internal/schedule"
	"github.com/healpoint/healpoint/services/clinic-service/internal/storage"
)

var appointmentMessages = conflictMessages{
	notFound: "appointment not found",
	conflict: "appointment has related medical history",
}

type createAppointmentRequest struct {
	PatientID   string `json:"patient_id"`
	PhysicianID string `json:"physician_id"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Reason      string `json:"reason"`
	Notes       string `json:"notes"`
}

type updateAppointmentRequest struct {
	Date   *string `json:"date"`
	Time   *string `json:"time"`
	Reason *string `json:"reason"`
	Notes  *string `json:"notes"`
}

type transitionRequest struct {
	Reason string `json:"reason"`
}

func (a *API) listAppointments(w http.ResponseWriter, r *http.Request) {
	p, ok := parseListing(w, r, storage.AppointmentListing)
	if !ok {
		return
	}
	f := storage.AppointmentFilter{Status: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))}
	var err error
	for _, bind := range []struct {
		dst   *string
		parse func(*http.Request, string) (string, error)
		name  string
	}{
		{&f.PatientID, queryUUID, "patient_id"},
		{&f.PhysicianID, queryUUID, "physician_id"},
		{&f.DateFrom, queryDate, "date_from"},
		{&f.DateTo, queryDate, "date_to"},
	} {
		if *bind.dst, err = bind.parse(r, bind.name); err != nil {
			a.writeErr(w, r, err, appointmentMessages)
			return
		}
	}

	items, total, err := a.booking.List(r.Context(), actorFrom(r), f, p)
	if err != nil {
		a.writeErr(w, r, err, appointmentMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listing.NewPage(items, total, p))
}

func (a *API) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, appointmentMessages)
		return
	}
	appt, err := a.booking.Get(r.Context(), actorFrom(r), id)
	if err != nil {
		a.writeErr(w, r, err, appointmentMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (a *API) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req createAppointmentRequest
	if !decode(w, r, &req) {
		return
	}
	appt, err := a.booking.Book(r.Context(), actorFrom(r), booking.BookInput{
		PatientID:   req.PatientID,
		PhysicianID: req.PhysicianID,
		Date:        req.Date,
		Time:        req.Time,
		Reason:      req.Reason,
		Notes:       req.Notes,
	})
	if err != nil {
		a.writeErr(w, r, err, appointmentMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, appt)
}

func (a *API) updateAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, appointmentMessages)
		return
	}
	var req updateAppointmentRequest
	if !decode(w, r, &req) {
		return
	}
	appt, err := a.booking.Update(r.Context(), actorFrom(r), id, booking.UpdateInput(req))
	if err != nil {
		a.writeErr(w, r, err, appointmentMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

// transitionAppointment serves POST /appointments/{id}/{action}. The body is optional.
func (a *API) transitionAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, appointmentMessages)
		return
	}
	action, ok := schedule.ParseAction(r.PathValue("action"))
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "unknown action")
		return
	}
	var req transitionRequest
	if r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
		if !decode(w, r, &req) {
			return
		}
	}
	appt, err := a.booking.Transition(r.Context(), actorFrom(r), id, action, req.Reason)
	if err != nil {
		a.writeErr(w, r, err, appointmentMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (a *API) deleteAppointment(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, appointmentMessages)
		return
	}
	if err := a.booking.Delete(r.Context(), actorFrom(r), id); err != nil {
		a.writeErr(w, r, err, appointmentMessages)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) listSlots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	physicianID := strings.TrimSpace(q.Get("physician_id"))
	date := strings.TrimSpace(q.Get("date"))
	if physicianID == "" || date == "" {
		httpx.WriteError(w, http.StatusBadRequest, "physician_id and date are required")
		return
	}
	slots, err := a.booking.Slots(r.Context(), physicianID, date)
	if err != nil {
		a.writeErr(w, r, err, conflictMessages{})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, slots)
}
