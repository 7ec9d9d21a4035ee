package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
	"github.com/healpoint/healpoint/services/clinic-service/internal/schedule"
	"github.com/healpoint/healpoint/services/clinic-service/internal/storage"
)

var historyMessages = conflictMessages{
	notFound: "medical history not found",
	badRef:   "patient_id, physician_id or appointment_id does not exist",
}

type historyRequest struct {
	PatientID     string  `json:"patient_id"`
	PhysicianID   string  `json:"physician_id"`
	AppointmentID *int    `json:"appointment_id"`
	Diagnosis     *string `json:"diagnosis"`
	Treatment     *string `json:"treatment"`
	Notes         *string `json:"notes"`
	RecordDate    *string `json:"record_date"`
}

func (req historyRequest) apply(h *model.MedicalHistory) error {
	if req.AppointmentID != nil {
		h.AppointmentID = req.AppointmentID
	}
	if req.Diagnosis != nil {
		h.Diagnosis = str(req.Diagnosis)
	}
	if req.Treatment != nil {
		h.Treatment = str(req.Treatment)
	}
	if req.Notes != nil {
		h.Notes = str(req.Notes)
	}
	if req.RecordDate != nil {
		d, err := schedule.ParseDate(*req.RecordDate)
		if err != nil {
			return badRequest("record_date must be YYYY-MM-DD")
		}
		h.RecordDate = d.Format(schedule.DateLayout)
	}
	if h.Diagnosis == "" {
		return badRequest("diagnosis is required")
	}
	return nil
}

// checkAppointmentLink verifies the optional appointment belongs to the record's patient.
func checkAppointmentLink(ctx context.Context, q db.DBTX, h model.MedicalHistory) error {
	if h.AppointmentID == nil {
		return nil
	}
	appt, err := storage.NewAppointmentRepository(q).Get(ctx, *h.AppointmentID)
	if storage.IsNotFound(err) {
		return badRequest("appointment_id does not exist")
	}
	if err != nil {
		return err
	}
	if appt.PatientID != h.PatientID {
		return badRequest("appointment_id belongs to a different patient")
	}
	return nil
}

// canWriteHistory: administrators, or the physician who authored the record.
func canWriteHistory(actor model.Actor, h model.MedicalHistory) bool {
	return actor.IsAdmin() || (actor.IsPhysician() && actor.ID == h.PhysicianID)
}

func (a *API) listHistories(w http.ResponseWriter, r *http.Request) {
	p, ok := parseListing(w, r, storage.HistoryListing)
	if !ok {
		return
	}
	var f storage.HistoryFilter
	var err error
	if f.PatientID, err = queryUUID(r, "patient_id"); err == nil {
		if f.PhysicianID, err = queryUUID(r, "physician_id"); err == nil {
			if f.DateFrom, err = queryDate(r, "date_from"); err == nil {
				f.DateTo, err = queryDate(r, "date_to")
			}
		}
	}
	if err != nil {
		a.writeErr(w, r, err, historyMessages)
		return
	}
	if actor := actorFrom(r); actor.IsPatient() {
		f.PatientID = actor.ID
	}
	items, total, err := storage.NewHistoryRepository(a.db).List(r.Context(), f, p)
	if err != nil {
		a.writeErr(w, r, err, historyMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listing.NewPage(items, total, p))
}

func (a *API) getHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, historyMessages)
		return
	}
	h, err := storage.NewHistoryRepository(a.db).Get(r.Context(), id)
	if err == nil {
		if actor := actorFrom(r); actor.IsPatient() && h.PatientID != actor.ID {
			err = storage.ErrNotFound
		}
	}
	if err != nil {
		a.writeErr(w, r, err, historyMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h)
}

func (a *API) createHistory(w http.ResponseWriter, r *http.Request) {
	var req historyRequest
	if !decode(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	if actor.IsPhysician() {
		req.PhysicianID = actor.ID
	}
	if err := validUUID("patient_id", req.PatientID); err != nil {
		a.writeErr(w, r, err, historyMessages)
		return
	}
	if err := validUUID("physician_id", req.PhysicianID); err != nil {
		a.writeErr(w, r, err, historyMessages)
		return
	}
	h := model.MedicalHistory{PatientID: req.PatientID, PhysicianID: req.PhysicianID}
	if err := req.apply(&h); err != nil {
		a.writeErr(w, r, err, historyMessages)
		return
	}

	err := a.inTx(r.Context(), func(q db.DBTX) error {
		patient, err := storage.NewUserRepository(q).Get(r.Context(), h.PatientID)
		if storage.IsNotFound(err) || (err == nil && patient.Role != model.RolePatient) {
			return badRequest("patient_id must reference a patient")
		}
		if err != nil {
			return err
		}
		if err := requirePhysician(r.Context(), q, h.PhysicianID); err != nil {
			return err
		}
		if err := checkAppointmentLink(r.Context(), q, h); err != nil {
			return err
		}
		repo := storage.NewHistoryRepository(q)
		if err := repo.Create(r.Context(), &h); err != nil {
			return err
		}
		if h, err = repo.Get(r.Context(), h.ID); err != nil {
			return err
		}
		return audit(r.Context(), q, actor, model.ActionCreate, "medical_histories", strconv.Itoa(h.ID), map[string]any{
			"patient_id": h.PatientID, "physician_id": h.PhysicianID, "appointment_id": h.AppointmentID,
		})
	})
	if err != nil {
		a.writeErr(w, r, err, historyMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, h)
}

func (a *API) updateHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, historyMessages)
		return
	}
	var req historyRequest
	if !decode(w, r, &req) {
		return
	}

	actor := actorFrom(r)
	var h model.MedicalHistory
	err = a.inTx(r.Context(), func(q db.DBTX) error {
		repo := storage.NewHistoryRepository(q)
		current, err := repo.Get(r.Context(), id)
		if err != nil {
			return err
		}
		if !canWriteHistory(actor, current) {
			return forbidden("only the authoring physician or an administrator may edit this record")
		}
		next := current
		if err := req.apply(&next); err != nil {
			return err
		}
		if err := checkAppointmentLink(r.Context(), q, next); err != nil {
			return err
		}
		if err := repo.Update(r.Context(), &next); err != nil {
			return err
		}
		h = next
		return audit(r.Context(), q, actor, model.ActionUpdate, "medical_histories", strconv.Itoa(id), map[string]any{
			"patient_id": h.PatientID, "appointment_id": h.AppointmentID,
		})
	})
	if err != nil {
		a.writeErr(w, r, err, historyMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, h)
}

func (a *API) deleteHistory(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, historyMessages)
		return
	}

	actor := actorFrom(r)
	err = a.inTx(r.Context(), func(q db.DBTX) error {
		repo := storage.NewHistoryRepository(q)
		current, err := repo.Get(r.Context(), id)
		if err != nil {
			return err
		}
		if !canWriteHistory(actor, current) {
			return forbidden("only the authoring physician or an administrator may delete this record")
		}
		if err := repo.Delete(r.Context(), id); err != nil {
			return err
		}
		return audit(r.Context(), q, actor, model.ActionDelete, "medical_histories", strconv.Itoa(id), map[string]string{
			"patient_id": current.PatientID,
		})
	})
	if err != nil {
		a.writeErr(w, r, err, historyMessages)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
