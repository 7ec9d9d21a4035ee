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

var availabilityMessages = conflictMessages{
	notFound: "availability not found",
	badRef:   "physician_id does not reference an existing user",
}

type availabilityRequest struct {
	PhysicianID string `json:"physician_id"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
}

// window validates req into a, which keeps its physician and id.
func (req availabilityRequest) window(a *model.Availability) error {
	d, err := schedule.ParseDate(req.Date)
	if err != nil {
		return badRequest("date must be YYYY-MM-DD")
	}
	start, err := schedule.ParseTimeOfDay(req.StartTime)
	if err != nil {
		return badRequest("start_time must be HH:MM")
	}
	end, err := schedule.ParseTimeOfDay(req.EndTime)
	if err != nil {
		return badRequest("end_time must be HH:MM")
	}
	if end <= start {
		return badRequest("end_time must be after start_time")
	}
	a.Date = d.Format(schedule.DateLayout)
	a.StartTime = start.String()
	a.EndTime = end.String()
	return nil
}

// ownsWindow reports whether actor may change availability of physicianID.
func ownsWindow(actor model.Actor, physicianID string) bool {
	return actor.IsAdmin() || (actor.IsPhysician() && actor.ID == physicianID)
}

func (a *API) listAvailabilities(w http.ResponseWriter, r *http.Request) {
	p, ok := parseListing(w, r, storage.AvailabilityListing)
	if !ok {
		return
	}
	var f storage.AvailabilityFilter
	var err error
	if f.PhysicianID, err = queryUUID(r, "physician_id"); err == nil {
		if f.DateFrom, err = queryDate(r, "date_from"); err == nil {
			f.DateTo, err = queryDate(r, "date_to")
		}
	}
	if err != nil {
		a.writeErr(w, r, err, availabilityMessages)
		return
	}
	items, total, err := storage.NewAvailabilityRepository(a.db).List(r.Context(), f, p)
	if err != nil {
		a.writeErr(w, r, err, availabilityMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listing.NewPage(items, total, p))
}

func (a *API) getAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, availabilityMessages)
		return
	}
	av, err := storage.NewAvailabilityRepository(a.db).Get(r.Context(), id)
	if err != nil {
		a.writeErr(w, r, err, availabilityMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, av)
}

func requirePhysician(ctx context.Context, q db.DBTX, id string) error {
	u, err := storage.NewUserRepository(q).Get(ctx, id)
	if storage.IsNotFound(err) {
		return badRequest("physician_id does not reference an existing user")
	}
	if err != nil {
		return err
	}
	if u.Role != model.RolePhysician {
		return badRequest("physician_id must reference a physician")
	}
	return nil
}

func (a *API) createAvailability(w http.ResponseWriter, r *http.Request) {
	var req availabilityRequest
	if !decode(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	if actor.IsPhysician() {
		req.PhysicianID = actor.ID
	}
	if err := validUUID("physician_id", req.PhysicianID); err != nil {
		a.writeErr(w, r, err, availabilityMessages)
		return
	}
	av := model.Availability{PhysicianID: req.PhysicianID}
	if err := req.window(&av); err != nil {
		a.writeErr(w, r, err, availabilityMessages)
		return
	}

	err := a.inTx(r.Context(), func(q db.DBTX) error {
		if err := requirePhysician(r.Context(), q, av.PhysicianID); err != nil {
			return err
		}
		repo := storage.NewAvailabilityRepository(q)
		if err := repo.Create(r.Context(), &av); err != nil {
			return err
		}
		created, err := repo.Get(r.Context(), av.ID)
		if err != nil {
			return err
		}
		av = created
		return audit(r.Context(), q, actor, model.ActionCreate, "availabilities", strconv.Itoa(av.ID), req)
	})
	if err != nil {
		a.writeErr(w, r, err, availabilityMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, av)
}

func (a *API) updateAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, availabilityMessages)
		return
	}
	var req availabilityRequest
	if !decode(w, r, &req) {
		return
	}

	actor := actorFrom(r)
	var av model.Availability
	err = a.inTx(r.Context(), func(q db.DBTX) error {
		repo := storage.NewAvailabilityRepository(q)
		current, err := repo.Get(r.Context(), id)
		if err != nil {
			return err
		}
		if !ownsWindow(actor, current.PhysicianID) {
			return storage.ErrNotFound
		}
		next := current
		if err := req.window(&next); err != nil {
			return err
		}
		if err := repo.Update(r.Context(), &next); err != nil {
			return err
		}
		av = next
		return audit(r.Context(), q, actor, model.ActionUpdate, "availabilities", strconv.Itoa(id), map[string]any{
			"before": availabilityRequest{Date: current.Date, StartTime: current.StartTime, EndTime: current.EndTime},
			"after":  availabilityRequest{Date: next.Date, StartTime: next.StartTime, EndTime: next.EndTime},
		})
	})
	if err != nil {
		a.writeErr(w, r, err, availabilityMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, av)
}

// deleteAvailability leaves appointments inside the window untouched.
func (a *API) deleteAvailability(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, availabilityMessages)
		return
	}

	actor := actorFrom(r)
	err = a.inTx(r.Context(), func(q db.DBTX) error {
		repo := storage.NewAvailabilityRepository(q)
		current, err := repo.Get(r.Context(), id)
		if err != nil {
			return err
		}
		if !ownsWindow(actor, current.PhysicianID) {
			return storage.ErrNotFound
		}
		if err := repo.Delete(r.Context(), id); err != nil {
			return err
		}
		return audit(r.Context(), q, actor, model.ActionDelete, "availabilities", strconv.Itoa(id), map[string]string{
			"physician_id": current.PhysicianID, "date": current.Date,
		})
	})
	if err != nil {
		a.writeErr(w, r, err, availabilityMessages)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
