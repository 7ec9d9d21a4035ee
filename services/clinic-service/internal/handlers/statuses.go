package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
	"github.com/healpoint/healpoint/services/clinic-service/internal/storage"
)

const (
	statusesNS = "statuses"
	rolesNS    = "roles"
)

var statusMessages = conflictMessages{
	conflict: "status name already exists or status is in use",
	notFound: "status not found",
}

type statusRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (req *statusRequest) normalize() error {
	req.Name = strings.ToUpper(strings.TrimSpace(req.Name))
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return badRequest("name is required")
	}
	if len(req.Name) > 50 {
		return badRequest("name must be at most 50 characters")
	}
	return nil
}

func listingKey(p listing.Params, extra ...string) string {
	return fmt.Sprintf("%s|%d|%d|%s|%s|%s", p.Q, p.Page, p.PageSize, p.Sort, p.Order, strings.Join(extra, "|"))
}

func (a *API) listStatuses(w http.ResponseWriter, r *http.Request) {
	p, ok := parseListing(w, r, storage.StatusListing)
	if !ok {
		return
	}
	var page listing.Page[model.Status]
	err := a.cache.Fetch(r.Context(), statusesNS, listingKey(p), &page, func(ctx context.Context) (any, error) {
		items, total, err := storage.NewStatusRepository(a.db).List(ctx, p)
		if err != nil {
			return nil, err
		}
		return listing.NewPage(items, total, p), nil
	})
	if err != nil {
		a.writeErr(w, r, err, statusMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (a *API) getStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, statusMessages)
		return
	}
	s, err := storage.NewStatusRepository(a.db).Get(r.Context(), id)
	if err != nil {
		a.writeErr(w, r, err, statusMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, s)
}

func (a *API) createStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.normalize(); err != nil {
		a.writeErr(w, r, err, statusMessages)
		return
	}

	actor := actorFrom(r)
	s := model.Status{Name: req.Name, Description: req.Description}
	err := a.inTx(r.Context(), func(q db.DBTX) error {
		if err := storage.NewStatusRepository(q).Create(r.Context(), &s); err != nil {
			return err
		}
		return audit(r.Context(), q, actor, model.ActionCreate, "statuses", strconv.Itoa(s.ID), req)
	})
	if err != nil {
		a.writeErr(w, r, err, conflictMessages{conflict: "status name already exists"})
		return
	}
	a.cache.Invalidate(r.Context(), statusesNS)
	httpx.WriteJSON(w, http.StatusCreated, s)
}

func (a *API) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, statusMessages)
		return
	}
	var req statusRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.normalize(); err != nil {
		a.writeErr(w, r, err, statusMessages)
		return
	}

	actor := actorFrom(r)
	var s model.Status
	err = a.inTx(r.Context(), func(q db.DBTX) error {
		repo := storage.NewStatusRepository(q)
		current, err := repo.Get(r.Context(), id)
		if err != nil {
			return err
		}
		if model.IsBuiltinStatus(current.Name) && current.Name != req.Name {
			return conflict("built-in status cannot be renamed")
		}
		s = current
		s.Name, s.Description = req.Name, req.Description
		if err := repo.Update(r.Context(), &s); err != nil {
			return err
		}
		return audit(r.Context(), q, actor, model.ActionUpdate, "statuses", strconv.Itoa(id), map[string]any{
			"before": statusRequest{Name: current.Name, Description: current.Description},
			"after":  req,
		})
	})
	if err != nil {
		a.writeErr(w, r, err, conflictMessages{conflict: "status name already exists", notFound: "status not found"})
		return
	}
	a.cache.Invalidate(r.Context(), statusesNS)
	a.cache.Invalidate(r.Context(), rolesNS)
	httpx.WriteJSON(w, http.StatusOK, s)
}

func (a *API) deleteStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, statusMessages)
		return
	}

	actor := actorFrom(r)
	err = a.inTx(r.Context(), func(q db.DBTX) error {
		repo := storage.NewStatusRepository(q)
		current, err := repo.Get(r.Context(), id)
		if err != nil {
			return err
		}
		if model.IsBuiltinStatus(current.Name) {
			return conflict("built-in status cannot be deleted")
		}
		if err := repo.Delete(r.Context(), id); err != nil {
			return err
		}
		return audit(r.Context(), q, actor, model.ActionDelete, "statuses", strconv.Itoa(id), map[string]string{"name": current.Name})
	})
	if err != nil {
		a.writeErr(w, r, err, conflictMessages{conflict: "status is in use", notFound: "status not found"})
		return
	}
	a.cache.Invalidate(r.Context(), statusesNS)
	w.WriteHeader(http.StatusNoContent)
}
