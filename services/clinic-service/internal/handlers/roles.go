package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
	"github.com/healpoint/healpoint/services/clinic-service/internal/storage"
)

var roleMessages = conflictMessages{
	conflict: "role name already exists",
	notFound: "role not found",
	badRef:   "status_id does not reference an existing status",
}

type roleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	StatusID    int    `json:"status_id"`
}

func (req *roleRequest) normalize() error {
	req.Name = strings.ToUpper(strings.TrimSpace(req.Name))
	req.Description = strings.TrimSpace(req.Description)
	if req.Name == "" {
		return badRequest("name is required")
	}
	if len(req.Name) > 50 {
		return badRequest("name must be at most 50 characters")
	}
	if req.StatusID == 0 {
		req.StatusID = model.StatusIDs[model.StatusActive]
	}
	return nil
}

func (a *API) listRoles(w http.ResponseWriter, r *http.Request) {
	p, ok := parseListing(w, r, storage.RoleListing)
	if !ok {
		return
	}
	f := storage.RoleFilter{Status: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status")))}
	var page listing.Page[model.Role]
	err := a.cache.Fetch(r.Context(), rolesNS, listingKey(p, f.Status), &page, func(ctx context.Context) (any, error) {
		items, total, err := storage.NewRoleRepository(a.db).List(ctx, f, p)
		if err != nil {
			return nil, err
		}
		return listing.NewPage(items, total, p), nil
	})
	if err != nil {
		a.writeErr(w, r, err, roleMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, page)
}

func (a *API) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, roleMessages)
		return
	}
	ro, err := storage.NewRoleRepository(a.db).Get(r.Context(), id)
	if err != nil {
		a.writeErr(w, r, err, roleMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, ro)
}

func (a *API) createRole(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.normalize(); err != nil {
		a.writeErr(w, r, err, roleMessages)
		return
	}

	actor := actorFrom(r)
	var ro model.Role
	err := a.inTx(r.Context(), func(q db.DBTX) error {
		repo := storage.NewRoleRepository(q)
		created := model.Role{Name: req.Name, Description: req.Description, StatusID: req.StatusID}
		if err := repo.Create(r.Context(), &created); err != nil {
			return err
		}
		var err error
		if ro, err = repo.Get(r.Context(), created.ID); err != nil {
			return err
		}
		return audit(r.Context(), q, actor, model.ActionCreate, "roles", strconv.Itoa(ro.ID), req)
	})
	if err != nil {
		a.writeErr(w, r, err, roleMessages)
		return
	}
	a.cache.Invalidate(r.Context(), rolesNS)
	httpx.WriteJSON(w, http.StatusCreated, ro)
}

func (a *API) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, roleMessages)
		return
	}
	var req roleRequest
	if !decode(w, r, &req) {
		return
	}
	if err := req.normalize(); err != nil {
		a.writeErr(w, r, err, roleMessages)
		return
	}

	actor := actorFrom(r)
	var ro model.Role
	err = a.inTx(r.Context(), func(q db.DBTX) error {
		repo := storage.NewRoleRepository(q)
		current, err := repo.Get(r.Context(), id)
		if err != nil {
			return err
		}
		if model.IsBuiltinRole(current.Name) && current.Name != req.Name {
			return conflict("built-in role cannot be renamed")
		}
		next := current
		next.Name, next.Description, next.StatusID = req.Name, req.Description, req.StatusID
		if err := repo.Update(r.Context(), &next); err != nil {
			return err
		}
		if ro, err = repo.Get(r.Context(), id); err != nil {
			return err
		}
		return audit(r.Context(), q, actor, model.ActionUpdate, "roles", strconv.Itoa(id), map[string]any{
			"before": roleRequest{Name: current.Name, Description: current.Description, StatusID: current.StatusID},
			"after":  req,
		})
	})
	if err != nil {
		a.writeErr(w, r, err, roleMessages)
		return
	}
	a.cache.Invalidate(r.Context(), rolesNS)
	httpx.WriteJSON(w, http.StatusOK, ro)
}

func (a *API) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathInt(r, "id")
	if err != nil {
		a.writeErr(w, r, err, roleMessages)
		return
	}

	actor := actorFrom(r)
	err = a.inTx(r.Context(), func(q db.DBTX) error {
		repo := storage.NewRoleRepository(q)
		current, err := repo.Get(r.Context(), id)
		if err != nil {
			return err
		}
		if model.IsBuiltinRole(current.Name) {
			return conflict("built-in role cannot be deleted")
		}
		if err := repo.Delete(r.Context(), id); err != nil {
			return err
		}
		return audit(r.Context(), q, actor, model.ActionDelete, "roles", strconv.Itoa(id), map[string]string{"name": current.Name})
	})
	if err != nil {
		a.writeErr(w, r, err, conflictMessages{conflict: "role is assigned to users", notFound: "role not found"})
		return
	}
	a.cache.Invalidate(r.Context(), rolesNS)
	w.WriteHeader(http.StatusNoContent)
}
