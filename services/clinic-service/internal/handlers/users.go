package handlers

import (
	"context"
	"net/http"
	"net/mail"
	"strings"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
	"github.com/healpoint/healpoint/services/clinic-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLen = 8

var userMessages = conflictMessages{
	conflict: "email already registered",
	notFound: "user not found",
	badRef:   "role_id or status_id does not exist",
}

// userRequest is the body of user create and update calls. Nil fields are left unchanged on update.
type userRequest struct {
	FirstName      *string `json:"first_name"`
	LastName       *string `json:"last_name"`
	Email          *string `json:"email"`
	Password       *string `json:"password"`
	Phone          *string `json:"phone"`
	DocumentNumber *string `json:"document_number"`
	Specialty      *string `json:"specialty"`
	RoleID         *int    `json:"role_id"`
	StatusID       *int    `json:"status_id"`
}

// apply copies the set fields onto u and validates the result.
func (req userRequest) apply(u *model.User) error {
	if req.FirstName != nil {
		u.FirstName = str(req.FirstName)
	}
	if req.LastName != nil {
		u.LastName = str(req.LastName)
	}
	if req.Email != nil {
		u.Email = strings.ToLower(str(req.Email))
	}
	if req.Phone != nil {
		u.Phone = str(req.Phone)
	}
	if req.DocumentNumber != nil {
		u.DocumentNumber = str(req.DocumentNumber)
	}
	if req.Specialty != nil {
		u.Specialty = str(req.Specialty)
	}
	if req.RoleID != nil {
		u.RoleID = *req.RoleID
	}
	if req.StatusID != nil {
		u.StatusID = *req.StatusID
	}

	switch {
	case u.FirstName == "":
		return badRequest("first_name is required")
	case u.LastName == "":
		return badRequest("last_name is required")
	case u.Email == "":
		return badRequest("email is required")
	case u.RoleID == 0:
		return badRequest("role_id is required")
	}
	if addr, err := mail.ParseAddress(u.Email); err != nil || addr.Address != u.Email {
		return badRequest("email is invalid")
	}
	if req.Password != nil && len(*req.Password) < minPasswordLen {
		return badRequest("password must be at least 8 characters")
	}
	return nil
}

func (a *API) hashPassword(password string) (string, error) {
	cost := a.cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func userDetails(u model.User) map[string]any {
	return map[string]any{"email": u.Email, "role_id": u.RoleID, "status_id": u.StatusID}
}

func (a *API) listUsers(w http.ResponseWriter, r *http.Request) {
	p, ok := parseListing(w, r, storage.UserListing)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := storage.UserFilter{
		Role:   strings.ToUpper(strings.TrimSpace(q.Get("role"))),
		Status: strings.ToUpper(strings.TrimSpace(q.Get("status"))),
	}
	items, total, err := storage.NewUserRepository(a.db).List(r.Context(), f, p)
	if err != nil {
		a.writeErr(w, r, err, userMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listing.NewPage(items, total, p))
}

// listPhysicians serves the booking screens: active users with role MEDICO.
func (a *API) listPhysicians(w http.ResponseWriter, r *http.Request) {
	p, ok := parseListing(w, r, storage.UserListing)
	if !ok {
		return
	}
	f := storage.UserFilter{Role: model.RolePhysician, Status: model.StatusActive}
	items, total, err := storage.NewUserRepository(a.db).List(r.Context(), f, p)
	if err != nil {
		a.writeErr(w, r, err, userMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listing.NewPage(items, total, p))
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		a.writeErr(w, r, err, userMessages)
		return
	}
	actor := actorFrom(r)
	if !actor.IsAdmin() && actor.ID != id {
		a.writeErr(w, r, forbidden("forbidden"), userMessages)
		return
	}
	u, err := storage.NewUserRepository(a.db).Get(r.Context(), id)
	if err != nil {
		a.writeErr(w, r, err, userMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (a *API) getMe(w http.ResponseWriter, r *http.Request) {
	u, err := storage.NewUserRepository(a.db).Get(r.Context(), actorFrom(r).ID)
	if err != nil {
		a.writeErr(w, r, err, userMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (a *API) createUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Password == nil {
		a.writeErr(w, r, badRequest("password is required"), userMessages)
		return
	}
	u := model.User{StatusID: model.StatusIDs[model.StatusActive]}
	if err := req.apply(&u); err != nil {
		a.writeErr(w, r, err, userMessages)
		return
	}
	hash, err := a.hashPassword(*req.Password)
	if err != nil {
		a.writeErr(w, r, err, userMessages)
		return
	}
	u.PasswordHash = hash

	actor := actorFrom(r)
	err = a.inTx(r.Context(), func(q db.DBTX) error {
		repo := storage.NewUserRepository(q)
		if err := repo.Create(r.Context(), &u); err != nil {
			return err
		}
		created, err := repo.Get(r.Context(), u.ID)
		if err != nil {
			return err
		}
		u = created
		return audit(r.Context(), q, actor, model.ActionCreate, "users", u.ID, userDetails(u))
	})
	if err != nil {
		a.writeErr(w, r, err, userMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, u)
}

// saveUser applies req to user id. Callers editing themselves cannot change role or status.
func (a *API) saveUser(ctx context.Context, actor model.Actor, id string, req userRequest) (model.User, error) {
	var out model.User
	err := a.inTx(ctx, func(q db.DBTX) error {
		repo := storage.NewUserRepository(q)
		current, err := repo.Get(ctx, id)
		if err != nil {
			return err
		}
		next := current
		next.PasswordHash = ""
		if err := req.apply(&next); err != nil {
			return err
		}
		if actor.ID == id && (next.RoleID != current.RoleID || next.StatusID != current.StatusID) {
			return forbidden("cannot change your own role or status")
		}
		if req.Password != nil {
			if next.PasswordHash, err = a.hashPassword(*req.Password); err != nil {
				return err
			}
		}
		if err := repo.Update(ctx, &next); err != nil {
			return err
		}
		if out, err = repo.Get(ctx, id); err != nil {
			return err
		}
		details := userDetails(out)
		details["password_changed"] = req.Password != nil
		return audit(ctx, q, actor, model.ActionUpdate, "users", id, details)
	})
	return out, err
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		a.writeErr(w, r, err, userMessages)
		return
	}
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	u, err := a.saveUser(r.Context(), actorFrom(r), id, req)
	if err != nil {
		a.writeErr(w, r, err, userMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (a *API) updateMe(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decode(w, r, &req) {
		return
	}
	actor := actorFrom(r)
	u, err := a.saveUser(r.Context(), actor, actor.ID, req)
	if err != nil {
		a.writeErr(w, r, err, userMessages)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, u)
}

func (a *API) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		a.writeErr(w, r, err, userMessages)
		return
	}
	actor := actorFrom(r)
	if actor.ID == id {
		a.writeErr(w, r, conflict("cannot delete your own account"), userMessages)
		return
	}
	err = a.inTx(r.Context(), func(q db.DBTX) error {
		repo := storage.NewUserRepository(q)
		current, err := repo.Get(r.Context(), id)
		if err != nil {
			return err
		}
		if err := repo.Delete(r.Context(), id); err != nil {
			return err
		}
		return audit(r.Context(), q, actor, model.ActionDelete, "users", id, userDetails(current))
	})
	if err != nil {
		a.writeErr(w, r, err, conflictMessages{
			conflict: "user has related records; set status INACTIVO instead",
			notFound: "user not found",
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
