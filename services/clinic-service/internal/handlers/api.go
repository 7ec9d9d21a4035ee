// Package handlers implements the clinic REST API under /api/v1.
package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/booking"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
	"github.com/healpoint/healpoint/services/clinic-service/internal/refcache"
	"github.com/healpoint/healpoint/services/clinic-service/internal/schedule"
	"github.com/healpoint/healpoint/services/clinic-service/internal/storage"
)

// BookingService is the appointment workflow consumed by the appointment and slot handlers.
type BookingService interface {
	Slots(ctx context.Context, physicianID, date string) ([]schedule.Slot, error)
	List(ctx context.Context, actor model.Actor, f storage.AppointmentFilter, p listing.Params) ([]model.Appointment, int, error)
	Get(ctx context.Context, actor model.Actor, id int) (model.Appointment, error)
	Book(ctx context.Context, actor model.Actor, in booking.BookInput) (model.Appointment, error)
	Update(ctx context.Context, actor model.Actor, id int, in booking.UpdateInput) (model.Appointment, error)
	Transition(ctx context.Context, actor model.Actor, id int, action schedule.Action, reason string) (model.Appointment, error)
	Delete(ctx context.Context, actor model.Actor, id int) error
}

type Options struct {
	Cache    *refcache.Cache
	Location *time.Location

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

type API struct {
	db      db.Conn
	booking BookingService
	cache   *refcache.Cache
	logger  *slog.Logger
	loc     *time.Location
	cost    int
	now     func() time.Time
}

func New(conn db.Conn, svc BookingService, logger *slog.Logger, opts Options) *API {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &API{
		db:      conn,
		booking: svc,
		cache:   opts.Cache,
		logger:  logger,
		loc:     opts.Location,
		cost:    opts.BcryptCost,
		now:     time.Now,
	}
}

func (a *API) today() string {
	return a.now().In(a.loc).Format(schedule.DateLayout)
}

// inTx runs fn in a transaction on the clinic database.
func (a *API) inTx(ctx context.Context, fn func(q db.DBTX) error) error {
	return db.NewTxRunner(a.db).InTx(ctx, fn)
}

// audit writes the monitoring record for a mutation inside q.
func audit(ctx context.Context, q db.DBTX, actor model.Actor, action, table, recordID string, details any) error {
	return storage.NewMonitoringRepository(q).Record(ctx, storage.Entry{
		Action:   action,
		Table:    table,
		RecordID: recordID,
		ActorID:  actor.ID,
		Details:  details,
	})
}

func actorFrom(r *http.Request) model.Actor {
	id, _ := httpx.IdentityFromRequest(r)
	return model.Actor{ID: id.UserID, Role: id.Role}
}

// badRequest is a handler-level validation failure.
type badRequest string

func (e badRequest) Error() string { return string(e) }

func pathInt(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(r.PathValue(name))
	if err != nil || n < 1 {
		return 0, badRequest(name + " must be a positive integer")
	}
	return n, nil
}

func pathUUID(r *http.Request, name string) (string, error) {
	v := r.PathValue(name)
	if _, err := uuid.Parse(v); err != nil {
		return "", badRequest(name + " must be a valid id")
	}
	return v, nil
}

// queryUUID returns the optional uuid query parameter name.
func queryUUID(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return "", nil
	}
	if _, err := uuid.Parse(v); err != nil {
		return "", badRequest(name + " must be a valid id")
	}
	return v, nil
}

func queryDate(r *http.Request, name string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return "", nil
	}
	d, err := schedule.ParseDate(v)
	if err != nil {
		return "", badRequest(name + " must be YYYY-MM-DD")
	}
	return d.Format(schedule.DateLayout), nil
}

func validUUID(field, v string) error {
	if _, err := uuid.Parse(v); err != nil {
		return badRequest(field + " must be a valid id")
	}
	return nil
}

// conflictMessages overrides the generic 409 text for one handler.
type conflictMessages struct {
	conflict string
	notFound string
	badRef   string
}

// writeErr maps domain and storage errors onto HTTP responses.
func (a *API) writeErr(w http.ResponseWriter, r *http.Request, err error, msgs conflictMessages) {
	var br badRequest
	var ve *booking.ValidationError
	var cf conflict
	var fb forbidden
	switch {
	case errors.As(err, &br):
		httpx.WriteError(w, http.StatusBadRequest, br.Error())
	case errors.As(err, &ve):
		httpx.WriteError(w, http.StatusBadRequest, ve.Msg)
	case errors.Is(err, storage.ErrNotFound):
		httpx.WriteError(w, http.StatusNotFound, orDefault(msgs.notFound, "not found"))
	case errors.Is(err, storage.ErrConflict):
		httpx.WriteError(w, http.StatusConflict, orDefault(msgs.conflict, "conflict"))
	case errors.Is(err, storage.ErrInvalidReference):
		httpx.WriteError(w, http.StatusBadRequest, orDefault(msgs.badRef, "referenced record does not exist"))
	case errors.Is(err, booking.ErrForbidden), errors.Is(err, schedule.ErrNotPermitted):
		httpx.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, schedule.ErrInvalidTransition),
		errors.Is(err, schedule.ErrSlotTaken),
		errors.Is(err, booking.ErrNotEditable):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, schedule.ErrOutsideAvailability):
		httpx.WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &cf):
		httpx.WriteError(w, http.StatusConflict, cf.Error())
	case errors.As(err, &fb):
		httpx.WriteError(w, http.StatusForbidden, fb.Error())
	default:
		a.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"err", err,
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}

// conflict and forbidden carry handler-specific 409 and 403 messages.
type (
	conflict  string
	forbidden string
)

func (e conflict) Error() string  { return string(e) }
func (e forbidden) Error() string { return string(e) }

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseListing(w http.ResponseWriter, r *http.Request, spec listing.Spec) (listing.Params, bool) {
	p, err := listing.Parse(r.URL.Query(), spec)
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return listing.Params{}, false
	}
	return p, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := httpx.DecodeJSON(r, v); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func str(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
