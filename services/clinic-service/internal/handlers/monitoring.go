package handlers

import (
	"net/http"
	"slices"
	"strings"

	"github.com/healpoint/healpoint/libs/httpx"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
	"github.com/healpoint/healpoint/services/clinic-service/internal/storage"
)

func (a *API) listMonitoring(w http.ResponseWriter, r *http.Request) {
	p, ok := parseListing(w, r, storage.MonitoringListing)
	if !ok {
		return
	}
	q := r.URL.Query()
	f := storage.MonitoringFilter{
		Action: strings.ToUpper(strings.TrimSpace(q.Get("action"))),
		Table:  strings.TrimSpace(q.Get("table")),
	}
	if f.Action != "" && !slices.Contains(model.MonitoringActions, f.Action) {
		httpx.WriteError(w, http.StatusBadRequest, "action must be one of "+strings.Join(model.MonitoringActions, ", "))
		return
	}
	var err error
	if f.ActorID, err = queryUUID(r, "actor_id"); err == nil {
		if f.DateFrom, err = queryDate(r, "date_from"); err == nil {
			f.DateTo, err = queryDate(r, "date_to")
		}
	}
	if err != nil {
		a.writeErr(w, r, err, conflictMessages{})
		return
	}

	items, total, err := storage.NewMonitoringRepository(a.db).List(r.Context(), f, p)
	if err != nil {
		a.writeErr(w, r, err, conflictMessages{})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, listing.NewPage(items, total, p))
}
