// Package audit writes authentication facts into the shared monitoring table
// read by the clinic service.
package audit

import (
	"context"
	"encoding/json"

	"github.com/healpoint/healpoint/libs/db"
)

// Actions recorded by the auth service. They match the clinic monitoring filter values.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionLogin  = "LOGIN"
	ActionLogout = "LOGOUT"
)

type Entry struct {
	Action   string
	Table    string
	RecordID string
	ActorID  string
	Details  map[string]any
}

type Repository struct {
	q db.DBTX
}

func NewRepository(q db.DBTX) *Repository {
	return &Repository{q: q}
}

func (r *Repository) Record(ctx context.Context, e Entry) error {
	if e.Details == nil {
		e.Details = map[string]any{}
	}
	raw, err := json.Marshal(e.Details)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO monitoring_records (action, table_name, record_id, actor_id, details)
		VALUES ($1, $2, $3, NULLIF($4, '')::uuid, $5)
	`, e.Action, e.Table, e.RecordID, e.ActorID, raw)
	return err
}
