package storage

import (
	"context"
	"encoding/json"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
)

var MonitoringListing = listing.Spec{
	Sort: map[string]string{
		"created_at": "m.created_at",
		"action":     "m.action",
		"table":      "m.table_name",
	},
	DefaultSort:  "created_at",
	DefaultOrder: "desc",
}

type MonitoringRepository struct {
	q db.DBTX
}

func NewMonitoringRepository(q db.DBTX) *MonitoringRepository {
	return &MonitoringRepository{q: q}
}

// Entry is one audit fact to record.
type Entry struct {
	Action   string
	Table    string
	RecordID string
	ActorID  string
	Details  any
}

func (r *MonitoringRepository) Record(ctx context.Context, e Entry) error {
	details := []byte(`{}`)
	if e.Details != nil {
		b, err := json.Marshal(e.Details)
		if err != nil {
			return err
		}
		details = b
	}
	var actor *string
	if e.ActorID != "" {
		actor = &e.ActorID
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO monitoring_records (action, table_name, record_id, actor_id, details)
		VALUES ($1, $2, $3, $4::uuid, $5)
	`, e.Action, e.Table, e.RecordID, actor, details)
	return err
}

const monitoringFrom = `
	FROM monitoring_records m
	LEFT JOIN users u ON u.id = m.actor_id`

const monitoringSelect = `
	SELECT m.id, m.action, m.table_name, m.record_id, m.actor_id::text,
		COALESCE(u.first_name || ' ' || u.last_name, ''), m.details, m.created_at` + monitoringFrom

type MonitoringFilter struct {
	Action   string
	Table    string
	ActorID  string
	DateFrom string
	DateTo   string
}

func scanMonitoring(row interface{ Scan(...any) error }) (model.MonitoringRecord, error) {
	var m model.MonitoringRecord
	var details []byte
	err := row.Scan(&m.ID, &m.Action, &m.Table, &m.RecordID, &m.ActorID, &m.ActorName, &details, &m.CreatedAt)
	m.Details = json.RawMessage(details)
	return m, err
}

func (r *MonitoringRepository) List(ctx context.Context, f MonitoringFilter, p listing.Params) ([]model.MonitoringRecord, int, error) {
	var w listing.Where
	w.Search(p.Q, "m.table_name", "m.record_id", "u.first_name", "u.last_name")
	w.Eq("m.action", f.Action)
	w.Eq("m.table_name", f.Table)
	if f.ActorID != "" {
		w.And("m.actor_id = " + w.Arg(f.ActorID) + "::uuid")
	}
	if f.DateFrom != "" {
		w.And("m.created_at >= " + w.Arg(f.DateFrom) + "::date")
	}
	if f.DateTo != "" {
		w.And("m.created_at < " + w.Arg(f.DateTo) + "::date + 1")
	}

	var total int
	if err := r.q.QueryRow(ctx, `SELECT count(*)`+monitoringFrom+w.SQL(), w.Args()...).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.q.Query(ctx, monitoringSelect+w.SQL()+p.OrderBy(MonitoringListing, "m.id")+w.LimitOffset(p), w.Args()...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.MonitoringRecord
	for rows.Next() {
		m, err := scanMonitoring(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (r *MonitoringRepository) Recent(ctx context.Context, limit int) ([]model.MonitoringRecord, error) {
	rows, err := r.q.Query(ctx, monitoringSelect+` ORDER BY m.created_at DESC, m.id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.MonitoringRecord
	for rows.Next() {
		m, err := scanMonitoring(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
