package booking

import (
	"context"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
	"github.com/healpoint/healpoint/services/clinic-service/internal/outbox"
	"github.com/healpoint/healpoint/services/clinic-service/internal/storage"
	"github.com/jackc/pgx/v5"
)

type AppointmentStore interface {
	List(ctx context.Context, f storage.AppointmentFilter, p listing.Params) ([]model.Appointment, int, error)
	Get(ctx context.Context, id int) (model.Appointment, error)
	GetForUpdate(ctx context.Context, id int) (model.Appointment, error)
	OccupiedTimes(ctx context.Context, physicianID, date string, excludeID int) ([]string, error)
	Create(ctx context.Context, a *model.Appointment) error
	Update(ctx context.Context, a *model.Appointment) error
	SetStatus(ctx context.Context, a *model.Appointment) error
	Delete(ctx context.Context, id int) error
}

type AvailabilityStore interface {
	ForDate(ctx context.Context, physicianID, date string) ([]model.Availability, error)
}

type UserStore interface {
	Get(ctx context.Context, id string) (model.User, error)
}

type OutboxStore interface {
	Insert(ctx context.Context, evt outbox.Event) error
}

type MonitoringStore interface {
	Record(ctx context.Context, e storage.Entry) error
}

// Tx is the set of stores bound to one connection or transaction.
type Tx interface {
	Appointments() AppointmentStore
	Availability() AvailabilityStore
	Users() UserStore
	Outbox() OutboxStore
	Monitoring() MonitoringStore
}

type Store interface {
	// Read returns stores bound to the pool, outside any transaction.
	Read() Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// PostgresStore backs Store with the clinic repositories.
type PostgresStore struct {
	conn db.Conn
}

func NewPostgresStore(conn db.Conn) *PostgresStore {
	return &PostgresStore{conn: conn}
}

func (s *PostgresStore) Read() Tx {
	return pgTx{q: s.conn}
}

func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return db.InTx(ctx, s.conn, func(tx pgx.Tx) error {
		return fn(pgTx{q: tx})
	})
}

type pgTx struct {
	q db.DBTX
}

func (t pgTx) Appointments() AppointmentStore  { return storage.NewAppointmentRepository(t.q) }
func (t pgTx) Availability() AvailabilityStore { return storage.NewAvailabilityRepository(t.q) }
func (t pgTx) Users() UserStore                { return storage.NewUserRepository(t.q) }
func (t pgTx) Outbox() OutboxStore             { return outbox.NewRepository(t.q) }
func (t pgTx) Monitoring() MonitoringStore     { return storage.NewMonitoringRepository(t.q) }
