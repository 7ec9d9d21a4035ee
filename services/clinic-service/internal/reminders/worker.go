// Package reminders enqueues a reminder event for confirmed appointments that
// start within the configured lead time.
package reminders

import (
	"context"
	"log/slog"
	"time"

	"github.com/healpoint/healpoint/libs/db"
	"github.com/healpoint/healpoint/services/clinic-service/internal/outbox"
	"github.com/healpoint/healpoint/services/clinic-service/internal/storage"
)

const wallClock = "2006-01-02 15:04"

type Worker struct {
	conn      db.Conn
	logger    *slog.Logger
	interval  time.Duration
	lead      time.Duration
	batchSize int
	loc       *time.Location
	now       func() time.Time
}

type Config struct {
	Interval  time.Duration
	Lead      time.Duration
	BatchSize int
	Location  *time.Location
}

func NewWorker(conn db.Conn, logger *slog.Logger, cfg Config) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Lead <= 0 {
		cfg.Lead = 24 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Worker{
		conn:      conn,
		logger:    logger,
		interval:  cfg.Interval,
		lead:      cfg.Lead,
		batchSize: cfg.BatchSize,
		loc:       cfg.Location,
		now:       time.Now,
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.ProcessBatch(ctx)
			if err != nil {
				w.logger.Error("reminder batch failed", "err", err)
				continue
			}
			if n > 0 {
				w.logger.Info("reminders enqueued", "count", n)
			}
		}
	}
}

// ProcessBatch writes one outbox event per due appointment and marks them
// reminded in the same transaction. Rows locked by another replica are skipped.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	now := w.now()
	from := now.In(w.loc).Format(wallClock)
	to := now.Add(w.lead).In(w.loc).Format(wallClock)

	enqueued := 0
	err := db.NewTxRunner(w.conn).InTx(ctx, func(q db.DBTX) error {
		appts := storage.NewAppointmentRepository(q)
		due, err := appts.DueReminders(ctx, from, to, w.batchSize)
		if err != nil {
			return err
		}
		if len(due) == 0 {
			return nil
		}

		events := outbox.NewRepository(q)
		ids := make([]int, 0, len(due))
		for _, a := range due {
			evt, err := outbox.NewAppointmentEvent(outbox.AppointmentReminder, a, "", now)
			if err != nil {
				return err
			}
			if err := events.Insert(ctx, evt); err != nil {
				return err
			}
			ids = append(ids, a.ID)
		}
		if err := appts.MarkReminded(ctx, ids); err != nil {
			return err
		}
		enqueued = len(ids)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return enqueued, nil
}
