// Package booking owns appointment scheduling: slot generation against
// availability, booking, rescheduling and status transitions.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
	"github.com/healpoint/healpoint/services/clinic-service/internal/outbox"
	"github.com/healpoint/healpoint/services/clinic-service/internal/schedule"
	"github.com/healpoint/healpoint/services/clinic-service/internal/storage"
)

var (
	ErrForbidden   = errors.New("forbidden")
	ErrNotEditable = errors.New("only pending appointments can be edited")
)

// ValidationError is returned for bad caller input and maps to 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalid(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Notifier receives appointment changes after they commit.
type Notifier interface {
	AppointmentChanged(evt model.AppointmentEvent)
}

type Config struct {
	Step     time.Duration
	Location *time.Location
}

type Service struct {
	store    Store
	notifier Notifier
	metrics  *Metrics
	logger   *slog.Logger
	step     time.Duration
	loc      *time.Location
	now      func() time.Time
}

func NewService(store Store, notifier Notifier, metrics *Metrics, logger *slog.Logger, cfg Config) *Service {
	if cfg.Step <= 0 {
		cfg.Step = schedule.DefaultStep
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Service{
		store:    store,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		step:     cfg.Step,
		loc:      cfg.Location,
		now:      time.Now,
	}
}

func (s *Service) today() string {
	return s.now().In(s.loc).Format(schedule.DateLayout)
}

type slotView struct {
	slots    []schedule.Slot
	occupied map[string]struct{}
}

// slotsFor generates the slot list for one physician and date. Past dates
// yield every slot unavailable; today cuts off at the current clock time.
func (s *Service) slotsFor(ctx context.Context, tx Tx, physicianID, date string, excludeID int) (slotView, error) {
	windows, err := tx.Availability().ForDate(ctx, physicianID, date)
	if err != nil {
		return slotView{}, fmt.Errorf("load availability: %w", err)
	}
	taken, err := tx.Appointments().OccupiedTimes(ctx, physicianID, date, excludeID)
	if err != nil {
		return slotView{}, fmt.Errorf("load occupied times: %w", err)
	}

	ws := make([]schedule.Window, 0, len(windows))
	for _, w := range windows {
		start, err := schedule.ParseTimeOfDay(w.StartTime)
		if err != nil {
			return slotView{}, fmt.Errorf("availability %d start: %w", w.ID, err)
		}
		end, err := schedule.ParseTimeOfDay(w.EndTime)
		if err != nil {
			return slotView{}, fmt.Errorf("availability %d end: %w", w.ID, err)
		}
		ws = append(ws, schedule.Window{Start: start, End: end})
	}

	view := slotView{occupied: make(map[string]struct{}, len(taken))}
	occupied := make([]schedule.TimeOfDay, 0, len(taken))
	for _, raw := range taken {
		t, err := schedule.ParseTimeOfDay(raw)
		if err != nil {
			return slotView{}, fmt.Errorf("occupied time %q: %w", raw, err)
		}
		occupied = append(occupied, t)
		view.occupied[t.String()] = struct{}{}
	}

	opts := schedule.Options{Step: s.step}
	switch today := s.today(); {
	case date < today:
		opts.HasCutoff = true
		opts.Cutoff = schedule.TimeOfDay(24*60 - 1)
	case date == today:
		opts.HasCutoff = true
		opts.Cutoff = schedule.ClockOf(s.now().In(s.loc))
	}

	view.slots = schedule.GenerateSlots(ws, occupied, opts)
	s.metrics.slotsGenerated(len(view.slots))
	return view, nil
}

// Slots lists candidate start times for a physician on date.
func (s *Service) Slots(ctx context.Context, physicianID, date string) ([]schedule.Slot, error) {
	if _, err := uuid.Parse(physicianID); err != nil {
		return nil, invalid("physician_id must be a valid id")
	}
	d, err := schedule.ParseDate(date)
	if err != nil {
		return nil, invalid("date must be YYYY-MM-DD")
	}
	view, err := s.slotsFor(ctx, s.store.Read(), physicianID, d.Format(schedule.DateLayout), 0)
	if err != nil {
		return nil, err
	}
	return view.slots, nil
}

// checkSlot verifies that timeOfDay is a free generated slot.
func (s *Service) checkSlot(ctx context.Context, tx Tx, physicianID, date, timeOfDay string, excludeID int) error {
	view, err := s.slotsFor(ctx, tx, physicianID, date, excludeID)
	if err != nil {
		return err
	}
	t, _ := schedule.ParseTimeOfDay(timeOfDay)
	slot, ok := schedule.Lookup(view.slots, t)
	if !ok {
		return schedule.ErrOutsideAvailability
	}
	if slot.Available {
		return nil
	}
	if _, busy := view.occupied[slot.Time]; busy {
		return schedule.ErrSlotTaken
	}
	return invalid("time has already passed")
}

func (s *Service) List(ctx context.Context, actor model.Actor, f storage.AppointmentFilter, p listing.Params) ([]model.Appointment, int, error) {
	switch {
	case actor.IsAdmin():
	case actor.IsPatient():
		f.PatientID = actor.ID
	case actor.IsPhysician():
		f.PhysicianID = actor.ID
	default:
		return nil, 0, ErrForbidden
	}
	return s.store.Read().Appointments().List(ctx, f, p)
}

// Get returns ErrNotFound for appointments the actor is not a party to.
func (s *Service) Get(ctx context.Context, actor model.Actor, id int) (model.Appointment, error) {
	a, err := s.store.Read().Appointments().Get(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if !actor.IsAdmin() && !a.Involves(actor.ID) {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

type BookInput struct {
	PatientID   string
	PhysicianID string
	Date        string
	Time        string
	Reason      string
	Notes       string
}

func (s *Service) validateWhen(date, timeOfDay string) (string, string, error) {
	d, err := schedule.ParseDate(date)
	if err != nil {
		return "", "", invalid("date must be YYYY-MM-DD")
	}
	t, err := schedule.NormalizeTime(timeOfDay)
	if err != nil {
		return "", "", invalid("time must be HH:MM")
	}
	day := d.Format(schedule.DateLayout)
	if day < s.today() {
		return "", "", invalid("date must not be in the past")
	}
	return day, t, nil
}

func requireUser(ctx context.Context, users UserStore, id, role, field string) (model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return model.User{}, invalid("%s must be a valid id", field)
	}
	u, err := users.Get(ctx, id)
	if storage.IsNotFound(err) {
		return model.User{}, invalid("%s does not reference an existing user", field)
	}
	if err != nil {
		return model.User{}, err
	}
	if u.Role != role || u.Status != model.StatusActive {
		return model.User{}, invalid("%s must reference an active %s", field, strings.ToLower(role))
	}
	return u, nil
}

func (s *Service) Book(ctx context.Context, actor model.Actor, in BookInput) (model.Appointment, error) {
	switch {
	case actor.IsPatient():
		in.PatientID = actor.ID
	case actor.IsAdmin():
		if strings.TrimSpace(in.PatientID) == "" {
			return model.Appointment{}, invalid("patient_id is required")
		}
	default:
		return model.Appointment{}, ErrForbidden
	}
	in.PatientID = strings.TrimSpace(in.PatientID)
	in.PhysicianID = strings.TrimSpace(in.PhysicianID)
	in.Reason = strings.TrimSpace(in.Reason)
	if in.PhysicianID == "" {
		return model.Appointment{}, invalid("physician_id is required")
	}
	date, tod, err := s.validateWhen(in.Date, in.Time)
	if err != nil {
		return model.Appointment{}, err
	}
	if in.Reason == "" {
		return model.Appointment{}, invalid("reason is required")
	}

	var appt model.Appointment
	err = s.store.InTx(ctx, func(tx Tx) error {
		if _, err := requireUser(ctx, tx.Users(), in.PhysicianID, model.RolePhysician, "physician_id"); err != nil {
			return err
		}
		if _, err := requireUser(ctx, tx.Users(), in.PatientID, model.RolePatient, "patient_id"); err != nil {
			return err
		}
		if err := s.checkSlot(ctx, tx, in.PhysicianID, date, tod, 0); err != nil {
			return err
		}

		a := model.Appointment{
			PatientID:   in.PatientID,
			PhysicianID: in.PhysicianID,
			Date:        date,
			Time:        tod,
			Reason:      in.Reason,
			Notes:       strings.TrimSpace(in.Notes),
			StatusID:    model.StatusIDs[model.StatusPending],
		}
		if err := tx.Appointments().Create(ctx, &a); err != nil {
			if storage.IsConflict(err) {
				return schedule.ErrSlotTaken
			}
			return fmt.Errorf("insert appointment: %w", err)
		}
		created, err := tx.Appointments().Get(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("reload appointment: %w", err)
		}
		appt = created
		return s.record(ctx, tx, actor, outbox.AppointmentBooked, model.ActionCreate, appt, map[string]any{
			"date": appt.Date, "time": appt.Time, "physician_id": appt.PhysicianID, "patient_id": appt.PatientID,
		})
	})
	if err != nil {
		return model.Appointment{}, err
	}

	s.logger.Info("appointment booked", "appointment_id", appt.ID, "physician_id", appt.PhysicianID, "date", appt.Date, "time", appt.Time)
	s.publish(outbox.AppointmentBooked, appt)
	return appt, nil
}

type UpdateInput struct {
	Date   *string
	Time   *string
	Reason *string
	Notes  *string
}

// Update edits a pending appointment. A new date or time is re-validated
// against the slot list, ignoring the appointment's own booking.
func (s *Service) Update(ctx context.Context, actor model.Actor, id int, in UpdateInput) (model.Appointment, error) {
	var appt model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		a, err := tx.Appointments().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if schedule.PartyOf(actor, a) == schedule.PartyNone {
			return storage.ErrNotFound
		}
		if !schedule.Editable(a.Status) {
			return ErrNotEditable
		}

		before := map[string]string{"date": a.Date, "time": a.Time}
		date, tod := a.Date, a.Time
		if in.Date != nil {
			date = *in.Date
		}
		if in.Time != nil {
			tod = *in.Time
		}
		if in.Reason != nil {
			r := strings.TrimSpace(*in.Reason)
			if r == "" {
				return invalid("reason is required")
			}
			a.Reason = r
		}
		if in.Notes != nil {
			a.Notes = strings.TrimSpace(*in.Notes)
		}

		if in.Date != nil || in.Time != nil {
			date, tod, err = s.validateWhen(date, tod)
			if err != nil {
				return err
			}
			if date != a.Date || tod != a.Time {
				if err := s.checkSlot(ctx, tx, a.PhysicianID, date, tod, a.ID); err != nil {
					return err
				}
			}
			a.Date, a.Time = date, tod
		}

		if err := tx.Appointments().Update(ctx, &a); err != nil {
			if storage.IsConflict(err) {
				return schedule.ErrSlotTaken
			}
			return fmt.Errorf("update appointment: %w", err)
		}
		appt = a
		return s.record(ctx, tx, actor, outbox.AppointmentUpdated, model.ActionUpdate, appt, map[string]any{
			"before": before,
			"after":  map[string]string{"date": appt.Date, "time": appt.Time},
		})
	})
	if err != nil {
		return model.Appointment{}, err
	}

	s.publish(outbox.AppointmentUpdated, appt)
	return appt, nil
}

var transitionKinds = map[schedule.Action]string{
	schedule.ActionConfirm:  outbox.AppointmentConfirmed,
	schedule.ActionCancel:   outbox.AppointmentCancelled,
	schedule.ActionComplete: outbox.AppointmentCompleted,
}

// Transition applies action to appointment id on behalf of actor.
func (s *Service) Transition(ctx context.Context, actor model.Actor, id int, action schedule.Action, reason string) (model.Appointment, error) {
	kind, ok := transitionKinds[action]
	if !ok {
		return model.Appointment{}, schedule.ErrInvalidTransition
	}

	var appt model.Appointment
	var from string
	err := s.store.InTx(ctx, func(tx Tx) error {
		a, err := tx.Appointments().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		party := schedule.PartyOf(actor, a)
		if party == schedule.PartyNone {
			return storage.ErrNotFound
		}
		to, err := schedule.Transition(a.Status, action, party)
		if err != nil {
			return err
		}

		from = a.Status
		a.Status = to
		a.StatusID = model.StatusIDs[to]
		if action == schedule.ActionCancel {
			a.CancelledReason = strings.TrimSpace(reason)
		}
		if err := tx.Appointments().SetStatus(ctx, &a); err != nil {
			return fmt.Errorf("set status: %w", err)
		}
		appt = a
		return s.record(ctx, tx, actor, kind, model.ActionTransition, appt, map[string]any{
			"action": string(action), "from": from, "to": to, "reason": a.CancelledReason,
		})
	})
	if err != nil {
		return model.Appointment{}, err
	}

	s.metrics.transition(from, appt.Status)
	s.logger.Info("appointment status changed", "appointment_id", appt.ID, "from", from, "to", appt.Status, "actor_id", actor.ID)
	s.publish(kind, appt)
	return appt, nil
}

// Delete removes an appointment. Administrators only.
func (s *Service) Delete(ctx context.Context, actor model.Actor, id int) error {
	if !actor.IsAdmin() {
		return ErrForbidden
	}
	var appt model.Appointment
	err := s.store.InTx(ctx, func(tx Tx) error {
		a, err := tx.Appointments().GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := tx.Appointments().Delete(ctx, id); err != nil {
			return err
		}
		appt = a
		return s.record(ctx, tx, actor, outbox.AppointmentDeleted, model.ActionDelete, appt, map[string]any{
			"status": a.Status, "date": a.Date, "time": a.Time,
		})
	})
	if err != nil {
		return err
	}
	s.publish(outbox.AppointmentDeleted, appt)
	return nil
}

// record writes the outbox event and the monitoring entry inside tx.
func (s *Service) record(ctx context.Context, tx Tx, actor model.Actor, kind, action string, a model.Appointment, details any) error {
	evt, err := outbox.NewAppointmentEvent(kind, a, actor.ID, s.now())
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}
	if err := tx.Outbox().Insert(ctx, evt); err != nil {
		return fmt.Errorf("insert outbox: %w", err)
	}
	if err := tx.Monitoring().Record(ctx, storage.Entry{
		Action:   action,
		Table:    "appointments",
		RecordID: strconv.Itoa(a.ID),
		ActorID:  actor.ID,
		Details:  details,
	}); err != nil {
		return fmt.Errorf("record monitoring: %w", err)
	}
	return nil
}

func (s *Service) publish(kind string, a model.Appointment) {
	if s.notifier == nil {
		return
	}
	s.notifier.AppointmentChanged(model.AppointmentEvent{
		Type:          "appointment." + kind,
		AppointmentID: a.ID,
		PatientID:     a.PatientID,
		PhysicianID:   a.PhysicianID,
		Status:        a.Status,
		Date:          a.Date,
		Time:          a.Time,
		Timestamp:     s.now().UTC(),
	})
}
