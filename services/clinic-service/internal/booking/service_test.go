package booking

import (
	"context"
	"io"
	"log/slog"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/healpoint/healpoint/libs/listing"
	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
	"github.com/healpoint/healpoint/services/clinic-service/internal/outbox"
	"github.com/healpoint/healpoint/services/clinic-service/internal/schedule"
	"github.com/healpoint/healpoint/services/clinic-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	physicianID    = "11111111-1111-1111-1111-111111111111"
	patientID      = "22222222-2222-2222-2222-222222222222"
	otherPatientID = "33333333-3333-3333-3333-333333333333"
	adminID        = "44444444-4444-4444-4444-444444444444"
)

var (
	admin     = model.Actor{ID: adminID, Role: model.RoleAdmin}
	physician = model.Actor{ID: physicianID, Role: model.RolePhysician}
	patient   = model.Actor{ID: patientID, Role: model.RolePatient}
	stranger  = model.Actor{ID: otherPatientID, Role: model.RolePatient}
)

type fakeStore struct {
	users     map[string]model.User
	windows   []model.Availability
	appts     map[int]model.Appointment
	nextID    int
	events    []outbox.Event
	entries   []storage.Entry
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: map[string]model.User{
			physicianID:    {ID: physicianID, FirstName: "Ana", LastName: "Ruiz", Role: model.RolePhysician, Status: model.StatusActive},
			patientID:      {ID: patientID, FirstName: "Luis", LastName: "Gomez", Email: "luis@example.com", Role: model.RolePatient, Status: model.StatusActive},
			otherPatientID: {ID: otherPatientID, FirstName: "Eva", LastName: "Diaz", Role: model.RolePatient, Status: model.StatusActive},
			adminID:        {ID: adminID, FirstName: "Root", LastName: "Admin", Role: model.RoleAdmin, Status: model.StatusActive},
		},
		appts:  map[int]model.Appointment{},
		nextID: 1,
	}
}

func (f *fakeStore) Read() Tx { return fakeTx{f} }

func (f *fakeStore) InTx(_ context.Context, fn func(Tx) error) error {
	appts := maps.Clone(f.appts)
	events, entries := len(f.events), len(f.entries)
	if err := fn(fakeTx{f}); err != nil {
		f.appts = appts
		f.events = f.events[:events]
		f.entries = f.entries[:entries]
		return err
	}
	return nil
}

func (f *fakeStore) add(a model.Appointment) model.Appointment {
	a.ID = f.nextID
	f.nextID++
	a.StatusID = model.StatusIDs[a.Status]
	f.appts[a.ID] = a
	return a
}

type fakeTx struct{ s *fakeStore }

func (t fakeTx) Appointments() AppointmentStore  { return fakeAppointments{t.s} }
func (t fakeTx) Availability() AvailabilityStore { return fakeAvailability{t.s} }
func (t fakeTx) Users() UserStore                { return fakeUsers{t.s} }
func (t fakeTx) Outbox() OutboxStore             { return fakeOutbox{t.s} }
func (t fakeTx) Monitoring() MonitoringStore     { return fakeMonitoring{t.s} }

type fakeAppointments struct{ s *fakeStore }

func (f fakeAppointments) List(_ context.Context, flt storage.AppointmentFilter, _ listing.Params) ([]model.Appointment, int, error) {
	var out []model.Appointment
	for _, id := range slices.Sorted(maps.Keys(f.s.appts)) {
		a := f.s.appts[id]
		if flt.PatientID != "" && a.PatientID != flt.PatientID {
			continue
		}
		if flt.PhysicianID != "" && a.PhysicianID != flt.PhysicianID {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

func (f fakeAppointments) Get(_ context.Context, id int) (model.Appointment, error) {
	a, ok := f.s.appts[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a, nil
}

func (f fakeAppointments) GetForUpdate(ctx context.Context, id int) (model.Appointment, error) {
	return f.Get(ctx, id)
}

func (f fakeAppointments) OccupiedTimes(_ context.Context, physician, date string, excludeID int) ([]string, error) {
	var out []string
	for _, a := range f.s.appts {
		if a.PhysicianID != physician || a.Date != date || a.ID == excludeID {
			continue
		}
		if a.Status == model.StatusPending || a.Status == model.StatusConfirmed {
			out = append(out, a.Time)
		}
	}
	return out, nil
}

func (f fakeAppointments) Create(_ context.Context, a *model.Appointment) error {
	if f.s.createErr != nil {
		return f.s.createErr
	}
	a.Status = model.StatusPending
	a.PatientName = f.s.users[a.PatientID].FullName()
	a.PatientEmail = f.s.users[a.PatientID].Email
	a.PhysicianName = f.s.users[a.PhysicianID].FullName()
	*a = f.s.add(*a)
	return nil
}

func (f fakeAppointments) Update(_ context.Context, a *model.Appointment) error {
	f.s.appts[a.ID] = *a
	return nil
}

func (f fakeAppointments) SetStatus(_ context.Context, a *model.Appointment) error {
	f.s.appts[a.ID] = *a
	return nil
}

func (f fakeAppointments) Delete(_ context.Context, id int) error {
	if _, ok := f.s.appts[id]; !ok {
		return storage.ErrNotFound
	}
	delete(f.s.appts, id)
	return nil
}

type fakeAvailability struct{ s *fakeStore }

func (f fakeAvailability) ForDate(_ context.Context, physician, date string) ([]model.Availability, error) {
	var out []model.Availability
	for _, w := range f.s.windows {
		if w.PhysicianID == physician && w.Date == date {
			out = append(out, w)
		}
	}
	return out, nil
}

type fakeUsers struct{ s *fakeStore }

func (f fakeUsers) Get(_ context.Context, id string) (model.User, error) {
	u, ok := f.s.users[id]
	if !ok {
		return model.User{}, storage.ErrNotFound
	}
	return u, nil
}

type fakeOutbox struct{ s *fakeStore }

func (f fakeOutbox) Insert(_ context.Context, evt outbox.Event) error {
	f.s.events = append(f.s.events, evt)
	return nil
}

type fakeMonitoring struct{ s *fakeStore }

func (f fakeMonitoring) Record(_ context.Context, e storage.Entry) error {
	f.s.entries = append(f.s.entries, e)
	return nil
}

type recordingNotifier struct {
	events []model.AppointmentEvent
}

func (n *recordingNotifier) AppointmentChanged(evt model.AppointmentEvent) {
	n.events = append(n.events, evt)
}

// The clock is fixed at 2026-03-02 12:00 UTC.
func newService(t *testing.T) (*Service, *fakeStore, *recordingNotifier, *Metrics) {
	t.Helper()
	store := newFakeStore()
	store.windows = []model.Availability{
		{ID: 1, PhysicianID: physicianID, Date: "2026-03-10", StartTime: "08:00", EndTime: "10:00"},
		{ID: 2, PhysicianID: physicianID, Date: "2026-03-10", StartTime: "09:00", EndTime: "11:00"},
		{ID: 3, PhysicianID: physicianID, Date: "2026-03-02", StartTime: "11:00", EndTime: "13:00"},
		{ID: 4, PhysicianID: physicianID, Date: "2026-03-01", StartTime: "08:00", EndTime: "09:00"},
	}
	notifier := &recordingNotifier{}
	metrics := NewMetrics(prometheus.NewRegistry())
	svc := NewService(store, notifier, metrics, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{})
	svc.now = func() time.Time { return time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC) }
	return svc, store, notifier, metrics
}

func times(slots []schedule.Slot) (all, free []string) {
	for _, s := range slots {
		all = append(all, s.Time)
		if s.Available {
			free = append(free, s.Time)
		}
	}
	return all, free
}

func TestSlots_MergesWindowsAndMarksOccupied(t *testing.T) {
	svc, store, _, metrics := newService(t)
	store.add(model.Appointment{PatientID: patientID, PhysicianID: physicianID, Date: "2026-03-10", Time: "09:00", Status: model.StatusPending})
	store.add(model.Appointment{PatientID: patientID, PhysicianID: physicianID, Date: "2026-03-10", Time: "09:30", Status: model.StatusCancelled})
	store.add(model.Appointment{PatientID: patientID, PhysicianID: physicianID, Date: "2026-03-10", Time: "10:00", Status: model.StatusConfirmed})

	slots, err := svc.Slots(context.Background(), physicianID, "2026-03-10")
	require.NoError(t, err)

	all, free := times(slots)
	assert.Equal(t, []string{"08:00", "08:30", "09:00", "09:30", "10:00", "10:30"}, all)
	assert.Equal(t, []string{"08:00", "08:30", "09:30", "10:30"}, free)
	assert.Equal(t, 6.0, testutil.ToFloat64(metrics.slots))
}

func TestSlots_TodayCutsOffAtClock(t *testing.T) {
	svc, _, _, _ := newService(t)

	slots, err := svc.Slots(context.Background(), physicianID, "2026-03-02")
	require.NoError(t, err)
	_, free := times(slots)
	assert.Equal(t, []string{"12:30"}, free)

	slots, err = svc.Slots(context.Background(), physicianID, "2026-03-01")
	require.NoError(t, err)
	assert.Len(t, slots, 2)
	_, free = times(slots)
	assert.Empty(t, free)
}

func TestSlots_NoAvailabilityIsEmpty(t *testing.T) {
	svc, _, _, _ := newService(t)
	slots, err := svc.Slots(context.Background(), physicianID, "2026-04-01")
	require.NoError(t, err)
	assert.NotNil(t, slots)
	assert.Empty(t, slots)
}

func TestSlots_RejectsBadInput(t *testing.T) {
	svc, _, _, _ := newService(t)
	_, err := svc.Slots(context.Background(), "nope", "2026-03-10")
	assert.True(t, IsValidation(err))
	_, err = svc.Slots(context.Background(), physicianID, "10/03/2026")
	assert.True(t, IsValidation(err))
}

func TestBook_PatientBooksForThemselves(t *testing.T) {
	svc, store, notifier, _ := newService(t)

	_, err := svc.Book(context.Background(), patient, BookInput{
		PatientID:   otherPatientID,
		PhysicianID: physicianID,
		Date:        "2026-03-10",
		Time:        "8:30",
		Reason:      "  control  ",
	})
	require.Error(t, err, "single-digit hour is not HH:MM")

	appt, err := svc.Book(context.Background(), patient, BookInput{
		PatientID:   otherPatientID,
		PhysicianID: physicianID,
		Date:        "2026-03-10",
		Time:        "08:30",
		Reason:      "  control  ",
	})
	require.NoError(t, err)
	assert.Equal(t, patientID, appt.PatientID)
	assert.Equal(t, model.StatusPending, appt.Status)
	assert.Equal(t, "control", appt.Reason)

	require.Len(t, store.events, 1)
	assert.Equal(t, "healpoint.appointment.booked.v1", store.events[0].EventType)
	require.Len(t, store.entries, 1)
	assert.Equal(t, model.ActionCreate, store.entries[0].Action)
	assert.Equal(t, "appointments", store.entries[0].Table)
	require.Len(t, notifier.events, 1)
	assert.Equal(t, "appointment.booked", notifier.events[0].Type)
}

func TestBook_Rejections(t *testing.T) {
	svc, store, _, _ := newService(t)
	store.add(model.Appointment{PatientID: otherPatientID, PhysicianID: physicianID, Date: "2026-03-10", Time: "09:00", Status: model.StatusConfirmed})
	ctx := context.Background()
	in := func(date, tm string) BookInput {
		return BookInput{PhysicianID: physicianID, Date: date, Time: tm, Reason: "checkup"}
	}

	_, err := svc.Book(ctx, patient, in("2026-03-10", "09:00"))
	assert.ErrorIs(t, err, schedule.ErrSlotTaken)

	_, err = svc.Book(ctx, patient, in("2026-03-10", "09:15"))
	assert.ErrorIs(t, err, schedule.ErrOutsideAvailability)

	_, err = svc.Book(ctx, patient, in("2026-03-10", "11:00"))
	assert.ErrorIs(t, err, schedule.ErrOutsideAvailability)

	_, err = svc.Book(ctx, patient, in("2026-03-01", "08:00"))
	assert.True(t, IsValidation(err))

	_, err = svc.Book(ctx, patient, in("2026-03-02", "11:30"))
	assert.True(t, IsValidation(err))

	_, err = svc.Book(ctx, physician, in("2026-03-10", "08:00"))
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.Book(ctx, admin, in("2026-03-10", "08:00"))
	assert.True(t, IsValidation(err), "admin must name the patient")

	bad := in("2026-03-10", "08:00")
	bad.PhysicianID = otherPatientID
	_, err = svc.Book(ctx, patient, bad)
	assert.True(t, IsValidation(err))

	assert.Empty(t, store.events)
	assert.Empty(t, store.entries)
}

func TestBook_LostRaceIsSlotTaken(t *testing.T) {
	svc, store, notifier, _ := newService(t)
	store.createErr = storage.ErrConflict

	_, err := svc.Book(context.Background(), admin, BookInput{
		PatientID: patientID, PhysicianID: physicianID, Date: "2026-03-10", Time: "08:00", Reason: "x",
	})
	assert.ErrorIs(t, err, schedule.ErrSlotTaken)
	assert.Empty(t, store.events)
	assert.Empty(t, notifier.events)
}

func TestTransition_Workflow(t *testing.T) {
	svc, store, notifier, metrics := newService(t)
	ctx := context.Background()
	a := store.add(model.Appointment{PatientID: patientID, PhysicianID: physicianID, Date: "2026-03-10", Time: "08:00", Status: model.StatusPending})

	_, err := svc.Transition(ctx, patient, a.ID, schedule.ActionConfirm, "")
	assert.ErrorIs(t, err, schedule.ErrNotPermitted)

	_, err = svc.Transition(ctx, stranger, a.ID, schedule.ActionCancel, "")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	got, err := svc.Transition(ctx, physician, a.ID, schedule.ActionConfirm, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, got.Status)
	assert.Equal(t, model.StatusIDs[model.StatusConfirmed], got.StatusID)

	got, err = svc.Transition(ctx, physician, a.ID, schedule.ActionComplete, "")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	_, err = svc.Transition(ctx, admin, a.ID, schedule.ActionCancel, "late")
	assert.ErrorIs(t, err, schedule.ErrInvalidTransition)

	require.Len(t, store.entries, 2)
	assert.Equal(t, model.ActionTransition, store.entries[1].Action)
	require.Len(t, store.events, 2)
	assert.Equal(t, "healpoint.appointment.completed.v1", store.events[1].EventType)
	require.Len(t, notifier.events, 2)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.transitions.WithLabelValues(model.StatusConfirmed, model.StatusCompleted)))
}

func TestTransition_CancelKeepsReasonAndFreesSlot(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	a := store.add(model.Appointment{PatientID: patientID, PhysicianID: physicianID, Date: "2026-03-10", Time: "08:00", Status: model.StatusPending})

	got, err := svc.Transition(ctx, patient, a.ID, schedule.ActionCancel, " travelling ")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, got.Status)
	assert.Equal(t, "travelling", got.CancelledReason)

	_, err = svc.Book(ctx, stranger, BookInput{PhysicianID: physicianID, Date: "2026-03-10", Time: "08:00", Reason: "x"})
	assert.NoError(t, err)
}

func TestUpdate_Reschedule(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	a := store.add(model.Appointment{PatientID: patientID, PhysicianID: physicianID, Date: "2026-03-10", Time: "08:00", Reason: "a", Status: model.StatusPending})
	store.add(model.Appointment{PatientID: otherPatientID, PhysicianID: physicianID, Date: "2026-03-10", Time: "09:00", Status: model.StatusPending})

	same := "08:00"
	_, err := svc.Update(ctx, patient, a.ID, UpdateInput{Time: &same})
	require.NoError(t, err)

	taken := "09:00"
	_, err = svc.Update(ctx, patient, a.ID, UpdateInput{Time: &taken})
	assert.ErrorIs(t, err, schedule.ErrSlotTaken)

	free, reason := "10:30", "follow-up"
	got, err := svc.Update(ctx, patient, a.ID, UpdateInput{Time: &free, Reason: &reason})
	require.NoError(t, err)
	assert.Equal(t, "10:30", got.Time)
	assert.Equal(t, "follow-up", got.Reason)
	assert.Equal(t, "healpoint.appointment.updated.v1", store.events[len(store.events)-1].EventType)

	_, err = svc.Update(ctx, stranger, a.ID, UpdateInput{Reason: &reason})
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = svc.Transition(ctx, physician, a.ID, schedule.ActionConfirm, "")
	require.NoError(t, err)
	_, err = svc.Update(ctx, patient, a.ID, UpdateInput{Reason: &reason})
	assert.ErrorIs(t, err, ErrNotEditable)
}

func TestDelete_AdminOnly(t *testing.T) {
	svc, store, notifier, _ := newService(t)
	ctx := context.Background()
	a := store.add(model.Appointment{PatientID: patientID, PhysicianID: physicianID, Date: "2026-03-10", Time: "08:00", Status: model.StatusPending})

	assert.ErrorIs(t, svc.Delete(ctx, physician, a.ID), ErrForbidden)
	require.NoError(t, svc.Delete(ctx, admin, a.ID))
	assert.Empty(t, store.appts)
	assert.Equal(t, "appointment.deleted", notifier.events[0].Type)
	assert.ErrorIs(t, svc.Delete(ctx, admin, a.ID), storage.ErrNotFound)
}

func TestListAndGet_ScopedToParties(t *testing.T) {
	svc, store, _, _ := newService(t)
	ctx := context.Background()
	mine := store.add(model.Appointment{PatientID: patientID, PhysicianID: physicianID, Date: "2026-03-10", Time: "08:00", Status: model.StatusPending})
	theirs := store.add(model.Appointment{PatientID: otherPatientID, PhysicianID: physicianID, Date: "2026-03-10", Time: "08:30", Status: model.StatusPending})

	items, total, err := svc.List(ctx, patient, storage.AppointmentFilter{PatientID: otherPatientID}, listing.Params{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, mine.ID, items[0].ID)

	_, total, err = svc.List(ctx, physician, storage.AppointmentFilter{}, listing.Params{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, err = svc.Get(ctx, patient, theirs.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	got, err := svc.Get(ctx, admin, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, otherPatientID, got.PatientID)
}
