package schedule

import (
	"errors"

	"github.com/healpoint/healpoint/services/clinic-service/internal/model"
)

var (
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrNotPermitted        = errors.New("not permitted to perform this transition")
	ErrSlotTaken           = errors.New("slot already booked")
	ErrOutsideAvailability = errors.New("outside availability")
)

type Action string

const (
	ActionConfirm  Action = "confirm"
	ActionCancel   Action = "cancel"
	ActionComplete Action = "complete"
)

// Party is the caller's relation to an appointment.
type Party int

const (
	PartyNone Party = iota
	PartyPatient
	PartyPhysician
	PartyAdmin
)

// PartyOf classifies actor against the appointment's patient and physician.
func PartyOf(actor model.Actor, appt model.Appointment) Party {
	switch {
	case actor.IsAdmin():
		return PartyAdmin
	case actor.IsPhysician() && actor.ID == appt.PhysicianID:
		return PartyPhysician
	case actor.IsPatient() && actor.ID == appt.PatientID:
		return PartyPatient
	default:
		return PartyNone
	}
}

type rule struct {
	to      string
	parties []Party
}

var transitions = map[Action]map[string]rule{
	ActionConfirm: {
		model.StatusPending: {to: model.StatusConfirmed, parties: []Party{PartyPhysician, PartyAdmin}},
	},
	ActionCancel: {
		model.StatusPending:   {to: model.StatusCancelled, parties: []Party{PartyPatient, PartyPhysician, PartyAdmin}},
		model.StatusConfirmed: {to: model.StatusCancelled, parties: []Party{PartyPatient, PartyPhysician, PartyAdmin}},
	},
	ActionComplete: {
		model.StatusConfirmed: {to: model.StatusCompleted, parties: []Party{PartyPhysician, PartyAdmin}},
	},
}

func ParseAction(raw string) (Action, bool) {
	a := Action(raw)
	_, ok := transitions[a]
	return a, ok
}

// Transition returns the status reached by applying action from status "from".
func Transition(from string, action Action, party Party) (string, error) {
	byFrom, ok := transitions[action]
	if !ok {
		return "", ErrInvalidTransition
	}
	r, ok := byFrom[from]
	if !ok {
		return "", ErrInvalidTransition
	}
	for _, p := range r.parties {
		if p == party {
			return r.to, nil
		}
	}
	return "", ErrNotPermitted
}

// Terminal reports whether no further transitions leave status.
func Terminal(status string) bool {
	return status == model.StatusCancelled || status == model.StatusCompleted
}

// Editable reports whether an appointment in status may be rescheduled.
func Editable(status string) bool {
	return status == model.StatusPending
}
