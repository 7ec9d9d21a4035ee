package model

import (
	"encoding/json"
	"time"
)

// Built-in role names.
const (
	RoleAdmin     = "ADMINISTRADOR"
	RolePhysician = "MEDICO"
	RolePatient   = "PACIENTE"
)

// Built-in status names. Ids match the seed rows in migrations.
const (
	StatusActive    = "ACTIVO"
	StatusInactive  = "INACTIVO"
	StatusPending   = "PENDIENTE"
	StatusConfirmed = "ACTIVA"
	StatusCancelled = "CANCELADA"
	StatusCompleted = "COMPLETADA"
)

var StatusIDs = map[string]int{
	StatusActive:    1,
	StatusInactive:  2,
	StatusPending:   3,
	StatusConfirmed: 4,
	StatusCancelled: 5,
	StatusCompleted: 6,
}

var RoleIDs = map[string]int{
	RoleAdmin:     1,
	RolePhysician: 2,
	RolePatient:   3,
}

func IsBuiltinStatus(name string) bool {
	_, ok := StatusIDs[name]
	return ok
}

func IsBuiltinRole(name string) bool {
	_, ok := RoleIDs[name]
	return ok
}

// Actor is the authenticated caller as forwarded by the gateway.
type Actor struct {
	ID   string
	Role string
}

func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }
func (a Actor) IsPhysician() bool { return a.Role == RolePhysician }
func (a Actor) IsPatient() bool { return a.Role == RolePatient }

type Status struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Role struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	StatusID    int       `json:"status_id"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type User struct {
	ID             string    `json:"id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	Phone          string    `json:"phone"`
	DocumentNumber string    `json:"document_number"`
	Specialty      string    `json:"specialty"`
	RoleID         int       `json:"role_id"`
	Role           string    `json:"role"`
	StatusID       int       `json:"status_id"`
	Status         string    `json:"status"`
	PasswordHash   string    `json:"-"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Availability is a physician-declared window on one date. Times are HH:MM.
type Availability struct {
	ID            int       `json:"id"`
	PhysicianID   string    `json:"physician_id"`
	PhysicianName string    `json:"physician_name"`
	Date          string    `json:"date"`
	StartTime     string    `json:"start_time"`
	EndTime       string    `json:"end_time"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type Appointment struct {
	ID              int       `json:"id"`
	PatientID       string    `json:"patient_id"`
	PatientName     string    `json:"patient_name"`
	PatientEmail    string    `json:"-"`
	PhysicianID     string    `json:"physician_id"`
	PhysicianName   string    `json:"physician_name"`
	Date            string    `json:"date"`
	Time            string    `json:"time"`
	Reason          string    `json:"reason"`
	StatusID        int       `json:"status_id"`
	Status          string    `json:"status"`
	Notes           string    `json:"notes"`
	CancelledReason string    `json:"cancelled_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Involves reports whether the actor is a party to the appointment.
func (a Appointment) Involves(userID string) bool {
	return a.PatientID == userID || a.PhysicianID == userID
}

type MedicalHistory struct {
	ID            int       `json:"id"`
	PatientID     string    `json:"patient_id"`
	PatientName   string    `json:"patient_name"`
	PhysicianID   string    `json:"physician_id"`
	PhysicianName string    `json:"physician_name"`
	AppointmentID *int      `json:"appointment_id"`
	Diagnosis     string    `json:"diagnosis"`
	Treatment     string    `json:"treatment"`
	Notes         string    `json:"notes"`
	RecordDate    string    `json:"record_date"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Monitoring actions.
const (
	ActionCreate     = "CREATE"
	ActionUpdate     = "UPDATE"
	ActionDelete     = "DELETE"
	ActionLogin      = "LOGIN"
	ActionLogout     = "LOGOUT"
	ActionTransition = "TRANSITION"
)

var MonitoringActions = []string{ActionCreate, ActionUpdate, ActionDelete, ActionLogin, ActionLogout, ActionTransition}

type MonitoringRecord struct {
	ID        int64           `json:"id"`
	Action    string          `json:"action"`
	Table     string          `json:"table"`
	RecordID  string          `json:"record_id"`
	ActorID   *string         `json:"actor_id"`
	ActorName string          `json:"actor_name,omitempty"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}

// AppointmentEvent is broadcast on the live feed and serialized into outbox payloads.
type AppointmentEvent struct {
	Type          string    `json:"type"`
	AppointmentID int       `json:"appointment_id"`
	PatientID     string    `json:"patient_id"`
	PhysicianID   string    `json:"physician_id"`
	Status        string    `json:"status"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Timestamp     time.Time `json:"timestamp"`
}
