package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository-level sentinel errors surfaced by the storage layer.
var (
	// ErrDuplicateNumber signals a collision on the generated appointment
	// number unique index. The service regenerates and retries.
	ErrDuplicateNumber = errors.New("appointment number already in use")
	// ErrDuplicateSlot signals the active-slot unique index fired, meaning
	// a concurrent writer won the slot between check and insert.
	ErrDuplicateSlot = errors.New("slot occupied by a concurrent booking")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)

	// Availability
	GetAvailability(ctx context.Context, doctorID uuid.UUID, day time.Time) (*Availability, error)
	UpsertAvailability(ctx context.Context, av *Availability) (*Availability, error)

	// Appointments
	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	CreateAppointment(ctx context.Context, appt *Appointment) error
	// UpdateAppointment rewrites the whole aggregate row and bumps
	// updated_at. One call, one atomic write.
	UpdateAppointment(ctx context.Context, appt *Appointment) error
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Conflict checks
	FindActiveForSlot(ctx context.Context, doctorID uuid.UUID, day time.Time, timeOfDay string, serviceType ServiceType, excludeID *uuid.UUID) (*Appointment, error)
	FindHoldForSlot(ctx context.Context, doctorID uuid.UUID, day time.Time, timeOfDay string, now time.Time) (*Appointment, error)

	// Hold sweep
	DeleteExpiredHolds(ctx context.Context, now time.Time) (int64, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
