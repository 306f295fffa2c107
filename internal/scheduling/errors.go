package scheduling

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUserNotFound         = errors.New("user not found")
	ErrDoctorNotFound       = errors.New("doctor not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrAvailabilityNotFound = errors.New("availability not found")

	ErrNotParticipant = errors.New("caller is not a party to this appointment")
	ErrNotDoctor      = errors.New("only the appointment's doctor may perform this action")
	ErrNotPatient     = errors.New("only the appointment's patient may perform this action")
	ErrSelfApproval   = errors.New("a reschedule request cannot be resolved by its requester")

	ErrAlreadyCompleted    = errors.New("appointment is already completed")
	ErrAlreadyCancelled    = errors.New("appointment is already cancelled")
	ErrNotReschedulable    = errors.New("completed or cancelled appointments cannot be rescheduled")
	ErrReschedulePending   = errors.New("a reschedule request is already pending")
	ErrNoReschedulePending = errors.New("no pending reschedule request")
	ErrFollowUpExists      = errors.New("a follow-up has already been scheduled for this appointment")
	ErrTestNotAssigned     = errors.New("no matching test assignment")
	ErrNotConducted        = errors.New("consultation cannot complete before both parties have joined")
	ErrSlotBeingBooked     = errors.New("slot is currently being booked, please retry")
)

// ValidationError reports malformed or missing caller input. Never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ConflictReason is the typed outcome of a failed slot-freeness check so
// callers can produce localized messages.
type ConflictReason string

const (
	ReasonNoAvailability ConflictReason = "no_availability"
	ReasonSlotNotOffered ConflictReason = "slot_not_offered"
	ReasonAlreadyBooked  ConflictReason = "already_booked"
	ReasonSlotHeld       ConflictReason = "slot_held"
)

// SlotConflictError is a business-rule rejection of a candidate slot.
type SlotConflictError struct {
	Reason ConflictReason
}

func (e *SlotConflictError) Error() string {
	switch e.Reason {
	case ReasonNoAvailability:
		return "doctor has no availability on that day"
	case ReasonSlotNotOffered:
		return "requested time is not among the offered slots"
	case ReasonAlreadyBooked:
		return "slot already has an active appointment"
	case ReasonSlotHeld:
		return "slot is temporarily held by another patient"
	default:
		return "slot conflict"
	}
}

// LeadTimeError reports a booking attempt inside the minimum lead window.
type LeadTimeError struct {
	ServiceType ServiceType
	Required    time.Duration
}

func (e *LeadTimeError) Error() string {
	return fmt.Sprintf("%s appointments must be booked at least %s in advance", e.ServiceType, e.Required)
}

// EligibilityError reports a follow-up request past its working-day window.
type EligibilityError struct {
	Deadline time.Time
	DaysLate int
}

func (e *EligibilityError) Error() string {
	return fmt.Sprintf("follow-up window closed on %s (%d days ago)", e.Deadline.Format("2006-01-02"), e.DaysLate)
}
