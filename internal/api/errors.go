package api

import (
	"errors"
	"net/http"

	"github.com/careloop/teleconsult/internal/scheduling"
)

// handleServiceError maps engine errors onto HTTP statuses. Validation and
// authorization failures surface verbatim; conflicts carry their typed
// reason as the error code so clients can localize.
func handleServiceError(w http.ResponseWriter, err error) {
	var validation *scheduling.ValidationError
	var conflict *scheduling.SlotConflictError
	var leadTime *scheduling.LeadTimeError
	var eligibility *scheduling.EligibilityError

	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_error", validation.Error())
	case errors.As(err, &conflict):
		writeError(w, http.StatusConflict, string(conflict.Reason), conflict.Error())
	case errors.As(err, &leadTime):
		writeError(w, http.StatusConflict, "lead_time_violation", leadTime.Error())
	case errors.As(err, &eligibility):
		writeError(w, http.StatusConflict, "follow_up_window_closed", eligibility.Error())

	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrDoctorNotFound):
		writeError(w, http.StatusNotFound, "doctor_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAvailabilityNotFound):
		writeError(w, http.StatusNotFound, "availability_not_found", err.Error())
	case errors.Is(err, scheduling.ErrTestNotAssigned):
		writeError(w, http.StatusNotFound, "test_not_assigned", err.Error())

	case errors.Is(err, scheduling.ErrNotParticipant),
		errors.Is(err, scheduling.ErrNotDoctor),
		errors.Is(err, scheduling.ErrNotPatient),
		errors.Is(err, scheduling.ErrSelfApproval):
		writeError(w, http.StatusForbidden, "not_allowed", err.Error())

	case errors.Is(err, scheduling.ErrAlreadyCompleted),
		errors.Is(err, scheduling.ErrAlreadyCancelled),
		errors.Is(err, scheduling.ErrNotReschedulable),
		errors.Is(err, scheduling.ErrReschedulePending),
		errors.Is(err, scheduling.ErrNoReschedulePending),
		errors.Is(err, scheduling.ErrFollowUpExists),
		errors.Is(err, scheduling.ErrNotConducted):
		writeError(w, http.StatusConflict, "conflict", err.Error())

	case errors.Is(err, scheduling.ErrSlotBeingBooked):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")

	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
