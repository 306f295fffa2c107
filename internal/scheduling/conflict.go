package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SlotCheck is the pure-read conflict predicate shared by booking, holds
// and both reschedule paths.
type SlotCheck struct {
	DoctorID    uuid.UUID
	Day         time.Time
	TimeOfDay   string
	ServiceType ServiceType
	// ExcludeID skips the appointment being rescheduled so its own current
	// occupancy does not count against it.
	ExcludeID *uuid.UUID
	// ForPatient, when set, lets a hold owned by the same patient pass so a
	// booking can consume its own hold.
	ForPatient *uuid.UUID
}

// CheckSlot reports whether the candidate slot is free. A non-free slot is
// returned as a *SlotConflictError carrying the typed reason; infrastructure
// failures come back as wrapped errors.
func (s *Service) CheckSlot(ctx context.Context, check SlotCheck) error {
	day := Day(check.Day)

	av, err := s.repo.GetAvailability(ctx, check.DoctorID, day)
	if err != nil {
		if errors.Is(err, ErrAvailabilityNotFound) {
			return &SlotConflictError{Reason: ReasonNoAvailability}
		}
		return fmt.Errorf("load availability: %w", err)
	}
	if !av.IsAvailable || av.ServiceType != check.ServiceType {
		return &SlotConflictError{Reason: ReasonNoAvailability}
	}
	if !av.HasSlot(check.TimeOfDay) {
		return &SlotConflictError{Reason: ReasonSlotNotOffered}
	}

	existing, err := s.repo.FindActiveForSlot(ctx, check.DoctorID, day, check.TimeOfDay, check.ServiceType, check.ExcludeID)
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return fmt.Errorf("check active appointment: %w", err)
	}
	if existing != nil {
		return &SlotConflictError{Reason: ReasonAlreadyBooked}
	}

	// A live hold occupies the slot for everyone except the patient who
	// placed it.
	hold, err := s.repo.FindHoldForSlot(ctx, check.DoctorID, day, check.TimeOfDay, s.now())
	if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
		return fmt.Errorf("check slot hold: %w", err)
	}
	if hold != nil && (check.ForPatient == nil || hold.PatientID != *check.ForPatient) {
		return &SlotConflictError{Reason: ReasonSlotHeld}
	}

	return nil
}

// checkLeadTime enforces the per-service-type minimum notice window.
func (s *Service) checkLeadTime(day time.Time, timeOfDay string, serviceType ServiceType) error {
	policy, ok := servicePolicies[serviceType]
	if !ok {
		return &ValidationError{Field: "service_type", Reason: "must be video or home-visit"}
	}
	instant, err := SlotInstant(day, timeOfDay)
	if err != nil {
		return err
	}
	if instant.Before(s.now().Add(policy.LeadTime)) {
		return &LeadTimeError{ServiceType: serviceType, Required: policy.LeadTime}
	}
	return nil
}
