package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RequestReschedule opens the bilateral handshake. Either party may ask;
// the other party must answer before a new request can be opened.
func (s *Service) RequestReschedule(ctx context.Context, callerID, id uuid.UUID, newDate time.Time, newTime string, reason string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	role, ok := appt.PartyRole(callerID)
	if !ok {
		return nil, ErrNotParticipant
	}
	if appt.Terminal() {
		return nil, ErrNotReschedulable
	}
	if appt.Reschedule != nil && appt.Reschedule.Status == RequestPending {
		return nil, ErrReschedulePending
	}
	if err := s.checkLeadTime(newDate, newTime, appt.ServiceType); err != nil {
		return nil, err
	}

	day := Day(newDate)

	// A doctor proposing a slot they never published gets it auto-added to
	// their availability instead of a rejection.
	av, err := s.repo.GetAvailability(ctx, appt.DoctorID, day)
	switch {
	case errors.Is(err, ErrAvailabilityNotFound):
		av = &Availability{
			DoctorID:    appt.DoctorID,
			Date:        day,
			ServiceType: appt.ServiceType,
			IsAvailable: true,
			TimeSlots:   []string{newTime},
		}
		if _, err := s.repo.UpsertAvailability(ctx, av); err != nil {
			return nil, fmt.Errorf("auto-add availability: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("load availability: %w", err)
	case !av.HasSlot(newTime):
		av.TimeSlots = append(av.TimeSlots, newTime)
		av.IsAvailable = true
		if _, err := s.repo.UpsertAvailability(ctx, av); err != nil {
			return nil, fmt.Errorf("auto-add slot: %w", err)
		}
	}

	check := SlotCheck{
		DoctorID:    appt.DoctorID,
		Day:         day,
		TimeOfDay:   newTime,
		ServiceType: appt.ServiceType,
		ExcludeID:   &appt.ID,
		ForPatient:  &appt.PatientID,
	}
	if err := s.CheckSlot(ctx, check); err != nil {
		return nil, err
	}

	appt.Reschedule = &RescheduleRequest{
		RequestedBy:   role,
		RequestedDate: day,
		RequestedTime: newTime,
		Reason:        reason,
		Status:        RequestPending,
		RequestedAt:   s.now(),
	}
	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("store reschedule request: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventRescheduleRequested, map[string]any{
		"requested_by": string(role),
		"date":         day.Format("2006-01-02"),
		"time":         newTime,
	})
	s.send(ctx, s.otherParty(appt, role), "reschedule_requested",
		fmt.Sprintf("Reschedule of appointment %s to %s at %s requested", appt.Number, day.Format("2006-01-02"), newTime))

	return appt, nil
}

// ApproveReschedule applies the pending request. Only the non-requesting
// party may approve.
func (s *Service) ApproveReschedule(ctx context.Context, callerID, id uuid.UUID) (*Appointment, error) {
	return s.resolveReschedule(ctx, callerID, id, RequestApproved)
}

// RejectReschedule declines the pending request, leaving the appointment
// untouched.
func (s *Service) RejectReschedule(ctx context.Context, callerID, id uuid.UUID) (*Appointment, error) {
	return s.resolveReschedule(ctx, callerID, id, RequestRejected)
}

func (s *Service) resolveReschedule(ctx context.Context, callerID, id uuid.UUID, outcome RequestStatus) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	role, ok := appt.PartyRole(callerID)
	if !ok {
		return nil, ErrNotParticipant
	}
	req := appt.Reschedule
	if req == nil || req.Status != RequestPending {
		return nil, ErrNoReschedulePending
	}
	if req.RequestedBy == role {
		return nil, ErrSelfApproval
	}

	if outcome == RequestApproved {
		check := SlotCheck{
			DoctorID:    appt.DoctorID,
			Day:         req.RequestedDate,
			TimeOfDay:   req.RequestedTime,
			ServiceType: appt.ServiceType,
			ExcludeID:   &appt.ID,
			ForPatient:  &appt.PatientID,
		}
		if err := s.CheckSlot(ctx, check); err != nil {
			return nil, err
		}
		appt.Date = Day(req.RequestedDate)
		appt.Time = req.RequestedTime
	}

	respondedAt := s.now()
	req.Status = outcome
	req.RespondedAt = &respondedAt
	req.RespondedBy = &callerID

	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("resolve reschedule: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventRescheduleResolved, map[string]any{
		"outcome":     string(outcome),
		"resolved_by": string(role),
	})
	s.send(ctx, s.otherParty(appt, role), "reschedule_"+string(outcome),
		fmt.Sprintf("Reschedule request for appointment %s was %s", appt.Number, outcome))

	return appt, nil
}

func (s *Service) otherParty(appt *Appointment, role Role) uuid.UUID {
	if role == RoleDoctor {
		return appt.PatientID
	}
	return appt.DoctorID
}
