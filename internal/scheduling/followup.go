package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// followUpWindowDays is the working-day window after a completed
// appointment within which a free follow-up may be scheduled.
const followUpWindowDays = 10

// WorkingDaysAfter advances date one calendar day at a time, skipping
// Saturdays and Sundays, until n working days have been added.
func WorkingDaysAfter(date time.Time, n int) time.Time {
	d := Day(date)
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return d
}

type Eligibility struct {
	Eligible bool
	Deadline time.Time
}

// CheckFollowUpEligibility reports whether the caller's completed
// appointment is still inside its follow-up window. A pre-existing
// follow-up link is logged here, not rejected; the write path enforces it.
func (s *Service) CheckFollowUpEligibility(ctx context.Context, patientID, id uuid.UUID) (*Eligibility, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrNotPatient
	}
	if appt.Status != StatusCompleted {
		return nil, &ValidationError{Field: "appointment", Reason: "follow-ups require a completed appointment"}
	}
	if appt.FollowUp != nil && appt.FollowUp.AppointmentID != nil {
		s.log.Info("follow-up already linked",
			zap.String("appointment_id", appt.ID.String()),
			zap.String("follow_up_id", appt.FollowUp.AppointmentID.String()))
	}

	deadline := WorkingDaysAfter(appt.Date, followUpWindowDays)
	today := Day(s.now())
	if today.After(deadline) {
		late := int(today.Sub(deadline).Hours() / 24)
		return &Eligibility{Eligible: false, Deadline: deadline}, &EligibilityError{Deadline: deadline, DaysLate: late}
	}
	return &Eligibility{Eligible: true, Deadline: deadline}, nil
}

type FollowUpInput struct {
	PatientID    uuid.UUID
	OriginalID   uuid.UUID
	Date         time.Time
	Time         string
	ServiceType  ServiceType
	VisitAddress string
	Reason       string
}

// ScheduleFollowUp creates a second, fully independent appointment with the
// same doctor, fee 0 and payment marked paid, then writes a weak
// back-reference onto the original. The two aggregates are not otherwise
// coupled.
func (s *Service) ScheduleFollowUp(ctx context.Context, in FollowUpInput) (*Appointment, error) {
	original, err := s.repo.GetAppointmentByID(ctx, in.OriginalID)
	if err != nil {
		return nil, err
	}
	if original.PatientID != in.PatientID {
		return nil, ErrNotPatient
	}
	if original.FollowUp != nil && original.FollowUp.AppointmentID != nil {
		return nil, ErrFollowUpExists
	}
	if _, err := s.CheckFollowUpEligibility(ctx, in.PatientID, in.OriginalID); err != nil {
		return nil, err
	}

	serviceType := in.ServiceType
	if serviceType == "" {
		serviceType = original.ServiceType
	}
	if err := s.validateBooking(serviceType, in.VisitAddress); err != nil {
		return nil, err
	}

	var followUp *Appointment

	err = s.locker.WithSlotLock(ctx, slotLockKey(original.DoctorID, in.Date, in.Time), func(lockCtx context.Context) error {
		check := SlotCheck{
			DoctorID:    original.DoctorID,
			Day:         in.Date,
			TimeOfDay:   in.Time,
			ServiceType: serviceType,
			ForPatient:  &in.PatientID,
		}
		if err := s.CheckSlot(lockCtx, check); err != nil {
			return err
		}

		appt := &Appointment{
			ID:             uuid.New(),
			DoctorID:       original.DoctorID,
			PatientID:      in.PatientID,
			Date:           Day(in.Date),
			Time:           in.Time,
			ServiceType:    serviceType,
			Status:         StatusPending,
			Fee:            0,
			TotalAmount:    0,
			PaymentStatus:  PaymentPaid, // follow-ups are free
			PatientDetails: original.PatientDetails,
			VisitAddress:   in.VisitAddress,
		}

		followUp, err = s.insertWithNumber(lockCtx, appt)
		return err
	})
	if err != nil {
		return nil, err
	}

	followUpDate := followUp.Date
	original.FollowUp = &FollowUp{
		Required:      true,
		Date:          &followUpDate,
		Reason:        in.Reason,
		AppointmentID: &followUp.ID,
	}
	if err := s.repo.UpdateAppointment(ctx, original); err != nil {
		// The follow-up itself is committed; only the back-reference failed.
		s.log.Error("write follow-up back-reference",
			zap.String("original_id", original.ID.String()),
			zap.String("follow_up_id", followUp.ID.String()), zap.Error(err))
	}

	s.logEvent(ctx, followUp.ID, EventFollowUpScheduled, map[string]any{
		"original_id": original.ID.String(),
	})
	s.send(ctx, original.DoctorID, "follow_up_scheduled",
		fmt.Sprintf("Follow-up %s scheduled for %s at %s", followUp.Number, followUp.Date.Format("2006-01-02"), followUp.Time))

	return followUp, nil
}
