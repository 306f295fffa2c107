package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careloop/teleconsult/internal/blobstore"
	"github.com/careloop/teleconsult/internal/config"
	"github.com/careloop/teleconsult/internal/notify"
	redisclient "github.com/careloop/teleconsult/internal/redis"
)

const (
	EventAppointmentCreated    = "APPOINTMENT_CREATED"
	EventSlotHeld              = "SLOT_HELD"
	EventAppointmentCancelled  = "APPOINTMENT_CANCELLED"
	EventAppointmentMoved      = "APPOINTMENT_MOVED"
	EventRescheduleRequested   = "RESCHEDULE_REQUESTED"
	EventRescheduleResolved    = "RESCHEDULE_RESOLVED"
	EventFollowUpScheduled     = "FOLLOW_UP_SCHEDULED"
	EventConsultationConducted = "CONSULTATION_CONDUCTED"
)

type Service struct {
	repo     Repository
	locker   redisclient.Locker
	store    blobstore.Store
	notifier notify.Notifier
	cfg      config.Config
	log      *zap.Logger
	now      func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, store blobstore.Store, notifier notify.Notifier, cfg config.Config, log *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		locker:   locker,
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      log,
		now:      time.Now,
	}
}

type CreateAppointmentInput struct {
	PatientID    uuid.UUID
	DoctorID     uuid.UUID
	Date         time.Time
	Time         string
	ServiceType  ServiceType
	Fee          float64
	Details      PatientDetails
	VisitAddress string
}

// CreateAppointment books a slot for a patient. The check-then-write pair
// runs under a per-slot distributed lock; the partial unique index on
// active slots is the backstop if two instances race past it anyway.
func (s *Service) CreateAppointment(ctx context.Context, in CreateAppointmentInput) (*Appointment, error) {
	if err := s.validateBooking(in.ServiceType, in.VisitAddress); err != nil {
		return nil, err
	}

	doctor, err := s.repo.GetUserByID(ctx, in.DoctorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrDoctorNotFound
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	if doctor.Role != RoleDoctor {
		return nil, ErrDoctorNotFound
	}
	if _, err := s.repo.GetUserByID(ctx, in.PatientID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrPatientNotFound
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	if err := s.checkLeadTime(in.Date, in.Time, in.ServiceType); err != nil {
		return nil, err
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, slotLockKey(in.DoctorID, in.Date, in.Time), func(lockCtx context.Context) error {
		check := SlotCheck{
			DoctorID:    in.DoctorID,
			Day:         in.Date,
			TimeOfDay:   in.Time,
			ServiceType: in.ServiceType,
			ForPatient:  &in.PatientID,
		}
		if err := s.CheckSlot(lockCtx, check); err != nil {
			return err
		}

		// Consume the caller's own hold if one exists.
		hold, err := s.repo.FindHoldForSlot(lockCtx, in.DoctorID, Day(in.Date), in.Time, s.now())
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check own hold: %w", err)
		}
		if hold != nil && hold.PatientID == in.PatientID {
			if err := s.repo.DeleteAppointment(lockCtx, hold.ID); err != nil {
				return fmt.Errorf("consume hold: %w", err)
			}
		}

		appt := &Appointment{
			ID:             uuid.New(),
			DoctorID:       in.DoctorID,
			PatientID:      in.PatientID,
			Date:           Day(in.Date),
			Time:           in.Time,
			ServiceType:    in.ServiceType,
			Status:         StatusPending,
			Fee:            in.Fee,
			TotalAmount:    in.Fee,
			PaymentStatus:  PaymentPending,
			PatientDetails: in.Details,
			VisitAddress:   in.VisitAddress,
		}

		created, err = s.insertWithNumber(lockCtx, appt)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"doctor_id":  in.DoctorID.String(),
		"patient_id": in.PatientID.String(),
		"date":       created.Date.Format("2006-01-02"),
		"time":       created.Time,
		"type":       string(created.ServiceType),
	})
	s.send(ctx, in.PatientID, "appointment_booked",
		fmt.Sprintf("Appointment %s booked for %s at %s", created.Number, created.Date.Format("2006-01-02"), created.Time))
	s.send(ctx, in.DoctorID, "appointment_booked",
		fmt.Sprintf("New %s appointment %s on %s at %s", created.ServiceType, created.Number, created.Date.Format("2006-01-02"), created.Time))

	return created, nil
}

func (s *Service) validateBooking(serviceType ServiceType, visitAddress string) error {
	policy, ok := servicePolicies[serviceType]
	if !ok {
		return &ValidationError{Field: "service_type", Reason: "must be video or home-visit"}
	}
	if policy.RequiresAddress && visitAddress == "" {
		return &ValidationError{Field: "visit_address", Reason: "required for home-visit appointments"}
	}
	return nil
}

// insertWithNumber persists the aggregate, regenerating the human-readable
// number on a uniqueness collision. Bounded so a broken index cannot spin.
func (s *Service) insertWithNumber(ctx context.Context, appt *Appointment) (*Appointment, error) {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		appt.Number = newAppointmentNumber(s.now())
		err := s.repo.CreateAppointment(ctx, appt)
		if err == nil {
			return appt, nil
		}
		if errors.Is(err, ErrDuplicateNumber) {
			s.log.Warn("appointment number collision, regenerating",
				zap.String("number", appt.Number), zap.Int("attempt", attempt+1))
			continue
		}
		if errors.Is(err, ErrDuplicateSlot) {
			return nil, &SlotConflictError{Reason: ReasonAlreadyBooked}
		}
		return nil, fmt.Errorf("create appointment: %w", err)
	}
	return nil, fmt.Errorf("generate appointment number: %d collisions in a row", maxAttempts)
}

// HoldSlot places a short-lived blocked record on a slot. Holds are
// appointment-shaped so the sweep and conflict queries stay uniform.
func (s *Service) HoldSlot(ctx context.Context, patientID, doctorID uuid.UUID, date time.Time, timeOfDay string) (*Appointment, error) {
	if _, err := SlotInstant(date, timeOfDay); err != nil {
		return nil, err
	}

	var hold *Appointment

	err := s.locker.WithSlotLock(ctx, slotLockKey(doctorID, date, timeOfDay), func(lockCtx context.Context) error {
		day := Day(date)

		existing, err := s.repo.FindActiveForSlot(lockCtx, doctorID, day, timeOfDay, "", nil)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check active appointment: %w", err)
		}
		if existing != nil {
			return &SlotConflictError{Reason: ReasonAlreadyBooked}
		}

		other, err := s.repo.FindHoldForSlot(lockCtx, doctorID, day, timeOfDay, s.now())
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check slot hold: %w", err)
		}
		if other != nil && other.PatientID != patientID {
			return &SlotConflictError{Reason: ReasonSlotHeld}
		}

		expiresAt := s.now().Add(s.cfg.HoldTTL)
		appt := &Appointment{
			ID:            uuid.New(),
			DoctorID:      doctorID,
			PatientID:     patientID,
			Date:          day,
			Time:          timeOfDay,
			ServiceType:   ServiceVideo,
			Status:        StatusBlocked,
			PaymentStatus: PaymentPending,
			ExpiresAt:     &expiresAt,
		}

		hold, err = s.insertWithNumber(lockCtx, appt)
		return err
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.logEvent(ctx, hold.ID, EventSlotHeld, map[string]any{
		"doctor_id":  doctorID.String(),
		"expires_at": hold.ExpiresAt,
	})

	return hold, nil
}

// GetAppointment loads the aggregate for one of its parties.
func (s *Service) GetAppointment(ctx context.Context, callerID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, ok := appt.PartyRole(callerID); !ok {
		return nil, ErrNotParticipant
	}
	return appt, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appts, err := s.repo.ListByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appts, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	limit, offset = clampPage(limit, offset)
	appts, err := s.repo.ListByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appts, nil
}

// Cancel sets status=cancelled. The freed slot becomes visible again purely
// because conflict checks exclude cancelled appointments.
func (s *Service) Cancel(ctx context.Context, patientID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrNotPatient
	}
	switch appt.Status {
	case StatusCompleted:
		return nil, ErrAlreadyCompleted
	case StatusCancelled:
		return nil, ErrAlreadyCancelled
	}

	appt.Status = StatusCancelled
	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("cancel appointment: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventAppointmentCancelled, map[string]any{})
	s.send(ctx, appt.DoctorID, "appointment_cancelled",
		fmt.Sprintf("Appointment %s on %s at %s was cancelled", appt.Number, appt.Date.Format("2006-01-02"), appt.Time))

	return appt, nil
}

// Reschedule moves an appointment directly (no negotiation). Lead time and
// slot freeness are re-validated against the new slot, excluding the
// appointment's own current occupancy. Status is preserved.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, newDate time.Time, newTime string) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.Terminal() {
		return nil, ErrNotReschedulable
	}
	if err := s.checkLeadTime(newDate, newTime, appt.ServiceType); err != nil {
		return nil, err
	}

	err = s.locker.WithSlotLock(ctx, slotLockKey(appt.DoctorID, newDate, newTime), func(lockCtx context.Context) error {
		check := SlotCheck{
			DoctorID:    appt.DoctorID,
			Day:         newDate,
			TimeOfDay:   newTime,
			ServiceType: appt.ServiceType,
			ExcludeID:   &appt.ID,
			ForPatient:  &appt.PatientID,
		}
		if err := s.CheckSlot(lockCtx, check); err != nil {
			return err
		}

		appt.Date = Day(newDate)
		appt.Time = newTime
		if err := s.repo.UpdateAppointment(lockCtx, appt); err != nil {
			return fmt.Errorf("reschedule appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.logEvent(ctx, appt.ID, EventAppointmentMoved, map[string]any{
		"date": appt.Date.Format("2006-01-02"),
		"time": appt.Time,
	})

	return appt, nil
}

// PurgeExpiredHolds deletes blocked records past their TTL. Safe to run
// from any number of instances; the predicate is self-cleaning.
func (s *Service) PurgeExpiredHolds(ctx context.Context) (int64, error) {
	purged, err := s.repo.DeleteExpiredHolds(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("purge expired holds: %w", err)
	}
	return purged, nil
}

// UpsertAvailability replaces the doctor's offered slots for one day.
func (s *Service) UpsertAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time, serviceType ServiceType, isAvailable bool, slots []string) (*Availability, error) {
	if !serviceType.Valid() {
		return nil, &ValidationError{Field: "service_type", Reason: "must be video or home-visit"}
	}
	for _, slot := range slots {
		if _, err := time.Parse("15:04", slot); err != nil {
			return nil, &ValidationError{Field: "time_slots", Reason: fmt.Sprintf("%q is not a valid 24h HH:MM string", slot)}
		}
	}

	av := &Availability{
		DoctorID:    doctorID,
		Date:        Day(date),
		ServiceType: serviceType,
		IsAvailable: isAvailable,
		TimeSlots:   slots,
	}
	saved, err := s.repo.UpsertAvailability(ctx, av)
	if err != nil {
		return nil, fmt.Errorf("upsert availability: %w", err)
	}
	return saved, nil
}

// AvailableSlots returns the offered slots minus active occupancy for a day.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, date time.Time, serviceType ServiceType) ([]string, error) {
	day := Day(date)
	av, err := s.repo.GetAvailability(ctx, doctorID, day)
	if err != nil {
		if errors.Is(err, ErrAvailabilityNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load availability: %w", err)
	}
	if !av.IsAvailable || av.ServiceType != serviceType {
		return nil, nil
	}

	free := make([]string, 0, len(av.TimeSlots))
	for _, slot := range av.TimeSlots {
		existing, err := s.repo.FindActiveForSlot(ctx, doctorID, day, slot, serviceType, nil)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("check slot %s: %w", slot, err)
		}
		if existing != nil {
			continue
		}
		hold, err := s.repo.FindHoldForSlot(ctx, doctorID, day, slot, s.now())
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("check hold %s: %w", slot, err)
		}
		if hold != nil {
			continue
		}
		free = append(free, slot)
	}
	return free, nil
}

func slotLockKey(doctorID uuid.UUID, date time.Time, timeOfDay string) string {
	return fmt.Sprintf("%s:%s:%s", doctorID, Day(date).Format("2006-01-02"), timeOfDay)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID
	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}
	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("insert event log", zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()), zap.Error(err))
	}
}

// send dispatches a notification best-effort; failures are logged, never
// surfaced.
func (s *Service) send(ctx context.Context, userID uuid.UUID, event, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, userID, event, message); err != nil {
		s.log.Warn("notification dispatch failed",
			zap.String("user_id", userID.String()), zap.String("event", event), zap.Error(err))
	}
}
