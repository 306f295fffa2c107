package scheduling

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedNow is a Monday, 09:00 UTC. Tests pin the service clock here so
// lead-time and expiry arithmetic is deterministic.
var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func pinClock(svc *Service, at time.Time) {
	svc.now = func() time.Time { return at }
}

func putAppt(r *memRepo, a *Appointment) {
	r.mu.Lock()
	cp := *a
	r.appointments[a.ID] = &cp
	r.mu.Unlock()
}

func TestCreateAppointment(t *testing.T) {
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)
	patient := seedUser(repo, RolePatient)
	seedAvailability(repo, doctor, fixedNow, ServiceVideo, "11:30", "12:00")

	appt, err := svc.CreateAppointment(ctx, CreateAppointmentInput{
		PatientID:   patient,
		DoctorID:    doctor,
		Date:        fixedNow,
		Time:        "11:30",
		ServiceType: ServiceVideo,
		Fee:         500,
		Details:     PatientDetails{Name: "Anna", Problem: "headache"},
	})
	require.NoError(t, err)

	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, PaymentPending, appt.PaymentStatus)
	assert.Equal(t, 500.0, appt.TotalAmount)
	assert.Equal(t, Day(fixedNow), appt.Date)
	assert.True(t, strings.HasPrefix(appt.Number, "CONS-20260302-"), "number %q", appt.Number)

	stored, err := repo.GetAppointmentByID(ctx, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, appt.Number, stored.Number)
}

func TestCreateAppointment_UnknownParties(t *testing.T) {
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)
	patient := seedUser(repo, RolePatient)

	in := CreateAppointmentInput{
		PatientID:   patient,
		DoctorID:    uuid.New(),
		Date:        fixedNow,
		Time:        "11:30",
		ServiceType: ServiceVideo,
	}
	_, err := svc.CreateAppointment(ctx, in)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	// A patient id is no doctor either.
	in.DoctorID = patient
	_, err = svc.CreateAppointment(ctx, in)
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	in.DoctorID = doctor
	in.PatientID = uuid.New()
	_, err = svc.CreateAppointment(ctx, in)
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestCreateAppointment_LeadTime(t *testing.T) {
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)
	patient := seedUser(repo, RolePatient)
	seedAvailability(repo, doctor, fixedNow, ServiceVideo, "10:59", "11:00")

	in := CreateAppointmentInput{
		PatientID:   patient,
		DoctorID:    doctor,
		Date:        fixedNow,
		Time:        "10:59",
		ServiceType: ServiceVideo,
	}
	_, err := svc.CreateAppointment(ctx, in)
	var leadErr *LeadTimeError
	require.ErrorAs(t, err, &leadErr)
	assert.Equal(t, ServiceVideo, leadErr.ServiceType)
	assert.Equal(t, 2*time.Hour, leadErr.Required)

	// Exactly two hours out is allowed.
	in.Time = "11:00"
	_, err = svc.CreateAppointment(ctx, in)
	assert.NoError(t, err)
}

func TestCreateAppointment_HomeVisit(t *testing.T) {
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)
	patient := seedUser(repo, RolePatient)
	seedAvailability(repo, doctor, fixedNow, ServiceHomeVisit, "20:59", "21:00")

	in := CreateAppointmentInput{
		PatientID:   patient,
		DoctorID:    doctor,
		Date:        fixedNow,
		Time:        "21:00",
		ServiceType: ServiceHomeVisit,
	}

	// Address is mandatory for home visits.
	_, err := svc.CreateAppointment(ctx, in)
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "visit_address", valErr.Field)

	in.VisitAddress = "12 Main St"
	in.Time = "20:59" // inside the 12h window
	_, err = svc.CreateAppointment(ctx, in)
	var leadErr *LeadTimeError
	require.ErrorAs(t, err, &leadErr)
	assert.Equal(t, 12*time.Hour, leadErr.Required)

	in.Time = "21:00"
	appt, err := svc.CreateAppointment(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, "12 Main St", appt.VisitAddress)
}

func TestCreateAppointment_Conflicts(t *testing.T) {
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)
	first := seedUser(repo, RolePatient)
	second := seedUser(repo, RolePatient)
	seedAvailability(repo, doctor, fixedNow, ServiceVideo, "12:00")

	in := CreateAppointmentInput{
		PatientID:   first,
		DoctorID:    doctor,
		Date:        fixedNow,
		Time:        "12:00",
		ServiceType: ServiceVideo,
	}
	_, err := svc.CreateAppointment(ctx, in)
	require.NoError(t, err)

	var conflict *SlotConflictError

	// The same slot is gone for everyone else.
	in.PatientID = second
	_, err = svc.CreateAppointment(ctx, in)
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonAlreadyBooked, conflict.Reason)

	// A time the doctor never offered.
	in.Time = "13:00"
	_, err = svc.CreateAppointment(ctx, in)
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonSlotNotOffered, conflict.Reason)

	// A day with no availability row at all.
	in.Date = fixedNow.AddDate(0, 0, 1)
	in.Time = "12:00"
	_, err = svc.CreateAppointment(ctx, in)
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonNoAvailability, conflict.Reason)

	// Availability published for a different service type.
	in.Date = fixedNow
	in.ServiceType = ServiceHomeVisit
	in.VisitAddress = "12 Main St"
	_, err = svc.CreateAppointment(ctx, in)
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonNoAvailability, conflict.Reason)
}

func TestCancelFreesSlot(t *testing.T) {
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)
	first := seedUser(repo, RolePatient)
	second := seedUser(repo, RolePatient)
	seedAvailability(repo, doctor, fixedNow, ServiceVideo, "12:00")

	in := CreateAppointmentInput{
		PatientID:   first,
		DoctorID:    doctor,
		Date:        fixedNow,
		Time:        "12:00",
		ServiceType: ServiceVideo,
	}
	appt, err := svc.CreateAppointment(ctx, in)
	require.NoError(t, err)

	// Only the patient may cancel.
	_, err = svc.Cancel(ctx, doctor, appt.ID)
	assert.ErrorIs(t, err, ErrNotPatient)

	cancelled, err := svc.Cancel(ctx, first, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.Cancel(ctx, first, appt.ID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	// Cancellation alone frees the slot for the next caller.
	in.PatientID = second
	_, err = svc.CreateAppointment(ctx, in)
	assert.NoError(t, err)
}

func TestHoldSlot(t *testing.T) {
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)
	holder := seedUser(repo, RolePatient)
	other := seedUser(repo, RolePatient)
	seedAvailability(repo, doctor, fixedNow, ServiceVideo, "12:00")

	hold, err := svc.HoldSlot(ctx, holder, doctor, fixedNow, "12:00")
	require.NoError(t, err)
	assert.Equal(t, StatusBlocked, hold.Status)
	require.NotNil(t, hold.ExpiresAt)
	assert.Equal(t, fixedNow.Add(5*time.Minute), *hold.ExpiresAt)

	var conflict *SlotConflictError

	// The held slot is occupied for anyone else, booking or holding.
	_, err = svc.CreateAppointment(ctx, CreateAppointmentInput{
		PatientID: other, DoctorID: doctor, Date: fixedNow, Time: "12:00", ServiceType: ServiceVideo,
	})
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonSlotHeld, conflict.Reason)

	_, err = svc.HoldSlot(ctx, other, doctor, fixedNow, "12:00")
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonSlotHeld, conflict.Reason)

	// The holder's own booking passes and consumes the hold.
	appt, err := svc.CreateAppointment(ctx, CreateAppointmentInput{
		PatientID: holder, DoctorID: doctor, Date: fixedNow, Time: "12:00", ServiceType: ServiceVideo,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)

	_, err = repo.GetAppointmentByID(ctx, hold.ID)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestHoldSlot_AlreadyBooked(t *testing.T) {
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)
	patient := seedUser(repo, RolePatient)
	other := seedUser(repo, RolePatient)
	seedAvailability(repo, doctor, fixedNow, ServiceVideo, "12:00")

	_, err := svc.CreateAppointment(ctx, CreateAppointmentInput{
		PatientID: patient, DoctorID: doctor, Date: fixedNow, Time: "12:00", ServiceType: ServiceVideo,
	})
	require.NoError(t, err)

	_, err = svc.HoldSlot(ctx, other, doctor, fixedNow, "12:00")
	var conflict *SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonAlreadyBooked, conflict.Reason)
}

func TestPurgeExpiredHolds(t *testing.T) {
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)
	holder := seedUser(repo, RolePatient)
	other := seedUser(repo, RolePatient)
	seedAvailability(repo, doctor, fixedNow, ServiceVideo, "12:00")

	_, err := svc.HoldSlot(ctx, holder, doctor, fixedNow, "12:00")
	require.NoError(t, err)

	// Inside the TTL nothing is purged.
	purged, err := svc.PurgeExpiredHolds(ctx)
	require.NoError(t, err)
	assert.Zero(t, purged)

	pinClock(svc, fixedNow.Add(6*time.Minute))

	// The expired hold no longer blocks the slot even before the sweep.
	_, err = svc.CreateAppointment(ctx, CreateAppointmentInput{
		PatientID: other, DoctorID: doctor, Date: fixedNow, Time: "12:00", ServiceType: ServiceVideo,
	})
	assert.NoError(t, err)

	purged, err = svc.PurgeExpiredHolds(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, purged)
}

func TestInsertWithNumberRetries(t *testing.T) {
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)
	patient := seedUser(repo, RolePatient)
	seedAvailability(repo, doctor, fixedNow, ServiceVideo, "12:00", "13:00")

	repo.rejectNumbers = 2
	_, err := svc.CreateAppointment(ctx, CreateAppointmentInput{
		PatientID: patient, DoctorID: doctor, Date: fixedNow, Time: "12:00", ServiceType: ServiceVideo,
	})
	assert.NoError(t, err)

	repo.rejectNumbers = 5
	_, err = svc.CreateAppointment(ctx, CreateAppointmentInput{
		PatientID: patient, DoctorID: doctor, Date: fixedNow, Time: "13:00", ServiceType: ServiceVideo,
	})
	assert.Error(t, err)
}

func TestDirectReschedule(t *testing.T) {
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)
	patient := seedUser(repo, RolePatient)
	seedAvailability(repo, doctor, fixedNow, ServiceVideo, "12:00", "15:00")

	appt, err := svc.CreateAppointment(ctx, CreateAppointmentInput{
		PatientID: patient, DoctorID: doctor, Date: fixedNow, Time: "12:00", ServiceType: ServiceVideo,
	})
	require.NoError(t, err)

	moved, err := svc.Reschedule(ctx, appt.ID, fixedNow, "15:00")
	require.NoError(t, err)
	assert.Equal(t, "15:00", moved.Time)
	assert.Equal(t, StatusPending, moved.Status)

	// Moving back onto its own old slot works: the appointment's own
	// occupancy is excluded from the check.
	moved, err = svc.Reschedule(ctx, appt.ID, fixedNow, "12:00")
	require.NoError(t, err)
	assert.Equal(t, "12:00", moved.Time)

	_, err = svc.Cancel(ctx, patient, appt.ID)
	require.NoError(t, err)
	_, err = svc.Reschedule(ctx, appt.ID, fixedNow, "15:00")
	assert.ErrorIs(t, err, ErrNotReschedulable)
}

func TestGetAppointment_PartyOnly(t *testing.T) {
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)
	patient := seedUser(repo, RolePatient)
	stranger := seedUser(repo, RolePatient)
	seedAvailability(repo, doctor, fixedNow, ServiceVideo, "12:00")

	appt, err := svc.CreateAppointment(ctx, CreateAppointmentInput{
		PatientID: patient, DoctorID: doctor, Date: fixedNow, Time: "12:00", ServiceType: ServiceVideo,
	})
	require.NoError(t, err)

	for _, caller := range []uuid.UUID{doctor, patient} {
		got, err := svc.GetAppointment(ctx, caller, appt.ID)
		require.NoError(t, err)
		assert.Equal(t, appt.ID, got.ID)
	}

	_, err = svc.GetAppointment(ctx, stranger, appt.ID)
	assert.ErrorIs(t, err, ErrNotParticipant)
}

func TestAvailableSlots(t *testing.T) {
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)
	patient := seedUser(repo, RolePatient)
	holder := seedUser(repo, RolePatient)
	seedAvailability(repo, doctor, fixedNow, ServiceVideo, "12:00", "13:00", "14:00")

	_, err := svc.CreateAppointment(ctx, CreateAppointmentInput{
		PatientID: patient, DoctorID: doctor, Date: fixedNow, Time: "12:00", ServiceType: ServiceVideo,
	})
	require.NoError(t, err)
	_, err = svc.HoldSlot(ctx, holder, doctor, fixedNow, "13:00")
	require.NoError(t, err)

	free, err := svc.AvailableSlots(ctx, doctor, fixedNow, ServiceVideo)
	require.NoError(t, err)
	assert.Equal(t, []string{"14:00"}, free)

	// No availability row means no slots, not an error.
	free, err = svc.AvailableSlots(ctx, doctor, fixedNow.AddDate(0, 0, 1), ServiceVideo)
	require.NoError(t, err)
	assert.Empty(t, free)
}

func TestUpsertAvailability_Validation(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	doctor := seedUser(repo, RoleDoctor)

	_, err := svc.UpsertAvailability(ctx, doctor, fixedNow, "walk-in", true, []string{"09:00"})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "service_type", valErr.Field)

	_, err = svc.UpsertAvailability(ctx, doctor, fixedNow, ServiceVideo, true, []string{"25:99"})
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "time_slots", valErr.Field)

	av, err := svc.UpsertAvailability(ctx, doctor, fixedNow, ServiceVideo, true, []string{"09:00", "09:30"})
	require.NoError(t, err)
	assert.Equal(t, Day(fixedNow), av.Date)
	assert.True(t, av.HasSlot("09:30"))
}
