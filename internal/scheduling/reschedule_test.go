package scheduling

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRescheduleFixture(t *testing.T) (*Service, *memRepo, *Appointment) {
	t.Helper()
	svc, repo := newTestService(t)
	pinClock(svc, fixedNow)

	doctor := seedUser(repo, RoleDoctor)
	patient := seedUser(repo, RolePatient)
	seedAvailability(repo, doctor, fixedNow, ServiceVideo, "12:00", "15:00")

	appt, err := svc.CreateAppointment(context.Background(), CreateAppointmentInput{
		PatientID: patient, DoctorID: doctor, Date: fixedNow, Time: "12:00", ServiceType: ServiceVideo,
	})
	require.NoError(t, err)
	return svc, repo, appt
}

func TestRequestReschedule(t *testing.T) {
	svc, _, appt := setupRescheduleFixture(t)
	ctx := context.Background()

	updated, err := svc.RequestReschedule(ctx, appt.PatientID, appt.ID, fixedNow, "15:00", "work clash")
	require.NoError(t, err)

	req := updated.Reschedule
	require.NotNil(t, req)
	assert.Equal(t, RolePatient, req.RequestedBy)
	assert.Equal(t, RequestPending, req.Status)
	assert.Equal(t, "15:00", req.RequestedTime)
	assert.Equal(t, "work clash", req.Reason)

	// The appointment itself has not moved yet.
	assert.Equal(t, "12:00", updated.Time)

	// Only one request may be open at a time.
	_, err = svc.RequestReschedule(ctx, appt.DoctorID, appt.ID, fixedNow, "15:00", "")
	assert.ErrorIs(t, err, ErrReschedulePending)
}

func TestRequestReschedule_Guards(t *testing.T) {
	svc, repo, appt := setupRescheduleFixture(t)
	ctx := context.Background()

	stranger := seedUser(repo, RolePatient)
	_, err := svc.RequestReschedule(ctx, stranger, appt.ID, fixedNow, "15:00", "")
	assert.ErrorIs(t, err, ErrNotParticipant)

	// Inside the lead window the request is rejected up front.
	_, err = svc.RequestReschedule(ctx, appt.PatientID, appt.ID, fixedNow, "10:00", "")
	var leadErr *LeadTimeError
	assert.ErrorAs(t, err, &leadErr)

	_, err = svc.Cancel(ctx, appt.PatientID, appt.ID)
	require.NoError(t, err)
	_, err = svc.RequestReschedule(ctx, appt.PatientID, appt.ID, fixedNow, "15:00", "")
	assert.ErrorIs(t, err, ErrNotReschedulable)
}

// A proposed time the doctor never published gets added to availability
// instead of bouncing the request.
func TestRequestReschedule_AutoAddsSlot(t *testing.T) {
	svc, repo, appt := setupRescheduleFixture(t)
	ctx := context.Background()

	_, err := svc.RequestReschedule(ctx, appt.DoctorID, appt.ID, fixedNow, "16:30", "running late")
	require.NoError(t, err)

	av, err := repo.GetAvailability(ctx, appt.DoctorID, fixedNow)
	require.NoError(t, err)
	assert.True(t, av.HasSlot("16:30"))

	// Same for a day with no availability row at all.
	nextDay := fixedNow.AddDate(0, 0, 1)
	_, err = svc.RejectReschedule(ctx, appt.PatientID, appt.ID)
	require.NoError(t, err)
	_, err = svc.RequestReschedule(ctx, appt.DoctorID, appt.ID, nextDay, "09:00", "")
	require.NoError(t, err)

	av, err = repo.GetAvailability(ctx, appt.DoctorID, nextDay)
	require.NoError(t, err)
	assert.True(t, av.HasSlot("09:00"))
}

func TestApproveReschedule(t *testing.T) {
	svc, _, appt := setupRescheduleFixture(t)
	ctx := context.Background()

	_, err := svc.RequestReschedule(ctx, appt.PatientID, appt.ID, fixedNow, "15:00", "")
	require.NoError(t, err)

	// The requester cannot resolve their own request.
	_, err = svc.ApproveReschedule(ctx, appt.PatientID, appt.ID)
	assert.ErrorIs(t, err, ErrSelfApproval)

	updated, err := svc.ApproveReschedule(ctx, appt.DoctorID, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, "15:00", updated.Time)
	assert.Equal(t, Day(fixedNow), updated.Date)

	req := updated.Reschedule
	require.NotNil(t, req)
	assert.Equal(t, RequestApproved, req.Status)
	require.NotNil(t, req.RespondedBy)
	assert.Equal(t, appt.DoctorID, *req.RespondedBy)
	assert.NotNil(t, req.RespondedAt)

	// Resolved means resolved.
	_, err = svc.ApproveReschedule(ctx, appt.DoctorID, appt.ID)
	assert.ErrorIs(t, err, ErrNoReschedulePending)
}

func TestRejectReschedule(t *testing.T) {
	svc, _, appt := setupRescheduleFixture(t)
	ctx := context.Background()

	_, err := svc.RequestReschedule(ctx, appt.DoctorID, appt.ID, fixedNow, "15:00", "")
	require.NoError(t, err)

	updated, err := svc.RejectReschedule(ctx, appt.PatientID, appt.ID)
	require.NoError(t, err)

	// Rejection leaves the slot untouched.
	assert.Equal(t, "12:00", updated.Time)
	assert.Equal(t, RequestRejected, updated.Reschedule.Status)

	// A new request may now be opened.
	_, err = svc.RequestReschedule(ctx, appt.PatientID, appt.ID, fixedNow, "15:00", "second try")
	assert.NoError(t, err)
}

// Approval re-validates the slot: if it was taken while the request sat
// pending, the approval fails instead of double-booking.
func TestApproveReschedule_SlotTakenMeanwhile(t *testing.T) {
	svc, repo, appt := setupRescheduleFixture(t)
	ctx := context.Background()

	_, err := svc.RequestReschedule(ctx, appt.PatientID, appt.ID, fixedNow, "15:00", "")
	require.NoError(t, err)

	other := seedUser(repo, RolePatient)
	_, err = svc.CreateAppointment(ctx, CreateAppointmentInput{
		PatientID: other, DoctorID: appt.DoctorID, Date: fixedNow, Time: "15:00", ServiceType: ServiceVideo,
	})
	require.NoError(t, err)

	_, err = svc.ApproveReschedule(ctx, appt.DoctorID, appt.ID)
	var conflict *SlotConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, ReasonAlreadyBooked, conflict.Reason)
}
