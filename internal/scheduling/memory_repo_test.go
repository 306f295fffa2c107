package scheduling

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careloop/teleconsult/internal/blobstore"
	"github.com/careloop/teleconsult/internal/config"
)

// memRepo mirrors the Postgres repository's semantics in memory, including
// the unique indexes on appointment numbers and active slots.
type memRepo struct {
	mu            sync.Mutex
	users         map[uuid.UUID]*User
	availability  map[string]*Availability
	appointments  map[uuid.UUID]*Appointment
	events        []EventLog
	// rejectNumbers makes the next n inserts fail with ErrDuplicateNumber
	// to exercise the regeneration loop.
	rejectNumbers int
}

func newMemRepo() *memRepo {
	return &memRepo{
		users:        make(map[uuid.UUID]*User),
		availability: make(map[string]*Availability),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func availKey(doctorID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("%s|%s", doctorID, Day(day).Format("2006-01-02"))
}

func (r *memRepo) GetUserByID(_ context.Context, id uuid.UUID) (*User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *memRepo) GetAvailability(_ context.Context, doctorID uuid.UUID, day time.Time) (*Availability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	av, ok := r.availability[availKey(doctorID, day)]
	if !ok {
		return nil, ErrAvailabilityNotFound
	}
	cp := *av
	cp.TimeSlots = append([]string(nil), av.TimeSlots...)
	return &cp, nil
}

func (r *memRepo) UpsertAvailability(_ context.Context, av *Availability) (*Availability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *av
	if cp.ID == uuid.Nil {
		cp.ID = uuid.New()
	}
	cp.Date = Day(av.Date)
	cp.TimeSlots = append([]string(nil), av.TimeSlots...)
	r.availability[availKey(av.DoctorID, av.Date)] = &cp
	out := cp
	return &out, nil
}

func (r *memRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (r *memRepo) CreateAppointment(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rejectNumbers > 0 {
		r.rejectNumbers--
		return ErrDuplicateNumber
	}
	for _, existing := range r.appointments {
		if existing.Number == appt.Number {
			return ErrDuplicateNumber
		}
		if existing.Active() && appt.Active() &&
			existing.DoctorID == appt.DoctorID &&
			existing.Date.Equal(Day(appt.Date)) &&
			existing.Time == appt.Time &&
			existing.ServiceType == appt.ServiceType {
			return ErrDuplicateSlot
		}
	}

	appt.CreatedAt = time.Now()
	appt.UpdatedAt = appt.CreatedAt
	cp := *appt
	r.appointments[appt.ID] = &cp
	return nil
}

func (r *memRepo) UpdateAppointment(_ context.Context, appt *Appointment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[appt.ID]; !ok {
		return ErrAppointmentNotFound
	}
	appt.UpdatedAt = time.Now()
	cp := *appt
	r.appointments[appt.ID] = &cp
	return nil
}

func (r *memRepo) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(r.appointments, id)
	return nil
}

func (r *memRepo) list(filter func(*Appointment) bool, limit, offset int) []Appointment {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Appointment
	for _, a := range r.appointments {
		if filter(a) {
			out = append(out, *a)
		}
	}
	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *memRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.list(func(a *Appointment) bool {
		return a.DoctorID == doctorID && a.Status != StatusBlocked
	}, limit, offset), nil
}

func (r *memRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.list(func(a *Appointment) bool {
		return a.PatientID == patientID && a.Status != StatusBlocked
	}, limit, offset), nil
}

func (r *memRepo) FindActiveForSlot(_ context.Context, doctorID uuid.UUID, day time.Time, timeOfDay string, serviceType ServiceType, excludeID *uuid.UUID) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appointments {
		if !a.Active() || a.DoctorID != doctorID || !a.Date.Equal(Day(day)) || a.Time != timeOfDay {
			continue
		}
		if serviceType != "" && a.ServiceType != serviceType {
			continue
		}
		if excludeID != nil && a.ID == *excludeID {
			continue
		}
		cp := *a
		return &cp, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *memRepo) FindHoldForSlot(_ context.Context, doctorID uuid.UUID, day time.Time, timeOfDay string, now time.Time) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.appointments {
		if a.Status != StatusBlocked || a.DoctorID != doctorID || !a.Date.Equal(Day(day)) || a.Time != timeOfDay {
			continue
		}
		if a.ExpiresAt == nil || !a.ExpiresAt.After(now) {
			continue
		}
		cp := *a
		return &cp, nil
	}
	return nil, ErrAppointmentNotFound
}

func (r *memRepo) DeleteExpiredHolds(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged int64
	for id, a := range r.appointments {
		if a.Status == StatusBlocked && a.ExpiresAt != nil && a.ExpiresAt.Before(now) {
			delete(r.appointments, id)
			purged++
		}
	}
	return purged, nil
}

func (r *memRepo) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// noopLocker runs the critical section without any locking; the serial
// tests don't race.
type noopLocker struct{}

func (noopLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService(t *testing.T) (*Service, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	cfg := config.Config{
		HoldTTL:       5 * time.Minute,
		SessionSecret: "test-session-secret",
		SessionAppID:  "teleconsult-test",
	}
	svc := NewService(repo, noopLocker{}, blobstore.NewMemory(), nil, cfg, zap.NewNop())
	return svc, repo
}

func seedUser(r *memRepo, role Role) uuid.UUID {
	id := uuid.New()
	r.users[id] = &User{ID: id, Name: string(role) + " user", Role: role}
	return id
}

func seedAvailability(r *memRepo, doctorID uuid.UUID, day time.Time, serviceType ServiceType, slots ...string) {
	r.availability[availKey(doctorID, day)] = &Availability{
		ID:          uuid.New(),
		DoctorID:    doctorID,
		Date:        Day(day),
		ServiceType: serviceType,
		IsAvailable: true,
		TimeSlots:   slots,
	}
}
