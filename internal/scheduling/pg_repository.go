package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Unique index names the repository keys collision handling on. They must
// match the migrations.
const (
	numberConstraint     = "appointments_number_key"
	activeSlotConstraint = "appointments_active_slot_idx"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var phone *string

	err := row.Scan(
		&u.ID,
		&u.Name,
		&phone,
		&u.Role,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	u.Phone = phone
	return &u, nil
}

func scanAvailability(row pgx.Row) (*Availability, error) {
	var a Availability

	err := row.Scan(
		&a.ID,
		&a.DoctorID,
		&a.Date,
		&a.ServiceType,
		&a.IsAvailable,
		&a.TimeSlots,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAvailabilityNotFound
		}
		return nil, err
	}

	return &a, nil
}

const appointmentColumns = `
	id, appointment_number, doctor_id, patient_id, date, time_of_day,
	service_type, status, sub_status, fee, total_amount, payment_status,
	patient_details, visit_address, documents, laboratory_tests,
	instrumental_tests, reschedule_request, follow_up,
	doctor_joined_at, patient_joined_at, completed_at, home_visit_completed_at,
	expires_at, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var subStatus, visitAddress *string
	var details, documents, labTests, instrTests, reschedule, followUp []byte

	err := row.Scan(
		&a.ID,
		&a.Number,
		&a.DoctorID,
		&a.PatientID,
		&a.Date,
		&a.Time,
		&a.ServiceType,
		&a.Status,
		&subStatus,
		&a.Fee,
		&a.TotalAmount,
		&a.PaymentStatus,
		&details,
		&visitAddress,
		&documents,
		&labTests,
		&instrTests,
		&reschedule,
		&followUp,
		&a.DoctorJoinedAt,
		&a.PatientJoinedAt,
		&a.CompletedAt,
		&a.HomeVisitCompletedAt,
		&a.ExpiresAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if subStatus != nil {
		a.SubStatus = SubStatus(*subStatus)
	}
	if visitAddress != nil {
		a.VisitAddress = *visitAddress
	}
	if err := unmarshalInto(details, &a.PatientDetails); err != nil {
		return nil, fmt.Errorf("decode patient_details: %w", err)
	}
	if err := unmarshalInto(documents, &a.Documents); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}
	if err := unmarshalInto(labTests, &a.LaboratoryTests); err != nil {
		return nil, fmt.Errorf("decode laboratory_tests: %w", err)
	}
	if err := unmarshalInto(instrTests, &a.InstrumentalTests); err != nil {
		return nil, fmt.Errorf("decode instrumental_tests: %w", err)
	}
	if err := unmarshalInto(reschedule, &a.Reschedule); err != nil {
		return nil, fmt.Errorf("decode reschedule_request: %w", err)
	}
	if err := unmarshalInto(followUp, &a.FollowUp); err != nil {
		return nil, fmt.Errorf("decode follow_up: %w", err)
	}

	return &a, nil
}

func unmarshalInto(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func marshalOrNil(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// appointmentArgs flattens the aggregate for insert/update, encoding the
// embedded sub-records as JSONB.
func appointmentArgs(a *Appointment) ([]any, error) {
	details, err := json.Marshal(a.PatientDetails)
	if err != nil {
		return nil, fmt.Errorf("encode patient_details: %w", err)
	}
	documents, err := json.Marshal(a.Documents)
	if err != nil {
		return nil, fmt.Errorf("encode documents: %w", err)
	}
	labTests, err := json.Marshal(a.LaboratoryTests)
	if err != nil {
		return nil, fmt.Errorf("encode laboratory_tests: %w", err)
	}
	instrTests, err := json.Marshal(a.InstrumentalTests)
	if err != nil {
		return nil, fmt.Errorf("encode instrumental_tests: %w", err)
	}
	var reschedule, followUp []byte
	if a.Reschedule != nil {
		if reschedule, err = marshalOrNil(a.Reschedule); err != nil {
			return nil, fmt.Errorf("encode reschedule_request: %w", err)
		}
	}
	if a.FollowUp != nil {
		if followUp, err = marshalOrNil(a.FollowUp); err != nil {
			return nil, fmt.Errorf("encode follow_up: %w", err)
		}
	}

	var subStatus *string
	if a.SubStatus != "" {
		s := string(a.SubStatus)
		subStatus = &s
	}
	var visitAddress *string
	if a.VisitAddress != "" {
		visitAddress = &a.VisitAddress
	}

	return []any{
		a.ID, a.Number, a.DoctorID, a.PatientID, a.Date, a.Time,
		a.ServiceType, a.Status, subStatus, a.Fee, a.TotalAmount, a.PaymentStatus,
		details, visitAddress, documents, labTests,
		instrTests, reschedule, followUp,
		a.DoctorJoinedAt, a.PatientJoinedAt, a.CompletedAt, a.HomeVisitCompletedAt,
		a.ExpiresAt,
	}, nil
}

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case numberConstraint:
			return ErrDuplicateNumber
		case activeSlotConstraint:
			return ErrDuplicateSlot
		}
	}
	return err
}

// Interface methods

func (r *PgRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, phone, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id)
	return scanUser(row)
}

func (r *PgRepository) GetAvailability(ctx context.Context, doctorID uuid.UUID, day time.Time) (*Availability, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, doctor_id, date, service_type, is_available, time_slots, created_at, updated_at
		FROM availability
		WHERE doctor_id = $1
		  AND date >= $2 AND date < $2::date + 1
	`, doctorID, Day(day))
	return scanAvailability(row)
}

func (r *PgRepository) UpsertAvailability(ctx context.Context, av *Availability) (*Availability, error) {
	id := av.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO availability (id, doctor_id, date, service_type, is_available, time_slots, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		ON CONFLICT (doctor_id, date) DO UPDATE
		SET service_type = EXCLUDED.service_type,
		    is_available = EXCLUDED.is_available,
		    time_slots = EXCLUDED.time_slots,
		    updated_at = now()
		RETURNING id, doctor_id, date, service_type, is_available, time_slots, created_at, updated_at
	`, id, av.DoctorID, Day(av.Date), av.ServiceType, av.IsAvailable, av.TimeSlots)
	return scanAvailability(row)
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateAppointment(ctx context.Context, appt *Appointment) error {
	args, err := appointmentArgs(appt)
	if err != nil {
		return err
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (
			id, appointment_number, doctor_id, patient_id, date, time_of_day,
			service_type, status, sub_status, fee, total_amount, payment_status,
			patient_details, visit_address, documents, laboratory_tests,
			instrumental_tests, reschedule_request, follow_up,
			doctor_joined_at, patient_joined_at, completed_at, home_visit_completed_at,
			expires_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14,
		        $15, $16, $17, $18, $19, $20, $21, $22, $23, $24, now(), now())
		RETURNING created_at, updated_at
	`, args...)

	if err := row.Scan(&appt.CreatedAt, &appt.UpdatedAt); err != nil {
		return mapUniqueViolation(err)
	}
	return nil
}

func (r *PgRepository) UpdateAppointment(ctx context.Context, appt *Appointment) error {
	args, err := appointmentArgs(appt)
	if err != nil {
		return err
	}

	row := r.pool.QueryRow(ctx, `
		UPDATE appointments SET
			appointment_number = $2, doctor_id = $3, patient_id = $4,
			date = $5, time_of_day = $6, service_type = $7, status = $8,
			sub_status = $9, fee = $10, total_amount = $11, payment_status = $12,
			patient_details = $13, visit_address = $14, documents = $15,
			laboratory_tests = $16, instrumental_tests = $17,
			reschedule_request = $18, follow_up = $19,
			doctor_joined_at = $20, patient_joined_at = $21, completed_at = $22,
			home_visit_completed_at = $23, expires_at = $24,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, args...)

	if err := row.Scan(&appt.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAppointmentNotFound
		}
		return mapUniqueViolation(err)
	}
	return nil
}

func (r *PgRepository) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *PgRepository) listAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (r *PgRepository) ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1 AND status <> 'blocked'
		ORDER BY date DESC, time_of_day DESC
		LIMIT $2 OFFSET $3
	`, doctorID, limit, offset)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.listAppointments(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1 AND status <> 'blocked'
		ORDER BY date DESC, time_of_day DESC
		LIMIT $2 OFFSET $3
	`, patientID, limit, offset)
}

// FindActiveForSlot returns the pending/confirmed occupant of a slot, if
// any. The day is matched as a range to tolerate representation drift
// between the availability write path and this query. An empty serviceType
// matches any type.
func (r *PgRepository) FindActiveForSlot(ctx context.Context, doctorID uuid.UUID, day time.Time, timeOfDay string, serviceType ServiceType, excludeID *uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND date >= $2 AND date < $2::date + 1
		  AND time_of_day = $3
		  AND status IN ('pending', 'confirmed')
		  AND ($4 = '' OR service_type = $4)
		  AND ($5::uuid IS NULL OR id <> $5)
		LIMIT 1
	`, doctorID, Day(day), timeOfDay, string(serviceType), excludeID)
	return scanAppointment(row)
}

// FindHoldForSlot returns the live (non-expired) blocked record on a slot,
// if any.
func (r *PgRepository) FindHoldForSlot(ctx context.Context, doctorID uuid.UUID, day time.Time, timeOfDay string, now time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND date >= $2 AND date < $2::date + 1
		  AND time_of_day = $3
		  AND status = 'blocked'
		  AND expires_at > $4
		LIMIT 1
	`, doctorID, Day(day), timeOfDay, now)
	return scanAppointment(row)
}

func (r *PgRepository) DeleteExpiredHolds(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM appointments
		WHERE status = 'blocked'
		  AND expires_at IS NOT NULL
		  AND expires_at < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.AppointmentID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}

	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
