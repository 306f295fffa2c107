package scheduling

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	// StatusBlocked marks a temporary hold, not a real booking. Blocked
	// records carry ExpiresAt and are purged by the sweeper.
	StatusBlocked Status = "blocked"
)

type SubStatus string

// SubStatusConducted marks that the substance of a confirmed appointment
// (the call or the visit) actually took place. Top-level status stays
// untouched; "completed" is reserved for the doctor's explicit closing.
const SubStatusConducted SubStatus = "conducted"

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

type ServiceType string

const (
	ServiceVideo     ServiceType = "video"
	ServiceHomeVisit ServiceType = "home-visit"
)

// servicePolicy keys the per-type booking rules so call sites never
// branch on the type directly.
type servicePolicy struct {
	LeadTime        time.Duration
	RequiresAddress bool
}

var servicePolicies = map[ServiceType]servicePolicy{
	ServiceVideo:     {LeadTime: 2 * time.Hour, RequiresAddress: false},
	ServiceHomeVisit: {LeadTime: 12 * time.Hour, RequiresAddress: true},
}

func (t ServiceType) Valid() bool {
	_, ok := servicePolicies[t]
	return ok
}

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

type User struct {
	ID        uuid.UUID
	Name      string
	Phone     *string
	Role      Role
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Availability holds the slots a doctor offers on one calendar day.
// One row per (doctor, date); ServiceType is a field, not part of the key.
type Availability struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	Date        time.Time
	ServiceType ServiceType
	IsAvailable bool
	TimeSlots   []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// HasSlot reports whether the given HH:MM string is offered on this day.
func (a *Availability) HasSlot(timeOfDay string) bool {
	for _, s := range a.TimeSlots {
		if s == timeOfDay {
			return true
		}
	}
	return false
}

type PatientDetails struct {
	Name        string     `json:"name"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Problem     string     `json:"problem,omitempty"`
	Address     string     `json:"address,omitempty"`
}

type Document struct {
	URL              string    `json:"url"`
	Name             string    `json:"name"`
	UploadedAt       time.Time `json:"uploaded_at"`
	IsExternalResult bool      `json:"is_external_result,omitempty"`
}

type TestCategory string

const (
	TestLaboratory   TestCategory = "laboratory"
	TestInstrumental TestCategory = "instrumental"
)

type TestAssignment struct {
	ProductID     string     `json:"product_id"`
	ProductName   string     `json:"product_name"`
	AssignedAt    time.Time  `json:"assigned_at"`
	Booked        bool       `json:"booked"`
	ClinicName    string     `json:"clinic_name,omitempty"`
	ClinicAddress string     `json:"clinic_address,omitempty"`
	BookedAt      *time.Time `json:"booked_at,omitempty"`
	ResultFile    *Document  `json:"result_file,omitempty"`
}

type Clinic struct {
	Name    string
	Address string
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestApproved RequestStatus = "approved"
	RequestRejected RequestStatus = "rejected"
)

// RescheduleRequest is the pending half of the bilateral reschedule
// handshake, embedded in the appointment. At most one may be pending.
type RescheduleRequest struct {
	RequestedBy   Role          `json:"requested_by"`
	RequestedDate time.Time     `json:"requested_date"`
	RequestedTime string        `json:"requested_time"`
	Reason        string        `json:"reason,omitempty"`
	Status        RequestStatus `json:"status"`
	RequestedAt   time.Time     `json:"requested_at"`
	RespondedAt   *time.Time    `json:"responded_at,omitempty"`
	RespondedBy   *uuid.UUID    `json:"responded_by,omitempty"`
}

// FollowUp is a weak reference to an independently owned follow-up
// appointment. No lifecycle coupling with the target.
type FollowUp struct {
	Required      bool       `json:"required"`
	Date          *time.Time `json:"date,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

// Appointment is the aggregate root. Sub-collections are append-only and
// mutated only through the methods below; every persisted change is a
// single whole-row write.
type Appointment struct {
	ID                   uuid.UUID
	Number               string
	DoctorID             uuid.UUID
	PatientID            uuid.UUID
	Date                 time.Time // normalized to UTC midnight
	Time                 string    // HH:MM, 24h
	ServiceType          ServiceType
	Status               Status
	SubStatus            SubStatus
	Fee                  float64
	TotalAmount          float64
	PaymentStatus        PaymentStatus
	PatientDetails       PatientDetails
	VisitAddress         string
	Documents            []Document
	LaboratoryTests      []TestAssignment
	InstrumentalTests    []TestAssignment
	Reschedule           *RescheduleRequest
	FollowUp             *FollowUp
	DoctorJoinedAt       *time.Time
	PatientJoinedAt      *time.Time
	CompletedAt          *time.Time
	HomeVisitCompletedAt *time.Time
	ExpiresAt            *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// PartyRole returns the caller's role on this appointment, or false if the
// caller is neither the doctor nor the patient.
func (a *Appointment) PartyRole(userID uuid.UUID) (Role, bool) {
	switch userID {
	case a.DoctorID:
		return RoleDoctor, true
	case a.PatientID:
		return RolePatient, true
	default:
		return "", false
	}
}

// Active reports whether the appointment occupies its slot for conflict
// purposes.
func (a *Appointment) Active() bool {
	return a.Status == StatusPending || a.Status == StatusConfirmed
}

func (a *Appointment) Terminal() bool {
	return a.Status == StatusCompleted || a.Status == StatusCancelled
}

// HoldExpired reports whether a blocked record has outlived its TTL.
func (a *Appointment) HoldExpired(now time.Time) bool {
	return a.Status == StatusBlocked && a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// AddDocument appends to the document list. Entries are never removed or
// reordered.
func (a *Appointment) AddDocument(doc Document) {
	a.Documents = append(a.Documents, doc)
}

// AssignTests appends timestamped assignments to the category's list.
func (a *Appointment) AssignTests(category TestCategory, tests []TestAssignment) {
	switch category {
	case TestLaboratory:
		a.LaboratoryTests = append(a.LaboratoryTests, tests...)
	case TestInstrumental:
		a.InstrumentalTests = append(a.InstrumentalTests, tests...)
	}
}

// findTest returns the first assignment matching productID that passes the
// filter, searching laboratory tests before instrumental ones.
func (a *Appointment) findTest(productID string, match func(*TestAssignment) bool) *TestAssignment {
	for i := range a.LaboratoryTests {
		t := &a.LaboratoryTests[i]
		if t.ProductID == productID && match(t) {
			return t
		}
	}
	for i := range a.InstrumentalTests {
		t := &a.InstrumentalTests[i]
		if t.ProductID == productID && match(t) {
			return t
		}
	}
	return nil
}

// BookTest marks the first unbooked assignment for productID as booked at
// the given clinic. Duplicate product ids are booked one at a time.
func (a *Appointment) BookTest(productID string, clinic Clinic, now time.Time) bool {
	t := a.findTest(productID, func(t *TestAssignment) bool { return !t.Booked })
	if t == nil {
		return false
	}
	t.Booked = true
	t.ClinicName = clinic.Name
	t.ClinicAddress = clinic.Address
	bookedAt := now
	t.BookedAt = &bookedAt
	return true
}

// AttachResult attaches an uploaded result file to the first assignment
// matching productID. Booking is not a prerequisite.
func (a *Appointment) AttachResult(productID string, doc Document) bool {
	t := a.findTest(productID, func(*TestAssignment) bool { return true })
	if t == nil {
		return false
	}
	t.ResultFile = &doc
	return true
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}

// Day normalizes t to UTC midnight so availability writes and conflict
// queries agree on the day boundary regardless of representation drift.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// SlotInstant combines a normalized day with an HH:MM string into the
// concrete instant used for lead-time checks.
func SlotInstant(day time.Time, timeOfDay string) (time.Time, error) {
	hm, err := time.Parse("15:04", timeOfDay)
	if err != nil {
		return time.Time{}, &ValidationError{Field: "time", Reason: "must be a valid 24h HH:MM string"}
	}
	d := Day(day)
	return time.Date(d.Year(), d.Month(), d.Day(), hm.Hour(), hm.Minute(), 0, 0, time.UTC), nil
}
