package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/careloop/teleconsult/internal/scheduling"
)

const dateLayout = "2006-01-02"

type PatientDetailsPayload struct {
	Name        string `json:"name"`
	DateOfBirth string `json:"date_of_birth,omitempty"`
	Problem     string `json:"problem,omitempty"`
	Address     string `json:"address,omitempty"`
}

type CreateAppointmentRequest struct {
	DoctorID       string                `json:"doctor_id"`
	Date           string                `json:"date"`
	Time           string                `json:"time"`
	ServiceType    string                `json:"service_type"`
	Fee            float64               `json:"fee"`
	PatientDetails PatientDetailsPayload `json:"patient_details"`
	VisitAddress   string                `json:"visit_address,omitempty"`
}

type HoldSlotRequest struct {
	DoctorID string `json:"doctor_id"`
	Date     string `json:"date"`
	Time     string `json:"time"`
}

type RescheduleBody struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason,omitempty"`
}

type FollowUpRequest struct {
	Date         string `json:"date"`
	Time         string `json:"time"`
	ServiceType  string `json:"service_type,omitempty"`
	VisitAddress string `json:"visit_address,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

type AssignTestsRequest struct {
	Tests []TestPayload `json:"tests"`
}

type TestPayload struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Category    string `json:"category"`
}

type BookTestRequest struct {
	ClinicName    string `json:"clinic_name"`
	ClinicAddress string `json:"clinic_address,omitempty"`
}

type UpsertAvailabilityRequest struct {
	Date        string   `json:"date"`
	ServiceType string   `json:"service_type"`
	IsAvailable bool     `json:"is_available"`
	TimeSlots   []string `json:"time_slots"`
}

type AvailabilityResponse struct {
	DoctorID    uuid.UUID `json:"doctor_id"`
	Date        string    `json:"date"`
	ServiceType string    `json:"service_type"`
	IsAvailable bool      `json:"is_available"`
	TimeSlots   []string  `json:"time_slots"`
}

type SlotsResponse struct {
	DoctorID    uuid.UUID `json:"doctor_id"`
	Date        string    `json:"date"`
	ServiceType string    `json:"service_type"`
	FreeSlots   []string  `json:"free_slots"`
}

type EligibilityResponse struct {
	Eligible bool   `json:"eligible"`
	Deadline string `json:"deadline"`
}

type AppointmentResponse struct {
	ID                   uuid.UUID                      `json:"id"`
	Number               string                         `json:"appointment_number"`
	DoctorID             uuid.UUID                      `json:"doctor_id"`
	PatientID            uuid.UUID                      `json:"patient_id"`
	Date                 string                         `json:"date"`
	Time                 string                         `json:"time"`
	ServiceType          string                         `json:"service_type"`
	Status               string                         `json:"status"`
	SubStatus            string                         `json:"sub_status,omitempty"`
	Fee                  float64                        `json:"fee"`
	TotalAmount          float64                        `json:"total_amount"`
	PaymentStatus        string                         `json:"payment_status"`
	VisitAddress         string                         `json:"visit_address,omitempty"`
	Documents            []scheduling.Document          `json:"documents,omitempty"`
	LaboratoryTests      []scheduling.TestAssignment    `json:"laboratory_tests,omitempty"`
	InstrumentalTests    []scheduling.TestAssignment    `json:"instrumental_tests,omitempty"`
	Reschedule           *scheduling.RescheduleRequest  `json:"reschedule_request,omitempty"`
	FollowUp             *scheduling.FollowUp           `json:"follow_up,omitempty"`
	DoctorJoinedAt       *time.Time                     `json:"doctor_joined_at,omitempty"`
	PatientJoinedAt      *time.Time                     `json:"patient_joined_at,omitempty"`
	CompletedAt          *time.Time                     `json:"completed_at,omitempty"`
	HomeVisitCompletedAt *time.Time                     `json:"home_visit_completed_at,omitempty"`
	ExpiresAt            *time.Time                     `json:"expires_at,omitempty"`
	CreatedAt            time.Time                      `json:"created_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                   a.ID,
		Number:               a.Number,
		DoctorID:             a.DoctorID,
		PatientID:            a.PatientID,
		Date:                 a.Date.Format(dateLayout),
		Time:                 a.Time,
		ServiceType:          string(a.ServiceType),
		Status:               string(a.Status),
		SubStatus:            string(a.SubStatus),
		Fee:                  a.Fee,
		TotalAmount:          a.TotalAmount,
		PaymentStatus:        string(a.PaymentStatus),
		VisitAddress:         a.VisitAddress,
		Documents:            a.Documents,
		LaboratoryTests:      a.LaboratoryTests,
		InstrumentalTests:    a.InstrumentalTests,
		Reschedule:           a.Reschedule,
		FollowUp:             a.FollowUp,
		DoctorJoinedAt:       a.DoctorJoinedAt,
		PatientJoinedAt:      a.PatientJoinedAt,
		CompletedAt:          a.CompletedAt,
		HomeVisitCompletedAt: a.HomeVisitCompletedAt,
		ExpiresAt:            a.ExpiresAt,
		CreatedAt:            a.CreatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
