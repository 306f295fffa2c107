package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/careloop/teleconsult/internal/blobstore"
)

type TestInput struct {
	ProductID   string
	ProductName string
	Category    TestCategory
}

// AssignTests appends doctor-ordered laboratory/instrumental tests to the
// appointment. Entries are immutable once appended; the whole batch lands
// in one aggregate write, so a partial failure commits nothing.
func (s *Service) AssignTests(ctx context.Context, doctorID, id uuid.UUID, tests []TestInput) (*Appointment, error) {
	if len(tests) == 0 {
		return nil, &ValidationError{Field: "tests", Reason: "at least one test is required"}
	}
	for _, t := range tests {
		if t.ProductID == "" || t.ProductName == "" {
			return nil, &ValidationError{Field: "tests", Reason: "product_id and product_name are required"}
		}
		if t.Category != TestLaboratory && t.Category != TestInstrumental {
			return nil, &ValidationError{Field: "tests", Reason: "category must be laboratory or instrumental"}
		}
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != doctorID {
		return nil, ErrNotDoctor
	}
	switch appt.Status {
	case StatusConfirmed, StatusInProgress, StatusCompleted:
	default:
		return nil, &ValidationError{Field: "appointment", Reason: "tests can only be assigned to confirmed, in-progress or completed appointments"}
	}

	assignedAt := s.now()
	for _, t := range tests {
		appt.AssignTests(t.Category, []TestAssignment{{
			ProductID:   t.ProductID,
			ProductName: t.ProductName,
			AssignedAt:  assignedAt,
		}})
	}

	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("assign tests: %w", err)
	}

	s.send(ctx, appt.PatientID, "tests_assigned",
		fmt.Sprintf("%d test(s) assigned for appointment %s", len(tests), appt.Number))

	return appt, nil
}

// BookClinicTest records the clinic the patient chose for an assigned test.
// Matching is first-unbooked, so duplicate product ids are bookable one at
// a time.
func (s *Service) BookClinicTest(ctx context.Context, patientID, id uuid.UUID, productID string, clinic Clinic) (*Appointment, error) {
	if clinic.Name == "" {
		return nil, &ValidationError{Field: "clinic", Reason: "clinic name is required"}
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrNotPatient
	}
	if appt.Status != StatusCompleted {
		return nil, &ValidationError{Field: "appointment", Reason: "tests can only be booked after the consultation is completed"}
	}

	if !appt.BookTest(productID, clinic, s.now()) {
		return nil, ErrTestNotAssigned
	}

	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("book test: %w", err)
	}
	return appt, nil
}

// UploadTestResult validates, stores and attaches a result file to the
// matching test assignment.
func (s *Service) UploadTestResult(ctx context.Context, patientID, id uuid.UUID, productID string, file blobstore.File) (*Appointment, error) {
	if err := blobstore.ValidateResultFile(file); err != nil {
		return nil, &ValidationError{Field: "file", Reason: err.Error()}
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrNotPatient
	}

	obj, err := s.store.Upload(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("upload result file: %w", err)
	}

	doc := Document{
		URL:              obj.URL,
		Name:             file.Name,
		UploadedAt:       s.now(),
		IsExternalResult: false,
	}
	if !appt.AttachResult(productID, doc) {
		return nil, ErrTestNotAssigned
	}

	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("attach test result: %w", err)
	}
	return appt, nil
}

// AttachDocument uploads and appends a patient document (e.g. an external
// report) to the appointment's document list.
func (s *Service) AttachDocument(ctx context.Context, patientID, id uuid.UUID, file blobstore.File, isExternalResult bool) (*Appointment, error) {
	if err := blobstore.ValidateResultFile(file); err != nil {
		return nil, &ValidationError{Field: "file", Reason: err.Error()}
	}

	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrNotPatient
	}

	obj, err := s.store.Upload(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("upload document: %w", err)
	}

	appt.AddDocument(Document{
		URL:              obj.URL,
		Name:             file.Name,
		UploadedAt:       s.now(),
		IsExternalResult: isExternalResult,
	})

	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("attach document: %w", err)
	}
	return appt, nil
}
