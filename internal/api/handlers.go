package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/careloop/teleconsult/internal/identity"
	"github.com/careloop/teleconsult/internal/scheduling"
)

func parseDate(s string) (time.Time, error) {
	d, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("date must be YYYY-MM-DD")
	}
	return d, nil
}

func caller(w http.ResponseWriter, r *http.Request) (*identity.Identity, bool) {
	id, err := identity.FromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no_identity", err.Error())
		return nil, false
	}
	return id, true
}

func appointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func createAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}

		var req CreateAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		details := scheduling.PatientDetails{
			Name:    req.PatientDetails.Name,
			Problem: req.PatientDetails.Problem,
			Address: req.PatientDetails.Address,
		}
		if req.PatientDetails.DateOfBirth != "" {
			dob, err := parseDate(req.PatientDetails.DateOfBirth)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date_of_birth", err.Error())
				return
			}
			details.DateOfBirth = &dob
		}

		appt, err := svc.CreateAppointment(r.Context(), scheduling.CreateAppointmentInput{
			PatientID:    id.UserID,
			DoctorID:     doctorID,
			Date:         date,
			Time:         req.Time,
			ServiceType:  scheduling.ServiceType(req.ServiceType),
			Fee:          req.Fee,
			Details:      details,
			VisitAddress: req.VisitAddress,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func holdSlotHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}

		var req HoldSlotRequest
		if !decodeBody(w, r, &req) {
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		hold, err := svc.HoldSlot(r.Context(), id.UserID, doctorID, date, req.Time)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(hold))
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.GetAppointment(r.Context(), id.UserID, apptID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// listAppointmentsHandler lists the caller's own appointments, doctors see
// their schedule, patients their bookings.
func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}

		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

		var (
			appts []scheduling.Appointment
			err   error
		)
		if id.Role == string(scheduling.RoleDoctor) {
			appts, err = svc.ListByDoctor(r.Context(), id.UserID, limit, offset)
		} else {
			appts, err = svc.ListByPatient(r.Context(), id.UserID, limit, offset)
		}
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), id.UserID, apptID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := caller(w, r); !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req RescheduleBody
		if !decodeBody(w, r, &req) {
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		appt, err := svc.Reschedule(r.Context(), apptID, date, req.Time)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func upsertAvailabilityHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		if id.Role != string(scheduling.RoleDoctor) {
			writeError(w, http.StatusForbidden, "not_allowed", "only doctors manage availability")
			return
		}

		var req UpsertAvailabilityRequest
		if !decodeBody(w, r, &req) {
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		av, err := svc.UpsertAvailability(r.Context(), id.UserID, date, scheduling.ServiceType(req.ServiceType), req.IsAvailable, req.TimeSlots)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			DoctorID:    av.DoctorID,
			Date:        av.Date.Format(dateLayout),
			ServiceType: string(av.ServiceType),
			IsAvailable: av.IsAvailable,
			TimeSlots:   av.TimeSlots,
		})
	}
}

func availableSlotsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := caller(w, r); !ok {
			return
		}

		doctorID, err := uuid.Parse(r.URL.Query().Get("doctor_id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		date, err := parseDate(r.URL.Query().Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}
		serviceType := scheduling.ServiceType(r.URL.Query().Get("service_type"))
		if !serviceType.Valid() {
			writeError(w, http.StatusBadRequest, "invalid_service_type", "service_type must be video or home-visit")
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), doctorID, date, serviceType)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if slots == nil {
			slots = []string{}
		}

		writeJSON(w, http.StatusOK, SlotsResponse{
			DoctorID:    doctorID,
			Date:        date.Format(dateLayout),
			ServiceType: string(serviceType),
			FreeSlots:   slots,
		})
	}
}
