package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/careloop/teleconsult/internal/blobstore"
	"github.com/careloop/teleconsult/internal/scheduling"
)

// Reschedule negotiation

func requestRescheduleHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
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

		appt, err := svc.RequestReschedule(r.Context(), id.UserID, apptID, date, req.Time, req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func approveRescheduleHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.ApproveReschedule(r.Context(), id.UserID, apptID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rejectRescheduleHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.RejectReschedule(r.Context(), id.UserID, apptID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// Follow-up

func followUpEligibilityHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		elig, err := svc.CheckFollowUpEligibility(r.Context(), id.UserID, apptID)
		if err != nil && elig == nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, EligibilityResponse{
			Eligible: elig.Eligible,
			Deadline: elig.Deadline.Format(dateLayout),
		})
	}
}

func scheduleFollowUpHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req FollowUpRequest
		if !decodeBody(w, r, &req) {
			return
		}
		date, err := parseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
			return
		}

		appt, err := svc.ScheduleFollowUp(r.Context(), scheduling.FollowUpInput{
			PatientID:    id.UserID,
			OriginalID:   apptID,
			Date:         date,
			Time:         req.Time,
			ServiceType:  scheduling.ServiceType(req.ServiceType),
			VisitAddress: req.VisitAddress,
			Reason:       req.Reason,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

// Tests

func assignTestsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		var req AssignTestsRequest
		if !decodeBody(w, r, &req) {
			return
		}

		tests := make([]scheduling.TestInput, 0, len(req.Tests))
		for _, t := range req.Tests {
			tests = append(tests, scheduling.TestInput{
				ProductID:   t.ProductID,
				ProductName: t.ProductName,
				Category:    scheduling.TestCategory(t.Category),
			})
		}

		appt, err := svc.AssignTests(r.Context(), id.UserID, apptID, tests)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func bookTestHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}
		productID := chi.URLParam(r, "productID")

		var req BookTestRequest
		if !decodeBody(w, r, &req) {
			return
		}

		appt, err := svc.BookClinicTest(r.Context(), id.UserID, apptID, productID, scheduling.Clinic{
			Name:    req.ClinicName,
			Address: req.ClinicAddress,
		})
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// readUpload pulls the multipart "file" part into a blobstore.File. The
// form is capped slightly above the blob limit so oversized uploads reach
// the typed size check instead of a parse error.
func readUpload(w http.ResponseWriter, r *http.Request) (blobstore.File, bool) {
	if err := r.ParseMultipartForm(blobstore.MaxResultFileSize + 1<<20); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "could not parse multipart form")
		return blobstore.File{}, false
	}
	part, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "file part is required")
		return blobstore.File{}, false
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_upload", "could not read file")
		return blobstore.File{}, false
	}

	return blobstore.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, true
}

func uploadTestResultHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}
		productID := chi.URLParam(r, "productID")

		file, ok := readUpload(w, r)
		if !ok {
			return
		}

		appt, err := svc.UploadTestResult(r.Context(), id.UserID, apptID, productID, file)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func attachDocumentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		file, ok := readUpload(w, r)
		if !ok {
			return
		}
		isExternal, _ := strconv.ParseBool(r.FormValue("is_external_result"))

		appt, err := svc.AttachDocument(r.Context(), id.UserID, apptID, file, isExternal)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// Session

func joinCallHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.JoinCall(r.Context(), id.UserID, apptID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeConsultationHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.CompleteConsultation(r.Context(), id.UserID, apptID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func completeHomeVisitHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		appt, err := svc.CompleteHomeVisit(r.Context(), id.UserID, apptID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func sessionTokenHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := caller(w, r)
		if !ok {
			return
		}
		apptID, ok := appointmentID(w, r)
		if !ok {
			return
		}

		token, err := svc.IssueSessionToken(r.Context(), id.UserID, apptID)
		if err != nil {
			handleServiceError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, token)
	}
}
