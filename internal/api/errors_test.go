package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/careloop/teleconsult/internal/scheduling"
)

func TestHandleServiceError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", &scheduling.ValidationError{Field: "time", Reason: "bad"}, http.StatusBadRequest, "validation_error"},
		{"slot conflict carries reason", &scheduling.SlotConflictError{Reason: scheduling.ReasonSlotHeld}, http.StatusConflict, "slot_held"},
		{"lead time", &scheduling.LeadTimeError{ServiceType: scheduling.ServiceVideo}, http.StatusConflict, "lead_time_violation"},
		{"eligibility", &scheduling.EligibilityError{DaysLate: 2}, http.StatusConflict, "follow_up_window_closed"},
		{"not found", scheduling.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
		{"test not assigned", scheduling.ErrTestNotAssigned, http.StatusNotFound, "test_not_assigned"},
		{"not a party", scheduling.ErrNotParticipant, http.StatusForbidden, "not_allowed"},
		{"self approval", scheduling.ErrSelfApproval, http.StatusForbidden, "not_allowed"},
		{"state conflict", scheduling.ErrReschedulePending, http.StatusConflict, "conflict"},
		{"lock contention", scheduling.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handleServiceError(rec, tc.err)

			assert.Equal(t, tc.wantStatus, rec.Code)

			var body ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.wantCode, body.Error)
			assert.NotEmpty(t, body.Details)
		})
	}
}
