package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Fixed media-channel participant ids keyed by role.
const (
	sessionUIDDoctor  = 1
	sessionUIDPatient = 2
)

const sessionTokenTTL = 24 * time.Hour

// JoinCall records the first time each party joins the consultation.
// Subsequent joins are no-ops.
func (s *Service) JoinCall(ctx context.Context, callerID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	role, ok := appt.PartyRole(callerID)
	if !ok {
		return nil, ErrNotParticipant
	}

	now := s.now()
	joined := false
	switch role {
	case RoleDoctor:
		if appt.DoctorJoinedAt == nil {
			appt.DoctorJoinedAt = &now
			joined = true
		}
	case RolePatient:
		if appt.PatientJoinedAt == nil {
			appt.PatientJoinedAt = &now
			joined = true
		}
	}
	if !joined {
		return appt, nil
	}

	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("record session join: %w", err)
	}
	return appt, nil
}

// CompleteConsultation marks a video consultation as conducted. Both
// parties must have joined; top-level status is left untouched.
func (s *Service) CompleteConsultation(ctx context.Context, doctorID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.DoctorID != doctorID {
		return nil, ErrNotDoctor
	}
	if appt.ServiceType != ServiceVideo {
		return nil, &ValidationError{Field: "appointment", Reason: "only video consultations complete this way"}
	}
	if appt.CompletedAt != nil {
		return nil, ErrAlreadyCompleted
	}
	if appt.DoctorJoinedAt == nil || appt.PatientJoinedAt == nil {
		return nil, ErrNotConducted
	}

	now := s.now()
	appt.CompletedAt = &now
	appt.SubStatus = SubStatusConducted

	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("complete consultation: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventConsultationConducted, map[string]any{"kind": "video"})
	return appt, nil
}

// CompleteHomeVisit is the patient-side analogue for home visits. No prior
// join timestamp is required.
func (s *Service) CompleteHomeVisit(ctx context.Context, patientID, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if appt.PatientID != patientID {
		return nil, ErrNotPatient
	}
	if appt.ServiceType != ServiceHomeVisit {
		return nil, &ValidationError{Field: "appointment", Reason: "only home visits complete this way"}
	}
	if appt.HomeVisitCompletedAt != nil {
		return nil, ErrAlreadyCompleted
	}

	now := s.now()
	appt.HomeVisitCompletedAt = &now
	appt.SubStatus = SubStatusConducted

	if err := s.repo.UpdateAppointment(ctx, appt); err != nil {
		return nil, fmt.Errorf("complete home visit: %w", err)
	}

	s.logEvent(ctx, appt.ID, EventConsultationConducted, map[string]any{"kind": "home-visit"})
	return appt, nil
}

// SessionToken is the tuple handed to the real-time media collaborator.
type SessionToken struct {
	Token       string    `json:"token"`
	ChannelName string    `json:"channel_name"`
	AppID       string    `json:"app_id"`
	UID         int       `json:"uid"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type sessionClaims struct {
	jwt.RegisteredClaims
	Channel string `json:"channel"`
	UID     int    `json:"uid"`
	Role    string `json:"role"`
}

// IssueSessionToken generates the media session credentials for one party
// of a video appointment. The channel name is deterministic per
// appointment; uids are fixed per role.
func (s *Service) IssueSessionToken(ctx context.Context, callerID, id uuid.UUID) (*SessionToken, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	role, ok := appt.PartyRole(callerID)
	if !ok {
		return nil, ErrNotParticipant
	}
	if appt.ServiceType != ServiceVideo {
		return nil, &ValidationError{Field: "appointment", Reason: "session tokens are only issued for video consultations"}
	}
	if appt.Status != StatusConfirmed && appt.Status != StatusInProgress {
		return nil, &ValidationError{Field: "appointment", Reason: "session tokens require a confirmed appointment"}
	}

	uid := sessionUIDPatient
	if role == RoleDoctor {
		uid = sessionUIDDoctor
	}

	channel := fmt.Sprintf("session-%s", appt.ID)
	expiresAt := s.now().Add(sessionTokenTTL)

	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   callerID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(s.now()),
		},
		Channel: channel,
		UID:     uid,
		Role:    string(role),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.SessionSecret))
	if err != nil {
		return nil, fmt.Errorf("sign session token: %w", err)
	}

	return &SessionToken{
		Token:       token,
		ChannelName: channel,
		AppID:       s.cfg.SessionAppID,
		UID:         uid,
		ExpiresAt:   expiresAt,
	}, nil
}
