package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/careloop/teleconsult/internal/scheduling"
)

type RouterConfig struct {
	Service   *scheduling.Service
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Log       *zap.Logger
	JWTSecret string
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	// Health endpoints are unauthenticated.
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.JWTSecret))

		r.Put("/availability", upsertAvailabilityHandler(cfg.Service))
		r.Get("/availability/slots", availableSlotsHandler(cfg.Service))

		r.Post("/appointments", createAppointmentHandler(cfg.Service))
		r.Post("/appointments/hold", holdSlotHandler(cfg.Service))
		r.Get("/appointments", listAppointmentsHandler(cfg.Service))
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/cancel", cancelAppointmentHandler(cfg.Service))
		r.Post("/appointments/{id}/reschedule", rescheduleHandler(cfg.Service))

		r.Post("/appointments/{id}/reschedule-request", requestRescheduleHandler(cfg.Service))
		r.Post("/appointments/{id}/reschedule-request/approve", approveRescheduleHandler(cfg.Service))
		r.Post("/appointments/{id}/reschedule-request/reject", rejectRescheduleHandler(cfg.Service))

		r.Get("/appointments/{id}/follow-up/eligibility", followUpEligibilityHandler(cfg.Service))
		r.Post("/appointments/{id}/follow-up", scheduleFollowUpHandler(cfg.Service))

		r.Post("/appointments/{id}/tests", assignTestsHandler(cfg.Service))
		r.Post("/appointments/{id}/tests/{productID}/book", bookTestHandler(cfg.Service))
		r.Post("/appointments/{id}/tests/{productID}/result", uploadTestResultHandler(cfg.Service))
		r.Post("/appointments/{id}/documents", attachDocumentHandler(cfg.Service))

		r.Post("/appointments/{id}/join", joinCallHandler(cfg.Service))
		r.Post("/appointments/{id}/complete", completeConsultationHandler(cfg.Service))
		r.Post("/appointments/{id}/complete-home-visit", completeHomeVisitHandler(cfg.Service))
		r.Post("/appointments/{id}/session-token", sessionTokenHandler(cfg.Service))
	})

	return r
}
