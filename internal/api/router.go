package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/clinicdesk/online-consultation-service/internal/analytics"
	"github.com/clinicdesk/online-consultation-service/internal/consultation"
)

type RouterConfig struct {
	Service   *consultation.Service
	Analytics analytics.Repository
	PgPool    *pgxpool.Pool
	Redis     *redis.Client
	Env       string
	Version   string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware)

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Route("/api/v1/clinics/{clinicID}", func(r chi.Router) {
		r.Route("/consultations", func(r chi.Router) {
			r.Post("/", createConsultationHandler(cfg.Service))
			r.Get("/", listConsultationsHandler(cfg.Service))
			r.Get("/{id}", getConsultationHandler(cfg.Service))
			r.Post("/{id}/start", startConsultationHandler(cfg.Service))
			r.Post("/{id}/end", endConsultationHandler(cfg.Service))
			r.Post("/{id}/cancel", cancelConsultationHandler(cfg.Service))
			r.Post("/{id}/vital_signs", recordVitalSignsHandler(cfg.Service))
			r.Post("/{id}/prescriptions", addPrescriptionHandler(cfg.Service))
			r.Post("/{id}/follow_ups", addFollowUpHandler(cfg.Service))
			r.Post("/{id}/technical_issues", reportTechnicalIssueHandler(cfg.Service))
			r.Get("/{id}/meeting_url", meetingURLHandler(cfg.Service))
		})

		r.Get("/analytics/daily", dailyAnalyticsHandler(cfg.Analytics))
	})

	return r
}
