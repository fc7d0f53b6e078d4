package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/covermed/hospital-coverage-scheduling/internal/assignment"
	"github.com/covermed/hospital-coverage-scheduling/internal/identity"
	"github.com/covermed/hospital-coverage-scheduling/internal/payment"
	"github.com/covermed/hospital-coverage-scheduling/internal/slot"
)

type RouterConfig struct {
	Slots       *slot.Manager
	Assignments *assignment.Service
	Payments    *payment.Service
	Identity    identity.Provider
	PgPool      *pgxpool.Pool
	Redis       *redis.Client
	Logger      zerolog.Logger
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	// Health endpoints
	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	// Gateway webhooks authenticate out-of-band, not through the identity
	// provider.
	r.Post("/payments/confirmations", gatewayConfirmationHandler(cfg.Payments))

	r.Group(func(r chi.Router) {
		r.Use(ActorMiddleware(cfg.Identity))

		// Availability slots
		r.Post("/slots", publishSlotHandler(cfg.Slots))
		r.Get("/slots/{id}/availability", availableRangesHandler(cfg.Slots))
		r.Get("/slots/{id}/subslots", listBookedSubSlotsHandler(cfg.Slots))
		r.Post("/slots/{id}/subslots", reserveSubSlotHandler(cfg.Slots))
		r.Post("/subslots/{id}/release", releaseSubSlotHandler(cfg.Slots))

		// Assignments
		r.Post("/assignments", createAssignmentHandler(cfg.Assignments))
		r.Get("/assignments/{id}", getAssignmentHandler(cfg.Assignments))
		r.Post("/assignments/{id}/accept", acceptAssignmentHandler(cfg.Assignments))
		r.Post("/assignments/{id}/decline", declineAssignmentHandler(cfg.Assignments))
		r.Post("/assignments/{id}/cancel", cancelAssignmentHandler(cfg.Assignments))
		r.Post("/assignments/{id}/complete", completeAssignmentHandler(cfg.Assignments))
		r.Post("/assignments/{id}/settlement", settleAssignmentHandler(cfg.Payments))

		// Payments
		r.Get("/payments/{id}", getPaymentHandler(cfg.Payments))
		r.Post("/payments/{id}/payout", beginPayoutHandler(cfg.Payments))
		r.Post("/payments/{id}/payout/failed", failPayoutHandler(cfg.Payments))
		r.Post("/payments/{id}/paid", markPaymentPaidHandler(cfg.Payments))
	})

	return r
}
