package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"workforce-billing/internal/domain/ports/adapter"
	"workforce-billing/internal/infra/worker"
	"workforce-billing/internal/usecase"
)

// Server exposes the billing HTTP surface: the authenticated subscription
// endpoints, the unauthenticated provider webhook, and the operational
// /health and /metrics routes.
type Server struct {
	payUC   usecase.PaymentUseCase
	gateway adapter.PaymentGateway
	auth    *AuthManager
	pool    *worker.Pool
	log     *zerolog.Logger
}

func NewServer(
	payUC usecase.PaymentUseCase,
	gateway adapter.PaymentGateway,
	auth *AuthManager,
	pool *worker.Pool,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		payUC:   payUC,
		gateway: gateway,
		auth:    auth,
		pool:    pool,
		log:     logger,
	}
}

// Router builds the chi router. The webhook route deliberately sits outside
// the auth middleware: its caller is the provider and its credential is the
// HMAC signature, not a session.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Post("/subscription/webhook", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/subscription/upgrade-employee-limit", s.handleUpgradeEmployeeLimit)
		r.Post("/subscription/initiate-subscription", s.handleInitiateSubscription)
		r.Post("/subscription/verify-payment", s.handleVerifyPayment)
		r.Get("/subscription/prices", s.handlePrices)
		r.Get("/subscription/payments", s.handleListPayments)
	})

	return r
}
