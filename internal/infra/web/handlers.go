package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/model"
	"workforce-billing/internal/domain/ports/adapter"
	"workforce-billing/internal/infra/logging"
	"workforce-billing/internal/infra/metrics"
)

type upgradeEmployeeLimitRequest struct {
	AdditionalEmployees int `json:"additionalEmployees"`
}

type initiateSubscriptionRequest struct {
	Plan string `json:"plan"`
}

type verifyPaymentRequest struct {
	Reference string `json:"reference"`
}

// intentResponse is the wire shape of a payment intent. The access code and
// other provider internals stay server-side.
type intentResponse struct {
	PaymentID        string     `json:"paymentId"`
	Reference        string     `json:"reference"`
	Amount           int64      `json:"amount"`
	Currency         string     `json:"currency"`
	Purpose          string     `json:"purpose"`
	Status           string     `json:"status"`
	Provider         string     `json:"provider"`
	AuthorizationURL string     `json:"authorizationUrl,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	PaidAt           *time.Time `json:"paidAt,omitempty"`
}

func toIntentResponse(p *model.PaymentIntent) intentResponse {
	return intentResponse{
		PaymentID:        p.ID,
		Reference:        p.Reference,
		Amount:           p.Amount,
		Currency:         p.Currency,
		Purpose:          string(p.Purpose),
		Status:           string(p.Status),
		Provider:         p.Provider,
		AuthorizationURL: p.AuthorizationURL,
		CreatedAt:        p.CreatedAt,
		PaidAt:           p.PaidAt,
	}
}

func (s *Server) handleUpgradeEmployeeLimit(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req upgradeEmployeeLimitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	p, err := s.payUC.InitiateEmployeeLimitUpgrade(r.Context(), claims.UserID, req.AdditionalEmployees)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIntentResponse(p))
}

func (s *Server) handleInitiateSubscription(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req initiateSubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	plan, err := model.ParsePlanCode(req.Plan)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	p, err := s.payUC.InitiateSubscription(r.Context(), claims.UserID, plan)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toIntentResponse(p))
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	var req verifyPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reference == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	p, err := s.payUC.VerifyPayment(r.Context(), claims.CompanyID, req.Reference)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toIntentResponse(p))
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	plans, err := s.payUC.Prices(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	type planResponse struct {
		Code         string `json:"code"`
		Name         string `json:"name"`
		PricePerSeat int64  `json:"pricePerSeat"`
		Currency     string `json:"currency"`
	}
	out := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		out = append(out, planResponse{
			Code:         string(p.Code),
			Name:         p.Name,
			PricePerSeat: p.PricePerSeat,
			Currency:     p.Currency,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListPayments(w http.ResponseWriter, r *http.Request) {
	claims, ok := sessionFrom(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	intents, err := s.payUC.ListByCompany(r.Context(), claims.CompanyID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	out := make([]intentResponse, 0, len(intents))
	for _, p := range intents {
		out = append(out, toIntentResponse(p))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleWebhook authenticates the provider event by signature, then hands the
// fulfillment to the worker pool and acknowledges immediately. The provider
// only needs to know the event was received; the CAS in Fulfill makes the
// asynchronous execution safe against the client poll racing it.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	signature := r.Header.Get("X-Paystack-Signature")
	if signature == "" {
		signature = r.Header.Get("verif-hash")
	}

	event, err := s.gateway.ParseWebhook(body, signature)
	if err != nil {
		metrics.IncWebhookEvent(s.gateway.Name(), "bad_signature")
		s.log.Warn().Str("provider", s.gateway.Name()).Msg("webhook signature rejected")
		http.Error(w, "Invalid signature", http.StatusBadRequest)
		return
	}
	if event.Kind != adapter.WebhookChargeSucceeded || event.Reference == "" {
		metrics.IncWebhookEvent(s.gateway.Name(), "ignored")
		w.WriteHeader(http.StatusOK)
		return
	}

	metrics.IncWebhookEvent(s.gateway.Name(), "accepted")
	reference := event.Reference
	traceID := middleware.GetReqID(r.Context())
	if err := s.pool.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		ctx = logging.WithReference(logging.WithTraceID(ctx, traceID), reference)
		log := logging.With(ctx, s.log)
		_, err := s.payUC.Fulfill(ctx, reference)
		// A reference we never issued is not an error worth retrying.
		if errors.Is(err, domain.ErrNotFound) {
			log.Warn().Msg("webhook for unknown reference")
			return nil
		}
		return err
	}); err != nil {
		// Queue saturated: the reconciler will settle this intent later.
		s.log.Warn().Str("reference", reference).Msg("webhook fulfillment not queued")
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrSeatLimit),
		errors.Is(err, domain.ErrPlanDowngrade),
		errors.Is(err, domain.ErrBadMetadata),
		errors.Is(err, domain.ErrUnknownPlan),
		errors.Is(err, domain.ErrUnknownPurpose):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, domain.ErrProviderDeclined),
		errors.Is(err, domain.ErrProviderUnreachable):
		writeError(w, http.StatusBadGateway, err)
	default:
		s.log.Error().Err(err).Msg("request failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}
