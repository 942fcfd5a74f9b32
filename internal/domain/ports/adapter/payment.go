package adapter

import (
	"context"
	"time"
)

// InitializeResult is what a gateway returns once it has accepted a charge.
// AccessCode is optional; not every provider issues one.
type InitializeResult struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// VerifyResult is the normalized outcome of a verification call. Amount is
// always in minor currency units regardless of what the gateway speaks on the
// wire; unit conversion is the adapter's responsibility.
type VerifyResult struct {
	Success  bool
	Amount   int64
	Currency string
	PaidAt   time.Time
	Channel  string
}

type WebhookEventKind string

const (
	WebhookChargeSucceeded WebhookEventKind = "charge_succeeded"
	WebhookIgnored         WebhookEventKind = "ignored"
)

// WebhookEvent is a signature-verified, provider-agnostic inbound event.
type WebhookEvent struct {
	Kind      WebhookEventKind
	Reference string
}

// PaymentGateway is the hex port for payment providers.
//
// Initialize must fail with domain.ErrProviderDeclined on upstream rejection
// and domain.ErrProviderUnreachable on transport failure or an ambiguous
// response; it must never silently succeed.
//
// Verify is read-only and safe to call repeatedly for the same reference;
// implementations must not mutate gateway-side state and must not retry
// internally. Any non-success upstream status is a hard failure.
type PaymentGateway interface {
	Name() string

	Initialize(ctx context.Context, email string, amount int64, currency, reference, callbackURL string, meta map[string]interface{}) (*InitializeResult, error)

	Verify(ctx context.Context, reference string) (*VerifyResult, error)

	// ParseWebhook checks the provider's signature over the raw body and, on
	// success, extracts the event. A mismatch returns domain.ErrBadSignature
	// and no event.
	ParseWebhook(body []byte, signature string) (*WebhookEvent, error)
}
