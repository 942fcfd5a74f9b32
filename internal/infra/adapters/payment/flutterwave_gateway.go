package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*FlutterwaveGateway)(nil)

// FlutterwaveGateway speaks the Flutterwave v3 REST API. Flutterwave works in
// major currency units, so the adapter divides by 100 on the way out and
// multiplies by 100 on the way back in; everything past the port boundary
// stays in minor units. Webhooks carry an HMAC-SHA256 hex digest in the
// verif-hash header.
type FlutterwaveGateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
	log       *zerolog.Logger
}

func NewFlutterwaveGateway(secretKey, baseURL string, log *zerolog.Logger) *FlutterwaveGateway {
	if baseURL == "" {
		baseURL = "https://api.flutterwave.com/v3"
	}
	return &FlutterwaveGateway{
		secretKey: secretKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log,
	}
}

func (g *FlutterwaveGateway) Name() string { return "flutterwave" }

type flwInitRequest struct {
	TxRef       string                 `json:"tx_ref"`
	Amount      float64                `json:"amount"` // major units
	Currency    string                 `json:"currency"`
	RedirectURL string                 `json:"redirect_url"`
	Customer    flwCustomer            `json:"customer"`
	Meta        map[string]interface{} `json:"meta,omitempty"`
}

type flwCustomer struct {
	Email string `json:"email"`
}

type flwEnvelope struct {
	Status  string          `json:"status"` // success | error
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type flwInitData struct {
	Link string `json:"link"`
}

type flwVerifyData struct {
	Status      string  `json:"status"` // successful | failed | pending
	Amount      float64 `json:"amount"` // major units
	Currency    string  `json:"currency"`
	CreatedAt   string  `json:"created_at"`
	PaymentType string  `json:"payment_type"`
	TxRef       string  `json:"tx_ref"`
}

func (g *FlutterwaveGateway) Initialize(ctx context.Context, email string, amount int64, currency, reference, callbackURL string, meta map[string]interface{}) (*adapter.InitializeResult, error) {
	body, err := json.Marshal(flwInitRequest{
		TxRef:       reference,
		Amount:      float64(amount) / 100, // minor -> major
		Currency:    currency,
		RedirectURL: callbackURL,
		Customer:    flwCustomer{Email: email},
		Meta:        meta,
	})
	if err != nil {
		return nil, errors.Join(domain.ErrOperationFailed, err)
	}

	env, status, err := g.do(ctx, http.MethodPost, "/payments", body)
	if err != nil {
		return nil, err
	}
	if status >= 500 {
		return nil, fmt.Errorf("%w: flutterwave initialize http %d", domain.ErrProviderUnreachable, status)
	}
	if status >= 400 || env.Status != "success" {
		g.log.Warn().Int("http_status", status).Str("message", env.Message).Str("reference", reference).Msg("flutterwave initialize declined")
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderDeclined, env.Message)
	}

	var data flwInitData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errors.Join(domain.ErrProviderUnreachable, err)
	}
	if data.Link == "" {
		return nil, fmt.Errorf("%w: flutterwave returned no payment link", domain.ErrProviderUnreachable)
	}
	return &adapter.InitializeResult{
		AuthorizationURL: data.Link,
		Reference:        reference,
	}, nil
}

func (g *FlutterwaveGateway) Verify(ctx context.Context, reference string) (*adapter.VerifyResult, error) {
	path := "/transactions/verify_by_reference?tx_ref=" + url.QueryEscape(reference)
	env, status, err := g.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status >= 500 {
		return nil, fmt.Errorf("%w: flutterwave verify http %d", domain.ErrProviderUnreachable, status)
	}
	if status >= 400 || env.Status != "success" {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderDeclined, env.Message)
	}

	var data flwVerifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errors.Join(domain.ErrProviderUnreachable, err)
	}

	res := &adapter.VerifyResult{
		Success:  data.Status == "successful",
		Amount:   int64(data.Amount*100 + 0.5), // major -> minor
		Currency: data.Currency,
		Channel:  data.PaymentType,
	}
	if data.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, data.CreatedAt); err == nil {
			res.PaidAt = t
		}
	}
	return res, nil
}

type flwWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		TxRef  string `json:"tx_ref"`
		Status string `json:"status"`
	} `json:"data"`
}

// ParseWebhook authenticates the event with HMAC-SHA256 over the raw body,
// keyed with the secret key, compared in constant time against the verif-hash
// header value.
func (g *FlutterwaveGateway) ParseWebhook(body []byte, signature string) (*adapter.WebhookEvent, error) {
	mac := hmac.New(sha256.New, []byte(g.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if signature == "" || !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, domain.ErrBadSignature
	}

	var payload flwWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Join(domain.ErrBadMetadata, err)
	}
	if payload.Event != "charge.completed" || payload.Data.Status != "successful" {
		return &adapter.WebhookEvent{Kind: adapter.WebhookIgnored}, nil
	}
	return &adapter.WebhookEvent{
		Kind:      adapter.WebhookChargeSucceeded,
		Reference: payload.Data.TxRef,
	}, nil
}

func (g *FlutterwaveGateway) do(ctx context.Context, method, path string, body []byte) (*flwEnvelope, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return nil, 0, errors.Join(domain.ErrOperationFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+g.secretKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, 0, errors.Join(domain.ErrProviderUnreachable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, resp.StatusCode, errors.Join(domain.ErrProviderUnreachable, err)
	}
	var env flwEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 400 {
			return nil, resp.StatusCode, errors.Join(domain.ErrProviderUnreachable, err)
		}
	}
	return &env, resp.StatusCode, nil
}
