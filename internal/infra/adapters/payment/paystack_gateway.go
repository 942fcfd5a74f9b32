package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*PaystackGateway)(nil)

// PaystackGateway speaks the Paystack REST API. Paystack works in minor
// currency units end to end, so amounts pass through unconverted. Webhooks are
// authenticated with HMAC-SHA512 over the raw body.
type PaystackGateway struct {
	secretKey string
	baseURL   string
	client    *http.Client
	log       *zerolog.Logger
}

func NewPaystackGateway(secretKey, baseURL string, log *zerolog.Logger) *PaystackGateway {
	if baseURL == "" {
		baseURL = "https://api.paystack.co"
	}
	return &PaystackGateway{
		secretKey: secretKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 15 * time.Second},
		log:       log,
	}
}

func (g *PaystackGateway) Name() string { return "paystack" }

type paystackInitRequest struct {
	Email       string                 `json:"email"`
	Amount      int64                  `json:"amount"`
	Currency    string                 `json:"currency,omitempty"`
	Reference   string                 `json:"reference"`
	CallbackURL string                 `json:"callback_url,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackInitData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type paystackVerifyData struct {
	Status   string `json:"status"` // success | failed | abandoned | ...
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	PaidAt   string `json:"paid_at"`
	Channel  string `json:"channel"`
}

func (g *PaystackGateway) Initialize(ctx context.Context, email string, amount int64, currency, reference, callbackURL string, meta map[string]interface{}) (*adapter.InitializeResult, error) {
	body, err := json.Marshal(paystackInitRequest{
		Email:       email,
		Amount:      amount, // already minor units
		Currency:    currency,
		Reference:   reference,
		CallbackURL: callbackURL,
		Metadata:    meta,
	})
	if err != nil {
		return nil, errors.Join(domain.ErrOperationFailed, err)
	}

	env, status, err := g.do(ctx, http.MethodPost, "/transaction/initialize", body)
	if err != nil {
		return nil, err
	}
	if status >= 500 {
		return nil, fmt.Errorf("%w: paystack initialize http %d", domain.ErrProviderUnreachable, status)
	}
	if status >= 400 || !env.Status {
		g.log.Warn().Int("http_status", status).Str("message", env.Message).Str("reference", reference).Msg("paystack initialize declined")
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderDeclined, env.Message)
	}

	var data paystackInitData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errors.Join(domain.ErrProviderUnreachable, err)
	}
	if data.AuthorizationURL == "" {
		return nil, fmt.Errorf("%w: paystack returned no authorization url", domain.ErrProviderUnreachable)
	}
	return &adapter.InitializeResult{
		AuthorizationURL: data.AuthorizationURL,
		AccessCode:       data.AccessCode,
		Reference:        data.Reference,
	}, nil
}

func (g *PaystackGateway) Verify(ctx context.Context, reference string) (*adapter.VerifyResult, error) {
	env, status, err := g.do(ctx, http.MethodGet, "/transaction/verify/"+reference, nil)
	if err != nil {
		return nil, err
	}
	if status >= 500 {
		return nil, fmt.Errorf("%w: paystack verify http %d", domain.ErrProviderUnreachable, status)
	}
	if status >= 400 || !env.Status {
		return nil, fmt.Errorf("%w: %s", domain.ErrProviderDeclined, env.Message)
	}

	var data paystackVerifyData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errors.Join(domain.ErrProviderUnreachable, err)
	}

	res := &adapter.VerifyResult{
		Success:  data.Status == "success",
		Amount:   data.Amount, // already minor units
		Currency: data.Currency,
		Channel:  data.Channel,
	}
	if data.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, data.PaidAt); err == nil {
			res.PaidAt = t
		}
	}
	return res, nil
}

type paystackWebhookPayload struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
	} `json:"data"`
}

// ParseWebhook authenticates the event with HMAC-SHA512 over the raw body,
// keyed with the secret key, compared in constant time against the
// X-Paystack-Signature header value.
func (g *PaystackGateway) ParseWebhook(body []byte, signature string) (*adapter.WebhookEvent, error) {
	mac := hmac.New(sha512.New, []byte(g.secretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if signature == "" || !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, domain.ErrBadSignature
	}

	var payload paystackWebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Join(domain.ErrBadMetadata, err)
	}
	if payload.Event != "charge.success" {
		return &adapter.WebhookEvent{Kind: adapter.WebhookIgnored}, nil
	}
	return &adapter.WebhookEvent{
		Kind:      adapter.WebhookChargeSucceeded,
		Reference: payload.Data.Reference,
	}, nil
}

// do performs one HTTP round trip and decodes the Paystack envelope. Transport
// and decode failures surface as ErrProviderUnreachable so callers can retry.
func (g *PaystackGateway) do(ctx context.Context, method, path string, body []byte) (*paystackEnvelope, int, error) {
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
	var env paystackEnvelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 400 {
			return nil, resp.StatusCode, errors.Join(domain.ErrProviderUnreachable, err)
		}
	}
	return &env, resp.StatusCode, nil
}
