package payment

import (
	"fmt"

	"github.com/rs/zerolog"

	"workforce-billing/internal/config"
	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/ports/adapter"
)

// New selects the configured gateway adapter at startup. The rest of the
// service only ever sees the adapter.PaymentGateway port.
func New(cfg config.PaymentConfig, log *zerolog.Logger) (adapter.PaymentGateway, error) {
	switch cfg.Provider {
	case "paystack":
		return NewPaystackGateway(cfg.Paystack.SecretKey, cfg.Paystack.BaseURL, log), nil
	case "flutterwave":
		return NewFlutterwaveGateway(cfg.Flutterwave.SecretKey, cfg.Flutterwave.BaseURL, log), nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownProvider, cfg.Provider)
	}
}
