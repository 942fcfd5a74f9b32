package sched

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"workforce-billing/internal/domain"
	"workforce-billing/internal/domain/ports/repository"
	"workforce-billing/internal/usecase"
)

// PaymentReconciler periodically scans for stale pending intents and re-drives
// them through Fulfill. This covers the cases where both completion signals
// were lost: the client never polled and the webhook never arrived (or the
// process crashed mid-fulfillment). Fulfill's idempotency guards make the
// re-drive safe.
type PaymentReconciler struct {
	uc         usecase.PaymentUseCase
	payments   repository.PaymentIntentRepository
	interval   time.Duration
	staleAfter time.Duration
	log        *zerolog.Logger
}

func NewPaymentReconciler(uc usecase.PaymentUseCase, payments repository.PaymentIntentRepository, interval, staleAfter time.Duration, log *zerolog.Logger) *PaymentReconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	if staleAfter <= 0 {
		staleAfter = 10 * time.Minute
	}
	return &PaymentReconciler{uc: uc, payments: payments, interval: interval, staleAfter: staleAfter, log: log}
}

func (w *PaymentReconciler) Start(ctx context.Context) {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			w.tick(ctx)
		}
	}
}

func (w *PaymentReconciler) tick(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	pending, err := w.payments.ListPendingOlderThan(ctx, nil, cutoff, 200)
	if err != nil {
		w.log.Error().Err(err).Msg("reconciler: list pending failed")
		return
	}
	for _, p := range pending {
		if p.Reference == "" {
			continue
		}
		res, err := w.uc.Fulfill(ctx, p.Reference)
		if err != nil {
			// A still-unreachable provider just means we try again next tick.
			if errors.Is(err, domain.ErrProviderUnreachable) {
				w.log.Warn().Str("reference", p.Reference).Msg("reconciler: provider still unreachable")
			} else {
				w.log.Error().Err(err).Str("reference", p.Reference).Msg("reconciler: fulfill failed")
			}
			continue
		}
		if res.AlreadyProcessed {
			continue
		}
		w.log.Info().Str("reference", p.Reference).Str("status", string(res.Intent.Status)).Msg("reconciler: intent settled")
	}
}
