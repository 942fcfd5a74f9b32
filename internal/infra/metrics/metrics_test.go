//go:build !integration

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMustRegisterIsIdempotent(t *testing.T) {
	// A second call must not panic with duplicate-registration.
	MustRegister()
	MustRegister()
}

func TestIncFulfillmentResults(t *testing.T) {
	// Every result the orchestrator emits must land under its own label.
	for _, result := range []string{"applied", "already_processed", "error"} {
		before := testutil.ToFloat64(fulfillmentsTotal.WithLabelValues("subscription", result))
		IncFulfillment("Subscription", result)
		after := testutil.ToFloat64(fulfillmentsTotal.WithLabelValues("subscription", result))
		if after != before+1 {
			t.Fatalf("result %q: counter went %v -> %v, want +1", result, before, after)
		}
	}
}

func TestIncPaymentNormalizesStatus(t *testing.T) {
	before := testutil.ToFloat64(paymentsTotal.WithLabelValues("completed"))
	IncPayment(" Completed ")
	after := testutil.ToFloat64(paymentsTotal.WithLabelValues("completed"))
	if after != before+1 {
		t.Fatalf("counter went %v -> %v, want +1", before, after)
	}
}

func TestObserveVerifyDuration(t *testing.T) {
	ObserveVerifyDuration(120*time.Millisecond, true)
	ObserveVerifyDuration(time.Second, false)
	if got := testutil.CollectAndCount(verifyDuration); got < 2 {
		t.Fatalf("histogram series = %d, want at least 2 (ok and fail)", got)
	}
}
