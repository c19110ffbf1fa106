package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/inbound-carrier/internal/model"
	"github.com/sells-group/inbound-carrier/internal/resilience"
	"github.com/sells-group/inbound-carrier/internal/store"
)

// maxWindowCalls bounds how many calls one snapshot reads.
const maxWindowCalls = 1000

// MetricsSnapshot holds a point-in-time view of call outcomes and registry
// health.
type MetricsSnapshot struct {
	// Calls recorded within the lookback window.
	Calls        int     `json:"calls"`
	Booked       int     `json:"booked"`
	BookingRate  float64 `json:"booking_rate"`
	Negative     int     `json:"negative"`
	NegativeRate float64 `json:"negative_rate"`

	// State of the FMCSA circuit breaker at collection time.
	RegistryCircuit string `json:"registry_circuit,omitempty"`

	// Metadata.
	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// CallLister reads recorded calls.
type CallLister interface {
	ListCalls(ctx context.Context, filter store.CallFilter) ([]model.CallRecord, error)
}

// BreakerState reports a circuit breaker's state.
type BreakerState interface {
	State() resilience.CircuitState
}

// Collector gathers metrics from the store and the registry breaker.
type Collector struct {
	calls   CallLister
	breaker BreakerState
	nowFunc func() time.Time
}

// NewCollector creates a metrics collector. breaker may be nil.
func NewCollector(calls CallLister, breaker BreakerState) *Collector {
	return &Collector{calls: calls, breaker: breaker, nowFunc: time.Now}
}

// Collect gathers a snapshot over the given lookback window.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.nowFunc().UTC()
	snap := &MetricsSnapshot{
		LookbackHours: lookbackHours,
		CollectedAt:   now,
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	calls, err := c.calls.ListCalls(ctx, store.CallFilter{Since: &cutoff, Limit: maxWindowCalls})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list calls")
	}

	snap.Calls = len(calls)
	for _, call := range calls {
		if call.Outcome == model.OutcomeBooked {
			snap.Booked++
		}
		if call.Sentiment == model.SentimentNegative {
			snap.Negative++
		}
	}
	if snap.Calls > 0 {
		snap.BookingRate = float64(snap.Booked) / float64(snap.Calls)
		snap.NegativeRate = float64(snap.Negative) / float64(snap.Calls)
	}

	if c.breaker != nil {
		snap.RegistryCircuit = c.breaker.State().String()
	}

	return snap, nil
}
