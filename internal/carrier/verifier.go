package carrier

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/inbound-carrier/internal/apperr"
	"github.com/sells-group/inbound-carrier/internal/model"
	"github.com/sells-group/inbound-carrier/internal/resilience"
	"github.com/sells-group/inbound-carrier/pkg/fmcsa"
)

const (
	msgVerified      = "carrier is authorized to operate"
	msgNotFound      = "carrier not found"
	msgNotAuthorized = "carrier is not authorized to operate"
)

// VerificationResult is the answer to a verification request. A result with
// Valid false is a definitive "no" from the registry, not a failure.
type VerificationResult struct {
	Valid           bool          `json:"valid"`
	MCNumber        string        `json:"mc_number"`
	CarrierName     string        `json:"carrier_name,omitempty"`
	DOTNumber       int64         `json:"dot_number,omitempty"`
	OperatingStatus string        `json:"operating_status,omitempty"`
	Message         string        `json:"message"`
	Carrier         model.Carrier `json:"carrier"`
}

// Verifier checks MC numbers against the federal registry.
type Verifier struct {
	client  fmcsa.Client
	timeout time.Duration
	breaker *resilience.CircuitBreaker
	nowFunc func() time.Time
}

// NewVerifier creates a Verifier. Each lookup is bounded by timeout and
// guarded by breaker; a nil breaker disables circuit breaking.
func NewVerifier(client fmcsa.Client, timeout time.Duration, breaker *resilience.CircuitBreaker) *Verifier {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Verifier{client: client, timeout: timeout, breaker: breaker, nowFunc: time.Now}
}

// Verify normalizes mc and asks the registry whether the carrier may operate.
// Results are never cached. Malformed input is rejected before any lookup.
func (v *Verifier) Verify(ctx context.Context, mc string) (VerificationResult, error) {
	normalized, err := NormalizeMC(mc)
	if err != nil {
		return VerificationResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	lookup := func(ctx context.Context) (*fmcsa.Carrier, error) {
		return v.client.CarrierByDocket(ctx, normalized)
	}

	var rec *fmcsa.Carrier
	if v.breaker != nil {
		rec, err = resilience.ExecuteVal(ctx, v.breaker, lookup)
	} else {
		rec, err = lookup(ctx)
	}
	if err != nil {
		zap.L().Warn("carrier: registry lookup failed",
			zap.String("mc_number", normalized),
			zap.Error(err),
		)
		return VerificationResult{}, upstreamError(ctx, err)
	}

	res := VerificationResult{
		MCNumber: normalized,
		Carrier:  model.Carrier{MCNumber: normalized, VerifiedAt: v.nowFunc().UTC()},
	}
	switch {
	case rec == nil:
		res.Message = msgNotFound
	case !rec.Authorized():
		res.CarrierName = rec.Name()
		res.DOTNumber = rec.DOTNumber
		res.OperatingStatus = rec.StatusCode
		res.Message = msgNotAuthorized
	default:
		res.Valid = true
		res.CarrierName = rec.Name()
		res.DOTNumber = rec.DOTNumber
		res.OperatingStatus = rec.StatusCode
		res.Message = msgVerified
		res.Carrier.Verified = true
	}
	return res, nil
}

func upstreamError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, resilience.ErrCircuitOpen):
		return apperr.UpstreamUnavailable(err, "carrier registry is temporarily unavailable")
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return apperr.UpstreamUnavailable(eris.Wrap(err, "carrier: registry timeout"), "carrier registry timed out")
	default:
		return apperr.UpstreamUnavailable(err, "carrier registry lookup failed")
	}
}
