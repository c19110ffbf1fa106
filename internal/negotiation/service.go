package negotiation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/inbound-carrier/internal/apperr"
	"github.com/sells-group/inbound-carrier/internal/carrier"
	"github.com/sells-group/inbound-carrier/internal/model"
	"github.com/sells-group/inbound-carrier/internal/store"
)

// LoadSource resolves a load by id.
type LoadSource interface {
	Get(ctx context.Context, loadID string) (model.Load, error)
}

// SessionStore persists sessions with per-key exclusion.
type SessionStore interface {
	UpdateSession(ctx context.Context, key model.SessionKey, fn store.UpdateFunc) (*model.NegotiationSession, error)
	GetSession(ctx context.Context, key model.SessionKey) (*model.NegotiationSession, error)
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// EventLogger receives an audit event per round. Failures are its own
// concern.
type EventLogger interface {
	LogEvent(ctx context.Context, ev model.Event)
}

// RoundRequest is one carrier offer.
type RoundRequest struct {
	LoadID       string          `json:"load_id"`
	MCNumber     string          `json:"mc_number"`
	CarrierOffer decimal.Decimal `json:"carrier_offer"`
}

// RoundResult reports the session state after an offer.
type RoundResult struct {
	LoadID             string                  `json:"load_id"`
	MCNumber           string                  `json:"mc_number"`
	Status             model.NegotiationStatus `json:"status"`
	Round              int                     `json:"round"`
	RoundsLeft         int                     `json:"rounds_left"`
	BrokerCounterOffer *decimal.Decimal        `json:"broker_counter_offer,omitempty"`
	AgreedRate         *decimal.Decimal        `json:"agreed_rate,omitempty"`
	Message            string                  `json:"message"`
}

// Service runs negotiation rounds against externally stored sessions.
type Service struct {
	loads   LoadSource
	store   SessionStore
	events  EventLogger
	nowFunc func() time.Time
}

// NewService creates a Service. events may be nil.
func NewService(loads LoadSource, st SessionStore, events EventLogger) *Service {
	return &Service{loads: loads, store: st, events: events, nowFunc: time.Now}
}

// Round applies one offer. Input is validated before any session is read or
// written, and a failed round leaves the stored session unchanged.
func (s *Service) Round(ctx context.Context, req RoundRequest) (RoundResult, error) {
	loadID := strings.TrimSpace(req.LoadID)
	if loadID == "" {
		return RoundResult{}, apperr.InvalidInput("load_id is required")
	}
	mc, err := carrier.NormalizeMC(req.MCNumber)
	if err != nil {
		return RoundResult{}, err
	}
	if !req.CarrierOffer.IsPositive() {
		return RoundResult{}, apperr.InvalidInput("carrier_offer must be > 0")
	}

	load, err := s.loads.Get(ctx, loadID)
	if err != nil {
		return RoundResult{}, err
	}

	start := time.Now()
	key := model.SessionKey{LoadID: load.LoadID, MCNumber: mc}
	sess, err := s.store.UpdateSession(ctx, key, func(cur *model.NegotiationSession) (*model.NegotiationSession, error) {
		return Advance(cur, load, mc, req.CarrierOffer, s.nowFunc().UTC())
	})
	if err != nil {
		s.logEvent(ctx, key, false, start, map[string]any{"carrier_offer": req.CarrierOffer, "error": err.Error()})
		if apperr.KindOf(err) == apperr.KindInternal {
			zap.L().Error("negotiation: persist round failed",
				zap.String("load_id", key.LoadID),
				zap.String("mc_number", key.MCNumber),
				zap.Error(err),
			)
			return RoundResult{}, apperr.Persistence(err, "negotiation state could not be saved")
		}
		return RoundResult{}, err
	}

	res := resultFor(sess)
	zap.L().Info("negotiation round",
		zap.String("load_id", res.LoadID),
		zap.String("mc_number", res.MCNumber),
		zap.Int("round", res.Round),
		zap.String("status", string(res.Status)),
		zap.String("carrier_offer", req.CarrierOffer.String()),
	)
	s.logEvent(ctx, key, true, start, res)
	return res, nil
}

// Get returns the current session for a load and carrier.
func (s *Service) Get(ctx context.Context, loadID, mcNumber string) (*model.NegotiationSession, error) {
	mc, err := carrier.NormalizeMC(mcNumber)
	if err != nil {
		return nil, err
	}
	key := model.SessionKey{LoadID: strings.TrimSpace(loadID), MCNumber: mc}
	sess, err := s.store.GetSession(ctx, key)
	if err != nil {
		return nil, apperr.Persistence(err, "negotiation state could not be read")
	}
	if sess == nil {
		return nil, apperr.NotFound("no negotiation for load %s and carrier %s", key.LoadID, key.MCNumber)
	}
	return sess, nil
}

// Prune deletes sessions untouched for longer than olderThan.
func (s *Service) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := s.nowFunc().UTC().Add(-olderThan)
	n, err := s.store.DeleteSessionsBefore(ctx, cutoff)
	if err != nil {
		return 0, apperr.Persistence(err, "stale sessions could not be pruned")
	}
	if n > 0 {
		zap.L().Info("negotiation: pruned stale sessions", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

func resultFor(sess *model.NegotiationSession) RoundResult {
	res := RoundResult{
		LoadID:             sess.LoadID,
		MCNumber:           sess.MCNumber,
		Status:             sess.Status,
		Round:              sess.Round,
		RoundsLeft:         RoundsLeft(sess),
		BrokerCounterOffer: sess.BrokerCounterOffer,
		AgreedRate:         sess.AgreedRate,
	}
	switch sess.Status {
	case model.NegotiationAgreed:
		res.Message = fmt.Sprintf("Agreed at %s.", sess.AgreedRate.StringFixed(2))
	case model.NegotiationRejected:
		res.Message = fmt.Sprintf("No agreement after %d rounds.", MaxRounds)
	default:
		res.Message = fmt.Sprintf("We can do %s.", sess.BrokerCounterOffer.StringFixed(2))
	}
	return res
}

func (s *Service) logEvent(ctx context.Context, key model.SessionKey, ok bool, start time.Time, payload any) {
	if s.events == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = nil
	}
	s.events.LogEvent(ctx, model.Event{
		Type:      model.EventNegotiation,
		MCNumber:  key.MCNumber,
		LoadID:    key.LoadID,
		OK:        ok,
		LatencyMs: time.Since(start).Milliseconds(),
		Payload:   raw,
	})
}
