// Package negotiation runs the bounded price negotiation between the broker
// and a carrier over a single load.
package negotiation

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/inbound-carrier/internal/apperr"
	"github.com/sells-group/inbound-carrier/internal/model"
)

// MaxRounds is the number of carrier offers a session accepts before it is
// rejected.
const MaxRounds = 3

var two = decimal.NewFromInt(2)

// Advance applies one carrier offer to sess and returns the resulting session.
// A nil sess starts a new session; every offer counts as one round, so the
// first offer yields round 1. sess is never modified.
//
// An offer at or above the target rate is agreed at the target. From the
// second round on, an offer within [min, target] is agreed at the offer; every
// broker counter lies in that range, so this also covers taking a counter.
// The opening offer below target is always countered with the midpoint of the
// offer and the target, rounded half up to whole units and clamped to
// [min, target]. Below min, the broker keeps countering until the final round
// rejects.
func Advance(sess *model.NegotiationSession, load model.Load, mcNumber string, offer decimal.Decimal, now time.Time) (*model.NegotiationSession, error) {
	if !offer.IsPositive() {
		return nil, apperr.InvalidInput("carrier_offer must be > 0")
	}

	var next *model.NegotiationSession
	if sess == nil {
		next = &model.NegotiationSession{
			LoadID:    load.LoadID,
			MCNumber:  strings.TrimSpace(mcNumber),
			Status:    model.NegotiationOngoing,
			CreatedAt: now,
		}
	} else {
		if sess.Status.Terminal() {
			return nil, apperr.SessionClosed("negotiation for load %s is already %s", sess.LoadID, sess.Status)
		}
		if sess.LoadID != load.LoadID {
			return nil, apperr.InvalidInput("session belongs to load %s, not %s", sess.LoadID, load.LoadID)
		}
		next = sess.Clone()
	}

	next.Round++
	next.CarrierOffer = offer
	next.CarrierOffers = append(next.CarrierOffers, offer)
	next.UpdatedAt = now

	switch {
	case offer.GreaterThanOrEqual(load.TargetRate):
		agree(next, load.TargetRate)
	case next.Round > 1 && withinRange(load, offer):
		agree(next, offer)
	case next.Round < MaxRounds:
		counter := CounterOffer(load, offer)
		next.BrokerCounterOffer = &counter
		next.CounterOffers = append(next.CounterOffers, counter)
	default:
		next.Status = model.NegotiationRejected
		next.BrokerCounterOffer = nil
	}
	return next, nil
}

// CounterOffer returns the broker's counter to offer: the midpoint of offer
// and the target rate, rounded half up to whole units, clamped to
// [min_acceptable_rate, target_rate].
func CounterOffer(load model.Load, offer decimal.Decimal) decimal.Decimal {
	mid := offer.Add(load.TargetRate).Div(two).Round(0)
	if mid.LessThan(load.MinAcceptableRate) {
		return load.MinAcceptableRate
	}
	if mid.GreaterThan(load.TargetRate) {
		return load.TargetRate
	}
	return mid
}

// RoundsLeft is how many more offers the session will accept.
func RoundsLeft(sess *model.NegotiationSession) int {
	if sess == nil {
		return MaxRounds
	}
	if sess.Status.Terminal() {
		return 0
	}
	return MaxRounds - sess.Round
}

func agree(sess *model.NegotiationSession, rate decimal.Decimal) {
	sess.Status = model.NegotiationAgreed
	sess.AgreedRate = &rate
	sess.BrokerCounterOffer = nil
}

func withinRange(load model.Load, offer decimal.Decimal) bool {
	return offer.GreaterThanOrEqual(load.MinAcceptableRate) && offer.LessThanOrEqual(load.TargetRate)
}
