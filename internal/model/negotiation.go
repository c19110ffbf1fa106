package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// NegotiationStatus is the state of a negotiation session.
type NegotiationStatus string

const (
	NegotiationOngoing  NegotiationStatus = "ongoing"
	NegotiationAgreed   NegotiationStatus = "agreed"
	NegotiationRejected NegotiationStatus = "rejected"
)

// Terminal reports whether no further rounds are permitted.
func (s NegotiationStatus) Terminal() bool {
	return s == NegotiationAgreed || s == NegotiationRejected
}

// SessionKey addresses a negotiation session.
type SessionKey struct {
	LoadID   string `json:"load_id"`
	MCNumber string `json:"mc_number"`
}

// String returns the canonical "load_id::mc_number" form used as a lock and
// storage key.
func (k SessionKey) String() string {
	return k.LoadID + "::" + k.MCNumber
}

// NegotiationSession is the externalized state of one price negotiation
// between the broker and a carrier over a single load.
type NegotiationSession struct {
	LoadID             string            `json:"load_id"`
	MCNumber           string            `json:"mc_number"`
	Round              int               `json:"round"`
	CarrierOffer       decimal.Decimal   `json:"carrier_offer"`
	BrokerCounterOffer *decimal.Decimal  `json:"broker_counter_offer,omitempty"`
	Status             NegotiationStatus `json:"status"`
	AgreedRate         *decimal.Decimal  `json:"agreed_rate,omitempty"`
	CarrierOffers      []decimal.Decimal `json:"carrier_offers"`
	CounterOffers      []decimal.Decimal `json:"counter_offers"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
}

// Key returns the session's storage key.
func (s *NegotiationSession) Key() SessionKey {
	return SessionKey{LoadID: s.LoadID, MCNumber: s.MCNumber}
}

// Clone returns a deep copy so callers can derive a new state without
// touching the stored one.
func (s *NegotiationSession) Clone() *NegotiationSession {
	if s == nil {
		return nil
	}
	c := *s
	if s.BrokerCounterOffer != nil {
		v := *s.BrokerCounterOffer
		c.BrokerCounterOffer = &v
	}
	if s.AgreedRate != nil {
		v := *s.AgreedRate
		c.AgreedRate = &v
	}
	c.CarrierOffers = append([]decimal.Decimal(nil), s.CarrierOffers...)
	c.CounterOffers = append([]decimal.Decimal(nil), s.CounterOffers...)
	return &c
}
