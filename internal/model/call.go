package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is the business result of a call.
type Outcome string

const (
	OutcomeBooked Outcome = "booked"
	OutcomeNoDeal Outcome = "no_deal"
)

// Sentiment is the carrier's emotional tone at the end of a call.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// CallRecord is the finalized summary of one inbound call. It is immutable
// once written.
type CallRecord struct {
	ID                string            `json:"id"`
	MCNumber          string            `json:"mc_number"`
	LoadID            string            `json:"load_id"`
	AgreedRate        *decimal.Decimal  `json:"agreed_rate"`
	Transcript        Transcript        `json:"transcript"`
	Outcome           Outcome           `json:"outcome"`
	Sentiment         Sentiment         `json:"sentiment"`
	NegotiationStatus NegotiationStatus `json:"negotiation_status,omitempty"`
	Rounds            int               `json:"rounds"`
	CreatedAt         time.Time         `json:"created_at"`
}

// Clone returns a deep copy of r.
func (r *CallRecord) Clone() *CallRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.AgreedRate != nil {
		v := *r.AgreedRate
		c.AgreedRate = &v
	}
	if r.Transcript != nil {
		c.Transcript = append(Transcript(nil), r.Transcript...)
	}
	return &c
}

// Event types written to the audit trail.
const (
	EventVerify          = "fmcsa.verify"
	EventNegotiation     = "nego.round"
	EventSummaryReceived = "summary.received"
)

// Event is one audit-trail entry.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"event_type"`
	MCNumber  string          `json:"mc_number,omitempty"`
	LoadID    string          `json:"load_id,omitempty"`
	OK        bool            `json:"ok"`
	LatencyMs int64           `json:"latency_ms"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}
