// Package store persists negotiation sessions, call records and audit events.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sells-group/inbound-carrier/internal/model"
)

// UpdateFunc derives the next session from the current one, which is nil
// when no session exists yet. Returning an error aborts the update and
// nothing is written. Returning a nil session writes nothing.
type UpdateFunc func(cur *model.NegotiationSession) (*model.NegotiationSession, error)

// CallFilter specifies criteria for listing call records.
type CallFilter struct {
	MCNumber string        `json:"mc_number,omitempty"`
	LoadID   string        `json:"load_id,omitempty"`
	Outcome  model.Outcome `json:"outcome,omitempty"`
	Since    *time.Time    `json:"since,omitempty"`
	Limit    int           `json:"limit,omitempty"`
	Offset   int           `json:"offset,omitempty"`
}

// CallSummary aggregates recorded calls.
type CallSummary struct {
	Total         int                     `json:"total_calls"`
	Booked        int                     `json:"booked"`
	AvgAgreedRate *decimal.Decimal        `json:"avg_agreed_rate"`
	ByOutcome     map[model.Outcome]int   `json:"by_outcome"`
	BySentiment   map[model.Sentiment]int `json:"by_sentiment"`
}

// Store defines the persistence interface for the carrier sales service.
type Store interface {
	// Negotiation sessions

	// UpdateSession runs fn with exclusive access to the session at key and
	// persists its result. Callers holding different keys never wait on
	// each other. The persisted session is returned.
	UpdateSession(ctx context.Context, key model.SessionKey, fn UpdateFunc) (*model.NegotiationSession, error)
	// GetSession returns nil, nil when no session exists.
	GetSession(ctx context.Context, key model.SessionKey) (*model.NegotiationSession, error)
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Calls
	InsertCall(ctx context.Context, rec *model.CallRecord) error
	ListCalls(ctx context.Context, filter CallFilter) ([]model.CallRecord, error)
	CallSummary(ctx context.Context) (*CallSummary, error)

	// Audit trail
	InsertEvent(ctx context.Context, ev *model.Event) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func newCallSummary() *CallSummary {
	return &CallSummary{
		ByOutcome:   make(map[model.Outcome]int),
		BySentiment: make(map[model.Sentiment]int),
	}
}

// add folds count calls sharing an outcome and sentiment into s.
func (s *CallSummary) add(outcome model.Outcome, sentiment model.Sentiment, count int) {
	s.Total += count
	s.ByOutcome[outcome] += count
	s.BySentiment[sentiment] += count
	if outcome == model.OutcomeBooked {
		s.Booked += count
	}
}

// averageRate returns the mean of rates rounded to cents, or nil for none.
func averageRate(rates []decimal.Decimal) *decimal.Decimal {
	if len(rates) == 0 {
		return nil
	}
	avg := decimal.Avg(rates[0], rates[1:]...).Round(2)
	return &avg
}

// limitOrDefault caps list queries.
func limitOrDefault(n int) int {
	if n <= 0 || n > 1000 {
		return 100
	}
	return n
}
