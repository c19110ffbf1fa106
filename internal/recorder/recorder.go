// Package recorder writes finalized call records and the audit trail, and
// reports on what has been recorded.
package recorder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/inbound-carrier/internal/apperr"
	"github.com/sells-group/inbound-carrier/internal/model"
	"github.com/sells-group/inbound-carrier/internal/store"
)

// Sink is the persistence the recorder writes through.
type Sink interface {
	InsertCall(ctx context.Context, rec *model.CallRecord) error
	ListCalls(ctx context.Context, filter store.CallFilter) ([]model.CallRecord, error)
	CallSummary(ctx context.Context) (*store.CallSummary, error)
	InsertEvent(ctx context.Context, ev *model.Event) error
}

// Summary is the reporting view over recorded calls.
type Summary struct {
	TotalCalls    int                     `json:"total_calls"`
	Booked        int                     `json:"booked"`
	BookingRate   float64                 `json:"booking_rate"`
	AvgAgreedRate *decimal.Decimal        `json:"avg_agreed_rate"`
	ByOutcome     map[model.Outcome]int   `json:"by_outcome"`
	BySentiment   map[model.Sentiment]int `json:"by_sentiment"`
}

// Recorder persists call records. Records are not deduplicated; submitting
// the same call twice stores it twice.
type Recorder struct {
	sink    Sink
	nowFunc func() time.Time
}

// New creates a Recorder.
func New(sink Sink) *Recorder {
	return &Recorder{sink: sink, nowFunc: time.Now}
}

// Record stores rec, assigning an id and timestamp when missing. Any write
// failure is returned as a persistence error.
func (r *Recorder) Record(ctx context.Context, rec *model.CallRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = r.nowFunc().UTC()
	}
	if err := r.sink.InsertCall(ctx, rec); err != nil {
		zap.L().Error("recorder: write call record failed",
			zap.String("call_id", rec.ID),
			zap.String("mc_number", rec.MCNumber),
			zap.String("load_id", rec.LoadID),
			zap.Error(err),
		)
		return apperr.Persistence(err, "call record could not be saved")
	}
	return nil
}

// List returns recorded calls, newest first.
func (r *Recorder) List(ctx context.Context, filter store.CallFilter) ([]model.CallRecord, error) {
	calls, err := r.sink.ListCalls(ctx, filter)
	if err != nil {
		return nil, apperr.Persistence(err, "call records could not be read")
	}
	if calls == nil {
		calls = []model.CallRecord{}
	}
	return calls, nil
}

// Summary aggregates every recorded call.
func (r *Recorder) Summary(ctx context.Context) (*Summary, error) {
	s, err := r.sink.CallSummary(ctx)
	if err != nil {
		return nil, apperr.Persistence(err, "call summary could not be read")
	}
	out := &Summary{
		TotalCalls:    s.Total,
		Booked:        s.Booked,
		AvgAgreedRate: s.AvgAgreedRate,
		ByOutcome:     s.ByOutcome,
		BySentiment:   s.BySentiment,
	}
	if s.Total > 0 {
		out.BookingRate = float64(s.Booked) / float64(s.Total)
	}
	return out, nil
}

// LogEvent appends ev to the audit trail. It never fails the caller; write
// errors are logged and dropped.
func (r *Recorder) LogEvent(ctx context.Context, ev model.Event) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = r.nowFunc().UTC()
	}
	if err := r.sink.InsertEvent(ctx, &ev); err != nil {
		zap.L().Warn("recorder: write event failed",
			zap.String("event_type", ev.Type),
			zap.Error(err),
		)
	}
}
