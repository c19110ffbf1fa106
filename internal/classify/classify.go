// Package classify labels a finished call with its business outcome and the
// carrier's closing sentiment.
package classify

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/inbound-carrier/internal/model"
)

// Result is the classification of one call.
type Result struct {
	Outcome   model.Outcome   `json:"outcome"`
	Sentiment model.Sentiment `json:"sentiment"`
}

// Classify derives the outcome from whether a rate was agreed and the
// sentiment from the last recognizable sentiment marker in the transcript.
// It has no side effects.
func Classify(t model.Transcript, agreedRate *decimal.Decimal) Result {
	res := Result{Outcome: model.OutcomeNoDeal, Sentiment: model.SentimentNeutral}
	if agreedRate != nil {
		res.Outcome = model.OutcomeBooked
	}

	events := t.Events()
	for i := len(events) - 1; i >= 0; i-- {
		switch ev := events[i].(type) {
		case model.MarkerEvent:
			if ev.Name != model.SentimentMarkerName {
				continue
			}
			if s, ok := ParseSentiment(ev.Value); ok {
				res.Sentiment = s
				return res
			}
		case model.DialogueTurn:
		}
	}
	return res
}

// ParseSentiment reads a marker value such as "positive_tag", "Negative" or
// " neutral ". Unknown values report false.
func ParseSentiment(v string) (model.Sentiment, bool) {
	v = strings.ToLower(strings.TrimSpace(v))
	v = strings.TrimSuffix(v, "_tag")
	v = strings.TrimSpace(v)
	switch model.Sentiment(v) {
	case model.SentimentPositive, model.SentimentNeutral, model.SentimentNegative:
		return model.Sentiment(v), true
	}
	return "", false
}
