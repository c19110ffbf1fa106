package classify

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sells-group/inbound-carrier/internal/model"
)

func marker(v string) model.TranscriptEntry {
	return model.TranscriptEntry{Role: model.RoleEvent, Name: model.SentimentMarkerName, Content: v}
}

func TestClassify_EmptyTranscript(t *testing.T) {
	t.Parallel()

	assert.Equal(t, Result{Outcome: model.OutcomeNoDeal, Sentiment: model.SentimentNeutral}, Classify(nil, nil))
}

func TestClassify_OnlyPositiveMarker(t *testing.T) {
	t.Parallel()

	res := Classify(model.Transcript{marker("positive_tag")}, nil)
	assert.Equal(t, model.SentimentPositive, res.Sentiment)
	assert.Equal(t, model.OutcomeNoDeal, res.Outcome)
}

func TestClassify_BookedWhenRateAgreed(t *testing.T) {
	t.Parallel()

	rate := decimal.NewFromInt(1700)
	res := Classify(model.Transcript{{Role: model.RoleUser, Content: "deal"}}, &rate)
	assert.Equal(t, model.OutcomeBooked, res.Outcome)
	assert.Equal(t, model.SentimentNeutral, res.Sentiment)
}

func TestClassify_LastMarkerWins(t *testing.T) {
	t.Parallel()

	tr := model.Transcript{
		{Role: model.RoleAssistant, Content: "Hello"},
		marker("positive_tag"),
		{Role: model.RoleUser, Content: "that rate is too low"},
		marker("negative_tag"),
		{Role: model.RoleAssistant, Content: "goodbye"},
	}
	assert.Equal(t, model.SentimentNegative, Classify(tr, nil).Sentiment)
}

func TestClassify_IgnoresUnknownAndOtherMarkers(t *testing.T) {
	t.Parallel()

	tr := model.Transcript{
		marker("positive_tag"),
		marker("ecstatic_tag"),
		{Role: model.RoleEvent, Name: "call_transferred", Content: "negative"},
		{Role: model.RoleUser, Content: "negative_tag"},
	}
	assert.Equal(t, model.SentimentPositive, Classify(tr, nil).Sentiment)
}

func TestParseSentiment(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want model.Sentiment
		ok   bool
	}{
		{"positive_tag", model.SentimentPositive, true},
		{"Negative", model.SentimentNegative, true},
		{" NEUTRAL_TAG ", model.SentimentNeutral, true},
		{"meh", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseSentiment(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
