package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/inbound-carrier/internal/model"
)

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	require.NoError(t, st.Migrate(context.Background()))
}

func TestSQLite_Millis(t *testing.T) {
	ts := time.Date(2026, 10, 15, 9, 30, 15, 123456789, time.FixedZone("CDT", -5*3600))
	got := fromMillis(toMillis(ts))

	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(ts.Truncate(time.Millisecond)))
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reopen.db")
	now := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	st, err := NewSQLite(path)
	require.NoError(t, err)
	require.NoError(t, st.Migrate(ctx))
	_, err = st.UpdateSession(ctx, testKey, startSession(now))
	require.NoError(t, err)
	require.NoError(t, st.InsertCall(ctx, &model.CallRecord{
		ID: "c1", MCNumber: "123456", Outcome: model.OutcomeNoDeal, Sentiment: model.SentimentNeutral, CreatedAt: now,
	}))
	require.NoError(t, st.Close())

	st, err = NewSQLite(path)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	sess, err := st.GetSession(ctx, testKey)
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, 1, sess.Round)
	assert.True(t, sess.CreatedAt.Equal(now))

	calls, err := st.ListCalls(ctx, CallFilter{})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	assert.Equal(t, "c1", calls[0].ID)
}

func TestSQLite_AgreedRatePrecision(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	agreed := decimal.RequireFromString("1849.995")
	require.NoError(t, st.InsertCall(ctx, &model.CallRecord{
		ID: "c1", MCNumber: "1", AgreedRate: &agreed,
		Outcome: model.OutcomeBooked, Sentiment: model.SentimentPositive, CreatedAt: time.Now(),
	}))

	calls, err := st.ListCalls(ctx, CallFilter{})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].AgreedRate)
	assert.True(t, calls[0].AgreedRate.Equal(agreed))
}

func TestSQLite_SinceComparesNumerically(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

	for i, id := range []string{"early", "late"} {
		require.NoError(t, st.InsertCall(ctx, &model.CallRecord{
			ID: id, MCNumber: "1", Outcome: model.OutcomeNoDeal, Sentiment: model.SentimentNeutral,
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}))
	}

	since := base.Add(time.Millisecond)
	got, err := st.ListCalls(ctx, CallFilter{Since: &since})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "late", got[0].ID)
}

func TestSQLite_EventsPersisted(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.InsertEvent(ctx, &model.Event{ID: "e1", Type: model.EventSummaryReceived, CreatedAt: time.Now()}))

	var n int
	require.NoError(t, st.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE event_type = ?`, model.EventSummaryReceived).Scan(&n))
	assert.Equal(t, 1, n)
}
