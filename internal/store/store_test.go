package store

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/inbound-carrier/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// drivers runs each test against every store that needs no external server.
func drivers(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLiteStore(t)) })
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
}

func rate(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

var testKey = model.SessionKey{LoadID: "L-1", MCNumber: "123456"}

func startSession(now time.Time) UpdateFunc {
	return func(cur *model.NegotiationSession) (*model.NegotiationSession, error) {
		if cur != nil {
			next := cur.Clone()
			next.Round++
			next.UpdatedAt = now
			return next, nil
		}
		return &model.NegotiationSession{
			LoadID:        testKey.LoadID,
			MCNumber:      testKey.MCNumber,
			Round:         1,
			Status:        model.NegotiationOngoing,
			CarrierOffer:  decimal.NewFromInt(1600),
			CarrierOffers: []decimal.Decimal{decimal.NewFromInt(1600)},
			CreatedAt:     now,
			UpdatedAt:     now,
		}, nil
	}
}

func TestStore_SessionLifecycle(t *testing.T) {
	drivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

		got, err := st.GetSession(ctx, testKey)
		require.NoError(t, err)
		assert.Nil(t, got)

		sess, err := st.UpdateSession(ctx, testKey, startSession(now))
		require.NoError(t, err)
		assert.Equal(t, 1, sess.Round)

		sess, err = st.UpdateSession(ctx, testKey, startSession(now.Add(time.Minute)))
		require.NoError(t, err)
		assert.Equal(t, 2, sess.Round)

		got, err = st.GetSession(ctx, testKey)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, 2, got.Round)
		assert.Equal(t, "1600", got.CarrierOffer.String())
		assert.True(t, got.UpdatedAt.Equal(now.Add(time.Minute)))
	})
}

func TestStore_UpdateSessionErrorWritesNothing(t *testing.T) {
	drivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		now := time.Now().UTC()

		_, err := st.UpdateSession(ctx, testKey, startSession(now))
		require.NoError(t, err)

		boom := errors.New("boom")
		_, err = st.UpdateSession(ctx, testKey, func(cur *model.NegotiationSession) (*model.NegotiationSession, error) {
			cur.Round = 99
			return cur, boom
		})
		assert.ErrorIs(t, err, boom)

		got, err := st.GetSession(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Round)
	})
}

func TestStore_UpdateSessionNilResultKeepsCurrent(t *testing.T) {
	drivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		got, err := st.UpdateSession(ctx, testKey, func(*model.NegotiationSession) (*model.NegotiationSession, error) {
			return nil, nil
		})
		require.NoError(t, err)
		assert.Nil(t, got)

		stored, err := st.GetSession(ctx, testKey)
		require.NoError(t, err)
		assert.Nil(t, stored)
	})
}

func TestStore_UpdateSessionSerializesSameKey(t *testing.T) {
	drivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		now := time.Now().UTC()

		const workers = 20
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := st.UpdateSession(ctx, testKey, startSession(now))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		got, err := st.GetSession(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, workers, got.Round)
	})
}

func TestStore_DeleteSessionsBefore(t *testing.T) {
	drivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		old := time.Now().UTC().Add(-3 * time.Hour)
		fresh := time.Now().UTC()

		_, err := st.UpdateSession(ctx, testKey, startSession(old))
		require.NoError(t, err)
		other := model.SessionKey{LoadID: "L-2", MCNumber: "9"}
		_, err = st.UpdateSession(ctx, other, func(*model.NegotiationSession) (*model.NegotiationSession, error) {
			return &model.NegotiationSession{LoadID: "L-2", MCNumber: "9", Round: 1, Status: model.NegotiationOngoing, CreatedAt: fresh, UpdatedAt: fresh}, nil
		})
		require.NoError(t, err)

		n, err := st.DeleteSessionsBefore(ctx, time.Now().UTC().Add(-time.Hour))
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		gone, err := st.GetSession(ctx, testKey)
		require.NoError(t, err)
		assert.Nil(t, gone)
		kept, err := st.GetSession(ctx, other)
		require.NoError(t, err)
		assert.NotNil(t, kept)
	})
}

func TestStore_CallsAndSummary(t *testing.T) {
	drivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		base := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)

		records := []model.CallRecord{
			{ID: "c1", MCNumber: "1", LoadID: "L-1", AgreedRate: rate(1700), Outcome: model.OutcomeBooked, Sentiment: model.SentimentPositive, NegotiationStatus: model.NegotiationAgreed, Rounds: 2, CreatedAt: base},
			{ID: "c2", MCNumber: "2", LoadID: "L-1", AgreedRate: rate(1800), Outcome: model.OutcomeBooked, Sentiment: model.SentimentNeutral, Rounds: 1, CreatedAt: base.Add(time.Minute),
				Transcript: model.Transcript{{Role: model.RoleUser, Content: "deal"}}},
			{ID: "c3", MCNumber: "1", LoadID: "L-2", Outcome: model.OutcomeNoDeal, Sentiment: model.SentimentNegative, Rounds: 3, CreatedAt: base.Add(2 * time.Minute)},
		}
		for i := range records {
			require.NoError(t, st.InsertCall(ctx, &records[i]))
		}

		all, err := st.ListCalls(ctx, CallFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "c3", all[0].ID)
		assert.Nil(t, all[0].AgreedRate)
		assert.Equal(t, "1800", all[1].AgreedRate.String())
		require.Len(t, all[1].Transcript, 1)
		assert.Equal(t, "deal", all[1].Transcript[0].Content)
		assert.True(t, all[2].CreatedAt.Equal(base))

		byMC, err := st.ListCalls(ctx, CallFilter{MCNumber: "1", Outcome: model.OutcomeBooked})
		require.NoError(t, err)
		require.Len(t, byMC, 1)
		assert.Equal(t, "c1", byMC[0].ID)

		since := base.Add(30 * time.Second)
		recent, err := st.ListCalls(ctx, CallFilter{Since: &since, Limit: 1})
		require.NoError(t, err)
		require.Len(t, recent, 1)
		assert.Equal(t, "c3", recent[0].ID)

		paged, err := st.ListCalls(ctx, CallFilter{Limit: 1, Offset: 1})
		require.NoError(t, err)
		require.Len(t, paged, 1)
		assert.Equal(t, "c2", paged[0].ID)

		sum, err := st.CallSummary(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, sum.Total)
		assert.Equal(t, 2, sum.Booked)
		assert.Equal(t, 1, sum.ByOutcome[model.OutcomeNoDeal])
		assert.Equal(t, 1, sum.BySentiment[model.SentimentPositive])
		require.NotNil(t, sum.AvgAgreedRate)
		assert.Equal(t, "1750", sum.AvgAgreedRate.String())
	})
}

func TestStore_EmptySummary(t *testing.T) {
	drivers(t, func(t *testing.T, st Store) {
		sum, err := st.CallSummary(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 0, sum.Total)
		assert.Nil(t, sum.AvgAgreedRate)
	})
}

func TestStore_InsertEvent(t *testing.T) {
	drivers(t, func(t *testing.T, st Store) {
		ev := &model.Event{
			ID:        "e1",
			Type:      model.EventVerify,
			MCNumber:  "1",
			OK:        true,
			LatencyMs: 120,
			Payload:   json.RawMessage(`{"valid":true}`),
			CreatedAt: time.Now().UTC(),
		}
		require.NoError(t, st.InsertEvent(context.Background(), ev))
		require.NoError(t, st.InsertEvent(context.Background(), &model.Event{ID: "e2", Type: model.EventNegotiation, CreatedAt: time.Now().UTC()}))
	})
}

func TestStore_InsertCallCopiesRecord(t *testing.T) {
	drivers(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		rec := model.CallRecord{
			ID:         "c1",
			MCNumber:   "1",
			LoadID:     "L-1",
			AgreedRate: rate(1700),
			Transcript: model.Transcript{{Role: model.RoleUser, Content: "deal"}},
			Outcome:    model.OutcomeBooked,
			Sentiment:  model.SentimentPositive,
			CreatedAt:  time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC),
		}
		require.NoError(t, st.InsertCall(ctx, &rec))

		*rec.AgreedRate = decimal.NewFromInt(1)
		rec.Transcript[0].Content = "changed"

		got, err := st.ListCalls(ctx, CallFilter{})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "1700", got[0].AgreedRate.String())
		assert.Equal(t, "deal", got[0].Transcript[0].Content)

		*got[0].AgreedRate = decimal.NewFromInt(2)
		again, err := st.ListCalls(ctx, CallFilter{})
		require.NoError(t, err)
		assert.Equal(t, "1700", again[0].AgreedRate.String())
	})
}

func TestMemory_EventsCopy(t *testing.T) {
	st := NewMemory()
	require.NoError(t, st.InsertEvent(context.Background(), &model.Event{ID: "e1", Type: model.EventVerify}))
	evs := st.Events()
	require.Len(t, evs, 1)
	evs[0].ID = "changed"
	assert.Equal(t, "e1", st.Events()[0].ID)
}

func TestOpen_Drivers(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, "memory", "", nil)
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, mem)

	lite, err := Open(ctx, "sqlite", filepath.Join(t.TempDir(), "x.db"), nil)
	require.NoError(t, err)
	defer lite.Close() //nolint:errcheck
	assert.IsType(t, &SQLiteStore{}, lite)

	_, err = Open(ctx, "mongo", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}
