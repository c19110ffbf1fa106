package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/inbound-carrier/internal/carrier"
	"github.com/sells-group/inbound-carrier/internal/catalog"
	"github.com/sells-group/inbound-carrier/internal/model"
	"github.com/sells-group/inbound-carrier/internal/negotiation"
	"github.com/sells-group/inbound-carrier/internal/recorder"
	"github.com/sells-group/inbound-carrier/internal/store"
	"github.com/sells-group/inbound-carrier/pkg/fmcsa"
)

const testKey = "secret-key"

type stubRegistry struct {
	carriers map[string]*fmcsa.Carrier
	err      error
	calls    atomic.Int32
}

func (s *stubRegistry) CarrierByDocket(_ context.Context, mc string) (*fmcsa.Carrier, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.carriers[mc], nil
}

type harness struct {
	handler  http.Handler
	store    *store.MemoryStore
	registry *stubRegistry
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	pickup := time.Date(2026, 10, 20, 8, 0, 0, 0, time.UTC)
	cat, err := catalog.New([]model.Load{
		{
			LoadID: "L-100", EquipmentType: model.EquipmentDryVan,
			Origin: "Chicago, IL", Destination: "Dallas, TX",
			TargetRate: dec("1800"), MinAcceptableRate: dec("1500"),
			PickupDatetime: &pickup, Weight: 42000,
		},
		{
			LoadID: "L-200", EquipmentType: model.EquipmentDryVan,
			Origin: "Chicago, IL", Destination: "Dallas, TX",
			TargetRate: dec("1700"), MinAcceptableRate: dec("1400"),
			Weight: 30000,
		},
		{
			LoadID: "L-300", EquipmentType: model.EquipmentReefer,
			Origin: "Fresno, CA", Destination: "Denver, CO",
			TargetRate: dec("2400"), MinAcceptableRate: dec("2040"),
		},
	}, 3)
	require.NoError(t, err)

	st := store.NewMemory()
	rec := recorder.New(st)
	reg := &stubRegistry{carriers: map[string]*fmcsa.Carrier{
		"123456": {LegalName: "ACME TRUCKING LLC", DOTNumber: 1234567, AllowedToOperate: "Y", StatusCode: "A"},
		"999":    {LegalName: "GROUNDED LLC", AllowedToOperate: "N"},
	}}

	srv := NewServer(
		Config{APIKey: testKey, CORSOrigins: []string{"*"}},
		carrier.NewVerifier(reg, time.Second, nil),
		cat,
		negotiation.NewService(cat, st, rec),
		rec,
	)
	return &harness{handler: srv.Handler(), store: st, registry: reg}
}

func (h *harness) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	r.Header.Set(APIKeyHeader, testKey)
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth_NoAuth(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for _, path := range []string{"/", "/health"} {
		w := httptest.NewRecorder()
		h.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}

func TestAuth(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for name, key := range map[string]string{"missing": "", "wrong": "nope", "prefix": testKey[:3]} {
		r := httptest.NewRequest(http.MethodPost, "/verify-mc", strings.NewReader(`{"mc_number":"123456"}`))
		if key != "" {
			r.Header.Set(APIKeyHeader, key)
		}
		w := httptest.NewRecorder()
		h.handler.ServeHTTP(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code, name)
		body := decode[errorBody](t, w)
		assert.Equal(t, "authentication", body.Error)
		assert.False(t, body.Retryable)
	}
	assert.Zero(t, h.registry.calls.Load())
}

func TestAuth_EmptyConfiguredKeyRejectsAll(t *testing.T) {
	t.Parallel()

	srv := NewServer(Config{}, nil, nil, nil, nil)
	r := httptest.NewRequest(http.MethodGet, "/calls", nil)
	r.Header.Set(APIKeyHeader, "")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	r := httptest.NewRequest(http.MethodOptions, "/negotiate-round", nil)
	r.Header.Set("Origin", "https://platform.example.com")
	r.Header.Set("Access-Control-Request-Method", http.MethodPost)
	r.Header.Set("Access-Control-Request-Headers", APIKeyHeader)
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestVerifyMC(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	w := h.do(t, http.MethodPost, "/verify-mc", `{"mc_number":"MC-123456"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[carrier.VerificationResult](t, w)
	assert.True(t, res.Valid)
	assert.Equal(t, "ACME TRUCKING LLC", res.CarrierName)
	assert.Equal(t, "123456", res.MCNumber)

	w = h.do(t, http.MethodPost, "/verify-mc", `{"mc_number":"999"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[carrier.VerificationResult](t, w).Valid)

	events := h.store.Events()
	require.Len(t, events, 2)
	assert.Equal(t, model.EventVerify, events[0].Type)
	assert.True(t, events[0].OK)
}

func TestVerifyMC_MalformedSkipsRegistry(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for _, body := range []string{`{"mc_number":"ABC"}`, `{"mc_number":""}`, `{}`, `not json`, ``} {
		w := h.do(t, http.MethodPost, "/verify-mc", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
		assert.Equal(t, "invalid_input", decode[errorBody](t, w).Error, body)
	}
	assert.Zero(t, h.registry.calls.Load())
	assert.Empty(t, h.store.Events())
}

func TestVerifyMC_Upstream(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.registry.err = errors.New("connection refused")

	w := h.do(t, http.MethodPost, "/verify-mc", `{"mc_number":"123456"}`)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, "upstream_unavailable", body.Error)
	assert.True(t, body.Retryable)

	events := h.store.Events()
	require.Len(t, events, 1)
	assert.False(t, events[0].OK)
}

type loadsBody struct {
	Count int          `json:"count"`
	Loads []model.Load `json:"loads"`
}

func TestSuggestLoads(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	body := `{"equipment_type":"dry van","origin":"chicago, il","destination":"DALLAS, TX"}`
	w := h.do(t, http.MethodPost, "/suggest-loads", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[loadsBody](t, w)
	require.Equal(t, 2, got.Count)
	assert.Equal(t, "L-200", got.Loads[0].LoadID)
	assert.Equal(t, "L-100", got.Loads[1].LoadID)

	again := h.do(t, http.MethodPost, "/suggest-loads", body)
	assert.Equal(t, w.Body.String(), again.Body.String())

	w = h.do(t, http.MethodPost, "/suggest-loads", `{"equipment_type":"Flatbed","origin":"A","destination":"B"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"count":0,"loads":[]}`, w.Body.String())

	w = h.do(t, http.MethodPost, "/suggest-loads", `{"origin":"A"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSearchLoads(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/search-loads?origin=Chicago,%20IL&max_weight=35000", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[loadsBody](t, w)
	require.Equal(t, 1, got.Count)
	assert.Equal(t, "L-200", got.Loads[0].LoadID)

	w = h.do(t, http.MethodGet, "/search-loads?pickup_date_after=2026-10-19&pickup_date_before=2026-10-21", "")
	require.Equal(t, http.StatusOK, w.Code)
	got = decode[loadsBody](t, w)
	require.Equal(t, 1, got.Count)
	assert.Equal(t, "L-100", got.Loads[0].LoadID)

	w = h.do(t, http.MethodGet, "/search-loads", "")
	assert.Equal(t, 3, decode[loadsBody](t, w).Count)

	for _, q := range []string{"max_weight=heavy", "max_weight=-1", "pickup_date_after=tomorrow"} {
		w = h.do(t, http.MethodGet, "/search-loads?"+q, "")
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestGetLoad(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/load/L-300", "")
	require.Equal(t, http.StatusOK, w.Code)
	l := decode[model.Load](t, w)
	assert.Equal(t, model.EquipmentReefer, l.EquipmentType)
	assert.Equal(t, "2400", l.TargetRate.String())

	w = h.do(t, http.MethodGet, "/load/NOPE", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[errorBody](t, w).Error)
}

func round(t *testing.T, h *harness, offer string) negotiation.RoundResult {
	t.Helper()
	w := h.do(t, http.MethodPost, "/negotiate-round",
		`{"load_id":"L-100","mc_number":"123456","carrier_offer":`+offer+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[negotiation.RoundResult](t, w)
}

func TestNegotiateRound_CounterThenAgree(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res := round(t, h, "1600")
	assert.Equal(t, model.NegotiationOngoing, res.Status)
	require.NotNil(t, res.BrokerCounterOffer)
	assert.Equal(t, "1700", res.BrokerCounterOffer.String())
	assert.Nil(t, res.AgreedRate)

	res = round(t, h, "1700")
	assert.Equal(t, model.NegotiationAgreed, res.Status)
	require.NotNil(t, res.AgreedRate)
	assert.Equal(t, "1700", res.AgreedRate.String())
	assert.Equal(t, 2, res.Round)

	w := h.do(t, http.MethodPost, "/negotiate-round", `{"load_id":"L-100","mc_number":"123456","carrier_offer":1750}`)
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode[errorBody](t, w)
	assert.Equal(t, "session_closed", body.Error)
	assert.False(t, body.Retryable)
}

func TestNegotiateRound_OfferAsString(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	res := round(t, h, `"1900"`)
	assert.Equal(t, model.NegotiationAgreed, res.Status)
	assert.Equal(t, "1800", res.AgreedRate.String())
}

func TestNegotiateRound_Errors(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	cases := map[string]struct {
		body   string
		status int
	}{
		"unknown load":   {`{"load_id":"NOPE","mc_number":"123456","carrier_offer":1000}`, http.StatusNotFound},
		"bad mc":         {`{"load_id":"L-100","mc_number":"12x","carrier_offer":1000}`, http.StatusBadRequest},
		"zero offer":     {`{"load_id":"L-100","mc_number":"123456","carrier_offer":0}`, http.StatusBadRequest},
		"negative offer": {`{"load_id":"L-100","mc_number":"123456","carrier_offer":-5}`, http.StatusBadRequest},
		"missing offer":  {`{"load_id":"L-100","mc_number":"123456"}`, http.StatusBadRequest},
		"bad offer":      {`{"load_id":"L-100","mc_number":"123456","carrier_offer":"lots"}`, http.StatusBadRequest},
	}
	for name, tc := range cases {
		w := h.do(t, http.MethodPost, "/negotiate-round", tc.body)
		assert.Equal(t, tc.status, w.Code, name)
	}

	w := h.do(t, http.MethodGet, "/negotiations/L-100/123456", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetNegotiation(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	round(t, h, "1000")

	w := h.do(t, http.MethodGet, "/negotiations/L-100/MC123456", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got struct {
		Status     model.NegotiationStatus `json:"status"`
		Round      int                     `json:"round"`
		RoundsLeft int                     `json:"rounds_left"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, model.NegotiationOngoing, got.Status)
	assert.Equal(t, 1, got.Round)
	assert.Equal(t, 2, got.RoundsLeft)
}

type summaryBody struct {
	OK        bool            `json:"ok"`
	CallID    string          `json:"call_id"`
	Outcome   model.Outcome   `json:"outcome"`
	Sentiment model.Sentiment `json:"sentiment"`
}

func postSummary(t *testing.T, h *harness, body string) *httptest.ResponseRecorder {
	t.Helper()
	return h.do(t, http.MethodPost, "/webhooks/happyrobot/call-summary", body)
}

func TestCallSummary_EmptyTranscriptIsNeutral(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	w := postSummary(t, h, `{"mc_number":"123456","load_id":"L-300","transcript":[]}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[summaryBody](t, w)
	assert.True(t, got.OK)
	assert.NotEmpty(t, got.CallID)
	assert.Equal(t, model.OutcomeNoDeal, got.Outcome)
	assert.Equal(t, model.SentimentNeutral, got.Sentiment)
}

func TestCallSummary_SessionStatusWins(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	round(t, h, "1900")

	// The payload omits agreed_rate; the agreed session still books the call.
	transcript := `[{"role":"assistant","content":"Hi"},{"role":"event","name":"sentiment_hr","content":"positive_tag"}]`
	w := postSummary(t, h, `{"mc_number":"123456","load_id":"L-100","transcript":`+transcript+`}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got := decode[summaryBody](t, w)
	assert.Equal(t, model.OutcomeBooked, got.Outcome)
	assert.Equal(t, model.SentimentPositive, got.Sentiment)

	calls, err := h.store.ListCalls(context.Background(), store.CallFilter{})
	require.NoError(t, err)
	require.Len(t, calls, 1)
	require.NotNil(t, calls[0].AgreedRate)
	assert.Equal(t, "1800", calls[0].AgreedRate.String())
	assert.Equal(t, model.NegotiationAgreed, calls[0].NegotiationStatus)
	assert.Equal(t, 1, calls[0].Rounds)
}

func TestCallSummary_PayloadRateIgnoredForOngoingSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	round(t, h, "1000")

	w := postSummary(t, h, `{"mc_number":"123456","load_id":"L-100","agreed_rate":1650,"transcript":[]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, model.OutcomeNoDeal, decode[summaryBody](t, w).Outcome)
}

func TestCallSummary_PayloadRateWithoutSession(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	w := postSummary(t, h, `{"mc_number":"123456","load_id":"L-200","agreed_rate":1650,"transcript":"[{\"role\":\"user\",\"content\":\"ok\"}]"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, model.OutcomeBooked, decode[summaryBody](t, w).Outcome)

	events := h.store.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, model.EventSummaryReceived, events[len(events)-1].Type)
}

func TestCallSummary_Invalid(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	for name, body := range map[string]string{
		"bad role":       `{"mc_number":"123456","transcript":[{"role":"robot","content":"x"}]}`,
		"bad mc":         `{"mc_number":"abc","transcript":[]}`,
		"bad rate":       `{"mc_number":"123456","agreed_rate":-1,"transcript":[]}`,
		"bad transcript": `{"mc_number":"123456","transcript":{"role":"user"}}`,
	} {
		w := postSummary(t, h, body)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
	}

	calls, err := h.store.ListCalls(context.Background(), store.CallFilter{})
	require.NoError(t, err)
	assert.Empty(t, calls)
}

func TestCallsListAndSummary(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	postSummary(t, h, `{"mc_number":"123456","load_id":"L-200","agreed_rate":1600,"transcript":[]}`)
	postSummary(t, h, `{"mc_number":"777","load_id":"L-300","transcript":[{"role":"event","name":"sentiment_hr","content":"negative_tag"}]}`)

	w := h.do(t, http.MethodGet, "/calls?mc_number=777", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var list struct {
		Count int                `json:"count"`
		Calls []model.CallRecord `json:"calls"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Equal(t, 1, list.Count)
	assert.Equal(t, model.SentimentNegative, list.Calls[0].Sentiment)

	w = h.do(t, http.MethodGet, "/calls?limit=x", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(t, http.MethodGet, "/calls/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	sum := decode[recorder.Summary](t, w)
	assert.Equal(t, 2, sum.TotalCalls)
	assert.Equal(t, 1, sum.Booked)
	assert.InDelta(t, 0.5, sum.BookingRate, 1e-9)
	require.NotNil(t, sum.AvgAgreedRate)
	assert.Equal(t, "1600", sum.AvgAgreedRate.String())
}

func TestUnknownRoute(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	w := h.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDecodeJSON_TooLarge(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	big := `{"mc_number":"` + strings.Repeat("1", maxBodyBytes) + `"}`
	r := httptest.NewRequest(http.MethodPost, "/verify-mc", bytes.NewBufferString(big))
	r.Header.Set(APIKeyHeader, testKey)
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
