package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sells-group/inbound-carrier/internal/apperr"
	"github.com/sells-group/inbound-carrier/internal/carrier"
	"github.com/sells-group/inbound-carrier/internal/catalog"
	"github.com/sells-group/inbound-carrier/internal/classify"
	"github.com/sells-group/inbound-carrier/internal/model"
	"github.com/sells-group/inbound-carrier/internal/negotiation"
	"github.com/sells-group/inbound-carrier/internal/store"
)

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "API is live"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVerifyMC(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MCNumber string `json:"mc_number"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	mc, err := carrier.NormalizeMC(req.MCNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}

	start := time.Now()
	res, err := s.verifier.Verify(r.Context(), mc)
	ev := model.Event{
		Type:      model.EventVerify,
		MCNumber:  mc,
		OK:        err == nil,
		LatencyMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		ev.Payload, _ = json.Marshal(map[string]any{"error": err.Error()})
	} else {
		ev.Payload, _ = json.Marshal(map[string]any{"valid": res.Valid, "message": res.Message})
	}
	s.calls.LogEvent(r.Context(), ev)

	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type loadsResponse struct {
	Count int          `json:"count"`
	Loads []model.Load `json:"loads"`
}

func (s *Server) handleSuggestLoads(w http.ResponseWriter, r *http.Request) {
	var q catalog.SuggestQuery
	if err := decodeJSON(w, r, &q); err != nil {
		writeError(w, r, err)
		return
	}
	loads, err := s.loads.Suggest(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loadsResponse{Count: len(loads), Loads: loads})
}

func (s *Server) handleSearchLoads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := catalog.Filter{
		EquipmentType: q.Get("equipment_type"),
		Origin:        q.Get("origin"),
		Destination:   q.Get("destination"),
	}

	var err error
	if f.PickupAfter, err = queryTime(q.Get("pickup_date_after"), "pickup_date_after"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.PickupBefore, err = queryTime(q.Get("pickup_date_before"), "pickup_date_before"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.MaxWeight, err = queryInt(q.Get("max_weight"), "max_weight"); err != nil {
		writeError(w, r, err)
		return
	}

	loads, err := s.loads.Search(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loadsResponse{Count: len(loads), Loads: loads})
}

func (s *Server) handleGetLoad(w http.ResponseWriter, r *http.Request) {
	load, err := s.loads.Get(r.Context(), chi.URLParam(r, "load_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, load)
}

func (s *Server) handleNegotiateRound(w http.ResponseWriter, r *http.Request) {
	var req negotiation.RoundRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := s.negotiator.Round(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type sessionResponse struct {
	*model.NegotiationSession
	RoundsLeft int `json:"rounds_left"`
}

func (s *Server) handleGetNegotiation(w http.ResponseWriter, r *http.Request) {
	sess, err := s.negotiator.Get(r.Context(), chi.URLParam(r, "load_id"), chi.URLParam(r, "mc_number"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{NegotiationSession: sess, RoundsLeft: negotiation.RoundsLeft(sess)})
}

type callSummaryRequest struct {
	MCNumber   string           `json:"mc_number"`
	LoadID     string           `json:"load_id"`
	AgreedRate *decimal.Decimal `json:"agreed_rate"`
	Transcript model.Transcript `json:"transcript"`
}

type callSummaryResponse struct {
	OK         bool            `json:"ok"`
	ReceivedAt time.Time       `json:"received_at"`
	CallID     string          `json:"call_id"`
	Outcome    model.Outcome   `json:"outcome"`
	Sentiment  model.Sentiment `json:"sentiment"`
}

// handleCallSummary records a finished call. When a negotiation session
// exists for the call, its status decides the outcome and the payload's
// agreed_rate is only cross-checked.
func (s *Server) handleCallSummary(w http.ResponseWriter, r *http.Request) {
	received := s.nowFunc().UTC()

	var req callSummaryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	mc, err := carrier.NormalizeMC(req.MCNumber)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.Transcript.Validate(); err != nil {
		writeError(w, r, apperr.InvalidInput("%s", err.Error()))
		return
	}
	if req.AgreedRate != nil && !req.AgreedRate.IsPositive() {
		writeError(w, r, apperr.InvalidInput("agreed_rate must be > 0"))
		return
	}

	rec := &model.CallRecord{
		MCNumber:   mc,
		LoadID:     strings.TrimSpace(req.LoadID),
		AgreedRate: req.AgreedRate,
		Transcript: req.Transcript,
	}

	if rec.LoadID != "" {
		sess, err := s.negotiator.Get(r.Context(), rec.LoadID, mc)
		switch {
		case err == nil:
			rec.NegotiationStatus = sess.Status
			rec.Rounds = sess.Round
			rec.AgreedRate = nil
			if sess.Status == model.NegotiationAgreed {
				rec.AgreedRate = sess.AgreedRate
			}
			if !sameRate(req.AgreedRate, rec.AgreedRate) {
				zap.L().Warn("api: call summary agreed_rate disagrees with negotiation",
					zap.String("load_id", rec.LoadID),
					zap.String("mc_number", mc),
					zap.Stringp("payload_rate", rateString(req.AgreedRate)),
					zap.Stringp("session_rate", rateString(rec.AgreedRate)),
					zap.String("status", string(sess.Status)),
				)
			}
		case apperr.KindOf(err) != apperr.KindNotFound:
			writeError(w, r, err)
			return
		}
	}

	result := classify.Classify(rec.Transcript, rec.AgreedRate)
	rec.Outcome = result.Outcome
	rec.Sentiment = result.Sentiment

	if err := s.calls.Record(r.Context(), rec); err != nil {
		writeError(w, r, err)
		return
	}

	payload, _ := json.Marshal(map[string]any{
		"call_id":     rec.ID,
		"agreed_rate": req.AgreedRate,
		"outcome":     rec.Outcome,
		"sentiment":   rec.Sentiment,
		"entries":     len(rec.Transcript),
	})
	s.calls.LogEvent(r.Context(), model.Event{
		Type:      model.EventSummaryReceived,
		MCNumber:  mc,
		LoadID:    rec.LoadID,
		OK:        true,
		LatencyMs: time.Since(received).Milliseconds(),
		Payload:   payload,
	})

	zap.L().Info("call summary recorded",
		zap.String("call_id", rec.ID),
		zap.String("mc_number", mc),
		zap.String("load_id", rec.LoadID),
		zap.String("outcome", string(rec.Outcome)),
		zap.String("sentiment", string(rec.Sentiment)),
	)

	writeJSON(w, http.StatusOK, callSummaryResponse{
		OK:         true,
		ReceivedAt: received,
		CallID:     rec.ID,
		Outcome:    rec.Outcome,
		Sentiment:  rec.Sentiment,
	})
}

type callsResponse struct {
	Count int                `json:"count"`
	Calls []model.CallRecord `json:"calls"`
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.CallFilter{
		MCNumber: q.Get("mc_number"),
		LoadID:   q.Get("load_id"),
		Outcome:  model.Outcome(q.Get("outcome")),
	}

	var err error
	if f.Since, err = queryTime(q.Get("since"), "since"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Limit, err = queryInt(q.Get("limit"), "limit"); err != nil {
		writeError(w, r, err)
		return
	}
	if f.Offset, err = queryInt(q.Get("offset"), "offset"); err != nil {
		writeError(w, r, err)
		return
	}

	calls, err := s.calls.List(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, callsResponse{Count: len(calls), Calls: calls})
}

func (s *Server) handleCallStats(w http.ResponseWriter, r *http.Request) {
	sum, err := s.calls.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func queryTime(v, name string) (*time.Time, error) {
	t, err := catalog.ParseDatetime(v)
	if err != nil {
		return nil, apperr.InvalidInput("%s: unrecognized datetime %q", name, v)
	}
	return t, nil
}

func queryInt(v, name string) (int, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, apperr.InvalidInput("%s must be a non-negative integer", name)
	}
	return n, nil
}

func sameRate(a, b *decimal.Decimal) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func rateString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}
