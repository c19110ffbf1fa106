package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/inbound-carrier/internal/keylock"
	"github.com/sells-group/inbound-carrier/internal/model"
)

// MemoryStore implements Store in process memory. It is meant for tests and
// single-instance demos; nothing survives a restart.
type MemoryStore struct {
	locks *keylock.Locker

	mu       sync.RWMutex
	sessions map[model.SessionKey]*model.NegotiationSession
	calls    []model.CallRecord
	events   []model.Event
}

// NewMemory returns an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		locks:    keylock.New(),
		sessions: make(map[model.SessionKey]*model.NegotiationSession),
	}
}

func (s *MemoryStore) Migrate(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) UpdateSession(ctx context.Context, key model.SessionKey, fn UpdateFunc) (*model.NegotiationSession, error) {
	unlock, err := s.locks.Lock(ctx, key.String())
	if err != nil {
		return nil, eris.Wrapf(err, "memory: lock session %s", key)
	}
	defer unlock()

	s.mu.RLock()
	cur := s.sessions[key].Clone()
	s.mu.RUnlock()

	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return cur, nil
	}

	s.mu.Lock()
	s.sessions[key] = next.Clone()
	s.mu.Unlock()
	return next, nil
}

func (s *MemoryStore) GetSession(_ context.Context, key model.SessionKey) (*model.NegotiationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessions[key].Clone(), nil
}

func (s *MemoryStore) DeleteSessionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) InsertCall(_ context.Context, rec *model.CallRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, *rec.Clone())
	return nil
}

func (s *MemoryStore) ListCalls(_ context.Context, f CallFilter) ([]model.CallRecord, error) {
	s.mu.RLock()
	var out []model.CallRecord
	for _, c := range s.calls {
		switch {
		case f.MCNumber != "" && c.MCNumber != f.MCNumber,
			f.LoadID != "" && c.LoadID != f.LoadID,
			f.Outcome != "" && c.Outcome != f.Outcome,
			f.Since != nil && c.CreatedAt.Before(*f.Since):
			continue
		}
		out = append(out, *c.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if limit := limitOrDefault(f.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) CallSummary(context.Context) (*CallSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := newCallSummary()
	var rates []decimal.Decimal
	for _, c := range s.calls {
		sum.add(c.Outcome, c.Sentiment, 1)
		if c.AgreedRate != nil {
			rates = append(rates, *c.AgreedRate)
		}
	}
	sum.AvgAgreedRate = averageRate(rates)
	return sum, nil
}

func (s *MemoryStore) InsertEvent(_ context.Context, ev *model.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

// Events returns a copy of the audit trail.
func (s *MemoryStore) Events() []model.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Event(nil), s.events...)
}
