package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/sells-group/inbound-carrier/internal/keylock"
	"github.com/sells-group/inbound-carrier/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Session updates are
// serialized per key in process, so a database file must not be shared by
// more than one service instance.
type SQLiteStore struct {
	db    *sql.DB
	locks *keylock.Locker
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// A single writer connection avoids SQLITE_BUSY on lock upgrades.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, locks: keylock.New()}, nil
}

// Timestamps are stored as unix milliseconds so range predicates compare
// numerically.
const sqliteMigration = `
CREATE TABLE IF NOT EXISTS negotiation_sessions (
	load_id    TEXT NOT NULL,
	mc_number  TEXT NOT NULL,
	status     TEXT NOT NULL,
	round      INTEGER NOT NULL,
	state      TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (load_id, mc_number)
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON negotiation_sessions(updated_at);

CREATE TABLE IF NOT EXISTS calls (
	id                 TEXT PRIMARY KEY,
	mc_number          TEXT NOT NULL,
	load_id            TEXT NOT NULL DEFAULT '',
	agreed_rate        TEXT,
	transcript         TEXT NOT NULL DEFAULT '[]',
	outcome            TEXT NOT NULL,
	sentiment          TEXT NOT NULL,
	negotiation_status TEXT NOT NULL DEFAULT '',
	rounds             INTEGER NOT NULL DEFAULT 0,
	created_at         INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_calls_created_at ON calls(created_at);
CREATE INDEX IF NOT EXISTS idx_calls_mc_load ON calls(mc_number, load_id);

CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY,
	event_type TEXT NOT NULL,
	mc_number  TEXT NOT NULL DEFAULT '',
	load_id    TEXT NOT NULL DEFAULT '',
	ok         INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL DEFAULT 0,
	payload    TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_type_created ON events(event_type, created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func (s *SQLiteStore) UpdateSession(ctx context.Context, key model.SessionKey, fn UpdateFunc) (*model.NegotiationSession, error) {
	unlock, err := s.locks.Lock(ctx, key.String())
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: lock session %s", key)
	}
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	cur, err := s.getSession(ctx, tx, key)
	if err != nil {
		return nil, err
	}

	next, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return cur, nil
	}

	state, err := marshalSession(next)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO negotiation_sessions (load_id, mc_number, status, round, state, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (load_id, mc_number) DO UPDATE SET
		   status = excluded.status, round = excluded.round, state = excluded.state, updated_at = excluded.updated_at`,
		key.LoadID, key.MCNumber, string(next.Status), next.Round, string(state),
		toMillis(next.CreatedAt), toMillis(next.UpdatedAt),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: upsert session %s", key)
	}
	if err := tx.Commit(); err != nil {
		return nil, eris.Wrap(err, "sqlite: commit session")
	}
	return next, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, key model.SessionKey) (*model.NegotiationSession, error) {
	return s.getSession(ctx, s.db, key)
}

type sqlQueryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) getSession(ctx context.Context, q sqlQueryRower, key model.SessionKey) (*model.NegotiationSession, error) {
	var state string
	err := q.QueryRowContext(ctx,
		`SELECT state FROM negotiation_sessions WHERE load_id = ? AND mc_number = ?`,
		key.LoadID, key.MCNumber,
	).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get session %s", key)
	}
	return unmarshalSession([]byte(state))
}

func (s *SQLiteStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM negotiation_sessions WHERE updated_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete stale sessions")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return n, nil
}

func (s *SQLiteStore) InsertCall(ctx context.Context, rec *model.CallRecord) error {
	row, err := newCallRow(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO calls (id, mc_number, load_id, agreed_rate, transcript, outcome, sentiment, negotiation_status, rounds, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.MCNumber, rec.LoadID, row.agreedRate, string(row.transcript),
		string(rec.Outcome), string(rec.Sentiment), string(rec.NegotiationStatus), rec.Rounds, toMillis(rec.CreatedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert call %s", rec.ID)
	}
	return nil
}

const sqliteCallColumns = `SELECT id, mc_number, load_id, agreed_rate, transcript, outcome, sentiment, negotiation_status, rounds, created_at FROM calls`

func (s *SQLiteStore) ListCalls(ctx context.Context, filter CallFilter) ([]model.CallRecord, error) {
	query, args := callListQuery(sqliteCallColumns, filter,
		func(int) string { return "?" },
		func(t time.Time) any { return toMillis(t) },
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list calls")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CallRecord
	for rows.Next() {
		rec, err := scanSQLiteCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate calls")
}

func scanSQLiteCall(sc rowScanner) (*model.CallRecord, error) {
	var (
		rec                          model.CallRecord
		agreed                       sql.NullString
		transcript                   string
		outcome, sentiment, negoStat string
		createdAt                    int64
	)
	if err := sc.Scan(&rec.ID, &rec.MCNumber, &rec.LoadID, &agreed, &transcript,
		&outcome, &sentiment, &negoStat, &rec.Rounds, &createdAt); err != nil {
		return nil, eris.Wrap(err, "sqlite: scan call")
	}
	rec.Outcome = model.Outcome(outcome)
	rec.Sentiment = model.Sentiment(sentiment)
	rec.NegotiationStatus = model.NegotiationStatus(negoStat)
	rec.CreatedAt = fromMillis(createdAt)

	row := callRow{transcript: []byte(transcript)}
	if agreed.Valid {
		row.agreedRate = &agreed.String
	}
	if err := row.apply(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) CallSummary(ctx context.Context) (*CallSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT outcome, sentiment, COUNT(*) FROM calls GROUP BY outcome, sentiment`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: summarize calls")
	}
	defer rows.Close() //nolint:errcheck

	sum := newCallSummary()
	for rows.Next() {
		var (
			outcome, sentiment string
			count              int
		)
		if err := rows.Scan(&outcome, &sentiment, &count); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan summary")
		}
		sum.add(model.Outcome(outcome), model.Sentiment(sentiment), count)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate summary")
	}

	// SQLite averages in floating point; sum the exact text values instead.
	rateRows, err := s.db.QueryContext(ctx, `SELECT agreed_rate FROM calls WHERE agreed_rate IS NOT NULL`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list agreed rates")
	}
	defer rateRows.Close() //nolint:errcheck

	var rates []decimal.Decimal
	for rateRows.Next() {
		var raw string
		if err := rateRows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan agreed rate")
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: parse agreed rate %q", raw)
		}
		rates = append(rates, d)
	}
	if err := rateRows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate agreed rates")
	}
	sum.AvgAgreedRate = averageRate(rates)
	return sum, nil
}

func (s *SQLiteStore) InsertEvent(ctx context.Context, ev *model.Event) error {
	var payload any
	if p := payloadOrNull(ev.Payload); p != nil {
		payload = string(p)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, event_type, mc_number, load_id, ok, latency_ms, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.Type, ev.MCNumber, ev.LoadID, ev.OK, ev.LatencyMs, payload, toMillis(ev.CreatedAt),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: insert event %s", ev.Type)
	}
	return nil
}
