package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/inbound-carrier/internal/db"
	"github.com/sells-group/inbound-carrier/internal/model"
)

// PostgresStore implements Store using pgxpool. Session updates are
// serialized per key with transaction-scoped advisory locks, so the
// exclusion holds across service replicas.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var sessionUpsertSQL = mustUpsertSQL(db.UpsertConfig{
	Table:        "negotiation_sessions",
	Columns:      []string{"load_id", "mc_number", "status", "round", "state", "created_at", "updated_at"},
	ConflictKeys: []string{"load_id", "mc_number"},
	UpdateCols:   []string{"status", "round", "state", "updated_at"},
})

func mustUpsertSQL(cfg db.UpsertConfig) string {
	q, err := db.UpsertSQL(cfg)
	if err != nil {
		panic(err)
	}
	return q
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS negotiation_sessions (
	load_id    TEXT NOT NULL,
	mc_number  TEXT NOT NULL,
	status     TEXT NOT NULL,
	round      INTEGER NOT NULL,
	state      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (load_id, mc_number)
);

CREATE INDEX IF NOT EXISTS idx_sessions_updated_at ON negotiation_sessions(updated_at);

CREATE TABLE IF NOT EXISTS calls (
	id                 TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	mc_number          TEXT NOT NULL,
	load_id            TEXT NOT NULL DEFAULT '',
	agreed_rate        NUMERIC(12,2),
	transcript         JSONB NOT NULL DEFAULT '[]',
	outcome            TEXT NOT NULL,
	sentiment          TEXT NOT NULL,
	negotiation_status TEXT NOT NULL DEFAULT '',
	rounds             INTEGER NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_calls_created_at ON calls(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_calls_mc_load ON calls(mc_number, load_id);

CREATE TABLE IF NOT EXISTS events (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	event_type TEXT NOT NULL,
	mc_number  TEXT NOT NULL DEFAULT '',
	load_id    TEXT NOT NULL DEFAULT '',
	ok         BOOLEAN NOT NULL,
	latency_ms BIGINT NOT NULL DEFAULT 0,
	payload    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_events_type_created ON events(event_type, created_at DESC);
`

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) UpdateSession(ctx context.Context, key model.SessionKey, fn UpdateFunc) (*model.NegotiationSession, error) {
	var out *model.NegotiationSession
	err := db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		if err := db.AdvisoryXactLock(ctx, tx, key.String()); err != nil {
			return eris.Wrap(err, "postgres: lock session")
		}

		cur, err := getSession(ctx, tx, key)
		if err != nil {
			return err
		}

		next, err := fn(cur)
		if err != nil {
			return err
		}
		if next == nil {
			out = cur
			return nil
		}

		state, err := marshalSession(next)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, sessionUpsertSQL,
			key.LoadID, key.MCNumber, string(next.Status), next.Round, state, next.CreatedAt, next.UpdatedAt,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: upsert session %s", key)
		}
		out = next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) GetSession(ctx context.Context, key model.SessionKey) (*model.NegotiationSession, error) {
	return getSession(ctx, s.pool, key)
}

type queryRower interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getSession(ctx context.Context, q queryRower, key model.SessionKey) (*model.NegotiationSession, error) {
	var state []byte
	err := q.QueryRow(ctx,
		`SELECT state FROM negotiation_sessions WHERE load_id = $1 AND mc_number = $2`,
		key.LoadID, key.MCNumber,
	).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get session %s", key)
	}
	return unmarshalSession(state)
}

func (s *PostgresStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM negotiation_sessions WHERE updated_at < $1`, cutoff)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete stale sessions")
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) InsertCall(ctx context.Context, rec *model.CallRecord) error {
	row, err := newCallRow(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO calls (id, mc_number, load_id, agreed_rate, transcript, outcome, sentiment, negotiation_status, rounds, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ID, rec.MCNumber, rec.LoadID, row.agreedRate, row.transcript,
		string(rec.Outcome), string(rec.Sentiment), string(rec.NegotiationStatus), rec.Rounds, rec.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert call %s", rec.ID)
	}
	return nil
}

const postgresCallColumns = `SELECT id, mc_number, load_id, agreed_rate::text, transcript, outcome, sentiment, negotiation_status, rounds, created_at FROM calls`

func (s *PostgresStore) ListCalls(ctx context.Context, filter CallFilter) ([]model.CallRecord, error) {
	query, args := callListQuery(postgresCallColumns, filter,
		func(n int) string { return fmt.Sprintf("$%d", n) },
		func(t time.Time) any { return t },
	)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list calls")
	}
	defer rows.Close()

	var out []model.CallRecord
	for rows.Next() {
		rec, err := scanPostgresCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate calls")
}

func scanPostgresCall(sc rowScanner) (*model.CallRecord, error) {
	var (
		rec                          model.CallRecord
		row                          callRow
		outcome, sentiment, negoStat string
	)
	if err := sc.Scan(&rec.ID, &rec.MCNumber, &rec.LoadID, &row.agreedRate, &row.transcript,
		&outcome, &sentiment, &negoStat, &rec.Rounds, &rec.CreatedAt); err != nil {
		return nil, eris.Wrap(err, "postgres: scan call")
	}
	rec.Outcome = model.Outcome(outcome)
	rec.Sentiment = model.Sentiment(sentiment)
	rec.NegotiationStatus = model.NegotiationStatus(negoStat)
	if err := row.apply(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *PostgresStore) CallSummary(ctx context.Context) (*CallSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT outcome, sentiment, COUNT(*) FROM calls GROUP BY outcome, sentiment`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: summarize calls")
	}
	defer rows.Close()

	sum := newCallSummary()
	for rows.Next() {
		var (
			outcome, sentiment string
			count              int
		)
		if err := rows.Scan(&outcome, &sentiment, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan summary")
		}
		sum.add(model.Outcome(outcome), model.Sentiment(sentiment), count)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate summary")
	}

	var avg *string
	if err := s.pool.QueryRow(ctx,
		`SELECT AVG(agreed_rate)::text FROM calls WHERE agreed_rate IS NOT NULL`,
	).Scan(&avg); err != nil {
		return nil, eris.Wrap(err, "postgres: average agreed rate")
	}
	if avg != nil {
		d, err := decimal.NewFromString(*avg)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: parse average %q", *avg)
		}
		d = d.Round(2)
		sum.AvgAgreedRate = &d
	}
	return sum, nil
}

func (s *PostgresStore) InsertEvent(ctx context.Context, ev *model.Event) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO events (id, event_type, mc_number, load_id, ok, latency_ms, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		ev.ID, ev.Type, ev.MCNumber, ev.LoadID, ev.OK, ev.LatencyMs, payloadOrNull(ev.Payload), ev.CreatedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: insert event %s", ev.Type)
	}
	return nil
}
