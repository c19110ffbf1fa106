package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/inbound-carrier/internal/model"
)

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// callListQuery appends filter conditions to base. ph renders the n-th
// placeholder and ts converts a time into the driver's column value.
func callListQuery(base string, f CallFilter, ph func(n int) string, ts func(time.Time) any) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, ph(len(args))))
	}
	if f.MCNumber != "" {
		add("mc_number = %s", f.MCNumber)
	}
	if f.LoadID != "" {
		add("load_id = %s", f.LoadID)
	}
	if f.Outcome != "" {
		add("outcome = %s", string(f.Outcome))
	}
	if f.Since != nil {
		add("created_at >= %s", ts(*f.Since))
	}

	var b strings.Builder
	b.WriteString(base)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY created_at DESC, id")

	args = append(args, limitOrDefault(f.Limit))
	fmt.Fprintf(&b, " LIMIT %s", ph(len(args)))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		fmt.Fprintf(&b, " OFFSET %s", ph(len(args)))
	}
	return b.String(), args
}

// callRow holds the driver-neutral column values of a call record.
type callRow struct {
	agreedRate *string
	transcript []byte
}

func newCallRow(rec *model.CallRecord) (callRow, error) {
	transcript, err := json.Marshal(rec.Transcript)
	if err != nil {
		return callRow{}, eris.Wrap(err, "store: marshal transcript")
	}
	if rec.Transcript == nil {
		transcript = []byte("[]")
	}
	row := callRow{transcript: transcript}
	if rec.AgreedRate != nil {
		s := rec.AgreedRate.String()
		row.agreedRate = &s
	}
	return row, nil
}

func (r callRow) apply(rec *model.CallRecord) error {
	if r.agreedRate != nil {
		d, err := decimal.NewFromString(*r.agreedRate)
		if err != nil {
			return eris.Wrapf(err, "store: parse agreed_rate %q", *r.agreedRate)
		}
		rec.AgreedRate = &d
	}
	if len(r.transcript) > 0 {
		if err := json.Unmarshal(r.transcript, &rec.Transcript); err != nil {
			return eris.Wrap(err, "store: unmarshal transcript")
		}
	}
	return nil
}

func marshalSession(sess *model.NegotiationSession) ([]byte, error) {
	b, err := json.Marshal(sess)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal session")
	}
	return b, nil
}

func unmarshalSession(b []byte) (*model.NegotiationSession, error) {
	var sess model.NegotiationSession
	if err := json.Unmarshal(b, &sess); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal session")
	}
	return &sess, nil
}

func payloadOrNull(p json.RawMessage) []byte {
	if len(p) == 0 {
		return nil
	}
	return p
}
