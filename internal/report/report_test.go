package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/inbound-carrier/internal/model"
)

func sampleCalls() []model.CallRecord {
	rate := decimal.RequireFromString("1700")
	created := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	return []model.CallRecord{
		{
			ID: "c1", MCNumber: "123456", LoadID: "L-1", AgreedRate: &rate,
			Outcome: model.OutcomeBooked, Sentiment: model.SentimentPositive,
			NegotiationStatus: model.NegotiationAgreed, Rounds: 2, CreatedAt: created,
			Transcript: model.Transcript{{Role: model.RoleUser, Content: "ok"}, {Role: model.RoleAssistant, Content: "booked"}},
		},
		{
			ID: "c2", MCNumber: "654321", LoadID: "L-2",
			Outcome: model.OutcomeNoDeal, Sentiment: model.SentimentNegative,
			NegotiationStatus: model.NegotiationRejected, Rounds: 3, CreatedAt: created.Add(time.Hour),
		},
	}
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat(" XLSX ")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	_, err = ParseFormat("pdf")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown format")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleCalls()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Header, rows[0])
	assert.Equal(t, []string{"c1", "2026-10-15T09:30:00Z", "123456", "L-1", "booked", "positive", "agreed", "2", "1700.00", "2"}, rows[1])
	assert.Equal(t, "", rows[2][8])
}

func TestWriteCSV_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "id,created_at,mc_number,load_id,outcome,sentiment,negotiation_status,rounds,agreed_rate,transcript_turns\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calls.xlsx")
	out, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, Write(out, FormatXLSX, sampleCalls()))
	require.NoError(t, out.Close())

	f, err := xlsx.OpenFile(path)
	require.NoError(t, err)
	sheet, ok := f.Sheet[SheetName]
	require.True(t, ok)
	require.Len(t, sheet.Rows, 3)

	assert.Equal(t, "id", sheet.Rows[0].Cells[0].String())
	assert.Equal(t, "c1", sheet.Rows[1].Cells[0].String())

	rounds, err := sheet.Rows[1].Cells[7].Int()
	require.NoError(t, err)
	assert.Equal(t, 2, rounds)

	agreed, err := sheet.Rows[1].Cells[8].Float()
	require.NoError(t, err)
	assert.InDelta(t, 1700.0, agreed, 0.001)
}
