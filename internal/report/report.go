// Package report exports recorded calls as CSV or XLSX for offline analysis.
package report

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/inbound-carrier/internal/model"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" in any case.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", eris.Errorf("report: unknown format %q (want csv or xlsx)", s)
	}
}

// Header is the column order of every export.
var Header = []string{
	"id", "created_at", "mc_number", "load_id", "outcome", "sentiment",
	"negotiation_status", "rounds", "agreed_rate", "transcript_turns",
}

// SheetName is the worksheet XLSX exports write to.
const SheetName = "calls"

func toRow(c model.CallRecord) []string {
	agreed := ""
	if c.AgreedRate != nil {
		agreed = c.AgreedRate.StringFixed(2)
	}
	return []string{
		c.ID,
		c.CreatedAt.UTC().Format(time.RFC3339),
		c.MCNumber,
		c.LoadID,
		string(c.Outcome),
		string(c.Sentiment),
		string(c.NegotiationStatus),
		strconv.Itoa(c.Rounds),
		agreed,
		strconv.Itoa(len(c.Transcript)),
	}
}

// Write exports calls to w in format.
func Write(w io.Writer, format Format, calls []model.CallRecord) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, calls)
	case FormatXLSX:
		return WriteXLSX(w, calls)
	default:
		return eris.Errorf("report: unknown format %q", format)
	}
}

// WriteCSV writes a header row followed by one row per call.
func WriteCSV(w io.Writer, calls []model.CallRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return eris.Wrap(err, "report: write csv header")
	}
	for _, c := range calls {
		if err := cw.Write(toRow(c)); err != nil {
			return eris.Wrapf(err, "report: write csv row %s", c.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "report: flush csv")
}

// WriteXLSX writes a single-sheet workbook. Rounds and agreed rates are
// numeric cells so the sheet can be summed directly.
func WriteXLSX(w io.Writer, calls []model.CallRecord) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(SheetName)
	if err != nil {
		return eris.Wrap(err, "report: add sheet")
	}

	header := sheet.AddRow()
	for _, h := range Header {
		header.AddCell().SetString(h)
	}

	for _, c := range calls {
		row := sheet.AddRow()
		for i, v := range toRow(c) {
			cell := row.AddCell()
			switch Header[i] {
			case "rounds", "transcript_turns":
				n, _ := strconv.Atoi(v)
				cell.SetInt(n)
			case "agreed_rate":
				if c.AgreedRate != nil {
					f, _ := c.AgreedRate.Float64()
					cell.SetFloatWithFormat(f, "#,##0.00")
				}
			default:
				cell.SetString(v)
			}
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "report: write xlsx")
	}
	return nil
}
