package catalog

import (
	"encoding/csv"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"github.com/tealeg/xlsx/v2"
)

// readCSV decodes a load-board CSV export. The first row names the columns.
func readCSV(path string) ([]fileLoad, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: parse csv %s", path)
	}
	return fromTable(rows)
}

// readXLSX decodes the first worksheet of a load-board spreadsheet.
func readXLSX(path string) ([]fileLoad, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: open xlsx %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("catalog: %s has no sheets", path)
	}

	var rows [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		rows = append(rows, cells)
	}
	return fromTable(rows)
}

// fromTable maps header-named columns onto loads. Unknown columns are
// ignored and blank rows skipped.
func fromTable(rows [][]string) ([]fileLoad, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	cols := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols["load_id"]; !ok {
		return nil, eris.New("catalog: table has no load_id column")
	}

	var out []fileLoad
	for n, row := range rows[1:] {
		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}
		if strings.Join(row, "") == "" {
			continue
		}

		line := n + 2
		fl := fileLoad{
			LoadID:           get("load_id"),
			EquipmentType:    get("equipment_type"),
			Origin:           get("origin"),
			Destination:      get("destination"),
			PickupDatetime:   get("pickup_datetime"),
			DeliveryDatetime: get("delivery_datetime"),
			CommodityType:    get("commodity_type"),
			Dimensions:       get("dimensions"),
			Notes:            get("notes"),
		}

		var err error
		if fl.TargetRate, err = optDecimal(get("target_rate")); err != nil {
			return nil, eris.Wrapf(err, "catalog: row %d target_rate", line)
		}
		if fl.LoadboardRate, err = optDecimal(get("loadboard_rate")); err != nil {
			return nil, eris.Wrapf(err, "catalog: row %d loadboard_rate", line)
		}
		if fl.MinAcceptableRate, err = optDecimal(get("min_acceptable_rate")); err != nil {
			return nil, eris.Wrapf(err, "catalog: row %d min_acceptable_rate", line)
		}
		for name, dst := range map[string]*int{
			"weight":        &fl.Weight,
			"num_of_pieces": &fl.NumOfPieces,
			"miles":         &fl.Miles,
		} {
			if *dst, err = optInt(get(name)); err != nil {
				return nil, eris.Wrapf(err, "catalog: row %d %s", line, name)
			}
		}
		out = append(out, fl)
	}
	return out, nil
}

func optDecimal(s string) (*decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimPrefix(s, "$"), ",", "")
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optInt(s string) (int, error) {
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	// Spreadsheets often store whole numbers as floats.
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int(f), nil
}
