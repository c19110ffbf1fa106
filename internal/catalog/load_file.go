package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/inbound-carrier/internal/model"
)

// fileLoad is the on-disk shape of a load. Datetimes stay strings because
// load boards export them without a zone.
type fileLoad struct {
	LoadID            string           `json:"load_id" yaml:"load_id"`
	EquipmentType     string           `json:"equipment_type" yaml:"equipment_type"`
	Origin            string           `json:"origin" yaml:"origin"`
	Destination       string           `json:"destination" yaml:"destination"`
	TargetRate        *decimal.Decimal `json:"target_rate" yaml:"target_rate"`
	LoadboardRate     *decimal.Decimal `json:"loadboard_rate" yaml:"loadboard_rate"`
	MinAcceptableRate *decimal.Decimal `json:"min_acceptable_rate" yaml:"min_acceptable_rate"`
	PickupDatetime    string           `json:"pickup_datetime" yaml:"pickup_datetime"`
	DeliveryDatetime  string           `json:"delivery_datetime" yaml:"delivery_datetime"`
	Weight            int              `json:"weight" yaml:"weight"`
	CommodityType     string           `json:"commodity_type" yaml:"commodity_type"`
	NumOfPieces       int              `json:"num_of_pieces" yaml:"num_of_pieces"`
	Miles             int              `json:"miles" yaml:"miles"`
	Dimensions        string           `json:"dimensions" yaml:"dimensions"`
	Notes             string           `json:"notes" yaml:"notes"`
}

var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseDatetime reads the datetime forms load boards export. Values without
// a zone are taken as UTC. Blank input yields nil.
func ParseDatetime(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t, nil
		}
	}
	return nil, eris.Errorf("catalog: unrecognized datetime %q", s)
}

// readFile decodes a catalog. The format follows the extension: .yaml/.yml,
// .csv and .xlsx are recognized and anything else is read as JSON.
func readFile(path string) ([]fileLoad, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: read %s", path)
	}

	var raw []fileLoad
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrapf(err, "catalog: parse yaml %s", path)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, eris.Wrapf(err, "catalog: parse json %s", path)
		}
	}
	return raw, nil
}

func (f fileLoad) toLoad(minRatio decimal.Decimal) (model.Load, error) {
	id := strings.TrimSpace(f.LoadID)
	if id == "" {
		return model.Load{}, eris.New("load_id is required")
	}

	target := f.TargetRate
	if target == nil {
		target = f.LoadboardRate
	}
	if target == nil || !target.IsPositive() {
		return model.Load{}, eris.Errorf("load %s: target_rate must be > 0", id)
	}

	var floor decimal.Decimal
	if f.MinAcceptableRate != nil {
		floor = *f.MinAcceptableRate
	} else {
		floor = target.Mul(minRatio).Round(0)
	}
	if !floor.IsPositive() || floor.GreaterThan(*target) {
		return model.Load{}, eris.Errorf("load %s: min_acceptable_rate %s must be in (0, %s]", id, floor, target)
	}

	pickup, err := ParseDatetime(f.PickupDatetime)
	if err != nil {
		return model.Load{}, eris.Wrapf(err, "load %s: pickup_datetime", id)
	}
	delivery, err := ParseDatetime(f.DeliveryDatetime)
	if err != nil {
		return model.Load{}, eris.Wrapf(err, "load %s: delivery_datetime", id)
	}

	return model.Load{
		LoadID:            id,
		EquipmentType:     model.ParseEquipmentType(f.EquipmentType),
		Origin:            strings.TrimSpace(f.Origin),
		Destination:       strings.TrimSpace(f.Destination),
		TargetRate:        *target,
		MinAcceptableRate: floor,
		PickupDatetime:    pickup,
		DeliveryDatetime:  delivery,
		Weight:            f.Weight,
		CommodityType:     f.CommodityType,
		NumOfPieces:       f.NumOfPieces,
		Miles:             f.Miles,
		Dimensions:        f.Dimensions,
		Notes:             f.Notes,
	}, nil
}
