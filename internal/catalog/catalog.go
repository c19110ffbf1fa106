// Package catalog holds the read-only load inventory and answers matching
// queries against it.
package catalog

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/inbound-carrier/internal/apperr"
	"github.com/sells-group/inbound-carrier/internal/model"
)

// Options tunes how a catalog file is interpreted.
type Options struct {
	// DefaultMinRatio derives min_acceptable_rate from target_rate for loads
	// that omit it.
	DefaultMinRatio float64
	// SuggestLimit caps Suggest results; 0 means unlimited.
	SuggestLimit int
}

// Catalog is an immutable, in-memory load inventory. It is safe for
// concurrent use.
type Catalog struct {
	loads        []model.Load
	byID         map[string]int
	suggestLimit int
}

// SuggestQuery selects loads for a carrier. All fields are required.
type SuggestQuery struct {
	EquipmentType string `json:"equipment_type"`
	Origin        string `json:"origin"`
	Destination   string `json:"destination"`
}

// Filter narrows a Search. Zero-valued fields match everything.
type Filter struct {
	EquipmentType string
	Origin        string
	Destination   string
	PickupAfter   *time.Time
	PickupBefore  *time.Time
	MaxWeight     int
}

// Open reads a catalog file.
func Open(path string, opts Options) (*Catalog, error) {
	raw, err := readFile(path)
	if err != nil {
		return nil, err
	}

	ratio := opts.DefaultMinRatio
	if ratio <= 0 || ratio > 1 {
		ratio = 0.85
	}
	loads := make([]model.Load, 0, len(raw))
	for i, f := range raw {
		l, err := f.toLoad(decimal.NewFromFloat(ratio))
		if err != nil {
			return nil, eris.Wrapf(err, "catalog: %s entry %d", path, i)
		}
		loads = append(loads, l)
	}

	c, err := New(loads, opts.SuggestLimit)
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: %s", path)
	}
	zap.L().Info("catalog loaded", zap.String("path", path), zap.Int("loads", len(loads)))
	return c, nil
}

// New builds a catalog from loads, which must have unique ids.
func New(loads []model.Load, suggestLimit int) (*Catalog, error) {
	c := &Catalog{
		loads:        make([]model.Load, len(loads)),
		byID:         make(map[string]int, len(loads)),
		suggestLimit: suggestLimit,
	}
	copy(c.loads, loads)
	sortLoads(c.loads)

	for i, l := range c.loads {
		if _, dup := c.byID[l.LoadID]; dup {
			return nil, eris.Errorf("catalog: duplicate load_id %q", l.LoadID)
		}
		c.byID[l.LoadID] = i
	}
	return c, nil
}

// Len returns the number of loads.
func (c *Catalog) Len() int {
	return len(c.loads)
}

// All returns every load in suggestion order.
func (c *Catalog) All() []model.Load {
	return append([]model.Load(nil), c.loads...)
}

// Get returns the load with the given id.
func (c *Catalog) Get(_ context.Context, loadID string) (model.Load, error) {
	i, ok := c.byID[strings.TrimSpace(loadID)]
	if !ok {
		return model.Load{}, apperr.NotFound("load %q not found", loadID)
	}
	return c.loads[i], nil
}

// Suggest returns loads matching the equipment type exactly and the origin
// and destination case-insensitively, ordered by target rate then load id.
// No match yields an empty slice.
func (c *Catalog) Suggest(_ context.Context, q SuggestQuery) ([]model.Load, error) {
	var missing []string
	if strings.TrimSpace(q.EquipmentType) == "" {
		missing = append(missing, "equipment_type")
	}
	if strings.TrimSpace(q.Origin) == "" {
		missing = append(missing, "origin")
	}
	if strings.TrimSpace(q.Destination) == "" {
		missing = append(missing, "destination")
	}
	if len(missing) > 0 {
		return nil, apperr.InvalidInput("%s required", strings.Join(missing, ", "))
	}

	out := c.match(Filter{
		EquipmentType: q.EquipmentType,
		Origin:        q.Origin,
		Destination:   q.Destination,
	})
	if c.suggestLimit > 0 && len(out) > c.suggestLimit {
		out = out[:c.suggestLimit]
	}
	return out, nil
}

// Search returns every load passing f, in suggestion order.
func (c *Catalog) Search(_ context.Context, f Filter) ([]model.Load, error) {
	if f.MaxWeight < 0 {
		return nil, apperr.InvalidInput("max_weight must be >= 0")
	}
	if f.PickupAfter != nil && f.PickupBefore != nil && f.PickupBefore.Before(*f.PickupAfter) {
		return nil, apperr.InvalidInput("pickup_before must not precede pickup_after")
	}
	return c.match(f), nil
}

func (c *Catalog) match(f Filter) []model.Load {
	var equipment model.EquipmentType
	if strings.TrimSpace(f.EquipmentType) != "" {
		equipment = model.ParseEquipmentType(f.EquipmentType)
	}
	origin := c.key(f.Origin)
	dest := c.key(f.Destination)

	out := []model.Load{}
	for _, l := range c.loads {
		if equipment != "" && l.EquipmentType != equipment {
			continue
		}
		if origin != "" && c.key(l.Origin) != origin {
			continue
		}
		if dest != "" && c.key(l.Destination) != dest {
			continue
		}
		if f.MaxWeight > 0 && l.Weight > f.MaxWeight {
			continue
		}
		if f.PickupAfter != nil && (l.PickupDatetime == nil || l.PickupDatetime.Before(*f.PickupAfter)) {
			continue
		}
		if f.PickupBefore != nil && (l.PickupDatetime == nil || l.PickupDatetime.After(*f.PickupBefore)) {
			continue
		}
		out = append(out, l)
	}
	return out
}

// key folds a location for comparison. A Caser is not safe for concurrent
// use, so each call gets its own.
func (c *Catalog) key(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return cases.Fold().String(s)
}

func sortLoads(loads []model.Load) {
	sort.SliceStable(loads, func(i, j int) bool {
		if cmp := loads[i].TargetRate.Cmp(loads[j].TargetRate); cmp != 0 {
			return cmp < 0
		}
		return loads[i].LoadID < loads[j].LoadID
	})
}
