// Package model holds the domain types shared by the carrier sales pipeline.
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// EquipmentType is the trailer a load requires.
type EquipmentType string

const (
	EquipmentDryVan    EquipmentType = "Dry Van"
	EquipmentReefer    EquipmentType = "Reefer"
	EquipmentFlatbed   EquipmentType = "Flatbed"
	EquipmentStepDeck  EquipmentType = "Step Deck"
	EquipmentPowerOnly EquipmentType = "Power Only"
	EquipmentConestoga EquipmentType = "Conestoga"
)

var knownEquipment = []EquipmentType{
	EquipmentDryVan,
	EquipmentReefer,
	EquipmentFlatbed,
	EquipmentStepDeck,
	EquipmentPowerOnly,
	EquipmentConestoga,
}

// ParseEquipmentType canonicalizes known equipment names regardless of case
// or separator ("dry_van", "DRY VAN", "dryvan" all yield Dry Van). Unknown
// names are returned trimmed but otherwise unchanged.
func ParseEquipmentType(s string) EquipmentType {
	s = strings.TrimSpace(s)
	key := equipmentKey(s)
	for _, e := range knownEquipment {
		if equipmentKey(string(e)) == key {
			return e
		}
	}
	return EquipmentType(s)
}

func equipmentKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch r {
		case ' ', '_', '-':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Load is a shipment opportunity offered to carriers.
type Load struct {
	LoadID            string          `json:"load_id"`
	EquipmentType     EquipmentType   `json:"equipment_type"`
	Origin            string          `json:"origin"`
	Destination       string          `json:"destination"`
	TargetRate        decimal.Decimal `json:"target_rate"`
	MinAcceptableRate decimal.Decimal `json:"min_acceptable_rate"`

	PickupDatetime   *time.Time `json:"pickup_datetime,omitempty"`
	DeliveryDatetime *time.Time `json:"delivery_datetime,omitempty"`
	Weight           int        `json:"weight,omitempty"`
	CommodityType    string     `json:"commodity_type,omitempty"`
	NumOfPieces      int        `json:"num_of_pieces,omitempty"`
	Miles            int        `json:"miles,omitempty"`
	Dimensions       string     `json:"dimensions,omitempty"`
	Notes            string     `json:"notes,omitempty"`
}
