package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BusinessUnit is a hotel property.
type BusinessUnit struct {
	ID                int64           `json:"id"`
	Name              string          `json:"name"`
	Currency          string          `json:"currency"` // ISO 4217, upper case
	TaxRate           decimal.Decimal `json:"tax_rate"` // 0.11 == 11%
	ServiceChargeRate decimal.Decimal `json:"service_charge_rate"`
	Timezone          string          `json:"timezone"`
	Active            bool            `json:"active"`
}

// RoomType is a category of room, not a physical room.
type RoomType struct {
	ID             int64            `json:"id"`
	BusinessUnitID int64            `json:"business_unit_id"`
	Name           string           `json:"name"`
	Description    *string          `json:"description,omitempty"`
	BaseRate       decimal.Decimal  `json:"base_rate"`
	WeekendRate    *decimal.Decimal `json:"weekend_rate,omitempty"` // Friday and Saturday nights
	BaseOccupancy  int              `json:"base_occupancy"`
	ExtraGuestFee  decimal.Decimal  `json:"extra_guest_fee"` // per extra person per night
	MaxAdults      int              `json:"max_adults"`
	MaxChildren    int              `json:"max_children"`
	MaxOccupancy   int              `json:"max_occupancy"`
	TotalRooms     int              `json:"total_rooms"`
	Amenities      []string         `json:"amenities"`
	Active         bool             `json:"active"`
}

// RateOverride replaces the nightly rate of a room type between Start and End (both inclusive).
type RateOverride struct {
	ID         int64
	RoomTypeID int64
	Start, End time.Time
	Rate       decimal.Decimal
}

// Covers reports whether the night starting on d falls inside the override.
func (o RateOverride) Covers(d time.Time) bool {
	return !d.Before(o.Start) && !d.After(o.End)
}

type PromoCode struct {
	Code           string
	BusinessUnitID *int64 // nil applies to every property
	PercentOff     *decimal.Decimal
	AmountOff      *decimal.Decimal
	MinNights      int
	ValidFrom      *time.Time
	ValidTo        *time.Time
	Active         bool
}

// Catalog is everything pricing needs for one business unit.
type Catalog struct {
	BusinessUnit BusinessUnit
	RoomTypes    []RoomType
	Overrides    []RateOverride
}

// RoomType looks up a room type of the catalog by id.
func (c Catalog) RoomType(id int64) (RoomType, bool) {
	for _, rt := range c.RoomTypes {
		if rt.ID == id {
			return rt, true
		}
	}
	return RoomType{}, false
}
