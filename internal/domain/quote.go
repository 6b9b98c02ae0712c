package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Stay is a half-open date range [CheckIn, CheckOut) of whole nights, in UTC midnight.
type Stay struct {
	CheckIn  time.Time
	CheckOut time.Time
}

func (s Stay) Nights() int {
	return int(s.CheckOut.Sub(s.CheckIn).Hours() / 24)
}

// EachNight calls fn with the start date of every night of the stay.
func (s Stay) EachNight(fn func(d time.Time)) {
	for d := s.CheckIn; d.Before(s.CheckOut); d = d.AddDate(0, 0, 1) {
		fn(d)
	}
}

type NightlyRate struct {
	Date   string          `json:"date"`
	Rate   decimal.Decimal `json:"rate"`
	Source string          `json:"source"` // base|weekend|override
}

type QuoteLine struct {
	RoomTypeID    int64           `json:"room_type_id"`
	RoomTypeName  string          `json:"room_type_name"`
	Quantity      int             `json:"quantity"`
	Adults        int             `json:"adults"`
	Children      int             `json:"children"`
	Nights        []NightlyRate   `json:"nights"`
	ExtraGuestFee decimal.Decimal `json:"extra_guest_fee"` // per room, whole stay
	PerRoom       decimal.Decimal `json:"per_room"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
}

type Quote struct {
	BusinessUnitID int64           `json:"business_unit_id"`
	Currency       string          `json:"currency"`
	CheckIn        string          `json:"check_in"`
	CheckOut       string          `json:"check_out"`
	Nights         int             `json:"nights"`
	Lines          []QuoteLine     `json:"lines"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Discount       decimal.Decimal `json:"discount"`
	PromoCode      *string         `json:"promo_code,omitempty"`
	ServiceCharge  decimal.Decimal `json:"service_charge"`
	Tax            decimal.Decimal `json:"tax"`
	Total          decimal.Decimal `json:"total"`
	LineItems      []LineItem      `json:"line_items"`
}

// Adults and Children total the guests across every booked room.
func (q Quote) Adults() int {
	n := 0
	for _, l := range q.Lines {
		n += l.Adults * l.Quantity
	}
	return n
}

func (q Quote) Children() int {
	n := 0
	for _, l := range q.Lines {
		n += l.Children * l.Quantity
	}
	return n
}
