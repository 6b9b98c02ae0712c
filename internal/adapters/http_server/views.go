package httpserver

import (
	"time"

	"github.com/shopspring/decimal"

	"hotel_booking/internal/domain"
)

const dateLayout = "2006-01-02"

type roomTypeView struct {
	ID            int64            `json:"id"`
	Name          string           `json:"name"`
	Description   *string          `json:"description,omitempty"`
	BaseRate      decimal.Decimal  `json:"base_rate"`
	WeekendRate   *decimal.Decimal `json:"weekend_rate,omitempty"`
	BaseOccupancy int              `json:"base_occupancy"`
	ExtraGuestFee decimal.Decimal  `json:"extra_guest_fee"`
	MaxAdults     int              `json:"max_adults"`
	MaxChildren   int              `json:"max_children"`
	MaxOccupancy  int              `json:"max_occupancy"`
	Amenities     []string         `json:"amenities"`
}

type roomTypesResponse struct {
	BusinessUnitID int64          `json:"business_unit_id"`
	RoomTypes      []roomTypeView `json:"room_types"`
}

func roomTypes(buID int64, in []domain.RoomType) roomTypesResponse {
	out := roomTypesResponse{BusinessUnitID: buID, RoomTypes: make([]roomTypeView, 0, len(in))}
	for _, rt := range in {
		amenities := rt.Amenities
		if amenities == nil {
			amenities = []string{}
		}
		out.RoomTypes = append(out.RoomTypes, roomTypeView{
			ID:            rt.ID,
			Name:          rt.Name,
			Description:   rt.Description,
			BaseRate:      rt.BaseRate,
			WeekendRate:   rt.WeekendRate,
			BaseOccupancy: rt.BaseOccupancy,
			ExtraGuestFee: rt.ExtraGuestFee,
			MaxAdults:     rt.MaxAdults,
			MaxChildren:   rt.MaxChildren,
			MaxOccupancy:  rt.MaxOccupancy,
			Amenities:     amenities,
		})
	}
	return out
}

type reservationRoomView struct {
	RoomTypeID   int64             `json:"room_type_id"`
	Quantity     int               `json:"quantity"`
	Adults       int               `json:"adults"`
	Children     int               `json:"children"`
	NightlyRates []decimal.Decimal `json:"nightly_rates"`
	Subtotal     decimal.Decimal   `json:"subtotal"`
}

type reservationView struct {
	ID                 string                          `json:"id"`
	ConfirmationNumber string                          `json:"confirmation_number"`
	BusinessUnitID     int64                           `json:"business_unit_id"`
	Status             domain.ReservationStatus        `json:"status"`
	PaymentStatus      domain.ReservationPaymentStatus `json:"payment_status"`
	CheckIn            string                          `json:"check_in"`
	CheckOut           string                          `json:"check_out"`
	Nights             int                             `json:"nights"`
	Adults             int                             `json:"adults"`
	Children           int                             `json:"children"`
	Subtotal           decimal.Decimal                 `json:"subtotal"`
	Discount           decimal.Decimal                 `json:"discount"`
	ServiceCharge      decimal.Decimal                 `json:"service_charge"`
	Tax                decimal.Decimal                 `json:"tax"`
	Total              decimal.Decimal                 `json:"total"`
	Currency           string                          `json:"currency"`
	PromoCode          *string                         `json:"promo_code,omitempty"`
	Rooms              []reservationRoomView           `json:"rooms"`
	CreatedAt          time.Time                       `json:"created_at"`
}

func reservation(r domain.Reservation) reservationView {
	v := reservationView{
		ID:                 r.ID,
		ConfirmationNumber: r.ConfirmationNumber,
		BusinessUnitID:     r.BusinessUnitID,
		Status:             r.Status,
		PaymentStatus:      r.PaymentStatus,
		CheckIn:            r.CheckIn.Format(dateLayout),
		CheckOut:           r.CheckOut.Format(dateLayout),
		Nights:             r.Nights,
		Adults:             r.Adults,
		Children:           r.Children,
		Subtotal:           r.Subtotal,
		Discount:           r.Discount,
		ServiceCharge:      r.ServiceCharge,
		Tax:                r.Tax,
		Total:              r.Total,
		Currency:           r.Currency,
		PromoCode:          r.PromoCode,
		Rooms:              make([]reservationRoomView, 0, len(r.Rooms)),
		CreatedAt:          r.CreatedAt,
	}
	for _, rm := range r.Rooms {
		v.Rooms = append(v.Rooms, reservationRoomView{
			RoomTypeID:   rm.RoomTypeID,
			Quantity:     rm.Quantity,
			Adults:       rm.Adults,
			Children:     rm.Children,
			NightlyRates: rm.NightlyRates,
			Subtotal:     rm.Subtotal,
		})
	}
	return v
}

type guestView struct {
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Email     string  `json:"email"`
	Phone     *string `json:"phone,omitempty"`
	Country   *string `json:"country,omitempty"`
}

type paymentView struct {
	ID          string               `json:"id"`
	Provider    string               `json:"provider"`
	Status      domain.PaymentStatus `json:"status"`
	Amount      int64                `json:"amount"`
	Currency    string               `json:"currency"`
	SessionID   *string              `json:"session_id,omitempty"`
	ProviderRef *string              `json:"provider_ref,omitempty"`
	ExpiresAt   time.Time            `json:"expires_at"`
	PaidAt      *time.Time           `json:"paid_at,omitempty"`
	LineItems   []domain.LineItem    `json:"line_items"`
}

// bookingLookupResponse is what a guest sees: no payment internals.
type bookingLookupResponse struct {
	reservationView
	GuestName string `json:"guest_name"`
}

func bookingLookup(d domain.ReservationDetail) bookingLookupResponse {
	return bookingLookupResponse{
		reservationView: reservation(d.Reservation),
		GuestName:       d.Guest.FirstName + " " + d.Guest.LastName,
	}
}

type reservationDetailResponse struct {
	reservationView
	Guest           guestView     `json:"guest"`
	SpecialRequests *string       `json:"special_requests,omitempty"`
	Payments        []paymentView `json:"payments"`
}

func reservationDetail(d domain.ReservationDetail) reservationDetailResponse {
	out := reservationDetailResponse{
		reservationView: reservation(d.Reservation),
		Guest: guestView{
			FirstName: d.Guest.FirstName,
			LastName:  d.Guest.LastName,
			Email:     d.Guest.Email,
			Phone:     d.Guest.Phone,
			Country:   d.Guest.Country,
		},
		SpecialRequests: d.Reservation.SpecialRequests,
		Payments:        make([]paymentView, 0, len(d.Payments)),
	}
	for _, p := range d.Payments {
		items := p.LineItems
		if items == nil {
			items = []domain.LineItem{}
		}
		out.Payments = append(out.Payments, paymentView{
			ID:          p.ID,
			Provider:    p.Provider,
			Status:      p.Status,
			Amount:      p.Amount,
			Currency:    p.Currency,
			SessionID:   p.SessionID,
			ProviderRef: p.ProviderRef,
			ExpiresAt:   p.ExpiresAt,
			PaidAt:      p.PaidAt,
			LineItems:   items,
		})
	}
	return out
}
