package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type ReservationStatus string

const (
	ReservationPending    ReservationStatus = "PENDING"
	ReservationConfirmed  ReservationStatus = "CONFIRMED"
	ReservationCancelled  ReservationStatus = "CANCELLED"
	ReservationCheckedIn  ReservationStatus = "CHECKED_IN"
	ReservationCheckedOut ReservationStatus = "CHECKED_OUT"
	ReservationNoShow     ReservationStatus = "NO_SHOW"
)

// Holds reports whether a reservation in this status occupies inventory.
func (s ReservationStatus) Holds() bool {
	return s == ReservationPending || s == ReservationConfirmed || s == ReservationCheckedIn
}

type ReservationPaymentStatus string

const (
	ReservationUnpaid   ReservationPaymentStatus = "UNPAID"
	ReservationPaid     ReservationPaymentStatus = "PAID"
	ReservationRefunded ReservationPaymentStatus = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentSucceeded PaymentStatus = "SUCCEEDED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentExpired   PaymentStatus = "EXPIRED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

type Guest struct {
	ID        string
	FirstName string
	LastName  string
	Email     string // lower case
	Phone     *string
	Country   *string
}

type Reservation struct {
	ID                 string
	ConfirmationNumber string
	BusinessUnitID     int64
	GuestID            string
	CheckIn, CheckOut  time.Time
	Nights             int
	Adults, Children   int
	Status             ReservationStatus
	PaymentStatus      ReservationPaymentStatus
	Subtotal           decimal.Decimal
	Discount           decimal.Decimal
	ServiceCharge      decimal.Decimal
	Tax                decimal.Decimal
	Total              decimal.Decimal
	Currency           string
	PromoCode          *string
	SpecialRequests    *string
	Rooms              []ReservationRoom
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type ReservationRoom struct {
	RoomTypeID   int64
	Quantity     int
	Adults       int
	Children     int
	NightlyRates []decimal.Decimal // per room, one per night
	Subtotal     decimal.Decimal
}

type Payment struct {
	ID            string
	ReservationID string
	Provider      string
	SessionID     *string
	ProviderRef   *string
	CheckoutURL   *string
	Amount        int64 // minor units
	Currency      string
	Status        PaymentStatus
	ExpiresAt     time.Time
	PaidAt        *time.Time
	LineItems     []LineItem
	CreatedAt     time.Time
}

type LineItem struct {
	Description string `json:"description"`
	Quantity    int64  `json:"quantity"`
	UnitAmount  int64  `json:"unit_amount"` // minor units
	Amount      int64  `json:"amount"`
}

// PaymentEvent is an inbound provider notification, normalized across providers.
type PaymentEvent struct {
	Provider    string
	EventID     string
	Type        string
	PaymentID   string // our id when the provider echoes it back
	SessionID   string
	ProviderRef string
	Outcome     PaymentOutcome
	Amount      *int64 // minor units, when the provider reports one
	Payload     []byte
}

type PaymentOutcome string

const (
	OutcomeNone      PaymentOutcome = ""
	OutcomePending   PaymentOutcome = "pending"
	OutcomeSucceeded PaymentOutcome = "succeeded"
	OutcomeFailed    PaymentOutcome = "failed"
	OutcomeExpired   PaymentOutcome = "expired"
	OutcomeRefunded  PaymentOutcome = "refunded"
)

// GuestDetail is what the booking funnel collects about the guest.
type GuestDetail struct {
	FirstName string `json:"first_name" validate:"required,notblank,max=100"`
	LastName  string `json:"last_name" validate:"required,notblank,max=100"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,max=32"`
	Country   string `json:"country,omitempty" validate:"omitempty,len=2"`
}

type RoomRequest struct {
	RoomTypeID int64 `json:"room_type_id" validate:"required,gt=0"`
	Quantity   int   `json:"quantity" validate:"required,gte=1"`
	Adults     int   `json:"adults" validate:"required,gte=1"`
	Children   int   `json:"children" validate:"gte=0"`
}

type QuoteRequest struct {
	BusinessUnitID int64         `json:"business_unit_id" validate:"required,gt=0"`
	CheckIn        string        `json:"check_in" validate:"required,datetime=2006-01-02"`
	CheckOut       string        `json:"check_out" validate:"required,datetime=2006-01-02"`
	Rooms          []RoomRequest `json:"rooms" validate:"required,min=1,max=10,dive"`
	PromoCode      string        `json:"promo_code,omitempty" validate:"omitempty,max=64"`
}

type BookingRequest struct {
	QuoteRequest
	Guest           GuestDetail `json:"guest"`
	SpecialRequests string      `json:"special_requests,omitempty" validate:"omitempty,max=2000"`
	ExpectedTotal   *string     `json:"expected_total,omitempty" validate:"omitempty,numeric"`
}

type BookingResult struct {
	ReservationID      string    `json:"reservation_id"`
	ConfirmationNumber string    `json:"confirmation_number"`
	PaymentID          string    `json:"payment_id"`
	Provider           string    `json:"provider"`
	SessionID          string    `json:"session_id"`
	CheckoutURL        string    `json:"checkout_url"`
	ExpiresAt          time.Time `json:"expires_at"`
	PriceChanged       bool      `json:"price_changed"`
	Quote              Quote     `json:"quote"`
}

// Read models

type ReservationSummary struct {
	ID                 string                   `json:"id"`
	ConfirmationNumber string                   `json:"confirmation_number"`
	BusinessUnitID     int64                    `json:"business_unit_id"`
	GuestName          string                   `json:"guest_name"`
	GuestEmail         string                   `json:"guest_email"`
	CheckIn            string                   `json:"check_in"`
	CheckOut           string                   `json:"check_out"`
	Nights             int                      `json:"nights"`
	Status             ReservationStatus        `json:"status"`
	PaymentStatus      ReservationPaymentStatus `json:"payment_status"`
	Total              decimal.Decimal          `json:"total"`
	Currency           string                   `json:"currency"`
	CreatedAt          time.Time                `json:"created_at"`
}

type ReservationDetail struct {
	Reservation Reservation
	Guest       Guest
	Payments    []Payment
}

type ReservationsQuery struct {
	BusinessUnitID *int64
	Status         *ReservationStatus
	Limit          int
	Cursor         *string
}

type ReservationsPage struct {
	Items      []ReservationSummary `json:"items"`
	NextCursor *string              `json:"next_cursor,omitempty"`
}
