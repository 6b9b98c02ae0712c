package domain

import (
	"context"
	"net/http"
	"time"
)

type CatalogRepository interface {
	GetBusinessUnit(ctx context.Context, id int64) (BusinessUnit, error)
	ListRoomTypes(ctx context.Context, businessUnitID int64) ([]RoomType, error)
	ListRateOverrides(ctx context.Context, businessUnitID int64, from, to time.Time) ([]RateOverride, error)
	GetPromoCode(ctx context.Context, code string) (PromoCode, error)
}

type BookingRepository interface {
	// WithinTx runs fn inside one database transaction, committing when fn returns nil.
	WithinTx(ctx context.Context, fn func(tx BookingTx) error) error

	SetCheckoutSession(ctx context.Context, paymentID string, s CheckoutSession) error
	GetReservation(ctx context.Context, id string) (ReservationDetail, error)
	FindByConfirmation(ctx context.Context, confirmation string) (ReservationDetail, error)
	ListReservations(ctx context.Context, q ReservationsQuery) (ReservationsPage, error)
	ListExpiredPayments(ctx context.Context, now time.Time, limit int) ([]Payment, error)
}

// BookingTx is the write side used inside a transaction.
type BookingTx interface {
	LockRoomTypes(ctx context.Context, ids []int64) (map[int64]RoomType, error)
	BookedRooms(ctx context.Context, roomTypeIDs []int64, stay Stay) (map[int64]int, error)
	UpsertGuest(ctx context.Context, g Guest) (Guest, error)
	InsertReservation(ctx context.Context, r Reservation) error
	InsertPayment(ctx context.Context, p Payment) error

	// RecordPaymentEvent stores e; false means the provider already delivered this event.
	RecordPaymentEvent(ctx context.Context, e PaymentEvent) (bool, error)
	ResolvePaymentEvent(ctx context.Context, provider, eventID string, paymentID *string, outcome string) error
	LockPayment(ctx context.Context, by PaymentLookup) (Payment, error)
	UpdatePayment(ctx context.Context, p Payment) error
	LockReservation(ctx context.Context, id string) (Reservation, error)
	UpdateReservationStatus(ctx context.Context, id string, s ReservationStatus, ps ReservationPaymentStatus) error
}

// PaymentLookup finds a payment by our id, or by provider session / reference.
type PaymentLookup struct {
	ID          string
	Provider    string
	SessionID   string
	ProviderRef string
}

type CheckoutRequest struct {
	PaymentID          string
	ReservationID      string
	ConfirmationNumber string
	Currency           string
	Amount             int64 // minor units
	LineItems          []LineItem
	Guest              Guest
	ExpiresAt          time.Time
}

type CheckoutSession struct {
	SessionID   string
	URL         string
	ProviderRef string
}

// PaymentGateway opens hosted checkout pages and decodes the provider's notifications.
type PaymentGateway interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (CheckoutSession, error)
	ParseWebhook(payload []byte, h http.Header) (PaymentEvent, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttlSec int) error
	Del(ctx context.Context, key string) error
}
