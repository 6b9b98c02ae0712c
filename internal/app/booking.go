package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"hotel_booking/internal/adapters/observability"
	"hotel_booking/internal/domain"
	"hotel_booking/internal/pricing"
	"hotel_booking/internal/shared"
)

const confirmationAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// confirmation numbers are random; a collision is retried with a fresh number
const confirmationAttempts = 3

type BookingService struct {
	pricing     *PricingService
	repo        domain.BookingRepository
	gateway     domain.PaymentGateway
	checkoutTTL time.Duration
	now         func() time.Time
}

func NewBookingService(p *PricingService, r domain.BookingRepository, g domain.PaymentGateway, checkoutTTL time.Duration) *BookingService {
	return &BookingService{pricing: p, repo: r, gateway: g, checkoutTTL: checkoutTTL, now: time.Now}
}

func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

// CreateWithPayment prices the request, reserves inventory and opens a hosted checkout.
// The reservation stays PENDING until the provider reports the payment.
func (s *BookingService) CreateWithPayment(ctx context.Context, req domain.BookingRequest) (domain.BookingResult, error) {
	res, err := s.create(ctx, req)
	observability.ObserveBooking(req.BusinessUnitID, bookingOutcome(err))
	return res, err
}

func (s *BookingService) create(ctx context.Context, req domain.BookingRequest) (domain.BookingResult, error) {
	if err := shared.Validate(s.pricing.validate, req); err != nil {
		return domain.BookingResult{}, err
	}
	q, stay, err := s.pricing.quote(ctx, req.QuoteRequest)
	if err != nil {
		return domain.BookingResult{}, err
	}
	amount := pricing.ToMinor(q.Total, q.Currency)
	if amount <= 0 {
		return domain.BookingResult{}, domain.Invalid("promo_code", "booking total must be greater than zero")
	}

	result := domain.BookingResult{Provider: s.gateway.Name(), Quote: q}
	if req.ExpectedTotal != nil {
		if exp, err := decimal.NewFromString(*req.ExpectedTotal); err == nil && !exp.Equal(q.Total) {
			result.PriceChanged = true
			log.Warn().
				Int64("business_unit_id", q.BusinessUnitID).
				Str("expected_total", exp.String()).
				Str("total", q.Total.String()).
				Msg("client total differs from server price")
		}
	}

	now := s.now().UTC()
	guest := domain.Guest{
		FirstName: strings.TrimSpace(req.Guest.FirstName),
		LastName:  strings.TrimSpace(req.Guest.LastName),
		Email:     strings.ToLower(strings.TrimSpace(req.Guest.Email)),
		Phone:     optional(req.Guest.Phone),
		Country:   optional(strings.ToUpper(req.Guest.Country)),
	}
	rsv := newReservation(q, stay, req)
	pay := domain.Payment{
		ID:        uuid.NewString(),
		Provider:  s.gateway.Name(),
		Amount:    amount,
		Currency:  q.Currency,
		Status:    domain.PaymentPending,
		ExpiresAt: now.Add(s.checkoutTTL),
		LineItems: q.LineItems,
	}

	for attempt := 1; ; attempt++ {
		rsv.ID = uuid.NewString()
		rsv.ConfirmationNumber = newConfirmationNumber()
		pay.ReservationID = rsv.ID
		err = s.repo.WithinTx(ctx, func(tx domain.BookingTx) error {
			return s.reserve(ctx, tx, stay, req.Rooms, guest, &rsv, pay)
		})
		if errors.Is(err, domain.ErrDuplicate) && attempt < confirmationAttempts {
			continue
		}
		break
	}
	if err != nil {
		return domain.BookingResult{}, err
	}

	l := log.With().
		Str("reservation_id", rsv.ID).
		Str("payment_id", pay.ID).
		Str("confirmation", rsv.ConfirmationNumber).
		Logger()

	sess, err := s.gateway.CreateCheckout(ctx, domain.CheckoutRequest{
		PaymentID:          pay.ID,
		ReservationID:      rsv.ID,
		ConfirmationNumber: rsv.ConfirmationNumber,
		Currency:           pay.Currency,
		Amount:             pay.Amount,
		LineItems:          pay.LineItems,
		Guest:              guest,
		ExpiresAt:          pay.ExpiresAt,
	})
	if err != nil {
		l.Error().Err(err).Str("provider", pay.Provider).Msg("checkout session failed; releasing reservation")
		if cerr := s.release(context.WithoutCancel(ctx), rsv.ID, pay.ID); cerr != nil {
			l.Error().Err(cerr).Msg("release after checkout failure failed")
		}
		return domain.BookingResult{}, fmt.Errorf("%w: %v", domain.ErrGateway, err)
	}
	if err := s.repo.SetCheckoutSession(ctx, pay.ID, sess); err != nil {
		// webhooks still resolve the payment by its id
		l.Error().Err(err).Str("session_id", sess.SessionID).Msg("store checkout session failed")
	}

	l.Info().
		Int64("business_unit_id", rsv.BusinessUnitID).
		Str("total", rsv.Total.String()).
		Str("currency", rsv.Currency).
		Msg("reservation created")

	result.ReservationID = rsv.ID
	result.ConfirmationNumber = rsv.ConfirmationNumber
	result.PaymentID = pay.ID
	result.SessionID = sess.SessionID
	result.CheckoutURL = sess.URL
	result.ExpiresAt = pay.ExpiresAt
	return result, nil
}

// reserve runs inside the booking transaction.
func (s *BookingService) reserve(ctx context.Context, tx domain.BookingTx, stay domain.Stay, rooms []domain.RoomRequest,
	guest domain.Guest, rsv *domain.Reservation, pay domain.Payment) error {
	want := map[int64]int{}
	for _, r := range rooms {
		want[r.RoomTypeID] += r.Quantity
	}
	ids := make([]int64, 0, len(want))
	for id := range want {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	locked, err := tx.LockRoomTypes(ctx, ids)
	if err != nil {
		return err
	}
	booked, err := tx.BookedRooms(ctx, ids, stay)
	if err != nil {
		return err
	}
	for _, id := range ids {
		rt, ok := locked[id]
		if !ok || !rt.Active || rt.BusinessUnitID != rsv.BusinessUnitID {
			return fmt.Errorf("room type %d: %w", id, domain.ErrInactive)
		}
		if booked[id]+want[id] > rt.TotalRooms {
			return fmt.Errorf("%w: %s has %d of %d rooms left", domain.ErrNoAvailability,
				rt.Name, max(rt.TotalRooms-booked[id], 0), rt.TotalRooms)
		}
	}

	g, err := tx.UpsertGuest(ctx, guest)
	if err != nil {
		return err
	}
	rsv.GuestID = g.ID
	if err := tx.InsertReservation(ctx, *rsv); err != nil {
		return err
	}
	return tx.InsertPayment(ctx, pay)
}

// release fails the payment and cancels the reservation after the provider refused the checkout.
func (s *BookingService) release(ctx context.Context, reservationID, paymentID string) error {
	return s.repo.WithinTx(ctx, func(tx domain.BookingTx) error {
		p, err := tx.LockPayment(ctx, domain.PaymentLookup{ID: paymentID})
		if err != nil {
			return err
		}
		p.Status = domain.PaymentFailed
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return err
		}
		return tx.UpdateReservationStatus(ctx, reservationID, domain.ReservationCancelled, domain.ReservationUnpaid)
	})
}

func newReservation(q domain.Quote, stay domain.Stay, req domain.BookingRequest) domain.Reservation {
	r := domain.Reservation{
		BusinessUnitID:  q.BusinessUnitID,
		CheckIn:         stay.CheckIn,
		CheckOut:        stay.CheckOut,
		Nights:          q.Nights,
		Adults:          q.Adults(),
		Children:        q.Children(),
		Status:          domain.ReservationPending,
		PaymentStatus:   domain.ReservationUnpaid,
		Subtotal:        q.Subtotal,
		Discount:        q.Discount,
		ServiceCharge:   q.ServiceCharge,
		Tax:             q.Tax,
		Total:           q.Total,
		Currency:        q.Currency,
		PromoCode:       q.PromoCode,
		SpecialRequests: optional(req.SpecialRequests),
	}
	for _, l := range q.Lines {
		rates := make([]decimal.Decimal, 0, len(l.Nights))
		for _, n := range l.Nights {
			rates = append(rates, n.Rate)
		}
		r.Rooms = append(r.Rooms, domain.ReservationRoom{
			RoomTypeID:   l.RoomTypeID,
			Quantity:     l.Quantity,
			Adults:       l.Adults,
			Children:     l.Children,
			NightlyRates: rates,
			Subtotal:     l.Subtotal,
		})
	}
	return r
}

func newConfirmationNumber() string {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	}
	for i := range b {
		b[i] = confirmationAlphabet[int(b[i])%len(confirmationAlphabet)]
	}
	return string(b)
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func bookingOutcome(err error) string {
	switch {
	case err == nil:
		return "created"
	case errors.Is(err, domain.ErrNoAvailability):
		return "unavailable"
	case errors.Is(err, domain.ErrGateway):
		return "gateway_error"
	case domain.IsValidation(err), errors.Is(err, domain.ErrInvalidPromo), errors.Is(err, domain.ErrInactive),
		errors.Is(err, domain.ErrNotFound):
		return "invalid"
	}
	return "error"
}
