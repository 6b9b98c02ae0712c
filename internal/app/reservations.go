package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"hotel_booking/internal/domain"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// ReservationService serves guest lookups and the admin reservation desk.
type ReservationService struct {
	repo domain.BookingRepository
}

func NewReservationService(r domain.BookingRepository) *ReservationService {
	return &ReservationService{repo: r}
}

// Lookup returns a reservation by confirmation number when email matches its guest.
// A wrong email is indistinguishable from an unknown confirmation number.
func (s *ReservationService) Lookup(ctx context.Context, confirmation, email string) (domain.ReservationDetail, error) {
	if strings.TrimSpace(confirmation) == "" || strings.TrimSpace(email) == "" {
		return domain.ReservationDetail{}, domain.ErrNotFound
	}
	d, err := s.repo.FindByConfirmation(ctx, strings.TrimSpace(confirmation))
	if err != nil {
		return domain.ReservationDetail{}, err
	}
	if !strings.EqualFold(d.Guest.Email, strings.TrimSpace(email)) {
		return domain.ReservationDetail{}, domain.ErrNotFound
	}
	return d, nil
}

func (s *ReservationService) Get(ctx context.Context, id string) (domain.ReservationDetail, error) {
	return s.repo.GetReservation(ctx, id)
}

func (s *ReservationService) List(ctx context.Context, q domain.ReservationsQuery) (domain.ReservationsPage, error) {
	switch {
	case q.Limit == 0:
		q.Limit = defaultPageSize
	case q.Limit < 0 || q.Limit > maxPageSize:
		return domain.ReservationsPage{}, domain.Invalid("limit", "must be between 1 and %d", maxPageSize)
	}
	return s.repo.ListReservations(ctx, q)
}

// Cancel moves a PENDING or CONFIRMED reservation to CANCELLED and releases its inventory.
// Refunds are issued at the provider; the reservation's payment status is left as is.
func (s *ReservationService) Cancel(ctx context.Context, id, actor string) (domain.Reservation, error) {
	var out domain.Reservation
	err := s.repo.WithinTx(ctx, func(tx domain.BookingTx) error {
		r, err := tx.LockReservation(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != domain.ReservationPending && r.Status != domain.ReservationConfirmed {
			return fmt.Errorf("%w: reservation is %s", domain.ErrInvalidTransition, r.Status)
		}
		if err := tx.UpdateReservationStatus(ctx, r.ID, domain.ReservationCancelled, r.PaymentStatus); err != nil {
			return err
		}
		r.Status = domain.ReservationCancelled
		out = r
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}
	log.Info().Str("reservation_id", id).Str("actor", actor).Msg("reservation cancelled")
	return out, nil
}
