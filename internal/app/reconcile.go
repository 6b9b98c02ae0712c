package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"hotel_booking/internal/adapters/observability"
	"hotel_booking/internal/domain"
)

// Reconciliation outcomes, stored on the payment event row.
const (
	ResultApplied   = "applied"
	ResultDuplicate = "duplicate"
	ResultIgnored   = "ignored"
	ResultNoop      = "noop"
	ResultRejected  = "rejected"
)

// ReconcileService applies provider notifications to payments and reservations.
type ReconcileService struct {
	repo domain.BookingRepository
	now  func() time.Time
}

func NewReconcileService(r domain.BookingRepository) *ReconcileService {
	return &ReconcileService{repo: r, now: time.Now}
}

func (s *ReconcileService) WithClock(now func() time.Time) *ReconcileService {
	s.now = now
	return s
}

// HandleEvent records e and applies it at most once. A success whose amount differs from the
// payment is recorded as rejected and reported as domain.ErrAmountMismatch.
func (s *ReconcileService) HandleEvent(ctx context.Context, e domain.PaymentEvent) (string, error) {
	var result string
	err := s.repo.WithinTx(ctx, func(tx domain.BookingTx) error {
		fresh, err := tx.RecordPaymentEvent(ctx, e)
		if err != nil {
			return err
		}
		if !fresh {
			result = ResultDuplicate
			return nil
		}
		if e.Outcome == domain.OutcomeNone {
			result = ResultIgnored
			return tx.ResolvePaymentEvent(ctx, e.Provider, e.EventID, nil, result)
		}

		p, err := tx.LockPayment(ctx, domain.PaymentLookup{
			ID: e.PaymentID, Provider: e.Provider, SessionID: e.SessionID, ProviderRef: e.ProviderRef,
		})
		if errors.Is(err, domain.ErrNotFound) {
			result = ResultIgnored
			return tx.ResolvePaymentEvent(ctx, e.Provider, e.EventID, nil, result)
		}
		if err != nil {
			return err
		}

		result, err = s.apply(ctx, tx, p, e)
		if err != nil {
			return err
		}
		return tx.ResolvePaymentEvent(ctx, e.Provider, e.EventID, &p.ID, result)
	})
	if err != nil {
		observability.ObserveWebhook(e.Provider, "error")
		return "", err
	}
	observability.ObserveWebhook(e.Provider, result)

	l := log.Info()
	if result == ResultRejected {
		l = log.Warn()
	}
	l.Str("provider", e.Provider).
		Str("event_id", e.EventID).
		Str("type", e.Type).
		Str("outcome", string(e.Outcome)).
		Str("result", result).
		Msg("payment event")

	if result == ResultRejected {
		return result, domain.ErrAmountMismatch
	}
	return result, nil
}

func (s *ReconcileService) apply(ctx context.Context, tx domain.BookingTx, p domain.Payment, e domain.PaymentEvent) (string, error) {
	switch {
	case e.Outcome == domain.OutcomeSucceeded && p.Status == domain.PaymentPending:
		if e.Amount != nil && *e.Amount != p.Amount {
			log.Warn().
				Str("payment_id", p.ID).
				Int64("expected", p.Amount).
				Int64("reported", *e.Amount).
				Msg("paid amount mismatch")
			return ResultRejected, nil
		}
		paid := s.now().UTC()
		p.Status = domain.PaymentSucceeded
		p.PaidAt = &paid
		if e.ProviderRef != "" {
			ref := e.ProviderRef
			p.ProviderRef = &ref
		}
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return "", err
		}
		r, err := tx.LockReservation(ctx, p.ReservationID)
		if err != nil {
			return "", err
		}
		status := r.Status
		if status == domain.ReservationPending {
			status = domain.ReservationConfirmed
		} else {
			log.Warn().Str("reservation_id", r.ID).Str("status", string(r.Status)).
				Msg("payment captured for a reservation that is no longer pending")
		}
		return ResultApplied, tx.UpdateReservationStatus(ctx, r.ID, status, domain.ReservationPaid)

	case (e.Outcome == domain.OutcomeFailed || e.Outcome == domain.OutcomeExpired) && p.Status == domain.PaymentPending:
		p.Status = domain.PaymentFailed
		if e.Outcome == domain.OutcomeExpired {
			p.Status = domain.PaymentExpired
		}
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return "", err
		}
		r, err := tx.LockReservation(ctx, p.ReservationID)
		if err != nil {
			return "", err
		}
		if r.Status == domain.ReservationPending {
			if err := tx.UpdateReservationStatus(ctx, r.ID, domain.ReservationCancelled, r.PaymentStatus); err != nil {
				return "", err
			}
		}
		return ResultApplied, nil

	case e.Outcome == domain.OutcomeRefunded && p.Status == domain.PaymentSucceeded:
		p.Status = domain.PaymentRefunded
		if err := tx.UpdatePayment(ctx, p); err != nil {
			return "", err
		}
		return ResultApplied, tx.UpdateReservationStatus(ctx, p.ReservationID, domain.ReservationCancelled, domain.ReservationRefunded)

	case e.Outcome == domain.OutcomeSucceeded && (p.Status == domain.PaymentExpired || p.Status == domain.PaymentFailed):
		// money arrived after the hold was released; needs a manual refund
		log.Error().
			Str("payment_id", p.ID).
			Str("reservation_id", p.ReservationID).
			Str("status", string(p.Status)).
			Msg("payment captured after checkout closed")
	}
	return ResultNoop, nil
}

// Expire applies the EXPIRED transition to a pending payment whose checkout window has passed.
func (s *ReconcileService) Expire(ctx context.Context, p domain.Payment) (string, error) {
	return s.HandleEvent(ctx, domain.PaymentEvent{
		Provider:  p.Provider,
		EventID:   "expiry:" + p.ID,
		Type:      "checkout.expired_locally",
		PaymentID: p.ID,
		Outcome:   domain.OutcomeExpired,
	})
}

// SweepExpired expires up to batch overdue payments, running at most workers at a time.
// It returns how many payments changed state.
func (s *ReconcileService) SweepExpired(ctx context.Context, batch, workers int) (int, error) {
	if workers <= 0 {
		workers = 1
	}
	due, err := s.repo.ListExpiredPayments(ctx, s.now().UTC(), batch)
	if err != nil {
		return 0, fmt.Errorf("list expired payments: %w", err)
	}

	sem := semaphore.NewWeighted(int64(workers))
	var wg sync.WaitGroup
	var mu sync.Mutex
	expired := 0

	for _, p := range due {
		// acquire before launching the goroutine; release inside it
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(p domain.Payment) {
			defer wg.Done()
			defer sem.Release(1)

			res, err := s.Expire(ctx, p)
			if err != nil {
				log.Warn().Str("payment_id", p.ID).Err(err).Msg("expire failed")
				return
			}
			if res == ResultApplied {
				observability.PaymentsExpired.Inc()
				mu.Lock()
				expired++
				mu.Unlock()
			}
		}(p)
	}

	wg.Wait()
	return expired, ctx.Err()
}
