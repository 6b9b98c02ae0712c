package app

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"hotel_booking/internal/domain"
	"hotel_booking/internal/pricing"
	"hotel_booking/internal/shared"
)

type StayRules struct {
	MaxNights       int
	MaxRoomsPerLine int
}

// PricingService produces the authoritative quote used by both the quote and the booking endpoints.
type PricingService struct {
	catalog  *CatalogService
	validate *validator.Validate
	rules    StayRules
	now      func() time.Time
}

func NewPricingService(c *CatalogService, v *validator.Validate, rules StayRules) *PricingService {
	return &PricingService{catalog: c, validate: v, rules: rules, now: time.Now}
}

// WithClock replaces the clock used for the "not in the past" rule.
func (s *PricingService) WithClock(now func() time.Time) *PricingService {
	s.now = now
	return s
}

func (s *PricingService) Calculate(ctx context.Context, req domain.QuoteRequest) (domain.Quote, error) {
	if err := shared.Validate(s.validate, req); err != nil {
		return domain.Quote{}, err
	}
	q, _, err := s.quote(ctx, req)
	return q, err
}

// quote assumes req passed struct validation.
func (s *PricingService) quote(ctx context.Context, req domain.QuoteRequest) (domain.Quote, domain.Stay, error) {
	stay, err := s.checkStay(req)
	if err != nil {
		return domain.Quote{}, domain.Stay{}, err
	}
	for i, r := range req.Rooms {
		if s.rules.MaxRoomsPerLine > 0 && r.Quantity > s.rules.MaxRoomsPerLine {
			return domain.Quote{}, domain.Stay{}, domain.Invalid(fmt.Sprintf("rooms[%d].quantity", i), "must be at most %d", s.rules.MaxRoomsPerLine)
		}
	}

	cat, err := s.catalog.Catalog(ctx, req.BusinessUnitID, stay)
	if err != nil {
		return domain.Quote{}, domain.Stay{}, err
	}
	promo, err := s.catalog.Promo(ctx, req.PromoCode)
	if err != nil {
		return domain.Quote{}, domain.Stay{}, err
	}
	q, err := pricing.Calculate(pricing.Input{Catalog: cat, Stay: stay, Rooms: req.Rooms, Promo: promo})
	if err != nil {
		return domain.Quote{}, domain.Stay{}, err
	}
	return q, stay, nil
}

func (s *PricingService) checkStay(req domain.QuoteRequest) (domain.Stay, error) {
	stay, err := pricing.ParseStay(req.CheckIn, req.CheckOut)
	if err != nil {
		return domain.Stay{}, err
	}
	today := s.now().UTC().Truncate(24 * time.Hour)
	if stay.CheckIn.Before(today) {
		return domain.Stay{}, domain.Invalid("check_in", "cannot be in the past")
	}
	if s.rules.MaxNights > 0 && stay.Nights() > s.rules.MaxNights {
		return domain.Stay{}, domain.Invalid("check_out", "stays are limited to %d nights", s.rules.MaxNights)
	}
	return stay, nil
}
