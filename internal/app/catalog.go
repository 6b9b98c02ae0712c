package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"hotel_booking/internal/domain"
)

// CatalogService reads property data through the cache. Rate overrides depend on the stay and
// are always read from the repository.
type CatalogService struct {
	repo     domain.CatalogRepository
	cache    domain.Cache
	cacheTTL time.Duration
}

func NewCatalogService(r domain.CatalogRepository, c domain.Cache, ttl time.Duration) *CatalogService {
	return &CatalogService{repo: r, cache: c, cacheTTL: ttl}
}

type cachedCatalog struct {
	BusinessUnit domain.BusinessUnit `json:"business_unit"`
	RoomTypes    []domain.RoomType   `json:"room_types"`
}

func catalogKey(businessUnitID int64) string { return fmt.Sprintf("catalog:%d", businessUnitID) }

func (s *CatalogService) base(ctx context.Context, businessUnitID int64) (cachedCatalog, error) {
	key := catalogKey(businessUnitID)
	var cc cachedCatalog
	if s.cache != nil {
		if ok, _ := s.cache.Get(ctx, key, &cc); ok {
			return cc, nil
		}
	}

	bu, err := s.repo.GetBusinessUnit(ctx, businessUnitID)
	if err != nil {
		return cachedCatalog{}, err
	}
	rts, err := s.repo.ListRoomTypes(ctx, businessUnitID)
	if err != nil {
		return cachedCatalog{}, err
	}
	cc = cachedCatalog{BusinessUnit: bu, RoomTypes: rts}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, cc, int(s.cacheTTL.Seconds()))
	}
	return cc, nil
}

// Catalog loads everything needed to price a stay at one business unit.
func (s *CatalogService) Catalog(ctx context.Context, businessUnitID int64, stay domain.Stay) (domain.Catalog, error) {
	cc, err := s.base(ctx, businessUnitID)
	if err != nil {
		return domain.Catalog{}, err
	}
	overrides, err := s.repo.ListRateOverrides(ctx, businessUnitID, stay.CheckIn, stay.CheckOut.AddDate(0, 0, -1))
	if err != nil {
		return domain.Catalog{}, err
	}
	return domain.Catalog{BusinessUnit: cc.BusinessUnit, RoomTypes: cc.RoomTypes, Overrides: overrides}, nil
}

// RoomTypes lists the bookable room types of an active business unit.
func (s *CatalogService) RoomTypes(ctx context.Context, businessUnitID int64) ([]domain.RoomType, error) {
	cc, err := s.base(ctx, businessUnitID)
	if err != nil {
		return nil, err
	}
	if !cc.BusinessUnit.Active {
		return nil, domain.ErrNotFound
	}
	out := make([]domain.RoomType, 0, len(cc.RoomTypes))
	for _, rt := range cc.RoomTypes {
		if rt.Active {
			out = append(out, rt)
		}
	}
	return out, nil
}

// Promo resolves a promo code; unknown codes are reported as invalid promos.
func (s *CatalogService) Promo(ctx context.Context, code string) (*domain.PromoCode, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}
	p, err := s.repo.GetPromoCode(ctx, code)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: unknown code %q", domain.ErrInvalidPromo, code)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Invalidate drops the cached catalog of a business unit.
func (s *CatalogService) Invalidate(ctx context.Context, businessUnitID int64) {
	if s.cache != nil {
		_ = s.cache.Del(ctx, catalogKey(businessUnitID))
	}
}
