package service

import (
	"context"
	"fmt"
	"time"

	"zapis/internal/availability"
	"zapis/internal/domain"
	"zapis/internal/metrics"
	"zapis/internal/models"

	"github.com/rs/zerolog"
)

// AvailabilityReader is the part of the repository the read path needs.
type AvailabilityReader interface {
	domain.CatalogReader
	AppointmentsForDay(ctx context.Context, staffIDs []string, day time.Time) ([]*models.Appointment, error)
}

type AvailabilityService struct {
	repo     AvailabilityReader
	cache    domain.SlotCache
	resolver *availability.Resolver
	loc      *time.Location
	logger   *zerolog.Logger
}

func NewAvailabilityService(repo AvailabilityReader, cache domain.SlotCache, resolver *availability.Resolver, loc *time.Location, logger *zerolog.Logger) *AvailabilityService {
	if loc == nil {
		loc = time.Local
	}
	return &AvailabilityService{
		repo:     repo,
		cache:    cache,
		resolver: resolver,
		loc:      loc,
		logger:   logger,
	}
}

// shopDay keeps the calendar date of t and places it at midnight in the shop location.
func shopDay(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// loadQuery reads the catalog for one availability computation.
func loadQuery(ctx context.Context, repo domain.CatalogReader, shopID, serviceID string, sel models.StaffSelector, day time.Time) (availability.Query, error) {
	shop, err := repo.GetShop(ctx, shopID)
	if err != nil {
		return availability.Query{}, err
	}
	svc, err := repo.GetService(ctx, serviceID)
	if err != nil {
		return availability.Query{}, err
	}
	if svc.ShopID != shop.ID || !svc.Active {
		return availability.Query{}, fmt.Errorf("%w: %s", domain.ErrServiceNotFound, serviceID)
	}
	roster, err := repo.ListStaff(ctx, shop.ID)
	if err != nil {
		return availability.Query{}, err
	}
	return availability.Query{Shop: shop, Roster: roster, Service: svc, Selector: sel, Date: day}, nil
}

// GetAvailableSlots returns the free slots of the service on date, ascending.
// An empty list is a valid answer and is cached like any other.
func (s *AvailabilityService) GetAvailableSlots(ctx context.Context, shopID string, staff models.StaffSelector, serviceID string, date time.Time) ([]models.Slot, error) {
	day := shopDay(date, s.loc)
	key := domain.SlotCacheKey{ShopID: shopID, ServiceID: serviceID, Staff: staff.String(), Date: day}

	useCache := s.cache != nil
	if useCache {
		gen, err := s.cache.Generation(ctx, shopID, day)
		if err != nil {
			s.logger.Warn().Err(err).Str("shop_id", shopID).Msg("slot cache generation error")
			useCache = false
		}
		key.Generation = gen
	}
	if useCache {
		slots, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn().Err(err).Str("shop_id", shopID).Msg("slot cache read error")
		} else if ok {
			metrics.IncSlotRequest("hit")
			return slots, nil
		}
	}

	slots, err := s.compute(ctx, shopID, staff, serviceID, day)
	if err != nil {
		metrics.IncSlotRequest("error")
		return nil, err
	}
	metrics.IncSlotRequest("miss")

	if useCache {
		if err := s.cache.Set(ctx, key, slots); err != nil {
			s.logger.Warn().Err(err).Str("shop_id", shopID).Msg("slot cache write error")
		}
	}
	return slots, nil
}

func (s *AvailabilityService) compute(ctx context.Context, shopID string, staff models.StaffSelector, serviceID string, day time.Time) ([]models.Slot, error) {
	q, err := loadQuery(ctx, s.repo, shopID, serviceID, staff, day)
	if err != nil {
		return nil, err
	}

	candidates, err := s.resolver.Candidates(q)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []models.Slot{}, nil
	}

	existing, err := s.repo.AppointmentsForDay(ctx, slotStaff(candidates), day)
	if err != nil {
		return nil, err
	}
	return availability.FilterConflicts(candidates, q.Service.DurationMinutes, existing), nil
}

func slotStaff(slots []models.Slot) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, slot := range slots {
		for _, id := range slot.StaffIDs {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	return ids
}
