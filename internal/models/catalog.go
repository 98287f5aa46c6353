package models

import (
	"fmt"

	"zapis/internal/timegrid"
)

// Catalog is the YAML layout of shop configuration loaded at startup.
type Catalog struct {
	Shops []CatalogShop `yaml:"shops"`
}

type CatalogShop struct {
	ID                   string                  `yaml:"id"`
	Name                 string                  `yaml:"name"`
	Plan                 string                  `yaml:"plan"`
	RequiresConfirmation bool                    `yaml:"requires_confirmation"`
	Hours                map[string]CatalogHours `yaml:"hours"`
	Staff                []CatalogStaff          `yaml:"staff"`
	Services             []CatalogService        `yaml:"services"`
}

type CatalogHours struct {
	Open   timegrid.ClockTime `yaml:"open"`
	Close  timegrid.ClockTime `yaml:"close"`
	Closed bool               `yaml:"closed"`
}

type CatalogStaff struct {
	ID       string                     `yaml:"id"`
	Name     string                     `yaml:"name"`
	Active   *bool                      `yaml:"active"`
	Schedule map[string]CatalogSchedule `yaml:"schedule"`
}

type CatalogSchedule struct {
	Start     timegrid.ClockTime `yaml:"start"`
	End       timegrid.ClockTime `yaml:"end"`
	IsWorking *bool              `yaml:"is_working"`
}

type CatalogService struct {
	ID              string   `yaml:"id"`
	Name            string   `yaml:"name"`
	DurationMinutes int      `yaml:"duration_minutes"`
	Price           int64    `yaml:"price"`
	EligibleStaff   []string `yaml:"eligible_staff"`
	Active          *bool    `yaml:"active"`
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Validate checks identifiers, hours and plan limits of every shop.
func (c *Catalog) Validate() error {
	shopIDs := make(map[string]bool)
	staffIDs := make(map[string]bool)
	serviceIDs := make(map[string]bool)

	for _, shop := range c.Shops {
		if shop.ID == "" {
			return fmt.Errorf("shop '%s' has empty id", shop.Name)
		}
		if shopIDs[shop.ID] {
			return fmt.Errorf("duplicate shop id: %s", shop.ID)
		}
		shopIDs[shop.ID] = true

		plan := Plan(shop.Plan)
		switch plan {
		case "", PlanFree, PlanPro, PlanPremium:
		default:
			return fmt.Errorf("shop %s: unknown plan %q", shop.ID, shop.Plan)
		}
		if plan == "" {
			plan = PlanFree
		}
		if limit := plan.MaxStaff(); limit > 0 && len(shop.Staff) > limit {
			return fmt.Errorf("shop %s: plan %s allows %d staff, got %d", shop.ID, plan, limit, len(shop.Staff))
		}

		for day, h := range shop.Hours {
			if _, err := timegrid.ParseWeekday(day); err != nil {
				return fmt.Errorf("shop %s: %w", shop.ID, err)
			}
			if !h.Closed && h.Close <= h.Open {
				return fmt.Errorf("shop %s: %s closes before it opens", shop.ID, day)
			}
		}

		own := make(map[string]bool)
		for _, st := range shop.Staff {
			if st.ID == "" {
				return fmt.Errorf("shop %s: staff '%s' has empty id", shop.ID, st.Name)
			}
			if staffIDs[st.ID] {
				return fmt.Errorf("duplicate staff id: %s", st.ID)
			}
			staffIDs[st.ID] = true
			own[st.ID] = true

			for day, wh := range st.Schedule {
				if _, err := timegrid.ParseWeekday(day); err != nil {
					return fmt.Errorf("staff %s: %w", st.ID, err)
				}
				if boolOr(wh.IsWorking, true) && wh.End <= wh.Start {
					return fmt.Errorf("staff %s: %s ends before it starts", st.ID, day)
				}
			}
		}

		for _, svc := range shop.Services {
			if svc.ID == "" {
				return fmt.Errorf("shop %s: service '%s' has empty id", shop.ID, svc.Name)
			}
			if serviceIDs[svc.ID] {
				return fmt.Errorf("duplicate service id: %s", svc.ID)
			}
			serviceIDs[svc.ID] = true

			if svc.DurationMinutes <= 0 {
				return fmt.Errorf("service %s: duration must be positive", svc.ID)
			}
			if svc.Price < 0 {
				return fmt.Errorf("service %s: price must not be negative", svc.ID)
			}
			for _, id := range svc.EligibleStaff {
				if !own[id] {
					return fmt.Errorf("service %s: unknown staff %s", svc.ID, id)
				}
			}
		}
	}
	return nil
}

// ToShop converts the catalog entry to the domain types.
func (s CatalogShop) ToShop() (*Shop, []*StaffMember, []*Service, error) {
	plan := Plan(s.Plan)
	if plan == "" {
		plan = PlanFree
	}
	shop := &Shop{
		ID:                   s.ID,
		Name:                 s.Name,
		Plan:                 plan,
		RequiresConfirmation: s.RequiresConfirmation,
		Calendar:             make(ShopCalendar, len(s.Hours)),
	}
	for day, h := range s.Hours {
		wd, err := timegrid.ParseWeekday(day)
		if err != nil {
			return nil, nil, nil, err
		}
		shop.Calendar[wd] = OperatingHours{Weekday: wd, Open: h.Open, Close: h.Close, Closed: h.Closed}
	}

	staff := make([]*StaffMember, 0, len(s.Staff))
	for _, st := range s.Staff {
		member := &StaffMember{
			ID:       st.ID,
			ShopID:   s.ID,
			Name:     st.Name,
			Active:   boolOr(st.Active, true),
			Schedule: make(StaffSchedule, len(st.Schedule)),
		}
		for day, wh := range st.Schedule {
			wd, err := timegrid.ParseWeekday(day)
			if err != nil {
				return nil, nil, nil, err
			}
			member.Schedule[wd] = WorkingHours{Weekday: wd, Start: wh.Start, End: wh.End, IsWorking: boolOr(wh.IsWorking, true)}
		}
		staff = append(staff, member)
	}

	services := make([]*Service, 0, len(s.Services))
	for _, svc := range s.Services {
		services = append(services, &Service{
			ID:               svc.ID,
			ShopID:           s.ID,
			Name:             svc.Name,
			DurationMinutes:  svc.DurationMinutes,
			Price:            svc.Price,
			EligibleStaffIDs: append([]string(nil), svc.EligibleStaff...),
			Active:           boolOr(svc.Active, true),
		})
	}
	return shop, staff, services, nil
}
