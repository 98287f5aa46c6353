package models

import (
	"sort"
	"time"

	"zapis/internal/timegrid"
)

type Plan string

const (
	PlanFree    Plan = "free"
	PlanPro     Plan = "pro"
	PlanPremium Plan = "premium"
)

// MonthlyBookingLimit returns the number of blocking appointments allowed per month, 0 = unlimited.
func (p Plan) MonthlyBookingLimit() int {
	if p == PlanFree {
		return FreePlanMonthlyBookings
	}
	return 0
}

// MaxStaff returns how many staff members the plan allows, 0 = unlimited.
func (p Plan) MaxStaff() int {
	switch p {
	case PlanFree:
		return 1
	case PlanPro:
		return 5
	default:
		return 0
	}
}

type Shop struct {
	ID                   string       `json:"id"`
	Name                 string       `json:"name"`
	Plan                 Plan         `json:"plan"`
	RequiresConfirmation bool         `json:"requires_confirmation"`
	Calendar             ShopCalendar `json:"calendar"`
}

// OperatingHours is one weekday of a shop's weekly template.
type OperatingHours struct {
	Weekday time.Weekday       `json:"weekday"`
	Open    timegrid.ClockTime `json:"open"`
	Close   timegrid.ClockTime `json:"close"`
	Closed  bool               `json:"closed"`
}

type ShopCalendar map[time.Weekday]OperatingHours

// Day returns the operating hours for the weekday; a missing entry is a closed day.
func (c ShopCalendar) Day(wd time.Weekday) (OperatingHours, bool) {
	oh, ok := c[wd]
	if !ok || oh.Closed || oh.Close <= oh.Open {
		return OperatingHours{Weekday: wd, Closed: true}, false
	}
	return oh, true
}

type StaffMember struct {
	ID       string        `json:"id"`
	ShopID   string        `json:"shop_id"`
	Name     string        `json:"name"`
	Active   bool          `json:"active"`
	Schedule StaffSchedule `json:"schedule"`
}

// WorkingHours is a staff member's override for one weekday.
type WorkingHours struct {
	Weekday   time.Weekday       `json:"weekday"`
	Start     timegrid.ClockTime `json:"start"`
	End       timegrid.ClockTime `json:"end"`
	IsWorking bool               `json:"is_working"`
}

type StaffSchedule map[time.Weekday]WorkingHours

// Entry returns the override for wd if one is configured.
func (s StaffSchedule) Entry(wd time.Weekday) (WorkingHours, bool) {
	wh, ok := s[wd]
	return wh, ok
}

type Service struct {
	ID               string   `json:"id"`
	ShopID           string   `json:"shop_id"`
	Name             string   `json:"name"`
	DurationMinutes  int      `json:"duration_minutes"`
	Price            int64    `json:"price"`
	EligibleStaffIDs []string `json:"eligible_staff_ids"`
	Active           bool     `json:"active"`
}

// AllowsStaff reports whether staffID may perform the service. An empty list allows everyone.
func (s *Service) AllowsStaff(staffID string) bool {
	if len(s.EligibleStaffIDs) == 0 {
		return true
	}
	for _, id := range s.EligibleStaffIDs {
		if id == staffID {
			return true
		}
	}
	return false
}

// EligibleStaff filters roster to active members allowed for the service, ordered by ID.
func (s *Service) EligibleStaff(roster []*StaffMember) []*StaffMember {
	out := make([]*StaffMember, 0, len(roster))
	for _, member := range roster {
		if member == nil || !member.Active {
			continue
		}
		if s.AllowsStaff(member.ID) {
			out = append(out, member)
		}
	}
	SortStaff(out)
	return out
}

func SortStaff(staff []*StaffMember) {
	sort.SliceStable(staff, func(i, j int) bool { return staff[i].ID < staff[j].ID })
}

type Client struct {
	ID        string    `json:"id"`
	ShopID    string    `json:"shop_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone"`
	CreatedAt time.Time `json:"created_at"`
}
