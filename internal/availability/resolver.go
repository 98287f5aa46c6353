package availability

import (
	"fmt"
	"sort"
	"time"

	"zapis/internal/domain"
	"zapis/internal/models"
	"zapis/internal/timegrid"
)

// Query describes one availability computation. All times are shop-local wall clock.
type Query struct {
	Shop     *models.Shop
	Roster   []*models.StaffMember
	Service  *models.Service
	Selector models.StaffSelector
	Date     time.Time
}

// Resolver builds candidate slots from shop hours, staff schedules and the service duration.
// It holds no state besides the step and is safe for concurrent use.
type Resolver struct {
	stepMinutes int
}

func NewResolver(stepMinutes int) *Resolver {
	if stepMinutes <= 0 {
		stepMinutes = models.DefaultSlotStepMinutes
	}
	return &Resolver{stepMinutes: stepMinutes}
}

// WorkingWindow returns the working-hours window of staff on date.
// A staff entry marked as working wins; an entry marked as not working is a day off;
// a missing entry falls back to the shop calendar.
func WorkingWindow(shop *models.Shop, staff *models.StaffMember, date time.Time) (timegrid.Interval, bool) {
	wd := timegrid.ResolveWeekday(date)

	if staff != nil {
		if wh, ok := staff.Schedule.Entry(wd); ok {
			if !wh.IsWorking || wh.End <= wh.Start {
				return timegrid.Interval{}, false
			}
			return timegrid.Interval{Start: wh.Start.On(date), End: wh.End.On(date)}, true
		}
	}

	if shop == nil {
		return timegrid.Interval{}, false
	}
	oh, open := shop.Calendar.Day(wd)
	if !open {
		return timegrid.Interval{}, false
	}
	return timegrid.Interval{Start: oh.Open.On(date), End: oh.Close.On(date)}, true
}

// CandidateStaff resolves the selector against the roster.
// Specific selectors must name an active staff member allowed to perform the service.
func CandidateStaff(service *models.Service, roster []*models.StaffMember, sel models.StaffSelector) ([]*models.StaffMember, error) {
	eligible := service.EligibleStaff(roster)

	id, specific := sel.StaffID()
	if !specific {
		return eligible, nil
	}
	for _, member := range eligible {
		if member.ID == id {
			return []*models.StaffMember{member}, nil
		}
	}
	return nil, fmt.Errorf("%w: staff %s, service %s", domain.ErrStaffNotEligibleForService, id, service.ID)
}

// Starts steps through window on the wall clock from its open time and keeps every t
// with t+duration <= close.
func (r *Resolver) Starts(window timegrid.Interval, durationMinutes int) []time.Time {
	if durationMinutes <= 0 || window.IsEmpty() {
		return nil
	}
	open := timegrid.Clock(window.Start)
	var starts []time.Time
	for k := 0; ; k++ {
		t := (open + timegrid.ClockTime(k*r.stepMinutes)).On(window.Start)
		if timegrid.AddMinutes(t, durationMinutes).After(window.End) {
			break
		}
		starts = append(starts, t)
	}
	return starts
}

// Fits reports whether start is a grid point of window with room for the service.
// The grid is measured in wall-clock minutes of the window's location.
func (r *Resolver) Fits(window timegrid.Interval, start time.Time, durationMinutes int) bool {
	if !window.Covers(timegrid.NewInterval(start, durationMinutes)) {
		return false
	}
	local := start.In(window.Start.Location())
	if !timegrid.StartOfDay(local).Equal(timegrid.StartOfDay(window.Start)) {
		return false
	}
	offset := int(timegrid.Clock(local) - timegrid.Clock(window.Start))
	return offset >= 0 && offset%r.stepMinutes == 0
}

// Candidates returns ascending, deduplicated slots for the query, each listing the staff
// (ordered by ID) whose window holds it. Existing appointments are not considered.
func (r *Resolver) Candidates(q Query) ([]models.Slot, error) {
	if q.Service == nil {
		return nil, domain.ErrServiceNotFound
	}
	staff, err := CandidateStaff(q.Service, q.Roster, q.Selector)
	if err != nil {
		return nil, err
	}

	byStart := make(map[int64]*models.Slot)
	for _, member := range staff {
		window, ok := WorkingWindow(q.Shop, member, q.Date)
		if !ok {
			continue
		}
		for _, t := range r.Starts(window, q.Service.DurationMinutes) {
			key := t.Unix()
			slot, exists := byStart[key]
			if !exists {
				slot = &models.Slot{Start: t}
				byStart[key] = slot
			}
			slot.StaffIDs = append(slot.StaffIDs, member.ID)
		}
	}

	slots := make([]models.Slot, 0, len(byStart))
	for _, slot := range byStart {
		slots = append(slots, *slot)
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })
	return slots, nil
}

// Available is Candidates pruned against existing appointments.
func (r *Resolver) Available(q Query, existing []*models.Appointment) ([]models.Slot, error) {
	slots, err := r.Candidates(q)
	if err != nil {
		return nil, err
	}
	return FilterConflicts(slots, q.Service.DurationMinutes, existing), nil
}

// StaffForSlot returns the candidate staff (ordered by ID) whose working window holds the
// slot at start. It fails with ErrShopClosedOnDate when nobody works that day and with
// ErrSlotOutsideWorkingHours when the slot does not fit any window.
func (r *Resolver) StaffForSlot(q Query, start time.Time) ([]string, error) {
	if q.Service == nil {
		return nil, domain.ErrServiceNotFound
	}
	staff, err := CandidateStaff(q.Service, q.Roster, q.Selector)
	if err != nil {
		return nil, err
	}

	var (
		working bool
		ids     []string
	)
	for _, member := range staff {
		window, ok := WorkingWindow(q.Shop, member, q.Date)
		if !ok {
			continue
		}
		working = true
		if r.Fits(window, start, q.Service.DurationMinutes) {
			ids = append(ids, member.ID)
		}
	}

	switch {
	case !working:
		return nil, fmt.Errorf("%w: %s", domain.ErrShopClosedOnDate, q.Date.Format(timegrid.DateLayout))
	case len(ids) == 0:
		return nil, fmt.Errorf("%w: %s", domain.ErrSlotOutsideWorkingHours, start.Format("2006-01-02 15:04"))
	}
	return ids, nil
}
