package availability

import (
	"testing"
	"time"
	_ "time/tzdata"

	"zapis/internal/domain"
	"zapis/internal/models"
	"zapis/internal/timegrid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2025-03-03 is a Monday.
var monday = time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)

func clock(s string) timegrid.ClockTime { return timegrid.MustClock(s) }

func testShop() *models.Shop {
	return &models.Shop{
		ID:   "shop-1",
		Plan: models.PlanPro,
		Calendar: models.ShopCalendar{
			time.Monday:   {Weekday: time.Monday, Open: clock("09:00"), Close: clock("18:00")},
			time.Tuesday:  {Weekday: time.Tuesday, Open: clock("09:00"), Close: clock("10:00")},
			time.Saturday: {Weekday: time.Saturday, Open: clock("10:00"), Close: clock("14:00")},
			time.Sunday:   {Weekday: time.Sunday, Closed: true},
		},
	}
}

func formatSlots(slots []models.Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, timegrid.Clock(s.Start).String())
	}
	return out
}

func TestWorkingWindow(t *testing.T) {
	shop := testShop()

	t.Run("InheritsShopHours", func(t *testing.T) {
		w, ok := WorkingWindow(shop, &models.StaffMember{ID: "s1"}, monday)
		require.True(t, ok)
		assert.Equal(t, clock("09:00").On(monday), w.Start)
		assert.Equal(t, clock("18:00").On(monday), w.End)
	})

	t.Run("StaffOverride", func(t *testing.T) {
		staff := &models.StaffMember{ID: "s1", Schedule: models.StaffSchedule{
			time.Monday: {Start: clock("12:00"), End: clock("20:00"), IsWorking: true},
		}}
		w, ok := WorkingWindow(shop, staff, monday)
		require.True(t, ok)
		assert.Equal(t, clock("12:00").On(monday), w.Start)
		assert.Equal(t, clock("20:00").On(monday), w.End)
	})

	t.Run("StaffDayOff", func(t *testing.T) {
		staff := &models.StaffMember{ID: "s1", Schedule: models.StaffSchedule{
			time.Monday: {Start: clock("09:00"), End: clock("18:00"), IsWorking: false},
		}}
		_, ok := WorkingWindow(shop, staff, monday)
		assert.False(t, ok)
	})

	t.Run("ShopClosed", func(t *testing.T) {
		_, ok := WorkingWindow(shop, &models.StaffMember{ID: "s1"}, monday.AddDate(0, 0, 6))
		assert.False(t, ok)
	})

	t.Run("NoEntryAnywhere", func(t *testing.T) {
		_, ok := WorkingWindow(shop, &models.StaffMember{ID: "s1"}, monday.AddDate(0, 0, 2))
		assert.False(t, ok)
	})
}

func TestResolver_Candidates(t *testing.T) {
	shop := testShop()
	roster := []*models.StaffMember{{ID: "s1", Active: true}}
	r := NewResolver(30)

	t.Run("MondayThirtyMinuteService", func(t *testing.T) {
		svc := &models.Service{ID: "cut", DurationMinutes: 30, Active: true}
		slots, err := r.Candidates(Query{Shop: shop, Roster: roster, Service: svc, Date: monday})
		require.NoError(t, err)

		got := formatSlots(slots)
		require.Len(t, got, 18)
		assert.Equal(t, "09:00", got[0])
		assert.Equal(t, "09:30", got[1])
		assert.Equal(t, "17:30", got[17])
	})

	t.Run("FortyFiveMinutesInOneHourWindow", func(t *testing.T) {
		svc := &models.Service{ID: "beard", DurationMinutes: 45, Active: true}
		slots, err := r.Candidates(Query{Shop: shop, Roster: roster, Service: svc, Date: monday.AddDate(0, 0, 1)})
		require.NoError(t, err)
		assert.Equal(t, []string{"09:00"}, formatSlots(slots))

		slots, err = NewResolver(15).Candidates(Query{Shop: shop, Roster: roster, Service: svc, Date: monday.AddDate(0, 0, 1)})
		require.NoError(t, err)
		assert.Equal(t, []string{"09:00", "09:15"}, formatSlots(slots))
	})

	t.Run("ServiceLongerThanWindow", func(t *testing.T) {
		svc := &models.Service{ID: "long", DurationMinutes: 90, Active: true}
		slots, err := r.Candidates(Query{Shop: shop, Roster: roster, Service: svc, Date: monday.AddDate(0, 0, 1)})
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("ClosedDayIsEmptyNotError", func(t *testing.T) {
		svc := &models.Service{ID: "cut", DurationMinutes: 30, Active: true}
		slots, err := r.Candidates(Query{Shop: shop, Roster: roster, Service: svc, Date: monday.AddDate(0, 0, 6)})
		require.NoError(t, err)
		assert.Empty(t, slots)
	})

	t.Run("SlotsFitWindow", func(t *testing.T) {
		svc := &models.Service{ID: "odd", DurationMinutes: 50, Active: true}
		slots, err := r.Candidates(Query{Shop: shop, Roster: roster, Service: svc, Date: monday})
		require.NoError(t, err)
		closeAt := clock("18:00").On(monday)
		for _, s := range slots {
			assert.False(t, timegrid.AddMinutes(s.Start, 50).After(closeAt), s.Start)
		}
		assert.Equal(t, "17:00", formatSlots(slots)[len(slots)-1])
	})

	t.Run("SpecificStaffNotEligible", func(t *testing.T) {
		svc := &models.Service{ID: "color", DurationMinutes: 30, EligibleStaffIDs: []string{"s9"}}
		_, err := r.Candidates(Query{Shop: shop, Roster: roster, Service: svc, Selector: models.SpecificStaff("s1"), Date: monday})
		assert.ErrorIs(t, err, domain.ErrStaffNotEligibleForService)
	})

	t.Run("NoEligibleStaffIsEmpty", func(t *testing.T) {
		svc := &models.Service{ID: "color", DurationMinutes: 30, EligibleStaffIDs: []string{"s9"}}
		slots, err := r.Candidates(Query{Shop: shop, Roster: roster, Service: svc, Date: monday})
		require.NoError(t, err)
		assert.Empty(t, slots)
	})
}

func TestResolver_AnyEligibleUnion(t *testing.T) {
	shop := testShop()
	roster := []*models.StaffMember{
		{ID: "s2", Active: true, Schedule: models.StaffSchedule{
			time.Monday: {Start: clock("13:00"), End: clock("15:00"), IsWorking: true},
		}},
		{ID: "s1", Active: true, Schedule: models.StaffSchedule{
			time.Monday: {Start: clock("09:00"), End: clock("11:00"), IsWorking: true},
		}},
		{ID: "s3", Active: true, Schedule: models.StaffSchedule{
			time.Monday: {Start: clock("10:00"), End: clock("12:00"), IsWorking: true},
		}},
	}
	svc := &models.Service{ID: "cut", DurationMinutes: 60}

	slots, err := NewResolver(30).Candidates(Query{Shop: shop, Roster: roster, Service: svc, Date: monday})
	require.NoError(t, err)

	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "13:00", "13:30", "14:00"}, formatSlots(slots))

	// 10:00 is held by both s1 and s3, listed by id and without duplicate slots.
	for _, s := range slots {
		if timegrid.Clock(s.Start).String() == "10:00" {
			assert.Equal(t, []string{"s1", "s3"}, s.StaffIDs)
		}
	}
}

func TestResolver_StaffForSlot(t *testing.T) {
	shop := testShop()
	roster := []*models.StaffMember{{ID: "s1", Active: true}, {ID: "s2", Active: true}}
	svc := &models.Service{ID: "cut", DurationMinutes: 30}
	r := NewResolver(30)
	q := Query{Shop: shop, Roster: roster, Service: svc, Date: monday}

	ids, err := r.StaffForSlot(q, clock("17:30").On(monday))
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids)

	_, err = r.StaffForSlot(q, clock("18:00").On(monday))
	assert.ErrorIs(t, err, domain.ErrSlotOutsideWorkingHours)

	_, err = r.StaffForSlot(q, clock("09:10").On(monday))
	assert.ErrorIs(t, err, domain.ErrSlotOutsideWorkingHours)

	sunday := monday.AddDate(0, 0, 6)
	_, err = r.StaffForSlot(Query{Shop: shop, Roster: roster, Service: svc, Date: sunday}, clock("10:00").On(sunday))
	assert.ErrorIs(t, err, domain.ErrShopClosedOnDate)
}

func TestResolver_DSTDaysKeepWallClock(t *testing.T) {
	lisbon, err := time.LoadLocation("Europe/Lisbon")
	require.NoError(t, err)

	shop := &models.Shop{ID: "shop-1", Plan: models.PlanPro, Calendar: models.ShopCalendar{
		time.Sunday: {Weekday: time.Sunday, Open: clock("09:00"), Close: clock("11:00")},
	}}
	roster := []*models.StaffMember{{ID: "s1", Active: true}}
	svc := &models.Service{ID: "cut", DurationMinutes: 30}
	r := NewResolver(30)

	for name, day := range map[string]time.Time{
		"SpringForward": time.Date(2026, 3, 29, 0, 0, 0, 0, lisbon),
		"FallBack":      time.Date(2026, 10, 25, 0, 0, 0, 0, lisbon),
	} {
		t.Run(name, func(t *testing.T) {
			q := Query{Shop: shop, Roster: roster, Service: svc, Date: day}

			slots, err := r.Candidates(q)
			require.NoError(t, err)
			assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, formatSlots(slots))

			closeAt := time.Date(day.Year(), day.Month(), day.Day(), 11, 0, 0, 0, lisbon)
			for _, s := range slots {
				assert.False(t, timegrid.AddMinutes(s.Start, 30).After(closeAt), s.Start)
			}

			ids, err := r.StaffForSlot(q, time.Date(day.Year(), day.Month(), day.Day(), 9, 0, 0, 0, lisbon))
			require.NoError(t, err)
			assert.Equal(t, []string{"s1"}, ids)

			_, err = r.StaffForSlot(q, time.Date(day.Year(), day.Month(), day.Day(), 10, 45, 0, 0, lisbon))
			assert.ErrorIs(t, err, domain.ErrSlotOutsideWorkingHours)

			// тот же момент, пришедший в UTC, попадает в сетку
			ids, err = r.StaffForSlot(q, time.Date(day.Year(), day.Month(), day.Day(), 10, 30, 0, 0, lisbon).UTC())
			require.NoError(t, err)
			assert.Equal(t, []string{"s1"}, ids)
		})
	}
}
