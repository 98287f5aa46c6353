package availability

import (
	"time"

	"zapis/internal/models"
	"zapis/internal/timegrid"
)

// IsFree reports whether staffID has no blocking appointment overlapping
// [start, start+durationMinutes). The candidate's own duration is used, not the
// durations of the services already booked.
func IsFree(staffID string, start time.Time, durationMinutes int, existing []*models.Appointment) bool {
	end := timegrid.AddMinutes(start, durationMinutes)
	for _, appt := range existing {
		if appt == nil || appt.StaffID != staffID {
			continue
		}
		if appt.Blocks(start, end) {
			return false
		}
	}
	return true
}

// FirstFree returns the first staff ID, in the given order, that is free at start.
func FirstFree(staffIDs []string, start time.Time, durationMinutes int, existing []*models.Appointment) (string, bool) {
	for _, id := range staffIDs {
		if IsFree(id, start, durationMinutes, existing) {
			return id, true
		}
	}
	return "", false
}

// FilterConflicts drops busy staff from every slot and drops slots nobody can take.
func FilterConflicts(slots []models.Slot, durationMinutes int, existing []*models.Appointment) []models.Slot {
	out := make([]models.Slot, 0, len(slots))
	for _, slot := range slots {
		free := make([]string, 0, len(slot.StaffIDs))
		for _, id := range slot.StaffIDs {
			if IsFree(id, slot.Start, durationMinutes, existing) {
				free = append(free, id)
			}
		}
		if len(free) == 0 {
			continue
		}
		out = append(out, models.Slot{Start: slot.Start, StaffIDs: free})
	}
	return out
}
