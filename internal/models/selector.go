package models

import (
	"encoding/json"
	"strings"
	"time"
)

// AnyStaff is the wire value for "any eligible staff member".
const AnyStaff = "any"

// StaffSelector is either a specific staff member or any eligible one.
// The zero value selects any eligible staff member.
type StaffSelector struct {
	staffID string
}

func SpecificStaff(id string) StaffSelector {
	return StaffSelector{staffID: strings.TrimSpace(id)}
}

func AnyEligibleStaff() StaffSelector {
	return StaffSelector{}
}

// ParseStaffSelector treats "", "any" and "null" as AnyEligible.
func ParseStaffSelector(raw string) StaffSelector {
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", AnyStaff, "null":
		return AnyEligibleStaff()
	}
	return SpecificStaff(raw)
}

func (s StaffSelector) IsAny() bool {
	return s.staffID == ""
}

// StaffID returns the selected id and false for AnyEligible.
func (s StaffSelector) StaffID() (string, bool) {
	return s.staffID, s.staffID != ""
}

func (s StaffSelector) String() string {
	if s.IsAny() {
		return AnyStaff
	}
	return s.staffID
}

func (s StaffSelector) MarshalJSON() ([]byte, error) {
	if s.IsAny() {
		return []byte("null"), nil
	}
	return json.Marshal(s.staffID)
}

func (s *StaffSelector) UnmarshalJSON(data []byte) error {
	var raw *string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw == nil {
		*s = AnyEligibleStaff()
		return nil
	}
	*s = ParseStaffSelector(*raw)
	return nil
}

// Slot is a bookable start time together with the staff members free at that time.
type Slot struct {
	Start    time.Time `json:"start"`
	StaffIDs []string  `json:"staff_ids"`
}
