package models

import (
	"time"

	"zapis/internal/timegrid"
)

type AppointmentStatus string

const (
	StatusPending           AppointmentStatus = "pending"
	StatusConfirmed         AppointmentStatus = "confirmed"
	StatusCompleted         AppointmentStatus = "completed"
	StatusCancelledByClient AppointmentStatus = "cancelled_by_client"
	StatusCancelledByShop   AppointmentStatus = "cancelled_by_shop"
	StatusNoShow            AppointmentStatus = "no_show"
)

// AllStatuses in lifecycle order.
var AllStatuses = []AppointmentStatus{
	StatusPending,
	StatusConfirmed,
	StatusCompleted,
	StatusCancelledByClient,
	StatusCancelledByShop,
	StatusNoShow,
}

// BlockingStatuses occupy the staff member's time.
var BlockingStatuses = []AppointmentStatus{StatusPending, StatusConfirmed, StatusCompleted}

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelledByClient, StatusCancelledByShop},
	StatusConfirmed: {StatusCompleted, StatusCancelledByClient, StatusCancelledByShop, StatusNoShow},
}

func ParseStatus(s string) (AppointmentStatus, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

func (s AppointmentStatus) IsValid() bool {
	_, ok := ParseStatus(string(s))
	return ok
}

// IsBlocking reports whether an appointment in this status blocks its interval.
func (s AppointmentStatus) IsBlocking() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted:
		return true
	}
	return false
}

func (s AppointmentStatus) IsTerminal() bool {
	return s.IsValid() && len(transitions[s]) == 0
}

func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Appointment stores only references; display names are resolved at the edges.
type Appointment struct {
	ID             string            `json:"id"`
	ShopID         string            `json:"shop_id"`
	StaffID        string            `json:"staff_id"`
	ServiceID      string            `json:"service_id"`
	ClientID       string            `json:"client_id"`
	StartTime      time.Time         `json:"start_time"`
	EndTime        time.Time         `json:"end_time"`
	Status         AppointmentStatus `json:"status"`
	Notes          string            `json:"notes,omitempty"`
	PriceAtBooking int64             `json:"price_at_booking"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Version        int64             `json:"version"`
}

func (a *Appointment) Interval() timegrid.Interval {
	return timegrid.Interval{Start: a.StartTime, End: a.EndTime}
}

// Blocks reports whether a holds [start, end) for its staff member.
func (a *Appointment) Blocks(start, end time.Time) bool {
	return a.Status.IsBlocking() && timegrid.IntervalsOverlap(a.StartTime, a.EndTime, start, end)
}

// AppointmentFilter drives read queries; zero values are ignored.
type AppointmentFilter struct {
	ShopID   string
	StaffID  string
	ClientID string
	Statuses []AppointmentStatus
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}
