package domain

import "errors"

// Configuration errors: the request references stale or invalid catalog data.
var (
	ErrShopNotFound               = errors.New("shop not found")
	ErrServiceNotFound            = errors.New("service not found")
	ErrStaffNotEligibleForService = errors.New("staff not eligible for service")
	ErrShopClosedOnDate           = errors.New("shop closed on date")
)

// Race errors: the caller should re-read availability and resubmit.
var (
	ErrSlotNoLongerAvailable  = errors.New("slot no longer available")
	ErrConcurrentModification = errors.New("concurrent modification")
)

// Validation errors.
var (
	ErrInvalidClientDetails    = errors.New("invalid client details")
	ErrInvalidStateTransition  = errors.New("invalid state transition")
	ErrSlotOutsideWorkingHours = errors.New("slot outside working hours")
	ErrBookingQuotaExceeded    = errors.New("monthly booking quota exceeded")
	ErrInvalidRequest          = errors.New("invalid request")
)

var ErrAppointmentNotFound = errors.New("appointment not found")
