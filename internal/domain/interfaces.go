package domain

import (
	"context"
	"time"

	"zapis/internal/models"
)

// CatalogReader exposes shop configuration. The core never writes it.
type CatalogReader interface {
	GetShop(ctx context.Context, id string) (*models.Shop, error)
	GetService(ctx context.Context, id string) (*models.Service, error)
	ListStaff(ctx context.Context, shopID string) ([]*models.StaffMember, error)
}

type Repository interface {
	CatalogReader

	GetClient(ctx context.Context, id string) (*models.Client, error)

	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	ListAppointments(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, error)
	// AppointmentsForDay returns blocking appointments of the given staff that touch day.
	AppointmentsForDay(ctx context.Context, staffIDs []string, day time.Time) ([]*models.Appointment, error)
	CountBlocking(ctx context.Context, shopID string, from, to time.Time) (int, error)
	// CreateAppointmentWithLock re-checks overlap, upserts client (when non-nil) and
	// inserts appt in one transaction. Nothing is written on error.
	CreateAppointmentWithLock(ctx context.Context, appt *models.Appointment, client *models.Client) error
	UpdateAppointmentStatusWithVersion(ctx context.Context, id string, version int64, status models.AppointmentStatus) error
}

// StaffLocker serializes commits per staff member. Different staff never share a lock.
type StaffLocker interface {
	Lock(ctx context.Context, staffID string) (unlock func(), err error)
}

// SlotCacheKey identifies one GetAvailableSlots result. Generation is read
// before computing the slots so that a result computed during an invalidation
// is stored under the stale generation and never served.
type SlotCacheKey struct {
	ShopID     string
	ServiceID  string
	Staff      string
	Date       time.Time
	Generation int64
}

type SlotCache interface {
	Generation(ctx context.Context, shopID string, date time.Time) (int64, error)
	Get(ctx context.Context, key SlotCacheKey) ([]models.Slot, bool, error)
	Set(ctx context.Context, key SlotCacheKey, slots []models.Slot) error
	Invalidate(ctx context.Context, shopID string, date time.Time) error
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type LedgerWriter interface {
	UpsertAppointment(ctx context.Context, entry *models.LedgerEntry) error
	UpdateAppointmentStatus(ctx context.Context, appointmentID string, status models.AppointmentStatus) error
}

type SyncWorker interface {
	EnqueueTask(ctx context.Context, taskType string, appointmentID string, entry *models.LedgerEntry, status models.AppointmentStatus) error
}

type AvailabilityService interface {
	GetAvailableSlots(ctx context.Context, shopID string, staff models.StaffSelector, serviceID string, date time.Time) ([]models.Slot, error)
}

type BookingService interface {
	CommitBooking(ctx context.Context, req models.BookingRequest) (*models.Appointment, error)
	TransitionStatus(ctx context.Context, appointmentID string, status models.AppointmentStatus) (*models.Appointment, error)
	GetAppointment(ctx context.Context, id string) (*models.Appointment, error)
	ListAppointments(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, error)
}
