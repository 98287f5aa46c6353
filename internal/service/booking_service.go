package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"zapis/internal/availability"
	"zapis/internal/domain"
	"zapis/internal/events"
	"zapis/internal/metrics"
	"zapis/internal/models"
	"zapis/internal/timegrid"

	"github.com/rs/zerolog"
)

// BookingOptions are the booking.* settings the commit path needs.
type BookingOptions struct {
	MaxAdvanceDays int
	Location       *time.Location
	Now            func() time.Time
}

type BookingService struct {
	repo         domain.Repository
	locker       domain.StaffLocker
	cache        domain.SlotCache
	eventBus     domain.EventPublisher
	sheetsWorker domain.SyncWorker
	resolver     *availability.Resolver
	opts         BookingOptions
	logger       *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	locker domain.StaffLocker,
	cache domain.SlotCache,
	eventBus domain.EventPublisher,
	sheetsWorker domain.SyncWorker,
	resolver *availability.Resolver,
	opts BookingOptions,
	logger *zerolog.Logger,
) *BookingService {
	if opts.MaxAdvanceDays <= 0 {
		opts.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BookingService{
		repo:         repo,
		locker:       locker,
		cache:        cache,
		eventBus:     eventBus,
		sheetsWorker: sheetsWorker,
		resolver:     resolver,
		opts:         opts,
		logger:       logger,
	}
}

// CommitBooking re-validates the requested slot and persists the appointment with the
// first free staff member. Nothing is written when an error is returned.
func (s *BookingService) CommitBooking(ctx context.Context, req models.BookingRequest) (*models.Appointment, error) {
	started := time.Now()
	appt, err := s.commit(ctx, req)
	metrics.ObserveCommit(time.Since(started).Seconds())
	metrics.IncBooking(bookingResult(err))
	if err != nil {
		return nil, err
	}

	day := shopDay(appt.StartTime, s.opts.Location)
	s.invalidate(ctx, appt.ShopID, day)
	s.publishEvent(events.EventAppointmentCreated, appt, "")
	s.enqueueSync(ctx, models.SyncTaskUpsert, appt)

	s.logger.Info().
		Str("appointment_id", appt.ID).
		Str("shop_id", appt.ShopID).
		Str("staff_id", appt.StaffID).
		Time("start", appt.StartTime).
		Str("status", string(appt.Status)).
		Msg("Appointment committed")
	return appt, nil
}

func (s *BookingService) commit(ctx context.Context, req models.BookingRequest) (*models.Appointment, error) {
	client := req.Client.Normalize()
	if missing := client.Missing(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidClientDetails, strings.Join(missing, ", "))
	}
	if req.StartTime.IsZero() {
		return nil, fmt.Errorf("%w: start time is required", domain.ErrInvalidRequest)
	}

	start := req.StartTime.In(s.opts.Location)
	day := shopDay(start, s.opts.Location)

	q, err := loadQuery(ctx, s.repo, req.ShopID, req.ServiceID, req.Staff, day)
	if err != nil {
		return nil, err
	}

	if err := s.checkQuota(ctx, q.Shop, start); err != nil {
		return nil, err
	}
	if err := s.checkHorizon(start); err != nil {
		return nil, err
	}

	candidates, err := s.resolver.StaffForSlot(q, start)
	if err != nil {
		return nil, err
	}

	details, err := s.resolveClient(ctx, q.Shop.ID, client)
	if err != nil {
		return nil, err
	}

	status := models.StatusConfirmed
	if q.Shop.RequiresConfirmation {
		status = models.StatusPending
	}

	for _, staffID := range candidates {
		appt := &models.Appointment{
			ShopID:         q.Shop.ID,
			StaffID:        staffID,
			ServiceID:      q.Service.ID,
			StartTime:      start,
			EndTime:        timegrid.AddMinutes(start, q.Service.DurationMinutes),
			Status:         status,
			Notes:          strings.TrimSpace(req.Notes),
			PriceAtBooking: q.Service.Price,
		}
		clientRow := *details
		err := s.commitForStaff(ctx, appt, &clientRow, day)
		if err == nil {
			return appt, nil
		}
		if !errors.Is(err, domain.ErrSlotNoLongerAvailable) {
			return nil, err
		}
		s.logger.Debug().Str("staff_id", staffID).Time("start", start).Msg("staff busy, trying next")
	}
	return nil, fmt.Errorf("%w: %s", domain.ErrSlotNoLongerAvailable, start.Format("2006-01-02 15:04"))
}

// commitForStaff holds the staff lock across the re-check and the insert.
// The client row is written in the same transaction as the appointment.
func (s *BookingService) commitForStaff(ctx context.Context, appt *models.Appointment, client *models.Client, day time.Time) error {
	unlock, err := s.locker.Lock(ctx, appt.StaffID)
	if err != nil {
		return fmt.Errorf("failed to lock staff %s: %w", appt.StaffID, err)
	}
	defer unlock()

	existing, err := s.repo.AppointmentsForDay(ctx, []string{appt.StaffID}, day)
	if err != nil {
		return err
	}
	if !availability.IsFree(appt.StaffID, appt.StartTime, int(appt.Interval().Duration()/time.Minute), existing) {
		return domain.ErrSlotNoLongerAvailable
	}
	return s.repo.CreateAppointmentWithLock(ctx, appt, client)
}

func (s *BookingService) checkQuota(ctx context.Context, shop *models.Shop, start time.Time) error {
	limit := shop.Plan.MonthlyBookingLimit()
	if limit <= 0 {
		return nil
	}
	monthStart := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, start.Location())
	count, err := s.repo.CountBlocking(ctx, shop.ID, monthStart, monthStart.AddDate(0, 1, 0))
	if err != nil {
		return err
	}
	if count >= limit {
		return fmt.Errorf("%w: plan %s allows %d per month", domain.ErrBookingQuotaExceeded, shop.Plan, limit)
	}
	return nil
}

func (s *BookingService) checkHorizon(start time.Time) error {
	now := s.opts.Now()
	if start.Before(now) {
		return fmt.Errorf("%w: %s is in the past", domain.ErrSlotOutsideWorkingHours, start.Format(time.RFC3339))
	}
	if start.After(now.AddDate(0, 0, s.opts.MaxAdvanceDays)) {
		return fmt.Errorf("%w: more than %d days ahead", domain.ErrSlotOutsideWorkingHours, s.opts.MaxAdvanceDays)
	}
	return nil
}

// resolveClient checks a returning client's id against the shop and builds the row to
// upsert. It does not write.
func (s *BookingService) resolveClient(ctx context.Context, shopID string, details models.ClientDetails) (*models.Client, error) {
	if details.ID != "" {
		existing, err := s.repo.GetClient(ctx, details.ID)
		if err != nil {
			return nil, err
		}
		if existing.ShopID != shopID {
			return nil, fmt.Errorf("%w: client %s belongs to another shop", domain.ErrInvalidClientDetails, details.ID)
		}
	}
	return &models.Client{
		ID:     details.ID,
		ShopID: shopID,
		Name:   details.Name,
		Email:  details.Email,
		Phone:  details.Phone,
	}, nil
}

// TransitionStatus moves an appointment along the lifecycle graph.
func (s *BookingService) TransitionStatus(ctx context.Context, appointmentID string, status models.AppointmentStatus) (*models.Appointment, error) {
	if !status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, status)
	}

	appt, err := s.repo.GetAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	previous := appt.Status

	if !previous.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, previous, status)
	}
	if status == models.StatusCompleted && s.opts.Now().Before(appt.EndTime) {
		return nil, fmt.Errorf("%w: appointment ends at %s", domain.ErrInvalidStateTransition, appt.EndTime.Format(time.RFC3339))
	}

	if err := s.repo.UpdateAppointmentStatusWithVersion(ctx, appt.ID, appt.Version, status); err != nil {
		return nil, err
	}
	metrics.IncTransition(string(status))

	updated, err := s.repo.GetAppointment(ctx, appt.ID)
	if err != nil {
		s.logger.Error().Err(err).Str("appointment_id", appt.ID).Msg("reload after transition failed")
		updated = appt
		updated.Status = status
		updated.Version++
	}

	s.invalidate(ctx, updated.ShopID, shopDay(updated.StartTime.In(s.opts.Location), s.opts.Location))
	s.publishEvent(events.EventForStatus(status), updated, previous)
	s.enqueueSync(ctx, models.SyncTaskUpdateStatus, updated)
	return updated, nil
}

func (s *BookingService) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	return s.repo.GetAppointment(ctx, id)
}

func (s *BookingService) ListAppointments(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, error) {
	if filter.Limit <= 0 {
		filter.Limit = models.DefaultListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	for _, st := range filter.Statuses {
		if !st.IsValid() {
			return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, st)
		}
	}
	return s.repo.ListAppointments(ctx, filter)
}

// LedgerEntry resolves display names for appointment. Missing catalog rows leave names empty.
func (s *BookingService) LedgerEntry(ctx context.Context, appt *models.Appointment) *models.LedgerEntry {
	entry := &models.LedgerEntry{Appointment: *appt}
	if shop, err := s.repo.GetShop(ctx, appt.ShopID); err == nil {
		entry.ShopName = shop.Name
	}
	if svc, err := s.repo.GetService(ctx, appt.ServiceID); err == nil {
		entry.ServiceName = svc.Name
	}
	if staff, err := s.repo.ListStaff(ctx, appt.ShopID); err == nil {
		for _, member := range staff {
			if member.ID == appt.StaffID {
				entry.StaffName = member.Name
				break
			}
		}
	}
	if client, err := s.repo.GetClient(ctx, appt.ClientID); err == nil {
		entry.ClientName = client.Name
		entry.ClientPhone = client.Phone
	}
	return entry
}

func (s *BookingService) invalidate(ctx context.Context, shopID string, day time.Time) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, shopID, day); err != nil {
		s.logger.Error().Err(err).Str("shop_id", shopID).Time("day", day).Msg("slot cache invalidate error")
	}
}

func (s *BookingService) publishEvent(eventType string, appt *models.Appointment, previous models.AppointmentStatus) {
	if s.eventBus == nil {
		return
	}

	payload := events.NewAppointmentPayload(appt, previous)
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("appointment_id", appt.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, taskType string, appt *models.Appointment) {
	if s.sheetsWorker == nil {
		return
	}

	var status models.AppointmentStatus
	if taskType == models.SyncTaskUpdateStatus {
		status = appt.Status
	}

	if err := s.sheetsWorker.EnqueueTask(ctx, taskType, appt.ID, s.LedgerEntry(ctx, appt), status); err != nil {
		s.logger.Error().Err(err).Str("appointment_id", appt.ID).Str("task", taskType).Msg("sheets enqueue error")
	}
}

func bookingResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrSlotNoLongerAvailable):
		return "conflict"
	case errors.Is(err, domain.ErrInvalidClientDetails), errors.Is(err, domain.ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, domain.ErrBookingQuotaExceeded):
		return "quota"
	case errors.Is(err, domain.ErrShopNotFound), errors.Is(err, domain.ErrServiceNotFound),
		errors.Is(err, domain.ErrStaffNotEligibleForService), errors.Is(err, domain.ErrShopClosedOnDate),
		errors.Is(err, domain.ErrSlotOutsideWorkingHours):
		return "rejected"
	default:
		return "error"
	}
}
