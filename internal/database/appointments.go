package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"zapis/internal/domain"
	"zapis/internal/models"
	"zapis/internal/timegrid"

	"github.com/google/uuid"
)

const appointmentColumns = `id, shop_id, staff_id, service_id, client_id, start_at, end_at,
                 status, notes, price_at_booking, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (db *DB) scanAppointment(row rowScanner) (*models.Appointment, error) {
	var (
		appt       models.Appointment
		start, end int64
		status     string
	)
	err := row.Scan(&appt.ID, &appt.ShopID, &appt.StaffID, &appt.ServiceID, &appt.ClientID,
		&start, &end, &status, &appt.Notes, &appt.PriceAtBooking,
		&appt.CreatedAt, &appt.UpdatedAt, &appt.Version)
	if err != nil {
		return nil, err
	}
	appt.StartTime = time.Unix(start, 0).In(db.loc)
	appt.EndTime = time.Unix(end, 0).In(db.loc)
	appt.Status = models.AppointmentStatus(status)
	return &appt, nil
}

func blockingPlaceholders() (string, []interface{}) {
	args := make([]interface{}, 0, len(models.BlockingStatuses))
	for _, st := range models.BlockingStatuses {
		args = append(args, string(st))
	}
	return strings.TrimSuffix(strings.Repeat("?,", len(args)), ","), args
}

// CreateAppointmentWithLock проверяет пересечение с активными записями мастера,
// сохраняет клиента (если передан) и вставляет запись в одной транзакции.
// При пересечении возвращает ErrSlotNoLongerAvailable и ничего не пишет.
func (db *DB) CreateAppointmentWithLock(ctx context.Context, appt *models.Appointment, client *models.Client) error {
	if appt.StaffID == "" {
		return fmt.Errorf("%w: staff id is required", domain.ErrInvalidRequest)
	}
	if !appt.EndTime.After(appt.StartTime) {
		return fmt.Errorf("%w: end time must be after start time", domain.ErrInvalidRequest)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// 1. Check overlap inside transaction
	in, args := blockingPlaceholders()
	queryCount := `SELECT COUNT(*) FROM appointments
                   WHERE staff_id = ? AND start_at < ? AND end_at > ? AND status IN (` + in + `)`
	countArgs := append([]interface{}{appt.StaffID, appt.EndTime.Unix(), appt.StartTime.Unix()}, args...)

	var overlapping int
	if err := tx.QueryRowContext(ctx, queryCount, countArgs...).Scan(&overlapping); err != nil {
		return fmt.Errorf("failed to check overlap in tx: %w", err)
	}
	if overlapping > 0 {
		return domain.ErrSlotNoLongerAvailable
	}

	// 2. Upsert client
	if client != nil {
		if err := upsertClient(ctx, tx, client); err != nil {
			return err
		}
		appt.ClientID = client.ID
	}

	// 3. Create appointment
	if appt.ID == "" {
		appt.ID = uuid.NewString()
	}
	now := time.Now()
	queryInsert := `INSERT INTO appointments (` + appointmentColumns + `)
                    VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, queryInsert,
		appt.ID,
		appt.ShopID,
		appt.StaffID,
		appt.ServiceID,
		appt.ClientID,
		appt.StartTime.Unix(),
		appt.EndTime.Unix(),
		string(appt.Status),
		appt.Notes,
		appt.PriceAtBooking,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert appointment in tx: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit appointment: %w", err)
	}

	appt.CreatedAt = now
	appt.UpdatedAt = now
	appt.Version = 1
	return nil
}

func (db *DB) GetAppointment(ctx context.Context, id string) (*models.Appointment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = ?`, id)
	appt, err := db.scanAppointment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrAppointmentNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return appt, nil
}

// UpdateAppointmentStatusWithVersion меняет статус, если версия не изменилась и
// текущий статус допускает переход.
func (db *DB) UpdateAppointmentStatusWithVersion(ctx context.Context, id string, fromVersion int64, status models.AppointmentStatus) error {
	var from []interface{}
	for _, st := range models.AllStatuses {
		if st.CanTransitionTo(status) {
			from = append(from, string(st))
		}
	}
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing transitions to %s", domain.ErrInvalidStateTransition, status)
	}

	query := `UPDATE appointments SET status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status IN (` + strings.TrimSuffix(strings.Repeat("?,", len(from)), ",") + `)`
	args := append([]interface{}{string(status), time.Now(), id, fromVersion}, from...)

	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update appointment status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows > 0 {
		return nil
	}

	current, err := db.GetAppointment(ctx, id)
	if err != nil {
		return err
	}
	if current.Version != fromVersion {
		return domain.ErrConcurrentModification
	}
	return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidStateTransition, current.Status, status)
}

// ListAppointments applies filter and orders by start time.
func (db *DB) ListAppointments(ctx context.Context, filter models.AppointmentFilter) ([]*models.Appointment, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ShopID != "" {
		where = append(where, "shop_id = ?")
		args = append(args, filter.ShopID)
	}
	if filter.StaffID != "" {
		where = append(where, "staff_id = ?")
		args = append(args, filter.StaffID)
	}
	if filter.ClientID != "" {
		where = append(where, "client_id = ?")
		args = append(args, filter.ClientID)
	}
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+strings.TrimSuffix(strings.Repeat("?,", len(filter.Statuses)), ",")+")")
		for _, st := range filter.Statuses {
			args = append(args, string(st))
		}
	}
	if !filter.From.IsZero() {
		where = append(where, "end_at > ?")
		args = append(args, filter.From.Unix())
	}
	if !filter.To.IsZero() {
		where = append(where, "start_at < ?")
		args = append(args, filter.To.Unix())
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY start_at ASC, staff_id ASC"

	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, limit, filter.Offset)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	defer rows.Close()

	var appts []*models.Appointment
	for rows.Next() {
		appt, err := db.scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

// AppointmentsForDay returns blocking appointments of staffIDs that overlap the calendar day.
func (db *DB) AppointmentsForDay(ctx context.Context, staffIDs []string, day time.Time) ([]*models.Appointment, error) {
	if len(staffIDs) == 0 {
		return nil, nil
	}
	from := timegrid.StartOfDay(day)
	to := from.AddDate(0, 0, 1)

	in, statusArgs := blockingPlaceholders()
	query := `SELECT ` + appointmentColumns + ` FROM appointments
              WHERE staff_id IN (` + strings.TrimSuffix(strings.Repeat("?,", len(staffIDs)), ",") + `)
              AND start_at < ? AND end_at > ? AND status IN (` + in + `)
              ORDER BY start_at ASC`

	args := make([]interface{}, 0, len(staffIDs)+2+len(statusArgs))
	for _, id := range staffIDs {
		args = append(args, id)
	}
	args = append(args, to.Unix(), from.Unix())
	args = append(args, statusArgs...)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get appointments for day: %w", err)
	}
	defer rows.Close()

	var appts []*models.Appointment
	for rows.Next() {
		appt, err := db.scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, appt)
	}
	return appts, rows.Err()
}

// CountBlocking counts blocking appointments of a shop starting in [from, to).
func (db *DB) CountBlocking(ctx context.Context, shopID string, from, to time.Time) (int, error) {
	in, statusArgs := blockingPlaceholders()
	query := `SELECT COUNT(*) FROM appointments
              WHERE shop_id = ? AND start_at >= ? AND start_at < ? AND status IN (` + in + `)`
	args := append([]interface{}{shopID, from.Unix(), to.Unix()}, statusArgs...)

	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count appointments: %w", err)
	}
	return count, nil
}
