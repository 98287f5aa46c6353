package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"zapis/internal/domain"
	"zapis/internal/models"
	"zapis/internal/timegrid"
)

// SyncCatalog заменяет конфигурацию салонов из каталога одной транзакцией.
// Салоны, отсутствующие в каталоге, не удаляются: на них могут ссылаться записи.
func (db *DB) SyncCatalog(ctx context.Context, catalog *models.Catalog) error {
	if err := catalog.Validate(); err != nil {
		return fmt.Errorf("invalid catalog: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, entry := range catalog.Shops {
		shop, staff, services, err := entry.ToShop()
		if err != nil {
			return err
		}
		if err := upsertShop(ctx, tx, shop, staff, services); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit catalog: %w", err)
	}

	if db.logger != nil {
		db.logger.Info().Int("shops", len(catalog.Shops)).Msg("Catalog synchronized")
	}
	return nil
}

func upsertShop(ctx context.Context, tx *sql.Tx, shop *models.Shop, staff []*models.StaffMember, services []*models.Service) error {
	_, err := tx.ExecContext(ctx, `
        INSERT INTO shops (id, name, plan, requires_confirmation, updated_at) VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            name = excluded.name,
            plan = excluded.plan,
            requires_confirmation = excluded.requires_confirmation,
            updated_at = excluded.updated_at`,
		shop.ID, shop.Name, string(shop.Plan), shop.RequiresConfirmation, time.Now())
	if err != nil {
		return fmt.Errorf("failed to upsert shop %s: %w", shop.ID, err)
	}

	cleanup := []string{
		`DELETE FROM shop_hours WHERE shop_id = ?`,
		`DELETE FROM staff_hours WHERE staff_id IN (SELECT id FROM staff WHERE shop_id = ?)`,
		`DELETE FROM service_staff WHERE service_id IN (SELECT id FROM services WHERE shop_id = ?)`,
		`DELETE FROM staff WHERE shop_id = ?`,
		`DELETE FROM services WHERE shop_id = ?`,
	}
	for _, query := range cleanup {
		if _, err := tx.ExecContext(ctx, query, shop.ID); err != nil {
			return fmt.Errorf("failed to reset catalog of shop %s: %w", shop.ID, err)
		}
	}

	for wd, oh := range shop.Calendar {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO shop_hours (shop_id, weekday, open_minute, close_minute, closed) VALUES (?, ?, ?, ?, ?)`,
			shop.ID, int(wd), int(oh.Open), int(oh.Close), oh.Closed)
		if err != nil {
			return fmt.Errorf("failed to insert shop hours: %w", err)
		}
	}

	for _, member := range staff {
		_, err := tx.ExecContext(ctx, `INSERT INTO staff (id, shop_id, name, active) VALUES (?, ?, ?, ?)`,
			member.ID, shop.ID, member.Name, member.Active)
		if err != nil {
			return fmt.Errorf("failed to insert staff %s: %w", member.ID, err)
		}
		for wd, wh := range member.Schedule {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO staff_hours (staff_id, weekday, start_minute, end_minute, is_working) VALUES (?, ?, ?, ?, ?)`,
				member.ID, int(wd), int(wh.Start), int(wh.End), wh.IsWorking)
			if err != nil {
				return fmt.Errorf("failed to insert staff hours: %w", err)
			}
		}
	}

	for _, svc := range services {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO services (id, shop_id, name, duration_minutes, price, active) VALUES (?, ?, ?, ?, ?, ?)`,
			svc.ID, shop.ID, svc.Name, svc.DurationMinutes, svc.Price, svc.Active)
		if err != nil {
			return fmt.Errorf("failed to insert service %s: %w", svc.ID, err)
		}
		for _, staffID := range svc.EligibleStaffIDs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO service_staff (service_id, staff_id) VALUES (?, ?)`, svc.ID, staffID); err != nil {
				return fmt.Errorf("failed to insert service staff: %w", err)
			}
		}
	}
	return nil
}

func (db *DB) GetShop(ctx context.Context, id string) (*models.Shop, error) {
	shop := &models.Shop{Calendar: make(models.ShopCalendar)}
	var plan string
	err := db.QueryRowContext(ctx, `SELECT id, name, plan, requires_confirmation FROM shops WHERE id = ?`, id).
		Scan(&shop.ID, &shop.Name, &plan, &shop.RequiresConfirmation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrShopNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get shop: %w", err)
	}
	shop.Plan = models.Plan(plan)

	rows, err := db.QueryContext(ctx, `SELECT weekday, open_minute, close_minute, closed FROM shop_hours WHERE shop_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get shop hours: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var wd, open, closeAt int
		var closed bool
		if err := rows.Scan(&wd, &open, &closeAt, &closed); err != nil {
			return nil, fmt.Errorf("failed to scan shop hours: %w", err)
		}
		weekday := time.Weekday(wd)
		shop.Calendar[weekday] = models.OperatingHours{
			Weekday: weekday,
			Open:    timegrid.ClockTime(open),
			Close:   timegrid.ClockTime(closeAt),
			Closed:  closed,
		}
	}
	return shop, rows.Err()
}

func (db *DB) GetService(ctx context.Context, id string) (*models.Service, error) {
	svc := &models.Service{}
	err := db.QueryRowContext(ctx,
		`SELECT id, shop_id, name, duration_minutes, price, active FROM services WHERE id = ?`, id).
		Scan(&svc.ID, &svc.ShopID, &svc.Name, &svc.DurationMinutes, &svc.Price, &svc.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrServiceNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}

	rows, err := db.QueryContext(ctx, `SELECT staff_id FROM service_staff WHERE service_id = ? ORDER BY staff_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get service staff: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var staffID string
		if err := rows.Scan(&staffID); err != nil {
			return nil, fmt.Errorf("failed to scan service staff: %w", err)
		}
		svc.EligibleStaffIDs = append(svc.EligibleStaffIDs, staffID)
	}
	return svc, rows.Err()
}

// ListStaff returns the shop roster ordered by id, schedules included.
func (db *DB) ListStaff(ctx context.Context, shopID string) ([]*models.StaffMember, error) {
	rows, err := db.QueryContext(ctx, `SELECT id, shop_id, name, active FROM staff WHERE shop_id = ? ORDER BY id`, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}

	var staff []*models.StaffMember
	byID := make(map[string]*models.StaffMember)
	for rows.Next() {
		member := &models.StaffMember{Schedule: make(models.StaffSchedule)}
		if err := rows.Scan(&member.ID, &member.ShopID, &member.Name, &member.Active); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan staff: %w", err)
		}
		staff = append(staff, member)
		byID[member.ID] = member
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list staff: %w", err)
	}

	hours, err := db.QueryContext(ctx, `
        SELECT h.staff_id, h.weekday, h.start_minute, h.end_minute, h.is_working
        FROM staff_hours h JOIN staff s ON s.id = h.staff_id
        WHERE s.shop_id = ?`, shopID)
	if err != nil {
		return nil, fmt.Errorf("failed to list staff hours: %w", err)
	}
	defer hours.Close()

	for hours.Next() {
		var staffID string
		var wd, start, end int
		var working bool
		if err := hours.Scan(&staffID, &wd, &start, &end, &working); err != nil {
			return nil, fmt.Errorf("failed to scan staff hours: %w", err)
		}
		if member, ok := byID[staffID]; ok {
			weekday := time.Weekday(wd)
			member.Schedule[weekday] = models.WorkingHours{
				Weekday:   weekday,
				Start:     timegrid.ClockTime(start),
				End:       timegrid.ClockTime(end),
				IsWorking: working,
			}
		}
	}
	return staff, hours.Err()
}

// ListShops returns all shop ids, used by reporting jobs.
func (db *DB) ListShops(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM shops ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list shops: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan shop: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
