package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"zapis/internal/domain"
	"zapis/internal/models"

	"github.com/google/uuid"
)

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// upsertClient находит клиента салона по email или создает нового.
// Имя и телефон обновляются последними введенными значениями.
// Клиент с ID обновляется по ID; email, занятый другим клиентом салона, отклоняется.
func upsertClient(ctx context.Context, q rowQuerier, client *models.Client) error {
	now := time.Now()

	if client.ID != "" {
		var owner string
		err := q.QueryRowContext(ctx, `SELECT id FROM clients WHERE shop_id = ? AND email = ? AND id <> ?`,
			client.ShopID, client.Email, client.ID).Scan(&owner)
		switch {
		case err == nil:
			return fmt.Errorf("%w: email %s belongs to another client", domain.ErrInvalidClientDetails, client.Email)
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("failed to check client email: %w", err)
		}

		err = q.QueryRowContext(ctx,
			`UPDATE clients SET name = ?, email = ?, phone = ? WHERE id = ? AND shop_id = ? RETURNING created_at`,
			client.Name, client.Email, client.Phone, client.ID, client.ShopID).Scan(&client.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: client %s", domain.ErrInvalidClientDetails, client.ID)
		}
		if err != nil {
			return fmt.Errorf("failed to update client: %w", err)
		}
		return nil
	}

	query := `INSERT INTO clients (id, shop_id, name, email, phone, created_at) VALUES (?, ?, ?, ?, ?, ?)
              ON CONFLICT(shop_id, email) DO UPDATE SET name = excluded.name, phone = excluded.phone
              RETURNING id, created_at`
	err := q.QueryRowContext(ctx, query, uuid.NewString(), client.ShopID, client.Name, client.Email, client.Phone, now).
		Scan(&client.ID, &client.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert client: %w", err)
	}
	return nil
}

func (db *DB) GetClient(ctx context.Context, id string) (*models.Client, error) {
	var c models.Client
	err := db.QueryRowContext(ctx, `SELECT id, shop_id, name, email, phone, created_at FROM clients WHERE id = ?`, id).
		Scan(&c.ID, &c.ShopID, &c.Name, &c.Email, &c.Phone, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: client %s", domain.ErrInvalidClientDetails, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return &c, nil
}
