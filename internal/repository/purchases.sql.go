package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const purchaseColumns = `id, user_id, purchase_type, amount_cents, currency, purchase_date, bonus, external_id, created_at`

func scanPurchase(row scanner) (Purchase, error) {
	var i Purchase
	err := row.Scan(
		&i.ID,
		&i.UserID,
		&i.PurchaseType,
		&i.AmountCents,
		&i.Currency,
		&i.PurchaseDate,
		&i.Bonus,
		&i.ExternalID,
		&i.CreatedAt,
	)
	return i, err
}

const createPurchase = `-- name: CreatePurchase :one
INSERT INTO purchases (user_id, purchase_type, amount_cents, currency, purchase_date, bonus, external_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)
RETURNING ` + purchaseColumns

type CreatePurchaseParams struct {
	UserID       uuid.UUID       `json:"user_id"`
	PurchaseType string          `json:"purchase_type"`
	AmountCents  int64           `json:"amount_cents"`
	Currency     string          `json:"currency"`
	PurchaseDate time.Time       `json:"purchase_date"`
	Bonus        json.RawMessage `json:"bonus"`
	ExternalID   sql.NullString  `json:"external_id"`
}

func (q *Queries) CreatePurchase(ctx context.Context, arg CreatePurchaseParams) (Purchase, error) {
	row := q.db.QueryRowContext(ctx, createPurchase,
		arg.UserID,
		arg.PurchaseType,
		arg.AmountCents,
		arg.Currency,
		arg.PurchaseDate,
		arg.Bonus,
		arg.ExternalID,
	)
	return scanPurchase(row)
}

const listPurchasesSince = `-- name: ListPurchasesSince :many
SELECT ` + purchaseColumns + `
FROM purchases
WHERE user_id = $1 AND purchase_date >= $2
ORDER BY purchase_date`

type ListPurchasesSinceParams struct {
	UserID uuid.UUID `json:"user_id"`
	Since  time.Time `json:"since"`
}

func (q *Queries) ListPurchasesSince(ctx context.Context, arg ListPurchasesSinceParams) ([]Purchase, error) {
	rows, err := q.db.QueryContext(ctx, listPurchasesSince, arg.UserID, arg.Since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Purchase
	for rows.Next() {
		i, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
