package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/resto-system/internal/model"
	"github.com/mmeshcher/resto-system/internal/money"
)

// PromotionByCode возвращает промоакцию бренда по коду; nil, если кода нет.
func (r *PostgresRepository) PromotionByCode(ctx context.Context, brandID int64, code string) (*model.Promotion, error) {
	var p model.Promotion
	err := r.q(ctx).QueryRow(ctx,
		`SELECT id, brand_id, code, kind, value, min_subtotal, max_redemptions, starts_at, ends_at, active
		 FROM promotions
		 WHERE brand_id = $1 AND code = $2`,
		brandID, code,
	).Scan(&p.ID, &p.BrandID, &p.Code, &p.Kind, &p.Value, &p.MinSubtotal,
		&p.MaxRedemptions, &p.StartsAt, &p.EndsAt, &p.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select promotion: %w", err)
	}
	return &p, nil
}

// RedemptionCount возвращает число применений промоакции.
func (r *PostgresRepository) RedemptionCount(ctx context.Context, promotionID int64) (int, error) {
	var n int
	err := r.q(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM promo_redemptions WHERE promotion_id = $1`,
		promotionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count redemptions: %w", err)
	}
	return n, nil
}

// UpsertPromoRedemption создаёт либо обновляет запись применения промоакции к
// заказу — одна запись на пару (промоакция, заказ).
func (r *PostgresRepository) UpsertPromoRedemption(ctx context.Context, promotionID, orderID int64, amount money.Amount) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO promo_redemptions (promotion_id, order_id, amount)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (promotion_id, order_id)
		 DO UPDATE SET amount = EXCLUDED.amount`,
		promotionID, orderID, amount,
	)
	if err != nil {
		return fmt.Errorf("upsert promo redemption: %w", err)
	}
	return nil
}

// DeletePromoRedemptions удаляет все применения промоакций к заказу.
func (r *PostgresRepository) DeletePromoRedemptions(ctx context.Context, orderID int64) error {
	_, err := r.q(ctx).Exec(ctx,
		`DELETE FROM promo_redemptions WHERE order_id = $1`,
		orderID,
	)
	if err != nil {
		return fmt.Errorf("delete promo redemptions: %w", err)
	}
	return nil
}
