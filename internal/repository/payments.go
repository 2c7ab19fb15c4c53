package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/resto-system/internal/model"
	"github.com/mmeshcher/resto-system/internal/money"
)

// InsertPayment создаёт запись платежа и возвращает её идентификатор.
func (r *PostgresRepository) InsertPayment(ctx context.Context, p *model.Payment) (int64, error) {
	metadata := p.Metadata
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}

	var id int64
	err := r.q(ctx).QueryRow(ctx,
		`INSERT INTO payments (order_id, method, amount, tip_amount, reference, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		p.OrderID, p.Method, p.Amount, p.TipAmount, p.Reference, metadata,
	).Scan(&id, &p.CreatedAt)
	if err != nil {
		return 0, fmt.Errorf("insert payment: %w", err)
	}
	return id, nil
}

// PaymentByIDForUpdate возвращает платёж с блокировкой строки. Блокировка
// сериализует конкурентные возвраты по одному платежу.
func (r *PostgresRepository) PaymentByIDForUpdate(ctx context.Context, paymentID int64) (*model.Payment, error) {
	var p model.Payment
	err := r.q(ctx).QueryRow(ctx,
		`SELECT id, order_id, method, amount, tip_amount, reference, metadata, created_at
		 FROM payments
		 WHERE id = $1
		 FOR UPDATE`,
		paymentID,
	).Scan(&p.ID, &p.OrderID, &p.Method, &p.Amount, &p.TipAmount, &p.Reference, &p.Metadata, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("select payment: %w", err)
	}
	return &p, nil
}

// PaymentsSettledTotal возвращает сумму всех платежей заказа (сумма + чаевые).
func (r *PostgresRepository) PaymentsSettledTotal(ctx context.Context, orderID int64) (money.Amount, error) {
	var total money.Amount
	err := r.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount + tip_amount), 0) FROM payments WHERE order_id = $1`,
		orderID,
	).Scan(&total)
	if err != nil {
		return money.Zero(), fmt.Errorf("sum payments: %w", err)
	}
	return total, nil
}

// PaymentTipsTotal возвращает сумму чаевых по всем платежам заказа. Платёжные
// записи — единственный источник истины о чаевых.
func (r *PostgresRepository) PaymentTipsTotal(ctx context.Context, orderID int64) (money.Amount, error) {
	var total money.Amount
	err := r.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(tip_amount), 0) FROM payments WHERE order_id = $1`,
		orderID,
	).Scan(&total)
	if err != nil {
		return money.Zero(), fmt.Errorf("sum payment tips: %w", err)
	}
	return total, nil
}

// RefundsTotalForPayment возвращает сумму возвратов по одному платежу.
func (r *PostgresRepository) RefundsTotalForPayment(ctx context.Context, paymentID int64) (money.Amount, error) {
	var total money.Amount
	err := r.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(amount), 0) FROM payment_refunds WHERE payment_id = $1`,
		paymentID,
	).Scan(&total)
	if err != nil {
		return money.Zero(), fmt.Errorf("sum payment refunds: %w", err)
	}
	return total, nil
}

// RefundsTotalForOrder возвращает сумму возвратов по всем платежам заказа.
func (r *PostgresRepository) RefundsTotalForOrder(ctx context.Context, orderID int64) (money.Amount, error) {
	var total money.Amount
	err := r.q(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(pr.amount), 0)
		 FROM payment_refunds pr
		 JOIN payments p ON p.id = pr.payment_id
		 WHERE p.order_id = $1`,
		orderID,
	).Scan(&total)
	if err != nil {
		return money.Zero(), fmt.Errorf("sum order refunds: %w", err)
	}
	return total, nil
}

// InsertPaymentRefund создаёт запись возврата по платежу.
func (r *PostgresRepository) InsertPaymentRefund(ctx context.Context, paymentID int64, amount money.Amount, reason string) (int64, error) {
	var id int64
	err := r.q(ctx).QueryRow(ctx,
		`INSERT INTO payment_refunds (payment_id, amount, reason) VALUES ($1, $2, $3) RETURNING id`,
		paymentID, amount, reason,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert payment refund: %w", err)
	}
	return id, nil
}
