package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/resto-system/internal/model"
	"github.com/mmeshcher/resto-system/internal/money"
)

const orderColumns = `id, brand_id, branch_id, order_type, status, table_id, customer_id, waiter_id,
	 covers, notes, subtotal, discount, service, tax, tip, total, paid_total, created_at, closed_at`

func scanOrder(row pgx.Row) (*model.Order, error) {
	var o model.Order
	err := row.Scan(
		&o.ID, &o.BrandID, &o.BranchID, &o.Type, &o.Status, &o.TableID, &o.CustomerID, &o.WaiterID,
		&o.Covers, &o.Notes, &o.Subtotal, &o.Discount, &o.Service, &o.Tax, &o.Tip, &o.Total,
		&o.PaidTotal, &o.CreatedAt, &o.ClosedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return &o, nil
}

// InsertOrder создаёт запись заказа и возвращает её идентификатор.
func (r *PostgresRepository) InsertOrder(ctx context.Context, o *model.Order) (int64, error) {
	var id int64
	err := r.q(ctx).QueryRow(ctx,
		`INSERT INTO orders (brand_id, branch_id, order_type, status, table_id, customer_id, waiter_id, covers, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		o.BrandID, o.BranchID, string(o.Type), string(o.Status), o.TableID, o.CustomerID, o.WaiterID, o.Covers, o.Notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}

// OrderByID возвращает заказ в рамках области арендатора.
func (r *PostgresRepository) OrderByID(ctx context.Context, brandID, branchID, orderID int64) (*model.Order, error) {
	row := r.q(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 AND brand_id = $2 AND branch_id = $3`,
		orderID, brandID, branchID,
	)
	return scanOrder(row)
}

// OrderSnapshot возвращает заказ без проверки области арендатора. Используется
// внутренними движками, уже работающими в проверенной транзакции.
func (r *PostgresRepository) OrderSnapshot(ctx context.Context, orderID int64) (*model.Order, error) {
	row := r.q(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`,
		orderID,
	)
	return scanOrder(row)
}

// OrderItems возвращает строки заказа вместе с модификаторами.
func (r *PostgresRepository) OrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	rows, err := r.q(ctx).Query(ctx,
		`SELECT id, order_id, item_id, variant_id, quantity, base_price, line_price, voided, notes
		 FROM order_items
		 WHERE order_id = $1
		 ORDER BY id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order items: %w", err)
	}
	defer rows.Close()

	var items []model.OrderItem
	index := make(map[int64]int)
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ItemID, &it.VariantID, &it.Quantity,
			&it.BasePrice, &it.LinePrice, &it.Voided, &it.Notes); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		index[it.ID] = len(items)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	if len(items) == 0 {
		return items, nil
	}

	modRows, err := r.q(ctx).Query(ctx,
		`SELECT m.id, m.order_item_id, m.modifier_id, m.name, m.price
		 FROM order_item_modifiers m
		 JOIN order_items i ON i.id = m.order_item_id
		 WHERE i.order_id = $1
		 ORDER BY m.id`,
		orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("select order item modifiers: %w", err)
	}
	defer modRows.Close()

	for modRows.Next() {
		var m model.OrderItemModifier
		if err := modRows.Scan(&m.ID, &m.OrderItemID, &m.ModifierID, &m.Name, &m.Price); err != nil {
			return nil, fmt.Errorf("scan order item modifier: %w", err)
		}
		if i, ok := index[m.OrderItemID]; ok {
			items[i].Modifiers = append(items[i].Modifiers, m)
		}
	}
	if err := modRows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return items, nil
}

// OrderItemByID возвращает строку заказа по её идентификатору.
func (r *PostgresRepository) OrderItemByID(ctx context.Context, orderID, itemID int64) (*model.OrderItem, error) {
	var it model.OrderItem
	err := r.q(ctx).QueryRow(ctx,
		`SELECT id, order_id, item_id, variant_id, quantity, base_price, line_price, voided, notes
		 FROM order_items
		 WHERE id = $1 AND order_id = $2`,
		itemID, orderID,
	).Scan(&it.ID, &it.OrderID, &it.ItemID, &it.VariantID, &it.Quantity,
		&it.BasePrice, &it.LinePrice, &it.Voided, &it.Notes)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderItemNotFound
		}
		return nil, fmt.Errorf("select order item: %w", err)
	}
	return &it, nil
}

// InsertOrderItem создаёт строку заказа и возвращает её идентификатор.
func (r *PostgresRepository) InsertOrderItem(ctx context.Context, it *model.OrderItem) (int64, error) {
	var id int64
	err := r.q(ctx).QueryRow(ctx,
		`INSERT INTO order_items (order_id, item_id, variant_id, quantity, base_price, line_price, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		it.OrderID, it.ItemID, it.VariantID, it.Quantity, it.BasePrice, it.LinePrice, it.Notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order item: %w", err)
	}
	return id, nil
}

// InsertOrderItemModifier создаёт модификатор строки заказа.
func (r *PostgresRepository) InsertOrderItemModifier(ctx context.Context, m *model.OrderItemModifier) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO order_item_modifiers (order_item_id, modifier_id, name, price)
		 VALUES ($1, $2, $3, $4)`,
		m.OrderItemID, m.ModifierID, m.Name, m.Price,
	)
	if err != nil {
		return fmt.Errorf("insert order item modifier: %w", err)
	}
	return nil
}

// UpdateOrderItem обновляет количество, заметки и пересчитанную цену строки.
func (r *PostgresRepository) UpdateOrderItem(ctx context.Context, itemID int64, quantity int, notes string, linePrice money.Amount) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE order_items SET quantity = $2, notes = $3, line_price = $4 WHERE id = $1`,
		itemID, quantity, notes, linePrice,
	)
	if err != nil {
		return fmt.Errorf("update order item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderItemNotFound
	}
	return nil
}

// SetOrderItemVoided помечает строку заказа аннулированной. Строка не
// удаляется и остаётся в журнале заказа.
func (r *PostgresRepository) SetOrderItemVoided(ctx context.Context, itemID int64) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE order_items SET voided = TRUE WHERE id = $1`,
		itemID,
	)
	if err != nil {
		return fmt.Errorf("void order item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderItemNotFound
	}
	return nil
}

// UpdateOrderStatus обновляет статус заказа и время закрытия.
func (r *PostgresRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status model.OrderStatus, closedAt *time.Time) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE orders SET status = $2, closed_at = $3 WHERE id = $1`,
		orderID, string(status), closedAt,
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// OrderFinancials описывает финансовый снимок заказа после пересчёта итогов.
type OrderFinancials struct {
	Subtotal money.Amount
	Discount money.Amount
	Service  money.Amount
	Tax      money.Amount
	Tip      money.Amount
	Total    money.Amount
}

// SetOrderFinancials записывает финансовый снимок заказа.
func (r *PostgresRepository) SetOrderFinancials(ctx context.Context, orderID int64, f OrderFinancials) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE orders SET subtotal = $2, discount = $3, service = $4, tax = $5, tip = $6, total = $7
		 WHERE id = $1`,
		orderID, f.Subtotal, f.Discount, f.Service, f.Tax, f.Tip, f.Total,
	)
	if err != nil {
		return fmt.Errorf("set order financials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SetOrderDiscount записывает сумму скидки на заказ.
func (r *PostgresRepository) SetOrderDiscount(ctx context.Context, orderID int64, amount money.Amount) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE orders SET discount = $2 WHERE id = $1`,
		orderID, amount,
	)
	if err != nil {
		return fmt.Errorf("set order discount: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// SetOrderPaymentState записывает чаевые, итог и оплаченную сумму заказа после
// операции в платёжном журнале.
func (r *PostgresRepository) SetOrderPaymentState(ctx context.Context, orderID int64, tip, total, paidTotal money.Amount) error {
	tag, err := r.q(ctx).Exec(ctx,
		`UPDATE orders SET tip = $2, total = $3, paid_total = $4 WHERE id = $1`,
		orderID, tip, total, paidTotal,
	)
	if err != nil {
		return fmt.Errorf("set order payment state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// ReplaceOrderTaxes удаляет прежний налоговый снимок заказа и записывает новый.
func (r *PostgresRepository) ReplaceOrderTaxes(ctx context.Context, orderID int64, taxes []model.OrderTax) error {
	if _, err := r.q(ctx).Exec(ctx,
		`DELETE FROM order_taxes WHERE order_id = $1`,
		orderID,
	); err != nil {
		return fmt.Errorf("delete order taxes: %w", err)
	}

	for _, t := range taxes {
		if _, err := r.q(ctx).Exec(ctx,
			`INSERT INTO order_taxes (order_id, tax_rate_id, name, percent, amount)
			 VALUES ($1, $2, $3, $4, $5)`,
			orderID, t.TaxRateID, t.Name, t.Percent, t.Amount,
		); err != nil {
			return fmt.Errorf("insert order tax: %w", err)
		}
	}

	return nil
}

// InsertOrderLog добавляет запись журнала аудита по заказу.
func (r *PostgresRepository) InsertOrderLog(ctx context.Context, orderID int64, status model.OrderStatus, message, actor string) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO order_logs (order_id, status, message, actor) VALUES ($1, $2, $3, $4)`,
		orderID, string(status), message, actor,
	)
	if err != nil {
		return fmt.Errorf("insert order log: %w", err)
	}
	return nil
}
