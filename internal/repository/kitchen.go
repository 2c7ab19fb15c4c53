package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/mmeshcher/resto-system/internal/model"
)

// OrderLineHasTicket сообщает, существует ли строка тикета для данной строки
// заказа. Используется маршрутизатором в режиме "только новые строки".
func (r *PostgresRepository) OrderLineHasTicket(ctx context.Context, orderItemID int64) (bool, error) {
	var exists bool
	err := r.q(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM kitchen_ticket_items WHERE order_item_id = $1)`,
		orderItemID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check ticket line: %w", err)
	}
	return exists, nil
}

func (r *PostgresRepository) routeByKey(ctx context.Context, column string, key int64) (*model.StationRoute, error) {
	var sr model.StationRoute
	err := r.q(ctx).QueryRow(ctx,
		`SELECT id, station_id, item_id, variant_id, active
		 FROM station_routes
		 WHERE `+column+` = $1 AND active
		 LIMIT 1`,
		key,
	).Scan(&sr.ID, &sr.StationID, &sr.ItemID, &sr.VariantID, &sr.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select station route: %w", err)
	}
	return &sr, nil
}

// RouteByVariant возвращает активный маршрут варианта позиции; nil, если его нет.
func (r *PostgresRepository) RouteByVariant(ctx context.Context, variantID int64) (*model.StationRoute, error) {
	return r.routeByKey(ctx, "variant_id", variantID)
}

// RouteByItem возвращает активный маршрут позиции; nil, если его нет.
func (r *PostgresRepository) RouteByItem(ctx context.Context, itemID int64) (*model.StationRoute, error) {
	return r.routeByKey(ctx, "item_id", itemID)
}

// InsertKitchenTicket создаёт тикет кухни и возвращает его идентификатор.
func (r *PostgresRepository) InsertKitchenTicket(ctx context.Context, orderID, stationID int64, status model.TicketStatus) (int64, error) {
	var id int64
	err := r.q(ctx).QueryRow(ctx,
		`INSERT INTO kitchen_tickets (order_id, station_id, status) VALUES ($1, $2, $3) RETURNING id`,
		orderID, stationID, string(status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert kitchen ticket: %w", err)
	}
	return id, nil
}

// InsertKitchenTicketItem создаёт строку тикета, привязанную к строке заказа.
func (r *PostgresRepository) InsertKitchenTicketItem(ctx context.Context, ticketID, orderItemID int64, quantity int, status model.TicketStatus) error {
	_, err := r.q(ctx).Exec(ctx,
		`INSERT INTO kitchen_ticket_items (ticket_id, order_item_id, quantity, status)
		 VALUES ($1, $2, $3, $4)`,
		ticketID, orderItemID, quantity, string(status),
	)
	if err != nil {
		return fmt.Errorf("insert kitchen ticket item: %w", err)
	}
	return nil
}

// KitchenTicketsForBranch возвращает тикеты филиала со строками, новые сверху.
func (r *PostgresRepository) KitchenTicketsForBranch(ctx context.Context, branchID int64) ([]model.KitchenTicket, error) {
	var tickets []model.KitchenTicket

	err := r.withRetry(ctx, func() error {
		rows, err := r.q(ctx).Query(ctx,
			`SELECT t.id, t.order_id, t.station_id, t.status, t.created_at
			 FROM kitchen_tickets t
			 JOIN orders o ON o.id = t.order_id
			 WHERE o.branch_id = $1
			 ORDER BY t.created_at DESC`,
			branchID,
		)
		if err != nil {
			return fmt.Errorf("select kitchen tickets: %w", err)
		}
		defer rows.Close()

		tickets = tickets[:0]
		index := make(map[int64]int)
		for rows.Next() {
			var t model.KitchenTicket
			if err := rows.Scan(&t.ID, &t.OrderID, &t.StationID, &t.Status, &t.CreatedAt); err != nil {
				return fmt.Errorf("scan kitchen ticket: %w", err)
			}
			index[t.ID] = len(tickets)
			tickets = append(tickets, t)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("rows error: %w", err)
		}

		if len(tickets) == 0 {
			return nil
		}

		lineRows, err := r.q(ctx).Query(ctx,
			`SELECT l.id, l.ticket_id, l.order_item_id, l.quantity, l.status
			 FROM kitchen_ticket_items l
			 JOIN kitchen_tickets t ON t.id = l.ticket_id
			 JOIN orders o ON o.id = t.order_id
			 WHERE o.branch_id = $1
			 ORDER BY l.id`,
			branchID,
		)
		if err != nil {
			return fmt.Errorf("select kitchen ticket items: %w", err)
		}
		defer lineRows.Close()

		for lineRows.Next() {
			var l model.KitchenTicketItem
			if err := lineRows.Scan(&l.ID, &l.TicketID, &l.OrderItemID, &l.Quantity, &l.Status); err != nil {
				return fmt.Errorf("scan kitchen ticket item: %w", err)
			}
			if i, ok := index[l.TicketID]; ok {
				tickets[i].Items = append(tickets[i].Items, l)
			}
		}
		return lineRows.Err()
	})
	if err != nil {
		return nil, err
	}

	return tickets, nil
}
