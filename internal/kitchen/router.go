// Package kitchen реализует маршрутизацию строк заказа в кухонные тикеты.
package kitchen

import (
	"context"

	"github.com/mmeshcher/resto-system/internal/model"
)

// Store описывает контракт доступа к данным, используемый маршрутизатором.
type Store interface {
	OrderItems(ctx context.Context, orderID int64) ([]model.OrderItem, error)
	OrderLineHasTicket(ctx context.Context, orderItemID int64) (bool, error)
	RouteByVariant(ctx context.Context, variantID int64) (*model.StationRoute, error)
	RouteByItem(ctx context.Context, itemID int64) (*model.StationRoute, error)
	InsertKitchenTicket(ctx context.Context, orderID, stationID int64, status model.TicketStatus) (int64, error)
	InsertKitchenTicketItem(ctx context.Context, ticketID, orderItemID int64, quantity int, status model.TicketStatus) error
}

// Router создаёт тикеты приготовления для строк заказа.
type Router struct {
	store Store
}

// NewRouter создаёт маршрутизатор поверх указанного хранилища.
func NewRouter(store Store) *Router {
	return &Router{store: store}
}

// Route создаёт тикет и строку тикета для каждой подходящей строки заказа.
// Маршрут варианта имеет приоритет над маршрутом позиции; строка без маршрута
// молча пропускается. В режиме onlyNewLines пропускаются строки, у которых уже
// есть хотя бы одна строка тикета. Должен вызываться внутри транзакции
// вызывающей операции.
func (r *Router) Route(ctx context.Context, orderID int64, onlyNewLines bool) error {
	items, err := r.store.OrderItems(ctx, orderID)
	if err != nil {
		return err
	}

	for _, it := range items {
		if it.Voided {
			continue
		}

		if onlyNewLines {
			has, err := r.store.OrderLineHasTicket(ctx, it.ID)
			if err != nil {
				return err
			}
			if has {
				continue
			}
		}

		route, err := r.resolveRoute(ctx, it)
		if err != nil {
			return err
		}
		if route == nil {
			continue
		}

		ticketID, err := r.store.InsertKitchenTicket(ctx, orderID, route.StationID, model.TicketStatusNew)
		if err != nil {
			return err
		}

		if err := r.store.InsertKitchenTicketItem(ctx, ticketID, it.ID, it.Quantity, model.TicketStatusNew); err != nil {
			return err
		}
	}

	return nil
}

func (r *Router) resolveRoute(ctx context.Context, it model.OrderItem) (*model.StationRoute, error) {
	if it.VariantID != nil {
		route, err := r.store.RouteByVariant(ctx, *it.VariantID)
		if err != nil {
			return nil, err
		}
		if route != nil {
			return route, nil
		}
	}
	return r.store.RouteByItem(ctx, it.ItemID)
}
